package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"qa-portal/internal/models"
	"qa-portal/internal/repository"
	"qa-portal/internal/workflow"

	"github.com/rs/zerolog"
)

const codeAttempts = 3

// NCPService runs workflow decisions against storage. Each operation loads the
// record, asks the workflow package for a decision, commits it with a
// status-guarded write, then hands the effects to the dispatcher and recorder.
type NCPService struct {
	ncps     repository.NCPRepository
	users    repository.UserRepository
	notify   *Dispatcher
	recorder *AuditRecorder
	log      zerolog.Logger
	now      func() time.Time
}

func NewNCPService(ncps repository.NCPRepository, users repository.UserRepository, notify *Dispatcher, recorder *AuditRecorder, log zerolog.Logger) *NCPService {
	return &NCPService{
		ncps:     ncps,
		users:    users,
		notify:   notify,
		recorder: recorder,
		log:      log.With().Str("component", "ncp").Logger(),
		now:      time.Now,
	}
}

// Submit creates a pending report under a freshly allocated code.
func (s *NCPService) Submit(ctx context.Context, actor models.Actor, in workflow.SubmitInput) (*models.NCPReport, error) {
	now := s.now()
	r, err := workflow.Submit(actor, in, now)
	if err != nil {
		return nil, err
	}
	if err := s.requireAssignee(ctx, "qaLeader", r.QALeader, models.RoleQALeader); err != nil {
		return nil, err
	}

	prefix := workflow.CodePrefix(now)
	for attempt := 1; ; attempt++ {
		code, err := s.ncps.NextCode(ctx, prefix)
		if errors.Is(err, repository.ErrOutOfRange) || errors.Is(err, workflow.ErrValidation) {
			return nil, workflow.Validationf("no NCP codes left for %s", prefix)
		}
		if err != nil {
			return nil, workflow.Persistence("allocate ncp code", err)
		}
		r.NCPCode = code
		err = s.ncps.Create(ctx, r)
		if err == nil {
			break
		}
		if errors.Is(err, repository.ErrOutOfRange) {
			s.log.Warn().Err(err).Str("ncp", code).Msg("create rejected by check constraint")
			return nil, workflow.Validationf("ncp %s: value out of range", code)
		}
		if !errors.Is(err, repository.ErrDuplicate) || attempt == codeAttempts {
			return nil, workflow.Persistence("create ncp", err)
		}
		s.log.Warn().Str("ncp", code).Int("attempt", attempt).Msg("ncp code taken, retrying")
	}

	s.log.Info().Str("ncp", r.NCPCode).Str("by", actor.Username).Msg("ncp submitted")
	s.notify.Emit(ctx, r.NCPCode, []workflow.Notice{workflow.SubmittedNotice(r)})
	return r, nil
}

func (s *NCPService) QAApprove(ctx context.Context, actor models.Actor, id string, in workflow.Input) (*models.NCPReport, error) {
	return s.transition(ctx, actor, id, workflow.ActionQAApprove, in)
}

func (s *NCPService) QAReject(ctx context.Context, actor models.Actor, id string, in workflow.Input) (*models.NCPReport, error) {
	return s.transition(ctx, actor, id, workflow.ActionQAReject, in)
}

func (s *NCPService) TLProcess(ctx context.Context, actor models.Actor, id string, in workflow.Input) (*models.NCPReport, error) {
	return s.transition(ctx, actor, id, workflow.ActionTLProcess, in)
}

func (s *NCPService) ProcessApprove(ctx context.Context, actor models.Actor, id string, in workflow.Input) (*models.NCPReport, error) {
	return s.transition(ctx, actor, id, workflow.ActionProcessApprove, in)
}

func (s *NCPService) ProcessReject(ctx context.Context, actor models.Actor, id string, in workflow.Input) (*models.NCPReport, error) {
	return s.transition(ctx, actor, id, workflow.ActionProcessReject, in)
}

func (s *NCPService) ManagerApprove(ctx context.Context, actor models.Actor, id string, in workflow.Input) (*models.NCPReport, error) {
	return s.transition(ctx, actor, id, workflow.ActionManagerApprove, in)
}

func (s *NCPService) ManagerReject(ctx context.Context, actor models.Actor, id string, in workflow.Input) (*models.NCPReport, error) {
	return s.transition(ctx, actor, id, workflow.ActionManagerReject, in)
}

func (s *NCPService) transition(ctx context.Context, actor models.Actor, id string, action workflow.Action, in workflow.Input) (*models.NCPReport, error) {
	cur, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	d, err := workflow.Apply(cur, actor, action, in, s.now())
	if err != nil {
		return nil, err
	}
	if action == workflow.ActionQAApprove {
		if err := s.requireAssignee(ctx, "assignedTeamLeader", d.Report.AssignedTeamLeader, models.RoleTeamLeader); err != nil {
			return nil, err
		}
	}
	return s.commit(ctx, actor, d)
}

// Revert moves a record back to an earlier status. Super admin only.
func (s *NCPService) Revert(ctx context.Context, actor models.Actor, id string, target models.Status) (*models.NCPReport, error) {
	if err := workflow.RequireSuperAdmin(actor); err != nil {
		return nil, err
	}
	cur, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	d, err := workflow.Revert(cur, actor, target, s.now())
	if err != nil {
		return nil, err
	}
	return s.commit(ctx, actor, d)
}

// Reassign changes the QA leader or team leader on a record. Super admin only.
func (s *NCPService) Reassign(ctx context.Context, actor models.Actor, id string, role models.Role, assignee string) (*models.NCPReport, error) {
	if err := workflow.RequireSuperAdmin(actor); err != nil {
		return nil, err
	}
	cur, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	d, err := workflow.Reassign(cur, actor, role, assignee, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.requireAssignee(ctx, "newAssignee", strings.TrimSpace(assignee), role); err != nil {
		return nil, err
	}
	return s.commit(ctx, actor, d)
}

// Edit overwrites fields without moving the status. Super admin only.
func (s *NCPService) Edit(ctx context.Context, actor models.Actor, id string, fields map[string]string) (*models.NCPReport, error) {
	if err := workflow.RequireSuperAdmin(actor); err != nil {
		return nil, err
	}
	cur, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	d, err := workflow.Edit(cur, actor, fields, s.now())
	if err != nil {
		return nil, err
	}
	return s.commit(ctx, actor, d)
}

// Delete removes a record for good. Super admin only.
func (s *NCPService) Delete(ctx context.Context, actor models.Actor, id string) error {
	if err := workflow.RequireSuperAdmin(actor); err != nil {
		return err
	}
	cur, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := s.ncps.Delete(ctx, cur.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return workflow.NotFoundf("ncp %s", id)
		}
		return workflow.Persistence("delete ncp", err)
	}
	s.log.Warn().Str("ncp", cur.NCPCode).Str("status", string(cur.Status)).Str("by", actor.Username).Msg("ncp deleted")
	return nil
}

func (s *NCPService) Get(ctx context.Context, actor models.Actor, id string) (*models.NCPReport, error) {
	r, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := workflow.CanView(r, actor); err != nil {
		return nil, err
	}
	return r, nil
}

// GetByCode looks a record up by its YYMM-NNNN code.
func (s *NCPService) GetByCode(ctx context.Context, actor models.Actor, code string) (*models.NCPReport, error) {
	r, err := s.ncps.GetByCode(ctx, strings.TrimSpace(code))
	if err != nil {
		return nil, workflow.Persistence("load ncp", err)
	}
	if r == nil {
		return nil, workflow.NotFoundf("ncp %s", code)
	}
	if err := workflow.CanView(r, actor); err != nil {
		return nil, err
	}
	return r, nil
}

// List applies f, narrowed to the actor's own submissions for plain users.
func (s *NCPService) List(ctx context.Context, actor models.Actor, f repository.NCPFilter) ([]models.NCPReport, int, error) {
	if actor.Role == models.RoleUser {
		f.SubmittedBy = actor.Username
	}
	items, total, err := s.ncps.List(ctx, f)
	if err != nil {
		return nil, 0, workflow.Persistence("list ncps", err)
	}
	return items, total, nil
}

// Pending lists the records waiting on actor.
func (s *NCPService) Pending(ctx context.Context, actor models.Actor, limit, offset int) ([]models.NCPReport, int, error) {
	f := workflow.Queue(actor)
	f.Limit, f.Offset = limit, offset
	f.Sort, f.Order = "submitted_at", "asc"
	return s.List(ctx, actor, f)
}

func (s *NCPService) History(ctx context.Context, actor models.Actor, id string) ([]models.AuditLogEntry, error) {
	r, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	return s.recorder.History(ctx, r.NCPCode)
}

// Summary counts records per status.
func (s *NCPService) Summary(ctx context.Context) (map[models.Status]int, error) {
	counts, err := s.ncps.CountByStatus(ctx)
	if err != nil {
		return nil, workflow.Persistence("count ncps", err)
	}
	return counts, nil
}

func (s *NCPService) RecentAudit(ctx context.Context, limit, offset int) ([]models.AuditLogEntry, error) {
	return s.recorder.Recent(ctx, limit, offset)
}

func (s *NCPService) load(ctx context.Context, id string) (*models.NCPReport, error) {
	r, err := s.ncps.Get(ctx, id)
	if err != nil {
		return nil, workflow.Persistence("load ncp", err)
	}
	if r == nil {
		return nil, workflow.NotFoundf("ncp %s", id)
	}
	return r, nil
}

// commit writes d and emits its effects. Status moves go through the guarded
// transition write; field edits write only the touched columns. Both writes
// fail with ErrStale if anything changed the record after it was loaded.
func (s *NCPService) commit(ctx context.Context, actor models.Actor, d workflow.Decision) (*models.NCPReport, error) {
	r := d.Report
	switch {
	case d.StatusChanged():
		if err := s.ncps.Transition(ctx, r, d.From); err != nil {
			return nil, s.writeErr(ctx, r.ID, d.From, err)
		}
	case len(d.Columns) > 0:
		if err := s.ncps.UpdateFields(ctx, r, d.Columns); err != nil {
			return nil, s.writeErr(ctx, r.ID, d.From, err)
		}
	default:
		return r, nil
	}

	s.log.Info().
		Str("ncp", r.NCPCode).
		Str("from", string(d.From)).
		Str("to", string(r.Status)).
		Str("by", actor.Username).
		Msg("ncp updated")

	s.recorder.RecordChanges(ctx, r.NCPCode, actor.Username, d.Audit)
	s.notify.Emit(ctx, r.NCPCode, d.Notices)
	return r, nil
}

func (s *NCPService) writeErr(ctx context.Context, id string, from models.Status, err error) error {
	switch {
	case errors.Is(err, repository.ErrStale):
		cur, gerr := s.ncps.Get(ctx, id)
		if gerr != nil {
			return workflow.Persistence("reload ncp", gerr)
		}
		if cur == nil {
			return workflow.NotFoundf("ncp %s", id)
		}
		return workflow.Stale(string(from), string(cur.Status))
	case errors.Is(err, repository.ErrNotFound):
		return workflow.NotFoundf("ncp %s", id)
	case errors.Is(err, repository.ErrOutOfRange):
		s.log.Warn().Err(err).Str("id", id).Msg("write rejected by check constraint")
		return workflow.Validationf("ncp %s: value out of range", id)
	default:
		return workflow.Persistence("update ncp", err)
	}
}

// requireAssignee checks that username names an active user holding role.
func (s *NCPService) requireAssignee(ctx context.Context, field, username string, role models.Role) error {
	u, _, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return workflow.Persistence("lookup user", err)
	}
	if u == nil || !u.Active || u.Role != role {
		return workflow.Validationf("%s: %q is not an active %s", field, username, role)
	}
	return nil
}
