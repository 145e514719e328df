// Package memory keeps every table in process. It backs STORE=memory and the
// service and handler tests; semantics mirror the Postgres repositories,
// including the version-guarded writes and unique NCP codes.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"qa-portal/internal/models"
	"qa-portal/internal/repository"
	"qa-portal/internal/workflow"

	"github.com/google/uuid"
)

// Store holds all tables behind one lock.
type Store struct {
	mu            sync.Mutex
	ncps          map[string]*models.NCPReport
	seq           map[string]int
	users         map[string]*userRow
	notifications []*models.Notification
	audit         []models.AuditLogEntry
	now           func() time.Time
}

type userRow struct {
	user models.User
	hash string
}

func New() *Store {
	return &Store{
		ncps:  map[string]*models.NCPReport{},
		seq:   map[string]int{},
		users: map[string]*userRow{},
		now:   time.Now,
	}
}

func (s *Store) NCPs() *NCPRepo                   { return &NCPRepo{s} }
func (s *Store) Users() *UserRepo                 { return &UserRepo{s} }
func (s *Store) Notifications() *NotificationRepo { return &NotificationRepo{s} }
func (s *Store) Audit() *AuditRepo                { return &AuditRepo{s} }

// -----------------------------------------------------------------------------
// NCP reports
// -----------------------------------------------------------------------------

type NCPRepo struct{ s *Store }

var _ repository.NCPRepository = (*NCPRepo)(nil)

func (r *NCPRepo) NextCode(_ context.Context, prefix string) (string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.seq[prefix]; !ok {
		top := 0
		for _, n := range r.s.ncps {
			if seq, ok := workflow.ParseSequence(n.NCPCode, prefix); ok && seq > top {
				top = seq
			}
		}
		r.s.seq[prefix] = top
	}
	if r.s.seq[prefix] >= workflow.MaxSequence {
		return "", repository.ErrOutOfRange
	}
	code, err := workflow.FormatCode(prefix, r.s.seq[prefix]+1)
	if err != nil {
		return "", err
	}
	r.s.seq[prefix]++
	return code, nil
}

func (r *NCPRepo) Create(_ context.Context, n *models.NCPReport) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, existing := range r.s.ncps {
		if existing.NCPCode == n.NCPCode {
			return repository.ErrDuplicate
		}
	}
	if n.HoldQuantity <= 0 {
		return repository.ErrOutOfRange
	}
	n.ID = uuid.NewString()
	n.Version = 1
	now := r.s.now()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	if n.UpdatedAt.IsZero() {
		n.UpdatedAt = now
	}
	r.s.ncps[n.ID] = n.Clone()
	return nil
}

func (r *NCPRepo) Get(_ context.Context, id string) (*models.NCPReport, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if n, ok := r.s.ncps[id]; ok {
		return n.Clone(), nil
	}
	return nil, nil
}

func (r *NCPRepo) GetByCode(_ context.Context, code string) (*models.NCPReport, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, n := range r.s.ncps {
		if n.NCPCode == code {
			return n.Clone(), nil
		}
	}
	return nil, nil
}

func (r *NCPRepo) Transition(_ context.Context, n *models.NCPReport, from models.Status) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	cur, ok := r.s.ncps[n.ID]
	if !ok || cur.Status != from || cur.Version != n.Version {
		return repository.ErrStale
	}
	// Descriptive fields stay as stored; only workflow-owned columns move.
	next := cur.Clone()
	next.Status = n.Status
	next.QAApprovedBy, next.QAApprovedAt = n.QAApprovedBy, n.QAApprovedAt
	next.Disposition = n.Disposition
	next.SortedQty, next.ReleasedQty, next.RejectedQty = n.SortedQty, n.ReleasedQty, n.RejectedQty
	next.AssignedTeamLeader = n.AssignedTeamLeader
	next.QARejectionReason = n.QARejectionReason
	next.TLProcessedBy, next.TLProcessedAt = n.TLProcessedBy, n.TLProcessedAt
	next.RootCauseAnalysis, next.CorrectiveAction, next.PreventiveAction = n.RootCauseAnalysis, n.CorrectiveAction, n.PreventiveAction
	next.ProcessApprovedBy, next.ProcessApprovedAt = n.ProcessApprovedBy, n.ProcessApprovedAt
	next.ProcessComment, next.ProcessRejectionReason = n.ProcessComment, n.ProcessRejectionReason
	next.ManagerApprovedBy, next.ManagerApprovedAt = n.ManagerApprovedBy, n.ManagerApprovedAt
	next.ManagerComment, next.ManagerRejectionReason = n.ManagerComment, n.ManagerRejectionReason
	next.UpdatedAt = n.UpdatedAt
	next.Version++
	r.s.ncps[n.ID] = next
	n.Version = next.Version
	return nil
}

func (r *NCPRepo) UpdateFields(_ context.Context, n *models.NCPReport, columns []string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if len(columns) == 0 {
		return nil
	}
	cur, ok := r.s.ncps[n.ID]
	if !ok || cur.Version != n.Version {
		return repository.ErrStale
	}
	next := cur.Clone()
	for _, col := range columns {
		v, ok := n.Field(col)
		if !ok {
			return fmt.Errorf("column %q is not editable", col)
		}
		if err := next.SetField(col, v); err != nil {
			return errors.Join(repository.ErrOutOfRange, err)
		}
	}
	next.UpdatedAt = n.UpdatedAt
	next.Version++
	r.s.ncps[n.ID] = next
	n.Version = next.Version
	return nil
}

func (r *NCPRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.ncps[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.ncps, id)
	return nil
}

func (r *NCPRepo) List(_ context.Context, f repository.NCPFilter) ([]models.NCPReport, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	limit, offset := f.Limit, f.Offset
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var out []models.NCPReport
	for _, n := range r.s.ncps {
		if matches(n, f) {
			out = append(out, *n.Clone())
		}
	}
	sortNCPs(out, f.Sort, f.Order)

	total := len(out)
	if offset >= total {
		return nil, total, nil
	}
	end := min(offset+limit, total)
	return out[offset:end], total, nil
}

func (r *NCPRepo) CountByStatus(_ context.Context) (map[models.Status]int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make(map[models.Status]int, len(models.Statuses))
	for _, s := range models.Statuses {
		out[s] = 0
	}
	for _, n := range r.s.ncps {
		out[n.Status]++
	}
	return out, nil
}

func matches(n *models.NCPReport, f repository.NCPFilter) bool {
	if q := strings.ToLower(strings.TrimSpace(f.Q)); q != "" {
		hay := strings.ToLower(n.NCPCode + "\x00" + n.SKUCode + "\x00" + n.MachineCode + "\x00" + n.ProblemDescription)
		if !strings.Contains(hay, q) {
			return false
		}
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if n.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.QALeader != "" && n.QALeader != f.QALeader {
		return false
	}
	if f.AssignedTeamLeader != "" && n.AssignedTeamLeader != f.AssignedTeamLeader {
		return false
	}
	if f.SubmittedBy != "" && n.SubmittedBy != f.SubmittedBy {
		return false
	}
	return true
}

func sortNCPs(items []models.NCPReport, by, order string) {
	asc := strings.EqualFold(order, "asc")
	less := func(a, b models.NCPReport) bool {
		switch strings.ToLower(by) {
		case "ncp_code":
			return a.NCPCode < b.NCPCode
		case "updated_at":
			return a.UpdatedAt.Before(b.UpdatedAt)
		default:
			if a.SubmittedAt.Equal(b.SubmittedAt) {
				return a.NCPCode < b.NCPCode
			}
			return a.SubmittedAt.Before(b.SubmittedAt)
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		if asc {
			return less(items[i], items[j])
		}
		return less(items[j], items[i])
	})
}

// -----------------------------------------------------------------------------
// Users
// -----------------------------------------------------------------------------

type UserRepo struct{ s *Store }

var _ repository.UserRepository = (*UserRepo)(nil)

func (r *UserRepo) Create(_ context.Context, username, fullName string, role models.Role, passwordHash string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, row := range r.s.users {
		if row.user.Username == username {
			return nil, repository.ErrDuplicate
		}
	}
	now := r.s.now()
	u := models.User{
		ID: uuid.NewString(), Username: username, FullName: fullName, Role: role,
		Active: true, CreatedAt: now, UpdatedAt: now,
	}
	r.s.users[u.ID] = &userRow{user: u, hash: passwordHash}
	return &u, nil
}

func (r *UserRepo) GetByUsername(_ context.Context, username string) (*models.User, string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, row := range r.s.users {
		if row.user.Username == username {
			u := row.user
			return &u, row.hash, nil
		}
	}
	return nil, "", nil
}

func (r *UserRepo) GetByID(_ context.Context, id string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if row, ok := r.s.users[id]; ok {
		u := row.user
		return &u, nil
	}
	return nil, nil
}

func (r *UserRepo) List(_ context.Context, q string, role models.Role, active *bool, limit, offset int) ([]models.User, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	q = strings.ToLower(strings.TrimSpace(q))

	var out []models.User
	for _, row := range r.s.users {
		u := row.user
		if q != "" && !strings.Contains(strings.ToLower(u.Username+" "+u.FullName), q) {
			continue
		}
		if role != "" && u.Role != role {
			continue
		}
		if active != nil && u.Active != *active {
			continue
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })

	total := len(out)
	if offset >= total {
		return nil, total, nil
	}
	return out[offset:min(offset+limit, total)], total, nil
}

func (r *UserRepo) ListActiveByRole(_ context.Context, role models.Role) ([]models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.User
	for _, row := range r.s.users {
		if row.user.Role == role && row.user.Active {
			out = append(out, row.user)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (r *UserRepo) update(id string, fn func(*userRow)) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	row, ok := r.s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	fn(row)
	row.user.UpdatedAt = r.s.now()
	u := row.user
	return &u, nil
}

func (r *UserRepo) UpdateRole(_ context.Context, id string, role models.Role) (*models.User, error) {
	return r.update(id, func(row *userRow) { row.user.Role = role })
}

func (r *UserRepo) SetActive(_ context.Context, id string, active bool) (*models.User, error) {
	return r.update(id, func(row *userRow) { row.user.Active = active })
}

func (r *UserRepo) UpdateBasic(_ context.Context, id, fullName string) (*models.User, error) {
	return r.update(id, func(row *userRow) { row.user.FullName = fullName })
}

func (r *UserRepo) UpdatePasswordHash(_ context.Context, id, passwordHash string) error {
	_, err := r.update(id, func(row *userRow) { row.hash = passwordHash })
	return err
}

// -----------------------------------------------------------------------------
// Notifications
// -----------------------------------------------------------------------------

type NotificationRepo struct{ s *Store }

var _ repository.NotificationRepository = (*NotificationRepo)(nil)

func (r *NotificationRepo) Insert(_ context.Context, n *models.Notification) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[n.RecipientUserID]; !ok {
		return repository.ErrNotFound
	}
	n.ID = uuid.NewString()
	n.IsRead = false
	n.CreatedAt = r.s.now()
	c := *n
	r.s.notifications = append(r.s.notifications, &c)
	return nil
}

func (r *NotificationRepo) ListForUser(_ context.Context, userID string, unreadOnly bool, limit, offset int) ([]models.Notification, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	var out []models.Notification
	// newest first
	for i := len(r.s.notifications) - 1; i >= 0; i-- {
		n := r.s.notifications[i]
		if n.RecipientUserID != userID || (unreadOnly && n.IsRead) {
			continue
		}
		out = append(out, *n)
	}
	if offset >= len(out) {
		return nil, nil
	}
	return out[offset:min(offset+limit, len(out))], nil
}

func (r *NotificationRepo) CountUnread(_ context.Context, userID string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := 0
	for _, n := range r.s.notifications {
		if n.RecipientUserID == userID && !n.IsRead {
			c++
		}
	}
	return c, nil
}

func (r *NotificationRepo) MarkRead(_ context.Context, id, userID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, n := range r.s.notifications {
		if n.ID == id && n.RecipientUserID == userID {
			n.IsRead = true
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *NotificationRepo) MarkAllRead(_ context.Context, userID string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := 0
	for _, n := range r.s.notifications {
		if n.RecipientUserID == userID && !n.IsRead {
			n.IsRead = true
			c++
		}
	}
	return c, nil
}

// -----------------------------------------------------------------------------
// Audit log
// -----------------------------------------------------------------------------

type AuditRepo struct{ s *Store }

var _ repository.AuditRepository = (*AuditRepo)(nil)

func (r *AuditRepo) Insert(_ context.Context, e *models.AuditLogEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e.ID = uuid.NewString()
	e.ChangedAt = r.s.now()
	r.s.audit = append(r.s.audit, *e)
	return nil
}

func (r *AuditRepo) ListByCode(_ context.Context, ncpCode string) ([]models.AuditLogEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.AuditLogEntry
	for _, e := range r.s.audit {
		if e.NCPCode == ncpCode {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *AuditRepo) ListRecent(_ context.Context, limit, offset int) ([]models.AuditLogEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	var out []models.AuditLogEntry
	for i := len(r.s.audit) - 1; i >= 0; i-- {
		out = append(out, r.s.audit[i])
	}
	if offset >= len(out) {
		return nil, nil
	}
	return out[offset:min(offset+limit, len(out))], nil
}
