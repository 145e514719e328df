package service

import (
	"context"
	"testing"
	"time"

	"qa-portal/internal/models"
	"qa-portal/internal/repository"
	"qa-portal/internal/repository/memory"
	"qa-portal/internal/workflow"

	"github.com/rs/zerolog"
)

var clock = time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)

type fixture struct {
	store  *memory.Store
	svc    *NCPService
	actors map[string]models.Actor
}

var people = []struct {
	name string
	role models.Role
}{
	{"op_ann", models.RoleUser},
	{"op_zed", models.RoleUser},
	{"qa_bob", models.RoleQALeader},
	{"qa_cat", models.RoleQALeader},
	{"tl_jane", models.RoleTeamLeader},
	{"tl_mike", models.RoleTeamLeader},
	{"pl_pat", models.RoleProcessLead},
	{"pl_quinn", models.RoleProcessLead},
	{"mgr_max", models.RoleQAManager},
	{"root", models.RoleSuperAdmin},
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := memory.New()
	f := &fixture{store: s, actors: map[string]models.Actor{}}
	for _, p := range people {
		u, err := s.Users().Create(context.Background(), p.name, p.name, p.role, "x")
		if err != nil {
			t.Fatalf("create user %s: %v", p.name, err)
		}
		f.actors[p.name] = models.Actor{ID: u.ID, Username: u.Username, Role: u.Role}
	}
	f.svc = f.service(s.NCPs(), s.Notifications(), s.Audit())
	return f
}

// service builds an NCPService over the fixture's users with the given
// repositories, so tests can swap in failing ones.
func (f *fixture) service(ncps repository.NCPRepository, notes repository.NotificationRepository, audit repository.AuditRepository) *NCPService {
	log := zerolog.Nop()
	svc := NewNCPService(ncps, f.store.Users(), NewDispatcher(f.store.Users(), notes, log), NewAuditRecorder(audit, log), log)
	svc.now = func() time.Time { return clock }
	return svc
}

func (f *fixture) as(name string) models.Actor {
	a, ok := f.actors[name]
	if !ok {
		panic("unknown actor " + name)
	}
	return a
}

func (f *fixture) inbox(t *testing.T, name string) []models.Notification {
	t.Helper()
	items, err := f.store.Notifications().ListForUser(context.Background(), f.as(name).ID, false, 100, 0)
	if err != nil {
		t.Fatalf("inbox: %v", err)
	}
	return items
}

func submitInput() workflow.SubmitInput {
	return workflow.SubmitInput{
		SKUCode:            "SKU-001",
		MachineCode:        "MC-07",
		IncidentDate:       "2026-03-14",
		IncidentTime:       "08:30",
		HoldQuantity:       100,
		HoldQuantityUOM:    "Tray",
		ProblemDescription: "Seal leak on tray lid",
		QALeader:           "qa_bob",
	}
}

func approveInput() workflow.Input {
	return workflow.Input{
		Disposition:        "Sort, release good stock, scrap the rest",
		SortedQty:          20,
		ReleasedQty:        70,
		RejectedQty:        10,
		AssignedTeamLeader: "tl_jane",
	}
}

func rcaInput() workflow.Input {
	return workflow.Input{
		RootCauseAnalysis: "Sealing jaw temperature drifted",
		CorrectiveAction:  "Recalibrated the jaw heater",
		PreventiveAction:  "Added hourly temperature checks",
	}
}

func (f *fixture) submit(t *testing.T) *models.NCPReport {
	t.Helper()
	n, err := f.svc.Submit(context.Background(), f.as("op_ann"), submitInput())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	return n
}

// advance drives a fresh report up to and including the named step.
func (f *fixture) advance(t *testing.T, through workflow.Action) *models.NCPReport {
	t.Helper()
	ctx := context.Background()
	n := f.submit(t)
	steps := []struct {
		action workflow.Action
		actor  string
		in     workflow.Input
		op     func(context.Context, models.Actor, string, workflow.Input) (*models.NCPReport, error)
	}{
		{workflow.ActionQAApprove, "qa_bob", approveInput(), f.svc.QAApprove},
		{workflow.ActionTLProcess, "tl_jane", rcaInput(), f.svc.TLProcess},
		{workflow.ActionProcessApprove, "pl_pat", workflow.Input{Comment: "Actions look sufficient"}, f.svc.ProcessApprove},
		{workflow.ActionManagerApprove, "mgr_max", workflow.Input{Comment: "Close it"}, f.svc.ManagerApprove},
	}
	for _, s := range steps {
		var err error
		n, err = s.op(ctx, f.as(s.actor), n.ID, s.in)
		if err != nil {
			t.Fatalf("%s: %v", s.action, err)
		}
		if s.action == through {
			return n
		}
	}
	return n
}
