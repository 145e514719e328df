package workflow

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"qa-portal/internal/models"
)

var (
	submitter = models.Actor{ID: "u1", Username: "op_ann", Role: models.RoleUser}
	qaLeader  = models.Actor{ID: "u2", Username: "qa_bob", Role: models.RoleQALeader}
	otherQA   = models.Actor{ID: "u3", Username: "qa_eve", Role: models.RoleQALeader}
	teamLead  = models.Actor{ID: "u4", Username: "tl_jane", Role: models.RoleTeamLeader}
	otherTL   = models.Actor{ID: "u5", Username: "tl_joe", Role: models.RoleTeamLeader}
	procLead  = models.Actor{ID: "u6", Username: "pl_max", Role: models.RoleProcessLead}
	manager   = models.Actor{ID: "u7", Username: "mgr_kim", Role: models.RoleQAManager}
	superUser = models.Actor{ID: "u8", Username: "root", Role: models.RoleSuperAdmin}
)

var clock = time.Date(2026, time.March, 9, 10, 30, 0, 0, time.UTC)

func newPending(t *testing.T) *models.NCPReport {
	t.Helper()
	r, err := Submit(submitter, SubmitInput{
		SKUCode:            "SKU-100",
		MachineCode:        "MC-7",
		IncidentDate:       "2026-03-08",
		IncidentTime:       "14:20",
		HoldQuantity:       100,
		HoldQuantityUOM:    "Tray",
		ProblemDescription: "seal leak",
		QALeader:           qaLeader.Username,
	}, clock)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	r.ID, r.NCPCode = "ncp-1", "2603-0001"
	return r
}

var qaApproveInput = Input{
	Disposition:        "sort and release",
	SortedQty:          20,
	ReleasedQty:        70,
	RejectedQty:        10,
	AssignedTeamLeader: teamLead.Username,
}

var tlInput = Input{
	RootCauseAnalysis: "worn sealing jaw",
	CorrectiveAction:  "replace jaw",
	PreventiveAction:  "weekly jaw inspection",
}

func mustApply(t *testing.T, r *models.NCPReport, a models.Actor, act Action, in Input) *models.NCPReport {
	t.Helper()
	d, err := Apply(r, a, act, in, clock)
	if err != nil {
		t.Fatalf("%s: %v", act, err)
	}
	return d.Report
}

func TestSubmitValidation(t *testing.T) {
	in := SubmitInput{SKUCode: "S", MachineCode: "M", IncidentDate: "2026-03-08", IncidentTime: "08:00",
		HoldQuantity: 5, HoldQuantityUOM: "Pcs", ProblemDescription: "d", QALeader: "qa_bob"}

	bad := []func(*SubmitInput){
		func(i *SubmitInput) { i.SKUCode = " " },
		func(i *SubmitInput) { i.QALeader = "" },
		func(i *SubmitInput) { i.HoldQuantity = 0 },
		func(i *SubmitInput) { i.IncidentDate = "08/03/2026" },
		func(i *SubmitInput) { i.IncidentTime = "8pm" },
	}
	for n, mutate := range bad {
		c := in
		mutate(&c)
		if _, err := Submit(submitter, c, clock); !errors.Is(err, ErrValidation) {
			t.Errorf("case %d: expected ErrValidation, got %v", n, err)
		}
	}

	if _, err := Submit(teamLead, in, clock); !errors.Is(err, ErrForbidden) {
		t.Errorf("team leader submit: expected ErrForbidden, got %v", err)
	}

	r, err := Submit(submitter, in, clock)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if r.Status != models.StatusPending || r.SubmittedBy != "op_ann" || !r.SubmittedAt.Equal(clock) {
		t.Errorf("unexpected report: %+v", r)
	}
}

func TestHappyPathToArchive(t *testing.T) {
	r := newPending(t)
	r = mustApply(t, r, qaLeader, ActionQAApprove, qaApproveInput)
	if r.Status != models.StatusQAApproved || r.AssignedTeamLeader != "tl_jane" {
		t.Fatalf("after QA approve: status=%s tl=%s", r.Status, r.AssignedTeamLeader)
	}
	if r.QAApprovedBy == nil || *r.QAApprovedBy != "qa_bob" || r.QAApprovedAt == nil {
		t.Errorf("QA approval not stamped")
	}
	r = mustApply(t, r, teamLead, ActionTLProcess, tlInput)
	if r.Status != models.StatusTLProcessed {
		t.Fatalf("after TL process: %s", r.Status)
	}
	r = mustApply(t, r, procLead, ActionProcessApprove, Input{Comment: "ok"})
	if r.Status != models.StatusProcessApproved {
		t.Fatalf("after process approve: %s", r.Status)
	}
	r = mustApply(t, r, manager, ActionManagerApprove, Input{Comment: "close"})
	if r.Status != models.StatusManagerApproved || !r.Status.Terminal() {
		t.Fatalf("after manager approve: %s", r.Status)
	}

	for act := range table {
		actor := map[Action]models.Actor{
			ActionQAApprove: qaLeader, ActionQAReject: qaLeader, ActionTLProcess: teamLead,
			ActionProcessApprove: procLead, ActionProcessReject: procLead,
			ActionManagerApprove: manager, ActionManagerReject: manager,
		}[act]
		if _, err := Apply(r, actor, act, Input{Comment: "again", Reason: "x"}, clock); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("%s on archived NCP: expected ErrInvalidTransition, got %v", act, err)
		}
	}
}

func TestProcessRejectScenario(t *testing.T) {
	r := newPending(t)
	r = mustApply(t, r, qaLeader, ActionQAApprove, qaApproveInput)
	r = mustApply(t, r, teamLead, ActionTLProcess, tlInput)

	d, err := Apply(r, procLead, ActionProcessReject, Input{Reason: "insufficient RCA detail"}, clock)
	if err != nil {
		t.Fatalf("process reject: %v", err)
	}
	got := d.Report
	if got.Status != models.StatusQAApproved {
		t.Errorf("status: got %s, want qa_approved", got.Status)
	}
	if got.ProcessRejectionReason != "insufficient RCA detail" {
		t.Errorf("reason: got %q", got.ProcessRejectionReason)
	}
	if got.ProcessApprovedBy != nil || got.ProcessApprovedAt != nil {
		t.Errorf("process approval should be cleared")
	}
	if len(d.Notices) != 1 || d.Notices[0].Username != "tl_jane" {
		t.Errorf("expected one notice to tl_jane, got %+v", d.Notices)
	}

	// rework loop keeps the earlier rejection reason
	got = mustApply(t, got, teamLead, ActionTLProcess, tlInput)
	got = mustApply(t, got, procLead, ActionProcessApprove, Input{Comment: "better"})
	if got.Status != models.StatusProcessApproved {
		t.Fatalf("status after rework: %s", got.Status)
	}
	if got.ProcessRejectionReason != "insufficient RCA detail" {
		t.Errorf("rejection reason lost: %q", got.ProcessRejectionReason)
	}
}

func TestManagerReject(t *testing.T) {
	r := newPending(t)
	r = mustApply(t, r, qaLeader, ActionQAApprove, qaApproveInput)
	r = mustApply(t, r, teamLead, ActionTLProcess, tlInput)
	r = mustApply(t, r, procLead, ActionProcessApprove, Input{Comment: "ok"})

	d, err := Apply(r, manager, ActionManagerReject, Input{Reason: "CAPA too vague"}, clock)
	if err != nil {
		t.Fatalf("manager reject: %v", err)
	}
	if d.Report.Status != models.StatusQAApproved || d.Report.ManagerRejectionReason != "CAPA too vague" {
		t.Errorf("unexpected report: status=%s reason=%q", d.Report.Status, d.Report.ManagerRejectionReason)
	}
	if d.Report.ManagerApprovedBy != nil {
		t.Error("manager approval should be cleared")
	}
	if len(d.Notices) != 1 || d.Notices[0].Username != "tl_jane" {
		t.Errorf("expected notice to team leader, got %+v", d.Notices)
	}
}

func TestQAReject(t *testing.T) {
	r := newPending(t)
	d, err := Apply(r, qaLeader, ActionQAReject, Input{Reason: "not a defect"}, clock)
	if err != nil {
		t.Fatalf("qa reject: %v", err)
	}
	if d.Report.Status != models.StatusQARejected || d.Report.QARejectionReason != "not a defect" {
		t.Errorf("unexpected: %+v", d.Report)
	}
	if d.Report.QAApprovedBy == nil || *d.Report.QAApprovedBy != "qa_bob" {
		t.Error("QA reviewer not stamped")
	}
	if len(d.Notices) != 0 {
		t.Errorf("QA reject emits no notices, got %d", len(d.Notices))
	}
}

func TestApplyGuards(t *testing.T) {
	pending := newPending(t)
	approved := mustApply(t, pending, qaLeader, ActionQAApprove, qaApproveInput)

	cases := []struct {
		name   string
		r      *models.NCPReport
		actor  models.Actor
		action Action
		in     Input
		want   error
	}{
		{"wrong role", pending, teamLead, ActionQAApprove, qaApproveInput, ErrForbidden},
		{"other QA leader", pending, otherQA, ActionQAApprove, qaApproveInput, ErrForbidden},
		{"other QA leader reject", pending, otherQA, ActionQAReject, Input{Reason: "x"}, ErrForbidden},
		{"other team leader", approved, otherTL, ActionTLProcess, tlInput, ErrForbidden},
		{"submitter cannot approve", pending, submitter, ActionQAApprove, qaApproveInput, ErrForbidden},
		{"tl before qa", pending, teamLead, ActionTLProcess, tlInput, ErrInvalidTransition},
		{"process before tl", approved, procLead, ActionProcessApprove, Input{Comment: "c"}, ErrInvalidTransition},
		{"manager early", approved, manager, ActionManagerApprove, Input{Comment: "c"}, ErrInvalidTransition},
		{"blank disposition", pending, qaLeader, ActionQAApprove, Input{SortedQty: 100, AssignedTeamLeader: "tl_jane"}, ErrValidation},
		{"blank team leader", pending, qaLeader, ActionQAApprove, Input{Disposition: "d", SortedQty: 100}, ErrValidation},
		{"qty mismatch", pending, qaLeader, ActionQAApprove, Input{Disposition: "d", SortedQty: 10, AssignedTeamLeader: "tl_jane"}, ErrValidation},
		{"negative qty", pending, qaLeader, ActionQAApprove, Input{Disposition: "d", SortedQty: 110, RejectedQty: -10, AssignedTeamLeader: "tl_jane"}, ErrValidation},
		{"blank reason", pending, qaLeader, ActionQAReject, Input{Reason: "  "}, ErrValidation},
		{"missing RCA", approved, teamLead, ActionTLProcess, Input{RootCauseAnalysis: "x", CorrectiveAction: "y"}, ErrValidation},
		{"unknown action", pending, qaLeader, Action("escalate"), Input{}, ErrValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			before := tc.r.Clone()
			_, err := Apply(tc.r, tc.actor, tc.action, tc.in, clock)
			if !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
			if !reflect.DeepEqual(before, tc.r) {
				t.Error("input record was modified")
			}
		})
	}
}

func TestApplyTwiceFails(t *testing.T) {
	r := newPending(t)
	next := mustApply(t, r, qaLeader, ActionQAApprove, qaApproveInput)
	if _, err := Apply(next, qaLeader, ActionQAApprove, qaApproveInput, clock); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second approval: expected ErrInvalidTransition, got %v", err)
	}
}

func TestStatusesClosedSet(t *testing.T) {
	for act, ru := range table {
		if !ru.from.Valid() || !ru.to.Valid() {
			t.Errorf("%s uses a status outside the enumeration: %s -> %s", act, ru.from, ru.to)
		}
	}
	if models.Status("rejected").Valid() {
		t.Error("unexpected status accepted")
	}
}

func TestQueue(t *testing.T) {
	f := Queue(teamLead)
	if len(f.Statuses) != 1 || f.Statuses[0] != models.StatusQAApproved || f.AssignedTeamLeader != "tl_jane" {
		t.Errorf("team leader queue: %+v", f)
	}
	f = Queue(submitter)
	if f.SubmittedBy != "op_ann" {
		t.Errorf("user queue should be scoped to own submissions: %+v", f)
	}
	for _, s := range Queue(superUser).Statuses {
		if s.Terminal() {
			t.Error("super admin queue should exclude archived records")
		}
	}
}
