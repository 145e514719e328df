package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"qa-portal/internal/models"
	"qa-portal/internal/repository"
	"qa-portal/internal/workflow"
)

func TestSubmitAllocatesCodesAndNotifiesQALeader(t *testing.T) {
	f := newFixture(t)
	first := f.submit(t)
	second := f.submit(t)

	if first.NCPCode != "2603-0001" || second.NCPCode != "2603-0002" {
		t.Fatalf("codes = %s, %s", first.NCPCode, second.NCPCode)
	}
	if first.Status != models.StatusPending || first.ID == "" {
		t.Errorf("unexpected record: %+v", first)
	}
	inbox := f.inbox(t, "qa_bob")
	if len(inbox) != 2 {
		t.Fatalf("qa_bob has %d notifications, want 2", len(inbox))
	}
	if inbox[0].Type != models.NotificationNewNCP || inbox[0].RelatedNCPCode != "2603-0002" {
		t.Errorf("newest notification: %+v", inbox[0])
	}
	if len(f.inbox(t, "qa_cat")) != 0 {
		t.Error("unassigned QA leader was notified")
	}
}

func TestSubmitRequiresActiveQALeader(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := submitInput()
	in.QALeader = "tl_jane"
	if _, err := f.svc.Submit(ctx, f.as("op_ann"), in); !errors.Is(err, workflow.ErrValidation) {
		t.Errorf("wrong role: expected ErrValidation, got %v", err)
	}

	if _, err := f.store.Users().SetActive(ctx, f.as("qa_bob").ID, false); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Submit(ctx, f.as("op_ann"), submitInput()); !errors.Is(err, workflow.ErrValidation) {
		t.Errorf("inactive leader: expected ErrValidation, got %v", err)
	}

	if _, err := f.svc.Submit(ctx, f.as("tl_jane"), submitInput()); !errors.Is(err, workflow.ErrForbidden) {
		t.Errorf("team leader submit: expected ErrForbidden, got %v", err)
	}
}

// replayCodes hands out preset codes before falling back to the real allocator.
type replayCodes struct {
	repository.NCPRepository
	codes []string
}

func (r *replayCodes) NextCode(ctx context.Context, prefix string) (string, error) {
	if len(r.codes) > 0 {
		c := r.codes[0]
		r.codes = r.codes[1:]
		return c, nil
	}
	return r.NCPRepository.NextCode(ctx, prefix)
}

func TestSubmitRetriesTakenCode(t *testing.T) {
	f := newFixture(t)
	f.submit(t) // 2603-0001

	svc := f.service(&replayCodes{NCPRepository: f.store.NCPs(), codes: []string{"2603-0001"}}, f.store.Notifications(), f.store.Audit())
	n, err := svc.Submit(context.Background(), f.as("op_ann"), submitInput())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if n.NCPCode != "2603-0002" {
		t.Errorf("code = %s, want 2603-0002", n.NCPCode)
	}

	svc = f.service(&replayCodes{NCPRepository: f.store.NCPs(), codes: []string{"2603-0001", "2603-0001", "2603-0001"}}, f.store.Notifications(), f.store.Audit())
	if _, err := svc.Submit(context.Background(), f.as("op_ann"), submitInput()); !errors.Is(err, workflow.ErrPersistence) {
		t.Errorf("exhausted retries: expected ErrPersistence, got %v", err)
	}
}

func TestProcessRejectScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	n := f.submit(t)
	n, err := f.svc.QAApprove(ctx, f.as("qa_bob"), n.ID, approveInput())
	if err != nil {
		t.Fatalf("qa approve: %v", err)
	}
	if n.Status != models.StatusQAApproved || n.AssignedTeamLeader != "tl_jane" {
		t.Fatalf("after qa approve: %s %s", n.Status, n.AssignedTeamLeader)
	}
	if n, err = f.svc.TLProcess(ctx, f.as("tl_jane"), n.ID, rcaInput()); err != nil {
		t.Fatalf("tl process: %v", err)
	}
	if n, err = f.svc.ProcessReject(ctx, f.as("pl_pat"), n.ID, workflow.Input{Reason: "insufficient RCA detail"}); err != nil {
		t.Fatalf("process reject: %v", err)
	}

	stored, _ := f.store.NCPs().Get(ctx, n.ID)
	if stored.Status != models.StatusQAApproved {
		t.Errorf("status = %s", stored.Status)
	}
	if stored.ProcessRejectionReason != "insufficient RCA detail" {
		t.Errorf("reason = %q", stored.ProcessRejectionReason)
	}
	if stored.ProcessApprovedBy != nil {
		t.Errorf("processApprovedBy = %v", *stored.ProcessApprovedBy)
	}

	// qa approval + rework notice for the team leader, one review notice per process lead
	if got := len(f.inbox(t, "tl_jane")); got != 2 {
		t.Errorf("tl_jane notifications = %d, want 2", got)
	}
	for _, pl := range []string{"pl_pat", "pl_quinn"} {
		if got := len(f.inbox(t, pl)); got != 1 {
			t.Errorf("%s notifications = %d, want 1", pl, got)
		}
	}

	// rework round trip keeps the earlier rejection reason
	if _, err := f.svc.TLProcess(ctx, f.as("tl_jane"), n.ID, rcaInput()); err != nil {
		t.Fatalf("rework: %v", err)
	}
	n, err = f.svc.ProcessApprove(ctx, f.as("pl_quinn"), n.ID, workflow.Input{Comment: "ok now"})
	if err != nil {
		t.Fatalf("process approve: %v", err)
	}
	if n.Status != models.StatusProcessApproved || n.ProcessRejectionReason != "insufficient RCA detail" {
		t.Errorf("after round trip: %s %q", n.Status, n.ProcessRejectionReason)
	}
	if got := len(f.inbox(t, "mgr_max")); got != 1 {
		t.Errorf("mgr_max notifications = %d, want 1", got)
	}
}

func TestArchivedRecordIsFrozen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	n := f.advance(t, workflow.ActionManagerApprove)
	if n.Status != models.StatusManagerApproved {
		t.Fatalf("status = %s", n.Status)
	}
	before, _ := f.store.NCPs().Get(ctx, n.ID)

	_, err := f.svc.ProcessApprove(ctx, f.as("pl_pat"), n.ID, workflow.Input{Comment: "again"})
	if !errors.Is(err, workflow.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	_, err = f.svc.ManagerReject(ctx, f.as("mgr_max"), n.ID, workflow.Input{Reason: "late"})
	if !errors.Is(err, workflow.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	after, _ := f.store.NCPs().Get(ctx, n.ID)
	if after.Status != before.Status || !after.UpdatedAt.Equal(before.UpdatedAt) || *after.ManagerApprovedBy != *before.ManagerApprovedBy {
		t.Error("archived record changed")
	}
}

func TestQAApproveChecks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	n := f.submit(t)

	in := approveInput()
	in.AssignedTeamLeader = "pl_pat"
	if _, err := f.svc.QAApprove(ctx, f.as("qa_bob"), n.ID, in); !errors.Is(err, workflow.ErrValidation) {
		t.Errorf("non team leader assignee: expected ErrValidation, got %v", err)
	}
	in = approveInput()
	in.RejectedQty = 11
	if _, err := f.svc.QAApprove(ctx, f.as("qa_bob"), n.ID, in); !errors.Is(err, workflow.ErrValidation) {
		t.Errorf("quantity mismatch: expected ErrValidation, got %v", err)
	}
	if _, err := f.svc.QAApprove(ctx, f.as("qa_cat"), n.ID, approveInput()); !errors.Is(err, workflow.ErrForbidden) {
		t.Errorf("other QA leader: expected ErrForbidden, got %v", err)
	}
	if _, err := f.svc.QAApprove(ctx, f.as("qa_bob"), "no-such-id", approveInput()); !errors.Is(err, workflow.ErrNotFound) {
		t.Errorf("missing record: expected ErrNotFound, got %v", err)
	}

	stored, _ := f.store.NCPs().Get(ctx, n.ID)
	if stored.Status != models.StatusPending || stored.QAApprovedBy != nil {
		t.Errorf("failed approvals modified the record: %+v", stored)
	}
}

func TestConcurrentApproveSingleWinner(t *testing.T) {
	f := newFixture(t)
	n := f.submit(t)

	const racers = 8
	var wg sync.WaitGroup
	errs := make(chan error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.QAApprove(context.Background(), f.as("qa_bob"), n.ID, approveInput())
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	wins := 0
	for err := range errs {
		switch {
		case err == nil:
			wins++
		case !errors.Is(err, workflow.ErrInvalidTransition):
			t.Errorf("loser got %v, want ErrInvalidTransition", err)
		}
	}
	if wins != 1 {
		t.Fatalf("%d approvals succeeded, want 1", wins)
	}
	if got := len(f.inbox(t, "tl_jane")); got != 1 {
		t.Errorf("tl_jane notifications = %d, want 1", got)
	}
}

func TestRevertIsAudited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	n := f.advance(t, workflow.ActionManagerApprove)

	if _, err := f.svc.Revert(ctx, f.as("mgr_max"), n.ID, models.StatusTLProcessed); !errors.Is(err, workflow.ErrForbidden) {
		t.Errorf("manager revert: expected ErrForbidden, got %v", err)
	}
	got, err := f.svc.Revert(ctx, f.as("root"), n.ID, models.StatusTLProcessed)
	if err != nil {
		t.Fatalf("revert: %v", err)
	}
	if got.Status != models.StatusTLProcessed {
		t.Errorf("status = %s", got.Status)
	}
	if _, err := f.svc.Revert(ctx, f.as("root"), n.ID, models.StatusManagerApproved); !errors.Is(err, workflow.ErrInvalidTransition) {
		t.Errorf("forward revert: expected ErrInvalidTransition, got %v", err)
	}

	hist, err := f.svc.History(ctx, f.as("root"), n.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 1 {
		t.Fatalf("history has %d entries, want 1", len(hist))
	}
	e := hist[0]
	if e.FieldChanged != "status" || e.OldValue != "manager_approved" || e.NewValue != "tl_processed" || e.ChangedBy != "root" {
		t.Errorf("audit entry: %+v", e)
	}

	// the reverted record is live again
	if _, err := f.svc.ProcessApprove(ctx, f.as("pl_pat"), n.ID, workflow.Input{Comment: "second look"}); err != nil {
		t.Errorf("approve after revert: %v", err)
	}
}

func TestReassignTeamLeader(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	n := f.advance(t, workflow.ActionQAApprove)

	if _, err := f.svc.Reassign(ctx, f.as("root"), n.ID, models.RoleTeamLeader, "qa_cat"); !errors.Is(err, workflow.ErrValidation) {
		t.Errorf("wrong role assignee: expected ErrValidation, got %v", err)
	}
	got, err := f.svc.Reassign(ctx, f.as("root"), n.ID, models.RoleTeamLeader, "tl_mike")
	if err != nil {
		t.Fatalf("reassign: %v", err)
	}
	if got.AssignedTeamLeader != "tl_mike" || got.Status != models.StatusQAApproved {
		t.Errorf("after reassign: %s %s", got.AssignedTeamLeader, got.Status)
	}

	inbox := f.inbox(t, "tl_mike")
	if len(inbox) != 1 || inbox[0].Type != models.NotificationReassigned {
		t.Errorf("tl_mike inbox: %+v", inbox)
	}
	if _, err := f.svc.TLProcess(ctx, f.as("tl_jane"), n.ID, rcaInput()); !errors.Is(err, workflow.ErrForbidden) {
		t.Errorf("previous assignee: expected ErrForbidden, got %v", err)
	}
	if _, err := f.svc.TLProcess(ctx, f.as("tl_mike"), n.ID, rcaInput()); err != nil {
		t.Errorf("new assignee: %v", err)
	}

	hist, _ := f.svc.History(ctx, f.as("root"), n.ID)
	if len(hist) != 1 || hist[0].FieldChanged != "assigned_team_leader" || hist[0].OldValue != "tl_jane" {
		t.Errorf("history: %+v", hist)
	}
}

func TestEditAuditsEachField(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	n := f.submit(t)

	got, err := f.svc.Edit(ctx, f.as("root"), n.ID, map[string]string{
		"sku_code":      "SKU-002",
		"hold_quantity": "120",
		"machine_code":  "MC-07", // unchanged
	})
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if got.SKUCode != "SKU-002" || got.HoldQuantity != 120 {
		t.Errorf("after edit: %s %d", got.SKUCode, got.HoldQuantity)
	}
	stored, _ := f.store.NCPs().Get(ctx, n.ID)
	if stored.SKUCode != "SKU-002" || stored.HoldQuantity != 120 {
		t.Errorf("stored: %s %d", stored.SKUCode, stored.HoldQuantity)
	}

	hist, _ := f.svc.History(ctx, f.as("root"), n.ID)
	if len(hist) != 2 {
		t.Fatalf("history has %d entries, want 2", len(hist))
	}

	if _, err := f.svc.Edit(ctx, f.as("root"), n.ID, map[string]string{"sku_code": "SKU-002"}); err != nil {
		t.Fatalf("no-op edit: %v", err)
	}
	if hist, _ = f.svc.History(ctx, f.as("root"), n.ID); len(hist) != 2 {
		t.Errorf("no-op edit was audited")
	}

	if _, err := f.svc.Edit(ctx, f.as("root"), n.ID, map[string]string{"status": "manager_approved"}); !errors.Is(err, workflow.ErrValidation) {
		t.Errorf("status edit: expected ErrValidation, got %v", err)
	}
	if _, err := f.svc.Edit(ctx, f.as("qa_bob"), n.ID, map[string]string{"sku_code": "X"}); !errors.Is(err, workflow.ErrForbidden) {
		t.Errorf("non admin edit: expected ErrForbidden, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	n := f.submit(t)

	if err := f.svc.Delete(ctx, f.as("qa_bob"), n.ID); !errors.Is(err, workflow.ErrForbidden) {
		t.Errorf("non admin delete: expected ErrForbidden, got %v", err)
	}
	if err := f.svc.Delete(ctx, f.as("root"), n.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := f.svc.Get(ctx, f.as("root"), n.ID); !errors.Is(err, workflow.ErrNotFound) {
		t.Errorf("get after delete: expected ErrNotFound, got %v", err)
	}
	if err := f.svc.Delete(ctx, f.as("root"), n.ID); !errors.Is(err, workflow.ErrNotFound) {
		t.Errorf("second delete: expected ErrNotFound, got %v", err)
	}
}

func TestReportersSeeOnlyTheirOwn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	n := f.submit(t)

	if _, err := f.svc.Get(ctx, f.as("op_zed"), n.ID); !errors.Is(err, workflow.ErrForbidden) {
		t.Errorf("other reporter: expected ErrForbidden, got %v", err)
	}
	if _, err := f.svc.Get(ctx, f.as("op_ann"), n.ID); err != nil {
		t.Errorf("own report: %v", err)
	}
	if _, total, _ := f.svc.List(ctx, f.as("op_zed"), repository.NCPFilter{}); total != 0 {
		t.Errorf("op_zed list total = %d", total)
	}
	if _, total, _ := f.svc.List(ctx, f.as("qa_cat"), repository.NCPFilter{}); total != 1 {
		t.Errorf("qa_cat list total = %d", total)
	}
}

func TestPendingQueues(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	n := f.submit(t)

	count := func(name string) int {
		_, total, err := f.svc.Pending(ctx, f.as(name), 50, 0)
		if err != nil {
			t.Fatalf("pending %s: %v", name, err)
		}
		return total
	}
	if count("qa_bob") != 1 || count("qa_cat") != 0 || count("tl_jane") != 0 {
		t.Error("unexpected queues after submit")
	}
	if _, err := f.svc.QAApprove(ctx, f.as("qa_bob"), n.ID, approveInput()); err != nil {
		t.Fatal(err)
	}
	if count("qa_bob") != 0 || count("tl_jane") != 1 || count("tl_mike") != 0 {
		t.Error("unexpected queues after qa approve")
	}
	if count("op_ann") != 1 || count("root") != 1 {
		t.Error("reporter and admin should still see the open record")
	}
}

func TestSummaryCounts(t *testing.T) {
	f := newFixture(t)
	f.submit(t)
	f.advance(t, workflow.ActionManagerApprove)

	counts, err := f.svc.Summary(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if counts[models.StatusPending] != 1 || counts[models.StatusManagerApproved] != 1 || counts[models.StatusQARejected] != 0 {
		t.Errorf("counts: %v", counts)
	}
}

type exhaustedCodes struct{ repository.NCPRepository }

func (exhaustedCodes) NextCode(context.Context, string) (string, error) {
	return "", repository.ErrOutOfRange
}

func TestSubmitMonthExhausted(t *testing.T) {
	f := newFixture(t)
	svc := f.service(exhaustedCodes{f.store.NCPs()}, f.store.Notifications(), f.store.Audit())
	if _, err := svc.Submit(context.Background(), f.as("op_ann"), submitInput()); !errors.Is(err, workflow.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

// interleaved runs before between a caller's load and its write, standing in
// for a second user acting on the same record.
type interleaved struct {
	repository.NCPRepository
	before func()
}

func (r *interleaved) Transition(ctx context.Context, n *models.NCPReport, from models.Status) error {
	if r.before != nil {
		r.before()
		r.before = nil
	}
	return r.NCPRepository.Transition(ctx, n, from)
}

func (r *interleaved) UpdateFields(ctx context.Context, n *models.NCPReport, columns []string) error {
	if r.before != nil {
		r.before()
		r.before = nil
	}
	return r.NCPRepository.UpdateFields(ctx, n, columns)
}

func TestReassignDuringProcessingWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	n := f.advance(t, workflow.ActionQAApprove)

	repo := &interleaved{NCPRepository: f.store.NCPs(), before: func() {
		if _, err := f.svc.Reassign(ctx, f.as("root"), n.ID, models.RoleTeamLeader, "tl_mike"); err != nil {
			t.Errorf("reassign: %v", err)
		}
	}}
	svc := f.service(repo, f.store.Notifications(), f.store.Audit())

	if _, err := svc.TLProcess(ctx, f.as("tl_jane"), n.ID, rcaInput()); !errors.Is(err, workflow.ErrInvalidTransition) {
		t.Fatalf("stale processing: expected ErrInvalidTransition, got %v", err)
	}
	stored, _ := f.store.NCPs().Get(ctx, n.ID)
	if stored.Status != models.StatusQAApproved || stored.AssignedTeamLeader != "tl_mike" || stored.TLProcessedBy != nil {
		t.Errorf("stored: status=%s tl=%s processedBy=%v", stored.Status, stored.AssignedTeamLeader, stored.TLProcessedBy)
	}
	hist, _ := f.svc.History(ctx, f.as("root"), n.ID)
	if len(hist) != 1 || hist[0].NewValue != "tl_mike" {
		t.Errorf("history: %+v", hist)
	}

	// Reloaded, the new assignee goes through.
	if _, err := f.svc.TLProcess(ctx, f.as("tl_mike"), n.ID, rcaInput()); err != nil {
		t.Errorf("new assignee: %v", err)
	}
}

func TestConcurrentEditsDoNotOverwrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	n := f.submit(t)

	repo := &interleaved{NCPRepository: f.store.NCPs(), before: func() {
		if _, err := f.svc.Edit(ctx, f.as("root"), n.ID, map[string]string{"sku_code": "SKU-777"}); err != nil {
			t.Errorf("first edit: %v", err)
		}
	}}
	svc := f.service(repo, f.store.Notifications(), f.store.Audit())

	if _, err := svc.Edit(ctx, f.as("root"), n.ID, map[string]string{"machine_code": "MC-99"}); !errors.Is(err, workflow.ErrInvalidTransition) {
		t.Fatalf("stale edit: expected ErrInvalidTransition, got %v", err)
	}
	stored, _ := f.store.NCPs().Get(ctx, n.ID)
	if stored.SKUCode != "SKU-777" || stored.MachineCode != "MC-07" {
		t.Errorf("stored: sku=%s machine=%s", stored.SKUCode, stored.MachineCode)
	}
}

func TestEditValidatesValues(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	n := f.submit(t)

	for _, fields := range []map[string]string{
		{"hold_quantity": "0"},
		{"incident_time": "not a time"},
		{"assigned_team_leader": "op_zed"},
		{"qa_leader": "qa_cat"},
	} {
		if _, err := f.svc.Edit(ctx, f.as("root"), n.ID, fields); !errors.Is(err, workflow.ErrValidation) {
			t.Errorf("Edit(%v): expected ErrValidation, got %v", fields, err)
		}
	}
	stored, _ := f.store.NCPs().Get(ctx, n.ID)
	if stored.HoldQuantity != 100 || stored.IncidentTime != "08:30" || stored.QALeader != "qa_bob" || stored.Version != n.Version {
		t.Errorf("record changed: %+v", stored)
	}
}

func TestGetByCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	n := f.submit(t)

	got, err := f.svc.GetByCode(ctx, f.as("qa_bob"), n.NCPCode)
	if err != nil || got.ID != n.ID {
		t.Fatalf("GetByCode: %v %+v", err, got)
	}
	if _, err := f.svc.GetByCode(ctx, f.as("op_zed"), n.NCPCode); !errors.Is(err, workflow.ErrForbidden) {
		t.Errorf("other reporter: expected ErrForbidden, got %v", err)
	}
	if _, err := f.svc.GetByCode(ctx, f.as("qa_bob"), "2101-0001"); !errors.Is(err, workflow.ErrNotFound) {
		t.Errorf("unknown code: expected ErrNotFound, got %v", err)
	}
}
