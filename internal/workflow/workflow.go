// Package workflow is the NCP state machine. It is pure: every operation takes
// the current record and returns a Decision describing the next state and the
// side effects to emit, leaving persistence and delivery to the caller.
package workflow

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"qa-portal/internal/models"
)

type Action string

const (
	ActionQAApprove      Action = "qa_approve"
	ActionQAReject       Action = "qa_reject"
	ActionTLProcess      Action = "tl_process"
	ActionProcessApprove Action = "process_approve"
	ActionProcessReject  Action = "process_reject"
	ActionManagerApprove Action = "manager_approve"
	ActionManagerReject  Action = "manager_reject"
)

// Input carries the payload of a forward transition. Each action reads only
// the fields it needs.
type Input struct {
	Disposition        string `json:"disposition"`
	SortedQty          int    `json:"sortedQty"`
	ReleasedQty        int    `json:"releasedQty"`
	RejectedQty        int    `json:"rejectedQty"`
	AssignedTeamLeader string `json:"assignedTeamLeader"`
	RootCauseAnalysis  string `json:"rootCauseAnalysis"`
	CorrectiveAction   string `json:"correctiveAction"`
	PreventiveAction   string `json:"preventiveAction"`
	Comment            string `json:"comment"`
	Reason             string `json:"rejectionReason"`
}

// Notice is a notification to emit after the write commits. Exactly one of
// Username or Role is set.
type Notice struct {
	Username string
	Role     models.Role
	Type     string
	Title    string
	Message  string
}

// Change is one audited field mutation.
type Change struct {
	Field       string
	Old         string
	New         string
	Description string
}

// Decision is the outcome of a workflow operation.
type Decision struct {
	Report *models.NCPReport
	// From is the status the stored row must still hold at write time.
	From models.Status
	// Columns is set for field-level writes (edit, reassign); status
	// transitions persist the whole workflow column set instead.
	Columns []string
	Notices []Notice
	Audit   []Change
}

// StatusChanged reports whether the decision moves the record.
func (d Decision) StatusChanged() bool { return d.Report.Status != d.From }

type rule struct {
	roles    []models.Role
	from     models.Status
	to       models.Status
	assignee func(r *models.NCPReport) string
	validate func(r *models.NCPReport, in Input) error
	apply    func(r *models.NCPReport, a models.Actor, in Input, now time.Time)
	notify   func(r *models.NCPReport) []Notice
}

var table = map[Action]rule{
	ActionQAApprove: {
		roles:    []models.Role{models.RoleQALeader},
		from:     models.StatusPending,
		to:       models.StatusQAApproved,
		assignee: func(r *models.NCPReport) string { return r.QALeader },
		validate: validateQAApprove,
		apply: func(r *models.NCPReport, a models.Actor, in Input, now time.Time) {
			r.QAApprovedBy, r.QAApprovedAt = stamp(a, now)
			r.Disposition = strings.TrimSpace(in.Disposition)
			r.SortedQty, r.ReleasedQty, r.RejectedQty = in.SortedQty, in.ReleasedQty, in.RejectedQty
			r.AssignedTeamLeader = strings.TrimSpace(in.AssignedTeamLeader)
		},
		notify: func(r *models.NCPReport) []Notice {
			return []Notice{{
				Username: r.AssignedTeamLeader,
				Type:     models.NotificationQAApproved,
				Title:    "NCP assigned for processing",
				Message:  fmt.Sprintf("NCP %s was approved by QA and assigned to you for root cause analysis.", r.NCPCode),
			}}
		},
	},
	ActionQAReject: {
		roles:    []models.Role{models.RoleQALeader},
		from:     models.StatusPending,
		to:       models.StatusQARejected,
		assignee: func(r *models.NCPReport) string { return r.QALeader },
		validate: requireReason,
		apply: func(r *models.NCPReport, a models.Actor, in Input, now time.Time) {
			r.QAApprovedBy, r.QAApprovedAt = stamp(a, now)
			r.QARejectionReason = strings.TrimSpace(in.Reason)
		},
	},
	ActionTLProcess: {
		roles:    []models.Role{models.RoleTeamLeader},
		from:     models.StatusQAApproved,
		to:       models.StatusTLProcessed,
		assignee: func(r *models.NCPReport) string { return r.AssignedTeamLeader },
		validate: func(_ *models.NCPReport, in Input) error {
			return required(map[string]string{
				"rootCauseAnalysis": in.RootCauseAnalysis,
				"correctiveAction":  in.CorrectiveAction,
				"preventiveAction":  in.PreventiveAction,
			})
		},
		apply: func(r *models.NCPReport, a models.Actor, in Input, now time.Time) {
			r.TLProcessedBy, r.TLProcessedAt = stamp(a, now)
			r.RootCauseAnalysis = strings.TrimSpace(in.RootCauseAnalysis)
			r.CorrectiveAction = strings.TrimSpace(in.CorrectiveAction)
			r.PreventiveAction = strings.TrimSpace(in.PreventiveAction)
		},
		notify: func(r *models.NCPReport) []Notice {
			return []Notice{{
				Role:    models.RoleProcessLead,
				Type:    models.NotificationTLProcessed,
				Title:   "NCP awaiting process review",
				Message: fmt.Sprintf("NCP %s has root cause analysis and actions ready for review.", r.NCPCode),
			}}
		},
	},
	ActionProcessApprove: {
		roles: []models.Role{models.RoleProcessLead},
		from:  models.StatusTLProcessed,
		to:    models.StatusProcessApproved,
		validate: func(_ *models.NCPReport, in Input) error {
			return required(map[string]string{"comment": in.Comment})
		},
		apply: func(r *models.NCPReport, a models.Actor, in Input, now time.Time) {
			r.ProcessApprovedBy, r.ProcessApprovedAt = stamp(a, now)
			r.ProcessComment = strings.TrimSpace(in.Comment)
		},
		notify: func(r *models.NCPReport) []Notice {
			return []Notice{{
				Role:    models.RoleQAManager,
				Type:    models.NotificationProcessApprove,
				Title:   "NCP awaiting final approval",
				Message: fmt.Sprintf("NCP %s was approved by process and needs manager sign-off.", r.NCPCode),
			}}
		},
	},
	ActionProcessReject: {
		roles:    []models.Role{models.RoleProcessLead},
		from:     models.StatusTLProcessed,
		to:       models.StatusQAApproved,
		validate: requireReason,
		apply: func(r *models.NCPReport, _ models.Actor, in Input, _ time.Time) {
			r.ProcessApprovedBy, r.ProcessApprovedAt = nil, nil
			r.ProcessRejectionReason = strings.TrimSpace(in.Reason)
		},
		notify: func(r *models.NCPReport) []Notice {
			return []Notice{rejectedNotice(r, "process", r.ProcessRejectionReason)}
		},
	},
	ActionManagerApprove: {
		roles: []models.Role{models.RoleQAManager},
		from:  models.StatusProcessApproved,
		to:    models.StatusManagerApproved,
		validate: func(_ *models.NCPReport, in Input) error {
			return required(map[string]string{"comment": in.Comment})
		},
		apply: func(r *models.NCPReport, a models.Actor, in Input, now time.Time) {
			r.ManagerApprovedBy, r.ManagerApprovedAt = stamp(a, now)
			r.ManagerComment = strings.TrimSpace(in.Comment)
		},
	},
	ActionManagerReject: {
		roles:    []models.Role{models.RoleQAManager},
		from:     models.StatusProcessApproved,
		to:       models.StatusQAApproved,
		validate: requireReason,
		apply: func(r *models.NCPReport, _ models.Actor, in Input, _ time.Time) {
			r.ManagerApprovedBy, r.ManagerApprovedAt = nil, nil
			r.ManagerRejectionReason = strings.TrimSpace(in.Reason)
		},
		notify: func(r *models.NCPReport) []Notice {
			return []Notice{rejectedNotice(r, "manager", r.ManagerRejectionReason)}
		},
	},
}

// Apply runs a forward transition against r. Checks run in order: actor role,
// current status, assignment, then payload. r is never modified.
func Apply(r *models.NCPReport, actor models.Actor, action Action, in Input, now time.Time) (Decision, error) {
	ru, ok := table[action]
	if !ok {
		return Decision{}, validationf("unknown action %q", action)
	}
	if !slices.Contains(ru.roles, actor.Role) {
		return Decision{}, forbiddenf("role %s cannot %s", actor.Role, action)
	}
	if r.Status != ru.from {
		return Decision{}, transitionf("%s requires status %s, NCP %s is %s", action, ru.from, r.NCPCode, r.Status)
	}
	if ru.assignee != nil {
		if want := ru.assignee(r); want != actor.Username {
			return Decision{}, forbiddenf("NCP %s is assigned to %q, not %q", r.NCPCode, want, actor.Username)
		}
	}
	if err := ru.validate(r, in); err != nil {
		return Decision{}, err
	}

	next := r.Clone()
	ru.apply(next, actor, in, now)
	next.Status = ru.to
	next.UpdatedAt = now

	d := Decision{Report: next, From: r.Status}
	if ru.notify != nil {
		d.Notices = ru.notify(next)
	}
	return d, nil
}

func validateQAApprove(r *models.NCPReport, in Input) error {
	if err := required(map[string]string{
		"disposition":        in.Disposition,
		"assignedTeamLeader": in.AssignedTeamLeader,
	}); err != nil {
		return err
	}
	if in.SortedQty < 0 || in.ReleasedQty < 0 || in.RejectedQty < 0 {
		return validationf("quantities must not be negative")
	}
	if sum := in.SortedQty + in.ReleasedQty + in.RejectedQty; sum != r.HoldQuantity {
		return validationf("sorted + released + rejected = %d, hold quantity is %d", sum, r.HoldQuantity)
	}
	return nil
}

func requireReason(_ *models.NCPReport, in Input) error {
	return required(map[string]string{"rejectionReason": in.Reason})
}

// required fails on the first blank field, in name order.
func required(fields map[string]string) error {
	names := make([]string, 0, len(fields))
	for k := range fields {
		names = append(names, k)
	}
	slices.Sort(names)
	for _, k := range names {
		if strings.TrimSpace(fields[k]) == "" {
			return validationf("%s is required", k)
		}
	}
	return nil
}

func stamp(a models.Actor, now time.Time) (*string, *time.Time) {
	by, at := a.Username, now
	return &by, &at
}

func rejectedNotice(r *models.NCPReport, stage, reason string) Notice {
	return Notice{
		Username: r.AssignedTeamLeader,
		Type:     models.NotificationRejected,
		Title:    "NCP returned for rework",
		Message:  fmt.Sprintf("NCP %s was rejected at %s review: %s", r.NCPCode, stage, reason),
	}
}
