package workflow

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"qa-portal/internal/models"
)

// rank orders statuses along the approval chain. qa_rejected sits beside
// qa_approved: both are outcomes of the QA review.
var rank = map[models.Status]int{
	models.StatusPending:         0,
	models.StatusQAApproved:      1,
	models.StatusQARejected:      1,
	models.StatusTLProcessed:     2,
	models.StatusProcessApproved: 3,
	models.StatusManagerApproved: 4,
}

// RequireSuperAdmin gates the recovery operations.
func RequireSuperAdmin(actor models.Actor) error {
	if actor.Role != models.RoleSuperAdmin {
		return forbiddenf("role %s cannot perform super-admin operations", actor.Role)
	}
	return nil
}

// Revert moves r back to an earlier status on the chain.
func Revert(r *models.NCPReport, actor models.Actor, target models.Status, now time.Time) (Decision, error) {
	if err := RequireSuperAdmin(actor); err != nil {
		return Decision{}, err
	}
	if !target.Valid() {
		return Decision{}, validationf("unknown status %q", target)
	}
	if rank[target] >= rank[r.Status] {
		return Decision{}, transitionf("cannot revert NCP %s from %s to %s", r.NCPCode, r.Status, target)
	}

	next := r.Clone()
	next.Status = target
	next.UpdatedAt = now
	return Decision{
		Report: next,
		From:   r.Status,
		Audit: []Change{{
			Field:       "status",
			Old:         string(r.Status),
			New:         string(target),
			Description: fmt.Sprintf("Status reverted from %s to %s", r.Status, target),
		}},
	}, nil
}

// Reassign hands the QA review or the TL processing to another user. Role
// selects which assignment changes.
func Reassign(r *models.NCPReport, actor models.Actor, role models.Role, assignee string, now time.Time) (Decision, error) {
	if err := RequireSuperAdmin(actor); err != nil {
		return Decision{}, err
	}
	assignee = strings.TrimSpace(assignee)
	if assignee == "" {
		return Decision{}, validationf("newAssignee is required")
	}

	next := r.Clone()
	var col, old string
	switch role {
	case models.RoleQALeader:
		col, old = "qa_leader", r.QALeader
		next.QALeader = assignee
	case models.RoleTeamLeader:
		col, old = "assigned_team_leader", r.AssignedTeamLeader
		next.AssignedTeamLeader = assignee
	default:
		return Decision{}, validationf("reassign role must be %s or %s", models.RoleQALeader, models.RoleTeamLeader)
	}
	if old == assignee {
		return Decision{}, validationf("NCP %s is already assigned to %s", r.NCPCode, assignee)
	}
	next.UpdatedAt = now

	return Decision{
		Report:  next,
		From:    r.Status,
		Columns: []string{col},
		Audit: []Change{{
			Field:       col,
			Old:         old,
			New:         assignee,
			Description: fmt.Sprintf("Reassigned %s from %s to %s", role, displayOr(old, "nobody"), assignee),
		}},
		Notices: []Notice{{
			Username: assignee,
			Type:     models.NotificationReassigned,
			Title:    "NCP reassigned to you",
			Message:  fmt.Sprintf("NCP %s has been reassigned to you as %s.", r.NCPCode, role),
		}},
	}, nil
}

// Edit overwrites descriptive or outcome fields. Each field that actually
// changes yields its own audit entry; status is never editable here.
func Edit(r *models.NCPReport, actor models.Actor, fields map[string]string, now time.Time) (Decision, error) {
	if err := RequireSuperAdmin(actor); err != nil {
		return Decision{}, err
	}
	if len(fields) == 0 {
		return Decision{}, validationf("no fields to update")
	}

	cols := make([]string, 0, len(fields))
	for col := range fields {
		if col == "status" {
			return Decision{}, validationf("status cannot be edited, use revert")
		}
		if models.IsAssignment(col) {
			return Decision{}, validationf("%s cannot be edited, use reassign", col)
		}
		if !models.IsEditable(col) {
			return Decision{}, validationf("field %q is not editable, editable fields: %s",
				col, strings.Join(models.EditableColumns(), ", "))
		}
		cols = append(cols, col)
	}
	sort.Strings(cols)

	next := r.Clone()
	d := Decision{Report: next, From: r.Status}
	for _, col := range cols {
		old, _ := r.Field(col)
		if err := next.SetField(col, fields[col]); err != nil {
			return Decision{}, validationf("%s: %v", col, err)
		}
		val, _ := next.Field(col)
		if val == old {
			continue
		}
		d.Columns = append(d.Columns, col)
		d.Audit = append(d.Audit, Change{
			Field:       col,
			Old:         old,
			New:         val,
			Description: fmt.Sprintf("Super admin edited %s", col),
		})
	}
	if err := checkSplit(next, d.Columns); err != nil {
		return Decision{}, err
	}
	if len(d.Columns) > 0 {
		next.UpdatedAt = now
	}
	return d, nil
}

var quantityColumns = []string{"hold_quantity", "sorted_qty", "released_qty", "rejected_qty"}

// checkSplit keeps the QA quantity split summing to the hold quantity once a
// QA leader has approved the record.
func checkSplit(r *models.NCPReport, changed []string) error {
	if r.QAApprovedBy == nil {
		return nil
	}
	touched := false
	for _, col := range changed {
		if slices.Contains(quantityColumns, col) {
			touched = true
			break
		}
	}
	if !touched {
		return nil
	}
	if sum := r.SortedQty + r.ReleasedQty + r.RejectedQty; sum != r.HoldQuantity {
		return validationf("sorted + released + rejected = %d, hold quantity is %d", sum, r.HoldQuantity)
	}
	return nil
}

func displayOr(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
