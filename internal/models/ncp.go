package models

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

type Status string

const (
	StatusPending         Status = "pending"
	StatusQAApproved      Status = "qa_approved"
	StatusQARejected      Status = "qa_rejected"
	StatusTLProcessed     Status = "tl_processed"
	StatusProcessApproved Status = "process_approved"
	StatusManagerApproved Status = "manager_approved"
)

var Statuses = []Status{
	StatusPending, StatusQAApproved, StatusQARejected,
	StatusTLProcessed, StatusProcessApproved, StatusManagerApproved,
}

func (s Status) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

// Terminal reports whether the record is archived.
func (s Status) Terminal() bool { return s == StatusManagerApproved }

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// NCPReport is one non-conformance incident from submission to archival.
type NCPReport struct {
	ID      string `json:"id"`
	NCPCode string `json:"ncpCode"`
	Status  Status `json:"status"`

	SKUCode            string    `json:"skuCode"`
	MachineCode        string    `json:"machineCode"`
	IncidentDate       time.Time `json:"incidentDate"`
	IncidentTime       string    `json:"incidentTime"`
	HoldQuantity       int       `json:"holdQuantity"`
	HoldQuantityUOM    string    `json:"holdQuantityUom"`
	ProblemDescription string    `json:"problemDescription"`
	PhotoAttachment    string    `json:"photoAttachment,omitempty"`

	SubmittedBy string    `json:"submittedBy"`
	SubmittedAt time.Time `json:"submittedAt"`

	QALeader           string     `json:"qaLeader"`
	QAApprovedBy       *string    `json:"qaApprovedBy"`
	QAApprovedAt       *time.Time `json:"qaApprovedAt"`
	Disposition        string     `json:"disposition"`
	SortedQty          int        `json:"sortedQty"`
	ReleasedQty        int        `json:"releasedQty"`
	RejectedQty        int        `json:"rejectedQty"`
	AssignedTeamLeader string     `json:"assignedTeamLeader"`
	QARejectionReason  string     `json:"qaRejectionReason"`

	TLProcessedBy     *string    `json:"tlProcessedBy"`
	TLProcessedAt     *time.Time `json:"tlProcessedAt"`
	RootCauseAnalysis string     `json:"rootCauseAnalysis"`
	CorrectiveAction  string     `json:"correctiveAction"`
	PreventiveAction  string     `json:"preventiveAction"`

	ProcessApprovedBy      *string    `json:"processApprovedBy"`
	ProcessApprovedAt      *time.Time `json:"processApprovedAt"`
	ProcessComment         string     `json:"processComment"`
	ProcessRejectionReason string     `json:"processRejectionReason"`

	ManagerApprovedBy      *string    `json:"managerApprovedBy"`
	ManagerApprovedAt      *time.Time `json:"managerApprovedAt"`
	ManagerComment         string     `json:"managerComment"`
	ManagerRejectionReason string     `json:"managerRejectionReason"`

	// Version increments on every write; guarded writes compare it.
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Clone returns a deep copy; pointer fields are duplicated.
func (r *NCPReport) Clone() *NCPReport {
	c := *r
	c.QAApprovedBy = cloneStr(r.QAApprovedBy)
	c.QAApprovedAt = cloneTime(r.QAApprovedAt)
	c.TLProcessedBy = cloneStr(r.TLProcessedBy)
	c.TLProcessedAt = cloneTime(r.TLProcessedAt)
	c.ProcessApprovedBy = cloneStr(r.ProcessApprovedBy)
	c.ProcessApprovedAt = cloneTime(r.ProcessApprovedAt)
	c.ManagerApprovedBy = cloneStr(r.ManagerApprovedBy)
	c.ManagerApprovedAt = cloneTime(r.ManagerApprovedAt)
	return &c
}

func cloneStr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTime(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// -----------------------------------------------------------------------------
// Column registry for super-admin field edits
// -----------------------------------------------------------------------------

type column struct {
	get   func(*NCPReport) string
	set   func(*NCPReport, string) error
	value func(*NCPReport) any
	// assignment columns are written by reassign, never by a field edit.
	assignment bool
}

func textColumn(p func(*NCPReport) *string) column {
	return column{
		get:   func(r *NCPReport) string { return *p(r) },
		set:   func(r *NCPReport, v string) error { *p(r) = v; return nil },
		value: func(r *NCPReport) any { return *p(r) },
	}
}

func assignmentColumn(p func(*NCPReport) *string) column {
	c := textColumn(p)
	c.assignment = true
	return c
}

// timeColumn holds an HH:MM wall-clock time.
func timeColumn(p func(*NCPReport) *string) column {
	c := textColumn(p)
	c.set = func(r *NCPReport, v string) error {
		v = strings.TrimSpace(v)
		if _, err := time.Parse(TimeLayout, v); err != nil {
			return fmt.Errorf("not a time (HH:MM): %q", v)
		}
		*p(r) = v
		return nil
	}
	return c
}

// intColumn parses a count no smaller than floor.
func intColumn(floor int, p func(*NCPReport) *int) column {
	return column{
		get: func(r *NCPReport) string { return strconv.Itoa(*p(r)) },
		set: func(r *NCPReport, v string) error {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("not an integer: %q", v)
			}
			if n < floor {
				return fmt.Errorf("must be at least %d, got %d", floor, n)
			}
			*p(r) = n
			return nil
		},
		value: func(r *NCPReport) any { return *p(r) },
	}
}

var editable = map[string]column{
	"sku_code":                 textColumn(func(r *NCPReport) *string { return &r.SKUCode }),
	"machine_code":             textColumn(func(r *NCPReport) *string { return &r.MachineCode }),
	"incident_time":            timeColumn(func(r *NCPReport) *string { return &r.IncidentTime }),
	"hold_quantity_uom":        textColumn(func(r *NCPReport) *string { return &r.HoldQuantityUOM }),
	"problem_description":      textColumn(func(r *NCPReport) *string { return &r.ProblemDescription }),
	"photo_attachment":         textColumn(func(r *NCPReport) *string { return &r.PhotoAttachment }),
	"qa_leader":                assignmentColumn(func(r *NCPReport) *string { return &r.QALeader }),
	"disposition":              textColumn(func(r *NCPReport) *string { return &r.Disposition }),
	"assigned_team_leader":     assignmentColumn(func(r *NCPReport) *string { return &r.AssignedTeamLeader }),
	"qa_rejection_reason":      textColumn(func(r *NCPReport) *string { return &r.QARejectionReason }),
	"root_cause_analysis":      textColumn(func(r *NCPReport) *string { return &r.RootCauseAnalysis }),
	"corrective_action":        textColumn(func(r *NCPReport) *string { return &r.CorrectiveAction }),
	"preventive_action":        textColumn(func(r *NCPReport) *string { return &r.PreventiveAction }),
	"process_comment":          textColumn(func(r *NCPReport) *string { return &r.ProcessComment }),
	"process_rejection_reason": textColumn(func(r *NCPReport) *string { return &r.ProcessRejectionReason }),
	"manager_comment":          textColumn(func(r *NCPReport) *string { return &r.ManagerComment }),
	"manager_rejection_reason": textColumn(func(r *NCPReport) *string { return &r.ManagerRejectionReason }),
	"hold_quantity":            intColumn(1, func(r *NCPReport) *int { return &r.HoldQuantity }),
	"sorted_qty":               intColumn(0, func(r *NCPReport) *int { return &r.SortedQty }),
	"released_qty":             intColumn(0, func(r *NCPReport) *int { return &r.ReleasedQty }),
	"rejected_qty":             intColumn(0, func(r *NCPReport) *int { return &r.RejectedQty }),
	"incident_date": {
		get: func(r *NCPReport) string { return r.IncidentDate.Format(DateLayout) },
		set: func(r *NCPReport, v string) error {
			d, err := time.Parse(DateLayout, strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("not a date (YYYY-MM-DD): %q", v)
			}
			r.IncidentDate = d
			return nil
		},
		value: func(r *NCPReport) any { return r.IncidentDate },
	},
}

// EditableColumns lists the columns a super admin may overwrite, sorted.
// Assignment columns are excluded; they change through reassign.
func EditableColumns() []string {
	out := make([]string, 0, len(editable))
	for k, c := range editable {
		if !c.assignment {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func IsEditable(col string) bool {
	c, ok := editable[col]
	return ok && !c.assignment
}

// IsAssignment reports whether col names a QA leader or team leader assignment.
func IsAssignment(col string) bool {
	c, ok := editable[col]
	return ok && c.assignment
}

// Field returns the string form of an editable column.
func (r *NCPReport) Field(col string) (string, bool) {
	c, ok := editable[col]
	if !ok {
		return "", false
	}
	return c.get(r), true
}

// SetField parses v into the editable column col.
func (r *NCPReport) SetField(col, v string) error {
	c, ok := editable[col]
	if !ok {
		return fmt.Errorf("field %q is not editable", col)
	}
	return c.set(r, v)
}

// ColumnValue returns the typed value for persisting col.
func (r *NCPReport) ColumnValue(col string) (any, bool) {
	c, ok := editable[col]
	if !ok {
		return nil, false
	}
	return c.value(r), true
}
