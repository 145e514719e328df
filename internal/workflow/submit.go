package workflow

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"qa-portal/internal/models"
)

var submitRoles = []models.Role{models.RoleUser, models.RoleQALeader, models.RoleAdmin}

// SubmitInput is the form a reporter fills in. IncidentDate is YYYY-MM-DD.
type SubmitInput struct {
	SKUCode            string `json:"skuCode"`
	MachineCode        string `json:"machineCode"`
	IncidentDate       string `json:"incidentDate"`
	IncidentTime       string `json:"incidentTime"`
	HoldQuantity       int    `json:"holdQuantity"`
	HoldQuantityUOM    string `json:"holdQuantityUom"`
	ProblemDescription string `json:"problemDescription"`
	PhotoAttachment    string `json:"photoAttachment"`
	QALeader           string `json:"qaLeader"`
}

// Submit builds a new pending report. The caller assigns ID and NCPCode
// before persisting.
func Submit(actor models.Actor, in SubmitInput, now time.Time) (*models.NCPReport, error) {
	if !slices.Contains(submitRoles, actor.Role) {
		return nil, forbiddenf("role %s cannot submit NCP reports", actor.Role)
	}
	if err := required(map[string]string{
		"skuCode":            in.SKUCode,
		"machineCode":        in.MachineCode,
		"incidentDate":       in.IncidentDate,
		"incidentTime":       in.IncidentTime,
		"holdQuantityUom":    in.HoldQuantityUOM,
		"problemDescription": in.ProblemDescription,
		"qaLeader":           in.QALeader,
	}); err != nil {
		return nil, err
	}
	if in.HoldQuantity <= 0 {
		return nil, validationf("holdQuantity must be positive")
	}
	date, err := time.Parse(models.DateLayout, strings.TrimSpace(in.IncidentDate))
	if err != nil {
		return nil, validationf("incidentDate must be YYYY-MM-DD")
	}
	if _, err := time.Parse(models.TimeLayout, strings.TrimSpace(in.IncidentTime)); err != nil {
		return nil, validationf("incidentTime must be HH:MM")
	}

	return &models.NCPReport{
		Status:             models.StatusPending,
		SKUCode:            strings.TrimSpace(in.SKUCode),
		MachineCode:        strings.TrimSpace(in.MachineCode),
		IncidentDate:       date,
		IncidentTime:       strings.TrimSpace(in.IncidentTime),
		HoldQuantity:       in.HoldQuantity,
		HoldQuantityUOM:    strings.TrimSpace(in.HoldQuantityUOM),
		ProblemDescription: strings.TrimSpace(in.ProblemDescription),
		PhotoAttachment:    strings.TrimSpace(in.PhotoAttachment),
		QALeader:           strings.TrimSpace(in.QALeader),
		SubmittedBy:        actor.Username,
		SubmittedAt:        now,
		CreatedAt:          now,
		UpdatedAt:          now,
	}, nil
}

// SubmittedNotice tells the assigned QA leader about a new report.
func SubmittedNotice(r *models.NCPReport) Notice {
	return Notice{
		Username: r.QALeader,
		Type:     models.NotificationNewNCP,
		Title:    "New NCP awaiting QA review",
		Message:  fmt.Sprintf("NCP %s (%s on %s) was submitted by %s.", r.NCPCode, r.SKUCode, r.MachineCode, r.SubmittedBy),
	}
}
