package workflow

import (
	"qa-portal/internal/models"
	"qa-portal/internal/repository"
)

// Queue returns the filter for the records awaiting actor's action.
func Queue(actor models.Actor) repository.NCPFilter {
	switch actor.Role {
	case models.RoleQALeader:
		return repository.NCPFilter{Statuses: []models.Status{models.StatusPending}, QALeader: actor.Username}
	case models.RoleTeamLeader:
		return repository.NCPFilter{Statuses: []models.Status{models.StatusQAApproved}, AssignedTeamLeader: actor.Username}
	case models.RoleProcessLead:
		return repository.NCPFilter{Statuses: []models.Status{models.StatusTLProcessed}}
	case models.RoleQAManager:
		return repository.NCPFilter{Statuses: []models.Status{models.StatusProcessApproved}}
	case models.RoleAdmin, models.RoleSuperAdmin:
		return repository.NCPFilter{Statuses: Active()}
	default:
		return repository.NCPFilter{Statuses: Active(), SubmittedBy: actor.Username}
	}
}

// Active lists every non-terminal status.
func Active() []models.Status {
	out := make([]models.Status, 0, len(models.Statuses))
	for _, s := range models.Statuses {
		if !s.Terminal() {
			out = append(out, s)
		}
	}
	return out
}

// CanView gates reads of a single record. Reporters only see what they submitted.
func CanView(r *models.NCPReport, actor models.Actor) error {
	if actor.Role == models.RoleUser && r.SubmittedBy != actor.Username {
		return forbiddenf("NCP %s was not submitted by %s", r.NCPCode, actor.Username)
	}
	return nil
}
