package repository

import "qa-portal/internal/models"

type NCPFilter struct {
	Q                  string          // matches ncp code, sku, machine or description
	Statuses           []models.Status // any of; empty means all
	QALeader           string
	AssignedTeamLeader string
	SubmittedBy        string
	Limit              int
	Offset             int
	Sort               string // submitted_at, updated_at, ncp_code
	Order              string // asc|desc
}
