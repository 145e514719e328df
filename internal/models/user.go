package models

import "time"

type Role string

const (
	RoleUser        Role = "user"
	RoleQALeader    Role = "qa_leader"
	RoleTeamLeader  Role = "team_leader"
	RoleProcessLead Role = "process_lead"
	RoleQAManager   Role = "qa_manager"
	RoleAdmin       Role = "admin"
	RoleSuperAdmin  Role = "super_admin"
)

var Roles = []Role{
	RoleUser, RoleQALeader, RoleTeamLeader, RoleProcessLead,
	RoleQAManager, RoleAdmin, RoleSuperAdmin,
}

func (r Role) Valid() bool {
	for _, v := range Roles {
		if r == v {
			return true
		}
	}
	return false
}

type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	FullName  string    `json:"fullName"`
	Role      Role      `json:"role"`
	Active    bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Actor is the authenticated caller as vouched for by the session token.
type Actor struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
}
