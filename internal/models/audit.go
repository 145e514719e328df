package models

import "time"

// AuditLogEntry is an append-only record of an out-of-band change made by a super admin.
type AuditLogEntry struct {
	ID           string    `json:"id"`
	NCPCode      string    `json:"ncpCode"`
	ChangedBy    string    `json:"changedBy"`
	FieldChanged string    `json:"fieldChanged"`
	OldValue     string    `json:"oldValue"`
	NewValue     string    `json:"newValue"`
	Description  string    `json:"description"`
	ChangedAt    time.Time `json:"changedAt"`
}
