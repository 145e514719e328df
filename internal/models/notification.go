package models

import "time"

const (
	NotificationNewNCP         = "ncp_submitted"
	NotificationQAApproved     = "ncp_qa_approved"
	NotificationTLProcessed    = "ncp_tl_processed"
	NotificationProcessApprove = "ncp_process_approved"
	NotificationRejected       = "ncp_rejected"
	NotificationReassigned     = "ncp_reassigned"
)

type Notification struct {
	ID              string    `json:"id"`
	RecipientUserID string    `json:"recipientUserId"`
	RelatedNCPCode  string    `json:"relatedNcpCode"`
	Title           string    `json:"title"`
	Message         string    `json:"message"`
	Type            string    `json:"type"`
	IsRead          bool      `json:"isRead"`
	CreatedAt       time.Time `json:"createdAt"`
}
