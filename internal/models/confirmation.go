package models

import "time"

// ConfirmationType identifies the action a token confirms.
type ConfirmationType string

const (
	ConfirmTaskAssignment    ConfirmationType = "TASK_ASSIGNMENT"
	ConfirmTaskStatusChange  ConfirmationType = "TASK_STATUS_CHANGE"
	ConfirmStageStatusChange ConfirmationType = "STAGE_STATUS_CHANGE"
	// ConfirmProjectCreated is reserved; the executor treats it as a logged
	// no-op rather than an error.
	ConfirmProjectCreated ConfirmationType = "PROJECT_CREATED"
)

// ConfirmationToken is a single-use, out-of-band acknowledgement token.
// Rows are never deleted; consumed tokens remain as an audit trail.
type ConfirmationToken struct {
	ID         string           `db:"id" json:"id"`
	Token      string           `db:"token" json:"-"`
	Type       ConfirmationType `db:"type" json:"type"`
	UserID     string           `db:"user_id" json:"user_id"`
	EntityType string           `db:"entity_type" json:"entity_type"`
	EntityID   string           `db:"entity_id" json:"entity_id"`
	// Metadata is captured at issue time because the source entities may
	// change before the recipient clicks the link.
	Metadata    []byte     `db:"metadata" json:"metadata,omitempty"`
	Confirmed   bool       `db:"confirmed" json:"confirmed"`
	ConfirmedAt *time.Time `db:"confirmed_at" json:"confirmed_at,omitempty"`
	ExpiresAt   time.Time  `db:"expires_at" json:"expires_at"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

// TokenMetadata is the action payload stored with a confirmation token.
type TokenMetadata struct {
	TaskTitle   string `json:"task_title,omitempty"`
	StageName   string `json:"stage_name,omitempty"`
	ProjectName string `json:"project_name,omitempty"`
	OldStatus   string `json:"old_status,omitempty"`
	NewStatus   string `json:"new_status,omitempty"`
}

// ConsumeReason classifies why a consume attempt failed.
type ConsumeReason string

const (
	ConsumeReasonNotFound    ConsumeReason = "NOT_FOUND"
	ConsumeReasonAlreadyUsed ConsumeReason = "ALREADY_USED"
	ConsumeReasonExpired     ConsumeReason = "EXPIRED"
)

// ConfirmationPayload is the stored action data returned by a successful
// consume, handed to the executor.
type ConfirmationPayload struct {
	Type       ConfirmationType `json:"type"`
	UserID     string           `json:"user_id"`
	EntityType string           `json:"entity_type"`
	EntityID   string           `json:"entity_id"`
	Metadata   TokenMetadata    `json:"metadata"`
}

// ConsumeResult reports the outcome of a token consumption attempt.
type ConsumeResult struct {
	Success bool                 `json:"success"`
	Reason  ConsumeReason        `json:"reason,omitempty"`
	Payload *ConfirmationPayload `json:"payload,omitempty"`
}
