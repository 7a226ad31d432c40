package models

import "time"

// Activity actions recorded in the audit trail.
const (
	ActivityActionCreate      = "create"
	ActivityActionUpdate      = "update"
	ActivityActionDelete      = "delete"
	ActivityActionStart       = "start"
	ActivityActionComplete    = "complete"
	ActivityActionReject      = "reject"
	ActivityActionAcknowledge = "acknowledge"
	ActivityActionNotify      = "notify"
	ActivityActionLogin       = "login"
	ActivityActionLogout      = "logout"
)

// ActivityLog is an append-only audit record. Entries are never mutated or
// deleted once written.
type ActivityLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	EntityType string    `db:"entity_type" json:"entity_type"`
	EntityID   string    `db:"entity_id" json:"entity_id"`
	Details    string    `db:"details" json:"details"`
	Metadata   []byte    `db:"metadata" json:"metadata,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address,omitempty"`
	UserAgent  string    `db:"user_agent" json:"user_agent,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// ActivityFilter captures listing criteria.
type ActivityFilter struct {
	UserID     string
	EntityType string
	EntityID   string
	Action     string
	Limit      int
	Offset     int
}
