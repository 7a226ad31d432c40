package models

import "time"

// Notification is an in-app notification row.
type Notification struct {
	ID        string     `db:"id" json:"id"`
	UserID    string     `db:"user_id" json:"user_id"`
	Type      string     `db:"type" json:"type"`
	Title     string     `db:"title" json:"title"`
	Message   string     `db:"message" json:"message"`
	Metadata  []byte     `db:"metadata" json:"metadata,omitempty"`
	Read      bool       `db:"read" json:"read"`
	ReadAt    *time.Time `db:"read_at" json:"read_at,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

// In-app notification types.
const (
	NotificationTaskAssigned     = "TASK_ASSIGNED"
	NotificationProjectCompleted = "PROJECT_COMPLETED"
)

// NotificationPreference stores a user's delivery choices. Email preferences
// gate the non-mandatory notification categories; confirmation requests are
// always delivered.
type NotificationPreference struct {
	UserID             string    `db:"user_id" json:"user_id"`
	EmailTaskActivity  bool      `db:"email_task_activity" json:"email_task_activity"`
	EmailStatusChanges bool      `db:"email_status_changes" json:"email_status_changes"`
	EmailProjectEvents bool      `db:"email_project_events" json:"email_project_events"`
	InAppEnabled       bool      `db:"in_app_enabled" json:"in_app_enabled"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

// DefaultNotificationPreference returns the implicit opt-in defaults used
// when a user has no stored row.
func DefaultNotificationPreference(userID string) NotificationPreference {
	return NotificationPreference{
		UserID:             userID,
		EmailTaskActivity:  true,
		EmailStatusChanges: true,
		EmailProjectEvents: true,
		InAppEnabled:       true,
	}
}
