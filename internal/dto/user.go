package dto

// UpdateUserRequest defines the admin user-update payload.
type UpdateUserRequest struct {
	Name   *string `json:"name"`
	Email  *string `json:"email" validate:"omitempty,email"`
	Role   *string `json:"role"`
	Active *bool   `json:"active"`
}

// ChangePasswordRequest defines the password rotation payload.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8"`
}

// UpdatePreferencesRequest toggles notification delivery channels.
type UpdatePreferencesRequest struct {
	EmailTaskActivity  *bool `json:"email_task_activity"`
	EmailStatusChanges *bool `json:"email_status_changes"`
	EmailProjectEvents *bool `json:"email_project_events"`
	InAppEnabled       *bool `json:"in_app_enabled"`
}
