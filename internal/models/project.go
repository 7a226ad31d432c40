package models

import "time"

// ProjectStatus is the canonical project lifecycle state.
type ProjectStatus string

const (
	ProjectStatusActive    ProjectStatus = "ACTIVE"
	ProjectStatusCompleted ProjectStatus = "COMPLETED"
	ProjectStatusArchived  ProjectStatus = "ARCHIVED"
)

// Project represents a project row.
type Project struct {
	ID          string        `db:"id" json:"id"`
	Title       string        `db:"title" json:"title"`
	Description *string       `db:"description" json:"description,omitempty"`
	Status      ProjectStatus `db:"status" json:"status"`
	ManagerID   *string       `db:"manager_id" json:"manager_id,omitempty"`
	CreatedByID string        `db:"created_by_id" json:"created_by_id"`
	StartDate   *time.Time    `db:"start_date" json:"start_date,omitempty"`
	DueDate     *time.Time    `db:"due_date" json:"due_date,omitempty"`
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time     `db:"updated_at" json:"updated_at"`
}

// ProjectWithNames joins foreign keys to display names for API responses.
type ProjectWithNames struct {
	Project
	ManagerName   *string `db:"manager_name" json:"manager_name,omitempty"`
	CreatedByName *string `db:"created_by_name" json:"created_by_name,omitempty"`
}

// ProjectFilter captures listing criteria.
type ProjectFilter struct {
	Status    string
	ManagerID string
	MemberID  string
	Limit     int
	Offset    int
}
