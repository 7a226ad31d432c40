package models

import (
	"fmt"
	"time"
)

// TaskStatus is the canonical task lifecycle state.
type TaskStatus string

const (
	TaskStatusTodo       TaskStatus = "TODO"
	TaskStatusInProgress TaskStatus = "IN_PROGRESS"
	TaskStatusCompleted  TaskStatus = "COMPLETED"
)

// ParseTaskStatus validates an inbound status value.
func ParseTaskStatus(raw string) (TaskStatus, error) {
	switch TaskStatus(raw) {
	case TaskStatusTodo, TaskStatusInProgress, TaskStatusCompleted:
		return TaskStatus(raw), nil
	}
	return "", fmt.Errorf("unrecognized task status %q", raw)
}

// TaskPriority orders tasks by urgency.
type TaskPriority string

const (
	TaskPriorityLow    TaskPriority = "LOW"
	TaskPriorityMedium TaskPriority = "MEDIUM"
	TaskPriorityHigh   TaskPriority = "HIGH"
)

// Task represents a task row.
type Task struct {
	ID           string       `db:"id" json:"id"`
	Title        string       `db:"title" json:"title"`
	Description  *string      `db:"description" json:"description,omitempty"`
	Status       TaskStatus   `db:"status" json:"status"`
	Priority     TaskPriority `db:"priority" json:"priority"`
	DueDate      *time.Time   `db:"due_date" json:"due_date,omitempty"`
	AssignedToID *string      `db:"assigned_to_id" json:"-"`
	ProjectID    string       `db:"project_id" json:"project_id"`
	StageID      *string      `db:"stage_id" json:"stage_id,omitempty"`
	CreatedByID  string       `db:"created_by_id" json:"-"`
	CompletedAt  *time.Time   `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time    `db:"updated_at" json:"updated_at"`
}

// TaskWithNames joins assignee/creator foreign keys to display names.
type TaskWithNames struct {
	Task
	AssignedToName *string `db:"assigned_to_name" json:"assigned_to_name,omitempty"`
	CreatedByName  *string `db:"created_by_name" json:"created_by_name,omitempty"`
}

// TaskFilter captures listing criteria.
type TaskFilter struct {
	Status       string
	ProjectID    string
	StageID      string
	AssignedToID string
	// AccessibleProjectIDs restricts results for non-admin callers; when set,
	// tasks match if assigned to the caller or inside one of these projects.
	AccessibleProjectIDs []string
	CallerID             string
	Limit                int
	Offset               int
}
