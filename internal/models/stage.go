package models

import (
	"fmt"
	"time"
)

// StageStatus is the canonical stage lifecycle state. Legacy spellings such as
// "Completed" or "validated" are rejected rather than treated as synonyms.
type StageStatus string

const (
	StageStatusPending    StageStatus = "PENDING"
	StageStatusInProgress StageStatus = "IN_PROGRESS"
	StageStatusCompleted  StageStatus = "COMPLETED"
)

// ParseStageStatus validates an inbound status value.
func ParseStageStatus(raw string) (StageStatus, error) {
	switch StageStatus(raw) {
	case StageStatusPending, StageStatusInProgress, StageStatusCompleted:
		return StageStatus(raw), nil
	}
	return "", fmt.Errorf("unrecognized stage status %q", raw)
}

// Stage represents an ordered phase of a project.
type Stage struct {
	ID          string      `db:"id" json:"id"`
	ProjectID   string      `db:"project_id" json:"project_id"`
	Name        string      `db:"name" json:"name"`
	Description *string     `db:"description" json:"description,omitempty"`
	Order       int         `db:"stage_order" json:"order"`
	Status      StageStatus `db:"status" json:"status"`
	CreatedByID string      `db:"created_by_id" json:"created_by_id"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at" json:"updated_at"`
}

// StageCompletionResult summarises a completed-stage cascade.
type StageCompletionResult struct {
	Stage              *Stage `json:"stage"`
	AllStagesCompleted bool   `json:"all_stages_completed"`
	NextStageActivated bool   `json:"next_stage_activated"`
	NextStage          *Stage `json:"next_stage,omitempty"`
}
