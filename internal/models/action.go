package models

import "time"

// ActionType identifies the business action driving a notification dispatch.
type ActionType string

const (
	ActionTaskCreated       ActionType = "TASK_CREATED"
	ActionTaskUpdated       ActionType = "TASK_UPDATED"
	ActionTaskStatusChanged ActionType = "TASK_STATUS_CHANGED"
	ActionTaskAssigned      ActionType = "TASK_ASSIGNED"
	ActionTaskCompleted     ActionType = "TASK_COMPLETED"
	ActionTaskRejected      ActionType = "TASK_REJECTED"
	ActionProjectCreated    ActionType = "PROJECT_CREATED"
	ActionProjectUpdated    ActionType = "PROJECT_UPDATED"
	ActionStageCreated      ActionType = "STAGE_CREATED"
	ActionStageUpdated      ActionType = "STAGE_UPDATED"
	ActionStageCompleted    ActionType = "STAGE_COMPLETED"
)

// EntityKind names the entity a notification is about.
type EntityKind string

const (
	EntityTask    EntityKind = "task"
	EntityProject EntityKind = "project"
	EntityStage   EntityKind = "stage"
)

// EntitySnapshot is the read-only post-mutation state of the entity an action
// touched. Field use varies by kind; absent values stay zero.
type EntitySnapshot struct {
	Kind        EntityKind
	ID          string
	Title       string
	Description string
	Status      string
	Priority    string
	DueDate     *time.Time
}

// ActionMeta is the closed set of per-action template payloads. Each action
// type carries exactly the fields its email template needs, so a missing field
// is a compile error rather than a nil map lookup.
type ActionMeta interface {
	actionMeta()
}

// AssignmentMeta accompanies TASK_CREATED / TASK_ASSIGNED.
type AssignmentMeta struct {
	ProjectName       string
	AssigneeName      string
	ConfirmationToken string
}

// StatusChangeMeta accompanies TASK_STATUS_CHANGED / STAGE_UPDATED.
type StatusChangeMeta struct {
	ProjectName       string
	ProjectID         string
	OldStatus         string
	NewStatus         string
	Comment           string
	ConfirmationToken string
}

// UpdateMeta accompanies TASK_UPDATED / PROJECT_UPDATED.
type UpdateMeta struct {
	ProjectName string
	Changes     string
}

// CompletionMeta accompanies TASK_COMPLETED.
type CompletionMeta struct {
	ProjectName string
	Comment     string
}

// StageCompletionMeta accompanies STAGE_COMPLETED.
type StageCompletionMeta struct {
	ProjectName   string
	ProjectID     string
	NextStageName string
}

// ProjectMeta accompanies PROJECT_CREATED / STAGE_CREATED.
type ProjectMeta struct {
	ManagerName string
}

func (AssignmentMeta) actionMeta()      {}
func (StatusChangeMeta) actionMeta()    {}
func (UpdateMeta) actionMeta()          {}
func (CompletionMeta) actionMeta()      {}
func (StageCompletionMeta) actionMeta() {}
func (ProjectMeta) actionMeta()         {}

// ActionContext describes one committed business action for notification
// dispatch. It is built fresh inside a handler-driven service call after the
// mutation commits and is never persisted.
type ActionContext struct {
	ActionType ActionType
	// PerformedBy is an immutable snapshot of the actor, not a live reference.
	PerformedBy UserSnapshot
	Entity      EntitySnapshot
	// AffectedUsers is ordered; dispatch deduplicates by email.
	AffectedUsers []UserSnapshot
	ProjectID     string
	Meta          ActionMeta
}
