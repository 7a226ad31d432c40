package dto

// CreateTaskRequest defines the payload for creating a task.
type CreateTaskRequest struct {
	Title        string  `json:"title" validate:"required"`
	Description  *string `json:"description"`
	Status       string  `json:"status"`
	Priority     string  `json:"priority"`
	DueDate      *string `json:"due_date"`
	AssignedToID *string `json:"assigned_to_id"`
	ProjectID    string  `json:"project_id" validate:"required"`
	StageID      *string `json:"stage_id"`
}

// UpdateTaskRequest defines the partial-update payload for a task. A status
// change or reassignment triggers the notification/confirmation flows.
type UpdateTaskRequest struct {
	Title        *string `json:"title"`
	Description  *string `json:"description"`
	Status       *string `json:"status"`
	Priority     *string `json:"priority"`
	DueDate      *string `json:"due_date"`
	AssignedToID *string `json:"assigned_to_id"`
	StageID      *string `json:"stage_id"`
	Comment      string  `json:"comment"`
}

// RejectTaskRequest carries the mandatory rejection reason.
type RejectTaskRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// CreateTaskDependencyRequest links a task to a prerequisite task.
type CreateTaskDependencyRequest struct {
	TaskID          string `json:"task_id" validate:"required"`
	DependsOnTaskID string `json:"depends_on_task_id" validate:"required"`
	DependencyType  string `json:"dependency_type"`
}

// TaskQuery mirrors supported listing filters.
type TaskQuery struct {
	Status    string `form:"status"`
	ProjectID string `form:"project_id"`
	StageID   string `form:"stage_id"`
	Limit     int    `form:"limit"`
	Offset    int    `form:"offset"`
}
