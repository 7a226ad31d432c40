package models

import "time"

// DependencyFinishToStart is the default ordering constraint between tasks.
const DependencyFinishToStart = "FINISH_TO_START"

// TaskRef is a minimal task reference embedded in dependency listings.
type TaskRef struct {
	ID     string     `json:"id"`
	Title  string     `json:"title"`
	Status TaskStatus `json:"status"`
}

// TaskDependency links a task to another task it depends on.
type TaskDependency struct {
	ID              string    `db:"id" json:"id"`
	TaskID          string    `db:"task_id" json:"task_id"`
	DependsOnTaskID string    `db:"depends_on_task_id" json:"depends_on_task_id"`
	Type            string    `db:"dependency_type" json:"dependency_type"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`

	Task          *TaskRef `db:"-" json:"task,omitempty"`
	DependsOnTask *TaskRef `db:"-" json:"depends_on_task,omitempty"`
}
