package models

import "time"

// Document represents stored file metadata.
type Document struct {
	ID           string    `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	FilePath     string    `db:"file_path" json:"-"`
	MimeType     string    `db:"mime_type" json:"mime_type"`
	SizeBytes    int64     `db:"size_bytes" json:"size_bytes"`
	ProjectID    *string   `db:"project_id" json:"project_id,omitempty"`
	TaskID       *string   `db:"task_id" json:"task_id,omitempty"`
	UploadedByID string    `db:"uploaded_by_id" json:"uploaded_by_id"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// DocumentFilter captures listing criteria.
type DocumentFilter struct {
	ProjectID string
	TaskID    string
	Limit     int
	Offset    int
}
