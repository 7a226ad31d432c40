package dto

// CreateProjectRequest defines the payload for creating a project.
type CreateProjectRequest struct {
	Title       string  `json:"title" validate:"required"`
	Description *string `json:"description"`
	ManagerID   *string `json:"manager_id"`
	StartDate   *string `json:"start_date"`
	DueDate     *string `json:"due_date"`
}

// UpdateProjectRequest defines the partial-update payload for a project.
type UpdateProjectRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
	ManagerID   *string `json:"manager_id"`
	StartDate   *string `json:"start_date"`
	DueDate     *string `json:"due_date"`
}

// ProjectQuery mirrors supported listing filters.
type ProjectQuery struct {
	Status string `form:"status"`
	Limit  int    `form:"limit"`
	Offset int    `form:"offset"`
}
