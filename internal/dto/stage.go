package dto

// CreateStageRequest defines the payload for creating a stage.
type CreateStageRequest struct {
	ProjectID   string  `json:"project_id" validate:"required"`
	Name        string  `json:"name" validate:"required"`
	Description *string `json:"description"`
	Order       int     `json:"order" validate:"gte=0"`
}

// UpdateStageRequest defines the partial-update payload for a stage.
type UpdateStageRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Order       *int    `json:"order"`
	Status      *string `json:"status"`
	Comment     string  `json:"comment"`
}
