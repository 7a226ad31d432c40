package dto

// DashboardStats aggregates project/task counts for the dashboard.
type DashboardStats struct {
	ProjectsByStatus map[string]int `json:"projects_by_status"`
	TasksByStatus    map[string]int `json:"tasks_by_status"`
	TotalProjects    int            `json:"total_projects"`
	TotalTasks       int            `json:"total_tasks"`
}
