package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kerane/projectdesk-api/internal/models"
	appErrors "github.com/kerane/projectdesk-api/pkg/errors"
	"github.com/kerane/projectdesk-api/pkg/export"
)

type reportProjectStore interface {
	GetWithNames(ctx context.Context, id string) (*models.ProjectWithNames, error)
	List(ctx context.Context, filter models.ProjectFilter) ([]models.ProjectWithNames, error)
}

type reportTaskStore interface {
	List(ctx context.Context, filter models.TaskFilter) ([]models.TaskWithNames, error)
}

type reportStageStore interface {
	ListByProject(ctx context.Context, projectID string) ([]models.Stage, error)
}

// ReportService exports project and task data as CSV or PDF files.
type ReportService struct {
	projects reportProjectStore
	tasks    reportTaskStore
	stages   reportStageStore
	csv      *export.CSVExporter
	pdf      *export.PDFExporter
	logger   *zap.Logger
}

// NewReportService constructs the service.
func NewReportService(projects reportProjectStore, tasks reportTaskStore, stages reportStageStore, logger *zap.Logger) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{
		projects: projects,
		tasks:    tasks,
		stages:   stages,
		csv:      export.NewCSVExporter(),
		pdf:      export.NewPDFExporter(),
		logger:   logger,
	}
}

// ReportFile is a rendered export ready to be served.
type ReportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ProjectReport renders a single project's stages and tasks in the requested format.
func (s *ReportService) ProjectReport(ctx context.Context, projectID, format string) (*ReportFile, error) {
	project, err := s.projects.GetWithNames(ctx, projectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "project not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load project")
	}

	stages, err := s.stages.ListByProject(ctx, projectID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load stages")
	}
	tasks, err := s.tasks.List(ctx, models.TaskFilter{ProjectID: projectID, Limit: 1000})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load tasks")
	}

	stageNames := make(map[string]string, len(stages))
	for _, stage := range stages {
		stageNames[stage.ID] = stage.Name
	}

	data := export.Dataset{
		Headers: []string{"Task", "Status", "Priority", "Stage", "Assignee", "Due date"},
	}
	for _, task := range tasks {
		stageName := ""
		if task.StageID != nil {
			stageName = stageNames[*task.StageID]
		}
		data.Rows = append(data.Rows, []string{
			task.Title,
			statusLabel(string(task.Status)),
			string(task.Priority),
			stageName,
			derefString(task.AssignedToName),
			formatDate(task.DueDate),
		})
	}

	title := fmt.Sprintf("Project report: %s", project.Title)
	return s.render(data, title, slugify(project.Title), format)
}

// ProjectsOverview renders a listing of all projects matching the filter.
func (s *ReportService) ProjectsOverview(ctx context.Context, filter models.ProjectFilter, format string) (*ReportFile, error) {
	if filter.Limit <= 0 {
		filter.Limit = 500
	}
	projects, err := s.projects.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list projects")
	}

	data := export.Dataset{
		Headers: []string{"Project", "Status", "Manager", "Start date", "Due date"},
	}
	for _, project := range projects {
		data.Rows = append(data.Rows, []string{
			project.Title,
			statusLabel(string(project.Status)),
			derefString(project.ManagerName),
			formatDate(project.StartDate),
			formatDate(project.DueDate),
		})
	}
	return s.render(data, "Projects overview", "projects", format)
}

func (s *ReportService) render(data export.Dataset, title, baseName, format string) (*ReportFile, error) {
	switch strings.ToLower(format) {
	case "csv", "":
		body, err := s.csv.Render(data)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return &ReportFile{Filename: baseName + ".csv", ContentType: "text/csv", Data: body}, nil
	case "pdf":
		body, err := s.pdf.Render(data, title)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return &ReportFile{Filename: baseName + ".pdf", ContentType: "application/pdf", Data: body}, nil
	}
	return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
}

func slugify(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteByte('-')
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		slug = "report"
	}
	return slug
}
