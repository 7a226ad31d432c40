package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kerane/projectdesk-api/internal/dto"
	"github.com/kerane/projectdesk-api/internal/models"
	appErrors "github.com/kerane/projectdesk-api/pkg/errors"
)

type mockTaskRepo struct {
	tasks   map[string]*models.Task
	updates []map[string]interface{}
}

func (m *mockTaskRepo) Create(ctx context.Context, task *models.Task) error {
	if m.tasks == nil {
		m.tasks = make(map[string]*models.Task)
	}
	if task.ID == "" {
		task.ID = "new-task"
	}
	if task.Status == "" {
		task.Status = models.TaskStatusTodo
	}
	m.tasks[task.ID] = task
	return nil
}

func (m *mockTaskRepo) GetByID(ctx context.Context, id string) (*models.Task, error) {
	if task, ok := m.tasks[id]; ok {
		copy := *task
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockTaskRepo) GetWithNames(ctx context.Context, id string) (*models.TaskWithNames, error) {
	if task, ok := m.tasks[id]; ok {
		return &models.TaskWithNames{Task: *task}, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockTaskRepo) List(ctx context.Context, filter models.TaskFilter) ([]models.TaskWithNames, error) {
	return nil, nil
}

func (m *mockTaskRepo) Update(ctx context.Context, id string, changes map[string]interface{}) error {
	task, ok := m.tasks[id]
	if !ok {
		return sql.ErrNoRows
	}
	m.updates = append(m.updates, changes)
	if status, ok := changes["status"]; ok {
		task.Status = status.(models.TaskStatus)
	}
	if assignee, ok := changes["assigned_to_id"]; ok {
		id := assignee.(string)
		task.AssignedToID = &id
	}
	return nil
}

func (m *mockTaskRepo) Delete(ctx context.Context, id string) error {
	delete(m.tasks, id)
	return nil
}

type mockTaskProjectStore struct {
	projects   map[string]*models.Project
	accessible []string
}

func (m *mockTaskProjectStore) GetByID(ctx context.Context, id string) (*models.Project, error) {
	if project, ok := m.projects[id]; ok {
		return project, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockTaskProjectStore) ListAccessibleIDs(ctx context.Context, userID string) ([]string, error) {
	return m.accessible, nil
}

type issuedToken struct {
	confirmType models.ConfirmationType
	userID      string
	entityID    string
	meta        models.TokenMetadata
}

type mockTokenIssuer struct {
	issued []issuedToken
}

func (m *mockTokenIssuer) Issue(ctx context.Context, confirmType models.ConfirmationType, userID, entityType, entityID string, meta models.TokenMetadata) string {
	m.issued = append(m.issued, issuedToken{confirmType: confirmType, userID: userID, entityID: entityID, meta: meta})
	return "issued-token"
}

func taskFixture() (*mockTaskRepo, *mockTaskProjectStore, *mockUserFinder, *mockTokenIssuer, *mockDispatcher) {
	assignee := "e1"
	tasks := &mockTaskRepo{tasks: map[string]*models.Task{
		"t1": {ID: "t1", Title: "Wire the API", Status: models.TaskStatusTodo, Priority: models.TaskPriorityMedium, ProjectID: "p1", AssignedToID: &assignee, CreatedByID: "m1"},
	}}
	projects := &mockTaskProjectStore{projects: map[string]*models.Project{
		"p1": {ID: "p1", Title: "Apollo", Status: models.ProjectStatusActive, CreatedByID: "a1"},
	}}
	users := &mockUserFinder{users: map[string]*models.User{
		"e1": {ID: "e1", Name: "Eve", Email: "eve@corp.test", Role: models.RoleEmployee},
		"e2": {ID: "e2", Name: "Omar", Email: "omar@corp.test", Role: models.RoleEmployee},
	}}
	return tasks, projects, users, &mockTokenIssuer{}, &mockDispatcher{}
}

func TestCreateAssignedTaskIssuesConfirmation(t *testing.T) {
	tasks, projects, users, issuer, dispatcher := taskFixture()
	svc := NewTaskService(tasks, projects, users, issuer, dispatcher, &mockActivityWriter{}, nil, nil)

	assignee := "e1"
	created, err := svc.Create(context.Background(), snapshot("m1", "Max", "max@corp.test", models.RoleProjectManager), dto.CreateTaskRequest{
		Title:        "Ship it",
		ProjectID:    "p1",
		AssignedToID: &assignee,
	})
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusTodo, created.Status)
	assert.Equal(t, models.TaskPriorityMedium, created.Priority)

	require.Len(t, issuer.issued, 1)
	assert.Equal(t, models.ConfirmTaskAssignment, issuer.issued[0].confirmType)
	assert.Equal(t, "e1", issuer.issued[0].userID)
	assert.Equal(t, "Apollo", issuer.issued[0].meta.ProjectName)

	require.Len(t, dispatcher.actions, 1)
	action := dispatcher.actions[0]
	assert.Equal(t, models.ActionTaskCreated, action.ActionType)
	require.Len(t, action.AffectedUsers, 1)
	assert.Equal(t, "eve@corp.test", action.AffectedUsers[0].Email)
	meta, ok := action.Meta.(models.AssignmentMeta)
	require.True(t, ok)
	assert.Equal(t, "issued-token", meta.ConfirmationToken)
}

func TestCreateUnassignedTaskSkipsNotification(t *testing.T) {
	tasks, projects, users, issuer, dispatcher := taskFixture()
	svc := NewTaskService(tasks, projects, users, issuer, dispatcher, &mockActivityWriter{}, nil, nil)

	_, err := svc.Create(context.Background(), snapshot("m1", "Max", "max@corp.test", models.RoleProjectManager), dto.CreateTaskRequest{
		Title:     "Backlog item",
		ProjectID: "p1",
	})
	require.NoError(t, err)
	assert.Empty(t, issuer.issued)
	assert.Empty(t, dispatcher.actions)
}

func TestUpdateReassignmentIssuesFreshToken(t *testing.T) {
	tasks, projects, users, issuer, dispatcher := taskFixture()
	svc := NewTaskService(tasks, projects, users, issuer, dispatcher, &mockActivityWriter{}, nil, nil)

	newAssignee := "e2"
	_, err := svc.Update(context.Background(), snapshot("m1", "Max", "max@corp.test", models.RoleProjectManager), "t1", dto.UpdateTaskRequest{
		AssignedToID: &newAssignee,
	})
	require.NoError(t, err)

	require.Len(t, issuer.issued, 1)
	assert.Equal(t, models.ConfirmTaskAssignment, issuer.issued[0].confirmType)
	assert.Equal(t, "e2", issuer.issued[0].userID)

	require.Len(t, dispatcher.actions, 1)
	assert.Equal(t, models.ActionTaskAssigned, dispatcher.actions[0].ActionType)
	require.Len(t, dispatcher.actions[0].AffectedUsers, 1)
	assert.Equal(t, "omar@corp.test", dispatcher.actions[0].AffectedUsers[0].Email)
}

func TestUpdateStatusByManagerAsksAssigneeToAcknowledge(t *testing.T) {
	tasks, projects, users, issuer, dispatcher := taskFixture()
	svc := NewTaskService(tasks, projects, users, issuer, dispatcher, &mockActivityWriter{}, nil, nil)

	status := "IN_PROGRESS"
	_, err := svc.Update(context.Background(), snapshot("m1", "Max", "max@corp.test", models.RoleProjectManager), "t1", dto.UpdateTaskRequest{
		Status: &status,
	})
	require.NoError(t, err)

	require.Len(t, issuer.issued, 1)
	assert.Equal(t, models.ConfirmTaskStatusChange, issuer.issued[0].confirmType)
	assert.Equal(t, "e1", issuer.issued[0].userID)
	assert.Equal(t, "TODO", issuer.issued[0].meta.OldStatus)
	assert.Equal(t, "IN_PROGRESS", issuer.issued[0].meta.NewStatus)

	require.Len(t, dispatcher.actions, 1)
	meta, ok := dispatcher.actions[0].Meta.(models.StatusChangeMeta)
	require.True(t, ok)
	assert.Equal(t, "issued-token", meta.ConfirmationToken)
}

func TestUpdateStatusByAssigneeNeedsNoAcknowledgement(t *testing.T) {
	tasks, projects, users, issuer, dispatcher := taskFixture()
	svc := NewTaskService(tasks, projects, users, issuer, dispatcher, &mockActivityWriter{}, nil, nil)

	status := "IN_PROGRESS"
	_, err := svc.Update(context.Background(), snapshot("e1", "Eve", "eve@corp.test", models.RoleEmployee), "t1", dto.UpdateTaskRequest{
		Status: &status,
	})
	require.NoError(t, err)
	assert.Empty(t, issuer.issued)
	require.Len(t, dispatcher.actions, 1)
	assert.Equal(t, models.ActionTaskStatusChanged, dispatcher.actions[0].ActionType)
}

func TestUpdateToCompletedRecordsCompletionTime(t *testing.T) {
	tasks, projects, users, issuer, dispatcher := taskFixture()
	svc := NewTaskService(tasks, projects, users, issuer, dispatcher, &mockActivityWriter{}, nil, nil)

	status := "COMPLETED"
	_, err := svc.Update(context.Background(), snapshot("e1", "Eve", "eve@corp.test", models.RoleEmployee), "t1", dto.UpdateTaskRequest{
		Status:  &status,
		Comment: "done early",
	})
	require.NoError(t, err)

	require.Len(t, tasks.updates, 1)
	assert.Contains(t, tasks.updates[0], "completed_at")

	require.Len(t, dispatcher.actions, 1)
	assert.Equal(t, models.ActionTaskCompleted, dispatcher.actions[0].ActionType)
	meta, ok := dispatcher.actions[0].Meta.(models.CompletionMeta)
	require.True(t, ok)
	assert.Equal(t, "done early", meta.Comment)
}

func TestUpdateRejectsUnknownStatus(t *testing.T) {
	tasks, projects, users, issuer, dispatcher := taskFixture()
	svc := NewTaskService(tasks, projects, users, issuer, dispatcher, &mockActivityWriter{}, nil, nil)

	status := "Completed"
	_, err := svc.Update(context.Background(), snapshot("e1", "Eve", "eve@corp.test", models.RoleEmployee), "t1", dto.UpdateTaskRequest{
		Status: &status,
	})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestRejectLeavesStatusUnchanged(t *testing.T) {
	tasks, projects, users, issuer, dispatcher := taskFixture()
	activity := &mockActivityWriter{}
	svc := NewTaskService(tasks, projects, users, issuer, dispatcher, activity, nil, nil)

	task, err := svc.Reject(context.Background(), snapshot("e1", "Eve", "eve@corp.test", models.RoleEmployee), "t1", dto.RejectTaskRequest{
		Reason: "not my module",
	})
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusTodo, task.Status)
	assert.Equal(t, models.TaskStatusTodo, tasks.tasks["t1"].Status)
	assert.Empty(t, tasks.updates)

	require.Len(t, activity.entries, 1)
	assert.Equal(t, models.ActivityActionReject, activity.entries[0].Action)
	assert.Contains(t, activity.entries[0].Details, "not my module")

	require.Len(t, dispatcher.actions, 1)
	assert.Equal(t, models.ActionTaskRejected, dispatcher.actions[0].ActionType)
	meta, ok := dispatcher.actions[0].Meta.(models.StatusChangeMeta)
	require.True(t, ok)
	assert.Equal(t, "not my module", meta.Comment)
}

func TestRejectRequiresAssignee(t *testing.T) {
	tasks, projects, users, issuer, dispatcher := taskFixture()
	svc := NewTaskService(tasks, projects, users, issuer, dispatcher, &mockActivityWriter{}, nil, nil)

	_, err := svc.Reject(context.Background(), snapshot("e2", "Omar", "omar@corp.test", models.RoleEmployee), "t1", dto.RejectTaskRequest{
		Reason: "wrong person",
	})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
	assert.Empty(t, dispatcher.actions)
}

func TestRejectRequiresReason(t *testing.T) {
	tasks, projects, users, issuer, dispatcher := taskFixture()
	svc := NewTaskService(tasks, projects, users, issuer, dispatcher, &mockActivityWriter{}, nil, nil)

	_, err := svc.Reject(context.Background(), snapshot("e1", "Eve", "eve@corp.test", models.RoleEmployee), "t1", dto.RejectTaskRequest{})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}
