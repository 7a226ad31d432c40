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

type mockDependencyStore struct {
	deps      []models.TaskDependency
	existing  map[string]bool
	createErr error
	deleteErr error
}

func (m *mockDependencyStore) List(ctx context.Context, taskID string) ([]models.TaskDependency, error) {
	if taskID == "" {
		return m.deps, nil
	}
	var out []models.TaskDependency
	for _, dep := range m.deps {
		if dep.TaskID == taskID {
			out = append(out, dep)
		}
	}
	return out, nil
}

func (m *mockDependencyStore) Exists(ctx context.Context, taskID, dependsOnTaskID string) (bool, error) {
	return m.existing[taskID+"/"+dependsOnTaskID], nil
}

func (m *mockDependencyStore) Create(ctx context.Context, dep *models.TaskDependency) error {
	if m.createErr != nil {
		return m.createErr
	}
	if dep.ID == "" {
		dep.ID = "dep-1"
	}
	m.deps = append(m.deps, *dep)
	return nil
}

func (m *mockDependencyStore) Delete(ctx context.Context, id string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	for i, dep := range m.deps {
		if dep.ID == id {
			m.deps = append(m.deps[:i], m.deps[i+1:]...)
			return nil
		}
	}
	return sql.ErrNoRows
}

type mockDependencyTaskFinder struct {
	tasks map[string]*models.Task
}

func (m *mockDependencyTaskFinder) GetByID(ctx context.Context, id string) (*models.Task, error) {
	task, ok := m.tasks[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return task, nil
}

func dependencyFixture() (*mockDependencyStore, *mockDependencyTaskFinder, *mockActivityWriter) {
	store := &mockDependencyStore{existing: map[string]bool{}}
	finder := &mockDependencyTaskFinder{tasks: map[string]*models.Task{
		"t1": {ID: "t1", Title: "Design schema", Status: models.TaskStatusCompleted, ProjectID: "p1"},
		"t2": {ID: "t2", Title: "Build API", Status: models.TaskStatusTodo, ProjectID: "p1"},
	}}
	return store, finder, &mockActivityWriter{}
}

func TestCreateDependencyLinksTasks(t *testing.T) {
	store, finder, activity := dependencyFixture()
	svc := NewTaskDependencyService(store, finder, activity, nil, nil)

	dep, err := svc.Create(context.Background(), snapshot("m1", "Max", "max@corp.test", models.RoleProjectManager), dto.CreateTaskDependencyRequest{
		TaskID:          "t2",
		DependsOnTaskID: "t1",
	})
	require.NoError(t, err)
	assert.Equal(t, models.DependencyFinishToStart, dep.Type)
	require.NotNil(t, dep.Task)
	require.NotNil(t, dep.DependsOnTask)
	assert.Equal(t, "Build API", dep.Task.Title)
	assert.Equal(t, "Design schema", dep.DependsOnTask.Title)

	require.Len(t, activity.entries, 1)
	assert.Equal(t, "task_dependency", activity.entries[0].EntityType)
	assert.Equal(t, "Created dependency: Task Build API depends on Task Design schema", activity.entries[0].Details)
}

func TestCreateDependencyRejectsSelfReference(t *testing.T) {
	store, finder, activity := dependencyFixture()
	svc := NewTaskDependencyService(store, finder, activity, nil, nil)

	_, err := svc.Create(context.Background(), snapshot("m1", "Max", "max@corp.test", models.RoleProjectManager), dto.CreateTaskDependencyRequest{
		TaskID:          "t1",
		DependsOnTaskID: "t1",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Empty(t, store.deps)
}

func TestCreateDependencyRequiresBothTasks(t *testing.T) {
	store, finder, activity := dependencyFixture()
	svc := NewTaskDependencyService(store, finder, activity, nil, nil)

	_, err := svc.Create(context.Background(), snapshot("m1", "Max", "max@corp.test", models.RoleProjectManager), dto.CreateTaskDependencyRequest{
		TaskID:          "t2",
		DependsOnTaskID: "missing",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestCreateDependencyRejectsDuplicate(t *testing.T) {
	store, finder, activity := dependencyFixture()
	store.existing["t2/t1"] = true
	svc := NewTaskDependencyService(store, finder, activity, nil, nil)

	_, err := svc.Create(context.Background(), snapshot("m1", "Max", "max@corp.test", models.RoleProjectManager), dto.CreateTaskDependencyRequest{
		TaskID:          "t2",
		DependsOnTaskID: "t1",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Empty(t, store.deps)
}

func TestCreateDependencyRequiresIDs(t *testing.T) {
	store, finder, activity := dependencyFixture()
	svc := NewTaskDependencyService(store, finder, activity, nil, nil)

	_, err := svc.Create(context.Background(), snapshot("m1", "Max", "max@corp.test", models.RoleProjectManager), dto.CreateTaskDependencyRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestDeleteDependencyRecordsActivity(t *testing.T) {
	store, finder, activity := dependencyFixture()
	store.deps = []models.TaskDependency{{ID: "dep-9", TaskID: "t2", DependsOnTaskID: "t1"}}
	svc := NewTaskDependencyService(store, finder, activity, nil, nil)

	err := svc.Delete(context.Background(), snapshot("a1", "Eve", "eve@corp.test", models.RoleAdmin), "dep-9")
	require.NoError(t, err)
	assert.Empty(t, store.deps)
	require.Len(t, activity.entries, 1)
	assert.Equal(t, "Deleted task dependency dep-9", activity.entries[0].Details)
}

func TestDeleteDependencyNotFound(t *testing.T) {
	store, finder, activity := dependencyFixture()
	svc := NewTaskDependencyService(store, finder, activity, nil, nil)

	err := svc.Delete(context.Background(), snapshot("a1", "Eve", "eve@corp.test", models.RoleAdmin), "nope")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
