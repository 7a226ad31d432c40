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

type mockStageRepo struct {
	stages       map[string]*models.Stage
	byOrder      map[int]*models.Stage
	completed    []string
	activated    []string
	activateFail bool
}

func (m *mockStageRepo) Create(ctx context.Context, stage *models.Stage) error {
	if m.stages == nil {
		m.stages = make(map[string]*models.Stage)
	}
	if stage.ID == "" {
		stage.ID = "new-stage"
	}
	m.stages[stage.ID] = stage
	return nil
}

func (m *mockStageRepo) GetByID(ctx context.Context, id string) (*models.Stage, error) {
	if stage, ok := m.stages[id]; ok {
		copy := *stage
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockStageRepo) ListByProject(ctx context.Context, projectID string) ([]models.Stage, error) {
	return nil, nil
}

func (m *mockStageRepo) FindByOrder(ctx context.Context, projectID string, order int) (*models.Stage, error) {
	if stage, ok := m.byOrder[order]; ok {
		copy := *stage
		return &copy, nil
	}
	return nil, nil
}

func (m *mockStageRepo) Update(ctx context.Context, id string, changes map[string]interface{}) error {
	stage, ok := m.stages[id]
	if !ok {
		return sql.ErrNoRows
	}
	if name, ok := changes["name"].(string); ok {
		stage.Name = name
	}
	if status, ok := changes["status"].(models.StageStatus); ok {
		stage.Status = status
	}
	return nil
}

func (m *mockStageRepo) MarkCompleted(ctx context.Context, id string) (bool, error) {
	stage, ok := m.stages[id]
	if !ok || stage.Status == models.StageStatusCompleted {
		return false, nil
	}
	stage.Status = models.StageStatusCompleted
	m.completed = append(m.completed, id)
	return true, nil
}

func (m *mockStageRepo) ActivateIfPending(ctx context.Context, id string) (bool, error) {
	m.activated = append(m.activated, id)
	if m.activateFail {
		return false, nil
	}
	stage, ok := m.stages[id]
	if !ok || stage.Status != models.StageStatusPending {
		return false, nil
	}
	stage.Status = models.StageStatusInProgress
	return true, nil
}

func (m *mockStageRepo) Delete(ctx context.Context, id string) error {
	delete(m.stages, id)
	return nil
}

type mockStageTaskCounter struct {
	incomplete map[string]int
}

func (m *mockStageTaskCounter) CountIncompleteByStage(ctx context.Context, stageID string) (int, error) {
	return m.incomplete[stageID], nil
}

type mockStageProjectStore struct {
	project   *models.Project
	manager   *models.User
	doneWins  int
	doneCalls int
}

func (m *mockStageProjectStore) GetByID(ctx context.Context, id string) (*models.Project, error) {
	if m.project == nil {
		return nil, sql.ErrNoRows
	}
	copy := *m.project
	return &copy, nil
}

func (m *mockStageProjectStore) GetManager(ctx context.Context, projectID string) (*models.User, error) {
	return m.manager, nil
}

func (m *mockStageProjectStore) MarkCompletedIfAllStagesDone(ctx context.Context, projectID string) (bool, error) {
	m.doneCalls++
	if m.doneWins > 0 {
		m.doneWins--
		return true, nil
	}
	return false, nil
}

type mockDispatcher struct {
	actions []models.ActionContext
}

func (m *mockDispatcher) Dispatch(ctx context.Context, action models.ActionContext) {
	m.actions = append(m.actions, action)
}

type mockInAppNotifier struct {
	notifications []models.Notification
}

func (m *mockInAppNotifier) Create(ctx context.Context, notification *models.Notification) error {
	m.notifications = append(m.notifications, *notification)
	return nil
}

func stageFixture() (*mockStageRepo, *mockStageTaskCounter, *mockStageProjectStore, *mockDispatcher, *mockInAppNotifier) {
	managerID := "m1"
	stages := &mockStageRepo{
		stages: map[string]*models.Stage{
			"s1": {ID: "s1", ProjectID: "p1", Name: "Design", Order: 1, Status: models.StageStatusInProgress, CreatedByID: "a1"},
			"s2": {ID: "s2", ProjectID: "p1", Name: "Build", Order: 2, Status: models.StageStatusPending, CreatedByID: "a1"},
		},
	}
	stages.byOrder = map[int]*models.Stage{2: stages.stages["s2"]}
	tasks := &mockStageTaskCounter{incomplete: map[string]int{}}
	projects := &mockStageProjectStore{
		project: &models.Project{ID: "p1", Title: "Apollo", ManagerID: &managerID, CreatedByID: "a1", Status: models.ProjectStatusActive},
		manager: &models.User{ID: "m1", Name: "Max", Email: "max@corp.test", Role: models.RoleProjectManager},
	}
	return stages, tasks, projects, &mockDispatcher{}, &mockInAppNotifier{}
}

func TestCompleteRejectsIncompleteTasks(t *testing.T) {
	stages, tasks, projects, dispatcher, inApp := stageFixture()
	tasks.incomplete["s1"] = 3
	svc := NewStageService(stages, tasks, projects, nil, nil, dispatcher, inApp, &mockActivityWriter{}, nil, nil)

	_, err := svc.Complete(context.Background(), snapshot("a1", "Alice", "alice@corp.test", models.RoleAdmin), "s1")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrIncompleteTasks.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "3 task(s)")

	// untouched stage, no cascade
	assert.Empty(t, stages.completed)
	assert.Equal(t, models.StageStatusInProgress, stages.stages["s1"].Status)
	assert.Zero(t, projects.doneCalls)
	assert.Empty(t, dispatcher.actions)
}

func TestCompleteActivatesNextStage(t *testing.T) {
	stages, tasks, projects, dispatcher, inApp := stageFixture()
	activity := &mockActivityWriter{}
	svc := NewStageService(stages, tasks, projects, nil, nil, dispatcher, inApp, activity, nil, nil)

	result, err := svc.Complete(context.Background(), snapshot("a1", "Alice", "alice@corp.test", models.RoleAdmin), "s1")
	require.NoError(t, err)

	assert.Equal(t, models.StageStatusCompleted, result.Stage.Status)
	assert.False(t, result.AllStagesCompleted)
	require.True(t, result.NextStageActivated)
	assert.Equal(t, "s2", result.NextStage.ID)
	assert.Equal(t, models.StageStatusInProgress, result.NextStage.Status)
	assert.Equal(t, models.StageStatusInProgress, stages.stages["s2"].Status)

	require.Len(t, dispatcher.actions, 1)
	action := dispatcher.actions[0]
	assert.Equal(t, models.ActionStageCompleted, action.ActionType)
	meta, ok := action.Meta.(models.StageCompletionMeta)
	require.True(t, ok)
	assert.Equal(t, "Apollo", meta.ProjectName)
	assert.Equal(t, "Build", meta.NextStageName)
}

func TestCompleteAlreadyCompletedConflicts(t *testing.T) {
	stages, tasks, projects, dispatcher, inApp := stageFixture()
	stages.stages["s1"].Status = models.StageStatusCompleted
	svc := NewStageService(stages, tasks, projects, nil, nil, dispatcher, inApp, &mockActivityWriter{}, nil, nil)

	_, err := svc.Complete(context.Background(), snapshot("a1", "Alice", "alice@corp.test", models.RoleAdmin), "s1")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestCompleteNoSuccessorActivatesNothing(t *testing.T) {
	stages, tasks, projects, dispatcher, inApp := stageFixture()
	delete(stages.byOrder, 2)
	svc := NewStageService(stages, tasks, projects, nil, nil, dispatcher, inApp, &mockActivityWriter{}, nil, nil)

	result, err := svc.Complete(context.Background(), snapshot("a1", "Alice", "alice@corp.test", models.RoleAdmin), "s1")
	require.NoError(t, err)
	assert.False(t, result.NextStageActivated)
	assert.Nil(t, result.NextStage)
	assert.Empty(t, stages.activated)
}

func TestCompleteSuccessorAlreadyRunningIsNotReactivated(t *testing.T) {
	stages, tasks, projects, dispatcher, inApp := stageFixture()
	stages.stages["s2"].Status = models.StageStatusInProgress
	svc := NewStageService(stages, tasks, projects, nil, nil, dispatcher, inApp, &mockActivityWriter{}, nil, nil)

	result, err := svc.Complete(context.Background(), snapshot("a1", "Alice", "alice@corp.test", models.RoleAdmin), "s1")
	require.NoError(t, err)
	assert.False(t, result.NextStageActivated)
	require.NotNil(t, result.NextStage)
	assert.Equal(t, "s2", result.NextStage.ID)
}

func TestCompleteLastStageCompletesProject(t *testing.T) {
	stages, tasks, projects, dispatcher, inApp := stageFixture()
	delete(stages.stages, "s2")
	delete(stages.byOrder, 2)
	projects.doneWins = 1
	svc := NewStageService(stages, tasks, projects, nil, nil, dispatcher, inApp, &mockActivityWriter{}, nil, nil)

	result, err := svc.Complete(context.Background(), snapshot("a1", "Alice", "alice@corp.test", models.RoleAdmin), "s1")
	require.NoError(t, err)
	assert.True(t, result.AllStagesCompleted)

	// manager and creator each get one project-done notification
	require.Len(t, inApp.notifications, 2)
	targets := map[string]bool{}
	for _, n := range inApp.notifications {
		assert.Equal(t, models.NotificationProjectCompleted, n.Type)
		targets[n.UserID] = true
	}
	assert.True(t, targets["m1"])
	assert.True(t, targets["a1"])
}

func TestCompleteProjectDoneFiresOnlyForTheWinner(t *testing.T) {
	stages, tasks, projects, dispatcher, inApp := stageFixture()
	delete(stages.stages, "s2")
	delete(stages.byOrder, 2)
	// the conditional update already matched for a concurrent caller
	projects.doneWins = 0
	svc := NewStageService(stages, tasks, projects, nil, nil, dispatcher, inApp, &mockActivityWriter{}, nil, nil)

	result, err := svc.Complete(context.Background(), snapshot("a1", "Alice", "alice@corp.test", models.RoleAdmin), "s1")
	require.NoError(t, err)
	assert.False(t, result.AllStagesCompleted)
	assert.Empty(t, inApp.notifications)
	assert.Equal(t, 1, projects.doneCalls)
}

func TestUpdateStatusChangeNotifiesCreatorWithAcknowledgement(t *testing.T) {
	stages, tasks, projects, dispatcher, inApp := stageFixture()
	users := &mockUserFinder{users: map[string]*models.User{
		"a1": {ID: "a1", Name: "Eve", Email: "eve@corp.test", Role: models.RoleEmployee},
	}}
	issuer := &mockTokenIssuer{}
	svc := NewStageService(stages, tasks, projects, users, issuer, dispatcher, inApp, &mockActivityWriter{}, nil, nil)

	status := string(models.StageStatusInProgress)
	updated, err := svc.Update(context.Background(), snapshot("m1", "Max", "max@corp.test", models.RoleProjectManager), "s2", dto.UpdateStageRequest{
		Status:  &status,
		Comment: "kicking off",
	})
	require.NoError(t, err)
	assert.Equal(t, models.StageStatusInProgress, updated.Status)

	require.Len(t, issuer.issued, 1)
	assert.Equal(t, models.ConfirmStageStatusChange, issuer.issued[0].confirmType)
	assert.Equal(t, "a1", issuer.issued[0].userID)
	assert.Equal(t, string(models.StageStatusPending), issuer.issued[0].meta.OldStatus)
	assert.Equal(t, string(models.StageStatusInProgress), issuer.issued[0].meta.NewStatus)

	require.Len(t, dispatcher.actions, 1)
	action := dispatcher.actions[0]
	assert.Equal(t, models.ActionStageUpdated, action.ActionType)
	meta, ok := action.Meta.(models.StatusChangeMeta)
	require.True(t, ok)
	assert.Equal(t, "issued-token", meta.ConfirmationToken)
	assert.Equal(t, "Apollo", meta.ProjectName)
	assert.Equal(t, "kicking off", meta.Comment)
	require.Len(t, action.AffectedUsers, 1)
	assert.Equal(t, "eve@corp.test", action.AffectedUsers[0].Email)
}

func TestUpdateUnchangedStatusDoesNotDispatch(t *testing.T) {
	stages, tasks, projects, dispatcher, inApp := stageFixture()
	issuer := &mockTokenIssuer{}
	svc := NewStageService(stages, tasks, projects, &mockUserFinder{}, issuer, dispatcher, inApp, &mockActivityWriter{}, nil, nil)

	status := string(models.StageStatusInProgress)
	_, err := svc.Update(context.Background(), snapshot("m1", "Max", "max@corp.test", models.RoleProjectManager), "s1", dto.UpdateStageRequest{Status: &status})
	require.NoError(t, err)

	assert.Empty(t, issuer.issued)
	assert.Empty(t, dispatcher.actions)
}

func TestUpdateStatusChangeByCreatorSkipsToken(t *testing.T) {
	stages, tasks, projects, dispatcher, inApp := stageFixture()
	users := &mockUserFinder{users: map[string]*models.User{
		"a1": {ID: "a1", Name: "Eve", Email: "eve@corp.test", Role: models.RoleEmployee},
	}}
	issuer := &mockTokenIssuer{}
	svc := NewStageService(stages, tasks, projects, users, issuer, dispatcher, inApp, &mockActivityWriter{}, nil, nil)

	status := string(models.StageStatusInProgress)
	_, err := svc.Update(context.Background(), snapshot("a1", "Eve", "eve@corp.test", models.RoleEmployee), "s2", dto.UpdateStageRequest{Status: &status})
	require.NoError(t, err)

	assert.Empty(t, issuer.issued)
	require.Len(t, dispatcher.actions, 1)
	assert.Empty(t, dispatcher.actions[0].AffectedUsers)
}

func TestCompleteByAdminStillMailsManager(t *testing.T) {
	stages, tasks, projects, _, inApp := stageFixture()
	mail := &mockMailer{}
	admins := &mockAdminLister{admins: []models.User{
		{ID: "a1", Name: "Alice", Email: "alice@corp.test", Role: models.RoleAdmin},
	}}
	resolver := &mockManagerResolver{manager: projects.manager}
	notifier := NewNotificationService(admins, resolver, nil, mail, "https://app.test", 0, nil)
	svc := NewStageService(stages, tasks, projects, nil, nil, notifier, inApp, &mockActivityWriter{}, nil, nil)

	_, err := svc.Complete(context.Background(), snapshot("a1", "Alice", "alice@corp.test", models.RoleAdmin), "s1")
	require.NoError(t, err)

	mailed := make([]string, 0, len(mail.sent))
	for _, msg := range mail.sent {
		mailed = append(mailed, msg.To)
	}
	assert.Contains(t, mailed, "max@corp.test")
}

func TestCompleteDispatchCarriesManagerAsAffected(t *testing.T) {
	stages, tasks, projects, dispatcher, inApp := stageFixture()
	svc := NewStageService(stages, tasks, projects, nil, nil, dispatcher, inApp, &mockActivityWriter{}, nil, nil)

	_, err := svc.Complete(context.Background(), snapshot("a1", "Alice", "alice@corp.test", models.RoleAdmin), "s1")
	require.NoError(t, err)

	require.Len(t, dispatcher.actions, 1)
	require.Len(t, dispatcher.actions[0].AffectedUsers, 1)
	assert.Equal(t, "max@corp.test", dispatcher.actions[0].AffectedUsers[0].Email)
}
