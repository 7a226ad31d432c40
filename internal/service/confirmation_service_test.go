package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kerane/projectdesk-api/internal/models"
)

type mockConfirmationStore struct {
	records   map[string]*models.ConfirmationToken
	createErr error
}

func (m *mockConfirmationStore) Create(ctx context.Context, token *models.ConfirmationToken) error {
	if m.createErr != nil {
		return m.createErr
	}
	if m.records == nil {
		m.records = make(map[string]*models.ConfirmationToken)
	}
	token.ID = "tok-id"
	m.records[token.Token] = token
	return nil
}

func (m *mockConfirmationStore) GetByToken(ctx context.Context, token string) (*models.ConfirmationToken, error) {
	if record, ok := m.records[token]; ok {
		copy := *record
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockConfirmationStore) MarkConfirmed(ctx context.Context, token string, now time.Time) (bool, error) {
	record, ok := m.records[token]
	if !ok || record.Confirmed || !record.ExpiresAt.After(now) {
		return false, nil
	}
	record.Confirmed = true
	record.ConfirmedAt = &now
	return true, nil
}

type mockTaskStore struct {
	tasks  map[string]*models.Task
	forced map[string]models.TaskStatus
}

func (m *mockTaskStore) GetByID(ctx context.Context, id string) (*models.Task, error) {
	if task, ok := m.tasks[id]; ok {
		return task, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockTaskStore) ForceStatus(ctx context.Context, id string, status models.TaskStatus) error {
	if m.forced == nil {
		m.forced = make(map[string]models.TaskStatus)
	}
	m.forced[id] = status
	if task, ok := m.tasks[id]; ok {
		task.Status = status
	}
	return nil
}

type mockStageStore struct {
	stages map[string]*models.Stage
}

func (m *mockStageStore) GetByID(ctx context.Context, id string) (*models.Stage, error) {
	if stage, ok := m.stages[id]; ok {
		return stage, nil
	}
	return nil, sql.ErrNoRows
}

type mockUserFinder struct {
	users  map[string]*models.User
	admins []models.User
}

func (m *mockUserFinder) FindByID(ctx context.Context, id string) (*models.User, error) {
	if user, ok := m.users[id]; ok {
		return user, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserFinder) ListAdmins(ctx context.Context) ([]models.User, error) {
	return m.admins, nil
}

func newConfirmationFixture(store *mockConfirmationStore, tasks *mockTaskStore, mail *mockMailer) (*ConfirmationService, *mockActivityWriter) {
	activity := &mockActivityWriter{}
	users := &mockUserFinder{
		users: map[string]*models.User{
			"e1": {ID: "e1", Name: "Eve", Email: "eve@corp.test", Role: models.RoleEmployee},
		},
		admins: []models.User{
			{ID: "a1", Name: "Alice", Email: "alice@corp.test", Role: models.RoleAdmin},
		},
	}
	projects := &mockManagerResolver{manager: &models.User{
		ID: "m1", Name: "Max", Email: "max@corp.test", Role: models.RoleProjectManager,
	}}
	svc := NewConfirmationService(store, tasks, &mockStageStore{}, users, projects, activity, mail, 0, 0, nil)
	return svc, activity
}

func TestIssuePersistsTokenWithMetadata(t *testing.T) {
	store := &mockConfirmationStore{}
	svc, _ := newConfirmationFixture(store, &mockTaskStore{}, &mockMailer{})

	token := svc.Issue(context.Background(), models.ConfirmTaskAssignment, "e1", "task", "t1", models.TokenMetadata{
		TaskTitle:   "Wire the API",
		ProjectName: "Apollo",
	})
	require.Len(t, token, 64)

	record := store.records[token]
	require.NotNil(t, record)
	assert.Equal(t, models.ConfirmTaskAssignment, record.Type)
	assert.Equal(t, "e1", record.UserID)
	assert.Equal(t, "task", record.EntityType)
	assert.Equal(t, "t1", record.EntityID)
	assert.WithinDuration(t, time.Now().UTC().Add(7*24*time.Hour), record.ExpiresAt, time.Minute)

	var meta models.TokenMetadata
	require.NoError(t, json.Unmarshal(record.Metadata, &meta))
	assert.Equal(t, "Wire the API", meta.TaskTitle)
	assert.Equal(t, "Apollo", meta.ProjectName)
}

func TestIssueDistinctTokens(t *testing.T) {
	store := &mockConfirmationStore{}
	svc, _ := newConfirmationFixture(store, &mockTaskStore{}, &mockMailer{})

	first := svc.Issue(context.Background(), models.ConfirmTaskAssignment, "e1", "task", "t1", models.TokenMetadata{})
	second := svc.Issue(context.Background(), models.ConfirmTaskAssignment, "e1", "task", "t1", models.TokenMetadata{})
	require.NotEmpty(t, first)
	require.NotEmpty(t, second)
	assert.NotEqual(t, first, second)
}

func TestConsumeSingleUse(t *testing.T) {
	store := &mockConfirmationStore{}
	svc, _ := newConfirmationFixture(store, &mockTaskStore{}, &mockMailer{})

	token := svc.Issue(context.Background(), models.ConfirmTaskAssignment, "e1", "task", "t1", models.TokenMetadata{ProjectName: "Apollo"})
	require.NotEmpty(t, token)

	first, err := svc.Consume(context.Background(), token)
	require.NoError(t, err)
	require.True(t, first.Success)
	require.NotNil(t, first.Payload)
	assert.Equal(t, models.ConfirmTaskAssignment, first.Payload.Type)
	assert.Equal(t, "t1", first.Payload.EntityID)
	assert.Equal(t, "Apollo", first.Payload.Metadata.ProjectName)

	second, err := svc.Consume(context.Background(), token)
	require.NoError(t, err)
	assert.False(t, second.Success)
	assert.Equal(t, models.ConsumeReasonAlreadyUsed, second.Reason)
}

func TestConsumeUnknownToken(t *testing.T) {
	svc, _ := newConfirmationFixture(&mockConfirmationStore{}, &mockTaskStore{}, &mockMailer{})

	result, err := svc.Consume(context.Background(), "nothere")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, models.ConsumeReasonNotFound, result.Reason)
}

func TestConsumeExpiredToken(t *testing.T) {
	store := &mockConfirmationStore{records: map[string]*models.ConfirmationToken{
		"old": {
			Token:     "old",
			Type:      models.ConfirmTaskAssignment,
			ExpiresAt: time.Now().UTC().Add(-time.Hour),
		},
	}}
	svc, _ := newConfirmationFixture(store, &mockTaskStore{}, &mockMailer{})

	result, err := svc.Consume(context.Background(), "old")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, models.ConsumeReasonExpired, result.Reason)
}

func TestConsumeUsedTokenStaysUsedAfterExpiry(t *testing.T) {
	confirmedAt := time.Now().UTC().Add(-48 * time.Hour)
	store := &mockConfirmationStore{records: map[string]*models.ConfirmationToken{
		"spent": {
			Token:       "spent",
			Type:        models.ConfirmTaskAssignment,
			Confirmed:   true,
			ConfirmedAt: &confirmedAt,
			ExpiresAt:   time.Now().UTC().Add(-time.Hour),
		},
	}}
	svc, _ := newConfirmationFixture(store, &mockTaskStore{}, &mockMailer{})

	result, err := svc.Consume(context.Background(), "spent")
	require.NoError(t, err)
	assert.Equal(t, models.ConsumeReasonAlreadyUsed, result.Reason)
}

func TestExecuteTaskAssignmentForcesInProgress(t *testing.T) {
	tasks := &mockTaskStore{tasks: map[string]*models.Task{
		"t1": {ID: "t1", Title: "Wire the API", Status: models.TaskStatusTodo, ProjectID: "p1"},
	}}
	mail := &mockMailer{}
	svc, activity := newConfirmationFixture(&mockConfirmationStore{}, tasks, mail)

	ok := svc.Execute(context.Background(), models.ConfirmationPayload{
		Type:     models.ConfirmTaskAssignment,
		UserID:   "e1",
		EntityID: "t1",
		Metadata: models.TokenMetadata{ProjectName: "Apollo"},
	})
	require.True(t, ok)
	assert.Equal(t, models.TaskStatusInProgress, tasks.forced["t1"])

	require.Len(t, activity.entries, 1)
	assert.Equal(t, models.ActivityActionStart, activity.entries[0].Action)
	assert.Equal(t, "e1", *activity.entries[0].UserID)

	// the manager and every admin learn about the acceptance
	require.Len(t, mail.sent, 2)
	assert.Equal(t, "max@corp.test", mail.sent[0].To)
	assert.Equal(t, "alice@corp.test", mail.sent[1].To)
}

func TestExecuteStatusAcknowledgementDoesNotMutate(t *testing.T) {
	tasks := &mockTaskStore{tasks: map[string]*models.Task{
		"t1": {ID: "t1", Title: "Wire the API", Status: models.TaskStatusCompleted, ProjectID: "p1"},
	}}
	svc, activity := newConfirmationFixture(&mockConfirmationStore{}, tasks, &mockMailer{})

	ok := svc.Execute(context.Background(), models.ConfirmationPayload{
		Type:     models.ConfirmTaskStatusChange,
		UserID:   "e1",
		EntityID: "t1",
	})
	require.True(t, ok)
	assert.Empty(t, tasks.forced)
	assert.Equal(t, models.TaskStatusCompleted, tasks.tasks["t1"].Status)

	require.Len(t, activity.entries, 1)
	assert.Equal(t, models.ActivityActionAcknowledge, activity.entries[0].Action)
	assert.Contains(t, activity.entries[0].Details, "UNKNOWN to UNKNOWN")
}

func TestExecuteProjectCreatedIsNoOp(t *testing.T) {
	tasks := &mockTaskStore{}
	mail := &mockMailer{}
	svc, activity := newConfirmationFixture(&mockConfirmationStore{}, tasks, mail)

	ok := svc.Execute(context.Background(), models.ConfirmationPayload{
		Type:     models.ConfirmProjectCreated,
		EntityID: "p1",
	})
	assert.True(t, ok)
	assert.Empty(t, activity.entries)
	assert.Empty(t, mail.sent)
}

func TestExecuteUnknownType(t *testing.T) {
	svc, _ := newConfirmationFixture(&mockConfirmationStore{}, &mockTaskStore{}, &mockMailer{})

	ok := svc.Execute(context.Background(), models.ConfirmationPayload{Type: "SOMETHING_ELSE"})
	assert.False(t, ok)
}
