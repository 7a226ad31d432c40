package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kerane/projectdesk-api/internal/models"
	"github.com/kerane/projectdesk-api/pkg/mailer"
)

type mockAdminLister struct {
	admins []models.User
	err    error
}

func (m *mockAdminLister) ListAdmins(ctx context.Context) ([]models.User, error) {
	return m.admins, m.err
}

type mockManagerResolver struct {
	manager *models.User
	err     error
}

func (m *mockManagerResolver) GetManager(ctx context.Context, projectID string) (*models.User, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.manager, nil
}

type mockActivityWriter struct {
	entries []models.ActivityLog
	err     error
}

func (m *mockActivityWriter) Create(ctx context.Context, entry *models.ActivityLog) error {
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, *entry)
	return nil
}

type mockMailer struct {
	sent    []mailer.Message
	failFor map[string]error
}

func (m *mockMailer) Send(ctx context.Context, msg mailer.Message) error {
	if err, ok := m.failFor[msg.To]; ok {
		return err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func snapshot(id, name, email string, role models.UserRole) models.UserSnapshot {
	return models.UserSnapshot{ID: id, Name: name, Email: email, Role: role}
}

func TestResolveRecipientsEmployee(t *testing.T) {
	users := &mockAdminLister{admins: []models.User{
		{ID: "a1", Name: "Alice", Email: "alice@corp.test", Role: models.RoleAdmin},
	}}
	projects := &mockManagerResolver{manager: &models.User{
		ID: "m1", Name: "Max", Email: "max@corp.test", Role: models.RoleProjectManager,
	}}
	svc := NewNotificationService(users, projects, nil, &mockMailer{}, "https://app.test", 0, nil)

	action := models.ActionContext{
		ActionType:  models.ActionTaskCompleted,
		PerformedBy: snapshot("e1", "Eve", "eve@corp.test", models.RoleEmployee),
		ProjectID:   "p1",
		AffectedUsers: []models.UserSnapshot{
			snapshot("e2", "Other", "other@corp.test", models.RoleEmployee),
		},
	}

	recipients := svc.ResolveRecipients(context.Background(), action)
	emails := recipientEmails(recipients)
	assert.Equal(t, []string{"eve@corp.test", "max@corp.test", "alice@corp.test"}, emails)
}

func TestResolveRecipientsProjectManager(t *testing.T) {
	users := &mockAdminLister{admins: []models.User{
		{ID: "a1", Name: "Alice", Email: "alice@corp.test", Role: models.RoleAdmin},
	}}
	svc := NewNotificationService(users, &mockManagerResolver{}, nil, &mockMailer{}, "https://app.test", 0, nil)

	action := models.ActionContext{
		ActionType:  models.ActionTaskAssigned,
		PerformedBy: snapshot("m1", "Max", "max@corp.test", models.RoleProjectManager),
		ProjectID:   "p1",
		AffectedUsers: []models.UserSnapshot{
			snapshot("e1", "Eve", "eve@corp.test", models.RoleEmployee),
			snapshot("a2", "Aaron", "aaron@corp.test", models.RoleAdmin),
		},
	}

	emails := recipientEmails(svc.ResolveRecipients(context.Background(), action))
	// affected admins are not added through the affected list
	assert.Equal(t, []string{"max@corp.test", "alice@corp.test", "eve@corp.test"}, emails)
}

func TestResolveRecipientsAdmin(t *testing.T) {
	projects := &mockManagerResolver{manager: &models.User{
		ID: "m1", Name: "Max", Email: "max@corp.test", Role: models.RoleProjectManager,
	}}
	svc := NewNotificationService(&mockAdminLister{}, projects, nil, &mockMailer{}, "https://app.test", 0, nil)

	action := models.ActionContext{
		ActionType:  models.ActionTaskAssigned,
		PerformedBy: snapshot("a1", "Alice", "alice@corp.test", models.RoleAdmin),
		ProjectID:   "p1",
		AffectedUsers: []models.UserSnapshot{
			snapshot("e1", "Eve", "eve@corp.test", models.RoleEmployee),
		},
	}
	emails := recipientEmails(svc.ResolveRecipients(context.Background(), action))
	assert.Equal(t, []string{"alice@corp.test", "eve@corp.test", "max@corp.test"}, emails)

	// without affected users the manager is not pulled in
	action.AffectedUsers = nil
	emails = recipientEmails(svc.ResolveRecipients(context.Background(), action))
	assert.Equal(t, []string{"alice@corp.test"}, emails)
}

func TestResolveRecipientsDedupByEmail(t *testing.T) {
	users := &mockAdminLister{admins: []models.User{
		{ID: "a1", Name: "Alice", Email: "alice@corp.test", Role: models.RoleAdmin},
	}}
	projects := &mockManagerResolver{manager: &models.User{
		ID: "a1", Name: "Alice", Email: "alice@corp.test", Role: models.RoleAdmin,
	}}
	svc := NewNotificationService(users, projects, nil, &mockMailer{}, "https://app.test", 0, nil)

	action := models.ActionContext{
		ActionType:  models.ActionTaskCompleted,
		PerformedBy: snapshot("e1", "Eve", "eve@corp.test", models.RoleEmployee),
		ProjectID:   "p1",
	}
	emails := recipientEmails(svc.ResolveRecipients(context.Background(), action))
	assert.Equal(t, []string{"eve@corp.test", "alice@corp.test"}, emails)

	// case-sensitive: a differently cased address is a distinct recipient
	projects.manager.Email = "Alice@corp.test"
	emails = recipientEmails(svc.ResolveRecipients(context.Background(), action))
	assert.Equal(t, []string{"eve@corp.test", "Alice@corp.test", "alice@corp.test"}, emails)
}

func TestResolveRecipientsLookupFailuresNarrowTheSet(t *testing.T) {
	users := &mockAdminLister{err: errors.New("db down")}
	projects := &mockManagerResolver{err: errors.New("db down")}
	svc := NewNotificationService(users, projects, nil, &mockMailer{}, "https://app.test", 0, nil)

	action := models.ActionContext{
		ActionType:  models.ActionTaskCompleted,
		PerformedBy: snapshot("e1", "Eve", "eve@corp.test", models.RoleEmployee),
		ProjectID:   "p1",
	}
	emails := recipientEmails(svc.ResolveRecipients(context.Background(), action))
	assert.Equal(t, []string{"eve@corp.test"}, emails)
}

func TestBuildContentUnmappedActionSkips(t *testing.T) {
	svc := NewNotificationService(&mockAdminLister{}, &mockManagerResolver{}, nil, &mockMailer{}, "https://app.test", 0, nil)

	_, _, ok := svc.BuildContent(models.ActionContext{ActionType: models.ActionProjectUpdated})
	assert.False(t, ok)
}

func TestBuildContentTaskAssignedIncludesConfirmationLink(t *testing.T) {
	svc := NewNotificationService(&mockAdminLister{}, &mockManagerResolver{}, nil, &mockMailer{}, "https://app.test", 0, nil)

	subject, html, ok := svc.BuildContent(models.ActionContext{
		ActionType:  models.ActionTaskAssigned,
		PerformedBy: snapshot("m1", "Max", "max@corp.test", models.RoleProjectManager),
		Entity:      models.EntitySnapshot{Kind: models.EntityTask, ID: "t1", Title: "Wire the API"},
		Meta: models.AssignmentMeta{
			ProjectName:       "Apollo",
			AssigneeName:      "Eve",
			ConfirmationToken: "tok123",
		},
	})
	require.True(t, ok)
	assert.Contains(t, subject, "Wire the API")
	assert.Contains(t, html, "https://app.test/confirm-email?token=tok123")
	assert.Contains(t, html, "Apollo")
}

func TestDispatchDeliversAndAuditsOnce(t *testing.T) {
	users := &mockAdminLister{admins: []models.User{
		{ID: "a1", Name: "Alice", Email: "alice@corp.test", Role: models.RoleAdmin},
	}}
	projects := &mockManagerResolver{manager: &models.User{
		ID: "m1", Name: "Max", Email: "max@corp.test", Role: models.RoleProjectManager,
	}}
	activity := &mockActivityWriter{}
	mail := &mockMailer{failFor: map[string]error{"alice@corp.test": errors.New("relay refused")}}
	svc := NewNotificationService(users, projects, activity, mail, "https://app.test", 0, nil)

	svc.Dispatch(context.Background(), models.ActionContext{
		ActionType:  models.ActionTaskCompleted,
		PerformedBy: snapshot("e1", "Eve", "eve@corp.test", models.RoleEmployee),
		Entity:      models.EntitySnapshot{Kind: models.EntityTask, ID: "t1", Title: "Wire the API", Status: "COMPLETED"},
		ProjectID:   "p1",
		Meta:        models.CompletionMeta{ProjectName: "Apollo"},
	})

	// one failed recipient does not stop the rest
	require.Len(t, mail.sent, 2)
	assert.Equal(t, "eve@corp.test", mail.sent[0].To)
	assert.Equal(t, "max@corp.test", mail.sent[1].To)

	require.Len(t, activity.entries, 1)
	entry := activity.entries[0]
	assert.Equal(t, models.ActivityActionNotify, entry.Action)
	assert.Equal(t, "task", entry.EntityType)
	assert.Equal(t, "TASK_COMPLETED: notified 2 of 3 recipients", entry.Details)
}

func TestDispatchSkipsWhenNoTemplate(t *testing.T) {
	activity := &mockActivityWriter{}
	mail := &mockMailer{}
	svc := NewNotificationService(&mockAdminLister{}, &mockManagerResolver{}, activity, mail, "https://app.test", 0, nil)

	svc.Dispatch(context.Background(), models.ActionContext{
		ActionType:  models.ActionProjectUpdated,
		PerformedBy: snapshot("a1", "Alice", "alice@corp.test", models.RoleAdmin),
		Entity:      models.EntitySnapshot{Kind: models.EntityProject, ID: "p1", Title: "Apollo"},
	})

	assert.Empty(t, mail.sent)
	assert.Empty(t, activity.entries)
}

func recipientEmails(recipients []models.UserSnapshot) []string {
	out := make([]string, 0, len(recipients))
	for _, r := range recipients {
		out = append(out, r.Email)
	}
	return out
}
