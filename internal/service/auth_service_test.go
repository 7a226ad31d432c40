package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/kerane/projectdesk-api/internal/models"
	appErrors "github.com/kerane/projectdesk-api/pkg/errors"
)

type mockAuthRepo struct {
	users      map[string]*models.User
	byEmail    map[string]*models.User
	refresh    map[string]*models.RefreshToken
	revoked    []string
	revokedAll []string
}

func newMockAuthRepo() *mockAuthRepo {
	return &mockAuthRepo{
		users:   make(map[string]*models.User),
		byEmail: make(map[string]*models.User),
		refresh: make(map[string]*models.RefreshToken),
	}
}

func (m *mockAuthRepo) addUser(user *models.User) {
	m.users[user.ID] = user
	m.byEmail[user.Email] = user
}

func (m *mockAuthRepo) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = "new-user"
	}
	m.addUser(user)
	return nil
}

func (m *mockAuthRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if user, ok := m.byEmail[email]; ok {
		return user, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if user, ok := m.users[id]; ok {
		return user, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	return nil
}

func (m *mockAuthRepo) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	if user, ok := m.users[id]; ok {
		user.PasswordHash = passwordHash
	}
	return nil
}

func (m *mockAuthRepo) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	m.refresh[token.Token] = token
	return nil
}

func (m *mockAuthRepo) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	if stored, ok := m.refresh[token]; ok {
		return stored, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	m.revoked = append(m.revoked, id)
	for _, stored := range m.refresh {
		if stored.ID == id {
			stored.Revoked = true
			stored.RevokedAt = &revokedAt
		}
	}
	return nil
}

func (m *mockAuthRepo) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	m.revokedAll = append(m.revokedAll, userID)
	return nil
}

func authConfig() AuthConfig {
	return AuthConfig{
		AccessTokenSecret:  "test-secret",
		AccessTokenExpiry:  15 * time.Minute,
		RefreshTokenExpiry: 24 * time.Hour,
		Issuer:             "projectdesk-test",
	}
}

func hashPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func TestLoginSuccess(t *testing.T) {
	repo := newMockAuthRepo()
	repo.addUser(&models.User{
		ID:           "u1",
		Email:        "eve@corp.test",
		Name:         "Eve",
		Role:         models.RoleEmployee,
		Active:       true,
		PasswordHash: hashPassword(t, "password123"),
	})
	activity := &mockActivityWriter{}
	svc := NewAuthService(repo, activity, nil, nil, authConfig())

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "Eve@corp.test", Password: "password123"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, "u1", resp.User.ID)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, models.RoleEmployee, claims.Role)

	require.Len(t, activity.entries, 1)
	assert.Equal(t, models.ActivityActionLogin, activity.entries[0].Action)
}

func TestLoginWrongPassword(t *testing.T) {
	repo := newMockAuthRepo()
	repo.addUser(&models.User{
		ID: "u1", Email: "eve@corp.test", Active: true,
		PasswordHash: hashPassword(t, "password123"),
	})
	svc := NewAuthService(repo, nil, nil, nil, authConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "eve@corp.test", Password: "nope-nope"})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErr.Code)
}

func TestLoginInactiveAccount(t *testing.T) {
	repo := newMockAuthRepo()
	repo.addUser(&models.User{
		ID: "u1", Email: "eve@corp.test", Active: false,
		PasswordHash: hashPassword(t, "password123"),
	})
	svc := NewAuthService(repo, nil, nil, nil, authConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "eve@corp.test", Password: "password123"})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErr.Code)
}

func TestRegisterDefaultsUnknownRole(t *testing.T) {
	repo := newMockAuthRepo()
	svc := NewAuthService(repo, nil, nil, nil, authConfig())

	info, err := svc.Register(context.Background(), models.RegisterRequest{
		Email:    "New@Corp.Test",
		Password: "password123",
		Name:     "New Person",
		Role:     "SUPERVISOR",
	})
	require.NoError(t, err)
	assert.Equal(t, models.RoleEmployee, info.Role)
	assert.Equal(t, "new@corp.test", info.Email)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	repo := newMockAuthRepo()
	repo.addUser(&models.User{ID: "u1", Email: "eve@corp.test"})
	svc := NewAuthService(repo, nil, nil, nil, authConfig())

	_, err := svc.Register(context.Background(), models.RegisterRequest{
		Email:    "eve@corp.test",
		Password: "password123",
		Name:     "Eve Again",
	})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestRefreshTokenRotates(t *testing.T) {
	repo := newMockAuthRepo()
	repo.addUser(&models.User{ID: "u1", Email: "eve@corp.test", Active: true})
	repo.refresh["old-token"] = &models.RefreshToken{
		ID:        "rt1",
		UserID:    "u1",
		Token:     "old-token",
		ExpiresAt: time.Now().UTC().Add(time.Hour),
	}
	svc := NewAuthService(repo, nil, nil, nil, authConfig())

	resp, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "old-token"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEqual(t, "old-token", resp.RefreshToken)
	assert.Contains(t, repo.revoked, "rt1")

	// the rotated-out token cannot be used again
	_, err = svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "old-token"})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErr.Code)
}

func TestRefreshTokenExpired(t *testing.T) {
	repo := newMockAuthRepo()
	repo.addUser(&models.User{ID: "u1", Email: "eve@corp.test", Active: true})
	repo.refresh["stale"] = &models.RefreshToken{
		ID:        "rt1",
		UserID:    "u1",
		Token:     "stale",
		ExpiresAt: time.Now().UTC().Add(-time.Minute),
	}
	svc := NewAuthService(repo, nil, nil, nil, authConfig())

	_, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "stale"})
	require.Error(t, err)
}

func TestLogoutRejectsForeignToken(t *testing.T) {
	repo := newMockAuthRepo()
	repo.refresh["tok"] = &models.RefreshToken{ID: "rt1", UserID: "u1", Token: "tok", ExpiresAt: time.Now().Add(time.Hour)}
	svc := NewAuthService(repo, nil, nil, nil, authConfig())

	err := svc.Logout(context.Background(), "tok", "someone-else")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
	assert.Empty(t, repo.revoked)
}

func TestChangePasswordRevokesSessions(t *testing.T) {
	repo := newMockAuthRepo()
	repo.addUser(&models.User{
		ID: "u1", Email: "eve@corp.test", Active: true,
		PasswordHash: hashPassword(t, "oldpassword"),
	})
	svc := NewAuthService(repo, nil, nil, nil, authConfig())

	err := svc.ChangePassword(context.Background(), "u1", "oldpassword", "newpassword")
	require.NoError(t, err)
	assert.Contains(t, repo.revokedAll, "u1")
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.users["u1"].PasswordHash), []byte("newpassword")))
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	repo := newMockAuthRepo()
	repo.addUser(&models.User{
		ID: "u1", Email: "eve@corp.test", Active: true,
		PasswordHash: hashPassword(t, "password123"),
	})
	svc := NewAuthService(repo, nil, nil, nil, authConfig())
	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "eve@corp.test", Password: "password123"})
	require.NoError(t, err)

	other := NewAuthService(repo, nil, nil, nil, AuthConfig{AccessTokenSecret: "different", AccessTokenExpiry: time.Minute})
	_, err = other.ValidateToken(resp.AccessToken)
	require.Error(t, err)
}
