package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/motta-superate/grades-api/internal/models"
	"github.com/motta-superate/grades-api/pkg/config"
	appErrors "github.com/motta-superate/grades-api/pkg/errors"
)

type mockAuthUserRepo struct {
	users         map[string]models.User
	refreshTokens map[string]models.RefreshToken
	revokedAll    []string
	audits        []models.AuditLog
}

func newMockAuthUserRepo() *mockAuthUserRepo {
	return &mockAuthUserRepo{
		users:         make(map[string]models.User),
		refreshTokens: make(map[string]models.RefreshToken),
	}
}

func (m *mockAuthUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		return &u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthUserRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	u := m.users[id]
	u.LastLogin = &ts
	m.users[id] = u
	return nil
}

func (m *mockAuthUserRepo) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	u := m.users[id]
	u.PasswordHash = passwordHash
	m.users[id] = u
	return nil
}

func (m *mockAuthUserRepo) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	m.revokedAll = append(m.revokedAll, userID)
	return nil
}

func (m *mockAuthUserRepo) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	if token.ID == "" {
		token.ID = "rt-" + token.Token[:6]
	}
	m.refreshTokens[token.Token] = *token
	return nil
}

func (m *mockAuthUserRepo) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	if t, ok := m.refreshTokens[token]; ok {
		return &t, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthUserRepo) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	for key, t := range m.refreshTokens {
		if t.ID == id {
			t.Revoked = true
			t.RevokedAt = &revokedAt
			m.refreshTokens[key] = t
		}
	}
	return nil
}

func (m *mockAuthUserRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.audits = append(m.audits, *log)
	return nil
}

func authTestConfig() config.JWTConfig {
	return config.JWTConfig{Secret: "test-secret", Expiration: time.Hour, RefreshExpiration: 24 * time.Hour}
}

func seedAuthUser(repo *mockAuthUserRepo, password string, active bool) models.User {
	hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	user := models.User{
		ID:           "u1",
		Email:        "ana@motta.superate.org.pa",
		PasswordHash: string(hash),
		FullName:     "Ana Gómez",
		Role:         models.RoleTeacher,
		Active:       active,
	}
	repo.users[user.ID] = user
	return user
}

func TestLoginIssuesValidTokenPair(t *testing.T) {
	repo := newMockAuthUserRepo()
	seedAuthUser(repo, "ABC123XY", true)
	svc := NewAuthService(repo, authTestConfig(), nil)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "ana@motta.superate.org.pa", Password: "ABC123XY"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, models.RoleTeacher, resp.User.Role)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, models.RoleTeacher, claims.Role)

	require.Len(t, repo.audits, 1)
	assert.Equal(t, models.AuditActionLogin, repo.audits[0].Action)
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	repo := newMockAuthUserRepo()
	seedAuthUser(repo, "ABC123XY", true)
	svc := NewAuthService(repo, authTestConfig(), nil)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "ana@motta.superate.org.pa", Password: "wrong-pass"})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrInvalidCredentials.Code))
}

func TestLoginRejectsInactiveAccount(t *testing.T) {
	repo := newMockAuthUserRepo()
	seedAuthUser(repo, "ABC123XY", false)
	svc := NewAuthService(repo, authTestConfig(), nil)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "ana@motta.superate.org.pa", Password: "ABC123XY"})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrInactiveAccount.Code))
}

func TestRefreshTokenRotatesAndRevokes(t *testing.T) {
	repo := newMockAuthUserRepo()
	seedAuthUser(repo, "ABC123XY", true)
	svc := NewAuthService(repo, authTestConfig(), nil)

	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "ana@motta.superate.org.pa", Password: "ABC123XY"})
	require.NoError(t, err)

	resp, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.NoError(t, err)
	assert.NotEqual(t, login.RefreshToken, resp.RefreshToken)
	assert.True(t, repo.refreshTokens[login.RefreshToken].Revoked)

	// The revoked token cannot be used a second time.
	_, err = svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrUnauthorized.Code))
}

func TestChangePasswordRevokesSessions(t *testing.T) {
	repo := newMockAuthUserRepo()
	seedAuthUser(repo, "ABC123XY", true)
	svc := NewAuthService(repo, authTestConfig(), nil)

	err := svc.ChangePassword(context.Background(), "u1", models.ChangePasswordRequest{OldPassword: "ABC123XY", NewPassword: "NewPass123"})
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, repo.revokedAll)

	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "ana@motta.superate.org.pa", Password: "NewPass123"})
	require.NoError(t, err)
}

func TestChangePasswordRejectsWrongCurrent(t *testing.T) {
	repo := newMockAuthUserRepo()
	seedAuthUser(repo, "ABC123XY", true)
	svc := NewAuthService(repo, authTestConfig(), nil)

	err := svc.ChangePassword(context.Background(), "u1", models.ChangePasswordRequest{OldPassword: "wrong", NewPassword: "NewPass123"})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrForbidden.Code))
}

func TestValidateTokenRejectsTampering(t *testing.T) {
	repo := newMockAuthUserRepo()
	seedAuthUser(repo, "ABC123XY", true)
	svc := NewAuthService(repo, authTestConfig(), nil)

	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "ana@motta.superate.org.pa", Password: "ABC123XY"})
	require.NoError(t, err)

	other := NewAuthService(repo, config.JWTConfig{Secret: "other-secret", Expiration: time.Hour}, nil)
	_, err = other.ValidateToken(login.AccessToken)
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrUnauthorized.Code))
}
