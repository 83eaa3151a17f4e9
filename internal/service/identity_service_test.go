package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/motta-superate/grades-api/internal/models"
	appErrors "github.com/motta-superate/grades-api/pkg/errors"
)

type mockIdentityUserRepo struct {
	users     map[string]models.User
	emails    map[string]bool
	createErr error
	revoked   []string
	deleted   []string
	audits    []models.AuditLog
}

func (m *mockIdentityUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		return &u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockIdentityUserRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return m.emails[email], nil
}

func (m *mockIdentityUserRepo) Create(ctx context.Context, user *models.User) error {
	if m.createErr != nil {
		return m.createErr
	}
	if user.ID == "" {
		user.ID = "new-user"
	}
	if m.users == nil {
		m.users = make(map[string]models.User)
	}
	m.users[user.ID] = *user
	return nil
}

func (m *mockIdentityUserRepo) Delete(ctx context.Context, id string) error {
	delete(m.users, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockIdentityUserRepo) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	m.revoked = append(m.revoked, userID)
	return nil
}

func (m *mockIdentityUserRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.audits = append(m.audits, *log)
	return nil
}

func TestCreateIdentityHashesSecret(t *testing.T) {
	repo := &mockIdentityUserRepo{}
	svc := NewIdentityService(repo, nil)

	user, err := svc.CreateIdentity(context.Background(), "ana@motta.superate.org.pa", "ABC123XY", "Ana Gómez", models.RoleStudent)
	require.NoError(t, err)
	assert.NotEqual(t, "ABC123XY", user.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("ABC123XY")))
	assert.True(t, user.Active)
}

func TestCreateIdentityRejectsMalformedEmail(t *testing.T) {
	svc := NewIdentityService(&mockIdentityUserRepo{}, nil)

	for _, email := range []string{"", "no-at-sign", "two@@signs.org", "@nodomain.org", "spaces @domain.org", "user@nodot"} {
		_, err := svc.CreateIdentity(context.Background(), email, "ABC123XY", "X", models.RoleStudent)
		require.Error(t, err, email)
		assert.True(t, appErrors.HasCode(err, appErrors.ErrInvalidEmail.Code), email)
	}
}

func TestCreateIdentityRejectsShortSecret(t *testing.T) {
	svc := NewIdentityService(&mockIdentityUserRepo{}, nil)

	_, err := svc.CreateIdentity(context.Background(), "ana@motta.superate.org.pa", "abc", "X", models.RoleStudent)
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrWeakCredential.Code))
}

func TestCreateIdentityRejectsTakenEmail(t *testing.T) {
	repo := &mockIdentityUserRepo{emails: map[string]bool{"ana@motta.superate.org.pa": true}}
	svc := NewIdentityService(repo, nil)

	_, err := svc.CreateIdentity(context.Background(), "ana@motta.superate.org.pa", "ABC123XY", "X", models.RoleStudent)
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrEmailInUse.Code))
}

func TestCreateIdentityMapsUniqueViolation(t *testing.T) {
	repo := &mockIdentityUserRepo{createErr: &pq.Error{Code: "23505"}}
	svc := NewIdentityService(repo, nil)

	_, err := svc.CreateIdentity(context.Background(), "ana@motta.superate.org.pa", "ABC123XY", "X", models.RoleStudent)
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrEmailInUse.Code))
}

func TestDeleteIdentityRevokesTokensAndAudits(t *testing.T) {
	repo := &mockIdentityUserRepo{users: map[string]models.User{
		"u1": {ID: "u1", Email: "ana@motta.superate.org.pa", Role: models.RoleStudent},
	}}
	svc := NewIdentityService(repo, nil)

	require.NoError(t, svc.DeleteIdentity(context.Background(), "u1", "admin-1"))
	assert.Equal(t, []string{"u1"}, repo.revoked)
	assert.Equal(t, []string{"u1"}, repo.deleted)
	require.Len(t, repo.audits, 1)
	assert.Equal(t, models.AuditActionUserDelete, repo.audits[0].Action)
	require.NotNil(t, repo.audits[0].UserID)
	assert.Equal(t, "admin-1", *repo.audits[0].UserID)
}

func TestDeleteIdentityUnknownAccount(t *testing.T) {
	svc := NewIdentityService(&mockIdentityUserRepo{}, nil)

	err := svc.DeleteIdentity(context.Background(), "missing", "admin-1")
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound.Code))
}
