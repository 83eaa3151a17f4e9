package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motta-superate/grades-api/internal/models"
	appErrors "github.com/motta-superate/grades-api/pkg/errors"
)

type mockUserListRepo struct{}

func (m *mockUserListRepo) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	return nil, 0, nil
}

type mockIdentityDeleter struct {
	failIDs map[string]error
	deleted []string
}

func (m *mockIdentityDeleter) DeleteIdentity(ctx context.Context, userID, actorID string) error {
	if err, ok := m.failIDs[userID]; ok {
		return err
	}
	m.deleted = append(m.deleted, userID)
	return nil
}

func adminClaims(id string) *models.JWTClaims {
	return &models.JWTClaims{UserID: id, Role: models.RoleAdmin}
}

func TestUserDeleteRequiresAdmin(t *testing.T) {
	svc := NewUserService(&mockUserListRepo{}, &mockIdentityDeleter{}, nil)

	err := svc.Delete(context.Background(), &models.JWTClaims{UserID: "t1", Role: models.RoleTeacher}, "u1")
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrForbidden.Code))
}

func TestUserDeleteBlocksSelf(t *testing.T) {
	svc := NewUserService(&mockUserListRepo{}, &mockIdentityDeleter{}, nil)

	err := svc.Delete(context.Background(), adminClaims("admin-1"), "admin-1")
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))
}

func TestUserDeleteBatchContinuesPastFailures(t *testing.T) {
	deleter := &mockIdentityDeleter{failIDs: map[string]error{
		"u2": appErrors.Clone(appErrors.ErrNotFound, "account not found"),
	}}
	svc := NewUserService(&mockUserListRepo{}, deleter, nil)

	results, err := svc.DeleteBatch(context.Background(), adminClaims("admin-1"), []string{"u1", "u2", "admin-1", "u3"})
	require.NoError(t, err)
	require.Len(t, results, 4)
	assert.Empty(t, results[0].Error)
	assert.Equal(t, "account not found", results[1].Error)
	assert.Equal(t, "cannot delete your own account", results[2].Error)
	assert.Empty(t, results[3].Error)
	assert.Equal(t, []string{"u1", "u3"}, deleter.deleted)
}

func TestUserDeleteBatchRejectsEmptyList(t *testing.T) {
	svc := NewUserService(&mockUserListRepo{}, &mockIdentityDeleter{}, nil)

	_, err := svc.DeleteBatch(context.Background(), adminClaims("admin-1"), nil)
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))
}
