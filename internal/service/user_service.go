package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/motta-superate/grades-api/internal/models"
	appErrors "github.com/motta-superate/grades-api/pkg/errors"
)

type userListRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
}

type identityDeleter interface {
	DeleteIdentity(ctx context.Context, userID, actorID string) error
}

// UserDeleteResult is the per-account outcome of a batch deletion.
type UserDeleteResult struct {
	UserID string `json:"user_id"`
	Error  string `json:"error,omitempty"`
}

// UserService exposes the administrative account operations. Deletion only
// removes identities; the matching student or teacher profile rows stay
// behind as orphans, which is the accepted trade-off of keeping the two
// stores untransacted.
type UserService struct {
	users    userListRepository
	identity identityDeleter
	logger   *zap.Logger
}

// NewUserService constructs a UserService.
func NewUserService(users userListRepository, identity identityDeleter, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{users: users, identity: identity, logger: logger}
}

// List returns identity records matching the filter.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	users, total, err := s.users.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	return users, total, nil
}

// Delete removes a single account. Only admins reach this through the
// routes; the role is checked again here so the service cannot be misused
// from another code path.
func (s *UserService) Delete(ctx context.Context, actor *models.JWTClaims, userID string) error {
	if actor == nil || actor.Role != models.RoleAdmin {
		return appErrors.Clone(appErrors.ErrForbidden, "only admins can delete accounts")
	}
	if actor.UserID == userID {
		return appErrors.Clone(appErrors.ErrValidation, "cannot delete your own account")
	}
	return s.identity.DeleteIdentity(ctx, userID, actor.UserID)
}

// DeleteBatch removes several accounts, continuing past individual failures
// and reporting each outcome.
func (s *UserService) DeleteBatch(ctx context.Context, actor *models.JWTClaims, userIDs []string) ([]UserDeleteResult, error) {
	if actor == nil || actor.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins can delete accounts")
	}
	if len(userIDs) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no account ids provided")
	}

	results := make([]UserDeleteResult, 0, len(userIDs))
	for _, userID := range userIDs {
		result := UserDeleteResult{UserID: userID}
		if userID == actor.UserID {
			result.Error = "cannot delete your own account"
		} else if err := s.identity.DeleteIdentity(ctx, userID, actor.UserID); err != nil {
			result.Error = appErrors.FromError(err).Message
		}
		results = append(results, result)
	}
	return results, nil
}
