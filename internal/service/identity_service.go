package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/lib/pq"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/motta-superate/grades-api/internal/models"
	appErrors "github.com/motta-superate/grades-api/pkg/errors"
)

const minSecretLength = 6

type identityUserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Create(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id string) error
	RevokeUserRefreshTokens(ctx context.Context, userID string) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// IdentityService owns account creation and deletion on the users table.
// Creation fails with exactly one code out of EMAIL_IN_USE, WEAK_CREDENTIAL,
// INVALID_EMAIL, OPERATION_RESTRICTED and RATE_LIMITED so callers can map
// each failure to a distinct operator-facing message.
type IdentityService struct {
	users  identityUserRepository
	logger *zap.Logger
}

// NewIdentityService constructs an IdentityService.
func NewIdentityService(users identityUserRepository, logger *zap.Logger) *IdentityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IdentityService{users: users, logger: logger}
}

// CreateIdentity registers a new account. The secret is stored bcrypt-hashed;
// the caller keeps the plaintext if it needs to distribute it.
func (s *IdentityService) CreateIdentity(ctx context.Context, email, secret, fullName string, role models.UserRole) (*models.User, error) {
	email = strings.TrimSpace(email)
	if !validEmail(email) {
		return nil, appErrors.Clone(appErrors.ErrInvalidEmail, "")
	}
	if len(secret) < minSecretLength {
		return nil, appErrors.Clone(appErrors.ErrWeakCredential, "")
	}

	exists, err := s.users.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email availability")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrEmailInUse, "")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash credential")
	}

	user := &models.User{
		Email:        email,
		PasswordHash: string(hash),
		FullName:     strings.TrimSpace(fullName),
		Role:         role,
		Active:       true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		// A concurrent creation can slip past the existence check; the unique
		// index reports it as 23505.
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, appErrors.Clone(appErrors.ErrEmailInUse, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create account")
	}

	s.logger.Info("identity created",
		zap.String("user_id", user.ID),
		zap.String("role", string(role)),
	)
	return user, nil
}

// DeleteIdentity removes the account and revokes its refresh tokens. The
// role-specific profile row is intentionally left behind; administrative
// deletion only targets the identity.
func (s *IdentityService) DeleteIdentity(ctx context.Context, userID, actorID string) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "account not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load account")
	}

	if err := s.users.RevokeUserRefreshTokens(ctx, userID); err != nil {
		s.logger.Warn("failed to revoke refresh tokens before deletion", zap.String("user_id", userID), zap.Error(err))
	}
	if err := s.users.Delete(ctx, userID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete account")
	}

	entry := &models.AuditLog{
		Action:     models.AuditActionUserDelete,
		Resource:   "users",
		ResourceID: &user.ID,
	}
	if actorID != "" {
		entry.UserID = &actorID
	}
	if err := s.users.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record deletion audit log", zap.Error(err))
	}

	s.logger.Info("identity deleted", zap.String("user_id", userID), zap.String("actor_id", actorID))
	return nil
}

func validEmail(email string) bool {
	at := strings.Index(email, "@")
	if at <= 0 || at != strings.LastIndex(email, "@") {
		return false
	}
	local, domain := email[:at], email[at+1:]
	if local == "" || domain == "" || strings.ContainsAny(email, " \t\n") {
		return false
	}
	dot := strings.LastIndex(domain, ".")
	return dot > 0 && dot < len(domain)-1
}
