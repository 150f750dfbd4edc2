package service

import (
	"context"
	"time"

	"github.com/shopfront/accounts/internal/model"
)

// UserStore persists customer accounts. Implemented by repository.UserRepository.
type UserStore interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	ExistsByEmail(ctx context.Context, email, excludeID string) (bool, error)
	UpdateProfile(ctx context.Context, user *model.User) error
	UpdatePasswordHash(ctx context.Context, id, hash string) error
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	IncrementFailedAttempts(ctx context.Context, id string) (int, error)
	ResetFailedAttempts(ctx context.Context, id string) error
	LockUntil(ctx context.Context, id string, until time.Time) error
	Delete(ctx context.Context, id string) error
}

// ResetTokenStore persists hashed password reset tokens.
type ResetTokenStore interface {
	Create(ctx context.Context, token *model.PasswordResetToken) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*model.PasswordResetToken, error)
	MarkUsed(ctx context.Context, id string) error
	InvalidateAllForUser(ctx context.Context, userID string) error
	CountRecentByUserID(ctx context.Context, userID string, since time.Time) (int, error)
}

// SessionStore keeps login sessions. Implemented by repository.SessionRepository.
type SessionStore interface {
	Create(ctx context.Context, s *model.Session) error
	Get(ctx context.Context, id string) (*model.Session, error)
	Touch(ctx context.Context, s *model.Session) error
	Delete(ctx context.Context, userID, id string) error
	DeleteAllForUser(ctx context.Context, userID, exceptID string) (int, error)
}

// AuditStore appends audit entries.
type AuditStore interface {
	Create(ctx context.Context, entry *model.AuditLog) error
}

// EmailHistoryStore keeps copies of emails sent to customers.
type EmailHistoryStore interface {
	Create(ctx context.Context, e *model.CustomerEmail) error
	ListByUser(ctx context.Context, userID string, limit int) ([]*model.CustomerEmail, error)
	GetForUser(ctx context.Context, userID, id string) (*model.CustomerEmail, error)
}
