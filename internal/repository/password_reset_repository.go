package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopfront/accounts/internal/database"
	"github.com/shopfront/accounts/internal/model"
)

// PasswordResetRepository stores hashed password reset tokens
type PasswordResetRepository struct {
	db *database.Postgres
}

// NewPasswordResetRepository creates a new PasswordResetRepository
func NewPasswordResetRepository(db *database.Postgres) *PasswordResetRepository {
	return &PasswordResetRepository{db: db}
}

// Create stores a new reset token. Only the hash of the raw token is kept.
func (r *PasswordResetRepository) Create(ctx context.Context, token *model.PasswordResetToken) error {
	query := `
		INSERT INTO password_reset_tokens (id, user_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := r.db.ExecContext(ctx, query,
		token.ID, token.UserID, token.TokenHash, token.ExpiresAt, token.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to create password reset token: %w", err)
	}
	return nil
}

// GetByTokenHash looks a token up by the hash of its raw value
func (r *PasswordResetRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*model.PasswordResetToken, error) {
	query := `
		SELECT id, user_id, token_hash, expires_at, used_at, created_at
		FROM password_reset_tokens
		WHERE token_hash = $1
	`
	var t model.PasswordResetToken
	err := r.db.QueryRowContext(ctx, query, tokenHash).
		Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.UsedAt, &t.CreatedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("failed to get password reset token: %w", err)
	}
	return &t, nil
}

// MarkUsed consumes a token. It returns ErrNotFound when the token was already
// consumed, so two concurrent confirmations cannot both succeed.
func (r *PasswordResetRepository) MarkUsed(ctx context.Context, id string) error {
	query := `UPDATE password_reset_tokens SET used_at = $1 WHERE id = $2 AND used_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to mark password reset token as used: %w", err)
	}
	return requireRow(result)
}

// InvalidateAllForUser consumes every outstanding token of a user
func (r *PasswordResetRepository) InvalidateAllForUser(ctx context.Context, userID string) error {
	query := `UPDATE password_reset_tokens SET used_at = $1 WHERE user_id = $2 AND used_at IS NULL`
	if _, err := r.db.ExecContext(ctx, query, time.Now(), userID); err != nil {
		return fmt.Errorf("failed to invalidate password reset tokens: %w", err)
	}
	return nil
}

// CountRecentByUserID counts tokens issued to a user since the given time
func (r *PasswordResetRepository) CountRecentByUserID(ctx context.Context, userID string, since time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM password_reset_tokens WHERE user_id = $1 AND created_at > $2`
	var count int
	if err := r.db.QueryRowContext(ctx, query, userID, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count recent password reset tokens: %w", err)
	}
	return count, nil
}

// CleanupExpired deletes tokens that expired before now
func (r *PasswordResetRepository) CleanupExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM password_reset_tokens WHERE expires_at < $1`, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired password reset tokens: %w", err)
	}
	return result.RowsAffected()
}
