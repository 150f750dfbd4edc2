package repository_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopfront/accounts/internal/model"
	"github.com/shopfront/accounts/internal/repository"
)

func TestPasswordResetRepository_CreateAndGet(t *testing.T) {
	db, mock := newMockDB(t)
	repo := repository.NewPasswordResetRepository(db)
	now := time.Now()
	token := &model.PasswordResetToken{
		ID:        "prt_1",
		UserID:    "usr_1",
		TokenHash: "abc123",
		ExpiresAt: now.Add(time.Hour),
		CreatedAt: now,
	}

	mock.ExpectExec(`INSERT INTO password_reset_tokens`).
		WithArgs("prt_1", "usr_1", "abc123", token.ExpiresAt, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`FROM password_reset_tokens\s+WHERE token_hash = \$1`).
		WithArgs("abc123").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "token_hash", "expires_at", "used_at", "created_at"}).
			AddRow("prt_1", "usr_1", "abc123", token.ExpiresAt, nil, now))

	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, token))

	got, err := repo.GetByTokenHash(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, "usr_1", got.UserID)
	assert.False(t, got.IsUsed())
	assert.False(t, got.IsExpired())
}

func TestPasswordResetRepository_GetMissing(t *testing.T) {
	db, mock := newMockDB(t)
	repo := repository.NewPasswordResetRepository(db)

	mock.ExpectQuery(`FROM password_reset_tokens`).WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByTokenHash(context.Background(), "nope")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestPasswordResetRepository_MarkUsedOnce(t *testing.T) {
	db, mock := newMockDB(t)
	repo := repository.NewPasswordResetRepository(db)

	mock.ExpectExec(`UPDATE password_reset_tokens SET used_at = \$1 WHERE id = \$2 AND used_at IS NULL`).
		WithArgs(sqlmock.AnyArg(), "prt_1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE password_reset_tokens SET used_at = \$1 WHERE id = \$2 AND used_at IS NULL`).
		WithArgs(sqlmock.AnyArg(), "prt_1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ctx := context.Background()
	require.NoError(t, repo.MarkUsed(ctx, "prt_1"))
	assert.ErrorIs(t, repo.MarkUsed(ctx, "prt_1"), repository.ErrNotFound)
}

func TestPasswordResetRepository_InvalidateAndCount(t *testing.T) {
	db, mock := newMockDB(t)
	repo := repository.NewPasswordResetRepository(db)
	since := time.Now().Add(-time.Hour)

	mock.ExpectExec(`UPDATE password_reset_tokens SET used_at = \$1 WHERE user_id = \$2`).
		WithArgs(sqlmock.AnyArg(), "usr_1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM password_reset_tokens`).
		WithArgs("usr_1", since).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectExec(`DELETE FROM password_reset_tokens WHERE expires_at < \$1`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 4))

	ctx := context.Background()
	require.NoError(t, repo.InvalidateAllForUser(ctx, "usr_1"))

	n, err := repo.CountRecentByUserID(ctx, "usr_1", since)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	purged, err := repo.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), purged)
}
