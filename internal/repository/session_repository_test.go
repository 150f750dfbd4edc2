package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopfront/accounts/internal/model"
	"github.com/shopfront/accounts/internal/repository"
	"github.com/shopfront/accounts/internal/testutil"
)

func newSession(id, userID string, ttl time.Duration) *model.Session {
	now := time.Now()
	return &model.Session{
		ID:         id,
		UserID:     userID,
		IPAddress:  "127.0.0.1",
		CreatedAt:  now,
		LastActive: now,
		ExpiresAt:  now.Add(ttl),
	}
}

func TestSessionRepository_Lifecycle(t *testing.T) {
	rdb, mr := testutil.NewRedis(t)
	repo := repository.NewSessionRepository(rdb)
	ctx := context.Background()

	s := newSession("s1", "usr_1", time.Hour)
	require.NoError(t, repo.Create(ctx, s))
	assert.True(t, mr.Exists("session:s1"))
	assert.True(t, mr.Exists("user_sessions:usr_1"))

	got, err := repo.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "usr_1", got.UserID)

	require.NoError(t, repo.Delete(ctx, "usr_1", "s1"))
	_, err = repo.Get(ctx, "s1")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestSessionRepository_Expires(t *testing.T) {
	rdb, mr := testutil.NewRedis(t)
	repo := repository.NewSessionRepository(rdb)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newSession("s1", "usr_1", time.Minute)))
	mr.FastForward(2 * time.Minute)

	_, err := repo.Get(ctx, "s1")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestSessionRepository_RejectsExpired(t *testing.T) {
	rdb, _ := testutil.NewRedis(t)
	repo := repository.NewSessionRepository(rdb)

	err := repo.Create(context.Background(), newSession("s1", "usr_1", -time.Second))
	assert.Error(t, err)
}

func TestSessionRepository_TouchKeepsTTL(t *testing.T) {
	rdb, mr := testutil.NewRedis(t)
	repo := repository.NewSessionRepository(rdb)
	ctx := context.Background()

	s := newSession("s1", "usr_1", time.Hour)
	require.NoError(t, repo.Create(ctx, s))
	before := mr.TTL("session:s1")

	require.NoError(t, repo.Touch(ctx, s))
	assert.Equal(t, before, mr.TTL("session:s1"))

	// touching a deleted session does not resurrect it
	require.NoError(t, repo.Delete(ctx, "usr_1", "s1"))
	require.NoError(t, repo.Touch(ctx, s))
	assert.False(t, mr.Exists("session:s1"))
}

func TestSessionRepository_DeleteAllForUser(t *testing.T) {
	rdb, _ := testutil.NewRedis(t)
	repo := repository.NewSessionRepository(rdb)
	ctx := context.Background()

	for _, id := range []string{"s1", "s2", "s3"} {
		require.NoError(t, repo.Create(ctx, newSession(id, "usr_1", time.Hour)))
	}
	require.NoError(t, repo.Create(ctx, newSession("other", "usr_2", time.Hour)))

	n, err := repo.DeleteAllForUser(ctx, "usr_1", "s2")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = repo.Get(ctx, "s2")
	assert.NoError(t, err)
	_, err = repo.Get(ctx, "s1")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = repo.Get(ctx, "other")
	assert.NoError(t, err)

	n, err = repo.DeleteAllForUser(ctx, "usr_1", "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
