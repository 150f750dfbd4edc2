package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopfront/accounts/internal/database"
	"github.com/shopfront/accounts/internal/model"
)

const (
	sessionKeyPrefix      = "session:"
	userSessionsKeyPrefix = "user_sessions:"
)

// SessionRepository keeps login sessions in Redis. Each session lives under
// session:<id> with a TTL; user_sessions:<uid> indexes a user's session IDs.
type SessionRepository struct {
	rdb *database.Redis
}

// NewSessionRepository creates a new SessionRepository
func NewSessionRepository(rdb *database.Redis) *SessionRepository {
	return &SessionRepository{rdb: rdb}
}

// Create stores a session until its ExpiresAt
func (r *SessionRepository) Create(ctx context.Context, s *model.Session) error {
	ttl := time.Until(s.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("session %s already expired", s.ID)
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	indexKey := userSessionsKeyPrefix + s.UserID
	pipe := r.rdb.TxPipeline()
	pipe.Set(ctx, sessionKeyPrefix+s.ID, data, ttl)
	pipe.SAdd(ctx, indexKey, s.ID)
	pipe.Expire(ctx, indexKey, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

// Get loads a session. Missing or expired sessions return ErrNotFound.
func (r *SessionRepository) Get(ctx context.Context, id string) (*model.Session, error) {
	data, err := r.rdb.Get(ctx, sessionKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	var s model.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &s, nil
}

// Touch records activity on a session without extending its expiry
func (r *SessionRepository) Touch(ctx context.Context, s *model.Session) error {
	s.LastActive = time.Now()
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := r.rdb.SetArgs(ctx, sessionKeyPrefix+s.ID, data, redis.SetArgs{KeepTTL: true, Mode: "XX"}).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}

// Delete removes one session
func (r *SessionRepository) Delete(ctx context.Context, userID, id string) error {
	pipe := r.rdb.TxPipeline()
	pipe.Del(ctx, sessionKeyPrefix+id)
	pipe.SRem(ctx, userSessionsKeyPrefix+userID, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteAllForUser removes every session of a user except exceptID, which may
// be empty. It returns the number of sessions removed.
func (r *SessionRepository) DeleteAllForUser(ctx context.Context, userID, exceptID string) (int, error) {
	indexKey := userSessionsKeyPrefix + userID
	ids, err := r.rdb.SMembers(ctx, indexKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list sessions: %w", err)
	}

	var removed int
	pipe := r.rdb.TxPipeline()
	for _, id := range ids {
		if id == exceptID {
			continue
		}
		pipe.Del(ctx, sessionKeyPrefix+id)
		pipe.SRem(ctx, indexKey, id)
		removed++
	}
	if removed == 0 {
		return 0, nil
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to delete sessions: %w", err)
	}
	return removed, nil
}
