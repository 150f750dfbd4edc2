// Package testutil holds in-memory stores and fixtures shared by tests
// across packages.
package testutil

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopfront/accounts/internal/model"
	"github.com/shopfront/accounts/internal/repository"
)

// UserStore is an in-memory service.UserStore. Stored users are copied on
// the way in and out, like rows.
// Set *Err fields to inject errors for specific operations.
type UserStore struct {
	CreateErr        error
	GetByEmailErr    error
	UpdateProfileErr error

	mu    sync.Mutex
	users map[string]*model.User
}

// NewUserStore returns a UserStore seeded with users
func NewUserStore(users ...*model.User) *UserStore {
	s := &UserStore{users: make(map[string]*model.User)}
	for _, u := range users {
		c := *u
		s.users[u.ID] = &c
	}
	return s
}

func (s *UserStore) Create(_ context.Context, user *model.User) error {
	if s.CreateErr != nil {
		return s.CreateErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, user.Email) || u.Username == user.Username {
			return repository.ErrDuplicate
		}
	}
	c := *user
	s.users[user.ID] = &c
	return nil
}

func (s *UserStore) GetByID(_ context.Context, id string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (s *UserStore) GetByEmail(_ context.Context, email string) (*model.User, error) {
	if s.GetByEmailErr != nil {
		return nil, s.GetByEmailErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			c := *u
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *UserStore) ExistsByEmail(_ context.Context, email, excludeID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.ID != excludeID && strings.EqualFold(u.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

func (s *UserStore) UpdateProfile(_ context.Context, user *model.User) error {
	if s.UpdateProfileErr != nil {
		return s.UpdateProfileErr
	}
	return s.update(user.ID, func(u *model.User) {
		u.FirstName = user.FirstName
		u.LastName = user.LastName
		u.Email = user.Email
		u.UpdatedAt = user.UpdatedAt
	})
}

func (s *UserStore) UpdatePasswordHash(_ context.Context, id, hash string) error {
	return s.update(id, func(u *model.User) { u.PasswordHash = hash })
}

func (s *UserStore) UpdateLastLogin(_ context.Context, id string, at time.Time) error {
	return s.update(id, func(u *model.User) { u.LastLogin = &at })
}

func (s *UserStore) IncrementFailedAttempts(_ context.Context, id string) (int, error) {
	var attempts int
	err := s.update(id, func(u *model.User) {
		u.FailedAttempts++
		attempts = u.FailedAttempts
	})
	return attempts, err
}

func (s *UserStore) ResetFailedAttempts(_ context.Context, id string) error {
	return s.update(id, func(u *model.User) {
		u.FailedAttempts = 0
		u.LockedUntil = nil
	})
}

func (s *UserStore) LockUntil(_ context.Context, id string, until time.Time) error {
	return s.update(id, func(u *model.User) { u.LockedUntil = &until })
}

func (s *UserStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.users, id)
	return nil
}

// Len returns the number of stored users
func (s *UserStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

func (s *UserStore) update(id string, fn func(*model.User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	fn(u)
	return nil
}

// ResetTokenStore is an in-memory service.ResetTokenStore
type ResetTokenStore struct {
	mu     sync.Mutex
	tokens map[string]*model.PasswordResetToken
}

// NewResetTokenStore returns an empty ResetTokenStore
func NewResetTokenStore() *ResetTokenStore {
	return &ResetTokenStore{tokens: make(map[string]*model.PasswordResetToken)}
}

func (s *ResetTokenStore) Create(_ context.Context, token *model.PasswordResetToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *token
	s.tokens[token.ID] = &c
	return nil
}

func (s *ResetTokenStore) GetByTokenHash(_ context.Context, tokenHash string) (*model.PasswordResetToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tokens {
		if t.TokenHash == tokenHash {
			c := *t
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *ResetTokenStore) MarkUsed(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[id]
	if !ok || t.UsedAt != nil {
		return repository.ErrNotFound
	}
	now := time.Now()
	t.UsedAt = &now
	return nil
}

func (s *ResetTokenStore) InvalidateAllForUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for _, t := range s.tokens {
		if t.UserID == userID && t.UsedAt == nil {
			t.UsedAt = &now
		}
	}
	return nil
}

func (s *ResetTokenStore) CountRecentByUserID(_ context.Context, userID string, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.tokens {
		if t.UserID == userID && t.CreatedAt.After(since) {
			n++
		}
	}
	return n, nil
}

// Expire moves the expiry of every token into the past
func (s *ResetTokenStore) Expire() {
	s.mu.Lock()
	defer s.mu.Unlock()
	past := time.Now().Add(-time.Minute)
	for _, t := range s.tokens {
		t.ExpiresAt = past
	}
}

// AuditStore records audit entries in memory
type AuditStore struct {
	mu      sync.Mutex
	entries []*model.AuditLog
}

func (s *AuditStore) Create(_ context.Context, entry *model.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

// Actions returns the recorded actions in order
func (s *AuditStore) Actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.Action
	}
	return out
}

// EmailHistoryStore is an in-memory service.EmailHistoryStore
type EmailHistoryStore struct {
	mu     sync.Mutex
	emails []*model.CustomerEmail
}

func (s *EmailHistoryStore) Create(_ context.Context, e *model.CustomerEmail) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *e
	s.emails = append(s.emails, &c)
	return nil
}

func (s *EmailHistoryStore) ListByUser(_ context.Context, userID string, limit int) ([]*model.CustomerEmail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.CustomerEmail
	for _, e := range s.emails {
		if e.UserID == userID {
			c := *e
			out = append(out, &c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *EmailHistoryStore) GetForUser(_ context.Context, userID, id string) (*model.CustomerEmail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.emails {
		if e.ID == id && e.UserID == userID {
			c := *e
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}
