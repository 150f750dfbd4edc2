package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopfront/accounts/internal/auth"
	"github.com/shopfront/accounts/internal/config"
	"github.com/shopfront/accounts/internal/email"
	"github.com/shopfront/accounts/internal/logger"
	"github.com/shopfront/accounts/internal/metrics"
	"github.com/shopfront/accounts/internal/model"
	"github.com/shopfront/accounts/internal/repository"
)

// emailHistoryLimit bounds the email history page
const emailHistoryLimit = 100

// ResetLinker issues one-off password reset links. Implemented by
// PasswordResetService.
type ResetLinker interface {
	ResetURL(ctx context.Context, user *model.User) (string, error)
}

// AccountService handles customer accounts, login sessions and profile changes
type AccountService struct {
	users       UserStore
	sessions    SessionStore
	history     EmailHistoryStore
	resets      ResetLinker
	dispatcher  *Dispatcher
	tokens      *auth.SessionTokens
	audit       auditTrail
	argonParams *auth.Argon2Params
	policy      auth.PasswordPolicy
	cfg         *config.Config
	log         *logger.Logger
}

// NewAccountService creates a new AccountService
func NewAccountService(
	users UserStore,
	sessions SessionStore,
	auditStore AuditStore,
	history EmailHistoryStore,
	resets ResetLinker,
	dispatcher *Dispatcher,
	tokens *auth.SessionTokens,
	cfg *config.Config,
	log *logger.Logger,
) *AccountService {
	log = log.WithComponent("account_service")
	return &AccountService{
		users:      users,
		sessions:   sessions,
		history:    history,
		resets:     resets,
		dispatcher: dispatcher,
		tokens:     tokens,
		audit:      auditTrail{store: auditStore, log: log},
		argonParams: auth.NewParams(
			cfg.Security.Password.Argon2Memory,
			cfg.Security.Password.Argon2Iterations,
			cfg.Security.Password.Argon2Parallelism,
		),
		policy: auth.PasswordPolicy{
			MinLength:    cfg.Security.Password.MinLength,
			RejectCommon: cfg.Security.Password.RejectCommon,
		},
		cfg: cfg,
		log: log,
	}
}

// CreateUser creates an active account without applying the password
// policy. It backs the createuser command and test fixtures.
func (s *AccountService) CreateUser(ctx context.Context, username, emailAddr, password string) (*model.User, error) {
	emailAddr = auth.NormalizeEmail(emailAddr)
	if !isValidEmail(emailAddr) {
		return nil, ErrInvalidEmail
	}
	if username == "" {
		username = generateUsername()
	}

	exists, err := s.users.ExistsByEmail(ctx, emailAddr, "")
	if err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if exists {
		return nil, ErrEmailAlreadyExists
	}

	passwordHash, err := auth.HashPassword(password, s.argonParams)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now()
	user := &model.User{
		ID:           generateID("usr"),
		Username:     username,
		Email:        emailAddr,
		PasswordHash: passwordHash,
		Status:       model.UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			// the email was free a moment ago, so either the username is
			// taken or a concurrent signup won the race for the address
			if taken, _ := s.users.ExistsByEmail(ctx, emailAddr, ""); taken {
				return nil, ErrEmailAlreadyExists
			}
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// RegisterRequest contains the data for registering a new customer
type RegisterRequest struct {
	Email     string
	Password  string
	IPAddress string
	UserAgent string
}

// Register creates a customer account and sends the welcome email
func (s *AccountService) Register(ctx context.Context, req RegisterRequest) (*model.User, error) {
	emailAddr := auth.NormalizeEmail(req.Email)
	if !isValidEmail(emailAddr) {
		return nil, ErrInvalidEmail
	}

	exists, err := s.users.ExistsByEmail(ctx, emailAddr, "")
	if err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if exists {
		return nil, ErrEmailAlreadyExists
	}

	if err := auth.ValidatePassword(req.Password, s.policy); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPasswordTooWeak, err)
	}

	user, err := s.CreateUser(ctx, "", emailAddr, req.Password)
	if err != nil {
		return nil, err
	}

	metrics.RecordRegistration()
	s.audit.record(ctx, user.ID, model.AuditActionRegister, req.IPAddress, req.UserAgent, nil)
	s.log.Info().Str("user_id", user.ID).Msg("customer registered")

	if err := s.dispatcher.Dispatch(ctx, model.EventRegistration, user, user.Email, email.TemplateData{}); err != nil {
		s.log.Error().Err(err).Str("user_id", user.ID).Msg("failed to send registration email")
	}
	return user, nil
}

// LoginRequest contains login form data
type LoginRequest struct {
	Email     string
	Password  string
	IPAddress string
	UserAgent string
}

// Authenticate checks an email and password pair. Email matching ignores case.
func (s *AccountService) Authenticate(ctx context.Context, req LoginRequest) (*model.User, error) {
	user, err := s.users.GetByEmail(ctx, strings.TrimSpace(req.Email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			metrics.RecordLogin("failed")
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if user.IsLocked() {
		metrics.RecordLogin("locked")
		s.audit.record(ctx, user.ID, model.AuditActionLoginFailed, req.IPAddress, req.UserAgent, map[string]interface{}{
			"reason": "account_locked",
		})
		return nil, ErrAccountLocked
	}

	match, err := auth.VerifyPassword(req.Password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("failed to verify password: %w", err)
	}
	if !match {
		metrics.RecordLogin("failed")
		attempts, err := s.users.IncrementFailedAttempts(ctx, user.ID)
		if err != nil {
			s.log.Error().Err(err).Str("user_id", user.ID).Msg("failed to count failed attempt")
		}
		s.handleFailedLogin(ctx, user.ID, attempts)
		s.audit.record(ctx, user.ID, model.AuditActionLoginFailed, req.IPAddress, req.UserAgent, map[string]interface{}{
			"reason":          "invalid_password",
			"failed_attempts": attempts,
		})
		return nil, ErrInvalidCredentials
	}

	if !user.IsActive() {
		metrics.RecordLogin("failed")
		return nil, ErrAccountNotActive
	}

	if user.FailedAttempts > 0 || user.LockedUntil != nil {
		if err := s.users.ResetFailedAttempts(ctx, user.ID); err != nil {
			s.log.Error().Err(err).Str("user_id", user.ID).Msg("failed to reset failed attempts")
		}
	}

	// upgrade hashes made with older argon2 parameters
	if auth.NeedsRehash(user.PasswordHash, s.argonParams) {
		if hash, err := auth.HashPassword(req.Password, s.argonParams); err == nil {
			if err := s.users.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
				s.log.Warn().Err(err).Str("user_id", user.ID).Msg("failed to rehash password")
			}
		}
	}

	now := time.Now()
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		s.log.Error().Err(err).Str("user_id", user.ID).Msg("failed to update last login")
	}
	user.LastLogin = &now
	user.FailedAttempts = 0
	user.LockedUntil = nil

	metrics.RecordLogin("success")
	s.audit.record(ctx, user.ID, model.AuditActionLogin, req.IPAddress, req.UserAgent, nil)
	return user, nil
}

// IssuedSession is a started login session and its signed cookie value
type IssuedSession struct {
	SessionID string
	Token     string
	ExpiresAt time.Time
}

// StartSession stores a new session for user and signs a token for it
func (s *AccountService) StartSession(ctx context.Context, user *model.User, ipAddress, userAgent string) (*IssuedSession, error) {
	now := time.Now()
	sessionID := uuid.NewString()

	token, expiresAt, err := s.tokens.Issue(user.ID, sessionID, now)
	if err != nil {
		return nil, err
	}

	session := &model.Session{
		ID:         sessionID,
		UserID:     user.ID,
		IPAddress:  cleanIP(ipAddress),
		UserAgent:  userAgent,
		CreatedAt:  now,
		LastActive: now,
		ExpiresAt:  expiresAt,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	s.log.Info().Str("user_id", user.ID).Str("session_id", sessionID).Msg("session started")
	return &IssuedSession{SessionID: sessionID, Token: token, ExpiresAt: expiresAt}, nil
}

// ResolveSession verifies a session token and loads the session and its user
func (s *AccountService) ResolveSession(ctx context.Context, token string) (*model.User, *model.Session, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return nil, nil, ErrSessionInvalid
	}

	session, err := s.sessions.Get(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, ErrSessionInvalid
		}
		return nil, nil, fmt.Errorf("failed to load session: %w", err)
	}
	if session.UserID != claims.Subject || session.IsExpired() {
		return nil, nil, ErrSessionInvalid
	}

	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, ErrSessionInvalid
		}
		return nil, nil, fmt.Errorf("failed to load user: %w", err)
	}
	if !user.IsActive() {
		return nil, nil, ErrSessionInvalid
	}

	if time.Since(session.LastActive) > time.Minute {
		session.LastActive = time.Now()
		if err := s.sessions.Touch(ctx, session); err != nil && !errors.Is(err, repository.ErrNotFound) {
			s.log.Warn().Err(err).Str("session_id", session.ID).Msg("failed to touch session")
		}
	}
	return user, session, nil
}

// EndSession logs a session out
func (s *AccountService) EndSession(ctx context.Context, userID, sessionID, ipAddress, userAgent string) error {
	if err := s.sessions.Delete(ctx, userID, sessionID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	s.audit.record(ctx, userID, model.AuditActionLogout, ipAddress, userAgent, map[string]interface{}{
		"session_id": sessionID,
	})
	return nil
}

// GetUser returns the account with id
func (s *AccountService) GetUser(ctx context.Context, id string) (*model.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// ProfileUpdate holds the editable profile fields
type ProfileUpdate struct {
	FirstName string
	LastName  string
	Email     string
	IPAddress string
	UserAgent string
}

// UpdateProfile saves profile changes. When the email address changes the
// previous address is told about it.
func (s *AccountService) UpdateProfile(ctx context.Context, userID string, upd ProfileUpdate) (*model.User, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	newEmail := auth.NormalizeEmail(upd.Email)
	if !isValidEmail(newEmail) {
		return nil, ErrInvalidEmail
	}
	oldEmail := user.Email
	emailChanged := !auth.SameEmail(oldEmail, newEmail)

	if emailChanged {
		exists, err := s.users.ExistsByEmail(ctx, newEmail, user.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to check email: %w", err)
		}
		if exists {
			return nil, ErrEmailAlreadyExists
		}
	}

	user.FirstName = strings.TrimSpace(upd.FirstName)
	user.LastName = strings.TrimSpace(upd.LastName)
	user.Email = newEmail
	user.UpdatedAt = time.Now()

	if err := s.users.UpdateProfile(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrEmailAlreadyExists
		}
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}

	s.audit.record(ctx, user.ID, model.AuditActionProfileUpdate, upd.IPAddress, upd.UserAgent, nil)
	if !emailChanged {
		return user, nil
	}

	s.audit.record(ctx, user.ID, model.AuditActionEmailChange, upd.IPAddress, upd.UserAgent, map[string]interface{}{
		"old_email": oldEmail,
		"new_email": newEmail,
	})
	s.notify(ctx, model.EventEmailChanged, user, oldEmail, email.TemplateData{NewEmail: newEmail})
	return user, nil
}

// ChangePasswordRequest contains the data for changing a password
type ChangePasswordRequest struct {
	UserID      string
	SessionID   string
	OldPassword string
	NewPassword string
	IPAddress   string
	UserAgent   string
}

// ChangePassword replaces the password of a logged-in customer. Every other
// session of the customer is ended; SessionID stays valid.
func (s *AccountService) ChangePassword(ctx context.Context, req ChangePasswordRequest) error {
	user, err := s.GetUser(ctx, req.UserID)
	if err != nil {
		return err
	}

	match, err := auth.VerifyPassword(req.OldPassword, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("failed to verify password: %w", err)
	}
	if !match {
		s.audit.record(ctx, user.ID, model.AuditActionPasswordChange, req.IPAddress, req.UserAgent, map[string]interface{}{
			"status": "failed",
			"reason": "invalid_current_password",
		})
		return ErrInvalidCredentials
	}

	if err := auth.ValidatePassword(req.NewPassword, s.policy); err != nil {
		return fmt.Errorf("%w: %w", ErrPasswordTooWeak, err)
	}

	passwordHash, err := auth.HashPassword(req.NewPassword, s.argonParams)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.users.UpdatePasswordHash(ctx, user.ID, passwordHash); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	revoked, err := s.sessions.DeleteAllForUser(ctx, user.ID, req.SessionID)
	if err != nil {
		s.log.Error().Err(err).Str("user_id", user.ID).Msg("failed to end other sessions after password change")
	}

	s.audit.record(ctx, user.ID, model.AuditActionPasswordChange, req.IPAddress, req.UserAgent, map[string]interface{}{
		"status":           "success",
		"revoked_sessions": revoked,
	})
	s.log.Info().Str("user_id", user.ID).Int("revoked_sessions", revoked).Msg("password changed")

	s.notify(ctx, model.EventPasswordChanged, user, user.Email, email.TemplateData{})
	return nil
}

// DeleteAccount removes the account after confirming its password
func (s *AccountService) DeleteAccount(ctx context.Context, userID, password, ipAddress, userAgent string) error {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}

	match, err := auth.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("failed to verify password: %w", err)
	}
	if !match {
		return ErrInvalidCredentials
	}

	// audit rows keep the user id after the account is gone
	s.audit.record(ctx, user.ID, model.AuditActionAccountDelete, ipAddress, userAgent, nil)

	if _, err := s.sessions.DeleteAllForUser(ctx, user.ID, ""); err != nil {
		s.log.Error().Err(err).Str("user_id", user.ID).Msg("failed to end sessions of deleted account")
	}
	if err := s.users.Delete(ctx, user.ID); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	s.log.Info().Str("user_id", user.ID).Msg("account deleted")
	return nil
}

// ListEmails returns the most recent emails sent to the customer
func (s *AccountService) ListEmails(ctx context.Context, userID string) ([]*model.CustomerEmail, error) {
	emails, err := s.history.ListByUser(ctx, userID, emailHistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list emails: %w", err)
	}
	return emails, nil
}

// GetEmail returns one email from the customer's history
func (s *AccountService) GetEmail(ctx context.Context, userID, id string) (*model.CustomerEmail, error) {
	e, err := s.history.GetForUser(ctx, userID, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get email: %w", err)
	}
	return e, nil
}

// notify sends a security notification carrying a fresh reset link. Failures
// are logged; the change that triggered it has already been saved.
func (s *AccountService) notify(ctx context.Context, code model.CommunicationEventCode, user *model.User, to string, data email.TemplateData) {
	resetURL, err := s.resets.ResetURL(ctx, user)
	if err != nil {
		s.log.Error().Err(err).Str("user_id", user.ID).Msg("failed to issue reset link for notification")
	}
	data.ResetURL = resetURL

	if err := s.dispatcher.Dispatch(ctx, code, user, to, data); err != nil {
		s.log.Error().Err(err).Str("user_id", user.ID).Str("code", string(code)).Msg("failed to send notification")
	}
}

// handleFailedLogin manages progressive account lockout
func (s *AccountService) handleFailedLogin(ctx context.Context, userID string, attempts int) {
	if !s.cfg.Security.Lockout.Enabled {
		return
	}

	lockDuration := lockoutDuration(attempts)
	if lockDuration == 0 {
		return
	}
	if err := s.users.LockUntil(ctx, userID, time.Now().Add(lockDuration)); err != nil {
		s.log.Error().Err(err).Str("user_id", userID).Msg("failed to lock account")
		return
	}
	s.log.Warn().
		Str("user_id", userID).
		Int("attempts", attempts).
		Dur("lock_duration", lockDuration).
		Msg("account locked due to failed attempts")
}

func lockoutDuration(attempts int) time.Duration {
	switch {
	case attempts >= 20:
		return 24 * 365 * time.Hour
	case attempts >= 15:
		return 2 * time.Hour
	case attempts >= 10:
		return 30 * time.Minute
	case attempts >= 5:
		return 5 * time.Minute
	}
	return 0
}
