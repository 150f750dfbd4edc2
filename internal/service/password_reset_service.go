package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopfront/accounts/internal/auth"
	"github.com/shopfront/accounts/internal/config"
	"github.com/shopfront/accounts/internal/email"
	"github.com/shopfront/accounts/internal/logger"
	"github.com/shopfront/accounts/internal/metrics"
	"github.com/shopfront/accounts/internal/model"
	"github.com/shopfront/accounts/internal/repository"
)

// resetTokenBytes is the size of the random part of a reset link
const resetTokenBytes = 32

// PasswordResetService runs the forgotten password flow
type PasswordResetService struct {
	users       UserStore
	tokens      ResetTokenStore
	sessions    SessionStore
	dispatcher  *Dispatcher
	audit       auditTrail
	argonParams *auth.Argon2Params
	policy      auth.PasswordPolicy
	cfg         *config.Config
	log         *logger.Logger
}

// NewPasswordResetService creates a new PasswordResetService
func NewPasswordResetService(
	users UserStore,
	tokens ResetTokenStore,
	sessions SessionStore,
	auditStore AuditStore,
	dispatcher *Dispatcher,
	cfg *config.Config,
	log *logger.Logger,
) *PasswordResetService {
	log = log.WithComponent("password_reset_service")
	return &PasswordResetService{
		users:      users,
		tokens:     tokens,
		sessions:   sessions,
		dispatcher: dispatcher,
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

// EncodeUID encodes a user id for use in a reset link
func EncodeUID(userID string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(userID))
}

// DecodeUID reverses EncodeUID
func DecodeUID(uidb64 string) (string, error) {
	b, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(uidb64, "="))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// RequestReset emails a reset link to the account registered with
// emailAddr. The result never reveals whether such an account exists.
func (s *PasswordResetService) RequestReset(ctx context.Context, emailAddr, ipAddress, userAgent string) error {
	user, err := s.users.GetByEmail(ctx, strings.TrimSpace(emailAddr))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.log.Debug().Msg("password reset requested for unknown email")
			return nil
		}
		return fmt.Errorf("failed to get user: %w", err)
	}
	if !user.IsActive() {
		s.log.Debug().Str("user_id", user.ID).Msg("password reset requested for inactive account")
		return nil
	}

	if limit := s.cfg.Security.PasswordReset.MaxPerHour; limit > 0 {
		recent, err := s.tokens.CountRecentByUserID(ctx, user.ID, time.Now().Add(-time.Hour))
		if err != nil {
			return fmt.Errorf("failed to count recent reset tokens: %w", err)
		}
		if recent >= limit {
			s.log.Warn().Str("user_id", user.ID).Int("count", recent).Msg("too many password reset requests")
			return nil
		}
	}

	resetURL, tokenID, err := s.issue(ctx, user, true)
	if err != nil {
		return err
	}

	metrics.RecordPasswordReset("requested")
	s.audit.record(ctx, user.ID, model.AuditActionPasswordResetRequest, ipAddress, userAgent, map[string]interface{}{
		"token_id": tokenID,
	})

	if err := s.dispatcher.Dispatch(ctx, model.EventPasswordReset, user, user.Email, email.TemplateData{ResetURL: resetURL}); err != nil {
		s.log.Error().Err(err).Str("user_id", user.ID).Msg("failed to send password reset email")
	}
	return nil
}

// ResetURL issues an extra reset link for user, used in security notices.
// Links the customer already requested stay valid.
func (s *PasswordResetService) ResetURL(ctx context.Context, user *model.User) (string, error) {
	resetURL, _, err := s.issue(ctx, user, false)
	return resetURL, err
}

// issue stores a new reset token for user. With replace set, outstanding
// tokens are invalidated first.
func (s *PasswordResetService) issue(ctx context.Context, user *model.User, replace bool) (string, string, error) {
	if replace {
		if err := s.tokens.InvalidateAllForUser(ctx, user.ID); err != nil {
			s.log.Error().Err(err).Str("user_id", user.ID).Msg("failed to invalidate existing reset tokens")
		}
	}

	tokenRaw, err := auth.GenerateToken(resetTokenBytes)
	if err != nil {
		return "", "", err
	}

	now := time.Now()
	token := &model.PasswordResetToken{
		ID:        generateID("prt"),
		UserID:    user.ID,
		TokenHash: auth.HashToken(tokenRaw),
		ExpiresAt: now.Add(s.cfg.Security.PasswordReset.TokenTTL),
		CreatedAt: now,
	}
	if err := s.tokens.Create(ctx, token); err != nil {
		return "", "", fmt.Errorf("failed to store reset token: %w", err)
	}

	resetURL := fmt.Sprintf("%s/password-reset/confirm/%s/%s/", s.cfg.Site.BaseURL(), EncodeUID(user.ID), tokenRaw)
	return resetURL, token.ID, nil
}

// ValidateLink checks the uid and token of a reset link
func (s *PasswordResetService) ValidateLink(ctx context.Context, uidb64, tokenRaw string) (*model.User, *model.PasswordResetToken, error) {
	userID, err := DecodeUID(uidb64)
	if err != nil || userID == "" || tokenRaw == "" {
		return nil, nil, ErrInvalidToken
	}

	token, err := s.tokens.GetByTokenHash(ctx, auth.HashToken(tokenRaw))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, ErrInvalidToken
		}
		return nil, nil, fmt.Errorf("failed to get reset token: %w", err)
	}
	if token.UserID != userID {
		return nil, nil, ErrInvalidToken
	}
	if token.IsUsed() {
		return nil, nil, ErrResetTokenUsed
	}
	if token.IsExpired() {
		return nil, nil, ErrResetTokenExpired
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, ErrInvalidToken
		}
		return nil, nil, fmt.Errorf("failed to get user: %w", err)
	}
	if !user.IsActive() {
		return nil, nil, ErrInvalidToken
	}
	return user, token, nil
}

// ConfirmResetRequest contains the data submitted on the reset confirm page
type ConfirmResetRequest struct {
	UIDB64      string
	Token       string
	NewPassword string
	IPAddress   string
	UserAgent   string
}

// ConfirmReset sets a new password through a reset link. The link is spent
// and every session of the account is ended.
func (s *PasswordResetService) ConfirmReset(ctx context.Context, req ConfirmResetRequest) error {
	user, token, err := s.ValidateLink(ctx, req.UIDB64, req.Token)
	if err != nil {
		return err
	}

	if err := auth.ValidatePassword(req.NewPassword, s.policy); err != nil {
		return fmt.Errorf("%w: %w", ErrPasswordTooWeak, err)
	}
	passwordHash, err := auth.HashPassword(req.NewPassword, s.argonParams)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	// claim the token before touching the password so a link works once
	if err := s.tokens.MarkUsed(ctx, token.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrResetTokenUsed
		}
		return fmt.Errorf("failed to mark reset token used: %w", err)
	}

	if err := s.users.UpdatePasswordHash(ctx, user.ID, passwordHash); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if err := s.tokens.InvalidateAllForUser(ctx, user.ID); err != nil {
		s.log.Error().Err(err).Msg("failed to invalidate other reset tokens")
	}
	if err := s.users.ResetFailedAttempts(ctx, user.ID); err != nil {
		s.log.Error().Err(err).Msg("failed to reset failed attempts after password reset")
	}
	revoked, err := s.sessions.DeleteAllForUser(ctx, user.ID, "")
	if err != nil {
		s.log.Error().Err(err).Msg("failed to end sessions after password reset")
	}

	metrics.RecordPasswordReset("completed")
	s.audit.record(ctx, user.ID, model.AuditActionPasswordReset, req.IPAddress, req.UserAgent, map[string]interface{}{
		"token_id":         token.ID,
		"revoked_sessions": revoked,
	})
	s.log.Info().Str("user_id", user.ID).Msg("password reset completed")
	return nil
}
