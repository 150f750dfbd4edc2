package service

import (
	"context"
	"net"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopfront/accounts/internal/logger"
	"github.com/shopfront/accounts/internal/model"
)

// auditTrail writes audit entries to the store and the log stream. A failed
// write is logged, never returned.
type auditTrail struct {
	store AuditStore
	log   *logger.Logger
}

func (a auditTrail) record(ctx context.Context, userID, action, ipAddress, userAgent string, metadata map[string]interface{}) {
	a.log.AuditLog(action, userID, ipAddress, metadata)
	if a.store == nil {
		return
	}

	resourceType := "user"
	ip := cleanIP(ipAddress)
	entry := &model.AuditLog{
		ID:           generateID("aud"),
		UserID:       &userID,
		Action:       action,
		ResourceType: &resourceType,
		ResourceID:   &userID,
		IPAddress:    &ip,
		UserAgent:    &userAgent,
		Metadata:     metadata,
		CreatedAt:    time.Now(),
	}
	if err := a.store.Create(ctx, entry); err != nil {
		a.log.Error().Err(err).Str("action", action).Msg("failed to create audit log")
	}
}

// generateID returns prefix_ followed by 26 hex characters
func generateID(prefix string) string {
	clean := strings.ReplaceAll(uuid.New().String(), "-", "")
	if prefix == "" {
		return clean
	}
	return prefix + "_" + clean[:26]
}

// generateUsername returns an opaque unique username for accounts that sign
// up with an email only
func generateUsername() string {
	return "u" + strings.ReplaceAll(uuid.New().String(), "-", "")[:29]
}

// isValidEmail accepts a bare addr-spec whose domain has a dot
func isValidEmail(email string) bool {
	if len(email) < 3 || len(email) > 254 {
		return false
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return false
	}
	at := strings.LastIndex(email, "@")
	return at > 0 && strings.Contains(email[at+1:], ".")
}

func cleanIP(ip string) string {
	host, _, err := net.SplitHostPort(ip)
	if err != nil {
		return ip
	}
	return host
}
