package email

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopfront/accounts/internal/config"
)

// Provider names accepted in email.provider
const (
	ProviderSMTP    = "smtp"
	ProviderGmail   = "gmail"
	ProviderQueue   = "queue"
	ProviderMemory  = "memory"
	ProviderConsole = "console"
)

// FromAddress returns the configured sender identity
func FromAddress(cfg config.EmailConfig) Address {
	return Address{Name: cfg.FromName, Email: cfg.FromAddress}
}

// NewSender builds the Sender selected by cfg.Email.Provider. The returned
// close function releases provider resources and is never nil.
func NewSender(ctx context.Context, cfg *config.Config, log zerolog.Logger) (Sender, func() error, error) {
	noop := func() error { return nil }
	from := FromAddress(cfg.Email)

	switch cfg.Email.Provider {
	case ProviderSMTP:
		return NewSMTPSender(SMTPConfig{
			Host:     cfg.Email.SMTP.Host,
			Port:     cfg.Email.SMTP.Port,
			Username: cfg.Email.SMTP.Username,
			Password: cfg.Email.SMTP.Password,
			Insecure: cfg.Email.SMTP.Insecure,
			Timeout:  cfg.Email.SMTP.Timeout,
		}, from, log), noop, nil

	case ProviderGmail:
		s, err := NewGmailSender(ctx, GmailConfig{
			CredentialsJSON: cfg.Email.Gmail.CredentialsJSON,
			ClientID:        cfg.Email.Gmail.ClientID,
			ClientSecret:    cfg.Email.Gmail.ClientSecret,
			RefreshToken:    cfg.Email.Gmail.RefreshToken,
		}, from)
		if err != nil {
			return nil, noop, err
		}
		return s, noop, nil

	case ProviderQueue:
		conn, ch, err := DialQueue(QueueConfigFrom(cfg.AMQP))
		if err != nil {
			return nil, noop, err
		}
		return NewQueueSender(ch, cfg.AMQP.Exchange), conn.Close, nil

	case ProviderMemory:
		return NewOutbox(), noop, nil

	case ProviderConsole, "":
		return NewLogSender(log), noop, nil

	default:
		return nil, noop, fmt.Errorf("unknown email provider %q", cfg.Email.Provider)
	}
}

// QueueConfigFrom maps the amqp config section
func QueueConfigFrom(cfg config.AMQPConfig) QueueConfig {
	return QueueConfig{
		URL:      cfg.URL,
		Exchange: cfg.Exchange,
		Queue:    cfg.Queue,
		Prefetch: cfg.Prefetch,
	}
}
