package email

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/wneessen/go-mail"
)

// SMTPConfig configures SMTPSender
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	// Insecure allows a relay without STARTTLS, for local mail catchers
	Insecure bool
	Timeout  time.Duration
}

// SMTPSender delivers mail through an SMTP relay
type SMTPSender struct {
	cfg  SMTPConfig
	from Address
	log  zerolog.Logger
}

// NewSMTPSender creates an SMTPSender
func NewSMTPSender(cfg SMTPConfig, from Address, log zerolog.Logger) *SMTPSender {
	return &SMTPSender{
		cfg:  cfg,
		from: from,
		log:  log.With().Str("component", "smtp_sender").Logger(),
	}
}

// Send dials the relay and delivers msg
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	m, err := buildMsg(s.from, msg)
	if err != nil {
		return err
	}

	tlsPolicy := mail.TLSMandatory
	if s.cfg.Insecure {
		tlsPolicy = mail.TLSOpportunistic
	}
	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
		mail.WithTLSPolicy(tlsPolicy),
	}
	if s.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}

	c, err := mail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return PermanentError{Msg: "smtp client init failed: " + err.Error()}
	}

	if err := c.DialAndSendWithContext(ctx, m); err != nil {
		s.log.Error().Err(err).Str("subject", msg.Subject).Msg("smtp send failed")
		return classifySMTPError(err)
	}

	s.log.Debug().Int("recipients", len(msg.To)).Str("subject", msg.Subject).Msg("smtp send ok")
	return nil
}

// classifySMTPError treats authentication and 5xx mailbox failures as
// permanent and everything else as retryable.
func classifySMTPError(err error) error {
	text := err.Error()
	for _, marker := range []string{"535", "5.7.8", "550", "553", "authentication"} {
		if strings.Contains(text, marker) {
			return PermanentError{Msg: "smtp rejected message: " + text}
		}
	}
	return TemporaryError{Msg: "smtp transient failure: " + text}
}
