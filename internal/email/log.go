package email

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
)

// LogSender writes messages to the log instead of delivering them
type LogSender struct {
	log zerolog.Logger
}

// NewLogSender creates a LogSender
func NewLogSender(log zerolog.Logger) *LogSender {
	return &LogSender{log: log.With().Str("component", "console_mail").Logger()}
}

// Send logs msg at info level, body included
func (s *LogSender) Send(_ context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	s.log.Info().
		Str("to", strings.Join(msg.To, ", ")).
		Str("subject", msg.Subject).
		Str("body", msg.TextBody).
		Msg("email")
	return nil
}
