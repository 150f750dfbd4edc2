package email

import (
	"context"
	"errors"
	"strings"
)

// Sender is implemented by every delivery provider.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Message is an outbound email.
type Message struct {
	To       []string `json:"to"`
	Subject  string   `json:"subject"`
	TextBody string   `json:"text_body"`
	HTMLBody string   `json:"html_body,omitempty"`
}

// Validate checks the fields every provider needs
func (m Message) Validate() error {
	if len(m.To) == 0 {
		return PermanentError{Msg: "message has no recipients"}
	}
	for _, to := range m.To {
		if strings.TrimSpace(to) == "" {
			return PermanentError{Msg: "message has an empty recipient"}
		}
	}
	if m.TextBody == "" && m.HTMLBody == "" {
		return PermanentError{Msg: "message has no body"}
	}
	return nil
}

// PermanentError marks a delivery that will never succeed (bad address,
// rejected credentials). Queued messages failing this way are dropped.
type PermanentError struct{ Msg string }

func (e PermanentError) Error() string { return e.Msg }

// TemporaryError marks a delivery worth retrying.
type TemporaryError struct{ Msg string }

func (e TemporaryError) Error() string { return e.Msg }

// IsPermanent reports whether err is, or wraps, a PermanentError
func IsPermanent(err error) bool {
	var pe PermanentError
	return errors.As(err, &pe)
}
