package email

import (
	"bytes"
	"fmt"

	"github.com/wneessen/go-mail"
)

// Address is the From identity used for outbound mail
type Address struct {
	Name  string
	Email string
}

// buildMsg converts msg into a go-mail message with a plain text body and,
// when present, an HTML alternative.
func buildMsg(from Address, msg Message) (*mail.Msg, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	m := mail.NewMsg()
	var err error
	if from.Name != "" {
		err = m.FromFormat(from.Name, from.Email)
	} else {
		err = m.From(from.Email)
	}
	if err != nil {
		return nil, PermanentError{Msg: "invalid from address: " + err.Error()}
	}
	if err := m.To(msg.To...); err != nil {
		return nil, PermanentError{Msg: "invalid to address: " + err.Error()}
	}
	m.Subject(msg.Subject)
	m.SetDate()
	m.SetMessageID()

	text := msg.TextBody
	if text == "" {
		text = msg.HTMLBody
		m.SetBodyString(mail.TypeTextHTML, text)
		return m, nil
	}
	m.SetBodyString(mail.TypeTextPlain, text)
	if msg.HTMLBody != "" {
		m.AddAlternativeString(mail.TypeTextHTML, msg.HTMLBody)
	}
	return m, nil
}

// renderMIME returns the RFC 5322 encoding of msg
func renderMIME(from Address, msg Message) ([]byte, error) {
	m, err := buildMsg(from, msg)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := m.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	return buf.Bytes(), nil
}
