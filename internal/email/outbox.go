package email

import (
	"context"
	"sync"
)

// Outbox captures messages in memory instead of delivering them. Tests
// assert on it; the "memory" provider uses it in development.
type Outbox struct {
	mu       sync.Mutex
	messages []Message
}

// NewOutbox returns an empty Outbox
func NewOutbox() *Outbox {
	return &Outbox{}
}

// Send records msg
func (o *Outbox) Send(_ context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	msg.To = append([]string(nil), msg.To...)
	o.messages = append(o.messages, msg)
	return nil
}

// Messages returns a copy of everything sent so far, oldest first
func (o *Outbox) Messages() []Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Message, len(o.messages))
	copy(out, o.messages)
	return out
}

// Len returns the number of captured messages
func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.messages)
}

// Reset empties the outbox
func (o *Outbox) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.messages = nil
}
