package model

import "time"

// CommunicationEventCode identifies a kind of customer notification
type CommunicationEventCode string

const (
	EventPasswordReset   CommunicationEventCode = "PASSWORD_RESET"
	EventPasswordChanged CommunicationEventCode = "PASSWORD_CHANGED"
	EventEmailChanged    CommunicationEventCode = "EMAIL_CHANGED"
	EventRegistration    CommunicationEventCode = "REGISTRATION"
)

// CustomerEmail is a copy of an email sent to a customer, kept for their
// email history.
type CustomerEmail struct {
	ID        string                 `json:"id"`
	UserID    string                 `json:"userId"`
	Code      CommunicationEventCode `json:"code"`
	Recipient string                 `json:"recipient"`
	Subject   string                 `json:"subject"`
	BodyText  string                 `json:"bodyText"`
	BodyHTML  string                 `json:"bodyHtml,omitempty"`
	CreatedAt time.Time              `json:"createdAt"`
}
