package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopfront/accounts/internal/config"
	"github.com/shopfront/accounts/internal/email"
	"github.com/shopfront/accounts/internal/logger"
	"github.com/shopfront/accounts/internal/metrics"
	"github.com/shopfront/accounts/internal/model"
)

// Dispatcher renders communication events, sends them and keeps a copy in
// the customer's email history.
type Dispatcher struct {
	sender    email.Sender
	templates *email.Templates
	history   EmailHistoryStore
	site      config.SiteConfig
	log       *logger.Logger
}

// NewDispatcher creates a new Dispatcher. history may be nil.
func NewDispatcher(sender email.Sender, templates *email.Templates, history EmailHistoryStore, site config.SiteConfig, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		sender:    sender,
		templates: templates,
		history:   history,
		site:      site,
		log:       log.WithComponent("dispatcher"),
	}
}

// Dispatch sends the message for code to a single recipient. The site and
// user fields of data are filled in when empty.
func (d *Dispatcher) Dispatch(ctx context.Context, code model.CommunicationEventCode, user *model.User, to string, data email.TemplateData) error {
	if data.SiteName == "" {
		data.SiteName = d.site.Name
	}
	if data.SiteURL == "" {
		data.SiteURL = d.site.BaseURL()
	}
	if user != nil {
		if data.FullName == "" {
			data.FullName = user.FullName()
		}
		if data.Email == "" {
			data.Email = user.Email
		}
	}

	rendered, err := d.templates.Render(string(code), data)
	if err != nil {
		metrics.RecordEmail(string(code), err)
		return err
	}

	err = d.sender.Send(ctx, email.Message{
		To:       []string{to},
		Subject:  rendered.Subject,
		TextBody: rendered.TextBody,
		HTMLBody: rendered.HTMLBody,
	})
	metrics.RecordEmail(string(code), err)
	userID := ""
	if user != nil {
		userID = user.ID
	}
	d.log.EmailSent(string(code), userID, err)
	if err != nil {
		return fmt.Errorf("failed to send %s email: %w", code, err)
	}

	if user == nil || d.history == nil {
		return nil
	}
	record := &model.CustomerEmail{
		ID:        generateID("eml"),
		UserID:    user.ID,
		Code:      code,
		Recipient: to,
		Subject:   rendered.Subject,
		BodyText:  rendered.TextBody,
		BodyHTML:  rendered.HTMLBody,
		CreatedAt: time.Now(),
	}
	if err := d.history.Create(ctx, record); err != nil {
		d.log.Error().Err(err).Str("user_id", user.ID).Str("code", string(code)).Msg("failed to record sent email")
	}
	return nil
}
