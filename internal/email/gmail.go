package email

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GmailConfig holds the credentials for GmailSender. Either CredentialsJSON
// (a service account with domain-wide delegation) or the ClientID,
// ClientSecret and RefreshToken triple must be set.
type GmailConfig struct {
	CredentialsJSON string
	ClientID        string
	ClientSecret    string
	RefreshToken    string
}

// GmailSender delivers mail through the Gmail API
type GmailSender struct {
	service *gmail.Service
	from    Address
}

// NewGmailSender creates a GmailSender, choosing the credential flow from cfg
func NewGmailSender(ctx context.Context, cfg GmailConfig, from Address) (*GmailSender, error) {
	if from.Email == "" {
		return nil, errors.New("gmail: sender address is required")
	}

	var client *http.Client
	switch {
	case cfg.CredentialsJSON != "":
		jwtConfig, err := google.JWTConfigFromJSON([]byte(cfg.CredentialsJSON), gmail.GmailSendScope)
		if err != nil {
			return nil, fmt.Errorf("gmail: failed to parse credentials: %w", err)
		}
		// impersonate the sender mailbox
		jwtConfig.Subject = from.Email
		client = jwtConfig.Client(ctx)
	case cfg.RefreshToken != "":
		oauthCfg := &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{gmail.GmailSendScope},
		}
		client = oauthCfg.Client(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})
	default:
		return nil, errors.New("gmail: credentials JSON or refresh token is required")
	}

	svc, err := gmail.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("gmail: failed to create service: %w", err)
	}

	return &GmailSender{service: svc, from: from}, nil
}

// Send uploads msg as a raw MIME message
func (g *GmailSender) Send(ctx context.Context, msg Message) error {
	raw, err := renderMIME(g.from, msg)
	if err != nil {
		return err
	}

	gmailMsg := &gmail.Message{
		Raw: base64.URLEncoding.EncodeToString(raw),
	}
	if _, err := g.service.Users.Messages.Send("me", gmailMsg).Context(ctx).Do(); err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code >= 400 && apiErr.Code < 500 && apiErr.Code != http.StatusTooManyRequests {
			return PermanentError{Msg: "gmail: rejected message: " + err.Error()}
		}
		return TemporaryError{Msg: "gmail: failed to send email: " + err.Error()}
	}
	return nil
}
