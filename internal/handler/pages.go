package handler

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"net/url"

	"github.com/shopfront/accounts/internal/config"
	"github.com/shopfront/accounts/internal/middleware"
	"github.com/shopfront/accounts/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

// page names, one per template file
const (
	pageHome                  = "home"
	pageLogin                 = "login"
	pageRegister              = "register"
	pagePasswordResetForm     = "password_reset_form"
	pagePasswordResetDone     = "password_reset_done"
	pagePasswordResetConfirm  = "password_reset_confirm"
	pagePasswordResetComplete = "password_reset_complete"
	pageProfile               = "profile"
	pageProfileForm           = "profile_form"
	pageProfileDelete         = "profile_delete"
	pageChangePassword        = "change_password"
	pageEmailList             = "email_list"
	pageEmailDetail           = "email_detail"
)

var pageNames = []string{
	pageHome, pageLogin, pageRegister,
	pagePasswordResetForm, pagePasswordResetDone, pagePasswordResetConfirm, pagePasswordResetComplete,
	pageProfile, pageProfileForm, pageProfileDelete, pageChangePassword,
	pageEmailList, pageEmailDetail,
}

// Pages holds the parsed page templates
type Pages struct {
	byName map[string]*template.Template
}

// LoadPages parses the embedded page templates. Each page is parsed together
// with the shared layout and partials.
func LoadPages() (*Pages, error) {
	p := &Pages{byName: make(map[string]*template.Template, len(pageNames))}
	for _, name := range pageNames {
		t, err := template.ParseFS(templateFS,
			"templates/layout.html",
			"templates/partials.html",
			"templates/"+name+".html",
		)
		if err != nil {
			return nil, fmt.Errorf("failed to parse page %s: %w", name, err)
		}
		p.byName[name] = t
	}
	return p, nil
}

// Form is a submitted form with its values and validation errors
type Form struct {
	Values url.Values
	Errors FormErrors
}

func newForm(values url.Values) Form {
	if values == nil {
		values = url.Values{}
	}
	return Form{Values: values, Errors: FormErrors{Fields: map[string][]string{}}}
}

// pageData is the data every page is rendered with
type pageData struct {
	Site      config.SiteConfig
	User      *model.User
	CSRFToken string
	Next      string

	Form           Form
	Login          Form
	Register       Form
	RegisterAction string

	ValidLink bool
	Action    string

	Emails []*model.CustomerEmail
	Email  *model.CustomerEmail
}

func (h *Handler) newPage(r *http.Request) *pageData {
	return &pageData{
		Site:      h.cfg.Site,
		User:      middleware.CurrentUser(r.Context()),
		CSRFToken: middleware.CSRFToken(r.Context()),
		Form:      newForm(nil),
		Login:     newForm(nil),
		Register:  newForm(nil),
	}
}

// render writes page name with status. Rendering happens into a buffer so a
// template error still yields a clean 500.
func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, name string, data *pageData) {
	t, ok := h.pages.byName[name]
	if !ok {
		h.serverError(w, r, fmt.Errorf("unknown page %q", name))
		return
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		h.serverError(w, r, fmt.Errorf("failed to render %s: %w", name, err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}

func (h *Handler) serverError(w http.ResponseWriter, r *http.Request, err error) {
	h.log.Error().
		Err(err).
		Str("path", r.URL.Path).
		Str("request_id", middleware.GetRequestID(r.Context())).
		Msg("request failed")
	http.Error(w, "A server error occurred.", http.StatusInternalServerError)
}
