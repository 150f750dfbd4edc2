package handler

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopfront/accounts/internal/middleware"
	"github.com/shopfront/accounts/internal/model"
	"github.com/shopfront/accounts/internal/service"
)

// Named URLs
const (
	summaryURL = "/accounts/"
	profileURL = "/accounts/profile/"
	homeURL    = "/"
)

// Home renders the storefront landing page
func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, pageHome, h.newPage(r))
}

// LoginPage renders the combined login and registration page
func (h *Handler) LoginPage(w http.ResponseWriter, r *http.Request) {
	if middleware.CurrentUser(r.Context()) != nil {
		http.Redirect(w, r, summaryURL, http.StatusFound)
		return
	}
	data := h.newPage(r)
	data.Next = r.URL.Query().Get("next")
	data.RegisterAction = middleware.LoginURL
	h.render(w, r, http.StatusOK, pageLogin, data)
}

// LoginPost handles both forms of the login page, dispatching on the name
// of the submit button
func (h *Handler) LoginPost(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	if r.PostForm.Has("registration_submit") {
		h.register(w, r, pageLogin, middleware.LoginURL)
		return
	}
	h.login(w, r)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	data := h.newPage(r)
	data.Next = r.PostForm.Get("next")
	data.RegisterAction = middleware.LoginURL
	data.Login = newForm(r.PostForm)

	form := bindLogin(r.PostForm)
	data.Login.Errors = validateForm(form)
	if data.Login.Errors.Any() {
		h.render(w, r, http.StatusOK, pageLogin, data)
		return
	}

	user, err := h.accounts.Authenticate(r.Context(), service.LoginRequest{
		Email:     form.Username,
		Password:  form.Password,
		IPAddress: getClientIP(r),
		UserAgent: r.UserAgent(),
	})
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		data.Login.Errors.Add("", "Please enter a correct username and password. Note that both fields may be case-sensitive.")
	case errors.Is(err, service.ErrAccountLocked):
		data.Login.Errors.Add("", "This account is temporarily locked after too many failed attempts. Please try again later.")
	case errors.Is(err, service.ErrAccountNotActive):
		data.Login.Errors.Add("", "This account is inactive.")
	case err != nil:
		h.serverError(w, r, err)
		return
	}
	if data.Login.Errors.Any() {
		h.render(w, r, http.StatusOK, pageLogin, data)
		return
	}

	if !h.startSession(w, r, user) {
		return
	}
	http.Redirect(w, r, h.successURL(data.Next, summaryURL), http.StatusFound)
}

// RegisterPage renders the standalone registration page
func (h *Handler) RegisterPage(w http.ResponseWriter, r *http.Request) {
	if middleware.CurrentUser(r.Context()) != nil {
		http.Redirect(w, r, summaryURL, http.StatusFound)
		return
	}
	data := h.newPage(r)
	data.Next = r.URL.Query().Get("next")
	data.RegisterAction = "/accounts/register/"
	h.render(w, r, http.StatusOK, pageRegister, data)
}

// RegisterPost creates an account from the standalone registration page
func (h *Handler) RegisterPost(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	h.register(w, r, pageRegister, "/accounts/register/")
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request, page, action string) {
	data := h.newPage(r)
	data.Next = r.PostForm.Get("next")
	data.RegisterAction = action
	data.Register = newForm(r.PostForm)

	form := bindRegistration(r.PostForm)
	data.Register.Errors = validateForm(form)
	if data.Register.Errors.Any() {
		h.render(w, r, http.StatusOK, page, data)
		return
	}

	user, err := h.accounts.Register(r.Context(), service.RegisterRequest{
		Email:     form.Email,
		Password:  form.Password1,
		IPAddress: getClientIP(r),
		UserAgent: r.UserAgent(),
	})
	switch {
	case errors.Is(err, service.ErrEmailAlreadyExists):
		data.Register.Errors.Add("registration-email", "A user with that email address already exists")
	case errors.Is(err, service.ErrInvalidEmail):
		data.Register.Errors.Add("registration-email", "Enter a valid email address.")
	case errors.Is(err, service.ErrPasswordTooWeak):
		data.Register.Errors.Add("registration-password2", policyMessage(err))
	case err != nil:
		h.serverError(w, r, err)
		return
	}
	if data.Register.Errors.Any() {
		h.render(w, r, http.StatusOK, page, data)
		return
	}

	if !h.startSession(w, r, user) {
		return
	}
	http.Redirect(w, r, h.successURL(data.Next, summaryURL), http.StatusFound)
}

// Logout ends the current session
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if session := middleware.CurrentSession(r.Context()); session != nil {
		if err := h.accounts.EndSession(r.Context(), session.UserID, session.ID, getClientIP(r), r.UserAgent()); err != nil {
			h.log.Error().Err(err).Str("session_id", session.ID).Msg("failed to end session")
		}
	}
	h.clearSessionCookie(w)
	http.Redirect(w, r, homeURL, http.StatusFound)
}

// startSession logs user in and sets the session cookie. It reports whether
// the caller may continue.
func (h *Handler) startSession(w http.ResponseWriter, r *http.Request, user *model.User) bool {
	// a previous session on this browser is replaced
	if old := middleware.CurrentSession(r.Context()); old != nil {
		if err := h.accounts.EndSession(r.Context(), old.UserID, old.ID, getClientIP(r), r.UserAgent()); err != nil {
			h.log.Warn().Err(err).Str("session_id", old.ID).Msg("failed to end previous session")
		}
	}

	issued, err := h.accounts.StartSession(r.Context(), user, getClientIP(r), r.UserAgent())
	if err != nil {
		h.serverError(w, r, err)
		return false
	}
	h.setSessionCookie(w, issued.Token, int(time.Until(issued.ExpiresAt).Seconds()))
	return true
}

// --- Cookie and request helpers ---

func (h *Handler) setSessionCookie(w http.ResponseWriter, token string, maxAge int) {
	http.SetCookie(w, middleware.NewCookie(h.cfg.Cookie, h.cfg.Cookie.SessionName, token, maxAge, true))
}

func (h *Handler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, middleware.NewCookie(h.cfg.Cookie, h.cfg.Cookie.SessionName, "", -1, true))
}

// successURL returns next when it is safe to redirect to, else fallback
func (h *Handler) successURL(next, fallback string) string {
	if next != "" && isSafeRedirect(next, h.cfg.Site.AllowedHosts) {
		return next
	}
	return fallback
}

// isSafeRedirect accepts relative paths and absolute http(s) URLs on an
// allowed host
func isSafeRedirect(target string, allowedHosts []string) bool {
	target = strings.TrimSpace(target)
	if target == "" || strings.ContainsAny(target, "\\\r\n\t") {
		return false
	}
	if strings.HasPrefix(target, "//") {
		return false
	}

	u, err := url.Parse(target)
	if err != nil {
		return false
	}
	if u.Scheme == "" && u.Host == "" {
		return strings.HasPrefix(u.Path, "/")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	for _, host := range allowedHosts {
		if strings.EqualFold(u.Hostname(), host) {
			return true
		}
	}
	return false
}

// getClientIP extracts the client IP address from the request
func getClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return r.RemoteAddr
}
