package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/shopfront/accounts/internal/model"
	"github.com/shopfront/accounts/internal/service"
)

// Context keys for the logged-in customer
const (
	UserKey    contextKey = "user"
	SessionKey contextKey = "session"
)

// LoginURL is where RequireLogin sends anonymous visitors
const LoginURL = "/accounts/login/"

// Session resolves the session cookie and stores the customer and session in
// the request context. Requests without a valid cookie continue anonymously.
func (m *Middleware) Session(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(m.cfg.Cookie.SessionName)
		if err != nil || cookie.Value == "" {
			next.ServeHTTP(w, r)
			return
		}

		user, session, err := m.sessions.ResolveSession(r.Context(), cookie.Value)
		if err != nil {
			if !errors.Is(err, service.ErrSessionInvalid) {
				m.log.Error().Err(err).Msg("failed to resolve session")
			}
			http.SetCookie(w, NewCookie(m.cfg.Cookie, m.cfg.Cookie.SessionName, "", -1, true))
			next.ServeHTTP(w, r)
			return
		}

		ctx := context.WithValue(r.Context(), UserKey, user)
		ctx = context.WithValue(ctx, SessionKey, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireLogin redirects anonymous visitors to the login page, keeping the
// requested URL in next.
func (m *Middleware) RequireLogin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if CurrentUser(r.Context()) == nil {
			target := LoginURL + "?next=" + url.QueryEscape(r.URL.RequestURI())
			http.Redirect(w, r, target, http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// LoginForbidden rejects logged-in customers with 403
func (m *Middleware) LoginForbidden(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if CurrentUser(r.Context()) != nil {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// CurrentUser returns the logged-in customer, or nil
func CurrentUser(ctx context.Context) *model.User {
	user, _ := ctx.Value(UserKey).(*model.User)
	return user
}

// CurrentSession returns the session of the logged-in customer, or nil
func CurrentSession(ctx context.Context) *model.Session {
	session, _ := ctx.Value(SessionKey).(*model.Session)
	return session
}
