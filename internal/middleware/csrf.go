package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/shopfront/accounts/internal/auth"
)

const (
	// CSRFFormField is the form field carrying the CSRF token
	CSRFFormField = "csrfmiddlewaretoken"
	// CSRFHeader is the header scripts send the CSRF token in
	CSRFHeader = "X-CSRFToken"

	csrfTokenBytes = 32
	csrfMaxAge     = 365 * 24 * 60 * 60
)

// CSRFTokenKey holds the token pages embed in their forms
const CSRFTokenKey contextKey = "csrf_token"

// CSRF implements double-submit protection. Every visitor gets a random
// token cookie; unsafe requests must echo it in a form field or header.
func (m *Middleware) CSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var token string
		if c, err := r.Cookie(m.cfg.Cookie.CSRFName); err == nil && len(c.Value) == 2*csrfTokenBytes {
			token = c.Value
		}

		if !isSafeMethod(r.Method) {
			submitted := r.Header.Get(CSRFHeader)
			if submitted == "" {
				submitted = r.PostFormValue(CSRFFormField)
			}
			if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(submitted)) != 1 {
				m.log.Warn().
					Str("path", r.URL.Path).
					Str("request_id", GetRequestID(r.Context())).
					Bool("cookie_present", token != "").
					Msg("CSRF verification failed")
				http.Error(w, "CSRF verification failed. Request aborted.", http.StatusForbidden)
				return
			}
		}

		if token == "" {
			generated, err := auth.GenerateToken(csrfTokenBytes)
			if err != nil {
				m.log.Error().Err(err).Msg("failed to generate CSRF token")
				http.Error(w, "A server error occurred.", http.StatusInternalServerError)
				return
			}
			token = generated
			http.SetCookie(w, NewCookie(m.cfg.Cookie, m.cfg.Cookie.CSRFName, token, csrfMaxAge, false))
		}

		ctx := context.WithValue(r.Context(), CSRFTokenKey, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CSRFToken returns the token to embed in forms
func CSRFToken(ctx context.Context) string {
	token, _ := ctx.Value(CSRFTokenKey).(string)
	return token
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	}
	return false
}
