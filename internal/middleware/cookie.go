package middleware

import (
	"net/http"
	"strings"

	"github.com/shopfront/accounts/internal/config"
)

// NewCookie builds a cookie with the site-wide domain, Secure and SameSite
// settings. A negative maxAge deletes the cookie.
func NewCookie(cfg config.CookieConfig, name, value string, maxAge int, httpOnly bool) *http.Cookie {
	sameSite := http.SameSiteLaxMode
	switch strings.ToLower(cfg.SameSite) {
	case "strict":
		sameSite = http.SameSiteStrictMode
	case "none":
		sameSite = http.SameSiteNoneMode
	}

	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   cfg.Domain,
		MaxAge:   maxAge,
		HttpOnly: httpOnly,
		Secure:   cfg.Secure,
		SameSite: sameSite,
	}
}
