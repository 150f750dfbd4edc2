package router

import (
	"net/http"

	"github.com/shopfront/accounts/internal/config"
	"github.com/shopfront/accounts/internal/handler"
	"github.com/shopfront/accounts/internal/metrics"
	"github.com/shopfront/accounts/internal/middleware"
)

// New creates and configures the HTTP router
func New(h *handler.Handler, mw *middleware.Middleware, cfg *config.Config) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoints
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ready", h.Ready)
	if cfg.Metrics.Enabled {
		mux.Handle("GET "+cfg.Metrics.Path, metrics.Handler())
	}

	mux.HandleFunc("GET /{$}", h.Home)

	limits := cfg.Security.RateLimiting
	loginRateLimit := mw.RateLimit(middleware.Rule("login", limits.Login))
	signupRateLimit := mw.RateLimit(middleware.Rule("signup", limits.Signup))
	resetRateLimit := mw.RateLimit(middleware.Rule("reset", limits.Reset))

	// Login and registration
	mux.HandleFunc("GET /accounts/login/{$}", h.LoginPage)
	mux.Handle("POST /accounts/login/{$}", loginRateLimit(http.HandlerFunc(h.LoginPost)))
	mux.HandleFunc("GET /accounts/register/{$}", h.RegisterPage)
	mux.Handle("POST /accounts/register/{$}", signupRateLimit(http.HandlerFunc(h.RegisterPost)))
	mux.HandleFunc("GET /accounts/logout/{$}", h.Logout)
	mux.HandleFunc("POST /accounts/logout/{$}", h.Logout)

	// Password reset (anonymous only)
	anon := mw.LoginForbidden
	mux.Handle("GET /password-reset/{$}", anon(http.HandlerFunc(h.PasswordResetPage)))
	mux.Handle("POST /password-reset/{$}", anon(resetRateLimit(http.HandlerFunc(h.PasswordResetPost))))
	mux.Handle("GET /password-reset/done/{$}", anon(http.HandlerFunc(h.PasswordResetDone)))
	mux.Handle("GET /password-reset/confirm/{uidb64}/{token}/{$}", anon(http.HandlerFunc(h.PasswordResetConfirmPage)))
	mux.Handle("POST /password-reset/confirm/{uidb64}/{token}/{$}", anon(resetRateLimit(http.HandlerFunc(h.PasswordResetConfirmPost))))
	mux.Handle("GET /password-reset/complete/{$}", anon(http.HandlerFunc(h.PasswordResetComplete)))

	// Account area (login required)
	auth := mw.RequireLogin
	mux.Handle("GET /accounts/{$}", auth(http.HandlerFunc(h.Summary)))
	mux.Handle("GET /accounts/profile/{$}", auth(http.HandlerFunc(h.Profile)))
	mux.Handle("GET /accounts/profile/edit/{$}", auth(http.HandlerFunc(h.ProfileEditPage)))
	mux.Handle("POST /accounts/profile/edit/{$}", auth(http.HandlerFunc(h.ProfileEditPost)))
	mux.Handle("GET /accounts/profile/delete/{$}", auth(http.HandlerFunc(h.ProfileDeletePage)))
	mux.Handle("POST /accounts/profile/delete/{$}", auth(http.HandlerFunc(h.ProfileDeletePost)))
	mux.Handle("GET /accounts/change-password/{$}", auth(http.HandlerFunc(h.ChangePasswordPage)))
	mux.Handle("POST /accounts/change-password/{$}", auth(http.HandlerFunc(h.ChangePasswordPost)))
	mux.Handle("GET /accounts/emails/{$}", auth(http.HandlerFunc(h.EmailList)))
	mux.Handle("GET /accounts/emails/{id}/{$}", auth(http.HandlerFunc(h.EmailDetail)))

	// Apply middleware stack
	var handler http.Handler = mux

	// Route metrics sit directly on the mux
	handler = mw.Metrics(handler)

	// Session lookup
	handler = mw.Session(handler)

	// CSRF protection for every unsafe request
	handler = mw.CSRF(handler)

	// Security headers
	handler = mw.SecurityHeaders(handler)

	// Request logging
	handler = mw.Logger(handler)

	// Request ID
	handler = mw.RequestID(handler)

	// Panic recovery (outermost)
	handler = mw.Recover(handler)

	return handler
}
