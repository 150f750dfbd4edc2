package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 336*time.Hour, cfg.Security.Session.TTL)
	assert.Equal(t, time.Hour, cfg.Security.PasswordReset.TokenTTL)
	assert.Equal(t, 6, cfg.Security.Password.MinLength)
	assert.True(t, cfg.Security.Lockout.Enabled)
	assert.Equal(t, RateLimitRule{Limit: 10, Window: 15 * time.Minute}, cfg.Security.RateLimiting.Login)
	assert.Equal(t, "sessionid", cfg.Cookie.SessionName)
	assert.Equal(t, "csrftoken", cfg.Cookie.CSRFName)
	assert.Equal(t, "console", cfg.Email.Provider)
	assert.Equal(t, []string{"example.com"}, cfg.Site.AllowedHosts)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("SHOPFRONT_SERVER_PORT", "9090")
	t.Setenv("SHOPFRONT_SITE_DOMAIN", "shop.example.org")
	t.Setenv("SHOPFRONT_SECURITY_SESSION_TTL", "2h")
	t.Setenv("SHOPFRONT_EMAIL_PROVIDER", "smtp")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "shop.example.org", cfg.Site.Domain)
	assert.Equal(t, 2*time.Hour, cfg.Security.Session.TTL)
	assert.Equal(t, "smtp", cfg.Email.Provider)
}

func TestSiteBaseURL(t *testing.T) {
	assert.Equal(t, "http://example.com", SiteConfig{Domain: "example.com"}.BaseURL())
	assert.Equal(t, "https://shop.example.org", SiteConfig{Scheme: "https", Domain: "shop.example.org/"}.BaseURL())
}

func TestDatabaseDSN(t *testing.T) {
	c := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", Name: "n", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=n sslmode=disable", c.DSN())
	assert.Equal(t, "postgres://u:p@db:5432/n?sslmode=disable", c.URL())
}
