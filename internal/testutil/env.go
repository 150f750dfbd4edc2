package testutil

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/shopfront/accounts/internal/auth"
	"github.com/shopfront/accounts/internal/config"
	"github.com/shopfront/accounts/internal/database"
	"github.com/shopfront/accounts/internal/email"
	"github.com/shopfront/accounts/internal/logger"
	"github.com/shopfront/accounts/internal/repository"
	"github.com/shopfront/accounts/internal/service"
)

// Config returns the default configuration with cheap password hashing
func Config() *config.Config {
	cfg := config.Default()
	cfg.Security.Password.Argon2Memory = 1024
	cfg.Security.Password.Argon2Iterations = 1
	cfg.Security.Password.Argon2Parallelism = 1
	cfg.Security.RateLimiting.Enabled = false
	cfg.Email.Provider = email.ProviderMemory
	return cfg
}

// NewRedis starts a miniredis server that is closed with the test
func NewRedis(t *testing.T) (*database.Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return database.WrapRedis(client), mr
}

// Env is a fully wired service layer over in-memory stores and miniredis
type Env struct {
	Config   *config.Config
	Log      *logger.Logger
	Redis    *database.Redis
	Mini     *miniredis.Miniredis
	Users    *UserStore
	Tokens   *ResetTokenStore
	Audit    *AuditStore
	History  *EmailHistoryStore
	Sessions *repository.SessionRepository
	Outbox   *email.Outbox

	SessionTokens *auth.SessionTokens
	Dispatcher    *service.Dispatcher
	Accounts      *service.AccountService
	Resets        *service.PasswordResetService
}

// NewEnv wires an Env from cfg, or from Config() when cfg is nil
func NewEnv(t *testing.T, cfg *config.Config) *Env {
	t.Helper()
	if cfg == nil {
		cfg = Config()
	}

	rdb, mr := NewRedis(t)
	keys, err := auth.NewKeyring(cfg.Security.Session.SigningKey, cfg.Security.Session.PreviousKeys)
	require.NoError(t, err)
	templates, err := email.LoadTemplates()
	require.NoError(t, err)

	env := &Env{
		Config:        cfg,
		Log:           logger.Nop(),
		Redis:         rdb,
		Mini:          mr,
		Users:         NewUserStore(),
		Tokens:        NewResetTokenStore(),
		Audit:         &AuditStore{},
		History:       &EmailHistoryStore{},
		Sessions:      repository.NewSessionRepository(rdb),
		Outbox:        email.NewOutbox(),
		SessionTokens: auth.NewSessionTokens(keys, cfg.Security.Session.Issuer, cfg.Security.Session.TTL),
	}

	env.Dispatcher = service.NewDispatcher(env.Outbox, templates, env.History, cfg.Site, env.Log)
	env.Resets = service.NewPasswordResetService(env.Users, env.Tokens, env.Sessions, env.Audit, env.Dispatcher, cfg, env.Log)
	env.Accounts = service.NewAccountService(env.Users, env.Sessions, env.Audit, env.History, env.Resets, env.Dispatcher, env.SessionTokens, cfg, env.Log)
	return env
}
