package middleware

import (
	"context"

	"github.com/shopfront/accounts/internal/config"
	"github.com/shopfront/accounts/internal/database"
	"github.com/shopfront/accounts/internal/logger"
	"github.com/shopfront/accounts/internal/model"
)

// SessionResolver loads the user behind a session cookie value.
// Implemented by service.AccountService.
type SessionResolver interface {
	ResolveSession(ctx context.Context, token string) (*model.User, *model.Session, error)
}

// Middleware holds all HTTP middleware
type Middleware struct {
	rdb      *database.Redis
	log      *logger.Logger
	cfg      *config.Config
	sessions SessionResolver
}

// New creates a new Middleware instance
func New(rdb *database.Redis, log *logger.Logger, cfg *config.Config, sessions SessionResolver) *Middleware {
	return &Middleware{
		rdb:      rdb,
		log:      log,
		cfg:      cfg,
		sessions: sessions,
	}
}
