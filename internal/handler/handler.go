package handler

import (
	"context"

	"github.com/shopfront/accounts/internal/config"
	"github.com/shopfront/accounts/internal/logger"
	"github.com/shopfront/accounts/internal/service"
)

// Pinger is a dependency that can report its health
type Pinger interface {
	HealthCheck(ctx context.Context) error
}

// Handler holds all HTTP handlers
type Handler struct {
	db       Pinger
	rdb      Pinger
	log      *logger.Logger
	cfg      *config.Config
	accounts *service.AccountService
	resets   *service.PasswordResetService
	pages    *Pages
}

// New creates a new Handler instance
func New(db, rdb Pinger, log *logger.Logger, cfg *config.Config, accounts *service.AccountService, resets *service.PasswordResetService, pages *Pages) *Handler {
	return &Handler{
		db:       db,
		rdb:      rdb,
		log:      log.WithComponent("handler"),
		cfg:      cfg,
		accounts: accounts,
		resets:   resets,
		pages:    pages,
	}
}
