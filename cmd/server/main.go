package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopfront/accounts/internal/auth"
	"github.com/shopfront/accounts/internal/config"
	"github.com/shopfront/accounts/internal/database"
	"github.com/shopfront/accounts/internal/email"
	"github.com/shopfront/accounts/internal/handler"
	"github.com/shopfront/accounts/internal/logger"
	"github.com/shopfront/accounts/internal/middleware"
	"github.com/shopfront/accounts/internal/repository"
	"github.com/shopfront/accounts/internal/router"
	"github.com/shopfront/accounts/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	log.Info().Str("version", handler.Version).Msg("starting shopfront accounts")

	// Connect to PostgreSQL
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("connected to PostgreSQL")

	// Connect to Redis
	rdb, err := database.NewRedis(cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("connected to Redis")

	// Initialize repositories
	userRepo := repository.NewUserRepository(db)
	resetRepo := repository.NewPasswordResetRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	emailRepo := repository.NewCustomerEmailRepository(db)
	sessionRepo := repository.NewSessionRepository(rdb)

	// Session signing keys
	keys, err := auth.NewKeyring(cfg.Security.Session.SigningKey, cfg.Security.Session.PreviousKeys)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load session keys")
	}
	if cfg.Security.Session.SigningKey == "" {
		log.Warn().Msg("no session signing key configured; sessions will not survive a restart")
	}
	sessionTokens := auth.NewSessionTokens(keys, cfg.Security.Session.Issuer, cfg.Security.Session.TTL)
	log.Info().Str("active_key_id", keys.ActiveKeyID()).Msg("session keys loaded")

	// Outbound email
	sender, closeSender, err := email.NewSender(context.Background(), cfg, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize email sender")
	}
	defer closeSender()
	templates, err := email.LoadTemplates()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load email templates")
	}
	log.Info().Str("provider", cfg.Email.Provider).Msg("email sender initialized")

	// Initialize services
	dispatcher := service.NewDispatcher(sender, templates, emailRepo, cfg.Site, log)
	resetSvc := service.NewPasswordResetService(userRepo, resetRepo, sessionRepo, auditRepo, dispatcher, cfg, log)
	accountSvc := service.NewAccountService(userRepo, sessionRepo, auditRepo, emailRepo, resetSvc, dispatcher, sessionTokens, cfg, log)

	// Initialize handlers
	pages, err := handler.LoadPages()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load page templates")
	}
	h := handler.New(db, rdb, log, cfg, accountSvc, resetSvc, pages)

	// Initialize middleware
	mw := middleware.New(rdb, log, cfg, accountSvc)

	// Set up router
	r := router.New(h, mw, cfg)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Bool("tls", cfg.Server.TLS.Enabled).Msg("HTTP server listening")
		var err error
		if cfg.Server.TLS.Enabled {
			err = srv.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	// Expired reset tokens are purged in the background
	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	defer stopJanitor()
	go purgeExpiredResetTokens(janitorCtx, resetRepo, log)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func purgeExpiredResetTokens(ctx context.Context, repo *repository.PasswordResetRepository, log *logger.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := repo.CleanupExpired(ctx)
			if err != nil {
				log.Error().Err(err).Msg("failed to purge expired reset tokens")
				continue
			}
			if n > 0 {
				log.Info().Int64("count", n).Msg("purged expired reset tokens")
			}
		}
	}
}
