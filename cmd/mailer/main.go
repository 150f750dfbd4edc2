package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shopfront/accounts/internal/config"
	"github.com/shopfront/accounts/internal/email"
	"github.com/shopfront/accounts/internal/logger"
)

var provider string

var rootCmd = &cobra.Command{
	Use:   "mailer",
	Short: "Deliver queued account emails",
	Long: "mailer consumes the email queue that the server publishes to when\n" +
		"email.provider is \"queue\", and delivers each message over SMTP or the Gmail API.",
	RunE: run,
}

func init() {
	rootCmd.Flags().StringVar(&provider, "provider", email.ProviderSMTP, "delivery provider: smtp, gmail or console")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if provider == email.ProviderQueue || provider == email.ProviderMemory {
		return fmt.Errorf("provider %q cannot deliver queued mail", provider)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	delivery := *cfg
	delivery.Email.Provider = provider
	sender, closeSender, err := email.NewSender(ctx, &delivery, log.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize %s sender: %w", provider, err)
	}
	defer closeSender()

	log.Info().Str("provider", provider).Str("queue", cfg.AMQP.Queue).Msg("starting mailer")
	consumer := email.NewConsumer(email.QueueConfigFrom(cfg.AMQP), sender, log.Logger)
	if err := consumer.Run(ctx); err != nil {
		return err
	}
	log.Info().Msg("mailer stopped")
	return nil
}
