package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/propertyline/triage/internal/classifier"
	"github.com/propertyline/triage/internal/config"
	"github.com/propertyline/triage/internal/conversation"
	"github.com/propertyline/triage/internal/db"
	"github.com/propertyline/triage/internal/dispatch"
	"github.com/propertyline/triage/internal/escalation"
	httpapi "github.com/propertyline/triage/internal/http"
	"github.com/propertyline/triage/internal/notify"
)

var rootCmd = &cobra.Command{
	Use:          "server",
	Short:        "Maintenance call triage and technician dispatch",
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(escalationsCmd)
}

func newLogger(cfg config.Config) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	return log.Level(level).With().Str("service", "triage").Logger()
}

type app struct {
	cfg      config.Config
	logger   zerolog.Logger
	repo     db.Repository
	producer *notify.Producer
	services httpapi.Services
}

// buildApp wires storage, classifier, notifications and the core services from config.
// Without DATABASE_URL everything runs in memory on the demo data.
func buildApp(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*app, error) {
	var repo db.Repository
	if cfg.DatabaseURL == "" {
		mem := db.NewMemoryStore()
		mem.SeedDemo()
		repo = mem
		logger.Warn().Msg("DATABASE_URL not set, using in-memory store with demo data")
	} else {
		store, err := db.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect db: %w", err)
		}
		if cfg.SeedDemo {
			if err := store.SeedDemo(ctx); err != nil {
				store.Close()
				return nil, fmt.Errorf("seed demo data: %w", err)
			}
		}
		repo = store
	}

	var primary classifier.Classifier
	if cfg.ClassifierURL != "" {
		primary = &classifier.HTTPClassifier{BaseURL: cfg.ClassifierURL, CacheTTL: cfg.ClassifierCacheTTL}
	} else {
		logger.Info().Msg("using keyword classifier")
	}
	cls := classifier.FallbackClassifier{Primary: primary, Logger: logger}

	var sender notify.Sender
	if cfg.SMSGatewayURL != "" {
		sender = notify.HTTPSender{BaseURL: cfg.SMSGatewayURL, From: cfg.SMSFrom, APIKey: cfg.SMSAPIKey}
	} else {
		sender = &notify.LogSender{Logger: logger}
		logger.Info().Msg("using log sender for sms")
	}

	producer := notify.NewProducer(notify.ParseBrokers(cfg.KafkaBrokers), cfg.KafkaTopic, logger)

	engine := &dispatch.Engine{
		Tickets:          repo,
		Registry:         repo,
		Log:              repo,
		Sender:           sender,
		Events:           producer,
		Logger:           logger.With().Str("component", "dispatch").Logger(),
		BatchConcurrency: cfg.BatchConcurrency,
	}
	agent := &conversation.Agent{
		Calls:         repo,
		Tickets:       repo,
		Tenants:       repo,
		Classifier:    cls,
		Dispatcher:    engine,
		Events:        producer,
		Logger:        logger.With().Str("component", "agent").Logger(),
		LowConfidence: cfg.LowConfidence,
		ManagerLine:   cfg.ManagerLine,
		BackupLine:    cfg.BackupLine,
	}
	sweeper := &escalation.Sweeper{
		Tickets:    repo,
		Properties: repo,
		Log:        repo,
		Events:     producer,
		Logger:     logger.With().Str("component", "escalation").Logger(),
		Interval:   cfg.EscalationInterval,
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		repo:     repo,
		producer: producer,
		services: httpapi.Services{Repo: repo, Agent: agent, Engine: engine, Sweeper: sweeper},
	}, nil
}

func (a *app) Close() {
	if err := a.producer.Close(); err != nil {
		a.logger.Error().Err(err).Msg("close event producer")
	}
	a.repo.Close()
}
