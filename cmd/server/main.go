package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"

	"github.com/planhub-io/planhub/internal/api"
	"github.com/planhub-io/planhub/internal/auth"
	"github.com/planhub-io/planhub/internal/backup"
	"github.com/planhub-io/planhub/internal/db"
	"github.com/planhub-io/planhub/internal/repository"
	"github.com/planhub-io/planhub/internal/scheduler"
	"github.com/planhub-io/planhub/internal/stats"
	"github.com/planhub-io/planhub/internal/websocket"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type config struct {
	httpAddr      string
	dbPath        string
	secretKey     string
	tokenTTLHours int
	backupDir        string
	retentionDays    int
	backupHour       int
	sweepInterval    time.Duration
	logRetentionDays int
	logLevel         string
	dbSlowQuery      time.Duration
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := &config{}

	root := &cobra.Command{
		Use:   "planhub-server",
		Short: "PlanHub, serveur de planification transport",
		Long: `PlanHub is the central planning server for road freight operations.
It exposes a REST API for the planning clients, a WebSocket channel for
live sync between users, and manages accounts, permissions, backups and
the audit trail.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg)
		},
	}

	root.AddCommand(newVersionCmd())

	root.PersistentFlags().StringVar(&cfg.httpAddr, "http-addr", envOrDefault("PLANHUB_HTTP_ADDR", ":8080"), "HTTP API listen address")
	root.PersistentFlags().StringVar(&cfg.dbPath, "db-path", envOrDefault("PLANHUB_DB_PATH", "./planhub.db"), "SQLite database file path")
	root.PersistentFlags().StringVar(&cfg.secretKey, "secret-key", envOrDefault("PLANHUB_SECRET_KEY", ""), "Secret key for signing session tokens (required)")
	root.PersistentFlags().IntVar(&cfg.tokenTTLHours, "token-ttl-hours", envIntOrDefault("PLANHUB_TOKEN_TTL_HOURS", 8), "Session and token lifetime in hours")
	root.PersistentFlags().StringVar(&cfg.backupDir, "backup-dir", envOrDefault("PLANHUB_BACKUP_DIR", "./backups"), "Directory for database snapshots")
	root.PersistentFlags().IntVar(&cfg.retentionDays, "backup-retention-days", envIntOrDefault("PLANHUB_BACKUP_RETENTION_DAYS", 30), "How many days snapshots are kept")
	root.PersistentFlags().IntVar(&cfg.backupHour, "backup-hour", envIntOrDefault("PLANHUB_BACKUP_HOUR", 2), "Hour (0-23) of the nightly backup")
	root.PersistentFlags().DurationVar(&cfg.sweepInterval, "sweep-interval", envDurationOrDefault("PLANHUB_SWEEP_INTERVAL", 5*time.Minute), "Expired session sweep interval")
	root.PersistentFlags().IntVar(&cfg.logRetentionDays, "log-retention-days", envIntOrDefault("PLANHUB_LOG_RETENTION_DAYS", 90), "How many days audit and request logs are kept")
	root.PersistentFlags().StringVar(&cfg.logLevel, "log-level", envOrDefault("PLANHUB_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
	root.PersistentFlags().DurationVar(&cfg.dbSlowQuery, "db-slow-query", envDurationOrDefault("PLANHUB_DB_SLOW_QUERY", 200*time.Millisecond), "Threshold past which SQL queries are logged as slow")

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("planhub-server %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func run(ctx context.Context, cfg *config) error {
	logger, err := buildLogger(cfg.logLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	if cfg.secretKey == "" {
		return fmt.Errorf("secret key is required: set --secret-key or PLANHUB_SECRET_KEY")
	}

	started := time.Now()
	logger.Info("starting planhub server",
		zap.String("version", version),
		zap.String("http_addr", cfg.httpAddr),
		zap.String("db_path", cfg.dbPath),
		zap.String("log_level", cfg.logLevel),
	)

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	gormLevel := gormlogger.Warn
	if cfg.logLevel == "debug" {
		gormLevel = gormlogger.Info
	}
	database, err := db.New(db.Config{
		Path:               cfg.dbPath,
		Logger:             logger,
		LogLevel:           gormLevel,
		SlowQueryThreshold: cfg.dbSlowQuery,
	})
	if err != nil {
		return err
	}

	missions := repository.NewMissionRepository(database)
	voyages := repository.NewVoyageRepository(database)
	chauffeurs := repository.NewChauffeurRepository(database)
	ssts := repository.NewSSTRepository(database)
	finance := repository.NewFinanceRepository(database)
	users := repository.NewUserRepository(database)
	sessions := repository.NewSessionRepository(database)
	activity := repository.NewActivityRepository(database)
	requests := repository.NewRequestLogRepository(database)

	sessionTTL := time.Duration(cfg.tokenTTLHours) * time.Hour
	jwtManager, err := auth.NewJWTManager(cfg.secretKey, "planhub", sessionTTL)
	if err != nil {
		return err
	}
	authSvc := auth.NewService(users, sessions, activity, jwtManager, logger, auth.Config{
		SessionTTL: sessionTTL,
	})
	if err := authSvc.Bootstrap(ctx); err != nil {
		return err
	}

	hub := websocket.NewHub(logger)
	go hub.Run(ctx)

	backups, err := backup.NewService(cfg.dbPath, cfg.backupDir, logger)
	if err != nil {
		return err
	}
	statsSvc := stats.NewService(database, activity, requests, backups)

	sched, err := scheduler.New(backups, authSvc, activity, requests, scheduler.Config{
		BackupHour:       cfg.backupHour,
		RetentionDays:    cfg.retentionDays,
		SweepInterval:    cfg.sweepInterval,
		LogRetentionDays: cfg.logRetentionDays,
	}, logger)
	if err != nil {
		return err
	}
	if err := sched.Start(); err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	router := api.NewRouter(api.RouterConfig{
		Logger:     logger,
		DB:         database,
		Missions:   missions,
		Voyages:    voyages,
		Chauffeurs: chauffeurs,
		SSTs:       ssts,
		Finance:    finance,
		Users:      users,
		Sessions:   sessions,
		Activity:   activity,
		Requests:   requests,
		Auth:       authSvc,
		Hub:        hub,
		Backups:    backups,
		Stats:      statsSvc,
		Registry:   registry,
		Gatherer:   registry,
		Version:    version,
		Started:    started,
		AdminConfig: map[string]any{
			"http_addr":             cfg.httpAddr,
			"db_path":               cfg.dbPath,
			"token_ttl_hours":       cfg.tokenTTLHours,
			"backup_dir":            cfg.backupDir,
			"backup_retention_days": cfg.retentionDays,
			"backup_hour":           cfg.backupHour,
			"sweep_interval":        cfg.sweepInterval.String(),
			"log_retention_days":    cfg.logRetentionDays,
			"log_level":             cfg.logLevel,
			"version":               version,
		},
	})

	server := &http.Server{
		Addr:         cfg.httpAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // WebSocket connections are long-lived
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.httpAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down planhub server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", zap.Error(err))
	}
	if err := sched.Shutdown(); err != nil {
		logger.Error("scheduler shutdown failed", zap.Error(err))
	}
	return nil
}

func buildLogger(level string) (*zap.Logger, error) {
	var cfg zap.Config

	switch level {
	case "debug":
		cfg = zap.NewDevelopmentConfig()
	default:
		cfg = zap.NewProductionConfig()
	}

	switch level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	return cfg.Build()
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envIntOrDefault(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func envDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
