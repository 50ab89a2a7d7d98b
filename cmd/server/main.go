package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/machikado/eventops/internal/config"
	"github.com/machikado/eventops/internal/ingest"
	"github.com/machikado/eventops/internal/logging"
	"github.com/machikado/eventops/internal/store"
	"github.com/machikado/eventops/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"db_max_conns", cfg.Database.MaxConns,
		"import_max_rows", cfg.Import.MaxRows,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	// Parse and configure connection pool
	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		slog.Error("failed to parse database URL", "error", err)
		os.Exit(1)
	}

	// Apply pool configuration from config
	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	// Connect to database
	ctx := context.Background()
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		slog.Error("failed to ping database", "error", err)
		os.Exit(1)
	}

	// Log which database we connected to
	if u, err := url.Parse(cfg.Database.URL); err == nil {
		dbName := strings.TrimPrefix(u.Path, "/")
		slog.Info("connected to database", "name", dbName)
	} else {
		slog.Info("connected to database")
	}

	// Ensure schema exists
	st := store.NewPostgres(pool)
	if err := st.EnsureSchema(ctx); err != nil {
		slog.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}

	// Create the import pipeline with config
	detector := ingest.NewDetector(ingest.DetectorConfig{
		TitleThreshold: cfg.Dedup.TitleThreshold,
		MinScore:       cfg.Dedup.MinScore,
	})
	service := ingest.NewService(st, detector, ingest.Config{
		MaxFileSize: cfg.Import.MaxFileSize,
		MaxRows:     cfg.Import.MaxRows,
		PreviewRows: cfg.Import.PreviewRows,
		Timeout:     cfg.Import.Timeout,
	}, slog.Default())

	// Create server with config
	server := web.NewServer(service, cfg, slog.Default())

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	// Start server
	slog.Info("server starting", "addr", cfg.Server.Addr())
	if err := server.Start(cfg.Server.Addr()); err != nil {
		slog.Info("server stopped", "error", err)
	}
}
