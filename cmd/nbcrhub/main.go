package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	githubadapter "github.com/ewhitmore/nbcrhub/internal/adapter/driven/github"
	sqliteadapter "github.com/ewhitmore/nbcrhub/internal/adapter/driven/sqlite"
	httphandler "github.com/ewhitmore/nbcrhub/internal/adapter/driving/http"
	"github.com/ewhitmore/nbcrhub/internal/application"
	"github.com/ewhitmore/nbcrhub/internal/config"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration.
	cfg := config.Load()
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"github_username", cfg.GitHubUsername,
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open database (dual reader/writer with WAL mode).
	db, err := sqliteadapter.NewDB(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	slog.Info("database opened", "path", cfg.DBPath)

	// 4. Run migrations on writer connection.
	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		return err
	}
	slog.Info("migrations complete")

	// 5. Wire adapters and application state.
	configStore := sqliteadapter.NewConfigRepo(db)
	session := application.NewSession()
	tracker := application.NewTracker(session, configStore)

	if cfg.HasGitHubCredentials() {
		session.Init(githubadapter.NewClient(cfg.GitHubToken), cfg.GitHubUsername)
		slog.Info("session initialized", "actor", cfg.GitHubUsername)
	} else {
		slog.Info("no github credentials configured, fetches inactive until credentials are provided")
	}

	// 6. Run the initial refresh pipeline. Failures are non-fatal; the user
	// can retry via the refresh endpoint.
	if err := tracker.Refresh(ctx); err != nil {
		slog.Error("initial refresh failed", "error", err)
	}

	// 7. Create HTTP handler and server.
	handler := httphandler.NewHandler(tracker, session, slog.Default())
	mux := httphandler.NewServeMux(handler, slog.Default())

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
		}
	}()

	slog.Info("nbcrhub started", "listen_addr", cfg.ListenAddr)

	// 8. Wait for shutdown signal.
	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	session.Teardown()
	slog.Info("shutdown complete")
	return nil
}
