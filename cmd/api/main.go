package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"call-relay/internal/auth"
	"call-relay/internal/callflow"
	"call-relay/internal/config"
	"call-relay/internal/httpapi"
	"call-relay/internal/reporting"
	"call-relay/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

const resumeBatch = 100

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file, reading process environment only")
	}
	if err := run(); err != nil {
		slog.Error("call relay stopped", "err", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	log := logger.New(cfg.App.Env, logger.WithLevel(cfg.App.LogLevel))
	slog.SetDefault(log)
	ctx = logger.With(ctx, log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	b, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	orch, err := buildOrchestrator(cfg, b)
	if err != nil {
		return fmt.Errorf("call flow: %w", err)
	}

	r := gin.New()
	r.Use(gin.Recovery(), logger.Middleware(log))
	registerRoutes(r, httpapi.Handlers{
		Auth:    authManager,
		Calls:   orch,
		SMS:     buildSMS(cfg),
		Audit:   b.audit,
		Reports: reporting.NewService(b.store),
		Phone:   callflow.PhonePolicy{CountryCode: cfg.Flow.PhoneCountryCode, NationalDigits: cfg.Flow.PhoneNationalDigits},
	}, auth.RequireServiceToken(authManager))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// /webhook holds the connection open for the whole run.
		WriteTimeout: writeTimeout(cfg),
		IdleTimeout:  60 * time.Second,
	}

	go resumePending(ctx, orch)

	serveErr := make(chan error, 1)
	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env, "durable", cfg.DatabaseEnabled())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
	return nil
}

func resumePending(ctx context.Context, orch *callflow.Orchestrator) {
	log := logger.From(ctx)
	n, err := orch.ResumePending(ctx, resumeBatch)
	if err != nil {
		log.Error("resume pending runs failed", "err", err)
		return
	}
	if n > 0 {
		log.Info("pending call runs finished", "count", n)
	}
}

// writeTimeout covers dispatch retries, the full poll budget and the forward.
func writeTimeout(cfg config.Config) time.Duration {
	dispatch := cfg.Provider.Timeout * time.Duration(cfg.Flow.DispatchMaxAttempts)
	polls := cfg.PollBudget() + cfg.Provider.Timeout*time.Duration(cfg.Flow.PollMaxAttempts)
	return dispatch + polls + cfg.Forward.Timeout + 30*time.Second
}
