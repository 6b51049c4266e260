// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package server wires the step-up engine together and runs the HTTP
// frontend.
package server

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

	"codeberg.org/habitloop/stepup-engine/internal/config"
	"codeberg.org/habitloop/stepup-engine/internal/database"
	"codeberg.org/habitloop/stepup-engine/internal/handlers"
	"codeberg.org/habitloop/stepup-engine/internal/ratelimit"
	"codeberg.org/habitloop/stepup-engine/internal/repository"
	"codeberg.org/habitloop/stepup-engine/internal/secretbox"
	"codeberg.org/habitloop/stepup-engine/internal/services/recovery"
	"codeberg.org/habitloop/stepup-engine/internal/services/stepup"
	"codeberg.org/habitloop/stepup-engine/internal/services/totp"
	"codeberg.org/habitloop/stepup-engine/internal/services/twofactor"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/urfave/cli/v3"
)

// purgeInterval is how often expired challenges and stale limiter
// entries are swept.
const purgeInterval = 15 * time.Minute

// Run starts the server with the given CLI command.
func Run(ctx context.Context, cmd *cli.Command) error {
	cfg := config.NewFromCLI(cmd)
	setupLogger(cfg.Log.Level, cfg.Log.Format)

	slog.Info("starting server",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"database", cfg.Database.DSN,
	)

	box, err := secretbox.New(cfg.Crypto.SecretKey)
	if err != nil {
		return fmt.Errorf("invalid secret key: %w", err)
	}

	// Database (migrations run inside Open)
	db, err := database.Open(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("failed to close database", "error", closeErr)
		}
	}()

	repo := repository.New(db)

	// Services
	manager := stepup.NewManager(repo, stepup.Config{
		DefaultTTL:       cfg.StepUp.ChallengeTTL,
		LockoutThreshold: cfg.StepUp.LockoutThreshold,
		LockoutDuration:  cfg.StepUp.LockoutDuration,
		ProofMaxAge:      cfg.StepUp.ProofMaxAge,
	})
	tf := twofactor.NewService(
		repo,
		manager,
		totp.NewEngine(cfg.TwoFactor.Issuer),
		box,
		recovery.NewVault(repo),
		twofactor.Config{
			RequireAdminTwoFactor: cfg.TwoFactor.RequireAdmin,
			RecoveryBatchSize:     cfg.TwoFactor.RecoveryCodeCount,
		},
	)

	limiter := ratelimit.NewStore()
	policy := ratelimit.Policy{
		Window: cfg.RateLimit.Window,
		Max:    cfg.RateLimit.Max,
		Block:  cfg.RateLimit.Block,
	}

	// Echo
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	setupMiddleware(e, cfg)
	setupRoutes(e, handlers.New(repo, tf, limiter, policy))

	janitorCtx, stopJanitor := context.WithCancel(ctx)
	defer stopJanitor()
	go runJanitor(janitorCtx, manager, limiter)

	return startWithGracefulShutdown(e, cfg)
}

func setupMiddleware(e *echo.Echo, cfg *config.Config) {
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestLogger())
	e.Use(middleware.Secure())
	e.Use(middleware.BodyLimit(fmt.Sprintf("%dM", cfg.Server.MaxBodySize)))
}

func setupRoutes(e *echo.Echo, h *handlers.Handlers) {
	e.GET("/health", h.Health)

	e.POST("/stepup/challenges", h.CreateChallenge)
	e.POST("/stepup/verify", h.VerifyChallenge)

	e.POST("/2fa/setup", h.SetupTwoFactor)
	e.POST("/2fa/confirm", h.ConfirmTwoFactor)
	e.POST("/2fa/disable", h.DisableTwoFactor)
	e.POST("/2fa/recovery-codes/rotate", h.RotateRecoveryCodes)

	e.POST("/account/delete", h.DeleteAccount)
}

// requestLogger returns middleware that logs requests using slog.
func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:   true,
		LogURI:      true,
		LogMethod:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
			}

			if v.Error != nil {
				attrs = append(attrs, slog.String("error", v.Error.Error()))
				slog.LogAttrs(c.Request().Context(), slog.LevelError, "request", attrs...)
			} else {
				slog.LogAttrs(c.Request().Context(), slog.LevelInfo, "request", attrs...)
			}

			return nil
		},
	})
}

// runJanitor periodically drops expired challenges and stale limiter
// entries so neither table grows without bound.
func runJanitor(ctx context.Context, manager *stepup.Manager, limiter *ratelimit.Store) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now().UTC()
			purged, err := manager.PurgeExpired(ctx, now)
			if err != nil {
				slog.Error("challenge purge failed", "error", err)
			} else if purged > 0 {
				slog.Debug("purged expired challenges", "count", purged)
			}
			limiter.Purge(now)
		}
	}
}

func startWithGracefulShutdown(e *echo.Echo, cfg *config.Config) error {
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)

	errChan := make(chan error, 1)
	go func() {
		slog.Info("server running", "addr", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		slog.Info("shutting down server")
	case err := <-errChan:
		slog.Error("server error", "error", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shutdown server", "error", err)
	}

	slog.Info("server stopped")
	return nil
}
