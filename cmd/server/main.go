/*
main.go - Reservation server entry point

PURPOSE:
  Loads configuration, opens the store, wires the booking engine with its
  notifier and audit scheduler, and serves the HTTP API until SIGINT or
  SIGTERM.

STARTUP SEQUENCE:
  1. Load RESERVATIONS_* environment, apply flag overrides
  2. Configure slog (text or json, configured level)
  3. Open SQLite or PostgreSQL store (schema is migrated on open)
  4. Connect the AMQP notifier, or log notifications when no URL is set
  5. Build engine, handler, router; start the audit scheduler
  6. Optionally load a demo scenario
  7. Serve; shut down gracefully

COMMAND-LINE FLAGS:
  -addr    listen address (overrides RESERVATIONS_ADDR)
  -db      database DSN (overrides RESERVATIONS_DB_DSN)
           Use ":memory:" with sqlite3 for a throwaway database
  -seed    scenario id to load at startup (see GET /api/scenarios)

EXAMPLES:
  ./server -db=":memory:" -seed=studio-week
  RESERVATIONS_DB_DRIVER=pgx RESERVATIONS_DB_DSN=postgres://localhost/res ./server

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/xstejsk/bp-backup/api"
	"github.com/xstejsk/bp-backup/booking"
	"github.com/xstejsk/bp-backup/config"
	"github.com/xstejsk/bp-backup/notify"
	"github.com/xstejsk/bp-backup/store/sqlstore"
)

func main() {
	addr := flag.String("addr", "", "listen address (overrides RESERVATIONS_ADDR)")
	dsn := flag.String("db", "", "database DSN (overrides RESERVATIONS_DB_DSN)")
	seed := flag.String("seed", "", "scenario to load at startup")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *dsn != "" {
		cfg.DBDSN = *dsn
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	if err := run(cfg, *seed, logger); err != nil {
		logger.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func newLogger(cfg config.Config) *slog.Logger {
	level, _ := cfg.Level()
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func run(cfg config.Config, seed string, logger *slog.Logger) error {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	if cfg.DBDriver == sqlstore.DriverSQLite && cfg.DBDSN != ":memory:" && !strings.HasPrefix(cfg.DBDSN, "file:") {
		if err := os.MkdirAll(filepath.Dir(cfg.DBDSN), 0o755); err != nil {
			return err
		}
	}
	store, err := sqlstore.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return err
	}
	defer store.Close()
	logger.Info("store opened", "driver", store.Driver())

	var notifier booking.Notifier = notify.Log{Logger: logger}
	if cfg.AMQPURL != "" {
		publisher, err := notify.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return err
		}
		defer publisher.Close()
		notifier = notify.Multi{notify.Log{Logger: logger}, publisher}
		logger.Info("publishing notifications", "exchange", cfg.AMQPExchange)
	}

	engine := booking.New(store, booking.Options{
		Location:                          loc,
		Logger:                            logger,
		Notifier:                          notifier,
		DiscountFirstReservationOfDayOnly: cfg.DiscountFirstOfDayOnly,
	})

	handler := api.NewHandler(engine, logger)
	handler.Pinger = store
	handler.Audits = api.NewAuditScheduler(engine.Audit, cfg.AuditInterval, logger)
	handler.Audits.Today = engine.Today
	handler.Audits.Start()
	defer handler.Audits.Stop()

	if seed != "" {
		if err := api.LoadScenario(context.Background(), engine, seed, engine.Today()); err != nil {
			return err
		}
		logger.Info("scenario loaded", "scenario", seed)
	}

	var auth *api.Authenticator
	if cfg.JWTSecret != "" {
		auth = api.NewAuthenticator(cfg.JWTSecret)
	} else {
		logger.Warn("RESERVATIONS_JWT_SECRET is empty; every request is a guest")
	}

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      api.NewRouter(handler, api.RouterOptions{AllowedOrigins: cfg.CORSOrigins, Auth: auth}),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", cfg.Addr, "time_zone", loc.String())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errs:
		return err
	case <-quit:
	}

	logger.Info("shutting down", "timeout", cfg.ShutdownTimeout)
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(ctx)
}
