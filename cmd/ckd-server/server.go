package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ehr/ckdrisk/internal/config"
	"github.com/ehr/ckdrisk/internal/domain/assessment"
	"github.com/ehr/ckdrisk/internal/platform/auth"
	"github.com/ehr/ckdrisk/internal/platform/cache"
	"github.com/ehr/ckdrisk/internal/platform/db"
	"github.com/ehr/ckdrisk/internal/platform/fhir"
	"github.com/ehr/ckdrisk/internal/platform/middleware"
	"github.com/ehr/ckdrisk/internal/platform/validation"
)

const (
	version        = "0.1.0"
	requestTimeout = 30 * time.Second
	scanTimeout    = 5 * time.Minute
)

// newLogger builds the process logger: JSON in production, console output in
// development.
func newLogger(cfg *config.Config, out io.Writer) (zerolog.Logger, error) {
	level, err := cfg.Level()
	if err != nil {
		return zerolog.Nop(), err
	}
	logger := zerolog.New(out).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out}).With().Timestamp().Logger()
	}
	return logger.Level(level), nil
}

func runServer() error {
	// Config
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	// Logger
	logger, err := newLogger(cfg, os.Stdout)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid log level")
	}
	log.Logger = logger

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Result cache
	var resultCache cache.Cache = cache.Noop{}
	var cachePinger db.Pinger
	if cfg.RedisURL != "" {
		rc, err := cache.NewRedis(ctx, cfg.RedisURL, cfg.CacheTTL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer rc.Close()
		resultCache, cachePinger = rc, rc
		logger.Info().Dur("ttl", cfg.CacheTTL).Msg("result cache enabled")
	}

	svc := assessment.NewService(
		assessment.NewAssessmentRepoPG(pool),
		assessment.NewAlertRepoPG(pool),
		assessment.WithCache(resultCache),
		assessment.WithTxBeginner(pool),
		assessment.WithScanWorkers(cfg.ScanWorkers),
		assessment.WithLogger(logger.With().Str("component", "assessment").Logger()),
	)

	e := newServer(serverDeps{cfg: cfg, logger: logger, db: pool, cache: cachePinger, svc: svc})

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

type serverDeps struct {
	cfg    *config.Config
	logger zerolog.Logger
	db     db.Pinger
	cache  db.Pinger // nil without Redis
	svc    *assessment.Service
}

// newServer wires middleware and routes. It performs no I/O.
func newServer(d serverDeps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validation.New()

	// Global middleware
	e.Use(middleware.Recovery(d.logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(d.logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: d.cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(middleware.RequestTimeout(requestTimeout, map[string]time.Duration{
		"/api/v1/monitoring/scan": scanTimeout,
	}))

	// Auth middleware
	jwtCfg := auth.JWTConfig{
		Issuer:     d.cfg.AuthIssuer,
		Audience:   d.cfg.AuthAudience,
		SigningKey: []byte(d.cfg.AuthSigningKey),
		Skipper:    auth.AuthSkipper,
	}
	if d.cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware(jwtCfg))
	} else {
		e.Use(auth.JWTMiddleware(jwtCfg))
	}

	// Health checks
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(d.db))
	if d.cache != nil {
		e.GET("/health/cache", db.HealthHandler(d.cache))
	}

	// API groups
	apiV1 := e.Group("/api/v1")
	fhirGroup := e.Group("/fhir")
	assessment.NewHandler(d.svc).RegisterRoutes(apiV1, fhirGroup)

	// CDS Hooks
	hooks := fhir.NewCDSHooksHandler()
	hooks.RegisterService(assessment.CDSService(), d.svc.PatientView)
	hooks.RegisterRoutes(e, e.Group("/cds-services"))

	return e
}
