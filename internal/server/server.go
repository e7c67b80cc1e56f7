// Package server defines the core Server struct that composes the app's
// main dependencies.
//
// It owns the lifecycle of:
//   - configuration
//   - logger + optional New Relic service wrapper
//   - database pool and the audit store on top of it
//   - redis client
//   - event service (asynq)
//   - service resolver and request pipeline
//   - http.Server
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/constructhq/construct/internal/config"
	"github.com/constructhq/construct/internal/database"
	"github.com/constructhq/construct/internal/events"
	"github.com/constructhq/construct/internal/pipeline"
	"github.com/constructhq/construct/internal/resolver"
	"github.com/newrelic/go-agent/v3/integrations/nrredis-v9"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	loggerPkg "github.com/constructhq/construct/internal/logger"
)

// Server is the application container that holds shared resources.
//
// It is not the HTTP server itself. It composes everything a mounted
// construct needs at invocation time and the infrastructure around it.
type Server struct {
	// Config holds all environment/config values for the app.
	Config *config.Config

	// Logger is the application's main structured logger.
	Logger *zerolog.Logger

	// LoggerService optionally holds the New Relic application instance.
	LoggerService *loggerPkg.LoggerService

	// DB holds the PostgreSQL pool wrapper.
	DB *database.Database

	// AuditStore persists audit records; it shares the DB pool so audits
	// and handler writes can commit in one transaction.
	AuditStore *database.AuditStore

	// Redis is the Redis client.
	Redis *redis.Client

	// Events publishes and consumes domain events over asynq.
	Events *events.Service

	// Resolver caches service-descriptor registrations process-wide.
	Resolver *resolver.Resolver

	// Pipeline executes construct invocations.
	Pipeline *pipeline.Pipeline

	// httpServer is configured in SetupHTTPServer and started in Start().
	httpServer *http.Server
}

// New constructs a Server and initializes core dependencies.
//
// It does NOT start the HTTP server; that is SetupHTTPServer + Start.
//
// Notes:
//   - Redis connection failure does not block startup (logged, continue).
//   - Event service start failure DOES block startup.
func New(cfg *config.Config, logger *zerolog.Logger, loggerService *loggerPkg.LoggerService) (*Server, error) {
	db, err := database.New(cfg, logger, loggerService)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Redis connections are lazy; the client is created immediately.
	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Address,
	})

	// Instrument Redis commands when New Relic is enabled.
	if loggerService != nil && loggerService.GetApplication() != nil {
		redisClient.AddHook(nrredis.NewHook(redisClient.Options()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Error().Err(err).Msg("Failed to connect to Redis, continuing without Redis")
	}

	eventService := events.NewService(logger, cfg)

	res := resolver.New()

	server := &Server{
		Config:        cfg,
		Logger:        logger,
		LoggerService: loggerService,
		DB:            db,
		AuditStore:    database.NewAuditStore(db, logger),
		Redis:         redisClient,
		Events:        eventService,
		Resolver:      res,
		Pipeline:      pipeline.New(res, eventService, *logger),
	}

	return server, nil
}

// SetupHTTPServer configures the internal net/http server.
//
// The router/mux is passed in as handler; Echo satisfies http.Handler.
func (s *Server) SetupHTTPServer(handler http.Handler) {
	s.httpServer = &http.Server{
		Addr:    ":" + s.Config.Server.Port,
		Handler: handler,

		// Timeouts protect against slow clients and resource exhaustion.
		ReadTimeout:  time.Duration(s.Config.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.Config.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(s.Config.Server.IdleTimeout) * time.Second,
	}
}

// Start runs the HTTP server and the event consumer workers.
//
// It requires SetupHTTPServer to be called first. ListenAndServe blocks
// until the server stops or errors.
func (s *Server) Start() error {
	if s.httpServer == nil {
		return errors.New("HTTP server not initialized")
	}

	if err := s.Events.Start(); err != nil {
		return fmt.Errorf("failed to start event service: %w", err)
	}

	s.Logger.Info().
		Str("port", s.Config.Server.Port).
		Str("env", s.Config.Primary.Env).
		Msg("starting server")

	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server and its dependencies.
//
// It stops the HTTP server first so inflight invocations can finish, then
// the event workers, then closes connections.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	s.Events.Stop()

	if err := s.DB.Close(); err != nil {
		return fmt.Errorf("failed to close database connection: %w", err)
	}

	if err := s.Redis.Close(); err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}

	return nil
}
