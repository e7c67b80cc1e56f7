// Command server runs the construct runtime: it loads config, migrates the
// database, mounts the declared constructs, and serves HTTP until
// interrupted.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/constructhq/construct/internal/config"
	"github.com/constructhq/construct/internal/database"
	"github.com/constructhq/construct/internal/logger"
	"github.com/constructhq/construct/internal/router"
	"github.com/constructhq/construct/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// No logger yet; stderr is all we have.
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := logger.New(cfg)

	loggerService, err := logger.NewLoggerService(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize logger service")
	}

	ctx := context.Background()
	if err := database.Migrate(ctx, log, cfg); err != nil {
		log.Fatal().Err(err).Msg("failed to run database migrations")
	}

	srv, err := server.New(cfg, log, loggerService)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize server")
	}

	r := router.Setup(srv)

	if err := mountConstructs(srv, r); err != nil {
		log.Fatal().Err(err).Msg("failed to mount constructs")
	}

	srv.SetupHTTPServer(r.Echo)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server stopped unexpectedly")
		}
	}()

	// Block until interrupted, then drain gracefully.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
		os.Exit(1)
	}

	log.Info().Msg("shutdown complete")
}
