package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alkime/callcoach/internal/app"
	"github.com/alkime/callcoach/internal/config"
	"github.com/alkime/callcoach/internal/logger"
	"github.com/alkime/callcoach/internal/server"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Setup structured logging
	slogger := logger.SetupLogger(cfg)

	slogger.Info("Starting Call Coach server",
		"env", cfg.Env,
		"port", cfg.Port,
		"backend", cfg.Backend,
	)

	application, err := app.New(cfg, slogger)
	if err != nil {
		slogger.Error("Failed to initialise application", "error", err)
		log.Fatalf("Fatal: %v", err)
	}
	defer func() {
		if err := application.Close(); err != nil {
			slogger.Error("Failed to close application", "error", err)
		}
	}()

	srv := server.New(cfg, server.Deps{
		Auth:          application.Auth,
		NewController: application.NewController,
		History:       application.History,
		Analyses:      application.Backend,
	}, slogger)
	defer srv.Close()

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slogger.Info("Server listening", "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slogger.Info("Shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slogger.Error("Server stopped with error", "error", err)
		log.Fatalf("Fatal: %v", err)
	}
}
