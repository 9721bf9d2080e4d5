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

	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		slog.Error("application terminated", "error", err)
		os.Exit(1)
	}
}

func run() error {
	app, cleanup, err := initializeApp()
	if err != nil {
		return err
	}
	defer cleanup()

	slog.SetDefault(app.Logger)
	log := app.Logger

	// Setup context with signal handling
	ctx, stop := signal.NotifyContext(app.Ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Verify the runtime credential up front so a bad token surfaces at
	// startup instead of on the first user intent.
	if err := app.Runtime.VerifyToken(ctx); err != nil {
		log.Warn("runtime token verification failed", "error", err)
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", app.Config.Port),
		Handler: app.ApiService.Router(log),
	}

	// Error group for coordinated shutdown
	grp, gctx := errgroup.WithContext(ctx)

	grp.Go(func() error {
		log.Info("starting intake API server", "port", app.Config.Port, "runtime", app.Config.RuntimeURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", "error", err)
			return err
		}
		return nil
	})

	grp.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("failed to shutdown http server", "error", err)
			return err
		}

		// Let in-flight pipeline items settle before exit.
		app.Pipeline.Wait()
		log.Info("http server shutdown complete")
		return nil
	})

	return grp.Wait()
}
