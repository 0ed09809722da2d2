package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/bookkeeper/internal/api/handlers"
	"github.com/dvloznov/bookkeeper/internal/api/middleware"
	"github.com/dvloznov/bookkeeper/internal/app"
	"github.com/dvloznov/bookkeeper/internal/jobs"
	"github.com/dvloznov/bookkeeper/internal/jobs/inmemory"
	"github.com/dvloznov/bookkeeper/internal/logger"
)

func main() {
	var (
		port       = flag.String("port", envOr("PORT", "8080"), "HTTP server port (or set PORT env)")
		configPath = flag.String("config", "", "Path to the YAML config file (or set BOOKKEEPER_CONFIG env)")
	)
	flag.Parse()

	ctx := context.Background()
	rt, err := app.Open(ctx, app.ConfigPath(*configPath))
	if err != nil {
		fallback := logger.New()
		fallback.Fatal().Err(err).Msg("Failed to initialize")
	}
	defer rt.Close()
	log := rt.Log
	ctx = rt.Context(ctx)

	// Runs need the oracle; the journal endpoints only need storage.
	deps, err := rt.Deps(ctx, true)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build dependencies")
	}
	if deps.Storage == nil {
		// gs:// inputs submitted through /api/runs still need a client
		if gcs, err := rt.Storage(ctx); err != nil {
			log.Warn().Err(err).Msg("Cloud Storage unavailable; gs:// inputs will fail")
		} else {
			deps.Storage = gcs
		}
	}

	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(rt.Config.Jobs, jobStore)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()
	if err := jobQueue.Start(workerCtx, jobs.CategorizeHandler(deps)); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job workers")
	}

	mux := handlers.NewMux(
		handlers.NewSessionsHandler(deps),
		handlers.NewRunsHandler(jobQueue),
		handlers.NewJobsHandler(jobStore),
	)

	server := &http.Server{
		Addr:         ":" + *port,
		Handler:      middleware.Chain(log, mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute, // journal runs answer synchronously
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", *port).Str("storage", rt.Config.Storage.Backend).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// in-flight runs finish; their sessions can be resumed if they do not
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()

	log.Info().Msg("Server exited")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
