package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/expense-tracker/internal/api/handlers"
	"github.com/dvloznov/expense-tracker/internal/app"
	"github.com/dvloznov/expense-tracker/internal/config"
	"github.com/dvloznov/expense-tracker/internal/logger"
)

func main() {
	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid LOG_LEVEL")
	}
	log = logger.NewWithLevel(os.Stdout, level)

	ctx := logger.WithContext(context.Background(), log)

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise application")
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close application")
		}
	}()

	// Start resync workers in background
	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	log.Info().Int("workers", cfg.ResyncWorkers).Msg("Starting resync workers")
	if err := a.StartWorkers(workerCtx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start resync workers")
	}

	scheduler, err := a.StartScheduler(workerCtx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start resync scheduler")
	}

	if cfg.JWTSecret == "" {
		log.Warn().Msg("No JWT_SECRET configured - every request is anonymous")
	}

	transactionsHandler := handlers.NewTransactionsHandler(a.Orchestrator, a.Remote, a.Local, a.Reports, log)
	accountsHandler := handlers.NewAccountsHandler(a.Local, log)
	jobsHandler := handlers.NewJobsHandler(a.Resyncer, a.Jobs, log)

	handler := handlers.NewRouter(transactionsHandler, accountsHandler, jobsHandler, []byte(cfg.JWTSecret), log)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	if scheduler != nil {
		<-scheduler.Stop().Done()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Let in-flight pushes finish before the stores close
	if err := a.Queue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()

	log.Info().Msg("Server exited")
}
