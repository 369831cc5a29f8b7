package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/dvloznov/expense-tracker/internal/app"
	"github.com/dvloznov/expense-tracker/internal/config"
	"github.com/dvloznov/expense-tracker/internal/jobs"
	"github.com/dvloznov/expense-tracker/internal/logger"
)

func main() {
	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	once := flag.Bool("once", false, "enqueue one resync pass, wait for it and exit")
	drain := flag.Duration("drain", 2*time.Minute, "how long -once waits for pushes")
	flag.Parse()

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid LOG_LEVEL")
	}
	log = logger.NewWithLevel(os.Stdout, level)

	ctx, cancel := context.WithCancel(logger.WithContext(context.Background(), log))
	defer cancel()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise application")
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close application")
		}
	}()

	if a.Remote == nil {
		log.Fatal().Msg("Worker needs a remote project (set FIRESTORE_PROJECT)")
	}

	if err := a.StartWorkers(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start resync workers")
	}

	log.Info().Int("workers", cfg.ResyncWorkers).Msg("Starting resync worker")

	// Catch up on anything left over from the last run
	n := a.ResyncAll(ctx)
	log.Info().Int("jobs", n).Msg("Initial resync enqueued")

	if *once {
		drainCtx, drainCancel := context.WithTimeout(ctx, *drain)
		defer drainCancel()
		waitForQueue(drainCtx, a)
		log.Info().Msg("Resync pass finished")
		return
	}

	scheduler, err := a.StartScheduler(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start resync scheduler")
	}
	if scheduler == nil {
		log.Warn().Msg("No RESYNC_SCHEDULE set - only the initial pass will run")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker service...")

	if scheduler != nil {
		<-scheduler.Stop().Done()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop the queue and wait for in-flight jobs
	if err := a.Queue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}
	cancel()

	log.Info().Msg("Worker service exited")
}

// waitForQueue returns once no job is pending, running or retrying, or when
// ctx ends.
func waitForQueue(ctx context.Context, a *app.App) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		all, err := a.Jobs.ListJobs(ctx, jobs.JobFilter{})
		if err == nil && !slices.ContainsFunc(all, func(j *jobs.PushTransactionJob) bool { return !j.Done() }) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
