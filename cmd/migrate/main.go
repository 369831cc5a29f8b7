package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/dvloznov/expense-tracker/internal/config"
	infraBQ "github.com/dvloznov/expense-tracker/internal/infra/bigquery"
	"github.com/dvloznov/expense-tracker/internal/logger"
)

func main() {
	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	var (
		projectID     = flag.String("project", cfg.BQProject, "GCP project ID (or set BQ_PROJECT)")
		datasetID     = flag.String("dataset", cfg.BQDataset, "BigQuery dataset ID (or set BQ_DATASET)")
		appliedBy     = flag.String("applied-by", "migrate-cli", "Name of the tool applying migrations")
		migrationsDir = flag.String("migrations", "", "Directory of NNNN_name.sql files (default: the embedded set)")
	)
	flag.Parse()

	if *projectID == "" {
		log.Fatal().Msg("Error: -project is required (or set BQ_PROJECT)")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	wh, err := infraBQ.NewBigQueryWarehouse(ctx, *projectID, *datasetID, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create BigQuery client")
	}
	defer wh.Close()

	migrations := infraBQ.Migrations()
	if *migrationsDir != "" {
		migrations = os.DirFS(*migrationsDir)
	}

	log.Info().Str("project", *projectID).Str("dataset", *datasetID).Msg("Connected to BigQuery")

	applied, err := wh.Migrate(ctx, migrations, *appliedBy)
	if err != nil {
		log.Fatal().Err(err).Int("applied", applied).Msg("Migration failed")
	}

	log.Info().Int("applied", applied).Msg("Migrations complete")
}
