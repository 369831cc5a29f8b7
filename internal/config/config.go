// Package config reads process configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Store backends for the local record store.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Config holds every setting the binaries read at startup.
type Config struct {
	Port     string
	LogLevel string

	StoreBackend string
	StorePath    string

	// FirestoreProject enables the remote store; empty means offline-only.
	FirestoreProject string
	GCSBucket        string
	BQProject        string
	BQDataset        string
	NotionToken      string
	NotionDBID       string

	// JWTSecret verifies bearer tokens; empty means every request is anonymous.
	JWTSecret string

	// ResyncSchedule is a cron spec; empty disables scheduled resync.
	ResyncSchedule string
	ResyncWorkers  int
}

// Load reads a .env file from the working directory when present, then the
// environment. Variables already set in the environment win over .env.
func Load() (*Config, error) {
	return LoadFiles(".env")
}

// LoadFiles is Load with explicit .env paths. Missing files are ignored.
func LoadFiles(files ...string) (*Config, error) {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return nil, fmt.Errorf("config: loading %s: %w", f, err)
		}
	}

	workers, err := strconv.Atoi(getEnv("RESYNC_WORKERS", "2"))
	if err != nil || workers < 1 {
		return nil, fmt.Errorf("config: RESYNC_WORKERS must be a positive integer, got %q", os.Getenv("RESYNC_WORKERS"))
	}

	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		StoreBackend:     strings.ToLower(getEnv("STORE_BACKEND", BackendFile)),
		StorePath:        getEnv("STORE_PATH", "expense-tracker.json"),
		FirestoreProject: os.Getenv("FIRESTORE_PROJECT"),
		GCSBucket:        os.Getenv("GCS_BUCKET"),
		BQProject:        os.Getenv("BQ_PROJECT"),
		BQDataset:        getEnv("BQ_DATASET", "expense_tracker"),
		NotionToken:      os.Getenv("NOTION_TOKEN"),
		NotionDBID:       os.Getenv("NOTION_DB_ID"),
		JWTSecret:        os.Getenv("JWT_SECRET"),
		ResyncSchedule:   os.Getenv("RESYNC_SCHEDULE"),
		ResyncWorkers:    workers,
	}

	switch cfg.StoreBackend {
	case BackendMemory, BackendFile, BackendSQLite:
	default:
		return nil, fmt.Errorf("config: unknown STORE_BACKEND %q", cfg.StoreBackend)
	}

	return cfg, nil
}

// RemoteEnabled reports whether a remote project is configured.
func (c *Config) RemoteEnabled() bool {
	return c.FirestoreProject != ""
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
