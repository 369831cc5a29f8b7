// Package app wires the stores, the orchestrator and the resync queue from a
// Config. Both binaries build their dependencies through it.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/expense-tracker/internal/config"
	"github.com/dvloznov/expense-tracker/internal/gcsuploader"
	infraBQ "github.com/dvloznov/expense-tracker/internal/infra/bigquery"
	"github.com/dvloznov/expense-tracker/internal/jobs/inmemory"
	"github.com/dvloznov/expense-tracker/internal/localstore"
	"github.com/dvloznov/expense-tracker/internal/notionsync"
	"github.com/dvloznov/expense-tracker/internal/persist"
	"github.com/dvloznov/expense-tracker/internal/remote"
	"github.com/dvloznov/expense-tracker/internal/resync"
	"github.com/dvloznov/expense-tracker/internal/view"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const jobBufferSize = 100

var (
	// ErrReportsDisabled is returned when no GCS bucket is configured.
	ErrReportsDisabled = errors.New("report storage is not configured (set GCS_BUCKET)")
	// ErrWarehouseDisabled is returned when no BigQuery project is configured.
	ErrWarehouseDisabled = errors.New("warehouse is not configured (set BQ_PROJECT)")
	// ErrNotionDisabled is returned when the Notion token or database is missing.
	ErrNotionDisabled = errors.New("notion export is not configured (set NOTION_TOKEN and NOTION_DB_ID)")
)

// App holds the long-lived components of a process.
type App struct {
	Config *config.Config
	Log    zerolog.Logger

	Local *localstore.Store
	// Remote is nil when no remote project is configured.
	Remote       remote.TransactionStore
	Orchestrator *persist.Orchestrator

	Jobs     *inmemory.Store
	Queue    *inmemory.Queue
	Resyncer *resync.Resyncer

	// Reports is nil when no bucket is configured.
	Reports gcsuploader.ReportStorage

	closers []func() error
}

// Option customises New, mostly for tests.
type Option func(*options)

type options struct {
	backend localstore.Backend
	remote  remote.TransactionStore
}

// WithBackend uses backend instead of opening the configured one.
func WithBackend(backend localstore.Backend) Option {
	return func(o *options) { o.backend = backend }
}

// WithRemote uses store instead of connecting to the configured project.
func WithRemote(store remote.TransactionStore) Option {
	return func(o *options) { o.remote = store }
}

// New opens the local store, connects the remote store when configured and
// builds the orchestrator and resync queue. Workers are not started.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{Config: cfg, Log: log}

	backend := o.backend
	if backend == nil {
		var err error
		backend, err = OpenBackend(cfg, log)
		if err != nil {
			return nil, err
		}
	}
	a.Local = localstore.New(backend, log.With().Str("component", "localstore").Logger())
	a.closers = append(a.closers, a.Local.Close)

	switch {
	case o.remote != nil:
		a.Remote = o.remote
	case cfg.RemoteEnabled():
		fs, err := remote.NewFirestoreStore(ctx, cfg.FirestoreProject, log.With().Str("component", "remote").Logger())
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("app: %w", err)
		}
		a.Remote = fs
		a.closers = append(a.closers, fs.Close)
	default:
		log.Warn().Msg("No remote project configured - records stay on this device")
	}

	a.Orchestrator = persist.New(a.Local, a.Remote, log.With().Str("component", "persist").Logger(),
		persist.WithAccounts(a.Local))

	a.Jobs = inmemory.NewStore()
	a.Queue = inmemory.NewQueue(jobBufferSize, a.Jobs,
		inmemory.WithWorkers(cfg.ResyncWorkers),
		inmemory.WithLogger(log.With().Str("component", "jobs").Logger()))
	a.Resyncer = resync.New(a.Local, a.Remote, a.Queue, a.Jobs, log.With().Str("component", "resync").Logger())

	if cfg.GCSBucket != "" {
		a.Reports = gcsuploader.NewGCSReportStorage(cfg.GCSBucket)
	}

	return a, nil
}

// OpenBackend opens the local blob backend named by cfg.StoreBackend.
func OpenBackend(cfg *config.Config, log zerolog.Logger) (localstore.Backend, error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		return localstore.NewMemoryBackend(), nil
	case config.BackendFile:
		b, err := localstore.OpenFileBackend(cfg.StorePath, log)
		if err != nil {
			return nil, fmt.Errorf("OpenBackend: %w", err)
		}
		return b, nil
	case config.BackendSQLite:
		b, err := localstore.OpenSQLiteBackend(cfg.StorePath)
		if err != nil {
			return nil, fmt.Errorf("OpenBackend: %w", err)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("OpenBackend: unknown backend %q", cfg.StoreBackend)
	}
}

// StartWorkers runs the resync handler on the queue until ctx ends or Close.
func (a *App) StartWorkers(ctx context.Context) error {
	return a.Queue.Start(ctx, a.Resyncer.Handle)
}

// ResyncAll enqueues push jobs for every signed-in user with cached records
// and returns the number of jobs published.
func (a *App) ResyncAll(ctx context.Context) int {
	return a.Resyncer.EnqueueAll(ctx, a.Local.Users(ctx))
}

// StartScheduler runs ResyncAll on the RESYNC_SCHEDULE cron spec. It returns
// a nil scheduler when no schedule or no remote store is configured. The
// caller stops the returned scheduler.
func (a *App) StartScheduler(ctx context.Context) (*cron.Cron, error) {
	schedule := a.Config.ResyncSchedule
	if schedule == "" {
		return nil, nil
	}
	if a.Remote == nil {
		a.Log.Warn().Str("schedule", schedule).Msg("RESYNC_SCHEDULE ignored without a remote project")
		return nil, nil
	}

	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		n := a.ResyncAll(ctx)
		a.Log.Info().Int("jobs", n).Msg("Scheduled resync enqueued")
	}); err != nil {
		return nil, fmt.Errorf("StartScheduler: invalid schedule %q: %w", schedule, err)
	}
	c.Start()

	a.Log.Info().Str("schedule", schedule).Msg("Scheduled resync enabled")
	return c, nil
}

// NewFeed creates a reconciled feed over the app's stores.
func (a *App) NewFeed() *view.Feed {
	return view.NewFeed(a.Remote, a.Local, a.Log.With().Str("component", "view").Logger())
}

// Warehouse connects to BigQuery. The caller closes it.
func (a *App) Warehouse(ctx context.Context) (infraBQ.Warehouse, error) {
	if a.Config.BQProject == "" {
		return nil, ErrWarehouseDisabled
	}
	return infraBQ.NewBigQueryWarehouse(ctx, a.Config.BQProject, a.Config.BQDataset, a.Log.With().Str("component", "bigquery").Logger())
}

// Notion returns a client for the configured integration and its database id.
func (a *App) Notion() (notionsync.NotionService, string, error) {
	if a.Config.NotionToken == "" || a.Config.NotionDBID == "" {
		return nil, "", ErrNotionDisabled
	}
	return notionsync.NewNotionClient(a.Config.NotionToken), a.Config.NotionDBID, nil
}

// Close stops the queue and closes the stores in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	if a.Queue != nil {
		if err := a.Queue.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
