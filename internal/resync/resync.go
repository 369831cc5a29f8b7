// Package resync pushes locally cached records that never reached the remote
// store. It only runs when asked to; writes are never retried in the background
// on their own.
package resync

import (
	"context"
	"fmt"

	"github.com/dvloznov/expense-tracker/internal/domain"
	"github.com/dvloznov/expense-tracker/internal/jobs"
	"github.com/dvloznov/expense-tracker/internal/remote"
	"github.com/rs/zerolog"
)

// LocalStore is the part of the local cache the resyncer needs.
type LocalStore interface {
	GetTransactionsForUser(ctx context.Context, userID string) []domain.Transaction
	UnsyncedTransactions(ctx context.Context, userID string) []domain.Transaction
	ReplaceTransaction(ctx context.Context, userID, oldID string, tx domain.Transaction) (domain.Transaction, error)
}

// Resyncer turns unsynced records into push jobs and handles those jobs.
type Resyncer struct {
	local     LocalStore
	remote    remote.TransactionStore
	publisher jobs.Publisher
	store     jobs.JobStore
	log       zerolog.Logger
}

// New creates a Resyncer. store may be nil, in which case in-flight jobs are
// not deduplicated.
func New(local LocalStore, remoteStore remote.TransactionStore, publisher jobs.Publisher, store jobs.JobStore, log zerolog.Logger) *Resyncer {
	return &Resyncer{
		local:     local,
		remote:    remoteStore,
		publisher: publisher,
		store:     store,
		log:       log,
	}
}

// Enqueue publishes one job per unsynced record of uid, skipping records
// that already have a pending, running or retrying job. It returns the jobs
// it published.
func (r *Resyncer) Enqueue(ctx context.Context, uid string) ([]*jobs.PushTransactionJob, error) {
	if uid == "" || uid == domain.LocalUserID {
		return nil, fmt.Errorf("Enqueue: %w", remote.ErrUserIDRequired)
	}

	inFlight, err := r.inFlight(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("Enqueue: %w", err)
	}

	var published []*jobs.PushTransactionJob
	for _, tx := range r.local.UnsyncedTransactions(ctx, uid) {
		if inFlight[tx.ID] {
			continue
		}
		job := &jobs.PushTransactionJob{UserID: uid, TransactionID: tx.ID}
		if err := r.publisher.PublishPushTransaction(ctx, job); err != nil {
			return published, fmt.Errorf("Enqueue: failed to publish job for %s: %w", tx.ID, err)
		}
		published = append(published, job)
	}

	r.log.Info().
		Str("user_id", uid).
		Int("jobs", len(published)).
		Msg("Enqueued resync jobs")
	return published, nil
}

// EnqueueAll runs Enqueue for every signed-in user among uids and returns
// the number of jobs published. Per-user failures are logged and skipped.
func (r *Resyncer) EnqueueAll(ctx context.Context, uids []string) int {
	total := 0
	for _, uid := range uids {
		if uid == "" || uid == domain.LocalUserID {
			continue
		}
		published, err := r.Enqueue(ctx, uid)
		total += len(published)
		if err != nil {
			r.log.Warn().Err(err).Str("user_id", uid).Msg("Resync enqueue failed")
		}
	}
	return total
}

func (r *Resyncer) inFlight(ctx context.Context, uid string) (map[string]bool, error) {
	out := make(map[string]bool)
	if r.store == nil {
		return out, nil
	}
	existing, err := r.store.ListJobs(ctx, jobs.JobFilter{UserID: uid})
	if err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	for _, job := range existing {
		if !job.Done() {
			out[job.TransactionID] = true
		}
	}
	return out, nil
}

// Handle is a jobs.JobHandler. It pushes the record named by the job and
// replaces the cached copy with the remote one. A record that has since been
// synced or removed completes the job without a remote write.
func (r *Resyncer) Handle(ctx context.Context, job jobs.Job) error {
	push, ok := job.(*jobs.PushTransactionJob)
	if !ok {
		return fmt.Errorf("Handle: unsupported job type %s", job.GetType())
	}
	log := r.log.With().
		Str("job_id", push.JobID).
		Str("user_id", push.UserID).
		Str("transaction_id", push.TransactionID).
		Logger()

	tx, found := r.find(ctx, push.UserID, push.TransactionID)
	if !found || tx.Synced {
		log.Debug().Msg("Nothing to push")
		return nil
	}
	if r.remote == nil {
		return fmt.Errorf("Handle: %w", remote.ErrNotConfigured)
	}

	draft := tx
	draft.ID = ""
	created, err := r.remote.CreateTransaction(ctx, push.UserID, draft)
	if err != nil {
		return fmt.Errorf("Handle: failed to push transaction: %w", err)
	}

	created.Synced = true
	if _, err := r.local.ReplaceTransaction(ctx, push.UserID, tx.ID, created); err != nil {
		return fmt.Errorf("Handle: failed to cache remote copy: %w", err)
	}
	push.RemoteID = created.ID

	log.Info().Str("remote_id", created.ID).Msg("Transaction pushed")
	return nil
}

func (r *Resyncer) find(ctx context.Context, uid, id string) (domain.Transaction, bool) {
	for _, tx := range r.local.GetTransactionsForUser(ctx, uid) {
		if tx.ID == id {
			return tx, true
		}
	}
	return domain.Transaction{}, false
}
