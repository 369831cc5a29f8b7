package persist

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/expense-tracker/internal/domain"
	"github.com/dvloznov/expense-tracker/internal/remote"
	"github.com/rs/zerolog"
)

// Status tells the caller where a write ended up.
type Status string

const (
	// StatusLocalOnly means no user is signed in and the remote store was not attempted.
	StatusLocalOnly Status = "local-only"
	// StatusSynced means the remote write succeeded and the cache holds the remote copy.
	StatusSynced Status = "synced"
	// StatusOfflineFallback means the remote write failed and only the local copy exists.
	StatusOfflineFallback Status = "offline-fallback"
)

// Result describes the outcome of one orchestrated write.
type Result struct {
	Status Status
	// UserID is the storage key the record was written under.
	UserID string
	// Transaction is the record as it now sits in the local cache.
	Transaction domain.Transaction
	// Remote is the remote copy when Status is synced.
	Remote *domain.Transaction
	// Err is the remote failure when Status is offline-fallback.
	Err error
}

// Orchestrator writes transactions locally first and then, for signed-in
// users, to the remote store. A remote failure never escapes as an error.
type Orchestrator struct {
	local    LocalStore
	accounts AccountStore
	remote   remote.TransactionStore
	log      zerolog.Logger
	now      func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithAccounts enables bank account balance recomputation after each write.
func WithAccounts(accounts AccountStore) Option {
	return func(o *Orchestrator) { o.accounts = accounts }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an Orchestrator. remoteStore may be nil, in which case every
// signed-in write ends as offline-fallback.
func New(local LocalStore, remoteStore remote.TransactionStore, log zerolog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		local:  local,
		remote: remoteStore,
		log:    log,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// PersistTransaction saves tx for identity. The local write always happens
// first; its failure is the only error returned.
func (o *Orchestrator) PersistTransaction(ctx context.Context, identity domain.Identity, tx domain.Transaction) (Result, error) {
	userID := identity.StorageKey()
	log := o.log.With().Str("user_id", userID).Logger()

	payload := o.normalize(log, tx)
	payload.Synced = false

	stored, err := o.local.SaveTransactionForUser(ctx, userID, payload)
	if err != nil {
		log.Error().Err(err).Msg("Failed to save transaction locally")
		return Result{}, fmt.Errorf("PersistTransaction: %w", err)
	}
	log = log.With().Str("transaction_id", stored.ID).Logger()

	if !identity.IsAuthenticated() {
		o.syncBalances(ctx, log, userID)
		log.Info().Str("status", string(StatusLocalOnly)).Msg("Transaction saved")
		return Result{Status: StatusLocalOnly, UserID: userID, Transaction: stored}, nil
	}

	created, err := o.createRemote(ctx, identity.UserID(), stored)
	if err != nil {
		o.syncBalances(ctx, log, userID)
		log.Warn().Err(err).Str("status", string(StatusOfflineFallback)).Msg("Remote write failed, transaction kept locally")
		return Result{Status: StatusOfflineFallback, UserID: userID, Transaction: stored, Err: err}, nil
	}

	created.Synced = true
	replaced, err := o.local.ReplaceTransaction(ctx, userID, stored.ID, created)
	if err != nil {
		log.Error().Err(err).Str("remote_id", created.ID).Msg("Failed to cache remote transaction")
		return Result{}, fmt.Errorf("PersistTransaction: %w", err)
	}

	o.syncBalances(ctx, log, userID)
	log.Info().Str("status", string(StatusSynced)).Str("remote_id", replaced.ID).Msg("Transaction saved")
	return Result{Status: StatusSynced, UserID: userID, Transaction: replaced, Remote: &created}, nil
}

// UpdateTransaction patches record id locally and pushes the result for
// signed-in users. A record that only exists locally is created remotely.
func (o *Orchestrator) UpdateTransaction(ctx context.Context, identity domain.Identity, id string, patch domain.TransactionPatch) (Result, error) {
	userID := identity.StorageKey()
	log := o.log.With().Str("user_id", userID).Str("transaction_id", id).Logger()

	if patch.Type != nil {
		normalized := o.normalizeType(log, *patch.Type)
		patch.Type = &normalized
	}
	if patch.Amount != nil {
		amount := domain.NormalizeAmount(*patch.Amount)
		patch.Amount = &amount
	}
	updatedAt := o.now().UTC()
	unsynced := false
	patch.UpdatedAt = &updatedAt
	patch.Synced = &unsynced

	stored, err := o.local.UpdateTransactionForUser(ctx, userID, id, patch)
	if err != nil {
		return Result{}, fmt.Errorf("UpdateTransaction: %w", err)
	}

	if !identity.IsAuthenticated() {
		o.syncBalances(ctx, log, userID)
		return Result{Status: StatusLocalOnly, UserID: userID, Transaction: stored}, nil
	}

	var pushed domain.Transaction
	if domain.IsLocalID(stored.ID) {
		pushed, err = o.createRemote(ctx, identity.UserID(), stored)
	} else {
		pushed, err = o.updateRemote(ctx, identity.UserID(), stored)
	}
	if err != nil {
		o.syncBalances(ctx, log, userID)
		log.Warn().Err(err).Str("status", string(StatusOfflineFallback)).Msg("Remote update failed, change kept locally")
		return Result{Status: StatusOfflineFallback, UserID: userID, Transaction: stored, Err: err}, nil
	}

	pushed.Synced = true
	replaced, err := o.local.ReplaceTransaction(ctx, userID, stored.ID, pushed)
	if err != nil {
		return Result{}, fmt.Errorf("UpdateTransaction: %w", err)
	}

	o.syncBalances(ctx, log, userID)
	return Result{Status: StatusSynced, UserID: userID, Transaction: replaced, Remote: &pushed}, nil
}

// DeleteTransaction removes record id locally and, for signed-in users whose
// record has a remote id, remotely.
func (o *Orchestrator) DeleteTransaction(ctx context.Context, identity domain.Identity, id string) (Result, error) {
	userID := identity.StorageKey()
	log := o.log.With().Str("user_id", userID).Str("transaction_id", id).Logger()

	if _, err := o.local.DeleteTransactionForUser(ctx, userID, id); err != nil {
		return Result{}, fmt.Errorf("DeleteTransaction: %w", err)
	}
	o.syncBalances(ctx, log, userID)

	deleted := domain.Transaction{ID: id, UserID: userID}
	if !identity.IsAuthenticated() || domain.IsLocalID(id) {
		return Result{Status: StatusLocalOnly, UserID: userID, Transaction: deleted}, nil
	}

	if o.remote == nil {
		return Result{Status: StatusOfflineFallback, UserID: userID, Transaction: deleted, Err: remote.ErrNotConfigured}, nil
	}
	if err := o.remote.DeleteTransaction(ctx, identity.UserID(), id); err != nil {
		log.Warn().Err(err).Str("status", string(StatusOfflineFallback)).Msg("Remote delete failed")
		return Result{Status: StatusOfflineFallback, UserID: userID, Transaction: deleted, Err: err}, nil
	}
	return Result{Status: StatusSynced, UserID: userID, Transaction: deleted}, nil
}

func (o *Orchestrator) createRemote(ctx context.Context, uid string, tx domain.Transaction) (domain.Transaction, error) {
	if o.remote == nil {
		return domain.Transaction{}, remote.ErrNotConfigured
	}
	tx.ID = ""
	return o.remote.CreateTransaction(ctx, uid, tx)
}

func (o *Orchestrator) updateRemote(ctx context.Context, uid string, tx domain.Transaction) (domain.Transaction, error) {
	if o.remote == nil {
		return domain.Transaction{}, remote.ErrNotConfigured
	}
	return o.remote.UpdateTransaction(ctx, uid, tx.ID, tx)
}

// normalize applies the storage defaults: finite amount, an event time and
// one of the known types.
func (o *Orchestrator) normalize(log zerolog.Logger, tx domain.Transaction) domain.Transaction {
	now := o.now()
	tx.Amount = domain.NormalizeAmount(tx.Amount)
	tx.CreatedAt = domain.NormalizeCreatedAt(tx.CreatedAt, now)
	tx.Type = o.normalizeType(log, tx.Type)
	if tx.UpdatedAt == nil {
		updated := now.UTC()
		tx.UpdatedAt = &updated
	}
	return tx
}

func (o *Orchestrator) normalizeType(log zerolog.Logger, t domain.Type) domain.Type {
	if t == "" {
		return domain.TypeExpense
	}
	parsed, err := domain.ParseType(string(t))
	if err != nil {
		log.Warn().Err(err).Msg("Unknown transaction type, defaulting to EXPENSE")
		return domain.TypeExpense
	}
	return parsed
}

// syncBalances recomputes the user's bank account balances from the cached
// transactions. Failures are logged only.
func (o *Orchestrator) syncBalances(ctx context.Context, log zerolog.Logger, userID string) {
	if o.accounts == nil {
		return
	}
	accounts, err := o.accounts.GetBankAccounts(ctx, userID)
	if err != nil && len(accounts) == 0 {
		log.Warn().Err(err).Msg("Failed to load bank accounts")
		return
	}
	if len(accounts) == 0 {
		return
	}

	updated := ComputeBalances(accounts, o.local.GetTransactionsForUser(ctx, userID), o.now())
	if err := o.accounts.SetBankAccounts(ctx, userID, updated); err != nil {
		log.Warn().Err(err).Msg("Failed to update bank account balances")
	}
}
