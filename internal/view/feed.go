// Package view keeps a screen's transaction list reconciled with either the
// live remote feed or the local cache, depending on who is signed in.
package view

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dvloznov/expense-tracker/internal/domain"
	"github.com/dvloznov/expense-tracker/internal/remote"
	"github.com/rs/zerolog"
)

// State is the lifecycle position of a Feed.
type State string

const (
	StateIdle          State = "idle"
	StateSubscribing   State = "subscribing"
	StateLoadingLocal  State = "loading-local"
	StateLive          State = "live"
	StateLocalSnapshot State = "local-snapshot"
	StateUnsubscribed  State = "unsubscribed"
)

// ErrNotOpen is returned by Refresh before Open or after Close.
var ErrNotOpen = errors.New("feed is not open")

// Cache is the local mirror a Feed reads from and writes snapshots into.
type Cache interface {
	GetTransactionsForUser(ctx context.Context, userID string) []domain.Transaction
	SetTransactionsForUser(ctx context.Context, userID string, txs []domain.Transaction) error
}

// Feed is one screen's view of a user's transactions. Each Feed opens its
// own remote listener.
type Feed struct {
	remote remote.TransactionStore
	cache  Cache
	log    zerolog.Logger

	mu          sync.Mutex
	state       State
	identity    domain.Identity
	items       []domain.Transaction
	onItems     func([]domain.Transaction)
	unsubscribe remote.Unsubscribe
	generation  uint64
}

// NewFeed creates an idle Feed. remoteStore may be nil; signed-in users then
// get the local snapshot.
func NewFeed(remoteStore remote.TransactionStore, cache Cache, log zerolog.Logger) *Feed {
	return &Feed{
		remote: remoteStore,
		cache:  cache,
		log:    log,
		state:  StateIdle,
	}
}

// Open starts the feed for identity. onItems, if set, receives every new
// item set; it is called without internal locks held.
func (f *Feed) Open(ctx context.Context, identity domain.Identity, onItems func([]domain.Transaction)) {
	f.mu.Lock()
	f.onItems = onItems
	f.mu.Unlock()

	f.evaluate(ctx, identity)
}

// Refocus drops the current branch and evaluates identity again.
func (f *Feed) Refocus(ctx context.Context, identity domain.Identity) {
	f.evaluate(ctx, identity)
}

// Close detaches the listener. In-flight cache writes are not cancelled.
func (f *Feed) Close() {
	f.mu.Lock()
	f.generation++
	unsubscribe := f.unsubscribe
	f.unsubscribe = nil
	f.state = StateUnsubscribed
	f.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

// Items returns a copy of the current item set.
func (f *Feed) Items() []domain.Transaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Transaction, len(f.items))
	copy(out, f.items)
	return out
}

// State returns the current lifecycle state.
func (f *Feed) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Identity returns the identity the feed was last evaluated for.
func (f *Feed) Identity() domain.Identity {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.identity
}

// Refresh re-reads the item set once. Signed-in users fetch from the remote
// store and mirror the result; on failure the local cache is read and the
// fetch error is returned alongside.
func (f *Feed) Refresh(ctx context.Context) error {
	f.mu.Lock()
	state, identity, gen := f.state, f.identity, f.generation
	f.mu.Unlock()

	if state == StateIdle || state == StateUnsubscribed {
		return ErrNotOpen
	}

	items, _, err := load(ctx, f.remote, f.cache, f.log, identity)
	f.apply(gen, items, "")
	if err != nil {
		return fmt.Errorf("Refresh: %w", err)
	}
	return nil
}

func (f *Feed) evaluate(ctx context.Context, identity domain.Identity) {
	f.mu.Lock()
	previous := f.unsubscribe
	f.unsubscribe = nil
	f.generation++
	gen := f.generation
	f.identity = identity
	if identity.IsAuthenticated() {
		f.state = StateSubscribing
	} else {
		f.state = StateLoadingLocal
	}
	f.mu.Unlock()

	if previous != nil {
		previous()
	}

	if !identity.IsAuthenticated() {
		f.apply(gen, f.cache.GetTransactionsForUser(ctx, domain.LocalUserID), StateLocalSnapshot)
		return
	}

	uid := identity.UserID()
	if f.remote == nil {
		f.apply(gen, f.cache.GetTransactionsForUser(ctx, uid), StateLocalSnapshot)
		return
	}

	unsubscribe := f.remote.Subscribe(ctx, uid, remote.Handlers{
		OnData: func(items []domain.Transaction) {
			if !f.current(gen) {
				return
			}
			mirror(ctx, f.cache, f.log, uid, items)
			f.apply(gen, items, StateLive)
		},
		OnError: func(err error) {
			if !f.current(gen) {
				return
			}
			f.log.Warn().Err(err).Str("user_id", uid).Msg("Subscription failed, reading local cache")
			f.apply(gen, f.cache.GetTransactionsForUser(ctx, uid), StateLocalSnapshot)
		},
	})

	f.mu.Lock()
	if f.generation == gen {
		f.unsubscribe = unsubscribe
		f.mu.Unlock()
		return
	}
	f.mu.Unlock()
	unsubscribe()
}

func (f *Feed) current(gen uint64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.generation == gen
}

// apply installs items if gen is still current. An empty state leaves the
// lifecycle state unchanged.
func (f *Feed) apply(gen uint64, items []domain.Transaction, state State) {
	f.mu.Lock()
	if f.generation != gen {
		f.mu.Unlock()
		return
	}
	f.items = items
	if state != "" {
		f.state = state
	}
	onItems := f.onItems
	f.mu.Unlock()

	if onItems != nil {
		out := make([]domain.Transaction, len(items))
		copy(out, items)
		onItems(out)
	}
}

// Snapshot reconciles identity's item set once without keeping a listener:
// a remote fetch mirrored into cache, or the cache alone for anonymous users,
// a nil remoteStore, or a failed fetch.
func Snapshot(ctx context.Context, remoteStore remote.TransactionStore, cache Cache, log zerolog.Logger, identity domain.Identity) ([]domain.Transaction, State) {
	items, state, _ := load(ctx, remoteStore, cache, log, identity)
	return items, state
}

func load(ctx context.Context, remoteStore remote.TransactionStore, cache Cache, log zerolog.Logger, identity domain.Identity) ([]domain.Transaction, State, error) {
	if !identity.IsAuthenticated() || remoteStore == nil {
		return cache.GetTransactionsForUser(ctx, identity.StorageKey()), StateLocalSnapshot, nil
	}

	uid := identity.UserID()
	items, err := remoteStore.FetchTransactions(ctx, uid)
	if err != nil {
		log.Warn().Err(err).Str("user_id", uid).Msg("Fetch failed, reading local cache")
		return cache.GetTransactionsForUser(ctx, uid), StateLocalSnapshot, err
	}
	mirror(ctx, cache, log, uid, items)
	return items, StateLive, nil
}

// mirror writes a remote snapshot through to the local cache. Failures are
// logged and otherwise ignored.
func mirror(ctx context.Context, cache Cache, log zerolog.Logger, uid string, items []domain.Transaction) {
	if err := cache.SetTransactionsForUser(context.WithoutCancel(ctx), uid, items); err != nil {
		log.Warn().Err(err).Str("user_id", uid).Msg("Failed to mirror transactions locally")
	}
}
