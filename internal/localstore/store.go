package localstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

const (
	// TransactionsKey holds every user's transaction list in one JSON object.
	TransactionsKey = "@expense-tracker/transactions"
	// BankAccountsKey holds every user's bank accounts in one JSON object.
	BankAccountsKey = "@expense-tracker/bank-accounts"
)

// ErrNotFound is returned when a record id is not present in the user's set.
var ErrNotFound = errors.New("not found")

// Store is the local record store. Each blob key maps user ids to a JSON
// array; the whole blob is rewritten on every write.
type Store struct {
	backend Backend
	log     zerolog.Logger
	locks   *keyedMutex
	now     func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for ids and timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a Store on top of backend.
func New(backend Backend, log zerolog.Logger, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		log:     log,
		locks:   newKeyedMutex(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close closes the underlying backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// readRoot loads a blob as userId -> raw value for the read path. Missing,
// unreadable or malformed blobs degrade to an empty root.
func (s *Store) readRoot(ctx context.Context, key string) map[string]json.RawMessage {
	raw, ok, err := s.backend.Get(ctx, key)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Failed to read local store")
		return make(map[string]json.RawMessage)
	}
	return s.parseRoot(key, raw, ok)
}

// parseRoot decodes a stored blob. Malformed content counts as empty.
func (s *Store) parseRoot(key string, raw []byte, ok bool) map[string]json.RawMessage {
	root := make(map[string]json.RawMessage)
	if !ok {
		return root
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		s.log.Warn().Str("key", key).Msg("Discarding malformed local store root")
		return root
	}
	if err := json.Unmarshal(trimmed, &root); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Discarding malformed local store root")
		return make(map[string]json.RawMessage)
	}
	if root == nil {
		root = make(map[string]json.RawMessage)
	}
	return root
}

// mutate runs fn over the current root of key and writes the result back,
// holding the in-process lock for key. Backends implementing Updater make the
// cycle atomic across processes too. A failed backend read aborts before
// anything is written; an error from fn aborts likewise and is returned as is.
func (s *Store) mutate(ctx context.Context, key string, fn func(root map[string]json.RawMessage) error) error {
	unlock := s.locks.Lock(key)
	defer unlock()

	var fnErr error
	apply := func(raw []byte, ok bool) ([]byte, error) {
		root := s.parseRoot(key, raw, ok)
		if fnErr = fn(root); fnErr != nil {
			return nil, fnErr
		}
		data, err := json.Marshal(root)
		if err != nil {
			return nil, fmt.Errorf("encoding %s: %w", key, err)
		}
		return data, nil
	}

	if u, ok := s.backend.(Updater); ok {
		err := u.Update(ctx, key, apply)
		if err != nil && fnErr == nil {
			s.log.Warn().Err(err).Str("key", key).Msg("Failed to update local store")
		}
		return err
	}

	raw, ok, err := s.backend.Get(ctx, key)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Failed to read local store, write aborted")
		return fmt.Errorf("reading %s: %w", key, err)
	}
	data, err := apply(raw, ok)
	if err != nil {
		return err
	}
	if err := s.backend.Set(ctx, key, data); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Failed to write local store")
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

// decodeObjects splits a per-user value into its object elements, dropping
// anything that is not a JSON object.
func decodeObjects(raw json.RawMessage) []json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	out := items[:0]
	for _, item := range items {
		item = bytes.TrimSpace(item)
		if len(item) > 0 && item[0] == '{' {
			out = append(out, item)
		}
	}
	return out
}
