package localstore

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"

	"github.com/dvloznov/expense-tracker/internal/domain"
)

// GetTransactionsForUser returns the cached records for userID, most recent
// first. Storage or parse failures yield an empty slice, never an error.
func (s *Store) GetTransactionsForUser(ctx context.Context, userID string) []domain.Transaction {
	root := s.readRoot(ctx, TransactionsKey)
	return sortTransactions(decodeTransactions(root[userKey(userID)]))
}

// SaveTransactionForUser prepends tx to the user's records and persists the
// whole set. A missing id is assigned locally. The stored record is returned.
func (s *Store) SaveTransactionForUser(ctx context.Context, userID string, tx domain.Transaction) (domain.Transaction, error) {
	userID = userKey(userID)
	if tx.ID == "" {
		tx.ID = domain.NewLocalID(s.now())
	}
	tx.UserID = userID

	err := s.mutate(ctx, TransactionsKey, func(root map[string]json.RawMessage) error {
		existing := decodeTransactions(root[userID])
		return putTransactions(root, userID, sortTransactions(dedupByID(append([]domain.Transaction{tx}, existing...))))
	})
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("SaveTransactionForUser: %w", err)
	}
	return tx, nil
}

// SetTransactionsForUser replaces the user's records wholesale, typically
// with a remote snapshot. Records keep the synced flag they arrive with.
func (s *Store) SetTransactionsForUser(ctx context.Context, userID string, txs []domain.Transaction) error {
	userID = userKey(userID)

	normalized := make([]domain.Transaction, 0, len(txs))
	for _, tx := range txs {
		if tx.ID == "" {
			tx.ID = domain.NewLocalID(s.now())
		}
		tx.UserID = userID
		normalized = append(normalized, tx)
	}
	normalized = sortTransactions(dedupByID(normalized))

	err := s.mutate(ctx, TransactionsKey, func(root map[string]json.RawMessage) error {
		return putTransactions(root, userID, normalized)
	})
	if err != nil {
		return fmt.Errorf("SetTransactionsForUser: %w", err)
	}
	return nil
}

// UpdateTransactionForUser merges patch into the record with id.
func (s *Store) UpdateTransactionForUser(ctx context.Context, userID, id string, patch domain.TransactionPatch) (domain.Transaction, error) {
	userID = userKey(userID)
	if id == "" {
		return domain.Transaction{}, fmt.Errorf("UpdateTransactionForUser: %w: empty id", ErrNotFound)
	}

	var updated domain.Transaction
	err := s.mutate(ctx, TransactionsKey, func(root map[string]json.RawMessage) error {
		existing := decodeTransactions(root[userID])
		i := slices.IndexFunc(existing, func(tx domain.Transaction) bool { return tx.ID == id })
		if i < 0 {
			return fmt.Errorf("transaction %s: %w", id, ErrNotFound)
		}
		updated = patch.Apply(existing[i])
		updated.ID = id
		updated.UserID = userID
		existing[i] = updated
		return putTransactions(root, userID, sortTransactions(existing))
	})
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("UpdateTransactionForUser: %w", err)
	}
	return updated, nil
}

// DeleteTransactionForUser removes the record with id and returns what remains.
func (s *Store) DeleteTransactionForUser(ctx context.Context, userID, id string) ([]domain.Transaction, error) {
	userID = userKey(userID)

	var remaining []domain.Transaction
	err := s.mutate(ctx, TransactionsKey, func(root map[string]json.RawMessage) error {
		existing := decodeTransactions(root[userID])
		remaining = make([]domain.Transaction, 0, len(existing))
		for _, tx := range existing {
			if tx.ID != id {
				remaining = append(remaining, tx)
			}
		}
		remaining = sortTransactions(remaining)
		return putTransactions(root, userID, remaining)
	})
	if err != nil {
		return nil, fmt.Errorf("DeleteTransactionForUser: %w", err)
	}
	return remaining, nil
}

// ReplaceTransaction swaps the record oldID for tx in one locked step. It is
// used once a locally created record has been written remotely under a new id.
func (s *Store) ReplaceTransaction(ctx context.Context, userID, oldID string, tx domain.Transaction) (domain.Transaction, error) {
	userID = userKey(userID)
	if tx.ID == "" {
		tx.ID = domain.NewLocalID(s.now())
	}
	tx.UserID = userID

	err := s.mutate(ctx, TransactionsKey, func(root map[string]json.RawMessage) error {
		existing := decodeTransactions(root[userID])
		kept := make([]domain.Transaction, 0, len(existing)+1)
		kept = append(kept, tx)
		for _, item := range existing {
			if item.ID != oldID {
				kept = append(kept, item)
			}
		}
		return putTransactions(root, userID, sortTransactions(dedupByID(kept)))
	})
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("ReplaceTransaction: %w", err)
	}
	return tx, nil
}

// UnsyncedTransactions lists the user's records that never reached the remote store.
func (s *Store) UnsyncedTransactions(ctx context.Context, userID string) []domain.Transaction {
	var out []domain.Transaction
	for _, tx := range s.GetTransactionsForUser(ctx, userID) {
		if !tx.Synced {
			out = append(out, tx)
		}
	}
	return out
}

func putTransactions(root map[string]json.RawMessage, userID string, txs []domain.Transaction) error {
	if txs == nil {
		txs = []domain.Transaction{}
	}
	data, err := json.Marshal(txs)
	if err != nil {
		return fmt.Errorf("encoding transactions: %w", err)
	}
	root[userID] = data
	return nil
}

func decodeTransactions(raw json.RawMessage) []domain.Transaction {
	objects := decodeObjects(raw)
	out := make([]domain.Transaction, 0, len(objects))
	for _, obj := range objects {
		var tx domain.Transaction
		if err := json.Unmarshal(obj, &tx); err != nil {
			continue
		}
		out = append(out, tx)
	}
	return out
}

// dedupByID keeps the first occurrence of every id.
func dedupByID(txs []domain.Transaction) []domain.Transaction {
	seen := make(map[string]bool, len(txs))
	out := make([]domain.Transaction, 0, len(txs))
	for _, tx := range txs {
		if seen[tx.ID] {
			continue
		}
		seen[tx.ID] = true
		out = append(out, tx)
	}
	return out
}

// sortTransactions orders by createdAt, most recent first. Ties keep their order.
func sortTransactions(txs []domain.Transaction) []domain.Transaction {
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].CreatedAt.After(txs[j].CreatedAt)
	})
	return txs
}

func userKey(userID string) string {
	if userID == "" {
		return domain.LocalUserID
	}
	return userID
}

// Users lists the storage keys that hold at least one record, sorted.
func (s *Store) Users(ctx context.Context) []string {
	root := s.readRoot(ctx, TransactionsKey)
	users := make([]string, 0, len(root))
	for uid, raw := range root {
		if len(decodeObjects(raw)) > 0 {
			users = append(users, uid)
		}
	}
	sort.Strings(users)
	return users
}
