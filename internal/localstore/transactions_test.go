package localstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dvloznov/expense-tracker/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *MemoryBackend) {
	t.Helper()
	backend := NewMemoryBackend()
	return New(backend, zerolog.Nop()), backend
}

// flakyBackend wraps a MemoryBackend without its Update, so the store goes
// through separate Get and Set calls. Get fails getFails times, Set fails
// whenever setErr is set.
type flakyBackend struct {
	inner    *MemoryBackend
	getFails int
	setErr   error
}

func newFlakyBackend() *flakyBackend {
	return &flakyBackend{inner: NewMemoryBackend()}
}

func (f *flakyBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if f.getFails > 0 {
		f.getFails--
		return nil, false, errors.New("database is locked")
	}
	return f.inner.Get(ctx, key)
}

func (f *flakyBackend) Set(ctx context.Context, key string, value []byte) error {
	if f.setErr != nil {
		return f.setErr
	}
	return f.inner.Set(ctx, key, value)
}

func (f *flakyBackend) Close() error { return nil }

func TestSaveTransactionForUser_RoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	saved, err := store.SaveTransactionForUser(ctx, "u1", domain.Transaction{Amount: 12.5, Type: "income"})
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)
	assert.True(t, domain.IsLocalID(saved.ID))
	assert.Equal(t, "u1", saved.UserID)
	assert.False(t, saved.Synced)

	got := store.GetTransactionsForUser(ctx, "u1")
	require.Len(t, got, 1)
	assert.Equal(t, saved.ID, got[0].ID)
	assert.Equal(t, 12.5, got[0].Amount)
	assert.Equal(t, domain.Type("income"), got[0].Type, "type must not be normalized here")
}

func TestSaveTransactionForUser_KeepsExplicitID(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	saved, err := store.SaveTransactionForUser(ctx, "u1", domain.Transaction{ID: "remote-1", UserID: "someone-else"})
	require.NoError(t, err)
	assert.Equal(t, "remote-1", saved.ID)
	assert.Equal(t, "u1", saved.UserID, "owner is forced to the target user")
}

func TestSaveTransactionForUser_MostRecentFirstAndDedup(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := store.SaveTransactionForUser(ctx, "u1", domain.Transaction{ID: "old", CreatedAt: base})
	require.NoError(t, err)
	_, err = store.SaveTransactionForUser(ctx, "u1", domain.Transaction{ID: "new", CreatedAt: base.Add(time.Hour)})
	require.NoError(t, err)
	_, err = store.SaveTransactionForUser(ctx, "u1", domain.Transaction{ID: "old", CreatedAt: base, Note: "replaced"})
	require.NoError(t, err)

	got := store.GetTransactionsForUser(ctx, "u1")
	require.Len(t, got, 2)
	assert.Equal(t, "new", got[0].ID)
	assert.Equal(t, "old", got[1].ID)
	assert.Equal(t, "replaced", got[1].Note, "the newly saved copy wins")
}

func TestSaveTransactionForUser_UsersAreSegregated(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.SaveTransactionForUser(ctx, "", domain.Transaction{Amount: 1})
	require.NoError(t, err)
	_, err = store.SaveTransactionForUser(ctx, "u1", domain.Transaction{Amount: 2})
	require.NoError(t, err)

	local := store.GetTransactionsForUser(ctx, domain.LocalUserID)
	require.Len(t, local, 1)
	assert.Equal(t, 1.0, local[0].Amount)
	assert.Equal(t, domain.LocalUserID, local[0].UserID)

	assert.Len(t, store.GetTransactionsForUser(ctx, "u1"), 1)
	assert.Empty(t, store.GetTransactionsForUser(ctx, "u2"))
}

func TestSaveTransactionForUser_WriteFailureIsReturned(t *testing.T) {
	backend := newFlakyBackend()
	backend.setErr = errors.New("disk full")
	store := New(backend, zerolog.Nop())

	_, err := store.SaveTransactionForUser(context.Background(), "u1", domain.Transaction{Amount: 1})
	assert.Error(t, err)
}

func TestWritesAbortWhenStorageCannotBeRead(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	writes := map[string]func(s *Store) error{
		"save": func(s *Store) error {
			_, err := s.SaveTransactionForUser(ctx, "bob", domain.Transaction{ID: "b2", CreatedAt: base})
			return err
		},
		"set": func(s *Store) error {
			return s.SetTransactionsForUser(ctx, "bob", []domain.Transaction{{ID: "b2"}})
		},
		"update": func(s *Store) error {
			note := "edited"
			_, err := s.UpdateTransactionForUser(ctx, "bob", "b1", domain.TransactionPatch{Note: &note})
			return err
		},
		"delete": func(s *Store) error {
			_, err := s.DeleteTransactionForUser(ctx, "bob", "b1")
			return err
		},
		"replace": func(s *Store) error {
			_, err := s.ReplaceTransaction(ctx, "bob", "b1", domain.Transaction{ID: "remote-b1", Synced: true})
			return err
		},
		"accounts": func(s *Store) error {
			return s.SetBankAccounts(ctx, "bob", nil)
		},
	}

	for name, write := range writes {
		t.Run(name, func(t *testing.T) {
			backend := newFlakyBackend()
			store := New(backend, zerolog.Nop())

			_, err := store.SaveTransactionForUser(ctx, "alice", domain.Transaction{ID: "a1", CreatedAt: base})
			require.NoError(t, err)
			_, err = store.SaveTransactionForUser(ctx, "bob", domain.Transaction{ID: "b1", CreatedAt: base})
			require.NoError(t, err)
			require.NoError(t, store.SetBankAccounts(ctx, "alice", nil))

			backend.getFails = 1
			assert.Error(t, write(store))

			assert.Len(t, store.GetTransactionsForUser(ctx, "alice"), 1)
			bob := store.GetTransactionsForUser(ctx, "bob")
			require.Len(t, bob, 1)
			assert.Equal(t, "b1", bob[0].ID)
			assert.Empty(t, bob[0].Note)

			raw, ok, err := backend.inner.Get(ctx, BankAccountsKey)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Contains(t, string(raw), `"alice"`)
		})
	}
}

func TestSetTransactionsForUser_Idempotent(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)

	x := []domain.Transaction{
		{ID: "a", UserID: "u1", Amount: 10, Type: domain.TypeIncome, Category: "Salary", CreatedAt: base, Synced: true},
		{ID: "b", UserID: "u1", Amount: 3.5, Type: domain.TypeExpense, Note: "coffee", CreatedAt: base.Add(-time.Hour), Synced: true},
		{ID: "r1", UserID: "u1", Amount: 7, Type: domain.TypeTransfer, PaymentMethod: "Card", CreatedAt: base.Add(-2 * time.Hour), Synced: false},
		{ID: "local-1700000000000-abcd", UserID: "u1", Amount: 1, Currency: "EUR", CreatedAt: base.Add(-3 * time.Hour), Synced: false},
	}
	require.NoError(t, store.SetTransactionsForUser(ctx, "u1", x))

	got := store.GetTransactionsForUser(ctx, "u1")
	assert.ElementsMatch(t, x, got)
}

func TestSetTransactionsForUser_ReplacesWholesale(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.SaveTransactionForUser(ctx, "u1", domain.Transaction{Amount: 42, Type: domain.TypeExpense})
	require.NoError(t, err)

	require.NoError(t, store.SetTransactionsForUser(ctx, "u1", []domain.Transaction{{ID: "remote-1", Amount: 5, Synced: true}}))

	got := store.GetTransactionsForUser(ctx, "u1")
	require.Len(t, got, 1)
	assert.Equal(t, "remote-1", got[0].ID)
	assert.True(t, got[0].Synced)
}

func TestGetTransactionsForUser_MalformedStorage(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", "{{{"},
		{"array root", `[{"id":"a"}]`},
		{"string root", `"hello"`},
		{"number root", `42`},
		{"null root", `null`},
		{"user value not array", `{"u1":{"id":"a"}}`},
		{"user value string", `{"u1":"oops"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, backend := newTestStore(t)
			ctx := context.Background()
			require.NoError(t, backend.Set(ctx, TransactionsKey, []byte(tt.raw)))

			assert.NotPanics(t, func() {
				got := store.GetTransactionsForUser(ctx, "u1")
				assert.Empty(t, got)
			})
		})
	}
}

func TestGetTransactionsForUser_DropsNonObjectElements(t *testing.T) {
	store, backend := newTestStore(t)
	ctx := context.Background()
	raw := `{"u1":[{"id":"a","amount":1},null,5,"x",{"id":"b","amount":"2"}]}`
	require.NoError(t, backend.Set(ctx, TransactionsKey, []byte(raw)))

	got := store.GetTransactionsForUser(ctx, "u1")
	require.Len(t, got, 2)
	ids := []string{got[0].ID, got[1].ID}
	assert.ElementsMatch(t, []string{"a", "b"}, ids)
}

func TestSaveTransactionForUser_RecoversFromMalformedRoot(t *testing.T) {
	store, backend := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, backend.Set(ctx, TransactionsKey, []byte(`[1,2,3]`)))

	_, err := store.SaveTransactionForUser(ctx, "u1", domain.Transaction{Amount: 1})
	require.NoError(t, err)
	assert.Len(t, store.GetTransactionsForUser(ctx, "u1"), 1)
}

func TestUpdateTransactionForUser(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	saved, err := store.SaveTransactionForUser(ctx, "u1", domain.Transaction{Amount: 1, Note: "a"})
	require.NoError(t, err)

	note := "b"
	synced := true
	updated, err := store.UpdateTransactionForUser(ctx, "u1", saved.ID, domain.TransactionPatch{Note: &note, Synced: &synced})
	require.NoError(t, err)
	assert.Equal(t, "b", updated.Note)
	assert.True(t, updated.Synced)

	got := store.GetTransactionsForUser(ctx, "u1")
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].Note)

	_, err = store.UpdateTransactionForUser(ctx, "u1", "missing", domain.TransactionPatch{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteTransactionForUser(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	a, err := store.SaveTransactionForUser(ctx, "u1", domain.Transaction{Amount: 1})
	require.NoError(t, err)
	_, err = store.SaveTransactionForUser(ctx, "u1", domain.Transaction{Amount: 2})
	require.NoError(t, err)

	remaining, err := store.DeleteTransactionForUser(ctx, "u1", a.ID)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, 2.0, remaining[0].Amount)
	assert.Len(t, store.GetTransactionsForUser(ctx, "u1"), 1)
}

func TestReplaceTransactionAndUnsynced(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	local, err := store.SaveTransactionForUser(ctx, "u1", domain.Transaction{Amount: 9})
	require.NoError(t, err)
	require.Len(t, store.UnsyncedTransactions(ctx, "u1"), 1)

	remote := local
	remote.ID = "remote-9"
	remote.Synced = true
	_, err = store.ReplaceTransaction(ctx, "u1", local.ID, remote)
	require.NoError(t, err)

	got := store.GetTransactionsForUser(ctx, "u1")
	require.Len(t, got, 1)
	assert.Equal(t, "remote-9", got[0].ID)
	assert.Empty(t, store.UnsyncedTransactions(ctx, "u1"))
}

func TestConcurrentSavesDoNotClobber(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	const writers = 25
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := store.SaveTransactionForUser(ctx, "u1", domain.Transaction{ID: fmt.Sprintf("tx-%d", i), Amount: float64(i)})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Len(t, store.GetTransactionsForUser(ctx, "u1"), writers)
}

func TestStoreOnFileAndSQLiteBackends(t *testing.T) {
	dir := t.TempDir()

	openers := map[string]func() (Backend, error){
		"file": func() (Backend, error) { return OpenFileBackend(filepath.Join(dir, "store.json"), zerolog.Nop()) },
		"sqlite": func() (Backend, error) {
			return OpenSQLiteBackend(filepath.Join(dir, "store.db"))
		},
	}

	for name, open := range openers {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			backend, err := open()
			require.NoError(t, err)
			store := New(backend, zerolog.Nop())
			saved, err := store.SaveTransactionForUser(ctx, "u1", domain.Transaction{Amount: 42, Type: domain.TypeExpense})
			require.NoError(t, err)
			require.NoError(t, store.Close())

			// Survives a restart.
			backend, err = open()
			require.NoError(t, err)
			store = New(backend, zerolog.Nop())
			defer store.Close()

			got := store.GetTransactionsForUser(ctx, "u1")
			require.Len(t, got, 1)
			assert.Equal(t, saved.ID, got[0].ID)
			assert.Equal(t, 42.0, got[0].Amount)
		})
	}
}

func TestUsers(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	assert.Empty(t, store.Users(ctx))

	_, err := store.SaveTransactionForUser(ctx, "u2", domain.Transaction{Amount: 1})
	require.NoError(t, err)
	_, err = store.SaveTransactionForUser(ctx, "", domain.Transaction{Amount: 1})
	require.NoError(t, err)
	require.NoError(t, store.SetTransactionsForUser(ctx, "u3", nil))

	assert.Equal(t, []string{domain.LocalUserID, "u2"}, store.Users(ctx))
}

func TestFileBackend_CorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	corrupt := []byte(`{"@expense-tracker/transactions":"{\"u1\":[`)
	require.NoError(t, os.WriteFile(path, corrupt, 0o600))

	backend, err := OpenFileBackend(path, zerolog.Nop())
	require.NoError(t, err)
	store := New(backend, zerolog.Nop())
	ctx := context.Background()

	assert.Empty(t, store.GetTransactionsForUser(ctx, "u1"))

	kept, err := os.ReadFile(path + ".corrupt")
	require.NoError(t, err)
	assert.Equal(t, corrupt, kept)

	_, err = store.SaveTransactionForUser(ctx, "u1", domain.Transaction{Amount: 3})
	require.NoError(t, err)

	reopened, err := OpenFileBackend(path, zerolog.Nop())
	require.NoError(t, err)
	assert.Len(t, New(reopened, zerolog.Nop()).GetTransactionsForUser(ctx, "u1"), 1)
}

func TestFileBackend_WritesLeaveNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	backend, err := OpenFileBackend(filepath.Join(dir, "store.json"), zerolog.Nop())
	require.NoError(t, err)
	store := New(backend, zerolog.Nop())

	for i := 0; i < 3; i++ {
		_, err := store.SaveTransactionForUser(context.Background(), "u1", domain.Transaction{Amount: float64(i)})
		require.NoError(t, err)
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "store.json", entries[0].Name())
}

func TestSQLiteBackend_SharedFileAcrossHandles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")
	ctx := context.Background()

	// Two handles on one file stand in for the API and the worker processes.
	var stores []*Store
	for i := 0; i < 2; i++ {
		backend, err := OpenSQLiteBackend(path)
		require.NoError(t, err)
		store := New(backend, zerolog.Nop())
		defer store.Close()
		stores = append(stores, store)
	}

	const perStore = 10
	var wg sync.WaitGroup
	for i, store := range stores {
		for j := 0; j < perStore; j++ {
			wg.Add(1)
			go func(store *Store, uid string, j int) {
				defer wg.Done()
				_, err := store.SaveTransactionForUser(ctx, uid, domain.Transaction{ID: fmt.Sprintf("%s-%d", uid, j)})
				assert.NoError(t, err)
			}(store, fmt.Sprintf("user-%d", i), j)
		}
	}
	wg.Wait()

	assert.Len(t, stores[0].GetTransactionsForUser(ctx, "user-0"), perStore)
	assert.Len(t, stores[0].GetTransactionsForUser(ctx, "user-1"), perStore)
}
