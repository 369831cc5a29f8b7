package remote

import (
	"context"
	"testing"
	"time"

	"github.com/dvloznov/expense-tracker/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_CreateAndFetch(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	first, err := store.CreateTransaction(ctx, "u1", domain.Transaction{Amount: 5, Type: "expense", CreatedAt: base})
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	assert.False(t, domain.IsLocalID(first.ID))
	assert.Equal(t, domain.TypeExpense, first.Type)

	_, err = store.CreateTransaction(ctx, "u1", domain.Transaction{Amount: 7, Type: "income", CreatedAt: base.Add(time.Hour)})
	require.NoError(t, err)

	got, err := store.FetchTransactions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 7.0, got[0].Amount, "most recent first")

	other, err := store.FetchTransactions(ctx, "u2")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestMemoryStore_RequiresUserID(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.CreateTransaction(context.Background(), "", domain.Transaction{})
	assert.ErrorIs(t, err, ErrUserIDRequired)
}

func TestMemoryStore_Subscribe(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	var snapshots [][]domain.Transaction
	unsubscribe := store.Subscribe(ctx, "u1", Handlers{
		OnData: func(items []domain.Transaction) { snapshots = append(snapshots, items) },
	})

	created, err := store.CreateTransaction(ctx, "u1", domain.Transaction{Amount: 1})
	require.NoError(t, err)
	require.NoError(t, store.DeleteTransaction(ctx, "u1", created.ID))

	unsubscribe()
	unsubscribe()
	_, err = store.CreateTransaction(ctx, "u1", domain.Transaction{Amount: 2})
	require.NoError(t, err)

	require.Len(t, snapshots, 3, "initial, after create, after delete")
	assert.Empty(t, snapshots[0])
	assert.Len(t, snapshots[1], 1)
	assert.Empty(t, snapshots[2])
}

func TestMemoryStore_SubscribeEndsWithContext(t *testing.T) {
	store := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())

	calls := make(chan int, 4)
	store.Subscribe(ctx, "u1", Handlers{
		OnData: func(items []domain.Transaction) { calls <- len(items) },
	})
	<-calls
	cancel()

	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.subscribers["u1"]) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestMemoryStore_Offline(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	var subErr error
	store.Subscribe(ctx, "u1", Handlers{OnError: func(err error) { subErr = err }})

	store.SetOffline(true)
	assert.ErrorIs(t, subErr, ErrUnavailable)

	_, err := store.CreateTransaction(ctx, "u1", domain.Transaction{Amount: 1})
	assert.ErrorIs(t, err, ErrUnavailable)

	var setupErr error
	store.Subscribe(ctx, "u1", Handlers{OnError: func(err error) { setupErr = err }})
	assert.ErrorIs(t, setupErr, ErrUnavailable)

	store.SetOffline(false)
	_, err = store.CreateTransaction(ctx, "u1", domain.Transaction{Amount: 1})
	assert.NoError(t, err)
}
