package remote

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dvloznov/expense-tracker/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// fakeStream feeds scripted snapshots to a subscription.
type fakeStream struct {
	ctx   context.Context
	steps chan func() ([]domain.Transaction, error)
}

func newFakeStream(ctx context.Context) *fakeStream {
	return &fakeStream{ctx: ctx, steps: make(chan func() ([]domain.Transaction, error), 4)}
}

func (f *fakeStream) next() ([]domain.Transaction, error) {
	select {
	case step := <-f.steps:
		return step()
	case <-f.ctx.Done():
		return nil, status.Error(codes.Canceled, "context canceled")
	}
}

type recorder struct {
	mu     sync.Mutex
	data   [][]domain.Transaction
	errs   []error
	dataCh chan struct{}
	errCh  chan struct{}
}

func newRecorder() *recorder {
	return &recorder{dataCh: make(chan struct{}, 8), errCh: make(chan struct{}, 8)}
}

func (r *recorder) handlers() Handlers {
	return Handlers{
		OnData: func(items []domain.Transaction) {
			r.mu.Lock()
			r.data = append(r.data, items)
			r.mu.Unlock()
			r.dataCh <- struct{}{}
		},
		OnError: func(err error) {
			r.mu.Lock()
			r.errs = append(r.errs, err)
			r.mu.Unlock()
			r.errCh <- struct{}{}
		},
	}
}

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for callback")
	}
}

func TestSubscription_DeliversSnapshotsUntilUnsubscribed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	stream := newFakeStream(ctx)
	rec := newRecorder()
	cleaned := make(chan struct{})

	sub := startSubscription(ctx, cancel, stream.next, rec.handlers(), func() { close(cleaned) })

	stream.steps <- func() ([]domain.Transaction, error) { return []domain.Transaction{{ID: "a"}}, nil }
	waitFor(t, rec.dataCh)
	stream.steps <- func() ([]domain.Transaction, error) { return []domain.Transaction{{ID: "a"}, {ID: "b"}}, nil }
	waitFor(t, rec.dataCh)

	sub.Unsubscribe()
	sub.Unsubscribe()
	waitFor(t, sub.Done())
	waitFor(t, cleaned)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.data, 2)
	assert.Len(t, rec.data[1], 2)
	assert.Empty(t, rec.errs, "cancellation is not reported as an error")
}

func TestSubscription_StreamErrorEndsSubscription(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream := newFakeStream(ctx)
	rec := newRecorder()

	sub := startSubscription(ctx, cancel, stream.next, rec.handlers(), nil)

	stream.steps <- func() ([]domain.Transaction, error) {
		return nil, status.Error(codes.PermissionDenied, "missing permissions")
	}
	waitFor(t, rec.errCh)
	waitFor(t, sub.Done())

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.errs, 1)
	assert.Equal(t, codes.PermissionDenied, status.Code(rec.errs[0]))
}

func TestSubscription_NothingDeliveredAfterUnsubscribe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	rec := newRecorder()
	release := make(chan struct{})

	next := func() ([]domain.Transaction, error) {
		<-release
		return []domain.Transaction{{ID: "late"}}, nil
	}
	sub := startSubscription(ctx, cancel, next, rec.handlers(), nil)

	sub.Unsubscribe()
	close(release)
	waitFor(t, sub.Done())

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Empty(t, rec.data)
}

func TestFirestoreStore_SetupFailuresReportedSynchronously(t *testing.T) {
	store := NewFirestoreStoreWithClient(nil, zerolog.Nop())

	var got error
	unsubscribe := store.Subscribe(context.Background(), "", Handlers{OnError: func(err error) { got = err }})
	require.NotNil(t, unsubscribe)
	assert.True(t, errors.Is(got, ErrUserIDRequired))
	unsubscribe()

	got = nil
	store.Subscribe(context.Background(), "u1", Handlers{OnError: func(err error) { got = err }})
	assert.True(t, errors.Is(got, ErrNotConfigured))
}

func TestFirestoreStore_RequiresUserID(t *testing.T) {
	store := NewFirestoreStoreWithClient(nil, zerolog.Nop())
	ctx := context.Background()

	_, err := store.CreateTransaction(ctx, "", domain.Transaction{Amount: 1})
	assert.ErrorIs(t, err, ErrUserIDRequired)

	_, err = store.FetchTransactions(ctx, "")
	assert.ErrorIs(t, err, ErrUserIDRequired)

	assert.ErrorIs(t, store.DeleteTransaction(ctx, "", "id"), ErrUserIDRequired)
	assert.NoError(t, store.Close())
}
