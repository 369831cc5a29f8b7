package remote

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/dvloznov/expense-tracker/internal/domain"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// snapshotFunc blocks until the next full result set is available.
type snapshotFunc func() ([]domain.Transaction, error)

// subscription drives a snapshot stream in its own goroutine until the
// stream fails or Unsubscribe is called.
type subscription struct {
	cancel  context.CancelFunc
	stopped atomic.Bool
	once    sync.Once
	done    chan struct{}
}

// startSubscription runs next in a loop and forwards results to h. cleanup
// runs on the listener goroutine once the loop has exited.
func startSubscription(ctx context.Context, cancel context.CancelFunc, next snapshotFunc, h Handlers, cleanup func()) *subscription {
	sub := &subscription{cancel: cancel, done: make(chan struct{})}
	go sub.run(ctx, next, h, cleanup)
	return sub
}

func (s *subscription) run(ctx context.Context, next snapshotFunc, h Handlers, cleanup func()) {
	defer close(s.done)
	if cleanup != nil {
		defer cleanup()
	}

	for {
		items, err := next()
		if s.stopped.Load() {
			return
		}
		if err != nil {
			if isStreamEnd(ctx, err) {
				return
			}
			h.error(err)
			return
		}
		h.data(items)
	}
}

// Unsubscribe cancels the stream. It does not wait for the listener so it is
// safe to call from inside a handler.
func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		s.stopped.Store(true)
		s.cancel()
	})
}

// Done is closed once the listener goroutine has exited.
func (s *subscription) Done() <-chan struct{} {
	return s.done
}

func isStreamEnd(ctx context.Context, err error) bool {
	if errors.Is(err, iterator.Done) {
		return true
	}
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || status.Code(err) == codes.Canceled) {
		return true
	}
	return false
}

func noopUnsubscribe() {}
