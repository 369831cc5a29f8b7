package remote

import (
	"context"
	"errors"

	"github.com/dvloznov/expense-tracker/internal/domain"
)

var (
	// ErrUserIDRequired is returned by every operation called without a uid.
	ErrUserIDRequired = errors.New("user id is required")
	// ErrNotConfigured is reported when the store has no client behind it.
	ErrNotConfigured = errors.New("remote store is not configured")
)

// Handlers receive the results of a live subscription. OnData gets the full
// current set every time anything changes. OnError is called at most once and
// ends the subscription.
type Handlers struct {
	OnData  func([]domain.Transaction)
	OnError func(error)
}

func (h Handlers) data(items []domain.Transaction) {
	if h.OnData != nil {
		h.OnData(items)
	}
}

func (h Handlers) error(err error) {
	if h.OnError != nil {
		h.OnError(err)
	}
}

// Unsubscribe stops a subscription. Calling it more than once is a no-op.
type Unsubscribe func()

// TransactionStore is the per-user remote document store.
type TransactionStore interface {
	CreateTransaction(ctx context.Context, uid string, tx domain.Transaction) (domain.Transaction, error)
	UpdateTransaction(ctx context.Context, uid, id string, tx domain.Transaction) (domain.Transaction, error)
	DeleteTransaction(ctx context.Context, uid, id string) error
	FetchTransactions(ctx context.Context, uid string) ([]domain.Transaction, error)
	Subscribe(ctx context.Context, uid string, h Handlers) Unsubscribe
}
