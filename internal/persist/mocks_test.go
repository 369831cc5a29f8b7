package persist

import (
	"context"
	"errors"

	"github.com/dvloznov/expense-tracker/internal/domain"
	"github.com/dvloznov/expense-tracker/internal/remote"
)

// MockRemote is a mock implementation of remote.TransactionStore.
type MockRemote struct {
	CreateTransactionFunc func(ctx context.Context, uid string, tx domain.Transaction) (domain.Transaction, error)
	UpdateTransactionFunc func(ctx context.Context, uid, id string, tx domain.Transaction) (domain.Transaction, error)
	DeleteTransactionFunc func(ctx context.Context, uid, id string) error
	FetchTransactionsFunc func(ctx context.Context, uid string) ([]domain.Transaction, error)
	SubscribeFunc         func(ctx context.Context, uid string, h remote.Handlers) remote.Unsubscribe

	CreateCalls int
}

func (m *MockRemote) CreateTransaction(ctx context.Context, uid string, tx domain.Transaction) (domain.Transaction, error) {
	m.CreateCalls++
	if m.CreateTransactionFunc != nil {
		return m.CreateTransactionFunc(ctx, uid, tx)
	}
	return domain.Transaction{}, errors.New("not implemented")
}

func (m *MockRemote) UpdateTransaction(ctx context.Context, uid, id string, tx domain.Transaction) (domain.Transaction, error) {
	if m.UpdateTransactionFunc != nil {
		return m.UpdateTransactionFunc(ctx, uid, id, tx)
	}
	return domain.Transaction{}, errors.New("not implemented")
}

func (m *MockRemote) DeleteTransaction(ctx context.Context, uid, id string) error {
	if m.DeleteTransactionFunc != nil {
		return m.DeleteTransactionFunc(ctx, uid, id)
	}
	return errors.New("not implemented")
}

func (m *MockRemote) FetchTransactions(ctx context.Context, uid string) ([]domain.Transaction, error) {
	if m.FetchTransactionsFunc != nil {
		return m.FetchTransactionsFunc(ctx, uid)
	}
	return nil, errors.New("not implemented")
}

func (m *MockRemote) Subscribe(ctx context.Context, uid string, h remote.Handlers) remote.Unsubscribe {
	if m.SubscribeFunc != nil {
		return m.SubscribeFunc(ctx, uid, h)
	}
	return func() {}
}

// MockLocal wraps a LocalStore and can fail saves.
type MockLocal struct {
	LocalStore
	SaveTransactionForUserFunc func(ctx context.Context, userID string, tx domain.Transaction) (domain.Transaction, error)
}

func (m *MockLocal) SaveTransactionForUser(ctx context.Context, userID string, tx domain.Transaction) (domain.Transaction, error) {
	if m.SaveTransactionForUserFunc != nil {
		return m.SaveTransactionForUserFunc(ctx, userID, tx)
	}
	return m.LocalStore.SaveTransactionForUser(ctx, userID, tx)
}
