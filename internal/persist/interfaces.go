package persist

import (
	"context"

	"github.com/dvloznov/expense-tracker/internal/domain"
)

// LocalStore is the on-device cache the orchestrator writes through.
type LocalStore interface {
	GetTransactionsForUser(ctx context.Context, userID string) []domain.Transaction
	SaveTransactionForUser(ctx context.Context, userID string, tx domain.Transaction) (domain.Transaction, error)
	UpdateTransactionForUser(ctx context.Context, userID, id string, patch domain.TransactionPatch) (domain.Transaction, error)
	DeleteTransactionForUser(ctx context.Context, userID, id string) ([]domain.Transaction, error)
	ReplaceTransaction(ctx context.Context, userID, oldID string, tx domain.Transaction) (domain.Transaction, error)
}

// AccountStore holds the locally derived bank account balances.
type AccountStore interface {
	GetBankAccounts(ctx context.Context, userID string) ([]domain.BankAccount, error)
	SetBankAccounts(ctx context.Context, userID string, accounts []domain.BankAccount) error
}
