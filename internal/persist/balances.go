package persist

import (
	"strings"
	"time"

	"github.com/dvloznov/expense-tracker/internal/domain"
	"github.com/shopspring/decimal"
)

func accountKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// ComputeBalances returns accounts with Balance recomputed as StartingBalance
// plus the signed amounts of every transaction paid from the account.
// Accounts are matched on name, ignoring case and surrounding whitespace.
func ComputeBalances(accounts []domain.BankAccount, txs []domain.Transaction, now time.Time) []domain.BankAccount {
	deltas := make(map[string]decimal.Decimal)
	for _, tx := range txs {
		key := accountKey(tx.PaymentAccount)
		if key == "" {
			continue
		}
		amount := decimal.NewFromFloat(domain.NormalizeAmount(tx.Amount)).Abs()
		if domain.NormalizeType(tx.Type) == domain.TypeExpense {
			amount = amount.Neg()
		}
		deltas[key] = deltas[key].Add(amount)
	}

	updatedAt := now.UTC()
	out := make([]domain.BankAccount, 0, len(accounts))
	for _, account := range accounts {
		start := account.Balance
		if account.StartingBalance != nil {
			start = *account.StartingBalance
		}
		start = domain.NormalizeAmount(start)

		balance, _ := decimal.NewFromFloat(start).Add(deltas[accountKey(account.Name)]).Round(2).Float64()

		account.StartingBalance = &start
		account.Balance = balance
		account.UpdatedAt = &updatedAt
		out = append(out, account)
	}
	return out
}
