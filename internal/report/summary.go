package report

import (
	"math"

	"github.com/dvloznov/expense-tracker/internal/domain"
	"github.com/shopspring/decimal"
)

// Summary totals a transaction list. Transfers count towards neither side.
type Summary struct {
	Count    int     `json:"count" yaml:"count"`
	Income   float64 `json:"income" yaml:"income"`
	Expense  float64 `json:"expense" yaml:"expense"`
	Balance  float64 `json:"balance" yaml:"balance"`
	Currency string  `json:"currency" yaml:"currency"`
}

// Summarize totals items, which are expected to be normalized. currency is
// the active currency filter; when it is empty or ALL the summary currency
// is the only currency present, or else the first item's.
func Summarize(items []domain.Transaction, currency string) Summary {
	income := decimal.Zero
	expense := decimal.Zero
	for _, tx := range items {
		amount := decimal.NewFromFloat(math.Abs(domain.NormalizeAmount(tx.Amount)))
		switch domain.NormalizeType(tx.Type) {
		case domain.TypeIncome:
			income = income.Add(amount)
		case domain.TypeExpense:
			expense = expense.Add(amount)
		}
	}

	in, _ := income.Round(2).Float64()
	out, _ := expense.Round(2).Float64()
	balance, _ := income.Sub(expense).Round(2).Float64()

	return Summary{
		Count:    len(items),
		Income:   in,
		Expense:  out,
		Balance:  balance,
		Currency: summaryCurrency(items, currency),
	}
}

func summaryCurrency(items []domain.Transaction, filter string) string {
	if isSet(filter) {
		return filter
	}
	seen := make(map[string]bool)
	for _, tx := range items {
		if tx.Currency != "" {
			seen[tx.Currency] = true
		}
	}
	if len(seen) == 1 {
		for c := range seen {
			return c
		}
	}
	if len(items) > 0 && items[0].Currency != "" {
		return items[0].Currency
	}
	return defaultCurrency
}
