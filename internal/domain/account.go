package domain

import (
	"fmt"
	"time"
)

// BankAccount is a locally cached account whose balance is derived from
// StartingBalance plus the signed amounts of transactions paid from it.
type BankAccount struct {
	ID              string     `json:"id" yaml:"id"`
	Name            string     `json:"name" yaml:"name"`
	Type            string     `json:"type" yaml:"type"`
	Balance         float64    `json:"balance" yaml:"balance"`
	StartingBalance *float64   `json:"startingBalance,omitempty" yaml:"startingBalance,omitempty"`
	Currency        string     `json:"currency" yaml:"currency"`
	UpdatedAt       *time.Time `json:"updatedAt,omitempty" yaml:"updatedAt,omitempty"`
}

// DefaultBankAccounts seeds a user that has no accounts yet.
func DefaultBankAccounts() []BankAccount {
	return []BankAccount{
		{ID: "demo-checking", Name: "Main Checking", Type: "Checking", Balance: 2450.75, Currency: "USD"},
		{ID: "demo-savings", Name: "High-Yield Savings", Type: "Savings", Balance: 7200.5, Currency: "USD"},
		{ID: "demo-cash", Name: "Cash Wallet", Type: "Cash", Balance: 180.25, Currency: "USD"},
	}
}

// NormalizeBankAccount fills display defaults and pins StartingBalance so
// repeated balance recomputation does not compound.
func NormalizeBankAccount(a BankAccount, now time.Time) BankAccount {
	if a.ID == "" {
		a.ID = fmt.Sprintf("local-bank-%d-%s", now.UnixMilli(), randomSuffix(7))
	}
	if a.Name == "" {
		a.Name = "Unnamed account"
	}
	if a.Type == "" {
		a.Type = "Account"
	}
	if a.Currency == "" {
		a.Currency = "USD"
	}
	a.Balance = NormalizeAmount(a.Balance)
	if a.StartingBalance == nil {
		start := a.Balance
		a.StartingBalance = &start
	}
	return a
}
