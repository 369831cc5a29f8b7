package bigquery

import (
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/expense-tracker/internal/domain"
	"github.com/shopspring/decimal"
)

// AccountRow is a point-in-time snapshot of a locally derived bank account balance.
type AccountRow struct {
	AccountID string `bigquery:"account_id"` // REQUIRED
	UserID    string `bigquery:"user_id"`    // REQUIRED

	AccountName string `bigquery:"account_name"` // REQUIRED
	AccountType string `bigquery:"account_type"` // NULLABLE
	Currency    string `bigquery:"currency"`     // REQUIRED

	Balance         *big.Rat `bigquery:"balance"`          // REQUIRED NUMERIC
	StartingBalance *big.Rat `bigquery:"starting_balance"` // NULLABLE NUMERIC

	UpdatedTS  bigquery.NullTimestamp `bigquery:"updated_ts"`  // NULLABLE
	SnapshotTS time.Time              `bigquery:"snapshot_ts"` // REQUIRED
}

// ToAccountRow converts a bank account of userID for a snapshot taken at snapshotAt.
func ToAccountRow(userID string, a domain.BankAccount, snapshotAt time.Time) *AccountRow {
	row := &AccountRow{
		AccountID:   a.ID,
		UserID:      userID,
		AccountName: a.Name,
		AccountType: a.Type,
		Currency:    a.Currency,
		Balance:     decimal.NewFromFloat(domain.NormalizeAmount(a.Balance)).Rat(),
		SnapshotTS:  snapshotAt.UTC(),
	}
	if a.StartingBalance != nil {
		row.StartingBalance = decimal.NewFromFloat(domain.NormalizeAmount(*a.StartingBalance)).Rat()
	}
	if a.UpdatedAt != nil {
		row.UpdatedTS = bigquery.NullTimestamp{Timestamp: a.UpdatedAt.UTC(), Valid: true}
	}
	return row
}
