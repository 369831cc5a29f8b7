package bigquery

import (
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/expense-tracker/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToTransactionRow(t *testing.T) {
	created := time.Date(2024, 3, 5, 23, 30, 0, 0, time.UTC)
	exported := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	row := ToTransactionRow(domain.Transaction{
		ID:       "r1",
		UserID:   "u1",
		Amount:   12.34,
		Type:     "expense",
		Note:     "lunch",
		Currency: "EUR",
		CreatedAt: created,
		Synced:   true,
	}, exported)

	assert.Equal(t, civil.Date{Year: 2024, Month: time.March, Day: 5}, row.TransactionDate)
	assert.Equal(t, "EXPENSE", row.Type)
	assert.Equal(t, "12.34", row.Amount.FloatString(2))
	assert.Equal(t, "-12.34", row.SignedAmount.FloatString(2))
	assert.True(t, row.Note.Valid)
	assert.False(t, row.Category.Valid)
	assert.False(t, row.UpdatedTS.Valid)
	assert.Equal(t, exported, row.ExportedTS)
}

func TestTransactionRowRoundTrip(t *testing.T) {
	created := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	updated := created.Add(time.Hour)
	in := domain.Transaction{
		ID:             "r1",
		UserID:         "u1",
		Amount:         2500,
		Type:           domain.TypeIncome,
		Category:       "Salary",
		PaymentMethod:  "Transfer",
		PaymentAccount: "Main Checking",
		Currency:       "USD",
		CreatedAt:      created,
		UpdatedAt:      &updated,
		Synced:         true,
	}

	out := ToTransactionRow(in, time.Now()).ToTransaction()
	assert.Equal(t, in, out)
}

func TestTransactionRowSaveUsesStableInsertID(t *testing.T) {
	row := ToTransactionRow(domain.Transaction{ID: "r1", UserID: "u1", Amount: 1, CreatedAt: time.Now()}, time.Now())

	values, insertID, err := row.Save()
	require.NoError(t, err)
	assert.Equal(t, "u1/r1", insertID)
	assert.Equal(t, "r1", values["transaction_id"])
}

func TestTransactionRowsForceOwner(t *testing.T) {
	rows := TransactionRows("u1", []domain.Transaction{{ID: "a", UserID: "other"}}, time.Now())
	require.Len(t, rows, 1)
	assert.Equal(t, "u1", rows[0].UserID)
	assert.Equal(t, "USD", rows[0].Currency)
}

func TestToAccountRow(t *testing.T) {
	start := 100.0
	row := ToAccountRow("u1", domain.BankAccount{ID: "a1", Name: "Wallet", Balance: 104.7, StartingBalance: &start, Currency: "USD"}, time.Now())

	assert.Equal(t, "104.70", row.Balance.FloatString(2))
	require.NotNil(t, row.StartingBalance)
	assert.Equal(t, "100.00", row.StartingBalance.FloatString(2))
	assert.Equal(t, "u1", row.UserID)
}
