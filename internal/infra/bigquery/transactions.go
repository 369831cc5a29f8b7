package bigquery

import (
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/expense-tracker/internal/domain"
	"github.com/shopspring/decimal"
)

// TransactionRow is one exported record in the transactions table.
type TransactionRow struct {
	TransactionID string `bigquery:"transaction_id"` // REQUIRED
	UserID        string `bigquery:"user_id"`        // REQUIRED

	TransactionDate civil.Date `bigquery:"transaction_date"` // REQUIRED, partition column
	CreatedTS       time.Time  `bigquery:"created_ts"`       // REQUIRED

	Type         string   `bigquery:"type"`          // REQUIRED: INCOME | EXPENSE | TRANSFER
	Amount       *big.Rat `bigquery:"amount"`        // REQUIRED NUMERIC, as entered
	SignedAmount *big.Rat `bigquery:"signed_amount"` // REQUIRED NUMERIC, negative for expenses
	Currency     string   `bigquery:"currency"`      // REQUIRED

	Category       bigquery.NullString `bigquery:"category"`        // NULLABLE
	Note           bigquery.NullString `bigquery:"note"`            // NULLABLE
	PaymentMethod  bigquery.NullString `bigquery:"payment_method"`  // NULLABLE
	PaymentAccount bigquery.NullString `bigquery:"payment_account"` // NULLABLE

	Synced     bool                   `bigquery:"synced"`
	UpdatedTS  bigquery.NullTimestamp `bigquery:"updated_ts"`  // NULLABLE
	ExportedTS time.Time              `bigquery:"exported_ts"` // REQUIRED
}

// ToTransactionRow converts a cached record for export at exportedAt.
func ToTransactionRow(tx domain.Transaction, exportedAt time.Time) *TransactionRow {
	amount := decimal.NewFromFloat(domain.NormalizeAmount(tx.Amount))
	signed := decimal.NewFromFloat(domain.NormalizeAmount(tx.SignedAmount()))

	currency := tx.Currency
	if currency == "" {
		currency = "USD"
	}

	row := &TransactionRow{
		TransactionID:   tx.ID,
		UserID:          tx.UserID,
		TransactionDate: civil.DateOf(tx.CreatedAt.UTC()),
		CreatedTS:       tx.CreatedAt.UTC(),
		Type:            string(domain.NormalizeType(tx.Type)),
		Amount:          amount.Rat(),
		SignedAmount:    signed.Rat(),
		Currency:        currency,
		Category:        nullString(tx.Category),
		Note:            nullString(tx.Note),
		PaymentMethod:   nullString(tx.PaymentMethod),
		PaymentAccount:  nullString(tx.PaymentAccount),
		Synced:          tx.Synced,
		ExportedTS:      exportedAt.UTC(),
	}
	if tx.UpdatedAt != nil {
		row.UpdatedTS = bigquery.NullTimestamp{Timestamp: tx.UpdatedAt.UTC(), Valid: true}
	}
	return row
}

// ToTransaction converts an exported row back to a record.
func (r *TransactionRow) ToTransaction() domain.Transaction {
	tx := domain.Transaction{
		ID:             r.TransactionID,
		UserID:         r.UserID,
		Amount:         ratToFloat(r.Amount),
		Type:           domain.Type(r.Type),
		Category:       r.Category.StringVal,
		Note:           r.Note.StringVal,
		PaymentMethod:  r.PaymentMethod.StringVal,
		PaymentAccount: r.PaymentAccount.StringVal,
		Currency:       r.Currency,
		CreatedAt:      r.CreatedTS.UTC(),
		Synced:         r.Synced,
	}
	if r.UpdatedTS.Valid {
		updated := r.UpdatedTS.Timestamp.UTC()
		tx.UpdatedAt = &updated
	}
	return tx
}

// Save implements bigquery.ValueSaver so that re-exports of the same record
// share an insert id and are deduplicated by the streaming API.
func (r *TransactionRow) Save() (map[string]bigquery.Value, string, error) {
	schema, err := bigquery.InferSchema(r)
	if err != nil {
		return nil, "", err
	}
	row, _, err := (&bigquery.StructSaver{Schema: schema, Struct: r}).Save()
	if err != nil {
		return nil, "", err
	}
	return row, r.UserID + "/" + r.TransactionID, nil
}

func nullString(s string) bigquery.NullString {
	return bigquery.NullString{StringVal: s, Valid: s != ""}
}

func ratToFloat(r *big.Rat) float64 {
	if r == nil {
		return 0
	}
	f, _ := r.Float64()
	return f
}
