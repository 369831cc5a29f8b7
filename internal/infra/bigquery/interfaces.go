package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/expense-tracker/internal/domain"
	"github.com/rs/zerolog"
)

// Warehouse is the analytics export target.
type Warehouse interface {
	// ExportTransactions replaces userID's exported rows with txs.
	ExportTransactions(ctx context.Context, userID string, txs []domain.Transaction) error
	// ExportAccounts appends a balance snapshot of accounts.
	ExportAccounts(ctx context.Context, userID string, accounts []domain.BankAccount) error
	// QueryTransactions reads userID's exported records created between start and end.
	QueryTransactions(ctx context.Context, userID string, start, end time.Time) ([]domain.Transaction, error)
	Close() error
}

// BigQueryWarehouse implements Warehouse with a shared BigQuery client.
type BigQueryWarehouse struct {
	client  *bigquery.Client
	dataset Dataset
	log     zerolog.Logger
	now     func() time.Time
}

// NewBigQueryWarehouse connects to BigQuery in projectID and writes to datasetID.
func NewBigQueryWarehouse(ctx context.Context, projectID, datasetID string, log zerolog.Logger) (*BigQueryWarehouse, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewBigQueryWarehouse: creating client: %w", err)
	}
	return &BigQueryWarehouse{
		client:  client,
		dataset: Dataset{ProjectID: projectID, DatasetID: datasetID},
		log:     log,
		now:     time.Now,
	}, nil
}

// Close closes the BigQuery client connection.
func (w *BigQueryWarehouse) Close() error {
	if w.client != nil {
		return w.client.Close()
	}
	return nil
}

func (w *BigQueryWarehouse) ExportTransactions(ctx context.Context, userID string, txs []domain.Transaction) error {
	if err := DeleteTransactionsForUserWithClient(ctx, w.client, w.dataset, userID); err != nil {
		return err
	}

	rows := TransactionRows(userID, txs, w.now())
	if err := InsertTransactionsWithClient(ctx, w.client, w.dataset, rows); err != nil {
		return err
	}

	w.log.Info().
		Str("user_id", userID).
		Int("rows", len(rows)).
		Msg("Exported transactions to BigQuery")
	return nil
}

func (w *BigQueryWarehouse) ExportAccounts(ctx context.Context, userID string, accounts []domain.BankAccount) error {
	now := w.now()
	rows := make([]*AccountRow, 0, len(accounts))
	for _, a := range accounts {
		rows = append(rows, ToAccountRow(userID, a, now))
	}
	return InsertAccountSnapshotWithClient(ctx, w.client, w.dataset, rows)
}

func (w *BigQueryWarehouse) QueryTransactions(ctx context.Context, userID string, start, end time.Time) ([]domain.Transaction, error) {
	rows, err := QueryTransactionsByDateRangeWithClient(ctx, w.client, w.dataset, userID, start, end)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Transaction, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.ToTransaction())
	}
	return out, nil
}

// TransactionRows converts a user's records for export, forcing the owner.
func TransactionRows(userID string, txs []domain.Transaction, exportedAt time.Time) []*TransactionRow {
	rows := make([]*TransactionRow, 0, len(txs))
	for _, tx := range txs {
		tx.UserID = userID
		rows = append(rows, ToTransactionRow(tx, exportedAt))
	}
	return rows
}

var _ Warehouse = (*BigQueryWarehouse)(nil)
