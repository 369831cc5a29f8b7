package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
)

const (
	transactionsTable = "transactions"
	accountsTable     = "bank_account_snapshots"
	dateFormat        = "2006-01-02"
)

// Dataset locates the tables exports are written to.
type Dataset struct {
	ProjectID string
	DatasetID string
}

func (d Dataset) table(name string) string {
	return fmt.Sprintf("`%s.%s.%s`", d.ProjectID, d.DatasetID, name)
}

// InsertTransactionsWithClient streams rows into the transactions table.
func InsertTransactionsWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, rows []*TransactionRow) error {
	if len(rows) == 0 {
		return nil
	}

	inserter := client.DatasetInProject(ds.ProjectID, ds.DatasetID).Table(transactionsTable).Inserter()
	if err := inserter.Put(ctx, rows); err != nil {
		return fmt.Errorf("InsertTransactions: inserting rows: %w", err)
	}
	return nil
}

// DeleteTransactionsForUserWithClient removes every exported row of userID.
func DeleteTransactionsForUserWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, userID string) error {
	q := client.Query(`
		DELETE FROM ` + ds.table(transactionsTable) + `
		WHERE user_id = @user_id
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
	}

	if err := runAndWait(ctx, q); err != nil {
		return fmt.Errorf("DeleteTransactionsForUser: %w", err)
	}
	return nil
}

// QueryTransactionsByDateRangeWithClient reads userID's rows with a
// transaction date in [startDate, endDate], oldest first.
func QueryTransactionsByDateRangeWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, userID string, startDate, endDate time.Time) ([]*TransactionRow, error) {
	q := client.Query(`
		SELECT
			transaction_id,
			user_id,
			transaction_date,
			created_ts,
			type,
			amount,
			signed_amount,
			currency,
			category,
			note,
			payment_method,
			payment_account,
			synced,
			updated_ts,
			exported_ts
		FROM ` + ds.table(transactionsTable) + `
		WHERE user_id = @user_id
		  AND transaction_date >= @start_date
		  AND transaction_date <= @end_date
		ORDER BY transaction_date, created_ts
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "start_date", Value: startDate.Format(dateFormat)},
		{Name: "end_date", Value: endDate.Format(dateFormat)},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("QueryTransactionsByDateRange: query read: %w", err)
	}

	var rows []*TransactionRow
	for {
		var r TransactionRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("QueryTransactionsByDateRange: iter next: %w", err)
		}
		rows = append(rows, &r)
	}
	return rows, nil
}

// InsertAccountSnapshotWithClient streams one balance snapshot per account.
func InsertAccountSnapshotWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, rows []*AccountRow) error {
	if len(rows) == 0 {
		return nil
	}

	inserter := client.DatasetInProject(ds.ProjectID, ds.DatasetID).Table(accountsTable).Inserter()
	if err := inserter.Put(ctx, rows); err != nil {
		return fmt.Errorf("InsertAccountSnapshot: inserting rows: %w", err)
	}
	return nil
}

func runAndWait(ctx context.Context, q *bigquery.Query) error {
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("run query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("wait for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}
	return nil
}
