package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dvloznov/expense-tracker/internal/domain"
)

var csvHeader = []string{"Date", "Type", "Category", "Amount", "Currency", "Note", "Payment Method"}

// WriteCSV writes items as a spreadsheet-friendly report. Commas in notes are
// replaced by spaces.
func WriteCSV(w io.Writer, items []domain.Transaction) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("WriteCSV: %w", err)
	}

	for _, item := range items {
		tx := Normalize(item)
		row := []string{
			tx.CreatedAt.UTC().Format("2006-01-02"),
			string(tx.Type),
			tx.Category,
			strconv.FormatFloat(tx.Amount, 'f', -1, 64),
			tx.Currency,
			strings.ReplaceAll(tx.Note, ",", " "),
			tx.PaymentMethod,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("WriteCSV: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("WriteCSV: %w", err)
	}
	return nil
}

// ObjectName is the storage object name used for a user's uploaded report.
func ObjectName(userID string, generated time.Time) string {
	return fmt.Sprintf("reports/%s/transactions_%s.csv", userID, generated.UTC().Format("20060102T150405Z"))
}
