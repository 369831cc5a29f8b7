package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dvloznov/expense-tracker/internal/domain"
	"gopkg.in/yaml.v3"
)

// Printer writes command results in the format selected by --format. Text
// output is produced by the per-command text function.
type Printer struct {
	Format string
	Writer io.Writer
}

// Print writes data as JSON or YAML, or calls text for the text format.
func (p Printer) Print(data any, text func(w io.Writer) error) error {
	switch p.Format {
	case FormatJSON:
		enc := json.NewEncoder(p.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case FormatYAML:
		enc := yaml.NewEncoder(p.Writer)
		enc.SetIndent(2)
		if err := enc.Encode(data); err != nil {
			return err
		}
		return enc.Close()
	default:
		return text(p.Writer)
	}
}

func (o *RootOptions) printer(w io.Writer) Printer {
	return Printer{Format: o.Format, Writer: w}
}

func writeTransactionTable(w io.Writer, items []domain.Transaction) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tTYPE\tAMOUNT\tCURRENCY\tCATEGORY\tACCOUNT\tSYNCED")
	for _, tx := range items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%s\t%s\t%s\t%t\n",
			tx.ID,
			tx.CreatedAt.Format("2006-01-02 15:04"),
			tx.Type,
			tx.SignedAmount(),
			tx.Currency,
			tx.Category,
			tx.PaymentAccount,
			tx.Synced,
		)
	}
	return tw.Flush()
}

func writeAccountTable(w io.Writer, accounts []domain.BankAccount) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tTYPE\tBALANCE\tCURRENCY")
	for _, a := range accounts {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%s\n", a.ID, a.Name, a.Type, a.Balance, a.Currency)
	}
	return tw.Flush()
}
