package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/expense-tracker/internal/app"
	"github.com/dvloznov/expense-tracker/internal/domain"
	"github.com/dvloznov/expense-tracker/internal/persist"
	"github.com/dvloznov/expense-tracker/internal/report"
	"github.com/dvloznov/expense-tracker/internal/view"
	"github.com/spf13/cobra"
)

const dateLayout = "2006-01-02"

// WriteResult is the outcome of add, update and delete.
type WriteResult struct {
	Status      persist.Status     `json:"status" yaml:"status"`
	UserID      string             `json:"user_id" yaml:"user_id"`
	Transaction domain.Transaction `json:"transaction" yaml:"transaction"`
	RemoteError string             `json:"remote_error,omitempty" yaml:"remote_error,omitempty"`
}

func newWriteResult(res persist.Result) WriteResult {
	out := WriteResult{Status: res.Status, UserID: res.UserID, Transaction: res.Transaction}
	if res.Err != nil {
		out.RemoteError = res.Err.Error()
	}
	return out
}

func (r WriteResult) text(w io.Writer) error {
	_, err := fmt.Fprintf(w, "%s %s (%s)\n", r.Status, r.Transaction.ID, r.UserID)
	if err == nil && r.RemoteError != "" {
		_, err = fmt.Fprintf(w, "remote: %s\n", r.RemoteError)
	}
	return err
}

// ListResult is the output of list.
type ListResult struct {
	Transactions []domain.Transaction `json:"transactions" yaml:"transactions"`
	Count        int                  `json:"count" yaml:"count"`
	Source       view.State           `json:"source" yaml:"source"`
}

type fieldFlags struct {
	amount         float64
	typ            string
	category       string
	note           string
	paymentMethod  string
	paymentAccount string
	currency       string
	date           string
}

func (f *fieldFlags) register(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&f.amount, "amount", 0, "amount (the sign comes from --type)")
	cmd.Flags().StringVar(&f.typ, "type", string(domain.TypeExpense), "INCOME, EXPENSE or TRANSFER")
	cmd.Flags().StringVar(&f.category, "category", "", "category")
	cmd.Flags().StringVar(&f.note, "note", "", "free-form note")
	cmd.Flags().StringVar(&f.paymentMethod, "payment-method", "", "payment method, e.g. Card")
	cmd.Flags().StringVar(&f.paymentAccount, "payment-account", "", "account name the money moved from or to")
	cmd.Flags().StringVar(&f.currency, "currency", "", "ISO currency code")
	cmd.Flags().StringVar(&f.date, "date", "", "transaction date, YYYY-MM-DD (default now)")
}

func (f *fieldFlags) transaction() (domain.Transaction, error) {
	typ, err := domain.ParseType(f.typ)
	if err != nil {
		return domain.Transaction{}, err
	}
	tx := domain.Transaction{
		Amount:         f.amount,
		Type:           typ,
		Category:       f.category,
		Note:           f.note,
		PaymentMethod:  f.paymentMethod,
		PaymentAccount: f.paymentAccount,
		Currency:       f.currency,
	}
	if f.date != "" {
		t, err := time.ParseInLocation(dateLayout, f.date, time.Local)
		if err != nil {
			return domain.Transaction{}, fmt.Errorf("invalid --date %q, expected YYYY-MM-DD", f.date)
		}
		tx.CreatedAt = t
	}
	return tx, nil
}

// patch returns the fields whose flags were set on cmd.
func (f *fieldFlags) patch(cmd *cobra.Command) (domain.TransactionPatch, error) {
	var p domain.TransactionPatch
	changed := cmd.Flags().Changed

	tx, err := f.transaction()
	if err != nil {
		return p, err
	}
	if changed("amount") {
		p.Amount = &tx.Amount
	}
	if changed("type") {
		p.Type = &tx.Type
	}
	if changed("category") {
		p.Category = &tx.Category
	}
	if changed("note") {
		p.Note = &tx.Note
	}
	if changed("payment-method") {
		p.PaymentMethod = &tx.PaymentMethod
	}
	if changed("payment-account") {
		p.PaymentAccount = &tx.PaymentAccount
	}
	if changed("currency") {
		p.Currency = &tx.Currency
	}
	if changed("date") {
		p.CreatedAt = &tx.CreatedAt
	}
	return p, nil
}

type filterFlags struct {
	query         string
	typ           string
	paymentMethod string
	currency      string
	period        string
	start         string
	end           string
	min           float64
	max           float64
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.query, "query", "q", "", "text matched against category, note, method and account")
	cmd.Flags().StringVar(&f.typ, "type", report.All, "INCOME, EXPENSE, TRANSFER or ALL")
	cmd.Flags().StringVar(&f.paymentMethod, "payment-method", report.All, "payment method or ALL")
	cmd.Flags().StringVar(&f.currency, "currency", report.All, "currency or ALL")
	cmd.Flags().StringVar(&f.period, "period", string(report.PeriodAll), "ALL, TODAY, WEEK, MONTH or CUSTOM")
	cmd.Flags().StringVar(&f.start, "start", "", "CUSTOM period start, YYYY-MM-DD")
	cmd.Flags().StringVar(&f.end, "end", "", "CUSTOM period end, YYYY-MM-DD")
	cmd.Flags().Float64Var(&f.min, "min", 0, "minimum absolute amount")
	cmd.Flags().Float64Var(&f.max, "max", 0, "maximum absolute amount")
}

func (f *filterFlags) filter(cmd *cobra.Command) (report.Filter, error) {
	period, err := report.ParsePeriod(f.period)
	if err != nil {
		return report.Filter{}, err
	}
	out := report.Filter{
		Query:         f.query,
		Type:          domain.Type(f.typ),
		PaymentMethod: f.paymentMethod,
		Currency:      f.currency,
		Period:        period,
	}
	for name, src := range map[string]string{"start": f.start, "end": f.end} {
		if src == "" {
			continue
		}
		t, err := time.ParseInLocation(dateLayout, src, time.Local)
		if err != nil {
			return report.Filter{}, fmt.Errorf("invalid --%s %q, expected YYYY-MM-DD", name, src)
		}
		if name == "start" {
			out.Start = t
		} else {
			out.End = t
		}
	}
	if cmd.Flags().Changed("min") {
		out.MinAmount = &f.min
	}
	if cmd.Flags().Changed("max") {
		out.MaxAmount = &f.max
	}
	return out, nil
}

// filtered reconciles the selected user's records once and applies f.
func (o *RootOptions) filtered(ctx context.Context, a *app.App, f report.Filter) ([]domain.Transaction, view.State) {
	items, state := view.Snapshot(ctx, a.Remote, a.Local, o.log, o.Identity())
	return report.Apply(items, f, time.Now()), state
}

// NewAddCommand creates the add command.
func NewAddCommand(opts *RootOptions) *cobra.Command {
	fields := &fieldFlags{}

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record a transaction",
		Long: `Record a transaction on this device and, when --user is given, in the
remote store. A remote failure keeps the local copy and reports
offline-fallback.

Examples:
  expense-tracker add --amount 12.50 --category Food --payment-account "Main Checking"
  expense-tracker add --user u1 --amount 2500 --type INCOME --category Salary`,
		RunE: func(cmd *cobra.Command, args []string) error {
			tx, err := fields.transaction()
			if err != nil {
				return err
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				res, err := a.Orchestrator.PersistTransaction(ctx, opts.Identity(), tx)
				if err != nil {
					return err
				}
				out := newWriteResult(res)
				return opts.printer(cmd.OutOrStdout()).Print(out, out.text)
			})
		},
	}

	fields.register(cmd)
	_ = cmd.MarkFlagRequired("amount")

	return cmd
}

// NewUpdateCommand creates the update command.
func NewUpdateCommand(opts *RootOptions) *cobra.Command {
	fields := &fieldFlags{}

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change fields of a recorded transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch, err := fields.patch(cmd)
			if err != nil {
				return err
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				res, err := a.Orchestrator.UpdateTransaction(ctx, opts.Identity(), args[0], patch)
				if err != nil {
					return err
				}
				out := newWriteResult(res)
				return opts.printer(cmd.OutOrStdout()).Print(out, out.text)
			})
		},
	}

	fields.register(cmd)

	return cmd
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Remove a recorded transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				res, err := a.Orchestrator.DeleteTransaction(ctx, opts.Identity(), args[0])
				if err != nil {
					return err
				}
				out := newWriteResult(res)
				return opts.printer(cmd.OutOrStdout()).Print(out, out.text)
			})
		},
	}
}

// NewListCommand creates the list command.
func NewListCommand(opts *RootOptions) *cobra.Command {
	filters := &filterFlags{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List transactions, most recent first",
		Long: `List the selected user's transactions. Signed-in users read the remote
store and the result is mirrored into the local cache; when the remote
store cannot be reached the local cache is listed instead.

Examples:
  expense-tracker list --period MONTH --type EXPENSE
  expense-tracker list --user u1 --period CUSTOM --start 2024-01-01 --end 2024-01-31 --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := filters.filter(cmd)
			if err != nil {
				return err
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				items, state := opts.filtered(ctx, a, f)
				out := ListResult{Transactions: items, Count: len(items), Source: state}
				return opts.printer(cmd.OutOrStdout()).Print(out, func(w io.Writer) error {
					if err := writeTransactionTable(w, items); err != nil {
						return err
					}
					_, err := fmt.Fprintf(w, "\n%d transaction(s), source: %s\n", len(items), state)
					return err
				})
			})
		},
	}

	filters.register(cmd)

	return cmd
}

// NewSummaryCommand creates the summary command.
func NewSummaryCommand(opts *RootOptions) *cobra.Command {
	filters := &filterFlags{}

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Total income and expenses",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := filters.filter(cmd)
			if err != nil {
				return err
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				items, _ := opts.filtered(ctx, a, f)
				summary := report.Summarize(items, f.Currency)
				return opts.printer(cmd.OutOrStdout()).Print(summary, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "Transactions: %d\nIncome:       %.2f %s\nExpense:      %.2f %s\nBalance:      %.2f %s\n",
						summary.Count,
						summary.Income, summary.Currency,
						summary.Expense, summary.Currency,
						summary.Balance, summary.Currency)
					return err
				})
			})
		},
	}

	filters.register(cmd)

	return cmd
}

// NewAccountsCommand creates the accounts command.
func NewAccountsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "accounts",
		Short: "Show locally derived bank account balances",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				accounts, err := a.Local.GetBankAccounts(ctx, opts.Identity().StorageKey())
				if err != nil {
					return err
				}
				return opts.printer(cmd.OutOrStdout()).Print(accounts, func(w io.Writer) error {
					return writeAccountTable(w, accounts)
				})
			})
		},
	}
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(opts *RootOptions) *cobra.Command {
	var duration time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the transaction list as it changes",
		Long: `Open a live feed for the selected user and print the list every time it
changes, until interrupted or --for elapses. Anonymous users and offline
sessions print the local cache once.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
				defer stop()
				if duration > 0 {
					var cancel context.CancelFunc
					ctx, cancel = context.WithTimeout(ctx, duration)
					defer cancel()
				}

				p := opts.printer(cmd.OutOrStdout())
				updates := make(chan []domain.Transaction, 1)
				feed := a.NewFeed()
				feed.Open(ctx, opts.Identity(), func(items []domain.Transaction) {
					// Only the latest list matters to a slow terminal.
					select {
					case <-updates:
					default:
					}
					select {
					case updates <- items:
					default:
					}
				})
				defer feed.Close()

				for {
					select {
					case <-ctx.Done():
						return nil
					case items := <-updates:
						out := ListResult{Transactions: items, Count: len(items), Source: feed.State()}
						if err := p.Print(out, func(w io.Writer) error {
							fmt.Fprintf(w, "--- %s, %d transaction(s), source: %s\n", time.Now().Format(time.TimeOnly), len(items), out.Source)
							return writeTransactionTable(w, items)
						}); err != nil {
							return err
						}
					}
				}
			})
		},
	}

	cmd.Flags().DurationVar(&duration, "for", 0, "stop after this long (0 waits for a signal)")

	return cmd
}
