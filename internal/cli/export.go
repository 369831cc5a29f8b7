package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dvloznov/expense-tracker/internal/app"
	"github.com/dvloznov/expense-tracker/internal/gcsuploader"
	"github.com/dvloznov/expense-tracker/internal/notionsync"
	"github.com/dvloznov/expense-tracker/internal/report"
	"github.com/spf13/cobra"
)

// UploadResult is printed after a report upload.
type UploadResult struct {
	GCSURI string `json:"gcs_uri" yaml:"gcs_uri"`
	Count  int    `json:"count" yaml:"count"`
}

// ExportResult is printed after a warehouse export.
type ExportResult struct {
	UserID       string `json:"user_id" yaml:"user_id"`
	Transactions int    `json:"transactions" yaml:"transactions"`
	Accounts     int    `json:"accounts" yaml:"accounts"`
}

// NewReportCommand creates the report command and its fetch subcommand.
func NewReportCommand(opts *RootOptions) *cobra.Command {
	filters := &filterFlags{}
	var (
		output string
		upload bool
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Write the filtered transactions as CSV",
		Long: `Write the selected user's filtered transactions as CSV to stdout, a file,
or the configured Cloud Storage bucket.

Examples:
  expense-tracker report --period MONTH > month.csv
  expense-tracker report --user u1 --output january.csv --period CUSTOM --start 2024-01-01 --end 2024-01-31
  expense-tracker report --user u1 --upload`,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := filters.filter(cmd)
			if err != nil {
				return err
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				items, _ := opts.filtered(ctx, a, f)

				var buf bytes.Buffer
				if err := report.WriteCSV(&buf, items); err != nil {
					return err
				}

				switch {
				case upload:
					if a.Reports == nil {
						return app.ErrReportsDisabled
					}
					name := report.ObjectName(opts.Identity().StorageKey(), time.Now())
					uri, err := a.Reports.UploadReport(ctx, name, "text/csv", buf.Bytes())
					if err != nil {
						return err
					}
					res := UploadResult{GCSURI: uri, Count: len(items)}
					return opts.printer(cmd.OutOrStdout()).Print(res, func(w io.Writer) error {
						_, err := fmt.Fprintf(w, "Uploaded %d transaction(s) to %s\n", res.Count, res.GCSURI)
						return err
					})
				case output != "" && output != "-":
					if err := os.WriteFile(output, buf.Bytes(), 0o644); err != nil {
						return fmt.Errorf("writing report: %w", err)
					}
					fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d transaction(s) to %s\n", len(items), output)
					return nil
				default:
					_, err := cmd.OutOrStdout().Write(buf.Bytes())
					return err
				}
			})
		},
	}

	filters.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "-", "file to write (- for stdout)")
	cmd.Flags().BoolVar(&upload, "upload", false, "upload to GCS_BUCKET instead of writing locally")
	cmd.MarkFlagsMutuallyExclusive("output", "upload")

	cmd.AddCommand(newReportFetchCommand(opts))

	return cmd
}

func newReportFetchCommand(opts *RootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "fetch <gs://bucket/object>",
		Short: "Download a previously uploaded report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if a.Reports == nil {
					return app.ErrReportsDisabled
				}
				data, err := a.Reports.FetchReport(ctx, args[0])
				if err != nil {
					return err
				}
				if output != "" && output != "-" {
					target := output
					if info, err := os.Stat(target); err == nil && info.IsDir() {
						target = filepath.Join(target, gcsuploader.ExtractFilenameFromGCSURI(args[0]))
					}
					if err := os.WriteFile(target, data, 0o644); err != nil {
						return fmt.Errorf("writing report: %w", err)
					}
					fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s\n", target)
					return nil
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "-", "file or directory to write (- for stdout)")

	return cmd
}

// NewWarehouseCommand creates the BigQuery export and query commands.
func NewWarehouseCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "warehouse",
		Short: "Export records to BigQuery and read them back",
	}

	cmd.AddCommand(newWarehouseExportCommand(opts))
	cmd.AddCommand(newWarehouseQueryCommand(opts))

	return cmd
}

func newWarehouseExportCommand(opts *RootOptions) *cobra.Command {
	var withAccounts bool

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Replace the user's exported rows with the current records",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				wh, err := a.Warehouse(ctx)
				if err != nil {
					return err
				}
				defer wh.Close()

				uid := opts.Identity().StorageKey()
				items, _ := opts.filtered(ctx, a, report.Filter{})
				if err := wh.ExportTransactions(ctx, uid, items); err != nil {
					return err
				}
				res := ExportResult{UserID: uid, Transactions: len(items)}

				if withAccounts {
					accounts, err := a.Local.GetBankAccounts(ctx, uid)
					if err != nil {
						return err
					}
					if err := wh.ExportAccounts(ctx, uid, accounts); err != nil {
						return err
					}
					res.Accounts = len(accounts)
				}

				return opts.printer(cmd.OutOrStdout()).Print(res, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "Exported %d transaction(s) and %d account(s) for %s\n",
						res.Transactions, res.Accounts, res.UserID)
					return err
				})
			})
		},
	}

	cmd.Flags().BoolVar(&withAccounts, "accounts", true, "also append an account balance snapshot")

	return cmd
}

func newWarehouseQueryCommand(opts *RootOptions) *cobra.Command {
	var start, end string

	cmd := &cobra.Command{
		Use:   "query",
		Short: "List exported records created in a date range",
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := time.ParseInLocation(dateLayout, start, time.Local)
			if err != nil {
				return fmt.Errorf("invalid --start %q, expected YYYY-MM-DD", start)
			}
			to, err := time.ParseInLocation(dateLayout, end, time.Local)
			if err != nil {
				return fmt.Errorf("invalid --end %q, expected YYYY-MM-DD", end)
			}
			if to.Before(from) {
				return fmt.Errorf("--end %s is before --start %s", end, start)
			}

			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				wh, err := a.Warehouse(ctx)
				if err != nil {
					return err
				}
				defer wh.Close()

				items, err := wh.QueryTransactions(ctx, opts.Identity().StorageKey(), from, to)
				if err != nil {
					return err
				}
				out := ListResult{Transactions: items, Count: len(items), Source: "warehouse"}
				return opts.printer(cmd.OutOrStdout()).Print(out, func(w io.Writer) error {
					return writeTransactionTable(w, items)
				})
			})
		},
	}

	cmd.Flags().StringVar(&start, "start", "", "first day, YYYY-MM-DD (required)")
	cmd.Flags().StringVar(&end, "end", "", "last day, YYYY-MM-DD (required)")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")

	return cmd
}

// NewNotionCommand creates the notion-sync command.
func NewNotionCommand(opts *RootOptions) *cobra.Command {
	var notionOpts notionsync.Options

	cmd := &cobra.Command{
		Use:   "notion-sync",
		Short: "Mirror synced records into a Notion database",
		Long: `Create a Notion page for every synced record of the selected user that
does not have one yet. Records that only exist on this device are skipped.

Examples:
  expense-tracker notion-sync --user u1 --dry-run
  expense-tracker notion-sync --user u1 --prune`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				svc, dbID, err := a.Notion()
				if err != nil {
					return err
				}
				items, _ := opts.filtered(ctx, a, report.Filter{})
				stats, err := notionsync.SyncTransactions(ctx, svc, dbID, items, notionOpts)
				if err != nil {
					return err
				}
				return opts.printer(cmd.OutOrStdout()).Print(stats, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "Created %d, skipped %d, archived %d, failed %d\n",
						stats.Created, stats.Skipped, stats.Archived, stats.Failed)
					return err
				})
			})
		},
	}

	cmd.Flags().BoolVar(&notionOpts.DryRun, "dry-run", false, "log the changes without writing to Notion")
	cmd.Flags().BoolVar(&notionOpts.Prune, "prune", false, "archive pages whose record no longer exists")

	return cmd
}
