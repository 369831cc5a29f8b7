package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dvloznov/expense-tracker/internal/app"
	"github.com/dvloznov/expense-tracker/internal/jobs"
	"github.com/spf13/cobra"
)

const syncPollInterval = 50 * time.Millisecond

// SyncResult counts the push jobs a sync run published and how they ended.
type SyncResult struct {
	Enqueued  int      `json:"enqueued" yaml:"enqueued"`
	Completed int      `json:"completed" yaml:"completed"`
	Failed    int      `json:"failed" yaml:"failed"`
	Pending   int      `json:"pending" yaml:"pending"`
	Errors    []string `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(opts *RootOptions) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Push records that only exist on this device",
		Long: `Push every unsynced local record of --user to the remote store and wait
for the pushes to finish. Failed pushes are retried with backoff until
--timeout; records still pending at that point stay local.

Examples:
  expense-tracker sync --user u1
  expense-tracker sync --user u1 --timeout 2m --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			identity := opts.Identity()
			if !identity.IsAuthenticated() {
				return errors.New("sync needs --user: anonymous records are never pushed")
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if a.Remote == nil {
					return errors.New("no remote project configured (set FIRESTORE_PROJECT)")
				}

				workerCtx, cancel := context.WithCancel(ctx)
				defer cancel()
				if err := a.StartWorkers(workerCtx); err != nil {
					return err
				}

				published, err := a.Resyncer.Enqueue(ctx, identity.UserID())
				if err != nil {
					return err
				}

				waitCtx, cancelWait := context.WithTimeout(ctx, timeout)
				defer cancelWait()
				res := waitForJobs(waitCtx, a.Jobs, published)

				return opts.printer(cmd.OutOrStdout()).Print(res, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "Enqueued %d, completed %d, failed %d, pending %d\n",
						res.Enqueued, res.Completed, res.Failed, res.Pending)
					for _, msg := range res.Errors {
						fmt.Fprintf(w, "  %s\n", msg)
					}
					return err
				})
			})
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "how long to wait for pushes")

	return cmd
}

// waitForJobs polls store until every published job is done or ctx ends.
func waitForJobs(ctx context.Context, store jobs.JobStore, published []*jobs.PushTransactionJob) SyncResult {
	ticker := time.NewTicker(syncPollInterval)
	defer ticker.Stop()

	for {
		res := SyncResult{Enqueued: len(published)}
		for _, p := range published {
			job, err := store.GetJob(ctx, p.JobID)
			switch {
			case err != nil:
				res.Pending++
			case job.Status == jobs.JobStatusCompleted:
				res.Completed++
			case job.Status == jobs.JobStatusFailed:
				res.Failed++
				res.Errors = append(res.Errors, fmt.Sprintf("%s: %s", job.TransactionID, job.Error))
			default:
				res.Pending++
			}
		}
		if res.Pending == 0 {
			return res
		}

		select {
		case <-ctx.Done():
			return res
		case <-ticker.C:
		}
	}
}
