// Package cli implements the expense-tracker command line.
package cli

import (
	"context"
	"fmt"
	"slices"

	"github.com/dvloznov/expense-tracker/internal/app"
	"github.com/dvloznov/expense-tracker/internal/config"
	"github.com/dvloznov/expense-tracker/internal/domain"
	"github.com/dvloznov/expense-tracker/internal/logger"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Output formats accepted by --format.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{FormatText, FormatJSON, FormatYAML}

// AppFactory builds the application for one command run.
type AppFactory func(ctx context.Context, log zerolog.Logger) (*app.App, error)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	User    string
	Format  string
	Verbose bool

	// OpenApp defaults to loading the environment configuration.
	OpenApp AppFactory

	log zerolog.Logger
}

// DefaultAppFactory loads Config from the environment and .env.
func DefaultAppFactory(ctx context.Context, log zerolog.Logger) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, log)
}

// NewRootCommand creates the root command. A nil factory means DefaultAppFactory.
func NewRootCommand(factory AppFactory) *cobra.Command {
	if factory == nil {
		factory = DefaultAppFactory
	}
	opts := &RootOptions{OpenApp: factory}

	cmd := &cobra.Command{
		Use:   "expense-tracker",
		Short: "Record and reconcile personal transactions",
		Long: `Record income, expenses and transfers on this device and keep them
in step with the remote store when a user is given.

Without --user every command works on the anonymous local-user records.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if _, err := domain.ParseUserID(opts.User); err != nil {
				return fmt.Errorf("invalid --user: %w", err)
			}
			level := zerolog.WarnLevel
			if opts.Verbose {
				level = zerolog.DebugLevel
			}
			opts.log = logger.NewWithLevel(cmd.ErrOrStderr(), level)
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.User, "user", "u", "", "signed-in user id (empty for anonymous)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", FormatText, "output format (text|json|yaml)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose logging on stderr")

	cmd.AddCommand(NewAddCommand(opts))
	cmd.AddCommand(NewUpdateCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewSummaryCommand(opts))
	cmd.AddCommand(NewAccountsCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewReportCommand(opts))
	cmd.AddCommand(NewWarehouseCommand(opts))
	cmd.AddCommand(NewNotionCommand(opts))

	return cmd
}

// Identity is the identity selected by --user.
func (o *RootOptions) Identity() domain.Identity {
	return domain.Authenticated(o.User)
}

// withApp opens the application, runs fn and closes it again. The logger is
// attached to ctx for packages that read it from there.
func (o *RootOptions) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	ctx := logger.WithContext(cmd.Context(), o.log)
	a, err := o.OpenApp(ctx, o.log)
	if err != nil {
		return fmt.Errorf("opening application: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			o.log.Warn().Err(err).Msg("Failed to close application")
		}
	}()
	return fn(ctx, a)
}
