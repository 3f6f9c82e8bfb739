package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/counterbalance/internal/balancer"
	"github.com/roach88/counterbalance/internal/config"
	"github.com/roach88/counterbalance/internal/store"
)

// Version is reported by the serve command and recorded on trace spans.
var Version = "dev"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	// Flag values; applied over the environment only when set.
	Database   string
	Conditions int

	// Config is the resolved configuration, filled in before any command runs.
	Config config.Config

	// Logger is the process logger, filled in before any command runs.
	Logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the counterbalance CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "counterbalance",
		Short: "counterbalance - balanced condition assignment",
		Long: `Assigns study participants to experimental conditions so completed runs
stay balanced across conditions within each session.

Configuration is read from COUNTERBALANCE_* environment variables; the
--db and --conditions flags override them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return opts.resolve(cmd)
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (env COUNTERBALANCE_DB)")
	cmd.PersistentFlags().IntVar(&opts.Conditions, "conditions", 0, "number of conditions N (env COUNTERBALANCE_CONDITIONS)")

	// Add subcommands
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewAssignCommand(opts))
	cmd.AddCommand(NewConfirmCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewAuditCommand(opts))
	cmd.AddCommand(NewScenarioCommand(opts))

	return cmd
}

// resolve loads the environment configuration, applies flags that were set
// explicitly and installs the process logger.
func (o *RootOptions) resolve(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.DB = o.Database
	}
	if flags.Changed("conditions") {
		cfg.Conditions = o.Conditions
	}
	if err := cfg.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	o.Config = cfg
	o.Logger = newLogger(cmd.ErrOrStderr(), o.Verbose)
	slog.SetDefault(o.Logger)
	return nil
}

// newLogger returns a text logger at Debug when verbose, Info otherwise.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel}))
}

// formatter returns an OutputFormatter writing to the command's streams.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// openStore opens the configured database.
func (o *RootOptions) openStore() (*store.Store, error) {
	st, err := store.Open(o.Config.DB, store.Options{
		Conditions:  o.Config.Conditions,
		BusyTimeout: o.Config.BusyTimeout,
	})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

// newBalancer builds a Balancer over st from the resolved configuration.
func (o *RootOptions) newBalancer(st *store.Store) *balancer.Balancer {
	return balancer.New(st,
		balancer.WithPendingWeight(o.Config.PendingWeight),
		balancer.WithRetryPolicy(balancer.RetryPolicy{
			MaxAttempts: o.Config.MaxAttempts,
			Backoff:     o.Config.RetryBackoff,
		}),
		balancer.WithLogger(o.Logger),
	)
}

// closeStore closes st, logging instead of failing the command.
func (o *RootOptions) closeStore(st *store.Store) {
	if err := st.Close(); err != nil {
		o.Logger.Error("error closing database", "error", err)
	}
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
