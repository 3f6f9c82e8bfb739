package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/counterbalance/internal/api"
	"github.com/roach88/counterbalance/internal/tracing"
)

// shutdownTimeout bounds how long in-flight requests may run after a
// shutdown signal.
const shutdownTimeout = 10 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr          string
	TraceFile     string
	AllowedOrigin string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the assignment HTTP API",
		Long: `Serve the assignment HTTP API.

Endpoints:
  GET  /assign-condition?prolific_pid=<id>&session_id=<id>
  POST /confirm-condition  {"prolific_pid": "<id>", "session_id": "<id>"}
  GET  /sessions/{session}/counters
  GET  /healthz

Example:
  counterbalance serve --db ./conditions.db --addr localhost:3001
  counterbalance serve --trace-file ./trace.json --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (env COUNTERBALANCE_ADDR)")
	cmd.Flags().StringVar(&opts.TraceFile, "trace-file", "", "write OpenTelemetry spans to this file (env COUNTERBALANCE_TRACE_FILE)")
	cmd.Flags().StringVar(&opts.AllowedOrigin, "allowed-origin", "", "CORS allowed origin (env COUNTERBALANCE_ALLOWED_ORIGIN)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg := opts.Config
	flags := cmd.Flags()
	if flags.Changed("addr") {
		cfg.Addr = opts.Addr
	}
	if flags.Changed("trace-file") {
		cfg.TraceFile = opts.TraceFile
	}
	if flags.Changed("allowed-origin") {
		cfg.AllowedOrigin = opts.AllowedOrigin
	}
	logger := opts.Logger

	if cfg.TraceFile != "" {
		shutdownTracing, err := tracing.Init("counterbalance", Version, cfg.TraceFile)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to start tracing", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := shutdownTracing(ctx); err != nil {
				logger.Error("error flushing traces", "error", err)
			}
		}()
		logger.Info("tracing enabled", "file", cfg.TraceFile)
	}

	logger.Info("opening database", "path", cfg.DB, "conditions", cfg.Conditions)
	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer opts.closeStore(st)

	b := opts.newBalancer(st)
	handler := api.New(b, st,
		api.WithAllowedOrigin(cfg.AllowedOrigin),
		api.WithLogger(logger),
	).Handler()

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Setup signal handling for graceful shutdown
	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
			// Parent context cancelled (e.g., from test)
		}
	}()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(ln)
	}()

	logger.Info("server starting", "addr", ln.Addr().String(), "conditions", cfg.Conditions)
	fmt.Fprintf(cmd.OutOrStdout(), "Listening on http://%s\n", ln.Addr())

	select {
	case err := <-serveErr:
		return WrapExitError(ExitFailure, "server error", err)
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return WrapExitError(ExitFailure, "shutdown error", err)
	}
	if err := <-serveErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return WrapExitError(ExitFailure, "server error", err)
	}

	logger.Info("server stopped gracefully")
	return nil
}
