package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/hdrc/internal/drc"
	"github.com/roach88/hdrc/internal/metrics"
	"github.com/roach88/hdrc/internal/report"
	"github.com/roach88/hdrc/internal/store"
)

// CheckOptions holds flags for the check command.
type CheckOptions struct {
	*RootOptions
	Tech        string
	Top         string
	Database    string
	Mode        string
	Workers     int
	Layers      []string
	Kinds       []string
	Changed     []string
	NoStore     bool
	ResetDates  bool
	MetricsFile string
}

// checkSettings is a check with flags and configuration resolved.
type checkSettings struct {
	mode        drc.Mode
	workers     int
	layers      []string
	kinds       []drc.ViolationKind
	changed     []string
	record      bool
	metricsFile string
}

// checkOutcome is what executeCheck hands back for output.
type checkOutcome struct {
	result     *drc.Result
	violations []drc.Violation
	elapsed    time.Duration
	// run is nil when runs are not recorded.
	run *store.Run
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "check [layout.yaml]",
		Short: "Check a layout against a technology's design rules",
		Long: `Check the hierarchy below the top cell for design-rule violations.

Cells whose good date in the database is newer than their last change are
skipped. Use --mode exhaustive to recheck everything, or --mode incremental
with --changed to check only some instances of the top cell.

Exits 1 when errors are found or the check is interrupted.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, opts, args)
		},
	}

	cmd.Flags().StringVarP(&opts.Tech, "tech", "t", "", "technology CUE directory or file")
	cmd.Flags().StringVar(&opts.Top, "top", "", "top cell (default: the layout file's top)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "database path (default .hdrc/hdrc.db)")
	cmd.Flags().StringVar(&opts.Mode, "mode", "", "check mode (full|incremental|exhaustive)")
	cmd.Flags().IntVarP(&opts.Workers, "workers", "j", 0, "parallel layer tasks (0 = GOMAXPROCS)")
	cmd.Flags().StringSliceVar(&opts.Layers, "layers", nil, "layers to check (default all)")
	cmd.Flags().StringSliceVar(&opts.Kinds, "kinds", nil, "violation kinds to report (default all)")
	cmd.Flags().StringSliceVar(&opts.Changed, "changed", nil, "changed instances of the top cell (incremental mode)")
	cmd.Flags().BoolVar(&opts.NoStore, "no-store", false, "do not record the run in the database")
	cmd.Flags().BoolVar(&opts.ResetDates, "reset-dates", false, "forget every good date before checking")
	cmd.Flags().StringVar(&opts.MetricsFile, "metrics-file", "", "write Prometheus metrics to this file")

	return cmd
}

func runCheck(cmd *cobra.Command, opts *CheckOptions, args []string) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	settings, err := opts.resolve(cmd)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeArguments, "invalid arguments", err)
	}

	layoutPath, techPath := inputPaths(opts.RootOptions, args, opts.Tech)
	in, err := loadInputs(formatter, opts.RootOptions, layoutPath, techPath, opts.Top)
	if err != nil {
		return err
	}

	st, err := openStore(opts.database())
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeDatabase, "failed to open database", err)
	}
	defer st.Close()

	ctx, stop := signalContext(cmd, logger)
	defer stop()

	if opts.ResetDates {
		n, err := st.ClearDates(ctx)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeDatabase, "failed to clear good dates", err)
		}
		formatter.VerboseLog("cleared %d good dates", n)
	}

	out, err := executeCheck(ctx, settings, in, st, logger)
	if err != nil {
		return checkFailure(formatter, err)
	}
	return writeCheck(formatter, out)
}

// resolve applies flags over the loaded configuration.
func (o *CheckOptions) resolve(cmd *cobra.Command) (*checkSettings, error) {
	cfg := o.config().Check
	s := &checkSettings{
		workers:     cfg.Workers,
		layers:      cfg.Layers,
		changed:     o.Changed,
		record:      cfg.StoreRuns() && !o.NoStore,
		metricsFile: o.config().Metrics.Textfile,
	}

	mode := cfg.Mode
	if o.Mode != "" {
		mode = o.Mode
	}
	if mode == "" {
		mode = drc.ModeFull.String()
	}
	m, err := drc.ParseMode(mode)
	if err != nil {
		return nil, err
	}
	s.mode = m

	if cmd.Flags().Changed("workers") {
		s.workers = o.Workers
	}
	if len(o.Layers) > 0 {
		s.layers = o.Layers
	}
	kinds := cfg.Kinds
	if len(o.Kinds) > 0 {
		kinds = o.Kinds
	}
	for _, k := range kinds {
		vk, err := drc.ParseViolationKind(k)
		if err != nil {
			return nil, err
		}
		s.kinds = append(s.kinds, vk)
	}
	if o.MetricsFile != "" {
		s.metricsFile = o.MetricsFile
	}

	if len(s.changed) > 0 && s.mode != drc.ModeIncremental {
		return nil, errors.New("--changed requires --mode incremental")
	}
	return s, nil
}

func (o *CheckOptions) database() string {
	if o.Database != "" {
		return o.Database
	}
	return o.config().Database
}

// openStore opens the database, creating its directory when needed.
func openStore(path string) (*store.Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	return store.Open(path)
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command, logger *slog.Logger) (context.Context, context.CancelFunc) {
	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, stopping check", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan) // Prevent signal handler leak
		cancel()
	}
}

// executeCheck runs one check and records it. An aborted check is still
// recorded, with Aborted set, and returns no error.
func executeCheck(ctx context.Context, s *checkSettings, in *inputs, st *store.Store, logger *slog.Logger) (*checkOutcome, error) {
	m := metrics.New(prometheus.NewRegistry())
	collector := drc.NewCollector()

	opts := drc.Options{
		Mode:         s.mode,
		Workers:      s.workers,
		Layers:       s.layers,
		Kinds:        s.kinds,
		ChangedInsts: s.changed,
		Logger:       logger,
		Metrics:      m,
	}
	if st != nil {
		opts.Dates = st
	}

	started := time.Now()
	res, err := drc.Run(ctx, in.lib, in.top, in.tech, m.Sink(collector), opts)
	elapsed := time.Since(started)
	if err != nil && !errors.Is(err, drc.ErrAborted) {
		return nil, err
	}

	out := &checkOutcome{
		result:     res,
		violations: collector.Sorted(),
		elapsed:    elapsed,
	}

	if st != nil && s.record {
		// Record even when ctx was cancelled.
		run, err := st.WriteRun(context.WithoutCancel(ctx), store.Run{
			Top:      in.top,
			Mode:     s.mode.String(),
			TechHash: in.tech.Hash(),
			Started:  started,
			Elapsed:  elapsed,
			Errors:   res.Errors,
			Warnings: res.Warnings,
			Aborted:  res.Aborted,
			Stats:    res.Stats,
		}, out.violations)
		if err != nil {
			return nil, fmt.Errorf("record run: %w", err)
		}
		out.run = &run
		logger.Debug("run recorded", "id", run.ID, "seq", run.Seq)
	}

	if s.metricsFile != "" {
		if err := m.WriteTextfile(s.metricsFile); err != nil {
			return nil, fmt.Errorf("write metrics: %w", err)
		}
	}
	return out, nil
}

// checkFailure maps an executeCheck error to an exit error.
func checkFailure(f *OutputFormatter, err error) error {
	if drc.IsInvariant(err) {
		return f.Fail(ExitCommandError, ErrCodeCheck, "check failed", err)
	}
	return f.Fail(ExitCommandError, ErrCodeDatabase, "check failed", err)
}

// writeCheck prints the outcome and returns the exit error it calls for.
func writeCheck(f *OutputFormatter, out *checkOutcome) error {
	if f.JSON() {
		if err := report.WriteJSON(f.Writer, report.NewDocument(out.run, out.violations)); err != nil {
			return WrapExitError(ExitCommandError, "failed to write report", err)
		}
	} else {
		p := report.NewPrinter(f.Writer, report.UseColor(f.Writer))
		p.Violations(out.violations)
		p.Stats(out.result.Stats, out.elapsed)
		if out.run != nil {
			f.VerboseLog("recorded run %d (%s)", out.run.Seq, out.run.ID)
		}
	}

	switch {
	case out.result.Aborted:
		return NewExitError(ExitFailure, ErrCodeAborted+": check aborted")
	case out.result.Errors > 0:
		return NewExitError(ExitFailure, fmt.Sprintf("%d design-rule errors", out.result.Errors))
	}
	return nil
}
