package cli

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/hdrc/internal/watch"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	CheckOptions
	Debounce time.Duration
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{CheckOptions: CheckOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "watch [layout.yaml]",
		Short: "Re-check a layout whenever it or its technology changes",
		Long: `Run a check, then re-run it each time the layout file or the
technology deck changes. Good dates make each re-check revisit only the
cells that changed. Press Ctrl-C to stop.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, opts, args)
		},
	}

	cmd.Flags().StringVarP(&opts.Tech, "tech", "t", "", "technology CUE directory or file")
	cmd.Flags().StringVar(&opts.Top, "top", "", "top cell (default: the layout file's top)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "database path (default .hdrc/hdrc.db)")
	cmd.Flags().StringVar(&opts.Mode, "mode", "", "check mode (full|exhaustive)")
	cmd.Flags().IntVarP(&opts.Workers, "workers", "j", 0, "parallel layer tasks (0 = GOMAXPROCS)")
	cmd.Flags().StringSliceVar(&opts.Layers, "layers", nil, "layers to check (default all)")
	cmd.Flags().StringSliceVar(&opts.Kinds, "kinds", nil, "violation kinds to report (default all)")
	cmd.Flags().BoolVar(&opts.NoStore, "no-store", false, "do not record runs in the database")
	cmd.Flags().StringVar(&opts.MetricsFile, "metrics-file", "", "write Prometheus metrics to this file")
	cmd.Flags().DurationVar(&opts.Debounce, "debounce", 0, "quiet time before re-checking (default from config, 300ms)")

	return cmd
}

func runWatch(cmd *cobra.Command, opts *WatchOptions, args []string) error {
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

	debounce := opts.config().Watch.Debounce
	if opts.Debounce > 0 {
		debounce = opts.Debounce
	}
	w, err := watch.New(watch.Config{
		Paths:    []string{in.layoutPath, in.techPath},
		Debounce: debounce,
	}, logger)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "failed to watch inputs", err)
	}

	ctx, stop := signalContext(cmd, logger)
	defer stop()

	recheck := func(ctx context.Context, in *inputs) error {
		out, err := executeCheck(ctx, settings, in, st, logger)
		if err != nil {
			return checkFailure(formatter, err)
		}
		// Violations are reported, not fatal, while watching.
		if err := writeCheck(formatter, out); err != nil && GetExitCode(err) != ExitFailure {
			return err
		}
		return nil
	}

	if err := recheck(ctx, in); err != nil {
		return err
	}

	err = w.Run(ctx, func(ctx context.Context, changed []string) error {
		logger.Info("re-checking", "changed", changed)
		in, err := loadInputs(formatter, opts.RootOptions, layoutPath, techPath, opts.Top)
		if err != nil {
			return err
		}
		return recheck(ctx, in)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitCommandError, "watch failed", err)
	}
	return nil
}
