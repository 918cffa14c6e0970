package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/hdrc/internal/report"
	"github.com/roach88/hdrc/internal/store"
)

// ReportOptions holds flags for the report command.
type ReportOptions struct {
	*RootOptions
	Database string
	List     bool
	Limit    int
	Diff     string
	Delete   bool
}

// DeltaResult is the JSON form of a diff between two runs.
type DeltaResult struct {
	Before    string   `json:"before"`
	After     string   `json:"after"`
	Added     []string `json:"added"`
	Removed   []string `json:"removed"`
	Unchanged int      `json:"unchanged"`
}

// NewReportCommand creates the report command.
func NewReportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "report [run]",
		Short: "Show recorded check runs",
		Long: `Show the violations of a recorded run.

A run is named by its id, a unique id prefix, "latest"
(the default) or "previous". --list prints the recorded runs, newest first;
--diff compares the run with another one.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ref := "latest"
			if len(args) > 0 {
				ref = args[0]
			}
			return runReport(cmd, opts, ref)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "database path (default .hdrc/hdrc.db)")
	cmd.Flags().BoolVarP(&opts.List, "list", "l", false, "list recorded runs")
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "runs to list (0 = all)")
	cmd.Flags().StringVar(&opts.Diff, "diff", "", "compare against this earlier run")
	cmd.Flags().BoolVar(&opts.Delete, "delete", false, "delete the run and its violations")
	cmd.MarkFlagsMutuallyExclusive("list", "diff", "delete")

	return cmd
}

func runReport(cmd *cobra.Command, opts *ReportOptions, ref string) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	path := opts.Database
	if path == "" {
		path = opts.config().Database
	}
	if _, err := os.Stat(path); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, "no database at "+path, nil)
	}
	st, err := store.Open(path)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeDatabase, "failed to open database", err)
	}
	defer st.Close()

	if opts.List {
		return listRuns(ctx, formatter, st, opts.Limit)
	}

	run, err := st.FindRun(ctx, ref)
	if err != nil {
		return runLookupFailure(formatter, ref, err)
	}

	switch {
	case opts.Delete:
		if err := st.DeleteRun(ctx, run.ID); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeDatabase, "failed to delete run", err)
		}
		if formatter.JSON() {
			return formatter.Success(map[string]string{"deleted": run.ID})
		}
		fmt.Fprintf(formatter.Writer, "deleted run %d (%s)\n", run.Seq, run.ID)
		return nil
	case opts.Diff != "":
		before, err := st.FindRun(ctx, opts.Diff)
		if err != nil {
			return runLookupFailure(formatter, opts.Diff, err)
		}
		return diffRuns(ctx, formatter, st, before, run)
	}

	vs, err := st.ReadViolations(ctx, run.ID)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeDatabase, "failed to read violations", err)
	}
	if formatter.JSON() {
		if err := report.WriteJSON(formatter.Writer, report.NewDocument(&run, vs)); err != nil {
			return WrapExitError(ExitCommandError, "failed to write report", err)
		}
		return nil
	}
	p := report.NewPrinter(formatter.Writer, report.UseColor(formatter.Writer))
	p.Runs([]store.Run{run})
	p.Violations(vs)
	return nil
}

func listRuns(ctx context.Context, formatter *OutputFormatter, st *store.Store, limit int) error {
	runs, err := st.ListRuns(ctx, limit)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeDatabase, "failed to list runs", err)
	}
	if formatter.JSON() {
		out := make([]*report.RunJSON, 0, len(runs))
		for i := range runs {
			out = append(out, report.NewDocument(&runs[i], nil).Run)
		}
		return formatter.Success(out)
	}
	report.NewPrinter(formatter.Writer, report.UseColor(formatter.Writer)).Runs(runs)
	return nil
}

func diffRuns(ctx context.Context, formatter *OutputFormatter, st *store.Store, before, after store.Run) error {
	old, err := st.ReadViolations(ctx, before.ID)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeDatabase, "failed to read violations", err)
	}
	cur, err := st.ReadViolations(ctx, after.ID)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeDatabase, "failed to read violations", err)
	}

	d := report.Compare(old, cur)
	if formatter.JSON() {
		res := DeltaResult{Before: before.ID, After: after.ID, Added: d.Added, Removed: d.Removed, Unchanged: d.Kept}
		if res.Added == nil {
			res.Added = []string{}
		}
		if res.Removed == nil {
			res.Removed = []string{}
		}
		return formatter.Success(res)
	}
	report.NewPrinter(formatter.Writer, report.UseColor(formatter.Writer)).Delta(d)
	return nil
}

func runLookupFailure(formatter *OutputFormatter, ref string, err error) error {
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrAmbiguous) {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("run %q", ref), err)
	}
	return formatter.Fail(ExitCommandError, ErrCodeDatabase, "failed to find run", err)
}
