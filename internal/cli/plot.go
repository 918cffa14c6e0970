package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/hdrc/internal/drc"
	"github.com/roach88/hdrc/internal/layout"
	"github.com/roach88/hdrc/internal/plot"
	"github.com/roach88/hdrc/internal/store"
)

// PlotOptions holds flags for the plot command.
type PlotOptions struct {
	*RootOptions
	Output   string
	Database string
	Run      string
	Cell     string
	Scale    float64
	MaxSize  int
	Depth    int
	NoLabels bool
}

// PlotResult is the JSON result of the plot command.
type PlotResult struct {
	Output     string `json:"output"`
	Cell       string `json:"cell"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Violations int    `json:"violations"`
}

// NewPlotCommand creates the plot command.
func NewPlotCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PlotOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "plot [layout.yaml]",
		Short: "Render a cell and its violations to PNG",
		Long: `Render a cell with its sub-cells flattened into a PNG image.

With --run, the violations a recorded run found in the cell are outlined:
errors in red, warnings in amber.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlot(cmd, opts, args)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "PNG file to write")
	cmd.Flags().StringVar(&opts.Database, "db", "", "database path (default .hdrc/hdrc.db)")
	cmd.Flags().StringVar(&opts.Run, "run", "", "overlay the violations of this run (e.g. latest)")
	cmd.Flags().StringVar(&opts.Cell, "cell", "", "cell to render (default: the top cell)")
	cmd.Flags().Float64Var(&opts.Scale, "scale", 0, "pixels per layout unit (0 = fit --max-size)")
	cmd.Flags().IntVar(&opts.MaxSize, "max-size", 0, "longer image side in pixels")
	cmd.Flags().IntVar(&opts.Depth, "depth", -1, "instance levels to draw (-1 = all)")
	cmd.Flags().BoolVar(&opts.NoLabels, "no-labels", false, "do not label violation markers")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

func runPlot(cmd *cobra.Command, opts *PlotOptions, args []string) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := opts.config()

	layoutPath, _ := inputPaths(opts.RootOptions, args, "")
	if layoutPath == "" {
		return formatter.Fail(ExitCommandError, ErrCodeArguments, "no layout file given", nil)
	}
	lib, top, err := layout.Load(layoutPath)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeLayout, "failed to load layout", err)
	}
	if cfg.Top != "" {
		top = cfg.Top
	}
	if opts.Cell != "" {
		top = opts.Cell
	}
	if _, ok := lib.Lookup(top); !ok {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, "cell "+top+" not found", nil)
	}

	var vs []drc.Violation
	if opts.Run != "" {
		vs, err = plotViolations(ctx, formatter, opts, cfg.Database)
		if err != nil {
			return err
		}
	}

	po := plot.Options{
		Scale:   opts.Scale,
		MaxSize: cfg.Plot.MaxSize,
		Margin:  cfg.Plot.Margin,
		Depth:   cfg.Plot.MaxDepth(),
		Labels:  cfg.Plot.ShowLabels() && !opts.NoLabels,
	}
	if opts.MaxSize > 0 {
		po.MaxSize = opts.MaxSize
	}
	if cmd.Flags().Changed("depth") {
		po.Depth = opts.Depth
	}

	img, err := plot.Render(lib, top, vs, po)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "failed to render", err)
	}

	f, err := os.Create(opts.Output)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "failed to create output", err)
	}
	if err := plot.WritePNG(f, img); err != nil {
		f.Close()
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "failed to write output", err)
	}
	if err := f.Close(); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "failed to write output", err)
	}

	marked := 0
	for _, v := range vs {
		if v.Cell == top {
			marked++
		}
	}
	res := PlotResult{
		Output:     opts.Output,
		Cell:       top,
		Width:      img.Bounds().Dx(),
		Height:     img.Bounds().Dy(),
		Violations: marked,
	}
	if formatter.JSON() {
		return formatter.Success(res)
	}
	fmt.Fprintf(formatter.Writer, "wrote %s (%dx%d, %d violations marked)\n", res.Output, res.Width, res.Height, res.Violations)
	return nil
}

func plotViolations(ctx context.Context, formatter *OutputFormatter, opts *PlotOptions, defaultDB string) ([]drc.Violation, error) {
	path := opts.Database
	if path == "" {
		path = defaultDB
	}
	if _, err := os.Stat(path); err != nil {
		return nil, formatter.Fail(ExitCommandError, ErrCodeNotFound, "no database at "+path, nil)
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, formatter.Fail(ExitCommandError, ErrCodeDatabase, "failed to open database", err)
	}
	defer st.Close()

	run, err := st.FindRun(ctx, opts.Run)
	if err != nil {
		return nil, runLookupFailure(formatter, opts.Run, err)
	}
	vs, err := st.ReadViolations(ctx, run.ID)
	if err != nil {
		return nil, formatter.Fail(ExitCommandError, ErrCodeDatabase, "failed to read violations", err)
	}
	return vs, nil
}
