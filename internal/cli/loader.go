package cli

import (
	"errors"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/roach88/hdrc/internal/layout"
	"github.com/roach88/hdrc/internal/tech"
)

// inputs are the loaded layout and technology of one command.
type inputs struct {
	lib  *layout.Library
	top  string
	tech *tech.Technology

	layoutPath string
	techPath   string
}

// inputPaths resolves the layout and technology locations: arguments and
// flags win over the configuration file.
func inputPaths(opts *RootOptions, args []string, techFlag string) (layoutPath, techPath string) {
	cfg := opts.config()
	layoutPath = cfg.Layout
	if len(args) > 0 {
		layoutPath = args[0]
	}
	techPath = cfg.Tech
	if techFlag != "" {
		techPath = techFlag
	}
	return layoutPath, techPath
}

// loadInputs loads the technology and the layout. topFlag overrides the
// configured top cell, which overrides the layout file's.
func loadInputs(f *OutputFormatter, opts *RootOptions, layoutPath, techPath, topFlag string) (*inputs, error) {
	if layoutPath == "" {
		return nil, f.Fail(ExitCommandError, ErrCodeArguments, "no layout file given", nil)
	}
	if techPath == "" {
		return nil, f.Fail(ExitCommandError, ErrCodeArguments, "no technology given (use --tech)", nil)
	}

	tc, err := tech.Load(techPath)
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeTech, "failed to load technology", err)
	}
	f.VerboseLog("technology %s: %d layers, %d rules", tc.Name, len(tc.Layers), len(tc.Rules))

	lib, top, err := layout.Load(layoutPath)
	if err != nil {
		var verr *layout.ValidationError
		if errors.As(err, &verr) {
			return nil, f.Fail(ExitFailure, ErrCodeProblems, "layout has structural problems", err)
		}
		return nil, f.Fail(ExitCommandError, ErrCodeLayout, "failed to load layout", err)
	}

	if t := opts.config().Top; t != "" {
		top = t
	}
	if topFlag != "" {
		top = topFlag
	}
	if _, ok := lib.Lookup(top); !ok {
		return nil, f.Fail(ExitCommandError, ErrCodeNotFound, "top cell "+top+" not found", nil)
	}

	abs := func(p string) string {
		if a, err := filepath.Abs(p); err == nil {
			return a
		}
		return p
	}
	return &inputs{
		lib:        lib,
		top:        top,
		tech:       tc,
		layoutPath: abs(layoutPath),
		techPath:   abs(techPath),
	}, nil
}

// newLogger configures logging based on the verbose flag. Logs go to w so
// they never mix with JSON on stdout.
func newLogger(opts *RootOptions, w io.Writer) *slog.Logger {
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: logLevel,
	})
	return slog.New(handler)
}

func newFormatter(opts *RootOptions, stdout, stderr io.Writer) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    stdout,
		ErrWriter: stderr,
		Verbose:   opts.Verbose,
	}
}
