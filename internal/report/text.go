package report

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/roach88/hdrc/internal/drc"
	"github.com/roach88/hdrc/internal/store"
	"github.com/roach88/hdrc/internal/tech"
)

// UseColor reports whether w is a terminal that should get colours.
// NO_COLOR disables colours everywhere.
func UseColor(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Printer writes human-readable reports.
type Printer struct {
	w io.Writer

	errC   *color.Color
	warnC  *color.Color
	ruleC  *color.Color
	addC   *color.Color
	delC   *color.Color
	faintC *color.Color
}

// NewPrinter returns a Printer writing to w. Colours are forced on or off
// by useColor regardless of the process-wide color.NoColor setting.
func NewPrinter(w io.Writer, useColor bool) *Printer {
	p := &Printer{
		w:      w,
		errC:   color.New(color.FgRed, color.Bold),
		warnC:  color.New(color.FgYellow),
		ruleC:  color.New(color.FgCyan),
		addC:   color.New(color.FgGreen),
		delC:   color.New(color.FgRed),
		faintC: color.New(color.Faint),
	}
	for _, c := range []*color.Color{p.errC, p.warnC, p.ruleC, p.addC, p.delC, p.faintC} {
		if useColor {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

// Violations writes one line per violation followed by a summary line.
func (p *Printer) Violations(vs []drc.Violation) {
	errs, warnings := 0, 0
	for _, v := range vs {
		sev := p.errC.Sprint(v.Severity)
		if v.Severity == tech.SeverityWarning {
			sev = p.warnC.Sprint(v.Severity)
			warnings++
		} else {
			errs++
		}
		fmt.Fprintf(p.w, "%s: %s %s %s: %s at %s\n",
			v.Cell, sev, p.ruleC.Sprint(v.Rule), v.Kind, v.Message, v.Bounds())
	}
	p.Summary(errs, warnings)
}

// Summary writes the error and warning counts.
func (p *Printer) Summary(errs, warnings int) {
	if errs == 0 && warnings == 0 {
		fmt.Fprintln(p.w, "no violations")
		return
	}
	fmt.Fprintf(p.w, "%d violations: %s, %s\n",
		errs+warnings, plural(errs, "error"), plural(warnings, "warning"))
}

// Stats writes the work counters of a check.
func (p *Printer) Stats(s drc.Stats, elapsed time.Duration) {
	fmt.Fprintln(p.w, p.faintC.Sprintf("checked %d cells, skipped %d, %d searches, %d cache hits in %s",
		s.CellsChecked, s.CellsSkipped, s.Searches, s.CacheHits, elapsed.Round(time.Millisecond)))
}

// Runs writes one line per stored run.
func (p *Printer) Runs(runs []store.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(p.w, "no runs")
		return
	}
	for _, r := range runs {
		status := ""
		if r.Aborted {
			status = " " + p.warnC.Sprint("aborted")
		}
		fmt.Fprintf(p.w, "%4d %s %s %-11s %-5s %s, %s%s\n",
			r.Seq, shortID(r.ID), r.Started.Format(time.RFC3339), r.Mode, r.Top,
			plural(r.Errors, "error"), plural(r.Warnings, "warning"), status)
	}
}

// Delta writes the result of Compare: removed lines first, then added
// lines, then a summary.
func (p *Printer) Delta(d Delta) {
	for _, l := range d.Removed {
		fmt.Fprintln(p.w, p.delC.Sprint("- "+l))
	}
	for _, l := range d.Added {
		fmt.Fprintln(p.w, p.addC.Sprint("+ "+l))
	}
	fmt.Fprintf(p.w, "%d added, %d removed, %d unchanged\n", len(d.Added), len(d.Removed), d.Kept)
}

func plural(n int, word string) string {
	if n == 1 {
		return "1 " + word
	}
	return strconv.Itoa(n) + " " + word + "s"
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
