package report

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/roach88/hdrc/internal/drc"
	"github.com/roach88/hdrc/internal/store"
	"github.com/roach88/hdrc/internal/tech"
)

// Document is the JSON form of a check or a stored run.
type Document struct {
	Run        *RunJSON        `json:"run,omitempty"`
	Errors     int             `json:"errors"`
	Warnings   int             `json:"warnings"`
	Violations []ViolationJSON `json:"violations"`
}

// RunJSON is the metadata of a stored run.
type RunJSON struct {
	ID           string  `json:"id"`
	Seq          int64   `json:"seq"`
	Top          string  `json:"top"`
	Mode         string  `json:"mode"`
	Started      string  `json:"started"`
	ElapsedMS    float64 `json:"elapsed_ms"`
	Aborted      bool    `json:"aborted"`
	Searches     int64   `json:"searches"`
	CellsChecked int64   `json:"cells_checked"`
	CellsSkipped int64   `json:"cells_skipped"`
}

// ViolationJSON is one violation. Bounds is [minx, miny, maxx, maxy] in
// the coordinates of Cell.
type ViolationJSON struct {
	Cell     string     `json:"cell"`
	Group    string     `json:"group"`
	Rule     string     `json:"rule"`
	Kind     string     `json:"kind"`
	Severity string     `json:"severity"`
	Message  string     `json:"message"`
	Expected float64    `json:"expected"`
	Actual   float64    `json:"actual"`
	Layers   []string   `json:"layers"`
	Bounds   [4]float64 `json:"bounds"`
}

// NewDocument builds a Document from violations. run may be nil.
func NewDocument(run *store.Run, vs []drc.Violation) Document {
	doc := Document{Violations: make([]ViolationJSON, 0, len(vs))}
	if run != nil {
		doc.Run = &RunJSON{
			ID:           run.ID,
			Seq:          run.Seq,
			Top:          run.Top,
			Mode:         run.Mode,
			Started:      run.Started.UTC().Format(time.RFC3339),
			ElapsedMS:    float64(run.Elapsed.Microseconds()) / 1000,
			Aborted:      run.Aborted,
			Searches:     run.Stats.Searches,
			CellsChecked: run.Stats.CellsChecked,
			CellsSkipped: run.Stats.CellsSkipped,
		}
	}
	for _, v := range vs {
		if v.Severity == tech.SeverityWarning {
			doc.Warnings++
		} else {
			doc.Errors++
		}
		layers := v.Layers
		if layers == nil {
			layers = []string{}
		}
		b := v.Bounds()
		doc.Violations = append(doc.Violations, ViolationJSON{
			Cell:     v.Cell,
			Group:    v.Group,
			Rule:     v.Rule,
			Kind:     v.Kind.String(),
			Severity: v.Severity.String(),
			Message:  v.Message,
			Expected: v.Expected,
			Actual:   v.Actual,
			Layers:   layers,
			Bounds:   [4]float64{b.MinX, b.MinY, b.MaxX, b.MaxY},
		})
	}
	return doc
}

// WriteJSON writes doc as indented JSON followed by a newline.
func WriteJSON(w io.Writer, doc Document) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}
