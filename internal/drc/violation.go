package drc

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/roach88/hdrc/internal/geom"
	"github.com/roach88/hdrc/internal/tech"
)

// ViolationKind is the rule category a violation belongs to.
type ViolationKind uint8

const (
	ViolSpacing ViolationKind = iota
	ViolNotch
	ViolMinWidth
	ViolMinArea
	ViolSurround
	ViolCutSize
	ViolNodeSize
)

var violationNames = [...]string{"spacing", "notch", "minwidth", "minarea", "surround", "cutsize", "nodesize"}

func (k ViolationKind) String() string {
	if int(k) < len(violationNames) {
		return violationNames[k]
	}
	return fmt.Sprintf("ViolationKind(%d)", uint8(k))
}

// ParseViolationKind converts a kind name into a ViolationKind.
func ParseViolationKind(s string) (ViolationKind, error) {
	for i, name := range violationNames {
		if s == name {
			return ViolationKind(i), nil
		}
	}
	return ViolSpacing, fmt.Errorf("unknown violation kind %q", s)
}

// Violation is one rule failure. Shapes are in the coordinates of Cell,
// the cell whose check found it.
type Violation struct {
	Kind     ViolationKind
	Severity tech.Severity
	Rule     string
	Message  string
	Expected float64
	Actual   float64
	Cell     string
	Layers   []string
	Shapes   []geom.Shape
	Group    string
}

// Bounds returns the box enclosing the violation's shapes.
func (v Violation) Bounds() geom.Rect {
	b := geom.EmptyRect()
	for _, s := range v.Shapes {
		b = b.Union(s.Bounds())
	}
	return b
}

func (v Violation) String() string {
	return fmt.Sprintf("%s %s [%s] %s: %s at %s", v.Severity, v.Kind, v.Rule, v.Cell, v.Message, v.Bounds())
}

// Sink receives violations. Implementations must be safe for concurrent
// use: every layer task reports into the same sink.
type Sink interface {
	Report(v Violation)
}

// Collector is a Sink that keeps every violation in memory.
type Collector struct {
	mu    sync.Mutex
	items []Violation
}

// NewCollector returns an empty Collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Report appends v.
func (c *Collector) Report(v Violation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append(c.items, v)
}

// Len returns the number of violations collected.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Sorted returns a copy of the violations ordered by group, rule, cell and
// position. Tasks report concurrently, so arrival order is meaningless.
func (c *Collector) Sorted() []Violation {
	c.mu.Lock()
	out := append([]Violation(nil), c.items...)
	c.mu.Unlock()
	SortViolations(out)
	return out
}

// SortViolations orders vs by group, rule, cell, position, kind and message.
func SortViolations(vs []Violation) {
	sort.SliceStable(vs, func(i, j int) bool {
		a, b := vs[i], vs[j]
		if a.Group != b.Group {
			return a.Group < b.Group
		}
		if a.Rule != b.Rule {
			return a.Rule < b.Rule
		}
		if a.Cell != b.Cell {
			return a.Cell < b.Cell
		}
		ab, bb := a.Bounds(), b.Bounds()
		if ab.MinX != bb.MinX {
			return ab.MinX < bb.MinX
		}
		if ab.MinY != bb.MinY {
			return ab.MinY < bb.MinY
		}
		if ab.MaxX != bb.MaxX {
			return ab.MaxX < bb.MaxX
		}
		if ab.MaxY != bb.MaxY {
			return ab.MaxY < bb.MaxY
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.Message < b.Message
	})
}

// Counts returns the number of errors and warnings collected.
func (c *Collector) Counts() (errs, warnings int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, v := range c.items {
		if v.Severity == tech.SeverityWarning {
			warnings++
		} else {
			errs++
		}
	}
	return errs, warnings
}

// countingSink forwards to a Sink and tallies severities per cell.
type countingSink struct {
	next Sink

	mu       sync.Mutex
	errs     int
	warnings int
}

func (s *countingSink) Report(v Violation) {
	s.mu.Lock()
	if v.Severity == tech.SeverityWarning {
		s.warnings++
	} else {
		s.errs++
	}
	s.mu.Unlock()
	if s.next != nil {
		s.next.Report(v)
	}
}

func sortedLayers(a, b string) []string {
	if b < a {
		a, b = b, a
	}
	return []string{a, b}
}

func layerPair(a, b string) string {
	l := sortedLayers(a, b)
	if l[0] == l[1] {
		return l[0]
	}
	return strings.Join(l, "/")
}
