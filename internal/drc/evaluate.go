package drc

import (
	"fmt"
	"math"

	"github.com/roach88/hdrc/internal/geom"
	"github.com/roach88/hdrc/internal/layout"
	"github.com/roach88/hdrc/internal/tech"
)

// KindMask selects which violation kinds a check reports.
type KindMask uint32

// AllKinds enables every violation kind.
const AllKinds KindMask = 1<<(uint(ViolNodeSize)+1) - 1

// MaskOf returns the mask enabling kinds. No kinds means all of them.
func MaskOf(kinds ...ViolationKind) KindMask {
	if len(kinds) == 0 {
		return AllKinds
	}
	var m KindMask
	for _, k := range kinds {
		m |= 1 << k
	}
	return m
}

// Has reports whether k is enabled.
func (m KindMask) Has(k ViolationKind) bool {
	return m&(1<<k) != 0
}

// Candidate is one shape taking part in an evaluation, in the coordinates
// of the cell being checked. Net is a global net number.
type Candidate struct {
	Shape geom.Shape
	Layer string
	Net   int
	Prim  *layout.Primitive
}

func (c Candidate) multiCut() bool {
	return c.Prim != nil && c.Prim.MultiCut
}

// Prober answers geometry questions about the cell being checked. Boxes and
// points are in the coordinates of that cell.
type Prober interface {
	// Covered reports whether geometry on layer covers box.
	Covered(layer string, box geom.Rect) bool
	// PointCovered reports whether geometry on layer contains p.
	PointCovered(layer string, p geom.Point) bool
	// TransistorCovers reports whether transistor geometry covers box.
	TransistorCovers(box geom.Rect) bool
	// VTCovers reports whether threshold-voltage implant covers s.
	VTCovers(s geom.Shape) bool
	// Err returns the error that interrupted a search, if any. Answers
	// given after it are not meaningful.
	Err() error
}

// Evaluator decides whether two candidates violate a rule.
type Evaluator struct {
	Tech  *tech.Technology
	Probe Prober
	Kinds KindMask
}

// Evaluate checks the pair a, b. The result does not depend on the order
// of the arguments. Nothing is returned once the prober has failed.
func (e *Evaluator) Evaluate(a, b Candidate) []Violation {
	if a.Shape.Degenerate() || b.Shape.Degenerate() {
		return nil
	}
	if lessCandidate(b, a) {
		a, b = b, a
	}
	var out []Violation
	if v, ok := e.cutSize(a, b); ok {
		out = append(out, v)
	}
	var v Violation
	var ok bool
	if a.Shape.IsBox() && b.Shape.IsBox() {
		v, ok = e.manhattan(a, b)
	} else {
		v, ok = e.general(a, b)
	}
	if ok {
		out = append(out, v)
	}
	if e.Probe != nil && e.Probe.Err() != nil {
		return nil
	}
	return out
}

// lessCandidate orders candidates so evaluation is symmetric.
func lessCandidate(a, b Candidate) bool {
	if a.Layer != b.Layer {
		return a.Layer < b.Layer
	}
	ab, bb := a.Shape.Bounds(), b.Shape.Bounds()
	switch {
	case ab.MinX != bb.MinX:
		return ab.MinX < bb.MinX
	case ab.MinY != bb.MinY:
		return ab.MinY < bb.MinY
	case ab.MaxX != bb.MaxX:
		return ab.MaxX < bb.MaxX
	case ab.MaxY != bb.MaxY:
		return ab.MaxY < bb.MaxY
	}
	return a.Net < b.Net
}

func (e *Evaluator) manhattan(a, b Candidate) (Violation, bool) {
	ab, bb := a.Shape.Box, b.Shape.Box
	gap, dx, dy := geom.Gap(ab, bb)
	if gap < 0 && a.Layer != b.Layer {
		return Violation{}, false
	}
	connected := a.Net == b.Net
	if connected && a.Layer == b.Layer {
		if gap <= 0 {
			return e.neck(a, b)
		}
		return e.notch(a, b, gap, dx, dy)
	}

	ctx := tech.Context{
		Width:    max(ab.MinDim(), bb.MinDim()),
		Length:   max(0, -min(dx, dy)),
		MultiCut: a.multiCut() && b.multiCut(),
	}
	facing := min(dx, dy) < -geom.Eps
	rule, ok := e.rule(a.Layer, b.Layer, connected, ctx, facing)
	if !ok || gap >= rule.Value-geom.Eps {
		return Violation{}, false
	}
	if e.exempt(rule, a, b, gapBox(ab, bb)) {
		return Violation{}, false
	}
	return e.spacingViolation(rule, a, b, max(gap, 0)), true
}

func (e *Evaluator) general(a, b Candidate) (Violation, bool) {
	dist, overlap := geom.Separation(a.Shape, b.Shape)
	if overlap && a.Layer != b.Layer {
		return Violation{}, false
	}
	connected := a.Net == b.Net
	if connected && a.Layer == b.Layer {
		return Violation{}, false
	}
	ctx := tech.Context{
		Width:    max(a.Shape.Width(), b.Shape.Width()),
		MultiCut: a.multiCut() && b.multiCut(),
	}
	rule, ok := e.rule(a.Layer, b.Layer, connected, ctx, true)
	if !ok || dist >= rule.Value-geom.Eps {
		return Violation{}, false
	}
	if e.exempt(rule, a, b, gapBox(a.Shape.Bounds(), b.Shape.Bounds())) {
		return Violation{}, false
	}
	return e.spacingViolation(rule, a, b, dist), true
}

// rule looks up the spacing rule for a pair, falling back to the edge rule
// for facing shapes.
func (e *Evaluator) rule(la, lb string, connected bool, ctx tech.Context, facing bool) (tech.Rule, bool) {
	if !e.Kinds.Has(ViolSpacing) {
		return tech.Rule{}, false
	}
	if r, ok := e.Tech.SpacingRule(la, lb, connected, ctx); ok {
		return r, true
	}
	if facing {
		return e.Tech.EdgeRule(la, lb, connected, ctx)
	}
	return tech.Rule{}, false
}

func (e *Evaluator) exempt(rule tech.Rule, a, b Candidate, between geom.Rect) bool {
	if e.Probe == nil {
		return false
	}
	la, _ := e.Tech.Layer(a.Layer)
	lb, _ := e.Tech.Layer(b.Layer)
	if la.Function == tech.FuncActive && lb.Function == tech.FuncActive &&
		!between.IsEmpty() && e.Probe.TransistorCovers(between) {
		return true
	}
	if rule.VTExempt {
		if la.Function == tech.FuncPoly && e.Probe.VTCovers(a.Shape) {
			return true
		}
		if lb.Function == tech.FuncPoly && e.Probe.VTCovers(b.Shape) {
			return true
		}
	}
	return false
}

// neck checks the overlap of two connected shapes against the layer's
// minimum width. The neck is the larger extent of the overlap.
func (e *Evaluator) neck(a, b Candidate) (Violation, bool) {
	if !e.Kinds.Has(ViolMinWidth) {
		return Violation{}, false
	}
	rule, ok := e.Tech.MinWidthRule(a.Layer)
	if !ok {
		return Violation{}, false
	}
	ab, bb := a.Shape.Box, b.Shape.Box
	inter := ab.Intersect(bb)
	neck := inter.MaxDim()
	if neck >= rule.Value-geom.Eps || neck >= ab.MinDim()-geom.Eps || neck >= bb.MinDim()-geom.Eps {
		return Violation{}, false
	}
	probe := inter.Expand(rule.Value / 2).Intersect(ab.Union(bb))
	if e.Probe != nil && e.Probe.Covered(a.Layer, probe) {
		return Violation{}, false
	}
	return Violation{
		Kind:     ViolMinWidth,
		Severity: rule.Severity,
		Rule:     rule.Name,
		Message:  fmt.Sprintf("%s neck %g less than minimum width %g", a.Layer, neck, rule.Value),
		Expected: rule.Value,
		Actual:   neck,
		Layers:   []string{a.Layer},
		Shapes:   []geom.Shape{geom.BoxShape(inter)},
	}, true
}

// notch probes the gap between two connected shapes closer than the
// connected spacing rule. Both probe points must be filled by geometry on
// the layer.
func (e *Evaluator) notch(a, b Candidate, gap, dx, dy float64) (Violation, bool) {
	if !e.Kinds.Has(ViolNotch) {
		return Violation{}, false
	}
	ab, bb := a.Shape.Box, b.Shape.Box
	ctx := tech.Context{
		Width:    max(ab.MinDim(), bb.MinDim()),
		Length:   max(0, -min(dx, dy)),
		MultiCut: a.multiCut() && b.multiCut(),
	}
	rule, ok := e.Tech.SpacingRule(a.Layer, b.Layer, true, ctx)
	if !ok || gap >= rule.Value-geom.Eps {
		return Violation{}, false
	}
	p, q := notchProbe(ab, bb)
	if e.Probe != nil && e.Probe.PointCovered(a.Layer, p) && e.Probe.PointCovered(a.Layer, q) {
		return Violation{}, false
	}
	return Violation{
		Kind:     ViolNotch,
		Severity: rule.Severity,
		Rule:     rule.Name,
		Message:  fmt.Sprintf("%s notch %g less than %g", a.Layer, gap, rule.Value),
		Expected: rule.Value,
		Actual:   gap,
		Layers:   []string{a.Layer},
		Shapes:   []geom.Shape{a.Shape, b.Shape},
	}, true
}

// notchProbe returns the points one and two thirds across the gap between
// two disjoint boxes. When the boxes face each other the points lie on the
// centre line of the facing span; otherwise they lie on the diagonal
// between the nearest corners.
func notchProbe(a, b geom.Rect) (geom.Point, geom.Point) {
	var from, to geom.Point
	switch {
	case a.MaxX < b.MinX && overlapSpan(a.MinY, a.MaxY, b.MinY, b.MaxY):
		y := midSpan(a.MinY, a.MaxY, b.MinY, b.MaxY)
		from, to = geom.Pt(a.MaxX, y), geom.Pt(b.MinX, y)
	case b.MaxX < a.MinX && overlapSpan(a.MinY, a.MaxY, b.MinY, b.MaxY):
		y := midSpan(a.MinY, a.MaxY, b.MinY, b.MaxY)
		from, to = geom.Pt(a.MinX, y), geom.Pt(b.MaxX, y)
	case a.MaxY < b.MinY && overlapSpan(a.MinX, a.MaxX, b.MinX, b.MaxX):
		x := midSpan(a.MinX, a.MaxX, b.MinX, b.MaxX)
		from, to = geom.Pt(x, a.MaxY), geom.Pt(x, b.MinY)
	case b.MaxY < a.MinY && overlapSpan(a.MinX, a.MaxX, b.MinX, b.MaxX):
		x := midSpan(a.MinX, a.MaxX, b.MinX, b.MaxX)
		from, to = geom.Pt(x, a.MinY), geom.Pt(x, b.MaxY)
	default:
		from, to = nearestCorners(a, b)
	}
	return from.Lerp(to, 1.0/3), from.Lerp(to, 2.0/3)
}

func overlapSpan(a0, a1, b0, b1 float64) bool {
	return min(a1, b1)-max(a0, b0) > geom.Eps
}

func midSpan(a0, a1, b0, b1 float64) float64 {
	return (max(a0, b0) + min(a1, b1)) / 2
}

func nearestCorners(a, b geom.Rect) (geom.Point, geom.Point) {
	best := math.Inf(1)
	var from, to geom.Point
	for _, p := range a.Corners() {
		for _, q := range b.Corners() {
			if d := p.Dist(q); d < best {
				best, from, to = d, p, q
			}
		}
	}
	return from, to
}

// gapBox returns the box spanning the space between two boxes.
func gapBox(a, b geom.Rect) geom.Rect {
	return geom.R(min(a.MaxX, b.MaxX), min(a.MaxY, b.MaxY), max(a.MinX, b.MinX), max(a.MinY, b.MinY))
}

// cutSize checks two touching cuts on the same layer against the maximum
// cut array size.
func (e *Evaluator) cutSize(a, b Candidate) (Violation, bool) {
	if !e.Kinds.Has(ViolCutSize) || a.Layer != b.Layer {
		return Violation{}, false
	}
	if l, ok := e.Tech.Layer(a.Layer); !ok || l.Function != tech.FuncCut {
		return Violation{}, false
	}
	rule, ok := e.Tech.CutSizeRule(a.Layer)
	if !ok {
		return Violation{}, false
	}
	ab, bb := a.Shape.Bounds(), b.Shape.Bounds()
	if gap, _, _ := geom.Gap(ab, bb); gap > 0 {
		return Violation{}, false
	}
	u := ab.Union(bb)
	var expected, actual float64
	switch {
	case u.Width() > rule.Value+geom.Eps:
		expected, actual = rule.Value, u.Width()
	case u.Height() > rule.Value2+geom.Eps:
		expected, actual = rule.Value2, u.Height()
	default:
		return Violation{}, false
	}
	return Violation{
		Kind:     ViolCutSize,
		Severity: rule.Severity,
		Rule:     rule.Name,
		Message:  fmt.Sprintf("%s cut array %g exceeds maximum %g", a.Layer, actual, expected),
		Expected: expected,
		Actual:   actual,
		Layers:   []string{a.Layer},
		Shapes:   []geom.Shape{geom.BoxShape(u)},
	}, true
}

func (e *Evaluator) spacingViolation(rule tech.Rule, a, b Candidate, actual float64) Violation {
	what := "spacing"
	if actual <= 0 && a.Layer == b.Layer {
		what = "short"
	}
	return Violation{
		Kind:     ViolSpacing,
		Severity: rule.Severity,
		Rule:     rule.Name,
		Message:  fmt.Sprintf("%s %s %g less than %g", layerPair(a.Layer, b.Layer), what, actual, rule.Value),
		Expected: rule.Value,
		Actual:   actual,
		Layers:   sortedLayers(a.Layer, b.Layer),
		Shapes:   []geom.Shape{a.Shape, b.Shape},
	}
}
