package drc

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/roach88/hdrc/internal/geom"
	"github.com/roach88/hdrc/internal/layout"
)

// bisectSteps bounds the search for the actual enclosure of a surround
// violation.
const bisectSteps = 40

// checkMinWidth reports p when it is narrower than the layer's minimum
// width. A narrow box passes when other geometry on the layer widens it to
// the minimum.
func (t *task) checkMinWidth(c *layout.Cell, p *layout.Primitive, probe Prober) error {
	if !t.kinds.Has(ViolMinWidth) {
		return nil
	}
	rule, ok := t.tech.MinWidthRule(p.Layer)
	if !ok {
		return nil
	}
	w := p.Shape.Width()
	if w >= rule.Value-geom.Eps {
		return nil
	}
	if p.Shape.IsBox() && probe.Covered(p.Layer, widen(p.Shape.Box, rule.Value)) {
		return nil
	}
	if err := probe.Err(); err != nil {
		return err
	}
	t.report(c, Violation{
		Kind:     ViolMinWidth,
		Severity: rule.Severity,
		Rule:     rule.Name,
		Message:  fmt.Sprintf("%s width %g less than %g", p.Layer, roundMicro(w), rule.Value),
		Expected: rule.Value,
		Actual:   roundMicro(w),
		Layers:   []string{p.Layer},
		Shapes:   []geom.Shape{p.Shape},
	})
	return nil
}

// widen grows b symmetrically along its narrow axis to width w.
func widen(b geom.Rect, w float64) geom.Rect {
	c := b.Center()
	if b.Width() <= b.Height() {
		b.MinX, b.MaxX = c.X-w/2, c.X+w/2
	} else {
		b.MinY, b.MaxY = c.Y-w/2, c.Y+w/2
	}
	return b
}

// checkSurround reports every surround rule whose outer layer does not
// enclose p by the rule value.
func (t *task) checkSurround(c *layout.Cell, p *layout.Primitive, probe Prober) error {
	if !t.kinds.Has(ViolSurround) {
		return nil
	}
	box := p.Shape.Bounds()
	for _, rule := range t.tech.SurroundRules(p.Layer) {
		outer := rule.Layers[0]
		if !t.active[outer] {
			continue
		}
		if probe.Covered(outer, box.Expand(rule.Value)) {
			continue
		}
		actual := 0.0
		if probe.Covered(outer, box) {
			lo, hi := 0.0, rule.Value
			for i := 0; i < bisectSteps && hi-lo > geom.Eps; i++ {
				mid := (lo + hi) / 2
				if probe.Covered(outer, box.Expand(mid)) {
					lo = mid
				} else {
					hi = mid
				}
			}
			actual = roundMicro(lo)
		}
		if err := probe.Err(); err != nil {
			return err
		}
		t.report(c, Violation{
			Kind:     ViolSurround,
			Severity: rule.Severity,
			Rule:     rule.Name,
			Message:  fmt.Sprintf("%s enclosure of %s %g less than %g", outer, p.Layer, actual, rule.Value),
			Expected: rule.Value,
			Actual:   actual,
			Layers:   sortedLayers(outer, p.Layer),
			Shapes:   []geom.Shape{p.Shape},
		})
	}
	return nil
}

// checkMinArea groups the subjects of c into clusters of touching
// same-layer primitives on one net and reports clusters smaller than the
// layer's minimum area. Sub-cell geometry touching a cluster on the same
// global net counts towards its area.
func (t *task) checkMinArea(ctx context.Context, c *layout.Cell, excl *geom.Region) error {
	if !t.kinds.Has(ViolMinArea) {
		return nil
	}
	var members []int
	for i, p := range c.Prims {
		if !t.ownGroup(p.Layer) || p.Shape.Degenerate() {
			continue
		}
		if _, ok := t.tech.MinAreaRule(p.Layer); ok {
			members = append(members, i)
		}
	}
	if len(members) == 0 {
		return nil
	}

	parent := make(map[int]int, len(members))
	for _, i := range members {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}
	for _, i := range members {
		p := c.Prims[i]
		c.Index().Search(p.Shape.Bounds(), func(e layout.Entry) bool {
			if e.Kind != layout.ItemPrimitive || e.Index == i {
				return true
			}
			q := c.Prims[e.Index]
			if _, member := parent[e.Index]; !member || q.Layer != p.Layer || q.Net != p.Net {
				return true
			}
			if d, _ := geom.Separation(p.Shape, q.Shape); d <= geom.Eps {
				if ri, rq := find(i), find(e.Index); ri != rq {
					parent[max(ri, rq)] = min(ri, rq)
				}
			}
			return true
		})
	}

	clusters := make(map[int][]int)
	for _, i := range members {
		r := find(i)
		clusters[r] = append(clusters[r], i)
	}
	roots := make([]int, 0, len(clusters))
	for r := range clusters {
		roots = append(roots, r)
	}
	sort.Ints(roots)

	for _, r := range roots {
		if ctx.Err() != nil {
			return abortErr(ctx)
		}
		if err := t.checkCluster(ctx, c, clusters[r], excl); err != nil {
			return err
		}
	}
	return nil
}

func (t *task) checkCluster(ctx context.Context, c *layout.Cell, cluster []int, excl *geom.Region) error {
	first := c.Prims[cluster[0]]
	subject := false
	shapes := make([]geom.Shape, 0, len(cluster))
	handles := make(map[layout.Handle]bool, len(cluster))
	bounds := geom.EmptyRect()
	for _, i := range cluster {
		p := c.Prims[i]
		subject = subject || t.isSubject(c, p)
		shapes = append(shapes, p.Shape)
		handles[t.lib.PrimHandle(p.ID)] = true
		bounds = bounds.Union(p.Shape.Bounds())
	}
	if !subject {
		return nil
	}
	if excl != nil && excl.Covers(geom.BoxShape(bounds)) {
		return nil
	}
	rule, _ := t.tech.MinAreaRule(first.Layer)
	if geom.UnionArea(shapes) >= rule.Value-geom.Eps {
		return nil
	}

	net, err := t.num.NetNumber(c.ID, first.Net, 0)
	if err != nil {
		return err
	}
	all := append([]geom.Shape(nil), shapes...)
	for _, s := range shapes {
		_, err := t.walk(ctx, c, 0, geom.Identity(), s.Bounds(), nil, true, func(h Hit) (bool, error) {
			if h.Local || handles[h.Handle] || h.Layer != first.Layer || h.Net != net {
				return true, nil
			}
			if d, _ := geom.Separation(s, h.Shape); d <= geom.Eps {
				handles[h.Handle] = true
				all = append(all, h.Shape)
			}
			return true, nil
		})
		if err != nil {
			return err
		}
	}
	area := geom.UnionArea(all)
	if area >= rule.Value-geom.Eps {
		return nil
	}
	t.report(c, Violation{
		Kind:     ViolMinArea,
		Severity: rule.Severity,
		Rule:     rule.Name,
		Message:  fmt.Sprintf("%s area %g less than %g", first.Layer, roundMicro(area), rule.Value),
		Expected: rule.Value,
		Actual:   roundMicro(area),
		Layers:   []string{first.Layer},
		Shapes:   shapes,
	})
	return nil
}

// checkNodeSizes reports primitives smaller than the minimum size of their
// node type. Extents are compared smaller to smaller, larger to larger.
func (t *task) checkNodeSizes(ctx context.Context, c *layout.Cell, excl *geom.Region) error {
	for _, p := range c.Prims {
		if ctx.Err() != nil {
			return abortErr(ctx)
		}
		if p.NodeType == "" {
			continue
		}
		if t.subset != nil && !t.subset.prims[p.ID] {
			continue
		}
		rule, ok := t.tech.NodeSizeRule(p.NodeType)
		if !ok {
			continue
		}
		if excl != nil && excl.Covers(p.Shape) {
			continue
		}
		b := p.Shape.Bounds()
		small, large := b.MinDim(), b.MaxDim()
		wantSmall, wantLarge := min(rule.Value, rule.Value2), max(rule.Value, rule.Value2)
		var expected, actual float64
		switch {
		case small < wantSmall-geom.Eps:
			expected, actual = wantSmall, small
		case large < wantLarge-geom.Eps:
			expected, actual = wantLarge, large
		default:
			continue
		}
		t.report(c, Violation{
			Kind:     ViolNodeSize,
			Severity: rule.Severity,
			Rule:     rule.Name,
			Message:  fmt.Sprintf("%s %s size %g less than %g", p.NodeType, p.Layer, actual, expected),
			Expected: expected,
			Actual:   actual,
			Layers:   []string{p.Layer},
			Shapes:   []geom.Shape{p.Shape},
		})
	}
	return nil
}

func roundMicro(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
