package drc

import (
	"context"
	"log/slog"

	"github.com/roach88/hdrc/internal/geom"
	"github.com/roach88/hdrc/internal/layout"
	"github.com/roach88/hdrc/internal/tech"
)

// NodeSizeGroup names the task that checks minimum node sizes.
const NodeSizeGroup = "node-size"

// task checks one layer group, or node sizes, over the whole hierarchy.
// Everything it owns is private to it; it shares the library, the
// technology and the sink with other tasks.
type task struct {
	group      string
	nodeSize   bool
	lib        *layout.Library
	tech       *tech.Technology
	num        *Numbering
	kinds      KindMask
	active     map[string]bool
	exhaustive bool
	sink       Sink
	log        *slog.Logger

	cache  *InteractionCache
	excl   map[layout.CellID]*geom.Region
	crops  map[layout.PrimID]cropResult
	radius map[string]float64

	// stoppedAt maps a subject whose search ended at its first violation
	// to the local partner of that violation.
	stoppedAt map[layout.PrimID]layout.PrimID
	pad    float64

	// subset restricts subjects to changed objects of the top cell.
	subset *changeSet

	stats          Stats
	cellViolations int
}

type cropResult struct {
	shape   geom.Shape
	covered bool
}

// changeSet holds the objects of the top cell named as changed.
type changeSet struct {
	prims map[layout.PrimID]bool
	insts map[layout.InstID]bool
	area  []geom.Rect
}

func (t *task) eligible(layer string) bool {
	return t.active[layer] && t.tech.GroupOf(layer) >= t.group
}

// owns reports whether the pair of layers belongs to this task: both are
// active and the lower of their groups is the task's.
func (t *task) owns(la, lb string) bool {
	if !t.active[la] || !t.active[lb] {
		return false
	}
	return min(t.tech.GroupOf(la), t.tech.GroupOf(lb)) == t.group
}

func (t *task) ownGroup(layer string) bool {
	return t.active[layer] && t.tech.GroupOf(layer) == t.group
}

// isSubject reports whether p is checked against its surroundings when c
// is checked.
func (t *task) isSubject(c *layout.Cell, p *layout.Primitive) bool {
	if !t.eligible(p.Layer) {
		return false
	}
	if t.subset == nil {
		return true
	}
	if c.ID != t.num.Top() {
		return false
	}
	if t.subset.prims[p.ID] {
		return true
	}
	b := p.Shape.Bounds()
	for _, r := range t.subset.area {
		if r.Overlaps(b) {
			return true
		}
	}
	return false
}

func (t *task) layerRadius(layer string) float64 {
	if r, ok := t.radius[layer]; ok {
		return r
	}
	r := t.tech.MaxSurroundDistance(layer, t.lib.MaxShapeSize())
	t.radius[layer] = r
	return r
}

func (t *task) report(c *layout.Cell, v Violation) {
	v.Cell = c.Name
	v.Group = t.group
	t.cellViolations++
	t.stats.Violations++
	t.sink.Report(v)
}

// crop returns p's shape cropped against touching same-layer geometry of
// its own net with a higher crop rank, in the coordinates of p's cell.
func (t *task) crop(c *layout.Cell, p *layout.Primitive) cropResult {
	if r, ok := t.crops[p.ID]; ok {
		return r
	}
	res := cropResult{shape: p.Shape}
	if p.Shape.IsBox() {
		box := p.Shape.Box
		rank := p.Kind.CropRank()
		c.Index().Search(p.Shape.Bounds(), func(e layout.Entry) bool {
			if e.Kind != layout.ItemPrimitive {
				return true
			}
			q := c.Prims[e.Index]
			if q.ID == p.ID || q.Layer != p.Layer || q.Net != p.Net || !q.Shape.IsBox() {
				return true
			}
			qr := q.Kind.CropRank()
			if qr < rank || (qr == rank && q.ID < p.ID) {
				return true
			}
			var covered bool
			box, covered = geom.CropBox(box, q.Shape.Box)
			if covered {
				res.covered = true
				return false
			}
			return true
		})
		res.shape = geom.BoxShape(box)
	}
	t.crops[p.ID] = res
	return res
}

// hitShape returns the cropped shape of a hit in checking coordinates.
func (t *task) hitShape(h Hit) (geom.Shape, bool) {
	cr := t.crop(t.lib.Cell(h.Cell), h.Prim)
	if cr.covered {
		return geom.Shape{}, false
	}
	if h.Xf.IsIdentity() {
		return cr.shape, true
	}
	return cr.shape.Transform(h.Xf), true
}

// checkCell checks c once, at occurrence 0, in its own coordinates.
func (t *task) checkCell(ctx context.Context, c *layout.Cell) error {
	excl := t.exclusion(c)
	probe := &cellProber{ctx: ctx, t: t, cell: c}
	ev := &Evaluator{Tech: t.tech, Probe: probe, Kinds: t.kinds}

	if t.nodeSize {
		return t.checkNodeSizes(ctx, c, excl)
	}
	for _, p := range c.Prims {
		if ctx.Err() != nil {
			return abortErr(ctx)
		}
		if !t.isSubject(c, p) {
			continue
		}
		if excl != nil && excl.Covers(p.Shape) {
			continue
		}
		if t.ownGroup(p.Layer) {
			if err := t.checkMinWidth(c, p, probe); err != nil {
				return err
			}
			if err := t.checkSurround(c, p, probe); err != nil {
				return err
			}
		}
		if err := t.checkPrimitive(ctx, c, p, ev, excl); err != nil {
			return err
		}
	}
	if err := t.checkMinArea(ctx, c, excl); err != nil {
		return err
	}
	return t.checkInstancePairs(ctx, c, ev, excl)
}

// checkPrimitive searches around p and evaluates every pair it owns. Pairs
// of two local subjects are evaluated from the one with the lower id,
// unless its search ended at a violation before reaching the other.
func (t *task) checkPrimitive(ctx context.Context, c *layout.Cell, p *layout.Primitive, ev *Evaluator, excl *geom.Region) error {
	cr := t.crop(c, p)
	if cr.covered {
		return nil
	}
	net, err := t.num.NetNumber(c.ID, p.Net, 0)
	if err != nil {
		return err
	}
	subject := Candidate{Shape: cr.shape, Layer: p.Layer, Net: net, Prim: p}
	self := t.lib.PrimHandle(p.ID)

	t.stats.Searches++
	bound := p.Shape.Bounds().Expand(t.layerRadius(p.Layer))
	_, err = t.walk(ctx, c, 0, geom.Identity(), bound, excl, true, func(h Hit) (bool, error) {
		if h.Handle == self || !t.owns(p.Layer, h.Layer) {
			return true, nil
		}
		if h.Local && h.Prim.ID < p.ID && t.isSubject(c, h.Prim) && t.evaluatedFrom(h.Prim.ID, p.ID) {
			return true, nil
		}
		shape, ok := t.hitShape(h)
		if !ok {
			return true, nil
		}
		vs := ev.Evaluate(subject, Candidate{Shape: shape, Layer: h.Layer, Net: h.Net, Prim: h.Prim})
		if err := ev.Probe.Err(); err != nil {
			return false, err
		}
		for _, v := range vs {
			t.report(c, v)
		}
		if len(vs) == 0 || t.exhaustive {
			return true, nil
		}
		if h.Local {
			t.stoppedAt[p.ID] = h.Prim.ID
		} else {
			t.stoppedAt[p.ID] = p.ID
		}
		return false, nil
	})
	return err
}

// evaluatedFrom reports whether the search of lower subject lo covered
// its pair with hi: it either ran to completion or stopped at hi.
func (t *task) evaluatedFrom(lo, hi layout.PrimID) bool {
	at, stopped := t.stoppedAt[lo]
	return !stopped || at == hi
}

// checkInstancePairs compares the contents of every pair of overlapping
// sub-cell instances of c. Instances of the same cell are compared too:
// they are different placements.
func (t *task) checkInstancePairs(ctx context.Context, c *layout.Cell, ev *Evaluator, excl *geom.Region) error {
	for i, a := range c.Insts {
		if skipInstance(t.lib, a) {
			continue
		}
		var partners []*layout.Instance
		c.Index().Search(t.instBounds(a).Expand(t.pad), func(e layout.Entry) bool {
			if e.Kind == layout.ItemInstance && e.Index > i {
				partners = append(partners, c.Insts[e.Index])
			}
			return true
		})
		for _, b := range partners {
			if ctx.Err() != nil {
				return abortErr(ctx)
			}
			if t.subset != nil && !t.subset.insts[a.ID] && !t.subset.insts[b.ID] {
				continue
			}
			if t.cache != nil && t.cache.Seen(PairKey(c.ID, a, b)) {
				t.stats.CacheHits++
				continue
			}
			t.stats.Searches++
			if err := t.compareInstances(ctx, c, a, b, ev, excl); err != nil {
				return err
			}
		}
	}
	return nil
}

// compareInstances walks a's contents near b and searches b around each
// shape found.
func (t *task) compareInstances(ctx context.Context, c *layout.Cell, a, b *layout.Instance, ev *Evaluator, excl *geom.Region) error {
	near := t.instBounds(b).Expand(t.pad)
	_, err := t.walkInst(ctx, a, 0, geom.Identity(), near, excl, func(ha Hit) (bool, error) {
		if !t.eligible(ha.Layer) {
			return true, nil
		}
		sa, ok := t.hitShape(ha)
		if !ok {
			return true, nil
		}
		ca := Candidate{Shape: sa, Layer: ha.Layer, Net: ha.Net, Prim: ha.Prim}
		bound := ha.Shape.Bounds().Expand(t.layerRadius(ha.Layer))
		return t.walkInst(ctx, b, 0, geom.Identity(), bound, excl, func(hb Hit) (bool, error) {
			if !t.owns(ha.Layer, hb.Layer) {
				return true, nil
			}
			sb, ok := t.hitShape(hb)
			if !ok {
				return true, nil
			}
			vs := ev.Evaluate(ca, Candidate{Shape: sb, Layer: hb.Layer, Net: hb.Net, Prim: hb.Prim})
			if err := ev.Probe.Err(); err != nil {
				return false, err
			}
			for _, v := range vs {
				t.report(c, v)
			}
			return true, nil
		})
	})
	return err
}
