package drc

import (
	"context"

	"github.com/roach88/hdrc/internal/geom"
	"github.com/roach88/hdrc/internal/layout"
)

// Hit is one primitive found by a hierarchical search. Shape is in the
// coordinates of the checking cell and Net is a global net number.
type Hit struct {
	Shape  geom.Shape
	Layer  string
	Net    int
	Prim   *layout.Primitive
	Cell   layout.CellID
	G      int
	Xf     geom.Transform
	Local  bool
	Handle layout.Handle
}

// visitFunc receives hits. Returning false stops the search.
type visitFunc func(Hit) (bool, error)

// walk visits the primitives of occurrence g of c, placed by xf, whose
// bounds overlap bound. bound is in checking-cell coordinates. Hits fully
// inside excl are skipped. It returns false when fn stopped the search.
func (t *task) walk(ctx context.Context, c *layout.Cell, g int, xf geom.Transform, bound geom.Rect, excl *geom.Region, local bool, fn visitFunc) (bool, error) {
	if ctx.Err() != nil {
		return false, abortErr(ctx)
	}
	var err error
	more := c.Index().Search(xf.Inverse().ApplyRect(bound), func(e layout.Entry) bool {
		if ctx.Err() != nil {
			err = abortErr(ctx)
			return false
		}
		var cont bool
		switch e.Kind {
		case layout.ItemPrimitive:
			cont, err = t.visitPrim(c, c.Prims[e.Index], g, xf, excl, local, fn)
		case layout.ItemInstance:
			cont, err = t.walkInst(ctx, c.Insts[e.Index], g, xf, bound, excl, fn)
		default:
			cont = true
		}
		return cont && err == nil
	})
	if err != nil {
		return false, err
	}
	return more, nil
}

func (t *task) visitPrim(c *layout.Cell, p *layout.Primitive, g int, xf geom.Transform, excl *geom.Region, local bool, fn visitFunc) (bool, error) {
	if p.Shape.Degenerate() {
		return true, nil
	}
	shape := p.Shape
	if !xf.IsIdentity() {
		shape = shape.Transform(xf)
	}
	if excl != nil && excl.Covers(shape) {
		return true, nil
	}
	net, err := t.num.NetNumber(c.ID, p.Net, g)
	if err != nil {
		return false, err
	}
	return fn(Hit{
		Shape:  shape,
		Layer:  p.Layer,
		Net:    net,
		Prim:   p,
		Cell:   c.ID,
		G:      g,
		Xf:     xf,
		Local:  local,
		Handle: t.lib.PrimHandle(p.ID),
	})
}

// walkInst descends into inst, placed in occurrence g of its parent.
func (t *task) walkInst(ctx context.Context, inst *layout.Instance, g int, xf geom.Transform, bound geom.Rect, excl *geom.Region, fn visitFunc) (bool, error) {
	cg, err := t.num.GlobalIndex(inst, g)
	if err != nil {
		return false, err
	}
	child := t.lib.Cell(inst.Cell)
	return t.walk(ctx, child, cg, xf.Compose(inst.Xf), bound, excl, false, fn)
}

// exclusion returns the exclusion region of c in its own coordinates:
// its own exclusion shapes plus those of every checked sub-cell. The
// result is nil when c has none.
func (t *task) exclusion(c *layout.Cell) *geom.Region {
	if r, ok := t.excl[c.ID]; ok {
		return r
	}
	r := geom.NewRegion(c.Exclusions...)
	for _, inst := range c.Insts {
		if skipInstance(t.lib, inst) {
			continue
		}
		r.AddRegion(t.exclusion(t.lib.Cell(inst.Cell)), inst.Xf)
	}
	if r.IsEmpty() {
		r = nil
	}
	t.excl[c.ID] = r
	return r
}

// instBounds returns the bounds of inst in its parent's coordinates.
func (t *task) instBounds(inst *layout.Instance) geom.Rect {
	return inst.Xf.ApplyRect(t.lib.Cell(inst.Cell).Bounds())
}

// cellProber answers coverage questions about one checking cell by
// searching its hierarchy at occurrence 0. Exclusion regions are ignored.
// The first search error is kept and every later question is answered
// without searching.
type cellProber struct {
	ctx  context.Context
	t    *task
	cell *layout.Cell
	err  error
}

func (p *cellProber) collect(box geom.Rect, keep func(Hit) bool) *geom.Region {
	if p.err != nil {
		return geom.NewRegion()
	}
	p.t.stats.Probes++
	r := geom.NewRegion()
	_, err := p.t.walk(p.ctx, p.cell, 0, geom.Identity(), box, nil, true, func(h Hit) (bool, error) {
		if keep(h) {
			r.Add(h.Shape)
		}
		return true, nil
	})
	if err != nil {
		p.err = err
		return geom.NewRegion()
	}
	return r
}

// Err returns the error that stopped the first failed search.
func (p *cellProber) Err() error { return p.err }

// Covered reports whether shapes on layer cover box.
func (p *cellProber) Covered(layer string, box geom.Rect) bool {
	if box.IsEmpty() {
		return false
	}
	r := p.collect(box, func(h Hit) bool { return h.Layer == layer })
	return r.CoversRect(box)
}

// PointCovered reports whether a shape on layer contains pt.
func (p *cellProber) PointCovered(layer string, pt geom.Point) bool {
	box := geom.Rect{MinX: pt.X, MinY: pt.Y, MaxX: pt.X, MaxY: pt.Y}
	r := p.collect(box, func(h Hit) bool { return h.Layer == layer })
	return r.ContainsPoint(pt)
}

// TransistorCovers reports whether transistor primitives cover box.
func (p *cellProber) TransistorCovers(box geom.Rect) bool {
	r := p.collect(box, func(h Hit) bool { return h.Prim.Kind == layout.KindTransistor })
	return r.CoversRect(box)
}

// VTCovers reports whether threshold-voltage implant layers cover s.
func (p *cellProber) VTCovers(s geom.Shape) bool {
	r := p.collect(s.Bounds(), func(h Hit) bool {
		l, ok := p.t.tech.Layer(h.Layer)
		return ok && l.VT
	})
	return r.Covers(s)
}

var _ Prober = (*cellProber)(nil)

