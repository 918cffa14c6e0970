package testutil

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/hdrc/internal/geom"
	"github.com/roach88/hdrc/internal/layout"
	"github.com/roach88/hdrc/internal/tech"
)

// Tech returns the technology used by package tests. Its rules match the
// demo180 CUE deck in internal/tech/testdata/demo.
func Tech(tb testing.TB) *tech.Technology {
	tb.Helper()
	layers := []tech.Layer{
		{Name: "metal1", Function: tech.FuncMetal},
		{Name: "metal2", Function: tech.FuncMetal, Group: "metal2"},
		{Name: "via1", Function: tech.FuncCut},
		{Name: "poly", Function: tech.FuncPoly},
		{Name: "active", Function: tech.FuncActive},
		{Name: "vtn", Function: tech.FuncImplant, VT: true},
		{Name: "nwell", Function: tech.FuncWell},
	}
	pair := func(a, b string) [2]string { return [2]string{a, b} }
	one := func(a string) [2]string { return [2]string{a} }
	rules := []tech.Rule{
		{Name: "M1.S.1", Kind: tech.KindSpacing, Layers: pair("metal1", "metal1"), Value: 3},
		{Name: "M1.S.2", Kind: tech.KindSpacing, Layers: pair("metal1", "metal1"), Value: 5,
			Connectivity: tech.DifferentNet, Condition: "width >= 10 && length >= 10"},
		{Name: "M1.W.1", Kind: tech.KindMinWidth, Layers: one("metal1"), Value: 3},
		{Name: "M1.A.1", Kind: tech.KindMinArea, Layers: one("metal1"), Value: 10},
		{Name: "M2.S.1", Kind: tech.KindSpacing, Layers: pair("metal2", "metal2"), Value: 3},
		{Name: "M2.W.1", Kind: tech.KindMinWidth, Layers: one("metal2"), Value: 3},
		{Name: "M1M2.E.1", Kind: tech.KindEdge, Layers: pair("metal1", "metal2"), Value: 1, Severity: tech.SeverityWarning},
		{Name: "V1.S.1", Kind: tech.KindSpacing, Layers: pair("via1", "via1"), Value: 2},
		{Name: "V1.S.2", Kind: tech.KindSpacing, Layers: pair("via1", "via1"), Value: 3, MultiCut: true},
		{Name: "V1.W.1", Kind: tech.KindMinWidth, Layers: one("via1"), Value: 1},
		{Name: "V1.EN.1", Kind: tech.KindSurround, Layers: pair("metal1", "via1"), Value: 1},
		{Name: "V1.EN.2", Kind: tech.KindSurround, Layers: pair("metal2", "via1"), Value: 1},
		{Name: "V1.C.1", Kind: tech.KindCutSize, Layers: one("via1"), Value: 4},
		{Name: "PO.S.1", Kind: tech.KindSpacing, Layers: pair("poly", "poly"), Value: 2},
		{Name: "PO.S.VT", Kind: tech.KindSpacing, Layers: pair("poly", "poly"), Value: 4,
			Connectivity: tech.DifferentNet, VTExempt: true},
		{Name: "PO.W.1", Kind: tech.KindMinWidth, Layers: one("poly"), Value: 1},
		{Name: "AA.S.1", Kind: tech.KindSpacing, Layers: pair("active", "active"), Value: 3},
		{Name: "PO.AA.1", Kind: tech.KindSpacing, Layers: pair("poly", "active"), Value: 1},
		{Name: "NS.CT.1", Kind: tech.KindNodeSize, NodeType: "contact", Value: 2},
	}
	tc, err := tech.New("fixture", layers, rules)
	require.NoError(tb, err)
	return tc
}

// Builder assembles a layout.Library for a test.
type Builder struct {
	tb  testing.TB
	Lib *layout.Library
}

// NewBuilder returns a builder over an empty library.
func NewBuilder(tb testing.TB) *Builder {
	return &Builder{tb: tb, Lib: layout.NewLibrary()}
}

// Cell adds a cell.
func (b *Builder) Cell(name string) *CellBuilder {
	b.tb.Helper()
	c, err := b.Lib.AddCell(name)
	require.NoError(b.tb, err)
	return &CellBuilder{b: b, C: c}
}

// Finalize finalizes the library and fails the test on error.
func (b *Builder) Finalize() *layout.Library {
	b.tb.Helper()
	require.NoError(b.tb, b.Lib.Finalize())
	return b.Lib
}

// CellBuilder adds content to one cell.
type CellBuilder struct {
	b *Builder
	C *layout.Cell
}

// Net returns the index of the named net, adding it when missing.
func (cb *CellBuilder) Net(name string, exported bool) int {
	return cb.C.AddNet(name, exported)
}

func (cb *CellBuilder) netIndex(name string) int {
	if name == "" {
		return layout.NoNet
	}
	if i, ok := cb.C.NetIndex(name); ok {
		return i
	}
	return cb.C.AddNet(name, false)
}

// Box adds a node primitive. An empty net leaves the net to Finalize.
func (cb *CellBuilder) Box(layer, net string, x0, y0, x1, y1 float64) *layout.Primitive {
	return cb.Prim(layout.KindNode, layer, net, geom.BoxShape(geom.R(x0, y0, x1, y1)))
}

// Wire adds a wire primitive.
func (cb *CellBuilder) Wire(layer, net string, x0, y0, x1, y1 float64) *layout.Primitive {
	return cb.Prim(layout.KindWire, layer, net, geom.BoxShape(geom.R(x0, y0, x1, y1)))
}

// Polygon adds a node primitive with a polygon outline.
func (cb *CellBuilder) Polygon(layer, net string, pts ...geom.Point) *layout.Primitive {
	return cb.Prim(layout.KindNode, layer, net, geom.PolygonShape(pts))
}

// Prim adds a primitive of any kind.
func (cb *CellBuilder) Prim(kind layout.PrimKind, layer, net string, s geom.Shape) *layout.Primitive {
	return cb.b.Lib.AddPrimitive(cb.C, layout.Primitive{
		Kind:  kind,
		Layer: layer,
		Shape: s,
		Net:   cb.netIndex(net),
	})
}

// Place instantiates child. conns maps child net names to parent net
// names; child nets named there are exported.
func (cb *CellBuilder) Place(name string, child *CellBuilder, xf geom.Transform, conns map[string]string) *layout.Instance {
	names := make([]string, 0, len(conns))
	for cn := range conns {
		names = append(names, cn)
	}
	sort.Strings(names)
	m := make(map[int]int, len(conns))
	for _, cn := range names {
		m[child.Net(cn, true)] = cb.netIndex(conns[cn])
	}
	return cb.b.Lib.AddInstance(cb.C, child.C.ID, name, xf, m)
}

// Exclude marks a box of the cell as excluded from checking.
func (cb *CellBuilder) Exclude(x0, y0, x1, y1 float64) {
	cb.b.Lib.AddExclusion(cb.C, geom.BoxShape(geom.R(x0, y0, x1, y1)))
}

// Revise sets the cell's revision.
func (cb *CellBuilder) Revise(rev int64) {
	cb.b.Lib.SetRevision(cb.C, rev)
}
