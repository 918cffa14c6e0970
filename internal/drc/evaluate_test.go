package drc

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hdrc/internal/geom"
	"github.com/roach88/hdrc/internal/layout"
	"github.com/roach88/hdrc/internal/testutil"
)

// stubProber answers every question with a fixed value.
type stubProber struct {
	covered    bool
	points     bool
	transistor bool
	vt         bool
	err        error
}

func (s stubProber) Covered(string, geom.Rect) bool       { return s.covered }
func (s stubProber) PointCovered(string, geom.Point) bool { return s.points }
func (s stubProber) TransistorCovers(geom.Rect) bool      { return s.transistor }
func (s stubProber) VTCovers(geom.Shape) bool             { return s.vt }
func (s stubProber) Err() error                           { return s.err }

func box(layer string, net int, x0, y0, x1, y1 float64) Candidate {
	return Candidate{Shape: geom.BoxShape(geom.R(x0, y0, x1, y1)), Layer: layer, Net: net}
}

func cut(net int, x0, y0, x1, y1 float64) Candidate {
	c := box("via1", net, x0, y0, x1, y1)
	c.Prim = &layout.Primitive{Layer: "via1", MultiCut: true}
	return c
}

func evaluator(t *testing.T, p Prober) *Evaluator {
	return &Evaluator{Tech: testutil.Tech(t), Probe: p, Kinds: AllKinds}
}

func TestEvaluate_SpacingBoundary(t *testing.T) {
	ev := evaluator(t, stubProber{})

	assert.Empty(t, ev.Evaluate(box("metal1", 1, 0, 0, 3, 10), box("metal1", 2, 6, 0, 9, 10)),
		"a gap equal to the rule passes")

	vs := ev.Evaluate(box("metal1", 1, 0, 0, 3, 10), box("metal1", 2, 5, 0, 8, 10))
	require.Len(t, vs, 1)
	v := vs[0]
	assert.Equal(t, ViolSpacing, v.Kind)
	assert.Equal(t, "M1.S.1", v.Rule)
	assert.Equal(t, 2.0, v.Actual)
	assert.Equal(t, 3.0, v.Expected)
	assert.Equal(t, "metal1 spacing 2 less than 3", v.Message)
	assert.Equal(t, []string{"metal1", "metal1"}, v.Layers)
	assert.Equal(t, geom.R(0, 0, 8, 10), v.Bounds())
}

func TestEvaluate_Short(t *testing.T) {
	vs := evaluator(t, stubProber{}).Evaluate(box("metal1", 1, 0, 0, 3, 10), box("metal1", 2, 2, 0, 5, 10))
	require.Len(t, vs, 1)
	assert.Equal(t, 0.0, vs[0].Actual)
	assert.Equal(t, "metal1 short 0 less than 3", vs[0].Message)
}

func TestEvaluate_DifferentLayersMayOverlap(t *testing.T) {
	vs := evaluator(t, stubProber{}).Evaluate(box("metal1", 1, 0, 0, 3, 10), box("metal2", 2, 1, 0, 4, 10))
	assert.Empty(t, vs)
}

func TestEvaluate_ConditionalRule(t *testing.T) {
	ev := evaluator(t, stubProber{})
	vs := ev.Evaluate(box("metal1", 1, 0, 0, 10, 20), box("metal1", 2, 14, 0, 24, 20))
	require.Len(t, vs, 1)
	assert.Equal(t, "M1.S.2", vs[0].Rule)
	assert.Equal(t, 5.0, vs[0].Expected)

	assert.Empty(t, ev.Evaluate(box("metal1", 1, 0, 0, 3, 20), box("metal1", 2, 7, 0, 10, 20)),
		"narrow shapes use the base rule")
}

func TestEvaluate_EdgeRuleOnlyForFacingShapes(t *testing.T) {
	ev := evaluator(t, stubProber{})

	vs := ev.Evaluate(box("metal1", 1, 0, 0, 3, 10), box("metal2", 2, 3.5, 0, 6.5, 10))
	require.Len(t, vs, 1)
	assert.Equal(t, "M1M2.E.1", vs[0].Rule)
	assert.Equal(t, "warning", vs[0].Severity.String())
	assert.Equal(t, "metal1/metal2 spacing 0.5 less than 1", vs[0].Message)

	assert.Empty(t, ev.Evaluate(box("metal1", 1, 0, 0, 3, 3), box("metal2", 2, 3.5, 3.5, 6.5, 6.5)))
}

func TestEvaluate_MultiCut(t *testing.T) {
	ev := evaluator(t, stubProber{})

	single := ev.Evaluate(box("via1", 1, 0, 0, 1, 1), box("via1", 2, 3.5, 0, 4.5, 1))
	assert.Empty(t, single)

	vs := ev.Evaluate(cut(1, 0, 0, 1, 1), cut(2, 3.5, 0, 4.5, 1))
	require.Len(t, vs, 1)
	assert.Equal(t, "V1.S.2", vs[0].Rule)
	assert.Equal(t, 2.5, vs[0].Actual)
}

func TestEvaluate_CutSize(t *testing.T) {
	ev := evaluator(t, stubProber{covered: true})

	vs := ev.Evaluate(box("via1", 1, 0, 0, 3, 2), box("via1", 1, 3, 0, 6, 2))
	require.Len(t, vs, 1)
	assert.Equal(t, ViolCutSize, vs[0].Kind)
	assert.Equal(t, "V1.C.1", vs[0].Rule)
	assert.Equal(t, 6.0, vs[0].Actual)
	assert.Equal(t, 4.0, vs[0].Expected)

	assert.Empty(t, ev.Evaluate(box("via1", 1, 0, 0, 2, 2), box("via1", 1, 2, 0, 4, 2)))
}

func TestEvaluate_TransistorExemption(t *testing.T) {
	a, b := box("active", 1, 0, 0, 3, 10), box("active", 2, 5, 0, 8, 10)

	vs := evaluator(t, stubProber{}).Evaluate(a, b)
	require.Len(t, vs, 1)
	assert.Equal(t, "AA.S.1", vs[0].Rule)

	assert.Empty(t, evaluator(t, stubProber{transistor: true}).Evaluate(a, b))
}

func TestEvaluate_VTExemption(t *testing.T) {
	a, b := box("poly", 1, 0, 0, 1, 10), box("poly", 2, 4, 0, 5, 10)

	vs := evaluator(t, stubProber{}).Evaluate(a, b)
	require.Len(t, vs, 1)
	assert.Equal(t, "PO.S.VT", vs[0].Rule)
	assert.Equal(t, 4.0, vs[0].Expected)

	assert.Empty(t, evaluator(t, stubProber{vt: true}).Evaluate(a, b))
}

func TestEvaluate_Neck(t *testing.T) {
	a, b := box("metal1", 1, 0, 0, 10, 10), box("metal1", 1, 8, 8, 20, 20)

	vs := evaluator(t, stubProber{}).Evaluate(a, b)
	require.Len(t, vs, 1)
	assert.Equal(t, ViolMinWidth, vs[0].Kind)
	assert.Equal(t, "M1.W.1", vs[0].Rule)
	assert.Equal(t, 2.0, vs[0].Actual)
	assert.Equal(t, geom.R(8, 8, 10, 10), vs[0].Bounds())

	assert.Empty(t, evaluator(t, stubProber{covered: true}).Evaluate(a, b), "filled necks pass")

	wide := box("metal1", 1, 5, 5, 20, 20)
	assert.Empty(t, evaluator(t, stubProber{}).Evaluate(a, wide))
}

func TestEvaluate_Notch(t *testing.T) {
	a, b := box("metal1", 1, 0, 0, 10, 10), box("metal1", 1, 12, 0, 22, 10)

	vs := evaluator(t, stubProber{}).Evaluate(a, b)
	require.Len(t, vs, 1)
	assert.Equal(t, ViolNotch, vs[0].Kind)
	assert.Equal(t, "M1.S.1", vs[0].Rule)
	assert.Equal(t, 2.0, vs[0].Actual)

	assert.Empty(t, evaluator(t, stubProber{points: true}).Evaluate(a, b))
}

func TestEvaluate_Polygon(t *testing.T) {
	tri := Candidate{
		Shape: geom.PolygonShape([]geom.Point{geom.Pt(0, 0), geom.Pt(4, 0), geom.Pt(0, 4)}),
		Layer: "metal1",
		Net:   1,
	}
	sq := box("metal1", 2, 3, 3, 5, 5)

	vs := evaluator(t, stubProber{}).Evaluate(tri, sq)
	require.Len(t, vs, 1)
	assert.InDelta(t, math.Sqrt2, vs[0].Actual, 1e-9)
	assert.Equal(t, "M1.S.1", vs[0].Rule)

	far := box("metal1", 2, 6, 6, 8, 8)
	assert.Empty(t, evaluator(t, stubProber{}).Evaluate(tri, far))
}

func TestEvaluate_KindMask(t *testing.T) {
	ev := evaluator(t, stubProber{})
	ev.Kinds = MaskOf(ViolMinWidth, ViolNotch)

	assert.Empty(t, ev.Evaluate(box("metal1", 1, 0, 0, 3, 10), box("metal1", 2, 5, 0, 8, 10)))
	assert.Len(t, ev.Evaluate(box("metal1", 1, 0, 0, 10, 10), box("metal1", 1, 12, 0, 22, 10)), 1)
}

func TestEvaluate_DegenerateShapes(t *testing.T) {
	ev := evaluator(t, stubProber{})
	assert.Empty(t, ev.Evaluate(box("metal1", 1, 0, 0, 0, 10), box("metal1", 2, 1, 0, 4, 10)))
}

func TestEvaluate_Symmetric(t *testing.T) {
	pairs := []struct {
		name string
		a, b Candidate
	}{
		{"spacing", box("metal1", 1, 0, 0, 3, 10), box("metal1", 2, 5, 0, 8, 10)},
		{"short", box("metal1", 1, 0, 0, 3, 10), box("metal1", 2, 2, 1, 5, 9)},
		{"edge", box("metal1", 1, 0, 0, 3, 10), box("metal2", 2, 3.5, 0, 6.5, 10)},
		{"neck", box("metal1", 1, 0, 0, 10, 10), box("metal1", 1, 8, 8, 20, 20)},
		{"notch", box("metal1", 1, 0, 0, 10, 10), box("metal1", 1, 12, 0, 22, 10)},
		{"diagonal notch", box("metal1", 1, 0, 0, 10, 10), box("metal1", 1, 11, 11, 21, 21)},
		{"cut size", box("via1", 1, 0, 0, 3, 2), box("via1", 1, 3, 0, 6, 2)},
		{"same box different nets", box("poly", 1, 0, 0, 1, 10), box("poly", 2, 0, 0, 1, 10)},
	}
	for _, p := range []Prober{stubProber{}, stubProber{covered: true, points: true}} {
		ev := evaluator(t, p)
		for _, tt := range pairs {
			t.Run(tt.name, func(t *testing.T) {
				assert.Equal(t, ev.Evaluate(tt.a, tt.b), ev.Evaluate(tt.b, tt.a))
			})
		}
	}
}

func TestEvaluate_NothingAfterProberFailure(t *testing.T) {
	ev := evaluator(t, stubProber{err: ErrAborted})
	assert.Empty(t, ev.Evaluate(box("metal1", 1, 0, 0, 3, 10), box("metal1", 2, 5, 0, 8, 10)))
	assert.Empty(t, ev.Evaluate(box("metal1", 1, 0, 0, 10, 10), box("metal1", 1, 8, 8, 20, 20)),
		"a neck whose fill check failed is not reported")
}

func TestMaskOf(t *testing.T) {
	assert.Equal(t, AllKinds, MaskOf())
	m := MaskOf(ViolSpacing, ViolNodeSize)
	assert.True(t, m.Has(ViolSpacing))
	assert.True(t, m.Has(ViolNodeSize))
	assert.False(t, m.Has(ViolMinArea))
	for k := ViolSpacing; k <= ViolNodeSize; k++ {
		assert.True(t, AllKinds.Has(k), k.String())
	}
}

func TestNotchProbe(t *testing.T) {
	near := func(want, got geom.Point) {
		t.Helper()
		assert.InDelta(t, want.X, got.X, 1e-9)
		assert.InDelta(t, want.Y, got.Y, 1e-9)
	}
	p, q := notchProbe(geom.R(0, 0, 10, 10), geom.R(13, 0, 23, 10))
	near(geom.Pt(11, 5), p)
	near(geom.Pt(12, 5), q)

	p, q = notchProbe(geom.R(0, 0, 10, 10), geom.R(0, 13, 10, 23))
	near(geom.Pt(5, 11), p)
	near(geom.Pt(5, 12), q)
}
