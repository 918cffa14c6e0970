package geom

import (
	"fmt"
	"strings"
)

// Orient is one of the eight Manhattan orientations.
type Orient uint8

const (
	R0 Orient = iota
	R90
	R180
	R270
	MX    // mirror about the X axis (y -> -y)
	MXR90 // MX then R90
	MY    // mirror about the Y axis (x -> -x)
	MYR90 // MY then R90
)

// orientMat holds the 2x2 matrix {a, b, c, d} of each orientation:
// x' = a*x + b*y, y' = c*x + d*y.
var orientMat = [8][4]int8{
	R0:    {1, 0, 0, 1},
	R90:   {0, -1, 1, 0},
	R180:  {-1, 0, 0, -1},
	R270:  {0, 1, -1, 0},
	MX:    {1, 0, 0, -1},
	MXR90: {0, 1, 1, 0},
	MY:    {-1, 0, 0, 1},
	MYR90: {0, -1, -1, 0},
}

var orientNames = [8]string{"R0", "R90", "R180", "R270", "MX", "MXR90", "MY", "MYR90"}

func (o Orient) String() string {
	if int(o) < len(orientNames) {
		return orientNames[o]
	}
	return fmt.Sprintf("Orient(%d)", uint8(o))
}

// ParseOrient converts a name such as "R90" or "MX" into an Orient.
// The empty string is R0.
func ParseOrient(s string) (Orient, error) {
	if s == "" {
		return R0, nil
	}
	for i, name := range orientNames {
		if strings.EqualFold(s, name) {
			return Orient(i), nil
		}
	}
	return R0, fmt.Errorf("unknown orientation %q", s)
}

func orientOf(m [4]int8) Orient {
	for i, cand := range orientMat {
		if cand == m {
			return Orient(i)
		}
	}
	panic(fmt.Sprintf("geom: matrix %v is not a Manhattan orientation", m))
}

// Then returns the orientation that applies o first and next second.
func (o Orient) Then(next Orient) Orient {
	a, b := orientMat[next], orientMat[o]
	return orientOf([4]int8{
		a[0]*b[0] + a[1]*b[2], a[0]*b[1] + a[1]*b[3],
		a[2]*b[0] + a[3]*b[2], a[2]*b[1] + a[3]*b[3],
	})
}

// Inverse returns the orientation undoing o.
func (o Orient) Inverse() Orient {
	m := orientMat[o]
	return orientOf([4]int8{m[0], m[2], m[1], m[3]})
}

// SwapsAxes reports whether o exchanges the X and Y extents of a box.
func (o Orient) SwapsAxes() bool {
	return orientMat[o][0] == 0
}

func (o Orient) apply(p Point) Point {
	m := orientMat[o]
	return Point{
		X: float64(m[0])*p.X + float64(m[1])*p.Y,
		Y: float64(m[2])*p.X + float64(m[3])*p.Y,
	}
}

// Transform maps child coordinates to parent coordinates: the orientation is
// applied about the origin, then the result is translated by (DX, DY).
// Transform values are immutable.
type Transform struct {
	O      Orient
	DX, DY float64
}

// Identity returns the transform that leaves points unchanged.
func Identity() Transform {
	return Transform{}
}

// Translate returns a pure translation.
func Translate(dx, dy float64) Transform {
	return Transform{DX: dx, DY: dy}
}

// NewTransform returns a transform with orientation o and offset (dx, dy).
func NewTransform(o Orient, dx, dy float64) Transform {
	return Transform{O: o, DX: dx, DY: dy}
}

// IsIdentity reports whether t leaves points unchanged.
func (t Transform) IsIdentity() bool {
	return t.O == R0 && t.DX == 0 && t.DY == 0
}

// Apply maps p through t.
func (t Transform) Apply(p Point) Point {
	q := t.O.apply(p)
	return Point{X: q.X + t.DX, Y: q.Y + t.DY}
}

// ApplyRect maps r through t. Manhattan transforms keep boxes axis-aligned.
func (t Transform) ApplyRect(r Rect) Rect {
	if r.IsEmpty() {
		return r
	}
	a := t.Apply(Point{X: r.MinX, Y: r.MinY})
	b := t.Apply(Point{X: r.MaxX, Y: r.MaxY})
	return R(a.X, a.Y, b.X, b.Y)
}

// Compose returns the transform that applies inner first and then t.
// Walking down a hierarchy, the accumulated transform of a child is
// parentXf.Compose(instanceXf).
func (t Transform) Compose(inner Transform) Transform {
	d := t.O.apply(Point{X: inner.DX, Y: inner.DY})
	return Transform{
		O:  inner.O.Then(t.O),
		DX: d.X + t.DX,
		DY: d.Y + t.DY,
	}
}

// Inverse returns the transform undoing t.
func (t Transform) Inverse() Transform {
	inv := t.O.Inverse()
	d := inv.apply(Point{X: -t.DX, Y: -t.DY})
	return Transform{O: inv, DX: d.X, DY: d.Y}
}

func (t Transform) String() string {
	return fmt.Sprintf("%s+(%g,%g)", t.O, t.DX, t.DY)
}
