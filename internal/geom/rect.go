package geom

import (
	"fmt"
	"math"
)

// Point is a location in layout units.
type Point struct {
	X, Y float64
}

// Pt is shorthand for Point{X: x, Y: y}.
func Pt(x, y float64) Point {
	return Point{X: x, Y: y}
}

// Add returns p+q.
func (p Point) Add(q Point) Point {
	return Point{X: p.X + q.X, Y: p.Y + q.Y}
}

// Sub returns p-q.
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// Lerp returns the point at fraction t along the segment p→q.
func (p Point) Lerp(q Point, t float64) Point {
	return Point{X: p.X + (q.X-p.X)*t, Y: p.Y + (q.Y-p.Y)*t}
}

// Dist returns the Euclidean distance between p and q.
func (p Point) Dist(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

func (p Point) String() string {
	return fmt.Sprintf("(%g,%g)", p.X, p.Y)
}

// Rect is a closed axis-aligned rectangle. A Rect with MinX > MaxX or
// MinY > MaxY is empty.
type Rect struct {
	MinX, MinY, MaxX, MaxY float64
}

// R returns the rectangle spanned by two corners in any order.
func R(x0, y0, x1, y1 float64) Rect {
	return Rect{
		MinX: math.Min(x0, x1),
		MinY: math.Min(y0, y1),
		MaxX: math.Max(x0, x1),
		MaxY: math.Max(y0, y1),
	}
}

// EmptyRect returns the identity element for Union.
func EmptyRect() Rect {
	return Rect{
		MinX: math.Inf(1), MinY: math.Inf(1),
		MaxX: math.Inf(-1), MaxY: math.Inf(-1),
	}
}

// IsEmpty reports whether r contains no points.
func (r Rect) IsEmpty() bool {
	return r.MinX > r.MaxX || r.MinY > r.MaxY
}

// Degenerate reports whether r has no area (empty, a segment, or a point).
func (r Rect) Degenerate() bool {
	return r.IsEmpty() || r.Width() <= Eps || r.Height() <= Eps
}

// Width returns the X extent.
func (r Rect) Width() float64 {
	return r.MaxX - r.MinX
}

// Height returns the Y extent.
func (r Rect) Height() float64 {
	return r.MaxY - r.MinY
}

// MinDim returns the smaller of width and height.
func (r Rect) MinDim() float64 {
	return math.Min(r.Width(), r.Height())
}

// MaxDim returns the larger of width and height.
func (r Rect) MaxDim() float64 {
	return math.Max(r.Width(), r.Height())
}

// Area returns the area of r, zero when empty.
func (r Rect) Area() float64 {
	if r.IsEmpty() {
		return 0
	}
	return r.Width() * r.Height()
}

// Center returns the midpoint of r.
func (r Rect) Center() Point {
	return Point{X: (r.MinX + r.MaxX) / 2, Y: (r.MinY + r.MaxY) / 2}
}

// Expand grows r by d on every side. A negative d shrinks it.
func (r Rect) Expand(d float64) Rect {
	return Rect{MinX: r.MinX - d, MinY: r.MinY - d, MaxX: r.MaxX + d, MaxY: r.MaxY + d}
}

// Translate moves r by (dx, dy).
func (r Rect) Translate(dx, dy float64) Rect {
	return Rect{MinX: r.MinX + dx, MinY: r.MinY + dy, MaxX: r.MaxX + dx, MaxY: r.MaxY + dy}
}

// Union returns the bounding box of r and o.
func (r Rect) Union(o Rect) Rect {
	if r.IsEmpty() {
		return o
	}
	if o.IsEmpty() {
		return r
	}
	return Rect{
		MinX: math.Min(r.MinX, o.MinX),
		MinY: math.Min(r.MinY, o.MinY),
		MaxX: math.Max(r.MaxX, o.MaxX),
		MaxY: math.Max(r.MaxY, o.MaxY),
	}
}

// Intersect returns the common part of r and o. The result is empty when they
// are disjoint and degenerate when they only touch.
func (r Rect) Intersect(o Rect) Rect {
	return Rect{
		MinX: math.Max(r.MinX, o.MinX),
		MinY: math.Max(r.MinY, o.MinY),
		MaxX: math.Min(r.MaxX, o.MaxX),
		MaxY: math.Min(r.MaxY, o.MaxY),
	}
}

// Overlaps reports whether r and o share at least one point. Touching
// rectangles overlap.
func (r Rect) Overlaps(o Rect) bool {
	return r.MinX <= o.MaxX+Eps && o.MinX <= r.MaxX+Eps &&
		r.MinY <= o.MaxY+Eps && o.MinY <= r.MaxY+Eps
}

// ContainsPoint reports whether p lies in r, boundary included.
func (r Rect) ContainsPoint(p Point) bool {
	return p.X >= r.MinX-Eps && p.X <= r.MaxX+Eps &&
		p.Y >= r.MinY-Eps && p.Y <= r.MaxY+Eps
}

// ContainsRect reports whether o lies entirely inside r.
func (r Rect) ContainsRect(o Rect) bool {
	return o.MinX >= r.MinX-Eps && o.MaxX <= r.MaxX+Eps &&
		o.MinY >= r.MinY-Eps && o.MaxY <= r.MaxY+Eps
}

// Corners returns the four corners counter-clockwise from (MinX, MinY).
func (r Rect) Corners() []Point {
	return []Point{
		{X: r.MinX, Y: r.MinY},
		{X: r.MaxX, Y: r.MinY},
		{X: r.MaxX, Y: r.MaxY},
		{X: r.MinX, Y: r.MaxY},
	}
}

func (r Rect) String() string {
	return fmt.Sprintf("[%g,%g %g,%g]", r.MinX, r.MinY, r.MaxX, r.MaxY)
}

// Gap returns the Chebyshev separation of two boxes: the larger of the two
// per-axis separations. It is positive when the boxes are apart, zero when
// they touch, and negative when their interiors overlap. dx and dy are the
// per-axis separations (negative values are overlap depths).
func Gap(a, b Rect) (gap, dx, dy float64) {
	dx = math.Max(b.MinX-a.MaxX, a.MinX-b.MaxX)
	dy = math.Max(b.MinY-a.MaxY, a.MinY-b.MaxY)
	gap = math.Max(dx, dy)
	if math.Abs(gap) <= Eps {
		gap = 0
	}
	return gap, dx, dy
}

// CropBox removes from box the part covered by cover when cover spans box
// completely along one axis and overlaps one of its ends along the other.
// It reports covered=true when nothing of box remains.
func CropBox(box, cover Rect) (cropped Rect, covered bool) {
	if !box.Overlaps(cover) {
		return box, false
	}
	spansX := cover.MinX <= box.MinX+Eps && cover.MaxX >= box.MaxX-Eps
	spansY := cover.MinY <= box.MinY+Eps && cover.MaxY >= box.MaxY-Eps
	if spansX && spansY {
		return box, true
	}
	out := box
	if spansX {
		switch {
		case cover.MinY <= box.MinY+Eps && cover.MaxY > box.MinY:
			out.MinY = cover.MaxY
		case cover.MaxY >= box.MaxY-Eps && cover.MinY < box.MaxY:
			out.MaxY = cover.MinY
		}
	}
	if spansY {
		switch {
		case cover.MinX <= box.MinX+Eps && cover.MaxX > box.MinX:
			out.MinX = cover.MaxX
		case cover.MaxX >= box.MaxX-Eps && cover.MinX < box.MaxX:
			out.MaxX = cover.MinX
		}
	}
	if out.Degenerate() {
		return box, true
	}
	return out, false
}
