package geom

import "math"

// ShapeKind discriminates the Shape variant.
type ShapeKind uint8

const (
	// KindBox is an axis-aligned rectangle; checks on boxes take the
	// Manhattan fast path.
	KindBox ShapeKind = iota
	// KindPolygon is a simple polygon with arbitrary edge angles.
	KindPolygon
)

func (k ShapeKind) String() string {
	switch k {
	case KindBox:
		return "box"
	case KindPolygon:
		return "polygon"
	default:
		return "unknown"
	}
}

// Shape is either a Box or a Polygon. Box always holds the bounding box, so
// Bounds is valid for both kinds. Pts is only set for polygons.
type Shape struct {
	Kind ShapeKind
	Box  Rect
	Pts  []Point
}

// BoxShape returns a Box shape.
func BoxShape(r Rect) Shape {
	return Shape{Kind: KindBox, Box: r}
}

// PolygonShape returns a Polygon shape for pts. A polygon that is an
// axis-aligned rectangle is returned as a Box so it can use the fast path.
func PolygonShape(pts []Point) Shape {
	pts = trimClosing(pts)
	b := EmptyRect()
	for _, p := range pts {
		b = b.Union(Rect{MinX: p.X, MinY: p.Y, MaxX: p.X, MaxY: p.Y})
	}
	if isRectangle(pts, b) {
		return BoxShape(b)
	}
	cp := make([]Point, len(pts))
	copy(cp, pts)
	return Shape{Kind: KindPolygon, Box: b, Pts: cp}
}

func trimClosing(pts []Point) []Point {
	if n := len(pts); n > 1 && pts[0] == pts[n-1] {
		return pts[:n-1]
	}
	return pts
}

func isRectangle(pts []Point, b Rect) bool {
	if len(pts) != 4 {
		return false
	}
	for i := range pts {
		p, q := pts[i], pts[(i+1)%4]
		if p.X != q.X && p.Y != q.Y {
			return false
		}
	}
	return math.Abs(polyArea(pts)-b.Area()) <= Eps
}

// IsBox reports whether s takes the Manhattan fast path.
func (s Shape) IsBox() bool {
	return s.Kind == KindBox
}

// Bounds returns the bounding box of s.
func (s Shape) Bounds() Rect {
	return s.Box
}

// Points returns the outline of s. Boxes yield their four corners.
func (s Shape) Points() []Point {
	switch s.Kind {
	case KindBox:
		return s.Box.Corners()
	case KindPolygon:
		return s.Pts
	}
	return nil
}

// Transform maps s through t.
func (s Shape) Transform(t Transform) Shape {
	switch s.Kind {
	case KindBox:
		return BoxShape(t.ApplyRect(s.Box))
	case KindPolygon:
		pts := make([]Point, len(s.Pts))
		b := EmptyRect()
		for i, p := range s.Pts {
			pts[i] = t.Apply(p)
			b = b.Union(Rect{MinX: pts[i].X, MinY: pts[i].Y, MaxX: pts[i].X, MaxY: pts[i].Y})
		}
		return Shape{Kind: KindPolygon, Box: b, Pts: pts}
	}
	return s
}

// Area returns the enclosed area of s.
func (s Shape) Area() float64 {
	switch s.Kind {
	case KindBox:
		return s.Box.Area()
	case KindPolygon:
		return polyArea(s.Pts)
	}
	return 0
}

// ContainsPoint reports whether p lies in s, boundary included.
func (s Shape) ContainsPoint(p Point) bool {
	switch s.Kind {
	case KindBox:
		return s.Box.ContainsPoint(p)
	case KindPolygon:
		return s.Box.ContainsPoint(p) && pointInPolygon(p, s.Pts)
	}
	return false
}

// Width returns the minimum width of s: the smaller side of a box, or for a
// polygon the smallest distance between two non-adjacent edges (the smallest
// altitude for triangles).
func (s Shape) Width() float64 {
	switch s.Kind {
	case KindBox:
		return s.Box.MinDim()
	case KindPolygon:
		return polyWidth(s.Pts)
	}
	return 0
}

// Degenerate reports whether s has no area.
func (s Shape) Degenerate() bool {
	return s.Box.Degenerate() || s.Area() <= Eps
}
