package geom

import "sort"

// Region is a union of shapes. It is used for exclusion zones and for
// coverage probes. The zero value is an empty region.
type Region struct {
	shapes []Shape
	bounds Rect
}

// NewRegion returns a region holding shapes.
func NewRegion(shapes ...Shape) *Region {
	r := &Region{bounds: EmptyRect()}
	for _, s := range shapes {
		r.Add(s)
	}
	return r
}

// Add unions s into r.
func (r *Region) Add(s Shape) {
	if len(r.shapes) == 0 {
		r.bounds = EmptyRect()
	}
	r.shapes = append(r.shapes, s)
	r.bounds = r.bounds.Union(s.Bounds())
}

// AddRegion unions o, mapped through t, into r.
func (r *Region) AddRegion(o *Region, t Transform) {
	if o == nil {
		return
	}
	for _, s := range o.shapes {
		r.Add(s.Transform(t))
	}
}

// IsEmpty reports whether r has no shapes.
func (r *Region) IsEmpty() bool {
	return r == nil || len(r.shapes) == 0
}

// Bounds returns the bounding box of r.
func (r *Region) Bounds() Rect {
	if r.IsEmpty() {
		return EmptyRect()
	}
	return r.bounds
}

// Shapes returns the shapes making up r.
func (r *Region) Shapes() []Shape {
	if r == nil {
		return nil
	}
	return r.shapes
}

// Covers reports whether every point of s lies inside the union of r.
//
// The test slices the bounding box of s at every vertex coordinate of s and
// of the overlapping region shapes, then requires the centre of each slab
// cell that lies in s to lie in some region shape. It is exact for Manhattan
// geometry.
func (r *Region) Covers(s Shape) bool {
	if r.IsEmpty() || s.Bounds().IsEmpty() {
		return false
	}
	if !r.bounds.ContainsRect(s.Bounds()) {
		return false
	}
	var pieces []Shape
	for _, p := range r.shapes {
		if p.Bounds().Overlaps(s.Bounds()) {
			pieces = append(pieces, p)
		}
	}
	if len(pieces) == 0 {
		return false
	}
	xs, ys := breakpoints(s.Bounds(), append(pieces, s))
	for i := 0; i+1 < len(xs); i++ {
		if xs[i+1]-xs[i] <= Eps {
			continue
		}
		for j := 0; j+1 < len(ys); j++ {
			if ys[j+1]-ys[j] <= Eps {
				continue
			}
			c := Point{X: (xs[i] + xs[i+1]) / 2, Y: (ys[j] + ys[j+1]) / 2}
			if !s.ContainsPoint(c) {
				continue
			}
			if !anyContains(pieces, c) {
				return false
			}
		}
	}
	return true
}

// CoversRect reports whether the box b lies inside the union of r.
func (r *Region) CoversRect(b Rect) bool {
	return r.Covers(BoxShape(b))
}

// ContainsPoint reports whether p lies in some shape of r.
func (r *Region) ContainsPoint(p Point) bool {
	if r.IsEmpty() || !r.bounds.ContainsPoint(p) {
		return false
	}
	return anyContains(r.shapes, p)
}

// UnionArea returns the area covered by the union of shapes. It is exact for
// boxes and approximates slanted polygon edges by slab cells.
func UnionArea(shapes []Shape) float64 {
	switch len(shapes) {
	case 0:
		return 0
	case 1:
		return shapes[0].Area()
	}
	bounds := EmptyRect()
	for _, s := range shapes {
		bounds = bounds.Union(s.Bounds())
	}
	xs, ys := breakpoints(bounds, shapes)
	var area float64
	for i := 0; i+1 < len(xs); i++ {
		w := xs[i+1] - xs[i]
		if w <= Eps {
			continue
		}
		for j := 0; j+1 < len(ys); j++ {
			h := ys[j+1] - ys[j]
			if h <= Eps {
				continue
			}
			c := Point{X: (xs[i] + xs[i+1]) / 2, Y: (ys[j] + ys[j+1]) / 2}
			if anyContains(shapes, c) {
				area += w * h
			}
		}
	}
	return area
}

func anyContains(shapes []Shape, p Point) bool {
	for _, s := range shapes {
		if s.ContainsPoint(p) {
			return true
		}
	}
	return false
}

// breakpoints returns the sorted distinct vertex coordinates of shapes that
// fall inside clip, plus the edges of clip itself.
func breakpoints(clip Rect, shapes []Shape) (xs, ys []float64) {
	xs = []float64{clip.MinX, clip.MaxX}
	ys = []float64{clip.MinY, clip.MaxY}
	for _, s := range shapes {
		for _, p := range s.Points() {
			if p.X > clip.MinX && p.X < clip.MaxX {
				xs = append(xs, p.X)
			}
			if p.Y > clip.MinY && p.Y < clip.MaxY {
				ys = append(ys, p.Y)
			}
		}
	}
	return dedupe(xs), dedupe(ys)
}

func dedupe(v []float64) []float64 {
	sort.Float64s(v)
	out := v[:0]
	for i, x := range v {
		if i == 0 || x-out[len(out)-1] > Eps {
			out = append(out, x)
		}
	}
	return out
}
