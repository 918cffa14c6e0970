package geom

import "math"

// polyArea returns the unsigned shoelace area of pts.
func polyArea(pts []Point) float64 {
	var sum float64
	for i := range pts {
		p, q := pts[i], pts[(i+1)%len(pts)]
		sum += p.X*q.Y - q.X*p.Y
	}
	return math.Abs(sum) / 2
}

// pointInPolygon reports whether p is inside pts or on its boundary.
func pointInPolygon(p Point, pts []Point) bool {
	n := len(pts)
	for i := 0; i < n; i++ {
		if onSegment(p, pts[i], pts[(i+1)%n]) {
			return true
		}
	}
	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a, b := pts[i], pts[j]
		if (a.Y > p.Y) != (b.Y > p.Y) {
			x := (b.X-a.X)*(p.Y-a.Y)/(b.Y-a.Y) + a.X
			if p.X < x {
				inside = !inside
			}
		}
	}
	return inside
}

// pointStrictlyInside reports whether p is inside pts and not on its boundary.
func pointStrictlyInside(p Point, pts []Point) bool {
	n := len(pts)
	for i := 0; i < n; i++ {
		if onSegment(p, pts[i], pts[(i+1)%n]) {
			return false
		}
	}
	return pointInPolygon(p, pts)
}

func cross(o, a, b Point) float64 {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}

func onSegment(p, a, b Point) bool {
	if math.Abs(cross(a, b, p)) > Eps*math.Max(1, a.Dist(b)) {
		return false
	}
	return p.X >= math.Min(a.X, b.X)-Eps && p.X <= math.Max(a.X, b.X)+Eps &&
		p.Y >= math.Min(a.Y, b.Y)-Eps && p.Y <= math.Max(a.Y, b.Y)+Eps
}

func sign(v float64) int {
	switch {
	case v > Eps:
		return 1
	case v < -Eps:
		return -1
	}
	return 0
}

// segmentsIntersect reports whether segments ab and cd share a point.
func segmentsIntersect(a, b, c, d Point) bool {
	d1 := sign(cross(c, d, a))
	d2 := sign(cross(c, d, b))
	d3 := sign(cross(a, b, c))
	d4 := sign(cross(a, b, d))
	if d1*d2 < 0 && d3*d4 < 0 {
		return true
	}
	return (d1 == 0 && onSegment(a, c, d)) || (d2 == 0 && onSegment(b, c, d)) ||
		(d3 == 0 && onSegment(c, a, b)) || (d4 == 0 && onSegment(d, a, b))
}

// segmentsCross reports a proper crossing: the segments intersect at a single
// point interior to both.
func segmentsCross(a, b, c, d Point) bool {
	d1 := sign(cross(c, d, a))
	d2 := sign(cross(c, d, b))
	d3 := sign(cross(a, b, c))
	d4 := sign(cross(a, b, d))
	return d1*d2 < 0 && d3*d4 < 0
}

func pointSegmentDist(p, a, b Point) float64 {
	dx, dy := b.X-a.X, b.Y-a.Y
	l2 := dx*dx + dy*dy
	if l2 == 0 {
		return p.Dist(a)
	}
	t := ((p.X-a.X)*dx + (p.Y-a.Y)*dy) / l2
	t = math.Max(0, math.Min(1, t))
	return p.Dist(Point{X: a.X + t*dx, Y: a.Y + t*dy})
}

// SegmentDistance returns the smallest distance between segments ab and cd.
func SegmentDistance(a, b, c, d Point) float64 {
	if segmentsIntersect(a, b, c, d) {
		return 0
	}
	return math.Min(
		math.Min(pointSegmentDist(a, c, d), pointSegmentDist(b, c, d)),
		math.Min(pointSegmentDist(c, a, b), pointSegmentDist(d, a, b)),
	)
}

// polyWidth approximates the minimum width of a simple polygon.
func polyWidth(pts []Point) float64 {
	n := len(pts)
	if n < 3 {
		return 0
	}
	if n == 3 {
		longest := 0.0
		for i := range pts {
			longest = math.Max(longest, pts[i].Dist(pts[(i+1)%n]))
		}
		if longest == 0 {
			return 0
		}
		return 2 * polyArea(pts) / longest
	}
	best := math.Inf(1)
	for i := 0; i < n; i++ {
		a, b := pts[i], pts[(i+1)%n]
		for j := i + 2; j < n; j++ {
			if i == 0 && j == n-1 {
				continue
			}
			c, d := pts[j], pts[(j+1)%n]
			best = math.Min(best, SegmentDistance(a, b, c, d))
		}
	}
	return best
}

// interiorPoint returns a point strictly inside pts when one can be found
// cheaply: the centroid of the vertices, or the centroid of the first ear.
func interiorPoint(pts []Point) (Point, bool) {
	var c Point
	for _, p := range pts {
		c.X += p.X
		c.Y += p.Y
	}
	c.X /= float64(len(pts))
	c.Y /= float64(len(pts))
	if pointStrictlyInside(c, pts) {
		return c, true
	}
	n := len(pts)
	for i := 0; i < n; i++ {
		a, b, d := pts[(i+n-1)%n], pts[i], pts[(i+1)%n]
		t := Point{X: (a.X + b.X + d.X) / 3, Y: (a.Y + b.Y + d.Y) / 3}
		if pointStrictlyInside(t, pts) {
			return t, true
		}
	}
	return Point{}, false
}

// Separation returns the distance between two shapes and whether their
// interiors overlap. The distance is zero whenever the shapes intersect.
// This is the general-polygon path; callers handle box pairs with Gap.
func Separation(a, b Shape) (dist float64, overlap bool) {
	if a.IsBox() && b.IsBox() {
		gap, _, _ := Gap(a.Box, b.Box)
		return math.Max(gap, 0), gap < 0
	}
	pa, pb := a.Points(), b.Points()
	intersect := false
	for i := range pa {
		p1, p2 := pa[i], pa[(i+1)%len(pa)]
		for j := range pb {
			q1, q2 := pb[j], pb[(j+1)%len(pb)]
			if segmentsCross(p1, p2, q1, q2) {
				return 0, true
			}
			if segmentsIntersect(p1, p2, q1, q2) {
				intersect = true
			}
		}
	}
	for _, p := range pa {
		if pointStrictlyInside(p, pb) {
			return 0, true
		}
	}
	for _, p := range pb {
		if pointStrictlyInside(p, pa) {
			return 0, true
		}
	}
	if ip, ok := interiorPoint(pa); ok && pointStrictlyInside(ip, pb) {
		return 0, true
	}
	if ip, ok := interiorPoint(pb); ok && pointStrictlyInside(ip, pa) {
		return 0, true
	}
	if intersect {
		return 0, false
	}
	best := math.Inf(1)
	for i := range pa {
		p1, p2 := pa[i], pa[(i+1)%len(pa)]
		for j := range pb {
			q1, q2 := pb[j], pb[(j+1)%len(pb)]
			best = math.Min(best, SegmentDistance(p1, p2, q1, q2))
		}
	}
	return best, false
}
