package geom

import (
	"math"
	"sort"
)

// Polygon is a closed ring of points. The last point connects to the first.
type Polygon []Vec2

func (p Polygon) Clone() Polygon { return append(Polygon(nil), p...) }

// SignedArea is positive for counter-clockwise rings.
func (p Polygon) SignedArea() float64 {
	var sum float64
	for i := range p {
		j := (i + 1) % len(p)
		sum += PerpDot(p[i], p[j])
	}
	return sum / 2
}

func (p Polygon) Area() float64 { return math.Abs(p.SignedArea()) }

func (p Polygon) IsCCW() bool { return p.SignedArea() > 0 }

// CCW returns a copy wound counter-clockwise.
func (p Polygon) CCW() Polygon {
	out := p.Clone()
	if out.SignedArea() < 0 {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out
}

func (p Polygon) Edge(i int) Segment { return Segment{A: p[i], B: p[(i+1)%len(p)]} }

func (p Polygon) Bounds() Rect {
	r := EmptyRect()
	for _, v := range p {
		r = r.Extend(v)
	}
	return r
}

// IsSimple reports whether no two non-adjacent edges touch.
func (p Polygon) IsSimple() bool {
	n := len(p)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if j == i+1 || (i == 0 && j == n-1) {
				continue
			}
			if p.Edge(i).Intersects(p.Edge(j)) {
				return false
			}
		}
	}
	return true
}

// IsConvex reports whether every turn has the same orientation. Collinear
// vertices are tolerated.
func (p Polygon) IsConvex() bool {
	sign := 0
	for i := range p {
		o := orient(p[i], p[(i+1)%len(p)], p[(i+2)%len(p)])
		if o == 0 {
			continue
		}
		if sign == 0 {
			sign = o
		} else if o != sign {
			return false
		}
	}
	return sign != 0
}

// ValidateConvex checks the constraints placed on wall cutouts.
func (p Polygon) ValidateConvex() error {
	if len(p) < 3 || p.Area() < 1e-6 {
		return ErrDegenerate
	}
	if !p.IsSimple() {
		return ErrSelfIntersecting
	}
	if !p.IsConvex() {
		return ErrNonConvex
	}
	return nil
}

// Contains uses the crossing rule; points on the boundary count as inside.
func (p Polygon) Contains(pt Vec2) bool {
	inside := false
	for i := range p {
		e := p.Edge(i)
		if orient(e.A, e.B, pt) == 0 && onSegment(e, pt) {
			return true
		}
		a, b := e.A, e.B
		if (a.Y() > pt.Y()) != (b.Y() > pt.Y()) {
			x := a.X() + (pt.Y()-a.Y())*(b.X()-a.X())/(b.Y()-a.Y())
			if pt.X() < x {
				inside = !inside
			}
		}
	}
	return inside
}

// Translate returns p moved by offset.
func (p Polygon) Translate(offset Vec2) Polygon {
	out := make(Polygon, len(p))
	for i, v := range p {
		out[i] = v.Add(offset)
	}
	return out
}

// MirrorX flips the polygon around the vertical axis, keeping its winding.
func (p Polygon) MirrorX() Polygon {
	out := make(Polygon, len(p))
	for i, v := range p {
		out[len(p)-1-i] = Vec2{-v.X(), v.Y()}
	}
	return out
}

// XSpan is the projection of the polygon on the x axis.
func (p Polygon) XSpan() Interval {
	b := p.Bounds()
	return Interval{Lo: b.Min.X(), Hi: b.Max.X()}
}

// Intersects reports whether two convex polygons overlap with positive area,
// using separating axes.
func (p Polygon) Intersects(o Polygon) bool {
	for _, poly := range [2]Polygon{p, o} {
		for i := range poly {
			axis := Perp(poly.Edge(i).Dir())
			if axis.Len() < Epsilon {
				continue
			}
			aMin, aMax := projectOnto(p, axis)
			bMin, bMax := projectOnto(o, axis)
			if aMax <= bMin+1e-7 || bMax <= aMin+1e-7 {
				return false
			}
		}
	}
	return true
}

func projectOnto(p Polygon, axis Vec2) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range p {
		d := v.Dot(axis)
		lo = math.Min(lo, d)
		hi = math.Max(hi, d)
	}
	return lo, hi
}

// UnionConvex computes the exact union of convex polygons as disjoint
// trapezoids stacked in vertical slabs. Overlapping inputs are merged, never
// counted twice. The returned area is the area of the union.
func UnionConvex(polys []Polygon) ([]Polygon, float64) {
	if len(polys) == 0 {
		return nil, 0
	}

	var xs []float64
	var edges []Segment
	for _, p := range polys {
		for i := range p {
			xs = append(xs, p[i].X())
			edges = append(edges, p.Edge(i))
		}
	}
	for i := range edges {
		for j := i + 1; j < len(edges); j++ {
			if x, ok := edges[i].IntersectionX(edges[j]); ok {
				xs = append(xs, x)
			}
		}
	}
	sort.Float64s(xs)
	xs = dedupe(xs)

	var pieces []Polygon
	var area float64
	for s := 0; s+1 < len(xs); s++ {
		x0, x1 := xs[s], xs[s+1]
		if x1-x0 < 1e-9 {
			continue
		}
		xm := (x0 + x1) / 2

		var spans []slabSpan
		for _, p := range polys {
			if span, ok := spanAt(p, xm); ok {
				spans = append(spans, span)
			}
		}
		if len(spans) == 0 {
			continue
		}
		sort.Slice(spans, func(i, j int) bool { return spans[i].lo.at(xm) < spans[j].lo.at(xm) })

		cur := spans[0]
		flush := func(sp slabSpan) {
			lo0, lo1 := sp.lo.at(x0), sp.lo.at(x1)
			hi0, hi1 := sp.hi.at(x0), sp.hi.at(x1)
			pieces = append(pieces, Polygon{{x0, lo0}, {x1, lo1}, {x1, hi1}, {x0, hi0}})
			area += (x1 - x0) * ((hi0 - lo0) + (hi1 - lo1)) / 2
		}
		for _, sp := range spans[1:] {
			if sp.lo.at(xm) <= cur.hi.at(xm)+Epsilon {
				if sp.hi.at(xm) > cur.hi.at(xm) {
					cur.hi = sp.hi
				}
				continue
			}
			flush(cur)
			cur = sp
		}
		flush(cur)
	}
	return pieces, area
}

type line struct {
	a, b Vec2
}

func (l line) at(x float64) float64 {
	dx := l.b.X() - l.a.X()
	if math.Abs(dx) < Epsilon {
		return l.a.Y()
	}
	return l.a.Y() + (l.b.Y()-l.a.Y())*(x-l.a.X())/dx
}

type slabSpan struct {
	lo, hi line
}

// spanAt returns the lower and upper boundary lines of a convex polygon at x,
// where x must not coincide with a vertex.
func spanAt(p Polygon, x float64) (slabSpan, bool) {
	var found []line
	for i := range p {
		e := p.Edge(i)
		if math.Min(e.A.X(), e.B.X()) < x && x < math.Max(e.A.X(), e.B.X()) {
			found = append(found, line{a: e.A, b: e.B})
		}
	}
	if len(found) != 2 {
		return slabSpan{}, false
	}
	if found[0].at(x) > found[1].at(x) {
		found[0], found[1] = found[1], found[0]
	}
	return slabSpan{lo: found[0], hi: found[1]}, true
}

func dedupe(xs []float64) []float64 {
	out := xs[:0]
	for _, x := range xs {
		if len(out) == 0 || x-out[len(out)-1] > 1e-9 {
			out = append(out, x)
		}
	}
	return out
}
