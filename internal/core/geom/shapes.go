package geom

import (
	"errors"
	"math"
	"sort"
)

var (
	ErrDegenerate       = errors.New("polygon is degenerate")
	ErrSelfIntersecting = errors.New("polygon is self-intersecting")
	ErrNonConvex        = errors.New("polygon is not convex")
)

// Rect is an axis-aligned rectangle.
type Rect struct {
	Min, Max Vec2
}

func EmptyRect() Rect {
	return Rect{
		Min: Vec2{math.Inf(1), math.Inf(1)},
		Max: Vec2{math.Inf(-1), math.Inf(-1)},
	}
}

func (r Rect) IsEmpty() bool { return r.Min.X() > r.Max.X() || r.Min.Y() > r.Max.Y() }

func (r Rect) Extend(p Vec2) Rect {
	return Rect{
		Min: Vec2{math.Min(r.Min.X(), p.X()), math.Min(r.Min.Y(), p.Y())},
		Max: Vec2{math.Max(r.Max.X(), p.X()), math.Max(r.Max.Y(), p.Y())},
	}
}

func (r Rect) Union(o Rect) Rect {
	if r.IsEmpty() {
		return o
	}
	if o.IsEmpty() {
		return r
	}
	return r.Extend(o.Min).Extend(o.Max)
}

func (r Rect) Center() Vec2 { return r.Min.Add(r.Max).Mul(0.5) }

func (r Rect) Contains(p Vec2) bool {
	return p.X() >= r.Min.X() && p.X() <= r.Max.X() && p.Y() >= r.Min.Y() && p.Y() <= r.Max.Y()
}

// Polygon returns the corners of r counter-clockwise.
func (r Rect) Polygon() Polygon {
	return Polygon{r.Min, Vec2{r.Max.X(), r.Min.Y()}, r.Max, Vec2{r.Min.X(), r.Max.Y()}}
}

func (r Rect) Intersects(o Rect) bool {
	return !r.IsEmpty() && !o.IsEmpty() &&
		r.Min.X() <= o.Max.X() && o.Min.X() <= r.Max.X() &&
		r.Min.Y() <= o.Max.Y() && o.Min.Y() <= r.Max.Y()
}

// Segment is a line segment between A and B.
type Segment struct {
	A, B Vec2
}

func (s Segment) Dir() Vec2 { return s.B.Sub(s.A) }

func (s Segment) Len() float64 { return s.Dir().Len() }

// Project returns the parameter t of the projection of p onto the segment's
// line, where t=0 is A and t=1 is B.
func (s Segment) Project(p Vec2) float64 {
	d := s.Dir()
	l2 := d.Dot(d)
	if l2 < Epsilon {
		return 0
	}
	return p.Sub(s.A).Dot(d) / l2
}

func (s Segment) ClosestPoint(p Vec2) Vec2 {
	t := math.Max(0, math.Min(1, s.Project(p)))
	return s.A.Add(s.Dir().Mul(t))
}

func (s Segment) DistanceTo(p Vec2) float64 { return Distance(s.ClosestPoint(p), p) }

// Intersects reports whether the two closed segments share a point.
func (s Segment) Intersects(o Segment) bool {
	d1 := orient(o.A, o.B, s.A)
	d2 := orient(o.A, o.B, s.B)
	d3 := orient(s.A, s.B, o.A)
	d4 := orient(s.A, s.B, o.B)
	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) && ((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}
	return (d1 == 0 && onSegment(o, s.A)) || (d2 == 0 && onSegment(o, s.B)) ||
		(d3 == 0 && onSegment(s, o.A)) || (d4 == 0 && onSegment(s, o.B))
}

// IntersectionX returns the x coordinate where two non-parallel segments
// cross, if they properly cross.
func (s Segment) IntersectionX(o Segment) (float64, bool) {
	r := s.Dir()
	q := o.Dir()
	denom := PerpDot(r, q)
	if math.Abs(denom) < Epsilon {
		return 0, false
	}
	diff := o.A.Sub(s.A)
	t := PerpDot(diff, q) / denom
	u := PerpDot(diff, r) / denom
	if t <= Epsilon || t >= 1-Epsilon || u <= Epsilon || u >= 1-Epsilon {
		return 0, false
	}
	return s.A.X() + t*r.X(), true
}

// orient is the sign of the turn a->b->c, snapped to zero within Epsilon.
func orient(a, b, c Vec2) int {
	v := PerpDot(b.Sub(a), c.Sub(a))
	switch {
	case v > Epsilon:
		return 1
	case v < -Epsilon:
		return -1
	default:
		return 0
	}
}

func onSegment(s Segment, p Vec2) bool {
	return p.X() >= math.Min(s.A.X(), s.B.X())-Epsilon && p.X() <= math.Max(s.A.X(), s.B.X())+Epsilon &&
		p.Y() >= math.Min(s.A.Y(), s.B.Y())-Epsilon && p.Y() <= math.Max(s.A.Y(), s.B.Y())+Epsilon
}

// Interval is a closed range on a line.
type Interval struct {
	Lo, Hi float64
}

func (i Interval) Len() float64 { return math.Max(0, i.Hi-i.Lo) }

// UnionIntervals merges overlapping or touching intervals. The result is
// sorted and disjoint.
func UnionIntervals(in []Interval) []Interval {
	if len(in) == 0 {
		return nil
	}
	sorted := make([]Interval, 0, len(in))
	for _, iv := range in {
		if iv.Hi > iv.Lo {
			sorted = append(sorted, iv)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Lo < sorted[j].Lo })
	out := make([]Interval, 0, len(sorted))
	for _, iv := range sorted {
		if n := len(out); n > 0 && iv.Lo <= out[n-1].Hi+Epsilon {
			out[n-1].Hi = math.Max(out[n-1].Hi, iv.Hi)
			continue
		}
		out = append(out, iv)
	}
	return out
}

// SubtractIntervals returns the parts of base not covered by cuts.
func SubtractIntervals(base Interval, cuts []Interval) []Interval {
	var out []Interval
	cursor := base.Lo
	for _, c := range UnionIntervals(cuts) {
		if c.Hi <= cursor {
			continue
		}
		if c.Lo >= base.Hi {
			break
		}
		if c.Lo > cursor {
			out = append(out, Interval{Lo: cursor, Hi: c.Lo})
		}
		cursor = math.Max(cursor, c.Hi)
	}
	if cursor < base.Hi {
		out = append(out, Interval{Lo: cursor, Hi: base.Hi})
	}
	return out
}

// Footprint is an oriented rectangle on the ground plane.
type Footprint struct {
	Center Vec2
	Half   Vec2
	Angle  float64
}

// Inflate grows the footprint by r on every side.
func (f Footprint) Inflate(r float64) Footprint {
	f.Half = Vec2{f.Half.X() + r, f.Half.Y() + r}
	return f
}

// Polygon returns the four corners counter-clockwise.
func (f Footprint) Polygon() Polygon {
	hx, hy := f.Half.X(), f.Half.Y()
	local := [4]Vec2{{-hx, -hy}, {hx, -hy}, {hx, hy}, {-hx, hy}}
	out := make(Polygon, 4)
	for i, p := range local {
		out[i] = f.Center.Add(Rotate(p, f.Angle))
	}
	return out
}
