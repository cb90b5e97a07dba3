package navigation

import (
	"context"
	"math"

	"github.com/zeusync/homestead/internal/core/geom"
	"github.com/zeusync/homestead/pkg/sequence"
)

const cancelCheckInterval = 512

var neighbors = [8][3]int{
	{1, 0, 0}, {-1, 0, 0}, {0, 1, 0}, {0, -1, 0},
	{1, 1, 1}, {1, -1, 1}, {-1, 1, 1}, {-1, -1, 1},
}

// FindPath returns a smoothed path from one ground point to another. Blocked
// endpoints are moved to the nearest walkable cell within the snap radius.
// The first point is always from, the last is to or its snapped cell.
func (m *Mesh) FindPath(ctx context.Context, from, to geom.Vec2) ([]geom.Vec2, error) {
	sx, sy, ok := m.cellAt(from)
	if !ok {
		return nil, ErrOutOfBounds
	}
	gx, gy, ok := m.cellAt(to)
	if !ok {
		return nil, ErrOutOfBounds
	}
	startSnapped := !m.walkable(sx, sy)
	if sx, sy, ok = m.nearestWalkable(from, sx, sy); !ok {
		return nil, ErrNoPath
	}
	goalSnapped := !m.walkable(gx, gy)
	if gx, gy, ok = m.nearestWalkable(to, gx, gy); !ok {
		return nil, ErrNoPath
	}
	if m.component(sx, sy) != m.component(gx, gy) {
		return nil, ErrNoPath
	}

	cells, err := m.astar(ctx, m.index(sx, sy), m.index(gx, gy))
	if err != nil {
		return nil, err
	}

	points := make([]geom.Vec2, 0, len(cells)+2)
	if startSnapped {
		points = append(points, m.center(sx, sy))
	} else {
		points = append(points, from)
	}
	for _, idx := range cells[1 : len(cells)-1] {
		x, y := m.coords(idx)
		points = append(points, m.center(x, y))
	}
	if goalSnapped {
		points = append(points, m.center(gx, gy))
	} else {
		points = append(points, to)
	}

	points = m.smooth(points)
	if startSnapped {
		points = append([]geom.Vec2{from}, points...)
	}
	return points, nil
}

func (m *Mesh) astar(ctx context.Context, start, goal int) ([]int, error) {
	gx, gy := m.coords(goal)
	heuristic := func(idx int) float64 {
		x, y := m.coords(idx)
		dx, dy := math.Abs(float64(x-gx)), math.Abs(float64(y-gy))
		return math.Max(dx, dy) + (math.Sqrt2-1)*math.Min(dx, dy)
	}

	cost := map[int]float64{start: 0}
	came := make(map[int]int)
	closed := make(map[int]struct{})
	open := sequence.NewMinQueue[int, float64]()
	open.Enqueue(start, heuristic(start))

	for expanded := 0; !open.IsEmpty(); expanded++ {
		if expanded%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		cur, _ := open.Dequeue()
		if cur == goal {
			return reconstruct(came, start, goal), nil
		}
		if _, done := closed[cur]; done {
			continue
		}
		closed[cur] = struct{}{}

		cx, cy := m.coords(cur)
		for _, n := range neighbors {
			nx, ny := cx+n[0], cy+n[1]
			if !m.walkable(nx, ny) {
				continue
			}
			step := 1.0
			if n[2] == 1 {
				// No corner cutting.
				if !m.walkable(cx+n[0], cy) || !m.walkable(cx, cy+n[1]) {
					continue
				}
				step = math.Sqrt2
			}
			next := m.index(nx, ny)
			if _, done := closed[next]; done {
				continue
			}
			g := cost[cur] + step
			if old, seen := cost[next]; seen && old <= g {
				continue
			}
			cost[next] = g
			came[next] = cur
			open.Enqueue(next, g+heuristic(next))
		}
	}
	return nil, ErrNoPath
}

func reconstruct(came map[int]int, start, goal int) []int {
	path := []int{goal}
	for cur := goal; cur != start; {
		cur = came[cur]
		path = append(path, cur)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	if len(path) == 1 {
		path = append(path, goal)
	}
	return path
}

// smooth drops intermediate points that are visible from the last kept one.
func (m *Mesh) smooth(points []geom.Vec2) []geom.Vec2 {
	if len(points) <= 2 {
		return points
	}
	out := []geom.Vec2{points[0]}
	anchor := 0
	for i := 2; i < len(points); i++ {
		if !m.SegmentClear(points[anchor], points[i]) {
			anchor = i - 1
			out = append(out, points[anchor])
		}
	}
	return append(out, points[len(points)-1])
}

// SegmentClear reports whether every cell crossed by the segment is
// walkable. Diagonal steps must not cut blocked corners.
func (m *Mesh) SegmentClear(a, b geom.Vec2) bool {
	x, y, ok := m.cellAt(a)
	if !ok {
		return false
	}
	ex, ey, ok := m.cellAt(b)
	if !ok {
		return false
	}

	// Amanatides-Woo traversal.
	dir := b.Sub(a)
	stepX, stepY := sign(dir.X()), sign(dir.Y())
	tMaxX, tDeltaX := traversal(a.X()-m.origin.X(), dir.X(), m.cell, x)
	tMaxY, tDeltaY := traversal(a.Y()-m.origin.Y(), dir.Y(), m.cell, y)

	for {
		if !m.walkable(x, y) {
			return false
		}
		if (x == ex && y == ey) || math.Min(tMaxX, tMaxY) > 1 {
			return m.walkable(ex, ey)
		}
		switch {
		case math.Abs(tMaxX-tMaxY) < 1e-12:
			if !m.walkable(x+stepX, y) || !m.walkable(x, y+stepY) {
				return false
			}
			x += stepX
			y += stepY
			tMaxX += tDeltaX
			tMaxY += tDeltaY
		case tMaxX < tMaxY:
			x += stepX
			tMaxX += tDeltaX
		default:
			y += stepY
			tMaxY += tDeltaY
		}
	}
}

// PathClear reports whether the waypoints still ahead of an agent, and the
// legs between them, are walkable. The leg from the agent's own position is
// not checked so that an agent standing on a freshly blocked cell can leave.
func (m *Mesh) PathClear(waypoints []geom.Vec2) bool {
	if len(waypoints) == 0 {
		return true
	}
	if !m.WalkableAt(waypoints[0]) {
		return false
	}
	for i := 1; i < len(waypoints); i++ {
		if !m.SegmentClear(waypoints[i-1], waypoints[i]) {
			return false
		}
	}
	return true
}

func traversal(start, dir, cell float64, idx int) (tMax, tDelta float64) {
	if dir == 0 {
		return math.Inf(1), math.Inf(1)
	}
	var boundary float64
	if dir > 0 {
		boundary = float64(idx+1) * cell
	} else {
		boundary = float64(idx) * cell
	}
	return (boundary - start) / dir, cell / math.Abs(dir)
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
