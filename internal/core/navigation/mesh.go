package navigation

import (
	"math"

	"github.com/zeusync/homestead/internal/core/geom"
)

// Mesh is an immutable published navmesh. It is safe for concurrent use.
type Mesh struct {
	labeling
	version uint64
}

func (m *Mesh) Version() uint64 { return m.version }

func (m *Mesh) Size() (int, int) { return m.w, m.h }

func (m *Mesh) CellSize() float64 { return m.cell }

// CellAt maps a ground point to its cell.
func (m *Mesh) CellAt(p geom.Vec2) (Cell, bool) {
	x, y, ok := m.cellAt(p)
	return Cell{X: x, Y: y}, ok
}

func (m *Mesh) Center(c Cell) geom.Vec2 { return m.center(c.X, c.Y) }

// WalkableAt reports whether the cell under p is walkable.
func (m *Mesh) WalkableAt(p geom.Vec2) bool {
	x, y, ok := m.cellAt(p)
	return ok && m.walkable(x, y)
}

// ComponentAt returns the component of the cell under p, or -1.
func (m *Mesh) ComponentAt(p geom.Vec2) int {
	x, y, ok := m.cellAt(p)
	if !ok {
		return -1
	}
	return int(m.component(x, y))
}

// Rasterize returns the cells whose centers are covered by polys.
func (m *Mesh) Rasterize(polys []geom.Polygon) []Cell {
	idx := m.rasterize(polys)
	out := make([]Cell, len(idx))
	for i, v := range idx {
		x, y := m.coords(v)
		out[i] = Cell{X: x, Y: y}
	}
	return out
}

// CellsWithin returns the cells whose centers lie within radius of p.
func (m *Mesh) CellsWithin(p geom.Vec2, radius float64) []Cell {
	var out []Cell
	x0, y0, _ := m.cellAt(p.Sub(geom.V(radius, radius)))
	x1, y1, _ := m.cellAt(p.Add(geom.V(radius, radius)))
	for y := max(y0, 0); y <= min(y1, m.h-1); y++ {
		for x := max(x0, 0); x <= min(x1, m.w-1); x++ {
			if geom.Distance(m.center(x, y), p) <= radius {
				out = append(out, Cell{X: x, Y: y})
			}
		}
	}
	return out
}

// TileVersions returns the version of every tile overlapping r.
func (m *Mesh) TileVersions(r geom.Rect) map[int]uint64 {
	out := make(map[int]uint64)
	for _, ti := range m.tilesInRect(r) {
		out[ti] = m.tiles[ti].version
	}
	return out
}

// TilesUnchanged reports whether every tile in versions still has the
// recorded version.
func (m *Mesh) TilesUnchanged(versions map[int]uint64) bool {
	for ti, v := range versions {
		if ti < 0 || ti >= len(m.tiles) || m.tiles[ti].version != v {
			return false
		}
	}
	return true
}

// nearestWalkable searches outward from (x, y) for the closest walkable
// cell within the snap radius.
func (l *labeling) nearestWalkable(p geom.Vec2, x, y int) (int, int, bool) {
	if l.walkable(x, y) {
		return x, y, true
	}
	limit := int(math.Ceil(l.snap / l.cell))
	bestX, bestY, best := 0, 0, math.Inf(1)
	for r := 1; r <= limit; r++ {
		for dy := -r; dy <= r; dy++ {
			for dx := -r; dx <= r; dx++ {
				if max(abs(dx), abs(dy)) != r {
					continue
				}
				nx, ny := x+dx, y+dy
				if !l.walkable(nx, ny) {
					continue
				}
				if d := geom.Distance(l.center(nx, ny), p); d < best && d <= l.snap {
					bestX, bestY, best = nx, ny, d
				}
			}
		}
		if !math.IsInf(best, 1) {
			return bestX, bestY, true
		}
	}
	return 0, 0, false
}

// Overlay is a hypothetical change of blocker counts, used to evaluate a
// mesh as it would look after an edit without building it.
type Overlay struct {
	delta map[int]int64
}

func NewOverlay() *Overlay {
	return &Overlay{delta: make(map[int]int64)}
}

func (o *Overlay) Block(m *Mesh, cells []Cell) {
	for _, c := range cells {
		if m.inside(c.X, c.Y) {
			o.delta[m.index(c.X, c.Y)]++
		}
	}
}

func (o *Overlay) Free(m *Mesh, cells []Cell) {
	for _, c := range cells {
		if m.inside(c.X, c.Y) {
			o.delta[m.index(c.X, c.Y)]--
		}
	}
}

func (o *Overlay) Empty() bool { return len(o.delta) == 0 }

// Labeling is the connectivity of a hypothetical mesh.
type Labeling struct {
	labeling
}

// ComponentAt returns the component of the cell under p, or -1.
func (l *Labeling) ComponentAt(p geom.Vec2) int {
	x, y, ok := l.cellAt(p)
	if !ok {
		return -1
	}
	return int(l.component(x, y))
}

// Label computes connectivity with the overlay applied. Only the tiles the
// overlay touches are relabeled.
func (m *Mesh) Label(o *Overlay) *Labeling {
	tiles := make([]*tile, len(m.tiles))
	copy(tiles, m.tiles)

	touched := make(map[int]*tile)
	for idx, d := range o.delta {
		if d == 0 {
			continue
		}
		x, y := m.coords(idx)
		ti, local := m.locate(x, y)
		t, ok := touched[ti]
		if !ok {
			t = m.tiles[ti].clone()
			touched[ti] = t
			tiles[ti] = t
		}
		t.counts[local] = uint32(max(0, int64(t.counts[local])+d))
	}
	for ti, t := range touched {
		m.relabel(ti, t)
	}
	return &Labeling{labeling: m.link(tiles)}
}

// Labeling returns the connectivity of the mesh itself.
func (m *Mesh) Labeling() *Labeling { return &Labeling{labeling: m.labeling} }

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
