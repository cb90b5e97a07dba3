package navigation

import (
	"math"
	"slices"

	"github.com/zeusync/homestead/internal/core/geom"
)

type Config struct {
	CellSize    float64 `yaml:"cell_size"`
	TileSize    int     `yaml:"tile_size"`
	AgentRadius float64 `yaml:"agent_radius"`
	// SnapRadius bounds how far a blocked endpoint may move to the nearest
	// walkable cell.
	SnapRadius float64 `yaml:"snap_radius"`
}

func DefaultConfig() Config {
	return Config{
		CellSize:    0.25,
		TileSize:    32,
		AgentRadius: 0.25,
		SnapRadius:  2.0,
	}
}

// Cell addresses one grid cell.
type Cell struct {
	X, Y int
}

type grid struct {
	origin   geom.Vec2
	cell     float64
	tileSize int
	w, h     int
	tw, th   int
	snap     float64
}

func newGrid(cfg Config, bounds geom.Rect) grid {
	w := int(math.Ceil((bounds.Max.X() - bounds.Min.X()) / cfg.CellSize))
	h := int(math.Ceil((bounds.Max.Y() - bounds.Min.Y()) / cfg.CellSize))
	return grid{
		origin:   bounds.Min,
		cell:     cfg.CellSize,
		tileSize: cfg.TileSize,
		w:        w,
		h:        h,
		tw:       (w + cfg.TileSize - 1) / cfg.TileSize,
		th:       (h + cfg.TileSize - 1) / cfg.TileSize,
		snap:     cfg.SnapRadius,
	}
}

func (g grid) inside(x, y int) bool { return x >= 0 && y >= 0 && x < g.w && y < g.h }

func (g grid) index(x, y int) int { return y*g.w + x }

func (g grid) coords(idx int) (int, int) { return idx % g.w, idx / g.w }

func (g grid) cellAt(p geom.Vec2) (int, int, bool) {
	x := int(math.Floor((p.X() - g.origin.X()) / g.cell))
	y := int(math.Floor((p.Y() - g.origin.Y()) / g.cell))
	return x, y, g.inside(x, y)
}

func (g grid) center(x, y int) geom.Vec2 {
	return geom.V(g.origin.X()+(float64(x)+0.5)*g.cell, g.origin.Y()+(float64(y)+0.5)*g.cell)
}

// locate returns the tile index and the index inside that tile.
func (g grid) locate(x, y int) (int, int) {
	tx, ty := x/g.tileSize, y/g.tileSize
	lx, ly := x%g.tileSize, y%g.tileSize
	return ty*g.tw + tx, ly*g.tileSize + lx
}

func (g grid) tileOrigin(t int) (int, int) {
	return (t % g.tw) * g.tileSize, (t / g.tw) * g.tileSize
}

// rasterize returns the indices of the cells whose centers lie inside any
// of the polygons, without duplicates.
func (g grid) rasterize(polys []geom.Polygon) []int {
	seen := make(map[int]struct{})
	var out []int
	for _, p := range polys {
		b := p.Bounds()
		x0, y0, _ := g.cellAt(b.Min)
		x1, y1, _ := g.cellAt(b.Max)
		for y := max(y0, 0); y <= min(y1, g.h-1); y++ {
			for x := max(x0, 0); x <= min(x1, g.w-1); x++ {
				idx := g.index(x, y)
				if _, ok := seen[idx]; ok {
					continue
				}
				if p.Contains(g.center(x, y)) {
					seen[idx] = struct{}{}
					out = append(out, idx)
				}
			}
		}
	}
	return out
}

// tilesOf returns the sorted set of tiles touched by the cells.
func (g grid) tilesOf(cells []int) []int {
	seen := make(map[int]struct{})
	var out []int
	for _, idx := range cells {
		x, y := g.coords(idx)
		t, _ := g.locate(x, y)
		if _, ok := seen[t]; !ok {
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	slices.Sort(out)
	return out
}

// tilesInRect returns the tiles overlapping r.
func (g grid) tilesInRect(r geom.Rect) []int {
	x0, y0, _ := g.cellAt(r.Min)
	x1, y1, _ := g.cellAt(r.Max)
	x0, y0 = max(x0, 0), max(y0, 0)
	x1, y1 = min(x1, g.w-1), min(y1, g.h-1)
	if x0 > x1 || y0 > y1 {
		return nil
	}
	var out []int
	for ty := y0 / g.tileSize; ty <= y1/g.tileSize; ty++ {
		for tx := x0 / g.tileSize; tx <= x1/g.tileSize; tx++ {
			out = append(out, ty*g.tw+tx)
		}
	}
	return out
}
