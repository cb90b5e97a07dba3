package navigation

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/zeusync/homestead/internal/core/geom"
)

// Builder owns the mutable blocker grid. Every blocker is registered under
// a source id so that it can be removed exactly. Snapshot publishes an
// immutable Mesh, recomputing only the tiles touched since the last one.
type Builder struct {
	grid
	tiles   []*tile
	owned   []bool
	dirty   map[int]struct{}
	sources map[uuid.UUID][]int
	version uint64
	last    *Mesh
}

func NewBuilder(cfg Config, bounds geom.Rect) *Builder {
	g := newGrid(cfg, bounds)
	b := &Builder{
		grid:    g,
		tiles:   make([]*tile, g.tw*g.th),
		owned:   make([]bool, g.tw*g.th),
		dirty:   make(map[int]struct{}),
		sources: make(map[uuid.UUID][]int),
	}
	for i := range b.tiles {
		b.tiles[i] = newTile(g.tileSize)
		b.owned[i] = true
		b.dirty[i] = struct{}{}
	}
	return b
}

// Has reports whether a source is registered.
func (b *Builder) Has(id uuid.UUID) bool {
	_, ok := b.sources[id]
	return ok
}

// Sources returns the number of registered sources.
func (b *Builder) Sources() int { return len(b.sources) }

// Add registers the cells covered by polys as blocked by source id.
func (b *Builder) Add(id uuid.UUID, polys []geom.Polygon) error {
	if _, ok := b.sources[id]; ok {
		return &InvariantViolation{Op: "add", Source: id, Detail: "source already registered"}
	}
	cells := b.rasterize(polys)
	for _, idx := range cells {
		t, local := b.writable(idx)
		t.counts[local]++
	}
	b.sources[id] = cells
	return nil
}

// Remove releases every cell blocked by source id.
func (b *Builder) Remove(id uuid.UUID) error {
	cells, ok := b.sources[id]
	if !ok {
		return &InvariantViolation{Op: "remove", Source: id, Detail: "unknown source"}
	}
	for _, idx := range cells {
		t, local := b.writable(idx)
		if t.counts[local] == 0 {
			x, y := b.coords(idx)
			return &InvariantViolation{
				Op:     "remove",
				Source: id,
				Detail: fmt.Sprintf("blocker count below zero at cell (%d,%d)", x, y),
			}
		}
		t.counts[local]--
	}
	delete(b.sources, id)
	return nil
}

// Dirty reports whether Snapshot would produce a new version.
func (b *Builder) Dirty() bool { return len(b.dirty) > 0 }

// DirtyTiles returns the number of tiles awaiting recomputation.
func (b *Builder) DirtyTiles() int { return len(b.dirty) }

// Snapshot recomputes the dirty tiles and returns the current mesh. Without
// changes it returns the previous mesh.
func (b *Builder) Snapshot() *Mesh {
	if len(b.dirty) == 0 && b.last != nil {
		return b.last
	}

	b.version++
	for ti := range b.dirty {
		t := b.tiles[ti]
		b.relabel(ti, t)
		t.version = b.version
	}
	clear(b.dirty)

	tiles := make([]*tile, len(b.tiles))
	copy(tiles, b.tiles)
	for i := range b.owned {
		b.owned[i] = false
	}

	b.last = &Mesh{labeling: b.link(tiles), version: b.version}
	return b.last
}

func (b *Builder) writable(idx int) (*tile, int) {
	x, y := b.coords(idx)
	ti, local := b.locate(x, y)
	if !b.owned[ti] {
		b.tiles[ti] = b.tiles[ti].clone()
		b.owned[ti] = true
	}
	b.dirty[ti] = struct{}{}
	return b.tiles[ti], local
}
