package navigation

import (
	"slices"

	"github.com/cespare/xxhash/v2"
)

// tile is a square block of cells. Tiles are shared between the builder and
// published meshes, so a published tile is never written again; the builder
// clones before touching one.
type tile struct {
	counts  []uint32
	labels  []int32
	regions int32
	version uint64
}

func newTile(size int) *tile {
	return &tile{
		counts: make([]uint32, size*size),
		labels: make([]int32, size*size),
	}
}

func (t *tile) clone() *tile {
	return &tile{
		counts:  slices.Clone(t.counts),
		labels:  slices.Clone(t.labels),
		regions: t.regions,
		version: t.version,
	}
}

// relabel flood-fills the walkable cells of tile ti into 4-connected local
// regions. Cells outside the grid are never walkable.
func (g grid) relabel(ti int, t *tile) {
	ox, oy := g.tileOrigin(ti)
	size := g.tileSize
	for i := range t.labels {
		t.labels[i] = -1
	}

	var next int32
	stack := make([]int, 0, size)
	for start := range t.counts {
		if t.labels[start] >= 0 || !g.openLocal(t, ox, oy, start) {
			continue
		}
		t.labels[start] = next
		stack = append(stack[:0], start)
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			lx, ly := cur%size, cur/size
			for _, d := range [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
				nx, ny := lx+d[0], ly+d[1]
				if nx < 0 || ny < 0 || nx >= size || ny >= size {
					continue
				}
				n := ny*size + nx
				if t.labels[n] >= 0 || !g.openLocal(t, ox, oy, n) {
					continue
				}
				t.labels[n] = next
				stack = append(stack, n)
			}
		}
		next++
	}
	t.regions = next
}

func (g grid) openLocal(t *tile, ox, oy, local int) bool {
	x, y := ox+local%g.tileSize, oy+local/g.tileSize
	return g.inside(x, y) && t.counts[local] == 0
}

// labeling is the global region partition over a set of tiles.
type labeling struct {
	grid
	tiles   []*tile
	offsets []int32
	comp    []int32
	count   int
}

func (g grid) link(tiles []*tile) labeling {
	offsets := make([]int32, len(tiles))
	var total int32
	for i, t := range tiles {
		offsets[i] = total
		total += t.regions
	}

	parent := make([]int32, total)
	for i := range parent {
		parent[i] = int32(i)
	}
	find := func(x int32) int32 {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	union := func(a, b int32) {
		ra, rb := find(a), find(b)
		if ra == rb {
			return
		}
		if ra < rb {
			parent[rb] = ra
		} else {
			parent[ra] = rb
		}
	}

	l := labeling{grid: g, tiles: tiles, offsets: offsets}
	size := g.tileSize
	for ti := range tiles {
		ox, oy := g.tileOrigin(ti)
		// Right border.
		if x := ox + size - 1; x+1 < g.w {
			for y := oy; y < min(oy+size, g.h); y++ {
				a, b := l.region(x, y), l.region(x+1, y)
				if a >= 0 && b >= 0 {
					union(a, b)
				}
			}
		}
		// Top border.
		if y := oy + size - 1; y+1 < g.h {
			for x := ox; x < min(ox+size, g.w); x++ {
				a, b := l.region(x, y), l.region(x, y+1)
				if a >= 0 && b >= 0 {
					union(a, b)
				}
			}
		}
	}

	l.comp = make([]int32, total)
	dense := make(map[int32]int32)
	for i := range l.comp {
		root := find(int32(i))
		id, ok := dense[root]
		if !ok {
			id = int32(len(dense))
			dense[root] = id
		}
		l.comp[i] = id
	}
	l.count = len(dense)
	return l
}

// region returns the global region of a cell or -1 when blocked.
func (l *labeling) region(x, y int) int32 {
	if !l.inside(x, y) {
		return -1
	}
	ti, local := l.locate(x, y)
	label := l.tiles[ti].labels[local]
	if label < 0 {
		return -1
	}
	return l.offsets[ti] + label
}

func (l *labeling) walkable(x, y int) bool {
	if !l.inside(x, y) {
		return false
	}
	ti, local := l.locate(x, y)
	return l.tiles[ti].counts[local] == 0
}

func (l *labeling) component(x, y int) int32 {
	r := l.region(x, y)
	if r < 0 {
		return -1
	}
	return l.comp[r]
}

// Walkable reports whether an agent may stand in the cell.
func (l *labeling) Walkable(c Cell) bool { return l.walkable(c.X, c.Y) }

// Component returns the connected component of the cell, or -1.
func (l *labeling) Component(c Cell) int { return int(l.component(c.X, c.Y)) }

// Components returns the number of connected components.
func (l *labeling) Components() int { return l.count }

// Canonical returns the partition of the grid with components numbered in
// row-major order of first appearance. Two meshes with equal Canonical
// output have the same walkable cells and the same connectivity.
func (l *labeling) Canonical() []int32 {
	out := make([]int32, l.w*l.h)
	remap := make(map[int32]int32)
	for y := 0; y < l.h; y++ {
		for x := 0; x < l.w; x++ {
			c := l.component(x, y)
			if c >= 0 {
				id, ok := remap[c]
				if !ok {
					id = int32(len(remap))
					remap[c] = id
				}
				c = id
			}
			out[l.index(x, y)] = c
		}
	}
	return out
}

// Fingerprint hashes Canonical.
func (l *labeling) Fingerprint() uint64 {
	canon := l.Canonical()
	buf := make([]byte, 4*len(canon))
	for i, v := range canon {
		u := uint32(v)
		buf[4*i] = byte(u)
		buf[4*i+1] = byte(u >> 8)
		buf[4*i+2] = byte(u >> 16)
		buf[4*i+3] = byte(u >> 24)
	}
	return xxhash.Sum64(buf)
}
