package navigation

import "github.com/zeusync/homestead/internal/core/geom"

type Triangle [3]geom.Vec2

// Triangles covers the walkable area with triangles for consumers that want
// a conventional navmesh. Walkable cells are merged greedily into
// rectangles, two triangles each.
func (m *Mesh) Triangles() []Triangle {
	used := make([]bool, m.w*m.h)
	free := func(x, y int) bool { return m.walkable(x, y) && !used[m.index(x, y)] }

	var out []Triangle
	for y := 0; y < m.h; y++ {
		for x := 0; x < m.w; x++ {
			if !free(x, y) {
				continue
			}
			x1 := x
			for x1+1 < m.w && free(x1+1, y) {
				x1++
			}
			y1 := y
		grow:
			for y1+1 < m.h {
				for cx := x; cx <= x1; cx++ {
					if !free(cx, y1+1) {
						break grow
					}
				}
				y1++
			}
			for cy := y; cy <= y1; cy++ {
				for cx := x; cx <= x1; cx++ {
					used[m.index(cx, cy)] = true
				}
			}

			half := geom.V(m.cell/2, m.cell/2)
			lo := m.center(x, y).Sub(half)
			hi := m.center(x1, y1).Add(half)
			a, b, c, d := lo, geom.V(hi.X(), lo.Y()), hi, geom.V(lo.X(), hi.Y())
			out = append(out, Triangle{a, b, c}, Triangle{a, c, d})
		}
	}
	return out
}

func (t Triangle) Area() float64 { return geom.Polygon(t[:]).Area() }
