package navigation

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/homestead/internal/core/geom"
	"github.com/zeusync/homestead/internal/core/observability/log"
)

var testBounds = geom.Rect{Min: geom.V(0, 0), Max: geom.V(16, 16)}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.TileSize = 16
	return cfg
}

func rect(x0, y0, x1, y1 float64) geom.Polygon {
	return geom.Polygon{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}}
}

func TestIncrementalMatchesFromScratch(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	b := NewBuilder(testConfig(), testBounds)
	live := make(map[uuid.UUID][]geom.Polygon)
	var order []uuid.UUID

	for step := 0; step < 120; step++ {
		if len(order) > 0 && rng.IntN(3) == 0 {
			i := rng.IntN(len(order))
			id := order[i]
			order = append(order[:i], order[i+1:]...)
			require.NoError(t, b.Remove(id))
			delete(live, id)
		} else {
			x, y := rng.Float64()*14, rng.Float64()*14
			w, h := 0.3+rng.Float64()*3, 0.3+rng.Float64()*3
			angle := rng.Float64() * 3
			poly := geom.Footprint{Center: geom.V(x, y), Half: geom.V(w/2, h/2), Angle: angle}.Polygon()
			id := uuid.New()
			require.NoError(t, b.Add(id, []geom.Polygon{poly}))
			live[id] = []geom.Polygon{poly}
			order = append(order, id)
		}

		if step%5 != 0 {
			continue
		}
		incremental := b.Snapshot()

		scratch := NewBuilder(testConfig(), testBounds)
		for _, id := range order {
			require.NoError(t, scratch.Add(id, live[id]))
		}
		fresh := scratch.Snapshot()

		require.Equal(t, fresh.Canonical(), incremental.Canonical(), "step %d", step)
		require.Equal(t, fresh.Fingerprint(), incremental.Fingerprint())
		require.Equal(t, fresh.Components(), incremental.Components())
	}
}

func TestBuilderInvariants(t *testing.T) {
	b := NewBuilder(testConfig(), testBounds)
	id := uuid.New()
	require.NoError(t, b.Add(id, []geom.Polygon{rect(1, 1, 2, 2)}))

	err := b.Add(id, []geom.Polygon{rect(3, 3, 4, 4)})
	assert.ErrorIs(t, err, ErrInvariantViolation)

	require.NoError(t, b.Remove(id))
	err = b.Remove(id)
	assert.ErrorIs(t, err, ErrInvariantViolation)

	var violation *InvariantViolation
	require.ErrorAs(t, err, &violation)
	assert.Equal(t, "remove", violation.Op)
	assert.Equal(t, id, violation.Source)
}

func TestSnapshotVersions(t *testing.T) {
	b := NewBuilder(testConfig(), testBounds)
	first := b.Snapshot()
	assert.Same(t, first, b.Snapshot(), "no changes, no new mesh")

	before := first.TileVersions(testBounds)
	require.NoError(t, b.Add(uuid.New(), []geom.Polygon{rect(1, 1, 2, 2)}))
	assert.Equal(t, 1, b.DirtyTiles())

	second := b.Snapshot()
	assert.Greater(t, second.Version(), first.Version())

	after := second.TileVersions(testBounds)
	changed := 0
	for ti, v := range after {
		if before[ti] != v {
			changed++
		}
	}
	assert.Equal(t, 1, changed, "only the touched tile is recomputed")
	assert.False(t, second.TilesUnchanged(before))
	assert.True(t, second.TilesUnchanged(after))
}

func TestPublishedMeshIsImmutable(t *testing.T) {
	b := NewBuilder(testConfig(), testBounds)
	published := b.Snapshot()
	fingerprint := published.Fingerprint()

	require.NoError(t, b.Add(uuid.New(), []geom.Polygon{rect(0, 7.75, 16, 8.25)}))
	b.Snapshot()

	assert.Equal(t, fingerprint, published.Fingerprint())
	assert.True(t, published.WalkableAt(geom.V(4, 8)))
}

func TestWallSplitsComponents(t *testing.T) {
	b := NewBuilder(testConfig(), testBounds)
	require.NoError(t, b.Add(uuid.New(), []geom.Polygon{rect(7.75, -1, 8.25, 17)}))
	m := b.Snapshot()

	assert.Equal(t, 2, m.Components())
	assert.NotEqual(t, m.ComponentAt(geom.V(2, 2)), m.ComponentAt(geom.V(14, 2)))
	assert.Equal(t, -1, m.ComponentAt(geom.V(8, 2)))

	_, err := m.FindPath(context.Background(), geom.V(2, 2), geom.V(14, 2))
	assert.ErrorIs(t, err, ErrNoPath)
}

func TestFindPathAroundWall(t *testing.T) {
	b := NewBuilder(testConfig(), testBounds)
	require.NoError(t, b.Add(uuid.New(), []geom.Polygon{rect(7.75, -1, 8.25, 12)}))
	m := b.Snapshot()

	from, to := geom.V(2, 2), geom.V(14, 2)
	path, err := m.FindPath(context.Background(), from, to)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(path), 3)
	assert.Equal(t, from, path[0])
	assert.Equal(t, to, path[len(path)-1])

	var length float64
	for i := 1; i < len(path); i++ {
		assert.True(t, m.SegmentClear(path[i-1], path[i]), "leg %d crosses a blocked cell", i)
		length += geom.Distance(path[i-1], path[i])
	}
	assert.Greater(t, length, geom.Distance(from, to)+8)
	assert.True(t, m.PathClear(path[1:]))
}

func TestFindPathStraightLine(t *testing.T) {
	m := NewBuilder(testConfig(), testBounds).Snapshot()
	path, err := m.FindPath(context.Background(), geom.V(1, 1), geom.V(12, 9))
	require.NoError(t, err)
	assert.Equal(t, []geom.Vec2{geom.V(1, 1), geom.V(12, 9)}, path)
}

func TestFindPathSnapsBlockedGoal(t *testing.T) {
	b := NewBuilder(testConfig(), testBounds)
	require.NoError(t, b.Add(uuid.New(), []geom.Polygon{rect(11.5, 11.5, 12.5, 12.5)}))
	m := b.Snapshot()

	goal := geom.V(12, 12)
	path, err := m.FindPath(context.Background(), geom.V(2, 2), goal)
	require.NoError(t, err)
	end := path[len(path)-1]
	assert.True(t, m.WalkableAt(end))
	assert.Less(t, geom.Distance(end, goal), 1.0)
}

func TestFindPathEnclosed(t *testing.T) {
	b := NewBuilder(testConfig(), testBounds)
	ring := []geom.Polygon{
		rect(0.5, 0.5, 4.5, 1), rect(0.5, 4, 4.5, 4.5),
		rect(0.5, 0.5, 1, 4.5), rect(4, 0.5, 4.5, 4.5),
	}
	require.NoError(t, b.Add(uuid.New(), ring))
	m := b.Snapshot()

	_, err := m.FindPath(context.Background(), geom.V(2.5, 2.5), geom.V(10, 10))
	assert.ErrorIs(t, err, ErrNoPath)

	_, err = m.FindPath(context.Background(), geom.V(2.5, 2.5), geom.V(30, 30))
	assert.ErrorIs(t, err, ErrOutOfBounds)
}

func TestFindPathCancelled(t *testing.T) {
	m := NewBuilder(testConfig(), testBounds).Snapshot()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.FindPath(ctx, geom.V(1, 1), geom.V(15, 15))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLabelOverlay(t *testing.T) {
	m := NewBuilder(testConfig(), testBounds).Snapshot()
	wall := m.Rasterize([]geom.Polygon{rect(7.75, -1, 8.25, 17)})
	require.NotEmpty(t, wall)

	overlay := NewOverlay()
	overlay.Block(m, wall)
	hypothetical := m.Label(overlay)
	assert.Equal(t, 2, hypothetical.Components())
	assert.NotEqual(t, hypothetical.ComponentAt(geom.V(2, 2)), hypothetical.ComponentAt(geom.V(14, 2)))
	assert.Equal(t, 1, m.Components(), "the mesh itself is untouched")

	overlay.Free(m, wall)
	assert.Equal(t, m.Fingerprint(), m.Label(overlay).Fingerprint())
}

func TestTrianglesCoverWalkableArea(t *testing.T) {
	b := NewBuilder(testConfig(), testBounds)
	require.NoError(t, b.Add(uuid.New(), []geom.Polygon{rect(3, 3, 6, 5), rect(10, 1, 11, 15)}))
	m := b.Snapshot()

	walkable := 0
	w, h := m.Size()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if m.Walkable(Cell{X: x, Y: y}) {
				walkable++
			}
		}
	}

	var area float64
	for _, tri := range m.Triangles() {
		area += tri.Area()
	}
	assert.InDelta(t, float64(walkable)*m.CellSize()*m.CellSize(), area, 1e-6)
}

type staticSource struct{ mesh *Mesh }

func (s staticSource) Mesh() *Mesh { return s.mesh }

func TestPathfinder(t *testing.T) {
	m := NewBuilder(testConfig(), testBounds).Snapshot()
	pf := NewPathfinder(staticSource{mesh: m}, DefaultPathfinderConfig(), log.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- pf.Run(ctx) }()

	agent := uuid.New()
	require.NoError(t, pf.Request(Request{Token: Token{Agent: agent, Goal: 1}, From: geom.V(1, 1), To: geom.V(5, 5)}))
	pf.Wait()

	results := pf.Drain()
	require.Len(t, results, 1)
	assert.Equal(t, uint64(1), results[0].Goal)
	assert.NoError(t, results[0].Err)
	assert.Equal(t, m.Version(), results[0].Version)
	assert.Empty(t, pf.Drain())

	cancel()
	assert.NoError(t, <-done)
}

func TestPathfinderCancel(t *testing.T) {
	m := NewBuilder(testConfig(), testBounds).Snapshot()
	pf := NewPathfinder(staticSource{mesh: m}, DefaultPathfinderConfig(), log.NewNop())

	agent := uuid.New()
	require.NoError(t, pf.Request(Request{Token: Token{Agent: agent, Goal: 1}, From: geom.V(1, 1), To: geom.V(5, 5)}))
	require.NoError(t, pf.Request(Request{Token: Token{Agent: agent, Goal: 2}, From: geom.V(1, 1), To: geom.V(6, 6)}))
	other := uuid.New()
	require.NoError(t, pf.Request(Request{Token: Token{Agent: other, Goal: 1}, From: geom.V(1, 1), To: geom.V(6, 6)}))
	pf.Cancel(other)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = pf.Run(ctx) }()
	pf.Wait()

	results := pf.Drain()
	require.Len(t, results, 1, "superseded and cancelled requests produce nothing")
	assert.Equal(t, agent, results[0].Agent)
	assert.Equal(t, uint64(2), results[0].Goal)
}

func TestPathfinderFullQueueKeepsPrevious(t *testing.T) {
	m := NewBuilder(testConfig(), testBounds).Snapshot()
	config := DefaultPathfinderConfig()
	config.QueueSize = 1
	pf := NewPathfinder(staticSource{mesh: m}, config, log.NewNop())

	agent := uuid.New()
	require.NoError(t, pf.Request(Request{Token: Token{Agent: agent, Goal: 1}, From: geom.V(1, 1), To: geom.V(5, 5)}))
	err := pf.Request(Request{Token: Token{Agent: agent, Goal: 2}, From: geom.V(1, 1), To: geom.V(6, 6)})
	require.ErrorIs(t, err, ErrQueueFull)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = pf.Run(ctx) }()
	pf.Wait()

	results := pf.Drain()
	require.Len(t, results, 1, "a rejected request does not cancel the queued one")
	assert.Equal(t, uint64(1), results[0].Goal)
	assert.NoError(t, results[0].Err)
}
