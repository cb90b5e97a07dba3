package client

import (
	"slices"
	"sync"

	"github.com/zeusync/homestead/internal/core/replication"
	"github.com/zeusync/homestead/internal/core/world"
)

// Entity is a replicated entity with its client-side handle.
type Entity struct {
	ID    world.NetID
	Kind  replication.EntityKind
	Local uint32
}

// EntityMap hands out compact local handles for replicated entities, so a
// renderer or game engine can key its own objects without NetIDs. Handles
// are never reused.
type EntityMap struct {
	mu     sync.RWMutex
	byNet  map[world.NetID]Entity
	byLoc  map[uint32]world.NetID
	nextID uint32
}

func NewEntityMap() *EntityMap {
	return &EntityMap{
		byNet: make(map[world.NetID]Entity),
		byLoc: make(map[uint32]world.NetID),
	}
}

func (m *EntityMap) Local(id world.NetID) (uint32, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.byNet[id]
	return e.Local, ok
}

func (m *EntityMap) Net(local uint32) (world.NetID, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byLoc[local]
	return id, ok
}

func (m *EntityMap) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byNet)
}

// Sync matches the map to a snapshot.
func (m *EntityMap) Sync(s *replication.Snapshot) (spawned, despawned []Entity) {
	m.mu.Lock()
	defer m.mu.Unlock()

	present := make(map[world.NetID]bool, len(s.Entities))
	for _, es := range s.Entities {
		present[es.ID] = true
		if _, ok := m.byNet[es.ID]; !ok {
			spawned = append(spawned, m.bind(es.ID, es.Kind))
		}
	}
	for id, e := range m.byNet {
		if !present[id] {
			despawned = append(despawned, e)
			m.unbind(e)
		}
	}
	slices.SortFunc(despawned, func(a, b Entity) int { return int(a.Local) - int(b.Local) })
	return spawned, despawned
}

// Apply binds spawned and releases despawned entities of a batch.
func (m *EntityMap) Apply(b replication.Batch) (spawned, despawned []Entity) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, d := range b.Deltas {
		switch {
		case d.Spawn:
			if _, ok := m.byNet[d.Entity]; !ok {
				spawned = append(spawned, m.bind(d.Entity, d.Kind))
			}
		case d.Despawn:
			if e, ok := m.byNet[d.Entity]; ok {
				despawned = append(despawned, e)
				m.unbind(e)
			}
		}
	}
	return spawned, despawned
}

func (m *EntityMap) bind(id world.NetID, kind replication.EntityKind) Entity {
	m.nextID++
	e := Entity{ID: id, Kind: kind, Local: m.nextID}
	m.byNet[id] = e
	m.byLoc[e.Local] = id
	return e
}

func (m *EntityMap) unbind(e Entity) {
	delete(m.byNet, e.ID)
	delete(m.byLoc, e.Local)
}
