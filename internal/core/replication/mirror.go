package replication

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/zeusync/homestead/internal/core/world"
)

// MirrorEntity is the client copy of one replicated entity.
type MirrorEntity struct {
	ID         world.NetID
	Kind       EntityKind
	Seq        uint64
	Components map[string]json.RawMessage

	compSeq map[string]uint64
}

// Mirror is the client view of the server state. Reliable deltas are
// applied strictly in per-entity order; early ones wait in a buffer.
// Unreliable deltas are applied latest-wins per component.
type Mirror struct {
	mu         sync.RWMutex
	entities   map[world.NetID]*MirrorEntity
	gone       map[world.NetID]uint64
	pending    map[world.NetID][]Delta
	maxPending int
	tick       uint64
	synced     bool
}

// NewMirror returns an empty mirror. maxPending bounds the buffered deltas
// of one entity before the mirror gives up and asks for a resync.
func NewMirror(maxPending int) *Mirror {
	return &Mirror{
		entities:   make(map[world.NetID]*MirrorEntity),
		gone:       make(map[world.NetID]uint64),
		pending:    make(map[world.NetID][]Delta),
		maxPending: maxPending,
	}
}

// ApplySnapshot replaces the whole mirror.
func (m *Mirror) ApplySnapshot(s *Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	clear(m.entities)
	clear(m.gone)
	clear(m.pending)
	for _, es := range s.Entities {
		e := &MirrorEntity{
			ID:         es.ID,
			Kind:       es.Kind,
			Seq:        es.Reliable,
			Components: maps.Clone(es.Components),
			compSeq:    make(map[string]uint64, len(es.Components)),
		}
		if e.Components == nil {
			e.Components = make(map[string]json.RawMessage)
		}
		for name := range e.Components {
			e.compSeq[name] = es.Seq
		}
		m.entities[es.ID] = e
	}
	m.tick = s.Tick
	m.synced = true
}

// ApplyBatch applies every delta of a batch and returns the first desync.
func (m *Mirror) ApplyBatch(b Batch) error {
	for _, d := range b.Deltas {
		if err := m.Apply(d); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.tick = max(m.tick, b.Tick)
	m.mu.Unlock()
	return nil
}

// Apply applies one delta. A delta that does not fit the mirror returns an
// error wrapping ErrReplicationDesync.
func (m *Mirror) Apply(d Delta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.synced {
		return desync(d.Entity, "no snapshot")
	}
	if !d.Reliable {
		m.applyUnreliable(d)
		return nil
	}

	last := m.lastReliable(d.Entity)
	switch {
	case d.Seq <= last:
		return nil
	case d.PrevReliable < last:
		return desync(d.Entity, "delta %d builds on %d, mirror is at %d", d.Seq, d.PrevReliable, last)
	case d.PrevReliable > last:
		return m.buffer(d)
	}
	if err := m.applyReliable(d); err != nil {
		return err
	}
	return m.drain(d.Entity)
}

func (m *Mirror) lastReliable(id world.NetID) uint64 {
	if e, ok := m.entities[id]; ok {
		return e.Seq
	}
	return m.gone[id]
}

func (m *Mirror) buffer(d Delta) error {
	queue := m.pending[d.Entity]
	for _, q := range queue {
		if q.Seq == d.Seq {
			return nil
		}
	}
	if m.maxPending > 0 && len(queue) >= m.maxPending {
		delete(m.pending, d.Entity)
		return desync(d.Entity, "%d deltas waiting for %d", len(queue)+1, m.lastReliable(d.Entity)+1)
	}
	m.pending[d.Entity] = append(queue, d)
	return nil
}

// drain applies buffered deltas that have become next in line.
func (m *Mirror) drain(id world.NetID) error {
	for {
		queue := m.pending[id]
		if len(queue) == 0 {
			delete(m.pending, id)
			return nil
		}
		last := m.lastReliable(id)
		i := slices.IndexFunc(queue, func(d Delta) bool { return d.PrevReliable == last })
		if i < 0 {
			// Drop what is now behind.
			queue = slices.DeleteFunc(queue, func(d Delta) bool { return d.Seq <= last })
			if len(queue) == 0 {
				delete(m.pending, id)
			} else {
				m.pending[id] = queue
			}
			return nil
		}
		d := queue[i]
		m.pending[id] = slices.Delete(queue, i, i+1)
		if err := m.applyReliable(d); err != nil {
			return err
		}
	}
}

func (m *Mirror) applyReliable(d Delta) error {
	if d.Despawn {
		delete(m.entities, d.Entity)
		m.gone[d.Entity] = d.Seq
		return nil
	}
	e, ok := m.entities[d.Entity]
	if !ok {
		if !d.Spawn {
			return desync(d.Entity, "update %d for unknown entity", d.Seq)
		}
		e = &MirrorEntity{
			ID:         d.Entity,
			Kind:       d.Kind,
			Components: make(map[string]json.RawMessage, len(d.Changes)),
			compSeq:    make(map[string]uint64, len(d.Changes)),
		}
		m.entities[d.Entity] = e
		delete(m.gone, d.Entity)
	}
	for name, data := range d.Changes {
		e.set(name, data, d.Seq)
	}
	e.Seq = d.Seq
	if got := reliableHash(e.Components); got != d.Hash {
		return desync(d.Entity, "hash %x after delta %d, server has %x", got, d.Seq, d.Hash)
	}
	return nil
}

func (m *Mirror) applyUnreliable(d Delta) {
	e, ok := m.entities[d.Entity]
	if !ok || d.PrevReliable > e.Seq {
		// Refers to state the mirror has not seen yet; a later update or
		// refresh repairs it.
		return
	}
	for name, data := range d.Changes {
		if d.Seq > e.compSeq[name] {
			e.set(name, data, d.Seq)
		}
	}
}

func (e *MirrorEntity) set(name string, data json.RawMessage, seq uint64) {
	e.compSeq[name] = seq
	if bytes.Equal(data, null) {
		delete(e.Components, name)
		return
	}
	e.Components[name] = data
}

// Entity returns a copy of a mirrored entity.
func (m *Mirror) Entity(id world.NetID) (MirrorEntity, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entities[id]
	if !ok {
		return MirrorEntity{}, false
	}
	return MirrorEntity{ID: e.ID, Kind: e.Kind, Seq: e.Seq, Components: maps.Clone(e.Components)}, true
}

func (m *Mirror) Component(id world.NetID, name string) (json.RawMessage, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entities[id]
	if !ok {
		return nil, false
	}
	data, ok := e.Components[name]
	return data, ok
}

// Get decodes a mirrored component.
func Get[T any](m *Mirror, id world.NetID, name string) (T, bool, error) {
	var v T
	data, ok := m.Component(id, name)
	if !ok {
		return v, false, nil
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, true, fmt.Errorf("decode %s of %s: %w", name, id, err)
	}
	return v, true, nil
}

// Seq is the last reliable sequence applied for an entity, including
// despawned ones.
func (m *Mirror) Seq(id world.NetID) uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastReliable(id)
}

func (m *Mirror) Has(id world.NetID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.entities[id]
	return ok
}

// Hash is the reliable-state fingerprint of a mirrored entity.
func (m *Mirror) Hash(id world.NetID) (uint64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entities[id]
	if !ok {
		return 0, false
	}
	return reliableHash(e.Components), true
}

// Entities lists the mirrored entities of a kind, or all of them when kind
// is empty.
func (m *Mirror) Entities(kind EntityKind) []world.NetID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]world.NetID, 0, len(m.entities))
	for id, e := range m.entities {
		if kind == "" || e.Kind == kind {
			ids = append(ids, id)
		}
	}
	slices.SortFunc(ids, compareIDs)
	return ids
}

// Pending counts buffered reliable deltas.
func (m *Mirror) Pending() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, q := range m.pending {
		n += len(q)
	}
	return n
}

func (m *Mirror) Tick() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tick
}

// Synced reports whether a snapshot has been applied.
func (m *Mirror) Synced() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.synced
}

// Desynced drops the mirror state until the next snapshot.
func (m *Mirror) Desynced() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.synced = false
	clear(m.pending)
}
