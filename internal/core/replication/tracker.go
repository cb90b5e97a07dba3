package replication

import (
	"bytes"
	"encoding/json"
	"slices"

	"github.com/cespare/xxhash/v2"

	"github.com/zeusync/homestead/internal/core/world"
)

// Delta is the change of one entity in one tick. Seq numbers every delta
// of an entity; reliable deltas chain through PrevReliable so a client can
// apply them in the order they were produced. Hash fingerprints the
// entity's reliable components after a reliable delta.
type Delta struct {
	Entity       world.NetID                `json:"entity"`
	Kind         EntityKind                 `json:"kind,omitempty"`
	Tick         uint64                     `json:"tick"`
	Seq          uint64                     `json:"seq"`
	PrevReliable uint64                     `json:"prev"`
	Reliable     bool                       `json:"reliable"`
	Spawn        bool                       `json:"spawn,omitempty"`
	Despawn      bool                       `json:"despawn,omitempty"`
	Changes      map[string]json.RawMessage `json:"changes,omitempty"`
	Hash         uint64                     `json:"hash,omitempty"`
}

// Batch is the deltas of one tick sent over one channel.
type Batch struct {
	Tick   uint64  `json:"tick"`
	Deltas []Delta `json:"deltas"`
}

// Snapshot is the full replicated state at a tick.
type Snapshot struct {
	Tick     uint64        `json:"tick"`
	Entities []EntityState `json:"entities"`
}

type EntityState struct {
	ID         world.NetID                `json:"id"`
	Kind       EntityKind                 `json:"kind"`
	Seq        uint64                     `json:"seq"`
	Reliable   uint64                     `json:"reliable"`
	Components map[string]json.RawMessage `json:"components"`
}

var null = json.RawMessage("null")

type tracked struct {
	kind     EntityKind
	comps    map[string][]byte
	sums     map[string]uint64
	seq      uint64
	reliable uint64
}

// Tracker turns successive world states into deltas. It is owned by the
// tick goroutine.
type Tracker struct {
	apertures ApertureSource
	// refresh resends unreliable components every refresh diffs so that
	// lost datagrams are eventually repaired. Zero disables it.
	refresh uint64

	entities map[world.NetID]*tracked
	order    []world.NetID
	gone     map[world.NetID]uint64
	diffs    uint64
	tick     uint64
}

func NewTracker(apertures ApertureSource, refresh uint64) *Tracker {
	return &Tracker{
		apertures: apertures,
		refresh:   refresh,
		entities:  make(map[world.NetID]*tracked),
		gone:      make(map[world.NetID]uint64),
	}
}

// Diff captures the world and returns the deltas since the previous call,
// reliable ones first.
func (t *Tracker) Diff(w *world.World) (rel, unrel []Delta, err error) {
	c, err := captureWorld(w, t.apertures)
	if err != nil {
		return nil, nil, err
	}
	t.diffs++
	t.tick = w.Tick
	clear(t.gone)
	refresh := t.refresh > 0 && t.diffs%t.refresh == 0

	for _, id := range c.order {
		cur := c.entities[id]
		te, ok := t.entities[id]
		if !ok {
			te = &tracked{kind: cur.kind, comps: cur.comps, sums: sums(cur.comps)}
			t.entities[id] = te
			changes := make(map[string]json.RawMessage, len(cur.comps))
			for name, data := range cur.comps {
				changes[name] = data
			}
			rel = append(rel, t.reliableDelta(id, te, changes, true))
			continue
		}

		relChanges, unrelChanges := t.compare(te, cur.comps, refresh)
		te.comps, te.sums = cur.comps, sums(cur.comps)
		if len(relChanges) > 0 {
			rel = append(rel, t.reliableDelta(id, te, relChanges, false))
		}
		if len(unrelChanges) > 0 {
			te.seq++
			unrel = append(unrel, Delta{
				Entity:       id,
				Tick:         t.tick,
				Seq:          te.seq,
				PrevReliable: te.reliable,
				Changes:      unrelChanges,
			})
		}
	}

	var removed []world.NetID
	for id := range t.entities {
		if _, ok := c.entities[id]; !ok {
			removed = append(removed, id)
		}
	}
	slices.SortFunc(removed, compareIDs)
	for _, id := range removed {
		te := t.entities[id]
		te.seq++
		rel = append(rel, Delta{
			Entity:       id,
			Kind:         te.kind,
			Tick:         t.tick,
			Seq:          te.seq,
			PrevReliable: te.reliable,
			Reliable:     true,
			Despawn:      true,
		})
		t.gone[id] = te.seq
		delete(t.entities, id)
	}
	t.order = c.order
	return rel, unrel, nil
}

func (t *Tracker) reliableDelta(id world.NetID, te *tracked, changes map[string]json.RawMessage, spawn bool) Delta {
	te.seq++
	d := Delta{
		Entity:       id,
		Tick:         t.tick,
		Seq:          te.seq,
		PrevReliable: te.reliable,
		Reliable:     true,
		Spawn:        spawn,
		Changes:      changes,
		Hash:         reliableHash(te.comps),
	}
	if spawn {
		d.Kind = te.kind
	}
	te.reliable = te.seq
	return d
}

// compare splits the component changes of an entity by reliability.
// Removed components map to null.
func (t *Tracker) compare(te *tracked, comps map[string][]byte, refresh bool) (rel, unrel map[string]json.RawMessage) {
	put := func(name string, data json.RawMessage) {
		if Reliable(name) {
			if rel == nil {
				rel = make(map[string]json.RawMessage)
			}
			rel[name] = data
			return
		}
		if unrel == nil {
			unrel = make(map[string]json.RawMessage)
		}
		unrel[name] = data
	}
	for name, data := range comps {
		sum, ok := te.sums[name]
		switch {
		case !ok:
			put(name, data)
		case sum != xxhash.Sum64(data):
			put(name, data)
		case refresh && !Reliable(name):
			put(name, data)
		}
	}
	for name := range te.comps {
		if _, ok := comps[name]; !ok {
			put(name, null)
		}
	}
	return rel, unrel
}

// Snapshot returns the state as of the last Diff.
func (t *Tracker) Snapshot() *Snapshot {
	s := &Snapshot{Tick: t.tick, Entities: make([]EntityState, 0, len(t.order))}
	for _, id := range t.order {
		te := t.entities[id]
		comps := make(map[string]json.RawMessage, len(te.comps))
		for name, data := range te.comps {
			comps[name] = data
		}
		s.Entities = append(s.Entities, EntityState{
			ID:         id,
			Kind:       te.kind,
			Seq:        te.seq,
			Reliable:   te.reliable,
			Components: comps,
		})
	}
	return s
}

// Seq is the reliable sequence of an entity after the last Diff, including
// entities despawned by it.
func (t *Tracker) Seq(id world.NetID) uint64 {
	if te, ok := t.entities[id]; ok {
		return te.reliable
	}
	return t.gone[id]
}

// Hash is the reliable-state fingerprint of an entity.
func (t *Tracker) Hash(id world.NetID) (uint64, bool) {
	te, ok := t.entities[id]
	if !ok {
		return 0, false
	}
	return reliableHash(te.comps), true
}

func (t *Tracker) Len() int { return len(t.entities) }

func sums(comps map[string][]byte) map[string]uint64 {
	out := make(map[string]uint64, len(comps))
	for name, data := range comps {
		out[name] = xxhash.Sum64(data)
	}
	return out
}

func compareIDs(a, b world.NetID) int { return bytes.Compare(a[:], b[:]) }
