package world

import (
	"encoding/json"
	"fmt"

	"github.com/zeusync/homestead/internal/core/asset"
	"github.com/zeusync/homestead/internal/core/geom"
)

// Snapshot is a deep, ordered copy of a World. Encoding the same world twice
// yields identical bytes.
type Snapshot struct {
	Tick     uint64    `json:"tick"`
	Bounds   geom.Rect `json:"bounds"`
	Objects  []*Object `json:"objects"`
	Walls    []*Wall   `json:"walls"`
	Lots     []*Lot    `json:"lots"`
	Roads    []*Road   `json:"roads,omitempty"`
	Families []*Family `json:"families"`
	Actors   []*Actor  `json:"actors"`
}

func (w *World) Snapshot() *Snapshot {
	s := &Snapshot{Tick: w.Tick, Bounds: w.Bounds}
	for _, o := range w.Objects() {
		s.Objects = append(s.Objects, o.clone())
	}
	for _, v := range w.Walls() {
		c := *v
		s.Walls = append(s.Walls, &c)
	}
	for _, l := range w.Lots() {
		c := *l
		c.Polygon = l.Polygon.Clone()
		s.Lots = append(s.Lots, &c)
	}
	for _, r := range w.Roads() {
		c := *r
		s.Roads = append(s.Roads, &c)
	}
	for _, f := range w.Families() {
		s.Families = append(s.Families, f.clone())
	}
	for _, a := range w.Actors() {
		s.Actors = append(s.Actors, a.clone())
	}
	return s
}

func (s *Snapshot) Encode() ([]byte, error) {
	return json.Marshal(s)
}

func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Restore builds a World from a snapshot, resolving descriptors through
// lookup. Objects whose descriptor is unknown are returned as an error.
func Restore(s *Snapshot, lookup func(id string) (*asset.Descriptor, bool)) (*World, error) {
	w := New(s.Bounds)
	w.Tick = s.Tick

	for _, o := range s.Objects {
		desc, ok := lookup(o.Descriptor)
		if !ok {
			return nil, fmt.Errorf("%w: %s (object %s)", asset.ErrUnknownDescriptor, o.Descriptor, o.ID)
		}
		c := o.clone()
		c.Desc = desc
		c.Components = desc.InstanceComponents()
		if err := w.AddObject(c); err != nil {
			return nil, err
		}
	}
	for _, v := range s.Walls {
		c := *v
		if err := w.AddWall(&c); err != nil {
			return nil, err
		}
	}
	for _, l := range s.Lots {
		c := *l
		c.Polygon = l.Polygon.Clone()
		if err := w.AddLot(&c); err != nil {
			return nil, err
		}
	}
	for _, r := range s.Roads {
		c := *r
		if err := w.AddRoad(&c); err != nil {
			return nil, err
		}
	}
	for _, f := range s.Families {
		if err := w.AddFamily(f.clone()); err != nil {
			return nil, err
		}
	}
	for _, a := range s.Actors {
		if err := w.AddActor(a.clone()); err != nil {
			return nil, err
		}
	}
	return w, nil
}
