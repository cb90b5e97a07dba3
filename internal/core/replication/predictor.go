package replication

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/zeusync/homestead/internal/core/world"
)

type prediction struct {
	intent    uint64
	entity    world.NetID
	component string
	// value nil predicts the removal of the component.
	value json.RawMessage

	resolved bool
	await    world.NetID
	seq      uint64
}

// Predictor overlays optimistic component values on a mirror until the
// server has answered the intent that caused them. Predictions never touch
// the mirror, so dropping one restores the server value exactly.
type Predictor struct {
	mirror *Mirror

	mu          sync.Mutex
	predictions []*prediction
	mismatches  uint64
}

func NewPredictor(m *Mirror) *Predictor {
	return &Predictor{mirror: m}
}

// Predict records the value a component is expected to take once intent is
// applied. A nil value predicts the removal of the component. entity may
// be a provisional id for an entity the server has not created yet.
func (p *Predictor) Predict(intent uint64, entity world.NetID, component string, value any) error {
	var data json.RawMessage
	if value != nil {
		var err error
		if data, err = json.Marshal(value); err != nil {
			return fmt.Errorf("predict %s: %w", component, err)
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.predictions = append(p.predictions, &prediction{
		intent:    intent,
		entity:    entity,
		component: component,
		value:     data,
	})
	return nil
}

// Component returns the predicted value of a component, or the mirrored
// one when nothing is predicted. The newest prediction wins.
func (p *Predictor) Component(entity world.NetID, name string) (json.RawMessage, bool) {
	p.mu.Lock()
	for i := len(p.predictions) - 1; i >= 0; i-- {
		pr := p.predictions[i]
		if pr.entity == entity && pr.component == name {
			p.mu.Unlock()
			return pr.value, pr.value != nil
		}
	}
	p.mu.Unlock()
	return p.mirror.Component(entity, name)
}

// Predicted decodes the predicted or mirrored value of a component.
func Predicted[T any](p *Predictor, entity world.NetID, name string) (T, bool, error) {
	var v T
	data, ok := p.Component(entity, name)
	if !ok {
		return v, false, nil
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, true, fmt.Errorf("decode %s of %s: %w", name, entity, err)
	}
	return v, true, nil
}

// Resolve handles the server answer to an intent. Rejected predictions are
// dropped at once. Accepted ones are dropped as soon as the mirror holds
// the state that includes the change. It reports how many predictions
// disagreed with the server.
func (p *Predictor) Resolve(r IntentResult) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	wrong := 0
	p.predictions = slices.DeleteFunc(p.predictions, func(pr *prediction) bool {
		if pr.intent != r.ID {
			return false
		}
		if !r.Accepted {
			wrong++
			return true
		}
		pr.resolved = true
		pr.await = pr.entity
		if !p.mirror.Has(pr.entity) && p.mirror.Seq(pr.entity) == 0 && r.Entity != world.City {
			// Provisional id of a spawned entity.
			pr.await = r.Entity
		}
		pr.seq = r.Seq
		if done, ok := p.settle(pr); done {
			if !ok {
				wrong++
			}
			return true
		}
		return false
	})
	p.mismatches += uint64(wrong)
	return wrong
}

// Reconcile drops accepted predictions the mirror has caught up with. Call
// it after applying deltas.
func (p *Predictor) Reconcile() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	wrong := 0
	p.predictions = slices.DeleteFunc(p.predictions, func(pr *prediction) bool {
		if !pr.resolved {
			return false
		}
		done, ok := p.settle(pr)
		if done && !ok {
			wrong++
		}
		return done
	})
	p.mismatches += uint64(wrong)
	return wrong
}

// settle reports whether the mirror has reached a resolved prediction and
// whether the server value matches it.
func (p *Predictor) settle(pr *prediction) (done, match bool) {
	if p.mirror.Seq(pr.await) < pr.seq {
		return false, false
	}
	if pr.await != pr.entity {
		// Provisional entities are only compared by existence.
		return true, p.mirror.Has(pr.await) == (pr.value != nil)
	}
	actual, ok := p.mirror.Component(pr.await, pr.component)
	if pr.value == nil {
		return true, !ok
	}
	return true, ok && bytes.Equal(actual, pr.value)
}

// Reset drops every prediction, for example after a resync.
func (p *Predictor) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.predictions = nil
}

func (p *Predictor) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.predictions)
}

// Mismatches counts predictions the server disagreed with.
func (p *Predictor) Mismatches() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mismatches
}
