package events

import (
	"cmp"
	"errors"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// Wildcard subscribes to every event type.
const Wildcard = "*"

type Handler func(event Event) error

// Bus is a synchronous pub/sub bus. Publish runs handlers on the caller's
// goroutine and joins their errors.
type Bus interface {
	Publish(event Event) error
	PublishBatch(events ...Event) error
	Subscribe(eventType string, handler Handler) (Subscription, error)
	Unsubscribe(Subscription) error
	AddObserver(obs Observer)
	Metrics() Metrics
}

type Subscription interface {
	ID() string
	EventType() string
	IsActive() bool
	Cancel() error
}

// Observer is told about every delivery.
type Observer interface {
	OnDelivered(eventType string, handlers int, err error)
}

type Metrics struct {
	Published         uint64
	DeliveredHandlers uint64
	Errors            uint64
}

type subscription struct {
	id        string
	eventType string
	handler   Handler
	mu        sync.Mutex
	active    bool
	cancel    func()
}

func (s *subscription) ID() string        { return s.id }
func (s *subscription) EventType() string { return s.eventType }

func (s *subscription) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *subscription) Cancel() error {
	s.mu.Lock()
	wasActive := s.active
	s.active = false
	s.mu.Unlock()
	if wasActive && s.cancel != nil {
		s.cancel()
	}
	return nil
}

type inMemoryBus struct {
	mu        sync.RWMutex
	handlers  map[string]map[string]*subscription
	order     uint64
	seq       map[string]uint64
	observers []Observer
	metrics   Metrics
}

func NewBus() Bus {
	return &inMemoryBus{
		handlers: make(map[string]map[string]*subscription),
		seq:      make(map[string]uint64),
	}
}

func (b *inMemoryBus) Subscribe(eventType string, handler Handler) (Subscription, error) {
	if handler == nil {
		return nil, errors.New("nil handler")
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.handlers[eventType] == nil {
		b.handlers[eventType] = make(map[string]*subscription)
	}
	id := uuid.NewString()
	s := &subscription{id: id, eventType: eventType, handler: handler, active: true}
	s.cancel = func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers[eventType], id)
		delete(b.seq, id)
	}
	b.order++
	b.seq[id] = b.order
	b.handlers[eventType][id] = s
	return s, nil
}

func (b *inMemoryBus) Unsubscribe(sub Subscription) error {
	if sub == nil {
		return nil
	}
	return sub.Cancel()
}

func (b *inMemoryBus) AddObserver(obs Observer) {
	b.mu.Lock()
	b.observers = append(b.observers, obs)
	b.mu.Unlock()
}

func (b *inMemoryBus) Metrics() Metrics {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.metrics
}

func (b *inMemoryBus) PublishBatch(events ...Event) error {
	var all []error
	for _, e := range events {
		if err := b.Publish(e); err != nil {
			all = append(all, err)
		}
	}
	return errors.Join(all...)
}

// Publish delivers to the subscribers of the event type, then to wildcard
// subscribers, each group in subscription order.
func (b *inMemoryBus) Publish(event Event) error {
	b.mu.RLock()
	subs := b.collectLocked(event.Type())
	if event.Type() != Wildcard {
		subs = append(subs, b.collectLocked(Wildcard)...)
	}
	observers := b.observers
	b.mu.RUnlock()

	var errs []error
	delivered := 0
	for _, s := range subs {
		if !s.IsActive() {
			continue
		}
		delivered++
		if err := s.handler(event); err != nil {
			errs = append(errs, err)
		}
	}
	err := errors.Join(errs...)

	b.mu.Lock()
	b.metrics.Published++
	b.metrics.DeliveredHandlers += uint64(delivered)
	if err != nil {
		b.metrics.Errors++
	}
	b.mu.Unlock()

	for _, obs := range observers {
		obs.OnDelivered(event.Type(), delivered, err)
	}
	return err
}

func (b *inMemoryBus) collectLocked(eventType string) []*subscription {
	m := b.handlers[eventType]
	out := make([]*subscription, 0, len(m))
	for _, s := range m {
		out = append(out, s)
	}
	slices.SortFunc(out, func(x, y *subscription) int { return cmp.Compare(b.seq[x.id], b.seq[y.id]) })
	return out
}
