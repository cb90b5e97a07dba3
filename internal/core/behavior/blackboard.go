package behavior

import (
	"sort"
	"strings"
	"sync"
)

// Blackboard is the per-subject key/value store shared by the nodes of a
// tree. Namespaced views share the root storage.
type Blackboard struct {
	root   *Blackboard
	prefix string

	mu   sync.RWMutex
	data map[string]any
}

func NewBlackboard() *Blackboard {
	b := &Blackboard{data: make(map[string]any)}
	b.root = b
	return b
}

func (b *Blackboard) key(k string) string {
	if b.prefix == "" {
		return k
	}
	return b.prefix + ":" + k
}

func (b *Blackboard) Get(key string) (any, bool) {
	r := b.root
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.data[b.key(key)]
	return v, ok
}

func (b *Blackboard) Set(key string, value any) {
	r := b.root
	r.mu.Lock()
	r.data[b.key(key)] = value
	r.mu.Unlock()
}

func (b *Blackboard) Delete(key string) {
	r := b.root
	r.mu.Lock()
	delete(r.data, b.key(key))
	r.mu.Unlock()
}

// Namespace returns a view whose keys are prefixed with ns.
func (b *Blackboard) Namespace(ns string) *Blackboard {
	ns = strings.ReplaceAll(ns, ":", "_")
	return &Blackboard{root: b.root, prefix: b.key(ns)}
}

// Keys returns the keys visible in this view, sorted.
func (b *Blackboard) Keys() []string {
	r := b.root
	r.mu.RLock()
	keys := make([]string, 0, len(r.data))
	for k := range r.data {
		keys = append(keys, k)
	}
	r.mu.RUnlock()
	sort.Strings(keys)
	if b.prefix == "" {
		return keys
	}
	pref := b.prefix + ":"
	out := keys[:0]
	for _, k := range keys {
		if strings.HasPrefix(k, pref) {
			out = append(out, strings.TrimPrefix(k, pref))
		}
	}
	return out
}

// Value reads a typed value from the blackboard.
func Value[T any](b *Blackboard, key string) (T, bool) {
	v, ok := b.Get(key)
	if !ok {
		var zero T
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}
