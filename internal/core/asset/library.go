package asset

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/zeusync/homestead/internal/core/observability/log"
	"github.com/zeusync/homestead/pkg/concurrent"
)

// Library holds the loaded descriptors. Reads are lock-free against an
// immutable map; writers copy the map and swap it in.
type Library struct {
	descriptors atomic.Pointer[map[string]*Descriptor]
	writeMu     sync.Mutex
	logger      log.Log
}

func NewLibrary(logger log.Log) *Library {
	l := &Library{logger: logger.With(log.String("component", "asset_library"))}
	empty := make(map[string]*Descriptor)
	l.descriptors.Store(&empty)
	return l
}

func (l *Library) Get(id string) (*Descriptor, bool) {
	d, ok := (*l.descriptors.Load())[id]
	return d, ok
}

func (l *Library) Len() int {
	return len(*l.descriptors.Load())
}

// IDs returns the descriptor ids in sorted order.
func (l *Library) IDs() []string {
	m := *l.descriptors.Load()
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Add registers a new descriptor. Ids are unique.
func (l *Library) Add(desc *Descriptor) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	current := *l.descriptors.Load()
	if _, exists := current[desc.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateID, desc.ID)
	}
	l.swap(current, desc)
	return nil
}

// Replace swaps an existing descriptor for a new version and returns the
// previous one.
func (l *Library) Replace(desc *Descriptor) (*Descriptor, error) {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	current := *l.descriptors.Load()
	prev, exists := current[desc.ID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDescriptor, desc.ID)
	}
	l.swap(current, desc)
	l.logger.Info("Descriptor replaced", log.String("descriptor", desc.ID))
	return prev, nil
}

func (l *Library) swap(current map[string]*Descriptor, desc *Descriptor) {
	next := make(map[string]*Descriptor, len(current)+1)
	for id, d := range current {
		next[id] = d
	}
	next[desc.ID] = desc
	l.descriptors.Store(&next)
}

// LoadDir loads every *.yaml and *.yml file in dir. A malformed asset is
// logged and skipped without affecting the others; the returned error joins
// all per-asset failures.
func (l *Library) LoadDir(dir string) (int, error) {
	var files []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return 0, err
		}
		files = append(files, matches...)
	}
	slices.Sort(files)

	var (
		loaded int
		errs   []error
	)
	parsed := concurrent.Each(files, 0, LoadFile)
	for i, path := range files {
		desc, err := parsed[i].Value, parsed[i].Err
		if err == nil {
			err = l.Add(desc)
		}
		if err != nil {
			l.logger.Warn("Skipping asset", log.String("path", path), log.Error(err))
			errs = append(errs, err)
			continue
		}
		loaded++
	}

	l.logger.Info("Assets loaded",
		log.String("dir", dir),
		log.Int("loaded", loaded),
		log.Int("failed", len(errs)),
	)
	return loaded, errors.Join(errs...)
}
