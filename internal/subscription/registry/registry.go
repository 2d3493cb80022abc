// Package registry stores at most one listener record per event name.
package registry

import (
	"errors"
	"log/slog"
	"slices"
)

// ErrDuplicate is returned when a name is registered twice.
var ErrDuplicate = errors.New("listener already registered")

// Registry is an insertion-ordered map from event name to record.
// It is not safe for concurrent use; owners serialize access.
type Registry[K ~string, V any] struct {
	records map[K]V
	order   []K
	log     *slog.Logger
}

// New creates an empty registry.
func New[K ~string, V any](log *slog.Logger) *Registry[K, V] {
	if log == nil {
		log = slog.Default()
	}
	return &Registry[K, V]{
		records: make(map[K]V),
		log:     log,
	}
}

// Register stores rec under name. It fails if name is already present.
func (r *Registry[K, V]) Register(name K, rec V) error {
	if _, ok := r.records[name]; ok {
		return ErrDuplicate
	}
	r.records[name] = rec
	r.order = append(r.order, name)
	return nil
}

// Get returns the record for name.
func (r *Registry[K, V]) Get(name K) (V, bool) {
	rec, ok := r.records[name]
	return rec, ok
}

// Has reports whether name is registered.
func (r *Registry[K, V]) Has(name K) bool {
	_, ok := r.records[name]
	return ok
}

// Remove deletes name. Removing an absent name only logs a warning.
func (r *Registry[K, V]) Remove(name K) (V, bool) {
	rec, ok := r.records[name]
	if !ok {
		r.log.Warn("No listener registered", "event", string(name))
		return rec, false
	}
	delete(r.records, name)
	if i := slices.Index(r.order, name); i >= 0 {
		r.order = slices.Delete(r.order, i, i+1)
	}
	return rec, true
}

// Names returns the registered names in insertion order.
func (r *Registry[K, V]) Names() []K {
	return slices.Clone(r.order)
}

// Len returns the number of registered names.
func (r *Registry[K, V]) Len() int {
	return len(r.order)
}
