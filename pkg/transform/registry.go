// Package transform implements the transform registry used by the parameter
// resolver to convert raw decoded values into the types actions expect.
//
// Transforms are looked up first by parameter kind, then by identifier:
//
//	cfg := transform.ConfigMap{
//		common.KindBody: transform.NewSet().Register("user", transform.Struct[User]()),
//	}
//	v, err := cfg.GetTransform(common.KindBody, "user", raw)
//
// A ConfigMap is built once at startup and shared read-only by all requests.
package transform

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/Suhaibinator/SDispatch/pkg/common"
)

// Func converts a raw resolved value into the value handed to the action.
// Transforms are synchronous and must not retain the value they are given.
type Func func(raw any) (any, error)

var (
	// ErrNotFound is returned when no transform is registered under an id.
	ErrNotFound = errors.New("transform not found")

	// ErrNoConfig is returned when a ConfigMap has no entry for the
	// parameter kind. Without a ConfigMap no lookup happens at all.
	ErrNoConfig = errors.New("no transform configuration for kind")
)

// Lookup resolves a transform by id and applies it to value.
type Lookup interface {
	GetTransform(id string, value any) (any, error)
}

// Set is a Lookup backed by a map of named transforms.
type Set struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

// NewSet creates an empty Set.
func NewSet() *Set {
	return &Set{funcs: make(map[string]Func)}
}

// Register adds fn under id, replacing any previous registration, and returns
// the Set so that registrations can be chained.
func (s *Set) Register(id string, fn Func) *Set {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.funcs[id] = fn
	return s
}

// Get returns the transform registered under id.
func (s *Set) Get(id string) (Func, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn, ok := s.funcs[id]
	return fn, ok
}

// Has reports whether id is registered.
func (s *Set) Has(id string) bool {
	_, ok := s.Get(id)
	return ok
}

// IDs returns the registered ids in sorted order.
func (s *Set) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.funcs))
	for id := range s.funcs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// GetTransform applies the transform registered under id to value.
func (s *Set) GetTransform(id string, value any) (any, error) {
	fn, ok := s.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return fn(value)
}

// ConfigMap maps a parameter kind to the Lookup serving its transforms.
type ConfigMap map[common.ParamKind]Lookup

// Get returns the Lookup for kind.
func (m ConfigMap) Get(kind common.ParamKind) (Lookup, bool) {
	if m == nil {
		return nil, false
	}
	l, ok := m[kind]
	return l, ok && l != nil
}

// GetTransform resolves id for kind and applies it to value.
func (m ConfigMap) GetTransform(kind common.ParamKind, id string, value any) (any, error) {
	l, ok := m.Get(kind)
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrNoConfig, kind)
	}
	return l.GetTransform(id, value)
}

// Has reports whether id can be served for kind. Lookups other than *Set are
// assumed to serve every id.
func (m ConfigMap) Has(kind common.ParamKind, id string) bool {
	l, ok := m.Get(kind)
	if !ok {
		return false
	}
	if s, isSet := l.(*Set); isSet {
		return s.Has(id)
	}
	return true
}
