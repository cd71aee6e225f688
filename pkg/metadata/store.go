package metadata

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/Suhaibinator/SDispatch/pkg/common"
	"github.com/Suhaibinator/SDispatch/pkg/transform"
	"go.uber.org/multierr"
)

var (
	ErrDuplicateIndex   = errors.New("duplicate parameter index")
	ErrMissingName      = errors.New("parameter name is required")
	ErrUnknownKind      = errors.New("unknown parameter kind")
	ErrNilSource        = errors.New("parameter source is nil")
	ErrNilHandler       = errors.New("route has no handler")
	ErrNilHook          = errors.New("hook has no instance")
	ErrInvalidPattern   = errors.New("invalid hook pattern")
	ErrUnknownAction    = errors.New("unknown action")
	ErrUnknownHook      = errors.New("unknown hook")
	ErrUnknownEncoder   = errors.New("unknown encoder")
	ErrMissingTransform = errors.New("transform is not registered")
	ErrTransformNotBody = errors.New("transforms apply to body parameters only")
)

// Store is the read-only collection of route and hook records. It is safe
// for concurrent use because nothing mutates it after Build.
type Store struct {
	routes []*RouteMetadata
	hooks  []*HookMetadata
}

// Routes returns the registered routes in registration order.
func (s *Store) Routes() []*RouteMetadata {
	out := make([]*RouteMetadata, len(s.routes))
	copy(out, s.routes)
	return out
}

// Hooks returns the registered hooks in registration order.
func (s *Store) Hooks() []*HookMetadata {
	out := make([]*HookMetadata, len(s.hooks))
	copy(out, s.hooks)
	return out
}

// Route returns the route registered for method and path pattern.
func (s *Store) Route(method, path string) (*RouteMetadata, bool) {
	for _, r := range s.routes {
		if r.Method == method && r.Path == path {
			return r, true
		}
	}
	return nil, false
}

// MatchHooks returns the hooks applying to a request for path on route, in
// registration order.
func (s *Store) MatchHooks(path string, route *RouteMetadata) []*HookMetadata {
	var matched []*HookMetadata
	for _, h := range s.hooks {
		if h.Matches(path, route) {
			matched = append(matched, h)
		}
	}
	return matched
}

// Validate checks that every transform id declared by a route parameter can
// be served by cfg. All misses are reported together.
func (s *Store) Validate(cfg transform.ConfigMap) error {
	var err error
	for _, r := range s.routes {
		for _, p := range r.Params {
			if p.Transform == nil || p.Transform.ID == "" {
				continue
			}
			if !cfg.Has(p.Kind(), p.Transform.ID) {
				err = multierr.Append(err, fmt.Errorf("%w: route %s param %d (%s) wants %q",
					ErrMissingTransform, r.Name(), p.Index, p.Kind(), p.Transform.ID))
			}
		}
	}
	return err
}

// Builder collects registrations and produces a Store. Registration methods
// record problems instead of failing; Build reports all of them at once.
type Builder struct {
	routes []*RouteMetadata
	hooks  []*HookMetadata
	err    error
}

// NewBuilder creates an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Route registers an action.
func (b *Builder) Route(route RouteMetadata) *Builder {
	if err := validateRoute(&route); err != nil {
		b.err = multierr.Append(b.err, err)
		return b
	}
	params := make([]ActionParam, len(route.Params))
	copy(params, route.Params)
	route.Params = params
	route.RouteParams = nil
	b.routes = append(b.routes, &route)
	return b
}

// Hook registers a hook. Hooks run in registration order.
func (b *Builder) Hook(hook HookMetadata) *Builder {
	if hook.Instance == nil {
		b.err = multierr.Append(b.err, fmt.Errorf("%w: %q", ErrNilHook, hook.Name))
		return b
	}
	b.hooks = append(b.hooks, &hook)
	return b
}

// Use registers hook for every path matching pattern.
func (b *Builder) Use(name, pattern string, hook common.Hook) *Builder {
	re, err := regexp.Compile(pattern)
	if err != nil {
		b.err = multierr.Append(b.err, fmt.Errorf("%w %q for hook %q: %v", ErrInvalidPattern, pattern, name, err))
		return b
	}
	return b.Hook(HookMetadata{Name: name, Pattern: re, Instance: hook})
}

// Build returns the Store, or every registration error collected so far.
func (b *Builder) Build() (*Store, error) {
	if b.err != nil {
		return nil, b.err
	}
	return &Store{routes: b.routes, hooks: b.hooks}, nil
}

func validateRoute(route *RouteMetadata) error {
	var err error
	if route.Handler == nil {
		err = multierr.Append(err, fmt.Errorf("%w: %s", ErrNilHandler, route.Name()))
	}
	seen := make(map[int]bool, len(route.Params))
	for _, p := range route.Params {
		if p.Source == nil {
			err = multierr.Append(err, fmt.Errorf("%w: route %s param %d", ErrNilSource, route.Name(), p.Index))
			continue
		}
		if seen[p.Index] {
			err = multierr.Append(err, fmt.Errorf("%w: route %s param %d", ErrDuplicateIndex, route.Name(), p.Index))
		}
		seen[p.Index] = true
		if p.Kind().Named() && p.Name() == "" {
			err = multierr.Append(err, fmt.Errorf("%w: route %s param %d (%s)", ErrMissingName, route.Name(), p.Index, p.Kind()))
		}
		if p.Transform != nil && p.Kind() != common.KindBody {
			err = multierr.Append(err, fmt.Errorf("%w: route %s param %d (%s)", ErrTransformNotBody, route.Name(), p.Index, p.Kind()))
		}
	}
	return err
}
