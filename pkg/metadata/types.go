// Package metadata holds the read-only registration records the dispatch
// pipeline consumes: which actions exist, which parameters they declare, and
// which hooks wrap them. Records are produced at startup by a Builder (or a
// manifest) and never change afterwards.
package metadata

import (
	"regexp"
	"sort"
	"strings"

	"github.com/Suhaibinator/SDispatch/pkg/codec"
	"github.com/Suhaibinator/SDispatch/pkg/common"
	"github.com/Suhaibinator/SDispatch/pkg/transform"
)

// Action is the handler of a route. args holds one value per declared
// parameter in index order. A non-nil result becomes the response body.
type Action func(ctx *common.Context, args common.Args) (any, error)

// TransformRef attaches a transform to a parameter, either by registry id or
// as an inline function. When both are set and a transform configuration is
// available, the id wins.
type TransformRef struct {
	ID   string
	Func transform.Func
}

// TransformID references a registered transform.
func TransformID(id string) *TransformRef {
	return &TransformRef{ID: id}
}

// TransformFunc attaches an inline transform.
func TransformFunc(fn transform.Func) *TransformRef {
	return &TransformRef{Func: fn}
}

// ActionParam is one formal parameter of an action.
type ActionParam struct {
	// Index is the position in the action's argument list, unique per route.
	Index int
	// Source says where the value comes from.
	Source Source
	// Transform optionally converts the raw value.
	Transform *TransformRef
}

// Kind returns the parameter kind, or "" when Source is nil.
func (p ActionParam) Kind() common.ParamKind {
	if p.Source == nil {
		return ""
	}
	return p.Source.Kind()
}

// Name returns the lookup name of the parameter, "" for unnamed kinds.
func (p ActionParam) Name() string {
	return SourceName(p.Source)
}

// RouteMetadata describes one registered action.
type RouteMetadata struct {
	Area       string
	Controller string
	Action     string

	Method string
	Path   string

	// Params may be declared in any order; they are processed by ascending Index.
	Params []ActionParam

	// RouteParams holds the path segments bound when the route matched a
	// request. It is empty on registered routes; see WithRouteParams.
	RouteParams map[string]string

	Handler Action

	// Encoder writes the action result. JSON when nil.
	Encoder codec.Encoder
}

// Name identifies the route in logs and metrics as area/controller.action,
// falling back to "METHOD path" for routes registered without identifiers.
func (r *RouteMetadata) Name() string {
	if r.Controller == "" && r.Action == "" {
		return r.Method + " " + r.Path
	}
	var b strings.Builder
	if r.Area != "" {
		b.WriteString(r.Area)
		b.WriteByte('/')
	}
	b.WriteString(r.Controller)
	if r.Action != "" {
		b.WriteByte('.')
		b.WriteString(r.Action)
	}
	return b.String()
}

// SortedParams returns a copy of Params stably sorted by Index.
func (r *RouteMetadata) SortedParams() []ActionParam {
	params := make([]ActionParam, len(r.Params))
	copy(params, r.Params)
	sort.SliceStable(params, func(i, j int) bool {
		return params[i].Index < params[j].Index
	})
	return params
}

// WithRouteParams returns a copy of r carrying the matched path segments.
// r itself is left untouched so that it can be shared across requests.
func (r *RouteMetadata) WithRouteParams(params map[string]string) *RouteMetadata {
	matched := *r
	matched.RouteParams = make(map[string]string, len(params))
	for k, v := range params {
		matched.RouteParams[k] = v
	}
	return &matched
}

// ResponseEncoder returns the route encoder, JSON by default.
func (r *RouteMetadata) ResponseEncoder() codec.Encoder {
	if r.Encoder == nil {
		return codec.NewJSONEncoder()
	}
	return r.Encoder
}

// Scope narrows a hook to an area, controller or action. Empty fields match
// everything.
type Scope struct {
	Area       string
	Controller string
	Action     string
}

// Matches reports whether route falls inside the scope.
func (s Scope) Matches(route *RouteMetadata) bool {
	if route == nil {
		return s == Scope{}
	}
	return (s.Area == "" || s.Area == route.Area) &&
		(s.Controller == "" || s.Controller == route.Controller) &&
		(s.Action == "" || s.Action == route.Action)
}

// HookMetadata binds a hook instance to the requests it wraps.
type HookMetadata struct {
	// Name identifies the hook in logs and errors.
	Name string
	// Pattern is matched against the full request path. It is not anchored;
	// use ^ and $ to require a whole-path match.
	Pattern *regexp.Regexp
	// Scope further restricts the routes the hook applies to.
	Scope Scope
	// Instance is shared by every request the hook wraps.
	Instance common.Hook
	// Payload is free-form registration data for the hook.
	Payload any
}

// Matches reports whether the hook applies to a request for path on route.
func (h *HookMetadata) Matches(path string, route *RouteMetadata) bool {
	if h.Pattern != nil && !h.Pattern.MatchString(path) {
		return false
	}
	return h.Scope.Matches(route)
}
