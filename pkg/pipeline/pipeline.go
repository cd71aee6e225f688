// Package pipeline runs one request through its hooks and action.
//
// For every request the Orchestrator walks the states
//
//	MATCHING -> PRE_HOOKS -> RESOLVE_PARAMS -> INVOKE_ACTION -> POST_HOOKS -> DONE
//
// and moves to FAILED from any of them on the first unrecovered error. Hooks
// matching the request path run one at a time in registration order, pre
// hooks before the action and post hooks after it.
package pipeline

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Suhaibinator/SDispatch/pkg/common"
	"github.com/Suhaibinator/SDispatch/pkg/metadata"
	"github.com/Suhaibinator/SDispatch/pkg/resolver"
	"github.com/Suhaibinator/SDispatch/pkg/transform"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ErrNoHandler is returned when a route without handler is dispatched.
var ErrNoHandler = errors.New("route has no handler")

// PostHookPolicy decides whether post hooks run after the action failed.
// Post hooks always run after a pre hook failure.
type PostHookPolicy int

const (
	// PostHooksAlways runs post hooks whatever the outcome of the action.
	PostHooksAlways PostHookPolicy = iota
	// PostHooksOnSuccess skips post hooks when parameter resolution or the
	// action failed.
	PostHooksOnSuccess
)

// ParsePostHookPolicy maps "always" and "on-success" to a PostHookPolicy.
func ParsePostHookPolicy(s string) (PostHookPolicy, error) {
	switch strings.ToLower(s) {
	case "", "always":
		return PostHooksAlways, nil
	case "on-success", "success":
		return PostHooksOnSuccess, nil
	default:
		return PostHooksAlways, fmt.Errorf("unknown post hook policy %q", s)
	}
}

// Phase tells which callback of a hook failed.
type Phase string

const (
	PhasePre  Phase = "pre"
	PhasePost Phase = "post"
)

// HookError wraps the error returned by a hook callback.
type HookError struct {
	Hook  string
	Phase Phase
	Err   error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("%s hook %q: %v", e.Phase, e.Hook, e.Err)
}

func (e *HookError) Unwrap() error {
	return e.Err
}

// Observer is notified of every state transition of a request.
type Observer func(ctx *common.Context, from, to common.State)

// Orchestrator dispatches requests. It holds no per-request state and is safe
// for concurrent use.
type Orchestrator struct {
	store      *metadata.Store
	transforms transform.ConfigMap
	logger     *zap.Logger
	policy     PostHookPolicy
	observer   Observer
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithTransforms sets the transform configuration handed to the resolver.
func WithTransforms(cfg transform.ConfigMap) Option {
	return func(o *Orchestrator) { o.transforms = cfg }
}

// WithLogger sets the logger used to report hook failures.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithPostHookPolicy sets the post hook policy.
func WithPostHookPolicy(p PostHookPolicy) Option {
	return func(o *Orchestrator) { o.policy = p }
}

// WithObserver registers a state transition observer.
func WithObserver(fn Observer) Option {
	return func(o *Orchestrator) { o.observer = fn }
}

// New creates an Orchestrator over store. A nil store has no hooks.
func New(store *metadata.Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:  store,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Dispatch runs the hooks and action of route for ctx. On success the action
// result is returned and, when non-nil, stored in ctx.Response.Body.
//
// A failing pre hook stops the remaining pre hooks and the action; the post
// hooks of the matched set still run and their errors are combined with the
// pre hook error.
func (o *Orchestrator) Dispatch(ctx *common.Context, route *metadata.RouteMetadata) (any, error) {
	if route != nil {
		ctx.SetRouteName(route.Name())
	}
	o.transition(ctx, common.StateMatching)
	hooks := o.match(ctx, route)

	o.transition(ctx, common.StatePreHooks)
	if err := o.runPre(ctx, hooks); err != nil {
		o.transition(ctx, common.StatePostHooks)
		err = multierr.Append(err, o.runPost(ctx, hooks))
		o.transition(ctx, common.StateFailed)
		return nil, err
	}

	result, err := o.invoke(ctx, route)
	if err != nil && o.policy == PostHooksOnSuccess {
		o.transition(ctx, common.StateFailed)
		return nil, err
	}

	o.transition(ctx, common.StatePostHooks)
	if postErr := o.runPost(ctx, hooks); postErr != nil {
		err = multierr.Append(err, postErr)
	}
	if err != nil {
		o.transition(ctx, common.StateFailed)
		return nil, err
	}
	o.transition(ctx, common.StateDone)
	return result, nil
}

func (o *Orchestrator) match(ctx *common.Context, route *metadata.RouteMetadata) []*metadata.HookMetadata {
	if o.store == nil {
		return nil
	}
	return o.store.MatchHooks(requestPath(ctx), route)
}

func (o *Orchestrator) invoke(ctx *common.Context, route *metadata.RouteMetadata) (any, error) {
	o.transition(ctx, common.StateResolveParams)
	if route == nil || route.Handler == nil {
		return nil, ErrNoHandler
	}
	args, err := resolver.Resolve(ctx, route, o.transforms)
	if err != nil {
		return nil, err
	}

	if err := ctx.Context().Err(); err != nil {
		return nil, err
	}

	o.transition(ctx, common.StateInvokeAction)
	result, err := route.Handler(ctx, args)
	if err != nil {
		return nil, err
	}
	if result != nil {
		ctx.Response.Body = result
	}
	return result, nil
}

func (o *Orchestrator) runPre(ctx *common.Context, hooks []*metadata.HookMetadata) error {
	for _, h := range hooks {
		if err := h.Instance.OnPreRequest(ctx); err != nil {
			return o.hookFailed(ctx, h, PhasePre, err)
		}
	}
	return nil
}

func (o *Orchestrator) runPost(ctx *common.Context, hooks []*metadata.HookMetadata) error {
	for _, h := range hooks {
		if err := h.Instance.OnPostRequest(ctx); err != nil {
			return o.hookFailed(ctx, h, PhasePost, err)
		}
	}
	return nil
}

func (o *Orchestrator) hookFailed(ctx *common.Context, h *metadata.HookMetadata, phase Phase, err error) error {
	fields := []zap.Field{
		zap.String("path", requestPath(ctx)),
		zap.String("hook", h.Name),
		zap.String("phase", string(phase)),
		zap.String("state", ctx.State().String()),
		zap.Error(err),
	}
	if status := common.StatusOf(err, http.StatusInternalServerError); status < http.StatusInternalServerError {
		o.logger.Warn("Hook rejected request", fields...)
	} else {
		o.logger.Error("Hook failed", fields...)
	}
	return &HookError{Hook: h.Name, Phase: phase, Err: err}
}

func (o *Orchestrator) transition(ctx *common.Context, to common.State) {
	from := ctx.State()
	ctx.SetState(to)
	if o.observer != nil {
		o.observer(ctx, from, to)
	}
}

func requestPath(ctx *common.Context) string {
	if ctx.Request.Server != nil && ctx.Request.Server.URL != nil {
		return ctx.Request.Server.URL.Path
	}
	path, _, _ := strings.Cut(ctx.Request.URL, "?")
	return path
}
