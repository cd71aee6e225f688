package pipeline

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Suhaibinator/SDispatch/pkg/common"
	"github.com/Suhaibinator/SDispatch/pkg/metadata"
	"github.com/Suhaibinator/SDispatch/pkg/transform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// recorder collects the order in which hooks and actions run.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) hook(name string, preErr, postErr error) *common.HookFuncs {
	return &common.HookFuncs{
		Pre: func(*common.Context) error {
			r.add(name + ".pre")
			return preErr
		},
		Post: func(*common.Context) error {
			r.add(name + ".post")
			return postErr
		},
	}
}

func (r *recorder) action(result any, err error) metadata.Action {
	return func(*common.Context, common.Args) (any, error) {
		r.add("action")
		return result, err
	}
}

func newContext(target string) *common.Context {
	return common.NewContext(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, target, nil))
}

func build(t *testing.T, b *metadata.Builder) *metadata.Store {
	t.Helper()
	store, err := b.Build()
	require.NoError(t, err)
	return store
}

func TestDispatchRunsHooksInRegistrationOrder(t *testing.T) {
	rec := &recorder{}
	store := build(t, metadata.NewBuilder().
		Use("m1", "/", rec.hook("m1", nil, nil)).
		Use("other", "^/other", rec.hook("other", nil, nil)).
		Use("m2", "/", rec.hook("m2", nil, nil)))

	route := &metadata.RouteMetadata{Method: http.MethodGet, Path: "/x", Handler: rec.action("ok", nil)}
	ctx := newContext("/x")

	result, err := New(store).Dispatch(ctx, route)
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, "ok", ctx.Response.Body)
	assert.Equal(t, []string{"m1.pre", "m2.pre", "action", "m1.post", "m2.post"}, rec.events)
	assert.Equal(t, common.StateDone, ctx.State())
}

func TestDispatchPreHookFailurePreventsAction(t *testing.T) {
	rec := &recorder{}
	denied := common.NewHTTPError(http.StatusUnauthorized, "")
	store := build(t, metadata.NewBuilder().
		Use("m1", "/", rec.hook("m1", denied, nil)).
		Use("m2", "/", rec.hook("m2", nil, nil)))

	route := &metadata.RouteMetadata{Handler: rec.action("ok", nil)}
	ctx := newContext("/x")

	result, err := New(store).Dispatch(ctx, route)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, denied)
	assert.Equal(t, http.StatusUnauthorized, common.StatusOf(err, 0))

	var hookErr *HookError
	require.True(t, errors.As(err, &hookErr))
	assert.Equal(t, "m1", hookErr.Hook)
	assert.Equal(t, PhasePre, hookErr.Phase)

	assert.Equal(t, []string{"m1.pre", "m1.post", "m2.post"}, rec.events)
	assert.Equal(t, common.StateFailed, ctx.State())
}

func TestDispatchCombinesPreAndPostFailures(t *testing.T) {
	rec := &recorder{}
	preErr, postErr := errors.New("pre"), errors.New("post")
	store := build(t, metadata.NewBuilder().Use("m", "/", rec.hook("m", preErr, postErr)))

	_, err := New(store).Dispatch(newContext("/x"), &metadata.RouteMetadata{Handler: rec.action(nil, nil)})
	assert.ErrorIs(t, err, preErr)
	assert.ErrorIs(t, err, postErr)
}

func TestDispatchActionFailureRunsPostHooksByDefault(t *testing.T) {
	rec := &recorder{}
	boom := errors.New("boom")
	store := build(t, metadata.NewBuilder().Use("m", "/", rec.hook("m", nil, nil)))
	ctx := newContext("/x")

	_, err := New(store).Dispatch(ctx, &metadata.RouteMetadata{Handler: rec.action(nil, boom)})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"m.pre", "action", "m.post"}, rec.events)
	assert.Equal(t, common.StateFailed, ctx.State())
}

func TestDispatchPostHooksOnSuccessPolicy(t *testing.T) {
	rec := &recorder{}
	boom := errors.New("boom")
	store := build(t, metadata.NewBuilder().Use("m", "/", rec.hook("m", nil, nil)))

	o := New(store, WithPostHookPolicy(PostHooksOnSuccess))
	_, err := o.Dispatch(newContext("/x"), &metadata.RouteMetadata{Handler: rec.action(nil, boom)})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"m.pre", "action"}, rec.events)
}

func TestDispatchPostHookFailureStopsRemainingPostHooks(t *testing.T) {
	rec := &recorder{}
	postErr := errors.New("post")
	store := build(t, metadata.NewBuilder().
		Use("m1", "/", rec.hook("m1", nil, postErr)).
		Use("m2", "/", rec.hook("m2", nil, nil)))

	_, err := New(store).Dispatch(newContext("/x"), &metadata.RouteMetadata{Handler: rec.action("ok", nil)})
	assert.ErrorIs(t, err, postErr)
	assert.Equal(t, []string{"m1.pre", "m2.pre", "action", "m1.post"}, rec.events)
}

func TestDispatchMatchesFullPathAndScope(t *testing.T) {
	rec := &recorder{}
	store := build(t, metadata.NewBuilder().
		Use("users", `^/users/\d+$`, rec.hook("users", nil, nil)).
		Hook(metadata.HookMetadata{
			Name:     "shop",
			Scope:    metadata.Scope{Area: "shop"},
			Instance: rec.hook("shop", nil, nil),
		}))

	route := &metadata.RouteMetadata{Area: "admin", Handler: rec.action(nil, nil)}
	_, err := New(store).Dispatch(newContext("/users/42/orders?x=1"), route)
	require.NoError(t, err)
	assert.Equal(t, []string{"action"}, rec.events)

	rec.events = nil
	route.Area = "shop"
	_, err = New(store).Dispatch(newContext("/users/42?x=1"), route)
	require.NoError(t, err)
	assert.Equal(t, []string{"users.pre", "shop.pre", "action", "users.post", "shop.post"}, rec.events)
}

func TestDispatchPassesResolvedArguments(t *testing.T) {
	cfg := transform.DefaultConfig()
	route := &metadata.RouteMetadata{
		Params: []metadata.ActionParam{
			{Index: 1, Source: metadata.Body{}, Transform: metadata.TransformID("trim")},
			{Index: 0, Source: metadata.Query{Name: "q"}},
		},
		Handler: func(_ *common.Context, args common.Args) (any, error) {
			q, _ := args.String(0)
			return q + "|" + args.Value(1).(string), nil
		},
	}
	req := httptest.NewRequest(http.MethodPost, "/x?q=go", strings.NewReader(`"  padded  "`))
	req.Header.Set("Content-Type", "application/json")
	ctx := common.NewContext(httptest.NewRecorder(), req)

	result, err := New(nil, WithTransforms(cfg)).Dispatch(ctx, route)
	require.NoError(t, err)
	assert.Equal(t, "go|padded", result)
}

func TestDispatchResolveFailureSkipsAction(t *testing.T) {
	rec := &recorder{}
	route := &metadata.RouteMetadata{
		Params:  []metadata.ActionParam{{Index: 0, Source: metadata.Body{}, Transform: metadata.TransformID("nope")}},
		Handler: rec.action(nil, nil),
	}
	req := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")

	_, err := New(nil, WithTransforms(transform.DefaultConfig())).Dispatch(common.NewContext(httptest.NewRecorder(), req), route)
	assert.ErrorIs(t, err, transform.ErrNotFound)
	assert.Empty(t, rec.events)
}

func TestDispatchNilHandler(t *testing.T) {
	_, err := New(nil).Dispatch(newContext("/x"), &metadata.RouteMetadata{})
	assert.ErrorIs(t, err, ErrNoHandler)
}

func TestDispatchCanceledContextSkipsAction(t *testing.T) {
	rec := &recorder{}
	ctx := newContext("/x")
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	ctx.WithContext(cancelled)

	_, err := New(nil).Dispatch(ctx, &metadata.RouteMetadata{Handler: rec.action(nil, nil)})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, rec.events)
}

func TestDispatchObserverSeesEveryTransition(t *testing.T) {
	var seen []string
	o := New(nil, WithObserver(func(_ *common.Context, from, to common.State) {
		seen = append(seen, from.String()+">"+to.String())
	}))

	_, err := o.Dispatch(newContext("/x"), &metadata.RouteMetadata{Handler: func(*common.Context, common.Args) (any, error) { return nil, nil }})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"NEW>MATCHING",
		"MATCHING>PRE_HOOKS",
		"PRE_HOOKS>RESOLVE_PARAMS",
		"RESOLVE_PARAMS>INVOKE_ACTION",
		"INVOKE_ACTION>POST_HOOKS",
		"POST_HOOKS>DONE",
	}, seen)
}

func TestDispatchLogsHookFailures(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	store := build(t, metadata.NewBuilder().
		Use("auth", "/", &common.HookFuncs{Pre: func(*common.Context) error {
			return common.NewHTTPError(http.StatusForbidden, "")
		}}).
		Use("broken", "/", &common.HookFuncs{Post: func(*common.Context) error {
			return errors.New("disk full")
		}}))

	_, err := New(store, WithLogger(zap.New(core))).Dispatch(newContext("/x"), &metadata.RouteMetadata{Handler: func(*common.Context, common.Args) (any, error) { return nil, nil }})
	require.Error(t, err)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, "auth", entries[0].ContextMap()["hook"])
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Equal(t, "broken", entries[1].ContextMap()["hook"])
	assert.Equal(t, "post", entries[1].ContextMap()["phase"])
}

// stopwatch keeps its start time in the Context, so one instance can serve
// overlapping requests.
type stopwatch struct {
	mu       sync.Mutex
	measured map[string]time.Duration
}

func (s *stopwatch) OnPreRequest(ctx *common.Context) error {
	ctx.SetHookState(s, time.Now())
	return nil
}

func (s *stopwatch) OnPostRequest(ctx *common.Context) error {
	start, ok := ctx.HookState(s)
	if !ok {
		return errors.New("no start time")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.measured[ctx.Request.URL] = time.Since(start.(time.Time))
	return nil
}

func TestDispatchHookStateIsPerRequest(t *testing.T) {
	sw := &stopwatch{measured: make(map[string]time.Duration)}
	store := build(t, metadata.NewBuilder().Use("stopwatch", "/", sw))
	o := New(store)

	slow := &metadata.RouteMetadata{Handler: func(*common.Context, common.Args) (any, error) {
		time.Sleep(50 * time.Millisecond)
		return nil, nil
	}}
	fast := &metadata.RouteMetadata{Handler: func(*common.Context, common.Args) (any, error) { return nil, nil }}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = o.Dispatch(newContext("/slow"), slow)
	}()
	go func() {
		defer wg.Done()
		time.Sleep(10 * time.Millisecond)
		_, _ = o.Dispatch(newContext("/fast"), fast)
	}()
	wg.Wait()

	assert.GreaterOrEqual(t, sw.measured["/slow"], 50*time.Millisecond)
	assert.Less(t, sw.measured["/fast"], 40*time.Millisecond)
}

func TestParsePostHookPolicy(t *testing.T) {
	p, err := ParsePostHookPolicy("")
	require.NoError(t, err)
	assert.Equal(t, PostHooksAlways, p)

	p, err = ParsePostHookPolicy("On-Success")
	require.NoError(t, err)
	assert.Equal(t, PostHooksOnSuccess, p)

	_, err = ParsePostHookPolicy("never")
	assert.Error(t, err)
}
