// Package router is the HTTP front of the dispatch pipeline. It registers
// every route of a metadata.Store with httprouter, turns each matched request
// into a common.Context, runs it through a pipeline.Orchestrator, and writes
// the result or the error back to the client.
package router

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Suhaibinator/SDispatch/pkg/codec"
	"github.com/Suhaibinator/SDispatch/pkg/common"
	"github.com/Suhaibinator/SDispatch/pkg/metadata"
	"github.com/Suhaibinator/SDispatch/pkg/metrics"
	"github.com/Suhaibinator/SDispatch/pkg/middleware"
	"github.com/Suhaibinator/SDispatch/pkg/pipeline"
	"github.com/Suhaibinator/SDispatch/pkg/resolver"
	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
)

// Router is the main router struct that implements http.Handler.
type Router struct {
	config      RouterConfig
	router      *httprouter.Router
	logger      *zap.Logger
	store       *metadata.Store
	pipeline    *pipeline.Orchestrator
	metrics     *metrics.Collector
	middlewares common.MiddlewareChain
	wg          sync.WaitGroup
	shutdown    bool
	shutdownMu  sync.RWMutex
}

type contextKey string

// ParamsKey is the request context key holding the httprouter.Params of the
// matched route.
const ParamsKey contextKey = "params"

// NewRouter creates a Router serving every route of store.
//
// It fails when a route declares a transform that config.Transforms cannot
// serve, when two routes collide, or when the metrics cannot be registered.
func NewRouter(config RouterConfig, store *metadata.Store) (*Router, error) {
	logger := config.Logger
	if logger == nil {
		var err error
		logger, err = zap.NewProduction()
		if err != nil {
			logger = zap.NewNop()
		}
	}

	if config.Transforms != nil {
		if err := store.Validate(config.Transforms); err != nil {
			return nil, err
		}
	}

	r := &Router{
		config: config,
		router: httprouter.New(),
		logger: logger,
		store:  store,
	}

	if config.EnableMetrics {
		r.metrics = config.Metrics
		if r.metrics == nil {
			var err error
			if r.metrics, err = metrics.New(metrics.Config{Namespace: "sdispatch"}); err != nil {
				return nil, fmt.Errorf("metrics: %w", err)
			}
		}
	}

	r.pipeline = pipeline.New(store,
		pipeline.WithLogger(logger),
		pipeline.WithTransforms(config.Transforms),
		pipeline.WithPostHookPolicy(config.PostHooks),
		pipeline.WithObserver(r.observe),
	)

	// Recovery is added per route in wrapHandler; these run inside it.
	r.middlewares = common.NewMiddlewareChain().
		AppendIf(config.EnableTraceID, middleware.TraceMiddleware()).
		Append(middleware.Logging(logger))
	if r.metrics != nil {
		r.middlewares = r.middlewares.Append(r.metrics.Middleware())
	}
	r.middlewares = r.middlewares.
		Append(middleware.ClientIPMiddleware(config.IPConfig)).
		Append(config.Middlewares...)

	for _, route := range store.Routes() {
		if err := r.registerRoute(route); err != nil {
			return nil, err
		}
	}

	if r.metrics != nil {
		path := config.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		if err := r.handle(http.MethodGet, path, r.metrics.Handler()); err != nil {
			return nil, err
		}
	}

	return r, nil
}

func (r *Router) observe(ctx *common.Context, from, to common.State) {
	if r.metrics != nil {
		r.metrics.Observe(ctx, from, to)
	}
	if r.config.Observer != nil {
		r.config.Observer(ctx, from, to)
	}
}

// registerRoute registers one route with all middlewares applied.
func (r *Router) registerRoute(route *metadata.RouteMetadata) error {
	override := r.config.Overrides[route.Name()]
	timeout := r.getEffectiveTimeout(override.Timeout)
	maxBodySize := r.getEffectiveMaxBodySize(override.MaxBodySize)

	handler := r.wrapHandler(r.dispatchHandler(route), timeout, maxBodySize, override.Middlewares)
	return r.handle(route.Method, route.Path, handler)
}

// handle registers handler with httprouter, reporting path conflicts as
// errors instead of panics.
func (r *Router) handle(method, path string, handler http.Handler) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("register %s %s: %v", method, path, rec)
		}
	}()
	r.router.Handle(method, path, r.convertToHTTPRouterHandle(handler))
	return nil
}

// convertToHTTPRouterHandle converts an http.Handler to an httprouter.Handle.
// It stores the route parameters in the request context.
func (r *Router) convertToHTTPRouterHandle(handler http.Handler) httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, ps httprouter.Params) {
		ctx := context.WithValue(req.Context(), ParamsKey, ps)
		handler.ServeHTTP(w, req.WithContext(ctx))
	}
}

// wrapHandler applies recovery, the global and route middlewares, the body
// limit and the timeout, outermost first.
func (r *Router) wrapHandler(handler http.Handler, timeout time.Duration, maxBodySize int64, middlewares []Middleware) http.Handler {
	chain := common.NewMiddlewareChain(middleware.Recovery(r.logger)).
		Append(r.middlewares...).
		Append(middlewares...).
		Append(middleware.MaxBodySize(maxBodySize), middleware.Timeout(timeout, r.logger))
	return chain.Then(handler)
}

// dispatchHandler runs route through the pipeline for each request.
func (r *Router) dispatchHandler(route *metadata.RouteMetadata) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		tw := &trackingWriter{ResponseWriter: w}
		ctx := common.NewContext(tw, req)

		fields := []zap.Field{zap.String("route", route.Name())}
		if traceID := middleware.GetTraceID(req); traceID != "" {
			fields = append(fields, zap.String("trace_id", traceID))
		}
		ctx.SetLogger(r.logger.With(fields...))

		matched := route.WithRouteParams(paramsMap(GetParams(req)))
		if _, err := r.pipeline.Dispatch(ctx, matched); err != nil {
			r.handleError(tw, req, ctx, err)
			return
		}
		r.writeResponse(tw, req, ctx, matched)
	})
}

// writeResponse encodes ctx.Response.Body with the route encoder. Nothing is
// written when the action already wrote to the response itself.
func (r *Router) writeResponse(w *trackingWriter, req *http.Request, ctx *common.Context, route *metadata.RouteMetadata) {
	if w.written {
		return
	}

	status := ctx.Response.Status
	if ctx.Response.Body == nil {
		if status == 0 {
			status = http.StatusNoContent
		}
		w.WriteHeader(status)
		return
	}

	if err := codec.Write(w, route.ResponseEncoder(), status, ctx.Response.Body); err != nil {
		r.handleError(w, req, ctx, fmt.Errorf("encode response: %w", err))
	}
}

// statusFor maps a dispatch error to the HTTP status sent to the client.
func statusFor(err error) int {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return http.StatusRequestEntityTooLarge
	}
	if status := common.StatusOf(err, 0); status != 0 {
		return status
	}
	var paramErr *resolver.ParamError
	if errors.As(err, &paramErr) && !resolver.IsConfigError(err) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// handleError logs err and sends the matching error response.
func (r *Router) handleError(w *trackingWriter, req *http.Request, ctx *common.Context, err error) {
	status := statusFor(err)
	message := http.StatusText(status)
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		message = httpErr.Message
	}

	fields := []zap.Field{
		zap.Error(err),
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Int("status", status),
		zap.String("state", ctx.State().String()),
	}
	if status >= http.StatusInternalServerError {
		ctx.Logger().Error("Request failed", fields...)
	} else {
		ctx.Logger().Debug("Request rejected", fields...)
	}

	if w.written {
		return
	}
	http.Error(w, message, status)
}

// ServeHTTP implements the http.Handler interface. Requests arriving after
// Shutdown get 503 Service Unavailable.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.wg.Add(1)
	defer r.wg.Done()

	r.shutdownMu.RLock()
	isShutdown := r.shutdown
	r.shutdownMu.RUnlock()

	if isShutdown {
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}

	r.router.ServeHTTP(w, req)
}

// Shutdown stops accepting new requests and waits for in-flight ones. If ctx
// ends first its error is returned.
func (r *Router) Shutdown(ctx context.Context) error {
	r.shutdownMu.Lock()
	r.shutdown = true
	r.shutdownMu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Store returns the metadata the router serves.
func (r *Router) Store() *metadata.Store {
	return r.store
}

// GetParams retrieves the httprouter.Params from the request context.
func GetParams(r *http.Request) httprouter.Params {
	params, _ := r.Context().Value(ParamsKey).(httprouter.Params)
	return params
}

// GetParam retrieves a specific route parameter from the request context.
func GetParam(r *http.Request, name string) string {
	return GetParams(r).ByName(name)
}

func paramsMap(ps httprouter.Params) map[string]string {
	m := make(map[string]string, len(ps))
	for _, p := range ps {
		m[p.Key] = p.Value
	}
	return m
}

// getEffectiveTimeout returns the route timeout, or the global one.
func (r *Router) getEffectiveTimeout(routeTimeout time.Duration) time.Duration {
	if routeTimeout > 0 {
		return routeTimeout
	}
	return r.config.GlobalTimeout
}

// getEffectiveMaxBodySize returns the route body limit, or the global one.
func (r *Router) getEffectiveMaxBodySize(routeMaxBodySize int64) int64 {
	if routeMaxBodySize > 0 {
		return routeMaxBodySize
	}
	return r.config.GlobalMaxBodySize
}

// trackingWriter records whether the response has been started, so that an
// action streaming its own response is not written over.
type trackingWriter struct {
	http.ResponseWriter
	written bool
}

func (w *trackingWriter) WriteHeader(statusCode int) {
	w.written = true
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *trackingWriter) Write(b []byte) (int, error) {
	w.written = true
	return w.ResponseWriter.Write(b)
}

func (w *trackingWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		w.written = true
		f.Flush()
	}
}
