package common

import (
	"context"
	"io"
	"net/http"

	"go.uber.org/zap"
)

// Request is the inbound side of a Context.
type Request struct {
	// URL is the request target as received, including any query string.
	URL string
	// Header holds the request headers.
	Header http.Header
	// Body is the body stream. It can be read only once; use Context.Body.
	Body io.Reader
	// Server is the underlying server request.
	Server *http.Request
}

// Response is the outbound response under construction. Hooks and actions
// mutate it in place; the HTTP layer writes it once the pipeline is done.
type Response struct {
	// Status is the HTTP status to send. Zero means "let the writer decide".
	Status int
	// Header holds headers to add to the response.
	Header http.Header
	// Body is the value to encode. A non-nil action result replaces it.
	Body any
	// Writer is the raw response writer, for actions that stream on their own.
	Writer http.ResponseWriter
}

// Context is the mutable bundle passed through every stage of one request.
// It is owned by a single pipeline run and must not be shared across requests.
type Context struct {
	ctx      context.Context
	Request  *Request
	Response *Response

	logger *zap.Logger
	route  string
	state  State
	hooks  map[any]any
	values map[string]any

	body     []byte
	bodyErr  error
	bodyRead bool
}

// NewContext creates a Context for one request.
func NewContext(w http.ResponseWriter, r *http.Request) *Context {
	header := http.Header{}
	if w != nil {
		header = w.Header()
	}
	return &Context{
		ctx: r.Context(),
		Request: &Request{
			URL:    r.URL.RequestURI(),
			Header: r.Header,
			Body:   r.Body,
			Server: r,
		},
		Response: &Response{
			Header: header,
			Writer: w,
		},
		logger: zap.NewNop(),
	}
}

// Context returns the Go context of the request.
func (c *Context) Context() context.Context {
	if c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}

// WithContext replaces the Go context, for instance to attach a deadline.
func (c *Context) WithContext(ctx context.Context) *Context {
	c.ctx = ctx
	return c
}

// Logger returns the request logger. It is never nil.
func (c *Context) Logger() *zap.Logger {
	return c.logger
}

// SetLogger sets the request logger. A nil logger is replaced by a no-op one.
func (c *Context) SetLogger(logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c.logger = logger
}

// RouteName returns the name of the route being dispatched, "" before
// matching.
func (c *Context) RouteName() string {
	return c.route
}

// SetRouteName records the name of the route being dispatched.
func (c *Context) SetRouteName(name string) {
	c.route = name
}

// State returns the pipeline state the request is in.
func (c *Context) State() State {
	return c.state
}

// SetState moves the request to s.
func (c *Context) SetState(s State) {
	c.state = s
}

// Body returns the request body. The underlying stream is read on the first
// call only; later calls return the cached bytes (and error) of that read.
func (c *Context) Body() ([]byte, error) {
	if c.bodyRead {
		return c.body, c.bodyErr
	}
	c.bodyRead = true
	if c.Request == nil || c.Request.Body == nil {
		return nil, nil
	}
	c.body, c.bodyErr = io.ReadAll(c.Request.Body)
	if closer, ok := c.Request.Body.(io.Closer); ok {
		_ = closer.Close()
	}
	return c.body, c.bodyErr
}

// SetHookState stores per-request scratch state for owner, usually the hook
// instance itself. Keeping it here instead of on the shared hook makes hooks
// safe under concurrent requests.
func (c *Context) SetHookState(owner any, v any) {
	if c.hooks == nil {
		c.hooks = make(map[any]any)
	}
	c.hooks[owner] = v
}

// HookState returns the scratch state stored for owner.
func (c *Context) HookState(owner any) (any, bool) {
	v, ok := c.hooks[owner]
	return v, ok
}

// Set stores a request scoped value under key.
func (c *Context) Set(key string, v any) {
	if c.values == nil {
		c.values = make(map[string]any)
	}
	c.values[key] = v
}

// Get returns the request scoped value stored under key.
func (c *Context) Get(key string) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}
