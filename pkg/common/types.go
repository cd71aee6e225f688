// Package common provides the leaf types shared by every stage of the SDispatch
// pipeline: the per-request Context, parameter kinds, the Hook capability and
// plain net/http middleware.
package common

import (
	"net/http"
)

// Middleware is a function that wraps an http.Handler.
// It is applied around the whole dispatch of a request, outside of the hook
// lifecycle, and is used for concerns such as panic recovery and trace IDs.
type Middleware func(http.Handler) http.Handler

// ParamKind identifies where the value of an action parameter comes from.
// The vocabulary is fixed; adding a kind means adding a case to the resolver.
type ParamKind string

const (
	// KindQuery reads a named value from the URL query string.
	KindQuery ParamKind = "query"
	// KindCookie reads a named cookie.
	KindCookie ParamKind = "cookie"
	// KindBody decodes the request body according to its content type.
	KindBody ParamKind = "body"
	// KindRequest passes the inbound request through unchanged.
	KindRequest ParamKind = "request"
	// KindResponse passes the outbound response through unchanged.
	KindResponse ParamKind = "response"
	// KindRouteParam reads a named segment bound by the matched path pattern.
	KindRouteParam ParamKind = "route-param"
)

// Kinds lists every parameter kind in declaration order.
var Kinds = []ParamKind{KindQuery, KindCookie, KindBody, KindRequest, KindResponse, KindRouteParam}

// Valid reports whether k is one of the known parameter kinds.
func (k ParamKind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Named reports whether parameters of this kind must carry a name.
func (k ParamKind) Named() bool {
	return k == KindQuery || k == KindCookie || k == KindRouteParam
}

// Hook is a middleware component with pre and post request lifecycle callbacks.
// Hook instances are registered once and shared by every request whose path
// matches their pattern, so per-request data belongs in the Context
// (see Context.SetHookState) rather than on the hook itself.
//
// Hooks are used as map keys for their per-request state and must therefore be
// comparable; pointer receivers are the usual choice.
type Hook interface {
	// OnPreRequest runs before parameters are resolved and the action is invoked.
	// A non-nil error aborts the remaining pre hooks and the action.
	OnPreRequest(ctx *Context) error

	// OnPostRequest runs after the action.
	OnPostRequest(ctx *Context) error
}

// HookFuncs adapts a pair of plain functions to the Hook interface.
// Either function may be nil. Register it by pointer so that it stays
// comparable.
type HookFuncs struct {
	Pre  func(ctx *Context) error
	Post func(ctx *Context) error
}

// OnPreRequest calls h.Pre if set.
func (h *HookFuncs) OnPreRequest(ctx *Context) error {
	if h.Pre == nil {
		return nil
	}
	return h.Pre(ctx)
}

// OnPostRequest calls h.Post if set.
func (h *HookFuncs) OnPostRequest(ctx *Context) error {
	if h.Post == nil {
		return nil
	}
	return h.Post(ctx)
}
