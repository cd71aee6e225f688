package common

import (
	"net/http"
)

// MiddlewareChain is an ordered list of net/http middleware. The first
// element wraps all the others: it sees the request first and the response
// last.
type MiddlewareChain []Middleware

// NewMiddlewareChain creates a chain from middlewares. Nil entries are
// dropped.
func NewMiddlewareChain(middlewares ...Middleware) MiddlewareChain {
	return MiddlewareChain(nil).Append(middlewares...)
}

// Append returns a new chain with middlewares added innermost. Nil entries
// are dropped and c is left untouched, so a shared base chain can be
// extended per route.
func (c MiddlewareChain) Append(middlewares ...Middleware) MiddlewareChain {
	out := make(MiddlewareChain, len(c), len(c)+len(middlewares))
	copy(out, c)
	for _, mw := range middlewares {
		if mw != nil {
			out = append(out, mw)
		}
	}
	return out
}

// AppendIf is Append when cond holds, and a copy of c otherwise.
func (c MiddlewareChain) AppendIf(cond bool, middlewares ...Middleware) MiddlewareChain {
	if !cond {
		return c.Append()
	}
	return c.Append(middlewares...)
}

// Then wraps h with the chain. A nil h answers 404.
func (c MiddlewareChain) Then(h http.Handler) http.Handler {
	if h == nil {
		h = http.NotFoundHandler()
	}
	for i := len(c) - 1; i >= 0; i-- {
		h = c[i](h)
	}
	return h
}
