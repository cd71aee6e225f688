package common

import (
	"net/http"
)

type undefined struct{}

func (undefined) String() string { return "undefined" }

// Undefined is the value of an action argument that could not be resolved:
// a missing query value, an absent cookie, a malformed JSON body. It is
// distinct from nil, which is what a JSON null decodes to.
var Undefined any = undefined{}

// IsUndefined reports whether v is the Undefined sentinel.
func IsUndefined(v any) bool {
	_, ok := v.(undefined)
	return ok
}

// Args is the ordered argument list an action is invoked with. It always holds
// exactly one value per declared parameter, in ascending parameter index order.
type Args []any

// Resolved reports whether argument i exists and is not Undefined.
func (a Args) Resolved(i int) bool {
	return i >= 0 && i < len(a) && !IsUndefined(a[i])
}

// Value returns argument i, or Undefined when i is out of range.
func (a Args) Value(i int) any {
	if i < 0 || i >= len(a) {
		return Undefined
	}
	return a[i]
}

// String returns argument i as a string.
func (a Args) String(i int) (string, bool) {
	s, ok := a.Value(i).(string)
	return s, ok
}

// Map returns argument i as a decoded JSON object.
func (a Args) Map(i int) (map[string]any, bool) {
	m, ok := a.Value(i).(map[string]any)
	return m, ok
}

// Form returns argument i as a decoded urlencoded form.
func (a Args) Form(i int) (map[string]string, bool) {
	m, ok := a.Value(i).(map[string]string)
	return m, ok
}

// Bytes returns argument i as a raw body.
func (a Args) Bytes(i int) ([]byte, bool) {
	b, ok := a.Value(i).([]byte)
	return b, ok
}

// Request returns argument i as the inbound request of the Context.
func (a Args) Request(i int) (*Request, bool) {
	r, ok := a.Value(i).(*Request)
	return r, ok
}

// Response returns argument i as the outbound response of the Context.
func (a Args) Response(i int) (*Response, bool) {
	r, ok := a.Value(i).(*Response)
	return r, ok
}

// ResponseWriter is a shortcut for the writer behind a response argument.
func (a Args) ResponseWriter(i int) (http.ResponseWriter, bool) {
	r, ok := a.Response(i)
	if !ok || r.Writer == nil {
		return nil, false
	}
	return r.Writer, true
}
