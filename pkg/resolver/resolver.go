// Package resolver builds the argument list of an action from a request.
//
// Every declared parameter yields exactly one value, in ascending index
// order. A value that cannot be found (a missing query key, an absent cookie,
// a malformed JSON body) becomes common.Undefined instead of failing the
// request. Only body read errors and transform failures are reported as
// errors.
package resolver

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/Suhaibinator/SDispatch/pkg/codec"
	"github.com/Suhaibinator/SDispatch/pkg/common"
	"github.com/Suhaibinator/SDispatch/pkg/metadata"
	"github.com/Suhaibinator/SDispatch/pkg/transform"
	"go.uber.org/zap"
)

// ParamError reports a parameter that could not be resolved at all.
type ParamError struct {
	Index int
	Kind  common.ParamKind
	Err   error
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("param %d (%s): %v", e.Index, e.Kind, e.Err)
}

func (e *ParamError) Unwrap() error {
	return e.Err
}

// IsConfigError reports whether err comes from a transform that is declared
// by a route but missing from the transform configuration.
func IsConfigError(err error) bool {
	return errors.Is(err, transform.ErrNotFound) || errors.Is(err, transform.ErrNoConfig)
}

// Resolve returns the arguments for route. cfg may be nil, in which case
// transforms referenced by id are skipped and only inline ones apply.
//
// The body is read through ctx.Body, so calling Resolve again for the same
// Context yields the same values.
func Resolve(ctx *common.Context, route *metadata.RouteMetadata, cfg transform.ConfigMap) (common.Args, error) {
	r := &resolution{ctx: ctx, route: route, cfg: cfg}
	r.query = ParseQuery(ctx.Request.URL)
	r.cookies = ParseCookies(ctx.Request.Header)

	params := route.SortedParams()
	args := make(common.Args, 0, len(params))
	for _, p := range params {
		v, err := r.resolve(p)
		if err != nil {
			return nil, &ParamError{Index: p.Index, Kind: p.Kind(), Err: err}
		}
		args = append(args, v)
	}
	return args, nil
}

// ParseQuery returns the query parameters of a request target. It returns nil
// when the target has no query component or the component is empty, which
// callers can tell apart from a query that parsed to zero entries.
func ParseQuery(rawURL string) url.Values {
	_, rawQuery, found := strings.Cut(rawURL, "?")
	if !found {
		return nil
	}
	rawQuery, _, _ = strings.Cut(rawQuery, "#")
	if rawQuery == "" {
		return nil
	}
	return codec.DecodeQuery(rawQuery)
}

// ParseCookies returns the cookies of the Cookie header as a name to value
// map. A cookie sent twice keeps its first value. The map is empty, never
// nil, when no cookie is present.
func ParseCookies(header http.Header) map[string]string {
	cookies := make(map[string]string)
	if header == nil {
		return cookies
	}
	for _, c := range (&http.Request{Header: header}).Cookies() {
		if _, ok := cookies[c.Name]; !ok {
			cookies[c.Name] = c.Value
		}
	}
	return cookies
}

type resolution struct {
	ctx     *common.Context
	route   *metadata.RouteMetadata
	cfg     transform.ConfigMap
	query   url.Values
	cookies map[string]string
}

func (r *resolution) resolve(p metadata.ActionParam) (any, error) {
	switch src := p.Source.(type) {
	case metadata.Query:
		if r.query == nil {
			return common.Undefined, nil
		}
		if v := r.query.Get(src.Name); v != "" {
			return v, nil
		}
		return common.Undefined, nil
	case metadata.Cookie:
		if v, ok := r.cookies[src.Name]; ok {
			return v, nil
		}
		return common.Undefined, nil
	case metadata.Body:
		return r.body(p)
	case metadata.Request:
		return r.ctx.Request, nil
	case metadata.Response:
		return r.ctx.Response, nil
	case metadata.RouteParam:
		if v, ok := r.route.RouteParams[src.Name]; ok {
			return v, nil
		}
		return common.Undefined, nil
	default:
		return common.Undefined, nil
	}
}

func (r *resolution) body(p metadata.ActionParam) (any, error) {
	raw, err := r.ctx.Body()
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	switch codec.FormatOf(r.ctx.Request.Header.Get("Content-Type")) {
	case codec.FormatJSON:
		v, err := codec.DecodeJSON(raw)
		if err != nil {
			r.ctx.Logger().Debug("Malformed JSON body",
				zap.String("route", r.route.Name()),
				zap.Int("param", p.Index),
				zap.Error(err),
			)
			return common.Undefined, nil
		}
		return r.apply(p, v)
	case codec.FormatForm:
		return r.apply(p, codec.DecodeForm(raw))
	default:
		return raw, nil
	}
}

// apply runs the transform declared by p. A registered id takes precedence
// over an inline function when a configuration is available.
func (r *resolution) apply(p metadata.ActionParam, raw any) (any, error) {
	ref := p.Transform
	switch {
	case ref == nil:
		return raw, nil
	case ref.ID != "" && r.cfg != nil:
		return r.cfg.GetTransform(p.Kind(), ref.ID, raw)
	case ref.Func != nil:
		return ref.Func(raw)
	default:
		return raw, nil
	}
}
