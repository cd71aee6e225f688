package metadata

import (
	"fmt"

	"github.com/Suhaibinator/SDispatch/pkg/common"
)

// Source says where the value of an action parameter comes from. It is a
// closed set: the six variants below are the only implementations, and the
// resolver switches over them. Only the variants that look a value up by
// name carry a Name.
type Source interface {
	Kind() common.ParamKind
	isSource()
}

// Query reads the named value of the URL query string.
type Query struct{ Name string }

// Cookie reads the named cookie.
type Cookie struct{ Name string }

// Body decodes the request body according to its content type.
type Body struct{}

// Request passes the Context request through.
type Request struct{}

// Response passes the Context response through.
type Response struct{}

// RouteParam reads the named path segment bound by the matched route.
type RouteParam struct{ Name string }

func (Query) Kind() common.ParamKind      { return common.KindQuery }
func (Cookie) Kind() common.ParamKind     { return common.KindCookie }
func (Body) Kind() common.ParamKind       { return common.KindBody }
func (Request) Kind() common.ParamKind    { return common.KindRequest }
func (Response) Kind() common.ParamKind   { return common.KindResponse }
func (RouteParam) Kind() common.ParamKind { return common.KindRouteParam }

func (Query) isSource()      {}
func (Cookie) isSource()     {}
func (Body) isSource()       {}
func (Request) isSource()    {}
func (Response) isSource()   {}
func (RouteParam) isSource() {}

// SourceName returns the name carried by s, or "" for unnamed variants.
func SourceName(s Source) string {
	switch v := s.(type) {
	case Query:
		return v.Name
	case Cookie:
		return v.Name
	case RouteParam:
		return v.Name
	default:
		return ""
	}
}

// SourceFor builds the Source variant for kind. name is required for the
// query, cookie and route-param kinds and ignored otherwise.
func SourceFor(kind common.ParamKind, name string) (Source, error) {
	if kind.Named() && name == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingName, kind)
	}
	switch kind {
	case common.KindQuery:
		return Query{Name: name}, nil
	case common.KindCookie:
		return Cookie{Name: name}, nil
	case common.KindBody:
		return Body{}, nil
	case common.KindRequest:
		return Request{}, nil
	case common.KindResponse:
		return Response{}, nil
	case common.KindRouteParam:
		return RouteParam{Name: name}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}
