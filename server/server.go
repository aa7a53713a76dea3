// Package server contains misc server utilities.
package server

import (
	"encoding/json"
	"fmt"
	"go/types"
	"net/http"
	"sort"

	"github.com/go-chi/chi"
	"github.com/rs/zerolog/log"
)

// FloatT is a struct with a single float64 field, F64 (json "f64")
type FloatT struct {
	F64 float64 `json:"f64"`
}

// IntT is a struct with a single int field, Int (json "int")
type IntT struct {
	Int int `json:"int"`
}

// StrT is a struct with a single string field, Str (json "str")
type StrT struct {
	Str string `json:"str"`
}

// BoolT is a struct with a single bool field, Bool (json "bool")
type BoolT struct {
	Bool bool `json:"bool"`
}

// HumanPayload is a tagged union of the primitive types a route can reply
// with.  T selects the field that is encoded.
type HumanPayload struct {
	T      types.BasicKind
	Bool   bool
	Float  float64
	Int    int
	String string
}

// EncodeAndRespond writes the payload as one of {"f64": x}, {"int": x},
// {"str": x} or {"bool": x}
func (hp HumanPayload) EncodeAndRespond(w http.ResponseWriter, r *http.Request) {
	var v interface{}
	switch hp.T {
	case types.Bool:
		v = BoolT{hp.Bool}
	case types.Float64:
		v = FloatT{hp.Float}
	case types.Int:
		v = IntT{hp.Int}
	case types.String:
		v = StrT{hp.String}
	default:
		http.Error(w, fmt.Sprintf("payload type %d not supported", hp.T), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("encoding response")
	}
}

// Route is an HTTP method and a path relative to the node it belongs to
type Route struct {
	Method string
	Path   string
}

// Get is a GET route
func Get(path string) Route {
	return Route{Method: http.MethodGet, Path: path}
}

// Post is a POST route
func Post(path string) Route {
	return Route{Method: http.MethodPost, Path: path}
}

func (r Route) String() string {
	return r.Method + " " + r.Path
}

// RouteTable maps routes to their handlers
type RouteTable map[Route]http.HandlerFunc

// Endpoints lists the routes in the table, sorted by path then method
func (rt RouteTable) Endpoints() []string {
	routes := make([]Route, 0, len(rt))
	for k := range rt {
		routes = append(routes, k)
	}
	sort.Slice(routes, func(i, j int) bool {
		if routes[i].Path == routes[j].Path {
			return routes[i].Method < routes[j].Method
		}
		return routes[i].Path < routes[j].Path
	})
	out := make([]string, len(routes))
	for i, r := range routes {
		out[i] = r.String()
	}
	return out
}

// Bind registers every route in the table on r
func (rt RouteTable) Bind(r chi.Router) {
	for route, fn := range rt {
		r.MethodFunc(route.Method, route.Path, fn)
	}
}

// HTTPer is an object which has a route table
type HTTPer interface {
	RT() RouteTable
}
