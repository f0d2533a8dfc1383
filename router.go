package relay

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi"
)

// Mapper connects URL patterns to Resource actions. Matched requests carry
// RoutingArgs of the form [nil, {controller, format, action, pathVars...}].
type Mapper struct {
	Router chi.Router
}

func NewMapper(r chi.Router) *Mapper {
	return &Mapper{Router: r}
}

// implement http.Handler
func (m *Mapper) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.Router.ServeHTTP(w, r)
}

// Connect routes method+pattern to action of the named resource.
func (m *Mapper) Connect(method, pattern, controller string, res http.Handler, action string) {
	m.Router.MethodFunc(method, pattern, func(w http.ResponseWriter, r *http.Request) {
		ctx := WithRoutingArgs(r.Context(), routingArgs(r.Context(), controller, action, pattern))
		res.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Collection routes the conventional actions of a collection resource:
//
//	GET    /name        index
//	POST   /name        create
//	GET    /name/{id}   show
//	HEAD   /name/{id}   meta
//	PUT    /name/{id}   update
//	DELETE /name/{id}   delete
func (m *Mapper) Collection(name string, res http.Handler) {
	base := "/" + strings.Trim(name, "/")
	m.Connect(http.MethodGet, base, name, res, "index")
	m.Connect(http.MethodPost, base, name, res, "create")
	m.Connect(http.MethodGet, base+"/{id}", name, res, "show")
	m.Connect(http.MethodHead, base+"/{id}", name, res, "meta")
	m.Connect(http.MethodPut, base+"/{id}", name, res, "update")
	m.Connect(http.MethodDelete, base+"/{id}", name, res, "delete")
}

func routingArgs(ctx context.Context, controller, action, pattern string) RoutingArgs {
	named := map[string]interface{}{
		"controller": controller,
		"action":     action,
		"format":     nil,
	}
	if rctx := chi.RouteContext(ctx); rctx != nil {
		params := rctx.URLParams
		for i, k := range params.Keys {
			if i < len(params.Values) {
				named[k] = params.Values[i]
			} else {
				named[k] = ""
			}
		}
	}
	if i := strings.LastIndex(pattern, "."); i > strings.LastIndex(pattern, "/") {
		named["format"] = pattern[i+1:]
	}
	return RoutingArgs{nil, named}
}
