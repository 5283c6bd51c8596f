// internal/app/features/graph/routes.go
package graph

import (
	"github.com/go-chi/chi/v5"
)

// Routes mounts the GraphQL endpoints under the path where the caller mounts it.
// Typically: r.Mount("/graphql", graph.Routes(handler))
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.ServeGraphQL)
	r.Get("/ws", h.ServeWS)

	return r
}
