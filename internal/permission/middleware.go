package permission

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/archivum-dms/archivum/internal/shared"
)

// Middleware wires permission checks for HTTP handlers.
type Middleware struct {
	Engine *Engine
	Logger *slog.Logger
}

// RequireLevel guards a route subtree on the effective permission of the
// acting user at the node addressed by the {id} route parameter. Missing
// actor or insufficient level both answer 403; the engine fails closed.
func (m Middleware) RequireLevel(kind NodeKind, level AccessLevel) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := shared.ActorFromContext(r.Context())
			if actor == nil {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
			if err != nil || id <= 0 {
				http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
				return
			}
			node := NodeRef{Kind: kind, ID: id}
			allowed, err := m.Engine.HasPermission(r.Context(), actor.UserID, node, level)
			if err != nil {
				if m.Logger != nil {
					m.Logger.Error("permission check", slog.String("node", node.String()), slog.Any("error", err))
				}
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			if !allowed {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
