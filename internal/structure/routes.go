package structure

import "github.com/go-chi/chi/v5"

// MountRoutes attaches the structure API.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/{id}", h.Show)
	r.Patch("/{id}", h.Rename)
	r.Post("/{id}/move", h.Move)
	r.Delete("/{id}", h.Deactivate)
	r.Get("/{id}/children", h.Children)
	r.Get("/{id}/descendants", h.Descendants)
	r.Get("/{id}/ancestors", h.Ancestors)
	r.Get("/{id}/members", h.Members)
	r.Post("/{id}/members", h.AddMember)
	r.Delete("/members/{memberID}", h.EndMembership)
	r.Get("/users/{userID}", h.UserStructures)
}
