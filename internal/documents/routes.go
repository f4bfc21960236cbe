package documents

import (
	"github.com/go-chi/chi/v5"

	"github.com/archivum-dms/archivum/internal/permission"
)

// MountRoutes attaches the document hierarchy API. Every node-addressed
// route is guarded by the caller's effective permission at that node;
// creating a cabinet only needs an authenticated actor, since no node
// exists yet to check against.
func (h *Handler) MountRoutes(r chi.Router, guard permission.Middleware) {
	r.Route("/cabinets", func(r chi.Router) {
		r.Post("/", h.CreateCabinet)
		r.Get("/", h.ListCabinets)

		r.With(guard.RequireLevel(permission.NodeCabinet, permission.Read)).
			Get("/{id}", h.ShowCabinet)
		r.With(guard.RequireLevel(permission.NodeCabinet, permission.Write)).
			Patch("/{id}", h.UpdateCabinet)
		r.With(guard.RequireLevel(permission.NodeCabinet, permission.Read)).
			Get("/{id}/folders", h.CabinetFolders)
		r.With(guard.RequireLevel(permission.NodeCabinet, permission.Write)).
			Post("/{id}/folders", h.CreateFolder)
	})

	r.Route("/folders", func(r chi.Router) {
		r.With(guard.RequireLevel(permission.NodeFolder, permission.Read)).
			Get("/{id}", h.ShowFolder)
		r.With(guard.RequireLevel(permission.NodeFolder, permission.Write)).
			Patch("/{id}", h.RenameFolder)
		r.With(guard.RequireLevel(permission.NodeFolder, permission.Write)).
			Post("/{id}/move", h.MoveFolder)
		r.With(guard.RequireLevel(permission.NodeFolder, permission.Admin)).
			Post("/{id}/inheritance", h.SetFolderInheritance)
		r.With(guard.RequireLevel(permission.NodeFolder, permission.Read)).
			Get("/{id}/children", h.FolderChildren)
		r.With(guard.RequireLevel(permission.NodeFolder, permission.Write)).
			Post("/{id}/documents", h.CreateDocument)
	})

	r.Route("/documents", func(r chi.Router) {
		r.With(guard.RequireLevel(permission.NodeDocument, permission.Read)).
			Get("/{id}", h.ShowDocument)
		r.With(guard.RequireLevel(permission.NodeDocument, permission.Write)).
			Patch("/{id}", h.UpdateDocument)
		r.With(guard.RequireLevel(permission.NodeDocument, permission.Write)).
			Post("/{id}/move", h.MoveDocument)
		r.With(guard.RequireLevel(permission.NodeDocument, permission.Admin)).
			Post("/{id}/inheritance", h.SetDocumentInheritance)
		r.With(guard.RequireLevel(permission.NodeDocument, permission.Write)).
			Post("/{id}/versions", h.AddVersion)
		r.With(guard.RequireLevel(permission.NodeDocument, permission.Read)).
			Get("/{id}/versions", h.Versions)
	})
}
