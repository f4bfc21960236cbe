package audit

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/archivum-dms/archivum/internal/permission"
	"github.com/archivum-dms/archivum/internal/platform/httpx"
	"github.com/archivum-dms/archivum/internal/shared"
)

// Handler exposes read-only access to the audit trail.
type Handler struct {
	logger *slog.Logger
	store  Store
}

func NewHandler(logger *slog.Logger, store Store) *Handler {
	return &Handler{logger: logger, store: store}
}

// MountRoutes attaches the audit API.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.Recent)
	r.Get("/nodes/{kind}/{id}", h.ByNode)
	r.Get("/principals/{kind}/{id}", h.ByPrincipal)
	r.Get("/performers/{id}", h.ByPerformer)
}

func (h *Handler) Recent(w http.ResponseWriter, r *http.Request) {
	p := pageOf(r)
	entries, hasNext, err := h.store.Recent(r.Context(), p.PerPage, p.Offset())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	respond(w, entries, p, hasNext)
}

func (h *Handler) ByNode(w http.ResponseWriter, r *http.Request) {
	kind := permission.NodeKind(chi.URLParam(r, "kind"))
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if !kind.Valid() || err != nil || id <= 0 {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	p := pageOf(r)
	entries, hasNext, err := h.store.ByNode(r.Context(), permission.NodeRef{Kind: kind, ID: id}, p.PerPage, p.Offset())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	respond(w, entries, p, hasNext)
}

func (h *Handler) ByPrincipal(w http.ResponseWriter, r *http.Request) {
	kind := permission.PrincipalKind(chi.URLParam(r, "kind"))
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if !kind.Valid() || err != nil || id <= 0 {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	p := pageOf(r)
	entries, hasNext, err := h.store.ByPrincipal(r.Context(), permission.PrincipalRef{Kind: kind, ID: id}, p.PerPage, p.Offset())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	respond(w, entries, p, hasNext)
}

func (h *Handler) ByPerformer(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	p := pageOf(r)
	entries, hasNext, err := h.store.ByPerformer(r.Context(), id, p.PerPage, p.Offset())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	respond(w, entries, p, hasNext)
}

func pageOf(r *http.Request) shared.Pagination {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	return shared.NewPagination(page, perPage, 0)
}

func respond(w http.ResponseWriter, entries []Entry, p shared.Pagination, hasNext bool) {
	httpx.JSON(w, http.StatusOK, map[string]any{
		"entries":  entries,
		"page":     p.Page,
		"per_page": p.PerPage,
		"has_next": hasNext,
	})
}
