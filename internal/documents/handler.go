package documents

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/archivum-dms/archivum/internal/platform/httpx"
	"github.com/archivum-dms/archivum/internal/shared"
)

// Handler exposes cabinets, folders, documents and versions over HTTP.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

func (h *Handler) CreateCabinet(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req CreateCabinetRequest
	if !h.decode(w, r, &req) {
		return
	}
	cabinet, err := h.service.CreateCabinet(r.Context(), actor, req.Name, req.Description)
	if err != nil {
		httpx.RespondError(w, mapErr(err))
		return
	}
	httpx.JSON(w, http.StatusCreated, cabinet)
}

func (h *Handler) ShowCabinet(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	cabinet, err := h.service.GetCabinet(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, mapErr(err))
		return
	}
	httpx.JSON(w, http.StatusOK, cabinet)
}

func (h *Handler) UpdateCabinet(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	var req UpdateCabinetRequest
	if !h.decode(w, r, &req) {
		return
	}
	cabinet, err := h.service.UpdateCabinet(r.Context(), id, req.Name, req.Description)
	if err != nil {
		httpx.RespondError(w, mapErr(err))
		return
	}
	httpx.JSON(w, http.StatusOK, cabinet)
}

func (h *Handler) ListCabinets(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	cabinets, err := h.service.ListCabinets(r.Context(), shared.NewPagination(page, perPage, 0))
	if err != nil {
		httpx.RespondError(w, mapErr(err))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"cabinets": cabinets})
}

// CreateFolder creates a folder in the cabinet addressed by the route.
func (h *Handler) CreateFolder(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	cabinetID, ok := idParam(r)
	if !ok {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	var req CreateFolderRequest
	if !h.decode(w, r, &req) {
		return
	}
	folder, err := h.service.CreateFolder(r.Context(), actor, cabinetID, req.ParentFolderID, req.Name)
	if err != nil {
		httpx.RespondError(w, mapErr(err))
		return
	}
	httpx.JSON(w, http.StatusCreated, folder)
}

func (h *Handler) ShowFolder(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	folder, err := h.service.GetFolder(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, mapErr(err))
		return
	}
	httpx.JSON(w, http.StatusOK, folder)
}

func (h *Handler) RenameFolder(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	var req RenameFolderRequest
	if !h.decode(w, r, &req) {
		return
	}
	folder, err := h.service.RenameFolder(r.Context(), id, req.Name)
	if err != nil {
		httpx.RespondError(w, mapErr(err))
		return
	}
	httpx.JSON(w, http.StatusOK, folder)
}

func (h *Handler) MoveFolder(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	var req MoveFolderRequest
	if !h.decode(w, r, &req) {
		return
	}
	folder, err := h.service.MoveFolder(r.Context(), id, req.ParentFolderID)
	if err != nil {
		httpx.RespondError(w, mapErr(err))
		return
	}
	httpx.JSON(w, http.StatusOK, folder)
}

func (h *Handler) SetFolderInheritance(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := idParam(r)
	if !ok {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	var req InheritanceRequest
	if !h.decode(w, r, &req) {
		return
	}
	folder, err := h.service.SetFolderInheritance(r.Context(), actor, id, *req.BreaksInheritance)
	if err != nil {
		httpx.RespondError(w, mapErr(err))
		return
	}
	httpx.JSON(w, http.StatusOK, folder)
}

func (h *Handler) FolderChildren(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	folder, err := h.service.GetFolder(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, mapErr(err))
		return
	}
	children, err := h.service.ChildFolders(r.Context(), folder.CabinetID, &id)
	if err != nil {
		httpx.RespondError(w, mapErr(err))
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	docs, err := h.service.DocumentsInFolder(r.Context(), id, shared.NewPagination(page, perPage, 0))
	if err != nil {
		httpx.RespondError(w, mapErr(err))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"folders": children, "documents": docs})
}

func (h *Handler) CabinetFolders(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	folders, err := h.service.ChildFolders(r.Context(), id, nil)
	if err != nil {
		httpx.RespondError(w, mapErr(err))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"folders": folders})
}

func (h *Handler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	folderID, ok := idParam(r)
	if !ok {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	var req CreateDocumentRequest
	if !h.decode(w, r, &req) {
		return
	}
	doc, err := h.service.CreateDocument(r.Context(), actor, folderID, req.Title, req.RefCode)
	if err != nil {
		httpx.RespondError(w, mapErr(err))
		return
	}
	httpx.JSON(w, http.StatusCreated, doc)
}

func (h *Handler) ShowDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	doc, err := h.service.GetDocument(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, mapErr(err))
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) UpdateDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	var req UpdateDocumentRequest
	if !h.decode(w, r, &req) {
		return
	}
	doc, err := h.service.UpdateDocument(r.Context(), id, req.Title, req.Status)
	if err != nil {
		httpx.RespondError(w, mapErr(err))
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) MoveDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	var req MoveDocumentRequest
	if !h.decode(w, r, &req) {
		return
	}
	doc, err := h.service.MoveDocument(r.Context(), id, req.FolderID)
	if err != nil {
		httpx.RespondError(w, mapErr(err))
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) SetDocumentInheritance(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := idParam(r)
	if !ok {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	var req InheritanceRequest
	if !h.decode(w, r, &req) {
		return
	}
	doc, err := h.service.SetDocumentInheritance(r.Context(), actor, id, *req.BreaksInheritance)
	if err != nil {
		httpx.RespondError(w, mapErr(err))
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) AddVersion(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := idParam(r)
	if !ok {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	var req AddVersionRequest
	if !h.decode(w, r, &req) {
		return
	}
	version, err := h.service.AddVersion(r.Context(), actor, id, Version{
		FileName:    req.FileName,
		ContentType: req.ContentType,
		SizeBytes:   req.SizeBytes,
		StorageKey:  req.StorageKey,
		Comment:     req.Comment,
	})
	if err != nil {
		httpx.RespondError(w, mapErr(err))
		return
	}
	httpx.JSON(w, http.StatusCreated, version)
}

func (h *Handler) Versions(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	versions, err := h.service.Versions(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, mapErr(err))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"versions": versions})
}

func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (shared.Actor, bool) {
	actor := shared.ActorFromContext(r.Context())
	if actor == nil {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return shared.Actor{}, false
	}
	return *actor, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return false
	}
	if err := h.validate.Struct(target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func idParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func mapErr(err error) error {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		return fmt.Errorf("%w: %v", httpx.ErrNotFound, err)
	case errors.Is(err, ErrFolderCycle):
		return fmt.Errorf("%w: %v", httpx.ErrInvalidScope, err)
	}
	return err
}
