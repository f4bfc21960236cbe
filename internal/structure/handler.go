package structure

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/archivum-dms/archivum/internal/platform/httpx"
)

// Handler exposes the organizational tree over HTTP.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the structure API handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	node, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, mapErr(err))
		return
	}
	httpx.JSON(w, http.StatusOK, node)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateStructureRequest
	if !h.decode(w, r, &req) {
		return
	}
	node, err := h.service.Create(r.Context(), req.Name, Kind(req.Kind), req.ParentID)
	if err != nil {
		h.logger.Error("create structure", slog.Any("error", err))
		httpx.RespondError(w, mapErr(err))
		return
	}
	httpx.JSON(w, http.StatusCreated, node)
}

func (h *Handler) Rename(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	var req RenameStructureRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.Rename(r.Context(), id, req.Name, Kind(req.Kind)); err != nil {
		httpx.RespondError(w, mapErr(err))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"id": id})
}

func (h *Handler) Move(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	var req MoveStructureRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.Move(r.Context(), id, req.ParentID); err != nil {
		h.logger.Error("move structure", slog.Int64("id", id), slog.Any("error", err))
		httpx.RespondError(w, mapErr(err))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"id": id})
}

func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	if err := h.service.Deactivate(r.Context(), id); err != nil {
		httpx.RespondError(w, mapErr(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Children(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	children, err := h.service.Children(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, mapErr(err))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"structures": children})
}

func (h *Handler) Descendants(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	descendants, err := h.service.Descendants(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, mapErr(err))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"structures": descendants})
}

func (h *Handler) Ancestors(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	ancestors, err := h.service.Ancestors(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, mapErr(err))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"structures": ancestors})
}

func (h *Handler) Members(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	members, err := h.service.MembersOf(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, mapErr(err))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"members": members})
}

func (h *Handler) AddMember(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	var req AddMemberRequest
	if !h.decode(w, r, &req) {
		return
	}
	m := Membership{UserID: req.UserID, StructureID: id, IsPrimary: req.IsPrimary, EndsAt: req.EndsAt}
	if req.StartsAt != nil {
		m.StartsAt = *req.StartsAt
	}
	memberID, err := h.service.AddMember(r.Context(), m)
	if err != nil {
		httpx.RespondError(w, mapErr(err))
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"id": memberID})
}

func (h *Handler) EndMembership(w http.ResponseWriter, r *http.Request) {
	memberID, err := strconv.ParseInt(chi.URLParam(r, "memberID"), 10, 64)
	if err != nil || memberID <= 0 {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	if err := h.service.EndMembership(r.Context(), memberID); err != nil {
		httpx.RespondError(w, mapErr(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) UserStructures(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil || userID <= 0 {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	memberships, err := h.service.StructuresOf(r.Context(), userID)
	if err != nil {
		httpx.RespondError(w, mapErr(err))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"memberships": memberships})
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
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: %v", httpx.ErrNotFound, err)
	}
	return err
}
