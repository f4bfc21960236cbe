package retention

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/archivum-dms/archivum/internal/permission"
	"github.com/archivum-dms/archivum/internal/platform/httpx"
	"github.com/archivum-dms/archivum/internal/shared"
)

type PlaceHoldRequest struct {
	Kind   HoldKind `json:"kind" validate:"required,oneof=retention legal"`
	Reason string   `json:"reason" validate:"required,min=1,max=2000"`
}

// Handler exposes hold management over HTTP.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes attaches the retention API. Placing and releasing holds is an
// Admin-level action on the target document.
func (h *Handler) MountRoutes(r chi.Router, guard permission.Middleware) {
	admin := guard.RequireLevel(permission.NodeDocument, permission.Admin)
	read := guard.RequireLevel(permission.NodeDocument, permission.Read)

	r.With(admin).Post("/documents/{id}/holds", h.PlaceHold)
	r.With(read).Get("/documents/{id}/holds", h.Holds)
	r.Delete("/holds/{holdID}", h.ReleaseHold)
}

func (h *Handler) PlaceHold(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	if actor == nil {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	documentID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || documentID <= 0 {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	var req PlaceHoldRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	hold, err := h.service.PlaceHold(r.Context(), *actor, documentID, req.Kind, req.Reason)
	if err != nil {
		httpx.RespondError(w, mapErr(err))
		return
	}
	httpx.JSON(w, http.StatusCreated, hold)
}

func (h *Handler) Holds(w http.ResponseWriter, r *http.Request) {
	documentID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || documentID <= 0 {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	holds, err := h.service.HoldsFor(r.Context(), documentID)
	if err != nil {
		httpx.RespondError(w, mapErr(err))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"holds": holds})
}

// ReleaseHold needs Admin on the held document, which is only known after
// loading the hold, so the check runs inline instead of as middleware.
func (h *Handler) ReleaseHold(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	if actor == nil {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "holdID"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	hold, err := h.service.GetHold(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, mapErr(err))
		return
	}
	allowed, err := h.service.CanAdminister(r.Context(), actor.UserID, hold.DocumentID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if !allowed {
		httpx.RespondError(w, httpx.ErrForbidden)
		return
	}
	released, err := h.service.ReleaseHold(r.Context(), *actor, id)
	if err != nil {
		httpx.RespondError(w, mapErr(err))
		return
	}
	httpx.JSON(w, http.StatusOK, released)
}

func mapErr(err error) error {
	if errors.Is(err, shared.ErrNotFound) {
		return fmt.Errorf("%w: %v", httpx.ErrNotFound, err)
	}
	return err
}
