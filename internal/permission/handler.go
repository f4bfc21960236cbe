package permission

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/archivum-dms/archivum/internal/platform/httpx"
	"github.com/archivum-dms/archivum/internal/shared"
)

// Handler exposes the engine over HTTP.
type Handler struct {
	logger   *slog.Logger
	engine   *Engine
	validate *validator.Validate
}

// NewHandler constructs the permission API handler.
func NewHandler(logger *slog.Logger, engine *Engine) *Handler {
	return &Handler{
		logger:   logger,
		engine:   engine,
		validate: validator.New(),
	}
}

// MountRoutes attaches the permission API.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/resolve", h.ResolveHandler)
	r.Get("/check", h.Check)
	r.Get("/grants", h.ListGrants)
	r.Post("/grants", h.CreateGrant)
	r.Patch("/grants/{id}", h.UpdateGrant)
	r.Delete("/grants/{id}", h.RevokeGrant)
	r.Get("/delegations", h.ListDelegations)
	r.Post("/delegations", h.CreateDelegation)
	r.Delete("/delegations/{id}", h.RevokeDelegation)
	r.Post("/invalidate", h.Invalidate)
}

func (h *Handler) ResolveHandler(w http.ResponseWriter, r *http.Request) {
	userID, node, ok := resolveQuery(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "user_id, node_kind and node_id are required")
		return
	}
	decision, err := h.engine.Resolve(r.Context(), userID, node)
	if err != nil {
		h.logger.Error("resolve", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ResolveResponse{UserID: userID, Node: node, Decision: decision})
}

func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	userID, node, ok := resolveQuery(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "user_id, node_kind and node_id are required")
		return
	}
	required, err := ParseAccessLevel(r.URL.Query().Get("level"))
	if err != nil || required == None {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "level is required")
		return
	}
	decision, err := h.engine.Resolve(r.Context(), userID, node)
	if err != nil {
		h.logger.Error("check", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, CheckResponse{
		Allowed:  decision.Level.Has(required),
		Level:    decision.Level,
		Required: required,
	})
}

func (h *Handler) ListGrants(w http.ResponseWriter, r *http.Request) {
	node, ok := nodeQuery(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "node_kind and node_id are required")
		return
	}
	grants, err := h.engine.ListGrants(r.Context(), node)
	if err != nil {
		h.logger.Error("list grants", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"grants": grants})
}

func (h *Handler) CreateGrant(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	var req CreateGrantRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	level, err := ParseAccessLevel(req.Level)
	if err != nil {
		httpx.RespondError(w, httpxScope(err))
		return
	}
	node := NodeRef{Kind: NodeKind(req.NodeKind), ID: req.NodeID}
	if !h.requireAdmin(w, r, actor, node) {
		return
	}
	id, err := h.engine.Grant(r.Context(), *actor, GrantRequest{
		Node:                   node,
		Principal:              PrincipalRef{Kind: PrincipalKind(req.PrincipalKind), ID: req.PrincipalID},
		Level:                  level,
		IncludeChildStructures: req.IncludeChildStructures,
		ExpiresAt:              req.ExpiresAt,
		Reason:                 req.Reason,
	})
	if err != nil {
		h.logger.Error("create grant", slog.Any("error", err))
		httpx.RespondError(w, httpxScope(err))
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"id": id})
}

func (h *Handler) UpdateGrant(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	id, ok := idParam(r)
	if !ok {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	var req UpdateGrantRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	level, err := ParseAccessLevel(req.Level)
	if err != nil {
		httpx.RespondError(w, httpxScope(err))
		return
	}
	existing, err := h.engine.GetGrant(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, httpxScope(err))
		return
	}
	if !h.requireAdmin(w, r, actor, existing.Node) {
		return
	}
	if err := h.engine.UpdateGrant(r.Context(), *actor, id, level, req.ExpiresAt, req.Reason); err != nil {
		h.logger.Error("update grant", slog.Int64("id", id), slog.Any("error", err))
		httpx.RespondError(w, httpxScope(err))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"id": id})
}

func (h *Handler) RevokeGrant(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	id, ok := idParam(r)
	if !ok {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	existing, err := h.engine.GetGrant(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, httpxScope(err))
		return
	}
	if !h.requireAdmin(w, r, actor, existing.Node) {
		return
	}
	if err := h.engine.Revoke(r.Context(), *actor, id); err != nil {
		h.logger.Error("revoke grant", slog.Int64("id", id), slog.Any("error", err))
		httpx.RespondError(w, httpxScope(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListDelegations(w http.ResponseWriter, r *http.Request) {
	if raw := r.URL.Query().Get("delegator_id"); raw != "" {
		delegatorID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid delegator_id")
			return
		}
		delegations, err := h.engine.DelegationsByDelegator(r.Context(), delegatorID)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"delegations": delegations})
		return
	}
	raw := r.URL.Query().Get("delegate_id")
	delegateID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "delegator_id or delegate_id is required")
		return
	}
	delegations, err := h.engine.DelegationsByDelegate(r.Context(), delegateID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"delegations": delegations})
}

func (h *Handler) CreateDelegation(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	var req CreateDelegationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	level, err := ParseAccessLevel(req.Level)
	if err != nil {
		httpx.RespondError(w, httpxScope(err))
		return
	}
	var scope *NodeRef
	if req.NodeKind != nil && req.NodeID != nil {
		scope = &NodeRef{Kind: NodeKind(*req.NodeKind), ID: *req.NodeID}
	}
	startsAt := time.Now()
	if req.StartsAt != nil {
		startsAt = *req.StartsAt
	}
	id, err := h.engine.Delegate(r.Context(), *actor, DelegationRequest{
		DelegateID: req.DelegateID,
		Scope:      scope,
		Level:      level,
		StartsAt:   startsAt,
		EndsAt:     req.EndsAt,
	})
	if err != nil {
		h.logger.Error("create delegation", slog.Any("error", err))
		httpx.RespondError(w, httpxScope(err))
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"id": id})
}

func (h *Handler) RevokeDelegation(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	id, ok := idParam(r)
	if !ok {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	if err := h.engine.RevokeDelegation(r.Context(), *actor, id); err != nil {
		h.logger.Error("revoke delegation", slog.Int64("id", id), slog.Any("error", err))
		httpx.RespondError(w, httpxScope(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Invalidate is the collaborator hook: document moves, structure edits and
// role membership changes land here.
func (h *Handler) Invalidate(w http.ResponseWriter, r *http.Request) {
	var req InvalidateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	switch req.Scope {
	case "node":
		if req.NodeKind == nil || req.NodeID == nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "node_kind and node_id are required")
			return
		}
		h.engine.InvalidateNode(r.Context(), NodeRef{Kind: NodeKind(*req.NodeKind), ID: *req.NodeID})
	case "user":
		if req.UserID == nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "user_id is required")
			return
		}
		h.engine.InvalidateUser(r.Context(), *req.UserID)
	case "principal":
		if req.PrincipalKind == nil || req.PrincipalID == nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "principal_kind and principal_id are required")
			return
		}
		h.engine.InvalidatePrincipal(r.Context(), PrincipalRef{Kind: PrincipalKind(*req.PrincipalKind), ID: *req.PrincipalID})
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) requireActor(w http.ResponseWriter, r *http.Request) (*shared.Actor, bool) {
	actor := shared.ActorFromContext(r.Context())
	if actor == nil {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return nil, false
	}
	return actor, true
}

// requireAdmin enforces that grant management needs Admin at the target node.
func (h *Handler) requireAdmin(w http.ResponseWriter, r *http.Request, actor *shared.Actor, node NodeRef) bool {
	allowed, err := h.engine.HasPermission(r.Context(), actor.UserID, node, Admin)
	if err != nil {
		h.logger.Error("admin check", slog.String("node", node.String()), slog.Any("error", err))
		httpx.RespondError(w, err)
		return false
	}
	if !allowed {
		httpx.RespondError(w, httpx.ErrForbidden)
		return false
	}
	return true
}

func resolveQuery(r *http.Request) (int64, NodeRef, bool) {
	userID, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		return 0, NodeRef{}, false
	}
	node, ok := nodeQuery(r)
	return userID, node, ok
}

func nodeQuery(r *http.Request) (NodeRef, bool) {
	kind := NodeKind(r.URL.Query().Get("node_kind"))
	id, err := strconv.ParseInt(r.URL.Query().Get("node_id"), 10, 64)
	if !kind.Valid() || err != nil || id <= 0 {
		return NodeRef{}, false
	}
	return NodeRef{Kind: kind, ID: id}, true
}

func idParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// httpxScope maps engine sentinels onto the shared HTTP error taxonomy.
func httpxScope(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return fmt.Errorf("%w: %v", httpx.ErrNotFound, err)
	case errors.Is(err, ErrInvalidScope):
		return fmt.Errorf("%w: %v", httpx.ErrInvalidScope, err)
	}
	return err
}
