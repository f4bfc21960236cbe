package permission

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archivum-dms/archivum/internal/shared"
)

func newTestAPI(t *testing.T) (*engineFixture, *chi.Mux) {
	t.Helper()
	f := newEngineFixture(t)
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), f.engine)
	r := chi.NewRouter()
	r.Route("/permissions", h.MountRoutes)
	return f, r
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any, actor *shared.Actor) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if actor != nil {
		req = req.WithContext(shared.ContextWithActor(req.Context(), actor))
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

// seedAdmin gives the actor Admin at the node so grant management endpoints
// pass the in-handler check.
func seedAdmin(t *testing.T, f *engineFixture, userID int64, node NodeRef) {
	t.Helper()
	_, err := f.engine.Grant(context.Background(), shared.Actor{UserID: 1}, GrantRequest{
		Node:      node,
		Principal: PrincipalRef{Kind: PrincipalUser, ID: userID},
		Level:     Full,
	})
	require.NoError(t, err)
}

func TestResolveEndpoint(t *testing.T) {
	f, router := newTestAPI(t)
	seedAdmin(t, f, 7, doc100)

	rec := doJSON(t, router, http.MethodGet, "/permissions/resolve?user_id=7&node_kind=document&node_id=100", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ResolveResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(7), resp.UserID)
	assert.Equal(t, doc100, resp.Node)
	assert.Equal(t, Full, resp.Decision.Level)
	assert.Equal(t, SourceDirect, resp.Decision.Source)
}

func TestResolveEndpointValidation(t *testing.T) {
	_, router := newTestAPI(t)

	rec := doJSON(t, router, http.MethodGet, "/permissions/resolve?node_kind=document&node_id=100", nil, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/permissions/resolve?user_id=7&node_kind=shelf&node_id=100", nil, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckEndpoint(t *testing.T) {
	f, router := newTestAPI(t)
	_, err := f.engine.Grant(context.Background(), testActor, GrantRequest{
		Node:      doc100,
		Principal: PrincipalRef{Kind: PrincipalUser, ID: 7},
		Level:     Read,
	})
	require.NoError(t, err)

	rec := doJSON(t, router, http.MethodGet, "/permissions/check?user_id=7&node_kind=document&node_id=100&level=read", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp CheckResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Allowed)

	rec = doJSON(t, router, http.MethodGet, "/permissions/check?user_id=7&node_kind=document&node_id=100&level=write", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Allowed)

	rec = doJSON(t, router, http.MethodGet, "/permissions/check?user_id=7&node_kind=document&node_id=100", nil, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateGrantEndpoint(t *testing.T) {
	f, router := newTestAPI(t)
	admin := &shared.Actor{UserID: 500, RequestID: "req-9"}
	seedAdmin(t, f, admin.UserID, folder10)

	body := CreateGrantRequest{
		NodeKind:      "folder",
		NodeID:        10,
		PrincipalKind: "user",
		PrincipalID:   7,
		Level:         "read|write",
	}
	rec := doJSON(t, router, http.MethodPost, "/permissions/grants", body, admin)
	require.Equal(t, http.StatusCreated, rec.Code)

	decision, err := f.engine.Resolve(context.Background(), 7, folder10)
	require.NoError(t, err)
	assert.Equal(t, Read|Write, decision.Level)
}

func TestCreateGrantRequiresAdmin(t *testing.T) {
	_, router := newTestAPI(t)

	body := CreateGrantRequest{
		NodeKind:      "folder",
		NodeID:        10,
		PrincipalKind: "user",
		PrincipalID:   7,
		Level:         "read",
	}

	// No actor at all.
	rec := doJSON(t, router, http.MethodPost, "/permissions/grants", body, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// An actor without Admin at the node.
	rec = doJSON(t, router, http.MethodPost, "/permissions/grants", body, &shared.Actor{UserID: 999})
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCreateGrantValidation(t *testing.T) {
	f, router := newTestAPI(t)
	admin := &shared.Actor{UserID: 500}
	seedAdmin(t, f, admin.UserID, folder10)

	rec := doJSON(t, router, http.MethodPost, "/permissions/grants", map[string]any{"node_kind": "folder"}, admin)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	body := CreateGrantRequest{
		NodeKind:      "folder",
		NodeID:        10,
		PrincipalKind: "user",
		PrincipalID:   7,
		Level:         "owner",
	}
	rec = doJSON(t, router, http.MethodPost, "/permissions/grants", body, admin)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestRevokeGrantEndpoint(t *testing.T) {
	f, router := newTestAPI(t)
	admin := &shared.Actor{UserID: 500}
	seedAdmin(t, f, admin.UserID, doc100)

	id, err := f.engine.Grant(context.Background(), *admin, GrantRequest{
		Node:      doc100,
		Principal: PrincipalRef{Kind: PrincipalUser, ID: 7},
		Level:     Read,
	})
	require.NoError(t, err)

	rec := doJSON(t, router, http.MethodDelete, "/permissions/grants/"+itoa(id), nil, admin)
	require.Equal(t, http.StatusNoContent, rec.Code)

	decision, err := f.engine.Resolve(context.Background(), 7, doc100)
	require.NoError(t, err)
	assert.Equal(t, None, decision.Level)

	rec = doJSON(t, router, http.MethodDelete, "/permissions/grants/9999", nil, admin)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDelegationEndpoints(t *testing.T) {
	f, router := newTestAPI(t)
	delegator := &shared.Actor{UserID: 900}
	seedAdmin(t, f, delegator.UserID, folder10)

	rec := doJSON(t, router, http.MethodPost, "/permissions/delegations", CreateDelegationRequest{
		DelegateID: 901,
		Level:      "read",
		EndsAt:     testNow.AddDate(1, 0, 0),
	}, delegator)
	require.Equal(t, http.StatusCreated, rec.Code)

	decision, err := f.engine.Resolve(context.Background(), 901, folder10)
	require.NoError(t, err)
	assert.Equal(t, Read, decision.Level)
	assert.Equal(t, SourceDelegated, decision.Source)

	rec = doJSON(t, router, http.MethodGet, "/permissions/delegations?delegator_id=900", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Delegations []Delegation `json:"delegations"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed.Delegations, 1)

	rec = doJSON(t, router, http.MethodDelete, "/permissions/delegations/"+itoa(listed.Delegations[0].ID), nil, delegator)
	require.Equal(t, http.StatusNoContent, rec.Code)

	decision, err = f.engine.Resolve(context.Background(), 901, folder10)
	require.NoError(t, err)
	assert.Equal(t, None, decision.Level)
}

func TestInvalidateEndpoint(t *testing.T) {
	f, router := newTestAPI(t)
	seedAdmin(t, f, 7, doc100)

	// Warm the persistent cache.
	_, err := f.engine.Resolve(context.Background(), 7, doc100)
	require.NoError(t, err)
	require.NotEmpty(t, f.cache.rows)

	nodeKind := "document"
	rec := doJSON(t, router, http.MethodPost, "/permissions/invalidate", InvalidateRequest{
		Scope:    "node",
		NodeKind: &nodeKind,
		NodeID:   ptrInt64(100),
	}, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Empty(t, f.cache.rows)

	rec = doJSON(t, router, http.MethodPost, "/permissions/invalidate", InvalidateRequest{Scope: "node"}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

func ptrInt64(v int64) *int64 {
	return &v
}
