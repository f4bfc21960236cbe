package jobs

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

type stubEnqueuer struct {
	tasks    []string
	payloads []MaintenancePayload
	err      error
}

func (s *stubEnqueuer) EnqueueMaintenance(_ context.Context, taskType string, payload MaintenancePayload) (*asynq.TaskInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.tasks = append(s.tasks, taskType)
	s.payloads = append(s.payloads, payload)
	return &asynq.TaskInfo{ID: "task-1", Queue: QueueDefault}, nil
}

func jobsRouter(queue MaintenanceEnqueuer) chi.Router {
	r := chi.NewRouter()
	h := NewHandler(nil, queue, discardLogger())
	r.Route("/jobs", h.MountRoutes)
	return r
}

func TestEnqueueMaintenanceEndpoint(t *testing.T) {
	queue := &stubEnqueuer{}
	router := jobsRouter(queue)

	req := httptest.NewRequest(http.MethodPost, "/jobs/maintenance",
		strings.NewReader(`{"task":"permission:sweep_grants","dry_run":true}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Contains(t, rec.Body.String(), "task-1")
	require.Equal(t, []string{TaskSweepGrants}, queue.tasks)
	require.Equal(t, []MaintenancePayload{{DryRun: true}}, queue.payloads)
}

func TestEnqueueMaintenanceRejectsUnknownTask(t *testing.T) {
	queue := &stubEnqueuer{}
	router := jobsRouter(queue)

	req := httptest.NewRequest(http.MethodPost, "/jobs/maintenance",
		strings.NewReader(`{"task":"permission:drop_everything"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Empty(t, queue.tasks)
}

func TestEnqueueMaintenanceRejectsBadBody(t *testing.T) {
	router := jobsRouter(&stubEnqueuer{})

	req := httptest.NewRequest(http.MethodPost, "/jobs/maintenance", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEnqueueMaintenanceWithoutQueue(t *testing.T) {
	router := jobsRouter(nil)

	req := httptest.NewRequest(http.MethodPost, "/jobs/maintenance",
		strings.NewReader(`{"task":"permission:sweep_grants"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestJobsHealthWithoutInspector(t *testing.T) {
	router := jobsRouter(&stubEnqueuer{})

	req := httptest.NewRequest(http.MethodGet, "/jobs/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"pending":0`)
}
