package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

type stubMaintainer struct {
	grants      int64
	delegations int64
	cache       int64
	calls       []string
	err         error
}

func (s *stubMaintainer) SweepExpiredGrants(context.Context) (int64, error) {
	s.calls = append(s.calls, TaskSweepGrants)
	return s.grants, s.err
}

func (s *stubMaintainer) SweepStaleDelegations(context.Context) (int64, error) {
	s.calls = append(s.calls, TaskSweepDelegations)
	return s.delegations, s.err
}

func (s *stubMaintainer) CleanupCache(context.Context) (int64, error) {
	s.calls = append(s.calls, TaskCleanupCache)
	return s.cache, s.err
}

type stubDisposal struct {
	calls int
	err   error
}

func (s *stubDisposal) DisposalScan(context.Context) (int64, error) {
	s.calls++
	return 2, s.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMaintenanceHandlersRun(t *testing.T) {
	maintainer := &stubMaintainer{grants: 3}
	disposal := &stubDisposal{}
	j := NewMaintenanceJobs(maintainer, disposal, discardLogger())
	ctx := context.Background()

	task, err := NewMaintenanceTask(TaskSweepGrants, MaintenancePayload{})
	require.NoError(t, err)
	require.NoError(t, j.HandleSweepGrants(ctx, task))

	task, err = NewMaintenanceTask(TaskSweepDelegations, MaintenancePayload{})
	require.NoError(t, err)
	require.NoError(t, j.HandleSweepDelegations(ctx, task))

	task, err = NewMaintenanceTask(TaskCleanupCache, MaintenancePayload{})
	require.NoError(t, err)
	require.NoError(t, j.HandleCleanupCache(ctx, task))

	task, err = NewMaintenanceTask(TaskDisposalScan, MaintenancePayload{})
	require.NoError(t, err)
	require.NoError(t, j.HandleDisposalScan(ctx, task))

	require.Equal(t, []string{TaskSweepGrants, TaskSweepDelegations, TaskCleanupCache}, maintainer.calls)
	require.Equal(t, 1, disposal.calls)
}

func TestMaintenanceDryRunSkipsWork(t *testing.T) {
	maintainer := &stubMaintainer{}
	j := NewMaintenanceJobs(maintainer, &stubDisposal{}, discardLogger())

	task, err := NewMaintenanceTask(TaskSweepGrants, MaintenancePayload{DryRun: true})
	require.NoError(t, err)
	require.NoError(t, j.HandleSweepGrants(context.Background(), task))
	require.Empty(t, maintainer.calls)
}

func TestMaintenanceBadPayloadSkipsRetry(t *testing.T) {
	j := NewMaintenanceJobs(&stubMaintainer{}, &stubDisposal{}, discardLogger())

	task := asynq.NewTask(TaskSweepGrants, []byte("{not json"))
	err := j.HandleSweepGrants(context.Background(), task)
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestMaintenancePropagatesErrors(t *testing.T) {
	boom := errors.New("pool exhausted")
	j := NewMaintenanceJobs(&stubMaintainer{err: boom}, &stubDisposal{}, discardLogger())

	task, err := NewMaintenanceTask(TaskSweepGrants, MaintenancePayload{})
	require.NoError(t, err)
	require.ErrorIs(t, j.HandleSweepGrants(context.Background(), task), boom)
}

func TestMaintenanceNilHandler(t *testing.T) {
	var j *MaintenanceJobs
	task, err := NewMaintenanceTask(TaskSweepGrants, MaintenancePayload{})
	require.NoError(t, err)
	require.Error(t, j.HandleSweepGrants(context.Background(), task))
}
