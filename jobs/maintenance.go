package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// PermissionMaintainer is the slice of the permission engine the
// maintenance jobs need.
type PermissionMaintainer interface {
	SweepExpiredGrants(ctx context.Context) (int64, error)
	SweepStaleDelegations(ctx context.Context) (int64, error)
	CleanupCache(ctx context.Context) (int64, error)
}

// DisposalRunner runs the retention disposal scan.
type DisposalRunner interface {
	DisposalScan(ctx context.Context) (int64, error)
}

// MaintenanceJobs bundles the periodic sweep handlers.
type MaintenanceJobs struct {
	Permissions PermissionMaintainer
	Retention   DisposalRunner
	Logger      *slog.Logger
	clock       func() time.Time
}

// NewMaintenanceJobs initialises the sweep handlers.
func NewMaintenanceJobs(permissions PermissionMaintainer, retention DisposalRunner, logger *slog.Logger) *MaintenanceJobs {
	return &MaintenanceJobs{
		Permissions: permissions,
		Retention:   retention,
		Logger:      logger,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// HandleSweepGrants executes TaskSweepGrants.
func (j *MaintenanceJobs) HandleSweepGrants(ctx context.Context, t *asynq.Task) error {
	return j.run(ctx, t, TaskSweepGrants, func(ctx context.Context) (int64, error) {
		return j.Permissions.SweepExpiredGrants(ctx)
	})
}

// HandleSweepDelegations executes TaskSweepDelegations.
func (j *MaintenanceJobs) HandleSweepDelegations(ctx context.Context, t *asynq.Task) error {
	return j.run(ctx, t, TaskSweepDelegations, func(ctx context.Context) (int64, error) {
		return j.Permissions.SweepStaleDelegations(ctx)
	})
}

// HandleCleanupCache executes TaskCleanupCache.
func (j *MaintenanceJobs) HandleCleanupCache(ctx context.Context, t *asynq.Task) error {
	return j.run(ctx, t, TaskCleanupCache, func(ctx context.Context) (int64, error) {
		return j.Permissions.CleanupCache(ctx)
	})
}

// HandleDisposalScan executes TaskDisposalScan.
func (j *MaintenanceJobs) HandleDisposalScan(ctx context.Context, t *asynq.Task) error {
	return j.run(ctx, t, TaskDisposalScan, func(ctx context.Context) (int64, error) {
		return j.Retention.DisposalScan(ctx)
	})
}

func (j *MaintenanceJobs) run(ctx context.Context, t *asynq.Task, taskType string, fn func(context.Context) (int64, error)) error {
	if j == nil {
		return errors.New("maintenance: handler not configured")
	}
	var payload MaintenancePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	logger := j.logger().With(slog.String("job", taskType))
	if payload.DryRun {
		logger.Info("dry run, skipping")
		return nil
	}

	start := j.now()
	affected, err := fn(ctx)
	if err != nil {
		logger.Error("maintenance run failed", slog.Any("error", err))
		return err
	}
	logger.Info("maintenance run completed",
		slog.Int64("affected", affected),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *MaintenanceJobs) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *MaintenanceJobs) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
