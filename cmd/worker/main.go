package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/archivum-dms/archivum/internal/app"
	"github.com/archivum-dms/archivum/internal/audit"
	"github.com/archivum-dms/archivum/internal/documents"
	"github.com/archivum-dms/archivum/internal/permission"
	"github.com/archivum-dms/archivum/internal/platform/cache"
	"github.com/archivum-dms/archivum/internal/platform/db"
	"github.com/archivum-dms/archivum/internal/retention"
	"github.com/archivum-dms/archivum/internal/structure"
	"github.com/archivum-dms/archivum/jobs"
)

// hierarchyAdapter and friends mirror the server wiring; the sweeps go
// through the engine so invalidation and audit behave the same from cron
// as from the API.
type hierarchyAdapter struct {
	docs *documents.Service
}

func (a *hierarchyAdapter) NodeInfo(ctx context.Context, node permission.NodeRef) (permission.NodeInfo, bool, error) {
	if a.docs == nil {
		return permission.NodeInfo{}, false, nil
	}
	return a.docs.NodeInfo(ctx, node)
}

type structureAdapter struct {
	svc *structure.Service
}

func (a *structureAdapter) ActiveMemberships(ctx context.Context, userID int64) ([]permission.StructureMembership, error) {
	if a.svc == nil {
		return nil, nil
	}
	paths, err := a.svc.ActiveMemberships(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]permission.StructureMembership, 0, len(paths))
	for _, p := range paths {
		out = append(out, permission.StructureMembership{StructureID: p.StructureID, Path: p.Path})
	}
	return out, nil
}

func (a *structureAdapter) StructurePath(ctx context.Context, structureID int64) (string, bool, error) {
	if a.svc == nil {
		return "", false, nil
	}
	return a.svc.StructurePath(ctx, structureID)
}

func (a *structureAdapter) MemberIDs(ctx context.Context, structureID int64) ([]int64, error) {
	if a.svc == nil {
		return nil, nil
	}
	return a.svc.MemberIDs(ctx, structureID)
}

type engineInvalidator struct {
	engine *permission.Engine
}

func (i engineInvalidator) StructureChanged(ctx context.Context, structureID int64) {
	i.engine.InvalidatePrincipal(ctx, permission.PrincipalRef{Kind: permission.PrincipalStructure, ID: structureID})
}

func (i engineInvalidator) MemberChanged(ctx context.Context, userID int64) {
	i.engine.InvalidateUser(ctx, userID)
}

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable", slog.Any("error", err))
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	hierarchy := &hierarchyAdapter{}
	structures := &structureAdapter{}

	engine := permission.NewEngine(permission.EngineConfig{
		Grants:      permission.NewGrantStore(pool),
		Delegations: permission.NewDelegationStore(pool),
		Cache:       permission.NewCacheStore(pool),
		Hot:         permission.NewHotCache(redisClient, cfg.PermCacheTTL),
		Hierarchy:   hierarchy,
		Structures:  structures,
		Roles:       permission.NewRoleDirectory(pool),
		Audit:       audit.NewStore(pool),
		Logger:      logger,
	})

	structureService := structure.NewService(structure.NewRepository(pool), engineInvalidator{engine: engine}, logger)
	structures.svc = structureService

	documentsService := documents.NewService(documents.NewRepository(pool), engine, logger)
	hierarchy.docs = documentsService

	retentionService := retention.NewService(retention.NewStore(pool), engine, cfg.RetentionPeriod, logger)

	maintenance := jobs.NewMaintenanceJobs(engine, retentionService, logger)

	cron := make([]jobs.CronRegistration, 0, 4)
	for _, entry := range []struct {
		spec     string
		taskType string
	}{
		{cfg.GrantSweepSpec, jobs.TaskSweepGrants},
		{cfg.DelegationSweepSpec, jobs.TaskSweepDelegations},
		{cfg.CacheCleanupSpec, jobs.TaskCleanupCache},
		{cfg.DisposalScanSpec, jobs.TaskDisposalScan},
	} {
		task, err := jobs.NewMaintenanceTask(entry.taskType, jobs.MaintenancePayload{})
		if err != nil {
			logger.Error("build maintenance task", slog.String("type", entry.taskType), slog.Any("error", err))
			os.Exit(1)
		}
		cron = append(cron, jobs.CronRegistration{
			Spec:    entry.spec,
			Task:    task,
			Options: []asynq.Option{asynq.MaxRetry(3)},
		})
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskSweepGrants, Handler: maintenance.HandleSweepGrants},
			{Type: jobs.TaskSweepDelegations, Handler: maintenance.HandleSweepDelegations},
			{Type: jobs.TaskCleanupCache, Handler: maintenance.HandleCleanupCache},
			{Type: jobs.TaskDisposalScan, Handler: maintenance.HandleDisposalScan},
		},
		Cron: cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
