package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/archivum-dms/archivum/internal/app"
	"github.com/archivum-dms/archivum/internal/audit"
	"github.com/archivum-dms/archivum/internal/documents"
	"github.com/archivum-dms/archivum/internal/observability"
	"github.com/archivum-dms/archivum/internal/permission"
	"github.com/archivum-dms/archivum/internal/platform/cache"
	"github.com/archivum-dms/archivum/internal/platform/db"
	"github.com/archivum-dms/archivum/internal/retention"
	"github.com/archivum-dms/archivum/internal/structure"
	"github.com/archivum-dms/archivum/jobs"
)

// hierarchyAdapter bridges the document service into the resolver's parent
// lookups. It is filled in after the engine exists because the document
// service also needs the engine for invalidation.
type hierarchyAdapter struct {
	docs *documents.Service
}

func (a *hierarchyAdapter) NodeInfo(ctx context.Context, node permission.NodeRef) (permission.NodeInfo, bool, error) {
	if a.docs == nil {
		return permission.NodeInfo{}, false, nil
	}
	return a.docs.NodeInfo(ctx, node)
}

// structureAdapter maps the structure service's membership rows onto the
// resolver's directory view.
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

// engineInvalidator lets the structure service flush cached decisions when
// the organizational tree changes.
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
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	// The hot cache degrades to pass-through without Redis, so a failed
	// connection is not fatal.
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

	auditStore := audit.NewStore(dbpool)
	metrics := observability.NewMetrics()

	hierarchy := &hierarchyAdapter{}
	structures := &structureAdapter{}

	engine := permission.NewEngine(permission.EngineConfig{
		Grants:      permission.NewGrantStore(dbpool),
		Delegations: permission.NewDelegationStore(dbpool),
		Cache:       permission.NewCacheStore(dbpool),
		Hot:         permission.NewHotCache(redisClient, cfg.PermCacheTTL),
		Hierarchy:   hierarchy,
		Structures:  structures,
		Roles:       permission.NewRoleDirectory(dbpool),
		Audit:       auditStore,
		Metrics:     metrics,
		Logger:      logger,
	})

	structureService := structure.NewService(structure.NewRepository(dbpool), engineInvalidator{engine: engine}, logger)
	structures.svc = structureService

	documentsService := documents.NewService(documents.NewRepository(dbpool), engine, logger)
	hierarchy.docs = documentsService

	retentionService := retention.NewService(retention.NewStore(dbpool), engine, cfg.RetentionPeriod, logger)

	guard := permission.Middleware{Engine: engine, Logger: logger}

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	queue, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("asynq client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := queue.Close(); err != nil {
			logger.Warn("asynq client close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		Guard:             guard,
		PermissionHandler: permission.NewHandler(logger, engine),
		StructureHandler:  structure.NewHandler(logger, structureService),
		DocumentsHandler:  documents.NewHandler(logger, documentsService),
		AuditHandler:      audit.NewHandler(logger, auditStore),
		RetentionHandler:  retention.NewHandler(logger, retentionService),
		JobHandler:        jobs.NewHandler(inspector, queue, logger),
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
