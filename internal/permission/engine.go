package permission

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/archivum-dms/archivum/internal/shared"
)

// Audit action names recorded by the engine.
const (
	AuditActionGrant              = "grant"
	AuditActionRevoke             = "revoke"
	AuditActionModify             = "modify"
	AuditActionBreakInheritance   = "break_inheritance"
	AuditActionRestoreInheritance = "restore_inheritance"
)

// AuditEntry is the engine-side view of one audit record.
type AuditEntry struct {
	Action      string
	Node        NodeRef
	Principal   *PrincipalRef
	OldLevel    *AccessLevel
	NewLevel    *AccessLevel
	PerformedBy int64
	RequestID   string
	IP          string
}

// AuditSink receives one entry per successful permission-affecting action.
type AuditSink interface {
	Record(ctx context.Context, entry AuditEntry) error
}

// MetricsSink counts resolutions by decision source and by which layer
// answered. Layer is one of "hot", "store" or "computed".
type MetricsSink interface {
	ObserveResolve(source Source, layer string)
}

// Engine is the authorization facade the rest of the system talks to.
type Engine struct {
	grants      GrantStore
	delegations DelegationStore
	cache       CacheStore
	hot         *HotCache
	resolver    *Resolver
	structures  StructureDirectory
	roles       RoleDirectory
	audit       AuditSink
	metrics     MetricsSink
	logger      *slog.Logger
	resolveSF   singleflight.Group
	now         func() time.Time
}

// EngineConfig collects engine dependencies.
type EngineConfig struct {
	Grants      GrantStore
	Delegations DelegationStore
	Cache       CacheStore
	Hot         *HotCache
	Hierarchy   HierarchyView
	Structures  StructureDirectory
	Roles       RoleDirectory
	Audit       AuditSink
	Metrics     MetricsSink
	Logger      *slog.Logger
}

// NewEngine constructs the Engine and its resolver.
func NewEngine(cfg EngineConfig) *Engine {
	return &Engine{
		grants:      cfg.Grants,
		delegations: cfg.Delegations,
		cache:       cfg.Cache,
		hot:         cfg.Hot,
		resolver:    NewResolver(cfg.Grants, cfg.Delegations, cfg.Hierarchy, cfg.Structures, cfg.Roles, cfg.Logger),
		structures:  cfg.Structures,
		roles:       cfg.Roles,
		audit:       cfg.Audit,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
		now:         time.Now,
	}
}

// Resolve returns the effective access decision for userID at node,
// consulting the hot cache, then the persistent cache, then the resolver.
// Concurrent cold resolutions for the same key are collapsed.
func (e *Engine) Resolve(ctx context.Context, userID int64, node NodeRef) (Decision, error) {
	if !node.Kind.Valid() {
		return Decision{Source: SourceNone}, nil
	}
	if hot, err := e.hot.Get(ctx, node, userID); err != nil {
		e.logger.Warn("hot cache get", slog.Any("error", err))
	} else if hot != nil {
		e.observe(hot.Source, "hot")
		return *hot, nil
	}

	if e.cache != nil {
		cached, err := e.cache.Get(ctx, node, userID, e.now())
		if err != nil {
			e.logger.Warn("permission cache get", slog.Any("error", err))
		} else if cached != nil {
			if err := e.hot.Put(ctx, node, userID, cached.Decision); err != nil {
				e.logger.Warn("hot cache put", slog.Any("error", err))
			}
			e.observe(cached.Decision.Source, "store")
			return cached.Decision, nil
		}
	}

	key := fmt.Sprintf("%s|%d", node, userID)
	value, err, _ := e.resolveSF.Do(key, func() (any, error) {
		decision, err := e.resolver.Resolve(ctx, userID, node)
		if err != nil {
			return nil, err
		}
		e.storeDecision(ctx, node, userID, decision)
		return decision, nil
	})
	if err != nil {
		return Decision{Source: SourceNone}, err
	}
	decision := value.(Decision)
	e.observe(decision.Source, "computed")
	return decision, nil
}

func (e *Engine) observe(source Source, layer string) {
	if e.metrics != nil {
		e.metrics.ObserveResolve(source, layer)
	}
}

// storeDecision writes through to both cache layers. A caller abandoning
// the request must not abort the write, so it runs on a detached context.
func (e *Engine) storeDecision(ctx context.Context, node NodeRef, userID int64, decision Decision) {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if e.cache != nil {
		if err := e.cache.Upsert(writeCtx, node, userID, decision, e.now()); err != nil {
			e.logger.Warn("permission cache upsert", slog.Any("error", err))
		}
	}
	if err := e.hot.Put(writeCtx, node, userID, decision); err != nil {
		e.logger.Warn("hot cache put", slog.Any("error", err))
	}
}

// HasPermission reports whether userID holds every bit of required at node.
func (e *Engine) HasPermission(ctx context.Context, userID int64, node NodeRef, required AccessLevel) (bool, error) {
	if required == None {
		return true, nil
	}
	decision, err := e.Resolve(ctx, userID, node)
	if err != nil {
		return false, err
	}
	return decision.Level.Has(required), nil
}

// GrantRequest carries the user-authored part of a new grant.
type GrantRequest struct {
	Node                   NodeRef
	Principal              PrincipalRef
	Level                  AccessLevel
	IncludeChildStructures bool
	ExpiresAt              *time.Time
	Reason                 string
}

// Grant creates a direct grant, invalidates affected cache rows around the
// write, and records an audit entry.
func (e *Engine) Grant(ctx context.Context, actor shared.Actor, req GrantRequest) (int64, error) {
	if !req.Node.Kind.Valid() {
		return 0, fmt.Errorf("%w: unknown node kind %q", ErrInvalidScope, req.Node.Kind)
	}
	if !req.Principal.Kind.Valid() {
		return 0, fmt.Errorf("%w: unknown principal kind %q", ErrInvalidScope, req.Principal.Kind)
	}
	if req.Level == None {
		return 0, fmt.Errorf("%w: grant level must not be empty", ErrInvalidScope)
	}
	if req.ExpiresAt != nil && !req.ExpiresAt.After(e.now()) {
		return 0, fmt.Errorf("%w: expiration must be in the future", ErrInvalidScope)
	}

	// Invalidate either side of the write to narrow the stale-read window.
	e.InvalidateNode(ctx, req.Node)
	id, err := e.grants.Create(ctx, Grant{
		Node:                   req.Node,
		Principal:              req.Principal,
		Level:                  req.Level,
		IncludeChildStructures: req.IncludeChildStructures,
		ExpiresAt:              req.ExpiresAt,
		Reason:                 req.Reason,
		GrantedBy:              actor.UserID,
	})
	if err != nil {
		return 0, err
	}
	e.InvalidateNode(ctx, req.Node)
	e.recordAudit(ctx, AuditEntry{
		Action:      AuditActionGrant,
		Node:        req.Node,
		Principal:   &req.Principal,
		NewLevel:    &req.Level,
		PerformedBy: actor.UserID,
		RequestID:   actor.RequestID,
		IP:          actor.IP,
	})
	return id, nil
}

// UpdateGrant changes level, expiration or reason of an existing grant.
func (e *Engine) UpdateGrant(ctx context.Context, actor shared.Actor, id int64, level AccessLevel, expiresAt *time.Time, reason string) error {
	if level == None {
		return fmt.Errorf("%w: grant level must not be empty", ErrInvalidScope)
	}
	existing, err := e.grants.Get(ctx, id)
	if err != nil {
		return err
	}
	e.InvalidateNode(ctx, existing.Node)
	if err := e.grants.Update(ctx, id, level, expiresAt, reason); err != nil {
		return err
	}
	e.InvalidateNode(ctx, existing.Node)
	oldLevel := existing.Level
	e.recordAudit(ctx, AuditEntry{
		Action:      AuditActionModify,
		Node:        existing.Node,
		Principal:   &existing.Principal,
		OldLevel:    &oldLevel,
		NewLevel:    &level,
		PerformedBy: actor.UserID,
		RequestID:   actor.RequestID,
		IP:          actor.IP,
	})
	return nil
}

// Revoke deletes a grant by id.
func (e *Engine) Revoke(ctx context.Context, actor shared.Actor, id int64) error {
	existing, err := e.grants.Get(ctx, id)
	if err != nil {
		return err
	}
	e.InvalidateNode(ctx, existing.Node)
	if err := e.grants.Delete(ctx, id); err != nil {
		return err
	}
	e.InvalidateNode(ctx, existing.Node)
	oldLevel := existing.Level
	e.recordAudit(ctx, AuditEntry{
		Action:      AuditActionRevoke,
		Node:        existing.Node,
		Principal:   &existing.Principal,
		OldLevel:    &oldLevel,
		PerformedBy: actor.UserID,
		RequestID:   actor.RequestID,
		IP:          actor.IP,
	})
	return nil
}

// ListGrants returns current (non-expired) grants on a node.
func (e *Engine) ListGrants(ctx context.Context, node NodeRef) ([]Grant, error) {
	return e.grants.GrantsOnNode(ctx, node)
}

// GetGrant fetches one grant by id.
func (e *Engine) GetGrant(ctx context.Context, id int64) (*Grant, error) {
	return e.grants.Get(ctx, id)
}

// DelegationRequest carries the user-authored part of a new delegation.
type DelegationRequest struct {
	DelegateID int64
	Scope      *NodeRef
	Level      AccessLevel
	StartsAt   time.Time
	EndsAt     time.Time
}

// Delegate creates a time-bounded hand-off from the actor to a delegate.
func (e *Engine) Delegate(ctx context.Context, actor shared.Actor, req DelegationRequest) (int64, error) {
	if req.Level == None {
		return 0, fmt.Errorf("%w: delegated level must not be empty", ErrInvalidScope)
	}
	if req.EndsAt.IsZero() {
		return 0, fmt.Errorf("%w: delegation end date is mandatory", ErrInvalidScope)
	}
	if !req.StartsAt.IsZero() && !req.EndsAt.After(req.StartsAt) {
		return 0, fmt.Errorf("%w: delegation must end after it starts", ErrInvalidScope)
	}
	id, err := e.delegations.Create(ctx, Delegation{
		DelegatorID: actor.UserID,
		DelegateID:  req.DelegateID,
		Scope:       req.Scope,
		Level:       req.Level,
		StartsAt:    req.StartsAt,
		EndsAt:      req.EndsAt,
	})
	if err != nil {
		return 0, err
	}
	e.InvalidateUser(ctx, req.DelegateID)
	return id, nil
}

// RevokeDelegation deactivates a delegation.
func (e *Engine) RevokeDelegation(ctx context.Context, actor shared.Actor, id int64) error {
	existing, err := e.delegations.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := e.delegations.Revoke(ctx, id, actor.UserID, e.now()); err != nil {
		return err
	}
	e.InvalidateUser(ctx, existing.DelegateID)
	return nil
}

// DelegationsByDelegator lists delegations issued by a user.
func (e *Engine) DelegationsByDelegator(ctx context.Context, delegatorID int64) ([]Delegation, error) {
	return e.delegations.ByDelegator(ctx, delegatorID)
}

// DelegationsByDelegate lists delegations received by a user.
func (e *Engine) DelegationsByDelegate(ctx context.Context, delegateID int64) ([]Delegation, error) {
	return e.delegations.ByDelegate(ctx, delegateID)
}

// RecordInheritanceChange audits a break/restore performed by the document
// service and drops affected cache rows. The caller also invalidates
// descendants it knows about.
func (e *Engine) RecordInheritanceChange(ctx context.Context, actor shared.Actor, node NodeRef, breaks bool) error {
	e.InvalidateNode(ctx, node)
	action := AuditActionRestoreInheritance
	if breaks {
		action = AuditActionBreakInheritance
	}
	e.recordAudit(ctx, AuditEntry{
		Action:      action,
		Node:        node,
		PerformedBy: actor.UserID,
		RequestID:   actor.RequestID,
		IP:          actor.IP,
	})
	return nil
}

// InvalidateNode drops cache rows for one exact node.
func (e *Engine) InvalidateNode(ctx context.Context, node NodeRef) {
	if e.cache != nil {
		if _, err := e.cache.InvalidateByNode(ctx, node); err != nil {
			e.logger.Warn("invalidate by node", slog.String("node", node.String()), slog.Any("error", err))
		}
	}
	if err := e.hot.Bump(ctx); err != nil {
		e.logger.Warn("hot cache bump", slog.Any("error", err))
	}
}

// InvalidateUser drops cache rows for one user across all nodes.
func (e *Engine) InvalidateUser(ctx context.Context, userID int64) {
	if e.cache != nil {
		if _, err := e.cache.InvalidateByUser(ctx, userID); err != nil {
			e.logger.Warn("invalidate by user", slog.Int64("user", userID), slog.Any("error", err))
		}
	}
	if err := e.hot.Bump(ctx); err != nil {
		e.logger.Warn("hot cache bump", slog.Any("error", err))
	}
}

// InvalidatePrincipal drops cache rows for everyone currently holding the
// principal. Per-member failures are logged and skipped; a missed row heals
// at its natural expiration.
func (e *Engine) InvalidatePrincipal(ctx context.Context, principal PrincipalRef) {
	switch principal.Kind {
	case PrincipalUser:
		e.InvalidateUser(ctx, principal.ID)
		return
	case PrincipalRole:
		members, err := e.roles.MemberIDs(ctx, principal.ID)
		if err != nil {
			e.logger.Error("role members for invalidation", slog.Int64("role", principal.ID), slog.Any("error", err))
			return
		}
		e.invalidateMembers(ctx, members)
	case PrincipalStructure:
		e.resolver.ForgetStructurePaths()
		members, err := e.structures.MemberIDs(ctx, principal.ID)
		if err != nil {
			e.logger.Error("structure members for invalidation", slog.Int64("structure", principal.ID), slog.Any("error", err))
			return
		}
		e.invalidateMembers(ctx, members)
	default:
		e.logger.Warn("invalidate unknown principal kind", slog.String("kind", string(principal.Kind)))
	}
}

func (e *Engine) invalidateMembers(ctx context.Context, userIDs []int64) {
	if e.cache != nil {
		for _, userID := range userIDs {
			if _, err := e.cache.InvalidateByUser(ctx, userID); err != nil {
				e.logger.Warn("invalidate member", slog.Int64("user", userID), slog.Any("error", err))
			}
		}
	}
	if err := e.hot.Bump(ctx); err != nil {
		e.logger.Warn("hot cache bump", slog.Any("error", err))
	}
}

// SweepExpiredGrants physically removes grants past their expiration.
func (e *Engine) SweepExpiredGrants(ctx context.Context) (int64, error) {
	return e.grants.SweepExpired(ctx, e.now())
}

// SweepStaleDelegations deactivates delegations past their end date.
func (e *Engine) SweepStaleDelegations(ctx context.Context) (int64, error) {
	return e.delegations.ExpireStale(ctx, e.now())
}

// CleanupCache removes expired effective-permission rows.
func (e *Engine) CleanupCache(ctx context.Context) (int64, error) {
	if e.cache == nil {
		return 0, nil
	}
	return e.cache.CleanupExpired(ctx, e.now())
}

func (e *Engine) recordAudit(ctx context.Context, entry AuditEntry) {
	if e.audit == nil {
		return
	}
	if err := e.audit.Record(ctx, entry); err != nil {
		e.logger.Error("record audit entry",
			slog.String("action", entry.Action),
			slog.String("node", entry.Node.String()),
			slog.Any("error", err))
	}
}
