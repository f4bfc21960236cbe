package permission

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// maxChainDepth bounds the upward hierarchy walk. Parent links deeper than
// this (or cyclic through corrupt data) are abandoned, which fails closed.
const maxChainDepth = 32

// structurePathMemoSize bounds the in-process memo of structure paths, and
// structurePathMemoTTL bounds how long a memoized path can outlive the row
// it was read from between explicit invalidations.
const (
	structurePathMemoSize = 1024
	structurePathMemoTTL  = time.Minute
)

// Resolver computes the effective access level of a user at a node by
// merging direct, role, structure and delegated grants across the node's
// inheritance chain.
type Resolver struct {
	grants      GrantStore
	delegations DelegationStore
	hierarchy   HierarchyView
	structures  StructureDirectory
	roles       RoleDirectory
	logger      *slog.Logger
	pathMemo    *expirable.LRU[int64, string]
	now         func() time.Time
}

// NewResolver constructs a Resolver.
func NewResolver(
	grants GrantStore,
	delegations DelegationStore,
	hierarchy HierarchyView,
	structures StructureDirectory,
	roles RoleDirectory,
	logger *slog.Logger,
) *Resolver {
	memo := expirable.NewLRU[int64, string](structurePathMemoSize, nil, structurePathMemoTTL)
	return &Resolver{
		grants:      grants,
		delegations: delegations,
		hierarchy:   hierarchy,
		structures:  structures,
		roles:       roles,
		logger:      logger,
		pathMemo:    memo,
		now:         time.Now,
	}
}

// ForgetStructurePaths drops every memoized structure path, called when a
// structure is re-parented or deactivated. Re-parenting rewrites the
// materialized path of all descendants, not just the moved structure, so
// the memo is cleared wholesale.
func (r *Resolver) ForgetStructurePaths() {
	if r.pathMemo != nil {
		r.pathMemo.Purge()
	}
}

// Resolve computes the combined access level for userID at node, including
// the delegation overlay. Missing nodes and empty principal sets resolve to
// None rather than failing.
func (r *Resolver) Resolve(ctx context.Context, userID int64, node NodeRef) (Decision, error) {
	decision, err := r.resolveGrants(ctx, userID, node)
	if err != nil {
		return Decision{Source: SourceNone}, err
	}
	return r.overlayDelegations(ctx, userID, node, decision)
}

// HasPermission reports whether userID holds every bit of required at node.
func (r *Resolver) HasPermission(ctx context.Context, userID int64, node NodeRef, required AccessLevel) (bool, error) {
	if required == None {
		return true, nil
	}
	decision, err := r.Resolve(ctx, userID, node)
	if err != nil {
		return false, err
	}
	return decision.Level.Has(required), nil
}

// resolveGrants runs the chain walk without the delegation overlay. It is
// also the level a delegator is measured against, so delegation chains
// cannot amplify access.
func (r *Resolver) resolveGrants(ctx context.Context, userID int64, node NodeRef) (Decision, error) {
	now := r.now()
	decision := Decision{Level: None, Source: SourceNone}

	pset, err := r.principalSet(ctx, userID)
	if err != nil {
		return decision, fmt.Errorf("resolve principal set: %w", err)
	}

	chain, trace, err := r.inheritanceChain(ctx, node)
	if err != nil {
		return decision, err
	}
	decision.Trace = trace
	if len(chain) == 0 {
		decision.Trace = append(decision.Trace, fmt.Sprintf("%s: node not found", node))
		return decision, nil
	}

	// Closest chain node with at least one applicable grant wins; grants on
	// farther ancestors are not unioned in.
	for _, chainNode := range chain {
		grants, err := r.grants.GrantsOnNode(ctx, chainNode)
		if err != nil {
			return Decision{Source: SourceNone, Trace: decision.Trace}, fmt.Errorf("grants on %s: %w", chainNode, err)
		}
		contributing := r.applicableGrants(ctx, grants, pset, now)
		if len(contributing) == 0 {
			decision.Trace = append(decision.Trace, fmt.Sprintf("%s: no applicable grants", chainNode))
			continue
		}
		for _, g := range contributing {
			decision.Level = decision.Level.Union(g.Level)
			decision.ExpiresAt = earliest(decision.ExpiresAt, g.ExpiresAt)
			decision.Trace = append(decision.Trace,
				fmt.Sprintf("%s: grant %d (%s) %s", chainNode, g.ID, g.Principal, g.Level))
		}
		winner := dominantGrant(contributing)
		decision.SourceGrantID = winner.ID
		decision.SourceNode = chainNode
		if chainNode == node {
			decision.Source = sourceOfPrincipal(winner.Principal.Kind)
		} else {
			decision.Source = SourceInherited
		}
		return decision, nil
	}

	return decision, nil
}

// overlayDelegations ORs in active delegations covering the node, bounded
// by the delegator's own grant-resolved level at that node.
func (r *Resolver) overlayDelegations(ctx context.Context, userID int64, node NodeRef, decision Decision) (Decision, error) {
	now := r.now()
	delegations, err := r.delegations.ActiveByDelegate(ctx, userID, now)
	if err != nil {
		return decision, fmt.Errorf("active delegations: %w", err)
	}
	for _, d := range delegations {
		if !d.AppliesTo(node) || !d.ActiveAt(now) {
			continue
		}
		delegatorDecision, err := r.resolveGrants(ctx, d.DelegatorID, node)
		if err != nil {
			// A broken delegator lookup only voids this delegation.
			r.logger.Warn("resolve delegator",
				slog.Int64("delegation", d.ID),
				slog.Int64("delegator", d.DelegatorID),
				slog.Any("error", err))
			continue
		}
		if !delegatorDecision.Level.Contains(d.Level) {
			decision.Trace = append(decision.Trace,
				fmt.Sprintf("delegation %d from user %d: delegator holds %s, skipping",
					d.ID, d.DelegatorID, delegatorDecision.Level))
			continue
		}
		if decision.Level.IsNone() {
			decision.Source = SourceDelegated
			decision.SourceNode = node
		}
		decision.Level = decision.Level.Union(d.Level)
		endsAt := d.EndsAt
		decision.ExpiresAt = earliest(decision.ExpiresAt, &endsAt)
		decision.Trace = append(decision.Trace,
			fmt.Sprintf("delegation %d from user %d: +%s", d.ID, d.DelegatorID, d.Level))
	}
	return decision, nil
}

// inheritanceChain returns the node itself followed by ancestors, most
// specific first. The walk ascends only while the current node does not
// break inheritance: a node's flag blocks grants flowing down from its own
// ancestors, never grants placed on the node itself.
func (r *Resolver) inheritanceChain(ctx context.Context, node NodeRef) ([]NodeRef, []string, error) {
	var chain []NodeRef
	var trace []string
	current := node
	for depth := 0; depth < maxChainDepth; depth++ {
		info, ok, err := r.hierarchy.NodeInfo(ctx, current)
		if err != nil {
			return nil, trace, fmt.Errorf("node info %s: %w", current, err)
		}
		if !ok {
			if depth > 0 {
				// Dangling parent link: stop at what we have.
				trace = append(trace, fmt.Sprintf("%s: ancestor missing, chain truncated", current))
				return chain, trace, nil
			}
			return nil, trace, nil
		}
		chain = append(chain, current)
		if info.BreaksInheritance {
			if depth > 0 || info.Parent != nil {
				trace = append(trace, fmt.Sprintf("%s: inheritance break, stopping walk", current))
			}
			return chain, trace, nil
		}
		if info.Parent == nil {
			return chain, trace, nil
		}
		current = *info.Parent
	}
	trace = append(trace, fmt.Sprintf("%s: chain deeper than %d, truncated", node, maxChainDepth))
	return chain, trace, nil
}

type principalSet struct {
	userID       int64
	roleIDs      map[int64]struct{}
	structureIDs map[int64]struct{}
	memberships  []StructureMembership
}

func (r *Resolver) principalSet(ctx context.Context, userID int64) (principalSet, error) {
	pset := principalSet{
		userID:       userID,
		roleIDs:      map[int64]struct{}{},
		structureIDs: map[int64]struct{}{},
	}
	roleIDs, err := r.roles.RolesOf(ctx, userID)
	if err != nil {
		return pset, fmt.Errorf("roles of %d: %w", userID, err)
	}
	for _, id := range roleIDs {
		pset.roleIDs[id] = struct{}{}
	}
	memberships, err := r.structures.ActiveMemberships(ctx, userID)
	if err != nil {
		return pset, fmt.Errorf("memberships of %d: %w", userID, err)
	}
	pset.memberships = memberships
	for _, m := range memberships {
		pset.structureIDs[m.StructureID] = struct{}{}
	}
	return pset, nil
}

// applicableGrants filters node grants down to the ones held by the user's
// principal set. Malformed grants (e.g. referencing a vanished structure)
// are skipped, never fatal.
func (r *Resolver) applicableGrants(ctx context.Context, grants []Grant, pset principalSet, now time.Time) []Grant {
	var contributing []Grant
	for _, g := range grants {
		if g.Expired(now) {
			continue
		}
		switch g.Principal.Kind {
		case PrincipalUser:
			if g.Principal.ID == pset.userID {
				contributing = append(contributing, g)
			}
		case PrincipalRole:
			if _, ok := pset.roleIDs[g.Principal.ID]; ok {
				contributing = append(contributing, g)
			}
		case PrincipalStructure:
			if _, ok := pset.structureIDs[g.Principal.ID]; ok {
				contributing = append(contributing, g)
				continue
			}
			if g.IncludeChildStructures && r.memberOfDescendant(ctx, g.Principal.ID, pset.memberships) {
				contributing = append(contributing, g)
			}
		default:
			r.logger.Warn("grant with unknown principal kind",
				slog.Int64("grant", g.ID), slog.String("kind", string(g.Principal.Kind)))
		}
	}
	return contributing
}

// memberOfDescendant reports whether any of the user's structures sits
// strictly below the granted structure in the organizational tree.
func (r *Resolver) memberOfDescendant(ctx context.Context, structureID int64, memberships []StructureMembership) bool {
	grantPath, ok := r.structurePath(ctx, structureID)
	if !ok {
		return false
	}
	for _, m := range memberships {
		if m.Path != grantPath && strings.HasPrefix(m.Path, grantPath) {
			return true
		}
	}
	return false
}

func (r *Resolver) structurePath(ctx context.Context, structureID int64) (string, bool) {
	if path, ok := r.pathMemo.Get(structureID); ok {
		return path, true
	}
	path, ok, err := r.structures.StructurePath(ctx, structureID)
	if err != nil {
		r.logger.Warn("structure path lookup", slog.Int64("structure", structureID), slog.Any("error", err))
		return "", false
	}
	if !ok {
		return "", false
	}
	r.pathMemo.Add(structureID, path)
	return path, true
}

// dominantGrant picks the highest-precedence contributor at the winning
// chain node: direct user grants beat role grants beat structure grants.
func dominantGrant(grants []Grant) Grant {
	best := grants[0]
	for _, g := range grants[1:] {
		if principalRank(g.Principal.Kind) < principalRank(best.Principal.Kind) {
			best = g
		}
	}
	return best
}

func principalRank(kind PrincipalKind) int {
	switch kind {
	case PrincipalUser:
		return 0
	case PrincipalRole:
		return 1
	case PrincipalStructure:
		return 2
	}
	return 3
}

func sourceOfPrincipal(kind PrincipalKind) Source {
	switch kind {
	case PrincipalUser:
		return SourceDirect
	case PrincipalRole:
		return SourceRole
	case PrincipalStructure:
		return SourceStructure
	}
	return SourceNone
}

func earliest(a, b *time.Time) *time.Time {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if b.Before(*a) {
		return b
	}
	return a
}
