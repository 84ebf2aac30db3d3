// Package authority computes who may approve a submission. Eligibility is a
// function of the actor's job level against the level-4 management tier:
// juniors escalate upward, section chiefs pick laterally and downward, and
// senior management delegates downward only. Designated safety managers sit
// outside the hierarchy and may approve anything.
package authority

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/TTS1976/alcohol-check-engine/internal/identity"
	"github.com/TTS1976/alcohol-check-engine/internal/orgdir"
	"github.com/TTS1976/alcohol-check-engine/model"
)

// managementLevel is the job level of the "section chief" tier. It is the
// pivot of every eligibility rule: below it approvals escalate, at it they
// stay lateral, above it they delegate.
const managementLevel = 4

// Resolver derives eligible-confirmer sets and approval decisions.
type Resolver struct {
	dir    orgdir.Provider
	cache  ConfirmerCache
	ttl    time.Duration
	logger *zap.Logger

	onCacheHit  func()
	onCacheMiss func()
}

// SetCacheObserver installs callbacks invoked on confirmer-cache hits and
// misses. Either may be nil.
func (r *Resolver) SetCacheObserver(onHit, onMiss func()) {
	r.onCacheHit = onHit
	r.onCacheMiss = onMiss
}

// NewResolver creates a Resolver. cache may be nil to disable caching.
func NewResolver(dir orgdir.Provider, cache ConfirmerCache, ttl time.Duration, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{dir: dir, cache: cache, ttl: ttl, logger: logger}
}

// EligibleConfirmers returns the set of people the actor may assign as the
// confirmer of a new submission. Safety managers are always included. The
// set is deduplicated by directory id; hierarchy entries win over the
// safety-manager listing of the same person.
func (r *Resolver) EligibleConfirmers(ctx context.Context, actor *model.Actor) ([]model.Confirmer, error) {
	key := cacheKey(actor)
	if r.cache != nil && key != "" {
		cached, ok, err := r.cache.Get(ctx, key)
		if err != nil {
			// A broken cache degrades to recomputation, never to an error.
			r.logger.Warn("confirmer cache read failed", zap.String("key", key), zap.Error(err))
		} else if ok {
			if r.onCacheHit != nil {
				r.onCacheHit()
			}
			return cached, nil
		}
		if r.onCacheMiss != nil {
			r.onCacheMiss()
		}
	}

	safety, err := r.dir.SafetyManagers(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch safety managers: %w", err)
	}

	seen := make(map[string]bool)
	var confirmers []model.Confirmer
	for _, node := range HierarchyEligible(actor) {
		if node.ID == "" || seen[node.ID] {
			continue
		}
		seen[node.ID] = true
		confirmers = append(confirmers, model.Confirmer{ID: node.ID, Name: node.DisplayName, Email: node.Mail})
	}
	for _, node := range safety {
		if node.ID == "" || seen[node.ID] {
			continue
		}
		seen[node.ID] = true
		confirmers = append(confirmers, model.Confirmer{ID: node.ID, Name: node.DisplayName, Email: node.Mail, Role: model.RoleSafetyManager})
	}

	if r.cache != nil && key != "" {
		if err := r.cache.Set(ctx, key, confirmers, r.ttl); err != nil {
			r.logger.Warn("confirmer cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return confirmers, nil
}

// HierarchyEligible computes the hierarchy-derived part of the eligible set
// from the actor's pre-resolved org relations:
//
//   - level < 4: the actor's manager plus direct reports at level 4 or above.
//   - level == 4: all direct reports plus department peers at level 4 or below.
//   - level > 4: direct reports at level 4 or below.
func HierarchyEligible(actor *model.Actor) []model.OrgNode {
	var nodes []model.OrgNode
	switch {
	case actor.JobLevel < managementLevel:
		if actor.Manager != nil {
			nodes = append(nodes, *actor.Manager)
		}
		for _, report := range actor.DirectReports {
			if report.JobLevel >= managementLevel {
				nodes = append(nodes, report)
			}
		}

	case actor.JobLevel == managementLevel:
		nodes = append(nodes, actor.DirectReports...)
		for _, peer := range actor.DepartmentPeers {
			if peer.JobLevel <= managementLevel {
				nodes = append(nodes, peer)
			}
		}

	default:
		for _, report := range actor.DirectReports {
			if report.JobLevel <= managementLevel {
				nodes = append(nodes, report)
			}
		}
	}
	return nodes
}

// CanApprove reports whether the actor may approve the given submission: the
// actor is the submission's recorded confirmer, or holds the safety-manager
// role. Denial is an answer, not an error.
func CanApprove(actor *model.Actor, sub model.Submission) bool {
	if actor == nil {
		return false
	}
	if actor.IsSafetyManager() {
		return true
	}
	return identity.MatchesConfirmer(actor, sub.Confirmer())
}

// cacheKey picks the most stable identifier the actor carries. An actor with
// no identifier at all is never cached.
func cacheKey(actor *model.Actor) string {
	switch {
	case actor.ObjectID != "":
		return FormatCacheKey(actor.ObjectID)
	case actor.Email != "":
		return FormatCacheKey(actor.Email)
	case actor.Nickname != "":
		return FormatCacheKey(actor.Nickname)
	}
	return ""
}
