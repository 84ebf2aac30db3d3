// Package engine is the facade over the workflow, trip, identity, and
// authority components. Transport handlers call only this package.
package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/TTS1976/alcohol-check-engine/internal/authority"
	"github.com/TTS1976/alcohol-check-engine/internal/identity"
	"github.com/TTS1976/alcohol-check-engine/internal/orgdir"
	"github.com/TTS1976/alcohol-check-engine/internal/records"
	"github.com/TTS1976/alcohol-check-engine/internal/workflow"
	"github.com/TTS1976/alcohol-check-engine/model"
)

// Engine exposes the four engine operations to the surrounding application.
type Engine struct {
	agg       *records.Aggregator
	workflows *workflow.Resolver
	auth      *authority.Resolver
	dir       orgdir.Provider
	logger    *zap.Logger
}

// New creates an Engine.
func New(agg *records.Aggregator, workflows *workflow.Resolver, auth *authority.Resolver, dir orgdir.Provider, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		agg:       agg,
		workflows: workflows,
		auth:      auth,
		dir:       dir,
		logger:    logger,
	}
}

// ResolveWorkflowState determines the driver's next required checkpoint.
func (e *Engine) ResolveWorkflowState(ctx context.Context, driverKey string) (model.WorkflowResolution, error) {
	return e.workflows.Resolve(ctx, driverKey)
}

// ResolveDriverKey maps a free-text driver name onto the canonical key
// submissions are recorded under. An unregistered driver yields a NOT_FOUND
// error.
func (e *Engine) ResolveDriverKey(ctx context.Context, driverName string) (string, error) {
	roster, err := e.dir.Roster(ctx)
	if err != nil {
		return "", fmt.Errorf("fetch roster: %w", err)
	}
	node, ok := identity.ResolveDriver(driverName, roster)
	if !ok {
		return "", model.NewNotFoundError(fmt.Sprintf("driver %q is not registered", driverName))
	}
	return identity.DriverKey(node), nil
}

// EligibleConfirmers returns the set of people the actor may assign as
// confirmer of a new submission.
func (e *Engine) EligibleConfirmers(ctx context.Context, actor *model.Actor) ([]model.Confirmer, error) {
	return e.auth.EligibleConfirmers(ctx, actor)
}

// CanApprove reports whether the actor may approve the given submission. A
// missing submission is a NOT_FOUND error; a denial is a false value, never
// an error.
func (e *Engine) CanApprove(ctx context.Context, actor *model.Actor, submissionID string) (bool, error) {
	subs, err := e.agg.FetchAll(ctx, records.Filter{
		records.Eq(records.FieldID, submissionID),
	})
	if err != nil {
		return false, fmt.Errorf("fetch submission %q: %w", submissionID, err)
	}
	if len(subs) == 0 {
		return false, model.NewNotFoundError(fmt.Sprintf("submission %q not found", submissionID))
	}
	return authority.CanApprove(actor, subs[0]), nil
}

// FetchPendingForActor returns the pending submissions awaiting the actor,
// newest first. A safety manager sees every pending submission; everyone
// else sees the submissions whose recorded confirmer fields reconcile to
// them. The store only filters on single recorded fields, so the actor's
// identifiers are queried separately, merged, and re-checked against the
// full reconciliation rule.
func (e *Engine) FetchPendingForActor(ctx context.Context, actor *model.Actor) ([]model.Submission, error) {
	pending := records.Eq(records.FieldApprovalStatus, string(model.ApprovalPending))

	if actor.IsSafetyManager() {
		subs, err := e.agg.FetchAll(ctx, records.Filter{pending})
		if err != nil {
			return nil, fmt.Errorf("fetch pending submissions: %w", err)
		}
		records.SortBySubmittedAtDesc(subs)
		return subs, nil
	}

	var filters []records.Filter
	for _, id := range []string{actor.Nickname, actor.ObjectID, actor.Email} {
		if id != "" {
			filters = append(filters, records.Filter{pending, records.Eq(records.FieldConfirmerID, id)})
		}
	}
	if actor.Email != "" {
		filters = append(filters, records.Filter{pending, records.Eq(records.FieldConfirmerEmail, actor.Email)})
	}
	for _, name := range []string{actor.DisplayName, actor.Nickname} {
		if name != "" {
			filters = append(filters, records.Filter{pending, records.Eq(records.FieldConfirmedByName, name)})
		}
	}
	if len(filters) == 0 {
		return nil, nil
	}

	merged, err := e.agg.FetchMerged(ctx, filters[0], filters[1:]...)
	if err != nil {
		return nil, fmt.Errorf("fetch pending submissions for actor: %w", err)
	}

	var mine []model.Submission
	for _, sub := range merged {
		if identity.MatchesConfirmer(actor, sub.Confirmer()) {
			mine = append(mine, sub)
		}
	}
	records.SortBySubmittedAtDesc(mine)
	return mine, nil
}
