// Package workflow derives the next required checkpoint for a driver from
// their submission history. The state machine is table-driven over an
// explicit RegistrationType enum; the single latest submission (by
// submittedAt) determines the state, and rejection reverts to the state
// matching the rejected checkpoint so the driver can resubmit without
// losing trip context.
package workflow

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/TTS1976/alcohol-check-engine/internal/records"
	"github.com/TTS1976/alcohol-check-engine/internal/trip"
	"github.com/TTS1976/alcohol-check-engine/model"
)

// rejectedReversion maps a rejected checkpoint back to the state that asks
// for that same checkpoint again.
var rejectedReversion = map[model.RegistrationType]model.WorkflowState{
	model.RegistrationTripStart:    model.StateInitial,
	model.RegistrationIntermediate: model.StateNeedsIntermediate,
	model.RegistrationTripEnd:      model.StateNeedsEnd,
}

// Resolver derives workflow state. It is stateless; every resolution is a
// pure function of a fresh fetch.
type Resolver struct {
	agg    *records.Aggregator
	trips  *trip.Calculator
	logger *zap.Logger
}

// NewResolver creates a workflow Resolver.
func NewResolver(agg *records.Aggregator, trips *trip.Calculator, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{agg: agg, trips: trips, logger: logger}
}

// Resolve determines the driver's next required action. Initial is both the
// start state and the loop-back state after a trip closes; there is no
// terminal state.
func (r *Resolver) Resolve(ctx context.Context, driverKey string) (model.WorkflowResolution, error) {
	subs, err := r.agg.FetchAll(ctx, records.Filter{
		records.Eq(records.FieldDriverKey, driverKey),
	})
	if err != nil {
		return model.WorkflowResolution{}, fmt.Errorf("fetch submissions for %q: %w", driverKey, err)
	}

	latest, ok := records.Latest(subs)
	if !ok {
		return model.WorkflowResolution{State: model.StateInitial}, nil
	}

	if latest.IsRejected() {
		return r.resolveRejected(ctx, driverKey, latest)
	}

	switch latest.RegistrationType {
	case model.RegistrationTripEnd:
		// Trip closed; the next trip starts from scratch.
		return model.WorkflowResolution{State: model.StateInitial}, nil

	case model.RegistrationIntermediate:
		progress, _, err := r.trips.ComputeProgress(ctx, driverKey)
		if err != nil {
			return model.WorkflowResolution{}, err
		}
		if progress == nil {
			// An intermediate roll-call with no surviving trip start means
			// the chain was invalidated underneath it.
			r.logger.Warn("intermediate roll-call without an open trip start",
				zap.String("driver_key", driverKey),
				zap.String("submission_id", latest.ID),
			)
			return model.WorkflowResolution{State: model.StateInitial}, nil
		}
		return model.WorkflowResolution{State: progressState(progress), Progress: progress}, nil

	case model.RegistrationTripStart:
		progress, err := r.trips.ProgressFor(ctx, latest)
		if err != nil {
			return model.WorkflowResolution{}, err
		}
		if progress.IntermediatesRequired == 0 {
			// Short trips go straight from start to end.
			return model.WorkflowResolution{State: model.StateNeedsEnd, Progress: progress}, nil
		}
		return model.WorkflowResolution{State: progressState(progress), Progress: progress}, nil
	}

	return model.WorkflowResolution{}, model.NewBadRequestError(
		fmt.Sprintf("submission %q has unknown registration type %q", latest.ID, latest.RegistrationType),
	)
}

// resolveRejected reverts to the state matching the rejected checkpoint
// type. Trip context is retained for the non-initial states.
func (r *Resolver) resolveRejected(ctx context.Context, driverKey string, latest model.Submission) (model.WorkflowResolution, error) {
	state, ok := rejectedReversion[latest.RegistrationType]
	if !ok {
		return model.WorkflowResolution{}, model.NewBadRequestError(
			fmt.Sprintf("submission %q has unknown registration type %q", latest.ID, latest.RegistrationType),
		)
	}
	if state == model.StateInitial {
		return model.WorkflowResolution{State: state}, nil
	}

	progress, _, err := r.trips.ComputeProgress(ctx, driverKey)
	if err != nil {
		return model.WorkflowResolution{}, err
	}
	if progress == nil {
		// The rejected checkpoint's trip start is gone as well; start over.
		return model.WorkflowResolution{State: model.StateInitial}, nil
	}
	return model.WorkflowResolution{State: state, Progress: progress}, nil
}

// progressState maps trip progress onto the three mid-trip states.
func progressState(p *model.TripProgress) model.WorkflowState {
	switch {
	case p.IsComplete:
		return model.StateNeedsEnd
	case p.CanDoIntermediateNow:
		return model.StateNeedsIntermediate
	default:
		return model.StateWaitingForNextDay
	}
}
