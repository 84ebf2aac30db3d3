package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/TTS1976/alcohol-check-engine/internal/authority"
	"github.com/TTS1976/alcohol-check-engine/internal/orgdir"
	"github.com/TTS1976/alcohol-check-engine/internal/records"
	"github.com/TTS1976/alcohol-check-engine/internal/trip"
	"github.com/TTS1976/alcohol-check-engine/internal/workflow"
	"github.com/TTS1976/alcohol-check-engine/model"
)

var jst = time.FixedZone("JST", 9*60*60)

func day(d int, hour int) time.Time {
	return time.Date(2024, 6, 10+d, hour, 0, 0, 0, jst)
}

type engineFixture struct {
	store  *records.MemoryStore
	calc   *trip.Calculator
	engine *Engine
}

func newFixture(t *testing.T, now time.Time) *engineFixture {
	t.Helper()
	store := records.NewMemoryStore()
	agg := records.NewAggregator(store, records.Options{}, nil)
	calc := trip.NewCalculator(agg, jst, nil)
	calc.SetNow(func() time.Time { return now })

	dir := orgdir.NewMemory(orgdir.Snapshot{
		SafetyManagers: []string{"u9"},
		People: []orgdir.Person{
			{OrgNode: model.OrgNode{ID: "u1", DisplayName: "Taro Yamada", Mail: "Taro.Yamada@example.co.jp", JobLevel: 2, Department: "Sales"}},
			{OrgNode: model.OrgNode{ID: "u9", DisplayName: "Shiro Mori", Mail: "shiro.mori@example.co.jp", JobLevel: 4, Department: "Safety"}},
		},
	})

	return &engineFixture{
		store: store,
		calc:  calc,
		engine: New(
			agg,
			workflow.NewResolver(agg, calc, nil),
			authority.NewResolver(dir, nil, 0, nil),
			dir,
			nil,
		),
	}
}

func (f *engineFixture) state(t *testing.T, driverKey string) model.WorkflowResolution {
	t.Helper()
	res, err := f.engine.ResolveWorkflowState(context.Background(), driverKey)
	if err != nil {
		t.Fatalf("ResolveWorkflowState() error = %v", err)
	}
	return res
}

// Walks a full 4-day trip from first login to trip close.
func TestEngine_tripLifecycle(t *testing.T) {
	f := newFixture(t, day(0, 8))

	if res := f.state(t, "taro.yamada"); res.State != model.StateInitial {
		t.Fatalf("before any submission: state = %q, want initial", res.State)
	}

	// Trip start for a 4-day trip.
	f.store.Put(model.Submission{
		ID:               "ts-1",
		RegistrationType: model.RegistrationTripStart,
		DriverKey:        "taro.yamada",
		SubmittedAt:      day(0, 8),
		BoardingAt:       day(0, 8),
		AlightingAt:      day(3, 18),
		ApprovalStatus:   model.ApprovalApproved,
	})

	res := f.state(t, "taro.yamada")
	if res.State != model.StateNeedsIntermediate {
		t.Fatalf("after trip start: state = %q, want needs_intermediate", res.State)
	}
	if res.Progress.IntermediatesRequired != 3 || res.Progress.IntermediatesCompleted != 0 {
		t.Fatalf("after trip start: progress = %+v, want 3 required, 0 completed", res.Progress)
	}

	// Days 1 and 2: one roll-call each.
	for i, submitted := range []time.Time{day(1, 9), day(2, 9)} {
		f.store.Put(model.Submission{
			ID:                  fmt.Sprintf("ir-%d", i+1),
			RegistrationType:    model.RegistrationIntermediate,
			DriverKey:           "taro.yamada",
			SubmittedAt:         submitted,
			ApprovalStatus:      model.ApprovalApproved,
			RelatedSubmissionID: "ts-1",
		})
	}

	f.calc.SetNow(func() time.Time { return day(2, 10) })
	res = f.state(t, "taro.yamada")
	if res.State != model.StateWaitingForNextDay {
		t.Fatalf("day 2 after roll-call: state = %q, want waiting_for_next_day", res.State)
	}
	if res.Progress.IntermediatesCompleted != 2 || res.Progress.IntermediatesRemaining != 1 {
		t.Fatalf("day 2 progress = %+v, want 2 completed, 1 remaining", res.Progress)
	}

	// Final day: the catch-up roll-call completes the trip.
	f.calc.SetNow(func() time.Time { return day(3, 9) })
	res = f.state(t, "taro.yamada")
	if res.State != model.StateNeedsIntermediate {
		t.Fatalf("final day before roll-call: state = %q, want needs_intermediate", res.State)
	}

	f.store.Put(model.Submission{
		ID:                  "ir-3",
		RegistrationType:    model.RegistrationIntermediate,
		DriverKey:           "taro.yamada",
		SubmittedAt:         day(3, 9),
		ApprovalStatus:      model.ApprovalApproved,
		RelatedSubmissionID: "ts-1",
	})
	res = f.state(t, "taro.yamada")
	if res.State != model.StateNeedsEnd {
		t.Fatalf("final day after roll-call: state = %q, want needs_end", res.State)
	}

	f.store.Put(model.Submission{
		ID:                  "te-1",
		RegistrationType:    model.RegistrationTripEnd,
		DriverKey:           "taro.yamada",
		SubmittedAt:         day(3, 18),
		ApprovalStatus:      model.ApprovalPending,
		RelatedSubmissionID: "ts-1",
	})
	if res := f.state(t, "taro.yamada"); res.State != model.StateInitial {
		t.Fatalf("after trip end: state = %q, want initial", res.State)
	}
}

func TestEngine_resolveDriverKey(t *testing.T) {
	f := newFixture(t, day(0, 8))
	ctx := context.Background()

	key, err := f.engine.ResolveDriverKey(ctx, "Taro.Yamada")
	if err != nil {
		t.Fatalf("ResolveDriverKey() error = %v", err)
	}
	if key != "taro.yamada" {
		t.Errorf("ResolveDriverKey() = %q, want taro.yamada", key)
	}

	_, err = f.engine.ResolveDriverKey(ctx, "ichiro.suzuki")
	var envelope *model.ErrorEnvelope
	if !errors.As(err, &envelope) || envelope.Code != model.ErrNotFound {
		t.Errorf("ResolveDriverKey(unregistered) error = %v, want NOT_FOUND envelope", err)
	}
}

func TestEngine_canApprove(t *testing.T) {
	f := newFixture(t, day(0, 8))
	ctx := context.Background()
	f.store.Put(model.Submission{
		ID:               "sub-1",
		RegistrationType: model.RegistrationTripStart,
		DriverKey:        "taro.yamada",
		SubmittedAt:      day(0, 8),
		ApprovalStatus:   model.ApprovalPending,
		ConfirmerEmail:   "jiro.tanaka@example.co.jp",
	})

	t.Run("recorded confirmer", func(t *testing.T) {
		actor := &model.Actor{Email: "jiro.tanaka@example.co.jp", JobLevel: 4}
		ok, err := f.engine.CanApprove(ctx, actor, "sub-1")
		if err != nil || !ok {
			t.Errorf("CanApprove() = %v, %v, want true, nil", ok, err)
		}
	})

	t.Run("unrelated actor is a denial not an error", func(t *testing.T) {
		actor := &model.Actor{Email: "hanako.sato@example.co.jp", JobLevel: 6}
		ok, err := f.engine.CanApprove(ctx, actor, "sub-1")
		if err != nil {
			t.Fatalf("CanApprove() error = %v, want nil", err)
		}
		if ok {
			t.Error("CanApprove() = true for an unrelated actor")
		}
	})

	t.Run("safety manager override", func(t *testing.T) {
		actor := &model.Actor{Email: "shiro.mori@example.co.jp", JobLevel: 4, Roles: []string{model.RoleSafetyManager}}
		ok, err := f.engine.CanApprove(ctx, actor, "sub-1")
		if err != nil || !ok {
			t.Errorf("CanApprove() = %v, %v, want true, nil", ok, err)
		}
	})

	t.Run("missing submission", func(t *testing.T) {
		actor := &model.Actor{Email: "jiro.tanaka@example.co.jp", JobLevel: 4}
		_, err := f.engine.CanApprove(ctx, actor, "sub-gone")
		var envelope *model.ErrorEnvelope
		if !errors.As(err, &envelope) || envelope.Code != model.ErrNotFound {
			t.Errorf("CanApprove() error = %v, want NOT_FOUND envelope", err)
		}
	})
}

func TestEngine_fetchPendingForActor(t *testing.T) {
	f := newFixture(t, day(0, 8))
	ctx := context.Background()

	// The same confirmer recorded under three different keys, plus noise.
	f.store.Put(model.Submission{
		ID: "p-by-id", RegistrationType: model.RegistrationTripStart, DriverKey: "driver-a",
		SubmittedAt: day(0, 8), ApprovalStatus: model.ApprovalPending,
		ConfirmerID: "jiro.tanaka",
	})
	f.store.Put(model.Submission{
		ID: "p-by-email", RegistrationType: model.RegistrationIntermediate, DriverKey: "driver-b",
		SubmittedAt: day(0, 9), ApprovalStatus: model.ApprovalPending,
		ConfirmerEmail: "jiro.tanaka@example.co.jp",
	})
	f.store.Put(model.Submission{
		ID: "p-other", RegistrationType: model.RegistrationTripStart, DriverKey: "driver-c",
		SubmittedAt: day(0, 10), ApprovalStatus: model.ApprovalPending,
		ConfirmerID: "someone.else",
	})
	f.store.Put(model.Submission{
		ID: "p-approved", RegistrationType: model.RegistrationTripStart, DriverKey: "driver-a",
		SubmittedAt: day(0, 11), ApprovalStatus: model.ApprovalApproved,
		ConfirmerID: "jiro.tanaka",
	})

	t.Run("confirmer sees own pending across recorded keys", func(t *testing.T) {
		actor := &model.Actor{Nickname: "jiro.tanaka", Email: "jiro.tanaka@example.co.jp", JobLevel: 4}
		subs, err := f.engine.FetchPendingForActor(ctx, actor)
		if err != nil {
			t.Fatalf("FetchPendingForActor() error = %v", err)
		}
		if len(subs) != 2 {
			t.Fatalf("FetchPendingForActor() = %d submissions, want 2", len(subs))
		}
		// Newest first.
		if subs[0].ID != "p-by-email" || subs[1].ID != "p-by-id" {
			t.Errorf("order = [%s %s], want [p-by-email p-by-id]", subs[0].ID, subs[1].ID)
		}
	})

	t.Run("safety manager sees all pending", func(t *testing.T) {
		actor := &model.Actor{Email: "shiro.mori@example.co.jp", JobLevel: 4, Roles: []string{model.RoleSafetyManager}}
		subs, err := f.engine.FetchPendingForActor(ctx, actor)
		if err != nil {
			t.Fatalf("FetchPendingForActor() error = %v", err)
		}
		if len(subs) != 3 {
			t.Errorf("FetchPendingForActor() = %d submissions, want all 3 pending", len(subs))
		}
	})

	t.Run("name-only confirmer record is found", func(t *testing.T) {
		// Legacy submissions sometimes carry only the hand-typed confirmer
		// name. That single field must be enough for both the pending feed
		// and the approval check.
		f.store.Put(model.Submission{
			ID: "p-by-name", RegistrationType: model.RegistrationTripEnd, DriverKey: "driver-d",
			SubmittedAt: day(0, 12), ApprovalStatus: model.ApprovalPending,
			ConfirmedByName: "Jiro Tanaka",
		})
		t.Cleanup(func() { f.store.Delete("p-by-name") })

		actor := &model.Actor{DisplayName: "Jiro Tanaka", JobLevel: 4}
		subs, err := f.engine.FetchPendingForActor(ctx, actor)
		if err != nil {
			t.Fatalf("FetchPendingForActor() error = %v", err)
		}
		if len(subs) != 1 || subs[0].ID != "p-by-name" {
			t.Fatalf("FetchPendingForActor() = %v, want just p-by-name", subs)
		}

		ok, err := f.engine.CanApprove(ctx, actor, "p-by-name")
		if err != nil || !ok {
			t.Errorf("CanApprove() = %v, %v, want true, nil", ok, err)
		}
	})

	t.Run("actor without identifiers sees nothing", func(t *testing.T) {
		subs, err := f.engine.FetchPendingForActor(ctx, &model.Actor{JobLevel: 4})
		if err != nil {
			t.Fatalf("FetchPendingForActor() error = %v", err)
		}
		if len(subs) != 0 {
			t.Errorf("FetchPendingForActor() = %v, want empty", subs)
		}
	})
}

func TestEngine_eligibleConfirmers(t *testing.T) {
	f := newFixture(t, day(0, 8))

	actor := &model.Actor{ObjectID: "u1", JobLevel: 2}
	confirmers, err := f.engine.EligibleConfirmers(context.Background(), actor)
	if err != nil {
		t.Fatalf("EligibleConfirmers() error = %v", err)
	}
	if len(confirmers) != 1 || confirmers[0].Role != model.RoleSafetyManager {
		t.Errorf("EligibleConfirmers() = %v, want the safety manager for a junior with no relations", confirmers)
	}
}
