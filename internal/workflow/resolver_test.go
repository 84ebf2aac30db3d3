package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/TTS1976/alcohol-check-engine/internal/records"
	"github.com/TTS1976/alcohol-check-engine/internal/trip"
	"github.com/TTS1976/alcohol-check-engine/model"
)

var jst = time.FixedZone("JST", 9*60*60)

func day(d int, hour int) time.Time {
	return time.Date(2024, 6, 10+d, hour, 0, 0, 0, jst)
}

type wfFixture struct {
	store    *records.MemoryStore
	resolver *Resolver
}

func newFixture(t *testing.T, now time.Time) *wfFixture {
	t.Helper()
	store := records.NewMemoryStore()
	agg := records.NewAggregator(store, records.Options{}, nil)
	calc := trip.NewCalculator(agg, jst, nil)
	calc.SetNow(func() time.Time { return now })
	return &wfFixture{
		store:    store,
		resolver: NewResolver(agg, calc, nil),
	}
}

func (f *wfFixture) put(sub model.Submission) {
	f.store.Put(sub)
}

func tripStart(id string, boarding, alighting time.Time, status model.ApprovalStatus) model.Submission {
	return model.Submission{
		ID:               id,
		RegistrationType: model.RegistrationTripStart,
		DriverKey:        "driver-a",
		SubmittedAt:      boarding,
		BoardingAt:       boarding,
		AlightingAt:      alighting,
		ApprovalStatus:   status,
	}
}

func intermediate(id, tripID string, submittedAt time.Time, status model.ApprovalStatus) model.Submission {
	return model.Submission{
		ID:                  id,
		RegistrationType:    model.RegistrationIntermediate,
		DriverKey:           "driver-a",
		SubmittedAt:         submittedAt,
		ApprovalStatus:      status,
		RelatedSubmissionID: tripID,
	}
}

func tripEnd(id, tripID string, submittedAt time.Time, status model.ApprovalStatus) model.Submission {
	return model.Submission{
		ID:                  id,
		RegistrationType:    model.RegistrationTripEnd,
		DriverKey:           "driver-a",
		SubmittedAt:         submittedAt,
		ApprovalStatus:      status,
		RelatedSubmissionID: tripID,
	}
}

func resolve(t *testing.T, f *wfFixture) model.WorkflowResolution {
	t.Helper()
	res, err := f.resolver.Resolve(context.Background(), "driver-a")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	return res
}

func TestResolve_noSubmissions(t *testing.T) {
	f := newFixture(t, day(0, 12))
	res := resolve(t, f)
	if res.State != model.StateInitial {
		t.Errorf("state = %q, want initial", res.State)
	}
	if res.Progress != nil {
		t.Errorf("progress = %v, want nil", res.Progress)
	}
}

func TestResolve_tripEndClosesTrip(t *testing.T) {
	for _, status := range []model.ApprovalStatus{model.ApprovalPending, model.ApprovalApproved} {
		t.Run(string(status), func(t *testing.T) {
			f := newFixture(t, day(1, 12))
			f.put(tripStart("ts-1", day(0, 8), day(0, 18), model.ApprovalApproved))
			f.put(tripEnd("te-1", "ts-1", day(0, 19), status))

			res := resolve(t, f)
			if res.State != model.StateInitial {
				t.Errorf("state after trip end (%s) = %q, want initial", status, res.State)
			}
		})
	}
}

func TestResolve_shortTripSkipsIntermediates(t *testing.T) {
	// 2-day trip: no intermediates required, straight to needs_end.
	f := newFixture(t, day(0, 12))
	f.put(tripStart("ts-1", day(0, 8), day(1, 18), model.ApprovalApproved))

	res := resolve(t, f)
	if res.State != model.StateNeedsEnd {
		t.Errorf("state = %q, want needs_end for a 2-day trip", res.State)
	}
	if res.Progress == nil || res.Progress.IntermediatesRequired != 0 {
		t.Errorf("progress = %+v, want required 0", res.Progress)
	}
}

func TestResolve_longTripNeedsIntermediate(t *testing.T) {
	f := newFixture(t, day(0, 12))
	f.put(tripStart("ts-1", day(0, 8), day(3, 18), model.ApprovalApproved))

	res := resolve(t, f)
	if res.State != model.StateNeedsIntermediate {
		t.Errorf("state = %q, want needs_intermediate", res.State)
	}
	if res.Progress == nil || res.Progress.IntermediatesRequired != 3 {
		t.Errorf("progress = %+v, want required 3", res.Progress)
	}
}

func TestResolve_waitingForNextDay(t *testing.T) {
	// Today's roll-call done, trip not on its final day.
	f := newFixture(t, day(1, 15))
	f.put(tripStart("ts-1", day(0, 8), day(3, 18), model.ApprovalApproved))
	f.put(intermediate("ir-1", "ts-1", day(1, 9), model.ApprovalApproved))

	res := resolve(t, f)
	if res.State != model.StateWaitingForNextDay {
		t.Errorf("state = %q, want waiting_for_next_day", res.State)
	}
}

func TestResolve_intermediatesCompleteNeedsEnd(t *testing.T) {
	f := newFixture(t, day(2, 15))
	f.put(tripStart("ts-1", day(0, 8), day(2, 18), model.ApprovalApproved))
	f.put(intermediate("ir-1", "ts-1", day(1, 9), model.ApprovalApproved))
	f.put(intermediate("ir-2", "ts-1", day(2, 9), model.ApprovalApproved))

	res := resolve(t, f)
	if res.State != model.StateNeedsEnd {
		t.Errorf("state = %q, want needs_end once intermediates complete", res.State)
	}
	if res.Progress == nil || !res.Progress.IsComplete {
		t.Errorf("progress = %+v, want complete", res.Progress)
	}
}

func TestResolve_rejectedReversion(t *testing.T) {
	t.Run("rejected trip start resets to initial", func(t *testing.T) {
		f := newFixture(t, day(0, 12))
		f.put(tripStart("ts-1", day(0, 8), day(3, 18), model.ApprovalRejected))

		res := resolve(t, f)
		if res.State != model.StateInitial {
			t.Errorf("state = %q, want initial", res.State)
		}
		if res.Progress != nil {
			t.Errorf("progress = %v, want nil after trip start rejection", res.Progress)
		}
	})

	t.Run("rejected intermediate keeps trip context", func(t *testing.T) {
		f := newFixture(t, day(1, 12))
		f.put(tripStart("ts-1", day(0, 8), day(3, 18), model.ApprovalApproved))
		f.put(intermediate("ir-1", "ts-1", day(1, 9), model.ApprovalRejected))

		res := resolve(t, f)
		if res.State != model.StateNeedsIntermediate {
			t.Errorf("state = %q, want needs_intermediate for resubmission", res.State)
		}
		if res.Progress == nil {
			t.Error("progress = nil, want trip context retained")
		}
	})

	t.Run("rejected trip end keeps needs_end", func(t *testing.T) {
		f := newFixture(t, day(1, 12))
		f.put(tripStart("ts-1", day(0, 8), day(1, 18), model.ApprovalApproved))
		f.put(tripEnd("te-1", "ts-1", day(1, 17), model.ApprovalRejected))

		res := resolve(t, f)
		if res.State != model.StateNeedsEnd {
			t.Errorf("state = %q, want needs_end for resubmission", res.State)
		}
	})
}

func TestResolve_rejectionDoesNotResurrectOlderState(t *testing.T) {
	// A rejected latest trip start resets to initial even when an older
	// completed trip exists in history.
	f := newFixture(t, day(10, 12))
	f.put(tripStart("ts-old", day(0, 8), day(1, 18), model.ApprovalApproved))
	f.put(tripEnd("te-old", "ts-old", day(1, 19), model.ApprovalApproved))
	f.put(tripStart("ts-new", day(10, 8), day(12, 18), model.ApprovalRejected))

	res := resolve(t, f)
	if res.State != model.StateInitial {
		t.Errorf("state = %q, want initial (not any prior state)", res.State)
	}
}

func TestResolve_intermediateWithoutOpenTripStart(t *testing.T) {
	f := newFixture(t, day(1, 12))
	f.put(intermediate("ir-orphan", "ts-gone", day(1, 9), model.ApprovalApproved))

	res := resolve(t, f)
	if res.State != model.StateInitial {
		t.Errorf("state = %q, want initial for an orphaned roll-call", res.State)
	}
}
