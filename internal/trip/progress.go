// Package trip derives roll-call completeness for a driver's active trip.
// All day arithmetic is calendar-day based in the configured business
// timezone, not elapsed-time based: a trip that boards Monday evening and
// alights Tuesday morning spans two days.
package trip

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/TTS1976/alcohol-check-engine/internal/records"
	"github.com/TTS1976/alcohol-check-engine/model"
)

// minDaysForIntermediates is the trip length, in calendar days, from which
// intermediate roll-calls become mandatory. Trips of one or two days go
// straight from start to end.
const minDaysForIntermediates = 3

// Calculator computes TripProgress from the record store. It holds no
// per-driver state; every call recomputes from a fresh fetch.
type Calculator struct {
	agg    *records.Aggregator
	loc    *time.Location
	logger *zap.Logger

	now func() time.Time
}

// NewCalculator creates a Calculator. loc is the business timezone used for
// calendar-day truncation.
func NewCalculator(agg *records.Aggregator, loc *time.Location, logger *zap.Logger) *Calculator {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Calculator{
		agg:    agg,
		loc:    loc,
		logger: logger,
		now:    time.Now,
	}
}

// SetNow overrides the calculator's clock. For testing.
func (c *Calculator) SetNow(now func() time.Time) {
	c.now = now
}

// ActiveTripStart returns the driver's active trip-start: the latest
// non-rejected trip_start submission. ok is false when the driver has no
// open trip.
func (c *Calculator) ActiveTripStart(ctx context.Context, driverKey string) (model.Submission, bool, error) {
	starts, err := c.agg.FetchAll(ctx, records.Filter{
		records.Eq(records.FieldDriverKey, driverKey),
		records.Eq(records.FieldRegistrationType, string(model.RegistrationTripStart)),
		records.Ne(records.FieldApprovalStatus, string(model.ApprovalRejected)),
	})
	if err != nil {
		return model.Submission{}, false, fmt.Errorf("fetch trip starts for %q: %w", driverKey, err)
	}
	start, ok := records.Latest(starts)
	return start, ok, nil
}

// ComputeProgress derives the TripProgress for the driver's active trip.
// It returns (nil, nil, nil) when the driver has no open trip-start; the
// absence of a trip is an answer, not an error.
func (c *Calculator) ComputeProgress(ctx context.Context, driverKey string) (*model.TripProgress, *model.Submission, error) {
	start, ok, err := c.ActiveTripStart(ctx, driverKey)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, nil
	}

	progress, err := c.ProgressFor(ctx, start)
	if err != nil {
		return nil, nil, err
	}
	return progress, &start, nil
}

// ProgressFor derives the TripProgress for a known trip-start submission.
func (c *Calculator) ProgressFor(ctx context.Context, start model.Submission) (*model.TripProgress, error) {
	boardingDate := c.dateOf(start.BoardingAt)
	alightingDate := c.dateOf(start.AlightingAt)
	totalDays := daysBetween(boardingDate, alightingDate) + 1
	if totalDays < 1 {
		// Alighting before boarding is recorded upstream garbage; treat
		// the span as a single day rather than failing the whole view.
		c.logger.Warn("trip span inverted, clamping to one day",
			zap.String("submission_id", start.ID),
			zap.Time("boarding_at", start.BoardingAt),
			zap.Time("alighting_at", start.AlightingAt),
		)
		totalDays = 1
	}

	required := 0
	if totalDays >= minDaysForIntermediates {
		required = totalDays - 1
	}

	intermediates, err := c.agg.FetchAll(ctx, records.Filter{
		records.Eq(records.FieldRelatedSubmissionID, start.ID),
		records.Eq(records.FieldRegistrationType, string(model.RegistrationIntermediate)),
		records.Ne(records.FieldApprovalStatus, string(model.ApprovalRejected)),
	})
	if err != nil {
		return nil, fmt.Errorf("fetch intermediates for trip %q: %w", start.ID, err)
	}

	today := c.dateOf(c.now())
	completed := 0
	alreadyToday := false
	for _, sub := range intermediates {
		// The related-id filter should already scope to one driver; the
		// driver check guards against a mislinked record.
		if sub.DriverKey != start.DriverKey {
			c.logger.Warn("intermediate roll-call linked across drivers, skipping",
				zap.String("submission_id", sub.ID),
				zap.String("trip_start_id", start.ID),
			)
			continue
		}
		completed++
		if c.dateOf(sub.SubmittedAt).Equal(today) {
			alreadyToday = true
		}
	}

	remaining := required - completed
	if remaining < 0 {
		remaining = 0
	}

	isFinalDay := today.Equal(alightingDate)

	return &model.TripProgress{
		TotalDays:              totalDays,
		IntermediatesRequired:  required,
		IntermediatesCompleted: completed,
		IntermediatesRemaining: remaining,
		IsFinalDay:             isFinalDay,
		AlreadyDidToday:        alreadyToday,
		// The final day is exempt from the once-per-day cap so a driver
		// who fell behind can still catch up before trip end.
		CanDoIntermediateNow: isFinalDay || !alreadyToday,
		IsComplete:           remaining <= 0,
	}, nil
}

// dateOf truncates a timestamp to midnight in the business timezone.
func (c *Calculator) dateOf(t time.Time) time.Time {
	local := t.In(c.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.loc)
}

// daysBetween counts whole calendar days from a to b. Both must already be
// midnight-truncated in the same location. The dates are re-anchored in UTC
// before subtracting so that a daylight-saving transition inside the span
// (a 23- or 25-hour day) cannot shift the count.
func daysBetween(a, b time.Time) int {
	au := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	bu := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(bu.Sub(au) / (24 * time.Hour))
}
