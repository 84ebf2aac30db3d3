package records

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/TTS1976/alcohol-check-engine/model"
)

// Aggregator defaults.
const (
	defaultPageSize = 50
	defaultMaxPages = 20
	defaultMaxItems = 1000

	// defaultRecencyWindow is how fresh the newest item must be for a
	// post-write read to be considered consistent.
	defaultRecencyWindow = 60 * time.Second

	// defaultRetryDelay is the single fixed delay before the one allowed
	// re-fetch of an inconsistent post-write read.
	defaultRetryDelay = 3 * time.Second
)

// Options tune the aggregator's safety caps and consistency retry.
type Options struct {
	PageSize      int
	MaxPages      int
	MaxItems      int
	RecencyWindow time.Duration
	RetryDelay    time.Duration
}

// Aggregator fetches and merges submission sets from the paginated record
// store. All reads are bounded: a cursor walk stops when the cursor is
// absent, the item cap is hit, or the page cap is hit, which guards against
// a misbehaving backend handing out cursors forever.
type Aggregator struct {
	store  Store
	opts   Options
	logger *zap.Logger

	// Injected for deterministic tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewAggregator creates an Aggregator over the given store.
func NewAggregator(store Store, opts Options, logger *zap.Logger) *Aggregator {
	if opts.PageSize <= 0 {
		opts.PageSize = defaultPageSize
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = defaultMaxPages
	}
	if opts.MaxItems <= 0 {
		opts.MaxItems = defaultMaxItems
	}
	if opts.RecencyWindow <= 0 {
		opts.RecencyWindow = defaultRecencyWindow
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaultRetryDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		store:  store,
		opts:   opts,
		logger: logger,
		now:    time.Now,
		sleep:  sleepContext,
	}
}

// FetchAll walks the cursor chain for one filter and returns the
// accumulated submissions. Cancellation is honored at every page boundary;
// the partial accumulation is local and simply discarded.
func (a *Aggregator) FetchAll(ctx context.Context, filter Filter) ([]model.Submission, error) {
	var (
		items  []model.Submission
		cursor string
	)

	for page := 0; page < a.opts.MaxPages; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result, err := a.store.List(ctx, Query{
			Model:    ModelSubmission,
			Filter:   filter,
			Cursor:   cursor,
			PageSize: a.opts.PageSize,
			Sort:     SortAsc,
		})
		if err != nil {
			return nil, fmt.Errorf("list submissions: %w", err)
		}

		items = append(items, result.Items...)

		if len(items) >= a.opts.MaxItems {
			a.logger.Warn("submission fetch hit item cap",
				zap.Int("items", len(items)),
				zap.Int("cap", a.opts.MaxItems),
			)
			return items[:a.opts.MaxItems], nil
		}
		if result.NextCursor == "" {
			return items, nil
		}
		cursor = result.NextCursor
	}

	a.logger.Warn("submission fetch hit page cap",
		zap.Int("pages", a.opts.MaxPages),
		zap.Int("items", len(items)),
	)
	return items, nil
}

// sourceResult collects the outcome of one concurrent source fetch.
type sourceResult struct {
	idx   int
	items []model.Submission
	err   error
}

// FetchMerged fetches the primary filter and every secondary filter
// concurrently, then merges by submission ID. Primary items win: a
// secondary item is only added when its ID has not been seen yet, and
// earlier secondaries take precedence over later ones.
func (a *Aggregator) FetchMerged(ctx context.Context, primary Filter, secondaries ...Filter) ([]model.Submission, error) {
	filters := append([]Filter{primary}, secondaries...)

	ch := make(chan sourceResult, len(filters))
	var wg sync.WaitGroup
	for i, f := range filters {
		wg.Add(1)
		go func(idx int, filter Filter) {
			defer wg.Done()
			items, err := a.FetchAll(ctx, filter)
			ch <- sourceResult{idx: idx, items: items, err: err}
		}(i, f)
	}
	go func() {
		wg.Wait()
		close(ch)
	}()

	bySource := make([][]model.Submission, len(filters))
	for r := range ch {
		if r.err != nil {
			return nil, r.err
		}
		bySource[r.idx] = r.items
	}

	seen := make(map[string]bool)
	var merged []model.Submission
	for _, items := range bySource {
		for _, sub := range items {
			if seen[sub.ID] {
				continue
			}
			seen[sub.ID] = true
			merged = append(merged, sub)
		}
	}
	return merged, nil
}

// FetchAfterWrite fetches for a caller that just performed a write. When no
// returned item is within the recency window, the read likely raced an
// eventually-consistent replica: exactly one re-fetch is performed after a
// fixed delay, and that second result is accepted as final either way.
func (a *Aggregator) FetchAfterWrite(ctx context.Context, filter Filter) ([]model.Submission, error) {
	items, err := a.FetchAll(ctx, filter)
	if err != nil {
		return nil, err
	}
	if a.hasRecent(items) {
		return items, nil
	}

	a.logger.Info("post-write read returned no recent items, retrying once",
		zap.Duration("delay", a.opts.RetryDelay),
		zap.Int("items", len(items)),
	)
	if err := a.sleep(ctx, a.opts.RetryDelay); err != nil {
		return nil, err
	}
	return a.FetchAll(ctx, filter)
}

func (a *Aggregator) hasRecent(items []model.Submission) bool {
	cutoff := a.now().Add(-a.opts.RecencyWindow)
	for _, sub := range items {
		if sub.SubmittedAt.After(cutoff) {
			return true
		}
	}
	return false
}

// SortBySubmittedAtDesc orders submissions newest-first in place.
// SubmittedAt is monotonically assigned at creation and is the sole
// ordering key for "latest submission".
func SortBySubmittedAtDesc(items []model.Submission) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].SubmittedAt.After(items[j].SubmittedAt)
	})
}

// Latest returns the submission with the greatest SubmittedAt, or false
// when the slice is empty.
func Latest(items []model.Submission) (model.Submission, bool) {
	if len(items) == 0 {
		return model.Submission{}, false
	}
	latest := items[0]
	for _, sub := range items[1:] {
		if sub.SubmittedAt.After(latest.SubmittedAt) {
			latest = sub
		}
	}
	return latest, true
}

// sleepContext waits for the duration or until the context is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
