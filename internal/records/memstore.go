package records

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/TTS1976/alcohol-check-engine/model"
)

// MemoryStore is an in-memory Store for testing and single-instance
// development deployments. Cursors encode offsets into the filtered,
// sorted result set.
type MemoryStore struct {
	mu          sync.RWMutex
	submissions map[string]model.Submission
}

// NewMemoryStore creates a new in-memory record store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		submissions: make(map[string]model.Submission),
	}
}

// Put inserts or replaces a submission. Test seams and the dev harness use
// it; the engine itself never writes.
func (s *MemoryStore) Put(sub model.Submission) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submissions[sub.ID] = sub
}

// Delete removes a submission by ID.
func (s *MemoryStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.submissions, id)
}

// Len returns the number of stored submissions. For testing.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.submissions)
}

// List evaluates the filter over all submissions, orders by submittedAt,
// and returns the requested page.
func (s *MemoryStore) List(_ context.Context, q Query) (Page, error) {
	if q.Model != "" && q.Model != ModelSubmission {
		return Page{}, model.NewBadRequestError(
			fmt.Sprintf("unknown record model %q", q.Model),
		)
	}

	pageSize := q.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	offset := 0
	if q.Cursor != "" {
		n, err := strconv.Atoi(q.Cursor)
		if err != nil || n < 0 {
			return Page{}, model.NewBadRequestError(
				fmt.Sprintf("malformed cursor %q", q.Cursor),
			)
		}
		offset = n
	}

	s.mu.RLock()
	matched := make([]model.Submission, 0, len(s.submissions))
	for _, sub := range s.submissions {
		if q.Filter.Matches(sub) {
			matched = append(matched, sub)
		}
	}
	s.mu.RUnlock()

	asc := q.Sort != SortDesc
	sort.Slice(matched, func(i, j int) bool {
		if asc {
			return matched[i].SubmittedAt.Before(matched[j].SubmittedAt)
		}
		return matched[i].SubmittedAt.After(matched[j].SubmittedAt)
	})

	if offset >= len(matched) {
		return Page{}, nil
	}

	end := offset + pageSize
	next := ""
	if end < len(matched) {
		next = strconv.Itoa(end)
	} else {
		end = len(matched)
	}

	return Page{Items: matched[offset:end], NextCursor: next}, nil
}

// HealthCheck reports the store as healthy; the in-memory store has no
// external dependency to probe.
func (s *MemoryStore) HealthCheck(_ context.Context) error {
	return nil
}
