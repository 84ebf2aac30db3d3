package records

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/TTS1976/alcohol-check-engine/model"
)

func seedStore(t *testing.T, n int) *MemoryStore {
	t.Helper()
	store := NewMemoryStore()
	base := time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		store.Put(model.Submission{
			ID:               fmt.Sprintf("sub-%03d", i),
			RegistrationType: model.RegistrationTripStart,
			DriverKey:        "driver-a",
			SubmittedAt:      base.Add(time.Duration(i) * time.Minute),
			ApprovalStatus:   model.ApprovalPending,
		})
	}
	return store
}

func TestMemoryStore_List_filters(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC)
	store.Put(model.Submission{
		ID: "s1", DriverKey: "driver-a", RegistrationType: model.RegistrationTripStart,
		ApprovalStatus: model.ApprovalPending, SubmittedAt: now,
	})
	store.Put(model.Submission{
		ID: "s2", DriverKey: "driver-a", RegistrationType: model.RegistrationTripStart,
		ApprovalStatus: model.ApprovalRejected, SubmittedAt: now.Add(time.Minute),
	})
	store.Put(model.Submission{
		ID: "s3", DriverKey: "driver-b", RegistrationType: model.RegistrationTripEnd,
		ApprovalStatus: model.ApprovalApproved, SubmittedAt: now.Add(2 * time.Minute),
	})

	tests := []struct {
		name    string
		filter  Filter
		wantIDs []string
	}{
		{
			name:    "driver equality",
			filter:  Filter{Eq(FieldDriverKey, "driver-a")},
			wantIDs: []string{"s1", "s2"},
		},
		{
			name: "non-rejected trip starts",
			filter: Filter{
				Eq(FieldDriverKey, "driver-a"),
				Eq(FieldRegistrationType, string(model.RegistrationTripStart)),
				Ne(FieldApprovalStatus, string(model.ApprovalRejected)),
			},
			wantIDs: []string{"s1"},
		},
		{
			name:    "no match",
			filter:  Filter{Eq(FieldDriverKey, "driver-z")},
			wantIDs: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := store.List(context.Background(), Query{Filter: tt.filter, PageSize: 10})
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(page.Items) != len(tt.wantIDs) {
				t.Fatalf("List() returned %d items, want %d", len(page.Items), len(tt.wantIDs))
			}
			for i, id := range tt.wantIDs {
				if page.Items[i].ID != id {
					t.Errorf("Items[%d].ID = %q, want %q", i, page.Items[i].ID, id)
				}
			}
		})
	}
}

func TestMemoryStore_List_pagination(t *testing.T) {
	store := seedStore(t, 25)

	var (
		cursor string
		total  int
		pages  int
	)
	for {
		page, err := store.List(context.Background(), Query{Cursor: cursor, PageSize: 10})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		total += len(page.Items)
		pages++
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	if total != 25 {
		t.Errorf("walked %d items, want 25", total)
	}
	if pages != 3 {
		t.Errorf("walked %d pages, want 3", pages)
	}
}

func TestMemoryStore_List_sortDesc(t *testing.T) {
	store := seedStore(t, 5)

	page, err := store.List(context.Background(), Query{PageSize: 5, Sort: SortDesc})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if page.Items[0].ID != "sub-004" {
		t.Errorf("first item = %q, want newest sub-004", page.Items[0].ID)
	}
	for i := 1; i < len(page.Items); i++ {
		if page.Items[i].SubmittedAt.After(page.Items[i-1].SubmittedAt) {
			t.Errorf("items not in descending submittedAt order at %d", i)
		}
	}
}

func TestMemoryStore_List_badCursor(t *testing.T) {
	store := seedStore(t, 3)
	_, err := store.List(context.Background(), Query{Cursor: "not-a-cursor"})
	ee, ok := err.(*model.ErrorEnvelope)
	if !ok || ee.Code != model.ErrBadRequest {
		t.Errorf("List(bad cursor) error = %v, want BAD_REQUEST envelope", err)
	}
}

func TestMemoryStore_List_unknownModel(t *testing.T) {
	store := seedStore(t, 1)
	_, err := store.List(context.Background(), Query{Model: "Vehicle"})
	ee, ok := err.(*model.ErrorEnvelope)
	if !ok || ee.Code != model.ErrBadRequest {
		t.Errorf("List(unknown model) error = %v, want BAD_REQUEST envelope", err)
	}
}
