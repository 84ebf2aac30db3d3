package records

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/TTS1976/alcohol-check-engine/model"
)

// submissionColumns maps filter field names to submissions table columns.
// Filter fields not present here are rejected rather than interpolated.
var submissionColumns = map[string]string{
	FieldID:                  "id",
	FieldRegistrationType:    "registration_type",
	FieldDriverKey:           "driver_key",
	FieldApprovalStatus:      "approval_status",
	FieldConfirmerID:         "confirmer_id",
	FieldConfirmerEmail:      "confirmer_email",
	FieldConfirmedByName:     "confirmed_by_name",
	FieldRelatedSubmissionID: "related_submission_id",
}

// PgStore is a PostgreSQL-backed Store using pgx/v5. It serves deployments
// where the record store is mirrored into Postgres; cursors encode offsets.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a new PostgreSQL record store.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// List translates the filter conjunction into a WHERE clause and returns
// one page ordered by submitted_at.
func (s *PgStore) List(ctx context.Context, q Query) (Page, error) {
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

	var (
		where []string
		args  []any
	)
	for _, p := range q.Filter {
		col, ok := submissionColumns[p.Field]
		if !ok {
			return Page{}, model.NewBadRequestError(
				fmt.Sprintf("unknown filter field %q", p.Field),
			)
		}
		op := "="
		if p.Op == OpNe {
			op = "<>"
		}
		args = append(args, p.Value)
		where = append(where, fmt.Sprintf("%s %s $%d", col, op, len(args)))
	}

	direction := "ASC"
	if q.Sort == SortDesc {
		direction = "DESC"
	}

	sql := `
		SELECT id, registration_type, driver_key,
		       submitted_at, boarding_at, alighting_at,
		       approval_status, confirmer_id, confirmer_email,
		       confirmed_by_name, COALESCE(related_submission_id, '')
		FROM submissions`
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	// Fetch one extra row to decide whether a next page exists.
	args = append(args, pageSize+1, offset)
	sql += fmt.Sprintf(" ORDER BY submitted_at %s LIMIT $%d OFFSET $%d",
		direction, len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return Page{}, fmt.Errorf("query submissions: %w", err)
	}
	defer rows.Close()

	var items []model.Submission
	for rows.Next() {
		var sub model.Submission
		if err := rows.Scan(
			&sub.ID, &sub.RegistrationType, &sub.DriverKey,
			&sub.SubmittedAt, &sub.BoardingAt, &sub.AlightingAt,
			&sub.ApprovalStatus, &sub.ConfirmerID, &sub.ConfirmerEmail,
			&sub.ConfirmedByName, &sub.RelatedSubmissionID,
		); err != nil {
			return Page{}, fmt.Errorf("scan submission: %w", err)
		}
		items = append(items, sub)
	}
	if err := rows.Err(); err != nil {
		return Page{}, fmt.Errorf("iterate submissions: %w", err)
	}

	next := ""
	if len(items) > pageSize {
		items = items[:pageSize]
		next = strconv.Itoa(offset + pageSize)
	}

	return Page{Items: items, NextCursor: next}, nil
}

// HealthCheck verifies connectivity to the database.
func (s *PgStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
