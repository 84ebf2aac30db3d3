// Package records defines the paginated query contract against the external
// submission store and the aggregation logic layered on top of it: bounded
// cursor walks, multi-source deduplicating merges, and the single
// consistency retry for eventually-consistent reads.
package records

import (
	"context"

	"github.com/TTS1976/alcohol-check-engine/model"
)

// ModelSubmission is the record model name used for every query this engine
// issues.
const ModelSubmission = "Submission"

// Operator is a filter comparison operator. The upstream store supports
// field equality and inequality only; no range or full-text predicates are
// used by this engine.
type Operator string

const (
	OpEq Operator = "eq"
	OpNe Operator = "ne"
)

// Filterable submission field names, as the store knows them.
const (
	FieldID                  = "id"
	FieldRegistrationType    = "registrationType"
	FieldDriverKey           = "driverKey"
	FieldApprovalStatus      = "approvalStatus"
	FieldConfirmerID         = "confirmerId"
	FieldConfirmerEmail      = "confirmerEmail"
	FieldConfirmedByName     = "confirmedByName"
	FieldRelatedSubmissionID = "relatedSubmissionId"
)

// Predicate is a single field comparison.
type Predicate struct {
	Field string
	Op    Operator
	Value string
}

// Filter is a conjunction of predicates.
type Filter []Predicate

// Eq returns an equality predicate.
func Eq(field, value string) Predicate {
	return Predicate{Field: field, Op: OpEq, Value: value}
}

// Ne returns an inequality predicate.
func Ne(field, value string) Predicate {
	return Predicate{Field: field, Op: OpNe, Value: value}
}

// SortDirection orders results by submittedAt, the sole ordering key.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// Query is one page request against the record store.
type Query struct {
	Model    string
	Filter   Filter
	Cursor   string
	PageSize int
	Sort     SortDirection
}

// Page is one page of results. NextCursor is empty when the result set is
// exhausted.
type Page struct {
	Items      []model.Submission
	NextCursor string
}

// Store is the paginated query contract consumed from the record store. The
// engine never writes through this interface and does not assume strong
// read-after-write consistency from it.
type Store interface {
	List(ctx context.Context, q Query) (Page, error)
}

// Matches evaluates the filter conjunction against a submission. Stores that
// cannot push predicates down may use it directly; the aggregator also uses
// it for defense-in-depth post-filtering.
func (f Filter) Matches(sub model.Submission) bool {
	for _, p := range f {
		v := fieldValue(sub, p.Field)
		switch p.Op {
		case OpEq:
			if v != p.Value {
				return false
			}
		case OpNe:
			if v == p.Value {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func fieldValue(sub model.Submission, field string) string {
	switch field {
	case FieldID:
		return sub.ID
	case FieldRegistrationType:
		return string(sub.RegistrationType)
	case FieldDriverKey:
		return sub.DriverKey
	case FieldApprovalStatus:
		return string(sub.ApprovalStatus)
	case FieldConfirmerID:
		return sub.ConfirmerID
	case FieldConfirmerEmail:
		return sub.ConfirmerEmail
	case FieldConfirmedByName:
		return sub.ConfirmedByName
	case FieldRelatedSubmissionID:
		return sub.RelatedSubmissionID
	}
	return ""
}
