// Package model defines the domain types shared by every layer of the
// engine: submission records, actors, derived trip progress, workflow
// states, and the coded error envelope.
package model

import "time"

// RegistrationType identifies which checkpoint a submission records.
type RegistrationType string

const (
	RegistrationTripStart    RegistrationType = "trip_start"
	RegistrationIntermediate RegistrationType = "intermediate_roll_call"
	RegistrationTripEnd      RegistrationType = "trip_end"
)

// Valid reports whether the registration type is one of the three checkpoints.
func (rt RegistrationType) Valid() bool {
	switch rt {
	case RegistrationTripStart, RegistrationIntermediate, RegistrationTripEnd:
		return true
	}
	return false
}

// ApprovalStatus is the review state of a submission.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// Submission is one checkpoint event as recorded by the store. Records are
// immutable once approved or rejected; the engine never mutates them.
type Submission struct {
	ID               string           `json:"id"`
	RegistrationType RegistrationType `json:"registration_type"`

	// DriverKey is the submitting driver's identifier as recorded. It is
	// not guaranteed normalized.
	DriverKey string `json:"driver_key"`

	SubmittedAt time.Time `json:"submitted_at"`

	// BoardingAt and AlightingAt bound the trip span. They are only
	// meaningful on trip_start submissions.
	BoardingAt  time.Time `json:"boarding_at"`
	AlightingAt time.Time `json:"alighting_at"`

	ApprovalStatus ApprovalStatus `json:"approval_status"`

	// The assigned approver is recorded under three independently populated
	// identifiers; which ones are set depends on the upstream code path
	// that wrote the record. None is authoritative.
	ConfirmerID     string `json:"confirmer_id"`
	ConfirmerEmail  string `json:"confirmer_email"`
	ConfirmedByName string `json:"confirmed_by_name"`

	// RelatedSubmissionID links an intermediate roll-call or trip-end back
	// to its originating trip-start. Empty on trip_start records.
	RelatedSubmissionID string `json:"related_submission_id,omitempty"`
}

// ConfirmerRef is the triple of recorded approver identifiers on a submission.
type ConfirmerRef struct {
	ConfirmerID     string
	ConfirmerEmail  string
	ConfirmedByName string
}

// Confirmer returns the recorded approver identifiers.
func (s Submission) Confirmer() ConfirmerRef {
	return ConfirmerRef{
		ConfirmerID:     s.ConfirmerID,
		ConfirmerEmail:  s.ConfirmerEmail,
		ConfirmedByName: s.ConfirmedByName,
	}
}

// IsRejected reports whether the submission was rejected. A rejected
// submission never blocks re-submission of the same checkpoint type.
func (s Submission) IsRejected() bool {
	return s.ApprovalStatus == ApprovalRejected
}

// IsOpen reports whether the submission still counts toward the active trip
// chain (pending or approved).
func (s Submission) IsOpen() bool {
	return s.ApprovalStatus == ApprovalPending || s.ApprovalStatus == ApprovalApproved
}

// Confirmer is one entry of an eligible-confirmer list as returned to the
// surrounding application.
type Confirmer struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}
