package model

// WorkflowState is the next required action for a driver, derived from
// submission history. There is no terminal state: initial is both the start
// state and the loop-back state once a trip closes.
type WorkflowState string

const (
	// StateInitial means the driver may start a new trip.
	StateInitial WorkflowState = "initial"

	// StateNeedsIntermediate means an intermediate roll-call is due.
	StateNeedsIntermediate WorkflowState = "needs_intermediate"

	// StateNeedsEnd means the trip-end registration is due.
	StateNeedsEnd WorkflowState = "needs_end"

	// StateWaitingForNextDay means today's intermediate roll-call has been
	// used and the trip is not on its final day.
	StateWaitingForNextDay WorkflowState = "waiting_for_next_day"
)

// TripProgress is the derived roll-call completeness of one driver's active
// trip. It is recomputed on demand and never cached across driver changes.
type TripProgress struct {
	TotalDays              int  `json:"total_days"`
	IntermediatesRequired  int  `json:"intermediates_required"`
	IntermediatesCompleted int  `json:"intermediates_completed"`
	IntermediatesRemaining int  `json:"intermediates_remaining"`
	IsFinalDay             bool `json:"is_final_day"`
	AlreadyDidToday        bool `json:"already_did_today"`
	CanDoIntermediateNow   bool `json:"can_do_intermediate_now"`
	IsComplete             bool `json:"is_complete"`
}

// WorkflowResolution is the result of resolving a driver's workflow state.
// Progress is nil when the state does not depend on an open trip
// (state initial with no active trip chain).
type WorkflowResolution struct {
	State    WorkflowState `json:"state"`
	Progress *TripProgress `json:"trip_progress,omitempty"`
}
