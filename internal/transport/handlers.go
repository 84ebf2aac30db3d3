package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/TTS1976/alcohol-check-engine/internal/engine"
	"github.com/TTS1976/alcohol-check-engine/internal/observability"
	"github.com/TTS1976/alcohol-check-engine/model"
)

// handleWorkflowState resolves a driver's next required checkpoint. The
// driver is identified either by the canonical key ("driver") or by the
// free-text name recorded on a reservation ("driver_name").
func handleWorkflowState(eng *engine.Engine, metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		driverKey := r.URL.Query().Get("driver")
		driverName := r.URL.Query().Get("driver_name")

		switch {
		case driverKey == "" && driverName == "":
			WriteError(w, model.NewBadRequestError("driver or driver_name query parameter is required"))
			return
		case driverKey == "":
			resolved, err := eng.ResolveDriverKey(r.Context(), driverName)
			if err != nil {
				WriteError(w, err)
				return
			}
			driverKey = resolved
		}

		resolution, err := eng.ResolveWorkflowState(r.Context(), driverKey)
		if err != nil {
			WriteError(w, err)
			return
		}
		if metrics != nil {
			metrics.RecordWorkflowResolution(string(resolution.State))
		}

		WriteJSON(w, http.StatusOK, map[string]any{
			"driver_key":    driverKey,
			"state":         resolution.State,
			"trip_progress": resolution.Progress,
		})
	}
}

// handleConfirmers returns the actor's eligible-confirmer set.
func handleConfirmers(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := model.ActorFrom(r.Context())
		if actor == nil {
			WriteError(w, model.NewUnauthorizedError("Missing authenticated actor"))
			return
		}

		confirmers, err := eng.EligibleConfirmers(r.Context(), actor)
		if err != nil {
			WriteError(w, err)
			return
		}
		if confirmers == nil {
			confirmers = []model.Confirmer{}
		}

		WriteJSON(w, http.StatusOK, map[string]any{
			"confirmers": confirmers,
			"count":      len(confirmers),
		})
	}
}

// handlePendingSubmissions returns the pending submissions awaiting the
// actor, newest first.
func handlePendingSubmissions(eng *engine.Engine, metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := model.ActorFrom(r.Context())
		if actor == nil {
			WriteError(w, model.NewUnauthorizedError("Missing authenticated actor"))
			return
		}

		subs, err := eng.FetchPendingForActor(r.Context(), actor)
		if err != nil {
			WriteError(w, err)
			return
		}
		if subs == nil {
			subs = []model.Submission{}
		}
		if metrics != nil {
			metrics.RecordPendingFetch(len(subs))
		}

		WriteJSON(w, http.StatusOK, map[string]any{
			"submissions": subs,
			"count":       len(subs),
		})
	}
}

// handleCanApprove reports whether the actor may approve one submission.
// A denial is a 200 with can_approve false, never an error.
func handleCanApprove(eng *engine.Engine, metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := model.ActorFrom(r.Context())
		if actor == nil {
			WriteError(w, model.NewUnauthorizedError("Missing authenticated actor"))
			return
		}
		submissionID := chi.URLParam(r, "submissionId")

		allowed, err := eng.CanApprove(r.Context(), actor, submissionID)
		if err != nil {
			WriteError(w, err)
			return
		}
		if metrics != nil {
			metrics.RecordApprovalDecision(allowed)
		}

		WriteJSON(w, http.StatusOK, map[string]any{
			"submission_id": submissionID,
			"can_approve":   allowed,
		})
	}
}
