package http

import (
	"net/http"

	"go.uber.org/zap"

	"scorecast/db"
	"scorecast/ml"
)

// handleTrainingRuns lists the offline training runs, newest first.
func (a *API) handleTrainingRuns(w http.ResponseWriter, r *http.Request) {
	if a.store == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "history store not configured", "unavailable")
		return
	}

	runs, err := a.store.ListTrainingRuns(r.Context(), parseLimit(r))
	if err != nil {
		a.logger.Error("query training runs failed", zap.String("request_id", GetRequestID(r.Context())), zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "failed to query training runs", ml.Unexpected.String())
		return
	}
	if runs == nil {
		runs = []db.TrainingRun{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"runs": runs, "count": len(runs)})
}
