package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mikepodsy/my-finance-app/internal/auth"
	"github.com/mikepodsy/my-finance-app/internal/logging"
	"github.com/mikepodsy/my-finance-app/internal/metrics"
)

const (
	headerContentType   = "Content-Type"
	contentTypeJSONUTF8 = "application/json; charset=utf-8"

	msgInvalidBody  = "Invalid request body."
	msgUnauthorized = "Unauthorized."
)

type successResponse struct {
	Success bool `json:"success"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func respondWithJSON(w http.ResponseWriter, status int, payload any) {
	body, err := json.Marshal(payload)
	w.Header().Set(headerContentType, contentTypeJSONUTF8)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Internal server error."}`))
		return
	}
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func respondWithError(w http.ResponseWriter, status int, message string) {
	respondWithJSON(w, status, errorResponse{Error: message})
}

// writeError maps an auth error kind to its status and public message and
// records the outcome. Internal details are logged, never returned.
func (api *Api) writeError(w http.ResponseWriter, r *http.Request, flow string, err error) {
	var policyErr *auth.PolicyError
	switch {
	case errors.As(err, &policyErr):
		api.metrics.RecordAttempt(flow, metrics.OutcomePolicyViolation)
		respondWithError(w, http.StatusBadRequest, policyErr.Message)
	case errors.Is(err, auth.ErrBadRequest):
		api.metrics.RecordAttempt(flow, metrics.OutcomeBadRequest)
		respondWithError(w, http.StatusBadRequest, auth.MsgMissingCredentials)
	case errors.Is(err, auth.ErrConflict):
		api.metrics.RecordAttempt(flow, metrics.OutcomeConflict)
		respondWithError(w, http.StatusConflict, auth.MsgUserExists)
	case errors.Is(err, auth.ErrUnauthenticated):
		api.metrics.RecordAttempt(flow, metrics.OutcomeUnauthenticated)
		respondWithError(w, http.StatusUnauthorized, auth.MsgInvalidCredentials)
	default:
		api.metrics.RecordAttempt(flow, metrics.OutcomeInternal)
		logging.LogError(r.Context(), api.logger, flow+" failed", err)
		respondWithError(w, http.StatusInternalServerError, auth.MsgInternal)
	}
}
