package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/mikepodsy/my-finance-app/internal/metrics"
)

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	UserID    string    `json:"userId"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func decodeCredentials(w http.ResponseWriter, r *http.Request) (credentials, bool) {
	var creds credentials
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&creds); err != nil {
		respondWithError(w, http.StatusBadRequest, msgInvalidBody)
		return creds, false
	}
	// The body must hold exactly one JSON value.
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		respondWithError(w, http.StatusBadRequest, msgInvalidBody)
		return creds, false
	}
	return creds, true
}

func (api *Api) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	creds, ok := decodeCredentials(w, r)
	if !ok {
		api.metrics.RecordAttempt(metrics.FlowRegister, metrics.OutcomeBadRequest)
		return
	}

	if _, err := api.auth.Register(r.Context(), creds.Email, creds.Password); err != nil {
		api.writeError(w, r, metrics.FlowRegister, err)
		return
	}

	api.metrics.RecordAttempt(metrics.FlowRegister, metrics.OutcomeSuccess)
	respondWithJSON(w, http.StatusOK, successResponse{Success: true})
}

func (api *Api) LoginHandler(w http.ResponseWriter, r *http.Request) {
	creds, ok := decodeCredentials(w, r)
	if !ok {
		api.metrics.RecordAttempt(metrics.FlowLogin, metrics.OutcomeBadRequest)
		return
	}

	session, err := api.auth.Login(r.Context(), creds.Email, creds.Password)
	if err != nil {
		api.writeError(w, r, metrics.FlowLogin, err)
		return
	}

	api.cookies.Write(w, session.Token, session.ExpiresAt)
	api.metrics.RecordAttempt(metrics.FlowLogin, metrics.OutcomeSuccess)
	respondWithJSON(w, http.StatusOK, successResponse{Success: true})
}

// LogoutHandler drops the session cookie. The token itself stays valid
// until it expires.
func (api *Api) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	api.cookies.Clear(w)
	api.metrics.RecordAttempt(metrics.FlowLogout, metrics.OutcomeSuccess)
	respondWithJSON(w, http.StatusOK, successResponse{Success: true})
}

func (api *Api) SessionHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, msgUnauthorized)
		return
	}

	api.metrics.RecordAttempt(metrics.FlowSession, metrics.OutcomeSuccess)
	respondWithJSON(w, http.StatusOK, sessionResponse{
		UserID:    claims.UserID(),
		Email:     claims.Email,
		ExpiresAt: claims.ExpiresAt.Time.UTC(),
	})
}
