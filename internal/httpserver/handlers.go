package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"reminders/internal/confirmation"
	"reminders/internal/domain"
)

type Confirmer interface {
	Handle(ctx context.Context, req domain.ConfirmationRequest) (confirmation.Outcome, error)
}

type API struct {
	Confirmer Confirmer
}

func (a *API) Register(r *mux.Router) {
	r.HandleFunc("/api/v1/template/return", a.handleConfirmation).Methods(http.MethodPost)
}

type response struct {
	Status  string `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (a *API) handleConfirmation(w http.ResponseWriter, r *http.Request) {
	req, err := DecodeConfirmation(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrInvalidJSON)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, ErrMissingFields)
		return
	}

	out, err := a.Confirmer.Handle(r.Context(), req)
	switch {
	case errors.Is(err, domain.ErrMissingFields):
		writeError(w, http.StatusBadRequest, ErrMissingFields)
	case err != nil && out == confirmation.OutcomeReceived:
		writeError(w, http.StatusInternalServerError, ErrRelayFailed)
	case err != nil:
		slog.Error("confirmation failed", "request_id", RequestIDFrom(r.Context()), "err", err)
		writeError(w, http.StatusInternalServerError, ErrInternal)
	case out == confirmation.OutcomeNotFound:
		writeError(w, http.StatusNotFound, ErrNotFound)
	default:
		writeJSON(w, http.StatusOK, response{Status: "success", Code: http.StatusOK, Message: MsgConfirmed})
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, response{Status: "error", Code: status, Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
