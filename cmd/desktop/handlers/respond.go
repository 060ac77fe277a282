// Package handlers provides the localhost REST handlers of the desktop agent.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kimhsiao/storesync/backend/internal/client"
	apperrors "github.com/kimhsiao/storesync/backend/internal/errors"
	"github.com/kimhsiao/storesync/backend/internal/logging"
)

func respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// respondError maps err to a status. Upstream HTTP errors keep their status.
func respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	msg := err.Error()

	var httpErr *client.HTTPError
	var appErr *apperrors.AppError
	switch {
	case errors.As(err, &httpErr) && !apperrors.Is(err, apperrors.ErrValidation) && !apperrors.Is(err, apperrors.ErrInvalidPIN):
		status = httpErr.StatusCode
		msg = httpErr.Message()
	case errors.As(err, &appErr):
		msg = appErr.Message
		switch appErr.Code {
		case apperrors.ErrValidation, apperrors.ErrInvalid:
			status = http.StatusBadRequest
		case apperrors.ErrUnauthorized, apperrors.ErrInvalidPIN, apperrors.ErrTokenInvalid:
			status = http.StatusUnauthorized
		case apperrors.ErrForbidden, apperrors.ErrDeviceLocked, apperrors.ErrDeviceInactive:
			status = http.StatusForbidden
		case apperrors.ErrDeviceNotFound, apperrors.ErrNotFound, apperrors.ErrQueueEntryNotFound:
			status = http.StatusNotFound
		case apperrors.ErrNetworkUnavailable, apperrors.ErrSyncTimeout:
			status = http.StatusBadGateway
		}
	}
	if status >= http.StatusInternalServerError {
		logging.Error("Request failed", err, nil)
	}
	respondJSON(w, status, map[string]interface{}{"error": msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "Invalid request body"})
		return false
	}
	return true
}
