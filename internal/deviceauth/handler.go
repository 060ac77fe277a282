package deviceauth

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/kimhsiao/storesync/backend/internal/errors"
	"github.com/kimhsiao/storesync/backend/internal/logging"
)

// Handler exposes the device-auth HTTP endpoints.
type Handler struct {
	service Service
	tokens  *TokenIssuer
}

// NewHandler creates a Handler.
func NewHandler(service Service, tokens *TokenIssuer) *Handler {
	return &Handler{service: service, tokens: tokens}
}

// RegisterRoutes mounts the endpoints on router.
func (h *Handler) RegisterRoutes(router chi.Router) {
	router.Get("/api/health", h.health)
	router.Route("/api/device-auth", func(r chi.Router) {
		r.Get("/verify/{deviceId}", h.verify)
		r.Post("/login", h.login)
		r.With(RequireDeviceToken(h.tokens)).Get("/session", h.session)
	})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) verify(w http.ResponseWriter, r *http.Request) {
	device, err := h.service.Verify(r.Context(), chi.URLParam(r, "deviceId"))
	if err != nil {
		if apperrors.Is(err, apperrors.ErrDeviceNotFound) {
			respond(w, http.StatusNotFound, map[string]interface{}{"registered": false, "error": "Device not registered"})
			return
		}
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{"registered": true, "device": device.Public()})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond(w, http.StatusBadRequest, errorBody("Malformed request body"))
		return
	}

	// Missing fields fall through to the resolver and answer 404 or 401.
	result, err := h.service.Login(r.Context(), req.DeviceID, req.PIN)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"token":      result.Token,
		"expires_at": result.ExpiresAt,
		"user":       result.User,
		"device":     result.Device,
	})
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFrom(r.Context())
	respond(w, http.StatusOK, map[string]interface{}{
		"user_id":    claims.UserID,
		"email":      claims.Email,
		"role":       claims.Role,
		"device_id":  claims.DeviceID,
		"expires_at": claims.ExpiresAt,
	})
}

// statusFor maps a service error to exactly one HTTP status.
func statusFor(err error) int {
	switch apperrors.CodeOf(err) {
	case apperrors.ErrDeviceNotFound:
		return http.StatusNotFound
	case apperrors.ErrDeviceLocked, apperrors.ErrDeviceInactive:
		return http.StatusForbidden
	case apperrors.ErrInvalidPIN, apperrors.ErrTokenInvalid, apperrors.ErrUnauthorized:
		return http.StatusUnauthorized
	case apperrors.ErrValidation, apperrors.ErrInvalid:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func respondError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := http.StatusText(status)
	var appErr *apperrors.AppError
	if status != http.StatusInternalServerError && errors.As(err, &appErr) {
		msg = appErr.Message
	}
	if status == http.StatusInternalServerError {
		logging.Error("Device auth request failed", err, nil)
	}
	respond(w, status, errorBody(msg))
}

func errorBody(msg string) map[string]interface{} {
	return map[string]interface{}{"success": false, "error": msg}
}

func respond(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
