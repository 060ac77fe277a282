package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kimhsiao/storesync/backend/internal/api"
)

// AuthService is the device-auth part of the API facade.
type AuthService interface {
	VerifyDevice(ctx context.Context, deviceID string) (*api.VerifyResponse, error)
	Login(ctx context.Context, req api.LoginRequest) (*api.LoginResponse, error)
	Logout() error
}

// AuthHandler handles device verification, PIN login and logout.
type AuthHandler struct {
	service AuthService
	// onLogin runs after a successful login, e.g. to start a sync.
	onLogin func()
}

// NewAuthHandler creates a new AuthHandler. onLogin may be nil.
func NewAuthHandler(service AuthService, onLogin func()) *AuthHandler {
	return &AuthHandler{service: service, onLogin: onLogin}
}

// VerifyDevice handles GET /auth/verify/{deviceId}
func (h *AuthHandler) VerifyDevice(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.VerifyDevice(r.Context(), chi.URLParam(r, "deviceId"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req api.LoginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	resp, err := h.service.Login(r.Context(), req)
	if err != nil {
		respondError(w, err)
		return
	}
	if h.onLogin != nil {
		h.onLogin()
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"user":    resp.User,
		"device":  resp.Device,
	})
}

// Logout handles POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Logout(); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}
