package handlers

import (
	"context"
	"net/http"

	"github.com/kimhsiao/storesync/backend/internal/api"
	"github.com/kimhsiao/storesync/backend/internal/models"
)

// OrderService is the order part of the API facade.
type OrderService interface {
	GetOrders(ctx context.Context) ([]*models.CachedOrder, error)
	SubmitOrder(ctx context.Context, in api.OrderInput) (*models.CachedOrder, error)
}

// OrderHandler handles inventory order operations.
type OrderHandler struct {
	service OrderService
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(service OrderService) *OrderHandler {
	return &OrderHandler{service: service}
}

// ListOrders handles GET /orders
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.GetOrders(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"orders": orders})
}

// SubmitOrder handles POST /orders
// Responds 202 when the order was only saved locally and queued.
func (h *OrderHandler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	var in api.OrderInput
	if !decodeBody(w, r, &in) {
		return
	}
	o, err := h.service.SubmitOrder(r.Context(), in)
	if err != nil {
		respondError(w, err)
		return
	}
	status := http.StatusCreated
	if !o.Synced {
		status = http.StatusAccepted
	}
	respondJSON(w, status, map[string]interface{}{"order": o})
}
