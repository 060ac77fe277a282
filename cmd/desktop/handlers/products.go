package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kimhsiao/storesync/backend/internal/api"
	"github.com/kimhsiao/storesync/backend/internal/models"
)

// ProductService is the product part of the API facade.
type ProductService interface {
	GetProducts(ctx context.Context) ([]*models.CachedProduct, error)
	CreateProduct(ctx context.Context, in api.ProductInput) (*models.CachedProduct, error)
	UpdateProduct(ctx context.Context, id string, u api.ProductUpdate) (*models.CachedProduct, error)
}

// ProductHandler handles product operations.
type ProductHandler struct {
	service ProductService
}

// NewProductHandler creates a new ProductHandler.
func NewProductHandler(service ProductService) *ProductHandler {
	return &ProductHandler{service: service}
}

// ListProducts handles GET /products
func (h *ProductHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.GetProducts(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"products": products})
}

// CreateProduct handles POST /products
// Responds 202 when the product was only saved locally and queued.
func (h *ProductHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var in api.ProductInput
	if !decodeBody(w, r, &in) {
		return
	}
	p, err := h.service.CreateProduct(r.Context(), in)
	if err != nil {
		respondError(w, err)
		return
	}
	status := http.StatusCreated
	if !p.IsSynced() {
		status = http.StatusAccepted
	}
	respondJSON(w, status, map[string]interface{}{"product": p})
}

// UpdateProduct handles PUT /products/{id}
func (h *ProductHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	var u api.ProductUpdate
	if !decodeBody(w, r, &u) {
		return
	}
	p, err := h.service.UpdateProduct(r.Context(), chi.URLParam(r, "id"), u)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"product": p})
}
