package api

import (
	"github.com/kimhsiao/storesync/backend/internal/models"
)

// DeviceProfile is the public profile of a registered device.
type DeviceProfile struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	StoreID  string `json:"store_id"`
	IsActive bool   `json:"is_active"`
	IsLocked bool   `json:"is_locked"`
}

// UserProfile is the public profile of the user a PIN resolved to.
type UserProfile struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Role    string `json:"role"`
	StoreID string `json:"store_id,omitempty"`
}

// VerifyResponse is returned by GET /api/device-auth/verify/:deviceId.
type VerifyResponse struct {
	Registered bool           `json:"registered"`
	Device     *DeviceProfile `json:"device,omitempty"`
}

// LoginRequest is the body of POST /api/device-auth/login.
type LoginRequest struct {
	DeviceID string `json:"device_id" validate:"required"`
	PIN      string `json:"pin" validate:"required"`
}

// LoginResponse is the body of a successful login.
type LoginResponse struct {
	Success bool          `json:"success"`
	Token   string        `json:"token"`
	User    UserProfile   `json:"user"`
	Device  DeviceProfile `json:"device"`
}

// ProductInput is the body of a product create.
type ProductInput struct {
	ProductID       string                  `json:"product_id" validate:"required"`
	Name            string                  `json:"name" validate:"required"`
	Variant         *string                 `json:"variant,omitempty"`
	UPC             string                  `json:"upc,omitempty"`
	Category        string                  `json:"category,omitempty"`
	Price           float64                 `json:"price" validate:"gte=0"`
	Cost            float64                 `json:"cost" validate:"gte=0"`
	Quantity        int                     `json:"quantity" validate:"gte=0"`
	ReorderLevel    int                     `json:"reorder_level" validate:"gte=0"`
	VariantsEnabled bool                    `json:"variants_enabled"`
	Variants        []models.ProductVariant `json:"variants,omitempty" validate:"dive"`
}

// ProductUpdate is a partial product update. Nil fields are left unchanged.
type ProductUpdate struct {
	Name         *string  `json:"name,omitempty" validate:"omitempty,min=1"`
	UPC          *string  `json:"upc,omitempty"`
	Category     *string  `json:"category,omitempty"`
	Price        *float64 `json:"price,omitempty" validate:"omitempty,gte=0"`
	Cost         *float64 `json:"cost,omitempty" validate:"omitempty,gte=0"`
	Quantity     *int     `json:"quantity,omitempty" validate:"omitempty,gte=0"`
	ReorderLevel *int     `json:"reorder_level,omitempty" validate:"omitempty,gte=0"`
	IsActive     *bool    `json:"is_active,omitempty"`
}

// Apply copies the set fields onto p.
func (u *ProductUpdate) Apply(p *models.CachedProduct) {
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.UPC != nil {
		p.UPC = *u.UPC
	}
	if u.Category != nil {
		p.Category = *u.Category
	}
	if u.Price != nil {
		p.Price = *u.Price
	}
	if u.Cost != nil {
		p.Cost = *u.Cost
	}
	if u.Quantity != nil {
		p.Quantity = *u.Quantity
	}
	if u.ReorderLevel != nil {
		p.ReorderLevel = *u.ReorderLevel
	}
	if u.IsActive != nil {
		p.IsActive = *u.IsActive
	}
}

// OrderItemInput is one line of an order submission.
type OrderItemInput struct {
	ProductID string  `json:"product_id" validate:"required"`
	Quantity  int     `json:"quantity" validate:"gt=0"`
	Variant   *string `json:"variant,omitempty"`
}

// OrderInput is the body of POST /inventory-orders/store/:storeId.
type OrderInput struct {
	Items []OrderItemInput `json:"items" validate:"required,min=1,dive"`
	Notes string           `json:"notes,omitempty"`
}

type productEnvelope struct {
	Product *models.CachedProduct `json:"product"`
}

type productsEnvelope struct {
	Products []*models.CachedProduct `json:"products"`
}

type orderEnvelope struct {
	Order *models.CachedOrder `json:"order"`
}

type ordersEnvelope struct {
	Orders []*models.CachedOrder `json:"orders"`
}

