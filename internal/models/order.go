package models

// CachedOrder is an inventory order header with its items.
type CachedOrder struct {
	ID          string `db:"id" json:"id"`
	OrderID     string `db:"order_id" json:"order_id"`
	StoreID     string `db:"store_id" json:"store_id"`
	SubmittedBy string `db:"submitted_by" json:"submitted_by"`
	Status      string `db:"status" json:"status"`
	Notes       string `db:"notes" json:"notes,omitempty"`
	Synced      bool   `db:"synced" json:"synced"`
	CreatedAt   string `db:"created_at" json:"created_at"`
	UpdatedAt   string `db:"updated_at" json:"updated_at"`

	Items []CachedOrderItem `db:"-" json:"items"`
}

// TableName returns the table name for CachedOrder.
func (CachedOrder) TableName() string {
	return "inventory_orders"
}

// CachedOrderItem is one line of an order. OrderID references CachedOrder.ID.
type CachedOrderItem struct {
	ID                string  `db:"id" json:"id"`
	OrderID           string  `db:"order_id" json:"order_id"`
	ProductID         string  `db:"product_id" json:"product_id"`
	Variant           *string `db:"variant" json:"variant"`
	Quantity          int     `db:"quantity" json:"quantity"`
	QuantityDelivered int     `db:"quantity_delivered" json:"quantity_delivered"`
	Status            string  `db:"status" json:"status"`
	Synced            bool    `db:"synced" json:"synced"`
}

// TableName returns the table name for CachedOrderItem.
func (CachedOrderItem) TableName() string {
	return "inventory_order_items"
}

// Order statuses assigned locally.
const (
	OrderStatusPending = "pending"
)
