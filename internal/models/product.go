// Package models provides data model definitions for the storesync client core.
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// ProductVariant is one named variant listed on a base product row.
type ProductVariant struct {
	Name string `json:"name"`
	UPC  string `json:"upc"`
}

// Variants is an ordered variant list stored as a JSON column.
type Variants []ProductVariant

// Value implements driver.Valuer for Variants.
func (v Variants) Value() (driver.Value, error) {
	if v == nil {
		return "[]", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner for Variants.
func (v *Variants) Scan(value interface{}) error {
	var raw []byte
	switch x := value.(type) {
	case nil:
		*v = nil
		return nil
	case string:
		raw = []byte(x)
	case []byte:
		raw = x
	default:
		return fmt.Errorf("cannot scan %T into Variants", value)
	}
	if len(raw) == 0 {
		*v = nil
		return nil
	}
	return json.Unmarshal(raw, (*[]ProductVariant)(v))
}

// CachedProduct mirrors a server product row plus local bookkeeping.
// Rows sharing ID differ by Variant.
type CachedProduct struct {
	ID              string   `db:"id" json:"id"`
	StoreID         string   `db:"store_id" json:"store_id"`
	ProductID       string   `db:"product_id" json:"product_id"`
	Name            string   `db:"name" json:"name"`
	Variant         *string  `db:"variant" json:"variant"`
	UPC             string   `db:"upc" json:"upc,omitempty"`
	Category        string   `db:"category" json:"category,omitempty"`
	Price           float64  `db:"price" json:"price"`
	Cost            float64  `db:"cost" json:"cost"`
	Quantity        int      `db:"quantity" json:"quantity"`
	ReorderLevel    int      `db:"reorder_level" json:"reorder_level"`
	VariantsEnabled bool     `db:"variants_enabled" json:"variants_enabled"`
	Variants        Variants `db:"variants" json:"variants,omitempty"`
	IsActive        bool     `db:"is_active" json:"is_active"`
	CreatedAt       string   `db:"created_at" json:"created_at"`
	UpdatedAt       string   `db:"updated_at" json:"updated_at"`
	// SyncedAt is nil until the server has confirmed the row.
	SyncedAt *int64 `db:"synced_at" json:"synced_at"`
}

// TableName returns the table name for CachedProduct.
func (CachedProduct) TableName() string {
	return "products"
}

// VariantKey returns the variant name, or "" for the base row.
func (p *CachedProduct) VariantKey() string {
	if p.Variant == nil {
		return ""
	}
	return *p.Variant
}

// IsSynced reports whether the server has confirmed this row.
func (p *CachedProduct) IsSynced() bool {
	return p.SyncedAt != nil
}
