// Package models tests for data model definitions.
package models

import (
	"encoding/json"
	"testing"
)

// =====================================================
// Variants Tests
// =====================================================

func TestVariants_ValueScan(t *testing.T) {
	in := Variants{{Name: "Red", UPC: "111"}, {Name: "Blue", UPC: "222"}}

	val, err := in.Value()
	if err != nil {
		t.Fatalf("Value() error = %v", err)
	}

	var out Variants
	if err := out.Scan(val); err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if len(out) != 2 || out[0].Name != "Red" || out[1].UPC != "222" {
		t.Errorf("Scan() = %+v, order or content lost", out)
	}
}

func TestVariants_nil(t *testing.T) {
	var v Variants
	val, _ := v.Value()
	if val != "[]" {
		t.Errorf("nil Value() = %v, want []", val)
	}
	if err := v.Scan(nil); err != nil || v != nil {
		t.Errorf("Scan(nil) = %v, %v", v, err)
	}
	if err := v.Scan(42); err == nil {
		t.Error("Scan(int) should fail")
	}
}

// =====================================================
// CachedProduct Tests
// =====================================================

func TestCachedProduct_VariantKey(t *testing.T) {
	red := "Red"
	tests := []struct {
		name string
		p    CachedProduct
		want string
	}{
		{"base row", CachedProduct{ID: "p1"}, ""},
		{"variant row", CachedProduct{ID: "p1", Variant: &red}, "Red"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.p.VariantKey(); got != tt.want {
				t.Errorf("VariantKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCachedProduct_JSON(t *testing.T) {
	raw := `{"id":"abc","store_id":"s1","product_id":"SKU1","name":"Tea","variant":null,"price":2.5,"is_active":true,"variants_enabled":true,"variants":[{"name":"Green","upc":"9"}]}`
	var p CachedProduct
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		t.Fatalf("Unmarshal error = %v", err)
	}
	if p.Variant != nil || p.IsSynced() {
		t.Error("variant and synced_at should be nil")
	}
	if len(p.Variants) != 1 || p.Variants[0].Name != "Green" {
		t.Errorf("Variants = %+v", p.Variants)
	}
}

// =====================================================
// SyncQueueEntry Tests
// =====================================================

func TestSyncQueueEntry_HeaderMap(t *testing.T) {
	e := SyncQueueEntry{Headers: json.RawMessage(`{"X-Request":"1"}`)}
	if got := e.HeaderMap()["X-Request"]; got != "1" {
		t.Errorf("HeaderMap()[X-Request] = %q", got)
	}

	e.Headers = json.RawMessage(`not json`)
	if len(e.HeaderMap()) != 0 {
		t.Error("malformed headers should decode to empty map")
	}
}

func TestQueueStats_Total(t *testing.T) {
	if got := (QueueStats{Pending: 2, Failed: 3}).Total(); got != 5 {
		t.Errorf("Total() = %d, want 5", got)
	}
}

func TestTableNames(t *testing.T) {
	tests := map[string]string{
		CachedProduct{}.TableName():   "products",
		CachedOrder{}.TableName():     "inventory_orders",
		CachedOrderItem{}.TableName(): "inventory_order_items",
		SyncQueueEntry{}.TableName():  "sync_queue",
		Setting{}.TableName():         "settings",
	}
	for got, want := range tests {
		if got != want {
			t.Errorf("TableName() = %q, want %q", got, want)
		}
	}
}
