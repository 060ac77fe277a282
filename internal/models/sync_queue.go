package models

import (
	"encoding/json"
	"net/url"
	"time"
)

// Operation types recorded on queue entries.
const (
	OpCreateOrder   = "create_order"
	OpCreateProduct = "create_product"
	OpUpdateProduct = "update_product"
)

// Queue entry statuses.
const (
	QueueStatusPending = "pending"
	QueueStatusFailed  = "failed"
)

// SyncQueueEntry is one deferred mutation awaiting replay against the server.
type SyncQueueEntry struct {
	ID            string          `db:"id" json:"id"`
	OperationType string          `db:"operation_type" json:"operation_type"`
	Endpoint      string          `db:"endpoint" json:"endpoint"`
	Method        string          `db:"method" json:"method"`
	Payload       json.RawMessage `db:"payload" json:"payload,omitempty"`
	Headers       json.RawMessage `db:"headers" json:"headers,omitempty"`
	// EntityID is the local id of the cached row this mutation refers to.
	EntityID     string  `db:"entity_id" json:"entity_id,omitempty"`
	RetryCount   int     `db:"retry_count" json:"retry_count"`
	Status       string  `db:"status" json:"status"`
	ErrorMessage *string `db:"error_message" json:"error_message"`
	CreatedAt    int64   `db:"created_at" json:"created_at"` // unix millis
	UpdatedAt    int64   `db:"updated_at" json:"updated_at"` // unix millis
}

// ProductEndpoint is the update path of product id.
func ProductEndpoint(id string) string {
	return "/products/" + url.PathEscape(id)
}

// Rekey points an entry that refers to localID at serverID.
func (e *SyncQueueEntry) Rekey(localID, serverID string) {
	if e.EntityID != localID {
		return
	}
	e.EntityID = serverID
	if e.Endpoint == ProductEndpoint(localID) {
		e.Endpoint = ProductEndpoint(serverID)
	}
}

// TableName returns the table name for SyncQueueEntry.
func (SyncQueueEntry) TableName() string {
	return "sync_queue"
}

// CreatedAtTime returns CreatedAt as time.Time.
func (e *SyncQueueEntry) CreatedAtTime() time.Time {
	return time.UnixMilli(e.CreatedAt)
}

// HeaderMap decodes Headers. Malformed headers decode to an empty map.
func (e *SyncQueueEntry) HeaderMap() map[string]string {
	out := map[string]string{}
	if len(e.Headers) == 0 {
		return out
	}
	if err := json.Unmarshal(e.Headers, &out); err != nil {
		return map[string]string{}
	}
	return out
}

// SyncOperation describes a mutation to enqueue.
type SyncOperation struct {
	OperationType string            `json:"operation_type" validate:"required"`
	Endpoint      string            `json:"endpoint" validate:"required"`
	Method        string            `json:"method" validate:"required,oneof=GET POST PUT PATCH DELETE"`
	Payload       json.RawMessage   `json:"payload,omitempty"`
	Headers       map[string]string `json:"headers,omitempty"`
	EntityID      string            `json:"entity_id,omitempty"`
}

// QueueUpdate is a partial update; nil fields are left untouched.
type QueueUpdate struct {
	Status       *string
	RetryCount   *int
	ErrorMessage *string
}

// QueueStats summarizes the queue by status.
type QueueStats struct {
	Pending int `json:"pending"`
	Failed  int `json:"failed"`
}

// Total returns the number of entries in the queue.
func (s QueueStats) Total() int {
	return s.Pending + s.Failed
}
