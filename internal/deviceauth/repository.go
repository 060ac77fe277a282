package deviceauth

import (
	"context"
	"time"
)

// Repository reads the credential hierarchy. Lookups of a single row return
// (nil, nil) when the row does not exist.
type Repository interface {
	GetDevice(ctx context.Context, id string) (*Device, error)
	GetUser(ctx context.Context, id string) (*User, error)
	// ListDeviceCandidates returns every user with a permission on the
	// device, oldest grant first.
	ListDeviceCandidates(ctx context.Context, deviceID string) ([]Candidate, error)
	// ListStoreAdmins returns the store's creator and assigned admin, deduplicated.
	ListStoreAdmins(ctx context.Context, storeID string) ([]*User, error)
	// ListSuperAdmins returns every active super-admin with a master PIN.
	ListSuperAdmins(ctx context.Context) ([]*User, error)
	TouchDevice(ctx context.Context, id string, seenAt time.Time) error
}
