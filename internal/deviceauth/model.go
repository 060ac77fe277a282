// Package deviceauth resolves PIN logins on shared store devices.
//
// One physical device is shared by a shift of employees. A PIN is checked
// against, in order: the device-scoped PIN of each user permitted on the
// device (or that user's personal PIN when no device PIN is set), the master
// PIN of the device's store admins, and the master PIN of every active
// super-admin. The first successful compare wins.
package deviceauth

import "time"

// Roles.
const (
	RoleEmployee   = "employee"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "super_admin"
)

// Device is a registered store device.
type Device struct {
	ID             string     `db:"id" json:"id"`
	Name           string     `db:"name" json:"name"`
	StoreID        string     `db:"store_id" json:"store_id"`
	AssignedUserID *string    `db:"assigned_user_id" json:"assigned_user_id,omitempty"`
	IsActive       bool       `db:"is_active" json:"is_active"`
	IsLocked       bool       `db:"is_locked" json:"is_locked"`
	LastSeenAt     *time.Time `db:"last_seen_at" json:"last_seen_at,omitempty"`
}

// User is an account that may log in on a device.
type User struct {
	ID            string  `db:"id" json:"id"`
	Email         string  `db:"email" json:"email"`
	Name          string  `db:"name" json:"name"`
	Role          string  `db:"role" json:"role"`
	StoreID       *string `db:"store_id" json:"store_id,omitempty"`
	IsActive      bool    `db:"is_active" json:"is_active"`
	PINHash       *string `db:"pin_hash" json:"-"`
	MasterPINHash *string `db:"master_pin_hash" json:"-"`
}

// Candidate is a user permitted on a device, with the device-scoped PIN hash
// of that (user, device) pair when one is set.
type Candidate struct {
	User          User    `db:"user"`
	DevicePINHash *string `db:"device_pin_hash"`
}

// PublicUser is the profile returned to the device after login.
type PublicUser struct {
	ID      string  `json:"id"`
	Email   string  `json:"email"`
	Name    string  `json:"name"`
	Role    string  `json:"role"`
	StoreID *string `json:"store_id,omitempty"`
}

// Public returns the user's public profile.
func (u *User) Public() PublicUser {
	return PublicUser{ID: u.ID, Email: u.Email, Name: u.Name, Role: u.Role, StoreID: u.StoreID}
}

// PublicDevice is the device profile returned to clients.
type PublicDevice struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	StoreID  string `json:"store_id"`
	IsActive bool   `json:"is_active"`
	IsLocked bool   `json:"is_locked"`
}

// Public returns the device's public profile.
func (d *Device) Public() PublicDevice {
	return PublicDevice{ID: d.ID, Name: d.Name, StoreID: d.StoreID, IsActive: d.IsActive, IsLocked: d.IsLocked}
}

// LoginRequest is the body of POST /api/device-auth/login.
type LoginRequest struct {
	DeviceID string `json:"device_id"`
	PIN      string `json:"pin"`
}

// LoginResult is a successful PIN resolution.
type LoginResult struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      PublicUser   `json:"user"`
	Device    PublicDevice `json:"device"`
	// Layer names the credential source that matched. It is logged, never returned.
	Layer string `json:"-"`
}

// Credential layers, in precedence order.
const (
	LayerDevicePIN   = "device_pin"
	LayerPersonalPIN = "personal_pin"
	LayerStoreMaster = "store_master_pin"
	LayerSuperAdmin  = "super_admin_master_pin"
)
