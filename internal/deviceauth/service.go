package deviceauth

import (
	"context"
	"time"

	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/kimhsiao/storesync/backend/internal/errors"
	"github.com/kimhsiao/storesync/backend/internal/logging"
)

// InvalidPINMessage is the single rejection message for a PIN that matched
// nothing, whatever the reason.
const InvalidPINMessage = "Invalid PIN"

// Service defines the device-auth business logic.
type Service interface {
	// Verify returns the device, or ErrDeviceNotFound.
	Verify(ctx context.Context, deviceID string) (*Device, error)
	// Login resolves pin on deviceID. It returns exactly one of a result,
	// ErrDeviceNotFound, ErrDeviceLocked, ErrDeviceInactive or ErrInvalidPIN
	// (or an internal error when the store cannot be read).
	Login(ctx context.Context, deviceID, pin string) (*LoginResult, error)
}

type service struct {
	repo   Repository
	tokens *TokenIssuer
	now    func() time.Time
}

// NewService creates a device-auth service.
func NewService(repo Repository, tokens *TokenIssuer) Service {
	return &service{repo: repo, tokens: tokens, now: time.Now}
}

func (s *service) Verify(ctx context.Context, deviceID string) (*Device, error) {
	if deviceID == "" {
		return nil, apperrors.New(apperrors.ErrDeviceNotFound, "Device not registered")
	}
	device, err := s.repo.GetDevice(ctx, deviceID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to load device", err)
	}
	if device == nil {
		return nil, apperrors.New(apperrors.ErrDeviceNotFound, "Device not registered")
	}
	return device, nil
}

func (s *service) Login(ctx context.Context, deviceID, pin string) (*LoginResult, error) {
	device, err := s.Verify(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if device.IsLocked {
		logging.Info("Device login rejected: device locked", map[string]interface{}{"device_id": deviceID})
		return nil, apperrors.New(apperrors.ErrDeviceLocked, "Device is locked")
	}
	if !device.IsActive {
		logging.Info("Device login rejected: device inactive", map[string]interface{}{"device_id": deviceID})
		return nil, apperrors.New(apperrors.ErrDeviceInactive, "Device is inactive")
	}

	user, layer, err := s.resolve(ctx, device, pin)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to load credentials", err)
	}
	if user == nil {
		logging.Info("Device login rejected: no credential matched", map[string]interface{}{"device_id": deviceID})
		return nil, apperrors.New(apperrors.ErrInvalidPIN, InvalidPINMessage)
	}

	token, expiresAt, err := s.tokens.Issue(user, device.ID)
	if err != nil {
		return nil, err
	}

	seenAt := s.now()
	if err := s.repo.TouchDevice(ctx, device.ID, seenAt); err != nil {
		logging.Warn("Failed to update device last seen", map[string]interface{}{
			"device_id": device.ID,
			"error":     err.Error(),
		})
	} else {
		device.LastSeenAt = &seenAt
	}

	logging.Info("Device login succeeded", map[string]interface{}{
		"device_id": device.ID,
		"user_id":   user.ID,
		"layer":     layer,
	})
	return &LoginResult{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      user.Public(),
		Device:    device.Public(),
		Layer:     layer,
	}, nil
}

// resolve walks the credential layers and returns the first active user whose
// hash matches, or nil.
func (s *service) resolve(ctx context.Context, device *Device, pin string) (*User, string, error) {
	candidates, err := s.deviceCandidates(ctx, device)
	if err != nil {
		return nil, "", err
	}
	for i := range candidates {
		c := &candidates[i]
		hash, layer := c.DevicePINHash, LayerDevicePIN
		if !hasHash(hash) {
			// A device PIN, when set, shadows the personal PIN on this device.
			hash, layer = c.User.PINHash, LayerPersonalPIN
		}
		if matches(hash, pin) && c.User.IsActive {
			return &c.User, layer, nil
		}
	}

	admins, err := s.repo.ListStoreAdmins(ctx, device.StoreID)
	if err != nil {
		return nil, "", err
	}
	for _, admin := range admins {
		if matches(admin.MasterPINHash, pin) && admin.IsActive {
			return admin, LayerStoreMaster, nil
		}
	}

	supers, err := s.repo.ListSuperAdmins(ctx)
	if err != nil {
		return nil, "", err
	}
	for _, sa := range supers {
		if sa.IsActive && sa.Role == RoleSuperAdmin && matches(sa.MasterPINHash, pin) {
			return sa, LayerSuperAdmin, nil
		}
	}
	return nil, "", nil
}

// deviceCandidates returns the users permitted on the device, followed by the
// device's assigned user when it holds no permission row.
func (s *service) deviceCandidates(ctx context.Context, device *Device) ([]Candidate, error) {
	candidates, err := s.repo.ListDeviceCandidates(ctx, device.ID)
	if err != nil {
		return nil, err
	}
	if device.AssignedUserID == nil || *device.AssignedUserID == "" {
		return candidates, nil
	}
	for _, c := range candidates {
		if c.User.ID == *device.AssignedUserID {
			return candidates, nil
		}
	}
	assigned, err := s.repo.GetUser(ctx, *device.AssignedUserID)
	if err != nil {
		return nil, err
	}
	if assigned != nil {
		candidates = append(candidates, Candidate{User: *assigned})
	}
	return candidates, nil
}

func hasHash(hash *string) bool {
	return hash != nil && *hash != ""
}

// matches reports whether pin matches hash. A missing hash or an empty pin
// never matches.
func matches(hash *string, pin string) bool {
	if !hasHash(hash) || pin == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(*hash), []byte(pin)) == nil
}
