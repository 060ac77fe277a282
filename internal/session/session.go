// Package session holds the client's session flags: auth token, store id,
// device id and last sync time. Values live in memory and are mirrored to the
// Local Store settings table when it is available. The token is sealed at rest.
package session

import (
	"strconv"
	"sync"
	"time"

	"github.com/kimhsiao/storesync/backend/internal/crypto"
	"github.com/kimhsiao/storesync/backend/internal/logging"
	"github.com/kimhsiao/storesync/backend/internal/models"
	"github.com/kimhsiao/storesync/backend/internal/store"
)

// Session is safe for concurrent use.
type Session struct {
	store     store.Store
	machineID string

	mu       sync.RWMutex
	token    string
	storeID  string
	deviceID string
	lastSync time.Time
}

// New creates a Session backed by st. Call Load to read persisted values.
func New(st store.Store, machineID string) *Session {
	return &Session{store: st, machineID: machineID}
}

// Load reads persisted flags. Values that cannot be read are left empty.
func (s *Session) Load() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sealed := s.store.GetSetting(models.SettingAuthToken); sealed != "" {
		token, err := crypto.OpenToken(sealed, s.machineID)
		if err != nil {
			logging.Warn("Stored auth token could not be opened, session cleared", map[string]interface{}{
				"error": err.Error(),
			})
		} else {
			s.token = token
		}
	}
	s.storeID = s.store.GetSetting(models.SettingStoreID)
	s.deviceID = s.store.GetSetting(models.SettingDeviceID)
	if v := s.store.GetSetting(models.SettingLastSyncTime); v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			s.lastSync = time.UnixMilli(ms)
		}
	}
}

// Token returns the current auth token, or "".
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// HasToken reports whether a token is present.
func (s *Session) HasToken() bool {
	return s.Token() != ""
}

// StoreID returns the store that scopes pull queries.
func (s *Session) StoreID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.storeID
}

// DeviceID returns the device that scopes device-auth calls.
func (s *Session) DeviceID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.deviceID
}

// LastSyncTime returns the completion time of the last sync run, or zero.
func (s *Session) LastSyncTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSync
}

// SetToken stores token, sealed, in the settings table.
func (s *Session) SetToken(token string) error {
	sealed, err := crypto.SealToken(token, s.machineID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()

	if token == "" {
		return s.store.DeleteSetting(models.SettingAuthToken)
	}
	return s.store.SetSetting(models.SettingAuthToken, sealed)
}

// SetStoreID sets the store scope.
func (s *Session) SetStoreID(storeID string) error {
	s.mu.Lock()
	s.storeID = storeID
	s.mu.Unlock()
	return s.persist(models.SettingStoreID, storeID)
}

// SetDeviceID sets the device scope.
func (s *Session) SetDeviceID(deviceID string) error {
	s.mu.Lock()
	s.deviceID = deviceID
	s.mu.Unlock()
	return s.persist(models.SettingDeviceID, deviceID)
}

// SetLastSyncTime records when a sync run completed.
func (s *Session) SetLastSyncTime(t time.Time) error {
	s.mu.Lock()
	s.lastSync = t
	s.mu.Unlock()
	return s.persist(models.SettingLastSyncTime, strconv.FormatInt(t.UnixMilli(), 10))
}

// Clear logs out: the token and store id are removed, the device id is kept.
func (s *Session) Clear() error {
	if err := s.SetToken(""); err != nil {
		return err
	}
	return s.SetStoreID("")
}

func (s *Session) persist(key, value string) error {
	if value == "" {
		return s.store.DeleteSetting(key)
	}
	return s.store.SetSetting(key, value)
}
