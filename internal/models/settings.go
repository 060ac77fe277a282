package models

// Setting keys persisted in the settings table.
const (
	SettingAuthToken    = "auth_token"
	SettingStoreID      = "store_id"
	SettingDeviceID     = "device_id"
	SettingLastSyncTime = "last_sync_time"
)

// Setting is a key/value row.
type Setting struct {
	Key       string `db:"key" json:"key"`
	Value     string `db:"value" json:"value"`
	UpdatedAt int64  `db:"updated_at" json:"updated_at"`
}

// TableName returns the table name for Setting.
func (Setting) TableName() string {
	return "settings"
}
