// Package uuid provides server UUID validation and client-side placeholder ids.
package uuid

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// UUID v4 format: xxxxxxxx-xxxx-4xxx-yxxx-xxxxxxxxxxxx
// where y is one of [8, 9, a, b] (variant bits)
var uuidV4Regex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-4[0-9a-fA-F]{3}-[89abAB][0-9a-fA-F]{3}-[0-9a-fA-F]{12}$`)

// Placeholder ids assigned on the device before the server has confirmed a row.
var localIDRegex = regexp.MustCompile(`^local_[0-9]+_[0-9a-f]{12}$`)

// LocalPrefix marks ids generated on the device.
const LocalPrefix = "local_"

// New generates a new UUID v4.
func New() string {
	return uuid.New().String()
}

// IsValid checks if a string is a valid UUID v4.
func IsValid(s string) bool {
	return uuidV4Regex.MatchString(s)
}

// Validate returns an error if the string is not a valid UUID v4.
func Validate(s string) error {
	if !IsValid(s) {
		return fmt.Errorf("invalid UUID v4 format: %q", s)
	}
	return nil
}

// randomSuffix returns 12 lowercase hex characters.
func randomSuffix() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
}

// NewLocalID returns a placeholder id of the form local_<unix millis>_<random>.
func NewLocalID() string {
	return fmt.Sprintf("%s%d_%s", LocalPrefix, time.Now().UnixMilli(), randomSuffix())
}

// IsLocalID reports whether id was produced by NewLocalID.
func IsLocalID(id string) bool {
	return localIDRegex.MatchString(id)
}

// NewQueueID returns a time-ordered id for a sync queue entry.
func NewQueueID() string {
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), randomSuffix())
}
