package deviceauth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/kimhsiao/storesync/backend/internal/errors"
)

func TestTokenIssuer(t *testing.T) {
	issuer := NewTokenIssuer("secret-one-0123456789", time.Hour)
	u := &User{ID: "E1", Email: "e1@shop", Role: RoleEmployee}

	raw, expiresAt, err := issuer.Issue(u, "D2")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := issuer.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "E1", claims.Subject)
	assert.Equal(t, "D2", claims.DeviceID)

	other := NewTokenIssuer("secret-two-0123456789", time.Hour)
	_, err = other.Parse(raw)
	assert.True(t, apperrors.Is(err, apperrors.ErrTokenInvalid))
}

func TestTokenIssuer_expired(t *testing.T) {
	issuer := NewTokenIssuer("secret-one-0123456789", time.Minute)
	issuer.now = func() time.Time { return time.Now().Add(-time.Hour) }

	raw, _, err := issuer.Issue(&User{ID: "E1"}, "D2")
	require.NoError(t, err)

	_, err = issuer.Parse(raw)
	assert.True(t, apperrors.Is(err, apperrors.ErrTokenInvalid))
}
