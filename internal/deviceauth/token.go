package deviceauth

import (
	"fmt"
	"time"

	"github.com/dgrijalva/jwt-go"

	apperrors "github.com/kimhsiao/storesync/backend/internal/errors"
)

// Claims is the payload of a device session token.
type Claims struct {
	UserID   string `json:"user_id"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	DeviceID string `json:"device_id"`
	jwt.StandardClaims
}

// TokenIssuer signs and parses HS256 session tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer creates a TokenIssuer.
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue returns a token bound to u and deviceID, and its expiry.
func (t *TokenIssuer) Issue(u *User, deviceID string) (string, time.Time, error) {
	now := t.now()
	expiresAt := now.Add(t.ttl)
	claims := &Claims{
		UserID:   u.ID,
		Email:    u.Email,
		Role:     u.Role,
		DeviceID: deviceID,
		StandardClaims: jwt.StandardClaims{
			Subject:   u.ID,
			IssuedAt:  now.Unix(),
			ExpiresAt: expiresAt.Unix(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, apperrors.Wrap(apperrors.ErrInternal, "failed to sign token", err)
	}
	return signed, expiresAt, nil
}

// Parse validates a token and returns its claims.
func (t *TokenIssuer) Parse(raw string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrTokenInvalid, "invalid token", err)
	}
	if !token.Valid || claims.DeviceID == "" {
		return nil, apperrors.New(apperrors.ErrTokenInvalid, "invalid token")
	}
	return claims, nil
}
