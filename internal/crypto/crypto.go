// Package crypto seals small secrets (the session token) at rest.
// Uses AES-256-GCM with a key derived from a machine identifier via HKDF.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

var (
	// ErrInvalidCiphertext is returned when decryption fails.
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
	// ErrInvalidKey is returned when the key is invalid.
	ErrInvalidKey = errors.New("invalid key")
)

const (
	keySize     = 32
	defaultSalt = "storesync-session"
	defaultID   = "storesync-default-machine"
)

// DeriveKey derives a 32-byte key from a machine-specific identifier.
func DeriveKey(machineID string) []byte {
	if machineID == "" {
		machineID = defaultID
	}
	r := hkdf.New(sha256.New, []byte(machineID), []byte(defaultSalt), []byte("token-seal-v1"))
	key := make([]byte, keySize)
	// hkdf only fails after 255*HashLen bytes.
	_, _ = io.ReadFull(r, key)
	return key
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != keySize {
		return nil, ErrInvalidKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Encrypt encrypts plaintext with a 32-byte key and returns nonce||ciphertext as base64.
func Encrypt(plaintext, key []byte) (string, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := gcm.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt.
func Decrypt(ciphertext string, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, ErrInvalidCiphertext
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return nil, ErrInvalidCiphertext
	}

	plaintext, err := gcm.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return nil, ErrInvalidCiphertext
	}
	return plaintext, nil
}

// SealToken encrypts a session token for storage. An empty token seals to "".
func SealToken(token, machineID string) (string, error) {
	if token == "" {
		return "", nil
	}
	return Encrypt([]byte(token), DeriveKey(machineID))
}

// OpenToken decrypts a token produced by SealToken. "" opens to "".
func OpenToken(sealed, machineID string) (string, error) {
	if sealed == "" {
		return "", nil
	}
	plaintext, err := Decrypt(sealed, DeriveKey(machineID))
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
