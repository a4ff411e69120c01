package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
)

const refreshTokenSize = 32

// ErrMalformedToken is returned for refresh tokens that do not decode to the
// expected size.
var ErrMalformedToken = errors.New("malformed refresh token")

// NewRefreshToken returns a 256-bit opaque token and the storage key derived
// from it. Only the key is ever persisted.
func NewRefreshToken() (token string, key string, err error) {
	var raw [refreshTokenSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), hashKey(raw[:]), nil
}

// RefreshKey maps a presented token to its storage key.
func RefreshKey(token string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(raw) != refreshTokenSize {
		return "", ErrMalformedToken
	}
	return hashKey(raw), nil
}

func hashKey(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
