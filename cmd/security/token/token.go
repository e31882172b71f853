package token

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

const (
	// TokenBytes is the entropy of session and device tokens.
	TokenBytes = 32
	// DeviceIDBytes is the entropy of client-visible device ids.
	DeviceIDBytes = 16
	// MinHMACKeyBytes is the shortest accepted lookup secret.
	MinHMACKeyBytes = 32
)

// GenerateToken returns a new raw secret token (256 bits, base64url, unpadded).
func GenerateToken() (string, error) {
	return randomURLString(TokenBytes)
}

// GenerateDeviceID returns a new device identifier (128 bits). It is an
// identifier for lookup, not a secret.
func GenerateDeviceID() (string, error) {
	return randomURLString(DeviceIDBytes)
}

func randomURLString(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("token: random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashHMACSHA256Hex returns an HMAC-SHA256 hex digest of s using key.
func HashHMACSHA256Hex(s string, key []byte) string {
	m := hmac.New(sha256.New, key)
	_, _ = m.Write([]byte(s))
	return hex.EncodeToString(m.Sum(nil))
}

// LookupKey derives the deterministic index value for raw under key.
// An empty key disables lookup keys and yields "".
func LookupKey(raw string, key []byte) string {
	if len(key) == 0 || raw == "" {
		return ""
	}
	return HashHMACSHA256Hex(raw, key)
}

// CheckHMACKey enforces the minimum secret length for lookup keys.
func CheckHMACKey(key []byte, minBytes int) error {
	if len(key) == 0 {
		return ErrHMACKeyMissing
	}
	if minBytes > 0 && len(key) < minBytes {
		return ErrHMACKeyTooShort
	}
	return nil
}
