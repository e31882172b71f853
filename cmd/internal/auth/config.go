package auth

import (
	"fmt"
	"time"

	"kpauth/cmd/security/token"
)

const (
	// DefaultSessionTTL bounds a session token's lifetime.
	DefaultSessionTTL = 15 * time.Minute
	// DefaultDeviceTTL bounds a trusted device's lifetime.
	DefaultDeviceTTL = 30 * 24 * time.Hour

	// maxTokenLen rejects obviously bogus tokens before any hashing.
	maxTokenLen = 128
	// maxFingerprintLen matches trusted_devices.fingerprint.
	maxFingerprintLen = 128
	// maxDeviceNameLen matches trusted_devices.device_name.
	maxDeviceNameLen = 255
)

// Config is passed to NewService. Zero values select defaults.
type Config struct {
	SessionTTL time.Duration
	DeviceTTL  time.Duration

	// FoldEmailCase matches users on the trimmed, lower-cased email instead
	// of the exact stored string.
	FoldEmailCase bool

	// LookupKey enables HMAC lookup keys for sessions. Sessions issued while
	// it was unset (or under a different key) no longer resolve once it is set.
	LookupKey []byte

	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		SessionTTL: DefaultSessionTTL,
		DeviceTTL:  DefaultDeviceTTL,
	}
}

func (c Config) withDefaults() Config {
	if c.SessionTTL <= 0 {
		c.SessionTTL = DefaultSessionTTL
	}
	if c.DeviceTTL <= 0 {
		c.DeviceTTL = DefaultDeviceTTL
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Validate rejects inconsistent values.
func (c Config) Validate() error {
	if c.SessionTTL < 0 || c.DeviceTTL < 0 {
		return fmt.Errorf("auth: negative ttl")
	}
	if c.SessionTTL > 0 && c.DeviceTTL > 0 && c.DeviceTTL < c.SessionTTL {
		return fmt.Errorf("auth: device ttl (%s) shorter than session ttl (%s)", c.DeviceTTL, c.SessionTTL)
	}
	if len(c.LookupKey) > 0 {
		if err := token.CheckHMACKey(c.LookupKey, token.MinHMACKeyBytes); err != nil {
			return fmt.Errorf("auth: lookup key: %w", err)
		}
	}
	return nil
}
