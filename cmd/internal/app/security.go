package app

import (
	"errors"
	"fmt"

	"kpauth/cmd/security/token"
)

// ValidateSecurityConfig enforces the security policy at startup.
// Production never falls back to weaker settings.
func ValidateSecurityConfig(cfg Config) error {
	if cfg.SessionLookupKey {
		if err := token.CheckHMACKey([]byte(cfg.SessionSecret), token.MinHMACKeyBytes); err != nil {
			return fmt.Errorf("security policy: SESSION_LOOKUP_KEY=true needs SESSION_SECRET: %w", err)
		}
	}

	if !cfg.IsProduction() {
		return nil
	}

	// Measured in bytes: the secret is used as raw key material.
	switch err := token.CheckHMACKey([]byte(cfg.SessionSecret), token.MinHMACKeyBytes); {
	case errors.Is(err, token.ErrHMACKeyMissing):
		return errors.New("security policy: SESSION_SECRET is required in production")
	case errors.Is(err, token.ErrHMACKeyTooShort):
		return fmt.Errorf("security policy: SESSION_SECRET is too short (min %d bytes)", token.MinHMACKeyBytes)
	case err != nil:
		return err
	}

	if !cfg.CookieSecure {
		return errors.New("security policy: COOKIE_SECURE must be true in production")
	}
	return nil
}
