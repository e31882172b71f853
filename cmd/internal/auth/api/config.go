package authapi

const (
	// DefaultSessionCookie carries the raw session token (HttpOnly).
	DefaultSessionCookie = "session"
	// DefaultDeviceIDCookie carries the device id (readable by scripts).
	DefaultDeviceIDCookie = "device_id"
	// DefaultDeviceTokenCookie carries the raw device token (HttpOnly).
	DefaultDeviceTokenCookie = "device_token"
	// DefaultFingerprintHeader carries the client fingerprint.
	DefaultFingerprintHeader = "X-Device-Fingerprint"

	defaultMaxBodyBytes = 1 << 20
)

// Config controls the auth HTTP surface.
type Config struct {
	TrustProxy   bool
	MaxBodyBytes int64

	CookieSecure bool
	CookieDomain string

	SessionCookie     string
	DeviceIDCookie    string
	DeviceTokenCookie string
	FingerprintHeader string
}

// DefaultConfig returns production defaults: secure cookies, no proxy trust.
func DefaultConfig() Config {
	return Config{
		MaxBodyBytes:      defaultMaxBodyBytes,
		CookieSecure:      true,
		SessionCookie:     DefaultSessionCookie,
		DeviceIDCookie:    DefaultDeviceIDCookie,
		DeviceTokenCookie: DefaultDeviceTokenCookie,
		FingerprintHeader: DefaultFingerprintHeader,
	}
}

func (c Config) withDefaults() Config {
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = defaultMaxBodyBytes
	}
	if c.SessionCookie == "" {
		c.SessionCookie = DefaultSessionCookie
	}
	if c.DeviceIDCookie == "" {
		c.DeviceIDCookie = DefaultDeviceIDCookie
	}
	if c.DeviceTokenCookie == "" {
		c.DeviceTokenCookie = DefaultDeviceTokenCookie
	}
	if c.FingerprintHeader == "" {
		c.FingerprintHeader = DefaultFingerprintHeader
	}
	return c
}
