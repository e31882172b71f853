package authapi

import (
	"encoding/json"
	"time"
)

type loginRequest struct {
	Email          string          `json:"email"`
	Password       string          `json:"password"`
	RememberDevice bool            `json:"rememberDevice"`
	Fingerprint    string          `json:"fingerprint"`
	DeviceName     string          `json:"deviceName"`
	DeviceInfo     json.RawMessage `json:"deviceInfo"`
}

type revokeDeviceRequest struct {
	ID string `json:"id"`
}

type loginResponse struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	IsSuperuser bool   `json:"is_superuser"`
}

type statusResponse struct {
	Status string `json:"status"`
}

type meResponse struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	IsActive    bool       `json:"is_active"`
	IsSuperuser bool       `json:"is_superuser"`
	LastLoginAt *time.Time `json:"last_login_at"`
	CreatedAt   time.Time  `json:"created_at"`
}

type deviceResponse struct {
	ID          string     `json:"id"`
	DeviceID    string     `json:"device_id"`
	DeviceName  *string    `json:"device_name"`
	Fingerprint string     `json:"fingerprint"`
	FirstSeenAt time.Time  `json:"first_seen_at"`
	LastSeenAt  *time.Time `json:"last_seen_at"`
	LastIP      *string    `json:"last_ip"`
	ExpiresAt   time.Time  `json:"expires_at"`
	RevokedAt   *time.Time `json:"revoked_at"`
}
