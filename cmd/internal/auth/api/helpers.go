package authapi

import (
	"net"
	"net/http"
	"strings"

	"kpauth/cmd/identity"
	"kpauth/cmd/internal/auth/device"
)

func toMeResponse(u identity.User) meResponse {
	return meResponse{
		ID:          u.ID,
		Email:       u.Email,
		IsActive:    u.IsActive,
		IsSuperuser: u.IsSuperuser,
		LastLoginAt: u.LastLoginAt,
		CreatedAt:   u.CreatedAt,
	}
}

func toDeviceResponse(d device.Row) deviceResponse {
	return deviceResponse{
		ID:          d.ID,
		DeviceID:    d.DeviceID,
		DeviceName:  strPtrOrNil(d.Name),
		Fingerprint: d.Fingerprint,
		FirstSeenAt: d.FirstSeenAt,
		LastSeenAt:  d.LastSeenAt,
		LastIP:      strPtrOrNil(d.LastIP),
		ExpiresAt:   d.ExpiresAt,
		RevokedAt:   d.RevokedAt,
	}
}

func strPtrOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// clientIP returns the caller's address, honoring proxy headers only when trusted.
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip.String()
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip.String()
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip.String()
		}
	}
	return ""
}

func parseForwardedIP(raw string) net.IP {
	if raw == "" {
		return nil
	}
	for _, p := range strings.Split(raw, ",") {
		if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
			return ip
		}
	}
	return nil
}

func userAgent(r *http.Request) string {
	ua := strings.TrimSpace(r.UserAgent())
	if len(ua) > 512 {
		ua = strings.ToValidUTF8(ua[:512], "")
	}
	return ua
}
