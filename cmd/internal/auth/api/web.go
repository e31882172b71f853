package authapi

import (
	"net/http"
	"strings"
	"time"
)

func (h *Handler) setSessionCookie(w http.ResponseWriter, value string) {
	h.setCookie(w, h.cfg.SessionCookie, value, h.svc.Config().SessionTTL, true)
}

func (h *Handler) setDeviceCookies(w http.ResponseWriter, deviceID, deviceToken string) {
	ttl := h.svc.Config().DeviceTTL
	// The device id is an identifier the frontend may read; the token is not.
	h.setCookie(w, h.cfg.DeviceIDCookie, deviceID, ttl, false)
	h.setCookie(w, h.cfg.DeviceTokenCookie, deviceToken, ttl, true)
}

func (h *Handler) clearAuthCookies(w http.ResponseWriter) {
	h.expireCookie(w, h.cfg.SessionCookie, true)
	h.expireCookie(w, h.cfg.DeviceIDCookie, false)
	h.expireCookie(w, h.cfg.DeviceTokenCookie, true)
}

func (h *Handler) setCookie(w http.ResponseWriter, name, value string, ttl time.Duration, httpOnly bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   h.cfg.CookieDomain,
		MaxAge:   int(ttl / time.Second),
		HttpOnly: httpOnly,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) expireCookie(w http.ResponseWriter, name string, httpOnly bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   h.cfg.CookieDomain,
		Expires:  time.Unix(0, 0).UTC(),
		MaxAge:   -1,
		HttpOnly: httpOnly,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(c.Value)
}

func (h *Handler) fingerprint(r *http.Request, fromBody string) string {
	if fp := strings.TrimSpace(fromBody); fp != "" {
		return fp
	}
	return strings.TrimSpace(r.Header.Get(h.cfg.FingerprintHeader))
}
