package authapi

import (
	"context"
	"net/http"
	"time"

	"kpauth/cmd/internal/audit"
)

func (h *Handler) record(ctx context.Context, r *http.Request, name, userID string, payload map[string]any) {
	if h.audit == nil {
		return
	}
	// The request may be finished before the sink returns.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()

	err := h.audit.Record(ctx, audit.Event{
		Name:      name,
		UserID:    userID,
		IP:        clientIP(r, h.cfg.TrustProxy),
		UserAgent: userAgent(r),
		Payload:   payload,
		At:        time.Now().UTC(),
	})
	if err != nil {
		h.log.Warn("auth.audit.record.fail", "err", err, "event", name)
	}
}

func (h *Handler) auditLoginSuccess(r *http.Request, userID, sessionID string, device bool) {
	h.record(r.Context(), r, audit.LoginSuccess, userID, map[string]any{
		"session_id":     sessionID,
		"device_created": device,
	})
}

func (h *Handler) auditLoginFailed(r *http.Request, reason string) {
	h.record(r.Context(), r, audit.LoginFailed, "", map[string]any{"reason": reason})
}

func (h *Handler) auditRefresh(r *http.Request, userID, sessionID string) {
	h.record(r.Context(), r, audit.RefreshSuccess, userID, map[string]any{"session_id": sessionID})
}

func (h *Handler) auditRefreshFailed(r *http.Request, code string) {
	name := audit.RefreshFailed
	if code == codeFingerprintMismatch {
		name = audit.FingerprintMismatch
	}
	h.record(r.Context(), r, name, "", map[string]any{"reason": code})
}

func (h *Handler) auditLogout(r *http.Request) {
	h.record(r.Context(), r, audit.Logout, "", nil)
}

func (h *Handler) auditDeviceRevoked(r *http.Request, userID, id string) {
	h.record(r.Context(), r, audit.DeviceRevoked, userID, map[string]any{"device": id})
}
