package authapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"kpauth/cmd/internal/audit"
	"kpauth/cmd/internal/auth"

	"github.com/go-chi/chi/v5"
)

// Stable error codes.
const (
	codeInvalidCredentials  = "invalid_credentials"
	codeDeviceNotTrusted    = "device_not_trusted"
	codeInvalidDevice       = "invalid_device"
	codeFingerprintMismatch = "fingerprint_mismatch"
	codeDeviceNotFound      = "device_not_found"
	codeNotAuthenticated    = "not_authenticated"
	codeInvalidJSON         = "invalid_json"
	codeInvalidRequest      = "invalid_request"
)

// Handler wires the auth protocol to HTTP.
type Handler struct {
	log     *slog.Logger
	cfg     Config
	svc     *auth.Service
	audit   audit.Sink
	metrics *Metrics
}

// HandlerOption configures optional handler dependencies.
type HandlerOption func(*Handler)

// WithAuditSink records security events to sink.
func WithAuditSink(sink audit.Sink) HandlerOption {
	return func(h *Handler) {
		if sink != nil {
			h.audit = sink
		}
	}
}

// WithMetrics records protocol counters.
func WithMetrics(m *Metrics) HandlerOption {
	return func(h *Handler) { h.metrics = m }
}

// NewHandler constructs an auth Handler.
func NewHandler(log *slog.Logger, svc *auth.Service, cfg Config, opts ...HandlerOption) (*Handler, error) {
	if svc == nil {
		return nil, errors.New("authapi: nil auth service")
	}
	if log == nil {
		log = slog.Default()
	}

	h := &Handler{log: log, cfg: cfg.withDefaults(), svc: svc, audit: audit.Nop{}}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h, nil
}

// Register wires the auth and device routes onto r.
func (h *Handler) Register(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", h.handleLogin)
		r.Post("/refresh", h.handleRefresh)
		r.Post("/logout", h.handleLogout)
		r.With(h.RequireSession).Get("/me", h.handleMe)
	})
	r.Route("/devices", func(r chi.Router) {
		r.Use(h.RequireSession)
		r.Get("/", h.handleListDevices)
		r.Post("/revoke", h.handleRevokeDevice)
	})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidJSON, "invalid request body")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "email and password are required")
		return
	}

	res, err := h.svc.Login(r.Context(), auth.LoginInput{
		Email:          req.Email,
		Password:       req.Password,
		RememberDevice: req.RememberDevice,
		Fingerprint:    h.fingerprint(r, req.Fingerprint),
		DeviceName:     req.DeviceName,
		DeviceInfo:     req.DeviceInfo,
		IP:             clientIP(r, h.cfg.TrustProxy),
		UserAgent:      userAgent(r),
	})
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			h.metrics.login("invalid_credentials")
			h.auditLoginFailed(r, codeInvalidCredentials)
			writeError(w, http.StatusUnauthorized, codeInvalidCredentials, "incorrect email or password")
			return
		}
		h.metrics.login("error")
		writeInternal(w, r, h.log, "auth.login.fail", err)
		return
	}

	h.setSessionCookie(w, res.SessionToken)
	if res.Device != nil {
		h.setDeviceCookies(w, res.Device.DeviceID, res.Device.DeviceToken)
	}
	h.metrics.login("success")
	h.auditLoginSuccess(r, res.UserID, res.SessionID, res.Device != nil)

	writeJSON(w, http.StatusOK, loginResponse{
		UserID:      res.UserID,
		Email:       res.Email,
		IsSuperuser: res.IsSuperuser,
	})
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	deviceID := cookieValue(r, h.cfg.DeviceIDCookie)
	deviceToken := cookieValue(r, h.cfg.DeviceTokenCookie)
	if deviceID == "" || deviceToken == "" {
		h.metrics.refresh(codeDeviceNotTrusted)
		writeError(w, http.StatusUnauthorized, codeDeviceNotTrusted, "device credentials required")
		return
	}

	res, ok := h.refresh(w, r, deviceID, deviceToken)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{UserID: res.UserID, Email: res.Email, IsSuperuser: res.IsSuperuser})
}

// refresh runs the silent refresh, sets the new session cookie and writes the
// error response on failure.
func (h *Handler) refresh(w http.ResponseWriter, r *http.Request, deviceID, deviceToken string) (auth.RefreshResult, bool) {
	res, err := h.svc.RefreshSession(r.Context(), auth.RefreshInput{
		DeviceID:    deviceID,
		DeviceToken: deviceToken,
		Fingerprint: h.fingerprint(r, ""),
		IP:          clientIP(r, h.cfg.TrustProxy),
		UserAgent:   userAgent(r),
	})
	if err != nil {
		var code, msg string
		switch {
		case errors.Is(err, auth.ErrInvalidDevice):
			code, msg = codeInvalidDevice, "device is not trusted"
		case errors.Is(err, auth.ErrFingerprintMismatch):
			code, msg = codeFingerprintMismatch, "device fingerprint mismatch"
		default:
			h.metrics.refresh("error")
			writeInternal(w, r, h.log, "auth.refresh.fail", err)
			return auth.RefreshResult{}, false
		}
		h.metrics.refresh(code)
		h.auditRefreshFailed(r, code)
		writeError(w, http.StatusUnauthorized, code, msg)
		return auth.RefreshResult{}, false
	}

	h.setSessionCookie(w, res.SessionToken)
	h.metrics.refresh("success")
	h.auditRefresh(r, res.UserID, res.SessionID)
	return res, true
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Logout(r.Context(), cookieValue(r, h.cfg.SessionCookie)); err != nil {
		writeInternal(w, r, h.log, "auth.logout.fail", err)
		return
	}
	h.clearAuthCookies(w)
	h.metrics.logout()
	h.auditLogout(r)
	writeJSON(w, http.StatusOK, statusResponse{Status: "logged_out"})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, codeNotAuthenticated, "not authenticated")
		return
	}
	writeJSON(w, http.StatusOK, toMeResponse(p.User))
}

func (h *Handler) handleListDevices(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, codeNotAuthenticated, "not authenticated")
		return
	}

	rows, err := h.svc.ListDevices(r.Context(), p.User.ID)
	if err != nil {
		writeInternal(w, r, h.log, "devices.list.fail", err)
		return
	}
	out := make([]deviceResponse, 0, len(rows))
	for _, d := range rows {
		out = append(out, toDeviceResponse(d))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleRevokeDevice(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, codeNotAuthenticated, "not authenticated")
		return
	}

	var req revokeDeviceRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidJSON, "invalid request body")
		return
	}
	id := strings.TrimSpace(req.ID)
	if id == "" {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "id is required")
		return
	}

	if err := h.svc.RevokeDevice(r.Context(), p.User.ID, id); err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			writeError(w, http.StatusNotFound, codeDeviceNotFound, "device not found")
			return
		}
		writeInternal(w, r, h.log, "devices.revoke.fail", err)
		return
	}
	h.auditDeviceRevoked(r, p.User.ID, id)
	writeJSON(w, http.StatusOK, statusResponse{Status: "revoked"})
}
