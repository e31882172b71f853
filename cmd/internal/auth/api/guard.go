package authapi

import (
	"context"
	"errors"
	"net/http"

	"kpauth/cmd/identity"
	"kpauth/cmd/internal/auth"
)

// Principal is the authenticated caller of a guarded route.
type Principal struct {
	User      identity.User
	SessionID string
	// Refreshed is set when the session was minted from a trusted device
	// during this request.
	Refreshed bool
}

type principalKey struct{}

// PrincipalFrom returns the caller stored by RequireSession.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// RequireSession resolves the session cookie, falling back to a silent
// refresh from the device cookies. Unauthenticated or inactive callers get 401.
func (h *Handler) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if raw := cookieValue(r, h.cfg.SessionCookie); raw != "" {
			cur, err := h.svc.GetCurrentUser(ctx, raw)
			switch {
			case err == nil:
				h.serveAs(w, r, next, cur, false)
				return
			case !errors.Is(err, auth.ErrInvalidSession):
				writeInternal(w, r, h.log, "auth.guard.session.fail", err)
				return
			}
		}

		deviceID := cookieValue(r, h.cfg.DeviceIDCookie)
		deviceToken := cookieValue(r, h.cfg.DeviceTokenCookie)
		if deviceID == "" || deviceToken == "" {
			h.metrics.guarded("rejected")
			writeError(w, http.StatusUnauthorized, codeNotAuthenticated, "not authenticated")
			return
		}

		res, ok := h.refresh(w, r, deviceID, deviceToken)
		if !ok {
			h.metrics.guarded("rejected")
			return
		}
		cur, err := h.svc.GetCurrentUser(ctx, res.SessionToken)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidSession) {
				h.metrics.guarded("rejected")
				writeError(w, http.StatusUnauthorized, codeNotAuthenticated, "not authenticated")
				return
			}
			writeInternal(w, r, h.log, "auth.guard.resolve.fail", err)
			return
		}
		h.serveAs(w, r, next, cur, true)
	})
}

func (h *Handler) serveAs(w http.ResponseWriter, r *http.Request, next http.Handler, cur auth.CurrentUser, refreshed bool) {
	u, err := h.svc.User(r.Context(), cur.UserID)
	if err != nil && !errors.Is(err, auth.ErrInvalidSession) {
		writeInternal(w, r, h.log, "auth.guard.user.fail", err)
		return
	}
	if err != nil || !u.IsActive {
		h.metrics.guarded("rejected")
		writeError(w, http.StatusUnauthorized, codeNotAuthenticated, "not authenticated")
		return
	}

	if refreshed {
		h.metrics.guarded("refreshed")
	} else {
		h.metrics.guarded("session")
	}
	ctx := context.WithValue(r.Context(), principalKey{}, Principal{User: u, SessionID: cur.SessionID, Refreshed: refreshed})
	next.ServeHTTP(w, r.WithContext(ctx))
}
