// Package authapi exposes the auth protocol over HTTP: login, refresh,
// logout, the current user and trusted-device management.
//
// Tokens travel only in cookies. The session guard resolves the session
// cookie and silently refreshes from the device cookies when it is missing
// or stale.
package authapi
