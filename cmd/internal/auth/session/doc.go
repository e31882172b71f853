// Package session persists primary sessions.
//
// A session row holds only the bcrypt hash of its token and, optionally, an
// HMAC lookup key derived from the same token. Raw tokens never reach storage.
// A session is valid while revoked_at is NULL and expires_at is in the future.
package session
