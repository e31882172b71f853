// Package device persists trusted devices: long-lived, revocable credentials
// that let a browser mint a new session without a password.
//
// Only bcrypt hashes of device tokens are stored. The client-visible device_id
// is not unique; callers verify the token against every active row sharing it.
package device
