// Package auth implements the login and trusted-device session protocol.
//
// Three opaque artifacts leave this package: a short-lived session token, a
// client-visible device id and a long-lived device token. Only bcrypt hashes
// of the two tokens are persisted. A session is resolved by verifying the
// presented token against the stored hashes; a trusted device mints a new
// session without a password (silent refresh) and is never rotated itself.
//
// Every operation runs in one UnitOfWork transaction. Slow hashing happens
// before the transaction opens, on a bounded workpool.Pool.
package auth
