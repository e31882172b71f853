// Package token generates and protects the opaque bearer secrets used for
// sessions and trusted devices.
//
// Raw tokens are 32 random bytes, device ids 16 random bytes, both base64url
// without padding. Raw tokens are stored only as bcrypt hashes. An optional
// HMAC-SHA256 lookup key, derived with a server secret, gives an indexed way to
// find the row a token belongs to while the bcrypt hash remains the proof.
//
// Nothing here touches storage.
package token
