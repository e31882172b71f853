// Package password hashes and verifies user passwords with Argon2id.
//
// Encoded hashes use the PHC string layout:
//
//	$argon2id$v=19$m=<mem>,t=<iter>,p=<par>$<salt_b64>$<key_b64>
//
// Stored hashes are treated as untrusted input: Verify parses them strictly and
// refuses parameters far above the configured cost. Policy checks (length, trivially
// weak values) apply when a password is set, never when one is verified.
package password
