// Package identity is the credential store: user records with an email, an
// Argon2id password hash and active/superuser flags.
//
// Lookups match the stored email exactly unless the caller asks for the
// normalized form (see ByEmail). Both forms are unique, so folding case never
// makes two users ambiguous.
package identity
