package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const phcVersion = "v=19" // argon2.Version == 0x13

var phcB64 = base64.RawStdEncoding

// Hash derives an Argon2id key for password and returns the PHC encoded string.
// It does not apply the policy; use CheckPolicy where a password is being set.
func (c Config) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrPasswordTooShort
	}

	salt := make([]byte, c.Params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("salt: %w", err)
	}

	key := argon2.IDKey(
		[]byte(password),
		salt,
		c.Params.Iterations,
		c.Params.MemoryKiB,
		c.Params.Parallelism,
		c.Params.KeyLength,
	)

	var b strings.Builder
	b.WriteString("$argon2id$")
	b.WriteString(phcVersion)
	fmt.Fprintf(&b, "$m=%d,t=%d,p=%d$", c.Params.MemoryKiB, c.Params.Iterations, c.Params.Parallelism)
	b.WriteString(phcB64.EncodeToString(salt))
	b.WriteByte('$')
	b.WriteString(phcB64.EncodeToString(key))
	return b.String(), nil
}

// Verify reports whether password matches encoded.
// A malformed or out-of-bounds hash yields (false, ErrInvalidHash); it never yields true.
func (c Config) Verify(encoded, password string) (bool, error) {
	params, salt, want, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}
	if !withinVerifyBounds(params, c.Params) {
		return false, ErrInvalidHash
	}

	got := argon2.IDKey(
		[]byte(password),
		salt,
		params.Iterations,
		params.MemoryKiB,
		params.Parallelism,
		params.KeyLength,
	)
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

// NeedsRehash reports whether encoded was produced with parameters other than c.Params.
func (c Config) NeedsRehash(encoded string) bool {
	params, _, _, err := parsePHC(encoded)
	if err != nil {
		return true
	}
	return params.MemoryKiB != c.Params.MemoryKiB ||
		params.Iterations != c.Params.Iterations ||
		params.Parallelism != c.Params.Parallelism ||
		params.KeyLength != c.Params.KeyLength
}

func parsePHC(encoded string) (Argon2idParams, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" || parts[2] != phcVersion {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}

	var mem, iter, par uint64
	for _, kv := range strings.Split(parts[3], ",") {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return Argon2idParams{}, nil, nil, ErrInvalidHash
		}
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil || n == 0 {
			return Argon2idParams{}, nil, nil, ErrInvalidHash
		}
		switch k {
		case "m":
			mem = n
		case "t":
			iter = n
		case "p":
			par = n
		default:
			return Argon2idParams{}, nil, nil, ErrInvalidHash
		}
	}
	if mem == 0 || iter == 0 || par == 0 || par > 255 {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}

	salt, err := phcB64.DecodeString(parts[4])
	if err != nil {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}
	key, err := phcB64.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}

	params := Argon2idParams{
		MemoryKiB:   uint32(mem),       // #nosec G115 -- parsed with bitSize 32.
		Iterations:  uint32(iter),      // #nosec G115 -- parsed with bitSize 32.
		Parallelism: uint8(par),        // #nosec G115 -- checked <= 255 above.
		SaltLength:  uint32(len(salt)), // #nosec G115 -- bounded by withinVerifyBounds.
		KeyLength:   uint32(len(key)),  // #nosec G115 -- bounded by withinVerifyBounds.
	}
	return params, salt, key, nil
}
