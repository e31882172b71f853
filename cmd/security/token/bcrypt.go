package token

import "golang.org/x/crypto/bcrypt"

// DefaultCost targets tens of milliseconds per hash on current hardware.
const DefaultCost = 12

// bcrypt ignores input beyond 72 bytes; raw tokens are 43 characters.
const maxBcryptInput = 72

// Hasher hashes and verifies raw tokens with bcrypt.
type Hasher struct {
	cost int
}

// NewHasher returns a Hasher with cost clamped to bcrypt's valid range.
// A zero cost selects DefaultCost.
func NewHasher(cost int) *Hasher {
	if cost == 0 {
		cost = DefaultCost
	}
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return &Hasher{cost: cost}
}

// Cost returns the effective bcrypt cost.
func (h *Hasher) Cost() int { return h.cost }

// Hash returns the self-describing bcrypt hash ($2a$<cost>$<salt+digest>) of raw.
func (h *Hasher) Hash(raw string) (string, error) {
	if len(raw) > maxBcryptInput {
		return "", ErrTokenTooLong
	}
	b, err := bcrypt.GenerateFromPassword([]byte(raw), h.cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Verify reports whether raw matches hash. Malformed hashes, oversized input
// and mismatches all report false.
func (h *Hasher) Verify(raw, hash string) bool {
	if raw == "" || hash == "" || len(raw) > maxBcryptInput {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(raw)) == nil
}
