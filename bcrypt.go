package auth

import (
	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost is the default adaptive work factor. Cost 12 keeps a
// single hash in the tens-of-milliseconds range on current hardware.
const DefaultBcryptCost = 12

// bcrypt only considers the first 72 bytes of input; anything longer must be
// truncated consistently on hash and compare or long passwords never verify.
const maxPasswordBytes = 72

// PasswordHasher computes and verifies salted bcrypt hashes with a tunable
// cost. The salt is generated per call and encoded into the hash itself.
type PasswordHasher struct {
	cost int
}

// NewPasswordHasher returns a hasher with the given cost. Costs outside the
// bcrypt range fall back to DefaultBcryptCost.
func NewPasswordHasher(cost int) *PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultBcryptCost
	}
	return &PasswordHasher{cost: cost}
}

// Hash will generate a salted password hash
func (h *PasswordHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}

	out, err := bcrypt.GenerateFromPassword(truncatePassword(password), h.cost)
	return string(out), err
}

// Compare validates the given cleartext password against the stored hash.
// A malformed stored hash reports the same mismatch error as a wrong
// password so the hash format is never an oracle. The underlying comparison
// is constant time.
func (h *PasswordHasher) Compare(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), truncatePassword(password)); err != nil {
		return ErrMismatchedHashAndPassword
	}
	return nil
}

// HashPassword will generate a password hash using the default cost
func HashPassword(password string) (string, error) {
	return NewPasswordHasher(DefaultBcryptCost).Hash(password)
}

// ComparePasswordAndHash will validate the given cleartext password matches
// the hashed password
func ComparePasswordAndHash(password, hash string) error {
	return NewPasswordHasher(DefaultBcryptCost).Compare(password, hash)
}

func truncatePassword(password string) []byte {
	b := []byte(password)
	if len(b) > maxPasswordBytes {
		b = b[:maxPasswordBytes]
	}
	return b
}
