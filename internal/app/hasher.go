package app

import "golang.org/x/crypto/bcrypt"

// bcryptCost keeps hashing around tens of milliseconds; room passwords are
// low-value shared secrets, not account credentials.
const bcryptCost = 10

// PasswordHasher is the broker's opaque one-way function for room passwords.
// Hashing is slow on purpose, which is why the coordinator never holds its
// lock across a Hash or Verify call.
type PasswordHasher struct {
	cost int
}

func NewPasswordHasher() *PasswordHasher {
	return &PasswordHasher{cost: bcryptCost}
}

func (h *PasswordHasher) Hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (h *PasswordHasher) Verify(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
