package utils

import "golang.org/x/crypto/bcrypt"

// HashPassword produces a bcrypt hash at the default cost. Raising the cost
// later only affects new hashes; stored ones keep verifying.
func HashPassword(plain string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
}

func ComparePassword(hashed string, plain string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain))
}
