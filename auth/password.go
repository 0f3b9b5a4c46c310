package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// HashPassword returns the hex-encoded sha256 digest stored in the
// database collaborator's user records. The digest format is part of the
// collaborator contract; credential policy itself is out of the lobby's
// hands.
func HashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// ComparePassword checks password against a stored digest in constant
// time.
func ComparePassword(password, hash string) bool {
	digest := HashPassword(password)
	return subtle.ConstantTimeCompare([]byte(digest), []byte(hash)) == 1
}
