package crypto

import (
	"crypto/rand"
	"encoding/base64"

	"golang.org/x/crypto/bcrypt"
)

// HashCost is the bcrypt work factor for stored credentials.
const HashCost = 12

// DummyHash is a valid bcrypt digest (cost 12) of a random throwaway secret.
// Login always compares against it when no account matches the identifier so
// the miss path costs the same as a real verification.
const DummyHash = "$2a$12$7h4Z2wVXj/q4RjZ.K6Z8wuHl5rP8tK6/9xA6F3C9qZDl.4wX6e8P."

// HashPassword returns a bcrypt hash of the supplied password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), HashCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword compares the hashed password with the plaintext candidate.
func VerifyPassword(hashedPassword, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password)) == nil
}

// GenerateToken returns a random URL-safe token of the requested byte length.
func GenerateToken(length int) (string, error) {
	buffer := make([]byte, length)
	if _, err := rand.Read(buffer); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buffer), nil
}
