package auth

import (
	"strings"

	"golang.org/x/crypto/bcrypt"
)

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(hash), err
}

func CheckPasswordHash(password, hash string) bool {
	if hash == "" || password == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// PasswordHash returns configured unchanged when it is already a bcrypt hash
// and hashes it otherwise. An empty value stays empty and never matches.
func PasswordHash(configured string) (string, error) {
	if configured == "" || strings.HasPrefix(configured, "$2") {
		return configured, nil
	}
	return HashPassword(configured)
}
