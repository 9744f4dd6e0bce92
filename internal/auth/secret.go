package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

const defaultCost = bcrypt.DefaultCost

// HashSecret encrypts a room access secret with bcrypt.
func HashSecret(plaintext string) (string, error) {
	if plaintext == "" {
		return "", errors.New("empty secret")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), defaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CompareSecret verifies a supplied secret against a stored hash.
func CompareSecret(hash, plaintext string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
}
