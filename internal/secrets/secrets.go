// Package secrets hashes unlock secrets and seals chapter content at rest.
package secrets

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/chacha20poly1305"
)

var (
	ErrInvalidKey    = errors.New("invalid content key")
	ErrSealedContent = errors.New("sealed content cannot be opened")
)

// HashCode returns the hex SHA-256 digest stored for a shared secret code.
// The code is hashed exactly as given.
func HashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// MatchCode reports whether submitted hashes to storedHash.
func MatchCode(storedHash, submitted string) bool {
	if storedHash == "" {
		return false
	}
	candidate := HashCode(submitted)
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(storedHash)) == 1
}

// HashPassword returns a bcrypt hash suitable for PasswordCondition.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password is required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// MatchPassword compares submitted against a bcrypt hash.
func MatchPassword(storedHash, submitted string) bool {
	if storedHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(submitted)) == nil
}

// NewContentKey generates a random story key, base64 encoded.
func NewContentKey() (string, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("generate content key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

func parseKey(encoded string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(key) != chacha20poly1305.KeySize {
		return nil, ErrInvalidKey
	}
	return key, nil
}

// Seal encrypts plaintext with XChaCha20-Poly1305 under the story key.
// The output is base64(nonce || ciphertext).
func Seal(encodedKey, plaintext string) (string, error) {
	key, err := parseKey(encodedKey)
	if err != nil {
		return "", err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal. Any malformed input or authentication failure is
// reported as ErrSealedContent.
func Open(encodedKey, sealed string) (string, error) {
	key, err := parseKey(encodedKey)
	if err != nil {
		return "", err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}

	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil || len(raw) < aead.NonceSize()+aead.Overhead() {
		return "", ErrSealedContent
	}
	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrSealedContent
	}
	return string(plaintext), nil
}
