// Package auth provides API key generation, hashing and verification for the
// pingscan API server. Keys are random, shown once, and stored in the config
// file only as bcrypt hashes.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// API key generation and validation constants
const (
	// KeyLength is the length of the random part of a key
	KeyLength = 32
	// KeyPrefix starts every key
	KeyPrefix = "ps"
	// displayRandomLength is how much of the random part a display prefix shows
	displayRandomLength = 8

	// BcryptCost is the cost used for stored key hashes
	BcryptCost = 12
	// BcryptMaxInputLength is the maximum input length for bcrypt
	BcryptMaxInputLength = 72

	// MaxKeyNameLength bounds key names
	MaxKeyNameLength = 255
)

// GeneratedKey is a newly generated key together with what the server needs
// to verify it.
type GeneratedKey struct {
	Name      string     `json:"name" yaml:"name"`
	Key       string     `json:"key" yaml:"key"`
	Hash      string     `json:"hash" yaml:"hash"`
	Prefix    string     `json:"prefix" yaml:"prefix"`
	CreatedAt time.Time  `json:"created_at" yaml:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
}

// GenerateKey creates a key named name. A positive expiresIn sets ExpiresAt.
func GenerateKey(name string, expiresIn time.Duration) (*GeneratedKey, error) {
	return generateKey(name, expiresIn, BcryptCost)
}

func generateKey(name string, expiresIn time.Duration, cost int) (*GeneratedKey, error) {
	if err := validateKeyName(name); err != nil {
		return nil, fmt.Errorf("invalid key name: %w", err)
	}

	randomBytes := make([]byte, KeyLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return nil, fmt.Errorf("failed to generate random key: %w", err)
	}

	// base32 avoids ambiguous characters; the padding falls past KeyLength.
	randomPart := strings.ToLower(base32.StdEncoding.EncodeToString(randomBytes))[:KeyLength]
	key := KeyPrefix + "_" + randomPart

	hash, err := HashKeyWithCost(key, cost)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	generated := &GeneratedKey{
		Name:      name,
		Key:       key,
		Hash:      hash,
		Prefix:    DisplayPrefix(key),
		CreatedAt: now,
	}
	if expiresIn > 0 {
		expires := now.Add(expiresIn)
		generated.ExpiresAt = &expires
	}
	return generated, nil
}

// HashKey creates a bcrypt hash of a key for the config file.
func HashKey(key string) (string, error) {
	return HashKeyWithCost(key, BcryptCost)
}

// HashKeyWithCost is HashKey with an explicit bcrypt cost.
func HashKeyWithCost(key string, cost int) (string, error) {
	if key == "" {
		return "", fmt.Errorf("API key cannot be empty")
	}

	hash, err := bcrypt.GenerateFromPassword(bcryptInput(key), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash API key: %w", err)
	}
	return string(hash), nil
}

// CompareKey reports whether key matches a stored hash.
func CompareKey(key, hash string) bool {
	if key == "" || hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), bcryptInput(key)) == nil
}

// bcryptInput pre-hashes keys longer than bcrypt accepts.
func bcryptInput(key string) []byte {
	b := []byte(key)
	if len(b) > BcryptMaxInputLength {
		sum := sha256.Sum256(b)
		b = sum[:]
	}
	return b
}

// IsValidKeyFormat checks if a key has the shape GenerateKey produces.
func IsValidKeyFormat(key string) bool {
	random, ok := strings.CutPrefix(key, KeyPrefix+"_")
	if !ok || len(random) != KeyLength {
		return false
	}
	for _, c := range random {
		if (c < 'a' || c > 'z') && (c < '2' || c > '7') {
			return false
		}
	}
	return true
}

// DisplayPrefix returns a safe-to-log prefix of a key, e.g. "ps_abcdefgh...".
func DisplayPrefix(key string) string {
	if !IsValidKeyFormat(key) {
		return "invalid_key"
	}
	return key[:len(KeyPrefix)+1+displayRandomLength] + "..."
}

func validateKeyName(name string) error {
	if name == "" {
		return fmt.Errorf("key name cannot be empty")
	}
	if len(name) > MaxKeyNameLength {
		return fmt.Errorf("key name must be at most %d characters", MaxKeyNameLength)
	}

	for _, char := range name {
		// ASCII and C1 controls, bidirectional overrides and isolates
		if char < 32 || char == 127 ||
			(char >= 0x0080 && char <= 0x009F) ||
			(char >= 0x202A && char <= 0x202E) ||
			(char >= 0x2066 && char <= 0x2069) {
			return fmt.Errorf("key name contains invalid characters")
		}
	}
	return nil
}
