package auth

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/anstrom/pingscan/internal/errors"
)

// Key is a configured API key: a name and the bcrypt hash of the secret.
type Key struct {
	Name      string
	Hash      string
	ExpiresAt *time.Time
}

// Keyring verifies presented keys against the configured hashes. A key that
// verified once is remembered by its SHA-256 digest, so bcrypt runs once per
// key rather than once per request.
type Keyring struct {
	keys []Key

	mu       sync.RWMutex
	verified map[[sha256.Size]byte]int
}

// NewKeyring validates the configured keys and builds a keyring.
func NewKeyring(keys []Key) (*Keyring, error) {
	names := make(map[string]bool, len(keys))
	for i, k := range keys {
		field := fmt.Sprintf("api.auth.keys[%d]", i)
		if k.Name == "" {
			return nil, errors.ErrConfigInvalid(field+".name", k.Name)
		}
		if names[k.Name] {
			return nil, errors.NewConfigFieldError(errors.CodeValidation, "duplicate key name", field+".name", k.Name)
		}
		names[k.Name] = true
		if _, err := bcrypt.Cost([]byte(k.Hash)); err != nil {
			return nil, &errors.ConfigError{Code: errors.CodeValidation, Message: "not a bcrypt hash",
				Field: field + ".hash", Cause: err}
		}
	}

	return &Keyring{
		keys:     append([]Key(nil), keys...),
		verified: make(map[[sha256.Size]byte]int),
	}, nil
}

// Len returns the number of configured keys.
func (k *Keyring) Len() int {
	return len(k.keys)
}

// Authenticate returns the name of the key matching presented. Unknown and
// expired keys yield an UNAUTHORIZED error.
func (k *Keyring) Authenticate(presented string, now time.Time) (string, error) {
	if presented == "" {
		return "", errors.ErrUnauthorized("missing API key")
	}

	digest := sha256.Sum256([]byte(presented))
	k.mu.RLock()
	idx, ok := k.verified[digest]
	k.mu.RUnlock()

	if !ok {
		idx = -1
		for i, key := range k.keys {
			if CompareKey(presented, key.Hash) {
				idx = i
				break
			}
		}
		if idx < 0 {
			return "", errors.ErrUnauthorized("invalid API key")
		}
		k.mu.Lock()
		k.verified[digest] = idx
		k.mu.Unlock()
	}

	key := k.keys[idx]
	if key.ExpiresAt != nil && !now.Before(*key.ExpiresAt) {
		return "", errors.ErrUnauthorized("API key expired")
	}
	return key.Name, nil
}
