// ABOUTME: Static API key verification against bcrypt hashes from configuration
// ABOUTME: Each key maps to a fixed email and role set; used by automation clients

package auth

import (
	"errors"
	"fmt"
	"slices"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidAPIKey indicates no configured key matches the presented secret.
var ErrInvalidAPIKey = errors.New("invalid api key")

// APIKey binds a bcrypt hash to the identity it authenticates as.
type APIKey struct {
	Email   string
	Roles   []string
	KeyHash string
}

// APIKeyVerifier implements TokenVerifier over a fixed set of hashed keys.
type APIKeyVerifier struct {
	keys []APIKey
}

// NewAPIKeyVerifier validates and stores the configured keys.
func NewAPIKeyVerifier(keys []APIKey) (*APIKeyVerifier, error) {
	for i, k := range keys {
		if k.Email == "" {
			return nil, fmt.Errorf("api key %d: email is required", i)
		}
		if _, err := bcrypt.Cost([]byte(k.KeyHash)); err != nil {
			return nil, fmt.Errorf("api key %d (%s): invalid bcrypt hash: %w", i, k.Email, err)
		}
	}
	return &APIKeyVerifier{keys: slices.Clone(keys)}, nil
}

// Len returns the number of configured keys.
func (v *APIKeyVerifier) Len() int {
	return len(v.keys)
}

// Verify compares secret against every configured hash.
func (v *APIKeyVerifier) Verify(secret string) (Identity, error) {
	if secret == "" {
		return Identity{}, ErrInvalidAPIKey
	}
	for _, k := range v.keys {
		if bcrypt.CompareHashAndPassword([]byte(k.KeyHash), []byte(secret)) == nil {
			return Identity{Email: k.Email, Roles: slices.Clone(k.Roles)}, nil
		}
	}
	return Identity{}, ErrInvalidAPIKey
}

// HashAPIKey returns the bcrypt hash to place in configuration for secret.
func HashAPIKey(secret string) (string, error) {
	if secret == "" {
		return "", errors.New("api key must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing api key: %w", err)
	}
	return string(hash), nil
}
