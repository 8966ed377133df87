package auth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// ErrNoSecret is returned when no backup secret has been configured.
var ErrNoSecret = errors.New("no backup secret configured")

// HashStorage persists the bcrypt hash of the backup secret. Implemented by
// the sqlite store.
type HashStorage interface {
	GetSecretHash(ctx context.Context) ([]byte, error)
	SetSecretHash(ctx context.Context, hash []byte) error
	DeleteSecretHash(ctx context.Context) error
}

// SecretStore manages the fallback secret. The plaintext never leaves this
// package; only the bcrypt hash is stored.
type SecretStore struct {
	storage HashStorage
	cost    int
}

// NewSecretStore creates a store with the default bcrypt cost.
func NewSecretStore(storage HashStorage) *SecretStore {
	return &SecretStore{storage: storage, cost: bcrypt.DefaultCost}
}

// Set hashes and stores a new backup secret, replacing any previous one.
func (s *SecretStore) Set(ctx context.Context, secret string) error {
	if secret == "" {
		return errors.New("secret cannot be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), s.cost)
	if err != nil {
		return fmt.Errorf("failed to hash secret: %w", err)
	}
	return s.storage.SetSecretHash(ctx, hash)
}

// Verify checks a candidate secret against the stored hash. It returns
// ErrNoSecret when nothing is configured so the caller can surface a
// distinct failure reason.
func (s *SecretStore) Verify(ctx context.Context, secret string) (bool, error) {
	hash, err := s.storage.GetSecretHash(ctx)
	if err != nil {
		return false, err
	}
	if len(hash) == 0 {
		return false, ErrNoSecret
	}
	switch err := bcrypt.CompareHashAndPassword(hash, []byte(secret)); {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("failed to compare secret: %w", err)
	}
}

// Has reports whether a backup secret is configured.
func (s *SecretStore) Has(ctx context.Context) (bool, error) {
	hash, err := s.storage.GetSecretHash(ctx)
	if err != nil {
		return false, err
	}
	return len(hash) > 0, nil
}

// Delete removes the stored secret.
func (s *SecretStore) Delete(ctx context.Context) error {
	return s.storage.DeleteSecretHash(ctx)
}
