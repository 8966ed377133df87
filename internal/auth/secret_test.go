package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memHashStorage struct {
	hash []byte
}

func (m *memHashStorage) GetSecretHash(ctx context.Context) ([]byte, error) { return m.hash, nil }

func (m *memHashStorage) SetSecretHash(ctx context.Context, hash []byte) error {
	m.hash = hash
	return nil
}

func (m *memHashStorage) DeleteSecretHash(ctx context.Context) error {
	m.hash = nil
	return nil
}

func TestSecretStore_SetAndVerify(t *testing.T) {
	ctx := context.Background()
	store := NewSecretStore(&memHashStorage{})

	require.NoError(t, store.Set(ctx, "hunter2"))

	ok, err := store.Verify(ctx, "hunter2")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Verify(ctx, "wrong")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSecretStore_VerifyWithoutSecret(t *testing.T) {
	store := NewSecretStore(&memHashStorage{})

	_, err := store.Verify(context.Background(), "anything")
	assert.ErrorIs(t, err, ErrNoSecret)
}

func TestSecretStore_EmptySecretRejected(t *testing.T) {
	store := NewSecretStore(&memHashStorage{})
	assert.Error(t, store.Set(context.Background(), ""))
}

func TestSecretStore_PlaintextNeverStored(t *testing.T) {
	ctx := context.Background()
	storage := &memHashStorage{}
	store := NewSecretStore(storage)

	require.NoError(t, store.Set(ctx, "hunter2"))
	assert.NotContains(t, string(storage.hash), "hunter2")
}

func TestSecretStore_ReplaceAndDelete(t *testing.T) {
	ctx := context.Background()
	store := NewSecretStore(&memHashStorage{})

	require.NoError(t, store.Set(ctx, "first"))
	require.NoError(t, store.Set(ctx, "second"))

	ok, err := store.Verify(ctx, "first")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = store.Verify(ctx, "second")
	require.NoError(t, err)
	assert.True(t, ok)

	has, err := store.Has(ctx)
	require.NoError(t, err)
	assert.True(t, has)

	require.NoError(t, store.Delete(ctx))
	has, err = store.Has(ctx)
	require.NoError(t, err)
	assert.False(t, has)
}
