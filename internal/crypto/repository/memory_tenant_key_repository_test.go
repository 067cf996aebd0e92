package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cryptoDomain "github.com/allisson/casevault/internal/crypto/domain"
)

func TestMemoryTenantKeyRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_Lifecycle", func(t *testing.T) {
		repo := NewMemoryTenantKeyRepository()

		v1 := newTestTenantKey(1)
		v1.Key = []byte("plaintext must not be stored")
		require.NoError(t, repo.Create(ctx, v1))

		active, err := repo.GetActive(ctx, "tenant-a")
		require.NoError(t, err)
		assert.Equal(t, uint(1), active.Version)
		assert.Empty(t, active.Key)

		require.NoError(t, repo.Deactivate(ctx, "tenant-a", 1, time.Now()))
		require.NoError(t, repo.Create(ctx, newTestTenantKey(2)))

		active, err = repo.GetActive(ctx, "tenant-a")
		require.NoError(t, err)
		assert.Equal(t, uint(2), active.Version)

		locked, err := repo.GetActiveForUpdate(ctx, "tenant-a")
		require.NoError(t, err)
		assert.Equal(t, uint(2), locked.Version)

		old, err := repo.GetByVersion(ctx, "tenant-a", 1)
		require.NoError(t, err)
		assert.True(t, old.Retired())

		keys, err := repo.ListByTenant(ctx, "tenant-a")
		require.NoError(t, err)
		require.Len(t, keys, 2)
		assert.Equal(t, uint(2), keys[0].Version)
	})

	t.Run("Error_DuplicateVersion", func(t *testing.T) {
		repo := NewMemoryTenantKeyRepository()
		require.NoError(t, repo.Create(ctx, newTestTenantKey(1)))

		dup := newTestTenantKey(1)
		dup.IsActive = false
		assert.ErrorIs(t, repo.Create(ctx, dup), cryptoDomain.ErrKeyAlreadyExists)
	})

	t.Run("Error_SecondActiveVersion", func(t *testing.T) {
		repo := NewMemoryTenantKeyRepository()
		require.NoError(t, repo.Create(ctx, newTestTenantKey(1)))

		assert.ErrorIs(t, repo.Create(ctx, newTestTenantKey(2)), cryptoDomain.ErrKeyAlreadyExists)
	})

	t.Run("Error_NotFound", func(t *testing.T) {
		repo := NewMemoryTenantKeyRepository()

		_, err := repo.GetActive(ctx, "tenant-a")
		assert.ErrorIs(t, err, cryptoDomain.ErrKeyNotFound)

		_, err = repo.GetByVersion(ctx, "tenant-a", 1)
		assert.ErrorIs(t, err, cryptoDomain.ErrKeyVersionNotFound)

		assert.ErrorIs(t, repo.Deactivate(ctx, "tenant-a", 1, time.Now()), cryptoDomain.ErrKeyVersionNotFound)
	})

	t.Run("Success_ReturnsCopies", func(t *testing.T) {
		repo := NewMemoryTenantKeyRepository()
		require.NoError(t, repo.Create(ctx, newTestTenantKey(1)))

		got, err := repo.GetActive(ctx, "tenant-a")
		require.NoError(t, err)
		got.IsActive = false

		again, err := repo.GetActive(ctx, "tenant-a")
		require.NoError(t, err)
		assert.True(t, again.IsActive)
	})
}
