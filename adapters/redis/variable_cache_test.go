package redis

import (
	"context"
	"testing"
	"time"

	"fieldtrial/domain/phenotype"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCache(t *testing.T) (*VariableCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	cache, err := NewVariableCache(&redis.Options{Addr: mr.Addr()}, "test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })
	return cache, mr
}

func TestVariableCache(t *testing.T) {
	ctx := context.Background()
	cache, mr := newCache(t)
	mv := &phenotype.MeasuredVariable{
		ID:         "mv-1",
		Trait:      phenotype.SchemaTerm{Name: "Plant height"},
		Variable:   phenotype.SchemaTerm{Name: "Height"},
		Unit:       phenotype.SchemaTerm{Name: "cm"},
		ScaleClass: phenotype.ScaleNumeric,
	}

	t.Run("miss returns nil", func(t *testing.T) {
		got, err := cache.Get(ctx, "mv-1")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("set then get", func(t *testing.T) {
		require.NoError(t, cache.Set(ctx, mv, time.Minute))
		assert.True(t, mr.Exists("test:mv:mv-1"))

		got, err := cache.Get(ctx, "mv-1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "Height", got.Name())
		assert.Equal(t, phenotype.ScaleNumeric, got.ScaleClass)
	})

	t.Run("entries expire", func(t *testing.T) {
		require.NoError(t, cache.Set(ctx, mv, time.Minute))
		mr.FastForward(2 * time.Minute)
		got, err := cache.Get(ctx, "mv-1")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, cache.Set(ctx, mv, 0))
		require.NoError(t, cache.Delete(ctx, "mv-1"))
		assert.False(t, mr.Exists("test:mv:mv-1"))
	})

	t.Run("corrupt entry", func(t *testing.T) {
		require.NoError(t, mr.Set("test:mv:bad", "{"))
		_, err := cache.Get(ctx, "bad")
		assert.Error(t, err)
	})
}

func TestNamespaceRequired(t *testing.T) {
	_, err := NewVariableCache(&redis.Options{}, "")
	assert.Error(t, err)
}
