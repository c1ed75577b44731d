package cache

import (
	"context"
	"testing"

	"github.com/erp/stockcore/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Port 1 is never a Redis server, so connecting fails fast.
var unreachableRedis = config.RedisConfig{Host: "127.0.0.1", Port: 1}

func TestIdempotencyStoreFactory_FallsBackToMemory(t *testing.T) {
	f := NewIdempotencyStoreFactory(unreachableRedis)

	store, err := f.CreateStore(context.Background())
	require.NoError(t, err)
	defer store.Close()

	_, ok := store.(*InMemoryIdempotencyStore)
	assert.True(t, ok)
}

func TestIdempotencyStoreFactory_NoFallback(t *testing.T) {
	f := NewIdempotencyStoreFactory(unreachableRedis, WithInMemoryFallback(false))

	store, err := f.CreateStore(context.Background())
	assert.Nil(t, store)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis required")
}
