package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solio-donations/internal/domain"
	"solio-donations/internal/storage"
)

func setupStore(t *testing.T) (*NonceStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewNonceStore(client), mr
}

func TestNonceStore_PutAndConsume(t *testing.T) {
	store, mr := setupStore(t)
	ctx := context.Background()
	now := time.Now()

	err := store.Put(ctx, &domain.WalletNonce{Address: "addr", Nonce: "abc", Message: "m", ExpiresAt: now.Add(10 * time.Minute)})
	require.NoError(t, err)

	assert.True(t, mr.Exists("nonce:addr"))
	assert.InDelta(t, (10 * time.Minute).Seconds(), mr.TTL("nonce:addr").Seconds(), 2)

	require.NoError(t, store.Consume(ctx, "addr", "abc", now))
	assert.False(t, mr.Exists("nonce:addr"), "consumed nonce must be deleted")
	assert.ErrorIs(t, store.Consume(ctx, "addr", "abc", now), storage.ErrNotFound)
}

func TestNonceStore_ReplaceAndMismatch(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Put(ctx, &domain.WalletNonce{Address: "addr", Nonce: "first", ExpiresAt: now.Add(time.Minute)}))
	require.NoError(t, store.Put(ctx, &domain.WalletNonce{Address: "addr", Nonce: "second", ExpiresAt: now.Add(time.Minute)}))

	assert.ErrorIs(t, store.Consume(ctx, "addr", "first", now), storage.ErrNotFound)
}

func TestNonceStore_ExpiresWithTTL(t *testing.T) {
	store, mr := setupStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Put(ctx, &domain.WalletNonce{Address: "addr", Nonce: "abc", ExpiresAt: now.Add(time.Minute)}))
	mr.FastForward(2 * time.Minute)

	assert.ErrorIs(t, store.Consume(ctx, "addr", "abc", now), storage.ErrNotFound)
}

func TestNonceStore_RejectsExpiredInput(t *testing.T) {
	store, _ := setupStore(t)
	err := store.Put(context.Background(), &domain.WalletNonce{Address: "addr", Nonce: "abc", ExpiresAt: time.Now().Add(-time.Second)})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestNonceStore_ConcurrentConsume(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, store.Put(ctx, &domain.WalletNonce{Address: "addr", Nonce: "abc", ExpiresAt: now.Add(time.Minute)}))

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if store.Consume(ctx, "addr", "abc", now) == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, ok)
}
