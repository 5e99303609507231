// Package redis stores sign-in nonces in Redis with a TTL.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"solio-donations/internal/domain"
	"solio-donations/internal/storage"
)

// NonceStore is a Redis implementation of storage.NonceStore. Each address
// has one key, so issuing a nonce replaces the previous one.
type NonceStore struct {
	client redis.UniversalClient
	prefix string
}

// NewNonceStore creates a nonce store on client.
func NewNonceStore(client redis.UniversalClient) *NonceStore {
	return &NonceStore{client: client, prefix: "nonce:"}
}

var _ storage.NonceStore = (*NonceStore)(nil)

// Put stores n with a TTL matching its expiry.
func (s *NonceStore) Put(ctx context.Context, n *domain.WalletNonce) error {
	if n == nil || n.Address == "" || n.Nonce == "" {
		return storage.ErrInvalidInput
	}
	ttl := time.Until(n.ExpiresAt)
	if ttl <= 0 {
		return storage.ErrInvalidInput
	}

	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal nonce: %w", err)
	}
	if err := s.client.Set(ctx, s.prefix+n.Address, payload, ttl).Err(); err != nil {
		return fmt.Errorf("store nonce: %w", err)
	}
	return nil
}

// Consume removes the nonce with GETDEL, so concurrent verifications of
// the same nonce cannot both succeed.
func (s *NonceStore) Consume(ctx context.Context, address, nonce string, now time.Time) error {
	raw, err := s.client.GetDel(ctx, s.prefix+address).Bytes()
	if errors.Is(err, redis.Nil) {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("consume nonce: %w", err)
	}

	var stored domain.WalletNonce
	if err := json.Unmarshal(raw, &stored); err != nil {
		return fmt.Errorf("decode nonce: %w", err)
	}
	if stored.Nonce != nonce || !now.Before(stored.ExpiresAt) {
		return storage.ErrNotFound
	}
	return nil
}
