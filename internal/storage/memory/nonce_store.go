package memory

import (
	"context"
	"sync"
	"time"

	"solio-donations/internal/domain"
	"solio-donations/internal/storage"
)

// NonceStore is an in-memory implementation of storage.NonceStore.
type NonceStore struct {
	mu   sync.Mutex
	data map[string]domain.WalletNonce // keyed by address
}

// NewNonceStore creates a new in-memory nonce store.
func NewNonceStore() *NonceStore {
	return &NonceStore{data: make(map[string]domain.WalletNonce)}
}

var _ storage.NonceStore = (*NonceStore)(nil)

// Put replaces the nonce for n.Address.
func (s *NonceStore) Put(_ context.Context, n *domain.WalletNonce) error {
	if n == nil || n.Address == "" || n.Nonce == "" {
		return storage.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[n.Address] = *n
	return nil
}

// Consume deletes the stored nonce and reports whether it matched.
func (s *NonceStore) Consume(_ context.Context, address, nonce string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.data[address]
	if !ok {
		return storage.ErrNotFound
	}
	delete(s.data, address)
	if stored.Nonce != nonce || !now.Before(stored.ExpiresAt) {
		return storage.ErrNotFound
	}
	return nil
}
