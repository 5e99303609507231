package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"solio-donations/internal/domain"
	"solio-donations/internal/storage"
)

// UserStore is an in-memory implementation of storage.UserStore.
type UserStore struct {
	mu   sync.Mutex
	data map[string]*domain.WalletUser // keyed by wallet address
}

// NewUserStore creates a new in-memory user store.
func NewUserStore() *UserStore {
	return &UserStore{data: make(map[string]*domain.WalletUser)}
}

var _ storage.UserStore = (*UserStore)(nil)

// UpsertWalletUser returns the existing user or creates one.
func (s *UserStore) UpsertWalletUser(_ context.Context, address string) (*domain.WalletUser, error) {
	if address == "" {
		return nil, storage.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.data[address]
	if !ok {
		u = &domain.WalletUser{
			ID:            uuid.NewString(),
			Username:      domain.WalletUsername(address),
			WalletAddress: address,
			AuthType:      "wallet",
		}
		s.data[address] = u
	}
	userCopy := *u
	return &userCopy, nil
}
