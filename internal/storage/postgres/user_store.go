package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"solio-donations/internal/domain"
	"solio-donations/internal/storage"
)

// UserStore implements storage.UserStore using PostgreSQL.
type UserStore struct {
	pool *Pool
}

// NewUserStore creates a new UserStore.
func NewUserStore(pool *Pool) *UserStore {
	return &UserStore{pool: pool}
}

var _ storage.UserStore = (*UserStore)(nil)

// UpsertWalletUser returns the user for address, creating it on first login.
func (s *UserStore) UpsertWalletUser(ctx context.Context, address string) (*domain.WalletUser, error) {
	if address == "" {
		return nil, storage.ErrInvalidInput
	}
	query := `
		INSERT INTO users (id, username, wallet_address, auth_type)
		VALUES ($1, $2, $3, 'wallet')
		ON CONFLICT (wallet_address) DO UPDATE SET wallet_address = EXCLUDED.wallet_address
		RETURNING id, username, wallet_address, auth_type
	`
	var u domain.WalletUser
	err := s.pool.QueryRow(ctx, query, uuid.NewString(), domain.WalletUsername(address), address).
		Scan(&u.ID, &u.Username, &u.WalletAddress, &u.AuthType)
	if err != nil {
		return nil, fmt.Errorf("upsert wallet user: %w", err)
	}
	return &u, nil
}
