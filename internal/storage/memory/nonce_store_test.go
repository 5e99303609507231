package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"solio-donations/internal/domain"
	"solio-donations/internal/storage"
)

func TestNonceStore_SingleUse(t *testing.T) {
	store := NewNonceStore()
	ctx := context.Background()
	now := time.Now()

	n := &domain.WalletNonce{Address: "addr", Nonce: "n1", ExpiresAt: now.Add(time.Minute)}
	if err := store.Put(ctx, n); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := store.Consume(ctx, "addr", "n1", now); err != nil {
		t.Fatalf("first Consume failed: %v", err)
	}
	if err := store.Consume(ctx, "addr", "n1", now); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("second Consume: expected ErrNotFound, got %v", err)
	}
}

func TestNonceStore_PutReplaces(t *testing.T) {
	store := NewNonceStore()
	ctx := context.Background()
	now := time.Now()

	store.Put(ctx, &domain.WalletNonce{Address: "addr", Nonce: "old", ExpiresAt: now.Add(time.Minute)})
	store.Put(ctx, &domain.WalletNonce{Address: "addr", Nonce: "new", ExpiresAt: now.Add(time.Minute)})

	if err := store.Consume(ctx, "addr", "old", now); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("replaced nonce accepted: %v", err)
	}
}

func TestNonceStore_Expired(t *testing.T) {
	store := NewNonceStore()
	ctx := context.Background()
	now := time.Now()

	store.Put(ctx, &domain.WalletNonce{Address: "addr", Nonce: "n1", ExpiresAt: now})
	if err := store.Consume(ctx, "addr", "n1", now); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expired nonce accepted: %v", err)
	}
}

func TestUserStore_Upsert(t *testing.T) {
	store := NewUserStore()
	ctx := context.Background()

	first, err := store.UpsertWalletUser(ctx, "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU")
	if err != nil {
		t.Fatalf("UpsertWalletUser failed: %v", err)
	}
	if first.Username != "wallet_7xKXtg2C" || first.AuthType != "wallet" {
		t.Errorf("unexpected user: %+v", first)
	}
	again, _ := store.UpsertWalletUser(ctx, "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU")
	if again.ID != first.ID {
		t.Errorf("second login created a new user")
	}
}
