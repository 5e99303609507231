package server

import (
	"errors"
	"testing"
	"time"

	"solio-donations/internal/domain"
)

func TestSessions_IssueAndParse(t *testing.T) {
	s := NewSessions([]byte("secret"), time.Hour)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	user := &domain.WalletUser{ID: "u-1", Username: "wallet_9xQeWvG8", WalletAddress: "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin"}
	token, expires, err := s.Issue(user)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !expires.Equal(now.Add(time.Hour)) {
		t.Fatalf("expires = %v, want %v", expires, now.Add(time.Hour))
	}

	claims, err := s.Parse(token)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.Subject != user.WalletAddress || claims.UserID != "u-1" || claims.Username != user.Username {
		t.Fatalf("unexpected claims %+v", claims)
	}

	now = now.Add(2 * time.Hour)
	if _, err := s.Parse(token); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expired token: got %v, want ErrInvalidSession", err)
	}
}

func TestSessions_RejectsForeignTokens(t *testing.T) {
	s := NewSessions([]byte("secret"), time.Hour)
	other := NewSessions([]byte("another-secret"), time.Hour)

	token, _, err := other.Issue(&domain.WalletUser{ID: "u-1", WalletAddress: "addr"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := s.Parse(token); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("got %v, want ErrInvalidSession", err)
	}
	if _, err := s.Parse("not.a.token"); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("got %v, want ErrInvalidSession", err)
	}
}
