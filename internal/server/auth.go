package server

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"go.uber.org/zap"

	"solio-donations/internal/domain"
	"solio-donations/internal/observability"
	"solio-donations/internal/solana"
	"solio-donations/internal/storage"
)

// AuthService runs the wallet sign-in handshake.
type AuthService struct {
	nonces   storage.NonceStore
	users    storage.UserStore
	sessions *Sessions
	platform string
	nonceTTL time.Duration
	now      func() time.Time
	logger   *zap.Logger
	metrics  *observability.Metrics
}

// NewAuthService creates the sign-in service.
func NewAuthService(nonces storage.NonceStore, users storage.UserStore, sessions *Sessions, platform string, nonceTTL time.Duration, logger *zap.Logger, metrics *observability.Metrics) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		nonces:   nonces,
		users:    users,
		sessions: sessions,
		platform: platform,
		nonceTTL: nonceTTL,
		now:      time.Now,
		logger:   logger.Named("auth"),
		metrics:  metrics,
	}
}

// IssueNonce creates a fresh challenge for address, replacing any
// outstanding one.
func (s *AuthService) IssueNonce(ctx context.Context, address string) (*domain.WalletNonce, error) {
	address = strings.TrimSpace(address)
	if address == "" || solana.ValidateAddress(address) != nil {
		return nil, badRequest("Invalid wallet address")
	}

	nonceBytes := make([]byte, 32)
	if _, err := rand.Read(nonceBytes); err != nil {
		return nil, internal("Failed to generate nonce", err)
	}
	nonce := hex.EncodeToString(nonceBytes)

	n := &domain.WalletNonce{
		Address:   address,
		Nonce:     nonce,
		Message:   domain.AuthMessage(s.platform, nonce),
		ExpiresAt: s.now().Add(s.nonceTTL),
	}
	if err := s.nonces.Put(ctx, n); err != nil {
		return nil, internal("Failed to generate nonce", err)
	}

	s.metrics.RecordNonceIssued()
	s.logger.Debug("nonce issued", zap.String("wallet", address))
	return n, nil
}

// VerifyWallet consumes the nonce, checks the signature over the
// challenge message and returns the user with a signed session token.
func (s *AuthService) VerifyWallet(ctx context.Context, address, signature, nonce string) (*domain.WalletUser, string, time.Time, error) {
	address = strings.TrimSpace(address)
	if address == "" || signature == "" || nonce == "" {
		return nil, "", time.Time{}, badRequest("Missing required data")
	}

	if err := s.nonces.Consume(ctx, address, nonce, s.now()); err != nil {
		s.metrics.RecordLogin("expired_nonce")
		if errors.Is(err, storage.ErrNotFound) {
			return nil, "", time.Time{}, badRequest("Invalid or expired nonce")
		}
		return nil, "", time.Time{}, internal("Authentication failed", err)
	}

	if !verifySignature(address, domain.AuthMessage(s.platform, nonce), signature) {
		s.metrics.RecordLogin("invalid_signature")
		s.logger.Info("wallet signature rejected", zap.String("wallet", address))
		return nil, "", time.Time{}, badRequest("Invalid signature")
	}

	user, err := s.users.UpsertWalletUser(ctx, address)
	if err != nil {
		return nil, "", time.Time{}, internal("Authentication failed", err)
	}
	token, expires, err := s.sessions.Issue(user)
	if err != nil {
		return nil, "", time.Time{}, internal("Authentication failed", err)
	}

	s.metrics.RecordLogin("success")
	s.logger.Info("wallet login", zap.String("wallet", address), zap.String("user_id", user.ID))
	return user, token, expires, nil
}

// verifySignature checks an ed25519 signature given in base58, or base64
// as some wallets encode it.
func verifySignature(address, message, signature string) bool {
	pub, err := solanago.PublicKeyFromBase58(address)
	if err != nil {
		return false
	}
	var sig solanago.Signature
	raw, err := base58.Decode(signature)
	if err != nil || len(raw) != len(sig) {
		raw, err = base64.StdEncoding.DecodeString(signature)
		if err != nil || len(raw) != len(sig) {
			return false
		}
	}
	copy(sig[:], raw)
	return sig.Verify(pub, []byte(message))
}
