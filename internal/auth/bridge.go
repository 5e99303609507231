// Package auth turns a connected wallet into an authenticated backend
// session with a nonce challenge-response handshake.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"solio-donations/internal/backend"
	"solio-donations/internal/domain"
	"solio-donations/internal/observability"
	"solio-donations/internal/solana"
	"solio-donations/internal/wallet"
)

// State is the handshake position.
type State int

const (
	Unauthenticated State = iota
	ChallengeIssued
	Authenticated
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case ChallengeIssued:
		return "challenge_issued"
	case Authenticated:
		return "authenticated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Backend is the subset of the backend client the bridge needs.
type Backend interface {
	WalletNonce(ctx context.Context, address string) (*backend.NonceResponse, error)
	WalletVerify(ctx context.Context, address, signature, nonce string) (*domain.WalletUser, error)
}

// Signer signs a challenge message. *wallet.Session implements it.
type Signer interface {
	SignMessage(ctx context.Context, message []byte) ([]byte, error)
}

// Bridge runs the handshake for one wallet address at a time.
type Bridge struct {
	backend Backend
	ttl     time.Duration
	now     func() time.Time
	onLogin func(*domain.WalletUser)
	logger  *zap.Logger
	metrics *observability.Metrics

	mu        sync.Mutex
	state     State
	challenge *domain.AuthChallenge
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithChallengeTTL sets how long an issued challenge is considered usable.
func WithChallengeTTL(d time.Duration) Option {
	return func(b *Bridge) { b.ttl = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *Bridge) { b.now = now }
}

// WithRefresh registers the hook run after a successful login. The
// session changes what the backend serves, so callers reload their state.
func WithRefresh(fn func(*domain.WalletUser)) Option {
	return func(b *Bridge) { b.onLogin = fn }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *Bridge) { b.logger = l.Named("auth") }
}

// WithMetrics records login results.
func WithMetrics(m *observability.Metrics) Option {
	return func(b *Bridge) { b.metrics = m }
}

// NewBridge creates a bridge in the Unauthenticated state.
func NewBridge(be Backend, opts ...Option) *Bridge {
	b := &Bridge{
		backend: be,
		ttl:     10 * time.Minute,
		now:     time.Now,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// State returns the current handshake state.
func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Bridge) reset() {
	b.mu.Lock()
	b.state = Unauthenticated
	b.challenge = nil
	b.mu.Unlock()
}

// RequestChallenge asks the backend for a nonce bound to address.
func (b *Bridge) RequestChallenge(ctx context.Context, address string) (*domain.AuthChallenge, error) {
	resp, err := b.backend.WalletNonce(ctx, address)
	if err != nil {
		b.reset()
		return nil, classify("requestChallenge", err)
	}
	if resp.Nonce == "" || !strings.Contains(resp.Message, resp.Nonce) {
		b.reset()
		return nil, domain.E(domain.KindServer, "requestChallenge", errors.New("challenge message does not embed the nonce"))
	}

	ch := &domain.AuthChallenge{
		Address:   address,
		Nonce:     resp.Nonce,
		Message:   resp.Message,
		ExpiresAt: b.now().Add(b.ttl),
	}
	b.mu.Lock()
	b.state = ChallengeIssued
	b.challenge = ch
	b.mu.Unlock()
	return ch, nil
}

// SignChallenge has the wallet sign the challenge message.
func (b *Bridge) SignChallenge(ctx context.Context, signer Signer, ch *domain.AuthChallenge) ([]byte, error) {
	if ch.Expired(b.now()) {
		b.reset()
		return nil, domain.E(domain.KindExpiredNonce, "signChallenge", errors.New("challenge expired before signing"))
	}
	sig, err := signer.SignMessage(ctx, []byte(ch.Message))
	if err != nil {
		b.reset()
		return nil, err
	}
	return sig, nil
}

// Verify sends the signature, base58 encoded, with the nonce it answers.
func (b *Bridge) Verify(ctx context.Context, address string, signature []byte, nonce string) (*domain.WalletUser, error) {
	b.mu.Lock()
	ch := b.challenge
	b.mu.Unlock()
	if ch != nil && ch.Nonce == nonce && ch.Expired(b.now()) {
		b.reset()
		return nil, domain.E(domain.KindExpiredNonce, "verify", errors.New("challenge expired"))
	}

	user, err := b.backend.WalletVerify(ctx, address, solana.EncodeSignature(signature), nonce)
	if err != nil {
		b.reset()
		return nil, classify("verify", err)
	}

	b.mu.Lock()
	b.state = Authenticated
	b.challenge = nil
	b.mu.Unlock()
	return user, nil
}

// Login runs the whole handshake for the session's wallet and marks the
// session authenticated.
func (b *Bridge) Login(ctx context.Context, sess *wallet.Session) (*domain.WalletUser, error) {
	if sess.Authenticated && b.State() == Authenticated {
		return sess.User, nil
	}
	address := sess.Address()

	user, err := b.login(ctx, sess, address)
	if err != nil {
		b.logger.Info("wallet login failed", zap.String("address", address), zap.Error(err))
		b.metrics.RecordLogin(domain.KindOf(err).String())
		return nil, err
	}

	sess.Authenticated = true
	sess.User = user
	b.logger.Info("wallet login succeeded", zap.String("address", address), zap.String("user", user.Username))
	b.metrics.RecordLogin("ok")
	if b.onLogin != nil {
		b.onLogin(user)
	}
	return user, nil
}

func (b *Bridge) login(ctx context.Context, sess *wallet.Session, address string) (*domain.WalletUser, error) {
	ch, err := b.RequestChallenge(ctx, address)
	if err != nil {
		return nil, err
	}
	sig, err := b.SignChallenge(ctx, sess, ch)
	if err != nil {
		return nil, err
	}
	return b.Verify(ctx, address, sig, ch.Nonce)
}

// classify interprets backend failures for the auth endpoints.
func classify(op string, err error) error {
	err = backend.Classify(op, err)
	var ae *backend.APIError
	if !errors.As(err, &ae) || domain.KindOf(err) != domain.KindUnknown {
		return err
	}
	msg := strings.ToLower(ae.Message)
	switch {
	case strings.Contains(msg, "nonce") || strings.Contains(msg, "expired"):
		return domain.E(domain.KindExpiredNonce, op, err)
	case strings.Contains(msg, "signature"):
		return domain.E(domain.KindInvalidSignature, op, err)
	case ae.Status == 400 && op == "verify":
		return domain.E(domain.KindInvalidSignature, op, err)
	case ae.Status == 400 && strings.Contains(msg, "address"):
		return domain.E(domain.KindValidation, op, &domain.ValidationError{Field: "wallet_address", Reason: ae.Message})
	default:
		return domain.E(domain.KindServer, op, err)
	}
}
