package auth

import (
	"context"
	"crypto/ed25519"
	"errors"
	"net/http"
	"testing"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solio-donations/internal/backend"
	"solio-donations/internal/domain"
	"solio-donations/internal/wallet"
	"solio-donations/internal/wallet/vendor"
)

// fakeBackend verifies signatures the way the real backend does.
type fakeBackend struct {
	nonces    map[string]string
	nonceErr  error
	verifyErr error
	verified  int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{nonces: map[string]string{}}
}

func (f *fakeBackend) WalletNonce(_ context.Context, address string) (*backend.NonceResponse, error) {
	if f.nonceErr != nil {
		return nil, f.nonceErr
	}
	nonce := "n-" + address[:6]
	f.nonces[address] = nonce
	return &backend.NonceResponse{Nonce: nonce, Message: domain.AuthMessage("Solio", nonce)}, nil
}

func (f *fakeBackend) WalletVerify(_ context.Context, address, signature, nonce string) (*domain.WalletUser, error) {
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	if f.nonces[address] != nonce {
		return nil, &backend.APIError{Status: http.StatusBadRequest, Message: "Invalid or expired nonce"}
	}
	delete(f.nonces, address)

	pub, err := base58.Decode(address)
	if err != nil {
		return nil, err
	}
	sig, err := base58.Decode(signature)
	if err != nil || !ed25519.Verify(pub, []byte(domain.AuthMessage("Solio", nonce)), sig) {
		return nil, &backend.APIError{Status: http.StatusBadRequest, Message: "Invalid signature"}
	}
	f.verified++
	return &domain.WalletUser{ID: "1", Username: "wallet_" + address[:8], WalletAddress: address, AuthType: "wallet"}, nil
}

func connect(t *testing.T, name domain.ProviderName, raw any) *wallet.Session {
	t.Helper()
	a := wallet.NewAdapter(wallet.Installed{name: raw}, nil, nil)
	sess, err := a.Connect(context.Background(), name)
	require.NoError(t, err)
	return sess
}

func newKey(t *testing.T) solanago.PrivateKey {
	t.Helper()
	key, err := solanago.NewRandomPrivateKey()
	require.NoError(t, err)
	return key
}

func TestLogin_EveryVendorShape(t *testing.T) {
	sessions := map[domain.ProviderName]*wallet.Session{
		domain.ProviderPhantom:  connect(t, domain.ProviderPhantom, vendor.NewPhantom(vendor.Config{Key: newKey(t), Approver: vendor.AutoApprove()})),
		domain.ProviderSolflare: connect(t, domain.ProviderSolflare, vendor.NewSolflare(vendor.Config{Key: newKey(t), Approver: vendor.AutoApprove()})),
		domain.ProviderBackpack: connect(t, domain.ProviderBackpack, vendor.NewBackpack(vendor.Config{Key: newKey(t), Approver: vendor.AutoApprove()})),
	}

	for name, sess := range sessions {
		t.Run(string(name), func(t *testing.T) {
			fb := newFakeBackend()
			refreshed := 0
			b := NewBridge(fb, WithRefresh(func(*domain.WalletUser) { refreshed++ }))

			user, err := b.Login(context.Background(), sess)
			require.NoError(t, err)
			assert.Equal(t, sess.Address(), user.WalletAddress)
			assert.True(t, sess.Authenticated)
			assert.Equal(t, Authenticated, b.State())
			assert.Equal(t, 1, refreshed)

			_, err = b.Login(context.Background(), sess)
			require.NoError(t, err)
			assert.Equal(t, 1, fb.verified, "already authenticated sessions skip the handshake")
		})
	}
}

func TestStateTransitions(t *testing.T) {
	sess := connect(t, domain.ProviderPhantom, vendor.NewPhantom(vendor.Config{Key: newKey(t), Approver: vendor.AutoApprove()}))
	b := NewBridge(newFakeBackend())
	ctx := context.Background()
	assert.Equal(t, Unauthenticated, b.State())

	ch, err := b.RequestChallenge(ctx, sess.Address())
	require.NoError(t, err)
	assert.Equal(t, ChallengeIssued, b.State())
	assert.Contains(t, ch.Message, ch.Nonce)

	_, err = b.Verify(ctx, sess.Address(), make([]byte, 64), ch.Nonce)
	assert.ErrorIs(t, err, domain.ErrInvalidSignature)
	assert.Equal(t, Unauthenticated, b.State())
}

func TestSignChallenge_Rejected(t *testing.T) {
	sess := connect(t, domain.ProviderSolflare, vendor.NewSolflare(vendor.Config{Key: newKey(t), Approver: &vendor.Recorder{Next: vendor.ApproverFunc(
		func(_ context.Context, req vendor.Request) (bool, error) {
			return req.Kind == vendor.RequestConnect, nil
		},
	)}}))
	fb := newFakeBackend()
	b := NewBridge(fb)

	_, err := b.Login(context.Background(), sess)
	assert.ErrorIs(t, err, domain.ErrUserRejected)
	assert.Equal(t, Unauthenticated, b.State())
	assert.False(t, sess.Authenticated)
	assert.Zero(t, fb.verified)
}

func TestExpiredChallenge(t *testing.T) {
	sess := connect(t, domain.ProviderBackpack, vendor.NewBackpack(vendor.Config{Key: newKey(t), Approver: vendor.AutoApprove()}))
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	b := NewBridge(newFakeBackend(), WithChallengeTTL(time.Minute), WithClock(func() time.Time { return now }))
	ctx := context.Background()

	ch, err := b.RequestChallenge(ctx, sess.Address())
	require.NoError(t, err)
	sig, err := b.SignChallenge(ctx, sess, ch)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = b.Verify(ctx, sess.Address(), sig, ch.Nonce)
	assert.ErrorIs(t, err, domain.ErrExpiredNonce)
	assert.Equal(t, Unauthenticated, b.State())

	_, err = b.SignChallenge(ctx, sess, ch)
	assert.ErrorIs(t, err, domain.ErrExpiredNonce)
}

func TestVerify_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"reused nonce", &backend.APIError{Status: 400, Message: "Invalid or expired nonce"}, domain.ErrExpiredNonce},
		{"bad signature", &backend.APIError{Status: 400, Message: "Invalid signature"}, domain.ErrInvalidSignature},
		{"server", &backend.APIError{Status: 500, Message: "Authentication failed"}, domain.ErrServer},
		{"rate limited", &backend.APIError{Status: 429, Message: "Too Many Requests"}, domain.ErrServer},
		{"network", errors.New("dial tcp: connection refused"), domain.ErrNetwork},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb := newFakeBackend()
			fb.verifyErr = tt.err
			b := NewBridge(fb)
			_, err := b.Verify(context.Background(), "addr", make([]byte, 64), "n")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRequestChallenge_Errors(t *testing.T) {
	fb := newFakeBackend()
	fb.nonceErr = errors.New("connection reset")
	b := NewBridge(fb)
	_, err := b.RequestChallenge(context.Background(), "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin")
	assert.ErrorIs(t, err, domain.ErrNetwork)

	fb.nonceErr = &backend.APIError{Status: 400, Message: "Invalid wallet address"}
	_, err = b.RequestChallenge(context.Background(), "short")
	assert.ErrorIs(t, err, domain.ErrValidation)

	fb.nonceErr = &backend.APIError{Status: 503, Message: "Service Unavailable"}
	_, err = b.RequestChallenge(context.Background(), "short")
	assert.ErrorIs(t, err, domain.ErrServer)
	assert.Equal(t, Unauthenticated, b.State())
}
