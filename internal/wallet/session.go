package wallet

import (
	"context"

	solanago "github.com/gagliardetto/solana-go"

	"solio-donations/internal/domain"
)

// Session is the explicit connection state handed between the adapter,
// the auth bridge and the orchestrator.
type Session struct {
	Handle        domain.SignerHandle
	Authenticated bool
	User          *domain.WalletUser

	provider Provider
}

// NewSession wraps a connected provider.
func NewSession(p Provider) *Session {
	return &Session{
		Handle: domain.SignerHandle{
			Provider:       p.Name(),
			PublicKey:      p.PublicKey(),
			CanSignMessage: p.CanSignMessage(),
			CanSignAndSend: p.CanSignAndSend(),
		},
		provider: p,
	}
}

// Address is the connected account.
func (s *Session) Address() string {
	if s == nil {
		return ""
	}
	return s.Handle.PublicKey
}

// Connected reports whether the provider still holds the connection.
func (s *Session) Connected() bool {
	return s != nil && s.provider != nil && s.provider.IsConnected()
}

// SignMessage asks the wallet to sign message.
func (s *Session) SignMessage(ctx context.Context, message []byte) ([]byte, error) {
	if !s.Connected() {
		return nil, domain.E(domain.KindProvider, "signMessage", errNotConnected)
	}
	if !s.Handle.CanSignMessage {
		return nil, domain.E(domain.KindProvider, "signMessage", errNoMessageSigning)
	}
	return s.provider.SignMessage(ctx, message)
}

// SignAndSend asks the wallet to sign tx and submit it.
func (s *Session) SignAndSend(ctx context.Context, tx *solanago.Transaction, opts SendOptions) (string, error) {
	if !s.Connected() {
		return "", domain.E(domain.KindProvider, "signAndSendTransaction", errNotConnected)
	}
	return s.provider.SignAndSendTransaction(ctx, tx, opts)
}
