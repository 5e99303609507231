// Package wallet discovers installed wallet providers and normalizes their
// vendor-specific shapes behind one capability surface.
package wallet

import (
	"context"
	"errors"
	"fmt"

	solanago "github.com/gagliardetto/solana-go"

	"solio-donations/internal/domain"
	"solio-donations/internal/solana"
	"solio-donations/internal/wallet/vendor"
)

// SendOptions configures a combined sign-and-send call.
type SendOptions struct {
	solana.SendOptions

	// OnSigned runs once the user approved and the transaction was signed,
	// before it is handed to the network.
	OnSigned func()
}

// Provider is the vendor-neutral capability surface. Every error it
// returns is a *domain.Error, or a context error.
type Provider interface {
	Name() domain.ProviderName
	Connect(ctx context.Context, onlyIfTrusted bool) (string, error)
	Disconnect(ctx context.Context) error
	IsConnected() bool
	PublicKey() string
	CanSignMessage() bool
	CanSignAndSend() bool
	SignMessage(ctx context.Context, message []byte) ([]byte, error)
	SignAndSendTransaction(ctx context.Context, tx *solanago.Transaction, opts SendOptions) (string, error)
}

// Normalize wraps a raw vendor object found under name.
func Normalize(name domain.ProviderName, raw any) (Provider, error) {
	switch v := raw.(type) {
	case *vendor.Phantom:
		if name == domain.ProviderPhantom && v.IsPhantom() {
			return &phantom{w: v}, nil
		}
	case *vendor.Solflare:
		if name == domain.ProviderSolflare && v.IsSolflare() {
			return &solflare{w: v}, nil
		}
	case *vendor.Backpack:
		if name == domain.ProviderBackpack && v.IsBackpack() {
			return &backpack{w: v}, nil
		}
	}
	return nil, domain.E(domain.KindProvider, "normalize", fmt.Errorf("object under %q is not a %s wallet (%T)", name, name, raw))
}

func keyString(pk *solanago.PublicKey) string {
	if pk == nil {
		return ""
	}
	return pk.String()
}

func sendOptions(opts SendOptions) vendor.SendOptions {
	return vendor.SendOptions{SendOptions: opts.SendOptions, BeforeSubmit: opts.OnSigned}
}

// classify maps vendor failures onto the error taxonomy.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var pe *vendor.ProviderError
	if errors.As(err, &pe) {
		switch pe.Code {
		case vendor.CodeUserRejected:
			return domain.E(domain.KindUserRejected, op, err)
		case vendor.CodeTransactionRejected:
			return domain.E(domain.KindSubmission, op, err)
		default:
			return domain.E(domain.KindProvider, op, err)
		}
	}

	switch {
	case errors.Is(err, vendor.ErrRejected):
		return domain.E(domain.KindUserRejected, op, err)
	case errors.Is(err, vendor.ErrSendFailed):
		return domain.E(domain.KindSubmission, op, err)
	default:
		return domain.E(domain.KindProvider, op, err)
	}
}

type phantom struct {
	w *vendor.Phantom
}

func (p *phantom) Name() domain.ProviderName { return domain.ProviderPhantom }
func (p *phantom) IsConnected() bool         { return p.w.IsConnected() }
func (p *phantom) PublicKey() string         { return keyString(p.w.PublicKey()) }
func (p *phantom) CanSignMessage() bool      { return true }
func (p *phantom) CanSignAndSend() bool      { return true }

func (p *phantom) Connect(ctx context.Context, onlyIfTrusted bool) (string, error) {
	res, err := p.w.Connect(ctx, &vendor.PhantomConnectOptions{OnlyIfTrusted: onlyIfTrusted})
	if err != nil {
		return "", classify("connect", err)
	}
	return res.PublicKey.String(), nil
}

func (p *phantom) Disconnect(ctx context.Context) error {
	return classify("disconnect", p.w.Disconnect(ctx))
}

func (p *phantom) SignMessage(ctx context.Context, message []byte) ([]byte, error) {
	res, err := p.w.SignMessage(ctx, message, "utf8")
	if err != nil {
		return nil, classify("signMessage", err)
	}
	return res.Signature, nil
}

func (p *phantom) SignAndSendTransaction(ctx context.Context, tx *solanago.Transaction, opts SendOptions) (string, error) {
	o := sendOptions(opts)
	res, err := p.w.SignAndSendTransaction(ctx, tx, &o)
	if err != nil {
		return "", classify("signAndSendTransaction", err)
	}
	return res.Signature, nil
}

type solflare struct {
	w *vendor.Solflare
}

func (s *solflare) Name() domain.ProviderName { return domain.ProviderSolflare }
func (s *solflare) IsConnected() bool         { return s.w.IsConnected() }
func (s *solflare) PublicKey() string         { return keyString(s.w.PublicKey()) }
func (s *solflare) CanSignMessage() bool      { return true }
func (s *solflare) CanSignAndSend() bool      { return true }

// Connect reads the key from the provider since connect only resolves a bool.
func (s *solflare) Connect(ctx context.Context, onlyIfTrusted bool) (string, error) {
	ok, err := s.w.Connect(ctx, onlyIfTrusted)
	if err != nil {
		return "", classify("connect", err)
	}
	if !ok {
		return "", domain.E(domain.KindProvider, "connect", vendor.ErrNotTrusted)
	}
	pk := keyString(s.w.PublicKey())
	if pk == "" {
		return "", domain.E(domain.KindProvider, "connect", errors.New("connected without a public key"))
	}
	return pk, nil
}

func (s *solflare) Disconnect(ctx context.Context) error {
	return classify("disconnect", s.w.Disconnect(ctx))
}

func (s *solflare) SignMessage(ctx context.Context, message []byte) ([]byte, error) {
	sig, err := s.w.SignMessage(ctx, message, "utf8")
	if err != nil {
		return nil, classify("signMessage", err)
	}
	return sig, nil
}

func (s *solflare) SignAndSendTransaction(ctx context.Context, tx *solanago.Transaction, opts SendOptions) (string, error) {
	sig, err := s.w.SignAndSendTransaction(ctx, tx, sendOptions(opts))
	if err != nil {
		return "", classify("signAndSendTransaction", err)
	}
	return sig, nil
}

type backpack struct {
	w *vendor.Backpack
}

func (b *backpack) Name() domain.ProviderName { return domain.ProviderBackpack }
func (b *backpack) IsConnected() bool         { return b.w.IsConnected() }
func (b *backpack) PublicKey() string         { return keyString(b.w.PublicKey()) }
func (b *backpack) CanSignMessage() bool      { return true }
func (b *backpack) CanSignAndSend() bool      { return true }

func (b *backpack) Connect(ctx context.Context, onlyIfTrusted bool) (string, error) {
	if err := b.w.Connect(ctx, onlyIfTrusted); err != nil {
		return "", classify("connect", err)
	}
	pk := keyString(b.w.PublicKey())
	if pk == "" {
		return "", domain.E(domain.KindProvider, "connect", errors.New("connected without a public key"))
	}
	return pk, nil
}

func (b *backpack) Disconnect(ctx context.Context) error {
	return classify("disconnect", b.w.Disconnect(ctx))
}

func (b *backpack) SignMessage(ctx context.Context, message []byte) ([]byte, error) {
	res, err := b.w.SignMessage(ctx, message)
	if err != nil {
		return nil, classify("signMessage", err)
	}
	return res.Signature[:], nil
}

func (b *backpack) SignAndSendTransaction(ctx context.Context, tx *solanago.Transaction, opts SendOptions) (string, error) {
	sig, err := b.w.SignAndSendTransaction(ctx, tx, sendOptions(opts))
	if err != nil {
		return "", classify("signAndSendTransaction", err)
	}
	return sig.String(), nil
}
