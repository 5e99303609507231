package wallet

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"solio-donations/internal/domain"
)

var (
	errNotConnected     = errors.New("wallet not connected")
	errNoMessageSigning = errors.New("wallet cannot sign messages")
)

// Environment is where wallets are discovered, the way a page inspects
// injected window objects.
type Environment interface {
	Lookup(name domain.ProviderName) (any, bool)
}

// Installed is an Environment backed by a map of vendor objects.
type Installed map[domain.ProviderName]any

// Lookup returns the raw object registered under name.
func (i Installed) Lookup(name domain.ProviderName) (any, bool) {
	raw, ok := i[name]
	return raw, ok && raw != nil
}

// Adapter connects to wallets and remembers the user's choice.
type Adapter struct {
	env    Environment
	prefs  PreferenceStore
	logger *zap.Logger
}

// NewAdapter creates an adapter. A nil prefs keeps the preference in memory.
func NewAdapter(env Environment, prefs PreferenceStore, logger *zap.Logger) *Adapter {
	if prefs == nil {
		prefs = &MemoryPreferences{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{env: env, prefs: prefs, logger: logger.Named("wallet")}
}

func (a *Adapter) provider(name domain.ProviderName) (Provider, error) {
	raw, ok := a.env.Lookup(name)
	if !ok {
		return nil, domain.E(domain.KindNotInstalled, "connect", errors.New(string(name)+" is not installed"))
	}
	return Normalize(name, raw)
}

// ListAvailable checks every supported provider. PublicKey is empty for
// providers that are installed but not connected.
func (a *Adapter) ListAvailable() []domain.SignerHandle {
	var out []domain.SignerHandle
	for _, name := range domain.SupportedProviders {
		p, err := a.provider(name)
		if err != nil {
			if domain.KindOf(err) != domain.KindNotInstalled {
				a.logger.Warn("skipping malformed wallet", zap.String("provider", string(name)), zap.Error(err))
			}
			continue
		}
		out = append(out, domain.SignerHandle{
			Provider:       name,
			PublicKey:      p.PublicKey(),
			CanSignMessage: p.CanSignMessage(),
			CanSignAndSend: p.CanSignAndSend(),
		})
	}
	return out
}

// Connect asks the user to approve a connection to name and remembers
// the choice on success.
func (a *Adapter) Connect(ctx context.Context, name domain.ProviderName) (*Session, error) {
	return a.connect(ctx, name, false)
}

func (a *Adapter) connect(ctx context.Context, name domain.ProviderName, silent bool) (*Session, error) {
	p, err := a.provider(name)
	if err != nil {
		return nil, err
	}
	pk, err := p.Connect(ctx, silent)
	if err != nil {
		return nil, err
	}
	sess := NewSession(p)
	sess.Handle.PublicKey = pk

	if err := a.prefs.Save(name); err != nil {
		a.logger.Warn("failed to save wallet preference", zap.Error(err))
	}
	a.logger.Info("wallet connected",
		zap.String("provider", string(name)),
		zap.String("address", pk),
		zap.Bool("silent", silent),
	)
	return sess, nil
}

// EnsureConnected returns a connected session without prompting when it
// can: the current session if still live, else a silent reconnect to the
// preferred (or remembered) provider. Only when interactive is set does it
// fall back to an explicit connect. A remembered provider that is no
// longer installed yields false.
func (a *Adapter) EnsureConnected(ctx context.Context, current *Session, preferred domain.ProviderName, interactive bool) (*Session, bool) {
	if current.Connected() {
		return current, true
	}

	name := preferred
	if name == "" {
		stored, err := a.prefs.Load()
		if err != nil {
			a.logger.Warn("failed to read wallet preference", zap.Error(err))
		}
		name = stored
	}

	if name != "" {
		if _, ok := a.env.Lookup(name); !ok {
			a.logger.Info("remembered wallet is not installed", zap.String("provider", string(name)))
			return nil, false
		}
		sess, err := a.connect(ctx, name, true)
		if err == nil {
			return sess, true
		}
		a.logger.Debug("silent reconnect failed", zap.String("provider", string(name)), zap.Error(err))
		if !interactive {
			return nil, false
		}
		sess, err = a.connect(ctx, name, false)
		if err != nil {
			a.logger.Info("wallet connect failed", zap.String("provider", string(name)), zap.Error(err))
			return nil, false
		}
		return sess, true
	}

	if !interactive {
		return nil, false
	}
	available := a.ListAvailable()
	if len(available) == 0 {
		return nil, false
	}
	sess, err := a.connect(ctx, available[0].Provider, false)
	if err != nil {
		a.logger.Info("wallet connect failed", zap.String("provider", string(available[0].Provider)), zap.Error(err))
		return nil, false
	}
	return sess, true
}

// Disconnect releases the session and forgets the remembered provider.
// Provider-side failures are logged and otherwise ignored.
func (a *Adapter) Disconnect(ctx context.Context, sess *Session) {
	if sess != nil && sess.provider != nil {
		if err := sess.provider.Disconnect(ctx); err != nil {
			a.logger.Warn("wallet disconnect failed", zap.Error(err))
		}
		sess.Authenticated = false
		sess.User = nil
	}
	if err := a.prefs.Clear(); err != nil {
		a.logger.Warn("failed to clear wallet preference", zap.Error(err))
	}
}
