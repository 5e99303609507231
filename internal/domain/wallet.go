package domain

import (
	"fmt"
	"strings"
	"time"
)

// ProviderName identifies a wallet vendor.
type ProviderName string

const (
	ProviderPhantom  ProviderName = "phantom"
	ProviderSolflare ProviderName = "solflare"
	ProviderBackpack ProviderName = "backpack"
)

// SupportedProviders lists providers in detection order.
var SupportedProviders = []ProviderName{ProviderPhantom, ProviderSolflare, ProviderBackpack}

// ParseProviderName accepts a provider name in any case.
func ParseProviderName(s string) (ProviderName, error) {
	name := ProviderName(strings.ToLower(strings.TrimSpace(s)))
	for _, p := range SupportedProviders {
		if p == name {
			return p, nil
		}
	}
	return "", fmt.Errorf("unsupported wallet provider %q", s)
}

// SignerHandle is a live connection to a wallet.
type SignerHandle struct {
	Provider       ProviderName
	PublicKey      string
	CanSignMessage bool
	CanSignAndSend bool
}

// AuthChallenge is a nonce-bearing message issued by the backend for one
// wallet address.
type AuthChallenge struct {
	Address   string
	Nonce     string
	Message   string
	ExpiresAt time.Time
}

// Expired reports whether the challenge is no longer usable at now.
func (c AuthChallenge) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// WalletUser is the account the backend associates with a wallet login.
type WalletUser struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	WalletAddress string `json:"wallet_address"`
	AuthType      string `json:"auth_type"`
}

// WalletNonce is the server-side record behind an AuthChallenge.
type WalletNonce struct {
	Address   string    `json:"address"`
	Nonce     string    `json:"nonce"`
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AuthMessage is the exact text a wallet signs to log in.
func AuthMessage(platform, nonce string) string {
	return fmt.Sprintf("Sign this message to authenticate with %s.\n\nNonce: %s", platform, nonce)
}

// WalletUsername is the generated username for a wallet-only account.
func WalletUsername(address string) string {
	if len(address) > 8 {
		address = address[:8]
	}
	return "wallet_" + address
}
