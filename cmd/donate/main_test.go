package main

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"solio-donations/internal/config"
	"solio-donations/internal/domain"
)

func TestDonationFlags_Intent(t *testing.T) {
	intent, err := donationFlags{projectID: 7, amount: "0.25", message: "gm", rewardTier: 3, email: "a@b.co"}.intent()
	if err != nil {
		t.Fatalf("intent: %v", err)
	}
	if intent.ProjectID != 7 || intent.AmountSOL.String() != "0.25" || intent.Memo != "gm" {
		t.Fatalf("unexpected intent %+v", intent)
	}
	if intent.RewardTierID == nil || *intent.RewardTierID != 3 {
		t.Fatalf("reward tier = %v, want 3", intent.RewardTierID)
	}

	noTier, err := donationFlags{projectID: 7, amount: "1"}.intent()
	if err != nil {
		t.Fatalf("intent: %v", err)
	}
	if noTier.RewardTierID != nil {
		t.Fatalf("reward tier should be unset")
	}

	if _, err := (donationFlags{projectID: 7, amount: "lots"}).intent(); err == nil {
		t.Fatal("expected error for non-numeric amount")
	}
}

func TestLedgerURL(t *testing.T) {
	tests := []struct {
		info domain.PlatformInfo
		want string
	}{
		{domain.PlatformInfo{RPCURL: "https://rpc.example.com"}, "https://rpc.example.com"},
		{domain.PlatformInfo{UseDevnet: true}, config.DevnetRPCURL},
		{domain.PlatformInfo{}, config.MainnetRPCURL},
	}
	for _, tt := range tests {
		if got := ledgerURL(&tt.info); got != tt.want {
			t.Errorf("ledgerURL(%+v) = %q, want %q", tt.info, got, tt.want)
		}
	}
}

type platformSource struct {
	infos []domain.PlatformInfo
	err   error
	calls int
}

func (p *platformSource) PlatformInfo(context.Context) (*domain.PlatformInfo, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	info := p.infos[len(p.infos)-1]
	return &info, nil
}

func TestPlatformView_ReloadsAfterLogin(t *testing.T) {
	view := newPlatformView(&domain.PlatformInfo{UseDevnet: true})
	src := &platformSource{infos: []domain.PlatformInfo{{RPCURL: "https://member-rpc.example.com", PlatformWallet: "w"}}}

	view.refresher(context.Background(), src, zap.NewNop())(&domain.WalletUser{Username: "donor"})
	if src.calls != 1 {
		t.Fatalf("platform info calls = %d, want 1", src.calls)
	}
	if view.rpcURL != "https://member-rpc.example.com" || view.info.PlatformWallet != "w" {
		t.Fatalf("view not reloaded: %+v", view)
	}

	src.err = errors.New("backend down")
	view.refresher(context.Background(), src, zap.NewNop())(&domain.WalletUser{Username: "donor"})
	if view.rpcURL != "https://member-rpc.example.com" {
		t.Fatalf("failed reload replaced the view: %+v", view)
	}
}
