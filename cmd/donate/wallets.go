package main

import (
	"os"

	"solio-donations/internal/config"
	"solio-donations/internal/domain"
	"solio-donations/internal/wallet"
	"solio-donations/internal/wallet/vendor"
)

// installedWallets builds a wallet for every provider with a keypair
// configured. Approval prompts go to the terminal unless --yes is set.
func installedWallets(cfg config.ClientConfig, sender vendor.Sender) (wallet.Installed, error) {
	var approver vendor.Approver = vendor.NewPromptApprover(os.Stdin, os.Stdout)
	if cfg.AutoApprove {
		approver = vendor.AutoApprove()
	}

	installed := wallet.Installed{}
	for _, name := range domain.SupportedProviders {
		path := cfg.Keypairs[string(name)]
		if path == "" {
			continue
		}
		key, err := vendor.LoadKey(path)
		if err != nil {
			return nil, err
		}
		vc := vendor.Config{Key: key, Approver: approver, Sender: sender, Trusted: cfg.Trusted}
		switch name {
		case domain.ProviderPhantom:
			installed[name] = vendor.NewPhantom(vc)
		case domain.ProviderSolflare:
			installed[name] = vendor.NewSolflare(vc)
		case domain.ProviderBackpack:
			installed[name] = vendor.NewBackpack(vc)
		}
	}
	return installed, nil
}
