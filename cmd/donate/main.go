// Package main is the donor-side CLI: it connects a wallet, optionally
// signs in, and drives one donation through prepare, sign, send, confirm
// and verify.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"solio-donations/internal/auth"
	"solio-donations/internal/backend"
	"solio-donations/internal/config"
	"solio-donations/internal/confirm"
	"solio-donations/internal/domain"
	"solio-donations/internal/logging"
	"solio-donations/internal/observability"
	"solio-donations/internal/orchestrator"
	"solio-donations/internal/reconcile"
	"solio-donations/internal/solana"
	"solio-donations/internal/wallet"
)

type donationFlags struct {
	projectID  int64
	amount     string
	message    string
	rewardTier int64
	email      string
}

func main() {
	config.LoadEnv()

	var cfg config.ClientConfig
	var df donationFlags
	fs := flag.NewFlagSet("donate", flag.ExitOnError)
	cfg.RegisterFlags(fs)
	fs.Int64Var(&df.projectID, "project", 0, "Project to donate to")
	fs.StringVar(&df.amount, "amount", "", "Amount in SOL, at most 9 decimal places")
	fs.StringVar(&df.message, "message", "", "Optional message, sent as an on-chain memo")
	fs.Int64Var(&df.rewardTier, "reward-tier", 0, "Reward tier to claim")
	fs.StringVar(&df.email, "email", "", "Email for reward delivery")
	_ = fs.Parse(os.Args[1:])

	logger, _, err := logging.New(cfg.Log.Logging())
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(2)
	}
	intent, err := df.intent()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, cancelling donation", zap.Stringer("signal", sig))
		cancel()
		// A second signal exits immediately.
		<-sigCh
		os.Exit(1)
	}()

	if err := run(ctx, cfg, intent, logger); err != nil {
		os.Exit(1)
	}
}

func (f donationFlags) intent() (domain.TransferIntent, error) {
	amount, err := decimal.NewFromString(f.amount)
	if err != nil {
		return domain.TransferIntent{}, fmt.Errorf("invalid --amount %q", f.amount)
	}
	intent := domain.TransferIntent{
		ProjectID:  f.projectID,
		AmountSOL:  amount,
		Memo:       f.message,
		DonorEmail: f.email,
	}
	if f.rewardTier > 0 {
		tier := f.rewardTier
		intent.RewardTierID = &tier
	}
	return intent, nil
}

func run(ctx context.Context, cfg config.ClientConfig, intent domain.TransferIntent, logger *zap.Logger) error {
	metrics := observability.NewMetrics("solio", prometheus.DefaultRegisterer)
	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, logger)
	}

	opts := []backend.Option{
		backend.WithTimeout(cfg.RequestTimeout),
		backend.WithLogger(logger),
		backend.WithMetrics(metrics),
	}
	if cfg.CircuitBreaker {
		opts = append(opts, backend.WithCircuitBreaker(5, 30*time.Second))
	}
	be, err := backend.New(cfg.BackendURL, opts...)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}

	info, err := be.PlatformInfo(ctx)
	if err != nil {
		err = backend.Classify("platformInfo", err)
		fmt.Fprintln(os.Stderr, domain.Describe(err))
		return err
	}
	view := newPlatformView(info)
	walletRPC := cfg.WalletRPCURL
	if walletRPC == "" {
		walletRPC = view.rpcURL
	}
	dial := func(info *domain.PlatformInfo) (orchestrator.Ledger, error) {
		return solana.NewHTTPClient(ledgerURL(info), solana.WithObserver(metrics.RecordRPCLatency)), nil
	}

	installed, err := installedWallets(cfg, solana.NewHTTPClient(walletRPC, solana.WithObserver(metrics.RecordRPCLatency)))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	adapter := wallet.NewAdapter(installed, wallet.NewFilePreferences(cfg.PrefsPath), logger)
	if len(adapter.ListAvailable()) == 0 {
		err := domain.E(domain.KindNotInstalled, "connect", errors.New("no wallet keypair configured"))
		fmt.Fprintln(os.Stderr, domain.Describe(err))
		return err
	}

	sess, ok := adapter.EnsureConnected(ctx, nil, domain.ProviderName(cfg.Provider), true)
	if !ok {
		err := domain.E(domain.KindProvider, "connect", errors.New("could not connect a wallet"))
		fmt.Fprintln(os.Stderr, domain.Describe(err))
		return err
	}
	fmt.Printf("Connected %s wallet %s\n", sess.Handle.Provider, sess.Address())

	if cfg.Login {
		bridge := auth.NewBridge(be,
			auth.WithChallengeTTL(cfg.NonceTTL),
			auth.WithLogger(logger),
			auth.WithMetrics(metrics),
			auth.WithRefresh(view.refresher(ctx, be, logger)),
		)
		user, err := bridge.Login(ctx, sess)
		if err != nil {
			fmt.Fprintln(os.Stderr, domain.Describe(err))
			return err
		}
		fmt.Printf("Signed in as %s\n", user.Username)
	}

	var notifier confirm.Notifier
	if cfg.Subscribe {
		wsCfg := solana.DefaultWSConfig()
		wsCfg.Logger = logger
		ws, err := solana.NewWSClient(ctx, solana.WSEndpoint(view.rpcURL), &wsCfg)
		if err != nil {
			logger.Warn("signature subscription unavailable, polling only", zap.Error(err))
		} else {
			defer ws.Close()
			notifier = ws
		}
	}

	orch := orchestrator.New(orchestrator.Options{
		Backend:    be,
		Dial:       dial,
		Reconciler: reconcile.NewClient(be, logger, metrics),
		PollOptions: []confirm.Option{
			confirm.WithAttempts(cfg.PollAttempts),
			confirm.WithInterval(cfg.PollInterval),
		},
		Notifier: notifier,
		Progress: orchestrator.NewTerminalProgress(os.Stdout, cfg.FailurePin),
		Logger:   logger,
		Metrics:  metrics,
	})

	res, err := orch.Donate(ctx, sess, intent)
	if err != nil {
		if res != nil && res.Submission != nil {
			fmt.Printf("Transaction signature: %s\n", res.Submission.Signature)
		}
		return err
	}

	fmt.Printf("Transaction signature: %s\n", res.Submission.Signature)
	chain := solana.NewHTTPClient(view.rpcURL, solana.WithObserver(metrics.RecordRPCLatency))
	if balance, err := chain.GetBalance(ctx, sess.Address(), solana.CommitmentConfirmed); err == nil {
		fmt.Printf("Wallet balance: %s SOL\n", domain.SOLFromLamports(balance).String())
	}
	return nil
}

// platformView is the backend-derived state the CLI shows. Signing in
// changes the session, so it is reloaded after a login.
type platformView struct {
	info   *domain.PlatformInfo
	rpcURL string
}

func newPlatformView(info *domain.PlatformInfo) *platformView {
	return &platformView{info: info, rpcURL: ledgerURL(info)}
}

// refresher returns a login hook that reloads the view from be.
func (v *platformView) refresher(ctx context.Context, be orchestrator.Backend, logger *zap.Logger) func(*domain.WalletUser) {
	return func(user *domain.WalletUser) {
		info, err := be.PlatformInfo(ctx)
		if err != nil {
			logger.Warn("reload after login failed", zap.String("user", user.Username), zap.Error(err))
			return
		}
		v.info = info
		v.rpcURL = ledgerURL(info)
		logger.Debug("platform state reloaded", zap.String("user", user.Username), zap.String("rpc_url", v.rpcURL))
	}
}

// ledgerURL is the platform's RPC endpoint, or the public one for its
// cluster.
func ledgerURL(info *domain.PlatformInfo) string {
	if info.RPCURL != "" {
		return info.RPCURL
	}
	if info.Network() == domain.NetworkDevnet {
		return config.DevnetRPCURL
	}
	return config.MainnetRPCURL
}

func serveMetrics(addr string, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler(prometheus.DefaultGatherer))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Warn("metrics server stopped", zap.Error(err))
	}
}
