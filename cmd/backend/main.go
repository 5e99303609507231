// Package main runs the reference donation backend:
// wallet sign-in, donation verification against the ledger, statistics.
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

	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"solio-donations/internal/config"
	"solio-donations/internal/domain"
	"solio-donations/internal/logging"
	"solio-donations/internal/observability"
	"solio-donations/internal/server"
	"solio-donations/internal/solana"
	"solio-donations/internal/storage"
	"solio-donations/internal/storage/memory"
	"solio-donations/internal/storage/migrations"
	pgstore "solio-donations/internal/storage/postgres"
	redisstore "solio-donations/internal/storage/redis"
)

// stores holds the storage implementations the backend runs on.
type stores struct {
	donations storage.DonationStore
	nonces    storage.NonceStore
	users     storage.UserStore
	publisher message.Publisher
	// subscriber is set for the in-process event bus only.
	subscriber message.Subscriber
}

func main() {
	config.LoadEnv()

	var cfg config.ServerConfig
	fs := flag.NewFlagSet("backend", flag.ExitOnError)
	cfg.RegisterFlags(fs)
	_ = fs.Parse(os.Args[1:])

	logger, _, err := logging.New(cfg.Log.Logging())
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}
	if cfg.PlatformWallet == "" {
		logger.Warn("PLATFORM_WALLET_ADDRESS is not set, donations cannot be verified")
	} else if err := solana.ValidateAddress(cfg.PlatformWallet); err != nil {
		logger.Fatal("invalid platform wallet", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, cleanup, err := createStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to create stores", zap.Error(err))
	}
	defer cleanup()

	if cfg.SeedProjects {
		if err := seedProjects(ctx, st.donations); err != nil {
			logger.Fatal("failed to seed projects", zap.Error(err))
		}
		logger.Info("demo projects created")
	}
	if st.subscriber != nil {
		go logEvents(ctx, st.subscriber, cfg.EventsTopic, logger)
	}

	metrics := observability.NewMetrics("solio", prometheus.DefaultRegisterer)
	rpcURL := cfg.ResolvedRPCURL()
	ledger := solana.NewHTTPClient(rpcURL, solana.WithObserver(metrics.RecordRPCLatency))
	sessions := server.NewSessions([]byte(cfg.SessionSecret), cfg.SessionTTL)

	info := domain.PlatformInfo{
		Name:               cfg.PlatformName,
		PlatformFeePercent: cfg.PlatformFeePercent,
		PlatformWallet:     cfg.PlatformWallet,
		UseDevnet:          cfg.UseDevnet,
		RPCURL:             rpcURL,
	}

	if cfg.Log.Environment == string(logging.EnvironmentProduction) {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := server.New(server.Config{Platform: info, SecureCookies: cfg.SecureCookies}, server.Deps{
		Auth:     server.NewAuthService(st.nonces, st.users, sessions, cfg.PlatformName, cfg.NonceTTL, logger, metrics),
		Sessions: sessions,
		Donations: server.NewDonationService(server.DonationServiceOptions{
			Store:          st.donations,
			Ledger:         ledger,
			Events:         server.NewWatermillPublisher(st.publisher, cfg.EventsTopic),
			PlatformWallet: cfg.PlatformWallet,
			FeePercent:     cfg.PlatformFeePercent,
			LookupAttempts: cfg.LookupAttempts,
			LookupDelay:    cfg.LookupDelay,
			Logger:         logger,
			Metrics:        metrics,
		}),
		Logger:   logger,
		Metrics:  metrics,
		Gatherer: prometheus.DefaultGatherer,
	})
	httpServer := server.NewHTTPServer(cfg.Addr, srv.Handler())

	done := make(chan error, 1)

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("received signal, initiating graceful shutdown", zap.Stringer("signal", sig))
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		go func() {
			// Wait for second signal for immediate shutdown
			select {
			case sig := <-sigCh:
				logger.Warn("received second signal, forcing immediate shutdown", zap.Stringer("signal", sig))
				os.Exit(1)
			case <-shutdownCtx.Done():
			}
		}()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", zap.Error(err))
		}
		done <- nil
	}()

	logger.Info("backend listening",
		zap.String("addr", cfg.Addr),
		zap.String("rpc_url", rpcURL),
		zap.Bool("devnet", cfg.UseDevnet),
		zap.Bool("memory_storage", cfg.UseMemory),
	)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
	<-done

	if err := st.publisher.Close(); err != nil {
		logger.Warn("failed to close event publisher", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

// createStores builds in-memory stores, or PostgreSQL for donations and
// users with Redis for nonces and events.
func createStores(ctx context.Context, cfg config.ServerConfig, logger *zap.Logger) (*stores, func(), error) {
	wmLogger := logging.NewWatermillAdapter(logger)

	if cfg.UseMemory {
		bus := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, wmLogger)
		return &stores{
			donations:  memory.NewDonationStore(),
			nonces:     memory.NewNonceStore(),
			users:      memory.NewUserStore(),
			publisher:  bus,
			subscriber: bus,
		}, func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, err
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, err
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	redisClient := redis.NewClient(opts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		pool.Close()
		_ = redisClient.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}

	publisher, err := redisstream.NewPublisher(redisstream.PublisherConfig{Client: redisClient}, wmLogger)
	if err != nil {
		pool.Close()
		_ = redisClient.Close()
		return nil, nil, fmt.Errorf("create redis publisher: %w", err)
	}

	cleanup := func() {
		_ = redisClient.Close()
		pool.Close()
	}
	return &stores{
		donations: pgstore.NewDonationStore(pool),
		nonces:    redisstore.NewNonceStore(redisClient),
		users:     pgstore.NewUserStore(pool),
		publisher: publisher,
	}, cleanup, nil
}

// logEvents drains the in-process event bus into the log.
func logEvents(ctx context.Context, sub message.Subscriber, topic string, logger *zap.Logger) {
	messages, err := sub.Subscribe(ctx, topic)
	if err != nil {
		logger.Error("failed to subscribe to events", zap.Error(err))
		return
	}
	for msg := range messages {
		logger.Info("event", zap.String("topic", topic), zap.String("uuid", msg.UUID), zap.ByteString("payload", msg.Payload))
		msg.Ack()
	}
}
