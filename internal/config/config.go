// Package config loads client and backend settings from flags, with
// environment variables (optionally from a .env file) as defaults.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"solio-donations/internal/logging"
)

// Cluster RPC endpoints.
const (
	MainnetRPCURL = "https://api.mainnet-beta.solana.com"
	DevnetRPCURL  = "https://api.devnet.solana.com"
)

// LoadEnv reads .env style files into the process environment. Missing
// files are ignored and already-set variables are not overridden.
func LoadEnv(files ...string) {
	if len(files) == 0 {
		files = []string{".env", ".env.local"}
	}
	for _, f := range files {
		_ = godotenv.Load(f)
	}
}

// LogConfig is shared by both binaries.
type LogConfig struct {
	Environment string
	Level       string
	Console     bool
}

func (c *LogConfig) registerFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Environment, "log-env", getenv("LOG_ENV", "production"), "Logger profile (production, development, local)")
	fs.StringVar(&c.Level, "log-level", getenv("LOG_LEVEL", ""), "Log level override (debug, info, warn, error)")
	fs.BoolVar(&c.Console, "log-console", getenvBool("LOG_CONSOLE", false), "Human-readable log output")
}

// Logging converts the flags into a logger configuration.
func (c LogConfig) Logging() logging.Config {
	return logging.Config{
		Environment: logging.Environment(c.Environment),
		Level:       c.Level,
		Console:     c.Console,
	}
}

// ClientConfig configures the donate CLI.
type ClientConfig struct {
	BackendURL     string
	RequestTimeout time.Duration
	CircuitBreaker bool

	Provider     string
	PrefsPath    string
	Keypairs     map[string]string
	WalletRPCURL string
	Trusted      bool
	AutoApprove  bool
	Login        bool
	NonceTTL     time.Duration

	PollAttempts int
	PollInterval time.Duration
	Subscribe    bool
	FailurePin   time.Duration

	MetricsAddr string
	Log         LogConfig
}

// RegisterFlags binds the client settings to fs.
func (c *ClientConfig) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.BackendURL, "backend", getenv("SOLIO_BACKEND_URL", "http://localhost:5000"), "Donation backend base URL")
	fs.DurationVar(&c.RequestTimeout, "request-timeout", getenvDuration("SOLIO_REQUEST_TIMEOUT", 30*time.Second), "Backend request timeout")
	fs.BoolVar(&c.CircuitBreaker, "circuit-breaker", getenvBool("SOLIO_CIRCUIT_BREAKER", true), "Trip a circuit breaker on repeated backend failures")

	fs.StringVar(&c.Provider, "wallet", getenv("SOLIO_WALLET", ""), "Wallet provider (phantom, solflare, backpack)")
	fs.StringVar(&c.PrefsPath, "prefs", getenv("SOLIO_PREFS_PATH", defaultPrefsPath()), "Wallet preference file")
	fs.StringVar(&c.WalletRPCURL, "wallet-rpc", getenv("SOLIO_WALLET_RPC_URL", ""), "RPC endpoint wallets submit through (default: platform RPC)")
	fs.BoolVar(&c.Trusted, "trusted", getenvBool("SOLIO_WALLET_TRUSTED", false), "Treat installed wallets as already trusted by this app")
	fs.BoolVar(&c.AutoApprove, "yes", getenvBool("SOLIO_AUTO_APPROVE", false), "Approve wallet prompts without asking")
	fs.BoolVar(&c.Login, "login", getenvBool("SOLIO_LOGIN", false), "Sign in with the wallet before donating")
	fs.DurationVar(&c.NonceTTL, "nonce-ttl", getenvDuration("SOLIO_NONCE_TTL", 10*time.Minute), "Lifetime assumed for sign-in challenges")

	c.Keypairs = map[string]string{}
	for _, name := range []string{"phantom", "solflare", "backpack"} {
		name := name
		env := "SOLIO_" + strings.ToUpper(name) + "_KEYPAIR"
		c.Keypairs[name] = os.Getenv(env)
		fs.Func(name+"-keypair", "Keypair file backing the "+name+" wallet (env "+env+")", func(v string) error {
			c.Keypairs[name] = v
			return nil
		})
	}

	fs.IntVar(&c.PollAttempts, "poll-attempts", getenvInt("SOLIO_POLL_ATTEMPTS", 30), "Confirmation status checks before giving up")
	fs.DurationVar(&c.PollInterval, "poll-interval", getenvDuration("SOLIO_POLL_INTERVAL", 2*time.Second), "Delay between confirmation checks")
	fs.BoolVar(&c.Subscribe, "subscribe", getenvBool("SOLIO_WS_SUBSCRIBE", true), "Use a signature subscription to wake the poller early")
	fs.DurationVar(&c.FailurePin, "failure-pin", getenvDuration("SOLIO_FAILURE_PIN", 3*time.Second), "How long a failed stage stays on screen")

	fs.StringVar(&c.MetricsAddr, "metrics-addr", getenv("SOLIO_METRICS_ADDR", ""), "Serve Prometheus metrics on this address")
	c.Log.registerFlags(fs)
}

// Validate checks the parsed settings.
func (c *ClientConfig) Validate() error {
	var errs []error
	if c.BackendURL == "" {
		errs = append(errs, errors.New("backend URL is required"))
	}
	if c.PollAttempts <= 0 {
		errs = append(errs, fmt.Errorf("poll attempts must be positive, got %d", c.PollAttempts))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll interval must be positive, got %s", c.PollInterval))
	}
	if c.NonceTTL <= 0 {
		errs = append(errs, fmt.Errorf("nonce ttl must be positive, got %s", c.NonceTTL))
	}
	return errors.Join(errs...)
}

// ServerConfig configures the reference backend.
type ServerConfig struct {
	Addr         string
	PlatformName string

	PlatformWallet     string
	PlatformFeePercent float64
	UseDevnet          bool
	RPCURL             string

	UseMemory    bool
	PostgresDSN  string
	RedisURL     string
	EventsTopic  string
	SeedProjects bool

	SessionSecret string
	SessionTTL    time.Duration
	NonceTTL      time.Duration
	SecureCookies bool

	LookupAttempts int
	LookupDelay    time.Duration

	Log LogConfig
}

// RegisterFlags binds the backend settings to fs.
func (c *ServerConfig) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Addr, "addr", getenv("SOLIO_ADDR", ":5000"), "HTTP listen address")
	fs.StringVar(&c.PlatformName, "platform-name", getenv("SOLIO_PLATFORM_NAME", "Solio"), "Platform name shown in sign-in messages")

	fs.StringVar(&c.PlatformWallet, "platform-wallet", getenv("PLATFORM_WALLET_ADDRESS", ""), "Address receiving donations")
	fs.Float64Var(&c.PlatformFeePercent, "platform-fee", getenvFloat("PLATFORM_FEE_PERCENT", 2.5), "Platform fee percent recorded per donation")
	fs.BoolVar(&c.UseDevnet, "devnet", getenvBool("USE_DEVNET", true), "Run against devnet")
	fs.StringVar(&c.RPCURL, "rpc-endpoint", getenv("SOLANA_RPC_URL", ""), "Solana RPC endpoint (default: cluster public RPC)")

	fs.BoolVar(&c.UseMemory, "use-memory", getenvBool("SOLIO_USE_MEMORY", false), "Use in-memory storage instead of PostgreSQL and Redis")
	fs.StringVar(&c.PostgresDSN, "postgres-dsn", getenv("POSTGRES_DSN", ""), "PostgreSQL connection string")
	fs.StringVar(&c.RedisURL, "redis-url", getenv("REDIS_URL", ""), "Redis URL for nonces and events (redis://host:6379/0)")
	fs.StringVar(&c.EventsTopic, "events-topic", getenv("SOLIO_EVENTS_TOPIC", "donations.credited"), "Topic for donation events")
	fs.BoolVar(&c.SeedProjects, "seed-projects", getenvBool("SOLIO_SEED_PROJECTS", false), "Create demo projects on startup")

	fs.StringVar(&c.SessionSecret, "session-secret", getenv("SECRET_KEY", ""), "HMAC secret for session tokens")
	fs.DurationVar(&c.SessionTTL, "session-ttl", getenvDuration("SOLIO_SESSION_TTL", 7*24*time.Hour), "Session lifetime")
	fs.DurationVar(&c.NonceTTL, "nonce-ttl", getenvDuration("WALLET_NONCE_EXPIRY", 10*time.Minute), "Sign-in challenge lifetime")
	fs.BoolVar(&c.SecureCookies, "secure-cookies", getenvBool("SOLIO_SECURE_COOKIES", false), "Mark cookies Secure")

	fs.IntVar(&c.LookupAttempts, "lookup-attempts", getenvInt("SOLIO_LOOKUP_ATTEMPTS", 10), "Transaction lookups before reporting not found")
	fs.DurationVar(&c.LookupDelay, "lookup-delay", getenvDuration("SOLIO_LOOKUP_DELAY", 2*time.Second), "Delay between transaction lookups")

	c.Log.registerFlags(fs)
}

// ResolvedRPCURL is the configured RPC endpoint or the cluster default.
func (c *ServerConfig) ResolvedRPCURL() string {
	if c.RPCURL != "" {
		return c.RPCURL
	}
	if c.UseDevnet {
		return DevnetRPCURL
	}
	return MainnetRPCURL
}

// Validate checks the parsed settings.
func (c *ServerConfig) Validate() error {
	var errs []error
	if c.SessionSecret == "" {
		errs = append(errs, errors.New("session secret is required"))
	}
	if !c.UseMemory {
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("postgres DSN is required unless --use-memory is set"))
		}
		if c.RedisURL == "" {
			errs = append(errs, errors.New("redis URL is required unless --use-memory is set"))
		}
	}
	if c.PlatformFeePercent < 0 || c.PlatformFeePercent >= 100 {
		errs = append(errs, fmt.Errorf("platform fee must be in [0, 100), got %v", c.PlatformFeePercent))
	}
	if c.LookupAttempts <= 0 {
		errs = append(errs, fmt.Errorf("lookup attempts must be positive, got %d", c.LookupAttempts))
	}
	return errors.Join(errs...)
}

func defaultPrefsPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".solio-wallet.json"
	}
	return filepath.Join(dir, "solio", "wallet.json")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return def
}
