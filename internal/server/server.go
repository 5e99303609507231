// Package server is the reference donation backend: wallet sign-in,
// on-chain donation verification and platform statistics over HTTP.
package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"solio-donations/internal/domain"
	"solio-donations/internal/observability"
)

// Config is the public platform configuration and cookie policy.
type Config struct {
	Platform      domain.PlatformInfo
	SecureCookies bool
}

// Deps are the services the HTTP layer serves.
type Deps struct {
	Auth      *AuthService
	Donations *DonationService
	Sessions  *Sessions
	Logger    *zap.Logger
	Metrics   *observability.Metrics
	// Gatherer backs GET /metrics; nil disables the route.
	Gatherer prometheus.Gatherer
}

// Server owns the gin engine.
type Server struct {
	cfg    Config
	deps   Deps
	engine *gin.Engine
	logger *zap.Logger
}

// New builds the server and its routes.
func New(cfg Config, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: deps.Logger.Named("http"),
	}
	s.engine = s.setupRouter()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) setupRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger(), s.requestMetrics(), s.csrf(), s.session())

	h := &handlers{
		cfg:       s.cfg,
		auth:      s.deps.Auth,
		donations: s.deps.Donations,
		logger:    s.logger,
	}

	api := router.Group("/api")
	{
		api.GET("/platform-info", h.PlatformInfo)
		api.GET("/health", h.Health)
	}

	auth := router.Group("/auth/wallet")
	{
		auth.POST("/nonce", h.WalletNonce)
		auth.POST("/verify", h.WalletVerify)
	}

	donations := router.Group("/donations")
	{
		donations.POST("/verify", h.VerifyDonation)
		donations.GET("/stats", h.Stats)
	}

	if s.deps.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(observability.Handler(s.deps.Gatherer)))
	}
	return router
}

// NewHTTPServer wraps handler with the timeouts used in production.
func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Verification may retry the ledger for tens of seconds.
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  2 * time.Minute,
	}
}
