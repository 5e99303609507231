// Package backend is the HTTP client for the donation backend of record.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"solio-donations/internal/domain"
	"solio-donations/internal/observability"
)

// CSRF double-submit names.
const (
	CSRFCookie = "csrf_token"
	CSRFHeader = "X-CSRFToken"
)

// ErrUnavailable is returned while the circuit breaker is open.
var ErrUnavailable = errors.New("backend unavailable")

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.Status, e.Message)
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Status
	}
	return 0
}

// Client talks to the backend. It keeps cookies across calls, so a
// successful wallet login authenticates later requests.
type Client struct {
	base    *url.URL
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
	metrics *observability.Metrics
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Its Jar is replaced
// with a fresh cookie jar when nil.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

// WithCircuitBreaker trips after consecutive transport or 5xx failures.
func WithCircuitBreaker(consecutiveFailures uint32, openFor time.Duration) Option {
	return func(c *Client) {
		c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "backend",
			Timeout: openFor,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= consecutiveFailures
			},
			IsSuccessful: func(err error) bool {
				var ae *APIError
				return err == nil || (errors.As(err, &ae) && ae.Status < 500)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				c.logger.Warn("circuit breaker state changed",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			},
		})
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		c.logger = l.Named("backend")
	}
}

// WithMetrics records call latency.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// New creates a client for the backend at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	base, err := url.Parse(baseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid backend URL %q", baseURL)
	}
	c := &Client{
		base:   base,
		http:   &http.Client{Timeout: 30 * time.Second},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, err
		}
		c.http.Jar = jar
	}
	return c, nil
}

// BaseURL is the backend root.
func (c *Client) BaseURL() string { return c.base.String() }

// PlatformInfo fetches the public platform configuration.
func (c *Client) PlatformInfo(ctx context.Context) (*domain.PlatformInfo, error) {
	var info domain.PlatformInfo
	if err := c.do(ctx, http.MethodGet, "/api/platform-info", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// NonceResponse is the sign-in challenge.
type NonceResponse struct {
	Nonce   string `json:"nonce"`
	Message string `json:"message"`
}

// WalletNonce asks for a sign-in challenge for address.
func (c *Client) WalletNonce(ctx context.Context, address string) (*NonceResponse, error) {
	req := map[string]string{"wallet_address": address}
	var resp NonceResponse
	if err := c.do(ctx, http.MethodPost, "/auth/wallet/nonce", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

type verifyWalletResponse struct {
	Success bool               `json:"success"`
	User    *domain.WalletUser `json:"user"`
}

// WalletVerify submits the base58 signature over the challenge message.
// On success the session cookie is kept by the client.
func (c *Client) WalletVerify(ctx context.Context, address, signature, nonce string) (*domain.WalletUser, error) {
	req := map[string]string{
		"wallet_address": address,
		"signature":      signature,
		"nonce":          nonce,
	}
	var resp verifyWalletResponse
	if err := c.do(ctx, http.MethodPost, "/auth/wallet/verify", req, &resp); err != nil {
		return nil, err
	}
	if !resp.Success || resp.User == nil {
		return nil, &APIError{Status: http.StatusBadGateway, Message: "verify response missing user"}
	}
	return resp.User, nil
}

// VerifyDonationRequest is the body of POST /donations/verify.
type VerifyDonationRequest struct {
	ProjectID    int64  `json:"project_id"`
	TxSignature  string `json:"tx_signature"`
	AmountSOL    string `json:"amount_sol"`
	DonorWallet  string `json:"donor_wallet"`
	Message      string `json:"message"`
	RewardTierID *int64 `json:"reward_tier_id"`
	DonorEmail   string `json:"donor_email,omitempty"`
}

// DonationPayload is the credited donation as the backend reports it.
type DonationPayload struct {
	ID          string `json:"id"`
	ProjectID   int64  `json:"project_id"`
	AmountSOL   string `json:"amount_sol"`
	PlatformFee string `json:"platform_fee"`
	DonorWallet string `json:"donor_wallet"`
	TxSignature string `json:"tx_signature"`
	Status      string `json:"status"`
}

// ProjectPayload is the project's post-donation totals.
type ProjectPayload struct {
	RaisedSOL       string  `json:"raised_sol"`
	ProgressPercent float64 `json:"progress_percent"`
	DonationCount   int64   `json:"donation_count"`
}

// VerifyDonationResponse is the success body of POST /donations/verify.
type VerifyDonationResponse struct {
	Success          bool             `json:"success"`
	AlreadyProcessed bool             `json:"already_processed"`
	Donation         *DonationPayload `json:"donation"`
	Project          *ProjectPayload  `json:"project"`
}

// VerifyDonation asks the backend to look the transaction up on-chain and
// credit it.
func (c *Client) VerifyDonation(ctx context.Context, req VerifyDonationRequest) (*VerifyDonationResponse, error) {
	var resp VerifyDonationResponse
	if err := c.do(ctx, http.MethodPost, "/donations/verify", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) csrfToken() string {
	for _, ck := range c.http.Jar.Cookies(c.base) {
		if ck.Name == CSRFCookie {
			return ck.Value
		}
	}
	return ""
}

func (c *Client) ensureCSRF(ctx context.Context) (string, error) {
	if tok := c.csrfToken(); tok != "" {
		return tok, nil
	}
	if err := c.do(ctx, http.MethodGet, "/api/platform-info", nil, nil); err != nil {
		return "", fmt.Errorf("fetch csrf token: %w", err)
	}
	return c.csrfToken(), nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var token string
	if method != http.MethodGet {
		tok, err := c.ensureCSRF(ctx)
		if err != nil {
			return err
		}
		token = tok
	}

	start := time.Now()
	call := func() (interface{}, error) {
		return nil, c.roundTrip(ctx, method, path, token, body, out)
	}

	var err error
	if c.breaker != nil {
		_, err = c.breaker.Execute(call)
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = fmt.Errorf("%s %s: %w: %w", method, path, ErrUnavailable, err)
		}
	} else {
		_, err = call()
	}

	status := "ok"
	if err != nil {
		status = "error"
		if s := StatusOf(err); s != 0 {
			status = strconv.Itoa(s)
		}
		c.logger.Debug("backend call failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
	}
	c.metrics.RecordBackendCall(path, status, time.Since(start))
	return err
}

func (c *Client) roundTrip(ctx context.Context, method, path, token string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.ResolveReference(&url.URL{Path: path}).String(), reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set(CSRFHeader, token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s %s: read body: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, Message: errorMessage(raw, resp.Status)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &APIError{Status: http.StatusBadGateway, Message: "malformed response: " + err.Error()}
	}
	return nil
}

func errorMessage(raw []byte, fallback string) string {
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		return body.Error
	}
	return fallback
}

// Classify maps a client error onto the error taxonomy: 5xx and
// malformed responses are server faults, other API errors are returned
// as-is for the caller to interpret, and everything else is a network
// fault.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return domain.E(domain.KindNetwork, op, err)
	}
	if errors.Is(err, ErrUnavailable) {
		return domain.E(domain.KindServer, op, err)
	}
	if s := StatusOf(err); s != 0 {
		if s >= 500 {
			return domain.E(domain.KindServer, op, err)
		}
		return err
	}
	return domain.E(domain.KindNetwork, op, err)
}
