// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	// Donation attempt metrics
	AttemptsTotal      *prometheus.CounterVec
	AttemptDuration    prometheus.Histogram
	StageFailures      *prometheus.CounterVec
	ConfirmationPolls  prometheus.Histogram
	ConfirmationResult *prometheus.CounterVec
	Reconciliations    *prometheus.CounterVec

	// Latency metrics
	RPCCallLatency     *prometheus.HistogramVec
	BackendCallLatency *prometheus.HistogramVec

	// Backend metrics
	HTTPRequests      *prometheus.CounterVec
	HTTPDuration      *prometheus.HistogramVec
	NoncesIssued      prometheus.Counter
	WalletLogins      *prometheus.CounterVec
	DonationsCredited prometheus.Counter
	DonatedLamports   prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance registered with reg.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "solio"
	}
	f := promauto.With(reg)

	return &Metrics{
		AttemptsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "donation",
			Name:      "attempts_total",
			Help:      "Donation attempts by final result",
		}, []string{"result"}),
		AttemptDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "donation",
			Name:      "attempt_duration_seconds",
			Help:      "Wall time of a donation attempt from prepare to verify",
			Buckets:   []float64{1, 2, 5, 10, 20, 30, 60, 90, 120},
		}),
		StageFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "donation",
			Name:      "stage_failures_total",
			Help:      "Donation attempts that stopped at a stage, by error kind",
		}, []string{"stage", "kind"}),
		ConfirmationPolls: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "confirm",
			Name:      "polls",
			Help:      "Status checks needed to classify a signature",
			Buckets:   []float64{1, 2, 3, 5, 10, 15, 20, 25, 30, 31},
		}),
		ConfirmationResult: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "confirm",
			Name:      "outcomes_total",
			Help:      "Confirmation outcomes by kind",
		}, []string{"outcome"}),
		Reconciliations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "results_total",
			Help:      "Backend verification results",
		}, []string{"result"}),

		RPCCallLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "status"}),
		BackendCallLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "backend_client",
			Name:      "call_latency_seconds",
			Help:      "Backend API call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"path", "status"}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests served",
		}, []string{"method", "route", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		NoncesIssued: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "nonces_issued_total",
			Help:      "Wallet sign-in challenges issued",
		}),
		WalletLogins: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "wallet_logins_total",
			Help:      "Wallet sign-in attempts by result",
		}, []string{"result"}),
		DonationsCredited: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "donation",
			Name:      "credited_total",
			Help:      "Donations credited to projects",
		}),
		DonatedLamports: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "donation",
			Name:      "credited_lamports_total",
			Help:      "Lamports credited to projects",
		}),

		DBQueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordAttempt records a finished donation attempt.
func (m *Metrics) RecordAttempt(err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failed"
	}
	m.AttemptsTotal.WithLabelValues(result).Inc()
	m.AttemptDuration.Observe(elapsed.Seconds())
}

// RecordStageFailure records the stage and error kind an attempt stopped at.
func (m *Metrics) RecordStageFailure(stage, kind string) {
	if m == nil {
		return
	}
	m.StageFailures.WithLabelValues(stage, kind).Inc()
}

// RecordConfirmation records a poller outcome.
func (m *Metrics) RecordConfirmation(outcome string, polls int) {
	if m == nil {
		return
	}
	m.ConfirmationResult.WithLabelValues(outcome).Inc()
	m.ConfirmationPolls.Observe(float64(polls))
}

// RecordReconciliation records a backend verification result.
func (m *Metrics) RecordReconciliation(result string) {
	if m == nil {
		return
	}
	m.Reconciliations.WithLabelValues(result).Inc()
}

// RecordRPCLatency records RPC call latency.
func (m *Metrics) RecordRPCLatency(method string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.RPCCallLatency.WithLabelValues(method, statusLabel(err)).Observe(elapsed.Seconds())
}

// RecordBackendCall records a backend API call.
func (m *Metrics) RecordBackendCall(path, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.BackendCallLatency.WithLabelValues(path, status).Observe(elapsed.Seconds())
}

// RecordHTTPRequest records a served HTTP request.
func (m *Metrics) RecordHTTPRequest(method, route, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, status).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// RecordNonceIssued counts an issued sign-in challenge.
func (m *Metrics) RecordNonceIssued() {
	if m == nil {
		return
	}
	m.NoncesIssued.Inc()
}

// RecordLogin counts a wallet sign-in attempt.
func (m *Metrics) RecordLogin(result string) {
	if m == nil {
		return
	}
	m.WalletLogins.WithLabelValues(result).Inc()
}

// RecordDonationCredited counts a credited donation.
func (m *Metrics) RecordDonationCredited(lamports uint64) {
	if m == nil {
		return
	}
	m.DonationsCredited.Inc()
	m.DonatedLamports.Add(float64(lamports))
}

// RecordDBQuery records database query metrics.
func (m *Metrics) RecordDBQuery(database, operation string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.DBQueryDuration.WithLabelValues(database, operation).Observe(elapsed.Seconds())
	if err != nil {
		m.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
