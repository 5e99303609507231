package confirm

import (
	"context"
	"time"

	"go.uber.org/zap"

	"solio-donations/internal/domain"
	"solio-donations/internal/observability"
	"solio-donations/internal/solana"
)

// Defaults give roughly a one minute observation window. Each poll's
// queries share one DefaultQueryTimeout deadline.
const (
	DefaultAttempts     = 30
	DefaultInterval     = 2 * time.Second
	DefaultQueryTimeout = 2 * time.Second
)

// Ledger is the read side of the RPC the poller needs.
type Ledger interface {
	GetSignatureStatuses(ctx context.Context, signatures []string, searchHistory bool) ([]*solana.SignatureStatus, error)
	GetBlockHeight(ctx context.Context, commitment solana.Commitment) (uint64, error)
}

// Notifier pushes a signature's confirmation. It only shortens the wait
// between polls; the poll result still decides the outcome.
type Notifier interface {
	SubscribeSignature(ctx context.Context, signature string, commitment solana.Commitment) (<-chan solana.SignatureNotification, error)
}

// Poller waits for a submission to reach a terminal outcome.
type Poller struct {
	ledger       Ledger
	attempts     int
	interval     time.Duration
	queryTimeout time.Duration
	clock        Clock
	notifier     Notifier
	logger       *zap.Logger
	metrics      *observability.Metrics
}

// Option configures a Poller.
type Option func(*Poller)

// WithAttempts sets the poll cap.
func WithAttempts(n int) Option {
	return func(p *Poller) { p.attempts = n }
}

// WithInterval sets the delay between polls.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) { p.interval = d }
}

// WithQueryTimeout bounds the ledger queries of a single poll, retries
// included.
func WithQueryTimeout(d time.Duration) Option {
	return func(p *Poller) { p.queryTimeout = d }
}

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(p *Poller) { p.clock = c }
}

// WithNotifier wakes the poller early when the signature confirms.
func WithNotifier(n Notifier) Option {
	return func(p *Poller) { p.notifier = n }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Poller) { p.logger = l.Named("confirm") }
}

// WithMetrics records outcomes.
func WithMetrics(m *observability.Metrics) Option {
	return func(p *Poller) { p.metrics = m }
}

// NewPoller creates a poller over ledger.
func NewPoller(ledger Ledger, opts ...Option) *Poller {
	p := &Poller{
		ledger:       ledger,
		attempts:     DefaultAttempts,
		interval:     DefaultInterval,
		queryTimeout: DefaultQueryTimeout,
		clock:        RealClock{},
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Await polls until sub is confirmed, failed or the attempt budget and
// the final check are spent. The error is non-nil only when ctx ends
// first.
func (p *Poller) Await(ctx context.Context, sub domain.SubmissionResult) (domain.ConfirmationOutcome, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger := p.logger.With(zap.String("signature", sub.Signature))
	wake := p.subscribe(ctx, sub.Signature, logger)

	st := Start(p.attempts, sub.LastValidBlockHeight)
	for {
		wasExceeded := st.HeightExceeded
		st = Next(st, p.observe(ctx, sub.Signature, st.Phase, logger))
		if st.HeightExceeded && !wasExceeded {
			logger.Warn("block height passed last valid height, still polling",
				zap.Uint64("last_valid_block_height", sub.LastValidBlockHeight),
				zap.Int("attempt", st.Attempt),
			)
		}
		if st.Phase == Done {
			break
		}

		select {
		case <-p.clock.After(p.interval):
		case n, ok := <-wake:
			wake = nil
			if ok {
				logger.Debug("signature notification received", zap.Uint64("slot", n.Slot))
			}
		case <-ctx.Done():
			return domain.ConfirmationOutcome{Kind: domain.OutcomeUnknownTimeout, Attempts: st.Attempt, HeightExceeded: st.HeightExceeded}, ctx.Err()
		}
	}

	p.metrics.RecordConfirmation(string(st.Outcome.Kind), st.Outcome.Attempts)
	logger.Info("confirmation finished",
		zap.String("outcome", st.Outcome.String()),
		zap.Int("attempts", st.Outcome.Attempts),
		zap.Bool("height_exceeded", st.Outcome.HeightExceeded),
	)
	return st.Outcome, nil
}

func (p *Poller) subscribe(ctx context.Context, signature string, logger *zap.Logger) <-chan solana.SignatureNotification {
	if p.notifier == nil {
		return nil
	}
	ch, err := p.notifier.SubscribeSignature(ctx, signature, solana.CommitmentConfirmed)
	if err != nil {
		logger.Debug("signature subscription unavailable, polling only", zap.Error(err))
		return nil
	}
	return ch
}

func (p *Poller) observe(ctx context.Context, signature string, phase Phase, logger *zap.Logger) Observation {
	var obs Observation
	if p.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.queryTimeout)
		defer cancel()
	}

	statuses, err := p.ledger.GetSignatureStatuses(ctx, []string{signature}, phase == FinalCheck)
	if err != nil {
		logger.Warn("signature status query failed", zap.Error(err))
		obs.StatusErr = err
	} else if len(statuses) > 0 {
		obs.Status = statuses[0]
	}

	if phase != Polling || obs.Status.Failed() || obs.Status.Reached(solana.CommitmentConfirmed) {
		return obs
	}
	height, err := p.ledger.GetBlockHeight(ctx, solana.CommitmentConfirmed)
	if err != nil {
		logger.Debug("block height query failed", zap.Error(err))
		return obs
	}
	obs.Height = height
	obs.HeightKnown = true
	return obs
}
