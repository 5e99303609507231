package server

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"solio-donations/internal/confirm"
	"solio-donations/internal/domain"
	"solio-donations/internal/observability"
	"solio-donations/internal/solana"
	"solio-donations/internal/storage"
)

// Ledger looks up confirmed transactions.
type Ledger interface {
	GetTransaction(ctx context.Context, signature string) (*solana.Transaction, error)
}

// VerifyDonationRequest is the body of POST /donations/verify.
type VerifyDonationRequest struct {
	ProjectID    int64           `json:"project_id"`
	TxSignature  string          `json:"tx_signature"`
	AmountSOL    decimal.Decimal `json:"amount_sol"`
	DonorWallet  string          `json:"donor_wallet"`
	Message      string          `json:"message"`
	RewardTierID *int64          `json:"reward_tier_id"`
	DonorEmail   string          `json:"donor_email"`
}

// VerifyDonationResult is what a successful verification returns.
type VerifyDonationResult struct {
	Donation          *domain.Donation
	Project           *domain.Project
	MilestonesReached []domain.Milestone
	AlreadyProcessed  bool
}

// DonationService credits on-chain transfers to projects.
type DonationService struct {
	store          storage.DonationStore
	ledger         Ledger
	events         EventPublisher
	platformWallet string
	feePercent     decimal.Decimal
	lookupAttempts int
	lookupDelay    time.Duration
	clock          confirm.Clock
	now            func() time.Time
	logger         *zap.Logger
	metrics        *observability.Metrics
}

// DonationServiceOptions configures a DonationService.
type DonationServiceOptions struct {
	Store          storage.DonationStore
	Ledger         Ledger
	Events         EventPublisher
	PlatformWallet string
	FeePercent     float64
	LookupAttempts int
	LookupDelay    time.Duration
	Clock          confirm.Clock
	Logger         *zap.Logger
	Metrics        *observability.Metrics
}

// NewDonationService creates the verification service.
func NewDonationService(opts DonationServiceOptions) *DonationService {
	s := &DonationService{
		store:          opts.Store,
		ledger:         opts.Ledger,
		events:         opts.Events,
		platformWallet: opts.PlatformWallet,
		feePercent:     decimal.NewFromFloat(opts.FeePercent),
		lookupAttempts: opts.LookupAttempts,
		lookupDelay:    opts.LookupDelay,
		clock:          opts.Clock,
		now:            time.Now,
		logger:         opts.Logger,
		metrics:        opts.Metrics,
	}
	if s.events == nil {
		s.events = nopPublisher{}
	}
	if s.lookupAttempts <= 0 {
		s.lookupAttempts = 10
	}
	if s.clock == nil {
		s.clock = confirm.RealClock{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	s.logger = s.logger.Named("donations")
	return s
}

// Verify checks the transaction on-chain and credits it to the project.
// A repeated request for an already credited transfer with the same
// project, donor and amount is answered from the ledger of record without
// crediting twice; a repeated signature with different parameters is a
// conflict. userWallet is the signed-in wallet, if any.
func (s *DonationService) Verify(ctx context.Context, req VerifyDonationRequest, userWallet string) (*VerifyDonationResult, error) {
	req.TxSignature = strings.TrimSpace(req.TxSignature)
	req.DonorWallet = strings.TrimSpace(req.DonorWallet)
	req.Message = strings.TrimSpace(req.Message)
	req.DonorEmail = strings.TrimSpace(req.DonorEmail)

	if req.ProjectID == 0 || req.TxSignature == "" || req.AmountSOL.IsZero() || req.DonorWallet == "" {
		return nil, badRequest("Missing required data")
	}
	if !validAmount(req.AmountSOL) {
		return nil, badRequest("Invalid amount")
	}
	if s.platformWallet == "" {
		return nil, internal("Platform wallet is not configured", nil)
	}

	logger := s.logger.With(
		zap.Int64("project_id", req.ProjectID),
		zap.String("signature", req.TxSignature),
	)

	project, err := s.store.GetProject(ctx, req.ProjectID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, notFound("Project not found")
	}
	if err != nil {
		return nil, internal("Failed to load project", err)
	}
	if !project.AcceptsDonations(s.now()) {
		return nil, badRequest("Project no longer accepts donations")
	}

	if res, err := s.replay(ctx, req); res != nil || err != nil {
		return res, err
	}

	if req.RewardTierID != nil {
		if err := s.checkTier(ctx, req); err != nil {
			return nil, err
		}
	}

	lamports := domain.LamportsFromSOL(req.AmountSOL)
	if err := s.checkTransfer(ctx, req, lamports, logger); err != nil {
		return nil, err
	}

	d := &domain.Donation{
		ID:           uuid.NewString(),
		ProjectID:    req.ProjectID,
		UserWallet:   userWallet,
		DonorWallet:  req.DonorWallet,
		AmountSOL:    req.AmountSOL,
		PlatformFee:  s.fee(req.AmountSOL),
		Message:      truncate(req.Message, domain.MaxMemoLength),
		RewardTierID: req.RewardTierID,
		DonorEmail:   req.DonorEmail,
		TxSignature:  req.TxSignature,
		Status:       domain.DonationConfirmed,
		CreatedAt:    s.now().UTC(),
	}
	updated, reached, err := s.store.RecordDonation(ctx, d)
	switch {
	case errors.Is(err, storage.ErrDuplicateKey):
		// A concurrent request credited it first.
		if res, rerr := s.replay(ctx, req); res != nil || rerr != nil {
			return res, rerr
		}
		return nil, conflict("Transaction already processed")
	case errors.Is(err, storage.ErrSoldOut):
		return nil, badRequest("This reward tier is sold out")
	case err != nil:
		return nil, internal("Failed to record donation", err)
	}

	s.metrics.RecordDonationCredited(lamports)
	logger.Info("donation credited",
		zap.String("donation_id", d.ID),
		zap.String("amount_sol", d.AmountSOL.String()),
		zap.String("raised_sol", updated.RaisedSOL.String()),
	)
	for _, m := range reached {
		logger.Info("milestone reached",
			zap.Int64("milestone_id", m.ID),
			zap.String("title", m.Title),
			zap.String("amount_sol", m.AmountSOL.String()),
		)
	}
	if err := s.events.PublishDonationCredited(ctx, d, updated, reached); err != nil {
		logger.Error("failed to publish donation event", zap.Error(err))
	}

	return &VerifyDonationResult{Donation: d, Project: updated, MilestonesReached: reached}, nil
}

// replay answers a request for a signature that was already credited.
// It returns nil, nil when the signature is new.
func (s *DonationService) replay(ctx context.Context, req VerifyDonationRequest) (*VerifyDonationResult, error) {
	existing, err := s.store.GetDonationBySignature(ctx, req.TxSignature)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, internal("Failed to load donation", err)
	}
	if !existing.SameTransfer(req.ProjectID, req.DonorWallet, req.AmountSOL) {
		return nil, conflict("Transaction already processed")
	}

	project, err := s.store.GetProject(ctx, existing.ProjectID)
	if err != nil {
		return nil, internal("Failed to load project", err)
	}
	s.logger.Info("donation already credited",
		zap.String("signature", req.TxSignature),
		zap.String("donation_id", existing.ID),
	)
	return &VerifyDonationResult{Donation: existing, Project: project, AlreadyProcessed: true}, nil
}

func (s *DonationService) checkTier(ctx context.Context, req VerifyDonationRequest) error {
	tier, err := s.store.GetRewardTier(ctx, *req.RewardTierID)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && tier.ProjectID != req.ProjectID) {
		return badRequest("Invalid reward tier")
	}
	if err != nil {
		return internal("Failed to load reward tier", err)
	}
	if !tier.Available() {
		return badRequest("This reward tier is sold out")
	}
	if req.AmountSOL.LessThan(tier.MinAmountSOL) {
		return badRequest("Minimum amount for this reward is " + tier.MinAmountSOL.String() + " SOL")
	}
	if req.DonorEmail == "" {
		return badRequest("Email is required for reward delivery")
	}
	return nil
}

// checkTransfer looks the transaction up, retrying while the ledger does
// not know it yet, and requires a successful system transfer of exactly
// lamports from the donor to the platform wallet.
func (s *DonationService) checkTransfer(ctx context.Context, req VerifyDonationRequest, lamports uint64, logger *zap.Logger) error {
	var (
		tx      *solana.Transaction
		lastErr error
	)
	for attempt := 1; attempt <= s.lookupAttempts; attempt++ {
		tx, lastErr = s.ledger.GetTransaction(ctx, req.TxSignature)
		if lastErr == nil && tx != nil {
			break
		}
		if lastErr != nil {
			logger.Warn("transaction lookup failed", zap.Int("attempt", attempt), zap.Error(lastErr))
		} else {
			logger.Debug("transaction not found yet", zap.Int("attempt", attempt))
		}
		if attempt == s.lookupAttempts {
			break
		}
		select {
		case <-s.clock.After(s.lookupDelay):
		case <-ctx.Done():
			return badGateway("Transaction lookup interrupted", ctx.Err())
		}
	}

	if tx == nil {
		if lastErr != nil {
			return badGateway("Could not reach the ledger", lastErr)
		}
		return notFound("Transaction not found or not confirmed after retries")
	}
	if tx.Failed() {
		return unprocessable("Transaction failed")
	}
	for _, t := range solana.SystemTransfers(tx) {
		if t.Source == req.DonorWallet && t.Destination == s.platformWallet && t.Lamports == lamports {
			return nil
		}
	}
	return unprocessable("Transfer not found in transaction")
}

func (s *DonationService) fee(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(s.feePercent).Div(decimal.NewFromInt(100)).Round(9)
}

// Stats returns platform-wide totals.
func (s *DonationService) Stats(ctx context.Context) (*domain.DonationStats, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, internal("Failed to load statistics", err)
	}
	return stats, nil
}

func validAmount(amount decimal.Decimal) bool {
	return !amount.LessThan(domain.MinDonationSOL) &&
		!amount.GreaterThan(domain.MaxDonationSOL) &&
		!domain.HasSubLamportPrecision(amount)
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
