// Package reconcile reports an on-chain donation to the backend of record
// and turns its answer into the authoritative DonationRecord.
package reconcile

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"solio-donations/internal/backend"
	"solio-donations/internal/domain"
	"solio-donations/internal/observability"
)

// Reconciliation failures, each wrapped in a KindReconciliation error
// unless the backend was unreachable.
var (
	ErrAlreadyProcessed = errors.New("transaction already credited to a different donation")
	ErrNotFound         = errors.New("transaction or project not found")
	ErrAmountMismatch   = errors.New("on-chain amount does not match the donation")
	ErrRejected         = errors.New("backend rejected the donation")
)

// Backend is the subset of the backend client used here.
type Backend interface {
	VerifyDonation(ctx context.Context, req backend.VerifyDonationRequest) (*backend.VerifyDonationResponse, error)
}

// Client verifies donations with the backend.
type Client struct {
	backend Backend
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewClient creates a reconciliation client.
func NewClient(be Backend, logger *zap.Logger, metrics *observability.Metrics) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{backend: be, logger: logger.Named("reconcile"), metrics: metrics}
}

// Verify asks the backend to credit signature as a donation from donor
// matching intent. Repeating the call for the same signature returns the
// same record.
func (c *Client) Verify(ctx context.Context, donor, signature string, intent domain.TransferIntent) (*domain.DonationRecord, error) {
	req := backend.VerifyDonationRequest{
		ProjectID:    intent.ProjectID,
		TxSignature:  signature,
		AmountSOL:    intent.AmountSOL.String(),
		DonorWallet:  donor,
		Message:      intent.Memo,
		RewardTierID: intent.RewardTierID,
		DonorEmail:   intent.DonorEmail,
	}

	resp, err := c.backend.VerifyDonation(ctx, req)
	if err != nil {
		err = classify(err)
		c.metrics.RecordReconciliation(resultLabel(err))
		c.logger.Warn("donation verification failed",
			zap.String("signature", signature),
			zap.Int64("project_id", intent.ProjectID),
			zap.Error(err),
		)
		return nil, err
	}

	record, err := toRecord(intent.ProjectID, resp)
	if err != nil {
		c.metrics.RecordReconciliation("malformed")
		return nil, err
	}
	result := "credited"
	if record.AlreadyProcessed {
		result = "replayed"
	}
	c.metrics.RecordReconciliation(result)
	c.logger.Info("donation verified",
		zap.String("signature", signature),
		zap.String("raised_sol", record.RaisedSOL.String()),
		zap.Bool("already_processed", record.AlreadyProcessed),
	)
	return record, nil
}

func toRecord(projectID int64, resp *backend.VerifyDonationResponse) (*domain.DonationRecord, error) {
	if !resp.Success || resp.Project == nil {
		return nil, domain.E(domain.KindReconciliation, "verify", errors.New("response carries no project totals"))
	}
	raised, err := decimal.NewFromString(resp.Project.RaisedSOL)
	if err != nil {
		return nil, domain.E(domain.KindReconciliation, "verify", err)
	}
	rec := &domain.DonationRecord{
		ProjectID:        projectID,
		RaisedSOL:        raised,
		ProgressPercent:  resp.Project.ProgressPercent,
		DonationCount:    resp.Project.DonationCount,
		AlreadyProcessed: resp.AlreadyProcessed,
	}
	if resp.Donation != nil {
		rec.DonationID = resp.Donation.ID
	}
	return rec, nil
}

func classify(err error) error {
	err = backend.Classify("verify", err)
	var ae *backend.APIError
	if !errors.As(err, &ae) || domain.KindOf(err) != domain.KindUnknown {
		return err
	}
	return domain.E(domain.KindReconciliation, "verify", errors.Join(reason(ae), err))
}

// reason picks the reconciliation failure from the status code, falling
// back to the error message for backends that answer 400 for everything.
func reason(ae *backend.APIError) error {
	switch ae.Status {
	case http.StatusConflict:
		return ErrAlreadyProcessed
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusUnprocessableEntity:
		return ErrAmountMismatch
	}
	msg := strings.ToLower(ae.Message)
	switch {
	case strings.Contains(msg, "already processed"):
		return ErrAlreadyProcessed
	case strings.Contains(msg, "transfer not found"), strings.Contains(msg, "transaction failed"):
		return ErrAmountMismatch
	case strings.Contains(msg, "not found"), strings.Contains(msg, "not confirmed"):
		return ErrNotFound
	default:
		return ErrRejected
	}
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, ErrAlreadyProcessed):
		return "already_processed"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAmountMismatch):
		return "amount_mismatch"
	case errors.Is(err, ErrRejected):
		return "rejected"
	default:
		return domain.KindOf(err).String()
	}
}
