// Package orchestrator drives one donation attempt through its stages.
// Flow: prepare → sign → send → confirm → verify
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"solio-donations/internal/backend"
	"solio-donations/internal/confirm"
	"solio-donations/internal/domain"
	"solio-donations/internal/observability"
	"solio-donations/internal/reconcile"
	"solio-donations/internal/solana"
	"solio-donations/internal/wallet"
)

// DefaultRelayRetries bounds how often the node rebroadcasts a submitted
// transaction.
const DefaultRelayRetries = 5

// Backend provides the platform configuration.
type Backend interface {
	PlatformInfo(ctx context.Context) (*domain.PlatformInfo, error)
}

// Ledger is the RPC surface an attempt reads from.
type Ledger interface {
	GetLatestBlockhash(ctx context.Context, commitment solana.Commitment) (*solana.LatestBlockhash, error)
	confirm.Ledger
}

// Reconciler credits a confirmed transfer with the backend of record.
type Reconciler interface {
	Verify(ctx context.Context, donor, signature string, intent domain.TransferIntent) (*domain.DonationRecord, error)
}

// Dialer opens the ledger named by the platform configuration.
type Dialer func(info *domain.PlatformInfo) (Ledger, error)

// StageError attaches the stage an attempt died in.
type StageError struct {
	Stage domain.Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// FailedStage returns the stage recorded in err, if any.
func FailedStage(err error) (domain.Stage, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage, true
	}
	return 0, false
}

// Result is everything an attempt produced, also on failure.
type Result struct {
	AttemptID  string
	Platform   *domain.PlatformInfo
	Prepared   *domain.PreparedTransaction
	Submission *domain.SubmissionResult
	Outcome    *domain.ConfirmationOutcome
	Record     *domain.DonationRecord
}

// Orchestrator runs donation attempts. Attempts share no state.
type Orchestrator struct {
	backend      Backend
	dial         Dialer
	reconciler   Reconciler
	pollOptions  []confirm.Option
	notifier     confirm.Notifier
	progress     Progress
	relayRetries uint
	logger       *zap.Logger
	metrics      *observability.Metrics
}

// Options for creating an Orchestrator.
type Options struct {
	// Required
	Backend    Backend
	Dial       Dialer
	Reconciler Reconciler

	// Confirmation
	PollOptions []confirm.Option
	Notifier    confirm.Notifier

	Progress     Progress
	RelayRetries uint // zero means DefaultRelayRetries
	Logger       *zap.Logger
	Metrics      *observability.Metrics
}

// New creates a new Orchestrator.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		backend:      opts.Backend,
		dial:         opts.Dial,
		reconciler:   opts.Reconciler,
		pollOptions:  opts.PollOptions,
		notifier:     opts.Notifier,
		progress:     opts.Progress,
		relayRetries: opts.RelayRetries,
		logger:       opts.Logger,
		metrics:      opts.Metrics,
	}
	if o.progress == nil {
		o.progress = NopProgress{}
	}
	if o.relayRetries == 0 {
		o.relayRetries = DefaultRelayRetries
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	o.logger = o.logger.Named("orchestrator")
	return o
}

// attempt is the state owned by one Donate call.
type attempt struct {
	id     string
	stage  domain.Stage
	logger *zap.Logger
	result *Result
	ledger Ledger
	tx     *solanago.Transaction
}

// Donate runs one attempt. The intent is copied; the caller's value is
// never modified. On failure the returned Result holds whatever the
// attempt got to, and the error is a *StageError.
// Stages:
//  1. Prepare: validate, load platform config, fetch a fresh blockhash
//  2. Sign: the wallet signs the transfer
//  3. Send: the wallet submits it, exactly once
//  4. Confirm: poll the ledger until terminal or timed out
//  5. Verify: the backend credits the donation
func (o *Orchestrator) Donate(ctx context.Context, sess *wallet.Session, intent domain.TransferIntent) (*Result, error) {
	start := time.Now()
	a := &attempt{id: uuid.NewString()}
	a.result = &Result{AttemptID: a.id}
	a.logger = o.logger.With(
		zap.String("attempt_id", a.id),
		zap.Int64("project_id", intent.ProjectID),
		zap.String("amount_sol", intent.AmountSOL.String()),
	)

	err := o.run(ctx, a, sess, intent)
	o.metrics.RecordAttempt(err, time.Since(start))
	if err != nil {
		kind := domain.KindOf(err)
		o.metrics.RecordStageFailure(a.stage.String(), kind.String())
		a.logger.Warn("donation attempt failed",
			zap.Stringer("stage", a.stage),
			zap.Stringer("kind", kind),
			zap.Error(err),
		)
		o.progress.Fail(a.stage, err)
		return a.result, &StageError{Stage: a.stage, Err: err}
	}

	a.logger.Info("donation attempt completed",
		zap.String("signature", a.result.Submission.Signature),
		zap.String("outcome", a.result.Outcome.String()),
		zap.Duration("elapsed", time.Since(start)),
	)
	o.progress.Complete(a.result.Record)
	return a.result, nil
}

func (o *Orchestrator) enter(a *attempt, stage domain.Stage) {
	a.stage = stage
	a.logger.Debug("entering stage", zap.Stringer("stage", stage))
	o.progress.Enter(stage)
}

func (o *Orchestrator) run(ctx context.Context, a *attempt, sess *wallet.Session, intent domain.TransferIntent) error {
	// Stage 1: Prepare
	o.enter(a, domain.StagePrepare)
	prepared, err := o.prepare(ctx, a, sess, intent)
	if err != nil {
		return err
	}
	a.result.Prepared = prepared

	// Stages 2 and 3: Sign and Send
	o.enter(a, domain.StageSign)
	sub, err := o.signAndSend(ctx, a, sess)
	if err != nil {
		return err
	}
	a.result.Submission = sub
	a.logger.Info("transaction submitted",
		zap.String("signature", sub.Signature),
		zap.Uint64("last_valid_block_height", sub.LastValidBlockHeight),
	)

	// Stage 4: Confirm
	o.enter(a, domain.StageConfirm)
	opts := append([]confirm.Option{confirm.WithLogger(a.logger), confirm.WithMetrics(o.metrics)}, o.pollOptions...)
	if o.notifier != nil {
		opts = append(opts, confirm.WithNotifier(o.notifier))
	}
	outcome, err := confirm.NewPoller(a.ledger, opts...).Await(ctx, *sub)
	a.result.Outcome = &outcome
	if err != nil {
		return domain.E(domain.KindConfirmationAmbiguous, "confirm", err)
	}
	if outcome.Kind == domain.OutcomeFailed {
		return o.reconcileFailed(ctx, a, prepared, sub, outcome)
	}

	// Stage 5: Verify
	o.enter(a, domain.StageVerify)
	record, err := o.reconciler.Verify(ctx, prepared.FeePayer, sub.Signature, prepared.Intent)
	if err != nil {
		if outcome.Ambiguous() && stillPending(err) {
			return domain.E(domain.KindConfirmationAmbiguous, "verify", err)
		}
		return err
	}
	a.result.Record = record
	return nil
}

// reconcileFailed still reports a failed transaction to the backend,
// whose ledger lookup decides. The attempt stays failed at confirm unless
// the backend credits it.
func (o *Orchestrator) reconcileFailed(ctx context.Context, a *attempt, prepared *domain.PreparedTransaction, sub *domain.SubmissionResult, outcome domain.ConfirmationOutcome) error {
	failed := domain.E(domain.KindConfirmationFailed, "confirm", errors.New(outcome.Reason))
	record, err := o.reconciler.Verify(ctx, prepared.FeePayer, sub.Signature, prepared.Intent)
	if err != nil {
		a.logger.Debug("backend did not credit failed transaction", zap.Error(err))
		return failed
	}
	a.logger.Warn("backend credited a transaction the ledger reported as failed",
		zap.String("signature", sub.Signature),
		zap.String("reason", outcome.Reason),
	)
	o.enter(a, domain.StageVerify)
	a.result.Record = record
	return nil
}

// stillPending reports whether a verification failure after an
// inconclusive confirmation may just mean the transaction has not landed.
func stillPending(err error) bool {
	if errors.Is(err, reconcile.ErrNotFound) {
		return true
	}
	switch domain.KindOf(err) {
	case domain.KindServer, domain.KindNetwork:
		return true
	}
	return false
}

func (o *Orchestrator) prepare(ctx context.Context, a *attempt, sess *wallet.Session, intent domain.TransferIntent) (*domain.PreparedTransaction, error) {
	if err := intent.Validate(); err != nil && domain.KindOf(err) != domain.KindConfiguration {
		return nil, err
	}
	if !sess.Connected() {
		return nil, domain.E(domain.KindProvider, "prepare", errors.New("no connected wallet"))
	}
	donor := sess.Address()
	if err := solana.ValidateWalletAddress(donor); err != nil {
		return nil, domain.E(domain.KindValidation, "prepare", &domain.ValidationError{Field: "donor_wallet", Reason: err.Error()})
	}

	info, err := o.backend.PlatformInfo(ctx)
	if err != nil {
		err = backend.Classify("platformInfo", err)
		if domain.KindOf(err) == domain.KindUnknown {
			err = domain.E(domain.KindServer, "platformInfo", err)
		}
		return nil, err
	}
	a.result.Platform = info

	intent = intent.WithRecipient(info.PlatformWallet)
	if err := intent.Validate(); err != nil {
		return nil, err
	}
	if err := solana.ValidateAddress(intent.RecipientAddress); err != nil {
		return nil, domain.E(domain.KindConfiguration, "prepare", fmt.Errorf("platform wallet: %w", err))
	}
	if intent.RecipientAddress == donor {
		return nil, domain.E(domain.KindValidation, "prepare", &domain.ValidationError{Field: "donor_wallet", Reason: "the platform wallet cannot donate to itself"})
	}

	ledger, err := o.dial(info)
	if err != nil {
		return nil, domain.E(domain.KindConfiguration, "prepare", fmt.Errorf("open ledger %q: %w", info.RPCURL, err))
	}
	a.ledger = ledger

	// The blockhash is fetched last so that it is as fresh as possible
	// when the wallet signs.
	bh, err := ledger.GetLatestBlockhash(ctx, solana.CommitmentConfirmed)
	if err != nil {
		return nil, domain.E(domain.KindNetwork, "getLatestBlockhash", err)
	}

	prepared := &domain.PreparedTransaction{
		Intent:               intent,
		FeePayer:             donor,
		Lamports:             intent.Lamports(),
		RecentBlockhash:      bh.Blockhash,
		LastValidBlockHeight: bh.LastValidBlockHeight,
		Network:              info.Network(),
	}
	tx, err := solana.BuildTransfer(solana.TransferParams{
		From:            prepared.FeePayer,
		To:              intent.RecipientAddress,
		Lamports:        prepared.Lamports,
		RecentBlockhash: prepared.RecentBlockhash,
		Memo:            intent.Memo,
	})
	if err != nil {
		return nil, domain.E(domain.KindValidation, "prepare", &domain.ValidationError{Field: "transaction", Reason: err.Error()})
	}
	a.tx = tx
	return prepared, nil
}

func (o *Orchestrator) signAndSend(ctx context.Context, a *attempt, sess *wallet.Session) (*domain.SubmissionResult, error) {
	retries := o.relayRetries
	opts := wallet.SendOptions{
		SendOptions: solana.SendOptions{
			SkipPreflight:       false,
			PreflightCommitment: solana.CommitmentConfirmed,
			MaxRetries:          &retries,
		},
		OnSigned: func() { o.enter(a, domain.StageSend) },
	}

	signature, err := sess.SignAndSend(ctx, a.tx, opts)
	if err != nil {
		if domain.KindOf(err) == domain.KindUnknown {
			kind := domain.KindProvider
			if a.stage == domain.StageSend {
				kind = domain.KindSubmission
			}
			err = domain.E(kind, "signAndSend", err)
		}
		return nil, err
	}
	if a.stage == domain.StageSign {
		o.enter(a, domain.StageSend)
	}
	if _, err := solana.DecodeSignature(signature); err != nil {
		return nil, domain.E(domain.KindProvider, "signAndSend", err)
	}

	return &domain.SubmissionResult{
		Signature:            signature,
		Blockhash:            a.result.Prepared.RecentBlockhash,
		LastValidBlockHeight: a.result.Prepared.LastValidBlockHeight,
	}, nil
}
