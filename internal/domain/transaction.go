package domain

import (
	"fmt"
	"strings"
)

// Network is the ledger cluster a backend is configured for.
type Network string

const (
	NetworkMainnet Network = "mainnet-beta"
	NetworkDevnet  Network = "devnet"
)

// PlatformInfo is the backend's public configuration.
type PlatformInfo struct {
	Name               string  `json:"name"`
	PlatformFeePercent float64 `json:"platform_fee_percent"`
	PlatformWallet     string  `json:"platform_wallet"`
	UseDevnet          bool    `json:"use_devnet"`
	RPCURL             string  `json:"rpc_url"`
}

// Network returns the cluster the platform runs on.
func (p PlatformInfo) Network() Network {
	if p.UseDevnet {
		return NetworkDevnet
	}
	return NetworkMainnet
}

// PreparedTransaction is an unsigned transfer bound to a recent blockhash.
// Once signed it is submitted exactly once.
type PreparedTransaction struct {
	Intent               TransferIntent
	FeePayer             string
	Lamports             uint64
	RecentBlockhash      string
	LastValidBlockHeight uint64
	Network              Network
}

// SubmissionResult identifies a transaction the network accepted.
type SubmissionResult struct {
	Signature            string
	Blockhash            string
	LastValidBlockHeight uint64
}

// OutcomeKind is the terminal classification of a submitted transaction.
type OutcomeKind string

const (
	OutcomeConfirmed      OutcomeKind = "confirmed"
	OutcomeFinalized      OutcomeKind = "finalized"
	OutcomeFailed         OutcomeKind = "failed"
	OutcomeUnknownTimeout OutcomeKind = "unknown-timeout"
)

// ConfirmationOutcome is what the poller concluded about a signature.
// Reason is set only for failed outcomes.
type ConfirmationOutcome struct {
	Kind     OutcomeKind
	Reason   string
	Attempts int

	// HeightExceeded records that the chain passed the blockhash's last
	// valid height while the status was still unknown.
	HeightExceeded bool
}

// Succeeded reports whether the transaction landed without error.
func (o ConfirmationOutcome) Succeeded() bool {
	return o.Kind == OutcomeConfirmed || o.Kind == OutcomeFinalized
}

// Ambiguous reports whether the transaction may still land.
func (o ConfirmationOutcome) Ambiguous() bool {
	return o.Kind == OutcomeUnknownTimeout
}

func (o ConfirmationOutcome) String() string {
	if o.Kind == OutcomeFailed && o.Reason != "" {
		return fmt.Sprintf("%s(%s)", o.Kind, o.Reason)
	}
	return string(o.Kind)
}

// Stage is one step of a donation attempt, in execution order.
type Stage int

const (
	StagePrepare Stage = iota
	StageSign
	StageSend
	StageConfirm
	StageVerify
)

// Stages lists every stage in order.
var Stages = []Stage{StagePrepare, StageSign, StageSend, StageConfirm, StageVerify}

var stageNames = [...]string{"prepare", "sign", "send", "confirm", "verify"}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageNames[s]
}

// ParseStage is the inverse of Stage.String.
func ParseStage(s string) (Stage, error) {
	for i, name := range stageNames {
		if strings.EqualFold(s, name) {
			return Stage(i), nil
		}
	}
	return 0, fmt.Errorf("unknown stage %q", s)
}
