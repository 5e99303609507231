// Package confirm resolves a submitted signature to a terminal
// confirmation outcome by polling the ledger.
package confirm

import (
	"encoding/json"
	"fmt"

	"solio-donations/internal/domain"
	"solio-donations/internal/solana"
)

// Phase is where the poll loop stands.
type Phase int

const (
	// Polling: bounded status checks with a delay between them.
	Polling Phase = iota
	// FinalCheck: the attempt cap is spent; one last direct status check.
	FinalCheck
	// Done: Outcome is set.
	Done
)

func (p Phase) String() string {
	switch p {
	case Polling:
		return "polling"
	case FinalCheck:
		return "final_check"
	case Done:
		return "done"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// State is the poll loop state. It is a value; Next returns a new one.
type State struct {
	Phase                Phase
	Attempt              int
	MaxAttempts          int
	LastValidBlockHeight uint64
	HeightExceeded       bool
	Outcome              domain.ConfirmationOutcome
}

// Observation is what one poll saw.
type Observation struct {
	Status    *solana.SignatureStatus
	StatusErr error

	Height      uint64
	HeightKnown bool
}

// Start returns the initial state for a submission valid until
// lastValidBlockHeight.
func Start(maxAttempts int, lastValidBlockHeight uint64) State {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return State{Phase: Polling, MaxAttempts: maxAttempts, LastValidBlockHeight: lastValidBlockHeight}
}

// Next is the transition function. An execution error wins over any
// confirmation level; a confirmed or finalized status ends the loop at
// once. Passing the last valid block height is only recorded, and a
// failed status query counts as an inconclusive poll.
func Next(s State, obs Observation) State {
	if s.Phase == Done {
		return s
	}
	s.Attempt++

	if obs.StatusErr == nil && obs.Status != nil {
		switch {
		case obs.Status.Failed():
			return s.finish(domain.OutcomeFailed, FailureReason(obs.Status.Err))
		case obs.Status.Reached(solana.CommitmentFinalized):
			return s.finish(domain.OutcomeFinalized, "")
		case obs.Status.Reached(solana.CommitmentConfirmed):
			return s.finish(domain.OutcomeConfirmed, "")
		}
	}

	switch s.Phase {
	case Polling:
		if obs.HeightKnown && obs.Height > s.LastValidBlockHeight {
			s.HeightExceeded = true
		}
		if s.Attempt >= s.MaxAttempts {
			s.Phase = FinalCheck
		}
		return s
	default:
		return s.finish(domain.OutcomeUnknownTimeout, "")
	}
}

func (s State) finish(kind domain.OutcomeKind, reason string) State {
	s.Phase = Done
	s.Outcome = domain.ConfirmationOutcome{
		Kind:           kind,
		Reason:         reason,
		Attempts:       s.Attempt,
		HeightExceeded: s.HeightExceeded,
	}
	return s
}

// FailureReason renders a ledger execution error compactly.
func FailureReason(err interface{}) string {
	if s, ok := err.(string); ok {
		return s
	}
	raw, mErr := json.Marshal(err)
	if mErr != nil {
		return fmt.Sprint(err)
	}
	return string(raw)
}
