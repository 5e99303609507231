package confirm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solio-donations/internal/domain"
	"solio-donations/internal/solana"
	"solio-donations/internal/solana/stub"
)

var submission = domain.SubmissionResult{
	Signature:            "5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnbJLgp8uirBgmQpjKhoR4tjF3ZpRzrFmBV6UjKdiSZkQUW",
	Blockhash:            "EkSnNWid2cvwEVnVx9aBqawnmiCNiDgp3gUdkDPTKN1N",
	LastValidBlockHeight: 1_000,
}

func TestNext_Transitions(t *testing.T) {
	confirmed := &solana.SignatureStatus{ConfirmationStatus: solana.CommitmentConfirmed}
	finalized := &solana.SignatureStatus{ConfirmationStatus: solana.CommitmentFinalized}
	processed := &solana.SignatureStatus{ConfirmationStatus: solana.CommitmentProcessed}
	failedFinal := &solana.SignatureStatus{ConfirmationStatus: solana.CommitmentFinalized, Err: map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}}}

	tests := []struct {
		name  string
		state State
		obs   Observation
		phase Phase
		kind  domain.OutcomeKind
	}{
		{"pending keeps polling", Start(3, 10), Observation{}, Polling, ""},
		{"processed keeps polling", Start(3, 10), Observation{Status: processed}, Polling, ""},
		{"confirmed ends", Start(3, 10), Observation{Status: confirmed}, Done, domain.OutcomeConfirmed},
		{"finalized ends", Start(3, 10), Observation{Status: finalized}, Done, domain.OutcomeFinalized},
		{"error beats finality", Start(3, 10), Observation{Status: failedFinal}, Done, domain.OutcomeFailed},
		{"query error keeps polling", Start(3, 10), Observation{StatusErr: errors.New("timeout")}, Polling, ""},
		{"last attempt moves to final check", State{Phase: Polling, Attempt: 2, MaxAttempts: 3}, Observation{}, FinalCheck, ""},
		{"inconclusive final check times out", State{Phase: FinalCheck, Attempt: 3, MaxAttempts: 3}, Observation{}, Done, domain.OutcomeUnknownTimeout},
		{"final check can still confirm", State{Phase: FinalCheck, Attempt: 3, MaxAttempts: 3}, Observation{Status: confirmed}, Done, domain.OutcomeConfirmed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := Next(tt.state, tt.obs)
			assert.Equal(t, tt.phase, next.Phase)
			assert.Equal(t, tt.state.Attempt+1, next.Attempt)
			if tt.phase == Done {
				assert.Equal(t, tt.kind, next.Outcome.Kind)
				assert.Equal(t, next.Attempt, next.Outcome.Attempts)
			}
		})
	}
}

func TestNext_HeightExceededIsOnlyFlagged(t *testing.T) {
	s := Next(Start(5, 10), Observation{Height: 11, HeightKnown: true})
	assert.Equal(t, Polling, s.Phase)
	assert.True(t, s.HeightExceeded)

	s = Next(s, Observation{Status: &solana.SignatureStatus{ConfirmationStatus: solana.CommitmentConfirmed}})
	assert.Equal(t, domain.OutcomeConfirmed, s.Outcome.Kind)
	assert.True(t, s.Outcome.HeightExceeded)

	same := Next(s, Observation{})
	assert.Equal(t, s, same, "done is absorbing")
}

func TestNext_FailureReason(t *testing.T) {
	s := Next(Start(1, 10), Observation{Status: &solana.SignatureStatus{Err: map[string]interface{}{"InstructionError": []interface{}{0, map[string]interface{}{"Custom": 1}}}}})
	assert.Equal(t, `{"InstructionError":[0,{"Custom":1}]}`, s.Outcome.Reason)
	assert.Equal(t, "InsufficientFundsForFee", FailureReason("InsufficientFundsForFee"))
}

func TestAwait_EarlyExitOnThirdPoll(t *testing.T) {
	ledger := stub.NewRPCClient()
	ledger.Statuses = []stub.StatusStep{stub.Pending(), stub.Pending(), stub.Confirmed()}
	clock := &InstantClock{}

	out, err := NewPoller(ledger, WithClock(clock)).Await(context.Background(), submission)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeConfirmed, out.Kind)
	assert.Equal(t, 3, out.Attempts)

	statuses, _ := ledger.Calls()
	assert.Equal(t, 3, statuses)
	assert.Equal(t, []time.Duration{DefaultInterval, DefaultInterval}, clock.Sleeps())
}

func TestAwait_FailureStopsPolling(t *testing.T) {
	ledger := stub.NewRPCClient()
	ledger.Statuses = []stub.StatusStep{stub.Pending(), stub.Failed(map[string]interface{}{"InstructionError": []interface{}{0, "InsufficientFunds"}}), stub.Confirmed()}

	out, err := NewPoller(ledger, WithClock(&InstantClock{})).Await(context.Background(), submission)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeFailed, out.Kind)
	assert.Contains(t, out.Reason, "InsufficientFunds")

	statuses, _ := ledger.Calls()
	assert.Equal(t, 2, statuses, "no poll after a terminal failure")
}

func TestAwait_UnknownTimeout(t *testing.T) {
	ledger := stub.NewRPCClient()
	ledger.Heights = []uint64{500}
	clock := &InstantClock{}

	out, err := NewPoller(ledger, WithClock(clock)).Await(context.Background(), submission)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeUnknownTimeout, out.Kind)
	assert.True(t, out.Ambiguous())
	assert.False(t, out.HeightExceeded)

	statuses, heights := ledger.Calls()
	assert.Equal(t, DefaultAttempts+1, statuses, "cap plus one final check")
	assert.Equal(t, DefaultAttempts, heights, "the final check reads status only")
	assert.Equal(t, DefaultAttempts*DefaultInterval, clock.Elapsed())
}

func TestAwait_HeightExceededKeepsPolling(t *testing.T) {
	ledger := stub.NewRPCClient()
	ledger.Heights = []uint64{990, 1_001, 1_002}
	ledger.Statuses = []stub.StatusStep{stub.Pending(), stub.Pending(), stub.Pending(), stub.Pending(), stub.Finalized()}

	out, err := NewPoller(ledger, WithClock(&InstantClock{})).Await(context.Background(), submission)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeFinalized, out.Kind)
	assert.True(t, out.HeightExceeded)
	assert.Equal(t, 5, out.Attempts)
}

func TestAwait_TransientErrorsAreTolerated(t *testing.T) {
	ledger := stub.NewRPCClient()
	ledger.HeightErr = errors.New("rpc down")
	ledger.Statuses = []stub.StatusStep{stub.Transient(errors.New("rpc down")), stub.Transient(errors.New("rpc down")), stub.Confirmed()}

	out, err := NewPoller(ledger, WithClock(&InstantClock{})).Await(context.Background(), submission)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeConfirmed, out.Kind)
}

func TestAwait_FinalCheckConfirms(t *testing.T) {
	ledger := stub.NewRPCClient()
	ledger.Statuses = []stub.StatusStep{stub.Pending(), stub.Pending(), stub.Confirmed()}

	out, err := NewPoller(ledger, WithAttempts(2), WithClock(&InstantClock{})).Await(context.Background(), submission)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeConfirmed, out.Kind)
	assert.Equal(t, 3, out.Attempts)
}

type chanNotifier struct {
	ch chan solana.SignatureNotification
}

func (n *chanNotifier) SubscribeSignature(context.Context, string, solana.Commitment) (<-chan solana.SignatureNotification, error) {
	return n.ch, nil
}

// blockingClock never fires.
type blockingClock struct{}

func (blockingClock) After(time.Duration) <-chan time.Time { return nil }

func TestAwait_NotifierWakesPoller(t *testing.T) {
	ledger := stub.NewRPCClient()
	ledger.Statuses = []stub.StatusStep{stub.Pending(), stub.Confirmed()}
	n := &chanNotifier{ch: make(chan solana.SignatureNotification, 1)}
	n.ch <- solana.SignatureNotification{Signature: submission.Signature, Slot: 42}
	close(n.ch)

	out, err := NewPoller(ledger, WithClock(blockingClock{}), WithNotifier(n)).Await(context.Background(), submission)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeConfirmed, out.Kind)
	assert.Equal(t, 2, out.Attempts)
}

func TestAwait_ContextEnds(t *testing.T) {
	ledger := stub.NewRPCClient()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := NewPoller(ledger, WithClock(blockingClock{})).Await(ctx, submission)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, domain.OutcomeUnknownTimeout, out.Kind)
}

func TestAwait_QueryTimeoutBoundsEachPoll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	// The client alone would retry each query for several seconds.
	ledger := solana.NewHTTPClient(srv.URL, solana.WithRetryDelay(time.Second))
	start := time.Now()
	out, err := NewPoller(ledger,
		WithAttempts(1),
		WithClock(&InstantClock{}),
		WithQueryTimeout(100*time.Millisecond),
	).Await(context.Background(), submission)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeUnknownTimeout, out.Kind)
	assert.Less(t, elapsed, 2*time.Second, "each poll must give up at its deadline")
}

type ctxNotifier struct {
	ctx context.Context
}

func (n *ctxNotifier) SubscribeSignature(ctx context.Context, _ string, _ solana.Commitment) (<-chan solana.SignatureNotification, error) {
	n.ctx = ctx
	return make(chan solana.SignatureNotification), nil
}

func TestAwait_ReleasesSubscription(t *testing.T) {
	ledger := stub.NewRPCClient()
	ledger.Statuses = []stub.StatusStep{stub.Confirmed()}
	n := &ctxNotifier{}

	_, err := NewPoller(ledger, WithClock(&InstantClock{}), WithNotifier(n)).Await(context.Background(), submission)
	require.NoError(t, err)
	require.NotNil(t, n.ctx)
	select {
	case <-n.ctx.Done():
	default:
		t.Fatal("subscription context still live after Await returned")
	}
}
