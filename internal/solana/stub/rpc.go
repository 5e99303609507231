// Package stub provides a scripted in-memory ledger for tests.
package stub

import (
	"context"
	"sync"

	"solio-donations/internal/solana"
)

// StatusStep is one scripted answer to getSignatureStatuses.
type StatusStep struct {
	Status *solana.SignatureStatus
	Err    error
}

// Pending is a step where the signature is not yet known.
func Pending() StatusStep { return StatusStep{} }

// Confirmed is a step where the signature reached confirmed.
func Confirmed() StatusStep {
	return StatusStep{Status: &solana.SignatureStatus{Slot: 1, ConfirmationStatus: solana.CommitmentConfirmed}}
}

// Finalized is a step where the signature is rooted.
func Finalized() StatusStep {
	return StatusStep{Status: &solana.SignatureStatus{Slot: 1, ConfirmationStatus: solana.CommitmentFinalized}}
}

// Processed is a step where the signature is seen but not yet confirmed.
func Processed() StatusStep {
	return StatusStep{Status: &solana.SignatureStatus{Slot: 1, ConfirmationStatus: solana.CommitmentProcessed}}
}

// Failed is a step where the transaction executed with reason.
func Failed(reason interface{}) StatusStep {
	return StatusStep{Status: &solana.SignatureStatus{Slot: 1, Err: reason, ConfirmationStatus: solana.CommitmentConfirmed}}
}

// Transient is a step where the status call itself fails.
func Transient(err error) StatusStep { return StatusStep{Err: err} }

// RPCClient implements solana.RPCClient for testing. Status and height
// scripts are consumed one entry per call; the last entry repeats.
type RPCClient struct {
	mu sync.Mutex

	Blockhash    solana.LatestBlockhash
	BlockhashErr error
	Statuses     []StatusStep
	Heights      []uint64
	HeightErr    error
	SendErr      error
	Transactions map[string]*solana.Transaction
	Balances     map[string]uint64

	// RecordSent stores every submitted transaction in Transactions so
	// that GetTransaction finds it afterwards.
	RecordSent bool

	Sent           [][]byte
	StatusCalls    int
	HeightCalls    int
	BlockhashCalls int
}

var _ solana.RPCClient = (*RPCClient)(nil)

// NewRPCClient creates a new stub RPC client with a usable blockhash.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Blockhash: solana.LatestBlockhash{
			Blockhash:            "EkSnNWid2cvwEVnVx9aBqawnmiCNiDgp3gUdkDPTKN1N",
			LastValidBlockHeight: 1_000,
			Slot:                 900,
		},
		Heights:      []uint64{900},
		Transactions: make(map[string]*solana.Transaction),
		Balances:     make(map[string]uint64),
	}
}

// GetLatestBlockhash returns the scripted blockhash.
func (c *RPCClient) GetLatestBlockhash(_ context.Context, _ solana.Commitment) (*solana.LatestBlockhash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.BlockhashCalls++
	if c.BlockhashErr != nil {
		return nil, c.BlockhashErr
	}
	bh := c.Blockhash
	return &bh, nil
}

// GetSignatureStatuses answers every signature with the next scripted step.
func (c *RPCClient) GetSignatureStatuses(_ context.Context, signatures []string, _ bool) ([]*solana.SignatureStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	step := Pending()
	if len(c.Statuses) > 0 {
		idx := c.StatusCalls
		if idx >= len(c.Statuses) {
			idx = len(c.Statuses) - 1
		}
		step = c.Statuses[idx]
	}
	c.StatusCalls++
	if step.Err != nil {
		return nil, step.Err
	}
	out := make([]*solana.SignatureStatus, len(signatures))
	for i := range out {
		if step.Status != nil {
			s := *step.Status
			out[i] = &s
		}
	}
	return out, nil
}

// GetBlockHeight returns the next scripted height.
func (c *RPCClient) GetBlockHeight(_ context.Context, _ solana.Commitment) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := c.HeightCalls
	c.HeightCalls++
	if c.HeightErr != nil {
		return 0, c.HeightErr
	}
	if len(c.Heights) == 0 {
		return 0, nil
	}
	if idx >= len(c.Heights) {
		idx = len(c.Heights) - 1
	}
	return c.Heights[idx], nil
}

// SendTransaction records tx and returns its first signature.
func (c *RPCClient) SendTransaction(_ context.Context, tx []byte, _ solana.SendOptions) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SendErr != nil {
		return "", c.SendErr
	}
	c.Sent = append(c.Sent, tx)

	decoded, err := solana.DecodeTransaction(tx)
	if err != nil {
		return "", err
	}
	if c.RecordSent {
		c.Transactions[decoded.Signature] = decoded
	}
	return decoded.Signature, nil
}

// GetTransaction retrieves a transaction by signature from the stub store.
func (c *RPCClient) GetTransaction(_ context.Context, signature string) (*solana.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tx, ok := c.Transactions[signature]
	if !ok {
		return nil, nil
	}
	return tx, nil
}

// AddTransaction adds a transaction to the stub store.
func (c *RPCClient) AddTransaction(tx *solana.Transaction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Transactions[tx.Signature] = tx
}

// SendCount returns how many transactions were submitted.
func (c *RPCClient) SendCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Sent)
}

// Calls returns the status and height call counts.
func (c *RPCClient) Calls() (statuses, heights int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.StatusCalls, c.HeightCalls
}

// GetBalance returns the scripted balance, zero for unknown accounts.
func (c *RPCClient) GetBalance(_ context.Context, address string, _ solana.Commitment) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Balances[address], nil
}
