package solana

import "context"

// RPCClient defines the Solana JSON-RPC surface used by the donation flow.
type RPCClient interface {
	// GetLatestBlockhash returns a recent blockhash and the last block
	// height at which a transaction referencing it is valid.
	GetLatestBlockhash(ctx context.Context, commitment Commitment) (*LatestBlockhash, error)

	// GetSignatureStatuses returns one status per signature. Unknown
	// signatures yield a nil entry.
	GetSignatureStatuses(ctx context.Context, signatures []string, searchHistory bool) ([]*SignatureStatus, error)

	// GetBlockHeight returns the current block height.
	GetBlockHeight(ctx context.Context, commitment Commitment) (uint64, error)

	// SendTransaction submits a signed, serialized transaction and returns
	// its signature.
	SendTransaction(ctx context.Context, tx []byte, opts SendOptions) (string, error)

	// GetTransaction retrieves a confirmed transaction by signature.
	// Returns nil, nil when the ledger does not know it yet.
	GetTransaction(ctx context.Context, signature string) (*Transaction, error)

	// GetBalance returns the lamport balance of an account.
	GetBalance(ctx context.Context, address string, commitment Commitment) (uint64, error)
}

// Transaction represents a confirmed Solana transaction.
type Transaction struct {
	Slot      int64
	Signature string
	BlockTime int64 // Unix timestamp (seconds)
	Meta      *TransactionMeta
	Message   *TransactionMessage
}

// Failed reports whether the transaction executed with an error.
func (t *Transaction) Failed() bool {
	return t.Meta != nil && t.Meta.Err != nil
}

// TransactionMeta contains transaction metadata.
type TransactionMeta struct {
	Err          interface{}
	Fee          uint64
	PreBalances  []uint64
	PostBalances []uint64
	LogMessages  []string
}

// TransactionMessage contains the parsed transaction message.
type TransactionMessage struct {
	AccountKeys     []string
	RecentBlockhash string
	Instructions    []CompiledInstruction
}

// CompiledInstruction references accounts by index into AccountKeys.
// Data is base58 encoded.
type CompiledInstruction struct {
	ProgramIDIndex int
	Accounts       []int
	Data           string
}
