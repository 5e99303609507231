package solana

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf8"

	bin "github.com/gagliardetto/binary"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/mr-tron/base58"
)

// MemoProgramID is the SPL memo program (v2).
const MemoProgramID = "MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr"

var memoProgram = solanago.MustPublicKeyFromBase58(MemoProgramID)

// MaxTransactionSize is the largest serialized transaction a node
// accepts (the network packet payload).
const MaxTransactionSize = 1232

// MaxMemoBytes caps the memo BuildTransfer writes on chain. A transfer
// with a memo of this size still fits in MaxTransactionSize.
const MaxMemoBytes = 900

// ErrTransactionTooLarge is returned when a built transaction would not
// fit in MaxTransactionSize once signed.
var ErrTransactionTooLarge = errors.New("transaction too large")

// systemTransferTag is the little-endian instruction index of Transfer
// in the system program.
const systemTransferTag = 2

// TransferParams describes a single-transfer transaction.
type TransferParams struct {
	From            string
	To              string
	Lamports        uint64
	RecentBlockhash string
	Memo            string
}

// BuildTransfer assembles an unsigned legacy transaction that moves
// lamports from From to To, with From as fee payer. A non-empty Memo adds
// a memo instruction, cut to MaxMemoBytes on a character boundary.
func BuildTransfer(p TransferParams) (*solanago.Transaction, error) {
	if p.Lamports == 0 {
		return nil, errors.New("build transfer: zero lamports")
	}
	from, err := solanago.PublicKeyFromBase58(p.From)
	if err != nil {
		return nil, fmt.Errorf("build transfer: from: %w", err)
	}
	to, err := solanago.PublicKeyFromBase58(p.To)
	if err != nil {
		return nil, fmt.Errorf("build transfer: to: %w", err)
	}
	hash, err := solanago.HashFromBase58(p.RecentBlockhash)
	if err != nil {
		return nil, fmt.Errorf("build transfer: blockhash: %w", err)
	}

	instructions := []solanago.Instruction{
		system.NewTransferInstruction(p.Lamports, from, to).Build(),
	}
	if memo := TruncateMemo(p.Memo, MaxMemoBytes); memo != "" {
		instructions = append(instructions,
			solanago.NewInstruction(memoProgram, solanago.AccountMetaSlice{}, []byte(memo)))
	}

	tx, err := solanago.NewTransaction(instructions, hash, solanago.TransactionPayer(from))
	if err != nil {
		return nil, fmt.Errorf("build transfer: %w", err)
	}
	size, err := SignedSize(tx)
	if err != nil {
		return nil, fmt.Errorf("build transfer: %w", err)
	}
	if size > MaxTransactionSize {
		return nil, fmt.Errorf("build transfer: %w: %d bytes", ErrTransactionTooLarge, size)
	}
	return tx, nil
}

// TruncateMemo cuts memo to at most n bytes without splitting a UTF-8
// sequence.
func TruncateMemo(memo string, n int) string {
	if len(memo) <= n {
		return memo
	}
	for n > 0 && !utf8.RuneStart(memo[n]) {
		n--
	}
	return memo[:n]
}

// SignedSize is the wire size of tx once every required signature is
// attached.
func SignedSize(tx *solanago.Transaction) (int, error) {
	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return 0, fmt.Errorf("marshal message: %w", err)
	}
	sigs := int(tx.Message.Header.NumRequiredSignatures)
	var prefix []byte
	bin.EncodeCompactU16Length(&prefix, sigs)
	return len(prefix) + sigs*solanago.SignatureLength + len(msg), nil
}

// SignTransaction signs tx with key, which must be the fee payer, and
// returns the wire bytes and the base58 signature.
func SignTransaction(tx *solanago.Transaction, key solanago.PrivateKey) ([]byte, string, error) {
	signer := key.PublicKey()
	_, err := tx.Sign(func(pk solanago.PublicKey) *solanago.PrivateKey {
		if pk.Equals(signer) {
			return &key
		}
		return nil
	})
	if err != nil {
		return nil, "", fmt.Errorf("sign transaction: %w", err)
	}
	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, "", fmt.Errorf("serialize transaction: %w", err)
	}
	return raw, tx.Signatures[0].String(), nil
}

// SystemTransfer is a decoded system-program Transfer instruction.
type SystemTransfer struct {
	Source      string
	Destination string
	Lamports    uint64
}

// SystemTransfers returns every top-level system transfer in tx.
func SystemTransfers(tx *Transaction) []SystemTransfer {
	if tx == nil || tx.Message == nil {
		return nil
	}
	keys := tx.Message.AccountKeys
	var out []SystemTransfer
	for _, ix := range tx.Message.Instructions {
		if ix.ProgramIDIndex < 0 || ix.ProgramIDIndex >= len(keys) || keys[ix.ProgramIDIndex] != SystemProgramID {
			continue
		}
		if len(ix.Accounts) < 2 || ix.Accounts[0] >= len(keys) || ix.Accounts[1] >= len(keys) {
			continue
		}
		data, err := base58.Decode(ix.Data)
		if err != nil || len(data) != 12 || binary.LittleEndian.Uint32(data[:4]) != systemTransferTag {
			continue
		}
		out = append(out, SystemTransfer{
			Source:      keys[ix.Accounts[0]],
			Destination: keys[ix.Accounts[1]],
			Lamports:    binary.LittleEndian.Uint64(data[4:]),
		})
	}
	return out
}

// FindTransfer returns the first system transfer from source to destination.
func FindTransfer(tx *Transaction, source, destination string) (SystemTransfer, bool) {
	for _, t := range SystemTransfers(tx) {
		if t.Source == source && t.Destination == destination {
			return t, true
		}
	}
	return SystemTransfer{}, false
}

// DecodeTransaction parses wire bytes into the ledger's confirmed
// transaction shape, without execution metadata.
func DecodeTransaction(raw []byte) (*Transaction, error) {
	tx, err := solanago.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}
	return FromSolanaGo(tx), nil
}

// FromSolanaGo converts a solana-go transaction.
func FromSolanaGo(tx *solanago.Transaction) *Transaction {
	out := &Transaction{
		Message: &TransactionMessage{
			RecentBlockhash: tx.Message.RecentBlockhash.String(),
		},
	}
	if len(tx.Signatures) > 0 {
		out.Signature = tx.Signatures[0].String()
	}
	for _, k := range tx.Message.AccountKeys {
		out.Message.AccountKeys = append(out.Message.AccountKeys, k.String())
	}
	for _, ix := range tx.Message.Instructions {
		accounts := make([]int, len(ix.Accounts))
		for i, a := range ix.Accounts {
			accounts[i] = int(a)
		}
		out.Message.Instructions = append(out.Message.Instructions, CompiledInstruction{
			ProgramIDIndex: int(ix.ProgramIDIndex),
			Accounts:       accounts,
			Data:           base58.Encode(ix.Data),
		})
	}
	return out
}
