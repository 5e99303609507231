package domain

import (
	"math/big"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// LamportsPerSOL is the number of lamports in one SOL.
const LamportsPerSOL = 1_000_000_000

// MaxMemoLength bounds the donor message in characters.
const MaxMemoLength = 1000

var (
	// MinDonationSOL and MaxDonationSOL bound a single donation, inclusive.
	MinDonationSOL = decimal.RequireFromString("0.001")
	MaxDonationSOL = decimal.RequireFromString("1000000")

	lamportsShift int32 = 9
)

// LamportsFromSOL converts a SOL amount to lamports, flooring anything
// below one lamport.
func LamportsFromSOL(amount decimal.Decimal) uint64 {
	l := amount.Shift(lamportsShift).Floor()
	if l.Sign() <= 0 {
		return 0
	}
	return uint64(l.IntPart())
}

// SOLFromLamports converts lamports back to an exact SOL amount.
func SOLFromLamports(lamports uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(lamports), -lamportsShift)
}

// HasSubLamportPrecision reports whether amount carries digits below one lamport.
func HasSubLamportPrecision(amount decimal.Decimal) bool {
	return !amount.Equal(amount.Truncate(lamportsShift))
}

// TransferIntent is what the donor asked for. It is treated as a value:
// the orchestrator copies it and fills in the platform recipient.
type TransferIntent struct {
	ProjectID        int64
	AmountSOL        decimal.Decimal
	RecipientAddress string
	Memo             string
	RewardTierID     *int64
	DonorEmail       string
}

// WithRecipient returns a copy of the intent addressed to recipient.
func (i TransferIntent) WithRecipient(recipient string) TransferIntent {
	i.RecipientAddress = recipient
	if i.RewardTierID != nil {
		id := *i.RewardTierID
		i.RewardTierID = &id
	}
	return i
}

// Lamports is the amount to transfer in the ledger's base unit.
func (i TransferIntent) Lamports() uint64 {
	return LamportsFromSOL(i.AmountSOL)
}

// Validate checks the intent before any wallet or network interaction.
// A missing recipient is a configuration problem, everything else is
// reported as a validation failure.
func (i TransferIntent) Validate() error {
	if i.ProjectID <= 0 {
		return invalid("project_id", "a project is required")
	}
	if i.AmountSOL.LessThan(MinDonationSOL) || i.AmountSOL.GreaterThan(MaxDonationSOL) {
		return invalid("amount_sol", "amount must be between %s and %s SOL", MinDonationSOL, MaxDonationSOL)
	}
	if HasSubLamportPrecision(i.AmountSOL) {
		return invalid("amount_sol", "amount cannot have more than 9 decimal places")
	}
	if utf8.RuneCountInString(i.Memo) > MaxMemoLength {
		return invalid("message", "message cannot exceed %d characters", MaxMemoLength)
	}
	if i.DonorEmail != "" {
		if _, err := mail.ParseAddress(i.DonorEmail); err != nil {
			return invalid("donor_email", "email address is not valid")
		}
	}
	if i.RewardTierID != nil && i.DonorEmail == "" {
		return invalid("donor_email", "email is required for reward delivery")
	}
	if strings.TrimSpace(i.RecipientAddress) == "" {
		return E(KindConfiguration, "validate", errNoRecipient)
	}
	return nil
}

var errNoRecipient = &ValidationError{Field: "platform_wallet", Reason: "platform wallet is not configured"}
