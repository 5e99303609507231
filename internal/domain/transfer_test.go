package domain

import (
	"errors"
	"math/rand"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validIntent() TransferIntent {
	return TransferIntent{
		ProjectID:        7,
		AmountSOL:        decimal.RequireFromString("0.5"),
		RecipientAddress: "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM",
		Memo:             "keep building",
	}
}

func TestLamportsFromSOL_Floor(t *testing.T) {
	tests := []struct {
		amount string
		want   uint64
	}{
		{"0.001", 1_000_000},
		{"1", 1_000_000_000},
		{"0.5", 500_000_000},
		{"1000000", 1_000_000_000_000_000},
		{"0.0000000019", 1},
		{"0.0000000001", 0},
		{"2.123456789", 2_123_456_789},
	}
	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			assert.Equal(t, tt.want, LamportsFromSOL(decimal.RequireFromString(tt.amount)))
		})
	}
}

func TestLamportsFromSOL_RandomAmountsNeverRoundUp(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		// Random amount in [0.001, 1e6] with up to 12 fractional digits.
		units := rng.Int63n(1_000_000_000_000_000_000-1_000_000_000) + 1_000_000_000
		amount := decimal.New(units, -12)

		got := LamportsFromSOL(amount)
		want := amount.Shift(9).Floor()

		require.True(t, decimal.NewFromInt(int64(got)).Equal(want), "amount %s", amount)
		assert.True(t, SOLFromLamports(got).LessThanOrEqual(amount), "amount %s", amount)
	}
}

func TestSOLFromLamports(t *testing.T) {
	assert.Equal(t, "0.000000001", SOLFromLamports(1).String())
	assert.Equal(t, "1.5", SOLFromLamports(1_500_000_000).String())
}

func TestTransferIntent_Validate(t *testing.T) {
	tier := int64(3)
	tests := []struct {
		name   string
		mutate func(*TransferIntent)
		kind   Kind
	}{
		{"valid", func(*TransferIntent) {}, KindUnknown},
		{"missing project", func(i *TransferIntent) { i.ProjectID = 0 }, KindValidation},
		{"below minimum", func(i *TransferIntent) { i.AmountSOL = decimal.RequireFromString("0.0009") }, KindValidation},
		{"minimum", func(i *TransferIntent) { i.AmountSOL = decimal.RequireFromString("0.001") }, KindUnknown},
		{"maximum", func(i *TransferIntent) { i.AmountSOL = decimal.RequireFromString("1000000") }, KindUnknown},
		{"above maximum", func(i *TransferIntent) { i.AmountSOL = decimal.RequireFromString("1000000.000000001") }, KindValidation},
		{"sub-lamport digits", func(i *TransferIntent) { i.AmountSOL = decimal.RequireFromString("0.0010000001") }, KindValidation},
		{"trailing zeros ok", func(i *TransferIntent) { i.AmountSOL = decimal.RequireFromString("0.5000000000") }, KindUnknown},
		{"memo at limit", func(i *TransferIntent) { i.Memo = strings.Repeat("é", MaxMemoLength) }, KindUnknown},
		{"memo too long", func(i *TransferIntent) { i.Memo = string(make([]rune, MaxMemoLength+1)) }, KindValidation},
		{"tier without email", func(i *TransferIntent) { i.RewardTierID = &tier }, KindValidation},
		{"tier with email", func(i *TransferIntent) { i.RewardTierID = &tier; i.DonorEmail = "donor@example.com" }, KindUnknown},
		{"bad email", func(i *TransferIntent) { i.DonorEmail = "not-an-email" }, KindValidation},
		{"no recipient", func(i *TransferIntent) { i.RecipientAddress = "" }, KindConfiguration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intent := validIntent()
			tt.mutate(&intent)
			err := intent.Validate()
			if tt.kind == KindUnknown {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.kind, KindOf(err))
		})
	}
}

func TestTransferIntent_WithRecipientCopies(t *testing.T) {
	tier := int64(1)
	orig := validIntent()
	orig.RecipientAddress = ""
	orig.RewardTierID = &tier

	updated := orig.WithRecipient("recipient")
	*updated.RewardTierID = 99

	assert.Empty(t, orig.RecipientAddress)
	assert.Equal(t, "recipient", updated.RecipientAddress)
	assert.Equal(t, int64(1), *orig.RewardTierID)
}

func TestErrorIsMatchesKind(t *testing.T) {
	err := E(KindUserRejected, "sign", errors.New("User rejected the request."))
	wrapped := errors.Join(errors.New("outer"), err)

	assert.ErrorIs(t, wrapped, ErrUserRejected)
	assert.NotErrorIs(t, wrapped, ErrSubmission)
	assert.Equal(t, KindUserRejected, KindOf(wrapped))
	assert.Contains(t, err.Error(), "sign")
}

func TestDescribe_EveryKindHasPlainMessage(t *testing.T) {
	seen := map[string]Kind{}
	for k := range kindNames {
		msg := Describe(E(k, "op", errors.New(`{"code":-32002,"message":"raw rpc"}`)))
		require.NotEmpty(t, msg, k.String())
		assert.NotContains(t, msg, "-32002", k.String())
		assert.NotContains(t, msg, "raw rpc", k.String())
		if prev, dup := seen[msg]; dup && k != KindUnknown && prev != KindUnknown {
			t.Errorf("kinds %s and %s share message %q", prev, k, msg)
		}
		seen[msg] = k
	}

	assert.Equal(t, "", Describe(nil))
	assert.Equal(t, Describe(E(KindUnknown, "", nil)), Describe(errors.New("plain")))
}

func TestDescribe_ValidationIncludesReason(t *testing.T) {
	intent := validIntent()
	intent.ProjectID = 0
	assert.Equal(t, "The donation details are invalid: a project is required.", Describe(intent.Validate()))
}

func TestParseStageRoundTrip(t *testing.T) {
	for _, s := range Stages {
		got, err := ParseStage(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
	_, err := ParseStage("mint")
	assert.Error(t, err)
}

func TestAuthMessage(t *testing.T) {
	assert.Equal(t, "Sign this message to authenticate with Solio.\n\nNonce: abc", AuthMessage("Solio", "abc"))
}
