package solana

import (
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// Key and signature sizes in bytes.
const (
	PublicKeySize = 32
	SignatureSize = 64
)

// SystemProgramID is the native program that moves lamports.
const SystemProgramID = "11111111111111111111111111111111"

// ErrInvalidAddress is returned for strings that are not 32-byte base58 keys.
var ErrInvalidAddress = errors.New("invalid address")

// ErrInvalidSignature is returned for strings that are not 64-byte base58 signatures.
var ErrInvalidSignature = errors.New("invalid signature encoding")

// DecodeAddress decodes a base58 public key.
func DecodeAddress(addr string) ([]byte, error) {
	if len(addr) < 32 || len(addr) > 44 {
		return nil, fmt.Errorf("%w: length %d", ErrInvalidAddress, len(addr))
	}
	b, err := base58.Decode(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if len(b) != PublicKeySize {
		return nil, fmt.Errorf("%w: decoded to %d bytes", ErrInvalidAddress, len(b))
	}
	return b, nil
}

// ValidateAddress checks that addr is a well-formed account address.
// Program-derived addresses are accepted.
func ValidateAddress(addr string) error {
	_, err := DecodeAddress(addr)
	return err
}

// ValidateWalletAddress checks that addr can sign: it must be a point on
// the ed25519 curve.
func ValidateWalletAddress(addr string) error {
	b, err := DecodeAddress(addr)
	if err != nil {
		return err
	}
	if !IsOnCurve(b) {
		return fmt.Errorf("%w: %s is not on the ed25519 curve", ErrInvalidAddress, addr)
	}
	return nil
}

// IsOnCurve reports whether point is a valid compressed ed25519 point.
func IsOnCurve(point []byte) bool {
	if len(point) != PublicKeySize {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}

// EncodeSignature renders a raw signature as base58.
func EncodeSignature(sig []byte) string {
	return base58.Encode(sig)
}

// DecodeSignature parses a base58 signature.
func DecodeSignature(s string) ([]byte, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if len(b) != SignatureSize {
		return nil, fmt.Errorf("%w: decoded to %d bytes", ErrInvalidSignature, len(b))
	}
	return b, nil
}
