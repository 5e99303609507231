package domain

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for the caller. Every error that leaves the
// donation pipeline carries exactly one Kind.
type Kind int

const (
	KindUnknown Kind = iota
	KindUserRejected
	KindNotInstalled
	KindProvider
	KindValidation
	KindConfiguration
	KindNetwork
	KindServer
	KindInvalidSignature
	KindExpiredNonce
	KindSubmission
	KindConfirmationFailed
	KindConfirmationAmbiguous
	KindReconciliation
)

var kindNames = map[Kind]string{
	KindUnknown:               "unknown",
	KindUserRejected:          "user_rejected",
	KindNotInstalled:          "not_installed",
	KindProvider:              "provider",
	KindValidation:            "validation",
	KindConfiguration:         "configuration",
	KindNetwork:               "network",
	KindServer:                "server",
	KindInvalidSignature:      "invalid_signature",
	KindExpiredNonce:          "expired_nonce",
	KindSubmission:            "submission",
	KindConfirmationFailed:    "confirmation_failed",
	KindConfirmationAmbiguous: "confirmation_ambiguous",
	KindReconciliation:        "reconciliation",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is a classified failure. Op names the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// E builds a classified error.
func E(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches bare sentinels by kind, so errors.Is(err, ErrUserRejected)
// holds for any *Error of KindUserRejected.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Op != "" || t.Err != nil {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is checks.
var (
	ErrUserRejected          = &Error{Kind: KindUserRejected}
	ErrNotInstalled          = &Error{Kind: KindNotInstalled}
	ErrProvider              = &Error{Kind: KindProvider}
	ErrValidation            = &Error{Kind: KindValidation}
	ErrConfiguration         = &Error{Kind: KindConfiguration}
	ErrNetwork               = &Error{Kind: KindNetwork}
	ErrServer                = &Error{Kind: KindServer}
	ErrInvalidSignature      = &Error{Kind: KindInvalidSignature}
	ErrExpiredNonce          = &Error{Kind: KindExpiredNonce}
	ErrSubmission            = &Error{Kind: KindSubmission}
	ErrConfirmationFailed    = &Error{Kind: KindConfirmationFailed}
	ErrConfirmationAmbiguous = &Error{Kind: KindConfirmationAmbiguous}
	ErrReconciliation        = &Error{Kind: KindReconciliation}
)

// KindOf returns the kind of the outermost classified error in the chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Describe renders err as a sentence suitable for an end user.
// Raw protocol errors never pass through.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	switch KindOf(err) {
	case KindUserRejected:
		return "You declined the request in your wallet. No funds were moved."
	case KindNotInstalled:
		return "No supported wallet is installed. Install Phantom, Solflare or Backpack to continue."
	case KindProvider:
		return "Your wallet reported an error. Please try again."
	case KindValidation:
		var e *Error
		if errors.As(err, &e) && e.Err != nil {
			var v *ValidationError
			if errors.As(e.Err, &v) {
				return "The donation details are invalid: " + v.Reason + "."
			}
		}
		return "The donation details are invalid."
	case KindConfiguration:
		return "Donations are temporarily unavailable because the platform is not fully configured."
	case KindNetwork:
		return "Could not reach the server. Check your connection and try again."
	case KindServer:
		return "The server could not process the request. Please try again later."
	case KindInvalidSignature:
		return "Your wallet signature could not be verified. Please sign in again."
	case KindExpiredNonce:
		return "The sign-in request expired. Please try again."
	case KindSubmission:
		return "The network rejected the transaction. No donation was made."
	case KindConfirmationFailed:
		return "The transaction failed on-chain. Your donation was not completed."
	case KindConfirmationAmbiguous:
		return "Your transaction was sent but is not confirmed yet. It may still be processing."
	case KindReconciliation:
		return "Your transfer may have completed but the donation could not be recorded. Keep your transaction signature and contact support."
	default:
		return "Something went wrong. Please try again."
	}
}

// ValidationError carries a user-facing reason for rejected input.
type ValidationError struct {
	Field  string
	Reason string
}

func (v *ValidationError) Error() string {
	if v.Field == "" {
		return v.Reason
	}
	return v.Field + ": " + v.Reason
}

func invalid(field, format string, args ...interface{}) error {
	return E(KindValidation, "validate", &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)})
}
