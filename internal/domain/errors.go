package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across adapters.
var (
	// ErrNoTrades means the source has no trades for the wallet. Not a failure.
	ErrNoTrades = errors.New("no trades for wallet")

	// ErrNoCredentials means no stored credentials and no derivation path worked.
	ErrNoCredentials = errors.New("no exchange credentials for user")
)

// FailureKind classifies a copy-trade failure so clients can tell apart
// "configure your credentials" from "the exchange said no".
type FailureKind string

const (
	FailInvalidTradeData  FailureKind = "InvalidTradeData"
	FailSourceUnavailable FailureKind = "SourceUnavailable"
	FailNeedsCredentials  FailureKind = "NeedsCredentials"
	FailInsufficientFunds FailureKind = "InsufficientFunds"
	FailExchangeRejected  FailureKind = "ExchangeRejected"
	FailInternal          FailureKind = "InternalError"
)

// Failure is a classified execution error. It wraps the upstream cause so
// the original status/message is preserved.
type Failure struct {
	Kind FailureKind
	Err  error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return string(f.Kind)
	}
	return fmt.Sprintf("%s: %v", f.Kind, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// NewFailure wraps err with a classification.
func NewFailure(kind FailureKind, err error) *Failure {
	return &Failure{Kind: kind, Err: err}
}

// ClassifyFailure extracts the FailureKind from err, defaulting to
// FailInternal for unclassified errors.
func ClassifyFailure(err error) FailureKind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return FailInternal
}
