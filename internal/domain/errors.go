package domain

import (
	"errors"
	"fmt"
)

// Not-found sentinels, one per record type. A completion callback carrying an
// unknown correlation id surfaces ErrTransactionNotFound; it must never create
// a row.
var (
	ErrPaymentRequestNotFound = errors.New("payment request not found")
	ErrProviderNotFound       = errors.New("provider not found")
	ErrTransactionNotFound    = errors.New("transaction not found")
)

// ValidationError covers bad input the caller can fix: a forged or expired
// amount token, a disallowed custom amount, a missing required field. Never
// retried automatically.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// ProviderError means the external provider rejected or failed an initiation
// call. Surfaced to the caller; no automatic retry beyond the single
// platform-credential fallback for providers that support it.
type ProviderError struct {
	Provider ProviderType
	Op       string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ConflictError marks an operation refused by current state: deleting a
// payment request that already has transactions, or selecting a disabled or
// disconnected provider.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string { return e.Reason }

func IsNotFound(err error) bool {
	return errors.Is(err, ErrPaymentRequestNotFound) ||
		errors.Is(err, ErrProviderNotFound) ||
		errors.Is(err, ErrTransactionNotFound)
}
