package domain

import (
	"errors"
	"fmt"
)

// Failure kinds surfaced to callers. Specific errors below wrap exactly one of
// these, so callers can match either the exact error or its kind with errors.Is.
var (
	ErrNotFound             = errors.New("not found")
	ErrInvalidState         = errors.New("invalid state")
	ErrExpired              = errors.New("expired")
	ErrInvalidArgument      = errors.New("invalid argument")
	ErrInsufficientPosition = errors.New("insufficient position")
	ErrConflict             = errors.New("conflict")
)

var (
	ErrOrderNotFound         = fmt.Errorf("order %w", ErrNotFound)
	ErrOrderNotPending       = fmt.Errorf("order is not pending: %w", ErrInvalidState)
	ErrInvalidTransition     = fmt.Errorf("order status transition not allowed: %w", ErrInvalidState)
	ErrPaymentWindowExpired  = fmt.Errorf("payment window %w", ErrExpired)
	ErrOrderConflict         = fmt.Errorf("order was modified concurrently: %w", ErrConflict)
	ErrIdempotencyConflict   = fmt.Errorf("idempotency key reused with different request: %w", ErrConflict)
	ErrInvalidID             = fmt.Errorf("malformed id: %w", ErrInvalidArgument)
	ErrInvalidAmount         = fmt.Errorf("amount must be positive and fit the stored precision: %w", ErrInvalidArgument)
	ErrInvalidFees           = fmt.Errorf("fees must not be negative and fit the stored precision: %w", ErrInvalidArgument)
	ErrFeesExceedAmount      = fmt.Errorf("fees exceed amount: %w", ErrInvalidArgument)
	ErrInvalidCurrency       = fmt.Errorf("currency is required: %w", ErrInvalidArgument)
	ErrInvalidPaymentMethod  = fmt.Errorf("unsupported payment method: %w", ErrInvalidArgument)
	ErrProofRequired         = fmt.Errorf("payment proof transaction reference is required: %w", ErrInvalidArgument)
	ErrInvalidGuestID        = fmt.Errorf("malformed guest id: %w", ErrInvalidArgument)
	ErrInvalidAccountID      = fmt.Errorf("malformed account id: %w", ErrInvalidArgument)
	ErrProductRequired       = fmt.Errorf("product id is required: %w", ErrInvalidArgument)
	ErrIdempotencyKeyMissing = fmt.Errorf("idempotency key required: %w", ErrInvalidArgument)

	ErrTransactionNotFound = fmt.Errorf("wallet transaction %w", ErrNotFound)
	ErrUnknownTxType       = fmt.Errorf("unknown transaction type: %w", ErrInvalidArgument)
	ErrDirectionRequired   = fmt.Errorf("direction required for transaction type: %w", ErrInvalidArgument)
	ErrDetailsMismatch     = fmt.Errorf("transaction details do not match type: %w", ErrInvalidArgument)
	ErrInvalidSourceRef    = fmt.Errorf("malformed source reference: %w", ErrInvalidArgument)
	ErrInsufficientBalance = fmt.Errorf("insufficient balance: %w", ErrInvalidState)
	ErrTxStatusTransition  = fmt.Errorf("transaction status transition not allowed: %w", ErrInvalidState)
	ErrBalanceConflict     = fmt.Errorf("previous balance does not match ledger head: %w", ErrConflict)
	ErrTransactionConflict = fmt.Errorf("wallet transaction was modified concurrently: %w", ErrConflict)
	ErrOwnerRequired       = fmt.Errorf("owner id is required: %w", ErrInvalidArgument)
	ErrInstrumentRequired  = fmt.Errorf("instrument id is required: %w", ErrInvalidArgument)
	ErrInvalidUnits        = fmt.Errorf("units must be positive: %w", ErrInvalidArgument)
	ErrInvalidPrice        = fmt.Errorf("price must be positive: %w", ErrInvalidArgument)
	ErrInvalidTradeSide    = fmt.Errorf("trade side must be BUY or SELL: %w", ErrInvalidArgument)
	ErrSellExceedsHolding  = fmt.Errorf("sell exceeds held units: %w", ErrInsufficientPosition)
	ErrHoldingConflict     = fmt.Errorf("holding was modified concurrently: %w", ErrConflict)
	ErrPriceUnavailable    = fmt.Errorf("reference price %w", ErrNotFound)
)

// Kind classifies err into one of the failure kinds, or nil when err is not a
// domain failure (storage or transport errors, for example).
func Kind(err error) error {
	for _, kind := range []error{
		ErrNotFound,
		ErrInvalidState,
		ErrExpired,
		ErrInvalidArgument,
		ErrInsufficientPosition,
		ErrConflict,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
