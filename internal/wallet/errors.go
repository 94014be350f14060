package wallet

import (
	"errors"

	"github.com/hashline-labs/walletd/lib/recovery"
)

var (
	// ErrConnectionFailed indicates a connect or reconnect attempt did not
	// produce a live provider session
	ErrConnectionFailed = errors.New("connection to wallet provider failed")

	// ErrRetryLimitExceeded indicates the bounded retry counter for the
	// episode is exhausted; only an explicit user action resets it
	ErrRetryLimitExceeded = errors.New("retry limit exceeded")

	// ErrExitPathUnavailable indicates the chosen emergency exit path is
	// not eligible at call time
	ErrExitPathUnavailable = errors.New("emergency exit path unavailable")

	// ErrInsufficientBalance indicates the provider rejected a send for
	// lack of funds
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrProvider wraps opaque wallet provider failures
	ErrProvider = errors.New("wallet provider error")

	// ErrInvalidInput and ErrFeeExceedsValue are shared with the recovery
	// builder so callers see one identity for each failure kind
	ErrInvalidInput    = recovery.ErrInvalidInput
	ErrFeeExceedsValue = recovery.ErrFeeExceedsValue
)
