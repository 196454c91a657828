package common

import "errors"

// Error taxonomy shared by the staking and harvest modules. Module packages
// re-export these so callers can match with errors.Is regardless of which
// module surfaced the failure.
var (
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInsufficientStake   = errors.New("insufficient stake")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNoStakers           = errors.New("no stakers")
	ErrReentrant           = errors.New("reentrant call")
	ErrTransferFailed      = errors.New("transfer failed")
	ErrWrongFactory        = errors.New("pool belongs to a different factory")
	ErrAlreadyConfigured   = errors.New("pool fee share already configured")
	ErrNoOutputReceived    = errors.New("swap produced no output")
	ErrSlippage            = errors.New("swap output below minimum")
)
