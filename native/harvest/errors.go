package harvest

import (
	"errors"

	nativecommon "feeshare/native/common"
)

var (
	ErrInvalidAmount       = nativecommon.ErrInvalidAmount
	ErrInsufficientBalance = nativecommon.ErrInsufficientBalance
	ErrReentrant           = nativecommon.ErrReentrant
	ErrTransferFailed      = nativecommon.ErrTransferFailed
	ErrWrongFactory        = nativecommon.ErrWrongFactory
	ErrAlreadyConfigured   = nativecommon.ErrAlreadyConfigured
	ErrNoOutputReceived    = nativecommon.ErrNoOutputReceived
	ErrSlippage            = nativecommon.ErrSlippage
)

var (
	errNilState        = errors.New("harvest engine: state not configured")
	errNilCollaborator = errors.New("harvest engine: collaborators not configured")
	errNilPool         = errors.New("harvest engine: pool required")
)
