package staking

import (
	"errors"

	nativecommon "feeshare/native/common"
)

var (
	ErrInvalidAmount     = nativecommon.ErrInvalidAmount
	ErrInsufficientStake = nativecommon.ErrInsufficientStake
	ErrNoStakers         = nativecommon.ErrNoStakers
	ErrReentrant         = nativecommon.ErrReentrant
	ErrTransferFailed    = nativecommon.ErrTransferFailed
)

var (
	errNilState  = errors.New("staking engine: state not configured")
	errNilTokens = errors.New("staking engine: tokens not configured")
)
