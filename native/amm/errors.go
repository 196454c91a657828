package amm

import (
	"errors"

	nativecommon "feeshare/native/common"
)

var (
	ErrInvalidAmount  = nativecommon.ErrInvalidAmount
	ErrReentrant      = nativecommon.ErrReentrant
	ErrTransferFailed = nativecommon.ErrTransferFailed

	ErrNotOwner              = errors.New("amm: caller is not the factory owner")
	ErrInvalidFeeProtocol    = errors.New("amm: fee protocol must be 0 or between 4 and 10")
	ErrUnsupportedFee        = errors.New("amm: unsupported fee tier")
	ErrIdenticalTokens       = errors.New("amm: identical tokens")
	ErrPoolExists            = errors.New("amm: pool already exists")
	ErrPoolNotFound          = errors.New("amm: pool not found")
	ErrInsufficientLiquidity = errors.New("amm: insufficient liquidity")
	ErrDeadlineExpired       = errors.New("amm: transaction too old")
	ErrTooLittleReceived     = errors.New("amm: too little received")
	ErrPriceLimitUnsupported = errors.New("amm: price limits are not supported")

	errNilState = errors.New("amm: state not configured")
)
