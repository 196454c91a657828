package token

import (
	"errors"

	nativecommon "feeshare/native/common"
)

var (
	ErrInvalidAmount       = nativecommon.ErrInvalidAmount
	ErrInsufficientBalance = nativecommon.ErrInsufficientBalance

	ErrUnknownToken          = errors.New("token: unknown token")
	ErrTokenExists           = errors.New("token: already registered")
	ErrInsufficientAllowance = errors.New("token: insufficient allowance")
	ErrPaused                = errors.New("token: transfers paused")
	ErrSupplyOverflow        = errors.New("token: supply exceeds 256 bits")
	ErrInvalidSymbol         = errors.New("token: symbol required")

	errNilState = errors.New("token ledger: state not configured")
)
