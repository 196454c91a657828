package server

import (
	"errors"
	"net/http"

	"feeshare/core"
	"feeshare/native/amm"
	nativecommon "feeshare/native/common"
	"feeshare/native/token"
)

// errBadRequest marks request decoding failures.
var errBadRequest = errors.New("bad request")

var statusTable = []struct {
	err    error
	status int
}{
	{errBadRequest, http.StatusBadRequest},
	{nativecommon.ErrInvalidAmount, http.StatusBadRequest},
	{amm.ErrUnsupportedFee, http.StatusBadRequest},
	{amm.ErrIdenticalTokens, http.StatusBadRequest},
	{amm.ErrPriceLimitUnsupported, http.StatusBadRequest},
	{amm.ErrPoolNotFound, http.StatusNotFound},
	{token.ErrUnknownToken, http.StatusNotFound},
	{nativecommon.ErrWrongFactory, http.StatusForbidden},
	{amm.ErrNotOwner, http.StatusForbidden},
	{nativecommon.ErrAlreadyConfigured, http.StatusConflict},
	{nativecommon.ErrReentrant, http.StatusConflict},
	{nativecommon.ErrInsufficientStake, http.StatusUnprocessableEntity},
	{nativecommon.ErrInsufficientBalance, http.StatusUnprocessableEntity},
	{token.ErrInsufficientAllowance, http.StatusUnprocessableEntity},
	{nativecommon.ErrNoStakers, http.StatusUnprocessableEntity},
	{nativecommon.ErrNoOutputReceived, http.StatusUnprocessableEntity},
	{nativecommon.ErrSlippage, http.StatusUnprocessableEntity},
	{amm.ErrTooLittleReceived, http.StatusUnprocessableEntity},
	{amm.ErrDeadlineExpired, http.StatusUnprocessableEntity},
	{amm.ErrInsufficientLiquidity, http.StatusUnprocessableEntity},
	{nativecommon.ErrTransferFailed, http.StatusUnprocessableEntity},
	{core.ErrNodeClosed, http.StatusServiceUnavailable},
}

// statusFor maps an operation error onto an HTTP status. First match wins.
func statusFor(err error) int {
	for _, entry := range statusTable {
		if errors.Is(err, entry.err) {
			return entry.status
		}
	}
	return http.StatusInternalServerError
}
