package common

import (
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGuardRejectsNestedEntry(t *testing.T) {
	var guard ReentrancyGuard

	release, err := guard.Enter()
	require.NoError(t, err)
	require.True(t, guard.Busy())

	_, err = guard.Enter()
	require.ErrorIs(t, err, ErrReentrant)

	release()
	require.False(t, guard.Busy())

	// Release is idempotent and must not free a later holder.
	again, err := guard.Enter()
	require.NoError(t, err)
	release()
	require.True(t, guard.Busy())
	again()
	require.False(t, guard.Busy())
}

func TestGuardReleasedOnPanic(t *testing.T) {
	var guard ReentrancyGuard
	func() {
		defer func() { _ = recover() }()
		release, err := guard.Enter()
		require.NoError(t, err)
		defer release()
		panic("boom")
	}()
	require.False(t, guard.Busy())
}

func TestValidateAmount(t *testing.T) {
	require.ErrorIs(t, ValidateAmount(nil), ErrInvalidAmount)
	require.ErrorIs(t, ValidateAmount(big.NewInt(0)), ErrInvalidAmount)
	require.ErrorIs(t, ValidateAmount(big.NewInt(-1)), ErrInvalidAmount)
	require.NoError(t, ValidateAmount(big.NewInt(1)))
	require.NoError(t, ValidateAmount(MaxUint256()))

	tooBig := new(big.Int).Add(MaxUint256(), big.NewInt(1))
	require.ErrorIs(t, ValidateAmount(tooBig), ErrInvalidAmount)
}

func TestCheckTransfer(t *testing.T) {
	require.NoError(t, CheckTransfer(true, nil))
	require.ErrorIs(t, CheckTransfer(false, nil), ErrTransferFailed)

	cause := errors.New("ledger offline")
	err := CheckTransfer(true, cause)
	require.ErrorIs(t, err, ErrTransferFailed)
	require.ErrorIs(t, err, cause)

	require.Equal(t, 128, MaxUint128().BitLen())
}
