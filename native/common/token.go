package common

import (
	"fmt"
	"math/big"

	"feeshare/crypto"
)

// Token is the fungible-ledger surface the core modules consume for a single
// asset. Mutating calls report success with a boolean; a false return is a
// hard failure and must never be ignored.
type Token interface {
	Address() crypto.Address
	BalanceOf(account crypto.Address) (*big.Int, error)
	// Transfer moves amount from the calling account to another account.
	Transfer(from, to crypto.Address, amount *big.Int) (bool, error)
	// TransferFrom moves amount from an owner to a recipient on behalf of the
	// spender, consuming the spender's allowance.
	TransferFrom(spender, from, to crypto.Address, amount *big.Int) (bool, error)
	Approve(owner, spender crypto.Address, amount *big.Int) (bool, error)
}

// CheckTransfer collapses a Token call result into a single error carrying
// ErrTransferFailed.
func CheckTransfer(ok bool, err error) error {
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}
	if !ok {
		return ErrTransferFailed
	}
	return nil
}
