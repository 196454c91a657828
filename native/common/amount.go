package common

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// ValidateAmount rejects nil, zero, negative and amounts that do not fit in an
// unsigned 256-bit word.
func ValidateAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if _, overflow := uint256.FromBig(amount); overflow {
		return fmt.Errorf("%w: exceeds 256 bits", ErrInvalidAmount)
	}
	return nil
}

// MaxUint256 returns 2^256-1.
func MaxUint256() *big.Int {
	return new(uint256.Int).SetAllOne().ToBig()
}

// MaxUint128 returns 2^128-1, the "collect everything" sentinel used by the
// exchange fee-collection surface.
func MaxUint128() *big.Int {
	max := new(big.Int).Lsh(big.NewInt(1), 128)
	return max.Sub(max, big.NewInt(1))
}

// Copy returns a detached copy of v, mapping nil to zero.
func Copy(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
