package common

import (
	"math/big"
	"time"

	"feeshare/crypto"
)

// Pool is the fee-sharing surface of a single exchange pool.
type Pool interface {
	ID() [32]byte
	// Factory returns the address of the factory that deployed the pool.
	Factory() crypto.Address
	Token0() crypto.Address
	Token1() crypto.Address
	// SetFeeProtocol sets the protocol share of swap fees as 1/n per side.
	SetFeeProtocol(caller crypto.Address, feeProtocol0, feeProtocol1 uint8) error
	// CollectProtocol sends up to the requested accrued protocol fees to
	// recipient and returns the amounts actually sent.
	CollectProtocol(caller, recipient crypto.Address, amount0Requested, amount1Requested *big.Int) (*big.Int, *big.Int, error)
}

// ExactInputSingleParams describes a single-hop swap of a fixed input amount.
type ExactInputSingleParams struct {
	TokenIn          crypto.Address
	TokenOut         crypto.Address
	Fee              uint32
	Recipient        crypto.Address
	Deadline         time.Time
	AmountIn         *big.Int
	AmountOutMinimum *big.Int
	// SqrtPriceLimitX96 of nil or zero means no price limit.
	SqrtPriceLimitX96 *big.Int
}

// Router executes swaps on behalf of a payer that has approved the router's
// address to pull the input token.
type Router interface {
	Address() crypto.Address
	ExactInputSingle(payer crypto.Address, params ExactInputSingleParams) (*big.Int, error)
}
