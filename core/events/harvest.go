package events

import (
	"math/big"
	"strconv"

	"feeshare/core/types"
	"feeshare/crypto"
)

const (
	// TypeHarvestFeeShareConfigured is emitted once per pool when the protocol
	// fee share is switched on.
	TypeHarvestFeeShareConfigured = "harvest.feeShareConfigured"
	// TypeHarvestFeesCollected is emitted after protocol fees are pulled from a
	// pool into custody.
	TypeHarvestFeesCollected = "harvest.feesCollected"
	// TypeHarvestConvertedAndDistributed is emitted when custody funds are
	// converted into the reward token and handed to the staking pool.
	TypeHarvestConvertedAndDistributed = "harvest.convertedAndDistributed"
)

// FeeShareConfigured records the one-time fee share setup of a pool.
type FeeShareConfigured struct {
	Caller  crypto.Address
	Pool    [32]byte
	Divisor uint8
}

// EventType satisfies the Event interface.
func (FeeShareConfigured) EventType() string { return TypeHarvestFeeShareConfigured }

// Event converts the structured payload into a broadcastable event.
func (e FeeShareConfigured) Event() *types.Event {
	return &types.Event{Type: TypeHarvestFeeShareConfigured, Attributes: map[string]string{
		"caller":  formatAddress(e.Caller),
		"pool":    formatPoolID(e.Pool),
		"divisor": strconv.FormatUint(uint64(e.Divisor), 10),
	}}
}

// FeesCollected records the amounts actually received from a pool.
type FeesCollected struct {
	Caller  crypto.Address
	Pool    [32]byte
	Token0  crypto.Address
	Token1  crypto.Address
	Amount0 *big.Int
	Amount1 *big.Int
}

// EventType satisfies the Event interface.
func (FeesCollected) EventType() string { return TypeHarvestFeesCollected }

// Event converts the structured payload into a broadcastable event.
func (e FeesCollected) Event() *types.Event {
	return &types.Event{Type: TypeHarvestFeesCollected, Attributes: map[string]string{
		"caller":  formatAddress(e.Caller),
		"pool":    formatPoolID(e.Pool),
		"token0":  formatAddress(e.Token0),
		"token1":  formatAddress(e.Token1),
		"amount0": formatAmount(e.Amount0),
		"amount1": formatAmount(e.Amount1),
	}}
}

// ConvertedAndDistributed records a conversion into the reward token and the
// subsequent distribution.
type ConvertedAndDistributed struct {
	Caller    crypto.Address
	TokenIn   crypto.Address
	AmountIn  *big.Int
	AmountOut *big.Int
	FeeTier   uint32
}

// EventType satisfies the Event interface.
func (ConvertedAndDistributed) EventType() string { return TypeHarvestConvertedAndDistributed }

// Event converts the structured payload into a broadcastable event.
func (e ConvertedAndDistributed) Event() *types.Event {
	return &types.Event{Type: TypeHarvestConvertedAndDistributed, Attributes: map[string]string{
		"caller":    formatAddress(e.Caller),
		"tokenIn":   formatAddress(e.TokenIn),
		"amountIn":  formatAmount(e.AmountIn),
		"amountOut": formatAmount(e.AmountOut),
		"feeTier":   strconv.FormatUint(uint64(e.FeeTier), 10),
	}}
}
