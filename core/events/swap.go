package events

import (
	"math/big"
	"strconv"

	"feeshare/core/types"
	"feeshare/crypto"
)

const (
	// TypeAMMPoolCreated is emitted when the factory creates a pool.
	TypeAMMPoolCreated = "amm.poolCreated"
	// TypeAMMLiquidityAdded is emitted when a provider deposits liquidity.
	TypeAMMLiquidityAdded = "amm.liquidityAdded"
	// TypeAMMSwap is emitted for every settled swap.
	TypeAMMSwap = "amm.swap"
	// TypeAMMFeeProtocolSet is emitted when the protocol fee share changes.
	TypeAMMFeeProtocolSet = "amm.feeProtocolSet"
	// TypeAMMProtocolCollected is emitted when protocol fees leave a pool.
	TypeAMMProtocolCollected = "amm.protocolCollected"
)

// PoolCreated records a new pool.
type PoolCreated struct {
	Pool   [32]byte
	Token0 crypto.Address
	Token1 crypto.Address
	Fee    uint32
}

func (PoolCreated) EventType() string { return TypeAMMPoolCreated }

func (e PoolCreated) Event() *types.Event {
	return &types.Event{Type: TypeAMMPoolCreated, Attributes: map[string]string{
		"pool":   formatPoolID(e.Pool),
		"token0": formatAddress(e.Token0),
		"token1": formatAddress(e.Token1),
		"fee":    strconv.FormatUint(uint64(e.Fee), 10),
	}}
}

// LiquidityAdded records a deposit.
type LiquidityAdded struct {
	Pool      [32]byte
	Provider  crypto.Address
	Amount0   *big.Int
	Amount1   *big.Int
	Liquidity *big.Int
}

func (LiquidityAdded) EventType() string { return TypeAMMLiquidityAdded }

func (e LiquidityAdded) Event() *types.Event {
	return &types.Event{Type: TypeAMMLiquidityAdded, Attributes: map[string]string{
		"pool":      formatPoolID(e.Pool),
		"provider":  formatAddress(e.Provider),
		"amount0":   formatAmount(e.Amount0),
		"amount1":   formatAmount(e.Amount1),
		"liquidity": formatAmount(e.Liquidity),
	}}
}

// Swap records an exact-input swap.
type Swap struct {
	Pool        [32]byte
	Payer       crypto.Address
	Recipient   crypto.Address
	TokenIn     crypto.Address
	AmountIn    *big.Int
	AmountOut   *big.Int
	ProtocolFee *big.Int
}

func (Swap) EventType() string { return TypeAMMSwap }

func (e Swap) Event() *types.Event {
	return &types.Event{Type: TypeAMMSwap, Attributes: map[string]string{
		"pool":        formatPoolID(e.Pool),
		"payer":       formatAddress(e.Payer),
		"recipient":   formatAddress(e.Recipient),
		"tokenIn":     formatAddress(e.TokenIn),
		"amountIn":    formatAmount(e.AmountIn),
		"amountOut":   formatAmount(e.AmountOut),
		"protocolFee": formatAmount(e.ProtocolFee),
	}}
}

// FeeProtocolSet records a protocol fee share update.
type FeeProtocolSet struct {
	Pool         [32]byte
	FeeProtocol0 uint8
	FeeProtocol1 uint8
}

func (FeeProtocolSet) EventType() string { return TypeAMMFeeProtocolSet }

func (e FeeProtocolSet) Event() *types.Event {
	return &types.Event{Type: TypeAMMFeeProtocolSet, Attributes: map[string]string{
		"pool":         formatPoolID(e.Pool),
		"feeProtocol0": strconv.FormatUint(uint64(e.FeeProtocol0), 10),
		"feeProtocol1": strconv.FormatUint(uint64(e.FeeProtocol1), 10),
	}}
}

// ProtocolCollected records protocol fees paid out of a pool.
type ProtocolCollected struct {
	Pool      [32]byte
	Recipient crypto.Address
	Amount0   *big.Int
	Amount1   *big.Int
}

func (ProtocolCollected) EventType() string { return TypeAMMProtocolCollected }

func (e ProtocolCollected) Event() *types.Event {
	return &types.Event{Type: TypeAMMProtocolCollected, Attributes: map[string]string{
		"pool":      formatPoolID(e.Pool),
		"recipient": formatAddress(e.Recipient),
		"amount0":   formatAmount(e.Amount0),
		"amount1":   formatAmount(e.Amount1),
	}}
}
