package amm

import (
	"fmt"
	"math/big"

	"feeshare/core/events"
	"feeshare/crypto"
	nativecommon "feeshare/native/common"
)

// Pool is a handle to a deployed pool. All state lives in the factory store.
type Pool struct {
	factory *Factory
	id      [32]byte
	key     PoolKey
}

var _ nativecommon.Pool = (*Pool)(nil)

// ID returns the pool identifier.
func (p *Pool) ID() [32]byte { return p.id }

// Factory returns the deploying factory address.
func (p *Pool) Factory() crypto.Address { return p.factory.address }

// Token0 returns the lower-sorted token.
func (p *Pool) Token0() crypto.Address { return p.key.Token0 }

// Token1 returns the higher-sorted token.
func (p *Pool) Token1() crypto.Address { return p.key.Token1 }

// Fee returns the fee tier in hundredths of a bip.
func (p *Pool) Fee() uint32 { return p.key.Fee }

// Key returns the pool key.
func (p *Pool) Key() PoolKey { return p.key }

// Address returns the pool custody account.
func (p *Pool) Address() crypto.Address { return PoolAddress(p.id) }

// State returns a copy of the persisted pool record.
func (p *Pool) State() (*PoolRecord, error) {
	return p.factory.record(p.id)
}

// LiquidityOf returns the liquidity credited to provider.
func (p *Pool) LiquidityOf(provider crypto.Address) (*big.Int, error) {
	if p.factory.state == nil {
		return nil, errNilState
	}
	var rec liquidityRecord
	ok, err := p.factory.state.KVGet(liquidityStorageKey(p.id, provider), &rec)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return nativecommon.Copy(rec.Amount), nil
}

// SetFeeProtocol sets the protocol share of swap fees to 1/n per side. Zero
// switches the share off for that side.
func (p *Pool) SetFeeProtocol(caller crypto.Address, feeProtocol0, feeProtocol1 uint8) error {
	release, err := p.factory.guard.Enter()
	if err != nil {
		return err
	}
	defer release()

	if !caller.Equal(p.factory.owner) {
		return ErrNotOwner
	}
	if !validFeeProtocol(feeProtocol0) || !validFeeProtocol(feeProtocol1) {
		return ErrInvalidFeeProtocol
	}
	record, err := p.factory.record(p.id)
	if err != nil {
		return err
	}
	record.FeeProtocol0 = feeProtocol0
	record.FeeProtocol1 = feeProtocol1
	if err := p.factory.putRecord(record); err != nil {
		return err
	}
	p.factory.emitter.Emit(events.FeeProtocolSet{Pool: p.id, FeeProtocol0: feeProtocol0, FeeProtocol1: feeProtocol1})
	return nil
}

func validFeeProtocol(n uint8) bool {
	return n == 0 || (n >= 4 && n <= 10)
}

// CollectProtocol sends accrued protocol fees, capped by the requested
// amounts, to recipient.
func (p *Pool) CollectProtocol(caller, recipient crypto.Address, amount0Requested, amount1Requested *big.Int) (*big.Int, *big.Int, error) {
	release, err := p.factory.guard.Enter()
	if err != nil {
		return nil, nil, err
	}
	defer release()

	if !caller.Equal(p.factory.owner) {
		return nil, nil, ErrNotOwner
	}
	record, err := p.factory.record(p.id)
	if err != nil {
		return nil, nil, err
	}
	amount0 := minBig(record.ProtocolFees0, nativecommon.Copy(amount0Requested))
	amount1 := minBig(record.ProtocolFees1, nativecommon.Copy(amount1Requested))

	custody := p.Address()
	if err := p.factory.transferOut(p.key.Token0, custody, recipient, amount0); err != nil {
		return nil, nil, fmt.Errorf("amm: collect protocol token0: %w", err)
	}
	if err := p.factory.transferOut(p.key.Token1, custody, recipient, amount1); err != nil {
		return nil, nil, fmt.Errorf("amm: collect protocol token1: %w", err)
	}
	record.ProtocolFees0.Sub(record.ProtocolFees0, amount0)
	record.ProtocolFees1.Sub(record.ProtocolFees1, amount1)
	if err := p.factory.putRecord(record); err != nil {
		return nil, nil, err
	}
	p.factory.emitter.Emit(events.ProtocolCollected{
		Pool:      p.id,
		Recipient: recipient,
		Amount0:   new(big.Int).Set(amount0),
		Amount1:   new(big.Int).Set(amount1),
	})
	return amount0, amount1, nil
}

// AddLiquidity pulls both tokens from provider into the pool and credits
// liquidity. The provider must have approved the pool custody address.
func (p *Pool) AddLiquidity(provider crypto.Address, amount0, amount1 *big.Int) (*big.Int, error) {
	if err := nativecommon.ValidateAmount(amount0); err != nil {
		return nil, err
	}
	if err := nativecommon.ValidateAmount(amount1); err != nil {
		return nil, err
	}
	release, err := p.factory.guard.Enter()
	if err != nil {
		return nil, err
	}
	defer release()

	record, err := p.factory.record(p.id)
	if err != nil {
		return nil, err
	}
	var minted *big.Int
	if record.Liquidity.Sign() == 0 {
		minted = initialLiquidity(amount0, amount1)
	} else {
		minted = proportionalLiquidity(amount0, amount1, record.Reserve0, record.Reserve1, record.Liquidity)
	}
	if minted.Sign() == 0 {
		return nil, ErrInsufficientLiquidity
	}

	custody := p.Address()
	ledger := p.factory.ledger
	if err := nativecommon.CheckTransfer(ledger.TransferFrom(p.key.Token0, custody, provider, custody, amount0)); err != nil {
		return nil, fmt.Errorf("amm: add liquidity token0: %w", err)
	}
	if err := nativecommon.CheckTransfer(ledger.TransferFrom(p.key.Token1, custody, provider, custody, amount1)); err != nil {
		return nil, fmt.Errorf("amm: add liquidity token1: %w", err)
	}

	record.Reserve0.Add(record.Reserve0, amount0)
	record.Reserve1.Add(record.Reserve1, amount1)
	record.Liquidity.Add(record.Liquidity, minted)
	if err := p.factory.putRecord(record); err != nil {
		return nil, err
	}
	held, err := p.LiquidityOf(provider)
	if err != nil {
		return nil, err
	}
	held.Add(held, minted)
	if err := p.factory.state.KVPut(liquidityStorageKey(p.id, provider), &liquidityRecord{Amount: held}); err != nil {
		return nil, err
	}
	p.factory.emitter.Emit(events.LiquidityAdded{
		Pool:      p.id,
		Provider:  provider,
		Amount0:   new(big.Int).Set(amount0),
		Amount1:   new(big.Int).Set(amount1),
		Liquidity: new(big.Int).Set(minted),
	})
	return minted, nil
}

// Quote prices an exact-input swap without executing it.
func (p *Pool) Quote(tokenIn crypto.Address, amountIn *big.Int) (*big.Int, error) {
	if err := nativecommon.ValidateAmount(amountIn); err != nil {
		return nil, err
	}
	record, err := p.factory.record(p.id)
	if err != nil {
		return nil, err
	}
	zeroForOne, err := p.direction(tokenIn)
	if err != nil {
		return nil, err
	}
	reserveIn, reserveOut, feeProtocol := sides(record, zeroForOne)
	return quoteExactInput(amountIn, reserveIn, reserveOut, record.Fee, feeProtocol).amountOut, nil
}

func (p *Pool) direction(tokenIn crypto.Address) (bool, error) {
	switch {
	case tokenIn.Equal(p.key.Token0):
		return true, nil
	case tokenIn.Equal(p.key.Token1):
		return false, nil
	default:
		return false, fmt.Errorf("%w: token %s not in pool", ErrPoolNotFound, tokenIn)
	}
}

func sides(record *PoolRecord, zeroForOne bool) (reserveIn, reserveOut *big.Int, feeProtocol uint8) {
	if zeroForOne {
		return record.Reserve0, record.Reserve1, record.FeeProtocol0
	}
	return record.Reserve1, record.Reserve0, record.FeeProtocol1
}

// swap settles an exact-input swap. The caller holds the factory guard.
func (p *Pool) swap(spender, payer, recipient crypto.Address, tokenIn crypto.Address, amountIn, minOut *big.Int) (*big.Int, error) {
	record, err := p.factory.record(p.id)
	if err != nil {
		return nil, err
	}
	zeroForOne, err := p.direction(tokenIn)
	if err != nil {
		return nil, err
	}
	if record.Liquidity.Sign() == 0 {
		return nil, ErrInsufficientLiquidity
	}
	reserveIn, reserveOut, feeProtocol := sides(record, zeroForOne)
	quote := quoteExactInput(amountIn, reserveIn, reserveOut, record.Fee, feeProtocol)
	if minOut != nil && quote.amountOut.Cmp(minOut) < 0 {
		return nil, fmt.Errorf("%w: %s < %s", ErrTooLittleReceived, quote.amountOut, minOut)
	}
	if quote.amountOut.Cmp(reserveOut) >= 0 {
		return nil, ErrInsufficientLiquidity
	}

	tokenOut := p.key.Token1
	if !zeroForOne {
		tokenOut = p.key.Token0
	}
	custody := p.Address()
	ledger := p.factory.ledger
	if err := nativecommon.CheckTransfer(ledger.TransferFrom(tokenIn, spender, payer, custody, amountIn)); err != nil {
		return nil, fmt.Errorf("amm: swap pull input: %w", err)
	}
	if err := p.factory.transferOut(tokenOut, custody, recipient, quote.amountOut); err != nil {
		return nil, fmt.Errorf("amm: swap pay output: %w", err)
	}

	reserveIn.Add(reserveIn, quote.reserveInDelta)
	reserveOut.Sub(reserveOut, quote.amountOut)
	if zeroForOne {
		record.ProtocolFees0.Add(record.ProtocolFees0, quote.protocolFee)
	} else {
		record.ProtocolFees1.Add(record.ProtocolFees1, quote.protocolFee)
	}
	if err := p.factory.putRecord(record); err != nil {
		return nil, err
	}
	p.factory.emitter.Emit(events.Swap{
		Pool:        p.id,
		Payer:       payer,
		Recipient:   recipient,
		TokenIn:     tokenIn,
		AmountIn:    new(big.Int).Set(amountIn),
		AmountOut:   new(big.Int).Set(quote.amountOut),
		ProtocolFee: new(big.Int).Set(quote.protocolFee),
	})
	return quote.amountOut, nil
}
