package amm

import "math/big"

var feeDenominatorBig = big.NewInt(feeDenominator)

// swapQuote is the outcome of an exact-input swap against one side of a pool.
type swapQuote struct {
	amountOut   *big.Int
	protocolFee *big.Int
	// reserveInDelta is what stays in the input reserve: the input minus the
	// protocol cut. The LP share of the fee remains in the pool.
	reserveInDelta *big.Int
}

// quoteExactInput prices amountIn against a constant-product curve after
// taking fee (hundredths of a bip). feeProtocol of 0 disables the protocol
// cut; otherwise 1/feeProtocol of the fee is set aside for the protocol.
func quoteExactInput(amountIn, reserveIn, reserveOut *big.Int, fee uint32, feeProtocol uint8) swapQuote {
	feeAmount := new(big.Int).Mul(amountIn, big.NewInt(int64(fee)))
	feeAmount.Quo(feeAmount, feeDenominatorBig)

	protocolFee := big.NewInt(0)
	if feeProtocol > 0 {
		protocolFee.Quo(feeAmount, big.NewInt(int64(feeProtocol)))
	}

	net := new(big.Int).Sub(amountIn, feeAmount)
	numerator := new(big.Int).Mul(reserveOut, net)
	denominator := new(big.Int).Add(reserveIn, net)
	amountOut := big.NewInt(0)
	if denominator.Sign() > 0 {
		amountOut.Quo(numerator, denominator)
	}
	return swapQuote{
		amountOut:      amountOut,
		protocolFee:    protocolFee,
		reserveInDelta: new(big.Int).Sub(amountIn, protocolFee),
	}
}

// initialLiquidity is floor(sqrt(amount0 * amount1)).
func initialLiquidity(amount0, amount1 *big.Int) *big.Int {
	product := new(big.Int).Mul(amount0, amount1)
	return product.Sqrt(product)
}

// proportionalLiquidity mints min(a0*L/r0, a1*L/r1).
func proportionalLiquidity(amount0, amount1, reserve0, reserve1, liquidity *big.Int) *big.Int {
	l0 := new(big.Int).Mul(amount0, liquidity)
	l0.Quo(l0, reserve0)
	l1 := new(big.Int).Mul(amount1, liquidity)
	l1.Quo(l1, reserve1)
	if l0.Cmp(l1) < 0 {
		return l0
	}
	return l1
}

func minBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) < 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}
