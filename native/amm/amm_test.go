package amm

import (
	"math/big"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"feeshare/core/events"
	"feeshare/core/state"
	"feeshare/crypto"
	nativecommon "feeshare/native/common"
	"feeshare/native/token"
	"feeshare/storage"
)

type fixture struct {
	ledger  *token.Ledger
	factory *Factory
	router  *Router
	clock   *clockwork.FakeClock
	tokenA  crypto.Address
	tokenB  crypto.Address
	owner   crypto.Address
	pool    *Pool
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	manager := state.NewManager(storage.NewMemDB())
	ledger := token.NewLedger(manager)
	tokenA := token.AddressForSymbol("AAA")
	tokenB := token.AddressForSymbol("BBB")
	_, err := ledger.Register(tokenA, "AAA", 18)
	require.NoError(t, err)
	_, err = ledger.Register(tokenB, "BBB", 18)
	require.NoError(t, err)

	owner := crypto.DeriveAddress("feeshare/harvest")
	factory := NewFactory(crypto.DeriveAddress("amm/factory"), owner, ledger)
	factory.SetState(manager)
	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	router := NewRouter(crypto.DeriveAddress("amm/router"), factory, clock)

	pool, err := factory.CreatePool(tokenA, tokenB, FeeMedium)
	require.NoError(t, err)

	lp := crypto.DeriveAddress("lp")
	for _, tok := range []crypto.Address{tokenA, tokenB} {
		require.NoError(t, ledger.Mint(tok, lp, big.NewInt(1_000_000)))
		_, err := ledger.Approve(tok, lp, pool.Address(), nativecommon.MaxUint256())
		require.NoError(t, err)
	}
	_, err = pool.AddLiquidity(lp, big.NewInt(1_000_000), big.NewInt(1_000_000))
	require.NoError(t, err)

	return &fixture{ledger: ledger, factory: factory, router: router, clock: clock, tokenA: tokenA, tokenB: tokenB, owner: owner, pool: pool}
}

func (fx *fixture) trader(t *testing.T, amount int64) crypto.Address {
	t.Helper()
	trader := crypto.DeriveAddress("trader")
	require.NoError(t, fx.ledger.Mint(fx.pool.Token0(), trader, big.NewInt(amount)))
	_, err := fx.ledger.Approve(fx.pool.Token0(), trader, fx.router.Address(), nativecommon.MaxUint256())
	require.NoError(t, err)
	return trader
}

func (fx *fixture) params(trader crypto.Address, amountIn int64) nativecommon.ExactInputSingleParams {
	return nativecommon.ExactInputSingleParams{
		TokenIn:   fx.pool.Token0(),
		TokenOut:  fx.pool.Token1(),
		Fee:       FeeMedium,
		Recipient: trader,
		AmountIn:  big.NewInt(amountIn),
	}
}

func TestPoolIDIsOrderIndependent(t *testing.T) {
	a := crypto.DeriveAddress("a")
	b := crypto.DeriveAddress("b")
	require.Equal(t, NewPoolKey(a, b, FeeLow).ID(), NewPoolKey(b, a, FeeLow).ID())
	require.NotEqual(t, NewPoolKey(a, b, FeeLow).ID(), NewPoolKey(a, b, FeeHigh).ID())
}

func TestCreatePoolValidation(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.factory.CreatePool(fx.tokenB, fx.tokenA, FeeMedium)
	require.ErrorIs(t, err, ErrPoolExists)
	_, err = fx.factory.CreatePool(fx.tokenA, fx.tokenA, FeeMedium)
	require.ErrorIs(t, err, ErrIdenticalTokens)
	_, err = fx.factory.CreatePool(fx.tokenA, fx.tokenB, 42)
	require.ErrorIs(t, err, ErrUnsupportedFee)

	_, err = fx.factory.CreatePool(fx.tokenA, fx.tokenB, FeeHigh)
	require.NoError(t, err)
	pools, err := fx.factory.Pools()
	require.NoError(t, err)
	require.Len(t, pools, 2)
	require.Equal(t, fx.pool.ID(), pools[0].ID())

	_, err = fx.factory.Pool([32]byte{1})
	require.ErrorIs(t, err, ErrPoolNotFound)
}

func TestSwapAccruesProtocolFees(t *testing.T) {
	fx := newFixture(t)
	require.NoError(t, fx.pool.SetFeeProtocol(fx.owner, 10, 10))
	trader := fx.trader(t, 100_000)

	quoted, err := fx.pool.Quote(fx.pool.Token0(), big.NewInt(100_000))
	require.NoError(t, err)

	out, err := fx.router.ExactInputSingle(trader, fx.params(trader, 100_000))
	require.NoError(t, err)
	require.Equal(t, int64(90_661), out.Int64())
	require.Zero(t, quoted.Cmp(out))

	rec, err := fx.pool.State()
	require.NoError(t, err)
	require.Equal(t, int64(30), rec.ProtocolFees0.Int64())
	require.Equal(t, int64(1_000_000+100_000-30), rec.Reserve0.Int64())
	require.Equal(t, int64(1_000_000-90_661), rec.Reserve1.Int64())

	bal, err := fx.ledger.BalanceOf(fx.pool.Token1(), trader)
	require.NoError(t, err)
	require.Equal(t, int64(90_661), bal.Int64())
}

func TestSwapWithoutFeeProtocolAccruesNothing(t *testing.T) {
	fx := newFixture(t)
	trader := fx.trader(t, 100_000)
	_, err := fx.router.ExactInputSingle(trader, fx.params(trader, 100_000))
	require.NoError(t, err)
	rec, err := fx.pool.State()
	require.NoError(t, err)
	require.Zero(t, rec.ProtocolFees0.Sign())
}

func TestSwapGuards(t *testing.T) {
	fx := newFixture(t)
	trader := fx.trader(t, 100_000)

	params := fx.params(trader, 1_000)
	params.Deadline = fx.clock.Now().Add(time.Minute)
	fx.clock.Advance(2 * time.Minute)
	_, err := fx.router.ExactInputSingle(trader, params)
	require.ErrorIs(t, err, ErrDeadlineExpired)

	params = fx.params(trader, 1_000)
	params.AmountOutMinimum = big.NewInt(1_000)
	_, err = fx.router.ExactInputSingle(trader, params)
	require.ErrorIs(t, err, ErrTooLittleReceived)

	params = fx.params(trader, 1_000)
	params.SqrtPriceLimitX96 = big.NewInt(1)
	_, err = fx.router.ExactInputSingle(trader, params)
	require.ErrorIs(t, err, ErrPriceLimitUnsupported)

	params = fx.params(trader, 1_000)
	params.Fee = FeeHigh
	_, err = fx.router.ExactInputSingle(trader, params)
	require.ErrorIs(t, err, ErrPoolNotFound)

	// Without an allowance the pull fails.
	stranger := crypto.DeriveAddress("stranger")
	require.NoError(t, fx.ledger.Mint(fx.pool.Token0(), stranger, big.NewInt(1_000)))
	_, err = fx.router.ExactInputSingle(stranger, fx.params(stranger, 1_000))
	require.ErrorIs(t, err, ErrTransferFailed)
}

func TestFeeProtocolIsOwnerOnly(t *testing.T) {
	fx := newFixture(t)
	require.ErrorIs(t, fx.pool.SetFeeProtocol(crypto.DeriveAddress("mallory"), 10, 10), ErrNotOwner)
	require.ErrorIs(t, fx.pool.SetFeeProtocol(fx.owner, 3, 10), ErrInvalidFeeProtocol)
	require.ErrorIs(t, fx.pool.SetFeeProtocol(fx.owner, 10, 11), ErrInvalidFeeProtocol)
	require.NoError(t, fx.pool.SetFeeProtocol(fx.owner, 0, 4))

	_, _, err := fx.pool.CollectProtocol(crypto.DeriveAddress("mallory"), fx.owner, nativecommon.MaxUint128(), nativecommon.MaxUint128())
	require.ErrorIs(t, err, ErrNotOwner)
}

func TestCollectProtocolIsCapped(t *testing.T) {
	fx := newFixture(t)
	require.NoError(t, fx.pool.SetFeeProtocol(fx.owner, 10, 10))
	trader := fx.trader(t, 100_000)
	_, err := fx.router.ExactInputSingle(trader, fx.params(trader, 100_000))
	require.NoError(t, err)

	a0, a1, err := fx.pool.CollectProtocol(fx.owner, fx.owner, big.NewInt(10), nativecommon.MaxUint128())
	require.NoError(t, err)
	require.Equal(t, int64(10), a0.Int64())
	require.Zero(t, a1.Sign())

	a0, _, err = fx.pool.CollectProtocol(fx.owner, fx.owner, nativecommon.MaxUint128(), nativecommon.MaxUint128())
	require.NoError(t, err)
	require.Equal(t, int64(20), a0.Int64())

	bal, err := fx.ledger.BalanceOf(fx.pool.Token0(), fx.owner)
	require.NoError(t, err)
	require.Equal(t, int64(30), bal.Int64())

	a0, a1, err = fx.pool.CollectProtocol(fx.owner, fx.owner, nativecommon.MaxUint128(), nativecommon.MaxUint128())
	require.NoError(t, err)
	require.Zero(t, a0.Sign())
	require.Zero(t, a1.Sign())
}

func TestAddLiquidityIsProportional(t *testing.T) {
	fx := newFixture(t)
	lp := crypto.DeriveAddress("lp2")
	for _, tok := range []crypto.Address{fx.tokenA, fx.tokenB} {
		require.NoError(t, fx.ledger.Mint(tok, lp, big.NewInt(500)))
		_, err := fx.ledger.Approve(tok, lp, fx.pool.Address(), nativecommon.MaxUint256())
		require.NoError(t, err)
	}
	minted, err := fx.pool.AddLiquidity(lp, big.NewInt(500), big.NewInt(250))
	require.NoError(t, err)
	require.Equal(t, int64(250), minted.Int64())

	held, err := fx.pool.LiquidityOf(lp)
	require.NoError(t, err)
	require.Equal(t, int64(250), held.Int64())

	_, err = fx.pool.AddLiquidity(lp, big.NewInt(0), big.NewInt(1))
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestPoolEventsFollowPersistedChanges(t *testing.T) {
	fx := newFixture(t)
	recorder := &events.Recorder{}
	fx.factory.SetEmitter(recorder)

	require.NoError(t, fx.pool.SetFeeProtocol(fx.owner, 10, 10))
	require.ErrorIs(t, fx.pool.SetFeeProtocol(fx.owner, 3, 3), ErrInvalidFeeProtocol)
	trader := fx.trader(t, 100_000)
	_, err := fx.router.ExactInputSingle(trader, fx.params(trader, 100_000))
	require.NoError(t, err)
	_, _, err = fx.pool.CollectProtocol(fx.owner, fx.owner, nativecommon.MaxUint128(), nativecommon.MaxUint128())
	require.NoError(t, err)

	require.Len(t, recorder.OfType(events.TypeAMMFeeProtocolSet), 1)
	swaps := recorder.OfType(events.TypeAMMSwap)
	require.Len(t, swaps, 1)
	swap := swaps[0].(events.Swap)
	require.Equal(t, int64(90_661), swap.AmountOut.Int64())
	require.Equal(t, int64(30), swap.ProtocolFee.Int64())
	collected := recorder.OfType(events.TypeAMMProtocolCollected)
	require.Len(t, collected, 1)
	require.Equal(t, "30", events.Flatten(collected[0]).Attributes["amount0"])
}
