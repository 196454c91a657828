package harvest

import (
	"math/big"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"feeshare/core/events"
	"feeshare/core/state"
	"feeshare/crypto"
	"feeshare/native/amm"
	nativecommon "feeshare/native/common"
	"feeshare/native/staking"
	"feeshare/native/token"
	"feeshare/storage"
)

type harness struct {
	manager  *state.Manager
	ledger   *token.Ledger
	factory  *amm.Factory
	router   *amm.Router
	pool     *amm.Pool
	staking  *staking.Engine
	engine   *Engine
	recorder *events.Recorder

	usdc   crypto.Address
	reward crypto.Address
	stake  crypto.Address
	keeper crypto.Address
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		manager:  state.NewManager(storage.NewMemDB()),
		recorder: &events.Recorder{},
		usdc:     token.AddressForSymbol("USDC"),
		reward:   token.AddressForSymbol("RWD"),
		stake:    token.AddressForSymbol("STK"),
		keeper:   crypto.DeriveAddress("keeper"),
	}
	h.ledger = token.NewLedger(h.manager)
	for _, sym := range []string{"USDC", "RWD", "STK"} {
		_, err := h.ledger.Register(token.AddressForSymbol(sym), sym, 18)
		require.NoError(t, err)
	}

	pipeline := crypto.DeriveAddress("feeshare/harvest")
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	h.factory = amm.NewFactory(crypto.DeriveAddress("amm/factory"), pipeline, h.ledger)
	h.factory.SetState(h.manager)
	h.router = amm.NewRouter(crypto.DeriveAddress("amm/router"), h.factory, clock)

	var err error
	h.pool, err = h.factory.CreatePool(h.usdc, h.reward, amm.FeeMedium)
	require.NoError(t, err)
	lp := crypto.DeriveAddress("lp")
	for _, tok := range []crypto.Address{h.usdc, h.reward} {
		require.NoError(t, h.ledger.Mint(tok, lp, big.NewInt(1_000_000)))
		_, err := h.ledger.Approve(tok, lp, h.pool.Address(), nativecommon.MaxUint256())
		require.NoError(t, err)
	}
	_, err = h.pool.AddLiquidity(lp, big.NewInt(1_000_000), big.NewInt(1_000_000))
	require.NoError(t, err)

	h.staking = staking.NewEngine(crypto.DeriveAddress("feeshare/staking"), h.ledger.Token(h.stake), h.ledger.Token(h.reward))
	h.staking.SetState(h.manager)
	h.staking.SetEmitter(h.recorder)

	h.engine = NewEngine(Config{
		Address:     pipeline,
		Factory:     h.factory.Address(),
		RewardToken: h.ledger.Token(h.reward),
		Tokens:      func(addr crypto.Address) nativecommon.Token { return h.ledger.Token(addr) },
		Router:      h.router,
		Distributor: h.staking,
		Clock:       clock,
	})
	h.engine.SetState(h.manager)
	h.engine.SetEmitter(h.recorder)
	return h
}

func (h *harness) addStaker(t *testing.T, name string, amount int64) crypto.Address {
	t.Helper()
	who := crypto.DeriveAddress(name)
	require.NoError(t, h.ledger.Mint(h.stake, who, big.NewInt(amount)))
	_, err := h.ledger.Approve(h.stake, who, h.staking.Address(), nativecommon.MaxUint256())
	require.NoError(t, err)
	require.NoError(t, h.staking.Stake(who, big.NewInt(amount)))
	return who
}

// trade swaps USDC into the reward token so the pool accrues protocol fees.
func (h *harness) trade(t *testing.T, amount int64) {
	t.Helper()
	trader := crypto.DeriveAddress("trader")
	require.NoError(t, h.ledger.Mint(h.usdc, trader, big.NewInt(amount)))
	_, err := h.ledger.Approve(h.usdc, trader, h.router.Address(), nativecommon.MaxUint256())
	require.NoError(t, err)
	_, err = h.router.ExactInputSingle(trader, nativecommon.ExactInputSingleParams{
		TokenIn:   h.usdc,
		TokenOut:  h.reward,
		Fee:       amm.FeeMedium,
		Recipient: trader,
		AmountIn:  big.NewInt(amount),
	})
	require.NoError(t, err)
}

func (h *harness) custody(t *testing.T, tok crypto.Address) int64 {
	t.Helper()
	bal, err := h.ledger.BalanceOf(tok, h.engine.Address())
	require.NoError(t, err)
	return bal.Int64()
}

func TestConfigureFeeShareIsOneShot(t *testing.T) {
	h := newHarness(t)

	configured, err := h.engine.IsConfigured(h.pool.ID())
	require.NoError(t, err)
	require.False(t, configured)

	require.NoError(t, h.engine.ConfigureFeeShare(h.keeper, h.pool))
	rec, err := h.pool.State()
	require.NoError(t, err)
	require.Equal(t, FeeShareDivisor, rec.FeeProtocol0)
	require.Equal(t, FeeShareDivisor, rec.FeeProtocol1)

	err = h.engine.ConfigureFeeShare(crypto.DeriveAddress("someone-else"), h.pool)
	require.ErrorIs(t, err, ErrAlreadyConfigured)

	configured, err = h.engine.IsConfigured(h.pool.ID())
	require.NoError(t, err)
	require.True(t, configured)
	rec, err = h.pool.State()
	require.NoError(t, err)
	require.Equal(t, FeeShareDivisor, rec.FeeProtocol0)
	require.Len(t, h.recorder.OfType(events.TypeHarvestFeeShareConfigured), 1)
}

func TestForeignFactoryPoolsAreRejected(t *testing.T) {
	h := newHarness(t)
	rogue := amm.NewFactory(crypto.DeriveAddress("amm/rogue"), h.engine.Address(), h.ledger)
	rogue.SetState(h.manager)
	pool, err := rogue.CreatePool(h.usdc, h.reward, amm.FeeMedium)
	require.NoError(t, err)

	require.ErrorIs(t, h.engine.ConfigureFeeShare(h.keeper, pool), ErrWrongFactory)
	_, _, err = h.engine.Harvest(h.keeper, pool)
	require.ErrorIs(t, err, ErrWrongFactory)

	configured, err := h.engine.IsConfigured(pool.ID())
	require.NoError(t, err)
	require.False(t, configured)
	rec, err := pool.State()
	require.NoError(t, err)
	require.Zero(t, rec.FeeProtocol0)
}

func TestHarvestConvertDistribute(t *testing.T) {
	h := newHarness(t)
	alice := h.addStaker(t, "alice", 100)
	require.NoError(t, h.engine.ConfigureFeeShare(h.keeper, h.pool))
	h.trade(t, 100_000)

	a0, a1, err := h.engine.Harvest(h.keeper, h.pool)
	require.NoError(t, err)
	require.Equal(t, int64(30), new(big.Int).Add(a0, a1).Int64())
	require.Equal(t, int64(30), h.custody(t, h.usdc))

	// Harvesting again finds nothing and is not an error.
	a0, a1, err = h.engine.Harvest(h.keeper, h.pool)
	require.NoError(t, err)
	require.Zero(t, a0.Sign())
	require.Zero(t, a1.Sign())

	out, err := h.engine.ConvertAndDistribute(h.keeper, h.usdc, big.NewInt(30), amm.FeeMedium)
	require.NoError(t, err)
	require.Equal(t, int64(24), out.Int64())
	require.Zero(t, h.custody(t, h.usdc))
	require.Zero(t, h.custody(t, h.reward))

	earned, err := h.staking.Earned(alice)
	require.NoError(t, err)
	require.Equal(t, int64(24), earned.Int64())

	converted := h.recorder.OfType(events.TypeHarvestConvertedAndDistributed)
	require.Len(t, converted, 1)
	evt := converted[0].(events.ConvertedAndDistributed)
	require.Equal(t, amm.FeeMedium, evt.FeeTier)
	require.Equal(t, int64(30), evt.AmountIn.Int64())
	require.Equal(t, int64(24), evt.AmountOut.Int64())
	require.Len(t, h.recorder.OfType(events.TypeHarvestFeesCollected), 2)
	require.Len(t, h.recorder.OfType(events.TypeStakeRewardDistributed), 1)
}

func TestRewardTokenInputSkipsSwap(t *testing.T) {
	h := newHarness(t)
	alice := h.addStaker(t, "alice", 10)
	require.NoError(t, h.ledger.Mint(h.reward, h.engine.Address(), big.NewInt(50)))
	before, err := h.pool.State()
	require.NoError(t, err)

	out, err := h.engine.ConvertAndDistribute(h.keeper, h.reward, big.NewInt(50), 0)
	require.NoError(t, err)
	require.Equal(t, int64(50), out.Int64())

	after, err := h.pool.State()
	require.NoError(t, err)
	require.Zero(t, before.Reserve1.Cmp(after.Reserve1))
	require.Zero(t, before.Reserve0.Cmp(after.Reserve0))

	earned, err := h.staking.Earned(alice)
	require.NoError(t, err)
	require.Equal(t, int64(50), earned.Int64())
}

func TestConvertValidation(t *testing.T) {
	h := newHarness(t)
	h.addStaker(t, "alice", 10)
	require.NoError(t, h.ledger.Mint(h.usdc, h.engine.Address(), big.NewInt(100)))

	_, err := h.engine.ConvertAndDistribute(h.keeper, crypto.Address{}, big.NewInt(1), amm.FeeMedium)
	require.ErrorIs(t, err, ErrInvalidAmount)
	_, err = h.engine.ConvertAndDistribute(h.keeper, h.usdc, big.NewInt(0), amm.FeeMedium)
	require.ErrorIs(t, err, ErrInvalidAmount)
	_, err = h.engine.ConvertAndDistribute(h.keeper, h.usdc, big.NewInt(101), amm.FeeMedium)
	require.ErrorIs(t, err, ErrInsufficientBalance)
	_, err = h.engine.ConvertAndDistributeWithMinimum(h.keeper, h.usdc, big.NewInt(1), amm.FeeMedium, big.NewInt(-1))
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestFailedConversionRollsBack(t *testing.T) {
	cases := map[string]struct {
		stake   bool
		amount  int64
		minOut  *big.Int
		wantErr error
	}{
		"no output":   {stake: true, amount: 1, wantErr: ErrNoOutputReceived},
		"no stakers":  {stake: false, amount: 100, wantErr: staking.ErrNoStakers},
		"below floor": {stake: true, amount: 100, minOut: big.NewInt(1_000), wantErr: ErrSlippage},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			if tc.stake {
				h.addStaker(t, "alice", 10)
			}
			require.NoError(t, h.ledger.Mint(h.usdc, h.engine.Address(), big.NewInt(100)))
			poolBefore, err := h.pool.State()
			require.NoError(t, err)

			var convErr error
			if tc.minOut != nil {
				_, convErr = h.engine.ConvertAndDistributeWithMinimum(h.keeper, h.usdc, big.NewInt(tc.amount), amm.FeeMedium, tc.minOut)
			} else {
				_, convErr = h.engine.ConvertAndDistribute(h.keeper, h.usdc, big.NewInt(tc.amount), amm.FeeMedium)
			}
			require.ErrorIs(t, convErr, tc.wantErr)

			require.Equal(t, int64(100), h.custody(t, h.usdc))
			require.Zero(t, h.custody(t, h.reward))
			allowance, err := h.ledger.Allowance(h.usdc, h.engine.Address(), h.router.Address())
			require.NoError(t, err)
			require.Zero(t, allowance.Sign())
			poolAfter, err := h.pool.State()
			require.NoError(t, err)
			require.Zero(t, poolBefore.Reserve0.Cmp(poolAfter.Reserve0))
			require.Zero(t, poolBefore.Reserve1.Cmp(poolAfter.Reserve1))
			require.Empty(t, h.recorder.OfType(events.TypeHarvestConvertedAndDistributed))
		})
	}
}

func TestConvertWithMinimumPasses(t *testing.T) {
	h := newHarness(t)
	h.addStaker(t, "alice", 10)
	require.NoError(t, h.ledger.Mint(h.usdc, h.engine.Address(), big.NewInt(1_000)))
	quote, err := h.pool.Quote(h.usdc, big.NewInt(1_000))
	require.NoError(t, err)

	out, err := h.engine.ConvertAndDistributeWithMinimum(h.keeper, h.usdc, big.NewInt(1_000), amm.FeeMedium, quote)
	require.NoError(t, err)
	require.Zero(t, quote.Cmp(out))
}

func TestReentrantConversionIsRejected(t *testing.T) {
	h := newHarness(t)
	h.addStaker(t, "alice", 10)
	require.NoError(t, h.ledger.Mint(h.usdc, h.engine.Address(), big.NewInt(1_000)))

	var nested []error
	h.ledger.SetHook(h.usdc, func(token.Movement) {
		_, err := h.engine.ConvertAndDistribute(h.keeper, h.usdc, big.NewInt(1), amm.FeeMedium)
		nested = append(nested, err)
		_, _, err = h.engine.Harvest(h.keeper, h.pool)
		nested = append(nested, err)
		nested = append(nested, h.engine.ConfigureFeeShare(h.keeper, h.pool))
	})

	_, err := h.engine.ConvertAndDistribute(h.keeper, h.usdc, big.NewInt(1_000), amm.FeeMedium)
	require.NoError(t, err)
	require.Len(t, nested, 3)
	for _, err := range nested {
		require.ErrorIs(t, err, ErrReentrant)
	}
	configured, err := h.engine.IsConfigured(h.pool.ID())
	require.NoError(t, err)
	require.False(t, configured)
}

type deadRouter struct{ addr crypto.Address }

func (r deadRouter) Address() crypto.Address { return r.addr }

func (r deadRouter) ExactInputSingle(crypto.Address, nativecommon.ExactInputSingleParams) (*big.Int, error) {
	// Reports output without delivering any.
	return big.NewInt(500), nil
}

func TestRouterReportingPhantomOutput(t *testing.T) {
	h := newHarness(t)
	h.addStaker(t, "alice", 10)
	require.NoError(t, h.ledger.Mint(h.usdc, h.engine.Address(), big.NewInt(100)))
	h.engine.router = deadRouter{addr: crypto.DeriveAddress("dead-router")}

	_, err := h.engine.ConvertAndDistribute(h.keeper, h.usdc, big.NewInt(100), amm.FeeMedium)
	require.ErrorIs(t, err, ErrNoOutputReceived)
}

func TestUnwiredEngine(t *testing.T) {
	engine := NewEngine(Config{})
	_, err := engine.IsConfigured([32]byte{})
	require.ErrorIs(t, err, errNilState)
	engine.SetState(state.NewManager(storage.NewMemDB()))
	_, _, err = engine.Harvest(crypto.DeriveAddress("x"), nil)
	require.ErrorIs(t, err, errNilPool)
	_, err = engine.ConvertAndDistribute(crypto.DeriveAddress("x"), crypto.DeriveAddress("t"), big.NewInt(1), 0)
	require.ErrorIs(t, err, errNilCollaborator)
}
