package staking

import (
	"math/big"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"feeshare/core/events"
	"feeshare/core/state"
	"feeshare/core/types"
	"feeshare/crypto"
	nativecommon "feeshare/native/common"
	"feeshare/native/token"
	"feeshare/storage"
)

type testEnv struct {
	manager  *state.Manager
	ledger   *token.Ledger
	engine   *Engine
	stake    crypto.Address
	reward   crypto.Address
	recorder *events.Recorder
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	manager := state.NewManager(storage.NewMemDB())
	ledger := token.NewLedger(manager)
	stakeAddr := token.AddressForSymbol("STK")
	rewardAddr := token.AddressForSymbol("RWD")
	_, err := ledger.Register(stakeAddr, "STK", 18)
	require.NoError(t, err)
	_, err = ledger.Register(rewardAddr, "RWD", 18)
	require.NoError(t, err)

	engine := NewEngine(crypto.DeriveAddress("feeshare/staking"), ledger.Token(stakeAddr), ledger.Token(rewardAddr))
	engine.SetState(manager)
	rec := &events.Recorder{}
	engine.SetEmitter(rec)
	return &testEnv{manager: manager, ledger: ledger, engine: engine, stake: stakeAddr, reward: rewardAddr, recorder: rec}
}

// fund mints stake and reward tokens to addr and grants the engine an
// unlimited allowance over both.
func (env *testEnv) fund(t *testing.T, addr crypto.Address, amount int64) {
	t.Helper()
	for _, tok := range []crypto.Address{env.stake, env.reward} {
		require.NoError(t, env.ledger.Mint(tok, addr, big.NewInt(amount)))
		_, err := env.ledger.Approve(tok, addr, env.engine.Address(), nativecommon.MaxUint256())
		require.NoError(t, err)
	}
}

func (env *testEnv) balance(t *testing.T, tok, addr crypto.Address) int64 {
	t.Helper()
	bal, err := env.ledger.BalanceOf(tok, addr)
	require.NoError(t, err)
	return bal.Int64()
}

func (env *testEnv) earned(t *testing.T, addr crypto.Address) int64 {
	t.Helper()
	value, err := env.engine.Earned(addr)
	require.NoError(t, err)
	return value.Int64()
}

func TestWorkedExample(t *testing.T) {
	env := newTestEnv(t)
	alice := crypto.DeriveAddress("alice")
	bob := crypto.DeriveAddress("bob")
	distributor := crypto.DeriveAddress("distributor")
	env.fund(t, alice, 1_000)
	env.fund(t, bob, 1_000)
	env.fund(t, distributor, 1_000)

	require.NoError(t, env.engine.Stake(alice, big.NewInt(100)))
	require.NoError(t, env.engine.Stake(bob, big.NewInt(300)))
	total, err := env.engine.TotalStaked()
	require.NoError(t, err)
	require.Equal(t, int64(400), total.Int64())

	rpt, err := env.engine.Distribute(distributor, big.NewInt(400))
	require.NoError(t, err)
	require.Zero(t, rpt.Cmp(RewardScale()))
	require.Equal(t, int64(100), env.earned(t, alice))
	require.Equal(t, int64(300), env.earned(t, bob))

	paid, err := env.engine.Claim(alice)
	require.NoError(t, err)
	require.Equal(t, int64(100), paid.Int64())
	require.Equal(t, int64(1_100), env.balance(t, env.reward, alice))
	require.Equal(t, int64(0), env.earned(t, alice))

	require.NoError(t, env.engine.Withdraw(bob, big.NewInt(300)))
	bobStake, err := env.engine.StakeOf(bob)
	require.NoError(t, err)
	require.Equal(t, 0, bobStake.Sign())
	total, _ = env.engine.TotalStaked()
	require.Equal(t, int64(100), total.Int64())

	acct, err := env.engine.Account(bob)
	require.NoError(t, err)
	require.Equal(t, int64(300), acct.Unclaimed.Int64())
	require.Equal(t, int64(300), env.earned(t, bob))
	require.Equal(t, int64(1_000), env.balance(t, env.stake, bob))

	require.Len(t, env.recorder.OfType(events.TypeStakeStaked), 2)
	require.Len(t, env.recorder.OfType(events.TypeStakeRewardDistributed), 1)
	require.Len(t, env.recorder.OfType(events.TypeStakeRewardPaid), 1)
	require.Len(t, env.recorder.OfType(events.TypeStakeWithdrawn), 1)
}

func TestEventLogReplaysToEngineState(t *testing.T) {
	env := newTestEnv(t)
	alice := crypto.DeriveAddress("alice")
	bob := crypto.DeriveAddress("bob")
	env.fund(t, alice, 1_000)
	env.fund(t, bob, 1_000)

	require.NoError(t, env.engine.Stake(alice, big.NewInt(100)))
	require.NoError(t, env.engine.Stake(bob, big.NewInt(50)))
	_, err := env.engine.Distribute(bob, big.NewInt(90))
	require.NoError(t, err)
	_, _, err = env.engine.Exit(alice)
	require.NoError(t, err)

	log := env.recorder.Events()
	raw := make([]*types.Event, 0, len(log))
	for _, evt := range log {
		raw = append(raw, events.Flatten(evt))
	}
	totals, err := events.Replay(raw)
	require.NoError(t, err)

	pool, err := env.engine.Pool()
	require.NoError(t, err)
	require.Zero(t, totals.TotalStaked.Cmp(pool.TotalStaked))
	require.Zero(t, totals.Distributed.Cmp(pool.TotalDistributed))
	require.Zero(t, totals.Claimed.Cmp(pool.TotalClaimed))
	require.Zero(t, totals.RewardPerToken.Cmp(pool.RewardPerToken))
}

func requireSameAmounts(t *testing.T, want, got []*big.Int) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		require.Zero(t, want[i].Cmp(got[i]), "field %d: want %s got %s", i, want[i], got[i])
	}
}

func TestValidation(t *testing.T) {
	env := newTestEnv(t)
	alice := crypto.DeriveAddress("alice")
	env.fund(t, alice, 100)

	require.ErrorIs(t, env.engine.Stake(alice, big.NewInt(0)), ErrInvalidAmount)
	require.ErrorIs(t, env.engine.Stake(alice, nil), ErrInvalidAmount)
	require.ErrorIs(t, env.engine.Withdraw(alice, big.NewInt(-1)), ErrInvalidAmount)
	require.ErrorIs(t, env.engine.Withdraw(alice, big.NewInt(0)), ErrInvalidAmount)
	require.NotErrorIs(t, env.engine.Withdraw(alice, big.NewInt(0)), ErrInsufficientStake)
	require.ErrorIs(t, env.engine.Withdraw(alice, big.NewInt(1)), ErrInsufficientStake)

	_, err := env.engine.Distribute(alice, big.NewInt(10))
	require.ErrorIs(t, err, ErrNoStakers)
	_, err = env.engine.Distribute(alice, big.NewInt(0))
	require.ErrorIs(t, err, ErrInvalidAmount)

	require.NoError(t, env.engine.Stake(alice, big.NewInt(10)))
	require.ErrorIs(t, env.engine.Withdraw(alice, big.NewInt(11)), ErrInsufficientStake)

	// No tokens leave the distributor when the call is rejected.
	require.Equal(t, int64(100), env.balance(t, env.reward, alice))
	require.Empty(t, env.recorder.OfType(events.TypeStakeRewardDistributed))
}

func TestUnconfiguredEngine(t *testing.T) {
	engine := NewEngine(crypto.DeriveAddress("feeshare/staking"), nil, nil)
	require.ErrorIs(t, engine.Stake(crypto.DeriveAddress("a"), big.NewInt(1)), errNilState)
	_, err := engine.Earned(crypto.DeriveAddress("a"))
	require.ErrorIs(t, err, errNilState)
}

func TestClaimIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	alice := crypto.DeriveAddress("alice")
	env.fund(t, alice, 1_000)
	require.NoError(t, env.engine.Stake(alice, big.NewInt(10)))
	_, err := env.engine.Distribute(alice, big.NewInt(50))
	require.NoError(t, err)

	first, err := env.engine.Claim(alice)
	require.NoError(t, err)
	require.Equal(t, int64(50), first.Int64())

	second, err := env.engine.Claim(alice)
	require.NoError(t, err)
	require.Zero(t, second.Sign())
	require.Len(t, env.recorder.OfType(events.TypeStakeRewardPaid), 1)

	// An account that never staked claims nothing and gets no error.
	paid, err := env.engine.Claim(crypto.DeriveAddress("stranger"))
	require.NoError(t, err)
	require.Zero(t, paid.Sign())
}

func TestDistributionIsProportional(t *testing.T) {
	env := newTestEnv(t)
	alice := crypto.DeriveAddress("alice")
	bob := crypto.DeriveAddress("bob")
	env.fund(t, alice, 1_000_000)
	env.fund(t, bob, 1_000_000)

	require.NoError(t, env.engine.Stake(alice, big.NewInt(7)))
	require.NoError(t, env.engine.Stake(bob, big.NewInt(13)))
	_, err := env.engine.Distribute(alice, big.NewInt(1_000))
	require.NoError(t, err)

	a := env.earned(t, alice)
	b := env.earned(t, bob)
	// 1000/20 = 50 per unit.
	require.Equal(t, int64(350), a)
	require.Equal(t, int64(650), b)

	_, err = env.engine.Distribute(alice, big.NewInt(1))
	require.NoError(t, err)
	// Truncation never over-distributes.
	require.LessOrEqual(t, env.earned(t, alice)+env.earned(t, bob), int64(1_001))
}

func TestLateStakerDoesNotShareEarlierRewards(t *testing.T) {
	env := newTestEnv(t)
	alice := crypto.DeriveAddress("alice")
	bob := crypto.DeriveAddress("bob")
	env.fund(t, alice, 1_000)
	env.fund(t, bob, 1_000)

	require.NoError(t, env.engine.Stake(alice, big.NewInt(100)))
	_, err := env.engine.Distribute(alice, big.NewInt(100))
	require.NoError(t, err)
	require.NoError(t, env.engine.Stake(bob, big.NewInt(100)))
	_, err = env.engine.Distribute(alice, big.NewInt(100))
	require.NoError(t, err)

	require.Equal(t, int64(150), env.earned(t, alice))
	require.Equal(t, int64(50), env.earned(t, bob))

	// Topping up settles first, so pending reward is preserved.
	require.NoError(t, env.engine.Stake(alice, big.NewInt(100)))
	require.Equal(t, int64(150), env.earned(t, alice))
}

func TestExitWithdrawsAndClaims(t *testing.T) {
	env := newTestEnv(t)
	alice := crypto.DeriveAddress("alice")
	env.fund(t, alice, 1_000)
	require.NoError(t, env.engine.Stake(alice, big.NewInt(100)))
	_, err := env.engine.Distribute(alice, big.NewInt(30))
	require.NoError(t, err)

	withdrawn, paid, err := env.engine.Exit(alice)
	require.NoError(t, err)
	require.Equal(t, int64(100), withdrawn.Int64())
	require.Equal(t, int64(30), paid.Int64())
	require.Equal(t, int64(1_000), env.balance(t, env.stake, alice))
	require.Equal(t, int64(1_000), env.balance(t, env.reward, alice))

	withdrawn, paid, err = env.engine.Exit(alice)
	require.NoError(t, err)
	require.Zero(t, withdrawn.Sign())
	require.Zero(t, paid.Sign())
}

func TestReentrantCallsAreRejected(t *testing.T) {
	env := newTestEnv(t)
	alice := crypto.DeriveAddress("alice")
	env.fund(t, alice, 1_000)

	var nested []error
	env.ledger.SetHook(env.stake, func(token.Movement) {
		nested = append(nested, env.engine.Stake(alice, big.NewInt(1)))
		_, err := env.engine.Claim(alice)
		nested = append(nested, err)
		_, err = env.engine.Distribute(alice, big.NewInt(1))
		nested = append(nested, err)
		nested = append(nested, env.engine.Withdraw(alice, big.NewInt(1)))
	})

	require.NoError(t, env.engine.Stake(alice, big.NewInt(100)))
	require.Len(t, nested, 4)
	for _, err := range nested {
		require.ErrorIs(t, err, ErrReentrant)
	}

	stake, err := env.engine.StakeOf(alice)
	require.NoError(t, err)
	require.Equal(t, int64(100), stake.Int64())
	total, _ := env.engine.TotalStaked()
	require.Equal(t, int64(100), total.Int64())
	require.Equal(t, int64(100), env.balance(t, env.stake, env.engine.Address()))

	// The guard is free again once the outer call has returned.
	env.ledger.SetHook(env.stake, nil)
	require.NoError(t, env.engine.Withdraw(alice, big.NewInt(100)))
}

func TestTransferFailureLeavesStateUntouched(t *testing.T) {
	env := newTestEnv(t)
	alice := crypto.DeriveAddress("alice")
	env.fund(t, alice, 1_000)
	require.NoError(t, env.engine.Stake(alice, big.NewInt(100)))
	_, err := env.engine.Distribute(alice, big.NewInt(40))
	require.NoError(t, err)
	before, err := env.engine.Account(alice)
	require.NoError(t, err)
	poolBefore, err := env.engine.Pool()
	require.NoError(t, err)

	require.NoError(t, env.ledger.SetPaused(env.reward, true))
	_, err = env.engine.Claim(alice)
	require.ErrorIs(t, err, ErrTransferFailed)

	// Exit withdraws before claiming; the failed claim must undo the
	// withdrawal too.
	_, _, err = env.engine.Exit(alice)
	require.ErrorIs(t, err, ErrTransferFailed)

	after, err := env.engine.Account(alice)
	require.NoError(t, err)
	requireSameAmounts(t, []*big.Int{before.Staked, before.RewardDebt, before.Unclaimed},
		[]*big.Int{after.Staked, after.RewardDebt, after.Unclaimed})
	poolAfter, err := env.engine.Pool()
	require.NoError(t, err)
	requireSameAmounts(t,
		[]*big.Int{poolBefore.TotalStaked, poolBefore.RewardPerToken, poolBefore.TotalDistributed, poolBefore.TotalClaimed},
		[]*big.Int{poolAfter.TotalStaked, poolAfter.RewardPerToken, poolAfter.TotalDistributed, poolAfter.TotalClaimed})
	require.Equal(t, int64(900), env.balance(t, env.stake, alice))
	require.Equal(t, int64(40), env.earned(t, alice))

	require.NoError(t, env.ledger.SetPaused(env.reward, false))
	paid, err := env.engine.Claim(alice)
	require.NoError(t, err)
	require.Equal(t, int64(40), paid.Int64())
}

func TestConservationUnderRandomSequences(t *testing.T) {
	env := newTestEnv(t)
	rng := rand.New(rand.NewSource(7))

	accounts := make([]crypto.Address, 5)
	for i := range accounts {
		accounts[i] = crypto.DeriveAddress("participant/" + string(rune('a'+i)))
		env.fund(t, accounts[i], 1_000_000)
	}

	distributions := int64(0)
	for step := 0; step < 400; step++ {
		who := accounts[rng.Intn(len(accounts))]
		amount := big.NewInt(rng.Int63n(997) + 1)
		switch rng.Intn(5) {
		case 0, 1:
			require.NoError(t, env.engine.Stake(who, amount))
		case 2:
			err := env.engine.Withdraw(who, amount)
			if err != nil {
				require.ErrorIs(t, err, ErrInsufficientStake)
			}
		case 3:
			_, err := env.engine.Claim(who)
			require.NoError(t, err)
		case 4:
			if _, err := env.engine.Distribute(who, amount); err != nil {
				require.ErrorIs(t, err, ErrNoStakers)
			} else {
				distributions++
			}
		}

		pool, err := env.engine.Pool()
		require.NoError(t, err)
		stakes := big.NewInt(0)
		owed := big.NewInt(0)
		for _, acct := range accounts {
			s, err := env.engine.StakeOf(acct)
			require.NoError(t, err)
			stakes.Add(stakes, s)
			e, err := env.engine.Earned(acct)
			require.NoError(t, err)
			owed.Add(owed, e)
		}
		require.Zero(t, stakes.Cmp(pool.TotalStaked), "step %d", step)

		accounted := new(big.Int).Add(owed, pool.TotalClaimed)
		require.LessOrEqual(t, accounted.Cmp(pool.TotalDistributed), 0, "step %d", step)
		lost := new(big.Int).Sub(pool.TotalDistributed, accounted)
		// Every settlement and every accumulator update may truncate by
		// less than one unit.
		bound := big.NewInt(int64(step+1) + distributions + int64(len(accounts)))
		require.LessOrEqual(t, lost.Cmp(bound), 0, "step %d", step)

		// Custody always covers both principal and outstanding reward.
		require.Zero(t, big.NewInt(env.balance(t, env.stake, env.engine.Address())).Cmp(pool.TotalStaked))
		require.GreaterOrEqual(t, big.NewInt(env.balance(t, env.reward, env.engine.Address())).Cmp(owed), 0)
	}
}
