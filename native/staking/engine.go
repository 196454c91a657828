package staking

import (
	"fmt"
	"log/slog"
	"math/big"

	"feeshare/core/events"
	"feeshare/crypto"
	nativecommon "feeshare/native/common"
)

const moduleName = "staking"

// snapshotter is implemented by state backends that can roll back a partially
// applied operation. When the configured state supports it every mutating
// call runs inside a snapshot so a late failure leaves nothing behind.
type snapshotter interface {
	Snapshot() int
	RevertToSnapshot(int)
}

// Engine implements proportional reward accounting over a single stake token
// and a single reward token. Distribution is O(1): a global reward-per-token
// accumulator advances on each distribution and accounts settle lazily against
// it whenever they are touched.
type Engine struct {
	address     crypto.Address
	stakeToken  nativecommon.Token
	rewardToken nativecommon.Token
	state       Storage
	store       *store
	emitter     events.Emitter
	logger      *slog.Logger
	guard       nativecommon.ReentrancyGuard
}

// NewEngine constructs an engine whose custody account is addr.
func NewEngine(addr crypto.Address, stakeToken, rewardToken nativecommon.Token) *Engine {
	return &Engine{
		address:     addr,
		stakeToken:  stakeToken,
		rewardToken: rewardToken,
		emitter:     events.NoopEmitter{},
		logger:      slog.Default(),
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state Storage) {
	e.state = state
	if state == nil {
		e.store = nil
		return
	}
	e.store = newStore(state, e.address)
}

// SetEmitter configures the event sink. A nil emitter discards events.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetLogger overrides the engine logger.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	e.logger = logger.With(slog.String("module", moduleName))
}

// Address returns the engine custody account.
func (e *Engine) Address() crypto.Address { return e.address }

// StakeToken returns the token accepted as stake.
func (e *Engine) StakeToken() nativecommon.Token { return e.stakeToken }

// RewardToken returns the token paid out as reward.
func (e *Engine) RewardToken() nativecommon.Token { return e.rewardToken }

func (e *Engine) ready() error {
	if e == nil || e.store == nil {
		return errNilState
	}
	if e.stakeToken == nil || e.rewardToken == nil {
		return errNilTokens
	}
	return nil
}

// atomically runs fn under the reentrancy guard and, where the backend allows,
// inside a state snapshot that is reverted when fn fails.
func (e *Engine) atomically(fn func() error) error {
	if err := e.ready(); err != nil {
		return err
	}
	release, err := e.guard.Enter()
	if err != nil {
		return err
	}
	defer release()

	snap, ok := e.state.(snapshotter)
	if !ok {
		return fn()
	}
	id := snap.Snapshot()
	if err := fn(); err != nil {
		snap.RevertToSnapshot(id)
		return err
	}
	return nil
}

// Stake locks amount of the stake token from caller into engine custody.
func (e *Engine) Stake(caller crypto.Address, amount *big.Int) error {
	if err := nativecommon.ValidateAmount(amount); err != nil {
		return err
	}
	var emitted events.StakeStaked
	err := e.atomically(func() error {
		pool, err := e.store.pool()
		if err != nil {
			return err
		}
		acct, err := e.store.account(caller)
		if err != nil {
			return err
		}
		settle(pool, acct)
		acct.Staked.Add(acct.Staked, amount)
		pool.TotalStaked.Add(pool.TotalStaked, amount)

		if err := nativecommon.CheckTransfer(e.stakeToken.TransferFrom(e.address, caller, e.address, amount)); err != nil {
			return fmt.Errorf("stake: pull stake token: %w", err)
		}
		if err := e.persist(pool, acct); err != nil {
			return err
		}
		emitted = events.StakeStaked{
			Account:     caller,
			Amount:      new(big.Int).Set(amount),
			NewStake:    new(big.Int).Set(acct.Staked),
			TotalStaked: new(big.Int).Set(pool.TotalStaked),
		}
		return nil
	})
	if err != nil {
		return err
	}
	e.logger.Debug("stake locked",
		slog.String("account", caller.String()),
		slog.String("amount", amount.String()),
		slog.String("total_staked", emitted.TotalStaked.String()))
	e.emitter.Emit(emitted)
	return nil
}

// Withdraw releases amount of the caller's stake back to the caller. Accrued
// reward stays in the account until claimed.
func (e *Engine) Withdraw(caller crypto.Address, amount *big.Int) error {
	if err := nativecommon.ValidateAmount(amount); err != nil {
		return err
	}
	var emitted events.StakeWithdrawn
	err := e.atomically(func() error {
		evt, err := e.withdraw(caller, amount)
		if err != nil {
			return err
		}
		emitted = evt
		return nil
	})
	if err != nil {
		return err
	}
	e.logger.Debug("stake released",
		slog.String("account", caller.String()),
		slog.String("amount", amount.String()),
		slog.String("total_staked", emitted.TotalStaked.String()))
	e.emitter.Emit(emitted)
	return nil
}

func (e *Engine) withdraw(caller crypto.Address, amount *big.Int) (events.StakeWithdrawn, error) {
	pool, err := e.store.pool()
	if err != nil {
		return events.StakeWithdrawn{}, err
	}
	acct, err := e.store.account(caller)
	if err != nil {
		return events.StakeWithdrawn{}, err
	}
	if acct.Staked.Cmp(amount) < 0 {
		return events.StakeWithdrawn{}, ErrInsufficientStake
	}
	settle(pool, acct)
	acct.Staked.Sub(acct.Staked, amount)
	pool.TotalStaked.Sub(pool.TotalStaked, amount)

	if err := nativecommon.CheckTransfer(e.stakeToken.Transfer(e.address, caller, amount)); err != nil {
		return events.StakeWithdrawn{}, fmt.Errorf("withdraw: return stake token: %w", err)
	}
	if err := e.persist(pool, acct); err != nil {
		return events.StakeWithdrawn{}, err
	}
	return events.StakeWithdrawn{
		Account:     caller,
		Amount:      new(big.Int).Set(amount),
		NewStake:    new(big.Int).Set(acct.Staked),
		TotalStaked: new(big.Int).Set(pool.TotalStaked),
	}, nil
}

// Claim pays out the caller's accrued reward and returns the amount paid. A
// caller with nothing accrued gets zero and no error.
func (e *Engine) Claim(caller crypto.Address) (*big.Int, error) {
	var paid *events.StakeRewardPaid
	err := e.atomically(func() error {
		evt, err := e.claim(caller)
		if err != nil {
			return err
		}
		paid = evt
		return nil
	})
	if err != nil {
		return nil, err
	}
	if paid == nil {
		return big.NewInt(0), nil
	}
	e.logger.Debug("reward paid",
		slog.String("account", caller.String()),
		slog.String("amount", paid.Amount.String()))
	e.emitter.Emit(*paid)
	return new(big.Int).Set(paid.Amount), nil
}

func (e *Engine) claim(caller crypto.Address) (*events.StakeRewardPaid, error) {
	pool, err := e.store.pool()
	if err != nil {
		return nil, err
	}
	acct, err := e.store.account(caller)
	if err != nil {
		return nil, err
	}
	settle(pool, acct)
	reward := acct.Unclaimed
	if reward.Sign() == 0 {
		// Settlement may still have moved the debt snapshot.
		if err := e.persist(pool, acct); err != nil {
			return nil, err
		}
		return nil, nil
	}
	acct.Unclaimed = big.NewInt(0)
	pool.TotalClaimed.Add(pool.TotalClaimed, reward)

	if err := nativecommon.CheckTransfer(e.rewardToken.Transfer(e.address, caller, reward)); err != nil {
		return nil, fmt.Errorf("claim: pay reward: %w", err)
	}
	if err := e.persist(pool, acct); err != nil {
		return nil, err
	}
	return &events.StakeRewardPaid{Account: caller, Amount: new(big.Int).Set(reward)}, nil
}

// Exit withdraws the caller's full stake, if any, and then claims. The claim
// settles against the accumulator as left by the withdrawal.
func (e *Engine) Exit(caller crypto.Address) (withdrawn, paid *big.Int, err error) {
	var (
		withdrawEvt *events.StakeWithdrawn
		paidEvt     *events.StakeRewardPaid
	)
	err = e.atomically(func() error {
		acct, err := e.store.account(caller)
		if err != nil {
			return err
		}
		if acct.Staked.Sign() > 0 {
			evt, err := e.withdraw(caller, new(big.Int).Set(acct.Staked))
			if err != nil {
				return err
			}
			withdrawEvt = &evt
		}
		paidEvt, err = e.claim(caller)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	withdrawn, paid = big.NewInt(0), big.NewInt(0)
	if withdrawEvt != nil {
		e.emitter.Emit(*withdrawEvt)
		withdrawn.Set(withdrawEvt.Amount)
	}
	if paidEvt != nil {
		e.emitter.Emit(*paidEvt)
		paid.Set(paidEvt.Amount)
	}
	return withdrawn, paid, nil
}

// Distribute pulls amount of the reward token from caller and spreads it over
// current stakers. It returns the updated reward-per-token accumulator.
func (e *Engine) Distribute(caller crypto.Address, amount *big.Int) (*big.Int, error) {
	if err := nativecommon.ValidateAmount(amount); err != nil {
		return nil, err
	}
	var emitted events.StakeRewardDistributed
	err := e.atomically(func() error {
		pool, err := e.store.pool()
		if err != nil {
			return err
		}
		if pool.TotalStaked.Sign() == 0 {
			return ErrNoStakers
		}
		if err := nativecommon.CheckTransfer(e.rewardToken.TransferFrom(e.address, caller, e.address, amount)); err != nil {
			return fmt.Errorf("distribute: pull reward token: %w", err)
		}
		pool.RewardPerToken.Add(pool.RewardPerToken, accumulatorIncrement(amount, pool.TotalStaked))
		pool.TotalDistributed.Add(pool.TotalDistributed, amount)
		if err := e.store.putPool(pool); err != nil {
			return err
		}
		emitted = events.StakeRewardDistributed{
			Distributor:    caller,
			Amount:         new(big.Int).Set(amount),
			TotalStaked:    new(big.Int).Set(pool.TotalStaked),
			RewardPerToken: new(big.Int).Set(pool.RewardPerToken),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.logger.Debug("reward distributed",
		slog.String("distributor", caller.String()),
		slog.String("amount", amount.String()),
		slog.String("reward_per_token", emitted.RewardPerToken.String()))
	e.emitter.Emit(emitted)
	return new(big.Int).Set(emitted.RewardPerToken), nil
}

// Earned returns the reward currently owed to addr. It does not mutate state.
func (e *Engine) Earned(addr crypto.Address) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	pool, err := e.store.pool()
	if err != nil {
		return nil, err
	}
	acct, err := e.store.account(addr)
	if err != nil {
		return nil, err
	}
	return earned(pool, acct), nil
}

// StakeOf returns the amount addr currently has staked.
func (e *Engine) StakeOf(addr crypto.Address) (*big.Int, error) {
	acct, err := e.Account(addr)
	if err != nil {
		return nil, err
	}
	return acct.Staked, nil
}

// Account returns a copy of the stored record for addr. Unknown accounts are
// returned zeroed.
func (e *Engine) Account(addr crypto.Address) (*Account, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	acct, err := e.store.account(addr)
	if err != nil {
		return nil, err
	}
	return acct.Clone(), nil
}

// Pool returns a copy of the global accounting state.
func (e *Engine) Pool() (*Pool, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	pool, err := e.store.pool()
	if err != nil {
		return nil, err
	}
	return pool.Clone(), nil
}

// TotalStaked returns the sum of all stakes.
func (e *Engine) TotalStaked() (*big.Int, error) {
	pool, err := e.Pool()
	if err != nil {
		return nil, err
	}
	return pool.TotalStaked, nil
}

// RewardPerToken returns the current accumulator value, scaled by 1e18.
func (e *Engine) RewardPerToken() (*big.Int, error) {
	pool, err := e.Pool()
	if err != nil {
		return nil, err
	}
	return pool.RewardPerToken, nil
}

func (e *Engine) persist(pool *Pool, acct *Account) error {
	if err := e.store.putAccount(acct); err != nil {
		return err
	}
	return e.store.putPool(pool)
}
