package harvest

import (
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/jonboulle/clockwork"

	"feeshare/core/events"
	"feeshare/crypto"
	nativecommon "feeshare/native/common"
)

// FeeShareDivisor is the protocol fee share switched on for every configured
// pool: one tenth of LP fees on both sides.
const FeeShareDivisor uint8 = 10

const moduleName = "harvest"

// swapDeadline bounds how far the router clock may run ahead of ours.
const swapDeadline = time.Minute

// Distributor is the reward sink fed by the pipeline.
type Distributor interface {
	Address() crypto.Address
	Distribute(caller crypto.Address, amount *big.Int) (*big.Int, error)
}

// TokenResolver returns the ledger handle for a token address.
type TokenResolver func(addr crypto.Address) nativecommon.Token

// snapshotter is implemented by state backends that can roll back a partially
// applied operation.
type snapshotter interface {
	Snapshot() int
	RevertToSnapshot(int)
}

// Engine collects protocol fees from exchange pools, converts custody balances
// into the reward token and hands the proceeds to the distributor. It has no
// privileged operations: every entry point is open to any caller.
type Engine struct {
	address     crypto.Address
	factory     crypto.Address
	rewardToken nativecommon.Token
	tokens      TokenResolver
	router      nativecommon.Router
	distributor Distributor
	clock       clockwork.Clock

	state   Storage
	emitter events.Emitter
	logger  *slog.Logger
	guard   nativecommon.ReentrancyGuard
}

// Config bundles the collaborators of the pipeline.
type Config struct {
	// Address is the pipeline custody account and the fee recipient of every
	// configured pool.
	Address     crypto.Address
	Factory     crypto.Address
	RewardToken nativecommon.Token
	Tokens      TokenResolver
	Router      nativecommon.Router
	Distributor Distributor
	Clock       clockwork.Clock
}

// NewEngine constructs a pipeline from cfg.
func NewEngine(cfg Config) *Engine {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Engine{
		address:     cfg.Address,
		factory:     cfg.Factory,
		rewardToken: cfg.RewardToken,
		tokens:      cfg.Tokens,
		router:      cfg.Router,
		distributor: cfg.Distributor,
		clock:       clock,
		emitter:     events.NoopEmitter{},
		logger:      slog.Default().With(slog.String("module", moduleName)),
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state Storage) { e.state = state }

// SetEmitter configures the event sink.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
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

// Address returns the pipeline custody account.
func (e *Engine) Address() crypto.Address { return e.address }

// Factory returns the only factory whose pools are accepted.
func (e *Engine) Factory() crypto.Address { return e.factory }

// RewardToken returns the token every conversion targets.
func (e *Engine) RewardToken() nativecommon.Token { return e.rewardToken }

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.rewardToken == nil || e.tokens == nil || e.router == nil || e.distributor == nil {
		return errNilCollaborator
	}
	return nil
}

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

// IsConfigured reports whether ConfigureFeeShare has succeeded for pool.
func (e *Engine) IsConfigured(pool [32]byte) (bool, error) {
	if e == nil || e.state == nil {
		return false, errNilState
	}
	_, ok, err := e.feeShare(pool)
	return ok, err
}

// ConfigureFeeShare switches on the protocol fee share of pool with the
// pipeline as fee controller. It succeeds at most once per pool.
func (e *Engine) ConfigureFeeShare(caller crypto.Address, pool nativecommon.Pool) error {
	if pool == nil {
		return errNilPool
	}
	id := pool.ID()
	err := e.atomically(func() error {
		_, configured, err := e.feeShare(id)
		if err != nil {
			return err
		}
		if configured {
			return ErrAlreadyConfigured
		}
		if err := e.checkFactory(pool); err != nil {
			return err
		}
		if err := pool.SetFeeProtocol(e.address, FeeShareDivisor, FeeShareDivisor); err != nil {
			return fmt.Errorf("harvest: set fee protocol: %w", err)
		}
		return e.putFeeShare(&FeeShareRecord{Pool: id, Divisor: FeeShareDivisor, ConfiguredBy: caller.Array()})
	})
	if err != nil {
		return err
	}
	e.logger.Info("fee share configured", slog.String("pool", fmt.Sprintf("%x", id)), slog.String("caller", caller.String()))
	e.emitter.Emit(events.FeeShareConfigured{Caller: caller, Pool: id, Divisor: FeeShareDivisor})
	return nil
}

// Harvest pulls every accrued protocol fee of pool into pipeline custody and
// returns the amounts received per side.
func (e *Engine) Harvest(caller crypto.Address, pool nativecommon.Pool) (*big.Int, *big.Int, error) {
	if pool == nil {
		return nil, nil, errNilPool
	}
	var amount0, amount1 *big.Int
	err := e.atomically(func() error {
		if err := e.checkFactory(pool); err != nil {
			return err
		}
		all := nativecommon.MaxUint128()
		a0, a1, err := pool.CollectProtocol(e.address, e.address, all, new(big.Int).Set(all))
		if err != nil {
			return fmt.Errorf("harvest: collect protocol fees: %w", err)
		}
		amount0, amount1 = nativecommon.Copy(a0), nativecommon.Copy(a1)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	e.logger.Debug("protocol fees collected",
		slog.String("pool", fmt.Sprintf("%x", pool.ID())),
		slog.String("amount0", amount0.String()),
		slog.String("amount1", amount1.String()))
	e.emitter.Emit(events.FeesCollected{
		Caller:  caller,
		Pool:    pool.ID(),
		Token0:  pool.Token0(),
		Token1:  pool.Token1(),
		Amount0: new(big.Int).Set(amount0),
		Amount1: new(big.Int).Set(amount1),
	})
	return amount0, amount1, nil
}

// ConvertAndDistribute swaps amountIn of tokenIn held in custody into the
// reward token through the feeTier pool and distributes the proceeds. The swap
// is submitted with no minimum output; see ConvertAndDistributeWithMinimum.
func (e *Engine) ConvertAndDistribute(caller, tokenIn crypto.Address, amountIn *big.Int, feeTier uint32) (*big.Int, error) {
	return e.convertAndDistribute(caller, tokenIn, amountIn, feeTier, nil)
}

// ConvertAndDistributeWithMinimum is ConvertAndDistribute with a
// caller-supplied floor on the reward received. A conversion yielding less
// than minOut fails with ErrSlippage.
func (e *Engine) ConvertAndDistributeWithMinimum(caller, tokenIn crypto.Address, amountIn *big.Int, feeTier uint32, minOut *big.Int) (*big.Int, error) {
	if minOut == nil || minOut.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	return e.convertAndDistribute(caller, tokenIn, amountIn, feeTier, minOut)
}

func (e *Engine) convertAndDistribute(caller, tokenIn crypto.Address, amountIn *big.Int, feeTier uint32, minOut *big.Int) (*big.Int, error) {
	if tokenIn.IsZero() {
		return nil, fmt.Errorf("%w: input token required", ErrInvalidAmount)
	}
	if err := nativecommon.ValidateAmount(amountIn); err != nil {
		return nil, err
	}
	var received *big.Int
	err := e.atomically(func() error {
		input := e.tokens(tokenIn)
		if input == nil {
			return fmt.Errorf("harvest: unknown token %s", tokenIn)
		}
		custody, err := input.BalanceOf(e.address)
		if err != nil {
			return err
		}
		if custody.Cmp(amountIn) < 0 {
			return fmt.Errorf("%w: custody holds %s, need %s", ErrInsufficientBalance, custody, amountIn)
		}

		if tokenIn.Equal(e.rewardToken.Address()) {
			received = new(big.Int).Set(amountIn)
		} else {
			received, err = e.swap(input, amountIn, feeTier)
			if err != nil {
				return err
			}
		}
		if minOut != nil && received.Cmp(minOut) < 0 {
			return fmt.Errorf("%w: received %s, minimum %s", ErrSlippage, received, minOut)
		}

		sink := e.distributor.Address()
		if err := nativecommon.CheckTransfer(e.rewardToken.Approve(e.address, sink, received)); err != nil {
			return fmt.Errorf("harvest: approve distributor: %w", err)
		}
		if _, err := e.distributor.Distribute(e.address, received); err != nil {
			return fmt.Errorf("harvest: distribute: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("converted and distributed",
		slog.String("caller", caller.String()),
		slog.String("token_in", tokenIn.String()),
		slog.String("amount_in", amountIn.String()),
		slog.String("amount_out", received.String()),
		slog.Uint64("fee_tier", uint64(feeTier)))
	e.emitter.Emit(events.ConvertedAndDistributed{
		Caller:    caller,
		TokenIn:   tokenIn,
		AmountIn:  new(big.Int).Set(amountIn),
		AmountOut: new(big.Int).Set(received),
		FeeTier:   feeTier,
	})
	return new(big.Int).Set(received), nil
}

// swap converts amountIn of input into the reward token and returns the
// custody delta of the reward token. The router is given no minimum output
// and no price limit.
func (e *Engine) swap(input nativecommon.Token, amountIn *big.Int, feeTier uint32) (*big.Int, error) {
	before, err := e.rewardToken.BalanceOf(e.address)
	if err != nil {
		return nil, err
	}
	if err := nativecommon.CheckTransfer(input.Approve(e.address, e.router.Address(), amountIn)); err != nil {
		return nil, fmt.Errorf("harvest: approve router: %w", err)
	}
	params := nativecommon.ExactInputSingleParams{
		TokenIn:          input.Address(),
		TokenOut:         e.rewardToken.Address(),
		Fee:              feeTier,
		Recipient:        e.address,
		Deadline:         e.clock.Now().Add(swapDeadline),
		AmountIn:         new(big.Int).Set(amountIn),
		AmountOutMinimum: big.NewInt(0),
	}
	if _, err := e.router.ExactInputSingle(e.address, params); err != nil {
		return nil, fmt.Errorf("harvest: swap: %w", err)
	}
	after, err := e.rewardToken.BalanceOf(e.address)
	if err != nil {
		return nil, err
	}
	delta := new(big.Int).Sub(after, before)
	if delta.Sign() <= 0 {
		return nil, ErrNoOutputReceived
	}
	return delta, nil
}

func (e *Engine) checkFactory(pool nativecommon.Pool) error {
	if !pool.Factory().Equal(e.factory) {
		return fmt.Errorf("%w: pool factory %s, expected %s", ErrWrongFactory, pool.Factory(), e.factory)
	}
	return nil
}
