package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"feeshare/core/events"
	"feeshare/core/genesis"
	"feeshare/core/state"
	"feeshare/crypto"
	"feeshare/native/amm"
	nativecommon "feeshare/native/common"
	"feeshare/native/harvest"
	"feeshare/native/staking"
	"feeshare/native/token"
	"feeshare/observability"
	"feeshare/storage"
)

// Well-known module accounts.
var (
	StakingAddress   = crypto.DeriveAddress("feeshare/staking")
	HarvestAddress   = crypto.DeriveAddress("feeshare/harvest")
	FactoryAddress   = crypto.DeriveAddress("amm/factory")
	RouterAddress    = crypto.DeriveAddress("amm/router")
	LiquidityAddress = crypto.DeriveAddress("feeshare/genesis-liquidity")
)

// ErrNodeClosed is returned by operations issued after Close.
var ErrNodeClosed = errors.New("core: node closed")

// Options configures a Node.
type Options struct {
	Clock   clockwork.Clock
	Logger  *slog.Logger
	Emitter events.Emitter
}

// Node owns the shared state and every in-process module. Each mutating call
// runs as one unit: either every module write it caused is committed to the
// database or none is, and events reach subscribers only after the commit.
type Node struct {
	stateMu sync.Mutex
	closed  bool

	db      storage.Database
	state   *state.Manager
	ledger  *token.Ledger
	factory *amm.Factory
	router  *amm.Router
	staking *staking.Engine
	harvest *harvest.Engine

	tokens      []crypto.Address
	stakeToken  crypto.Address
	rewardToken crypto.Address

	pending     []events.Event
	subscribers events.Emitter

	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.FeeshareMetrics
	tracer  trace.Tracer
}

// nodeEventEmitter buffers module events until the enclosing operation has
// been committed.
type nodeEventEmitter struct {
	node *Node
}

func (e nodeEventEmitter) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	e.node.pending = append(e.node.pending, evt)
}

// New wires the modules over db and applies spec on first start.
func New(db storage.Database, spec *genesis.Spec, opts Options) (*Node, error) {
	if db == nil {
		return nil, fmt.Errorf("core: database must not be nil")
	}
	if spec == nil {
		return nil, fmt.Errorf("core: genesis spec must not be nil")
	}
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	subscribers := opts.Emitter
	if subscribers == nil {
		subscribers = events.NoopEmitter{}
	}

	n := &Node{
		db:          db,
		state:       state.NewManager(db),
		stakeToken:  spec.StakeToken,
		rewardToken: spec.RewardToken,
		subscribers: subscribers,
		clock:       clock,
		logger:      logger.With(slog.String("component", "core")),
		metrics:     observability.Feeshare(),
		tracer:      otel.Tracer("feeshare/core"),
	}
	for _, tok := range spec.Tokens {
		n.tokens = append(n.tokens, tok.Address)
	}
	emitter := nodeEventEmitter{node: n}

	n.ledger = token.NewLedger(n.state)
	n.ledger.SetEmitter(emitter)

	n.factory = amm.NewFactory(FactoryAddress, HarvestAddress, n.ledger)
	n.factory.SetState(n.state)
	n.factory.SetEmitter(emitter)
	n.router = amm.NewRouter(RouterAddress, n.factory, clock)

	n.staking = staking.NewEngine(StakingAddress, n.ledger.Token(spec.StakeToken), n.ledger.Token(spec.RewardToken))
	n.staking.SetState(n.state)
	n.staking.SetEmitter(emitter)
	n.staking.SetLogger(logger)

	n.harvest = harvest.NewEngine(harvest.Config{
		Address:     HarvestAddress,
		Factory:     FactoryAddress,
		RewardToken: n.ledger.Token(spec.RewardToken),
		Tokens:      func(addr crypto.Address) nativecommon.Token { return n.ledger.Token(addr) },
		Router:      n.router,
		Distributor: n.staking,
		Clock:       clock,
	})
	n.harvest.SetState(n.state)
	n.harvest.SetEmitter(emitter)
	n.harvest.SetLogger(logger)

	err := n.execute(context.Background(), "genesis", "apply", nil, func() error {
		return genesis.Apply(spec, genesis.Target{
			State:     n.state,
			Ledger:    n.ledger,
			Factory:   n.factory,
			Harvest:   n.harvest,
			Liquidity: LiquidityAddress,
		})
	})
	if err != nil {
		return nil, err
	}
	return n, nil
}

// SetEmitter replaces the subscriber that receives committed events.
func (n *Node) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	n.stateMu.Lock()
	n.subscribers = emitter
	n.stateMu.Unlock()
}

// Close drops uncommitted writes and closes the database. Later calls fail
// with ErrNodeClosed.
func (n *Node) Close() error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	if n.closed {
		return nil
	}
	n.closed = true
	n.state.Discard()
	return n.db.Close()
}

// Ledger exposes the token ledger for read access and tests.
func (n *Node) Ledger() *token.Ledger { return n.ledger }

// StakeToken returns the stake token address.
func (n *Node) StakeToken() crypto.Address { return n.stakeToken }

// RewardToken returns the reward token address.
func (n *Node) RewardToken() crypto.Address { return n.rewardToken }

// Tokens returns every token registered at genesis.
func (n *Node) Tokens() []crypto.Address {
	return append([]crypto.Address(nil), n.tokens...)
}

// execute runs fn against the shared overlay and commits it on success.
// On failure every write made by fn is discarded along with its events.
func (n *Node) execute(ctx context.Context, module, operation string, caller *crypto.Address, fn func() error) (err error) {
	ctx, span := n.tracer.Start(ctx, module+"."+operation)
	defer span.End()
	if caller != nil {
		span.SetAttributes(attribute.String("feeshare.caller", caller.String()))
	}
	start := n.clock.Now()
	defer func() {
		n.metrics.ObserveOperation(module, operation, n.clock.Since(start), err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()
	if err := ctx.Err(); err != nil {
		return err
	}

	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	if n.closed {
		return ErrNodeClosed
	}

	n.pending = n.pending[:0]
	snapshot := n.state.Snapshot()
	if err := fn(); err != nil {
		n.state.RevertToSnapshot(snapshot)
		n.state.Discard()
		n.pending = n.pending[:0]
		n.logger.Debug("operation reverted",
			slog.String("module", module),
			slog.String("operation", operation),
			slog.Any("error", err))
		return err
	}
	if err := n.state.Commit(); err != nil {
		n.state.Discard()
		n.pending = n.pending[:0]
		return fmt.Errorf("core: commit %s.%s: %w", module, operation, err)
	}

	for _, evt := range n.pending {
		n.subscribers.Emit(evt)
		observability.Events().RecordEvent(evt.EventType())
	}
	span.SetAttributes(attribute.Int("feeshare.events", len(n.pending)))
	n.pending = n.pending[:0]
	n.recordPool()
	return nil
}

func (n *Node) recordPool() {
	pool, err := n.staking.Pool()
	if err != nil {
		return
	}
	n.metrics.RecordPool(pool.TotalStaked, pool.RewardPerToken)
}

// Approve sets the allowance of spender over owner's balance of tok.
func (n *Node) Approve(ctx context.Context, tok, owner, spender crypto.Address, amount *big.Int) error {
	return n.execute(ctx, "token", "approve", &owner, func() error {
		return nativecommon.CheckTransfer(n.ledger.Approve(tok, owner, spender, amount))
	})
}

// Transfer moves amount of tok from the caller to another account.
func (n *Node) Transfer(ctx context.Context, tok, from, to crypto.Address, amount *big.Int) error {
	return n.execute(ctx, "token", "transfer", &from, func() error {
		return nativecommon.CheckTransfer(n.ledger.Transfer(tok, from, to, amount))
	})
}

// Stake locks amount of the stake token for caller.
func (n *Node) Stake(ctx context.Context, caller crypto.Address, amount *big.Int) error {
	return n.execute(ctx, "staking", "stake", &caller, func() error {
		return n.staking.Stake(caller, amount)
	})
}

// Withdraw releases amount of caller's stake.
func (n *Node) Withdraw(ctx context.Context, caller crypto.Address, amount *big.Int) error {
	return n.execute(ctx, "staking", "withdraw", &caller, func() error {
		return n.staking.Withdraw(caller, amount)
	})
}

// Claim pays out caller's accrued reward.
func (n *Node) Claim(ctx context.Context, caller crypto.Address) (*big.Int, error) {
	var paid *big.Int
	err := n.execute(ctx, "staking", "claim", &caller, func() error {
		var err error
		paid, err = n.staking.Claim(caller)
		return err
	})
	if err != nil {
		return nil, err
	}
	return paid, nil
}

// Exit withdraws caller's whole stake and claims the accrued reward.
func (n *Node) Exit(ctx context.Context, caller crypto.Address) (withdrawn, paid *big.Int, err error) {
	err = n.execute(ctx, "staking", "exit", &caller, func() error {
		var err error
		withdrawn, paid, err = n.staking.Exit(caller)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return withdrawn, paid, nil
}

// Distribute funds the reward pool from caller's reward balance.
func (n *Node) Distribute(ctx context.Context, caller crypto.Address, amount *big.Int) (*big.Int, error) {
	var rewardPerToken *big.Int
	err := n.execute(ctx, "staking", "distribute", &caller, func() error {
		var err error
		rewardPerToken, err = n.staking.Distribute(caller, amount)
		return err
	})
	if err != nil {
		return nil, err
	}
	n.metrics.RecordDistribution(amount)
	return rewardPerToken, nil
}

// Swap executes an exact-input swap through the router on behalf of caller.
func (n *Node) Swap(ctx context.Context, caller crypto.Address, params nativecommon.ExactInputSingleParams) (*big.Int, error) {
	var out *big.Int
	err := n.execute(ctx, "amm", "swap", &caller, func() error {
		var err error
		out, err = n.router.ExactInputSingle(caller, params)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ConfigureFeeShare routes a share of the pool's fees to the harvest custody.
func (n *Node) ConfigureFeeShare(ctx context.Context, caller crypto.Address, poolID [32]byte) error {
	return n.execute(ctx, "harvest", "configure_fee_share", &caller, func() error {
		pool, err := n.factory.Pool(poolID)
		if err != nil {
			return err
		}
		return n.harvest.ConfigureFeeShare(caller, pool)
	})
}

// Harvest collects the protocol fees accrued by a pool into custody.
func (n *Node) Harvest(ctx context.Context, caller crypto.Address, poolID [32]byte) (amount0, amount1 *big.Int, err error) {
	var pool *amm.Pool
	err = n.execute(ctx, "harvest", "harvest", &caller, func() error {
		var err error
		if pool, err = n.factory.Pool(poolID); err != nil {
			return err
		}
		amount0, amount1, err = n.harvest.Harvest(caller, pool)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	n.metrics.RecordHarvest(n.symbol(pool.Token0()), amount0)
	n.metrics.RecordHarvest(n.symbol(pool.Token1()), amount1)
	return amount0, amount1, nil
}

// ConvertAndDistribute swaps custody funds into the reward token and
// distributes the proceeds.
func (n *Node) ConvertAndDistribute(ctx context.Context, caller, tokenIn crypto.Address, amountIn *big.Int, feeTier uint32) (*big.Int, error) {
	return n.convert(ctx, caller, func() (*big.Int, error) {
		return n.harvest.ConvertAndDistribute(caller, tokenIn, amountIn, feeTier)
	})
}

// ConvertAndDistributeWithMinimum is ConvertAndDistribute with a floor on the
// reward received from the swap.
func (n *Node) ConvertAndDistributeWithMinimum(ctx context.Context, caller, tokenIn crypto.Address, amountIn *big.Int, feeTier uint32, minOut *big.Int) (*big.Int, error) {
	return n.convert(ctx, caller, func() (*big.Int, error) {
		return n.harvest.ConvertAndDistributeWithMinimum(caller, tokenIn, amountIn, feeTier, minOut)
	})
}

func (n *Node) convert(ctx context.Context, caller crypto.Address, run func() (*big.Int, error)) (*big.Int, error) {
	var distributed *big.Int
	err := n.execute(ctx, "harvest", "convert_and_distribute", &caller, func() error {
		var err error
		distributed, err = run()
		return err
	})
	if err != nil {
		return nil, err
	}
	n.metrics.RecordDistribution(distributed)
	return distributed, nil
}

func (n *Node) symbol(tok crypto.Address) string {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	meta, err := n.ledger.Metadata(tok)
	if err != nil {
		return tok.String()
	}
	return meta.Symbol
}

// view runs a read under the state lock.
func (n *Node) view(fn func() error) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	if n.closed {
		return ErrNodeClosed
	}
	return fn()
}
