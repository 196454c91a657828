package keeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/jonboulle/clockwork"

	"feeshare/core"
	"feeshare/crypto"
	nativecommon "feeshare/native/common"
	"feeshare/observability"
)

// Pipeline is the node surface the keeper drives.
type Pipeline interface {
	RewardToken() crypto.Address
	Pools() ([]core.PoolView, error)
	CustodyBalances() ([]core.Balance, error)
	Harvest(ctx context.Context, caller crypto.Address, poolID [32]byte) (*big.Int, *big.Int, error)
	ConvertAndDistribute(ctx context.Context, caller, tokenIn crypto.Address, amountIn *big.Int, feeTier uint32) (*big.Int, error)
}

// Config configures a Keeper.
type Config struct {
	Pipeline Pipeline
	Caller   crypto.Address
	Interval time.Duration
	Clock    clockwork.Clock
	Logger   *slog.Logger
}

// Report summarises a single pass.
type Report struct {
	Harvested   int
	Converted   int
	Distributed *big.Int
	Skipped     []string
}

// Keeper periodically harvests configured pools and distributes the custody
// balance. It holds no privileges; it is an ordinary caller of open entry
// points.
type Keeper struct {
	pipeline Pipeline
	caller   crypto.Address
	interval time.Duration
	clock    clockwork.Clock
	logger   *slog.Logger
	metrics  *observability.FeeshareMetrics
}

// New constructs a keeper with defaults applied.
func New(cfg Config) (*Keeper, error) {
	if cfg.Pipeline == nil {
		return nil, errors.New("keeper: pipeline required")
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Keeper{
		pipeline: cfg.Pipeline,
		caller:   cfg.Caller,
		interval: interval,
		clock:    clock,
		logger:   logger.With(slog.String("component", "keeper")),
		metrics:  observability.Feeshare(),
	}, nil
}

// Run executes a pass on every tick until ctx is cancelled.
func (k *Keeper) Run(ctx context.Context) error {
	ticker := k.clock.NewTicker(k.interval)
	defer ticker.Stop()
	k.logger.Info("keeper started", slog.Duration("interval", k.interval))
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			report, err := k.RunOnce(ctx)
			k.metrics.RecordKeeperRun(err)
			if err != nil {
				k.logger.Warn("keeper pass failed", slog.Any("error", err))
				continue
			}
			k.logger.Debug("keeper pass complete",
				slog.Int("harvested", report.Harvested),
				slog.Int("converted", report.Converted),
				slog.String("distributed", report.Distributed.String()))
		}
	}
}

// RunOnce harvests every configured pool and converts each custody balance
// into the reward token. Custody balances with no route to the reward token,
// or that cannot be distributed because nobody is staked, are left in place.
func (k *Keeper) RunOnce(ctx context.Context) (*Report, error) {
	report := &Report{Distributed: big.NewInt(0)}
	pools, err := k.pipeline.Pools()
	if err != nil {
		return nil, fmt.Errorf("keeper: list pools: %w", err)
	}
	for _, pool := range pools {
		if !pool.FeeShareConfigured {
			continue
		}
		if pool.ProtocolFees0.Sign() == 0 && pool.ProtocolFees1.Sign() == 0 {
			continue
		}
		if _, _, err := k.pipeline.Harvest(ctx, k.caller, pool.ID); err != nil {
			return report, fmt.Errorf("keeper: harvest %x: %w", pool.ID, err)
		}
		report.Harvested++
	}

	balances, err := k.pipeline.CustodyBalances()
	if err != nil {
		return report, fmt.Errorf("keeper: custody balances: %w", err)
	}
	reward := k.pipeline.RewardToken()
	for _, bal := range balances {
		feeTier, ok := routeFee(pools, bal.Token, reward)
		if !ok {
			report.Skipped = append(report.Skipped, bal.Symbol)
			continue
		}
		out, err := k.pipeline.ConvertAndDistribute(ctx, k.caller, bal.Token, bal.Amount, feeTier)
		switch {
		case err == nil:
			report.Converted++
			report.Distributed.Add(report.Distributed, out)
		case errors.Is(err, nativecommon.ErrNoStakers), errors.Is(err, nativecommon.ErrNoOutputReceived):
			k.logger.Info("custody balance held back",
				slog.String("token", bal.Symbol),
				slog.String("amount", bal.Amount.String()),
				slog.String("reason", err.Error()))
			report.Skipped = append(report.Skipped, bal.Symbol)
		default:
			return report, fmt.Errorf("keeper: convert %s: %w", bal.Symbol, err)
		}
	}
	return report, nil
}

// routeFee picks the fee tier of the deepest direct pool between token and
// the reward token. The reward token itself needs no route.
func routeFee(pools []core.PoolView, tok, reward crypto.Address) (uint32, bool) {
	if tok.Equal(reward) {
		return 0, true
	}
	var (
		best  uint32
		depth *big.Int
	)
	for _, pool := range pools {
		pairs := (pool.Token0.Equal(tok) && pool.Token1.Equal(reward)) ||
			(pool.Token1.Equal(tok) && pool.Token0.Equal(reward))
		if !pairs || pool.Liquidity == nil || pool.Liquidity.Sign() == 0 {
			continue
		}
		if depth == nil || pool.Liquidity.Cmp(depth) > 0 {
			best, depth = pool.Fee, pool.Liquidity
		}
	}
	return best, depth != nil
}
