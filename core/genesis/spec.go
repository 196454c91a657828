package genesis

import (
	"fmt"
	"math/big"
	"sort"
	"strings"

	"feeshare/config"
	"feeshare/crypto"
	"feeshare/native/amm"
	"feeshare/native/token"
)

// Spec is the resolved genesis state: every symbol mapped to its token
// address and every amount parsed.
type Spec struct {
	Tokens      []TokenSpec
	Pools       []PoolSpec
	StakeToken  crypto.Address
	RewardToken crypto.Address
}

// TokenSpec registers a token and mints its allocations.
type TokenSpec struct {
	Address     crypto.Address
	Symbol      string
	Decimals    uint8
	Allocations []AllocationSpec
}

// AllocationSpec is a single genesis balance.
type AllocationSpec struct {
	Account crypto.Address
	Amount  *big.Int
}

// PoolSpec creates a pool seeded by the genesis liquidity account.
type PoolSpec struct {
	Key               amm.PoolKey
	Amount0           *big.Int
	Amount1           *big.Int
	ConfigureFeeShare bool
}

// FromConfig resolves the token and pool sections of cfg.
func FromConfig(cfg *config.Config) (*Spec, error) {
	if cfg == nil {
		return nil, fmt.Errorf("genesis: config must not be nil")
	}
	spec := &Spec{}
	known := make(map[string]crypto.Address, len(cfg.Tokens))

	tokens := append([]config.Token(nil), cfg.Tokens...)
	sort.Slice(tokens, func(i, j int) bool {
		return token.NormalizeSymbol(tokens[i].Symbol) < token.NormalizeSymbol(tokens[j].Symbol)
	})
	for _, tok := range tokens {
		symbol := token.NormalizeSymbol(tok.Symbol)
		if symbol == "" {
			return nil, fmt.Errorf("genesis: token symbol required")
		}
		if _, dup := known[symbol]; dup {
			return nil, fmt.Errorf("genesis: duplicate token %s", symbol)
		}
		entry := TokenSpec{
			Address:  token.AddressForSymbol(symbol),
			Symbol:   symbol,
			Decimals: tok.Decimals,
		}
		for _, alloc := range tok.Allocations {
			account, err := crypto.DecodeAddress(alloc.Address)
			if err != nil {
				return nil, fmt.Errorf("genesis: %s allocation: %w", symbol, err)
			}
			amount, err := config.ParseAmount(alloc.Amount)
			if err != nil {
				return nil, fmt.Errorf("genesis: %s allocation: %w", symbol, err)
			}
			entry.Allocations = append(entry.Allocations, AllocationSpec{Account: account, Amount: amount})
		}
		known[symbol] = entry.Address
		spec.Tokens = append(spec.Tokens, entry)
	}

	var err error
	if spec.StakeToken, err = lookup(known, cfg.Staking.StakeToken); err != nil {
		return nil, fmt.Errorf("genesis: stake token: %w", err)
	}
	if spec.RewardToken, err = lookup(known, cfg.Staking.RewardToken); err != nil {
		return nil, fmt.Errorf("genesis: reward token: %w", err)
	}

	for i, pool := range cfg.Pools {
		a, err := lookup(known, pool.TokenA)
		if err != nil {
			return nil, fmt.Errorf("genesis: pools[%d]: %w", i, err)
		}
		b, err := lookup(known, pool.TokenB)
		if err != nil {
			return nil, fmt.Errorf("genesis: pools[%d]: %w", i, err)
		}
		if a.Equal(b) {
			return nil, fmt.Errorf("genesis: pools[%d]: %w", i, amm.ErrIdenticalTokens)
		}
		if !amm.SupportedFee(pool.Fee) {
			return nil, fmt.Errorf("genesis: pools[%d]: %w", i, amm.ErrUnsupportedFee)
		}
		amountA, err := config.ParseAmount(pool.LiquidityA)
		if err != nil {
			return nil, fmt.Errorf("genesis: pools[%d]: %w", i, err)
		}
		amountB, err := config.ParseAmount(pool.LiquidityB)
		if err != nil {
			return nil, fmt.Errorf("genesis: pools[%d]: %w", i, err)
		}
		key := amm.NewPoolKey(a, b, pool.Fee)
		amount0, amount1 := amountA, amountB
		if !key.Token0.Equal(a) {
			amount0, amount1 = amountB, amountA
		}
		spec.Pools = append(spec.Pools, PoolSpec{
			Key:               key,
			Amount0:           amount0,
			Amount1:           amount1,
			ConfigureFeeShare: pool.ConfigureFeeShare,
		})
	}
	return spec, nil
}

func lookup(known map[string]crypto.Address, symbol string) (crypto.Address, error) {
	addr, ok := known[token.NormalizeSymbol(symbol)]
	if !ok {
		return crypto.Address{}, fmt.Errorf("unknown token %q", strings.TrimSpace(symbol))
	}
	return addr, nil
}
