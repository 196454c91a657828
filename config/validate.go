package config

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"feeshare/crypto"
)

var validFeeTiers = map[uint32]bool{500: true, 3_000: true, 10_000: true}

// Validate checks cross-field consistency of cfg.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config: nil")
	}
	switch cfg.Storage.Backend {
	case "memory":
	case "leveldb":
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			return errors.New("storage: leveldb backend requires Path")
		}
	default:
		return fmt.Errorf("storage: unknown backend %q", cfg.Storage.Backend)
	}
	switch cfg.Journal.Driver {
	case "sqlite", "postgres":
		if strings.TrimSpace(cfg.Journal.DSN) == "" {
			return fmt.Errorf("journal: %s driver requires DSN", cfg.Journal.Driver)
		}
	default:
		return fmt.Errorf("journal: unknown driver %q", cfg.Journal.Driver)
	}
	if cfg.Telemetry.SampleRatio < 0 || cfg.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry: SampleRatio %v outside [0, 1]", cfg.Telemetry.SampleRatio)
	}
	if cfg.Server.RateLimitBurst < 1 {
		return errors.New("server: RateLimitBurst must be positive")
	}

	symbols := make(map[string]bool, len(cfg.Tokens))
	for i, tok := range cfg.Tokens {
		sym := strings.ToUpper(strings.TrimSpace(tok.Symbol))
		if sym == "" {
			return fmt.Errorf("tokens[%d]: symbol required", i)
		}
		if symbols[sym] {
			return fmt.Errorf("tokens[%d]: duplicate symbol %s", i, sym)
		}
		symbols[sym] = true
		for j, alloc := range tok.Allocations {
			if _, err := crypto.DecodeAddress(alloc.Address); err != nil {
				return fmt.Errorf("tokens[%d].allocations[%d]: %w", i, j, err)
			}
			if _, err := ParseAmount(alloc.Amount); err != nil {
				return fmt.Errorf("tokens[%d].allocations[%d]: %w", i, j, err)
			}
		}
	}
	for _, sym := range []string{cfg.Staking.StakeToken, cfg.Staking.RewardToken} {
		if !symbols[strings.ToUpper(strings.TrimSpace(sym))] {
			return fmt.Errorf("staking: token %q is not registered", sym)
		}
	}
	for i, pool := range cfg.Pools {
		a := strings.ToUpper(strings.TrimSpace(pool.TokenA))
		b := strings.ToUpper(strings.TrimSpace(pool.TokenB))
		if !symbols[a] || !symbols[b] {
			return fmt.Errorf("pools[%d]: unknown token in pair %s/%s", i, pool.TokenA, pool.TokenB)
		}
		if a == b {
			return fmt.Errorf("pools[%d]: identical tokens", i)
		}
		if !validFeeTiers[pool.Fee] {
			return fmt.Errorf("pools[%d]: unsupported fee tier %d", i, pool.Fee)
		}
		for _, raw := range []string{pool.LiquidityA, pool.LiquidityB} {
			if _, err := ParseAmount(raw); err != nil {
				return fmt.Errorf("pools[%d]: liquidity: %w", i, err)
			}
		}
	}
	return nil
}

// ParseAmount parses a positive base-10 integer amount.
func ParseAmount(raw string) (*big.Int, error) {
	value, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	if value.Sign() <= 0 {
		return nil, fmt.Errorf("amount %q must be positive", raw)
	}
	return value, nil
}
