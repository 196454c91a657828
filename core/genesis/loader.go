package genesis

import (
	"errors"
	"fmt"
	"math/big"

	"feeshare/crypto"
	"feeshare/native/amm"
	nativecommon "feeshare/native/common"
	"feeshare/native/harvest"
	"feeshare/native/token"
)

// Storage persists the applied marker.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// Target bundles the modules a spec is applied to.
type Target struct {
	State   Storage
	Ledger  *token.Ledger
	Factory *amm.Factory
	Harvest *harvest.Engine
	// Liquidity is the account funded with, and depositing, pool liquidity.
	Liquidity crypto.Address
}

var appliedKey = []byte("genesis/applied")

type marker struct {
	Applied bool
}

// Applied reports whether a genesis has already been written to state.
func Applied(state Storage) (bool, error) {
	if state == nil {
		return false, errors.New("genesis: nil state")
	}
	var m marker
	ok, err := state.KVGet(appliedKey, &m)
	if err != nil {
		return false, err
	}
	return ok && m.Applied, nil
}

// Apply registers tokens, mints allocations, seeds pools and enables fee
// sharing where requested. The caller commits or discards the result.
func Apply(spec *Spec, target Target) error {
	if spec == nil {
		return errors.New("genesis: nil spec")
	}
	if target.State == nil || target.Ledger == nil || target.Factory == nil || target.Harvest == nil {
		return errors.New("genesis: incomplete target")
	}
	applied, err := Applied(target.State)
	if err != nil {
		return err
	}
	if applied {
		return nil
	}

	for _, tok := range spec.Tokens {
		if _, err := target.Ledger.Register(tok.Address, tok.Symbol, tok.Decimals); err != nil {
			return fmt.Errorf("genesis: register %s: %w", tok.Symbol, err)
		}
		for _, alloc := range tok.Allocations {
			if err := target.Ledger.Mint(tok.Address, alloc.Account, alloc.Amount); err != nil {
				return fmt.Errorf("genesis: mint %s: %w", tok.Symbol, err)
			}
		}
	}

	for _, ps := range spec.Pools {
		pool, err := target.Factory.CreatePool(ps.Key.Token0, ps.Key.Token1, ps.Key.Fee)
		if err != nil {
			return fmt.Errorf("genesis: create pool: %w", err)
		}
		deposits := []struct {
			token  crypto.Address
			amount *big.Int
		}{
			{ps.Key.Token0, ps.Amount0},
			{ps.Key.Token1, ps.Amount1},
		}
		for _, d := range deposits {
			if err := target.Ledger.Mint(d.token, target.Liquidity, d.amount); err != nil {
				return fmt.Errorf("genesis: fund liquidity: %w", err)
			}
			if _, err := target.Ledger.Approve(d.token, target.Liquidity, pool.Address(), nativecommon.MaxUint256()); err != nil {
				return fmt.Errorf("genesis: approve pool: %w", err)
			}
		}
		if _, err := pool.AddLiquidity(target.Liquidity, ps.Amount0, ps.Amount1); err != nil {
			return fmt.Errorf("genesis: add liquidity: %w", err)
		}
		if ps.ConfigureFeeShare {
			if err := target.Harvest.ConfigureFeeShare(target.Liquidity, pool); err != nil {
				return fmt.Errorf("genesis: configure fee share: %w", err)
			}
		}
	}
	return target.State.KVPut(appliedKey, marker{Applied: true})
}
