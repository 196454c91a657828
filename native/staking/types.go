package staking

import (
	"math/big"

	"feeshare/crypto"
	nativecommon "feeshare/native/common"
)

// Pool is the process-wide accounting state of the staking engine.
type Pool struct {
	TotalStaked *big.Int
	// RewardPerToken is the cumulative reward per staked unit, scaled by
	// RewardScale. It never decreases.
	RewardPerToken *big.Int
	// TotalDistributed and TotalClaimed are lifetime counters kept for
	// conservation checks.
	TotalDistributed *big.Int
	TotalClaimed     *big.Int
}

// Account is the per-participant staking record.
type Account struct {
	Address    [20]byte
	Staked     *big.Int
	RewardDebt *big.Int
	Unclaimed  *big.Int
}

func newPool() *Pool {
	return &Pool{
		TotalStaked:      big.NewInt(0),
		RewardPerToken:   big.NewInt(0),
		TotalDistributed: big.NewInt(0),
		TotalClaimed:     big.NewInt(0),
	}
}

func newAccount(addr crypto.Address) *Account {
	return &Account{
		Address:    addr.Array(),
		Staked:     big.NewInt(0),
		RewardDebt: big.NewInt(0),
		Unclaimed:  big.NewInt(0),
	}
}

// Clone returns a deep copy of the pool.
func (p *Pool) Clone() *Pool {
	if p == nil {
		return newPool()
	}
	return &Pool{
		TotalStaked:      nativecommon.Copy(p.TotalStaked),
		RewardPerToken:   nativecommon.Copy(p.RewardPerToken),
		TotalDistributed: nativecommon.Copy(p.TotalDistributed),
		TotalClaimed:     nativecommon.Copy(p.TotalClaimed),
	}
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	return &Account{
		Address:    a.Address,
		Staked:     nativecommon.Copy(a.Staked),
		RewardDebt: nativecommon.Copy(a.RewardDebt),
		Unclaimed:  nativecommon.Copy(a.Unclaimed),
	}
}

// Owner returns the account address.
func (a *Account) Owner() crypto.Address {
	return crypto.NewAddress(crypto.FSPrefix, a.Address[:])
}

func (p *Pool) normalize() {
	p.TotalStaked = nativecommon.Copy(p.TotalStaked)
	p.RewardPerToken = nativecommon.Copy(p.RewardPerToken)
	p.TotalDistributed = nativecommon.Copy(p.TotalDistributed)
	p.TotalClaimed = nativecommon.Copy(p.TotalClaimed)
}

func (a *Account) normalize() {
	a.Staked = nativecommon.Copy(a.Staked)
	a.RewardDebt = nativecommon.Copy(a.RewardDebt)
	a.Unclaimed = nativecommon.Copy(a.Unclaimed)
}
