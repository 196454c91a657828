package staking

import "math/big"

const rewardScale = int64(1_000_000_000_000_000_000)

var rewardScaleBig = big.NewInt(rewardScale)

// RewardScale returns the fixed-point scale of the reward accumulator (1e18).
func RewardScale() *big.Int {
	return new(big.Int).Set(rewardScaleBig)
}

// earned returns unclaimed + staked * (rewardPerToken - debt) / scale.
func earned(pool *Pool, acct *Account) *big.Int {
	delta := new(big.Int).Sub(pool.RewardPerToken, acct.RewardDebt)
	pending := new(big.Int).Mul(acct.Staked, delta)
	pending.Quo(pending, rewardScaleBig)
	return pending.Add(pending, acct.Unclaimed)
}

// settle crystallises pending reward against the current accumulator. It must
// run before any change to the account's stake or the pool total.
func settle(pool *Pool, acct *Account) {
	acct.Unclaimed = earned(pool, acct)
	acct.RewardDebt = new(big.Int).Set(pool.RewardPerToken)
}

// accumulatorIncrement is reward * scale / totalStaked, floored so the pool
// never over-distributes.
func accumulatorIncrement(reward, totalStaked *big.Int) *big.Int {
	increment := new(big.Int).Mul(reward, rewardScaleBig)
	return increment.Quo(increment, totalStaked)
}
