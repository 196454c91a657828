package events

import (
	"math/big"

	"feeshare/core/types"
	"feeshare/crypto"
)

const (
	// TypeStakeStaked is emitted when an account locks stake.
	TypeStakeStaked = "stake.staked"
	// TypeStakeWithdrawn is emitted when an account releases stake.
	TypeStakeWithdrawn = "stake.withdrawn"
	// TypeStakeRewardPaid is emitted when accrued reward is paid to an account.
	TypeStakeRewardPaid = "stake.rewardPaid"
	// TypeStakeRewardDistributed is emitted when reward enters the pool and the
	// per-token accumulator advances.
	TypeStakeRewardDistributed = "stake.rewardDistributed"
)

// StakeStaked captures a stake deposit and the resulting balances.
type StakeStaked struct {
	Account     crypto.Address
	Amount      *big.Int
	NewStake    *big.Int
	TotalStaked *big.Int
}

// EventType satisfies the Event interface.
func (StakeStaked) EventType() string { return TypeStakeStaked }

// Event converts the structured payload into a broadcastable event.
func (e StakeStaked) Event() *types.Event {
	return &types.Event{Type: TypeStakeStaked, Attributes: map[string]string{
		"account":     formatAddress(e.Account),
		"amount":      formatAmount(e.Amount),
		"newStake":    formatAmount(e.NewStake),
		"totalStaked": formatAmount(e.TotalStaked),
	}}
}

// StakeWithdrawn captures a stake withdrawal and the resulting balances.
type StakeWithdrawn struct {
	Account     crypto.Address
	Amount      *big.Int
	NewStake    *big.Int
	TotalStaked *big.Int
}

// EventType satisfies the Event interface.
func (StakeWithdrawn) EventType() string { return TypeStakeWithdrawn }

// Event converts the structured payload into a broadcastable event.
func (e StakeWithdrawn) Event() *types.Event {
	return &types.Event{Type: TypeStakeWithdrawn, Attributes: map[string]string{
		"account":     formatAddress(e.Account),
		"amount":      formatAmount(e.Amount),
		"newStake":    formatAmount(e.NewStake),
		"totalStaked": formatAmount(e.TotalStaked),
	}}
}

// StakeRewardPaid records a reward payout.
type StakeRewardPaid struct {
	Account crypto.Address
	Amount  *big.Int
}

// EventType satisfies the Event interface.
func (StakeRewardPaid) EventType() string { return TypeStakeRewardPaid }

// Event converts the structured payload into a broadcastable event.
func (e StakeRewardPaid) Event() *types.Event {
	return &types.Event{Type: TypeStakeRewardPaid, Attributes: map[string]string{
		"account": formatAddress(e.Account),
		"amount":  formatAmount(e.Amount),
	}}
}

// StakeRewardDistributed records reward entering the pool.
type StakeRewardDistributed struct {
	Distributor    crypto.Address
	Amount         *big.Int
	TotalStaked    *big.Int
	RewardPerToken *big.Int
}

// EventType satisfies the Event interface.
func (StakeRewardDistributed) EventType() string { return TypeStakeRewardDistributed }

// Event converts the structured payload into a broadcastable event.
func (e StakeRewardDistributed) Event() *types.Event {
	return &types.Event{Type: TypeStakeRewardDistributed, Attributes: map[string]string{
		"distributor":    formatAddress(e.Distributor),
		"amount":         formatAmount(e.Amount),
		"totalStaked":    formatAmount(e.TotalStaked),
		"rewardPerToken": formatAmount(e.RewardPerToken),
	}}
}
