package events

import (
	"fmt"
	"math/big"

	"feeshare/core/types"
)

// Totals is the accounting history reconstructed from an event log alone.
type Totals struct {
	TotalStaked    *big.Int
	Stakes         map[string]*big.Int
	Distributed    *big.Int
	Claimed        *big.Int
	Paid           map[string]*big.Int
	RewardPerToken *big.Int
	Collected      map[string]*big.Int
}

// Replay folds the staking and harvest events of log into running totals and
// cross-checks every balance the events report against the reconstruction.
// Unknown event types are skipped.
func Replay(log []*types.Event) (*Totals, error) {
	totals := &Totals{
		TotalStaked:    big.NewInt(0),
		Stakes:         make(map[string]*big.Int),
		Distributed:    big.NewInt(0),
		Claimed:        big.NewInt(0),
		Paid:           make(map[string]*big.Int),
		RewardPerToken: big.NewInt(0),
		Collected:      make(map[string]*big.Int),
	}
	for i, evt := range log {
		if evt == nil {
			continue
		}
		if err := totals.apply(evt); err != nil {
			return nil, fmt.Errorf("events: replay entry %d (%s): %w", i, evt.Type, err)
		}
	}
	return totals, nil
}

func (t *Totals) apply(evt *types.Event) error {
	attrs := evt.Attributes
	switch evt.Type {
	case TypeStakeStaked, TypeStakeWithdrawn:
		amount, err := parseAmount(attrs, "amount")
		if err != nil {
			return err
		}
		account := attrs["account"]
		stake := t.Stakes[account]
		if stake == nil {
			stake = big.NewInt(0)
		}
		if evt.Type == TypeStakeStaked {
			stake = new(big.Int).Add(stake, amount)
			t.TotalStaked = new(big.Int).Add(t.TotalStaked, amount)
		} else {
			stake = new(big.Int).Sub(stake, amount)
			t.TotalStaked = new(big.Int).Sub(t.TotalStaked, amount)
		}
		if stake.Sign() < 0 || t.TotalStaked.Sign() < 0 {
			return fmt.Errorf("negative stake for %s", account)
		}
		t.Stakes[account] = stake
		if err := expect(attrs, "newStake", stake); err != nil {
			return err
		}
		return expect(attrs, "totalStaked", t.TotalStaked)
	case TypeStakeRewardPaid:
		amount, err := parseAmount(attrs, "amount")
		if err != nil {
			return err
		}
		account := attrs["account"]
		paid := t.Paid[account]
		if paid == nil {
			paid = big.NewInt(0)
		}
		t.Paid[account] = new(big.Int).Add(paid, amount)
		t.Claimed = new(big.Int).Add(t.Claimed, amount)
	case TypeStakeRewardDistributed:
		amount, err := parseAmount(attrs, "amount")
		if err != nil {
			return err
		}
		rpt, err := parseAmount(attrs, "rewardPerToken")
		if err != nil {
			return err
		}
		if rpt.Cmp(t.RewardPerToken) < 0 {
			return fmt.Errorf("reward per token decreased from %s to %s", t.RewardPerToken, rpt)
		}
		if err := expect(attrs, "totalStaked", t.TotalStaked); err != nil {
			return err
		}
		t.Distributed = new(big.Int).Add(t.Distributed, amount)
		t.RewardPerToken = rpt
	case TypeHarvestFeesCollected:
		for _, side := range [][2]string{{"token0", "amount0"}, {"token1", "amount1"}} {
			amount, err := parseAmount(attrs, side[1])
			if err != nil {
				return err
			}
			token := attrs[side[0]]
			prev := t.Collected[token]
			if prev == nil {
				prev = big.NewInt(0)
			}
			t.Collected[token] = new(big.Int).Add(prev, amount)
		}
	}
	return nil
}

func expect(attrs map[string]string, key string, want *big.Int) error {
	if _, ok := attrs[key]; !ok {
		return nil
	}
	got, err := parseAmount(attrs, key)
	if err != nil {
		return err
	}
	if got.Cmp(want) != 0 {
		return fmt.Errorf("%s reported %s, reconstructed %s", key, got, want)
	}
	return nil
}
