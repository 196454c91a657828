package core

import (
	"math/big"

	"feeshare/crypto"
	"feeshare/native/amm"
	"feeshare/native/staking"
)

// StakerView is the read model of a single staking account.
type StakerView struct {
	Address    crypto.Address
	Staked     *big.Int
	Earned     *big.Int
	RewardDebt *big.Int
	Unclaimed  *big.Int
}

// PoolView is the read model of an exchange pool.
type PoolView struct {
	ID                 [32]byte
	Address            crypto.Address
	Token0             crypto.Address
	Token1             crypto.Address
	Fee                uint32
	Reserve0           *big.Int
	Reserve1           *big.Int
	Liquidity          *big.Int
	ProtocolFees0      *big.Int
	ProtocolFees1      *big.Int
	FeeProtocol0       uint8
	FeeProtocol1       uint8
	FeeShareConfigured bool
}

// Balance is a token amount held by an account.
type Balance struct {
	Token  crypto.Address
	Symbol string
	Amount *big.Int
}

// Staker returns the staking account of addr with its pending reward.
func (n *Node) Staker(addr crypto.Address) (*StakerView, error) {
	var out *StakerView
	err := n.view(func() error {
		acct, err := n.staking.Account(addr)
		if err != nil {
			return err
		}
		earned, err := n.staking.Earned(addr)
		if err != nil {
			return err
		}
		out = &StakerView{
			Address:    addr,
			Staked:     acct.Staked,
			Earned:     earned,
			RewardDebt: acct.RewardDebt,
			Unclaimed:  acct.Unclaimed,
		}
		return nil
	})
	return out, err
}

// StakingPool returns the global staking accumulator state.
func (n *Node) StakingPool() (*staking.Pool, error) {
	var out *staking.Pool
	err := n.view(func() error {
		var err error
		out, err = n.staking.Pool()
		return err
	})
	return out, err
}

// BalanceOf returns owner's balance of tok.
func (n *Node) BalanceOf(tok, owner crypto.Address) (*big.Int, error) {
	var out *big.Int
	err := n.view(func() error {
		var err error
		out, err = n.ledger.BalanceOf(tok, owner)
		return err
	})
	return out, err
}

// Allowance returns the amount spender may move on behalf of owner.
func (n *Node) Allowance(tok, owner, spender crypto.Address) (*big.Int, error) {
	var out *big.Int
	err := n.view(func() error {
		var err error
		out, err = n.ledger.Allowance(tok, owner, spender)
		return err
	})
	return out, err
}

// Pools lists every pool in creation order.
func (n *Node) Pools() ([]PoolView, error) {
	var out []PoolView
	err := n.view(func() error {
		pools, err := n.factory.Pools()
		if err != nil {
			return err
		}
		out = make([]PoolView, 0, len(pools))
		for _, pool := range pools {
			view, err := n.poolView(pool)
			if err != nil {
				return err
			}
			out = append(out, *view)
		}
		return nil
	})
	return out, err
}

// Pool returns a single pool.
func (n *Node) Pool(id [32]byte) (*PoolView, error) {
	var out *PoolView
	err := n.view(func() error {
		pool, err := n.factory.Pool(id)
		if err != nil {
			return err
		}
		out, err = n.poolView(pool)
		return err
	})
	return out, err
}

func (n *Node) poolView(pool *amm.Pool) (*PoolView, error) {
	record, err := pool.State()
	if err != nil {
		return nil, err
	}
	configured, err := n.harvest.IsConfigured(pool.ID())
	if err != nil {
		return nil, err
	}
	return &PoolView{
		ID:                 pool.ID(),
		Address:            pool.Address(),
		Token0:             pool.Token0(),
		Token1:             pool.Token1(),
		Fee:                pool.Fee(),
		Reserve0:           record.Reserve0,
		Reserve1:           record.Reserve1,
		Liquidity:          record.Liquidity,
		ProtocolFees0:      record.ProtocolFees0,
		ProtocolFees1:      record.ProtocolFees1,
		FeeProtocol0:       record.FeeProtocol0,
		FeeProtocol1:       record.FeeProtocol1,
		FeeShareConfigured: configured,
	}, nil
}

// Quote prices an exact-input swap against a pool without executing it.
func (n *Node) Quote(id [32]byte, tokenIn crypto.Address, amountIn *big.Int) (*big.Int, error) {
	var out *big.Int
	err := n.view(func() error {
		pool, err := n.factory.Pool(id)
		if err != nil {
			return err
		}
		out, err = pool.Quote(tokenIn, amountIn)
		return err
	})
	return out, err
}

// CustodyBalances returns the non-zero balances held by the harvest custody
// account, in genesis token order.
func (n *Node) CustodyBalances() ([]Balance, error) {
	var out []Balance
	err := n.view(func() error {
		for _, tok := range n.tokens {
			amount, err := n.ledger.BalanceOf(tok, HarvestAddress)
			if err != nil {
				return err
			}
			if amount.Sign() == 0 {
				continue
			}
			meta, err := n.ledger.Metadata(tok)
			if err != nil {
				return err
			}
			out = append(out, Balance{Token: tok, Symbol: meta.Symbol, Amount: amount})
		}
		return nil
	})
	return out, err
}
