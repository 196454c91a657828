package token

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/holiman/uint256"

	"feeshare/core/events"
	"feeshare/crypto"
	nativecommon "feeshare/native/common"
)

// Storage abstracts the subset of state manager functionality required by the
// token ledger.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

var (
	metadataPrefix  = []byte("token/meta/")
	balancePrefix   = []byte("token/balance/")
	allowancePrefix = []byte("token/allowance/")
)

// Ledger is a multi-asset fungible token ledger. Balances, allowances and
// supply live in the shared state so token movements roll back together with
// the modules that trigger them.
type Ledger struct {
	state   Storage
	emitter events.Emitter

	hookMu sync.RWMutex
	hooks  map[[20]byte]Hook
}

// NewLedger constructs a ledger bound to state.
func NewLedger(state Storage) *Ledger {
	return &Ledger{
		state:   state,
		emitter: events.NoopEmitter{},
		hooks:   make(map[[20]byte]Hook),
	}
}

// SetEmitter configures the event sink.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

// SetHook installs or, with a nil hook, removes the transfer hook for token.
func (l *Ledger) SetHook(token crypto.Address, hook Hook) {
	l.hookMu.Lock()
	defer l.hookMu.Unlock()
	if hook == nil {
		delete(l.hooks, token.Array())
		return
	}
	l.hooks[token.Array()] = hook
}

func (l *Ledger) hook(token crypto.Address) Hook {
	l.hookMu.RLock()
	defer l.hookMu.RUnlock()
	return l.hooks[token.Array()]
}

func metadataKey(token crypto.Address) []byte {
	return append(append([]byte(nil), metadataPrefix...), token.Bytes()...)
}

func balanceKey(token, owner crypto.Address) []byte {
	key := append([]byte(nil), balancePrefix...)
	key = append(key, token.Bytes()...)
	key = append(key, '/')
	return append(key, owner.Bytes()...)
}

func allowanceKey(token, owner, spender crypto.Address) []byte {
	key := append([]byte(nil), allowancePrefix...)
	key = append(key, token.Bytes()...)
	key = append(key, '/')
	key = append(key, owner.Bytes()...)
	key = append(key, '/')
	return append(key, spender.Bytes()...)
}

// Register creates a token with zero supply.
func (l *Ledger) Register(addr crypto.Address, symbol string, decimals uint8) (*Metadata, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	symbol = NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, ErrInvalidSymbol
	}
	if addr.IsZero() {
		return nil, fmt.Errorf("token: register %s: zero address", symbol)
	}
	if _, err := l.Metadata(addr); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrTokenExists, symbol)
	}
	meta := &Metadata{Address: addr.Array(), Symbol: symbol, Decimals: decimals, TotalSupply: big.NewInt(0)}
	if err := l.state.KVPut(metadataKey(addr), meta); err != nil {
		return nil, err
	}
	return meta.Clone(), nil
}

// Metadata returns the registration record for token.
func (l *Ledger) Metadata(token crypto.Address) (*Metadata, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	meta := new(Metadata)
	ok, err := l.state.KVGet(metadataKey(token), meta)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToken, token)
	}
	meta.TotalSupply = nativecommon.Copy(meta.TotalSupply)
	return meta, nil
}

// SetPaused freezes or unfreezes transfers of token. A paused token reports
// failure on every movement without raising an error.
func (l *Ledger) SetPaused(token crypto.Address, paused bool) error {
	meta, err := l.Metadata(token)
	if err != nil {
		return err
	}
	meta.Paused = paused
	return l.state.KVPut(metadataKey(token), meta)
}

// TotalSupply returns the circulating supply of token.
func (l *Ledger) TotalSupply(token crypto.Address) (*big.Int, error) {
	meta, err := l.Metadata(token)
	if err != nil {
		return nil, err
	}
	return meta.TotalSupply, nil
}

// Mint credits amount of token to to and grows the supply.
func (l *Ledger) Mint(token, to crypto.Address, amount *big.Int) error {
	if err := nativecommon.ValidateAmount(amount); err != nil {
		return err
	}
	meta, err := l.Metadata(token)
	if err != nil {
		return err
	}
	supply, err := addChecked(meta.TotalSupply, amount)
	if err != nil {
		return err
	}
	balance, err := l.BalanceOf(token, to)
	if err != nil {
		return err
	}
	credited, err := addChecked(balance, amount)
	if err != nil {
		return err
	}
	meta.TotalSupply = supply
	if err := l.state.KVPut(metadataKey(token), meta); err != nil {
		return err
	}
	if err := l.putAmount(balanceKey(token, to), credited); err != nil {
		return err
	}
	l.emitter.Emit(events.TokenTransfer{Token: token, To: to, Amount: new(big.Int).Set(amount)})
	return nil
}

// BalanceOf returns the balance of owner in token.
func (l *Ledger) BalanceOf(token, owner crypto.Address) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	return l.amount(balanceKey(token, owner))
}

// Allowance returns how much spender may move from owner's token balance.
func (l *Ledger) Allowance(token, owner, spender crypto.Address) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	return l.amount(allowanceKey(token, owner, spender))
}

// Approve sets spender's allowance over owner's balance. A zero amount revokes
// the allowance; the maximum 256-bit value is treated as unlimited.
func (l *Ledger) Approve(token, owner, spender crypto.Address, amount *big.Int) (bool, error) {
	if amount == nil || amount.Sign() < 0 {
		return false, ErrInvalidAmount
	}
	if _, overflow := uint256.FromBig(amount); overflow {
		return false, ErrInvalidAmount
	}
	if _, err := l.Metadata(token); err != nil {
		return false, err
	}
	if err := l.putAmount(allowanceKey(token, owner, spender), amount); err != nil {
		return false, err
	}
	l.emitter.Emit(events.TokenApproval{Token: token, Owner: owner, Spender: spender, Amount: new(big.Int).Set(amount)})
	return true, nil
}

// Transfer moves amount of token from from to to.
func (l *Ledger) Transfer(token, from, to crypto.Address, amount *big.Int) (bool, error) {
	return l.move(token, from, to, amount, nil)
}

// TransferFrom moves amount of token from from to to on behalf of spender,
// consuming allowance. Spending one's own balance needs no allowance.
func (l *Ledger) TransferFrom(token, spender, from, to crypto.Address, amount *big.Int) (bool, error) {
	return l.move(token, from, to, amount, &spender)
}

func (l *Ledger) move(token, from, to crypto.Address, amount *big.Int, spender *crypto.Address) (bool, error) {
	if err := nativecommon.ValidateAmount(amount); err != nil {
		return false, err
	}
	meta, err := l.Metadata(token)
	if err != nil {
		return false, err
	}
	if meta.Paused {
		return false, nil
	}
	if to.IsZero() {
		return false, fmt.Errorf("token: transfer %s to zero address", meta.Symbol)
	}

	var (
		allowanceRemaining *big.Int
		spendAllowance     bool
	)
	if spender != nil && !spender.Equal(from) {
		allowance, err := l.Allowance(token, from, *spender)
		if err != nil {
			return false, err
		}
		if allowance.Cmp(amount) < 0 {
			return false, fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientAllowance, meta.Symbol, allowance, amount)
		}
		if allowance.Cmp(nativecommon.MaxUint256()) != 0 {
			allowanceRemaining = new(big.Int).Sub(allowance, amount)
			spendAllowance = true
		}
	}

	fromBalance, err := l.BalanceOf(token, from)
	if err != nil {
		return false, err
	}
	if fromBalance.Cmp(amount) < 0 {
		return false, fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientBalance, meta.Symbol, fromBalance, amount)
	}
	if !from.Equal(to) {
		toBalance, err := l.BalanceOf(token, to)
		if err != nil {
			return false, err
		}
		credited, err := addChecked(toBalance, amount)
		if err != nil {
			return false, err
		}
		if err := l.putAmount(balanceKey(token, from), new(big.Int).Sub(fromBalance, amount)); err != nil {
			return false, err
		}
		if err := l.putAmount(balanceKey(token, to), credited); err != nil {
			return false, err
		}
	}
	if spendAllowance {
		if err := l.putAmount(allowanceKey(token, from, *spender), allowanceRemaining); err != nil {
			return false, err
		}
	}

	l.emitter.Emit(events.TokenTransfer{Token: token, From: from, To: to, Amount: new(big.Int).Set(amount)})
	if hook := l.hook(token); hook != nil {
		hook(Movement{Token: token, From: from, To: to, Amount: new(big.Int).Set(amount)})
	}
	return true, nil
}

func (l *Ledger) amount(key []byte) (*big.Int, error) {
	var record amountRecord
	ok, err := l.state.KVGet(key, &record)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return nativecommon.Copy(record.Amount), nil
}

func (l *Ledger) putAmount(key []byte, value *big.Int) error {
	return l.state.KVPut(key, &amountRecord{Amount: nativecommon.Copy(value)})
}

func addChecked(a, b *big.Int) (*big.Int, error) {
	x, overflowA := uint256.FromBig(a)
	y, overflowB := uint256.FromBig(b)
	if overflowA || overflowB {
		return nil, ErrSupplyOverflow
	}
	sum, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow {
		return nil, ErrSupplyOverflow
	}
	return sum.ToBig(), nil
}

// Token returns a handle bound to a single asset that satisfies the token
// surface consumed by the staking and harvest modules.
func (l *Ledger) Token(addr crypto.Address) *Handle {
	return &Handle{ledger: l, address: addr}
}

// Handle scopes ledger calls to one token.
type Handle struct {
	ledger  *Ledger
	address crypto.Address
}

var _ nativecommon.Token = (*Handle)(nil)

// Address returns the token address.
func (h *Handle) Address() crypto.Address { return h.address }

// BalanceOf returns account's balance.
func (h *Handle) BalanceOf(account crypto.Address) (*big.Int, error) {
	return h.ledger.BalanceOf(h.address, account)
}

// Transfer moves amount from from to to.
func (h *Handle) Transfer(from, to crypto.Address, amount *big.Int) (bool, error) {
	return h.ledger.Transfer(h.address, from, to, amount)
}

// TransferFrom moves amount from from to to using spender's allowance.
func (h *Handle) TransferFrom(spender, from, to crypto.Address, amount *big.Int) (bool, error) {
	return h.ledger.TransferFrom(h.address, spender, from, to, amount)
}

// Approve sets spender's allowance over owner's balance.
func (h *Handle) Approve(owner, spender crypto.Address, amount *big.Int) (bool, error) {
	return h.ledger.Approve(h.address, owner, spender, amount)
}

// Allowance returns spender's remaining allowance over owner's balance.
func (h *Handle) Allowance(owner, spender crypto.Address) (*big.Int, error) {
	return h.ledger.Allowance(h.address, owner, spender)
}
