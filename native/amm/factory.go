package amm

import (
	"encoding/hex"
	"fmt"
	"math/big"

	"feeshare/core/events"
	"feeshare/crypto"
	nativecommon "feeshare/native/common"
)

// Storage abstracts the subset of state manager functionality required by the
// exchange.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// Ledger is the multi-asset token surface pools settle against.
type Ledger interface {
	BalanceOf(token, owner crypto.Address) (*big.Int, error)
	Transfer(token, from, to crypto.Address, amount *big.Int) (bool, error)
	TransferFrom(token, spender, from, to crypto.Address, amount *big.Int) (bool, error)
}

var (
	poolKeyPrefix      = []byte("amm/pool/")
	poolIndexKey       = []byte("amm/pools")
	liquidityKeyPrefix = []byte("amm/liquidity/")
)

// Factory deploys constant-product pools and owns their protocol fee
// controls. The owner is the only account allowed to change the protocol fee
// share or collect accrued protocol fees.
type Factory struct {
	address crypto.Address
	owner   crypto.Address
	state   Storage
	ledger  Ledger
	emitter events.Emitter
	guard   nativecommon.ReentrancyGuard
}

// NewFactory constructs a factory at addr with the given owner.
func NewFactory(addr, owner crypto.Address, ledger Ledger) *Factory {
	return &Factory{address: addr, owner: owner, ledger: ledger, emitter: events.NoopEmitter{}}
}

// SetState wires the factory to the external persistence layer.
func (f *Factory) SetState(state Storage) { f.state = state }

// SetEmitter configures the event sink.
func (f *Factory) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	f.emitter = emitter
}

// Address returns the factory address.
func (f *Factory) Address() crypto.Address { return f.address }

// Owner returns the protocol fee controller.
func (f *Factory) Owner() crypto.Address { return f.owner }

func poolStorageKey(id [32]byte) []byte {
	return append(append([]byte(nil), poolKeyPrefix...), id[:]...)
}

func liquidityStorageKey(id [32]byte, provider crypto.Address) []byte {
	key := append(append([]byte(nil), liquidityKeyPrefix...), id[:]...)
	key = append(key, '/')
	return append(key, provider.Bytes()...)
}

// PoolAddress is the custody account holding a pool's reserves and accrued
// protocol fees.
func PoolAddress(id [32]byte) crypto.Address {
	return crypto.DeriveAddress("amm/pool/" + hex.EncodeToString(id[:]))
}

// CreatePool deploys the pool for the pair at fee.
func (f *Factory) CreatePool(tokenA, tokenB crypto.Address, fee uint32) (*Pool, error) {
	if f.state == nil {
		return nil, errNilState
	}
	if tokenA.Equal(tokenB) {
		return nil, ErrIdenticalTokens
	}
	if tokenA.IsZero() || tokenB.IsZero() {
		return nil, fmt.Errorf("amm: create pool: zero token address")
	}
	if !SupportedFee(fee) {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedFee, fee)
	}
	key := NewPoolKey(tokenA, tokenB, fee)
	id := key.ID()
	if _, err := f.record(id); err == nil {
		return nil, fmt.Errorf("%w: %x", ErrPoolExists, id)
	}
	record := &PoolRecord{
		ID:     id,
		Token0: key.Token0.Array(),
		Token1: key.Token1.Array(),
		Fee:    fee,
	}
	record.normalize()
	if err := f.state.KVPut(poolStorageKey(id), record); err != nil {
		return nil, err
	}
	index, err := f.index()
	if err != nil {
		return nil, err
	}
	index.IDs = append(index.IDs, id)
	if err := f.state.KVPut(poolIndexKey, index); err != nil {
		return nil, err
	}
	f.emitter.Emit(events.PoolCreated{Pool: id, Token0: key.Token0, Token1: key.Token1, Fee: fee})
	return &Pool{factory: f, id: id, key: key}, nil
}

// Pool returns the handle for id.
func (f *Factory) Pool(id [32]byte) (*Pool, error) {
	record, err := f.record(id)
	if err != nil {
		return nil, err
	}
	return &Pool{factory: f, id: id, key: record.Key()}, nil
}

// PoolFor looks the pool up by pair and fee tier.
func (f *Factory) PoolFor(tokenA, tokenB crypto.Address, fee uint32) (*Pool, error) {
	return f.Pool(NewPoolKey(tokenA, tokenB, fee).ID())
}

// Pools lists every pool in creation order.
func (f *Factory) Pools() ([]*Pool, error) {
	index, err := f.index()
	if err != nil {
		return nil, err
	}
	pools := make([]*Pool, 0, len(index.IDs))
	for _, id := range index.IDs {
		pool, err := f.Pool(id)
		if err != nil {
			return nil, err
		}
		pools = append(pools, pool)
	}
	return pools, nil
}

func (f *Factory) index() (*poolIndex, error) {
	if f.state == nil {
		return nil, errNilState
	}
	index := new(poolIndex)
	if _, err := f.state.KVGet(poolIndexKey, index); err != nil {
		return nil, err
	}
	return index, nil
}

func (f *Factory) record(id [32]byte) (*PoolRecord, error) {
	if f.state == nil {
		return nil, errNilState
	}
	record := new(PoolRecord)
	ok, err := f.state.KVGet(poolStorageKey(id), record)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %x", ErrPoolNotFound, id)
	}
	record.normalize()
	return record, nil
}

func (f *Factory) putRecord(record *PoolRecord) error {
	return f.state.KVPut(poolStorageKey(record.ID), record)
}

func (f *Factory) transferOut(token, from, to crypto.Address, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	return nativecommon.CheckTransfer(f.ledger.Transfer(token, from, to, amount))
}
