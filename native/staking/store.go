package staking

import (
	"feeshare/crypto"
)

// Storage abstracts the subset of state manager functionality required by the
// staking engine.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

var (
	poolKeyPrefix    = []byte("staking/pool/")
	accountKeyPrefix = []byte("staking/account/")
)

type store struct {
	kv        Storage
	namespace []byte
}

func newStore(kv Storage, namespace crypto.Address) *store {
	return &store{kv: kv, namespace: namespace.Bytes()}
}

func (s *store) poolKey() []byte {
	key := append([]byte(nil), poolKeyPrefix...)
	return append(key, s.namespace...)
}

func (s *store) accountKey(addr crypto.Address) []byte {
	key := append([]byte(nil), accountKeyPrefix...)
	key = append(key, s.namespace...)
	key = append(key, '/')
	return append(key, addr.Bytes()...)
}

func (s *store) pool() (*Pool, error) {
	pool := new(Pool)
	ok, err := s.kv.KVGet(s.poolKey(), pool)
	if err != nil {
		return nil, err
	}
	if !ok {
		return newPool(), nil
	}
	pool.normalize()
	return pool, nil
}

func (s *store) putPool(pool *Pool) error {
	return s.kv.KVPut(s.poolKey(), pool)
}

func (s *store) account(addr crypto.Address) (*Account, error) {
	acct := new(Account)
	ok, err := s.kv.KVGet(s.accountKey(addr), acct)
	if err != nil {
		return nil, err
	}
	if !ok {
		return newAccount(addr), nil
	}
	acct.normalize()
	return acct, nil
}

func (s *store) putAccount(acct *Account) error {
	return s.kv.KVPut(s.accountKey(acct.Owner()), acct)
}
