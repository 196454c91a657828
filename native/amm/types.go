package amm

import (
	"bytes"
	"encoding/binary"
	"math/big"

	"lukechampine.com/blake3"

	"feeshare/crypto"
	nativecommon "feeshare/native/common"
)

// Fee tiers in hundredths of a basis point.
const (
	FeeLow    uint32 = 500
	FeeMedium uint32 = 3_000
	FeeHigh   uint32 = 10_000

	feeDenominator = 1_000_000
)

// FeeTiers lists the tiers pools may be created with.
var FeeTiers = []uint32{FeeLow, FeeMedium, FeeHigh}

// SupportedFee reports whether fee is one of FeeTiers.
func SupportedFee(fee uint32) bool {
	for _, tier := range FeeTiers {
		if tier == fee {
			return true
		}
	}
	return false
}

// PoolKey identifies a pool. Token0 sorts before Token1.
type PoolKey struct {
	Token0 crypto.Address
	Token1 crypto.Address
	Fee    uint32
}

// NewPoolKey orders the pair and returns the key.
func NewPoolKey(tokenA, tokenB crypto.Address, fee uint32) PoolKey {
	if bytes.Compare(tokenA.Bytes(), tokenB.Bytes()) > 0 {
		tokenA, tokenB = tokenB, tokenA
	}
	return PoolKey{Token0: tokenA, Token1: tokenB, Fee: fee}
}

// ID is blake3(token0 || token1 || fee).
func (k PoolKey) ID() [32]byte {
	var buf bytes.Buffer
	buf.Write(k.Token0.Bytes())
	buf.Write(k.Token1.Bytes())
	var fee [4]byte
	binary.BigEndian.PutUint32(fee[:], k.Fee)
	buf.Write(fee[:])
	return blake3.Sum256(buf.Bytes())
}

// PoolRecord is the persisted state of a pool.
type PoolRecord struct {
	ID            [32]byte
	Token0        [20]byte
	Token1        [20]byte
	Fee           uint32
	Reserve0      *big.Int
	Reserve1      *big.Int
	Liquidity     *big.Int
	ProtocolFees0 *big.Int
	ProtocolFees1 *big.Int
	FeeProtocol0  uint8
	FeeProtocol1  uint8
}

// Key returns the pool key.
func (r *PoolRecord) Key() PoolKey {
	return PoolKey{
		Token0: crypto.NewAddress(crypto.FSPrefix, r.Token0[:]),
		Token1: crypto.NewAddress(crypto.FSPrefix, r.Token1[:]),
		Fee:    r.Fee,
	}
}

// Clone returns a deep copy.
func (r *PoolRecord) Clone() *PoolRecord {
	if r == nil {
		return nil
	}
	clone := *r
	clone.normalize()
	return &clone
}

func (r *PoolRecord) normalize() {
	r.Reserve0 = nativecommon.Copy(r.Reserve0)
	r.Reserve1 = nativecommon.Copy(r.Reserve1)
	r.Liquidity = nativecommon.Copy(r.Liquidity)
	r.ProtocolFees0 = nativecommon.Copy(r.ProtocolFees0)
	r.ProtocolFees1 = nativecommon.Copy(r.ProtocolFees1)
}

type poolIndex struct {
	IDs [][32]byte
}

type liquidityRecord struct {
	Amount *big.Int
}
