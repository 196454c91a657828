package token

import (
	"math/big"
	"strings"

	"feeshare/crypto"
	nativecommon "feeshare/native/common"
)

// Metadata describes a registered token.
type Metadata struct {
	Address     [20]byte
	Symbol      string
	Decimals    uint8
	TotalSupply *big.Int
	Paused      bool
}

// Clone returns a deep copy.
func (m *Metadata) Clone() *Metadata {
	if m == nil {
		return nil
	}
	clone := *m
	clone.TotalSupply = nativecommon.Copy(m.TotalSupply)
	return &clone
}

// Owner returns the token address.
func (m *Metadata) Owner() crypto.Address {
	return crypto.NewAddress(crypto.FSPrefix, m.Address[:])
}

// AddressForSymbol derives the canonical address for a token symbol.
func AddressForSymbol(symbol string) crypto.Address {
	return crypto.DeriveAddress("token/" + NormalizeSymbol(symbol))
}

// NormalizeSymbol trims and upper-cases a ticker.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Movement describes a completed transfer handed to hooks.
type Movement struct {
	Token  crypto.Address
	From   crypto.Address
	To     crypto.Address
	Amount *big.Int
}

// Hook is invoked synchronously after every successful transfer of the token
// it is registered for, before the transfer call returns. Hooks model tokens
// with recipient callbacks and may call back into other modules.
type Hook func(Movement)

type amountRecord struct {
	Amount *big.Int
}
