package crypto

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// AddressPrefix defines the human-readable part used when rendering addresses.
type AddressPrefix string

const (
	// FSPrefix is the default prefix for participant, module and token addresses.
	FSPrefix AddressPrefix = "fs"

	// AddressLength is the raw byte length of every address.
	AddressLength = 20
)

// Address is a 20-byte identity with a display prefix. The zero value is the
// null address.
type Address struct {
	prefix AddressPrefix
	raw    [AddressLength]byte
}

// NewAddress builds an address from exactly 20 raw bytes.
func NewAddress(prefix AddressPrefix, b []byte) Address {
	if len(b) != AddressLength {
		panic("address must be 20 bytes long")
	}
	var addr Address
	addr.prefix = prefix
	copy(addr.raw[:], b)
	return addr
}

// BytesToAddress converts b into an address, keeping the trailing 20 bytes when
// b is longer and left-padding when it is shorter.
func BytesToAddress(b []byte) Address {
	return FromCommon(common.BytesToAddress(b))
}

// FromCommon wraps an EVM address.
func FromCommon(addr common.Address) Address {
	return NewAddress(FSPrefix, addr.Bytes())
}

// DeriveAddress deterministically derives a module address from a label, e.g.
// "feeshare/staking". The derivation is keccak256(label)[12:].
func DeriveAddress(label string) Address {
	digest := ethcrypto.Keccak256([]byte(strings.TrimSpace(label)))
	return NewAddress(FSPrefix, digest[12:])
}

// String renders the bech32 form of the address.
func (a Address) String() string {
	conv, err := bech32.ConvertBits(a.raw[:], 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(string(a.Prefix()), conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

// Hex renders the checksummed 0x form of the address.
func (a Address) Hex() string {
	return a.Common().Hex()
}

// Common returns the EVM representation of the address.
func (a Address) Common() common.Address {
	return common.Address(a.raw)
}

// Bytes returns a copy of the raw address bytes.
func (a Address) Bytes() []byte {
	return append([]byte(nil), a.raw[:]...)
}

// Array returns the raw address bytes as a fixed array.
func (a Address) Array() [AddressLength]byte {
	return a.raw
}

// Prefix returns the human-readable prefix associated with the address.
func (a Address) Prefix() AddressPrefix {
	if a.prefix == "" {
		return FSPrefix
	}
	return a.prefix
}

// IsZero reports whether the address is the null address.
func (a Address) IsZero() bool {
	return a.raw == [AddressLength]byte{}
}

// Equal compares the raw bytes of two addresses, ignoring the display prefix.
func (a Address) Equal(other Address) bool {
	return bytes.Equal(a.raw[:], other.raw[:])
}

// MarshalText implements encoding.TextMarshaler using the bech32 form.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler accepting bech32 or 0x hex.
func (a *Address) UnmarshalText(text []byte) error {
	decoded, err := DecodeAddress(string(text))
	if err != nil {
		return err
	}
	*a = decoded
	return nil
}

// DecodeAddress parses a bech32 address or a 0x-prefixed hex address.
func DecodeAddress(addrStr string) (Address, error) {
	trimmed := strings.TrimSpace(addrStr)
	if trimmed == "" {
		return Address{}, fmt.Errorf("address must not be empty")
	}
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		if !common.IsHexAddress(trimmed) {
			return Address{}, fmt.Errorf("invalid hex address %q", trimmed)
		}
		return FromCommon(common.HexToAddress(trimmed)), nil
	}
	prefix, decoded, err := bech32.Decode(trimmed)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	if len(conv) != AddressLength {
		return Address{}, fmt.Errorf("address must be %d bytes, got %d", AddressLength, len(conv))
	}
	return NewAddress(AddressPrefix(prefix), conv), nil
}

// MustDecodeAddress is DecodeAddress for constants and tests.
func MustDecodeAddress(addrStr string) Address {
	addr, err := DecodeAddress(addrStr)
	if err != nil {
		panic(err)
	}
	return addr
}
