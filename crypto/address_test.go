package crypto

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestAddressBech32RoundTrip(t *testing.T) {
	addr := DeriveAddress("feeshare/staking")
	encoded := addr.String()
	if !strings.HasPrefix(encoded, "fs1") {
		t.Fatalf("expected fs1 prefix, got %s", encoded)
	}
	decoded, err := DecodeAddress(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !decoded.Equal(addr) {
		t.Fatalf("round trip mismatch: %s != %s", decoded, addr)
	}
}

func TestDecodeAddressAcceptsHex(t *testing.T) {
	addr := DeriveAddress("alice")
	decoded, err := DecodeAddress(addr.Hex())
	if err != nil {
		t.Fatalf("decode hex: %v", err)
	}
	if decoded != addr {
		t.Fatalf("hex decode mismatch: %s != %s", decoded.Hex(), addr.Hex())
	}
	if _, err := DecodeAddress("0x1234"); err == nil {
		t.Fatalf("expected short hex to fail")
	}
	if _, err := DecodeAddress(""); err == nil {
		t.Fatalf("expected empty address to fail")
	}
}

func TestAddressZeroAndJSON(t *testing.T) {
	var zero Address
	if !zero.IsZero() {
		t.Fatalf("zero value should be the null address")
	}
	addr := BytesToAddress([]byte{0x01})
	if addr.IsZero() {
		t.Fatalf("non-zero address reported zero")
	}
	payload, err := json.Marshal(map[string]Address{"owner": addr})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out map[string]Address
	if err := json.Unmarshal(payload, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !out["owner"].Equal(addr) {
		t.Fatalf("json round trip mismatch")
	}
}
