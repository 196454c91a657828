package events

import (
	"fmt"
	"math/big"
	"strings"

	"feeshare/crypto"
)

func formatAmount(amount *big.Int) string {
	if amount == nil {
		return "0"
	}
	return amount.String()
}

func formatAddress(addr crypto.Address) string {
	if addr.IsZero() {
		return ""
	}
	return addr.String()
}

func formatPoolID(id [32]byte) string {
	return "0x" + strings.ToLower(fmt.Sprintf("%x", id[:]))
}

func parseAmount(attrs map[string]string, key string) (*big.Int, error) {
	raw := strings.TrimSpace(attrs[key])
	if raw == "" {
		return big.NewInt(0), nil
	}
	value, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("events: attribute %s is not an integer: %q", key, raw)
	}
	return value, nil
}
