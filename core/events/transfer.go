package events

import (
	"math/big"

	"feeshare/core/types"
	"feeshare/crypto"
)

const (
	// TypeTokenTransfer is emitted for every fungible balance movement.
	TypeTokenTransfer = "token.transfer"
	// TypeTokenApproval is emitted when an allowance is set.
	TypeTokenApproval = "token.approval"
)

// TokenTransfer captures a balance movement on the reference ledger. A zero
// From marks a mint.
type TokenTransfer struct {
	Token  crypto.Address
	From   crypto.Address
	To     crypto.Address
	Amount *big.Int
}

func (TokenTransfer) EventType() string { return TypeTokenTransfer }

func (e TokenTransfer) Event() *types.Event {
	return &types.Event{Type: TypeTokenTransfer, Attributes: map[string]string{
		"token":  formatAddress(e.Token),
		"from":   formatAddress(e.From),
		"to":     formatAddress(e.To),
		"amount": formatAmount(e.Amount),
	}}
}

// TokenApproval captures an allowance update.
type TokenApproval struct {
	Token   crypto.Address
	Owner   crypto.Address
	Spender crypto.Address
	Amount  *big.Int
}

func (TokenApproval) EventType() string { return TypeTokenApproval }

func (e TokenApproval) Event() *types.Event {
	return &types.Event{Type: TypeTokenApproval, Attributes: map[string]string{
		"token":   formatAddress(e.Token),
		"owner":   formatAddress(e.Owner),
		"spender": formatAddress(e.Spender),
		"amount":  formatAmount(e.Amount),
	}}
}
