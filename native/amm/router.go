package amm

import (
	"fmt"
	"math/big"

	"github.com/jonboulle/clockwork"

	"feeshare/crypto"
	nativecommon "feeshare/native/common"
)

// Router executes single-hop swaps against factory pools. Payers approve the
// router address for the input token.
type Router struct {
	address crypto.Address
	factory *Factory
	clock   clockwork.Clock
}

var _ nativecommon.Router = (*Router)(nil)

// NewRouter constructs a router bound to factory.
func NewRouter(addr crypto.Address, factory *Factory, clock clockwork.Clock) *Router {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Router{address: addr, factory: factory, clock: clock}
}

// Address returns the router address.
func (r *Router) Address() crypto.Address { return r.address }

// ExactInputSingle swaps params.AmountIn of params.TokenIn from payer into
// params.TokenOut delivered to params.Recipient.
func (r *Router) ExactInputSingle(payer crypto.Address, params nativecommon.ExactInputSingleParams) (*big.Int, error) {
	if err := nativecommon.ValidateAmount(params.AmountIn); err != nil {
		return nil, err
	}
	if !params.Deadline.IsZero() && r.clock.Now().After(params.Deadline) {
		return nil, ErrDeadlineExpired
	}
	if params.SqrtPriceLimitX96 != nil && params.SqrtPriceLimitX96.Sign() != 0 {
		return nil, ErrPriceLimitUnsupported
	}
	if params.Recipient.IsZero() {
		return nil, fmt.Errorf("amm: swap recipient required")
	}
	pool, err := r.factory.PoolFor(params.TokenIn, params.TokenOut, params.Fee)
	if err != nil {
		return nil, err
	}

	release, err := r.factory.guard.Enter()
	if err != nil {
		return nil, err
	}
	defer release()

	return pool.swap(r.address, payer, params.Recipient, params.TokenIn, params.AmountIn, params.AmountOutMinimum)
}
