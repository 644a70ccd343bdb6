package engine

import (
	"sync/atomic"

	"github.com/empower1/enclavecore/internal/coreerr"
)

// GasTank meters gas consumption for one Engine's lifetime. Consumption is
// atomic. Only host-function callbacks charge against it; instructions the
// wasm guest executes are not metered.
type GasTank struct {
	limit    uint64
	consumed uint64
}

// NewGasTank creates a gas tank bounded by limit.
func NewGasTank(limit uint64) *GasTank {
	return &GasTank{limit: limit}
}

// Consume charges amount against the tank. If doing so would exceed the
// limit, consumed is clamped to limit and ErrFailedFunctionCall (out-of-gas)
// is returned — spec.md requires used_gas == gas_limit on out-of-gas.
func (gt *GasTank) Consume(amount uint64) error {
	newConsumed := atomic.AddUint64(&gt.consumed, amount)
	if newConsumed > gt.limit {
		atomic.StoreUint64(&gt.consumed, gt.limit)
		return coreerr.Wrap(coreerr.KindFailedFunctionCall, "out of gas")
	}
	return nil
}

// Consumed returns the total gas charged so far, clamped to limit.
func (gt *GasTank) Consumed() uint64 {
	return atomic.LoadUint64(&gt.consumed)
}

// Limit returns the tank's configured gas limit.
func (gt *GasTank) Limit() uint64 {
	return gt.limit
}

// Remaining returns the gas left before the tank is exhausted.
func (gt *GasTank) Remaining() uint64 {
	consumed := atomic.LoadUint64(&gt.consumed)
	if consumed >= gt.limit {
		return 0
	}
	return gt.limit - consumed
}
