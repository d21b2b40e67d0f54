package orderbook

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidOrder  = errors.New("invalid order")
	ErrOrderNotFound = errors.New("order not found")
	ErrNoLiquidity   = errors.New("no liquidity")
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidOrder, fmt.Sprintf(format, args...))
}

// InvariantError reports internal ladder corruption. It is raised with panic
// and never returned from a normal command.
type InvariantError struct {
	Instrument Instrument
	Detail     string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("orderbook %s: invariant violated: %s", e.Instrument, e.Detail)
}

// violated drops the events of the command in flight so a caller that
// recovers never sees them flushed by the next command.
func (b *OrderBook) violated(format string, args ...any) {
	b.collector.Reset()
	panic(&InvariantError{Instrument: b.instrument, Detail: fmt.Sprintf(format, args...)})
}
