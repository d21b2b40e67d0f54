package orderbook

import (
	"fmt"
	"math"
)

const volumeTolerance = 1e-9

// Validate walks the whole book and reports the first structural
// inconsistency found. It is O(orders) and meant for tests and debug mode.
func (b *OrderBook) Validate() error {
	seen := 0
	for _, l := range []*ladder{b.asks, b.bids} {
		n, err := b.validateSide(l)
		if err != nil {
			return err
		}
		seen += n
	}
	if seen != len(b.index) {
		return fmt.Errorf("index holds %d orders but ladders hold %d", len(b.index), seen)
	}
	if bid, ok := b.BestBid(); ok {
		if ask, ok := b.BestAsk(); ok && bid >= ask {
			return fmt.Errorf("crossed book: bid %g >= ask %g", bid, ask)
		}
	}
	return nil
}

func (b *OrderBook) validateSide(l *ladder) (int, error) {
	var (
		err   error
		count int
		prev  *PriceLevel
	)
	l.each(func(lvl *PriceLevel) bool {
		if prev != nil && !better(l.side, prev.price, lvl.price) {
			err = fmt.Errorf("%s level %g out of order after %g", l.side, lvl.price, prev.price)
			return false
		}
		prev = lvl
		if lvl.Empty() {
			err = fmt.Errorf("%s level %g is empty", l.side, lvl.price)
			return false
		}
		var sum float64
		for _, o := range lvl.orders {
			count++
			sum += o.Remaining
			switch {
			case o.Remaining <= 0:
				err = fmt.Errorf("order %s rests with no open volume", o.ID)
			case o.Remaining > o.Volume:
				err = fmt.Errorf("order %s open %g exceeds volume %g", o.ID, o.Remaining, o.Volume)
			case o.Side != l.side:
				err = fmt.Errorf("order %s on %s rests on %s ladder", o.ID, o.Side, l.side)
			case o.Price != lvl.price:
				err = fmt.Errorf("order %s priced %g rests at %g", o.ID, o.Price, lvl.price)
			case b.index[o.ID] != (handle{side: l.side, price: lvl.price}):
				err = fmt.Errorf("order %s index entry is stale", o.ID)
			}
			if err != nil {
				return false
			}
		}
		if math.Abs(sum-lvl.volume) > volumeTolerance {
			err = fmt.Errorf("%s level %g volume %g, orders sum to %g", l.side, lvl.price, lvl.volume, sum)
			return false
		}
		return true
	})
	return count, err
}

// better reports whether price a ranks ahead of b on side.
func better(side Side, a, b float64) bool {
	if side == Buy {
		return a > b
	}
	return a < b
}
