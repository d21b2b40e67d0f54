package orderbook

// match trades o against the opposite side while it crosses. Consumed levels
// stay on the ladder until the pass ends and are skipped via the collector's
// cleared count, then are popped together.
func (b *OrderBook) match(o *Order) {
	opp := b.side(o.Side.Opposite())
	for !o.IsFilled() {
		lvl, ok := b.topAfter(opp, b.collector.ClearedLevels())
		if !ok || !o.crosses(lvl.price) {
			break
		}
		for !o.IsFilled() {
			maker, ok := lvl.Front()
			if !ok {
				break
			}
			qty := min(o.Remaining, maker.Remaining)
			o.Remaining -= qty
			if o.Remaining <= 0 {
				o.Remaining = 0
			}
			lvl.fill(maker, qty)
			if maker.IsFilled() {
				delete(b.index, maker.ID)
			}

			b.trades++
			b.collector.AddCleared(qty, lvl.price)
			b.collector.Record(TradeEvent{
				Sequence: b.trades,
				Price:    lvl.price,
				Volume:   qty,
				Maker:    *maker,
				Taker:    *o,
			})
		}
		if lvl.Empty() {
			b.collector.ClearLevel()
		}
	}
	b.clearLevels(opp)

	if vol := b.collector.ClearedVolume(); vol > 0 {
		b.collector.Record(FillEvent{
			Order:        *o,
			Volume:       vol,
			AveragePrice: b.collector.AveragePrice(),
		})
	}
}

// topAfter returns the best level on l once the first n levels are skipped.
func (b *OrderBook) topAfter(l *ladder, n int) (*PriceLevel, bool) {
	if n == 0 {
		return l.best()
	}
	return l.at(n)
}

// clearLevels removes the levels consumed by the last matching pass.
func (b *OrderBook) clearLevels(l *ladder) {
	n := b.collector.ClearedLevels()
	for i := 0; i < n; i++ {
		lvl, ok := l.at(i)
		if !ok || !lvl.Empty() {
			b.violated("cleared %s level %d of %d is missing or not empty", l.side, i, n)
		}
	}
	l.popBest(n)
}

// wouldCross reports whether o would trade on arrival.
func (b *OrderBook) wouldCross(o *Order) bool {
	top, ok := b.side(o.Side.Opposite()).best()
	return ok && o.crosses(top.price)
}

// available sums the opposing volume o could trade against, stopping early
// once o's remaining volume is covered.
func (b *OrderBook) available(o *Order) float64 {
	var total float64
	b.side(o.Side.Opposite()).each(func(lvl *PriceLevel) bool {
		if !o.crosses(lvl.price) {
			return false
		}
		total += lvl.volume
		return total < o.Remaining
	})
	return total
}
