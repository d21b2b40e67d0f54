package orderbook

// Quote pairs one bid level with one ask level. A nil side has no level.
type Quote struct {
	Bid *LevelSummary `json:"bid"`
	Ask *LevelSummary `json:"ask"`
}

// Depth is an aggregated view of both sides, best price first.
type Depth struct {
	Bids []LevelSummary `json:"bids"`
	Asks []LevelSummary `json:"asks"`
}

// TopOfBook returns the best bid and ask levels.
func (b *OrderBook) TopOfBook() Quote {
	return b.LevelByRank(1)
}

// LevelByRank returns the rank-th best level on each side, where rank 1 is
// the top of book. Ranks past the depth of a side leave that side nil.
func (b *OrderBook) LevelByRank(rank int) Quote {
	var q Quote
	if rank < 1 {
		return q
	}
	if lvl, ok := b.bids.at(rank - 1); ok {
		s := lvl.summary()
		q.Bid = &s
	}
	if lvl, ok := b.asks.at(rank - 1); ok {
		s := lvl.summary()
		q.Ask = &s
	}
	return q
}

func (b *OrderBook) BestBid() (float64, bool) {
	lvl, ok := b.bids.best()
	if !ok {
		return 0, false
	}
	return lvl.price, true
}

func (b *OrderBook) BestAsk() (float64, bool) {
	lvl, ok := b.asks.best()
	if !ok {
		return 0, false
	}
	return lvl.price, true
}

// Spread is best ask minus best bid. It fails with ErrNoLiquidity when either
// side is empty.
func (b *OrderBook) Spread() (float64, error) {
	bid, ok := b.BestBid()
	if !ok {
		return 0, ErrNoLiquidity
	}
	ask, ok := b.BestAsk()
	if !ok {
		return 0, ErrNoLiquidity
	}
	return ask - bid, nil
}

// LevelsAtPrice returns the level resting at exactly price on each side that
// has one, bids first.
func (b *OrderBook) LevelsAtPrice(price float64) []LevelSnapshot {
	var out []LevelSnapshot
	if lvl, ok := b.bids.get(price); ok {
		out = append(out, lvl.snapshot(Buy))
	}
	if lvl, ok := b.asks.get(price); ok {
		out = append(out, lvl.snapshot(Sell))
	}
	return out
}

// Levels returns up to n levels per side. n <= 0 returns every level.
func (b *OrderBook) Levels(n int) Depth {
	return Depth{Bids: summarize(b.bids, n), Asks: summarize(b.asks, n)}
}

func summarize(l *ladder, n int) []LevelSummary {
	size := l.len()
	if n > 0 && n < size {
		size = n
	}
	out := make([]LevelSummary, 0, size)
	l.each(func(lvl *PriceLevel) bool {
		if len(out) == size {
			return false
		}
		out = append(out, lvl.summary())
		return true
	})
	return out
}
