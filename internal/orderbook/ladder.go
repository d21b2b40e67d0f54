package orderbook

import (
	"github.com/google/btree"
)

const ladderDegree = 32

// ladder is one side of the book: price levels ordered best first, so
// ascending prices for asks and descending prices for bids.
type ladder struct {
	side   Side
	levels *btree.BTreeG[*PriceLevel]
}

func newLadder(side Side) *ladder {
	less := func(a, b *PriceLevel) bool { return a.price < b.price }
	if side == Buy {
		less = func(a, b *PriceLevel) bool { return a.price > b.price }
	}
	return &ladder{side: side, levels: btree.NewG(ladderDegree, less)}
}

func (l *ladder) len() int { return l.levels.Len() }

func (l *ladder) get(price float64) (*PriceLevel, bool) {
	return l.levels.Get(&PriceLevel{price: price})
}

// upsert returns the level at price, inserting an empty one in sorted
// position if none exists.
func (l *ladder) upsert(price float64) *PriceLevel {
	if lvl, ok := l.get(price); ok {
		return lvl
	}
	lvl := NewPriceLevel(price)
	l.levels.ReplaceOrInsert(lvl)
	return lvl
}

func (l *ladder) remove(price float64) bool {
	_, ok := l.levels.Delete(&PriceLevel{price: price})
	return ok
}

func (l *ladder) best() (*PriceLevel, bool) {
	return l.levels.Min()
}

// at returns the level at a zero-based rank from the best price.
func (l *ladder) at(rank int) (*PriceLevel, bool) {
	if rank < 0 || rank >= l.levels.Len() {
		return nil, false
	}
	var found *PriceLevel
	i := 0
	l.levels.Ascend(func(lvl *PriceLevel) bool {
		if i == rank {
			found = lvl
			return false
		}
		i++
		return true
	})
	return found, found != nil
}

// after returns the first level worse than price.
func (l *ladder) after(price float64) (*PriceLevel, bool) {
	var found *PriceLevel
	l.levels.AscendGreaterOrEqual(&PriceLevel{price: price}, func(lvl *PriceLevel) bool {
		if lvl.price == price {
			return true
		}
		found = lvl
		return false
	})
	return found, found != nil
}

// each visits levels best to worst until fn returns false.
func (l *ladder) each(fn func(*PriceLevel) bool) {
	l.levels.Ascend(fn)
}

// popBest removes the n best levels.
func (l *ladder) popBest(n int) {
	for ; n > 0; n-- {
		if _, ok := l.levels.DeleteMin(); !ok {
			return
		}
	}
}
