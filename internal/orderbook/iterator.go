package orderbook

import (
	"errors"
	"iter"
)

// ErrStaleIterator is the panic value when an iterator is used after the book
// it walks has been modified.
var ErrStaleIterator = errors.New("orderbook: iterator used after book was modified")

// Iterator walks every resting order: asks best to worst, then bids best to
// worst, each level in time priority. It is invalidated by any mutation of
// the book; using it afterwards panics with ErrStaleIterator.
type Iterator struct {
	book *OrderBook

	side       Side
	priceIndex int
	levelIndex int
	secondPass bool

	level   *PriceLevel
	version uint64
}

// Begin returns an iterator at the first resting order, or End when the book
// is empty.
func (b *OrderBook) Begin() Iterator {
	it := Iterator{book: b, side: Sell, version: b.version}
	it.settle()
	return it
}

// End returns the position one past the last bid.
func (b *OrderBook) End() Iterator {
	return Iterator{
		book:       b,
		side:       Buy,
		priceIndex: b.bids.len(),
		secondPass: true,
		version:    b.version,
	}
}

// All yields a copy of every resting order in iterator order.
func (b *OrderBook) All() iter.Seq[Order] {
	return func(yield func(Order) bool) {
		for it := b.Begin(); !it.Done(); it.Next() {
			if !yield(it.Order()) {
				return
			}
		}
	}
}

// Done reports whether the iterator is at End.
func (it *Iterator) Done() bool {
	it.check()
	return it.level == nil
}

// Order returns a copy of the order under the cursor.
func (it *Iterator) Order() Order {
	it.check()
	if it.level == nil {
		panic("orderbook: dereference of end iterator")
	}
	return *it.level.At(it.levelIndex)
}

// Next advances the cursor by one order.
func (it *Iterator) Next() {
	it.check()
	if it.level == nil {
		panic("orderbook: advance past end iterator")
	}
	it.levelIndex++
	it.settle()
}

// Equal reports whether both iterators are at the same position of the same
// book.
func (it *Iterator) Equal(other Iterator) bool {
	return it.book == other.book &&
		it.side == other.side &&
		it.priceIndex == other.priceIndex &&
		it.levelIndex == other.levelIndex &&
		it.secondPass == other.secondPass
}

func (it *Iterator) check() {
	if it.book == nil || it.version != it.book.version {
		panic(ErrStaleIterator)
	}
}

// settle moves the cursor forward until it rests on an order or reaches End.
func (it *Iterator) settle() {
	for {
		l := it.book.side(it.side)
		if it.level == nil {
			it.level, _ = l.at(it.priceIndex)
		}
		if it.level != nil {
			if it.levelIndex < it.level.Len() {
				return
			}
			next, ok := l.after(it.level.price)
			it.priceIndex++
			it.levelIndex = 0
			it.level = next
			if ok {
				continue
			}
		}
		if !it.secondPass {
			it.side = Buy
			it.priceIndex = 0
			it.levelIndex = 0
			it.secondPass = true
			it.level = nil
			continue
		}
		it.priceIndex = it.book.bids.len()
		it.levelIndex = 0
		it.level = nil
		return
	}
}
