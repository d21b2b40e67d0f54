package orderbook

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// OrderBook is the limit order book for one instrument on one venue.
//
// An OrderBook does no locking: callers must serialize every call on a given
// book. Each mutating call either applies completely and then delivers its
// events to the callback, or returns an error leaving the book untouched.
type OrderBook struct {
	instrument Instrument
	venue      Venue
	callback   func(Event)

	collector *Collector
	bids      *ladder
	asks      *ladder
	index     map[string]handle

	trades  uint64
	version uint64
}

// handle locates a resting order without owning it.
type handle struct {
	side  Side
	price float64
}

type Option func(*OrderBook)

func WithVenue(v Venue) Option {
	return func(b *OrderBook) { b.venue = v }
}

func WithCallback(fn func(Event)) Option {
	return func(b *OrderBook) { b.callback = fn }
}

func New(instrument Instrument, opts ...Option) *OrderBook {
	b := &OrderBook{
		instrument: instrument,
		collector:  NewCollector(),
		bids:       newLadder(Buy),
		asks:       newLadder(Sell),
		index:      make(map[string]handle),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *OrderBook) Instrument() Instrument { return b.instrument }

func (b *OrderBook) Venue() Venue { return b.venue }

// SetCallback installs the function that receives every flushed event.
func (b *OrderBook) SetCallback(fn func(Event)) {
	b.callback = fn
}

func (b *OrderBook) side(s Side) *ladder {
	if s == Buy {
		return b.bids
	}
	return b.asks
}

// Len returns the number of resting orders.
func (b *OrderBook) Len() int { return len(b.index) }

// Add submits a new order. A crossing order trades against the opposite side
// first; any limit remainder then rests at its price. The returned order is
// the aggressor's state once the command completed.
func (b *OrderBook) Add(o Order) (Order, error) {
	if err := b.prepare(&o); err != nil {
		return o, err
	}
	if _, exists := b.index[o.ID]; exists {
		return o, invalid("duplicate order id %s", o.ID)
	}

	switch o.Flag {
	case PostOnly:
		if b.wouldCross(&o) {
			return o, invalid("post-only order %s would cross the book", o.ID)
		}
	case FillOrKill:
		if b.available(&o) < o.Remaining {
			b.collector.Record(CancelEvent{Order: o, Reason: "fill or kill not satisfiable"})
			b.commit()
			return o, nil
		}
	}

	resting := &o
	b.match(resting)

	switch {
	case resting.IsFilled():
	case resting.Type == Market:
		b.collector.Record(CancelEvent{Order: *resting, Reason: "market order remainder"})
	case resting.Flag == ImmediateOrCancel || resting.Flag == FillOrKill:
		b.collector.Record(CancelEvent{Order: *resting, Reason: "immediate or cancel remainder"})
	default:
		b.rest(resting)
		b.collector.Record(OpenEvent{Order: *resting})
	}

	b.commit()
	return *resting, nil
}

// Cancel removes a resting order, located by its side and price.
func (b *OrderBook) Cancel(o Order) error {
	if !o.Side.valid() {
		return invalid("unknown side %d", int(o.Side))
	}
	if err := b.owns(o); err != nil {
		return err
	}
	l := b.side(o.Side)
	lvl, ok := l.get(o.Price)
	if !ok {
		return fmt.Errorf("%w: no %s level at %g for %s", ErrOrderNotFound, o.Side, o.Price, o.ID)
	}
	resting, _ := lvl.find(o.ID)
	if resting == nil {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, o.ID)
	}

	b.unlink(l, lvl, resting)
	b.collector.Record(CancelEvent{Order: *resting, Reason: "canceled"})
	b.commit()
	return nil
}

// Change modifies the price and/or requested volume of a resting order
// identified by o.ID. The order's side, type and flag never change.
//
// A new price forfeits time priority and may trade immediately. At the same
// price the order keeps its queue position. If the new volume does not exceed
// what has already filled the order is removed.
func (b *OrderBook) Change(o Order) (Order, error) {
	if o.ID == "" {
		return o, invalid("order id required")
	}
	if !finite(o.Price) || o.Price <= 0 {
		return o, invalid("price must be positive, got %g", o.Price)
	}
	if !finite(o.Volume) || o.Volume < 0 {
		return o, invalid("volume must not be negative, got %g", o.Volume)
	}
	if err := b.owns(o); err != nil {
		return o, err
	}
	h, ok := b.index[o.ID]
	if !ok {
		return o, fmt.Errorf("%w: %s", ErrOrderNotFound, o.ID)
	}
	l := b.side(h.side)
	lvl, ok := l.get(h.price)
	if !ok {
		b.violated("order %s indexed at %s %g but no level exists", o.ID, h.side, h.price)
	}
	resting, _ := lvl.find(o.ID)
	if resting == nil {
		b.violated("order %s indexed at %s %g but missing from level", o.ID, h.side, h.price)
	}

	remaining := o.Volume - resting.Filled()
	repriced := o.Price != resting.Price
	if repriced && remaining > 0 && resting.Flag == PostOnly {
		probe := *resting
		probe.Price = o.Price
		if b.wouldCross(&probe) {
			return o, invalid("post-only order %s would cross the book at %g", o.ID, o.Price)
		}
	}

	prev := ChangeEvent{PreviousPrice: resting.Price, PreviousOpen: resting.Remaining}
	switch {
	case remaining <= 0:
		b.unlink(l, lvl, resting)
		resting.Volume = o.Volume
		resting.Remaining = 0
	case repriced:
		b.unlink(l, lvl, resting)
		resting.Price = o.Price
		resting.Volume = o.Volume
		resting.Remaining = remaining
		b.match(resting)
		if !resting.IsFilled() {
			b.rest(resting)
		}
	default:
		lvl.resize(resting, remaining)
		resting.Volume = o.Volume
	}

	prev.Order = *resting
	b.collector.Record(prev)
	b.commit()
	return *resting, nil
}

// Find returns the resting order matching o's side, price and id.
func (b *OrderBook) Find(o Order) (Order, error) {
	if !o.Side.valid() {
		return Order{}, invalid("unknown side %d", int(o.Side))
	}
	lvl, ok := b.side(o.Side).get(o.Price)
	if !ok {
		return Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, o.ID)
	}
	resting, _ := lvl.find(o.ID)
	if resting == nil {
		return Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, o.ID)
	}
	return *resting, nil
}

// Lookup finds a resting order by id alone.
func (b *OrderBook) Lookup(id string) (Order, error) {
	h, ok := b.index[id]
	if !ok {
		return Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	}
	return b.Find(Order{ID: id, Side: h.side, Price: h.price})
}

// prepare fills defaults and rejects malformed orders.
func (b *OrderBook) prepare(o *Order) error {
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	if o.Timestamp.IsZero() {
		o.Timestamp = time.Now()
	}
	if o.Remaining == 0 {
		o.Remaining = o.Volume
	}
	if o.Venue == (Venue{}) {
		o.Venue = b.venue
	}
	if o.Instrument == (Instrument{}) {
		o.Instrument = b.instrument
	}

	switch {
	case !o.Side.valid():
		return invalid("unknown side %d", int(o.Side))
	case o.Type != Limit && o.Type != Market:
		return invalid("unknown order type %d", int(o.Type))
	case o.Flag < NoFlag || o.Flag > PostOnly:
		return invalid("unknown order flag %d", int(o.Flag))
	case o.Type == Market && o.Flag == PostOnly:
		return invalid("market order cannot be post-only")
	case !finite(o.Price):
		return invalid("price must be finite, got %g", o.Price)
	case !finite(o.Volume) || o.Volume <= 0:
		return invalid("volume must be positive, got %g", o.Volume)
	case !finite(o.Remaining) || o.Remaining < 0 || o.Remaining > o.Volume:
		return invalid("remaining %g outside [0, %g]", o.Remaining, o.Volume)
	case o.Type == Limit && o.Price <= 0:
		return invalid("price must be positive, got %g", o.Price)
	case o.Instrument != b.instrument:
		return invalid("instrument %s does not match book %s", o.Instrument, b.instrument)
	case b.venue != (Venue{}) && o.Venue != b.venue:
		return invalid("venue %s does not match book %s", o.Venue, b.venue)
	}
	return nil
}

func (b *OrderBook) rest(o *Order) {
	b.side(o.Side).upsert(o.Price).Add(o)
	b.index[o.ID] = handle{side: o.Side, price: o.Price}
}

// unlink takes a resting order off the book and drops its level if emptied.
func (b *OrderBook) unlink(l *ladder, lvl *PriceLevel, o *Order) {
	if err := lvl.Remove(o); err != nil {
		b.violated("order %s missing from its level %g", o.ID, lvl.price)
	}
	delete(b.index, o.ID)
	if lvl.Empty() && !l.remove(lvl.price) {
		b.violated("empty level %g was not on the %s ladder", lvl.price, l.side)
	}
}

// commit marks the command applied and delivers its events.
func (b *OrderBook) commit() {
	b.version++
	b.collector.Flush(b.callback)
}

// owns rejects a command tagged for another instrument or venue. Untagged
// commands are accepted.
func (b *OrderBook) owns(o Order) error {
	switch {
	case o.Instrument != (Instrument{}) && o.Instrument != b.instrument:
		return invalid("instrument %s does not match book %s", o.Instrument, b.instrument)
	case o.Venue != (Venue{}) && b.venue != (Venue{}) && o.Venue != b.venue:
		return invalid("venue %s does not match book %s", o.Venue, b.venue)
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
