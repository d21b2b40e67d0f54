package orderbook

import (
	"math"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testInstrument = Instrument{Name: "TEST"}

type recorder struct {
	events []Event
}

func (r *recorder) record(e Event) { r.events = append(r.events, e) }

func (r *recorder) kinds() []EventKind {
	out := make([]EventKind, len(r.events))
	for i, e := range r.events {
		out[i] = e.Kind()
	}
	return out
}

func (r *recorder) reset() { r.events = nil }

func newTestBook(t *testing.T, opts ...Option) (*OrderBook, *recorder) {
	t.Helper()
	rec := &recorder{}
	b := New(testInstrument, append([]Option{WithCallback(rec.record)}, opts...)...)
	t.Cleanup(func() {
		assert.NoError(t, b.Validate())
	})
	return b, rec
}

func limit(id string, side Side, price, volume float64) Order {
	return Order{ID: id, Side: side, Price: price, Volume: volume}
}

func mustAdd(t *testing.T, b *OrderBook, o Order) Order {
	t.Helper()
	got, err := b.Add(o)
	require.NoError(t, err)
	return got
}

func TestAddRestsWhenNotCrossing(t *testing.T) {
	b, rec := newTestBook(t)

	got := mustAdd(t, b, limit("b1", Buy, 10, 100))

	top := b.TopOfBook()
	require.NotNil(t, top.Bid)
	assert.Equal(t, 10.0, top.Bid.Price)
	assert.Equal(t, 100.0, top.Bid.Volume)
	assert.Nil(t, top.Ask)

	require.Equal(t, []EventKind{EventOpen}, rec.kinds())
	assert.Equal(t, got, rec.events[0].(OpenEvent).Order)
	assert.Equal(t, 100.0, got.Remaining)
	assert.Equal(t, testInstrument, got.Instrument)
	assert.False(t, got.Timestamp.IsZero())
}

func TestPartialFillOfResting(t *testing.T) {
	b, rec := newTestBook(t)
	mustAdd(t, b, limit("s1", Sell, 10, 50))
	rec.reset()

	got := mustAdd(t, b, limit("b1", Buy, 10, 30))
	assert.True(t, got.IsFilled())

	require.Equal(t, []EventKind{EventTrade, EventFill}, rec.kinds())
	trade := rec.events[0].(TradeEvent)
	assert.Equal(t, 30.0, trade.Volume)
	assert.Equal(t, 10.0, trade.Price)
	assert.Equal(t, "s1", trade.Maker.ID)
	assert.Equal(t, 20.0, trade.Maker.Remaining)
	assert.Equal(t, "b1", trade.Taker.ID)

	s1, err := b.Find(limit("s1", Sell, 10, 0))
	require.NoError(t, err)
	assert.Equal(t, 20.0, s1.Remaining)
	assert.Empty(t, b.Levels(0).Bids)
}

func TestAggressorRestsRemainder(t *testing.T) {
	b, rec := newTestBook(t)
	mustAdd(t, b, limit("s1", Sell, 10, 50))
	rec.reset()

	got := mustAdd(t, b, limit("b1", Buy, 10, 80))
	assert.Equal(t, 30.0, got.Remaining)

	require.Equal(t, []EventKind{EventTrade, EventFill, EventOpen}, rec.kinds())
	assert.Equal(t, 50.0, rec.events[0].(TradeEvent).Volume)

	depth := b.Levels(0)
	assert.Empty(t, depth.Asks)
	assert.Equal(t, []LevelSummary{{Price: 10, Volume: 30, Orders: 1}}, depth.Bids)
}

func TestLevelsSortedBestFirst(t *testing.T) {
	b, _ := newTestBook(t)
	mustAdd(t, b, limit("s1", Sell, 9, 10))
	mustAdd(t, b, limit("s2", Sell, 11, 10))
	mustAdd(t, b, limit("s3", Sell, 10, 10))

	assert.Equal(t, []LevelSummary{
		{Price: 9, Volume: 10, Orders: 1},
		{Price: 10, Volume: 10, Orders: 1},
		{Price: 11, Volume: 10, Orders: 1},
	}, b.Levels(3).Asks)
	assert.Len(t, b.Levels(2).Asks, 2)
}

func TestPriceThenTimePriority(t *testing.T) {
	b, rec := newTestBook(t)
	mustAdd(t, b, limit("s1", Sell, 11, 10))
	mustAdd(t, b, limit("s2", Sell, 10, 10))
	mustAdd(t, b, limit("s3", Sell, 10, 10))
	rec.reset()

	got := mustAdd(t, b, limit("b1", Buy, 11, 25))
	assert.True(t, got.IsFilled())

	require.Equal(t, []EventKind{EventTrade, EventTrade, EventTrade, EventFill}, rec.kinds())
	var makers []string
	var seqs []uint64
	for _, e := range rec.events[:3] {
		tr := e.(TradeEvent)
		makers = append(makers, tr.Maker.ID)
		seqs = append(seqs, tr.Sequence)
	}
	assert.Equal(t, []string{"s2", "s3", "s1"}, makers)
	assert.Equal(t, []uint64{1, 2, 3}, seqs)

	fill := rec.events[3].(FillEvent)
	assert.Equal(t, 25.0, fill.Volume)
	assert.InDelta(t, 10.2, fill.AveragePrice, 1e-9)

	s1, err := b.Lookup("s1")
	require.NoError(t, err)
	assert.Equal(t, 5.0, s1.Remaining)
	assert.Equal(t, 1, b.Len())
}

func TestCallbackSeesAppliedState(t *testing.T) {
	var ask float64
	b := New(testInstrument)
	mustAdd(t, b, limit("s1", Sell, 10, 50))
	b.SetCallback(func(e Event) {
		if e.Kind() == EventTrade {
			ask = b.Levels(0).Asks[0].Volume
		}
	})
	mustAdd(t, b, limit("b1", Buy, 10, 30))
	assert.Equal(t, 20.0, ask)
}

func TestMarketOrder(t *testing.T) {
	b, rec := newTestBook(t)
	mustAdd(t, b, limit("s1", Sell, 10, 5))
	mustAdd(t, b, limit("s2", Sell, 11, 5))
	rec.reset()

	got := mustAdd(t, b, Order{ID: "m1", Side: Buy, Type: Market, Volume: 20})
	assert.Equal(t, 10.0, got.Remaining)
	assert.Equal(t, []EventKind{EventTrade, EventTrade, EventFill, EventCancel}, rec.kinds())
	assert.Zero(t, b.Len())
	assert.Empty(t, b.Levels(0).Asks)
}

func TestMarketOrderEmptyBook(t *testing.T) {
	b, rec := newTestBook(t)
	got := mustAdd(t, b, Order{Side: Sell, Type: Market, Volume: 3})
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, []EventKind{EventCancel}, rec.kinds())
	assert.Zero(t, b.Len())
}

func TestImmediateOrCancel(t *testing.T) {
	b, rec := newTestBook(t)
	mustAdd(t, b, limit("s1", Sell, 10, 5))
	rec.reset()

	o := limit("b1", Buy, 10, 10)
	o.Flag = ImmediateOrCancel
	got := mustAdd(t, b, o)

	assert.Equal(t, 5.0, got.Remaining)
	assert.Equal(t, []EventKind{EventTrade, EventFill, EventCancel}, rec.kinds())
	assert.Zero(t, b.Len())
}

func TestFillOrKill(t *testing.T) {
	b, rec := newTestBook(t)
	mustAdd(t, b, limit("s1", Sell, 10, 5))
	mustAdd(t, b, limit("s2", Sell, 12, 5))
	rec.reset()

	o := limit("b1", Buy, 11, 10)
	o.Flag = FillOrKill
	got := mustAdd(t, b, o)
	assert.Equal(t, 10.0, got.Remaining)
	assert.Equal(t, []EventKind{EventCancel}, rec.kinds())
	s1, err := b.Lookup("s1")
	require.NoError(t, err)
	assert.Equal(t, 5.0, s1.Remaining, "killed order must not trade")

	rec.reset()
	o = limit("b2", Buy, 12, 10)
	o.Flag = FillOrKill
	got = mustAdd(t, b, o)
	assert.True(t, got.IsFilled())
	assert.Equal(t, []EventKind{EventTrade, EventTrade, EventFill}, rec.kinds())
	assert.Zero(t, b.Len())
}

func TestPostOnly(t *testing.T) {
	b, rec := newTestBook(t)
	mustAdd(t, b, limit("s1", Sell, 10, 5))
	rec.reset()

	o := limit("b1", Buy, 10, 5)
	o.Flag = PostOnly
	_, err := b.Add(o)
	assert.ErrorIs(t, err, ErrInvalidOrder)
	assert.Empty(t, rec.events)

	o.Price = 9
	mustAdd(t, b, o)
	assert.Equal(t, []EventKind{EventOpen}, rec.kinds())
}

func TestAddValidation(t *testing.T) {
	b, rec := newTestBook(t, WithVenue(Venue{Name: "X"}))
	mustAdd(t, b, limit("dup", Buy, 5, 1))
	rec.reset()

	cases := map[string]Order{
		"zero volume":      limit("a", Buy, 10, 0),
		"negative price":   limit("a", Buy, -1, 1),
		"zero limit price": limit("a", Sell, 0, 1),
		"bad side":         {ID: "a", Side: Side(7), Price: 1, Volume: 1},
		"bad type":         {ID: "a", Type: OrderType(9), Price: 1, Volume: 1},
		"market post-only": {ID: "a", Type: Market, Flag: PostOnly, Volume: 1},
		"over remaining":   {ID: "a", Price: 1, Volume: 1, Remaining: 2},
		"instrument":       {ID: "a", Price: 1, Volume: 1, Instrument: Instrument{Name: "OTHER"}},
		"venue":            {ID: "a", Price: 1, Volume: 1, Venue: Venue{Name: "Y"}},
		"duplicate id":     limit("dup", Buy, 6, 1),
		"nan price":        limit("a", Sell, math.NaN(), 5),
		"inf price":        limit("a", Buy, math.Inf(1), 5),
		"market inf price": {ID: "a", Type: Market, Price: math.Inf(-1), Volume: 1},
		"nan volume":       limit("a", Buy, 5, math.NaN()),
		"inf volume":       limit("a", Sell, 5, math.Inf(1)),
		"nan remaining":    {ID: "a", Price: 1, Volume: 1, Remaining: math.NaN()},
	}
	for name, o := range cases {
		t.Run(name, func(t *testing.T) {
			before := b.Levels(0)
			_, err := b.Add(o)
			assert.ErrorIs(t, err, ErrInvalidOrder)
			assert.Equal(t, before, b.Levels(0))
			assert.Empty(t, rec.events)
		})
	}
}

func TestVenueOptional(t *testing.T) {
	b, _ := newTestBook(t)
	got := mustAdd(t, b, Order{ID: "a", Side: Buy, Price: 1, Volume: 1, Venue: Venue{Name: "ANY"}})
	assert.Equal(t, "ANY", got.Venue.Name)

	vb, _ := newTestBook(t, WithVenue(Venue{Name: "X"}))
	got = mustAdd(t, vb, limit("b", Buy, 1, 1))
	assert.Equal(t, Venue{Name: "X"}, got.Venue)
	assert.Equal(t, Venue{Name: "X"}, vb.Venue())
}

func TestCancel(t *testing.T) {
	b, rec := newTestBook(t)
	mustAdd(t, b, limit("b1", Buy, 10, 5))
	mustAdd(t, b, limit("b2", Buy, 9, 5))
	rec.reset()

	require.NoError(t, b.Cancel(limit("b1", Buy, 10, 0)))
	require.Equal(t, []EventKind{EventCancel}, rec.kinds())
	assert.Equal(t, "b1", rec.events[0].(CancelEvent).Order.ID)
	assert.Equal(t, []LevelSummary{{Price: 9, Volume: 5, Orders: 1}}, b.Levels(0).Bids)
}

func TestCancelMissingLeavesBookUntouched(t *testing.T) {
	b, rec := newTestBook(t)
	mustAdd(t, b, limit("b1", Buy, 10, 5))
	mustAdd(t, b, limit("s1", Sell, 11, 5))
	require.NoError(t, b.Cancel(limit("b1", Buy, 10, 0)))
	rec.reset()

	depth := b.Levels(0)
	orders := slices.Collect(b.All())

	for _, o := range []Order{
		limit("b1", Buy, 10, 0),  // already canceled
		limit("s1", Sell, 12, 0), // wrong price
		limit("s1", Buy, 11, 0),  // wrong side
		limit("zz", Sell, 11, 0), // unknown id
	} {
		assert.ErrorIs(t, b.Cancel(o), ErrOrderNotFound)
	}
	assert.Equal(t, depth, b.Levels(0))
	assert.Equal(t, orders, slices.Collect(b.All()))
	assert.Empty(t, rec.events)
}

func TestFindRoundTrip(t *testing.T) {
	b, _ := newTestBook(t)
	mustAdd(t, b, limit("s1", Sell, 10, 4))
	added := mustAdd(t, b, Order{Side: Buy, Price: 10, Volume: 10})

	got, err := b.Find(added)
	require.NoError(t, err)
	assert.Equal(t, added, got)
	assert.Equal(t, 6.0, got.Remaining)

	_, err = b.Find(Order{ID: added.ID, Side: Buy, Price: 11})
	assert.ErrorIs(t, err, ErrOrderNotFound)
	_, err = b.Lookup("missing")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestFindReturnsCopy(t *testing.T) {
	b, _ := newTestBook(t)
	mustAdd(t, b, limit("b1", Buy, 10, 5))

	got, err := b.Lookup("b1")
	require.NoError(t, err)
	got.Remaining = 1

	again, _ := b.Lookup("b1")
	assert.Equal(t, 5.0, again.Remaining)
}

func TestChangeSamePriceKeepsPriority(t *testing.T) {
	b, rec := newTestBook(t)
	mustAdd(t, b, limit("b1", Buy, 10, 10))
	mustAdd(t, b, limit("b2", Buy, 10, 10))
	rec.reset()

	got, err := b.Change(limit("b1", Buy, 10, 15))
	require.NoError(t, err)
	assert.Equal(t, 15.0, got.Remaining)

	require.Equal(t, []EventKind{EventChange}, rec.kinds())
	ch := rec.events[0].(ChangeEvent)
	assert.Equal(t, 10.0, ch.PreviousOpen)
	assert.Equal(t, 10.0, ch.PreviousPrice)
	assert.Equal(t, 15.0, ch.Order.Remaining)

	assert.Equal(t, []LevelSummary{{Price: 10, Volume: 25, Orders: 2}}, b.Levels(0).Bids)
	first := slices.Collect(b.All())[0]
	assert.Equal(t, "b1", first.ID)
}

func TestChangePriceLosesPriority(t *testing.T) {
	b, _ := newTestBook(t)
	mustAdd(t, b, limit("b3", Buy, 9, 10))
	mustAdd(t, b, limit("b1", Buy, 10, 10))
	mustAdd(t, b, limit("b2", Buy, 10, 10))

	_, err := b.Change(limit("b1", Buy, 9, 10))
	require.NoError(t, err)

	var ids []string
	for o := range b.All() {
		ids = append(ids, o.ID)
	}
	assert.Equal(t, []string{"b2", "b3", "b1"}, ids)
	assert.Equal(t, []LevelSummary{
		{Price: 10, Volume: 10, Orders: 1},
		{Price: 9, Volume: 20, Orders: 2},
	}, b.Levels(0).Bids)
}

func TestChangePriceCanTrade(t *testing.T) {
	b, rec := newTestBook(t)
	mustAdd(t, b, limit("s1", Sell, 11, 5))
	mustAdd(t, b, limit("b1", Buy, 10, 10))
	rec.reset()

	got, err := b.Change(limit("b1", Buy, 11, 10))
	require.NoError(t, err)
	assert.Equal(t, 5.0, got.Remaining)
	assert.Equal(t, 11.0, got.Price)

	require.Equal(t, []EventKind{EventTrade, EventFill, EventChange}, rec.kinds())
	ch := rec.events[2].(ChangeEvent)
	assert.Equal(t, 10.0, ch.PreviousPrice)
	assert.Equal(t, 11.0, ch.Order.Price)

	depth := b.Levels(0)
	assert.Empty(t, depth.Asks)
	assert.Equal(t, []LevelSummary{{Price: 11, Volume: 5, Orders: 1}}, depth.Bids)
}

func TestChangeBelowFilledRemoves(t *testing.T) {
	b, rec := newTestBook(t)
	mustAdd(t, b, limit("s1", Sell, 10, 10))
	mustAdd(t, b, limit("b1", Buy, 10, 4))

	got, err := b.Change(limit("s1", Sell, 10, 6))
	require.NoError(t, err)
	assert.Equal(t, 2.0, got.Remaining)

	rec.reset()
	got, err = b.Change(limit("s1", Sell, 10, 4))
	require.NoError(t, err)
	assert.Zero(t, got.Remaining)
	require.Equal(t, []EventKind{EventChange}, rec.kinds())
	assert.Zero(t, rec.events[0].(ChangeEvent).Order.Remaining)
	assert.Zero(t, b.Len())
	assert.Empty(t, b.Levels(0).Asks)
}

func TestChangeErrors(t *testing.T) {
	b, rec := newTestBook(t)
	mustAdd(t, b, limit("b1", Buy, 10, 10))
	mustAdd(t, b, limit("s1", Sell, 12, 10))
	p := limit("p1", Buy, 9, 1)
	p.Flag = PostOnly
	mustAdd(t, b, p)
	rec.reset()

	_, err := b.Change(limit("zz", Buy, 10, 1))
	assert.ErrorIs(t, err, ErrOrderNotFound)
	_, err = b.Change(limit("", Buy, 10, 1))
	assert.ErrorIs(t, err, ErrInvalidOrder)
	_, err = b.Change(limit("b1", Buy, 0, 1))
	assert.ErrorIs(t, err, ErrInvalidOrder)
	_, err = b.Change(limit("b1", Buy, 10, -1))
	assert.ErrorIs(t, err, ErrInvalidOrder)
	_, err = b.Change(limit("p1", Buy, 12, 1))
	assert.ErrorIs(t, err, ErrInvalidOrder)
	for _, bad := range []Order{
		limit("b1", Buy, math.NaN(), 1),
		limit("b1", Buy, math.Inf(1), 1),
		limit("b1", Buy, 10, math.NaN()),
		limit("b1", Buy, 10, math.Inf(1)),
		{ID: "b1", Price: 10, Volume: 1, Instrument: Instrument{Name: "OTHER"}},
	} {
		_, err = b.Change(bad)
		assert.ErrorIs(t, err, ErrInvalidOrder, "%+v", bad)
	}

	assert.Empty(t, rec.events)
	assert.Equal(t, 3, b.Len())
	assert.Equal(t, []LevelSummary{{Price: 10, Volume: 10, Orders: 1}, {Price: 9, Volume: 1, Orders: 1}}, b.Levels(0).Bids)
}

func TestCommandsRejectOtherInstrumentOrVenue(t *testing.T) {
	b, rec := newTestBook(t, WithVenue(Venue{Name: "X"}))
	mustAdd(t, b, limit("b1", Buy, 10, 5))
	rec.reset()

	other := limit("b1", Buy, 10, 5)
	other.Instrument = Instrument{Name: "OTHER"}
	assert.ErrorIs(t, b.Cancel(other), ErrInvalidOrder)
	_, err := b.Change(other)
	assert.ErrorIs(t, err, ErrInvalidOrder)

	elsewhere := limit("b1", Buy, 10, 5)
	elsewhere.Venue = Venue{Name: "Y"}
	assert.ErrorIs(t, b.Cancel(elsewhere), ErrInvalidOrder)
	_, err = b.Change(elsewhere)
	assert.ErrorIs(t, err, ErrInvalidOrder)

	assert.Empty(t, rec.events)
	assert.Equal(t, 1, b.Len())

	// Tags matching the book are accepted.
	own := limit("b1", Buy, 10, 5)
	own.Instrument, own.Venue = testInstrument, Venue{Name: "X"}
	require.NoError(t, b.Cancel(own))
	assert.Equal(t, 0, b.Len())
}

func TestQueries(t *testing.T) {
	b, _ := newTestBook(t)

	_, err := b.Spread()
	assert.ErrorIs(t, err, ErrNoLiquidity)
	assert.Equal(t, Quote{}, b.TopOfBook())

	mustAdd(t, b, limit("b1", Buy, 9, 1))
	mustAdd(t, b, limit("b2", Buy, 8, 2))
	_, err = b.Spread()
	assert.ErrorIs(t, err, ErrNoLiquidity)

	mustAdd(t, b, limit("s1", Sell, 11, 3))
	mustAdd(t, b, limit("s2", Sell, 11, 4))
	spread, err := b.Spread()
	require.NoError(t, err)
	assert.Equal(t, 2.0, spread)

	second := b.LevelByRank(2)
	require.NotNil(t, second.Bid)
	assert.Equal(t, LevelSummary{Price: 8, Volume: 2, Orders: 1}, *second.Bid)
	assert.Nil(t, second.Ask)
	assert.Equal(t, Quote{}, b.LevelByRank(0))
	assert.Equal(t, Quote{}, b.LevelByRank(5))

	at := b.LevelsAtPrice(11)
	require.Len(t, at, 1)
	assert.Equal(t, Sell, at[0].Side)
	assert.Equal(t, 7.0, at[0].Volume)
	require.Len(t, at[0].Orders, 2)
	assert.Equal(t, "s1", at[0].Orders[0].ID)
	assert.Empty(t, b.LevelsAtPrice(10))

	out := b.String()
	assert.Contains(t, out, "TEST")
}

func TestTopOfBookTracksExtremes(t *testing.T) {
	b, _ := newTestBook(t)
	r := rand.New(rand.NewPCG(7, 11))

	maxBid, minAsk := 0.0, 0.0
	for i := 0; i < 500; i++ {
		if r.IntN(2) == 0 {
			p := float64(1 + r.IntN(50))
			mustAdd(t, b, Order{Side: Buy, Price: p, Volume: float64(1 + r.IntN(9))})
			maxBid = max(maxBid, p)
		} else {
			p := float64(51 + r.IntN(50))
			mustAdd(t, b, Order{Side: Sell, Price: p, Volume: float64(1 + r.IntN(9))})
			if minAsk == 0 || p < minAsk {
				minAsk = p
			}
		}

		top := b.TopOfBook()
		if maxBid > 0 {
			require.NotNil(t, top.Bid)
			require.Equal(t, maxBid, top.Bid.Price)
		}
		if minAsk > 0 {
			require.NotNil(t, top.Ask)
			require.Equal(t, minAsk, top.Ask.Price)
		}
	}
}

func TestRandomCommandsKeepBookConsistent(t *testing.T) {
	b, rec := newTestBook(t)
	r := rand.New(rand.NewPCG(1, 2))
	var ids []string

	for i := 0; i < 2000; i++ {
		switch op := r.IntN(10); {
		case op < 6 || len(ids) == 0:
			o := Order{Side: Side(r.IntN(2)), Price: float64(90 + r.IntN(21)), Volume: float64(1 + r.IntN(10))}
			if r.IntN(8) == 0 {
				o.Type = Market
			}
			got, err := b.Add(o)
			require.NoError(t, err)
			ids = append(ids, got.ID)
		case op < 8:
			id := ids[r.IntN(len(ids))]
			o, err := b.Lookup(id)
			if err != nil {
				require.ErrorIs(t, err, ErrOrderNotFound)
				continue
			}
			require.NoError(t, b.Cancel(o))
		default:
			id := ids[r.IntN(len(ids))]
			o, err := b.Lookup(id)
			if err != nil {
				continue
			}
			o.Price = float64(90 + r.IntN(21))
			o.Volume = float64(1 + r.IntN(12))
			_, err = b.Change(o)
			require.NoError(t, err)
		}
		require.NoError(t, b.Validate(), "after command %d", i)

		depth := b.Levels(0)
		for _, side := range []Side{Buy, Sell} {
			rows := depth.Bids
			if side == Sell {
				rows = depth.Asks
			}
			var want float64
			for o := range b.All() {
				if o.Side == side {
					want += o.Remaining
				}
			}
			var got float64
			for _, row := range rows {
				require.Positive(t, row.Orders)
				got += row.Volume
			}
			require.InDelta(t, want, got, 1e-9)
		}
	}
	assert.NotEmpty(t, rec.events)
}

func TestInvariantViolationPanics(t *testing.T) {
	b := New(testInstrument)
	b.index["ghost"] = handle{side: Buy, price: 10}

	assert.PanicsWithError(t, "orderbook TEST: invariant violated: order ghost indexed at buy 10 but no level exists", func() {
		_, _ = b.Change(limit("ghost", Buy, 10, 1))
	})
}

func TestInvariantViolationDropsPendingEvents(t *testing.T) {
	b, rec := newTestBook(t)
	b.collector.Record(TradeEvent{Sequence: 1, Price: 10, Volume: 1})

	assert.Panics(t, func() { b.violated("level vanished") })
	assert.Equal(t, 0, b.collector.Len())

	mustAdd(t, b, limit("b1", Buy, 10, 1))
	assert.Equal(t, []EventKind{EventOpen}, rec.kinds())
}

func TestValidateDetectsCorruption(t *testing.T) {
	b := New(testInstrument)
	mustAdd(t, b, limit("b1", Buy, 10, 5))
	require.NoError(t, b.Validate())

	lvl, _ := b.bids.get(10)
	lvl.volume = 42
	assert.ErrorContains(t, b.Validate(), "volume")
}
