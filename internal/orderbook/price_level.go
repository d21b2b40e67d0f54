package orderbook

// PriceLevel holds the resting orders at one exact price in arrival order.
type PriceLevel struct {
	price  float64
	orders []*Order
	volume float64
}

func NewPriceLevel(price float64) *PriceLevel {
	return &PriceLevel{price: price}
}

func (pl *PriceLevel) Price() float64 { return pl.price }

// Volume is the sum of the remaining volume of every queued order.
func (pl *PriceLevel) Volume() float64 { return pl.volume }

func (pl *PriceLevel) Len() int { return len(pl.orders) }

func (pl *PriceLevel) Empty() bool { return len(pl.orders) == 0 }

// Add appends o to the back of the queue.
func (pl *PriceLevel) Add(o *Order) {
	pl.orders = append(pl.orders, o)
	pl.volume += o.Remaining
}

// Remove takes o out of the queue by identity.
func (pl *PriceLevel) Remove(o *Order) error {
	for i, queued := range pl.orders {
		if queued == o {
			pl.orders = append(pl.orders[:i], pl.orders[i+1:]...)
			pl.volume -= o.Remaining
			pl.settle()
			return nil
		}
	}
	return ErrOrderNotFound
}

// Front returns the oldest resting order.
func (pl *PriceLevel) Front() (*Order, bool) {
	if len(pl.orders) == 0 {
		return nil, false
	}
	return pl.orders[0], true
}

// At returns the i-th order in time priority.
func (pl *PriceLevel) At(i int) *Order {
	return pl.orders[i]
}

func (pl *PriceLevel) find(id string) (*Order, int) {
	for i, o := range pl.orders {
		if o.ID == id {
			return o, i
		}
	}
	return nil, -1
}

// fill reduces the front order by qty and pops it once exhausted.
func (pl *PriceLevel) fill(o *Order, qty float64) {
	o.Remaining -= qty
	pl.volume -= qty
	if o.Remaining <= 0 {
		o.Remaining = 0
		if len(pl.orders) > 0 && pl.orders[0] == o {
			pl.orders[0] = nil
			pl.orders = pl.orders[1:]
		} else {
			_ = pl.Remove(o)
		}
	}
	pl.settle()
}

// resize changes the open volume of a queued order without moving it.
func (pl *PriceLevel) resize(o *Order, remaining float64) {
	pl.volume += remaining - o.Remaining
	o.Remaining = remaining
	pl.settle()
}

// settle drops floating point residue once the queue is empty.
func (pl *PriceLevel) settle() {
	if len(pl.orders) == 0 {
		pl.volume = 0
	}
}

// snapshot copies the level for callers outside the book.
func (pl *PriceLevel) snapshot(side Side) LevelSnapshot {
	orders := make([]Order, len(pl.orders))
	for i, o := range pl.orders {
		orders[i] = *o
	}
	return LevelSnapshot{Side: side, Price: pl.price, Volume: pl.volume, Orders: orders}
}

func (pl *PriceLevel) summary() LevelSummary {
	return LevelSummary{Price: pl.price, Volume: pl.volume, Orders: len(pl.orders)}
}

// LevelSummary is one row of market depth.
type LevelSummary struct {
	Price  float64 `json:"price"`
	Volume float64 `json:"volume"`
	Orders int     `json:"orders"`
}

// LevelSnapshot is a read-only copy of a price level with its queue.
type LevelSnapshot struct {
	Side   Side    `json:"side"`
	Price  float64 `json:"price"`
	Volume float64 `json:"volume"`
	Orders []Order `json:"orders"`
}
