package orderbook

// Collector buffers the events produced by one command so they can be
// delivered together once the command has fully applied.
type Collector struct {
	events []Event

	// matching pass bookkeeping
	clearedVolume   float64
	clearedNotional float64
	clearedLevels   int
}

func NewCollector() *Collector {
	return &Collector{}
}

// Record appends e to the pending batch.
func (c *Collector) Record(e Event) {
	c.events = append(c.events, e)
}

func (c *Collector) Len() int { return len(c.events) }

// Pending returns the events recorded since the last flush.
func (c *Collector) Pending() []Event {
	return c.events
}

// AddCleared accounts for volume traded at price during the current pass.
func (c *Collector) AddCleared(volume, price float64) {
	c.clearedVolume += volume
	c.clearedNotional += volume * price
}

func (c *Collector) ClearedVolume() float64 { return c.clearedVolume }

// AveragePrice is the volume-weighted price of the current pass.
func (c *Collector) AveragePrice() float64 {
	if c.clearedVolume == 0 {
		return 0
	}
	return c.clearedNotional / c.clearedVolume
}

// ClearLevel marks the current best opposing level as fully consumed.
func (c *Collector) ClearLevel() { c.clearedLevels++ }

// ClearedLevels is the number of opposing levels consumed in this pass and
// still awaiting removal from the ladder.
func (c *Collector) ClearedLevels() int { return c.clearedLevels }

// Flush delivers every pending event to fn in recorded order and resets the
// collector. A nil fn discards the batch.
func (c *Collector) Flush(fn func(Event)) {
	events := c.events
	c.Reset()
	if fn == nil {
		return
	}
	for _, e := range events {
		fn(e)
	}
}

// Reset drops pending events and pass bookkeeping without delivering them.
func (c *Collector) Reset() {
	c.events = nil
	c.clearedVolume = 0
	c.clearedNotional = 0
	c.clearedLevels = 0
}
