package sim

import (
	"math/rand/v2"

	"github.com/shopspring/decimal"
)

// Walk is a Gaussian random walk used as the reference price.
type Walk struct {
	price      float64
	volatility float64 // standard deviation per step
	drift      float64 // mean change per step
	min, max   float64
	tick       decimal.Decimal
	rng        *rand.Rand
}

// NewWalk starts at start and stays within [start/10, start*10].
func NewWalk(start, volatility float64, tick decimal.Decimal, rng *rand.Rand) *Walk {
	return &Walk{
		price:      start,
		volatility: volatility,
		min:        start / 10,
		max:        start * 10,
		tick:       tick,
		rng:        rng,
	}
}

func (w *Walk) SetDrift(d float64) { w.drift = d }

func (w *Walk) Price() float64 { return w.price }

// Step moves the price once and returns it, rounded to the tick.
func (w *Walk) Step() float64 {
	next := w.price + w.drift + w.volatility*w.rng.NormFloat64()
	next = max(w.min, min(w.max, next))
	w.price = roundTo(next, w.tick)
	return w.price
}

// roundTo snaps v to the nearest multiple of step. A zero step leaves v
// alone.
func roundTo(v float64, step decimal.Decimal) float64 {
	if step.IsZero() {
		return v
	}
	return decimal.NewFromFloat(v).Div(step).Round(0).Mul(step).InexactFloat64()
}
