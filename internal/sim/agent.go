// Package sim drives a market with synthetic order flow: market makers
// quoting around a random-walk reference price and noise traders taking
// their liquidity. Agents are not safe for concurrent use; a Runner owns
// them.
package sim

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"lob/internal/engine"
	"lob/internal/logger"
	"lob/internal/orderbook"
)

// Trader is the part of *engine.Market an agent trades through.
type Trader interface {
	Submit(ctx context.Context, o orderbook.Order) (engine.Result, error)
	CancelID(ctx context.Context, id string) (engine.Result, error)
}

type Agent interface {
	ID() string
	// Step acts once against ref. It returns the results of every command
	// it applied, and an error only when the market can no longer be used.
	Step(ctx context.Context, ref float64) ([]engine.Result, error)
	// Observe is told about every trade in the market.
	Observe(t orderbook.TradeEvent)
}

// inventory tracks an agent's position from the trades its orders were in.
// Order IDs are "<agent>-<n>" so ownership is a prefix check.
type inventory struct {
	id       string
	seq      int
	position float64 // positive is long
	avgPrice float64
	realized float64
}

func (inv *inventory) ID() string { return inv.id }

func (inv *inventory) Position() float64 { return inv.position }

func (inv *inventory) RealizedPnL() float64 { return inv.realized }

func (inv *inventory) nextID() string {
	inv.seq++
	return fmt.Sprintf("%s-%d", inv.id, inv.seq)
}

func (inv *inventory) owns(o orderbook.Order) bool {
	return strings.HasPrefix(o.ID, inv.id+"-")
}

func (inv *inventory) Observe(t orderbook.TradeEvent) {
	maker, taker := inv.owns(t.Maker), inv.owns(t.Taker)
	var side orderbook.Side
	switch {
	case maker && taker:
		return // self trade
	case maker:
		side = t.Maker.Side
	case taker:
		side = t.Taker.Side
	default:
		return
	}
	qty := t.Volume
	if side == orderbook.Sell {
		qty = -qty
	}
	inv.fill(qty, t.Price)
}

// fill applies a signed quantity at price, realizing PnL on the part that
// reduces the position.
func (inv *inventory) fill(qty, price float64) {
	pos := inv.position
	next := pos + qty
	if pos == 0 || (pos > 0) == (qty > 0) {
		inv.avgPrice = (inv.avgPrice*math.Abs(pos) + price*math.Abs(qty)) / math.Abs(next)
		inv.position = next
		return
	}

	closed := math.Min(math.Abs(qty), math.Abs(pos))
	if pos > 0 {
		inv.realized += closed * (price - inv.avgPrice)
	} else {
		inv.realized += closed * (inv.avgPrice - price)
	}
	inv.position = next
	switch {
	case next == 0:
		inv.avgPrice = 0
	case (next > 0) != (pos > 0):
		inv.avgPrice = price
	}
}

type Stats struct {
	Steps    int     `json:"steps"`
	Commands int     `json:"commands"`
	Trades   int     `json:"trades"`
	Volume   float64 `json:"volume"`
}

// Runner steps a reference price and then every agent in turn.
type Runner struct {
	walk   *Walk
	agents []Agent
	log    *logger.Logger
	stats  Stats
}

func NewRunner(walk *Walk, log *logger.Logger, agents ...Agent) *Runner {
	return &Runner{walk: walk, agents: agents, log: log}
}

func (r *Runner) Stats() Stats { return r.stats }

func (r *Runner) Step(ctx context.Context) error {
	ref := r.walk.Step()
	r.stats.Steps++
	for _, a := range r.agents {
		results, err := a.Step(ctx, ref)
		r.record(results)
		if err != nil {
			return fmt.Errorf("agent %s: %w", a.ID(), err)
		}
	}
	return nil
}

func (r *Runner) record(results []engine.Result) {
	for _, res := range results {
		r.stats.Commands++
		for _, ev := range res.Events {
			t, ok := ev.(orderbook.TradeEvent)
			if !ok {
				continue
			}
			r.stats.Trades++
			r.stats.Volume += t.Volume
			for _, a := range r.agents {
				a.Observe(t)
			}
		}
	}
}

// Run steps every interval until ctx is done or a step fails. A canceled
// context is not an error.
func (r *Runner) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("simulation stopped",
				logger.NewField("steps", r.stats.Steps),
				logger.NewField("trades", r.stats.Trades),
				logger.NewField("volume", r.stats.Volume),
			)
			return nil
		case <-ticker.C:
			if err := r.Step(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}
	}
}
