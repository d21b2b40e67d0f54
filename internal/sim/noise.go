package sim

import (
	"context"
	"math/rand/v2"

	"lob/internal/engine"
	"lob/internal/orderbook"

	"github.com/shopspring/decimal"
)

type NoiseConfig struct {
	ID          string
	MinSize     float64
	MaxSize     float64
	Lot         decimal.Decimal // sizes are rounded to this, zero leaves them
	Bias        float64         // -1 always sells, +1 always buys
	Probability float64         // chance of trading on a step
}

// NoiseTrader sends market orders of random side and size.
type NoiseTrader struct {
	inventory
	cfg    NoiseConfig
	market Trader
	rng    *rand.Rand
}

func NewNoiseTrader(m Trader, cfg NoiseConfig, rng *rand.Rand) *NoiseTrader {
	return &NoiseTrader{inventory: inventory{id: cfg.ID}, cfg: cfg, market: m, rng: rng}
}

func (n *NoiseTrader) Step(ctx context.Context, _ float64) ([]engine.Result, error) {
	if n.rng.Float64() >= n.cfg.Probability {
		return nil, nil
	}

	size := roundTo(n.cfg.MinSize+n.rng.Float64()*(n.cfg.MaxSize-n.cfg.MinSize), n.cfg.Lot)
	if size <= 0 {
		return nil, nil
	}
	side := orderbook.Buy
	if n.rng.Float64() > 0.5+n.cfg.Bias/2 {
		side = orderbook.Sell
	}

	res, err := n.market.Submit(ctx, orderbook.Order{
		ID:     n.nextID(),
		Side:   side,
		Type:   orderbook.Market,
		Volume: size,
	})
	if err != nil {
		return nil, err
	}
	return []engine.Result{res}, nil
}
