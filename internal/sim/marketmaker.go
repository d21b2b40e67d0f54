package sim

import (
	"context"
	"errors"

	"lob/internal/engine"
	"lob/internal/orderbook"

	"github.com/shopspring/decimal"
)

type MarketMakerConfig struct {
	ID            string
	HalfSpread    float64 // distance from ref to the first level, and between levels
	Size          float64 // volume per level
	Levels        int     // levels per side
	Tick          decimal.Decimal
	MaxPosition   float64 // 0 is unlimited
	InventorySkew float64 // price shift per unit of position
}

// MarketMaker replaces its post-only quotes around the reference price on
// every step. Long inventory shifts both sides down, short shifts them up.
type MarketMaker struct {
	inventory
	cfg    MarketMakerConfig
	market Trader
	quotes []string
}

func NewMarketMaker(m Trader, cfg MarketMakerConfig) *MarketMaker {
	return &MarketMaker{inventory: inventory{id: cfg.ID}, cfg: cfg, market: m}
}

// Quotes returns the IDs of the orders placed on the last step.
func (mm *MarketMaker) Quotes() []string { return mm.quotes }

func (mm *MarketMaker) Step(ctx context.Context, ref float64) ([]engine.Result, error) {
	var results []engine.Result
	for _, id := range mm.quotes {
		res, err := mm.market.CancelID(ctx, id)
		switch {
		case err == nil:
			results = append(results, res)
		case errors.Is(err, orderbook.ErrOrderNotFound):
			// filled since the last step
		default:
			return results, err
		}
	}
	mm.quotes = mm.quotes[:0]

	skew := mm.position * mm.cfg.InventorySkew
	canBuy := mm.cfg.MaxPosition == 0 || mm.position < mm.cfg.MaxPosition
	canSell := mm.cfg.MaxPosition == 0 || mm.position > -mm.cfg.MaxPosition

	for i := 1; i <= mm.cfg.Levels; i++ {
		offset := mm.cfg.HalfSpread * float64(i)
		if canBuy {
			if err := mm.quote(ctx, orderbook.Buy, ref-offset-skew, &results); err != nil {
				return results, err
			}
		}
		if canSell {
			if err := mm.quote(ctx, orderbook.Sell, ref+offset-skew, &results); err != nil {
				return results, err
			}
		}
	}
	return results, nil
}

func (mm *MarketMaker) quote(ctx context.Context, side orderbook.Side, price float64, results *[]engine.Result) error {
	price = roundTo(price, mm.cfg.Tick)
	if price <= 0 {
		return nil
	}
	res, err := mm.market.Submit(ctx, orderbook.Order{
		ID:     mm.nextID(),
		Side:   side,
		Type:   orderbook.Limit,
		Flag:   orderbook.PostOnly,
		Price:  price,
		Volume: mm.cfg.Size,
	})
	switch {
	case err == nil:
		*results = append(*results, res)
		mm.quotes = append(mm.quotes, res.Order.ID)
	case errors.Is(err, orderbook.ErrInvalidOrder):
		// would cross another agent's resting order
	default:
		return err
	}
	return nil
}
