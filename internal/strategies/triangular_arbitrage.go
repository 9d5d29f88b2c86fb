package strategies

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/latencyx/core/internal/execution"
	"github.com/latencyx/core/internal/metrics"
	"github.com/latencyx/core/internal/models"
)

// TriangularArbitrage watches three pairs derived from three asset
// symbols (AB, BC, CA) on a single venue and simulates a B -> A -> C ->
// B round trip on every tick. When the simulated round trip clears
// MinProfitThreshold, it fires all three legs as a detached background
// batch: partial fills and ordering failures on that batch are accepted
// as the cost of this strategy rather than retried or rolled back.
type TriangularArbitrage struct {
	venue                models.Venue
	gw                   execution.Gateway
	pairAB, pairBC, pairCA string
	tradeAmountB         float64
	minProfitThreshold   float64
	metrics              *metrics.Registry
	log                  *zap.Logger

	mu     sync.Mutex
	prices map[string]float64
}

// NewTriangularArbitrage builds a triangular arbitrage strategy over
// three assets on a single venue. Pair names are formed by
// concatenation: assetA+assetB, assetB+assetC, assetA+assetC.
func NewTriangularArbitrage(venue models.Venue, gw execution.Gateway, assetA, assetB, assetC string, tradeAmountB, minProfitThreshold float64, metricsReg *metrics.Registry, log *zap.Logger) *TriangularArbitrage {
	return &TriangularArbitrage{
		venue:              venue,
		gw:                 gw,
		pairAB:             assetA + assetB,
		pairBC:             assetB + assetC,
		pairCA:             assetA + assetC,
		tradeAmountB:       tradeAmountB,
		minProfitThreshold: minProfitThreshold,
		metrics:            metricsReg,
		log:                log,
		prices:             make(map[string]float64),
	}
}

func (t *TriangularArbitrage) OnTick(ctx context.Context, tick models.Tick) error {
	if tick.Source != t.venue {
		return nil
	}

	t.mu.Lock()
	t.prices[tick.Symbol] = tick.Price
	priceAB, okAB := t.prices[t.pairAB]
	priceBC, okBC := t.prices[t.pairBC]
	priceCA, okCA := t.prices[t.pairCA]
	t.mu.Unlock()

	if !okAB || !okBC || !okCA {
		return nil
	}

	amountA := t.tradeAmountB / priceAB
	amountC := amountA * priceCA
	finalB := amountC / priceBC
	profit := (finalB - t.tradeAmountB) / t.tradeAmountB

	if profit <= t.minProfitThreshold {
		return nil
	}

	legAB := models.NewMarketOrder(t.pairAB, models.Buy, amountA, models.VenueStrategy, &tick)
	legCA := models.NewMarketOrder(t.pairCA, models.Sell, amountA, models.VenueStrategy, nil)
	legBC := models.NewMarketOrder(t.pairBC, models.Buy, finalB, models.VenueStrategy, nil)

	if t.metrics != nil {
		t.metrics.ArbitrageOpportunities.WithLabelValues(t.pairAB).Inc()
	}

	go t.fireBatch(legAB, legCA, legBC)
	return nil
}

// fireBatch dispatches the three cycle legs in order, stopping early if
// one leg fails — the remaining notional is simply left unhedged, which
// this strategy accepts as trade cost.
func (t *TriangularArbitrage) fireBatch(legs ...models.Order) {
	ctx := context.Background()
	for _, leg := range legs {
		if t.metrics != nil {
			t.metrics.OrdersCreated.WithLabelValues("triangular_arbitrage", string(leg.Side)).Inc()
		}
		if _, err := t.gw.SendOrder(ctx, leg); err != nil {
			t.log.Warn("triangular arbitrage leg failed", zap.String("symbol", leg.Symbol), zap.Error(err))
			return
		}
	}
}
