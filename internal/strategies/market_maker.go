package strategies

import (
	"context"
	"sync"

	"github.com/latencyx/core/internal/execution"
	"github.com/latencyx/core/internal/metrics"
	"github.com/latencyx/core/internal/models"
)

// MarketMaker quotes both sides of a single venue's book on every tick
// after the first: a Buy limit at price*(1-Spread) and a Sell limit at
// price*(1+Spread). It never cancels a prior quote — each tick's quotes
// simply accumulate as open orders, a documented simplification.
type MarketMaker struct {
	venue    models.Venue
	symbol   string
	gw       execution.Gateway
	spread   float64
	quantity float64
	metrics  *metrics.Registry

	mu        sync.Mutex
	lastPrice *float64
}

// NewMarketMaker builds a market maker quoting a single symbol on a
// single venue.
func NewMarketMaker(venue models.Venue, symbol string, gw execution.Gateway, spread, quantity float64, metricsReg *metrics.Registry) *MarketMaker {
	return &MarketMaker{venue: venue, symbol: symbol, gw: gw, spread: spread, quantity: quantity, metrics: metricsReg}
}

func (m *MarketMaker) OnTick(ctx context.Context, tick models.Tick) error {
	if tick.Source != m.venue || tick.Symbol != m.symbol {
		return nil
	}

	m.mu.Lock()
	hadPrior := m.lastPrice != nil
	price := tick.Price
	m.lastPrice = &price
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.LastPrice.WithLabelValues(tick.Symbol).Set(tick.Price)
	}

	if !hadPrior {
		return nil
	}

	buyPrice := tick.Price * (1 - m.spread)
	sellPrice := tick.Price * (1 + m.spread)

	buyOrder := models.NewLimitOrder(tick.Symbol, models.Buy, m.quantity, buyPrice, models.VenueStrategy, &tick)
	sellOrder := models.NewLimitOrder(tick.Symbol, models.Sell, m.quantity, sellPrice, models.VenueStrategy, &tick)

	if m.metrics != nil {
		m.metrics.OrdersCreated.WithLabelValues("market_maker", string(models.Buy)).Inc()
	}
	if _, err := m.gw.SendOrder(ctx, buyOrder); err != nil {
		return err
	}

	if m.metrics != nil {
		m.metrics.OrdersCreated.WithLabelValues("market_maker", string(models.Sell)).Inc()
	}
	_, err := m.gw.SendOrder(ctx, sellOrder)
	return err
}
