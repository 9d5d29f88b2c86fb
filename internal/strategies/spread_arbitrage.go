package strategies

import (
	"context"
	"sync"

	"github.com/latencyx/core/internal/execution"
	"github.com/latencyx/core/internal/metrics"
	"github.com/latencyx/core/internal/models"
)

// SpreadArbitrage watches two venues for the same instrument and trades
// the divergence: when venue2's price exceeds venue1's by more than
// MinSpread, it buys on venue1 and sells on venue2 (and the reverse when
// venue1 leads). Each leg uses the venue's own symbol from its most
// recent tick — the two venues are never assumed to share a symbol
// string for the same instrument.
type SpreadArbitrage struct {
	venue1, venue2 models.Venue
	gw1, gw2       execution.Gateway
	minSpread      float64
	quantity       float64
	metrics        *metrics.Registry

	mu        sync.Mutex
	lastTick1 *models.Tick
	lastTick2 *models.Tick
}

// NewSpreadArbitrage builds a two-venue spread arbitrage strategy.
// metricsReg may be nil, in which case metric updates are skipped.
func NewSpreadArbitrage(venue1, venue2 models.Venue, gw1, gw2 execution.Gateway, minSpread, quantity float64, metricsReg *metrics.Registry) *SpreadArbitrage {
	return &SpreadArbitrage{
		venue1: venue1, venue2: venue2,
		gw1: gw1, gw2: gw2,
		minSpread: minSpread,
		quantity:  quantity,
		metrics:   metricsReg,
	}
}

func (s *SpreadArbitrage) OnTick(ctx context.Context, tick models.Tick) error {
	s.mu.Lock()

	switch tick.Source {
	case s.venue1:
		s.lastTick1 = &tick
	case s.venue2:
		s.lastTick2 = &tick
	default:
		s.mu.Unlock()
		return nil
	}

	t1, t2 := s.lastTick1, s.lastTick2
	if t1 == nil || t2 == nil {
		s.mu.Unlock()
		return nil
	}
	// Copy under the lock; everything past this point reads only the copies.
	tick1, tick2 := *t1, *t2
	s.mu.Unlock()

	spread := tick2.Price - tick1.Price
	if s.metrics != nil {
		s.metrics.ArbitrageSpread.WithLabelValues(tick1.Symbol).Set(spread)
	}

	if spread == 0 || (spread > 0 && spread <= s.minSpread) || (spread < 0 && -spread <= s.minSpread) {
		return nil
	}

	if s.metrics != nil {
		s.metrics.ArbitrageOpportunities.WithLabelValues(tick1.Symbol).Inc()
	}

	buyOrder, sellOrder, buyGw, sellGw := s.legsFor(spread, tick, tick1, tick2)

	if err := s.submit(ctx, buyGw, buyOrder); err != nil {
		return err
	}
	return s.submit(ctx, sellGw, sellOrder)
}

// legsFor builds the two market order legs and picks which gateway each
// routes through, given which venue currently leads.
func (s *SpreadArbitrage) legsFor(spread float64, triggering, tick1, tick2 models.Tick) (buy, sell models.Order, buyGw, sellGw execution.Gateway) {
	if spread > 0 {
		// venue2 leads: buy cheap on venue1, sell rich on venue2.
		buy = models.NewMarketOrder(tick1.Symbol, models.Buy, s.quantity, models.VenueStrategy, &triggering)
		sell = models.NewMarketOrder(tick2.Symbol, models.Sell, s.quantity, models.VenueStrategy, &triggering)
		return buy, sell, s.gw1, s.gw2
	}
	// venue1 leads: buy cheap on venue2, sell rich on venue1.
	buy = models.NewMarketOrder(tick2.Symbol, models.Buy, s.quantity, models.VenueStrategy, &triggering)
	sell = models.NewMarketOrder(tick1.Symbol, models.Sell, s.quantity, models.VenueStrategy, &triggering)
	return buy, sell, s.gw2, s.gw1
}

func (s *SpreadArbitrage) submit(ctx context.Context, gw execution.Gateway, order models.Order) error {
	if s.metrics != nil {
		s.metrics.OrdersCreated.WithLabelValues("spread_arbitrage", string(order.Side)).Inc()
	}
	_, err := gw.SendOrder(ctx, order)
	return err
}
