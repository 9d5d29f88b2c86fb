// Package execution submits Orders to venue-specific endpoints and turns
// their responses into Fills and Trades flowing back into the pipeline.
package execution

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/latencyx/core/internal/bus"
	"github.com/latencyx/core/internal/metrics"
	"github.com/latencyx/core/internal/models"
)

// Gateway is the capability a strategy's orders are routed through.
// SendOrder performs the full side-effect chain on success: it stamps
// executed_at, emits a LatencyUpdate when the order carries a triggering
// tick, synthesizes and blocking-sends a Fill, persists the resulting
// Trade, and publishes a Trade event. It never retries internally —
// duplicate execution is worse than a failed submission.
type Gateway interface {
	Venue() models.Venue
	SendOrder(ctx context.Context, order models.Order) (venueOrderID string, err error)
}

var (
	// ErrRejected means the venue returned a business-level rejection.
	ErrRejected = errors.New("execution: order rejected by venue")
	// ErrUnreachable means the venue could not be reached or timed out;
	// the caller decides whether to retry.
	ErrUnreachable = errors.New("execution: venue unreachable")
	// ErrUnsupported means the venue does not support this order shape
	// (e.g. a Market order on a venue that requires limit orders).
	ErrUnsupported = errors.New("execution: order type unsupported by venue")
	// ErrMalformedOrder means the order is missing a field its type requires.
	ErrMalformedOrder = errors.New("execution: malformed order")
)

// TradeStore is the persistence dependency a gateway needs: durable
// storage of the Trade derived from each successful fill.
type TradeStore interface {
	SaveTrade(ctx context.Context, trade models.Trade) error
}

// base centralizes the side-effect chain shared by every venue gateway,
// so each venue only needs to implement the HTTP/signing/parsing that
// turns an Order into a venue order ID and a fill price.
type base struct {
	venue   models.Venue
	fills   chan<- models.Fill
	store   TradeStore
	bus     *bus.Bus
	log     *zap.Logger
	metrics *metrics.Registry
}

func newBase(venue models.Venue, fills chan<- models.Fill, store TradeStore, b *bus.Bus, log *zap.Logger, metricsReg *metrics.Registry) base {
	return base{venue: venue, fills: fills, store: store, bus: b, log: log, metrics: metricsReg}
}

func (g base) Venue() models.Venue { return g.venue }

// complete runs the mandated post-submission side effects for a
// successfully-accepted order: stamp executed_at, emit latency, build
// and blocking-send the Fill, persist the Trade, publish the Trade
// event. The blocking send on g.fills respects ctx cancellation but
// otherwise waits rather than drop, since losing a fill corrupts the
// in-memory position ledger downstream.
func (g base) complete(ctx context.Context, order models.Order, fillPrice, fillQty float64) error {
	executedAt := time.Now().UTC()

	if order.TriggeringTick != nil {
		latencyUs := executedAt.Sub(order.TriggeringTick.ReceivedAt).Microseconds()
		g.bus.Publish(models.LatencyEvent(models.LatencyUpdate{
			OrderID:   order.ID,
			Venue:     g.venue,
			LatencyUs: latencyUs,
		}))
		if g.metrics != nil {
			g.metrics.TickToTradeUs.WithLabelValues(string(g.venue)).Observe(float64(latencyUs))
		}
	}

	fill := models.Fill{
		OrderID:    order.ID,
		Symbol:     order.Symbol,
		Side:       order.Side,
		Price:      fillPrice,
		Quantity:   fillQty,
		Source:     g.venue,
		ExecutedAt: executedAt,
	}

	select {
	case g.fills <- fill:
	case <-ctx.Done():
		return ctx.Err()
	}

	trade := models.NewTrade(fill)
	if err := g.store.SaveTrade(ctx, trade); err != nil {
		g.log.Error("failed to persist trade", zap.String("venue", string(g.venue)), zap.Error(err))
	}
	g.bus.Publish(models.TradeEvent(trade))

	return nil
}
