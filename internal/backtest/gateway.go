// Package backtest substitutes an in-memory recorder for a real venue
// connection, so the tick-to-trade pipeline (strategies, risk manager,
// persistence) can run unmodified against historical ticks. It satisfies
// the same execution.Gateway contract every live venue gateway does.
package backtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/latencyx/core/internal/models"
)

// Record pairs a submitted order with the fill RecordingGateway
// fabricated for it.
type Record struct {
	Order models.Order
	Fill  models.Fill
}

// RecordingGateway fills every order it receives at a deterministic
// price and keeps every order/fill pair for later inspection, instead
// of talking to a venue. A Limit order fills at its own price; a Market
// order fills at its triggering tick's price, since that is the only
// deterministic price available without a live venue report.
type RecordingGateway struct {
	venue models.Venue
	fills chan<- models.Fill

	mu      sync.Mutex
	records []Record
}

// New builds a RecordingGateway identifying itself as venue. fills may
// be nil if the caller only wants the recorded order/fill pairs and
// does not need them flowing into a risk manager.
func New(venue models.Venue, fills chan<- models.Fill) *RecordingGateway {
	return &RecordingGateway{venue: venue, fills: fills}
}

func (g *RecordingGateway) Venue() models.Venue { return g.venue }

// SendOrder fabricates a fill for order and records the pair. It never
// rejects on business grounds the way a live venue might; the only
// failure mode is an order with no derivable price.
func (g *RecordingGateway) SendOrder(ctx context.Context, order models.Order) (string, error) {
	price, err := fillPrice(order)
	if err != nil {
		return "", err
	}

	fill := models.Fill{
		OrderID:    order.ID,
		Symbol:     order.Symbol,
		Side:       order.Side,
		Price:      price,
		Quantity:   order.Amount,
		Source:     g.venue,
		ExecutedAt: time.Now().UTC(),
	}

	g.mu.Lock()
	g.records = append(g.records, Record{Order: order, Fill: fill})
	g.mu.Unlock()

	if g.fills != nil {
		select {
		case g.fills <- fill:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	return order.ID.String(), nil
}

// Records returns a snapshot of every order/fill pair recorded so far.
func (g *RecordingGateway) Records() []Record {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Record, len(g.records))
	copy(out, g.records)
	return out
}

func fillPrice(order models.Order) (float64, error) {
	if order.Price != nil {
		return *order.Price, nil
	}
	if order.TriggeringTick != nil {
		return order.TriggeringTick.Price, nil
	}
	return 0, fmt.Errorf("backtest: cannot derive a fill price for order %s: no limit price and no triggering tick", order.ID)
}
