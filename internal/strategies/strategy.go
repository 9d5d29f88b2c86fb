// Package strategies implements the pluggable trading logic the worker
// drives one tick at a time: spread arbitrage, market making, and
// triangular arbitrage. Each strategy owns its state exclusively and
// mutates it only from within OnTick, so the worker can call it serially
// with no further synchronization.
package strategies

import (
	"context"

	"github.com/latencyx/core/internal/models"
)

// Strategy is driven by the worker with ticks in arrival order,
// exactly once each. OnTick may submit zero or more orders through its
// execution gateway(s); background submission is only appropriate when
// the concrete strategy documents it (triangular arbitrage does, since
// its three legs are dispatched as a fire-and-forget batch).
type Strategy interface {
	OnTick(ctx context.Context, tick models.Tick) error
}
