// Package risk maintains the in-memory position ledger and durably
// checkpoints it on every fill.
package risk

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/latencyx/core/internal/models"
)

// PositionStore is the persistence slice the Manager needs.
type PositionStore interface {
	SaveFill(ctx context.Context, fill models.Fill) error
	GetPositions(ctx context.Context) (map[string]float64, error)
	SetPositions(ctx context.Context, positions map[string]float64) error
}

// PreTradeCheck is a future-proofing hook: a strategy may register one to
// see an Order before it is sent and approve or reject it. No current
// strategy registers one.
type PreTradeCheck func(order models.Order) (approve bool)

// Manager owns the positions ledger. OnFill is safe for concurrent use.
type Manager struct {
	store PositionStore
	log   *zap.Logger

	mu        sync.Mutex
	positions map[string]float64

	preTradeMu sync.RWMutex
	preTrade   []PreTradeCheck
}

// NewManager restores positions from store at startup.
func NewManager(ctx context.Context, store PositionStore, log *zap.Logger) (*Manager, error) {
	positions, err := store.GetPositions(ctx)
	if err != nil {
		return nil, err
	}
	if positions == nil {
		positions = make(map[string]float64)
	}
	return &Manager{store: store, log: log, positions: positions}, nil
}

// RegisterPreTradeCheck adds a hook consulted before an order is sent.
// Strategies are not currently wired to call this; it exists so the core
// can grow a pre-trade risk layer without restructuring.
func (m *Manager) RegisterPreTradeCheck(check PreTradeCheck) {
	m.preTradeMu.Lock()
	defer m.preTradeMu.Unlock()
	m.preTrade = append(m.preTrade, check)
}

// Approve runs every registered pre-trade check against order. An order
// is approved if every check approves it (vacuously true with none
// registered).
func (m *Manager) Approve(order models.Order) bool {
	m.preTradeMu.RLock()
	defer m.preTradeMu.RUnlock()
	for _, check := range m.preTrade {
		if !check(order) {
			return false
		}
	}
	return true
}

// OnFill persists fill, mutates the in-memory position ledger, then
// durably checkpoints the full snapshot. A durable-write failure is
// logged but never rolls back the in-memory state — the fill already
// happened on the venue.
func (m *Manager) OnFill(ctx context.Context, fill models.Fill) error {
	if err := m.store.SaveFill(ctx, fill); err != nil {
		return err
	}

	m.mu.Lock()
	delta := fill.Quantity
	if fill.Side == models.Sell {
		delta = -delta
	}
	m.positions[fill.Symbol] += delta
	snapshot := make(map[string]float64, len(m.positions))
	for symbol, qty := range m.positions {
		snapshot[symbol] = qty
	}
	m.mu.Unlock()

	if err := m.store.SetPositions(ctx, snapshot); err != nil {
		m.log.Error("failed to persist position snapshot", zap.String("symbol", fill.Symbol), zap.Error(err))
	}
	return nil
}

// Positions returns a snapshot of the current in-memory ledger.
func (m *Manager) Positions() map[string]float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]float64, len(m.positions))
	for symbol, qty := range m.positions {
		out[symbol] = qty
	}
	return out
}
