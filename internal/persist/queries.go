package persist

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/latencyx/core/internal/models"
)

// ErrDuplicateOrder is returned by SaveOrder when an order with the same
// id has already been persisted. Orders are immutable once created, so a
// duplicate id is a caller bug, not a retryable condition.
var ErrDuplicateOrder = errors.New("persist: duplicate order id")

type orderRow struct {
	ID        string   `db:"id"`
	Symbol    string   `db:"symbol"`
	Side      string   `db:"side"`
	OrderType string   `db:"order_type"`
	Amount    float64  `db:"amount"`
	Price     *float64 `db:"price"`
	Status    string   `db:"status"`
	Source    string   `db:"source"`
	CreatedAt string   `db:"created_at"`
}

type fillRow struct {
	OrderID    string  `db:"order_id"`
	Symbol     string  `db:"symbol"`
	Side       string  `db:"side"`
	Price      float64 `db:"price"`
	Quantity   float64 `db:"quantity"`
	Source     string  `db:"source"`
	ExecutedAt string  `db:"executed_at"`
}

type tradeRow struct {
	ID         string  `db:"id"`
	OrderID    string  `db:"order_id"`
	Symbol     string  `db:"symbol"`
	Side       string  `db:"side"`
	Amount     float64 `db:"amount"`
	Price      float64 `db:"price"`
	Source     string  `db:"source"`
	ExecutedAt string  `db:"executed_at"`
}

// SaveOrder inserts a new order record. It is idempotent at the id
// level: inserting the same id twice returns ErrDuplicateOrder rather
// than overwriting the original.
func (s *Store) SaveOrder(ctx context.Context, order models.Order) error {
	row := orderRow{
		ID:        order.ID.String(),
		Symbol:    order.Symbol,
		Side:      string(order.Side),
		OrderType: string(order.OrderType),
		Amount:    order.Amount,
		Price:     order.Price,
		Status:    string(order.Status),
		Source:    string(order.Source),
		CreatedAt: order.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO orders (id, symbol, side, order_type, amount, price, status, source, created_at)
		VALUES (:id, :symbol, :side, :order_type, :amount, :price, :status, :source, :created_at)
	`, row)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateOrder
		}
		return fmt.Errorf("save order: %w", err)
	}
	return nil
}

// SaveFill appends an execution record. Fills are an append-only log —
// a venue may report more than one partial fill for the same order.
func (s *Store) SaveFill(ctx context.Context, fill models.Fill) error {
	row := fillRow{
		OrderID:    fill.OrderID.String(),
		Symbol:     fill.Symbol,
		Side:       string(fill.Side),
		Price:      fill.Price,
		Quantity:   fill.Quantity,
		Source:     string(fill.Source),
		ExecutedAt: fill.ExecutedAt.UTC().Format(time.RFC3339Nano),
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO fills (order_id, symbol, side, price, quantity, source, executed_at)
		VALUES (:order_id, :symbol, :side, :price, :quantity, :source, :executed_at)
	`, row)
	if err != nil {
		return fmt.Errorf("save fill: %w", err)
	}
	return nil
}

// SaveTrade inserts a durable trade record under its own unique id. It
// satisfies execution.TradeStore.
func (s *Store) SaveTrade(ctx context.Context, trade models.Trade) error {
	row := tradeRow{
		ID:         trade.ID.String(),
		OrderID:    trade.OrderID.String(),
		Symbol:     trade.Symbol,
		Side:       string(trade.Side),
		Amount:     trade.Amount,
		Price:      trade.Price,
		Source:     string(trade.Source),
		ExecutedAt: trade.ExecutedAt.UTC().Format(time.RFC3339Nano),
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO trades (id, order_id, symbol, side, amount, price, source, executed_at)
		VALUES (:id, :order_id, :symbol, :side, :amount, :price, :source, :executed_at)
	`, row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil // idempotent at id level, unlike SaveOrder's ErrDuplicateOrder
		}
		return fmt.Errorf("save trade: %w", err)
	}
	return nil
}

// GetPositions returns a full snapshot of every symbol's current
// quantity.
func (s *Store) GetPositions(ctx context.Context) (map[string]float64, error) {
	var rows []struct {
		Symbol   string  `db:"symbol"`
		Quantity float64 `db:"quantity"`
	}
	if err := s.db.SelectContext(ctx, &rows, `SELECT symbol, quantity FROM positions`); err != nil {
		return nil, fmt.Errorf("get positions: %w", err)
	}
	out := make(map[string]float64, len(rows))
	for _, r := range rows {
		out[r.Symbol] = r.Quantity
	}
	return out, nil
}

// SetPositions upserts every entry of positions in a single transaction,
// so a reader never observes a partially-written snapshot.
func (s *Store) SetPositions(ctx context.Context, positions map[string]float64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("set positions: begin: %w", err)
	}
	defer tx.Rollback()

	for symbol, qty := range positions {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO positions (symbol, quantity) VALUES (?, ?)
			ON CONFLICT(symbol) DO UPDATE SET quantity = excluded.quantity
		`, symbol, qty); err != nil {
			return fmt.Errorf("set positions: upsert %s: %w", symbol, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("set positions: commit: %w", err)
	}
	return nil
}

// RecentTrades returns up to limit trades, newest first.
func (s *Store) RecentTrades(ctx context.Context, limit int) ([]models.Trade, error) {
	var rows []tradeRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT id, order_id, symbol, side, amount, price, source, executed_at
		FROM trades ORDER BY executed_at DESC LIMIT ?
	`, limit); err != nil {
		return nil, fmt.Errorf("recent trades: %w", err)
	}

	out := make([]models.Trade, 0, len(rows))
	for _, r := range rows {
		trade, err := r.toModel()
		if err != nil {
			return nil, fmt.Errorf("recent trades: %w", err)
		}
		out = append(out, trade)
	}
	return out, nil
}

func (r tradeRow) toModel() (models.Trade, error) {
	id, err := parseUUID(r.ID)
	if err != nil {
		return models.Trade{}, err
	}
	orderID, err := parseUUID(r.OrderID)
	if err != nil {
		return models.Trade{}, err
	}
	executedAt, err := time.Parse(time.RFC3339Nano, r.ExecutedAt)
	if err != nil {
		return models.Trade{}, err
	}
	return models.Trade{
		ID:         id,
		OrderID:    orderID,
		Symbol:     r.Symbol,
		Side:       models.Side(r.Side),
		Amount:     r.Amount,
		Price:      r.Price,
		Source:     models.Venue(r.Source),
		ExecutedAt: executedAt,
	}, nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func parseUUID(s string) (uuid.UUID, error) {
	return uuid.Parse(s)
}
