// Package models defines the shared data vocabulary of the tick-to-trade
// pipeline: ticks observed from venues, orders strategies produce, fills
// venues report back, durable trade records, and the broadcast event
// envelope that ties every stage together on the event bus.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Venue identifies the origin of a Tick, Order, or Fill.
type Venue string

const (
	VenueBinance  Venue = "binance"
	VenueKraken   Venue = "kraken"
	VenueCoinbase Venue = "coinbase"
	VenueSolana   Venue = "solana"
	VenueStrategy Venue = "strategy"
)

func (v Venue) String() string { return string(v) }

// Side is the direction of an Order or Fill.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// OrderType distinguishes Market orders (no price) from Limit orders
// (price required).
type OrderType string

const (
	Market OrderType = "market"
	Limit  OrderType = "limit"
)

// OrderStatus tracks an Order's lifecycle. Orders are created once and
// mutated only through these status transitions.
type OrderStatus string

const (
	StatusNew      OrderStatus = "new"
	StatusFilled   OrderStatus = "filled"
	StatusCanceled OrderStatus = "canceled"
	StatusFailed   OrderStatus = "failed"
)

// Tick is a single observed trade print from a venue. ReceivedAt is
// stamped by the connector at decode time, never taken from the venue
// payload — latency math is end-to-end ingress-to-submit. Ticks are
// immutable once published.
type Tick struct {
	Source     Venue
	Symbol     string
	Price      float64
	Volume     float64
	ReceivedAt time.Time
}

// Order is a trading intent produced by a strategy. Limit orders carry a
// price; Market orders do not. Orders are created once via NewMarketOrder
// or NewLimitOrder and mutated only through WithStatus.
type Order struct {
	ID             uuid.UUID
	Symbol         string
	Side           Side
	OrderType      OrderType
	Amount         float64
	Price          *float64
	Status         OrderStatus
	Source         Venue
	CreatedAt      time.Time
	TriggeringTick *Tick
}

// NewMarketOrder builds a Market order with a fresh globally-unique id.
func NewMarketOrder(symbol string, side Side, amount float64, source Venue, triggering *Tick) Order {
	return Order{
		ID:             uuid.New(),
		Symbol:         symbol,
		Side:           side,
		OrderType:      Market,
		Amount:         amount,
		Status:         StatusNew,
		Source:         source,
		CreatedAt:      time.Now().UTC(),
		TriggeringTick: triggering,
	}
}

// NewLimitOrder builds a Limit order with a fresh globally-unique id.
func NewLimitOrder(symbol string, side Side, amount, price float64, source Venue, triggering *Tick) Order {
	p := price
	return Order{
		ID:             uuid.New(),
		Symbol:         symbol,
		Side:           side,
		OrderType:      Limit,
		Amount:         amount,
		Price:          &p,
		Status:         StatusNew,
		Source:         source,
		CreatedAt:      time.Now().UTC(),
		TriggeringTick: triggering,
	}
}

// WithStatus returns a copy of the order with a new status. Orders are
// never mutated in place; the caller is expected to persist/replace.
func (o Order) WithStatus(s OrderStatus) Order {
	o.Status = s
	return o
}

// Fill is an observed execution, full or partial, of an Order.
type Fill struct {
	OrderID    uuid.UUID
	Symbol     string
	Side       Side
	Price      float64
	Quantity   float64
	Source     Venue
	ExecutedAt time.Time
}

// Trade is a durable record of a Fill, stamped with its own unique id.
type Trade struct {
	ID         uuid.UUID
	OrderID    uuid.UUID
	Symbol     string
	Side       Side
	Amount     float64
	Price      float64
	Source     Venue
	ExecutedAt time.Time
}

// NewTrade derives a Trade record from an observed Fill.
func NewTrade(f Fill) Trade {
	return Trade{
		ID:         uuid.New(),
		OrderID:    f.OrderID,
		Symbol:     f.Symbol,
		Side:       f.Side,
		Amount:     f.Quantity,
		Price:      f.Price,
		Source:     f.Source,
		ExecutedAt: f.ExecutedAt,
	}
}

// EventType tags the variant carried by a PipelineEvent.
type EventType string

const (
	EventTick           EventType = "Tick"
	EventTrade          EventType = "Trade"
	EventLog            EventType = "Log"
	EventLatencyUpdate  EventType = "LatencyUpdate"
)

// LatencyUpdate reports the tick-to-trade latency, in microseconds,
// between a triggering Tick's ReceivedAt and the gateway's execution
// stamp (the resulting Fill's ExecutedAt).
type LatencyUpdate struct {
	OrderID   uuid.UUID
	Venue     Venue
	LatencyUs int64
}

// LogRecord is a structured log line mirrored onto the event bus so the
// dashboard can display it alongside ticks and trades.
type LogRecord struct {
	Timestamp time.Time
	Level     string
	Target    string
	Message   string
}

// PipelineEvent is the tagged union broadcast on the event bus. Exactly
// one of the typed fields is populated, matching Type.
type PipelineEvent struct {
	Type    EventType
	Tick    *Tick
	Trade   *Trade
	Log     *LogRecord
	Latency *LatencyUpdate
}

// TickEvent wraps a Tick as a PipelineEvent.
func TickEvent(t Tick) PipelineEvent { return PipelineEvent{Type: EventTick, Tick: &t} }

// TradeEvent wraps a Trade as a PipelineEvent.
func TradeEvent(t Trade) PipelineEvent { return PipelineEvent{Type: EventTrade, Trade: &t} }

// LogEvent wraps a LogRecord as a PipelineEvent.
func LogEvent(l LogRecord) PipelineEvent { return PipelineEvent{Type: EventLog, Log: &l} }

// LatencyEvent wraps a LatencyUpdate as a PipelineEvent.
func LatencyEvent(l LatencyUpdate) PipelineEvent {
	return PipelineEvent{Type: EventLatencyUpdate, Latency: &l}
}
