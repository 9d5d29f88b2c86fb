// Package connectors maintains resilient streaming subscriptions against
// market-data venues and normalizes their wire frames into models.Tick
// values pushed onto a bounded sink channel.
package connectors

import (
	"context"
	"errors"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/latencyx/core/internal/bus"
	"github.com/latencyx/core/internal/metrics"
	"github.com/latencyx/core/internal/models"
)

// State is a connector's position in its Idle -> Connecting -> Subscribed
// -> (Streaming <-> Reconnecting) -> Terminated state machine.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateSubscribed
	StateStreaming
	StateReconnecting
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	case StateStreaming:
		return "streaming"
	case StateReconnecting:
		return "reconnecting"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Connector is the capability the supervisor wires per venue: maintain a
// subscription for the given symbols, normalizing trade prints onto sink.
// Subscribe never returns on success; it returns only when ctx is
// cancelled or sink is closed.
type Connector interface {
	Venue() models.Venue
	Subscribe(ctx context.Context, symbols []string, sink chan<- models.Tick) error
}

// protocol captures everything venue-specific about a streaming
// connection: where to dial, what to send to subscribe, and how to turn
// a raw frame into zero or more trade prints. Numeric decode failures on
// a single frame must return (nil, errSkipFrame) rather than an error,
// so one bad message never tears down the connection.
type protocol interface {
	dialURL() string
	subscribeMessage(symbols []string) ([]byte, error)
	decodeFrame(data []byte) ([]tradePrint, error)
}

// tradePrint is a venue-normalized trade observation before the
// connector stamps it with ReceivedAt and wraps it as a models.Tick.
type tradePrint struct {
	Symbol string
	Price  float64
	Volume float64
}

// errSkipFrame signals "not a trade frame, or failed to parse — skip it,
// do not treat as connection failure".
var errSkipFrame = errors.New("connectors: skip frame")

// dialer abstracts websocket.DefaultDialer so tests can substitute a fake
// server without a real TLS/network round-trip.
type dialer interface {
	Dial(url string, header map[string][]string) (*websocket.Conn, error)
}

type gorillaDialer struct{}

func (gorillaDialer) Dial(url string, header map[string][]string) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	return conn, err
}

// Stats holds counters a metrics exporter can read; each connector owns
// one instance and increments it from its own goroutine only.
type Stats struct {
	Reconnects    atomic.Int64
	TicksDropped  atomic.Int64
	FramesSkipped atomic.Int64
}

// base implements the shared reconnect/backpressure-drop/state-machine
// plumbing; venue connectors embed it and supply a protocol.
type base struct {
	venue   models.Venue
	proto   protocol
	dial    dialer
	bus     *bus.Bus
	log     *zap.Logger
	stats   *Stats
	state   atomic.Int32
	backoff backoffPolicy
	metrics *metrics.Registry
}

// newBase wires a connector's shared plumbing. metricsReg may be nil, in
// which case reconnect/drop counts are still tracked in Stats but never
// fed to Prometheus.
func newBase(venue models.Venue, proto protocol, b *bus.Bus, log *zap.Logger, metricsReg *metrics.Registry) *base {
	return &base{
		venue:   venue,
		proto:   proto,
		dial:    gorillaDialer{},
		bus:     b,
		log:     log,
		stats:   &Stats{},
		backoff: defaultBackoff(),
		metrics: metricsReg,
	}
}

func (c *base) Venue() models.Venue { return c.venue }

// Stats exposes the connector's counters for metrics collection.
func (c *base) Stats() *Stats { return c.stats }

func (c *base) setState(s State) { c.state.Store(int32(s)) }

// State returns the connector's current lifecycle state.
func (c *base) State() State { return State(c.state.Load()) }

// backoffPolicy computes exponential-with-jitter reconnect delays.
type backoffPolicy struct {
	base time.Duration
	cap  time.Duration
}

func defaultBackoff() backoffPolicy {
	return backoffPolicy{base: 100 * time.Millisecond, cap: 60 * time.Second}
}

// delay returns the backoff duration for the given (zero-based) retry
// attempt, with full jitter in [0, computed] as AWS's backoff guidance
// recommends.
func (p backoffPolicy) delay(attempt int) time.Duration {
	d := p.base << attempt // may overflow for large attempt; guarded below
	if d <= 0 || d > p.cap {
		d = p.cap
	}
	return time.Duration(rand.Int63n(int64(d) + 1))
}

// Subscribe runs the connect/subscribe/read loop with unbounded retries
// and exponential backoff, until ctx is cancelled or sink is closed.
func (c *base) Subscribe(ctx context.Context, symbols []string, sink chan<- models.Tick) error {
	attempt := 0
	for {
		if ctx.Err() != nil {
			c.setState(StateTerminated)
			return ctx.Err()
		}

		c.setState(StateConnecting)
		err := c.runOnce(ctx, symbols, sink)
		if err == nil {
			// runOnce only returns nil when the sink/context told it to stop.
			c.setState(StateTerminated)
			return nil
		}
		if errors.Is(err, errSinkClosed) {
			c.setState(StateTerminated)
			return nil
		}

		c.setState(StateReconnecting)
		c.stats.Reconnects.Add(1)
		if c.metrics != nil {
			c.metrics.ConnectorReconnects.WithLabelValues(string(c.venue)).Inc()
		}
		c.log.Warn("connector disconnected, backing off",
			zap.String("venue", string(c.venue)), zap.Error(err), zap.Int("attempt", attempt))

		d := c.backoff.delay(attempt)
		attempt++
		select {
		case <-ctx.Done():
			c.setState(StateTerminated)
			return ctx.Err()
		case <-time.After(d):
		}
	}
}

var errSinkClosed = errors.New("connectors: sink closed")

// runOnce performs a single connect/subscribe/stream cycle. It returns
// errSinkClosed when the tick sink was closed (clean exit, not a
// failure), nil only if ctx was cancelled mid-stream, or any other error
// to trigger a reconnect with backoff.
func (c *base) runOnce(ctx context.Context, symbols []string, sink chan<- models.Tick) error {
	conn, err := c.dial.Dial(c.proto.dialURL(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	msg, err := c.proto.subscribeMessage(symbols)
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		return err
	}
	c.setState(StateSubscribed)
	c.setState(StateStreaming)

	type readResult struct {
		data []byte
		err  error
	}
	frames := make(chan readResult, 1)

	go func() {
		for {
			_, data, err := conn.ReadMessage()
			frames <- readResult{data: data, err: err}
			if err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case r := <-frames:
			if r.err != nil {
				return r.err
			}
			if err := c.handleFrame(r.data, sink); err != nil {
				if errors.Is(err, errSinkClosed) {
					return errSinkClosed
				}
				return err
			}
		}
	}
}

// handleFrame decodes one wire frame and offers any resulting ticks to
// the sink using backpressure-drop semantics: if the sink is full, the
// tick is dropped and a counter incremented rather than blocking.
func (c *base) handleFrame(data []byte, sink chan<- models.Tick) (err error) {
	defer func() {
		if r := recover(); r != nil {
			// sink was closed concurrently; treat as clean shutdown.
			err = errSinkClosed
		}
	}()

	prints, decodeErr := c.proto.decodeFrame(data)
	if decodeErr != nil {
		if errors.Is(decodeErr, errSkipFrame) {
			c.stats.FramesSkipped.Add(1)
			c.log.Debug("skipped unparsable frame", zap.String("venue", string(c.venue)))
			return nil
		}
		return decodeErr
	}

	for _, p := range prints {
		tick := models.Tick{
			Source:     c.venue,
			Symbol:     p.Symbol,
			Price:      p.Price,
			Volume:     p.Volume,
			ReceivedAt: time.Now().UTC(),
		}
		select {
		case sink <- tick:
			c.bus.Publish(models.TickEvent(tick))
		default:
			c.stats.TicksDropped.Add(1)
			if c.metrics != nil {
				c.metrics.TickChannelDropped.WithLabelValues(string(c.venue)).Inc()
			}
		}
	}
	return nil
}
