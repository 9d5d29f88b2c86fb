// Package metrics registers the pipeline's Prometheus instrumentation.
// Exposing these over HTTP is the exporter's job, not this package's;
// Registry only owns collector registration and update methods so every
// other package can report through a narrow interface instead of
// depending on prometheus directly.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry holds every collector the pipeline updates during normal
// operation, matching the metric surface a dashboard/exporter expects:
// spread and opportunity counters per symbol, last price per symbol,
// orders created per strategy/side, tick-to-trade latency per venue,
// and connector health counters per venue.
type Registry struct {
	ArbitrageSpread       *prometheus.GaugeVec
	ArbitrageOpportunities *prometheus.CounterVec
	LastPrice             *prometheus.GaugeVec
	OrdersCreated         *prometheus.CounterVec
	TickToTradeUs         *prometheus.HistogramVec
	ConnectorReconnects   *prometheus.CounterVec
	TickChannelDropped    *prometheus.CounterVec
}

// New builds a Registry and registers every collector against reg. Pass
// prometheus.NewRegistry() for an isolated test registry, or
// prometheus.DefaultRegisterer to expose alongside process metrics.
func New(reg prometheus.Registerer) *Registry {
	r := &Registry{
		ArbitrageSpread: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "arbitrage_spread",
			Help: "Most recent observed spread between two venues for a symbol.",
		}, []string{"symbol"}),
		ArbitrageOpportunities: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arbitrage_opportunities",
			Help: "Count of spread-arbitrage opportunities that crossed min_spread.",
		}, []string{"symbol"}),
		LastPrice: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "last_price",
			Help: "Most recent observed trade price for a symbol.",
		}, []string{"symbol"}),
		OrdersCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orders_created",
			Help: "Count of orders a strategy has emitted.",
		}, []string{"strategy", "side"}),
		TickToTradeUs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tick_to_trade_us",
			Help:    "Microseconds from tick ingress to order submission.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 25000, 50000},
		}, []string{"venue"}),
		ConnectorReconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "connector_reconnects",
			Help: "Count of reconnect attempts per venue connector.",
		}, []string{"venue"}),
		TickChannelDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tick_channel_dropped",
			Help: "Count of ticks dropped because the strategy's tick channel was full.",
		}, []string{"venue"}),
	}

	reg.MustRegister(
		r.ArbitrageSpread,
		r.ArbitrageOpportunities,
		r.LastPrice,
		r.OrdersCreated,
		r.TickToTradeUs,
		r.ConnectorReconnects,
		r.TickChannelDropped,
	)
	return r
}
