package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersAllCollectorsExactlyOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)
	require.NotNil(t, r)

	r.ArbitrageSpread.WithLabelValues("BTCUSDT").Set(12.5)
	r.ArbitrageOpportunities.WithLabelValues("BTCUSDT").Inc()
	r.LastPrice.WithLabelValues("BTCUSDT").Set(50000)
	r.OrdersCreated.WithLabelValues("market_maker", "buy").Inc()
	r.TickToTradeUs.WithLabelValues("binance").Observe(120)
	r.ConnectorReconnects.WithLabelValues("binance").Inc()
	r.TickChannelDropped.WithLabelValues("binance").Inc()

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, families, 7)
}

func TestNewPanicsOnDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
