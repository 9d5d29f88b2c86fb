package backtest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latencyx/core/internal/models"
)

func TestSendOrderFillsLimitOrderAtItsOwnPrice(t *testing.T) {
	g := New(models.VenueStrategy, nil)

	order := models.NewLimitOrder("BTCUSD", models.Buy, 2, 50000, models.VenueStrategy, nil)
	id, err := g.SendOrder(context.Background(), order)
	require.NoError(t, err)
	assert.Equal(t, order.ID.String(), id)

	records := g.Records()
	require.Len(t, records, 1)
	assert.Equal(t, 50000.0, records[0].Fill.Price)
	assert.Equal(t, 2.0, records[0].Fill.Quantity)
	assert.Equal(t, order.ID, records[0].Fill.OrderID)
}

func TestSendOrderFillsMarketOrderAtTriggeringTickPrice(t *testing.T) {
	g := New(models.VenueStrategy, nil)

	tick := models.Tick{Source: models.VenueBinance, Symbol: "ETHUSD", Price: 2500, ReceivedAt: time.Now().UTC()}
	order := models.NewMarketOrder("ETHUSD", models.Sell, 1, models.VenueStrategy, &tick)

	_, err := g.SendOrder(context.Background(), order)
	require.NoError(t, err)

	records := g.Records()
	require.Len(t, records, 1)
	assert.Equal(t, 2500.0, records[0].Fill.Price)
}

func TestSendOrderRejectsMarketOrderWithNoTriggeringTick(t *testing.T) {
	g := New(models.VenueStrategy, nil)

	order := models.NewMarketOrder("ETHUSD", models.Buy, 1, models.VenueStrategy, nil)
	_, err := g.SendOrder(context.Background(), order)
	assert.Error(t, err)
	assert.Empty(t, g.Records())
}

func TestSendOrderDeliversFillsToChannel(t *testing.T) {
	fills := make(chan models.Fill, 1)
	g := New(models.VenueStrategy, fills)

	order := models.NewLimitOrder("BTCUSD", models.Buy, 1, 100, models.VenueStrategy, nil)
	_, err := g.SendOrder(context.Background(), order)
	require.NoError(t, err)

	select {
	case fill := <-fills:
		assert.Equal(t, "BTCUSD", fill.Symbol)
	default:
		t.Fatal("expected a fill on the channel")
	}
}

func TestSendOrderRespectsContextCancellationOnBlockedChannel(t *testing.T) {
	fills := make(chan models.Fill)
	g := New(models.VenueStrategy, fills)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	order := models.NewLimitOrder("BTCUSD", models.Buy, 1, 100, models.VenueStrategy, nil)
	_, err := g.SendOrder(ctx, order)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRecordsReturnsASnapshotNotALiveView(t *testing.T) {
	g := New(models.VenueStrategy, nil)
	order := models.NewLimitOrder("BTCUSD", models.Buy, 1, 100, models.VenueStrategy, nil)
	_, err := g.SendOrder(context.Background(), order)
	require.NoError(t, err)

	snapshot := g.Records()
	_, err = g.SendOrder(context.Background(), models.NewLimitOrder("ETHUSD", models.Buy, 1, 200, models.VenueStrategy, nil))
	require.NoError(t, err)

	assert.Len(t, snapshot, 1)
	assert.Len(t, g.Records(), 2)
}
