package risk

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/latencyx/core/internal/models"
	"github.com/latencyx/core/internal/persist"
)

func newTestManager(t *testing.T) (*Manager, *persist.Store) {
	t.Helper()
	store, err := persist.NewStore(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	mgr, err := NewManager(context.Background(), store, zap.NewNop())
	require.NoError(t, err)
	return mgr, store
}

func TestOnFillAppliesSignedDelta(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, mgr.OnFill(ctx, models.Fill{Symbol: "BTC/USD", Side: models.Buy, Quantity: 1.0}))
	require.NoError(t, mgr.OnFill(ctx, models.Fill{Symbol: "BTC/USD", Side: models.Sell, Quantity: 0.3}))

	assert.InDelta(t, 0.7, mgr.Positions()["BTC/USD"], 1e-9)
}

func TestFillReplayRestoresPositionsAfterRestart(t *testing.T) {
	ctx := context.Background()
	store, err := persist.NewStore(ctx, ":memory:")
	require.NoError(t, err)
	defer store.Close()

	mgr, err := NewManager(ctx, store, zap.NewNop())
	require.NoError(t, err)

	fills := []models.Fill{
		{Symbol: "SYM", Side: models.Buy, Quantity: 1.0},
		{Symbol: "SYM", Side: models.Buy, Quantity: 0.5},
		{Symbol: "SYM", Side: models.Sell, Quantity: 0.8},
	}
	for _, f := range fills {
		require.NoError(t, mgr.OnFill(ctx, f))
	}
	assert.InDelta(t, 0.7, mgr.Positions()["SYM"], 1e-9)

	restarted, err := NewManager(ctx, store, zap.NewNop())
	require.NoError(t, err)
	assert.InDelta(t, 0.7, restarted.Positions()["SYM"], 1e-9)

	got, err := store.GetPositions(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 0.7, got["SYM"], 1e-9)
}

func TestOnFillIsConcurrencySafeAcrossSymbols(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	symbols := []string{"A", "B", "C"}
	done := make(chan struct{}, len(symbols))
	for _, sym := range symbols {
		sym := sym
		go func() {
			for i := 0; i < 50; i++ {
				_ = mgr.OnFill(ctx, models.Fill{Symbol: sym, Side: models.Buy, Quantity: 1.0})
			}
			done <- struct{}{}
		}()
	}
	for range symbols {
		<-done
	}

	positions := mgr.Positions()
	for _, sym := range symbols {
		assert.InDelta(t, 50.0, positions[sym], 1e-9)
	}
}

func TestApproveWithNoChecksRegisteredIsVacuouslyTrue(t *testing.T) {
	mgr, _ := newTestManager(t)
	assert.True(t, mgr.Approve(models.NewMarketOrder("X", models.Buy, 1, models.VenueStrategy, nil)))
}

func TestApproveRejectsWhenAnyCheckRejects(t *testing.T) {
	mgr, _ := newTestManager(t)
	mgr.RegisterPreTradeCheck(func(models.Order) bool { return true })
	mgr.RegisterPreTradeCheck(func(models.Order) bool { return false })

	assert.False(t, mgr.Approve(models.NewMarketOrder("X", models.Buy, 1, models.VenueStrategy, nil)))
}

func TestConsumeAppliesFillsUntilChannelCloses(t *testing.T) {
	mgr, _ := newTestManager(t)
	fills := make(chan models.Fill, 2)
	fills <- models.Fill{Symbol: "X", Side: models.Buy, Quantity: 1.0}
	fills <- models.Fill{Symbol: "X", Side: models.Buy, Quantity: 2.0}
	close(fills)

	require.NoError(t, mgr.Consume(context.Background(), fills))
	assert.InDelta(t, 3.0, mgr.Positions()["X"], 1e-9)
}
