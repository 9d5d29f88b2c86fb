package supervisor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/latencyx/core/internal/bus"
	"github.com/latencyx/core/internal/models"
	"github.com/latencyx/core/internal/persist"
	"github.com/latencyx/core/internal/risk"
)

// fakeConnector publishes a fixed batch of ticks, then blocks until ctx
// is cancelled, mirroring a real connector that never returns on success.
type fakeConnector struct {
	venue models.Venue
	ticks []models.Tick
}

func (f *fakeConnector) Venue() models.Venue { return f.venue }

func (f *fakeConnector) Subscribe(ctx context.Context, _ []string, sink chan<- models.Tick) error {
	for _, t := range f.ticks {
		select {
		case sink <- t:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	<-ctx.Done()
	return ctx.Err()
}

// recordingStrategy records every tick it is handed, in order.
type recordingStrategy struct {
	mu   sync.Mutex
	seen []models.Tick
}

func (s *recordingStrategy) OnTick(_ context.Context, tick models.Tick) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, tick)
	return nil
}

func (s *recordingStrategy) Seen() []models.Tick {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Tick, len(s.seen))
	copy(out, s.seen)
	return out
}

func newTestRisk(t *testing.T) *risk.Manager {
	t.Helper()
	store, err := persist.NewStore(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	mgr, err := risk.NewManager(context.Background(), store, zap.NewNop())
	require.NoError(t, err)
	return mgr
}

func TestRunStopsWhenAllConnectorsStopAfterCancel(t *testing.T) {
	conn := &fakeConnector{venue: models.VenueBinance, ticks: []models.Tick{
		{Source: models.VenueBinance, Symbol: "BTCUSD", Price: 100},
		{Source: models.VenueBinance, Symbol: "BTCUSD", Price: 101},
	}}
	strat := &recordingStrategy{}

	sup := New(Config{
		Connectors: []ConnectorSpec{{Connector: conn, Symbols: []string{"BTCUSD"}}},
		Strategy:   strat,
		Risk:       newTestRisk(t),
		Bus:        bus.New(),
		Log:        zap.NewNop(),
		MinCPU:     1,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	require.Eventually(t, func() bool {
		return len(strat.Seen()) == 2
	}, time.Second, 5*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestRunFailsFastWhenBelowMinCPU(t *testing.T) {
	sup := New(Config{
		Strategy: &recordingStrategy{},
		Risk:     newTestRisk(t),
		Bus:      bus.New(),
		Log:      zap.NewNop(),
		MinCPU:   1 << 20,
	})

	err := sup.Run(context.Background())
	assert.Error(t, err)
}

func TestDashboardTaskRunsAlongsidePipeline(t *testing.T) {
	started := make(chan struct{})
	sup := New(Config{
		Strategy: &recordingStrategy{},
		Risk:     newTestRisk(t),
		Bus:      bus.New(),
		Log:      zap.NewNop(),
		MinCPU:   1,
		DashboardTask: func(ctx context.Context) error {
			close(started)
			<-ctx.Done()
			return ctx.Err()
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("dashboard task never started")
	}

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
