package connectors

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/latencyx/core/internal/metrics"
	"github.com/latencyx/core/internal/models"
)

// redirectDialer always dials the given test server regardless of the
// protocol's declared dialURL, letting tests exercise the base connector
// against a local fake venue.
type redirectDialer struct {
	url string
}

func (d redirectDialer) Dial(_ string, _ map[string][]string) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.Dial(d.url, nil)
	return conn, err
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

// fakeEchoProtocol decodes a single float64 price carried as a bare JSON
// text frame, used only to exercise the base connector's plumbing without
// a real venue's wire format.
type fakeEchoProtocol struct{}

func (fakeEchoProtocol) dialURL() string                               { return "ws://unused" }
func (fakeEchoProtocol) subscribeMessage([]string) ([]byte, error)     { return []byte("sub"), nil }
func (fakeEchoProtocol) decodeFrame(data []byte) ([]tradePrint, error) {
	if string(data) == "bad" {
		return nil, errSkipFrame
	}
	return []tradePrint{{Symbol: "X", Price: 1, Volume: 1}}, nil
}

// failNTimesServer accepts connections and immediately closes the first n
// of them without writing anything, simulating transient connect failures
// before finally staying up and streaming one frame.
func failNTimesServer(t *testing.T, failures int) (*httptest.Server, *atomic.Int32) {
	var attempts atomic.Int32
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		n := attempts.Add(1)
		if int(n) <= failures {
			conn.Close()
			return
		}
		_, _, _ = conn.ReadMessage() // consume the subscribe frame
		_ = conn.WriteMessage(websocket.TextMessage, []byte("tick"))
		time.Sleep(200 * time.Millisecond)
		conn.Close()
	}))
	return server, &attempts
}

func TestSubscribeReconnectsAfterTransientFailures(t *testing.T) {
	server, attempts := failNTimesServer(t, 2)
	defer server.Close()

	metricsReg := metrics.New(prometheus.NewRegistry())
	b := newBase(models.VenueBinance, fakeEchoProtocol{}, nil, zap.NewNop(), metricsReg)
	b.dial = redirectDialer{url: wsURL(server)}
	b.backoff.base = time.Millisecond
	b.backoff.cap = 10 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	sink := make(chan models.Tick, 4)
	done := make(chan error, 1)
	go func() { done <- b.Subscribe(ctx, []string{"X"}, sink) }()

	select {
	case tick := <-sink:
		assert.Equal(t, "X", tick.Symbol)
	case <-time.After(time.Second):
		t.Fatal("did not receive a tick after reconnects")
	}

	cancel()
	<-done

	assert.True(t, attempts.Load() >= 3, "expected at least 2 failed attempts before success")
	assert.True(t, b.Stats().Reconnects.Load() >= 2)
	assert.True(t, testutil.ToFloat64(metricsReg.ConnectorReconnects.WithLabelValues("binance")) >= 2)
}

func TestHandleFrameDropsTicksWhenSinkFull(t *testing.T) {
	metricsReg := metrics.New(prometheus.NewRegistry())
	b := newBase(models.VenueBinance, fakeEchoProtocol{}, nil, zap.NewNop(), metricsReg)
	sink := make(chan models.Tick, 1)
	sink <- models.Tick{} // fill it

	err := b.handleFrame([]byte("anything"), sink)
	require.NoError(t, err)
	assert.Equal(t, int64(1), b.Stats().TicksDropped.Load())
	assert.Equal(t, float64(1), testutil.ToFloat64(metricsReg.TickChannelDropped.WithLabelValues("binance")))
}

func TestHandleFrameSkipsUnparsableFrames(t *testing.T) {
	b := newBase(models.VenueBinance, fakeEchoProtocol{}, nil, zap.NewNop(), nil)
	sink := make(chan models.Tick, 1)

	err := b.handleFrame([]byte("bad"), sink)
	require.NoError(t, err)
	assert.Equal(t, int64(1), b.Stats().FramesSkipped.Load())
	assert.Len(t, sink, 0)
}

func TestHandleFrameReturnsSinkClosedOnPanic(t *testing.T) {
	b := newBase(models.VenueBinance, fakeEchoProtocol{}, nil, zap.NewNop(), nil)
	sink := make(chan models.Tick, 1)
	close(sink)

	err := b.handleFrame([]byte("anything"), sink)
	assert.ErrorIs(t, err, errSinkClosed)
}
