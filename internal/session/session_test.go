package session

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/latencyx/core/internal/bus"
	"github.com/latencyx/core/internal/models"
)

func TestHandlerStreamsBusEventsAsJSON(t *testing.T) {
	b := bus.New()
	mgr := NewManager(16, zap.NewNop())

	server := httptest.NewServer(Handler(mgr, b, zap.NewNop()))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Give the server goroutine time to register and subscribe before publishing.
	require.Eventually(t, func() bool { return mgr.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	b.Publish(models.TickEvent(models.Tick{Source: models.VenueBinance, Symbol: "BTC/USD", Price: 50000}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var got wireEvent
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, models.EventTick, got.Type)
}

func TestManagerUnregisterOnDisconnect(t *testing.T) {
	b := bus.New()
	mgr := NewManager(16, zap.NewNop())

	server := httptest.NewServer(Handler(mgr, b, zap.NewNop()))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return mgr.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	conn.Close()

	require.Eventually(t, func() bool { return mgr.ClientCount() == 0 }, time.Second, 10*time.Millisecond)
}

func TestEncodeEventSkipsUnknownType(t *testing.T) {
	_, ok := encodeEvent(models.PipelineEvent{Type: "bogus"})
	assert.False(t, ok)
}
