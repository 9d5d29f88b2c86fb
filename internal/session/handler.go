package session

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/latencyx/core/internal/bus"
	"github.com/latencyx/core/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wireEvent is the dashboard-facing JSON envelope: { "type": ..., "data": ... }.
type wireEvent struct {
	Type models.EventType `json:"type"`
	Data any              `json:"data"`
}

func encodeEvent(e models.PipelineEvent) ([]byte, bool) {
	var data any
	switch e.Type {
	case models.EventTick:
		data = e.Tick
	case models.EventTrade:
		data = e.Trade
	case models.EventLog:
		data = e.Log
	case models.EventLatencyUpdate:
		data = e.Latency
	default:
		return nil, false
	}
	out, err := json.Marshal(wireEvent{Type: e.Type, Data: data})
	if err != nil {
		return nil, false
	}
	return out, true
}

// Handler upgrades a connection and streams every bus event to the
// client as JSON until it disconnects.
func Handler(mgr *Manager, b *bus.Bus, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := mgr.Register(conn, b)
		go writePump(client)
		go readPump(client, mgr)
		go relayPump(client)
	}
}

// relayPump drains the client's bus subscription into its send channel,
// JSON-encoding each event.
func relayPump(c *Client) {
	for {
		select {
		case <-c.Done():
			return
		case e, ok := <-c.Sub.Events():
			if !ok {
				return
			}
			if data, ok := encodeEvent(e); ok {
				c.Send(data)
			}
		}
	}
}

// readPump only watches for disconnects and keeps the read deadline
// alive via pong frames; the dashboard protocol has no client->server
// control messages.
func readPump(c *Client, mgr *Manager) {
	defer mgr.Unregister(c)

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writePump(c *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case data, ok := <-c.SendCh():
			if !ok {
				return
			}
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.Done():
			return
		}
	}
}
