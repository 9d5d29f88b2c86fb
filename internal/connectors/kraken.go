package connectors

import (
	"encoding/json"
	"strconv"

	"go.uber.org/zap"

	"github.com/latencyx/core/internal/bus"
	"github.com/latencyx/core/internal/metrics"
	"github.com/latencyx/core/internal/models"
)

// krakenProtocol speaks Kraken's public trade WebSocket: subscribing
// sends a control frame, and trade frames arrive as a heterogeneous JSON
// array: [channelID, [[price, volume, time, side, orderType, misc], ...], "trade", pair].
type krakenProtocol struct{}

func (krakenProtocol) dialURL() string { return "wss://ws.kraken.com/" }

func (krakenProtocol) subscribeMessage(symbols []string) ([]byte, error) {
	return json.Marshal(map[string]any{
		"event": "subscribe",
		"pair":  symbols,
		"subscription": map[string]string{
			"name": "trade",
		},
	})
}

func (krakenProtocol) decodeFrame(data []byte) ([]tradePrint, error) {
	var frame []json.RawMessage
	if err := json.Unmarshal(data, &frame); err != nil || len(frame) < 4 {
		return nil, errSkipFrame
	}

	var channel string
	if err := json.Unmarshal(frame[2], &channel); err != nil || channel != "trade" {
		return nil, errSkipFrame
	}

	var pair string
	if err := json.Unmarshal(frame[3], &pair); err != nil {
		return nil, errSkipFrame
	}

	var trades [][]string
	if err := json.Unmarshal(frame[1], &trades); err != nil {
		return nil, errSkipFrame
	}

	prints := make([]tradePrint, 0, len(trades))
	for _, t := range trades {
		if len(t) < 2 {
			continue
		}
		price, err := strconv.ParseFloat(t[0], 64)
		if err != nil {
			continue
		}
		volume, err := strconv.ParseFloat(t[1], 64)
		if err != nil {
			continue
		}
		prints = append(prints, tradePrint{Symbol: pair, Price: price, Volume: volume})
	}
	if len(prints) == 0 {
		return nil, errSkipFrame
	}
	return prints, nil
}

// NewKrakenConnector builds a Connector for Kraken's public trade feed.
// metricsReg may be nil, in which case reconnect/drop counts are not reported.
func NewKrakenConnector(b *bus.Bus, log *zap.Logger, metricsReg *metrics.Registry) Connector {
	return newBase(models.VenueKraken, krakenProtocol{}, b, log, metricsReg)
}
