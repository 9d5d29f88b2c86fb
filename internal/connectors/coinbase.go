package connectors

import (
	"encoding/json"
	"strconv"

	"go.uber.org/zap"

	"github.com/latencyx/core/internal/bus"
	"github.com/latencyx/core/internal/metrics"
	"github.com/latencyx/core/internal/models"
)

// coinbaseProtocol speaks Coinbase Advanced Trade's "ticker" channel:
// each frame carries a batch of events, each event a batch of tickers.
type coinbaseProtocol struct{}

func (coinbaseProtocol) dialURL() string {
	return "wss://advanced-trade-ws.coinbase.com"
}

func (coinbaseProtocol) subscribeMessage(symbols []string) ([]byte, error) {
	return json.Marshal(map[string]any{
		"type":        "subscribe",
		"channel":     "ticker",
		"product_ids": symbols,
	})
}

type coinbaseTicker struct {
	ProductID string `json:"product_id"`
	Price     string `json:"price"`
	Volume24h string `json:"volume_24_h"`
}

type coinbaseEvent struct {
	Tickers []coinbaseTicker `json:"tickers"`
}

type coinbaseFrame struct {
	Channel string          `json:"channel"`
	Events  []coinbaseEvent `json:"events"`
}

func (coinbaseProtocol) decodeFrame(data []byte) ([]tradePrint, error) {
	var frame coinbaseFrame
	if err := json.Unmarshal(data, &frame); err != nil || frame.Channel != "ticker" {
		return nil, errSkipFrame
	}

	var prints []tradePrint
	for _, evt := range frame.Events {
		for _, t := range evt.Tickers {
			if t.ProductID == "" {
				continue
			}
			price, err := strconv.ParseFloat(t.Price, 64)
			if err != nil {
				continue
			}
			volume, err := strconv.ParseFloat(t.Volume24h, 64)
			if err != nil {
				continue
			}
			prints = append(prints, tradePrint{Symbol: t.ProductID, Price: price, Volume: volume})
		}
	}
	if len(prints) == 0 {
		return nil, errSkipFrame
	}
	return prints, nil
}

// NewCoinbaseConnector builds a Connector for Coinbase's public ticker feed.
// metricsReg may be nil, in which case reconnect/drop counts are not reported.
func NewCoinbaseConnector(b *bus.Bus, log *zap.Logger, metricsReg *metrics.Registry) Connector {
	return newBase(models.VenueCoinbase, coinbaseProtocol{}, b, log, metricsReg)
}
