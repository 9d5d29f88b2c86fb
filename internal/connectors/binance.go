package connectors

import (
	"encoding/json"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/latencyx/core/internal/bus"
	"github.com/latencyx/core/internal/metrics"
	"github.com/latencyx/core/internal/models"
)

// binanceProtocol speaks Binance's combined-stream trade feed at
// wss://stream.binance.com:9443/stream, subscribing to <sym>@trade
// streams. Each frame wraps a single trade under "data".
type binanceProtocol struct{}

func (binanceProtocol) dialURL() string {
	return "wss://stream.binance.com:9443/stream"
}

func (binanceProtocol) subscribeMessage(symbols []string) ([]byte, error) {
	streams := make([]string, len(symbols))
	for i, s := range symbols {
		streams[i] = strings.ToLower(s) + "@trade"
	}
	// The dial URL carries no stream names, so this SUBSCRIBE control
	// frame is the only thing that subscribes the connection.
	return json.Marshal(map[string]any{
		"method": "SUBSCRIBE",
		"params": streams,
		"id":     1,
	})
}

type binanceTrade struct {
	Symbol   string `json:"s"`
	Price    string `json:"p"`
	Quantity string `json:"q"`
}

type binanceStreamFrame struct {
	Stream string       `json:"stream"`
	Data   binanceTrade `json:"data"`
}

func (binanceProtocol) decodeFrame(data []byte) ([]tradePrint, error) {
	var frame binanceStreamFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, errSkipFrame
	}
	if frame.Data.Symbol == "" {
		return nil, errSkipFrame
	}
	price, err := strconv.ParseFloat(frame.Data.Price, 64)
	if err != nil {
		return nil, errSkipFrame
	}
	qty, err := strconv.ParseFloat(frame.Data.Quantity, 64)
	if err != nil {
		return nil, errSkipFrame
	}
	return []tradePrint{{Symbol: frame.Data.Symbol, Price: price, Volume: qty}}, nil
}

// NewBinanceConnector builds a Connector for Binance's public trade feed.
// metricsReg may be nil, in which case reconnect/drop counts are not reported.
func NewBinanceConnector(b *bus.Bus, log *zap.Logger, metricsReg *metrics.Registry) Connector {
	return newBase(models.VenueBinance, binanceProtocol{}, b, log, metricsReg)
}
