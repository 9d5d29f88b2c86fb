package execution

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/latencyx/core/internal/bus"
	"github.com/latencyx/core/internal/metrics"
	"github.com/latencyx/core/internal/models"
)

const binanceAPIURL = "https://api.binance.com/api/v3/order"

// BinanceGateway signs and submits orders via Binance's canonical
// query-string HMAC-SHA256 signing scheme.
type BinanceGateway struct {
	base
	apiKey    string
	apiSecret string
	client    *http.Client
}

// NewBinanceGateway builds a Gateway for Binance order submission.
// metricsReg may be nil, in which case tick-to-trade latency is not recorded.
func NewBinanceGateway(apiKey, apiSecret string, fills chan<- models.Fill, store TradeStore, b *bus.Bus, log *zap.Logger, metricsReg *metrics.Registry) *BinanceGateway {
	return &BinanceGateway{
		base:      newBase(models.VenueBinance, fills, store, b, log, metricsReg),
		apiKey:    apiKey,
		apiSecret: apiSecret,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (g *BinanceGateway) sign(query string) string {
	mac := hmac.New(sha256.New, []byte(g.apiSecret))
	mac.Write([]byte(query))
	return hex.EncodeToString(mac.Sum(nil))
}

// binanceOrderFill is one element of the "fills" array Binance returns
// for a market order execution.
type binanceOrderFill struct {
	Price string `json:"price"`
	Qty   string `json:"qty"`
}

type binanceOrderResponse struct {
	OrderID     int64              `json:"orderId"`
	Status      string             `json:"status"`
	Price       string             `json:"price"`
	ExecutedQty string             `json:"executedQty"`
	Fills       []binanceOrderFill `json:"fills"`
}

type binanceErrorResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// SendOrder submits order to Binance and, on a filled response, runs the
// shared post-submission side effects.
func (g *BinanceGateway) SendOrder(ctx context.Context, order models.Order) (string, error) {
	if order.Symbol == "" || order.Amount <= 0 {
		return "", ErrMalformedOrder
	}
	if order.OrderType == models.Limit && order.Price == nil {
		return "", ErrMalformedOrder
	}

	values := url.Values{}
	values.Set("symbol", order.Symbol)
	values.Set("side", strings.ToUpper(string(order.Side)))
	values.Set("type", strings.ToUpper(string(order.OrderType)))
	values.Set("quantity", strconv.FormatFloat(order.Amount, 'f', -1, 64))
	if order.Price != nil {
		values.Set("price", strconv.FormatFloat(*order.Price, 'f', -1, 64))
	}
	values.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))

	query := values.Encode()
	query += "&signature=" + g.sign(query)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, binanceAPIURL, bytes.NewBufferString(query))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	req.Header.Set("X-MBX-APIKEY", g.apiKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr binanceErrorResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Msg != "" {
			return "", fmt.Errorf("%w: %s", ErrRejected, apiErr.Msg)
		}
		return "", fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
	}

	var parsed binanceOrderResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("%w: %v", ErrRejected, err)
	}

	price, qty, err := binanceFillPrice(parsed, order)
	if err != nil {
		return "", err
	}

	venueOrderID := strconv.FormatInt(parsed.OrderID, 10)
	if err := g.complete(ctx, order, price, qty); err != nil {
		return "", err
	}
	return venueOrderID, nil
}

// binanceFillPrice extracts an actual execution price from Binance's
// response: the volume-weighted average of the fills array for a market
// order, or the executedQty/price pair for a limit order that was
// filled immediately. It never falls back to the order's requested
// price — an order without a real fill is an error, not a guess.
func binanceFillPrice(resp binanceOrderResponse, order models.Order) (price, qty float64, err error) {
	if len(resp.Fills) > 0 {
		var notional, totalQty float64
		for _, f := range resp.Fills {
			p, perr := strconv.ParseFloat(f.Price, 64)
			q, qerr := strconv.ParseFloat(f.Qty, 64)
			if perr != nil || qerr != nil {
				continue
			}
			notional += p * q
			totalQty += q
		}
		if totalQty > 0 {
			return notional / totalQty, totalQty, nil
		}
	}

	if resp.Status == "FILLED" && resp.Price != "" && resp.ExecutedQty != "" {
		p, perr := strconv.ParseFloat(resp.Price, 64)
		q, qerr := strconv.ParseFloat(resp.ExecutedQty, 64)
		if perr == nil && qerr == nil && q > 0 {
			return p, q, nil
		}
	}

	return 0, 0, fmt.Errorf("%w: no fill price in response", ErrRejected)
}
