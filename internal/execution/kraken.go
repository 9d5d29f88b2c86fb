package execution

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
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

const krakenAPIURL = "https://api.kraken.com/0/private/AddOrder"
const krakenAddOrderPath = "/0/private/AddOrder"

// KrakenGateway signs and submits orders via Kraken's nonce-prefixed,
// HMAC-SHA512-over-SHA256-prehash signing scheme: the secret is
// base64-decoded, the nonce and POST body are SHA256-hashed together,
// and that digest is HMAC-SHA512'd alongside the request path.
type KrakenGateway struct {
	base
	apiKey    string
	apiSecret []byte // base64-decoded
	client    *http.Client
}

// NewKrakenGateway builds a Gateway for Kraken order submission. apiSecret
// is the base64-encoded secret Kraken issues; decoding happens once here.
// metricsReg may be nil, in which case tick-to-trade latency is not recorded.
func NewKrakenGateway(apiKey, apiSecretBase64 string, fills chan<- models.Fill, store TradeStore, b *bus.Bus, log *zap.Logger, metricsReg *metrics.Registry) (*KrakenGateway, error) {
	secret, err := base64.StdEncoding.DecodeString(apiSecretBase64)
	if err != nil {
		return nil, fmt.Errorf("execution: invalid kraken api secret: %w", err)
	}
	return &KrakenGateway{
		base:      newBase(models.VenueKraken, fills, store, b, log, metricsReg),
		apiKey:    apiKey,
		apiSecret: secret,
		client:    &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func (g *KrakenGateway) sign(path, nonce, body string) string {
	hasher := sha256.New()
	hasher.Write([]byte(nonce + body))
	prehash := hasher.Sum(nil)

	mac := hmac.New(sha512.New, g.apiSecret)
	mac.Write([]byte(path))
	mac.Write(prehash)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

type krakenAddOrderResponse struct {
	Error  []string `json:"error"`
	Result struct {
		TxID        []string `json:"txid"`
		Description struct {
			Order string `json:"order"`
		} `json:"descr"`
	} `json:"result"`
}

// SendOrder submits order to Kraken's AddOrder endpoint. AddOrder's
// response carries a txid but no realized execution price, so a fill
// price can only be honestly derived for Limit orders (the requested
// price is what Kraken fills at or better). A Market order has nothing
// to derive a fill price from, so it is refused with ErrUnsupported
// before anything is submitted.
func (g *KrakenGateway) SendOrder(ctx context.Context, order models.Order) (string, error) {
	if order.Symbol == "" || order.Amount <= 0 {
		return "", ErrMalformedOrder
	}
	if order.OrderType == models.Limit && order.Price == nil {
		return "", ErrMalformedOrder
	}
	if order.OrderType == models.Market {
		return "", fmt.Errorf("%w: kraken gateway reports no fill price for market orders", ErrUnsupported)
	}

	nonce := strconv.FormatInt(time.Now().UnixMilli(), 10)

	values := url.Values{}
	values.Set("nonce", nonce)
	values.Set("ordertype", string(order.OrderType))
	values.Set("type", strings.ToLower(string(order.Side)))
	values.Set("volume", strconv.FormatFloat(order.Amount, 'f', -1, 64))
	values.Set("pair", order.Symbol)
	if order.Price != nil {
		values.Set("price", strconv.FormatFloat(*order.Price, 'f', -1, 64))
	}
	body := values.Encode()

	signature := g.sign(krakenAddOrderPath, nonce, body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, krakenAPIURL, strings.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	req.Header.Set("API-Key", g.apiKey)
	req.Header.Set("API-Sign", signature)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	var parsed krakenAddOrderResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("%w: %v", ErrRejected, err)
	}
	if len(parsed.Error) > 0 {
		return "", fmt.Errorf("%w: %s", ErrRejected, strings.Join(parsed.Error, "; "))
	}
	if len(parsed.Result.TxID) == 0 {
		return "", fmt.Errorf("%w: no txid in response", ErrRejected)
	}

	price, err := krakenFillPrice(order)
	if err != nil {
		return "", err
	}

	venueOrderID := parsed.Result.TxID[0]
	if err := g.complete(ctx, order, price, order.Amount); err != nil {
		return "", err
	}
	return venueOrderID, nil
}

func krakenFillPrice(order models.Order) (float64, error) {
	if order.Price != nil {
		return *order.Price, nil
	}
	return 0, fmt.Errorf("%w: cannot derive a fill price for a market order without a venue report", ErrRejected)
}
