// Package settlement executes orders on-chain for venues where "sending
// an order" means locally signing and broadcasting a Solana transaction
// rather than calling a centralized exchange's REST API. It satisfies
// the same execution.Gateway contract as the centralized venues so the
// pipeline's strategies and supervisor never need to know the
// difference.
package settlement

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mr-tron/base58"
	"go.uber.org/zap"

	"github.com/latencyx/core/internal/bus"
	"github.com/latencyx/core/internal/execution"
	"github.com/latencyx/core/internal/metrics"
	"github.com/latencyx/core/internal/models"
)

// systemProgramID is the all-zero Solana system program address.
var systemProgramID = [32]byte{}

const transferInstructionIndex uint32 = 2

// Resolver maps an order's symbol to the destination account a
// settlement transfer is sent to. The engine's configuration supplies
// one resolver per deployment; an unknown symbol is refused with
// execution.ErrUnsupported.
type Resolver func(symbol string) (destination [32]byte, ok bool)

// Gateway settles orders by signing and submitting a system-program
// transfer with a local keypair against a Solana RPC endpoint
// (Helius-compatible: any standard JSON-RPC getLatestBlockhash /
// sendTransaction endpoint works).
type Gateway struct {
	venue   models.Venue
	signer  ed25519.PrivateKey
	pubkey  [32]byte
	rpcURL  string
	resolve Resolver
	fills   chan<- models.Fill
	store   execution.TradeStore
	bus     *bus.Bus
	log     *zap.Logger
	client  *http.Client
	metrics *metrics.Registry
}

// NewGateway builds a settlement Gateway. privateKeyBase58 is a
// Solana-convention 64-byte secret key (32-byte seed || 32-byte public
// key) base58-encoded, the same format wallet exports use. metricsReg
// may be nil, in which case tick-to-trade latency is not recorded.
func NewGateway(privateKeyBase58, rpcURL string, resolve Resolver, fills chan<- models.Fill, store execution.TradeStore, b *bus.Bus, log *zap.Logger, metricsReg *metrics.Registry) (*Gateway, error) {
	raw, err := base58.Decode(privateKeyBase58)
	if err != nil {
		return nil, fmt.Errorf("settlement: invalid private key: %w", err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("settlement: private key must be %d bytes, got %d", ed25519.PrivateKeySize, len(raw))
	}
	signer := ed25519.PrivateKey(raw)
	var pubkey [32]byte
	copy(pubkey[:], signer.Public().(ed25519.PublicKey))

	return &Gateway{
		venue:   models.VenueSolana,
		signer:  signer,
		pubkey:  pubkey,
		rpcURL:  rpcURL,
		resolve: resolve,
		fills:   fills,
		store:   store,
		bus:     b,
		log:     log,
		client:  &http.Client{Timeout: 15 * time.Second},
		metrics: metricsReg,
	}, nil
}

func (g *Gateway) Venue() models.Venue { return g.venue }

// SendOrder signs and submits a transfer settling order on-chain. The
// order's Price field carries the settlement valuation (there is no
// venue quote to fall back on for a direct on-chain transfer); a Market
// order with no price is malformed here, unlike a centralized venue
// where the venue itself supplies the price.
func (g *Gateway) SendOrder(ctx context.Context, order models.Order) (string, error) {
	if order.Symbol == "" || order.Amount <= 0 || order.Price == nil {
		return "", execution.ErrMalformedOrder
	}
	destination, ok := g.resolve(order.Symbol)
	if !ok {
		return "", fmt.Errorf("%w: no settlement destination configured for %s", execution.ErrUnsupported, order.Symbol)
	}

	lamports := uint64(order.Amount * 1e9)

	blockhash, err := g.getLatestBlockhash(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", execution.ErrUnreachable, err)
	}

	tx := buildSignedTransferTx(g.signer, g.pubkey, destination, lamports, blockhash)

	sig, err := g.sendTransaction(ctx, tx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", execution.ErrRejected, err)
	}

	return sig, g.complete(ctx, order, sig)
}

// complete runs the same side-effect chain execution.Gateway venues run,
// reimplemented here because the shared implementation in package
// execution is unexported.
func (g *Gateway) complete(ctx context.Context, order models.Order, _ string) error {
	executedAt := time.Now().UTC()

	if order.TriggeringTick != nil {
		latencyUs := executedAt.Sub(order.TriggeringTick.ReceivedAt).Microseconds()
		g.bus.Publish(models.LatencyEvent(models.LatencyUpdate{
			OrderID:   order.ID,
			Venue:     g.venue,
			LatencyUs: latencyUs,
		}))
		if g.metrics != nil {
			g.metrics.TickToTradeUs.WithLabelValues(string(g.venue)).Observe(float64(latencyUs))
		}
	}

	fill := models.Fill{
		OrderID:    order.ID,
		Symbol:     order.Symbol,
		Side:       order.Side,
		Price:      *order.Price,
		Quantity:   order.Amount,
		Source:     g.venue,
		ExecutedAt: executedAt,
	}

	select {
	case g.fills <- fill:
	case <-ctx.Done():
		return ctx.Err()
	}

	trade := models.NewTrade(fill)
	if err := g.store.SaveTrade(ctx, trade); err != nil {
		g.log.Error("failed to persist settlement trade", zap.Error(err))
	}
	g.bus.Publish(models.TradeEvent(trade))
	return nil
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type blockhashResponse struct {
	Result struct {
		Value struct {
			Blockhash string `json:"blockhash"`
		} `json:"value"`
	} `json:"result"`
	Error *rpcError `json:"error"`
}

func (g *Gateway) getLatestBlockhash(ctx context.Context) ([32]byte, error) {
	var out [32]byte
	req := rpcRequest{JSONRPC: "2.0", ID: 1, Method: "getLatestBlockhash", Params: []any{}}
	var resp blockhashResponse
	if err := g.call(ctx, req, &resp); err != nil {
		return out, err
	}
	if resp.Error != nil {
		return out, fmt.Errorf("rpc error: %s", resp.Error.Message)
	}
	decoded, err := base58.Decode(resp.Result.Value.Blockhash)
	if err != nil || len(decoded) != 32 {
		return out, fmt.Errorf("unexpected blockhash encoding")
	}
	copy(out[:], decoded)
	return out, nil
}

type sendTxResponse struct {
	Result string    `json:"result"`
	Error  *rpcError `json:"error"`
}

func (g *Gateway) sendTransaction(ctx context.Context, tx []byte) (string, error) {
	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "sendTransaction",
		Params:  []any{base64.StdEncoding.EncodeToString(tx), map[string]string{"encoding": "base64"}},
	}
	var resp sendTxResponse
	if err := g.call(ctx, req, &resp); err != nil {
		return "", err
	}
	if resp.Error != nil {
		return "", fmt.Errorf("rpc error: %s", resp.Error.Message)
	}
	if resp.Result == "" {
		return "", fmt.Errorf("empty transaction signature in response")
	}
	return resp.Result, nil
}

func (g *Gateway) call(ctx context.Context, body rpcRequest, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.rpcURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(respBody, out)
}
