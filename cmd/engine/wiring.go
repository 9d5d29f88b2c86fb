package main

import (
	"fmt"
	"sort"

	"github.com/mr-tron/base58"
	"go.uber.org/zap"

	"github.com/latencyx/core/internal/bus"
	"github.com/latencyx/core/internal/config"
	"github.com/latencyx/core/internal/connectors"
	"github.com/latencyx/core/internal/execution"
	"github.com/latencyx/core/internal/metrics"
	"github.com/latencyx/core/internal/models"
	"github.com/latencyx/core/internal/settlement"
	"github.com/latencyx/core/internal/strategies"
	"github.com/latencyx/core/internal/supervisor"
)

// venueNames returns the union of cfg.Venues' and cfg.Settlement's keys,
// sorted, so wiring that picks "the first venue" or "the first two
// venues" is deterministic and a cluster-only entry (no market-data
// connector, e.g. a Solana settlement endpoint) is still selectable for
// a strategy's execution side.
func venueNames(cfg *config.Config) []string {
	seen := make(map[string]bool, len(cfg.Venues)+len(cfg.Settlement))
	for name := range cfg.Venues {
		seen[name] = true
	}
	for name := range cfg.Settlement {
		seen[name] = true
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// buildConnectorSpecs starts one market-data connector per configured
// venue this build knows how to speak to; an unrecognized venue name
// only disables its market data, it never fails startup, since a
// deployment may list a settlement-only or execution-only entry.
// metricsReg is threaded into every connector so its reconnect/drop
// counters actually reach Prometheus instead of only living in Stats().
func buildConnectorSpecs(cfg *config.Config, b *bus.Bus, log *zap.Logger, metricsReg *metrics.Registry) []supervisor.ConnectorSpec {
	var specs []supervisor.ConnectorSpec
	for _, name := range venueNames(cfg) {
		venue := cfg.Venues[name]
		var conn connectors.Connector
		switch name {
		case "binance":
			conn = connectors.NewBinanceConnector(b, log, metricsReg)
		case "kraken":
			conn = connectors.NewKrakenConnector(b, log, metricsReg)
		case "coinbase":
			conn = connectors.NewCoinbaseConnector(b, log, metricsReg)
		default:
			log.Warn("no connector for configured venue, market data disabled", zap.String("venue", name))
			continue
		}
		specs = append(specs, supervisor.ConnectorSpec{Connector: conn, Symbols: venue.Symbols})
	}
	return specs
}

// buildExecutionGateway returns the venue-specific Gateway for name, or
// an error if this build has no execution support for it (e.g. Coinbase
// is wired as a market-data-only connector). A name present only in
// cfg.Settlement (no centralized-exchange credentials at all) is settled
// on-chain instead of over a venue REST API. metricsReg is threaded into
// the gateway so tick-to-trade latency reaches Prometheus.
func buildExecutionGateway(cfg *config.Config, name string, fills chan<- models.Fill, store execution.TradeStore, b *bus.Bus, log *zap.Logger, metricsReg *metrics.Registry) (execution.Gateway, error) {
	switch name {
	case "binance":
		creds := cfg.Venues[name]
		return execution.NewBinanceGateway(creds.APIKey, creds.APISecret, fills, store, b, log, metricsReg), nil
	case "kraken":
		creds := cfg.Venues[name]
		return execution.NewKrakenGateway(creds.APIKey, creds.APISecret, fills, store, b, log, metricsReg)
	default:
		if sc, ok := cfg.Settlement[name]; ok {
			resolve, err := settlementResolver(sc)
			if err != nil {
				return nil, err
			}
			return settlement.NewGateway(sc.PrivateKey, sc.Cluster, resolve, fills, store, b, log, metricsReg)
		}
		return nil, fmt.Errorf("engine: no execution gateway for venue %q", name)
	}
}

// settlementResolver decodes sc.Destinations up front, so a malformed
// address in the config fails at startup rather than on an order's
// first settlement attempt.
func settlementResolver(sc config.SettlementCredentials) (settlement.Resolver, error) {
	destinations := make(map[string][32]byte, len(sc.Destinations))
	for symbol, addr := range sc.Destinations {
		raw, err := base58.Decode(addr)
		if err != nil || len(raw) != 32 {
			return nil, fmt.Errorf("engine: settlement destination for %q is not a valid base58 32-byte address", symbol)
		}
		var dest [32]byte
		copy(dest[:], raw)
		destinations[symbol] = dest
	}
	return func(symbol string) ([32]byte, bool) {
		dest, ok := destinations[symbol]
		return dest, ok
	}, nil
}

// buildStrategy wires the strategy named by strategyName against
// cfg.Strategy's parameters and the venues the strategy needs.
func buildStrategy(strategyName string, cfg *config.Config, fills chan<- models.Fill, store execution.TradeStore, b *bus.Bus, log *zap.Logger, metricsReg *metrics.Registry) (strategies.Strategy, error) {
	names := venueNames(cfg)

	switch strategyName {
	case "arbitrage":
		if len(names) < 2 {
			return nil, fmt.Errorf("engine: spread arbitrage requires two venues, got %d", len(names))
		}
		v1, v2 := names[0], names[1]
		gw1, err := buildExecutionGateway(cfg, v1, fills, store, b, log, metricsReg)
		if err != nil {
			return nil, err
		}
		gw2, err := buildExecutionGateway(cfg, v2, fills, store, b, log, metricsReg)
		if err != nil {
			return nil, err
		}
		return strategies.NewSpreadArbitrage(models.Venue(v1), models.Venue(v2), gw1, gw2, cfg.Strategy.MinSpread, cfg.Strategy.Quantity, metricsReg), nil

	case "marketmaker":
		if len(names) < 1 {
			return nil, fmt.Errorf("engine: market maker requires one venue, got 0")
		}
		v := names[0]
		gw, err := buildExecutionGateway(cfg, v, fills, store, b, log, metricsReg)
		if err != nil {
			return nil, err
		}
		return strategies.NewMarketMaker(models.Venue(v), cfg.Strategy.Symbol, gw, cfg.Strategy.Spread, cfg.Strategy.Quantity, metricsReg), nil

	case "triangular":
		if len(names) < 1 {
			return nil, fmt.Errorf("engine: triangular arbitrage requires one venue, got 0")
		}
		v := names[0]
		gw, err := buildExecutionGateway(cfg, v, fills, store, b, log, metricsReg)
		if err != nil {
			return nil, err
		}
		return strategies.NewTriangularArbitrage(models.Venue(v), gw,
			cfg.Strategy.AssetA, cfg.Strategy.AssetB, cfg.Strategy.AssetC,
			cfg.Strategy.TradeAmountB, cfg.Strategy.MinProfitThreshold, metricsReg, log), nil

	default:
		return nil, fmt.Errorf("engine: unknown strategy %q", strategyName)
	}
}
