// Command backtester replays a CSV of historical ticks through one
// strategy, substituting backtest.RecordingGateway for every live
// execution gateway, and reports the orders and fabricated fills it
// recorded. It never touches a venue or the persistence layer.
package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/latencyx/core/internal/backtest"
	"github.com/latencyx/core/internal/models"
	"github.com/latencyx/core/internal/strategies"
)

func main() {
	var ticksPath, strategyName string
	var venue, venue2 string
	var spread, quantity, minSpread float64
	var assetA, assetB, assetC string
	var tradeAmountB, minProfit float64

	root := &cobra.Command{
		Use:   "backtester",
		Short: "Replay historical ticks through a strategy against recording gateways",
		RunE: func(cmd *cobra.Command, args []string) error {
			ticks, err := loadTicks(ticksPath)
			if err != nil {
				return err
			}
			fmt.Printf("loaded %d ticks from %s\n", len(ticks), ticksPath)

			gw1 := backtest.New(models.Venue(venue), nil)

			var strat strategies.Strategy
			var gw2 *backtest.RecordingGateway

			switch strategyName {
			case "arbitrage":
				gw2 = backtest.New(models.Venue(venue2), nil)
				strat = strategies.NewSpreadArbitrage(models.Venue(venue), models.Venue(venue2), gw1, gw2, minSpread, quantity, nil)
			case "marketmaker":
				strat = strategies.NewMarketMaker(models.Venue(venue), assetA, gw1, spread, quantity, nil)
			case "triangular":
				strat = strategies.NewTriangularArbitrage(models.Venue(venue), gw1, assetA, assetB, assetC, tradeAmountB, minProfit, nil, zap.NewNop())
			default:
				return fmt.Errorf("backtester: --strategy must be one of arbitrage|marketmaker|triangular, got %q", strategyName)
			}

			ctx := context.Background()
			fmt.Println("--- running backtest ---")
			for _, tick := range ticks {
				if err := strat.OnTick(ctx, tick); err != nil {
					fmt.Fprintf(os.Stderr, "strategy error on tick %+v: %v\n", tick, err)
				}
			}
			// Triangular arbitrage fires its legs on a detached goroutine;
			// give it a moment to land before the report is printed.
			if strategyName == "triangular" {
				time.Sleep(50 * time.Millisecond)
			}
			fmt.Println("--- backtest finished ---")

			report("gateway 1", venue, gw1.Records())
			if gw2 != nil {
				report("gateway 2", venue2, gw2.Records())
			}
			return nil
		},
	}

	root.Flags().StringVar(&ticksPath, "ticks", "data/ticks.csv", "path to a CSV of historical ticks")
	root.Flags().StringVar(&strategyName, "strategy", "", "strategy to backtest: arbitrage|marketmaker|triangular")
	root.Flags().StringVar(&venue, "venue", "binance", "venue (or venue1, for arbitrage) to simulate")
	root.Flags().StringVar(&venue2, "venue2", "kraken", "second venue to simulate, for arbitrage")
	root.Flags().Float64Var(&spread, "spread", 0.01, "market maker quote spread")
	root.Flags().Float64Var(&quantity, "quantity", 1.0, "order quantity")
	root.Flags().Float64Var(&minSpread, "min-spread", 100, "spread arbitrage trigger threshold")
	root.Flags().StringVar(&assetA, "asset-a", "", "triangular arbitrage asset A, or market maker's symbol")
	root.Flags().StringVar(&assetB, "asset-b", "", "triangular arbitrage asset B")
	root.Flags().StringVar(&assetC, "asset-c", "", "triangular arbitrage asset C")
	root.Flags().Float64Var(&tradeAmountB, "trade-amount-b", 1.0, "triangular arbitrage round-trip notional in asset B")
	root.Flags().Float64Var(&minProfit, "min-profit", 0.001, "triangular arbitrage profit threshold")
	root.MarkFlagRequired("strategy")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "backtester:", err)
		os.Exit(1)
	}
}

// loadTicks reads a CSV with header "source,symbol,price,volume,received_at"
// (received_at is RFC3339; blank defaults to now).
func loadTicks(path string) ([]models.Tick, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("backtester: open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("backtester: read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}

	var ticks []models.Tick
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("backtester: read record: %w", err)
		}
		if len(record) == 1 && record[0] == "" {
			continue
		}

		price, err := strconv.ParseFloat(record[col["price"]], 64)
		if err != nil {
			return nil, fmt.Errorf("backtester: parse price: %w", err)
		}
		var volume float64
		if i, ok := col["volume"]; ok && record[i] != "" {
			volume, _ = strconv.ParseFloat(record[i], 64)
		}
		receivedAt := time.Now().UTC()
		if i, ok := col["received_at"]; ok && record[i] != "" {
			if t, err := time.Parse(time.RFC3339, record[i]); err == nil {
				receivedAt = t
			}
		}

		ticks = append(ticks, models.Tick{
			Source:     models.Venue(record[col["source"]]),
			Symbol:     record[col["symbol"]],
			Price:      price,
			Volume:     volume,
			ReceivedAt: receivedAt,
		})
	}
	return ticks, nil
}

func report(label, venue string, records []backtest.Record) {
	fmt.Printf("\n--- backtest report: %s (%s) ---\n", label, venue)
	fmt.Printf("total orders: %d\n", len(records))
	for _, rec := range records {
		fmt.Printf("  - %s %s qty=%.8f fill_price=%.8f\n", rec.Order.Side, rec.Order.Symbol, rec.Fill.Quantity, rec.Fill.Price)
	}
}
