package engine

import (
	"math"
	"testing"
)

func testInstruments() []Instrument {
	return []Instrument{
		{Symbol: "BTCUSDT", BasePrice: 50000, TickSize: 0.01, VolatilityMultiplier: 1.4},
		{Symbol: "ETHUSDT", BasePrice: 2600, TickSize: 0.01, VolatilityMultiplier: 1.6},
		{Symbol: "XBTUSD", BasePrice: 50100, TickSize: 0.01, VolatilityMultiplier: 1.3},
	}
}

func newTestMarket() (*MarketEngine, *RNG) {
	rng := NewRNG(42)
	return NewMarketEngine(rng, testInstruments()), rng
}

func TestInitialPrices(t *testing.T) {
	m, _ := newTestMarket()
	for _, inst := range testInstruments() {
		if got := m.Price(inst.Symbol); got != inst.BasePrice {
			t.Errorf("%s: initial price = %f, want %f", inst.Symbol, got, inst.BasePrice)
		}
	}
}

func TestPricePositivityOver100kTicks(t *testing.T) {
	m, _ := newTestMarket()
	insts := testInstruments()
	for i := 0; i < 100000; i++ {
		for _, inst := range insts {
			p := m.Tick(inst.Symbol)
			if p <= 0 {
				t.Fatalf("%s: price went non-positive at tick %d: %f", inst.Symbol, i, p)
			}
		}
	}
}

func TestTickSizeSnapping(t *testing.T) {
	m, _ := newTestMarket()
	insts := testInstruments()
	for i := 0; i < 1000; i++ {
		for _, inst := range insts {
			p := m.Tick(inst.Symbol)
			remainder := math.Mod(p, inst.TickSize)
			if remainder > 0.001 && remainder < inst.TickSize-0.001 {
				t.Fatalf("%s: price %f not snapped to tick size %f (remainder %f)", inst.Symbol, p, inst.TickSize, remainder)
			}
		}
	}
}

func TestSetPriceViaTickIsIndependentPerInstrument(t *testing.T) {
	m, _ := newTestMarket()
	before := m.Price("ETHUSDT")
	m.Tick("BTCUSDT")
	if got := m.Price("ETHUSDT"); got != before {
		t.Fatalf("ticking BTCUSDT moved ETHUSDT's price: %f -> %f", before, got)
	}
}

func TestAllPricesSnapshot(t *testing.T) {
	m, _ := newTestMarket()
	prices := m.AllPrices()
	if len(prices) != 3 {
		t.Fatalf("AllPrices returned %d entries, want 3", len(prices))
	}
	for k := range prices {
		prices[k] = 0
	}
	if m.Price("BTCUSDT") == 0 {
		t.Fatal("AllPrices snapshot mutation affected the engine")
	}
}

func TestTickUnknownSymbol(t *testing.T) {
	m, _ := newTestMarket()
	p := m.Tick("NOPE")
	if p != 0 {
		t.Fatalf("Tick with unknown symbol should return 0, got %f", p)
	}
}

func TestPriceUnknownSymbol(t *testing.T) {
	m, _ := newTestMarket()
	p := m.Price("NOPE")
	if p != 0 {
		t.Fatalf("Price with unknown symbol should return 0, got %f", p)
	}
}

func TestTickReturnsSameAsPrice(t *testing.T) {
	m, _ := newTestMarket()
	tickResult := m.Tick("BTCUSDT")
	priceResult := m.Price("BTCUSDT")
	if tickResult != priceResult {
		t.Fatalf("Tick returned %f but Price returned %f", tickResult, priceResult)
	}
}
