package marketdata

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"
)

// MockProvider generates simulated snapshots for development and testing
// when no upstream market-data service is available. Prices drift with a
// small random walk; the indicator bundle stays internally consistent.
type MockProvider struct {
	mu     sync.Mutex
	prices map[string]float64
	rng    *rand.Rand
}

// NewMockProvider creates a mock provider with realistic base prices.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		prices: map[string]float64{
			"AAPL": 228.00,
			"TSLA": 245.00,
			"NVDA": 182.00,
			"AMD":  158.00,
			"META": 560.00,
			"AMZN": 205.00,
			"SPY":  585.00,
			"QQQ":  500.00,
		},
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// GetSnapshot returns a synthetic snapshot. Unknown symbols get a seeded
// price derived from the symbol so repeated calls stay coherent.
func (m *MockProvider) GetSnapshot(_ context.Context, symbol string) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	price, ok := m.prices[symbol]
	if !ok {
		seed := 20.0
		for _, r := range symbol {
			seed += float64(r)
		}
		price = math.Mod(seed, 480) + 20
	}

	// Random walk, +/-0.5% per call.
	price *= 1 + (m.rng.Float64()-0.5)/100
	m.prices[symbol] = price

	atr := price * 0.015
	vwap := price * (1 + (m.rng.Float64()-0.5)/50)
	ema9 := price * (1 + (m.rng.Float64()-0.45)/25)

	return &Snapshot{
		Symbol:     symbol,
		Price:      price,
		Bid:        price * 0.9995,
		Ask:        price * 1.0005,
		Volume:     float64(500_000 + m.rng.Intn(5_000_000)),
		VWAP:       vwap,
		EMA9:       ema9,
		EMA20:      ema9 * (1 + (m.rng.Float64()-0.5)/50),
		RSI14:      20 + m.rng.Float64()*60,
		RelVolume:  0.5 + m.rng.Float64()*3.5,
		ATR:        atr,
		Resistance: price * 1.02,
		Support:    price * 0.98,
		AsOf:       time.Now(),
	}, nil
}

// GetQualityScore returns a stable pseudo-random quality score per symbol.
func (m *MockProvider) GetQualityScore(_ context.Context, symbol string) (float64, bool) {
	sum := 0
	for _, r := range symbol {
		sum += int(r)
	}
	return float64(30 + sum%70), true
}
