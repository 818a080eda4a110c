package marketdata

import (
	"context"
	"time"
)

// Snapshot is a read-only view of one symbol's market state with the
// pre-computed indicator bundle the detector consumes. Indicator computation
// happens upstream; this service never derives its own.
type Snapshot struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
	Volume float64 `json:"volume"`

	VWAP       float64 `json:"vwap"`
	EMA9       float64 `json:"ema9"`
	EMA20      float64 `json:"ema20"`
	RSI14      float64 `json:"rsi14"`
	RelVolume  float64 `json:"relative_volume"`
	ATR        float64 `json:"atr"`
	Resistance float64 `json:"resistance"`
	Support    float64 `json:"support"`

	AsOf time.Time `json:"as_of"`
}

// SnapshotProvider fetches market snapshots. Implementations must honor the
// context deadline so one unresponsive source cannot stall a scan batch.
type SnapshotProvider interface {
	GetSnapshot(ctx context.Context, symbol string) (*Snapshot, error)
}

// QualityProvider optionally supplies a 0-100 fundamental-quality score. The
// second return is false when no score is available for the symbol.
type QualityProvider interface {
	GetQualityScore(ctx context.Context, symbol string) (float64, bool)
}
