// Package detector evaluates one symbol's market snapshot against the
// strategy catalog and produces probability-scored forming setups. Detection
// is pure and deterministic given its inputs; all market data arrives
// pre-computed in the snapshot.
package detector

import (
	"fmt"
	"math"
	"time"

	"setup-scanner/internal/catalog"
	"setup-scanner/internal/marketdata"
	"setup-scanner/internal/predictor"
	"setup-scanner/internal/setups"
)

// Sub-factor caps. The summed probability is clamped to MaxProbability; the
// detector never claims near-certainty.
const (
	extensionCap = 0.25
	volumeCap    = 0.25
	rsiCap       = 0.20
	contextCap   = 0.10
	proximityCap = 0.20

	// MaxProbability bounds the summed trigger probability.
	MaxProbability = 0.95

	// proximityRangePct is the distance-to-trigger, in percent, beyond which
	// the proximity bonus reaches zero.
	proximityRangePct = 5.0
)

// Minutes-to-trigger heuristic: price covers about 30% of one ATR per
// 5-minute bar. Empirical constant preserved from historical calibration;
// treat the resulting estimate as a pacing hint, not a forecast.
const (
	ATRFractionPerBar = 0.30
	BarMinutes        = 5.0
	MinMinutesToTrig  = 2
	MaxMinutesToTrig  = 120
)

// Detector evaluates snapshots against the strategy catalog.
type Detector struct{}

// New returns a Detector.
func New() *Detector {
	return &Detector{}
}

// Detect evaluates one setup type against one symbol's snapshot. It returns
// (nil, nil) when the symbol does not qualify, including when the snapshot
// is unusable (ATR or anchor missing), which is treated as "no setup" rather
// than an error. fundScore is the optional 0-100 fundamental-quality score;
// pass fundOK=false when unavailable.
func (d *Detector) Detect(symbol string, t catalog.SetupType, snap *marketdata.Snapshot, fundScore float64, fundOK bool) (*setups.FormingSetup, error) {
	crit, ok := catalog.CriteriaFor(t)
	if !ok {
		return nil, fmt.Errorf("%w: %v", catalog.ErrUnknownSetupType, t)
	}
	if snap == nil || snap.Price <= 0 {
		return nil, nil
	}
	// Division-by-zero guard: a non-positive ATR makes every downstream
	// level nonsensical.
	if snap.ATR <= 0 {
		return nil, nil
	}

	anchor := anchorPrice(t, snap)
	if anchor <= 0 {
		return nil, nil
	}

	extension := (snap.Price - anchor) / anchor * 100
	if extension < crit.MinExtensionPct || extension > crit.MaxExtensionPct {
		return nil, nil
	}

	// Missing volume data must not crash the detector: treat relative volume
	// as neutral and let the volume sub-factor contribute nothing.
	relVol := snap.RelVolume
	volumeKnown := relVol > 0 && snap.Volume > 0
	if !volumeKnown {
		relVol = 1.0
	}

	trigger := triggerPrice(t, anchor, snap.Price, snap.ATR)
	if trigger <= 0 {
		return nil, nil
	}
	distancePct := math.Abs(trigger-snap.Price) / snap.Price * 100

	var probability float64
	var notes []string

	// Extension magnitude: deeper inside the band scores higher, starting at
	// half the cap at the near edge.
	minAbs := math.Min(math.Abs(crit.MinExtensionPct), math.Abs(crit.MaxExtensionPct))
	maxAbs := math.Max(math.Abs(crit.MinExtensionPct), math.Abs(crit.MaxExtensionPct))
	depth := 0.0
	if maxAbs > minAbs {
		depth = clamp01((math.Abs(extension) - minAbs) / (maxAbs - minAbs))
	}
	extScore := extensionCap/2 + extensionCap/2*depth
	probability += extScore
	notes = append(notes, fmt.Sprintf("extension %.2f%% from %s anchor", extension, anchorName(t)))

	// Volume confirmation against the minimum/ideal relative-volume band.
	if volumeKnown && relVol >= crit.MinRelVolume {
		volScore := volumeCap * clamp01((relVol-crit.MinRelVolume)/(crit.IdealRelVolume-crit.MinRelVolume))
		probability += volScore
		notes = append(notes, fmt.Sprintf("relative volume %.1fx confirms participation", relVol))
	}

	// Momentum oscillator inside the family's expected zone.
	switch {
	case snap.RSI14 >= crit.RSIMin && snap.RSI14 <= crit.RSIMax:
		probability += rsiCap
		notes = append(notes, fmt.Sprintf("RSI %.0f inside %s zone [%.0f-%.0f]", snap.RSI14, t, crit.RSIMin, crit.RSIMax))
	case snap.RSI14 >= crit.RSIMin-5 && snap.RSI14 <= crit.RSIMax+5:
		probability += rsiCap / 2
		notes = append(notes, fmt.Sprintf("RSI %.0f near %s zone", snap.RSI14, t))
	}

	// Confirming positional context.
	if ok, note := positionalContext(t, snap); ok {
		probability += contextCap
		notes = append(notes, note)
	}

	// Proximity bonus grows as the distance to trigger shrinks.
	proxScore := proximityCap * clamp01(1-distancePct/proximityRangePct)
	if proxScore > 0 {
		probability += proxScore
		notes = append(notes, fmt.Sprintf("%.2f%% from trigger %.2f", distancePct, trigger))
	}

	probability = math.Min(probability, MaxProbability)

	// Pacing hint: constant fraction of one ATR covered per bar.
	atrPerMinute := ATRFractionPerBar * snap.ATR / BarMinutes
	minutes := int(math.Round(math.Abs(trigger-snap.Price) / atrPerMinute))
	if minutes < MinMinutesToTrig {
		minutes = MinMinutesToTrig
	}
	if minutes > MaxMinutesToTrig {
		minutes = MaxMinutesToTrig
	}

	techScore := technicalScore(crit, snap, relVol, volumeKnown)

	outcome := predictor.Predict(t, crit, predictor.Inputs{
		AnchorPrice:   trigger,
		CurrentPrice:  snap.Price,
		ATR:           snap.ATR,
		RelVolume:     relVol,
		TechScore:     techScore,
		FundScore:     fundScore,
		FundAvailable: fundOK,
	})

	now := time.Now()
	setup := &setups.FormingSetup{
		ID:                   fmt.Sprintf("%s-%s-%d", symbol, t, now.UnixNano()),
		Symbol:               symbol,
		SetupType:            t,
		Direction:            t.Direction(),
		CurrentPrice:         snap.Price,
		TriggerPrice:         trigger,
		DistanceToTriggerPct: distancePct,
		TriggerProbability:   probability,
		EstMinutesToTrigger:  minutes,
		Outcome:              outcome,
		SetupScore:           probability * 100,
		TechScore:            techScore,
		CatalystScore:        math.Min(100, relVol/4.0*100),
		StrategyLabel:        strategyLabel(t),
		KeyLevels:            keyLevels(t, trigger, outcome, snap.ATR),
		CreatedAt:            now,
		UpdatedAt:            now,
		Notes:                notes,
	}
	if fundOK {
		setup.FundScore = fundScore
	}
	// Phase assignment is the caller's job; the scanner classifies after
	// applying its tracking floor.
	return setup, nil
}

// keyLevels builds the named price ladder around the trigger. target2 extends
// one further ATR beyond the predictor's target in the trade direction.
func keyLevels(t catalog.SetupType, trigger float64, outcome setups.PredictedOutcome, atr float64) map[string]float64 {
	levels := map[string]float64{
		"entry":   trigger,
		"stop":    outcome.StopPrice,
		"target1": outcome.TargetPrice,
	}
	if t.Direction() == catalog.Long {
		levels["target2"] = outcome.TargetPrice + atr
	} else {
		levels["target2"] = outcome.TargetPrice - atr
	}
	return levels
}

// technicalScore is a 0-100 aggregate of the indicator checks, used by the
// predictor's technical adjustment and surfaced on the setup.
func technicalScore(crit catalog.StrategyCriteria, snap *marketdata.Snapshot, relVol float64, volumeKnown bool) float64 {
	score := 10.0
	if snap.RSI14 >= crit.RSIMin && snap.RSI14 <= crit.RSIMax {
		score += 40
	} else if snap.RSI14 >= crit.RSIMin-5 && snap.RSI14 <= crit.RSIMax+5 {
		score += 20
	}
	if volumeKnown && relVol >= crit.MinRelVolume {
		score += 30
	} else if volumeKnown && relVol >= 1.0 {
		score += 10
	}
	if snap.VWAP > 0 {
		score += 20
	}
	return math.Min(score, 100)
}

func anchorName(t catalog.SetupType) string {
	switch t {
	case catalog.RubberBandLong, catalog.RubberBandShort, catalog.MomentumContinuation:
		return "9 EMA"
	case catalog.MeanReversion:
		return "20 EMA"
	case catalog.Breakout, catalog.OpeningRangeBreakout:
		return "resistance"
	case catalog.Breakdown:
		return "support"
	default:
		return "VWAP"
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
