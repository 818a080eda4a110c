// Package predictor adjusts a strategy's historical base win rate for the
// conditions around one forming setup and computes realistic target/stop
// levels, risk:reward, and expected value.
package predictor

import (
	"fmt"
	"math"

	"setup-scanner/internal/catalog"
	"setup-scanner/internal/setups"
)

// Win-rate clamp. The model never asserts near-certain or near-impossible
// outcomes regardless of how strong the inputs look.
const (
	MinWinRate = 0.30
	MaxWinRate = 0.80
)

// MinutesPerGainPct converts expected gain into a holding-period estimate.
// Empirical constant carried over from historical scan calibration; the
// derivation is undocumented, so it is preserved rather than re-modeled.
const (
	MinutesPerGainPct = 30.0
	MinTimeToTarget   = 15
	MaxTimeToTarget   = 480
)

// atrMultipliers holds the family-specific target and stop distances in ATR
// units.
type atrMultipliers struct {
	target float64
	stop   float64
}

func multipliersFor(t catalog.SetupType) atrMultipliers {
	switch t {
	case catalog.MeanReversion, catalog.RubberBandLong, catalog.RubberBandShort:
		return atrMultipliers{target: 1.5, stop: 0.75}
	case catalog.Breakout, catalog.Breakdown, catalog.OpeningRangeBreakout:
		return atrMultipliers{target: 2.0, stop: 1.0}
	case catalog.GapAndGo:
		return atrMultipliers{target: 1.8, stop: 0.9}
	case catalog.GapFade:
		return atrMultipliers{target: 1.6, stop: 0.8}
	case catalog.MomentumContinuation:
		return atrMultipliers{target: 1.5, stop: 0.75}
	default: // VWAP and red/green family: tight intraday rotations
		return atrMultipliers{target: 1.2, stop: 0.6}
	}
}

// Inputs carries the per-setup context the predictor adjusts on.
type Inputs struct {
	AnchorPrice   float64
	CurrentPrice  float64
	ATR           float64
	RelVolume     float64
	TechScore     float64 // 0-100 aggregate technical score
	FundScore     float64 // 0-100, only meaningful when FundAvailable
	FundAvailable bool
}

// Predict computes the outcome model for one setup. Pure: same inputs, same
// outcome.
func Predict(t catalog.SetupType, crit catalog.StrategyCriteria, in Inputs) setups.PredictedOutcome {
	winRate := crit.BaseWinRate
	factors := []string{fmt.Sprintf("base win rate %.0f%% for %s", crit.BaseWinRate*100, t)}

	// Each adjustment is bounded to +/-5 percentage points.
	switch {
	case in.RelVolume >= 3.0:
		winRate += 0.05
		factors = append(factors, fmt.Sprintf("strong relative volume %.1fx (+5)", in.RelVolume))
	case in.RelVolume >= 2.0:
		winRate += 0.02
		factors = append(factors, fmt.Sprintf("elevated relative volume %.1fx (+2)", in.RelVolume))
	case in.RelVolume < 1.5:
		winRate -= 0.05
		factors = append(factors, fmt.Sprintf("weak relative volume %.1fx (-5)", in.RelVolume))
	}

	switch {
	case in.TechScore >= 70:
		winRate += 0.05
		factors = append(factors, fmt.Sprintf("technical score %.0f (+5)", in.TechScore))
	case in.TechScore < 40:
		winRate -= 0.05
		factors = append(factors, fmt.Sprintf("technical score %.0f (-5)", in.TechScore))
	}

	if in.FundAvailable && in.FundScore >= 60 {
		winRate += 0.02
		factors = append(factors, fmt.Sprintf("fundamental quality %.0f (+2)", in.FundScore))
	}

	winRate = clamp(winRate, MinWinRate, MaxWinRate)

	mult := multipliersFor(t)
	anchor := in.AnchorPrice
	var target, stop float64
	if t.Direction() == catalog.Long {
		// Anchor the target above both the trigger and the current print and
		// the stop below both, so the level ordering holds regardless of
		// which side of the trigger price is currently trading.
		target = math.Max(anchor, in.CurrentPrice) + mult.target*in.ATR
		stop = math.Min(anchor, in.CurrentPrice) - mult.stop*in.ATR
	} else {
		target = math.Min(anchor, in.CurrentPrice) - mult.target*in.ATR
		stop = math.Max(anchor, in.CurrentPrice) + mult.stop*in.ATR
	}

	expectedGainPct := math.Abs(target-anchor) / anchor * 100
	expectedLossPct := math.Abs(anchor-stop) / anchor * 100

	riskReward := 0.0
	if math.Abs(anchor-stop) > 0 {
		riskReward = math.Abs(target-anchor) / math.Abs(anchor-stop)
	}

	ev := winRate*expectedGainPct - (1-winRate)*expectedLossPct

	confidence := setups.ConfidenceLow
	switch {
	case winRate >= 0.65 && riskReward >= 2.0:
		confidence = setups.ConfidenceHigh
	case winRate >= 0.55 && riskReward >= 1.5:
		confidence = setups.ConfidenceMedium
	}

	// Holding-period estimate scales linearly with how far the target sits.
	// This is a different horizon than minutes-to-trigger, which times the
	// entry itself.
	ttt := int(math.Round(expectedGainPct * MinutesPerGainPct))
	if ttt < MinTimeToTarget {
		ttt = MinTimeToTarget
	}
	if ttt > MaxTimeToTarget {
		ttt = MaxTimeToTarget
	}

	return setups.PredictedOutcome{
		WinProbability:   winRate,
		ExpectedGainPct:  expectedGainPct,
		ExpectedLossPct:  expectedLossPct,
		ExpectedValuePct: ev,
		TargetPrice:      target,
		StopPrice:        stop,
		RiskReward:       riskReward,
		TimeToTargetMin:  ttt,
		Confidence:       confidence,
		Factors:          factors,
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
