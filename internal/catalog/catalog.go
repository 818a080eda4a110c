package catalog

import (
	"fmt"
	"strings"
)

// SetupType identifies one of the supported trade-setup heuristics.
type SetupType int

const (
	RubberBandLong SetupType = iota
	RubberBandShort
	Breakout
	Breakdown
	VWAPBounce
	VWAPRejection
	GapAndGo
	GapFade
	MomentumContinuation
	MeanReversion
	OpeningRangeBreakout
	RedToGreen
	GreenToRed
)

// Direction is the trade side a setup resolves to.
type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

var setupTypeNames = map[SetupType]string{
	RubberBandLong:       "rubber-band-long",
	RubberBandShort:      "rubber-band-short",
	Breakout:             "breakout",
	Breakdown:            "breakdown",
	VWAPBounce:           "vwap-bounce",
	VWAPRejection:        "vwap-rejection",
	GapAndGo:             "gap-and-go",
	GapFade:              "gap-fade",
	MomentumContinuation: "momentum-continuation",
	MeanReversion:        "mean-reversion",
	OpeningRangeBreakout: "opening-range-breakout",
	RedToGreen:           "red-to-green",
	GreenToRed:           "green-to-red",
}

func (t SetupType) String() string {
	if name, ok := setupTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("setup-type(%d)", int(t))
}

// MarshalText makes SetupType render as its wire name in JSON payloads.
func (t SetupType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText parses a wire name back into a SetupType.
func (t *SetupType) UnmarshalText(b []byte) error {
	parsed, err := ParseSetupType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ErrUnknownSetupType is returned when a setup-type name does not match the
// closed enumeration.
var ErrUnknownSetupType = fmt.Errorf("unknown setup type")

// ParseSetupType converts a wire name (e.g. "rubber-band-long") into a SetupType.
func ParseSetupType(name string) (SetupType, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	for t, n := range setupTypeNames {
		if n == normalized {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownSetupType, name)
}

// AllSetupTypes returns every setup type in declaration order.
func AllSetupTypes() []SetupType {
	return []SetupType{
		RubberBandLong, RubberBandShort,
		Breakout, Breakdown,
		VWAPBounce, VWAPRejection,
		GapAndGo, GapFade,
		MomentumContinuation, MeanReversion,
		OpeningRangeBreakout,
		RedToGreen, GreenToRed,
	}
}

// Direction returns the trade side this setup type resolves to.
func (t SetupType) Direction() Direction {
	switch t {
	case RubberBandShort, Breakdown, VWAPRejection, GapFade, GreenToRed:
		return Short
	default:
		return Long
	}
}

// StrategyCriteria holds the static detection thresholds and historical base
// rates for one setup type. Rows are immutable after process start; tuning a
// threshold means a redeploy.
type StrategyCriteria struct {
	// Extension band the signed anchor-distance must fall inside to qualify,
	// in percent. MinExtensionPct is the near edge, MaxExtensionPct the far
	// edge; for short-side setups both are positive, for stretched-long
	// setups both are negative.
	MinExtensionPct float64 `json:"min_extension_pct"`
	MaxExtensionPct float64 `json:"max_extension_pct"`

	MinRelVolume   float64 `json:"min_rel_volume"`
	IdealRelVolume float64 `json:"ideal_rel_volume"`

	RSIMin float64 `json:"rsi_min"`
	RSIMax float64 `json:"rsi_max"`

	BaseWinRate float64 `json:"base_win_rate"`
	AvgGainPct  float64 `json:"avg_gain_pct"`
	AvgLossPct  float64 `json:"avg_loss_pct"`

	TriggerCondition string `json:"trigger_condition"`
}

// criteria is the strategy catalog. Base rates come from historical scans of
// each setup family; the extension bands bound how stretched price must be
// relative to the family's anchor before a setup is worth tracking.
var criteria = map[SetupType]StrategyCriteria{
	RubberBandLong: {
		MinExtensionPct: -8.0, MaxExtensionPct: -3.0,
		MinRelVolume: 1.5, IdealRelVolume: 3.0,
		RSIMin: 20, RSIMax: 40,
		BaseWinRate: 0.58, AvgGainPct: 2.8, AvgLossPct: 1.4,
		TriggerCondition: "price snaps back to the 9 EMA after a stretched selloff",
	},
	RubberBandShort: {
		MinExtensionPct: 3.0, MaxExtensionPct: 8.0,
		MinRelVolume: 1.5, IdealRelVolume: 3.0,
		RSIMin: 60, RSIMax: 80,
		BaseWinRate: 0.56, AvgGainPct: 2.6, AvgLossPct: 1.4,
		TriggerCondition: "price fades back to the 9 EMA after a parabolic push",
	},
	Breakout: {
		MinExtensionPct: -2.0, MaxExtensionPct: -0.1,
		MinRelVolume: 1.8, IdealRelVolume: 3.5,
		RSIMin: 50, RSIMax: 70,
		BaseWinRate: 0.54, AvgGainPct: 3.2, AvgLossPct: 1.6,
		TriggerCondition: "price clears resistance on expanding volume",
	},
	Breakdown: {
		MinExtensionPct: 0.1, MaxExtensionPct: 2.0,
		MinRelVolume: 1.8, IdealRelVolume: 3.5,
		RSIMin: 30, RSIMax: 50,
		BaseWinRate: 0.53, AvgGainPct: 3.0, AvgLossPct: 1.6,
		TriggerCondition: "price loses support on expanding volume",
	},
	VWAPBounce: {
		MinExtensionPct: 0.05, MaxExtensionPct: 1.2,
		MinRelVolume: 1.3, IdealRelVolume: 2.5,
		RSIMin: 40, RSIMax: 60,
		BaseWinRate: 0.57, AvgGainPct: 1.8, AvgLossPct: 0.9,
		TriggerCondition: "price holds VWAP on a pullback and reclaims the prior high",
	},
	VWAPRejection: {
		MinExtensionPct: -1.2, MaxExtensionPct: -0.05,
		MinRelVolume: 1.3, IdealRelVolume: 2.5,
		RSIMin: 40, RSIMax: 60,
		BaseWinRate: 0.55, AvgGainPct: 1.7, AvgLossPct: 0.9,
		TriggerCondition: "price fails at VWAP from below and rolls over",
	},
	GapAndGo: {
		MinExtensionPct: 1.0, MaxExtensionPct: 6.0,
		MinRelVolume: 2.0, IdealRelVolume: 4.0,
		RSIMin: 55, RSIMax: 75,
		BaseWinRate: 0.55, AvgGainPct: 3.5, AvgLossPct: 1.8,
		TriggerCondition: "gap holds above VWAP and breaks the opening high",
	},
	GapFade: {
		MinExtensionPct: 3.0, MaxExtensionPct: 10.0,
		MinRelVolume: 2.0, IdealRelVolume: 4.0,
		RSIMin: 70, RSIMax: 90,
		BaseWinRate: 0.52, AvgGainPct: 3.0, AvgLossPct: 1.8,
		TriggerCondition: "overextended gap loses VWAP and fills toward prior close",
	},
	MomentumContinuation: {
		MinExtensionPct: 0.5, MaxExtensionPct: 3.0,
		MinRelVolume: 1.5, IdealRelVolume: 3.0,
		RSIMin: 55, RSIMax: 75,
		BaseWinRate: 0.56, AvgGainPct: 2.2, AvgLossPct: 1.2,
		TriggerCondition: "trend resumes through the most recent consolidation high",
	},
	MeanReversion: {
		MinExtensionPct: -10.0, MaxExtensionPct: -4.0,
		MinRelVolume: 1.4, IdealRelVolume: 2.8,
		RSIMin: 15, RSIMax: 35,
		BaseWinRate: 0.57, AvgGainPct: 3.0, AvgLossPct: 1.5,
		TriggerCondition: "deeply stretched price reverts toward its short-term mean",
	},
	OpeningRangeBreakout: {
		MinExtensionPct: -1.5, MaxExtensionPct: -0.05,
		MinRelVolume: 1.8, IdealRelVolume: 3.5,
		RSIMin: 50, RSIMax: 70,
		BaseWinRate: 0.54, AvgGainPct: 2.5, AvgLossPct: 1.3,
		TriggerCondition: "price breaks the opening range high with volume",
	},
	RedToGreen: {
		MinExtensionPct: -1.5, MaxExtensionPct: -0.05,
		MinRelVolume: 1.5, IdealRelVolume: 3.0,
		RSIMin: 35, RSIMax: 55,
		BaseWinRate: 0.55, AvgGainPct: 2.0, AvgLossPct: 1.1,
		TriggerCondition: "price reclaims VWAP and turns positive on the day",
	},
	GreenToRed: {
		MinExtensionPct: 0.05, MaxExtensionPct: 1.5,
		MinRelVolume: 1.5, IdealRelVolume: 3.0,
		RSIMin: 45, RSIMax: 65,
		BaseWinRate: 0.53, AvgGainPct: 1.9, AvgLossPct: 1.1,
		TriggerCondition: "price loses VWAP and turns negative on the day",
	},
}

// CriteriaFor returns the catalog row for a setup type. The second return is
// false when the type has no row, which only happens for values outside the
// enumeration.
func CriteriaFor(t SetupType) (StrategyCriteria, bool) {
	c, ok := criteria[t]
	return c, ok
}
