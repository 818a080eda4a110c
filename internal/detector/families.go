package detector

import (
	"strings"

	"setup-scanner/internal/catalog"
	"setup-scanner/internal/marketdata"
)

// anchorPrice returns the reference level the extension measure is computed
// against for one setup family. A non-positive anchor means the snapshot is
// missing the data this family needs.
func anchorPrice(t catalog.SetupType, snap *marketdata.Snapshot) float64 {
	switch t {
	case catalog.RubberBandLong, catalog.RubberBandShort, catalog.MomentumContinuation:
		return snap.EMA9
	case catalog.MeanReversion:
		return snap.EMA20
	case catalog.Breakout, catalog.OpeningRangeBreakout:
		return snap.Resistance
	case catalog.Breakdown:
		return snap.Support
	default:
		// VWAP family: vwap-bounce/rejection, gap-and-go, gap-fade,
		// red-to-green, green-to-red.
		return snap.VWAP
	}
}

// triggerBufferATR is how far beyond the current print, in ATR units, the
// confirmation trigger sits for families that trigger on a fresh break rather
// than on a return to the anchor. Zero means the anchor itself is the trigger.
func triggerBufferATR(t catalog.SetupType) float64 {
	switch t {
	case catalog.VWAPBounce, catalog.GapAndGo, catalog.MomentumContinuation:
		return 0.25
	case catalog.VWAPRejection:
		return -0.25
	case catalog.GapFade:
		return -0.5
	default:
		return 0
	}
}

// triggerPrice resolves where the setup confirms. For most families the
// trigger is the anchor itself (price snapping back to or breaking through
// it); for break-continuation families it is a fresh extreme beyond the
// current print.
func triggerPrice(t catalog.SetupType, anchor, current, atr float64) float64 {
	if buf := triggerBufferATR(t); buf != 0 {
		return current + buf*atr
	}
	return anchor
}

// positionalContext checks the confirming-context sub-factor for a family.
// Trend-continuation families confirm on the correct side of VWAP;
// reversion families confirm when price is still holding the far structural
// level (support for longs, resistance for shorts).
func positionalContext(t catalog.SetupType, snap *marketdata.Snapshot) (bool, string) {
	switch t {
	case catalog.Breakout, catalog.OpeningRangeBreakout, catalog.GapAndGo,
		catalog.MomentumContinuation, catalog.VWAPBounce:
		if snap.VWAP > 0 && snap.Price > snap.VWAP {
			return true, "holding above VWAP"
		}
	case catalog.Breakdown, catalog.VWAPRejection, catalog.GreenToRed:
		if snap.VWAP > 0 && snap.Price < snap.VWAP {
			return true, "trading below VWAP"
		}
	case catalog.RubberBandLong, catalog.MeanReversion, catalog.RedToGreen:
		if snap.Support > 0 && snap.Price > snap.Support {
			return true, "holding above support"
		}
	case catalog.RubberBandShort, catalog.GapFade:
		if snap.Resistance > 0 && snap.Price < snap.Resistance {
			return true, "capped below resistance"
		}
	}
	return false, ""
}

// strategyLabel renders a setup type as a human-readable strategy name, e.g.
// "Rubber Band Long".
func strategyLabel(t catalog.SetupType) string {
	parts := strings.Split(t.String(), "-")
	for i, p := range parts {
		if p == "vwap" {
			parts[i] = "VWAP"
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}
