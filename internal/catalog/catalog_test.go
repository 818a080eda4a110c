package catalog

import "testing"

// TestEveryTypeHasCriteria verifies the catalog covers the closed enumeration.
func TestEveryTypeHasCriteria(t *testing.T) {
	for _, st := range AllSetupTypes() {
		crit, ok := CriteriaFor(st)
		if !ok {
			t.Errorf("no criteria row for %s", st)
			continue
		}
		if crit.MinExtensionPct >= crit.MaxExtensionPct {
			t.Errorf("%s: extension band [%v, %v] is inverted", st, crit.MinExtensionPct, crit.MaxExtensionPct)
		}
		if crit.BaseWinRate <= 0 || crit.BaseWinRate >= 1 {
			t.Errorf("%s: base win rate %v out of (0,1)", st, crit.BaseWinRate)
		}
		if crit.AvgGainPct <= 0 || crit.AvgLossPct <= 0 {
			t.Errorf("%s: average gain/loss must be positive", st)
		}
		if crit.TriggerCondition == "" {
			t.Errorf("%s: missing trigger condition description", st)
		}
	}
}

// TestParseSetupTypeRoundTrip verifies names parse back to their type.
func TestParseSetupTypeRoundTrip(t *testing.T) {
	for _, st := range AllSetupTypes() {
		parsed, err := ParseSetupType(st.String())
		if err != nil {
			t.Errorf("ParseSetupType(%q) failed: %v", st.String(), err)
		}
		if parsed != st {
			t.Errorf("round trip mismatch: %v != %v", parsed, st)
		}
	}
}

func TestParseSetupTypeUnknown(t *testing.T) {
	if _, err := ParseSetupType("triple-bottom"); err == nil {
		t.Error("expected error for unknown setup type")
	}
	// Parsing is case and whitespace tolerant.
	if parsed, err := ParseSetupType("  Rubber-Band-Long "); err != nil || parsed != RubberBandLong {
		t.Errorf("tolerant parse failed: %v, %v", parsed, err)
	}
}

func TestDirections(t *testing.T) {
	shorts := map[SetupType]bool{
		RubberBandShort: true,
		Breakdown:       true,
		VWAPRejection:   true,
		GapFade:         true,
		GreenToRed:      true,
	}
	for _, st := range AllSetupTypes() {
		want := Long
		if shorts[st] {
			want = Short
		}
		if st.Direction() != want {
			t.Errorf("%s: direction %s, want %s", st, st.Direction(), want)
		}
	}
}
