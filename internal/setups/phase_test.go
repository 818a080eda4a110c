package setups

import "testing"

func TestPhaseOfBands(t *testing.T) {
	cases := []struct {
		probability float64
		want        SetupPhase
	}{
		{0.00, PhaseEarlyFormation},
		{0.20, PhaseEarlyFormation},
		{0.34, PhaseEarlyFormation},
		{0.35, PhaseDeveloping},
		{0.49, PhaseDeveloping},
		{0.50, PhaseNearlyReady},
		{0.69, PhaseNearlyReady},
		{0.70, PhaseTriggerImminent},
		{0.95, PhaseTriggerImminent},
	}
	for _, tc := range cases {
		if got := PhaseOf(tc.probability); got != tc.want {
			t.Errorf("PhaseOf(%.2f) = %s, want %s", tc.probability, got, tc.want)
		}
	}
}

func TestPhaseTerminal(t *testing.T) {
	for _, p := range []SetupPhase{PhaseEarlyFormation, PhaseDeveloping, PhaseNearlyReady, PhaseTriggerImminent} {
		if p.Terminal() {
			t.Errorf("%s should not be terminal", p)
		}
	}
	if !PhaseTriggered.Terminal() || !PhaseInvalidated.Terminal() {
		t.Error("triggered and invalidated must be terminal")
	}
}

func TestPhaseAlertEligible(t *testing.T) {
	eligible := map[SetupPhase]bool{
		PhaseNearlyReady:     true,
		PhaseTriggerImminent: true,
	}
	all := []SetupPhase{
		PhaseEarlyFormation, PhaseDeveloping, PhaseNearlyReady,
		PhaseTriggerImminent, PhaseTriggered, PhaseInvalidated,
	}
	for _, p := range all {
		if p.AlertEligible() != eligible[p] {
			t.Errorf("%s: AlertEligible() = %v, want %v", p, p.AlertEligible(), eligible[p])
		}
	}
}

func TestFormingSetupClone(t *testing.T) {
	orig := &FormingSetup{
		ID:        "AAPL-rubber-band-long-1",
		Symbol:    "AAPL",
		KeyLevels: map[string]float64{"entry": 50.0, "stop": 48.5},
		Notes:     []string{"note one"},
	}
	cp := orig.Clone()
	cp.KeyLevels["entry"] = 99.0
	cp.Notes[0] = "mutated"

	if orig.KeyLevels["entry"] != 50.0 {
		t.Error("clone shares the key-levels map with the original")
	}
	if orig.Notes[0] != "note one" {
		t.Error("clone shares the notes slice with the original")
	}
}
