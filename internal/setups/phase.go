package setups

// SetupPhase is the ordered lifecycle phase of a forming setup. All phases
// except the two terminal ones are a pure function of trigger probability;
// Triggered and Invalidated are set explicitly by the scanner on external
// confirmation or expiry.
type SetupPhase string

const (
	PhaseEarlyFormation  SetupPhase = "early_formation"  // prob 0.20-0.35
	PhaseDeveloping      SetupPhase = "developing"       // prob 0.35-0.50
	PhaseNearlyReady     SetupPhase = "nearly_ready"     // prob 0.50-0.70
	PhaseTriggerImminent SetupPhase = "trigger_imminent" // prob >= 0.70
	PhaseTriggered       SetupPhase = "triggered"        // terminal
	PhaseInvalidated     SetupPhase = "invalidated"      // terminal
)

// Terminal reports whether the phase is one of the two externally-set end
// states.
func (p SetupPhase) Terminal() bool {
	return p == PhaseTriggered || p == PhaseInvalidated
}

// AlertEligible reports whether a setup in this phase may be promoted to a
// trigger alert.
func (p SetupPhase) AlertEligible() bool {
	return p == PhaseNearlyReady || p == PhaseTriggerImminent
}

// PhaseOf maps a trigger probability to its phase band. Probabilities below
// the tracking floor still classify as EarlyFormation; the scanner simply
// never registers them.
func PhaseOf(probability float64) SetupPhase {
	switch {
	case probability >= 0.70:
		return PhaseTriggerImminent
	case probability >= 0.50:
		return PhaseNearlyReady
	case probability >= 0.35:
		return PhaseDeveloping
	default:
		return PhaseEarlyFormation
	}
}
