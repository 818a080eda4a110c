package setups

import (
	"time"

	"setup-scanner/internal/catalog"
)

// ConfidenceTier buckets a predicted outcome by how much weight it deserves.
type ConfidenceTier string

const (
	ConfidenceHigh   ConfidenceTier = "high"
	ConfidenceMedium ConfidenceTier = "medium"
	ConfidenceLow    ConfidenceTier = "low"
)

// PredictedOutcome is the predictor's view of how a setup resolves if it
// triggers. Win probability is deliberately clamped to [0.30, 0.80] upstream;
// the model never asserts near-certain or near-impossible outcomes.
type PredictedOutcome struct {
	WinProbability   float64        `json:"win_probability"`
	ExpectedGainPct  float64        `json:"expected_gain_pct"`
	ExpectedLossPct  float64        `json:"expected_loss_pct"`
	ExpectedValuePct float64        `json:"expected_value_pct"`
	TargetPrice      float64        `json:"target_price"`
	StopPrice        float64        `json:"stop_price"`
	RiskReward       float64        `json:"risk_reward"`
	TimeToTargetMin  int            `json:"time_to_target_min"`
	Confidence       ConfidenceTier `json:"confidence"`
	Factors          []string       `json:"factors"`
}

// FormingSetup is a candidate trade idea that partially matches a strategy's
// entry criteria but has not yet triggered. Identity is (Symbol, SetupType);
// the registry keeps at most one live entry per key.
type FormingSetup struct {
	ID        string            `json:"id"`
	Symbol    string            `json:"symbol"`
	SetupType catalog.SetupType `json:"setup_type"`
	Direction catalog.Direction `json:"direction"`

	CurrentPrice         float64 `json:"current_price"`
	TriggerPrice         float64 `json:"trigger_price"`
	DistanceToTriggerPct float64 `json:"distance_to_trigger_pct"`
	TriggerProbability   float64 `json:"trigger_probability"`
	EstMinutesToTrigger  int     `json:"est_minutes_to_trigger"`

	Phase   SetupPhase       `json:"phase"`
	Outcome PredictedOutcome `json:"outcome"`

	SetupScore    float64 `json:"setup_score"`    // 0-100
	TechScore     float64 `json:"tech_score"`     // 0-100
	FundScore     float64 `json:"fund_score"`     // 0-100
	CatalystScore float64 `json:"catalyst_score"` // 0-100

	StrategyLabel string             `json:"strategy_label"`
	Patterns      []string           `json:"patterns,omitempty"`
	KeyLevels     map[string]float64 `json:"key_levels"`

	AlertSent   bool       `json:"alert_sent"`
	AlertSentAt *time.Time `json:"alert_sent_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Notes     []string  `json:"notes,omitempty"`
}

// Key returns the registry identity for this setup.
func (s *FormingSetup) Key() SetupKey {
	return SetupKey{Symbol: s.Symbol, SetupType: s.SetupType}
}

// Clone returns a deep copy so readers never share mutable state with the
// scanner loop.
func (s *FormingSetup) Clone() *FormingSetup {
	cp := *s
	if s.AlertSentAt != nil {
		t := *s.AlertSentAt
		cp.AlertSentAt = &t
	}
	cp.Patterns = append([]string(nil), s.Patterns...)
	cp.Notes = append([]string(nil), s.Notes...)
	cp.Outcome.Factors = append([]string(nil), s.Outcome.Factors...)
	if s.KeyLevels != nil {
		cp.KeyLevels = make(map[string]float64, len(s.KeyLevels))
		for k, v := range s.KeyLevels {
			cp.KeyLevels[k] = v
		}
	}
	return &cp
}

// SetupKey identifies a setup in the registry.
type SetupKey struct {
	Symbol    string
	SetupType catalog.SetupType
}

// AlertStatus tracks a trigger alert through its lifetime.
type AlertStatus string

const (
	AlertPending     AlertStatus = "pending"
	AlertTriggered   AlertStatus = "triggered"
	AlertInvalidated AlertStatus = "invalidated"
	AlertExpired     AlertStatus = "expired"
)

// AlertOutcome is the caller-reported result of a resolved alert.
type AlertOutcome string

const (
	OutcomeWin       AlertOutcome = "win"
	OutcomeLoss      AlertOutcome = "loss"
	OutcomeBreakeven AlertOutcome = "breakeven"
)

// TriggerAlert is derived 1:1 from a FormingSetup the moment it is first
// promoted. At most one non-expired alert exists per setup; the AlertSent
// flag on the source setup enforces that.
type TriggerAlert struct {
	ID      string            `json:"id"`
	SetupID string            `json:"setup_id"`
	Symbol  string            `json:"symbol"`
	Type    catalog.SetupType `json:"setup_type"`
	Side    catalog.Direction `json:"direction"`

	CreatedAt        time.Time `json:"created_at"`
	EstTriggerAt     time.Time `json:"est_trigger_at"`
	MinutesToTrigger int       `json:"minutes_to_trigger"`

	EntryLow  float64  `json:"entry_low"`
	EntryHigh float64  `json:"entry_high"`
	StopLoss  float64  `json:"stop_loss"`
	Target1   float64  `json:"target_1"`
	Target2   *float64 `json:"target_2,omitempty"`

	RiskReward         float64 `json:"risk_reward"`
	TriggerProbability float64 `json:"trigger_probability"`
	WinProbability     float64 `json:"win_probability"`
	ExpectedValuePct   float64 `json:"expected_value_pct"`
	SetupScore         float64 `json:"setup_score"`

	StrategyLabel string   `json:"strategy_label"`
	Reasoning     []string `json:"reasoning"`

	Status  AlertStatus  `json:"status"`
	Outcome AlertOutcome `json:"outcome,omitempty"`
}

// Clone returns a deep copy of the alert.
func (a *TriggerAlert) Clone() *TriggerAlert {
	cp := *a
	if a.Target2 != nil {
		t := *a.Target2
		cp.Target2 = &t
	}
	cp.Reasoning = append([]string(nil), a.Reasoning...)
	return &cp
}
