// Package alerts owns the trigger-alert population: promotion of qualifying
// setups, expiry of stale alerts, the active-set cap, and bounded history.
package alerts

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"setup-scanner/internal/setups"
)

// EntryZonePct is the half-width of the entry zone around the trigger price,
// in percent.
const EntryZonePct = 0.2

// MinGrace is the floor on the expiry grace window.
const MinGrace = 10 * time.Minute

// Sink receives created alerts for audit. Absence (nil) never blocks the
// in-memory lifecycle; failures are logged and ignored.
type Sink interface {
	SaveAlert(ctx context.Context, alert *setups.TriggerAlert) error
}

// Config tunes the lifecycle manager.
type Config struct {
	ProbabilityThreshold float64 // alert-eligibility floor, default 0.60
	MaxActive            int     // active-set cap, default 20
	GraceMultiplier      float64 // expiry grace = mult x minutes-to-trigger
	HistoryLimit         int     // bounded in-memory history
}

// Manager deduplicates, creates, expires, and caps trigger alerts.
type Manager struct {
	mu      sync.Mutex
	active  map[string]*setups.TriggerAlert // by alert ID
	history []*setups.TriggerAlert          // newest first
	cfg     Config
	sink    Sink
	log     zerolog.Logger
}

// NewManager creates a lifecycle manager. sink may be nil.
func NewManager(cfg Config, sink Sink, log zerolog.Logger) *Manager {
	if cfg.ProbabilityThreshold <= 0 {
		cfg.ProbabilityThreshold = 0.60
	}
	if cfg.MaxActive <= 0 {
		cfg.MaxActive = 20
	}
	if cfg.GraceMultiplier <= 0 {
		cfg.GraceMultiplier = 2.0
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 200
	}
	return &Manager{
		active: make(map[string]*setups.TriggerAlert),
		cfg:    cfg,
		sink:   sink,
		log:    log.With().Str("component", "alerts").Logger(),
	}
}

// Reconcile promotes qualifying candidates to alerts. Candidates are
// registry copies, never live pointers: the caller records the promotion on
// the registry afterward (the alert-sent flag there is the dedup mechanism,
// so re-running a tick over an unchanged registry creates nothing).
// Eligibility is re-checked here so a stale candidate slice stays harmless.
func (m *Manager) Reconcile(candidates []setups.FormingSetup, now time.Time) []setups.TriggerAlert {
	m.mu.Lock()
	defer m.mu.Unlock()

	var created []setups.TriggerAlert
	for i := range candidates {
		s := &candidates[i]
		if s.AlertSent || !s.Phase.AlertEligible() || s.TriggerProbability < m.cfg.ProbabilityThreshold {
			continue
		}

		alert := m.buildAlert(s, now)
		m.active[alert.ID] = alert
		created = append(created, *alert.Clone())

		m.log.Info().
			Str("symbol", s.Symbol).
			Str("setup_type", s.SetupType.String()).
			Float64("probability", s.TriggerProbability).
			Int("minutes_to_trigger", s.EstMinutesToTrigger).
			Msg("trigger alert created")

		if m.sink != nil {
			m.saveAlert(alert)
		}
	}

	m.enforceCap()
	return created
}

func (m *Manager) buildAlert(s *setups.FormingSetup, now time.Time) *setups.TriggerAlert {
	zone := s.TriggerPrice * EntryZonePct / 100

	reasoning := append([]string(nil), s.Notes...)
	reasoning = append(reasoning,
		fmt.Sprintf("trigger probability %.0f%%", s.TriggerProbability*100),
		fmt.Sprintf("expected value %+.2f%%", s.Outcome.ExpectedValuePct),
		fmt.Sprintf("risk:reward %.1f", s.Outcome.RiskReward),
	)

	alert := &setups.TriggerAlert{
		ID:                 uuid.NewString(),
		SetupID:            s.ID,
		Symbol:             s.Symbol,
		Type:               s.SetupType,
		Side:               s.Direction,
		CreatedAt:          now,
		EstTriggerAt:       now.Add(time.Duration(s.EstMinutesToTrigger) * time.Minute),
		MinutesToTrigger:   s.EstMinutesToTrigger,
		EntryLow:           s.TriggerPrice - zone,
		EntryHigh:          s.TriggerPrice + zone,
		StopLoss:           s.Outcome.StopPrice,
		Target1:            s.Outcome.TargetPrice,
		RiskReward:         s.Outcome.RiskReward,
		TriggerProbability: s.TriggerProbability,
		WinProbability:     s.Outcome.WinProbability,
		ExpectedValuePct:   s.Outcome.ExpectedValuePct,
		SetupScore:         s.SetupScore,
		StrategyLabel:      s.StrategyLabel,
		Reasoning:          reasoning,
		Status:             setups.AlertPending,
	}
	if t2, ok := s.KeyLevels["target2"]; ok {
		alert.Target2 = &t2
	}
	return alert
}

func (m *Manager) saveAlert(alert *setups.TriggerAlert) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.sink.SaveAlert(ctx, alert.Clone()); err != nil {
		m.log.Warn().Err(err).Str("alert_id", alert.ID).Msg("alert audit write failed")
	}
}

// ExpireStale transitions active alerts whose estimated trigger time plus the
// grace window has elapsed without a reported outcome, returning copies of
// the expired alerts so the caller can invalidate their source setups. Run
// once per tick, before reconciliation.
func (m *Manager) ExpireStale(now time.Time) []setups.TriggerAlert {
	m.mu.Lock()
	defer m.mu.Unlock()

	var expired []setups.TriggerAlert
	for id, a := range m.active {
		grace := time.Duration(float64(a.MinutesToTrigger)*m.cfg.GraceMultiplier) * time.Minute
		if grace < MinGrace {
			grace = MinGrace
		}
		if now.After(a.EstTriggerAt.Add(grace)) {
			a.Status = setups.AlertExpired
			delete(m.active, id)
			m.pushHistory(a)
			expired = append(expired, *a.Clone())
		}
	}
	if len(expired) > 0 {
		m.log.Debug().Int("count", len(expired)).Msg("alerts expired")
	}
	return expired
}

// enforceCap evicts the lowest-probability active alerts, ties broken by
// oldest creation time. Callers hold m.mu.
func (m *Manager) enforceCap() {
	over := len(m.active) - m.cfg.MaxActive
	if over <= 0 {
		return
	}
	all := make([]*setups.TriggerAlert, 0, len(m.active))
	for _, a := range m.active {
		all = append(all, a)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].TriggerProbability != all[j].TriggerProbability {
			return all[i].TriggerProbability < all[j].TriggerProbability
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})
	for i := 0; i < over; i++ {
		a := all[i]
		a.Status = setups.AlertExpired
		delete(m.active, a.ID)
		m.pushHistory(a)
		m.log.Debug().Str("alert_id", a.ID).Str("symbol", a.Symbol).Msg("alert evicted at capacity")
	}
}

// Resolve reports an external outcome for an active alert, returning a copy
// of the resolved alert so the caller can transition its source setup.
func (m *Manager) Resolve(alertID string, status setups.AlertStatus, outcome setups.AlertOutcome) (*setups.TriggerAlert, error) {
	if status != setups.AlertTriggered && status != setups.AlertInvalidated {
		return nil, fmt.Errorf("invalid alert resolution status %q", status)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.active[alertID]
	if !ok {
		return nil, fmt.Errorf("alert %s not active", alertID)
	}
	a.Status = status
	a.Outcome = outcome
	delete(m.active, alertID)
	m.pushHistory(a)
	return a.Clone(), nil
}

// pushHistory prepends an alert to the bounded history. Callers hold m.mu.
func (m *Manager) pushHistory(a *setups.TriggerAlert) {
	m.history = append([]*setups.TriggerAlert{a}, m.history...)
	if len(m.history) > m.cfg.HistoryLimit {
		m.history = m.history[:m.cfg.HistoryLimit]
	}
}

// Active returns copies of pending alerts, highest probability first.
func (m *Manager) Active() []setups.TriggerAlert {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]setups.TriggerAlert, 0, len(m.active))
	for _, a := range m.active {
		out = append(out, *a.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].TriggerProbability > out[j].TriggerProbability
	})
	return out
}

// History returns up to limit resolved/expired alerts, newest first.
func (m *Manager) History(limit int) []setups.TriggerAlert {
	m.mu.Lock()
	defer m.mu.Unlock()

	if limit <= 0 || limit > len(m.history) {
		limit = len(m.history)
	}
	out := make([]setups.TriggerAlert, 0, limit)
	for _, a := range m.history[:limit] {
		out = append(out, *a.Clone())
	}
	return out
}
