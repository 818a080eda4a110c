package database

import (
	"context"
	"fmt"

	"setup-scanner/internal/catalog"
	"setup-scanner/internal/setups"
)

// Repository persists trigger alerts. It satisfies the alerts.Sink interface.
type Repository struct {
	db *DB
}

// NewRepository creates a repository over an open DB.
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// SaveAlert inserts one alert row. Conflicting IDs update status and outcome,
// so resolution writes reuse the same call.
func (r *Repository) SaveAlert(ctx context.Context, a *setups.TriggerAlert) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO trigger_alerts (
			id, setup_id, symbol, setup_type, direction,
			created_at, est_trigger_at, minutes_to_trigger,
			entry_low, entry_high, stop_loss, target_1, target_2,
			risk_reward, trigger_probability, win_probability,
			expected_value_pct, setup_score, strategy_label,
			reasoning, status, outcome
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11,
			$12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22
		)
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, outcome = EXCLUDED.outcome`,
		a.ID, a.SetupID, a.Symbol, a.Type.String(), string(a.Side),
		a.CreatedAt, a.EstTriggerAt, a.MinutesToTrigger,
		a.EntryLow, a.EntryHigh, a.StopLoss, a.Target1, a.Target2,
		a.RiskReward, a.TriggerProbability, a.WinProbability,
		a.ExpectedValuePct, a.SetupScore, a.StrategyLabel,
		a.Reasoning, string(a.Status), nullableOutcome(a.Outcome),
	)
	if err != nil {
		return fmt.Errorf("insert alert %s: %w", a.ID, err)
	}
	return nil
}

func nullableOutcome(o setups.AlertOutcome) *string {
	if o == "" {
		return nil
	}
	s := string(o)
	return &s
}

// RecentAlerts returns the most recently created alerts, newest first.
func (r *Repository) RecentAlerts(ctx context.Context, limit int) ([]setups.TriggerAlert, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, setup_id, symbol, setup_type, direction,
			created_at, est_trigger_at, minutes_to_trigger,
			entry_low, entry_high, stop_loss, target_1, target_2,
			risk_reward, trigger_probability, win_probability,
			expected_value_pct, setup_score, strategy_label,
			reasoning, status, outcome
		FROM trigger_alerts
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var out []setups.TriggerAlert
	for rows.Next() {
		var a setups.TriggerAlert
		var setupType, direction, status string
		var outcome *string
		if err := rows.Scan(
			&a.ID, &a.SetupID, &a.Symbol, &setupType, &direction,
			&a.CreatedAt, &a.EstTriggerAt, &a.MinutesToTrigger,
			&a.EntryLow, &a.EntryHigh, &a.StopLoss, &a.Target1, &a.Target2,
			&a.RiskReward, &a.TriggerProbability, &a.WinProbability,
			&a.ExpectedValuePct, &a.SetupScore, &a.StrategyLabel,
			&a.Reasoning, &status, &outcome,
		); err != nil {
			return nil, fmt.Errorf("scan alert row: %w", err)
		}
		if t, parseErr := catalog.ParseSetupType(setupType); parseErr == nil {
			a.Type = t
		}
		a.Side = catalog.Direction(direction)
		a.Status = setups.AlertStatus(status)
		if outcome != nil {
			a.Outcome = setups.AlertOutcome(*outcome)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
