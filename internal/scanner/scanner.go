// Package scanner runs the cooperative scan loop: rate-limited, batched
// symbol scans feeding the detector/predictor pipeline, registry
// reconciliation, alert promotion, and fan-out. Tick-level registry
// replacement happens only on the loop goroutine; the narrower alert-sent
// and terminal-phase marks go through registry methods under its write lock.
package scanner

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"setup-scanner/internal/alerts"
	"setup-scanner/internal/catalog"
	"setup-scanner/internal/detector"
	"setup-scanner/internal/marketdata"
	"setup-scanner/internal/notify"
	"setup-scanner/internal/registry"
	"setup-scanner/internal/setups"
)

// Config holds the fixed scan parameters. Hot-reloadable fields live in
// Settings instead.
type Config struct {
	MinScanInterval time.Duration // gate between full scans, floor 30s
	BatchSize       int           // symbols per batch, default 5
	BatchDelay      time.Duration // pause between batches, default 2s
	SnapshotTimeout time.Duration // per-symbol fetch bound, default 10s
	MinProbability  float64       // tracking floor, default 0.20
	AlertThreshold  float64       // alert-sent carry-forward bound, default 0.60
	MaxTracked      int           // registry capacity, default 200
}

func (c *Config) applyDefaults() {
	if c.MinScanInterval < 30*time.Second {
		c.MinScanInterval = 30 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 5
	}
	if c.BatchDelay <= 0 {
		c.BatchDelay = 2 * time.Second
	}
	if c.SnapshotTimeout <= 0 {
		c.SnapshotTimeout = 10 * time.Second
	}
	if c.MinProbability <= 0 {
		c.MinProbability = 0.20
	}
	if c.AlertThreshold <= 0 {
		c.AlertThreshold = 0.60
	}
	if c.MaxTracked <= 0 {
		c.MaxTracked = 200
	}
}

// Settings is the hot-swappable portion of the configuration. The running
// loop reads it through an atomic pointer, so writers never race a tick.
type Settings struct {
	Watchlist    []string
	EnabledTypes []catalog.SetupType
	ScanInterval time.Duration
}

func (s *Settings) clone() *Settings {
	cp := &Settings{ScanInterval: s.ScanInterval}
	cp.Watchlist = append([]string(nil), s.Watchlist...)
	cp.EnabledTypes = append([]catalog.SetupType(nil), s.EnabledTypes...)
	return cp
}

// Status is a point-in-time view of the scanner for read APIs. Queries always
// return the best-known state even when the most recent tick partially
// failed.
type Status struct {
	Running        bool          `json:"running"`
	LastScanID     string        `json:"last_scan_id,omitempty"`
	LastScanStart  time.Time     `json:"last_scan_start,omitempty"`
	LastScanEnd    time.Time     `json:"last_scan_end,omitempty"`
	Duration       time.Duration `json:"duration,omitempty"`
	SymbolsScanned int           `json:"symbols_scanned"`
	SymbolErrors   int           `json:"symbol_errors"`
	SetupsTracked  int           `json:"setups_tracked"`
	ActiveAlerts   int           `json:"active_alerts"`
}

// Scanner is the scan-loop state machine over {Stopped, Running}.
type Scanner struct {
	cfg      Config
	settings atomic.Pointer[Settings]

	provider marketdata.SnapshotProvider
	quality  marketdata.QualityProvider // optional, may be nil
	det      *detector.Detector
	reg      *registry.Registry
	alerts   *alerts.Manager
	bus      *notify.Bus
	log      zerolog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	statusMu sync.RWMutex
	last     Status

	scanSeq atomic.Int64
}

// New wires a scanner. quality may be nil.
func New(
	cfg Config,
	initial Settings,
	provider marketdata.SnapshotProvider,
	quality marketdata.QualityProvider,
	alertMgr *alerts.Manager,
	bus *notify.Bus,
	log zerolog.Logger,
) *Scanner {
	cfg.applyDefaults()
	if initial.ScanInterval < cfg.MinScanInterval {
		initial.ScanInterval = 90 * time.Second
	}
	if len(initial.EnabledTypes) == 0 {
		initial.EnabledTypes = catalog.AllSetupTypes()
	}

	s := &Scanner{
		cfg:      cfg,
		provider: provider,
		quality:  quality,
		det:      detector.New(),
		reg:      registry.New(cfg.MaxTracked, cfg.AlertThreshold),
		alerts:   alertMgr,
		bus:      bus,
		log:      log.With().Str("component", "scanner").Logger(),
	}
	s.settings.Store(initial.clone())
	return s
}

// Start transitions Stopped -> Running and launches the loop. Calling Start
// while Running is a no-op.
func (s *Scanner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true
	go s.run(ctx, s.done)
	s.log.Info().Msg("scanner started")
}

// Stop requests cancellation and blocks until the loop observes it and exits.
// An in-flight batch finishes its current symbol; no new batch or tick starts
// once cancellation is observed. Calling Stop while Stopped is a no-op.
func (s *Scanner) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	cancel()
	<-done

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	s.log.Info().Msg("scanner stopped")
}

// IsRunning reports the scheduler state.
func (s *Scanner) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// run is the loop body. Cancellation is observed at every suspension point:
// the minimum-interval gate, the inter-batch delay, and the end-of-tick
// sleep.
func (s *Scanner) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	var lastTickStart time.Time
	for {
		if ctx.Err() != nil {
			return
		}

		// Minimum inter-scan gate.
		if !lastTickStart.IsZero() {
			if since := time.Since(lastTickStart); since < s.cfg.MinScanInterval {
				if !sleepCtx(ctx, s.cfg.MinScanInterval-since) {
					return
				}
			}
		}

		tickStart := time.Now()
		lastTickStart = tickStart
		s.tick(ctx, tickStart)

		interval := s.settings.Load().ScanInterval
		if elapsed := time.Since(tickStart); elapsed < interval {
			if !sleepCtx(ctx, interval-elapsed) {
				return
			}
		}
	}
}

// tick runs one full scan: batched detection, then reconciliation strictly
// after all detections complete, then alert fan-out. A cancellation observed
// before the next symbol abandons the tick without reconciling, so the
// registry never mistakes a partial watchlist for "conditions dropped".
func (s *Scanner) tick(ctx context.Context, start time.Time) {
	cfg := s.settings.Load()
	scanID := fmt.Sprintf("scan-%d", s.scanSeq.Add(1))

	var detected []*setups.FormingSetup
	scanned, errCount := 0, 0

	batches := partition(cfg.Watchlist, s.cfg.BatchSize)
	for i, batch := range batches {
		for _, symbol := range batch {
			// Cancellation lets the current symbol finish but never starts
			// the next one.
			if ctx.Err() != nil {
				s.log.Debug().Str("scan_id", scanID).Msg("tick abandoned on cancellation")
				return
			}
			found, err := s.scanSymbol(ctx, symbol, cfg.EnabledTypes)
			scanned++
			if err != nil {
				// Data-source failure: skip the symbol this tick, retry
				// implicitly on the next one.
				errCount++
				s.log.Warn().Err(err).Str("symbol", symbol).Str("scan_id", scanID).Msg("symbol scan failed")
				continue
			}
			detected = append(detected, found...)
		}
		if i < len(batches)-1 {
			if !sleepCtx(ctx, s.cfg.BatchDelay) {
				s.log.Debug().Str("scan_id", scanID).Msg("tick abandoned on cancellation")
				return
			}
		}
	}

	s.reg.Apply(detected)

	// Promotion works on registry copies; the alert-sent mark and terminal
	// phase transitions go back through the registry's write lock so readers
	// never race a half-applied promotion.
	now := time.Now()
	for _, expired := range s.alerts.ExpireStale(now) {
		s.reg.MarkPhase(expired.SetupID, setups.PhaseInvalidated)
	}
	created := s.alerts.Reconcile(s.reg.AlertCandidates(), now)
	for i := range created {
		key := setups.SetupKey{Symbol: created[i].Symbol, SetupType: created[i].Type}
		s.reg.MarkAlertSent(key, created[i].CreatedAt)
		s.bus.Publish(created[i])
	}

	s.statusMu.Lock()
	s.last = Status{
		Running:        true,
		LastScanID:     scanID,
		LastScanStart:  start,
		LastScanEnd:    time.Now(),
		Duration:       time.Since(start),
		SymbolsScanned: scanned,
		SymbolErrors:   errCount,
		SetupsTracked:  s.reg.Len(),
		ActiveAlerts:   len(s.alerts.Active()),
	}
	s.statusMu.Unlock()

	s.log.Info().
		Str("scan_id", scanID).
		Int("symbols", scanned).
		Int("errors", errCount).
		Int("tracked", s.reg.Len()).
		Int("new_alerts", len(created)).
		Dur("duration", time.Since(start)).
		Msg("scan complete")
}

// scanSymbol fetches one snapshot (deadline-bounded) and evaluates every
// enabled setup type against it.
func (s *Scanner) scanSymbol(ctx context.Context, symbol string, types []catalog.SetupType) ([]*setups.FormingSetup, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.SnapshotTimeout)
	snap, err := s.provider.GetSnapshot(fetchCtx, symbol)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("snapshot fetch: %w", err)
	}

	fundScore, fundOK := 0.0, false
	if s.quality != nil {
		qCtx, qCancel := context.WithTimeout(ctx, s.cfg.SnapshotTimeout)
		fundScore, fundOK = s.quality.GetQualityScore(qCtx, symbol)
		qCancel()
	}

	var out []*setups.FormingSetup
	for _, t := range types {
		fs, err := s.det.Detect(symbol, t, snap, fundScore, fundOK)
		if err != nil {
			s.log.Error().Err(err).Str("symbol", symbol).Msg("detector error")
			continue
		}
		if fs == nil || fs.TriggerProbability < s.cfg.MinProbability {
			continue
		}
		fs.Phase = setups.PhaseOf(fs.TriggerProbability)
		out = append(out, fs)
	}
	return out, nil
}

// Scan runs a single tick synchronously, independent of the loop. Intended
// for manual triggering and tests.
func (s *Scanner) Scan(ctx context.Context) {
	s.tick(ctx, time.Now())
}

// SetWatchlist swaps the scanned symbol list. Safe concurrently with the
// running loop.
func (s *Scanner) SetWatchlist(symbols []string) {
	for {
		cur := s.settings.Load()
		next := cur.clone()
		next.Watchlist = append([]string(nil), symbols...)
		if s.settings.CompareAndSwap(cur, next) {
			return
		}
	}
}

// SetScanInterval updates the scan interval, flooring it at the minimum
// inter-scan gate.
func (s *Scanner) SetScanInterval(interval time.Duration) {
	if interval < s.cfg.MinScanInterval {
		interval = s.cfg.MinScanInterval
	}
	for {
		cur := s.settings.Load()
		next := cur.clone()
		next.ScanInterval = interval
		if s.settings.CompareAndSwap(cur, next) {
			return
		}
	}
}

// EnableSetupType adds a setup type by wire name. Unknown names are rejected
// synchronously with no effect on the running state.
func (s *Scanner) EnableSetupType(name string) error {
	t, err := catalog.ParseSetupType(name)
	if err != nil {
		return err
	}
	for {
		cur := s.settings.Load()
		enabled := false
		for _, existing := range cur.EnabledTypes {
			if existing == t {
				enabled = true
				break
			}
		}
		if enabled {
			return nil
		}
		next := cur.clone()
		next.EnabledTypes = append(next.EnabledTypes, t)
		if s.settings.CompareAndSwap(cur, next) {
			return nil
		}
	}
}

// DisableSetupType removes a setup type by wire name.
func (s *Scanner) DisableSetupType(name string) error {
	t, err := catalog.ParseSetupType(name)
	if err != nil {
		return err
	}
	for {
		cur := s.settings.Load()
		next := cur.clone()
		filtered := next.EnabledTypes[:0]
		for _, existing := range next.EnabledTypes {
			if existing != t {
				filtered = append(filtered, existing)
			}
		}
		next.EnabledTypes = filtered
		if s.settings.CompareAndSwap(cur, next) {
			return nil
		}
	}
}

// Watchlist returns a copy of the current watchlist.
func (s *Scanner) Watchlist() []string {
	return append([]string(nil), s.settings.Load().Watchlist...)
}

// EnabledSetupTypes returns a copy of the enabled setup types.
func (s *Scanner) EnabledSetupTypes() []catalog.SetupType {
	return append([]catalog.SetupType(nil), s.settings.Load().EnabledTypes...)
}

// FormingSetups returns tracked setups above minProbability, optionally
// filtered by type and symbol, sorted by descending trigger probability.
func (s *Scanner) FormingSetups(minProbability float64, types []catalog.SetupType, symbols []string) []setups.FormingSetup {
	return s.reg.Snapshot(registry.Filter{
		MinProbability: minProbability,
		SetupTypes:     types,
		Symbols:        symbols,
	})
}

// ActiveAlerts returns pending alerts, highest probability first.
func (s *Scanner) ActiveAlerts() []setups.TriggerAlert {
	return s.alerts.Active()
}

// AlertHistory returns up to limit resolved alerts, newest first.
func (s *Scanner) AlertHistory(limit int) []setups.TriggerAlert {
	return s.alerts.History(limit)
}

// ResolveAlert reports an external outcome for an active alert and moves the
// source setup into the matching terminal phase. A setup that was already
// dropped or superseded since the alert fired is left alone.
func (s *Scanner) ResolveAlert(alertID string, status setups.AlertStatus, outcome setups.AlertOutcome) error {
	resolved, err := s.alerts.Resolve(alertID, status, outcome)
	if err != nil {
		return err
	}
	phase := setups.PhaseTriggered
	if status == setups.AlertInvalidated {
		phase = setups.PhaseInvalidated
	}
	s.reg.MarkPhase(resolved.SetupID, phase)
	return nil
}

// Status returns the best-known scan state.
func (s *Scanner) Status() Status {
	s.statusMu.RLock()
	st := s.last
	s.statusMu.RUnlock()
	st.Running = s.IsRunning()
	st.SetupsTracked = s.reg.Len()
	st.ActiveAlerts = len(s.alerts.Active())
	return st
}

// partition splits symbols into batches of size n, preserving watchlist
// order.
func partition(symbols []string, n int) [][]string {
	if n <= 0 {
		n = 1
	}
	var out [][]string
	for start := 0; start < len(symbols); start += n {
		end := start + n
		if end > len(symbols) {
			end = len(symbols)
		}
		out = append(out, symbols[start:end])
	}
	return out
}

// sleepCtx sleeps for d or until ctx is cancelled. Returns false on
// cancellation.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
