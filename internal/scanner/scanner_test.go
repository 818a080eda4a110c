package scanner

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"setup-scanner/internal/alerts"
	"setup-scanner/internal/catalog"
	"setup-scanner/internal/marketdata"
	"setup-scanner/internal/notify"
	"setup-scanner/internal/setups"
)

// stubProvider serves canned snapshots and injectable per-symbol failures.
type stubProvider struct {
	mu    sync.Mutex
	snaps map[string]*marketdata.Snapshot
	fail  map[string]bool
}

func (p *stubProvider) GetSnapshot(_ context.Context, symbol string) (*marketdata.Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail[symbol] {
		return nil, fmt.Errorf("upstream unavailable for %s", symbol)
	}
	snap, ok := p.snaps[symbol]
	if !ok {
		return nil, fmt.Errorf("unknown symbol %s", symbol)
	}
	return snap, nil
}

func (p *stubProvider) setFail(symbol string, fail bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail == nil {
		p.fail = make(map[string]bool)
	}
	p.fail[symbol] = fail
}

// stretchedSnapshot qualifies as a rubber-band-long with probability ~0.60.
func stretchedSnapshot(symbol string) *marketdata.Snapshot {
	return &marketdata.Snapshot{
		Symbol:     symbol,
		Price:      48.00,
		Volume:     1_000_000,
		VWAP:       50.00,
		EMA9:       49.50,
		EMA20:      49.90,
		RSI14:      34,
		RelVolume:  2.1,
		ATR:        1.2,
		Resistance: 52.00,
		Support:    45.00,
		AsOf:       time.Now(),
	}
}

func newTestScanner(watchlist []string, provider marketdata.SnapshotProvider, bus *notify.Bus) *Scanner {
	mgr := alerts.NewManager(alerts.Config{ProbabilityThreshold: 0.55}, nil, zerolog.Nop())
	return New(
		Config{
			BatchSize:      10,
			MinProbability: 0.20,
			AlertThreshold: 0.55,
			MaxTracked:     200,
		},
		Settings{
			Watchlist:    watchlist,
			EnabledTypes: []catalog.SetupType{catalog.RubberBandLong},
			ScanInterval: 90 * time.Second,
		},
		provider, nil, mgr, bus, zerolog.Nop(),
	)
}

func TestScanTracksAndAlerts(t *testing.T) {
	provider := &stubProvider{snaps: map[string]*marketdata.Snapshot{"ABCD": stretchedSnapshot("ABCD")}}
	bus := notify.NewBus(4, zerolog.Nop())
	defer bus.Close()
	sub := bus.Subscribe()

	sc := newTestScanner([]string{"ABCD"}, provider, bus)
	sc.Scan(context.Background())

	tracked := sc.FormingSetups(0, nil, nil)
	if len(tracked) != 1 {
		t.Fatalf("tracked %d setups, want 1", len(tracked))
	}
	if tracked[0].Symbol != "ABCD" || tracked[0].SetupType != catalog.RubberBandLong {
		t.Errorf("unexpected setup: %s %s", tracked[0].Symbol, tracked[0].SetupType)
	}
	if tracked[0].Phase != setups.PhaseNearlyReady {
		t.Errorf("phase %s, want nearly_ready", tracked[0].Phase)
	}

	active := sc.ActiveAlerts()
	if len(active) != 1 {
		t.Fatalf("active alerts %d, want 1", len(active))
	}

	select {
	case a := <-sub:
		if a.Symbol != "ABCD" {
			t.Errorf("published alert for %s", a.Symbol)
		}
	default:
		t.Error("no alert published to the bus")
	}

	status := sc.Status()
	if status.SymbolsScanned != 1 || status.SymbolErrors != 0 {
		t.Errorf("status scanned=%d errors=%d, want 1/0", status.SymbolsScanned, status.SymbolErrors)
	}
	if status.SetupsTracked != 1 || status.ActiveAlerts != 1 {
		t.Errorf("status tracked=%d alerts=%d, want 1/1", status.SetupsTracked, status.ActiveAlerts)
	}
}

func TestScanDoesNotDuplicateAlerts(t *testing.T) {
	provider := &stubProvider{snaps: map[string]*marketdata.Snapshot{"ABCD": stretchedSnapshot("ABCD")}}
	bus := notify.NewBus(4, zerolog.Nop())
	defer bus.Close()

	sc := newTestScanner([]string{"ABCD"}, provider, bus)
	sc.Scan(context.Background())
	sc.Scan(context.Background())

	if active := sc.ActiveAlerts(); len(active) != 1 {
		t.Errorf("active alerts %d after two scans of unchanged conditions, want 1", len(active))
	}
}

func TestScanIsolatesSymbolFailures(t *testing.T) {
	provider := &stubProvider{snaps: map[string]*marketdata.Snapshot{"ABCD": stretchedSnapshot("ABCD")}}
	provider.setFail("FAIL", true)
	bus := notify.NewBus(4, zerolog.Nop())
	defer bus.Close()

	sc := newTestScanner([]string{"ABCD", "FAIL"}, provider, bus)
	sc.Scan(context.Background())

	if tracked := sc.FormingSetups(0, nil, nil); len(tracked) != 1 {
		t.Errorf("tracked %d setups, want 1 despite the failing symbol", len(tracked))
	}
	status := sc.Status()
	if status.SymbolsScanned != 2 || status.SymbolErrors != 1 {
		t.Errorf("status scanned=%d errors=%d, want 2/1", status.SymbolsScanned, status.SymbolErrors)
	}
}

func TestCancelledScanLeavesRegistryIntact(t *testing.T) {
	provider := &stubProvider{snaps: map[string]*marketdata.Snapshot{"ABCD": stretchedSnapshot("ABCD")}}
	bus := notify.NewBus(4, zerolog.Nop())
	defer bus.Close()

	sc := newTestScanner([]string{"ABCD"}, provider, bus)
	sc.Scan(context.Background())
	if sc.Status().SetupsTracked != 1 {
		t.Fatal("precondition: one tracked setup")
	}

	// An abandoned tick must not be mistaken for "conditions dropped".
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	provider.setFail("ABCD", true)
	sc.Scan(cancelled)
	if sc.Status().SetupsTracked != 1 {
		t.Error("cancelled scan modified the registry")
	}

	// A tick that runs to completion without re-detecting the key drops it.
	sc.Scan(context.Background())
	if sc.Status().SetupsTracked != 0 {
		t.Error("completed scan with no detections should drop the stale entry")
	}
}

func TestStartStopIdempotent(t *testing.T) {
	provider := &stubProvider{snaps: map[string]*marketdata.Snapshot{}}
	bus := notify.NewBus(4, zerolog.Nop())
	defer bus.Close()

	sc := newTestScanner(nil, provider, bus)

	sc.Start()
	sc.Start() // second start is a no-op
	if !sc.IsRunning() {
		t.Fatal("scanner not running after Start")
	}

	sc.Stop()
	if sc.IsRunning() {
		t.Error("scanner still running after Stop")
	}
	sc.Stop() // second stop is a no-op
}

// slowProvider counts calls and simulates upstream latency.
type slowProvider struct {
	calls int64
	delay time.Duration
}

func (p *slowProvider) GetSnapshot(ctx context.Context, symbol string) (*marketdata.Snapshot, error) {
	atomic.AddInt64(&p.calls, 1)
	select {
	case <-time.After(p.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return stretchedSnapshot(symbol), nil
}

func TestStopDuringFirstTick(t *testing.T) {
	provider := &slowProvider{delay: 20 * time.Millisecond}
	bus := notify.NewBus(4, zerolog.Nop())
	defer bus.Close()

	sc := newTestScanner([]string{"ABCD", "EFGH"}, provider, bus)
	sc.Start()
	sc.Stop()

	if sc.IsRunning() {
		t.Fatal("scanner still running after Stop")
	}

	// No new ticks may start once cancellation is observed.
	calls := atomic.LoadInt64(&provider.calls)
	time.Sleep(50 * time.Millisecond)
	if again := atomic.LoadInt64(&provider.calls); again != calls {
		t.Errorf("provider called %d more times after Stop returned", again-calls)
	}
}

func TestResolveAlertMarksTerminalPhase(t *testing.T) {
	provider := &stubProvider{snaps: map[string]*marketdata.Snapshot{
		"ABCD": stretchedSnapshot("ABCD"),
		"WXYZ": stretchedSnapshot("WXYZ"),
	}}
	bus := notify.NewBus(4, zerolog.Nop())
	defer bus.Close()

	sc := newTestScanner([]string{"ABCD", "WXYZ"}, provider, bus)
	sc.Scan(context.Background())

	active := sc.ActiveAlerts()
	if len(active) != 2 {
		t.Fatalf("active alerts %d, want 2", len(active))
	}
	byAlertSymbol := map[string]string{}
	for _, a := range active {
		byAlertSymbol[a.Symbol] = a.ID
	}

	if err := sc.ResolveAlert(byAlertSymbol["ABCD"], setups.AlertTriggered, setups.OutcomeWin); err != nil {
		t.Fatalf("ResolveAlert failed: %v", err)
	}
	if err := sc.ResolveAlert(byAlertSymbol["WXYZ"], setups.AlertInvalidated, ""); err != nil {
		t.Fatalf("ResolveAlert failed: %v", err)
	}

	phases := map[string]setups.SetupPhase{}
	for _, s := range sc.FormingSetups(0, nil, nil) {
		phases[s.Symbol] = s.Phase
	}
	if phases["ABCD"] != setups.PhaseTriggered {
		t.Errorf("ABCD phase %s, want triggered", phases["ABCD"])
	}
	if phases["WXYZ"] != setups.PhaseInvalidated {
		t.Errorf("WXYZ phase %s, want invalidated", phases["WXYZ"])
	}
	if len(sc.ActiveAlerts()) != 0 {
		t.Error("resolved alerts still active")
	}
}

// cancellingProvider cancels the scan context from inside the first fetch,
// which models an operator stopping the scanner mid-batch.
type cancellingProvider struct {
	cancel context.CancelFunc
	calls  int64
}

func (p *cancellingProvider) GetSnapshot(_ context.Context, symbol string) (*marketdata.Snapshot, error) {
	if atomic.AddInt64(&p.calls, 1) == 1 {
		p.cancel()
	}
	return stretchedSnapshot(symbol), nil
}

func TestCancellationStopsMidBatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	provider := &cancellingProvider{cancel: cancel}
	bus := notify.NewBus(4, zerolog.Nop())
	defer bus.Close()

	// Both symbols share one batch, so only the per-symbol cancellation check
	// can keep the second symbol from being fetched.
	sc := newTestScanner([]string{"ABCD", "WXYZ"}, provider, bus)
	sc.Scan(ctx)

	if calls := atomic.LoadInt64(&provider.calls); calls != 1 {
		t.Errorf("provider fetched %d symbols, want the in-flight one only", calls)
	}
}

func TestConcurrentScanAndReads(t *testing.T) {
	provider := &stubProvider{snaps: map[string]*marketdata.Snapshot{
		"ABCD": stretchedSnapshot("ABCD"),
		"WXYZ": stretchedSnapshot("WXYZ"),
	}}
	bus := notify.NewBus(64, zerolog.Nop())
	defer bus.Close()

	sc := newTestScanner([]string{"ABCD", "WXYZ"}, provider, bus)

	var wg sync.WaitGroup
	done := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				for _, s := range sc.FormingSetups(0, nil, nil) {
					_ = s.AlertSent
					_ = s.Phase
				}
				sc.ActiveAlerts()
				sc.Status()
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			sc.Scan(context.Background())
			for _, a := range sc.ActiveAlerts() {
				_ = sc.ResolveAlert(a.ID, setups.AlertTriggered, setups.OutcomeWin)
			}
		}
		close(done)
	}()

	wg.Wait()
}

func TestEnableDisableSetupType(t *testing.T) {
	provider := &stubProvider{snaps: map[string]*marketdata.Snapshot{}}
	bus := notify.NewBus(4, zerolog.Nop())
	defer bus.Close()

	sc := newTestScanner(nil, provider, bus)

	if err := sc.EnableSetupType("no-such-setup"); err == nil {
		t.Error("expected error for unknown setup type")
	}
	if err := sc.DisableSetupType("no-such-setup"); err == nil {
		t.Error("expected error for unknown setup type")
	}

	if err := sc.EnableSetupType("breakout"); err != nil {
		t.Fatalf("EnableSetupType failed: %v", err)
	}
	if err := sc.EnableSetupType("breakout"); err != nil {
		t.Fatalf("repeat enable failed: %v", err)
	}
	enabled := sc.EnabledSetupTypes()
	if len(enabled) != 2 {
		t.Fatalf("enabled %d types, want 2", len(enabled))
	}

	if err := sc.DisableSetupType("rubber-band-long"); err != nil {
		t.Fatalf("DisableSetupType failed: %v", err)
	}
	enabled = sc.EnabledSetupTypes()
	if len(enabled) != 1 || enabled[0] != catalog.Breakout {
		t.Errorf("enabled types %v, want [breakout]", enabled)
	}
}

func TestSetWatchlistCopies(t *testing.T) {
	provider := &stubProvider{snaps: map[string]*marketdata.Snapshot{}}
	bus := notify.NewBus(4, zerolog.Nop())
	defer bus.Close()

	sc := newTestScanner(nil, provider, bus)

	input := []string{"AAPL", "TSLA"}
	sc.SetWatchlist(input)
	input[0] = "MUTATED"

	got := sc.Watchlist()
	if len(got) != 2 || got[0] != "AAPL" {
		t.Errorf("watchlist %v, want the values at call time", got)
	}

	got[1] = "MUTATED"
	if again := sc.Watchlist(); again[1] != "TSLA" {
		t.Error("Watchlist must return a copy")
	}
}

func TestEmptyEnabledTypesDefaultsToAll(t *testing.T) {
	provider := &stubProvider{snaps: map[string]*marketdata.Snapshot{}}
	bus := notify.NewBus(4, zerolog.Nop())
	defer bus.Close()

	mgr := alerts.NewManager(alerts.Config{}, nil, zerolog.Nop())
	sc := New(Config{}, Settings{}, provider, nil, mgr, bus, zerolog.Nop())

	if got := len(sc.EnabledSetupTypes()); got != len(catalog.AllSetupTypes()) {
		t.Errorf("enabled %d types, want all %d", got, len(catalog.AllSetupTypes()))
	}
}
