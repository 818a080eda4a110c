package registry

import (
	"sync"
	"testing"
	"time"

	"setup-scanner/internal/catalog"
	"setup-scanner/internal/setups"
)

func makeSetup(symbol string, st catalog.SetupType, probability float64) *setups.FormingSetup {
	now := time.Now()
	return &setups.FormingSetup{
		ID:                 symbol + "-" + st.String(),
		Symbol:             symbol,
		SetupType:          st,
		Direction:          st.Direction(),
		CurrentPrice:       48.0,
		TriggerPrice:       49.5,
		TriggerProbability: probability,
		Phase:              setups.PhaseOf(probability),
		KeyLevels:          map[string]float64{"entry": 49.5},
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

func TestApplyReplacesAndDrops(t *testing.T) {
	r := New(100, 0.60)

	r.Apply([]*setups.FormingSetup{
		makeSetup("AAPL", catalog.RubberBandLong, 0.50),
		makeSetup("TSLA", catalog.Breakout, 0.60),
	})
	if r.Len() != 2 {
		t.Fatalf("tracked %d setups, want 2", r.Len())
	}

	// Next tick only AAPL still qualifies: TSLA's conditions dropped.
	r.Apply([]*setups.FormingSetup{
		makeSetup("AAPL", catalog.RubberBandLong, 0.55),
	})
	if r.Len() != 1 {
		t.Fatalf("tracked %d setups, want 1 after drop", r.Len())
	}
	snap := r.Snapshot(Filter{})
	if len(snap) != 1 || snap[0].Symbol != "AAPL" {
		t.Fatalf("unexpected survivor: %+v", snap)
	}
	if snap[0].TriggerProbability != 0.55 {
		t.Errorf("probability %.2f, want the replacement's 0.55", snap[0].TriggerProbability)
	}
}

func TestApplyCarriesCreatedAtForward(t *testing.T) {
	r := New(100, 0.60)

	first := makeSetup("AAPL", catalog.RubberBandLong, 0.50)
	first.CreatedAt = time.Date(2026, 8, 25, 9, 30, 0, 0, time.UTC)
	r.Apply([]*setups.FormingSetup{first})

	second := makeSetup("AAPL", catalog.RubberBandLong, 0.60)
	r.Apply([]*setups.FormingSetup{second})

	snap := r.Snapshot(Filter{})
	if len(snap) != 1 {
		t.Fatalf("tracked %d setups, want 1", len(snap))
	}
	if !snap[0].CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("CreatedAt %v, want original first-seen time %v", snap[0].CreatedAt, first.CreatedAt)
	}
}

func TestApplyAlertSentCarryForward(t *testing.T) {
	r := New(100, 0.60)
	key := setups.SetupKey{Symbol: "AAPL", SetupType: catalog.RubberBandLong}

	r.Apply([]*setups.FormingSetup{makeSetup("AAPL", catalog.RubberBandLong, 0.70)})
	if !r.MarkAlertSent(key, time.Now()) {
		t.Fatal("MarkAlertSent failed for a tracked key")
	}

	// Replacement stays above the alert threshold: the flag carries forward,
	// so no duplicate alert fires.
	r.Apply([]*setups.FormingSetup{makeSetup("AAPL", catalog.RubberBandLong, 0.65)})
	if snap := r.Snapshot(Filter{}); !snap[0].AlertSent || snap[0].AlertSentAt == nil {
		t.Error("alert-sent flag lost on replacement above threshold")
	}

	// Mark again, then replace below the threshold: conditions changed enough
	// that the setup earns a fresh alert evaluation.
	r.MarkAlertSent(key, time.Now())
	r.Apply([]*setups.FormingSetup{makeSetup("AAPL", catalog.RubberBandLong, 0.40)})
	if snap := r.Snapshot(Filter{}); snap[0].AlertSent {
		t.Error("alert-sent flag must reset when probability falls below threshold")
	}

	if r.MarkAlertSent(setups.SetupKey{Symbol: "GONE", SetupType: catalog.Breakout}, time.Now()) {
		t.Error("MarkAlertSent must report false for untracked keys")
	}
}

func TestAlertCandidates(t *testing.T) {
	r := New(100, 0.60)

	eligible := makeSetup("AAPL", catalog.RubberBandLong, 0.72)
	belowThreshold := makeSetup("TSLA", catalog.Breakout, 0.55)
	earlyPhase := makeSetup("NVDA", catalog.Breakout, 0.45)
	r.Apply([]*setups.FormingSetup{eligible, belowThreshold, earlyPhase})

	cands := r.AlertCandidates()
	if len(cands) != 1 || cands[0].Symbol != "AAPL" {
		t.Fatalf("candidates %+v, want only AAPL", cands)
	}

	// Candidates are copies: mutating one never reaches the live entry.
	cands[0].TriggerProbability = 0.01
	if again := r.AlertCandidates(); len(again) != 1 || again[0].TriggerProbability != 0.72 {
		t.Error("candidate mutation reached the live entry")
	}

	// A sent mark removes the key from future candidate sets.
	r.MarkAlertSent(eligible.Key(), time.Now())
	if cands := r.AlertCandidates(); len(cands) != 0 {
		t.Errorf("candidates after mark: %d, want 0", len(cands))
	}
}

func TestMarkPhaseTerminal(t *testing.T) {
	r := New(100, 0.60)
	s := makeSetup("AAPL", catalog.RubberBandLong, 0.72)
	r.Apply([]*setups.FormingSetup{s})

	if !r.MarkPhase(s.ID, setups.PhaseTriggered) {
		t.Fatal("MarkPhase failed for a live setup ID")
	}
	snap := r.Snapshot(Filter{})
	if snap[0].Phase != setups.PhaseTriggered {
		t.Errorf("phase %s, want triggered", snap[0].Phase)
	}

	// A stale ID (superseded entry) is a no-op.
	if r.MarkPhase("no-such-id", setups.PhaseInvalidated) {
		t.Error("MarkPhase must report false for unknown setup IDs")
	}
	if snap := r.Snapshot(Filter{}); snap[0].Phase != setups.PhaseTriggered {
		t.Error("stale MarkPhase must not touch live entries")
	}
}

func TestApplyEvictsLowestOverCapacity(t *testing.T) {
	r := New(3, 0.60)

	r.Apply([]*setups.FormingSetup{
		makeSetup("AAA", catalog.RubberBandLong, 0.20),
		makeSetup("BBB", catalog.RubberBandLong, 0.30),
		makeSetup("CCC", catalog.RubberBandLong, 0.40),
		makeSetup("DDD", catalog.RubberBandLong, 0.50),
		makeSetup("EEE", catalog.RubberBandLong, 0.60),
	})

	if r.Len() != 3 {
		t.Fatalf("tracked %d setups, want capacity 3", r.Len())
	}
	snap := r.Snapshot(Filter{})
	for _, s := range snap {
		if s.Symbol == "AAA" || s.Symbol == "BBB" {
			t.Errorf("low-probability setup %s survived eviction", s.Symbol)
		}
	}
}

func TestSnapshotFilterAndOrder(t *testing.T) {
	r := New(100, 0.60)
	r.Apply([]*setups.FormingSetup{
		makeSetup("AAPL", catalog.RubberBandLong, 0.45),
		makeSetup("TSLA", catalog.Breakout, 0.70),
		makeSetup("NVDA", catalog.Breakout, 0.55),
	})

	all := r.Snapshot(Filter{})
	if len(all) != 3 {
		t.Fatalf("got %d setups, want 3", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].TriggerProbability > all[i-1].TriggerProbability {
			t.Fatal("snapshot not sorted by descending probability")
		}
	}

	byProb := r.Snapshot(Filter{MinProbability: 0.50})
	if len(byProb) != 2 {
		t.Errorf("probability filter returned %d, want 2", len(byProb))
	}

	byType := r.Snapshot(Filter{SetupTypes: []catalog.SetupType{catalog.Breakout}})
	if len(byType) != 2 {
		t.Errorf("type filter returned %d, want 2", len(byType))
	}

	bySymbol := r.Snapshot(Filter{Symbols: []string{"AAPL"}})
	if len(bySymbol) != 1 || bySymbol[0].Symbol != "AAPL" {
		t.Errorf("symbol filter returned %+v", bySymbol)
	}
}

func TestSnapshotReturnsCopies(t *testing.T) {
	r := New(100, 0.60)
	r.Apply([]*setups.FormingSetup{makeSetup("AAPL", catalog.RubberBandLong, 0.50)})

	snap := r.Snapshot(Filter{})
	snap[0].KeyLevels["entry"] = 1.0
	snap[0].TriggerProbability = 0.99

	again := r.Snapshot(Filter{})
	if again[0].KeyLevels["entry"] != 49.5 {
		t.Error("snapshot shares the key-levels map with the live entry")
	}
	if again[0].TriggerProbability != 0.50 {
		t.Error("snapshot mutation reached the live entry")
	}
}

func TestConcurrentReadersAndWriters(t *testing.T) {
	r := New(100, 0.60)
	r.Apply([]*setups.FormingSetup{
		makeSetup("AAPL", catalog.RubberBandLong, 0.72),
		makeSetup("TSLA", catalog.Breakout, 0.68),
	})

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
				for _, s := range r.Snapshot(Filter{}) {
					_ = s.AlertSent
					_ = s.Phase
				}
				r.AlertCandidates()
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		key := setups.SetupKey{Symbol: "AAPL", SetupType: catalog.RubberBandLong}
		for i := 0; i < 200; i++ {
			r.MarkAlertSent(key, time.Now())
			r.MarkPhase("AAPL-rubber-band-long", setups.PhaseTriggered)
			r.Apply([]*setups.FormingSetup{
				makeSetup("AAPL", catalog.RubberBandLong, 0.72),
				makeSetup("TSLA", catalog.Breakout, 0.68),
			})
		}
		close(done)
	}()

	wg.Wait()
}
