package grid

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/signalsfoundry/gridsim/model"
)

const epsilon = 1e-9

// scriptedRand replays vals in order and then returns fallback forever.
type scriptedRand struct {
	vals     []float64
	fallback float64
}

func (s *scriptedRand) Float64() float64 {
	if len(s.vals) == 0 {
		return s.fallback
	}
	v := s.vals[0]
	s.vals = s.vals[1:]
	return v
}

// recordingRand remembers every value it hands out.
type recordingRand struct {
	r     Rand
	drawn []float64
}

func (r *recordingRand) Float64() float64 {
	v := r.r.Float64()
	r.drawn = append(r.drawn, v)
	return v
}

func newTestEngine(t *testing.T, r Rand) *Engine {
	t.Helper()
	fixed := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	return NewEngine(context.Background(), nil,
		WithRand(r),
		WithClock(func() time.Time { return fixed }),
	)
}

func seededRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) <= epsilon*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}

func mustNode(t *testing.T, s model.GridSnapshot, id string) model.Node {
	t.Helper()
	n, ok := s.Node(id)
	if !ok {
		t.Fatalf("node %q missing from snapshot", id)
	}
	return n
}

func TestNewEngineSeedTopology(t *testing.T) {
	e := newTestEngine(t, seededRand(1))

	nodes, links := e.Counts()
	if nodes != 5 || links != 4 {
		t.Fatalf("seed counts = (%d nodes, %d links), want (5, 4)", nodes, links)
	}
	for _, l := range e.Links() {
		if _, ok := e.Node(l.SourceID); !ok {
			t.Fatalf("link %s: source %q does not resolve", l.ID, l.SourceID)
		}
		if _, ok := e.Node(l.TargetID); !ok {
			t.Fatalf("link %s: target %q does not resolve", l.ID, l.TargetID)
		}
	}
	gen, _ := e.Node(PrimarySourceID)
	if gen.Kind != model.NodeKindSource || gen.Generation != 1000 {
		t.Fatalf("gen1 = %+v, want source generating 1000", gen)
	}
	if e.SolarPotential() != DefaultSolarPotential {
		t.Fatalf("solar potential without lookup = %v, want %v", e.SolarPotential(), DefaultSolarPotential)
	}
}

func TestNewEngineResolvesSolarPotential(t *testing.T) {
	tests := []struct {
		name   string
		lookup SolarLookup
		want   float64
	}{
		{
			name: "usable estimate",
			lookup: SolarLookupFunc(func(context.Context, float64, float64) (*SolarEstimate, error) {
				return &SolarEstimate{Outputs: &SolarOutputs{}}, nil
			}),
			want: AvailableSolarPotential,
		},
		{
			name: "lookup error",
			lookup: SolarLookupFunc(func(context.Context, float64, float64) (*SolarEstimate, error) {
				return nil, errors.New("connection refused")
			}),
			want: DefaultSolarPotential,
		},
		{
			name: "absent response",
			lookup: SolarLookupFunc(func(context.Context, float64, float64) (*SolarEstimate, error) {
				return nil, nil
			}),
			want: DefaultSolarPotential,
		},
		{
			name: "missing outputs",
			lookup: SolarLookupFunc(func(context.Context, float64, float64) (*SolarEstimate, error) {
				return &SolarEstimate{}, nil
			}),
			want: DefaultSolarPotential,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEngine(context.Background(), tt.lookup, WithRand(seededRand(2)))
			if got := e.SolarPotential(); got != tt.want {
				t.Fatalf("SolarPotential() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewEngineQueriesRenewableCoordinates(t *testing.T) {
	var gotLat, gotLon float64
	calls := 0
	lookup := SolarLookupFunc(func(_ context.Context, lat, lon float64) (*SolarEstimate, error) {
		calls++
		gotLat, gotLon = lat, lon
		return &SolarEstimate{Outputs: &SolarOutputs{}}, nil
	})

	e := NewEngine(context.Background(), lookup, WithRand(seededRand(3)), WithSolarPotentials(650, 0))
	for i := 0; i < 10; i++ {
		e.Tick()
	}

	if calls != 1 {
		t.Fatalf("lookup called %d times, want 1", calls)
	}
	if gotLat != 38.95 || gotLon != -77.05 {
		t.Fatalf("lookup coordinates = (%v, %v), want (38.95, -77.05)", gotLat, gotLon)
	}
	if e.SolarPotential() != 650 {
		t.Fatalf("SolarPotential() = %v, want overridden 650", e.SolarPotential())
	}
}

func TestTickScriptedDraws(t *testing.T) {
	// cons1 x1.1, cons2 x0.9, cons3 x1.0, solar at half potential, no leak.
	r := &scriptedRand{vals: []float64{1.0, 0.0, 0.5, 0.5, 0.99}, fallback: 0.5}
	e := newTestEngine(t, r)

	snap := e.Tick()

	wantLoads := map[string]float64{"cons1": 220, "cons2": 450, "cons3": 150}
	for id, want := range wantLoads {
		if got := mustNode(t, snap, id).Load; !approxEqual(got, want) {
			t.Fatalf("%s load = %v, want %v", id, got, want)
		}
	}
	if !approxEqual(snap.TotalLoad, 820) {
		t.Fatalf("TotalLoad = %v, want 820", snap.TotalLoad)
	}
	if got := mustNode(t, snap, RenewableSourceID).Generation; !approxEqual(got, 150) {
		t.Fatalf("sol1 generation = %v, want 150", got)
	}
	if got := mustNode(t, snap, PrimarySourceID).Generation; !approxEqual(got, 670) {
		t.Fatalf("gen1 generation = %v, want 670", got)
	}
	if !approxEqual(snap.TotalGeneration, 820) {
		t.Fatalf("TotalGeneration = %v, want 820", snap.TotalGeneration)
	}
	if !approxEqual(snap.Efficiency, 1) {
		t.Fatalf("Efficiency = %v, want 1", snap.Efficiency)
	}
	if snap.LeakDetected {
		t.Fatal("LeakDetected = true without injection")
	}
	if len(r.vals) != 0 {
		t.Fatalf("tick consumed %d draws too few", len(r.vals))
	}
	if want := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC); !snap.Timestamp.Equal(want) {
		t.Fatalf("Timestamp = %v, want %v", snap.Timestamp, want)
	}
}

func TestTickInvariantsHoldOverManyTicks(t *testing.T) {
	e := newTestEngine(t, seededRand(42))
	e.Ingest([]ChargerRecord{{ID: "1"}, {ID: "2"}, {ID: "3"}})

	for i := 0; i < 1000; i++ {
		if i == 300 {
			e.ToggleNode(RenewableSourceID)
		}
		if i == 600 {
			e.ToggleNode("cons2")
		}
		snap := e.Tick()

		if snap.TotalLoad < 0 {
			t.Fatalf("tick %d: TotalLoad = %v < 0", i, snap.TotalLoad)
		}
		sum := 0.0
		for _, n := range snap.Nodes {
			if n.Load < 0 || n.Generation < 0 {
				t.Fatalf("tick %d: node %s has negative load/generation: %+v", i, n.ID, n)
			}
			if n.Kind == model.NodeKindConsumer && n.IsActive() {
				if n.Load < MinConsumerLoad || n.Load > MaxConsumerLoad {
					t.Fatalf("tick %d: %s load %v outside [%v, %v]", i, n.ID, n.Load, MinConsumerLoad, MaxConsumerLoad)
				}
				sum += n.Load
			}
		}
		if !approxEqual(sum, snap.TotalLoad) {
			t.Fatalf("tick %d: TotalLoad = %v, want sum of active consumers %v", i, snap.TotalLoad, sum)
		}

		solar := mustNode(t, snap, RenewableSourceID)
		renewable := 0.0
		if solar.IsActive() {
			renewable = solar.Generation
			if renewable > e.SolarPotential() {
				t.Fatalf("tick %d: solar generation %v exceeds potential %v", i, renewable, e.SolarPotential())
			}
		}
		wantPrimary := math.Max(0, snap.TotalLoad-renewable)
		if got := mustNode(t, snap, PrimarySourceID).Generation; !approxEqual(got, wantPrimary) {
			t.Fatalf("tick %d: gen1 generation = %v, want %v", i, got, wantPrimary)
		}

		if snap.TotalGeneration == 0 {
			if snap.Efficiency != 0 {
				t.Fatalf("tick %d: Efficiency = %v with zero generation", i, snap.Efficiency)
			}
		} else if !approxEqual(snap.Efficiency, snap.TotalLoad/snap.TotalGeneration) {
			t.Fatalf("tick %d: Efficiency = %v, want %v", i, snap.Efficiency, snap.TotalLoad/snap.TotalGeneration)
		}
	}
}

func TestTickClampsLoads(t *testing.T) {
	high := newTestEngine(t, &scriptedRand{fallback: 0.999999})
	var snap model.GridSnapshot
	for i := 0; i < 40; i++ {
		snap = high.Tick()
	}
	for _, id := range []string{"cons1", "cons2", "cons3"} {
		if got := mustNode(t, snap, id).Load; got != MaxConsumerLoad {
			t.Fatalf("%s load after sustained growth = %v, want %v", id, got, MaxConsumerLoad)
		}
	}

	low := newTestEngine(t, &scriptedRand{fallback: 0})
	for i := 0; i < 40; i++ {
		snap = low.Tick()
	}
	for _, id := range []string{"cons1", "cons2", "cons3"} {
		if got := mustNode(t, snap, id).Load; got != MinConsumerLoad {
			t.Fatalf("%s load after sustained decline = %v, want %v", id, got, MinConsumerLoad)
		}
	}
}

func TestTickInactiveRenewableIsExcludedFromDispatch(t *testing.T) {
	e := newTestEngine(t, seededRand(7))
	before := mustNode(t, e.Tick(), RenewableSourceID).Generation

	if !e.ToggleNode(RenewableSourceID) {
		t.Fatal("ToggleNode(sol1) = false")
	}
	snap := e.Tick()

	if got := mustNode(t, snap, PrimarySourceID).Generation; !approxEqual(got, snap.TotalLoad) {
		t.Fatalf("gen1 generation = %v, want total load %v", got, snap.TotalLoad)
	}
	if got := mustNode(t, snap, RenewableSourceID).Generation; got != before {
		t.Fatalf("inactive sol1 generation changed: %v -> %v", before, got)
	}
}

func TestTickInactiveConsumerIsFrozen(t *testing.T) {
	e := newTestEngine(t, seededRand(8))
	e.ToggleNode("cons2")

	for i := 0; i < 20; i++ {
		snap := e.Tick()
		if got := mustNode(t, snap, "cons2").Load; got != 500 {
			t.Fatalf("inactive cons2 load = %v, want untouched 500", got)
		}
	}
}

func TestTickLeakThreshold(t *testing.T) {
	tests := []struct {
		name      string
		toggle    []string
		leakDraw  float64
		wantLeak  bool
		wantTotal float64
	}{
		{
			name:      "injected draw on small load is detected",
			toggle:    []string{RenewableSourceID, "cons2"},
			leakDraw:  0.01,
			wantLeak:  true,
			wantTotal: 350 + LeakAmount,
		},
		{
			name:      "injected draw hidden by large expected loss",
			toggle:    []string{RenewableSourceID},
			leakDraw:  0.01,
			wantLeak:  false,
			wantTotal: 850 + LeakAmount,
		},
		{
			name:      "no injection",
			toggle:    []string{RenewableSourceID, "cons2"},
			leakDraw:  0.5,
			wantLeak:  false,
			wantTotal: 350,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			active := 3 - (len(tt.toggle) - 1)
			draws := make([]float64, 0, active+1)
			for i := 0; i < active; i++ {
				draws = append(draws, 0.5) // x1.0
			}
			draws = append(draws, tt.leakDraw)

			e := newTestEngine(t, &scriptedRand{vals: draws, fallback: 0.5})
			for _, id := range tt.toggle {
				e.ToggleNode(id)
			}
			snap := e.Tick()

			if snap.LeakDetected != tt.wantLeak {
				t.Fatalf("LeakDetected = %v, want %v (load=%v gen=%v)", snap.LeakDetected, tt.wantLeak, snap.TotalLoad, snap.TotalGeneration)
			}
			if !approxEqual(snap.TotalGeneration, tt.wantTotal) {
				t.Fatalf("TotalGeneration = %v, want %v", snap.TotalGeneration, tt.wantTotal)
			}
		})
	}
}

func TestTickZeroGenerationHasZeroEfficiency(t *testing.T) {
	e := newTestEngine(t, &scriptedRand{fallback: 0.5})
	for _, id := range []string{RenewableSourceID, "cons1", "cons2", "cons3"} {
		e.ToggleNode(id)
	}

	snap := e.Tick()

	if snap.TotalLoad != 0 || snap.TotalGeneration != 0 {
		t.Fatalf("totals = (%v, %v), want zeros", snap.TotalLoad, snap.TotalGeneration)
	}
	if snap.Efficiency != 0 {
		t.Fatalf("Efficiency = %v, want 0", snap.Efficiency)
	}
	if snap.LeakDetected {
		t.Fatal("LeakDetected = true on an idle grid")
	}
}

// With the renewable source offline there is never surplus supply, so every
// flagged tick must be an injected one.
func TestTickLeakRateMatchesInjectionProbability(t *testing.T) {
	const ticks = 2000
	r := &recordingRand{r: seededRand(2024)}
	e := newTestEngine(t, r)
	e.ToggleNode(RenewableSourceID)

	injected, detected := 0, 0
	for i := 0; i < ticks; i++ {
		snap := e.Tick()
		leakDraw := r.drawn[len(r.drawn)-1]
		wasInjected := leakDraw < LeakProbability
		if wasInjected {
			injected++
		}
		if snap.LeakDetected {
			detected++
			if !wasInjected {
				t.Fatalf("tick %d: leak detected without injection (load=%v gen=%v)", i, snap.TotalLoad, snap.TotalGeneration)
			}
		}
		if wasInjected && snap.TotalLoad < 600 && !snap.LeakDetected {
			t.Fatalf("tick %d: injected leak missed at load %v", i, snap.TotalLoad)
		}
	}

	if injected < ticks/50 || injected > ticks*9/100 {
		t.Fatalf("injected on %d/%d ticks, want roughly %v", injected, ticks, LeakProbability)
	}
	if detected == 0 {
		t.Fatalf("no leak detected in %d ticks", ticks)
	}
}

func TestSnapshotIsDetachedFromEngine(t *testing.T) {
	e := newTestEngine(t, seededRand(9))
	snap := e.Tick()

	snap.Nodes[2].Load = -1
	*snap.Nodes[0].Lat = 0
	snap.Links[0].Capacity = 0

	cons1, _ := e.Node("cons1")
	gen1, _ := e.Node(PrimarySourceID)
	if cons1.Load < 0 || *gen1.Lat != 38.9 || e.Links()[0].Capacity != 1000 {
		t.Fatal("mutating a snapshot leaked into engine state")
	}
}

func TestToggleNode(t *testing.T) {
	e := newTestEngine(t, seededRand(10))

	if !e.ToggleNode(PrimarySourceID) {
		t.Fatal("ToggleNode(gen1) = false, want true")
	}
	if n, _ := e.Node(PrimarySourceID); n.Status != model.NodeStatusInactive {
		t.Fatalf("gen1 status = %q, want inactive", n.Status)
	}
	if !e.ToggleNode(PrimarySourceID) {
		t.Fatal("second ToggleNode(gen1) = false, want true")
	}
	if n, _ := e.Node(PrimarySourceID); n.Status != model.NodeStatusActive {
		t.Fatalf("gen1 status = %q, want active", n.Status)
	}
}

func TestToggleUnknownNodeMutatesNothing(t *testing.T) {
	e := newTestEngine(t, seededRand(11))
	e.Tick()
	before, beforeLinks := e.Nodes(), e.Links()

	if e.ToggleNode("does-not-exist") {
		t.Fatal("ToggleNode(unknown) = true, want false")
	}
	if diff := cmp.Diff(before, e.Nodes()); diff != "" {
		t.Fatalf("nodes changed (-before +after):\n%s", diff)
	}
	if diff := cmp.Diff(beforeLinks, e.Links()); diff != "" {
		t.Fatalf("links changed (-before +after):\n%s", diff)
	}
}

func TestToggleFaultedNodeReactivates(t *testing.T) {
	e := newTestEngine(t, seededRand(12))
	e.node("cons3").Status = model.NodeStatusFault

	if !e.ToggleNode("cons3") {
		t.Fatal("ToggleNode(cons3) = false")
	}
	if n, _ := e.Node("cons3"); n.Status != model.NodeStatusActive {
		t.Fatalf("cons3 status = %q, want active", n.Status)
	}
}
