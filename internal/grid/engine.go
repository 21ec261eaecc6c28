package grid

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/signalsfoundry/gridsim/internal/logging"
	"github.com/signalsfoundry/gridsim/model"
)

// Tick model parameters.
const (
	MinLoadFluctuation = 0.9
	MaxLoadFluctuation = 1.1

	MinConsumerLoad = 50.0  // kW
	MaxConsumerLoad = 800.0 // kW

	// TechnicalLossRatio is the share of demand assumed lost in the wires.
	TechnicalLossRatio = 0.05

	// LeakProbability is the per-tick chance of an unmetered draw.
	LeakProbability = 0.05
	// LeakAmount is the synthetic discrepancy (kW) added to generation when
	// an unmetered draw occurs.
	LeakAmount = 50.0
	// LeakSensitivity scales the expected technical loss into the detection
	// threshold: a tick is flagged when actual loss exceeds
	// expected loss * LeakSensitivity.
	LeakSensitivity = 1.5
)

// Ingestion parameters.
const (
	MinChargerLoad = 20.0 // kW
	MaxChargerLoad = 80.0 // kW

	// ChargerLinkCapacity is the advisory capacity (kW) of links created for
	// ingested chargers.
	ChargerLinkCapacity = 200.0
)

// Rand is the randomness the engine draws from. *rand.Rand from
// math/rand/v2 satisfies it.
type Rand interface {
	// Float64 returns a value in [0, 1).
	Float64() float64
}

// Engine owns the live grid topology and advances it tick by tick.
//
// Engine is not safe for concurrent use; hosts must serialise calls to Tick,
// ToggleNode and Ingest.
type Engine struct {
	nodes []model.Node
	links []model.Link
	index map[string]int

	solarPotential float64

	rng Rand
	now func() time.Time
	log logging.Logger
}

type engineConfig struct {
	rng                Rand
	now                func() time.Time
	log                logging.Logger
	availablePotential float64
	fallbackPotential  float64
}

// Option customises Engine construction.
type Option func(*engineConfig)

// WithRand injects the randomness source.
func WithRand(r Rand) Option {
	return func(c *engineConfig) {
		if r != nil {
			c.rng = r
		}
	}
}

// WithClock overrides the snapshot timestamp source.
func WithClock(now func() time.Time) Option {
	return func(c *engineConfig) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger attaches a structured logger.
func WithLogger(l logging.Logger) Option {
	return func(c *engineConfig) {
		if l != nil {
			c.log = l
		}
	}
}

// WithSolarPotentials overrides the renewable baselines used when the solar
// lookup succeeds (available) or not (fallback). Non-positive values keep
// the defaults.
func WithSolarPotentials(available, fallback float64) Option {
	return func(c *engineConfig) {
		if available > 0 {
			c.availablePotential = available
		}
		if fallback > 0 {
			c.fallbackPotential = fallback
		}
	}
}

// NewEngine builds an engine over the seed topology. The solar lookup, if
// any, is consulted exactly once here at the renewable source's
// coordinates; its failure only selects the fallback potential.
func NewEngine(ctx context.Context, lookup SolarLookup, opts ...Option) *Engine {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := engineConfig{
		now:                time.Now,
		log:                logging.Noop(),
		availablePotential: AvailableSolarPotential,
		fallbackPotential:  DefaultSolarPotential,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.rng == nil {
		cfg.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	e := &Engine{
		nodes: seedNodes(),
		links: seedLinks(),
		index: make(map[string]int),
		rng:   cfg.rng,
		now:   cfg.now,
		log:   cfg.log,
	}
	for i, n := range e.nodes {
		e.index[n.ID] = i
	}

	solar := e.node(RenewableSourceID)
	e.solarPotential = resolveSolarPotential(ctx, lookup, *solar.Lat, *solar.Lon,
		cfg.availablePotential, cfg.fallbackPotential, e.log)

	return e
}

// SolarPotential returns the renewable baseline fixed at construction.
func (e *Engine) SolarPotential() float64 {
	return e.solarPotential
}

// Tick advances the grid by one step and returns the resulting snapshot.
//
// Steps run in a fixed order because each consumes the previous aggregate:
// demand fluctuation, renewable sampling, balancing dispatch, loss
// accounting. Randomness is drawn once per active consumer (in node order),
// once for an active renewable source and once for leak injection.
func (e *Engine) Tick() model.GridSnapshot {
	totalLoad := 0.0
	for i := range e.nodes {
		n := &e.nodes[i]
		if n.Kind != model.NodeKindConsumer || !n.IsActive() {
			continue
		}
		n.Load = clamp(n.Load*e.uniform(MinLoadFluctuation, MaxLoadFluctuation), MinConsumerLoad, MaxConsumerLoad)
		totalLoad += n.Load
	}

	// Status, not the stored number, gates renewable participation.
	renewable := 0.0
	if solar := e.node(RenewableSourceID); solar != nil && solar.IsActive() {
		solar.Generation = e.solarPotential * e.uniform(0, 1)
		renewable = solar.Generation
	}

	primaryContribution := 0.0
	if primary := e.node(PrimarySourceID); primary != nil {
		primary.Generation = math.Max(0, totalLoad-renewable)
		if primary.IsActive() {
			primaryContribution = primary.Generation
		}
	}

	expectedLoss := totalLoad * TechnicalLossRatio
	totalGeneration := primaryContribution + renewable
	if e.rng.Float64() < LeakProbability {
		totalGeneration += LeakAmount
	}
	actualLoss := totalGeneration - totalLoad

	efficiency := 0.0
	if totalGeneration > 0 {
		efficiency = totalLoad / totalGeneration
	}

	return model.GridSnapshot{
		Nodes:           cloneNodes(e.nodes),
		Links:           cloneLinks(e.links),
		TotalLoad:       totalLoad,
		TotalGeneration: totalGeneration,
		Efficiency:      efficiency,
		LeakDetected:    actualLoss > expectedLoss*LeakSensitivity,
		Timestamp:       e.now(),
	}
}

// ToggleNode flips the node between active and inactive. Any status other
// than active (including fault) becomes active. It reports whether the node
// exists; unknown IDs leave the grid untouched.
func (e *Engine) ToggleNode(id string) bool {
	n := e.node(id)
	if n == nil {
		return false
	}
	if n.Status == model.NodeStatusActive {
		n.Status = model.NodeStatusInactive
	} else {
		n.Status = model.NodeStatusActive
	}
	return true
}

// Ingest adds a consumer node, fed from the primary source, for every
// record whose derived node ID is not already present. It returns the
// number of nodes created, so repeated calls with the same records are
// no-ops.
func (e *Engine) Ingest(records []ChargerRecord) int {
	created := 0
	for _, rec := range records {
		id := rec.NodeID()
		if _, exists := e.index[id]; exists {
			continue
		}

		lat, lon := rec.Coordinates()
		e.index[id] = len(e.nodes)
		e.nodes = append(e.nodes, model.Node{
			ID:     id,
			Kind:   model.NodeKindConsumer,
			Name:   "EV: " + rec.Title(),
			Load:   e.uniform(MinChargerLoad, MaxChargerLoad),
			Status: model.NodeStatusActive,
			Lat:    model.Coord(lat),
			Lon:    model.Coord(lon),
		})
		e.links = append(e.links, model.Link{
			ID:       chargerLinkPrefix + id,
			SourceID: PrimarySourceID,
			TargetID: id,
			Capacity: ChargerLinkCapacity,
			Status:   model.LinkStatusActive,
		})
		created++
	}
	return created
}

// Node returns a copy of the node with the given ID.
func (e *Engine) Node(id string) (model.Node, bool) {
	n := e.node(id)
	if n == nil {
		return model.Node{}, false
	}
	return cloneNodes([]model.Node{*n})[0], true
}

// Nodes returns a copy of the node list in insertion order.
func (e *Engine) Nodes() []model.Node {
	return cloneNodes(e.nodes)
}

// Links returns a copy of the link list in insertion order.
func (e *Engine) Links() []model.Link {
	return cloneLinks(e.links)
}

// Counts returns the current node and link counts.
func (e *Engine) Counts() (nodes, links int) {
	return len(e.nodes), len(e.links)
}

func (e *Engine) node(id string) *model.Node {
	i, ok := e.index[id]
	if !ok {
		return nil
	}
	return &e.nodes[i]
}

func (e *Engine) uniform(lo, hi float64) float64 {
	return lo + (hi-lo)*e.rng.Float64()
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
