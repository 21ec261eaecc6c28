// Package state hosts the single grid engine shared by every caller of the
// service and serialises access to it.
package state

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/gridsim/internal/grid"
	"github.com/signalsfoundry/gridsim/internal/logging"
	"github.com/signalsfoundry/gridsim/internal/observability"
	"github.com/signalsfoundry/gridsim/model"
)

// MetricsRecorder receives grid-level measurements after each operation.
type MetricsRecorder interface {
	SetGridCounts(nodes, links int)
	ObserveTick(snap model.GridSnapshot, took time.Duration)
	AddIngested(n int)
	RecordToggle(found bool)
}

// GridState owns the engine. Every engine operation runs inside one
// exclusive critical section so that the periodic tick loop and on-demand
// toggle/ingest requests never interleave.
type GridState struct {
	// mu guards engine and last.
	mu     sync.Mutex
	engine *grid.Engine

	last    model.GridSnapshot
	hasLast bool

	log     logging.Logger
	metrics MetricsRecorder
	tracer  trace.Tracer
}

// Option customises GridState construction.
type Option func(*GridState)

// WithMetricsRecorder attaches an optional metrics recorder.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(s *GridState) {
		s.metrics = m
	}
}

// WithTracer overrides the tracer used for operation spans.
func WithTracer(t trace.Tracer) Option {
	return func(s *GridState) {
		if t != nil {
			s.tracer = t
		}
	}
}

// NewGridState wraps engine. The engine must not be used directly once
// handed over.
func NewGridState(engine *grid.Engine, log logging.Logger, opts ...Option) *GridState {
	if log == nil {
		log = logging.Noop()
	}
	s := &GridState{
		engine: engine,
		log:    log,
		tracer: observability.Tracer(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.mu.Lock()
	s.updateCountsLocked()
	s.mu.Unlock()
	return s
}

// Tick advances the grid one step and records the snapshot as current.
func (s *GridState) Tick(ctx context.Context) model.GridSnapshot {
	ctx, span := s.tracer.Start(ctx, "grid.Tick")
	defer span.End()

	s.mu.Lock()
	start := time.Now()
	snap := s.engine.Tick()
	took := time.Since(start)
	s.last = snap
	s.hasLast = true
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.ObserveTick(snap, took)
	}
	span.SetAttributes(
		attribute.Float64("grid.total_load_kw", snap.TotalLoad),
		attribute.Float64("grid.total_generation_kw", snap.TotalGeneration),
		attribute.Bool("grid.leak_detected", snap.LeakDetected),
	)

	log := logging.FromContext(ctx, s.log)
	if snap.LeakDetected {
		log.Warn(ctx, "leak detected",
			logging.Float("total_load_kw", snap.TotalLoad),
			logging.Float("total_generation_kw", snap.TotalGeneration))
	} else {
		log.Debug(ctx, "tick",
			logging.Float("total_load_kw", snap.TotalLoad),
			logging.Float("efficiency", snap.Efficiency))
	}
	return snap
}

// Toggle flips a node's active status. It reports false for unknown IDs.
func (s *GridState) Toggle(ctx context.Context, nodeID string) bool {
	ctx, span := s.tracer.Start(ctx, "grid.Toggle",
		trace.WithAttributes(attribute.String("grid.node_id", nodeID)))
	defer span.End()

	s.mu.Lock()
	found := s.engine.ToggleNode(nodeID)
	var status model.NodeStatus
	if found {
		n, _ := s.engine.Node(nodeID)
		status = n.Status
	}
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordToggle(found)
	}
	span.SetAttributes(attribute.Bool("grid.node_found", found))

	log := logging.FromContext(ctx, s.log)
	if !found {
		log.Info(ctx, "toggle requested for unknown node", logging.String("node_id", nodeID))
		return false
	}
	log.Info(ctx, "node toggled",
		logging.String("node_id", nodeID),
		logging.String("status", string(status)))
	return true
}

// Ingest merges external charger records into the topology and returns how
// many nodes were created.
func (s *GridState) Ingest(ctx context.Context, records []grid.ChargerRecord) int {
	ctx, span := s.tracer.Start(ctx, "grid.Ingest",
		trace.WithAttributes(attribute.Int("grid.records", len(records))))
	defer span.End()

	s.mu.Lock()
	created := s.engine.Ingest(records)
	s.updateCountsLocked()
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.AddIngested(created)
	}
	span.SetAttributes(attribute.Int("grid.created", created))

	logging.FromContext(ctx, s.log).Info(ctx, "charger records ingested",
		logging.Int("records", len(records)),
		logging.Int("created", created))
	return created
}

// Current returns the most recent snapshot without advancing the grid. The
// boolean is false until the first tick.
func (s *GridState) Current() (model.GridSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.hasLast
}

// Node returns a copy of the live node with the given ID.
func (s *GridState) Node(id string) (model.Node, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Node(id)
}

// Counts returns the live node and link counts.
func (s *GridState) Counts() (nodes, links int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Counts()
}

// updateCountsLocked pushes topology sizes to the metrics recorder.
// Caller must hold s.mu.
func (s *GridState) updateCountsLocked() {
	if s.metrics == nil {
		return
	}
	nodes, links := s.engine.Counts()
	s.metrics.SetGridCounts(nodes, links)
}
