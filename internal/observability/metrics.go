package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/signalsfoundry/gridsim/model"
)

// GridCollector bundles Prometheus metrics for the grid simulator: the HTTP
// surface, the tick loop, and gauges mirroring the latest snapshot.
type GridCollector struct {
	gatherer prometheus.Gatherer

	HTTPRequests  *prometheus.CounterVec
	HTTPDurations *prometheus.HistogramVec

	GridNodes       prometheus.Gauge
	GridLinks       prometheus.Gauge
	TotalLoad       prometheus.Gauge
	TotalGeneration prometheus.Gauge
	Efficiency      prometheus.Gauge

	TicksTotal       prometheus.Counter
	LeaksTotal       prometheus.Counter
	TickDuration     prometheus.Histogram
	ChargersIngested prometheus.Counter
	Toggles          *prometheus.CounterVec
	StreamClients    prometheus.Gauge
}

// NewGridCollector registers the simulator metrics against reg, defaulting
// to the global Prometheus registry when nil. Registering twice against the
// same registry returns the already-registered collectors.
func NewGridCollector(reg prometheus.Registerer) (*GridCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &GridCollector{gatherer: gatherer}
	var err error

	if c.HTTPRequests, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gridsim_http_requests_total",
		Help: "Total number of handled HTTP requests, labeled by method, route, and status code.",
	}, []string{"method", "route", "code"}), "gridsim_http_requests_total"); err != nil {
		return nil, err
	}
	if c.HTTPDurations, err = registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gridsim_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"method", "route"}), "gridsim_http_request_duration_seconds"); err != nil {
		return nil, err
	}

	gauges := []struct {
		dst  *prometheus.Gauge
		name string
		help string
	}{
		{&c.GridNodes, "gridsim_nodes", "Current number of nodes in the grid topology."},
		{&c.GridLinks, "gridsim_links", "Current number of links in the grid topology."},
		{&c.TotalLoad, "gridsim_total_load_kw", "Total active consumer load in the latest snapshot (kW)."},
		{&c.TotalGeneration, "gridsim_total_generation_kw", "Total generation in the latest snapshot (kW), including unmetered draws."},
		{&c.Efficiency, "gridsim_efficiency_ratio", "Load over generation in the latest snapshot."},
		{&c.StreamClients, "gridsim_stream_clients", "Number of connected snapshot stream clients."},
	}
	for _, g := range gauges {
		if *g.dst, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{Name: g.name, Help: g.help}), g.name); err != nil {
			return nil, err
		}
	}

	counters := []struct {
		dst  *prometheus.Counter
		name string
		help string
	}{
		{&c.TicksTotal, "gridsim_ticks_total", "Number of simulation ticks executed."},
		{&c.LeaksTotal, "gridsim_leaks_detected_total", "Number of ticks that flagged a leak."},
		{&c.ChargersIngested, "gridsim_chargers_ingested_total", "Number of charger nodes added through ingestion."},
	}
	for _, ctr := range counters {
		if *ctr.dst, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{Name: ctr.name, Help: ctr.help}), ctr.name); err != nil {
			return nil, err
		}
	}

	if c.TickDuration, err = registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "gridsim_tick_duration_seconds",
		Help:    "Wall-clock duration of a single grid tick.",
		Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
	}), "gridsim_tick_duration_seconds"); err != nil {
		return nil, err
	}
	if c.Toggles, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gridsim_node_toggles_total",
		Help: "Node toggle requests, labeled by whether the node was found.",
	}, []string{"result"}), "gridsim_node_toggles_total"); err != nil {
		return nil, err
	}

	return c, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *GridCollector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// GinMiddleware records request counts and durations. Routes are labeled by
// their registered pattern so path parameters do not explode cardinality.
func (c *GridCollector) GinMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()

		if c == nil {
			return
		}
		route := ctx.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := ctx.Request.Method
		if c.HTTPRequests != nil {
			c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(ctx.Writer.Status())).Inc()
		}
		if c.HTTPDurations != nil {
			c.HTTPDurations.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
		}
	}
}

// SetGridCounts updates the topology size gauges.
func (c *GridCollector) SetGridCounts(nodes, links int) {
	if c == nil {
		return
	}
	if c.GridNodes != nil {
		c.GridNodes.Set(float64(nodes))
	}
	if c.GridLinks != nil {
		c.GridLinks.Set(float64(links))
	}
}

// ObserveTick records the outcome of one tick.
func (c *GridCollector) ObserveTick(snap model.GridSnapshot, took time.Duration) {
	if c == nil {
		return
	}
	if c.TicksTotal != nil {
		c.TicksTotal.Inc()
	}
	if snap.LeakDetected && c.LeaksTotal != nil {
		c.LeaksTotal.Inc()
	}
	if c.TickDuration != nil {
		c.TickDuration.Observe(took.Seconds())
	}
	if c.TotalLoad != nil {
		c.TotalLoad.Set(snap.TotalLoad)
	}
	if c.TotalGeneration != nil {
		c.TotalGeneration.Set(snap.TotalGeneration)
	}
	if c.Efficiency != nil {
		c.Efficiency.Set(snap.Efficiency)
	}
}

// AddIngested counts newly created charger nodes.
func (c *GridCollector) AddIngested(n int) {
	if c == nil || c.ChargersIngested == nil || n <= 0 {
		return
	}
	c.ChargersIngested.Add(float64(n))
}

// RecordToggle counts a toggle request.
func (c *GridCollector) RecordToggle(found bool) {
	if c == nil || c.Toggles == nil {
		return
	}
	result := "found"
	if !found {
		result = "not_found"
	}
	c.Toggles.WithLabelValues(result).Inc()
}

// StreamClientConnected and StreamClientDisconnected track live stream
// subscribers.
func (c *GridCollector) StreamClientConnected() {
	if c != nil && c.StreamClients != nil {
		c.StreamClients.Inc()
	}
}

func (c *GridCollector) StreamClientDisconnected() {
	if c != nil && c.StreamClients != nil {
		c.StreamClients.Dec()
	}
}
