// Package api exposes the shared grid over HTTP and websockets.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/signalsfoundry/gridsim/internal/grid"
	"github.com/signalsfoundry/gridsim/internal/logging"
	"github.com/signalsfoundry/gridsim/internal/observability"
	"github.com/signalsfoundry/gridsim/internal/sim/state"
)

// ChargerSource finds charger records around a coordinate. Implementations
// may return usable fallback records together with a non-nil error.
type ChargerSource interface {
	Fetch(ctx context.Context, lat, lon float64) ([]grid.ChargerRecord, error)
}

// EIASource returns the retail electricity context document.
type EIASource interface {
	Context(ctx context.Context) (json.RawMessage, error)
}

// Server wires the HTTP routes onto a GridState.
type Server struct {
	state    *state.GridState
	chargers ChargerSource
	eia      EIASource
	hub      *Hub
	metrics  *observability.GridCollector
	log      logging.Logger

	router   *gin.Engine
	upgrader websocket.Upgrader
}

// Option customises Server construction.
type Option func(*Server)

func WithChargerSource(src ChargerSource) Option {
	return func(s *Server) { s.chargers = src }
}

func WithEIASource(src EIASource) Option {
	return func(s *Server) { s.eia = src }
}

// WithCollector records HTTP and stream metrics on c.
func WithCollector(c *observability.GridCollector) Option {
	return func(s *Server) { s.metrics = c }
}

func WithLogger(l logging.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// NewServer builds the router. The returned server owns a Hub that the
// caller feeds through Broadcast.
func NewServer(st *state.GridState, opts ...Option) *Server {
	s := &Server{
		state: st,
		log:   logging.Noop(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	var streamMetrics StreamMetrics
	if s.metrics != nil {
		streamMetrics = s.metrics
	}
	s.hub = NewHub(s.log, streamMetrics)

	s.router = gin.New()
	s.router.Use(
		gin.Recovery(),
		corsMiddleware(),
		requestIDMiddleware(s.log),
		tracingMiddleware(),
		s.metrics.GinMiddleware(),
	)
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/", s.root)
	s.router.GET("/metrics", s.tickMetrics)
	s.router.GET("/snapshot", s.snapshot)
	s.router.GET("/summary", s.summary)
	s.router.GET("/chargers", s.fetchChargers)
	s.router.GET("/eia-context", s.eiaContext)
	s.router.POST("/control/toggle/:node_id", s.toggleNode)
	s.router.GET("/ws", s.stream)
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the websocket fan-out.
func (s *Server) Hub() *Hub {
	return s.hub
}

// TickAndBroadcast advances the shared grid one step and pushes the
// snapshot to every stream client. It is the body of the streaming loop.
func (s *Server) TickAndBroadcast(ctx context.Context) {
	snap := s.state.Tick(ctx)
	if err := s.hub.Broadcast(snap); err != nil {
		s.log.Error(ctx, "broadcast snapshot", logging.Err(err))
	}
}
