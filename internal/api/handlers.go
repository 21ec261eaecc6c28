package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/signalsfoundry/gridsim/internal/external"
	"github.com/signalsfoundry/gridsim/internal/grid"
	"github.com/signalsfoundry/gridsim/internal/logging"
)

// ToggleResponse is the body of POST /control/toggle/:node_id.
type ToggleResponse struct {
	Success bool   `json:"success"`
	NodeID  string `json:"node_id"`
}

// ChargersResponse is the body of GET /chargers.
type ChargersResponse struct {
	Chargers []grid.ChargerRecord `json:"chargers"`
	Count    int                  `json:"count"`
	Created  int                  `json:"created"`
	Fallback bool                 `json:"fallback"`
}

// SummaryResponse is the body of GET /summary.
type SummaryResponse struct {
	Summary string `json:"summary"`
}

func (s *Server) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "Grid System Online"})
}

func (s *Server) tickMetrics(c *gin.Context) {
	snap := s.state.Tick(c.Request.Context())
	c.JSON(http.StatusOK, snap)
}

func (s *Server) snapshot(c *gin.Context) {
	snap, ok := s.state.Current()
	if !ok {
		s.writeError(c, ErrNoSnapshot)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) summary(c *gin.Context) {
	snap := s.state.Tick(c.Request.Context())
	c.JSON(http.StatusOK, SummaryResponse{Summary: grid.Summary(snap)})
}

func (s *Server) fetchChargers(c *gin.Context) {
	ctx := c.Request.Context()
	if s.chargers == nil {
		s.writeError(c, fmt.Errorf("charger source: %w", external.ErrUnavailable))
		return
	}
	lat, err := floatQuery(c, "lat", external.DefaultChargerLat)
	if err != nil {
		s.writeError(c, err)
		return
	}
	lon, err := floatQuery(c, "lon", external.DefaultChargerLon)
	if err != nil {
		s.writeError(c, err)
		return
	}

	records, err := s.chargers.Fetch(ctx, lat, lon)
	fallback := err != nil
	if err != nil {
		if records == nil {
			s.writeError(c, err)
			return
		}
		logging.FromContext(ctx, s.log).Warn(ctx, "serving fallback chargers", logging.Err(err))
	}

	created := s.state.Ingest(ctx, records)
	if records == nil {
		records = []grid.ChargerRecord{}
	}
	c.JSON(http.StatusOK, ChargersResponse{
		Chargers: records,
		Count:    len(records),
		Created:  created,
		Fallback: fallback,
	})
}

func (s *Server) eiaContext(c *gin.Context) {
	ctx := c.Request.Context()
	if s.eia == nil {
		c.JSON(http.StatusOK, nil)
		return
	}
	doc, err := s.eia.Context(ctx)
	switch {
	case errors.Is(err, external.ErrUnavailable):
		logging.FromContext(ctx, s.log).Warn(ctx, "EIA API key not set")
		c.JSON(http.StatusOK, nil)
	case err != nil && doc == nil:
		s.writeError(c, err)
	default:
		if err != nil {
			logging.FromContext(ctx, s.log).Warn(ctx, "serving mock EIA context", logging.Err(err))
		}
		c.Data(http.StatusOK, "application/json; charset=utf-8", json.RawMessage(doc))
	}
}

func (s *Server) toggleNode(c *gin.Context) {
	id := c.Param("node_id")
	found := s.state.Toggle(c.Request.Context(), id)
	status := http.StatusOK
	if !found {
		status = statusFor(ErrNotFound)
	}
	c.JSON(status, ToggleResponse{Success: found, NodeID: id})
}

func (s *Server) stream(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.FromContext(c.Request.Context(), s.log).Warn(c.Request.Context(), "websocket upgrade failed", logging.Err(err))
		return
	}
	var initial []byte
	if snap, ok := s.state.Current(); ok {
		initial, _ = json.Marshal(snap)
	}
	s.hub.Register(conn, initial)
}

func (s *Server) writeError(c *gin.Context, err error) {
	status := statusFor(err)
	ctx := c.Request.Context()
	if status >= http.StatusInternalServerError {
		logging.FromContext(ctx, s.log).Error(ctx, "request failed", logging.Err(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func floatQuery(c *gin.Context, key string, def float64) (float64, error) {
	raw, ok := c.GetQuery(key)
	if !ok || raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a number", ErrInvalidArgument, key)
	}
	return v, nil
}
