package external

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/signalsfoundry/gridsim/internal/grid"
)

const (
	solarPeakPowerKW = 1
	solarSystemLoss  = 14
)

// SolarClient queries a PVGIS PVcalc endpoint. It satisfies
// grid.SolarLookup.
type SolarClient struct {
	url string
	f   *fetcher
}

// NewSolarClient returns a client for the PVcalc endpoint at rawURL. An
// empty URL yields a client whose lookups report ErrUnavailable.
func NewSolarClient(rawURL string, cfg Config) *SolarClient {
	return &SolarClient{url: rawURL, f: newFetcher(cfg)}
}

var _ grid.SolarLookup = (*SolarClient)(nil)

// LookupSolar fetches the estimate for a 1 kWp system at lat/lon.
func (c *SolarClient) LookupSolar(ctx context.Context, lat, lon float64) (*grid.SolarEstimate, error) {
	if c == nil || c.url == "" {
		return nil, fmt.Errorf("solar lookup: %w", ErrUnavailable)
	}
	params := url.Values{
		"lat":          {formatCoord(lat)},
		"lon":          {formatCoord(lon)},
		"peakpower":    {strconv.Itoa(solarPeakPowerKW)},
		"loss":         {strconv.Itoa(solarSystemLoss)},
		"outputformat": {"json"},
	}
	var est grid.SolarEstimate
	if err := c.f.getJSON(ctx, c.url, params, &est); err != nil {
		return nil, fmt.Errorf("solar lookup: %w", err)
	}
	return &est, nil
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
