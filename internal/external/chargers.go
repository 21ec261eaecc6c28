package external

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/signalsfoundry/gridsim/internal/grid"
	"github.com/signalsfoundry/gridsim/internal/logging"
)

const (
	// DefaultChargerURL is the OpenChargeMap POI endpoint.
	DefaultChargerURL = "https://api.openchargemap.io/v3/poi/"

	// DefaultChargerLat and DefaultChargerLon centre searches on New York.
	DefaultChargerLat = 40.7128
	DefaultChargerLon = -74.0060

	chargerSearchDistanceKM = 10
	chargerMaxResults       = 50
)

// ChargerClient searches for EV chargers around a coordinate.
type ChargerClient struct {
	url string
	f   *fetcher
}

// NewChargerClient returns a client for the POI endpoint at rawURL, or
// DefaultChargerURL when empty.
func NewChargerClient(rawURL string, cfg Config) *ChargerClient {
	if rawURL == "" {
		rawURL = DefaultChargerURL
	}
	return &ChargerClient{url: rawURL, f: newFetcher(cfg)}
}

// Fetch returns the chargers within the search radius of lat/lon. When the
// provider cannot be reached, or its answer is not a JSON array, Fetch
// returns FallbackChargers together with the error so callers can keep
// working on the built-in set. Individual malformed entries are skipped.
func (c *ChargerClient) Fetch(ctx context.Context, lat, lon float64) ([]grid.ChargerRecord, error) {
	params := url.Values{
		"output":       {"json"},
		"countrycode":  {"US"},
		"maxresults":   {strconv.Itoa(chargerMaxResults)},
		"latitude":     {formatCoord(lat)},
		"longitude":    {formatCoord(lon)},
		"distance":     {strconv.Itoa(chargerSearchDistanceKM)},
		"distanceunit": {"KM"},
	}

	var raw []json.RawMessage
	if err := c.f.getJSON(ctx, c.url, params, &raw); err != nil {
		c.f.log.Warn(ctx, "charger lookup failed; using fallback chargers", logging.Err(err))
		return FallbackChargers(), fmt.Errorf("charger lookup: %w", err)
	}

	records := make([]grid.ChargerRecord, 0, len(raw))
	for i, item := range raw {
		var rec grid.ChargerRecord
		if err := json.Unmarshal(item, &rec); err != nil {
			c.f.log.Warn(ctx, "skipping malformed charger record",
				logging.Int("index", i),
				logging.Err(err))
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// FallbackChargers is the built-in set served when the provider is down.
func FallbackChargers() []grid.ChargerRecord {
	return []grid.ChargerRecord{
		fallbackCharger("1", 40.7128, -74.0060, "Downtown Charger"),
		fallbackCharger("2", 40.7589, -73.9851, "Times Square Station"),
		fallbackCharger("3", 40.7484, -73.9857, "Empire State Building"),
	}
}

func fallbackCharger(id string, lat, lon float64, title string) grid.ChargerRecord {
	return grid.ChargerRecord{
		ID: grid.RecordID(id),
		AddressInfo: &grid.AddressInfo{
			Latitude:  &lat,
			Longitude: &lon,
			Title:     &title,
		},
	}
}
