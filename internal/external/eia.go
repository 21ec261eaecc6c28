package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
)

// DefaultEIAURL is the EIA v2 retail-sales dataset.
const DefaultEIAURL = "https://api.eia.gov/v2/electricity/retail-sales/data/"

var errInvalidJSON = errors.New("decode response: invalid JSON")

// MockPrice is served in place of live EIA data when the request fails.
type MockPrice struct {
	Price float64 `json:"price"`
	Unit  string  `json:"unit"`
}

// EIAFallback is the document returned when the live request fails.
type EIAFallback struct {
	Error    string    `json:"error"`
	MockData MockPrice `json:"mock_data"`
}

// EIAClient fetches the latest monthly retail electricity price.
type EIAClient struct {
	url    string
	apiKey string
	state  string
	f      *fetcher
}

// NewEIAClient returns a client for the retail-sales endpoint. rawURL
// defaults to DefaultEIAURL.
func NewEIAClient(rawURL, apiKey string, cfg Config) *EIAClient {
	if rawURL == "" {
		rawURL = DefaultEIAURL
	}
	return &EIAClient{url: rawURL, apiKey: apiKey, state: "TX", f: newFetcher(cfg)}
}

// Context returns the provider's JSON document unchanged. Without an API
// key it returns ErrUnavailable. On any other failure it returns an
// EIAFallback document and the error.
func (c *EIAClient) Context(ctx context.Context) (json.RawMessage, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("eia context: %w", ErrUnavailable)
	}
	params := url.Values{
		"api_key":            {c.apiKey},
		"frequency":          {"monthly"},
		"data[0]":            {"price"},
		"facets[stateid][]":  {c.state},
		"sort[0][column]":    {"period"},
		"sort[0][direction]": {"desc"},
		"offset":             {"0"},
		"length":             {"1"},
	}

	body, err := c.f.getBody(ctx, c.url, params)
	if err == nil && !json.Valid(body) {
		err = errInvalidJSON
	}
	if err != nil {
		fallback, mErr := json.Marshal(EIAFallback{
			Error:    err.Error(),
			MockData: MockPrice{Price: 12.5, Unit: "cents/kWh"},
		})
		if mErr != nil {
			return nil, fmt.Errorf("eia context: %w", err)
		}
		return fallback, fmt.Errorf("eia context: %w", err)
	}
	return json.RawMessage(body), nil
}
