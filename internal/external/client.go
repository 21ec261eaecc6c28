// Package external fetches the third-party data the grid consumes: solar
// irradiance estimates (PVGIS), charger locations (OpenChargeMap) and retail
// electricity context (EIA). Every call is bounded by a timeout and retried
// with exponential backoff on transport errors and 5xx answers.
package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/signalsfoundry/gridsim/internal/logging"
)

// ErrUnavailable reports that a provider is not configured.
var ErrUnavailable = errors.New("external data unavailable")

const (
	defaultTimeout   = 10 * time.Second
	defaultRetryBase = 200 * time.Millisecond
	maxBodyBytes     = 4 << 20
)

// Config holds the transport settings shared by every client.
type Config struct {
	Timeout    time.Duration
	MaxRetries uint64

	// RetryBase is the first backoff interval. Zero selects 200ms.
	RetryBase time.Duration

	// HTTPClient overrides the transport; tests point it at httptest.
	HTTPClient *http.Client
	Logger     logging.Logger
}

// StatusError is returned when a provider answers with a non-2xx status.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.StatusCode)
}

// fetcher performs GET requests with timeout and retry.
type fetcher struct {
	http      *http.Client
	timeout   time.Duration
	retries   uint64
	retryBase time.Duration
	log       logging.Logger
}

func newFetcher(cfg Config) *fetcher {
	f := &fetcher{
		http:      cfg.HTTPClient,
		timeout:   cfg.Timeout,
		retries:   cfg.MaxRetries,
		retryBase: cfg.RetryBase,
		log:       cfg.Logger,
	}
	if f.http == nil {
		f.http = &http.Client{}
	}
	if f.timeout <= 0 {
		f.timeout = defaultTimeout
	}
	if f.retryBase <= 0 {
		f.retryBase = defaultRetryBase
	}
	if f.log == nil {
		f.log = logging.Noop()
	}
	return f
}

// getBody issues GET rawURL?params and returns the response body. Transport
// errors and 5xx responses are retried; other statuses fail immediately.
func (f *fetcher) getBody(ctx context.Context, rawURL string, params url.Values) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	if len(params) > 0 {
		q := u.Query()
		for k, vs := range params {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	target := u.String()

	backoff := retry.WithMaxRetries(f.retries, retry.NewExponential(f.retryBase))

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	var body []byte
	attempt := 0
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		b, retryable, err := f.getOnce(ctx, target)
		if err == nil {
			body = b
			return nil
		}
		f.log.Debug(ctx, "external request failed",
			logging.String("url", u.Host+u.Path),
			logging.Int("attempt", attempt),
			logging.Bool("retryable", retryable),
			logging.Err(err))
		if retryable {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (f *fetcher) getOnce(ctx context.Context, target string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, resp.StatusCode >= 500, &StatusError{URL: req.URL.Host + req.URL.Path, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, true, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, false, nil
}

// getJSON fetches and decodes a JSON document into out.
func (f *fetcher) getJSON(ctx context.Context, rawURL string, params url.Values, out any) error {
	body, err := f.getBody(ctx, rawURL, params)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
