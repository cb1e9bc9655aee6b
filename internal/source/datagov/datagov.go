package datagov

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"hdbdash/internal/cache"
	"hdbdash/internal/core"
	"hdbdash/internal/log"
	"hdbdash/internal/observability"
	"hdbdash/internal/source"

	"golang.org/x/sync/singleflight"
)

// Default configuration values.
const (
	DefaultBaseURL   = "https://data.gov.sg/api/action/datastore_search"
	DefaultDatasetID = "d_8b84c4ee58e3cfc0ece0d773c8ca6abc"
	DefaultLimit     = 10_000
	DefaultTimeout   = 30 * time.Second
)

// Client fetches resale records from the data.gov.sg datastore API.
//
// Results are memoized per (town, flat type, limit) for the lifetime of the
// client and are never refreshed; only a new client sees new upstream data.
type Client struct {
	baseURL   string
	datasetID string
	limit     int
	http      *http.Client
	memo      cache.Cache[core.Dataset]
	flight    singleflight.Group
	logger    *log.Logger
	metrics   *observability.Metrics

	requests atomic.Int64
}

// Ensure interface conformance
var _ source.Fetcher = (*Client)(nil)

// Option configures Client.
type Option func(*Client)

// WithBaseURL overrides the datastore_search endpoint.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = u
	}
}

// WithDatasetID overrides the resource id.
func WithDatasetID(id string) Option {
	return func(c *Client) {
		c.datasetID = id
	}
}

// WithDefaultLimit sets the row limit used when Fetch is given limit <= 0.
func WithDefaultLimit(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.limit = n
		}
	}
}

// WithTimeout sets the per-request timeout. A client passed through
// WithHTTPClient is copied, not modified.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		hc := *c.http
		hc.Timeout = d
		c.http = &hc
	}
}

// WithHTTPClient sets a custom http.Client. Its Timeout is used as is.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithCache replaces the memo store.
func WithCache(m cache.Cache[core.Dataset]) Option {
	return func(c *Client) {
		c.memo = m
	}
}

func WithLogger(l *log.Logger) Option {
	return func(c *Client) {
		c.logger = l.WithComponent(log.ComponentDatagov)
	}
}

func WithMetrics(m *observability.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// New creates a datastore client with the package defaults.
func New(opts ...Option) *Client {
	c := &Client{
		baseURL:   DefaultBaseURL,
		datasetID: DefaultDatasetID,
		limit:     DefaultLimit,
		http:      newHTTPClient(DefaultTimeout),
		memo:      cache.NewStore[core.Dataset](),
		logger:    log.Default(log.ComponentDatagov),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// newHTTPClient creates an HTTP client with keep-alive pooling and a fixed
// overall timeout.
func newHTTPClient(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

// Fetch returns the records matching filter, at most limit rows (limit <= 0
// means the client default). Identical arguments are served from the memo
// after the first successful call; failures are not remembered.
func (c *Client) Fetch(ctx context.Context, filter core.Filter, limit int) (core.Dataset, error) {
	if limit <= 0 {
		limit = c.limit
	}
	key := filter.Key(limit)

	if ds, ok := c.memo.Get(key); ok {
		c.metrics.MemoHit()
		c.logger.DebugContext(ctx, "Fetch served from memo",
			log.FieldTown, filter.Town,
			log.FieldFlatType, filter.FlatType,
			log.FieldLimit, limit,
			log.FieldRecords, len(ds.Records))
		return ds.Clone(), nil
	}
	c.metrics.MemoMiss()

	// The shared request outlives any single caller; each caller only
	// stops waiting when its own context is done.
	flightCtx := context.WithoutCancel(ctx)
	ch := c.flight.DoChan(key, func() (any, error) {
		// A concurrent caller may have completed the same fetch while we
		// were queued behind it.
		if ds, ok := c.memo.Get(key); ok {
			return ds, nil
		}
		ds, err := c.fetch(flightCtx, filter, limit)
		if err != nil {
			return nil, err
		}
		c.memo.Set(key, ds)
		return ds, nil
	})

	select {
	case <-ctx.Done():
		return core.Dataset{}, fmt.Errorf("%w: %w", core.ErrNetwork, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return core.Dataset{}, res.Err
		}
		return res.Val.(core.Dataset).Clone(), nil
	}
}

// Requests reports how many upstream requests the client has issued.
func (c *Client) Requests() int64 {
	return c.requests.Load()
}

// RequestURL builds the datastore_search URL for a filter and limit.
func (c *Client) RequestURL(filter core.Filter, limit int) (string, error) {
	filters, err := json.Marshal(filter.Params())
	if err != nil {
		return "", fmt.Errorf("encode filters: %w", err)
	}
	q := "resource_id=" + url.QueryEscape(c.datasetID) +
		"&" + url.Values{"filters": {string(filters)}}.Encode() +
		"&limit=" + strconv.Itoa(limit)
	return c.baseURL + "?" + q, nil
}

func (c *Client) fetch(ctx context.Context, filter core.Filter, limit int) (core.Dataset, error) {
	u, err := c.RequestURL(filter, limit)
	if err != nil {
		return core.Dataset{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return core.Dataset{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	c.requests.Add(1)
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.ObserveFetch(observability.OutcomeNetwork, time.Since(start), 0)
		c.logger.ErrorContext(ctx, "Datastore request failed",
			log.FieldTown, filter.Town,
			log.FieldFlatType, filter.FlatType,
			log.FieldError, err)
		return core.Dataset{}, fmt.Errorf("%w: GET datastore_search: %w", core.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		c.metrics.ObserveFetch(observability.OutcomeNetwork, time.Since(start), 0)
		c.logger.ErrorContext(ctx, "Datastore returned non-2xx",
			log.FieldTown, filter.Town,
			log.FieldFlatType, filter.FlatType,
			log.FieldStatusCode, resp.StatusCode)
		return core.Dataset{}, fmt.Errorf("%w: datastore_search status %d: %s", core.ErrNetwork, resp.StatusCode, string(snippet))
	}

	records, err := source.DecodeRecords(resp.Body)
	if err != nil {
		outcome := observability.OutcomeMalformed
		if !errors.Is(err, core.ErrMalformedResponse) {
			outcome = observability.OutcomeNetwork
		}
		c.metrics.ObserveFetch(outcome, time.Since(start), 0)
		return core.Dataset{}, fmt.Errorf("town=%q flat_type=%q: %w", filter.Town, filter.FlatType, err)
	}

	elapsed := time.Since(start)
	c.metrics.ObserveFetch(observability.OutcomeOK, elapsed, len(records))
	c.logger.InfoContext(ctx, "Fetched resale records",
		log.FieldTown, filter.Town,
		log.FieldFlatType, filter.FlatType,
		log.FieldLimit, limit,
		log.FieldRecords, len(records),
		log.FieldDuration, elapsed.Milliseconds())

	return core.Dataset{Town: filter.Town, FlatType: filter.FlatType, Records: records}, nil
}
