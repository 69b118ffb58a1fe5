// Package openfigi provides a client for Bloomberg's OpenFIGI API.
// OpenFIGI maps security identifiers (CUSIP, ISIN) to security metadata,
// which the statement transformers use to classify holdings that arrive
// without an asset class.
package openfigi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/aristath/custodian/internal/clientdata"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://api.openfigi.com/v3"

	// Without an API key OpenFIGI accepts 10 jobs per request and
	// 25 requests per minute.
	DefaultBatchSize      = 10
	DefaultRequestsPerMin = 25

	DefaultMaxAttempts    = 3
	DefaultBaseBackoff    = time.Second
	DefaultAttemptTimeout = 15 * time.Second
)

// MappingRequest represents a request to the OpenFIGI mapping API.
type MappingRequest struct {
	IDType    string `json:"idType"`
	IDValue   string `json:"idValue"`
	ExchCode  string `json:"exchCode,omitempty"`
	MarketSec string `json:"marketSecDes,omitempty"`
	SecType2  string `json:"securityType2,omitempty"`
	Currency  string `json:"currency,omitempty"`
}

// MappingResult represents a single result from the OpenFIGI API.
type MappingResult struct {
	FIGI            string `json:"figi"`
	Ticker          string `json:"ticker"`
	ExchCode        string `json:"exchCode"`
	Name            string `json:"name"`
	MarketSector    string `json:"marketSector"`    // e.g., "Equity", "Govt", "Corp"
	SecurityType    string `json:"securityType"`    // e.g., "Common Stock", "US GOVERNMENT"
	SecurityType2   string `json:"securityType2"`   // e.g., "Common Stock", "Note", "Mutual Fund"
	CompositeFIGI   string `json:"compositeFIGI"`
	ShareClassFIGI  string `json:"shareClassFIGI"`
	MarketSectorDes string `json:"marketSectorDes"`
}

// MappingResponse represents a response item from the OpenFIGI API.
type MappingResponse struct {
	Data    []MappingResult `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
	Warning string          `json:"warning,omitempty"`
}

// statusError is returned for non-200 responses.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("OpenFIGI API error: status %d, body: %s", e.status, e.body)
}

// Client is the OpenFIGI API client.
type Client struct {
	baseURL        string
	apiKey         string // Optional - increases rate limits
	httpClient     *http.Client
	limiter        *rate.Limiter
	batchSize      int
	maxAttempts    int
	baseBackoff    time.Duration
	attemptTimeout time.Duration
	memCache       *cache.Cache
	cacheRepo      *clientdata.Repository
	log            zerolog.Logger
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithAPIKey sets the API key. Keyed requests accept larger batches.
func WithAPIKey(apiKey string) ClientOption {
	return func(c *Client) {
		c.apiKey = apiKey
		if apiKey != "" {
			c.batchSize = 100
		}
	}
}

// WithRateLimit sets the sustained request rate per minute.
func WithRateLimit(requestsPerMinute int) ClientOption {
	return func(c *Client) {
		if requestsPerMinute > 0 {
			c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), 1)
		}
	}
}

// WithRetry bounds the attempts per batch and the first backoff interval.
// The interval doubles on every retry.
func WithRetry(maxAttempts int, baseBackoff time.Duration) ClientOption {
	return func(c *Client) {
		if maxAttempts > 0 {
			c.maxAttempts = maxAttempts
		}
		c.baseBackoff = baseBackoff
	}
}

// WithAttemptTimeout bounds a single HTTP attempt.
func WithAttemptTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.attemptTimeout = timeout
		}
	}
}

// WithMemoryCache sets the in-process cache consulted before the persistent one.
func WithMemoryCache(mc *cache.Cache) ClientOption {
	return func(c *Client) {
		c.memCache = mc
	}
}

// WithCacheRepository sets the persistent cache. If unset, only the in-process cache is used.
func WithCacheRepository(repo *clientdata.Repository) ClientOption {
	return func(c *Client) {
		c.cacheRepo = repo
	}
}

// NewClient creates a new OpenFIGI client.
func NewClient(log zerolog.Logger, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:        DefaultBaseURL,
		httpClient:     &http.Client{},
		limiter:        rate.NewLimiter(rate.Every(time.Minute/DefaultRequestsPerMin), 1),
		batchSize:      DefaultBatchSize,
		maxAttempts:    DefaultMaxAttempts,
		baseBackoff:    DefaultBaseBackoff,
		attemptTimeout: DefaultAttemptTimeout,
		memCache:       cache.New(time.Hour, 2*time.Hour),
		log:            log.With().Str("component", "openfigi").Logger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// IDType infers the OpenFIGI identifier type from the identifier's shape.
func IDType(id string) string {
	id = strings.TrimSpace(id)
	if len(id) == 12 && id[0] >= 'A' && id[0] <= 'Z' && id[1] >= 'A' && id[1] <= 'Z' {
		return "ID_ISIN"
	}
	return "ID_CUSIP"
}

// LookupCUSIPs maps identifiers (CUSIPs, or ISINs where the bank provides them)
// to OpenFIGI results. Identifiers with no match are absent from the returned map.
//
// Fresh cached entries are served without a request. Remaining identifiers are
// sent in batches; each batch is rate limited and retried with exponential
// backoff on network errors, 429 and 5xx responses. When a batch still fails,
// stale cached entries are used where available. The error is returned
// alongside any partial results so callers can degrade per identifier.
func (c *Client) LookupCUSIPs(ctx context.Context, ids []string) (map[string][]MappingResult, error) {
	results := make(map[string][]MappingResult, len(ids))

	pending := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, raw := range ids {
		id := strings.ToUpper(strings.TrimSpace(raw))
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true

		if cached, ok := c.getFromCache(ctx, id); ok {
			if len(cached) > 0 {
				results[id] = cached
			}
			continue
		}
		pending = append(pending, id)
	}

	if len(pending) == 0 {
		c.log.Debug().Int("count", len(seen)).Msg("All identifiers found in cache")
		return results, nil
	}

	c.log.Debug().
		Int("total", len(seen)).
		Int("to_fetch", len(pending)).
		Msg("OpenFIGI lookup cache stats")

	var failed []string
	var lastErr error

	for start := 0; start < len(pending); start += c.batchSize {
		end := start + c.batchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]

		responses, err := c.doRequestWithRetry(ctx, batch)
		if err != nil {
			lastErr = err
			failed = append(failed, batch...)
			if ctx.Err() != nil {
				failed = append(failed, pending[end:]...)
				break
			}
			continue
		}

		for i, resp := range responses {
			if i >= len(batch) {
				break
			}
			id := batch[i]
			if resp.Error != "" {
				c.log.Debug().Str("identifier", id).Str("error", resp.Error).Msg("OpenFIGI returned no match")
			}
			c.setCache(ctx, id, resp.Data)
			if len(resp.Data) > 0 {
				results[id] = resp.Data
			}
		}
	}

	if lastErr == nil {
		return results, nil
	}

	// Stale answers are read even when ctx is what ended the lookup.
	staleCtx := context.WithoutCancel(ctx)
	staleCount := 0
	for _, id := range failed {
		if stale, ok := c.getStaleFromCache(staleCtx, id); ok {
			staleCount++
			if len(stale) > 0 {
				results[id] = stale
			}
		}
	}

	c.log.Warn().
		Err(lastErr).
		Int("failed", len(failed)).
		Int("stale_used", staleCount).
		Msg("OpenFIGI lookup degraded")

	if staleCount == len(failed) {
		return results, nil
	}
	return results, fmt.Errorf("openfigi lookup failed for %d identifiers: %w", len(failed)-staleCount, lastErr)
}

// doRequestWithRetry sends one batch, retrying transient failures.
func (c *Client) doRequestWithRetry(ctx context.Context, ids []string) ([]MappingResponse, error) {
	requests := make([]MappingRequest, len(ids))
	for i, id := range ids {
		requests[i] = MappingRequest{IDType: IDType(id), IDValue: id}
	}

	backoff := c.baseBackoff
	var lastErr error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}

		responses, err := c.doRequest(ctx, requests)
		if err == nil {
			return responses, nil
		}
		lastErr = err

		if !isRetryable(err) || attempt == c.maxAttempts {
			break
		}

		c.log.Debug().
			Err(err).
			Int("attempt", attempt).
			Dur("backoff", backoff).
			Msg("Retrying OpenFIGI request")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	return nil, lastErr
}

// isRetryable reports whether err is a network error, a timeout, a 429 or a 5xx.
func isRetryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.status == http.StatusTooManyRequests || se.status >= 500
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF)
}

// doRequest performs a single HTTP request to the OpenFIGI API.
func (c *Client) doRequest(ctx context.Context, requests []MappingRequest) ([]MappingResponse, error) {
	body, err := json.Marshal(requests)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.baseURL+"/mapping", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-OPENFIGI-APIKEY", c.apiKey)
	}

	c.log.Debug().Int("count", len(requests)).Msg("Making OpenFIGI request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &statusError{status: resp.StatusCode, body: string(bodyBytes)}
	}

	var responses []MappingResponse
	if err := json.NewDecoder(resp.Body).Decode(&responses); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return responses, nil
}

// getFromCache retrieves fresh results from the in-process cache, then the persistent one.
func (c *Client) getFromCache(ctx context.Context, id string) ([]MappingResult, bool) {
	if c.memCache != nil {
		if v, ok := c.memCache.Get(id); ok {
			return v.([]MappingResult), true
		}
	}

	if c.cacheRepo == nil {
		return nil, false
	}

	data, ok, err := c.cacheRepo.Fresh(ctx, clientdata.SecurityLookups, id)
	if err != nil {
		c.log.Warn().Err(err).Str("identifier", id).Msg("Failed to get from cache")
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var results []MappingResult
	if err := json.Unmarshal(data, &results); err != nil {
		c.log.Warn().Err(err).Str("identifier", id).Msg("Failed to unmarshal cached data")
		return nil, false
	}

	if c.memCache != nil {
		c.memCache.SetDefault(id, results)
	}
	return results, true
}

// getStaleFromCache retrieves cached results even if expired.
func (c *Client) getStaleFromCache(ctx context.Context, id string) ([]MappingResult, bool) {
	if c.cacheRepo == nil {
		return nil, false
	}

	entry, ok, err := c.cacheRepo.Lookup(ctx, clientdata.SecurityLookups, id)
	if err != nil {
		c.log.Warn().Err(err).Str("identifier", id).Msg("Failed to get stale data from cache")
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var results []MappingResult
	if err := json.Unmarshal(entry.Data, &results); err != nil {
		c.log.Warn().Err(err).Str("identifier", id).Msg("Failed to unmarshal stale cached data")
		return nil, false
	}

	return results, true
}

// setCache stores results in both caches. Empty results are cached too so
// unknown identifiers are not requested again until the entry expires.
func (c *Client) setCache(ctx context.Context, id string, results []MappingResult) {
	if results == nil {
		results = []MappingResult{}
	}
	if c.memCache != nil {
		c.memCache.SetDefault(id, results)
	}
	if c.cacheRepo == nil {
		return
	}
	if err := c.cacheRepo.Put(ctx, clientdata.SecurityLookups, id, results, clientdata.TTLOpenFIGI); err != nil {
		c.log.Warn().Err(err).Str("identifier", id).Msg("Failed to cache OpenFIGI result")
	}
}
