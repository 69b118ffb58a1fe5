// Package exchangerate provides currency conversion rates for statement normalization.
// Rates come from mindicador.cl, which publishes the Chilean central bank's daily
// values for the US dollar, the euro and the Unidad de Fomento, all quoted in CLP.
package exchangerate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aristath/custodian/internal/clientdata"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://mindicador.cl/api"
	DefaultTimeout = 10 * time.Second

	// Non-business days have no published value; walk back this many days.
	maxLookbackDays = 7
)

// indicators maps a currency code to its mindicador indicator.
var indicators = map[string]string{
	"USD": "dolar",
	"EUR": "euro",
	"UF":  "uf",
	"CLF": "uf",
}

// Client for mindicador.cl
type Client struct {
	baseURL   string
	client    *http.Client
	limiter   *rate.Limiter
	log       zerolog.Logger
	cacheRepo *clientdata.Repository
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithRateLimit sets the minimum interval between requests.
func WithRateLimit(interval time.Duration) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Every(interval), 1)
	}
}

// WithCacheRepository sets the persistent cache. If unset, caching is disabled.
func WithCacheRepository(repo *clientdata.Repository) ClientOption {
	return func(c *Client) {
		c.cacheRepo = repo
	}
}

// NewClient creates a new mindicador client
func NewClient(log zerolog.Logger, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		client:  &http.Client{Timeout: DefaultTimeout},
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
		log:     log.With().Str("client", "mindicador").Logger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// cachedIndicator is the structure stored in the cache
type cachedIndicator struct {
	Value string `json:"value"`
	Date  string `json:"date"`
}

// indicatorResponse is the mindicador payload for /{indicator}/{dd-mm-yyyy}
type indicatorResponse struct {
	Codigo string `json:"codigo"`
	Serie  []struct {
		Fecha string  `json:"fecha"`
		Valor float64 `json:"valor"`
	} `json:"serie"`
}

// USDPerUnit returns how many US dollars one unit of currency was worth on date.
// Supported currencies are USD, CLP, EUR and UF (also written CLF).
func (c *Client) USDPerUnit(ctx context.Context, currency string, date time.Time) (decimal.Decimal, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "USD" || currency == "" {
		return decimal.NewFromInt(1), nil
	}

	dolar, err := c.indicatorValue(ctx, "dolar", date)
	if err != nil {
		return decimal.Zero, err
	}
	if dolar.IsZero() {
		return decimal.Zero, fmt.Errorf("zero CLP/USD rate for %s", date.Format("2006-01-02"))
	}

	if currency == "CLP" {
		return decimal.NewFromInt(1).DivRound(dolar, 12), nil
	}

	indicator, ok := indicators[currency]
	if !ok {
		return decimal.Zero, fmt.Errorf("unsupported currency %q", currency)
	}

	clpPerUnit, err := c.indicatorValue(ctx, indicator, date)
	if err != nil {
		return decimal.Zero, err
	}

	return clpPerUnit.DivRound(dolar, 12), nil
}

// indicatorValue returns the CLP value of indicator on date, or on the closest
// earlier date with a published value.
func (c *Client) indicatorValue(ctx context.Context, indicator string, date time.Time) (decimal.Decimal, error) {
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	cacheKey := fmt.Sprintf("%s:%s", indicator, day.Format("2006-01-02"))

	if v, ok := c.getFromCache(ctx, cacheKey, false); ok {
		c.log.Debug().Str("indicator", indicator).Str("value", v.String()).Msg("Cache hit")
		return v, nil
	}

	var lastErr error
	for back := 0; back <= maxLookbackDays; back++ {
		d := day.AddDate(0, 0, -back)
		value, found, err := c.fetch(ctx, indicator, d)
		if err != nil {
			lastErr = err
			break
		}
		if found {
			c.store(ctx, cacheKey, day, value)
			c.log.Info().
				Str("indicator", indicator).
				Str("date", d.Format("2006-01-02")).
				Str("value", value.String()).
				Msg("Fetched indicator")
			return value, nil
		}
	}

	if stale, ok := c.getFromCache(context.WithoutCancel(ctx), cacheKey, true); ok {
		c.log.Warn().
			Err(lastErr).
			Str("indicator", indicator).
			Str("value", stale.String()).
			Msg("API failed, using stale cached value")
		return stale, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no published value within %d days", maxLookbackDays)
	}
	return decimal.Zero, fmt.Errorf("failed to get %s for %s: %w", indicator, day.Format("2006-01-02"), lastErr)
}

// fetch requests one indicator value for one day. found is false when the
// day has no published value.
func (c *Client) fetch(ctx context.Context, indicator string, day time.Time) (decimal.Decimal, bool, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return decimal.Zero, false, fmt.Errorf("rate limit wait: %w", err)
	}

	url := fmt.Sprintf("%s/%s/%s", c.baseURL, indicator, day.Format("02-01-2006"))
	c.log.Debug().Str("url", url).Msg("Fetching indicator")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, false, fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	var result indicatorResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return decimal.Zero, false, fmt.Errorf("failed to parse response: %w", err)
	}

	if len(result.Serie) == 0 {
		return decimal.Zero, false, nil
	}

	return decimal.NewFromFloat(result.Serie[0].Valor), true, nil
}

func (c *Client) store(ctx context.Context, cacheKey string, day time.Time, value decimal.Decimal) {
	if c.cacheRepo == nil {
		return
	}

	ttl := clientdata.TTLHistoricalRate
	if !day.Before(time.Now().UTC().Truncate(24 * time.Hour)) {
		ttl = clientdata.TTLExchangeRate
	}

	cached := cachedIndicator{Value: value.String(), Date: day.Format("2006-01-02")}
	if err := c.cacheRepo.Put(ctx, clientdata.FXRates, cacheKey, cached, ttl); err != nil {
		c.log.Warn().Err(err).Str("pair", cacheKey).Msg("Failed to cache indicator")
	}
}

// getFromCache reads a cached value. stale allows expired entries.
func (c *Client) getFromCache(ctx context.Context, cacheKey string, stale bool) (decimal.Decimal, bool) {
	if c.cacheRepo == nil {
		return decimal.Zero, false
	}

	entry, ok, err := c.cacheRepo.Lookup(ctx, clientdata.FXRates, cacheKey)
	if err != nil || !ok {
		return decimal.Zero, false
	}
	if !stale && !entry.FreshAt(time.Now()) {
		return decimal.Zero, false
	}

	var cached cachedIndicator
	if err := json.Unmarshal(entry.Data, &cached); err != nil {
		return decimal.Zero, false
	}

	value, err := decimal.NewFromString(cached.Value)
	if err != nil {
		return decimal.Zero, false
	}
	return value, true
}
