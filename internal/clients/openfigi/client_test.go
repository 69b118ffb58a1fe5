package openfigi

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aristath/custodian/internal/clientdata"
	"github.com/aristath/custodian/internal/domain"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(serverURL string, opts ...ClientOption) *Client {
	base := []ClientOption{
		WithBaseURL(serverURL),
		WithRateLimit(60000),
		WithRetry(3, time.Millisecond),
	}
	return NewClient(zerolog.Nop(), append(base, opts...)...)
}

func newCacheRepo(t *testing.T) (*clientdata.Repository, *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE openfigi (identifier TEXT PRIMARY KEY, data TEXT NOT NULL, expires_at INTEGER NOT NULL)`)
	require.NoError(t, err)

	return clientdata.NewRepository(db), db
}

func TestNewClient(t *testing.T) {
	client := NewClient(zerolog.Nop())
	assert.NotNil(t, client)
	assert.Empty(t, client.apiKey)
	assert.Equal(t, DefaultBatchSize, client.batchSize)

	keyed := NewClient(zerolog.Nop(), WithAPIKey("test-api-key"))
	assert.Equal(t, "test-api-key", keyed.apiKey)
	assert.Equal(t, 100, keyed.batchSize)
}

func TestIDType(t *testing.T) {
	assert.Equal(t, "ID_CUSIP", IDType("912828YK0"))
	assert.Equal(t, "ID_ISIN", IDType("US0378331005"))
	assert.Equal(t, "ID_CUSIP", IDType("00206RGQ9"))
}

func TestLookupCUSIPs_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/mapping", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "secret", r.Header.Get("X-OPENFIGI-APIKEY"))

		var req []MappingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req, 2)
		assert.Equal(t, "ID_CUSIP", req[0].IDType)
		assert.Equal(t, "912828YK0", req[0].IDValue)
		assert.Equal(t, "ID_ISIN", req[1].IDType)

		resp := []MappingResponse{
			{Data: []MappingResult{{FIGI: "BBG00QX", Ticker: "T 1 3/8 10/15/22", MarketSector: "Govt", SecurityType: "US GOVERNMENT"}}},
			{Data: []MappingResult{{FIGI: "BBG000B9XRY4", Ticker: "AAPL", MarketSector: "Equity", SecurityType: "Common Stock"}}},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := newTestClient(server.URL, WithAPIKey("secret"))

	results, err := client.LookupCUSIPs(context.Background(), []string{"912828yk0", "US0378331005", ""})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "Govt", results["912828YK0"][0].MarketSector)
	assert.Equal(t, "AAPL", results["US0378331005"][0].Ticker)
}

func TestLookupCUSIPs_BatchesRequests(t *testing.T) {
	var requests int32
	var mu sync.Mutex
	var sizes []int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		var req []MappingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		mu.Lock()
		sizes = append(sizes, len(req))
		mu.Unlock()

		resp := make([]MappingResponse, len(req))
		for i := range req {
			resp[i] = MappingResponse{Error: "No identifier found."}
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	ids := make([]string, 23)
	for i := range ids {
		ids[i] = string(rune('A'+i)) + "2345678X"
	}

	results, err := client.LookupCUSIPs(context.Background(), ids)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, int32(3), atomic.LoadInt32(&requests))
	mu.Lock()
	assert.Equal(t, []int{10, 10, 3}, sizes)
	mu.Unlock()

	// Misses are cached, so a second lookup makes no request
	_, err = client.LookupCUSIPs(context.Background(), ids)
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&requests))
}

func TestLookupCUSIPs_RetriesTransientErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		if n == 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode([]MappingResponse{
			{Data: []MappingResult{{Ticker: "SPY", MarketSector: "Equity", SecurityType: "ETP"}}},
		})
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	results, err := client.LookupCUSIPs(context.Background(), []string{"78462F103"})
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, "SPY", results["78462F103"][0].Ticker)
}

func TestLookupCUSIPs_DoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"bad request"}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	results, err := client.LookupCUSIPs(context.Background(), []string{"78462F103"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
	assert.Empty(t, results)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestLookupCUSIPs_FallsBackToStaleCache(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	repo, db := newCacheRepo(t)
	stale, err := json.Marshal([]MappingResult{{Ticker: "AAPL", MarketSector: "Equity"}})
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO openfigi (identifier, data, expires_at) VALUES (?, ?, ?)",
		"037833100", string(stale), time.Now().Add(-time.Hour).Unix())
	require.NoError(t, err)

	client := newTestClient(server.URL, WithCacheRepository(repo), WithMemoryCache(nil))

	results, err := client.LookupCUSIPs(context.Background(), []string{"037833100"})
	require.NoError(t, err)
	assert.Equal(t, "AAPL", results["037833100"][0].Ticker)

	// Without a stale entry the failure surfaces with partial results
	results, err = client.LookupCUSIPs(context.Background(), []string{"037833100", "912828YK0"})
	require.Error(t, err)
	assert.Len(t, results, 1)
}

func TestLookupCUSIPs_UsesPersistentCache(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_ = json.NewEncoder(w).Encode([]MappingResponse{
			{Data: []MappingResult{{Ticker: "T", MarketSector: "Corp"}}},
		})
	}))
	defer server.Close()

	repo, _ := newCacheRepo(t)

	first := newTestClient(server.URL, WithCacheRepository(repo))
	_, err := first.LookupCUSIPs(context.Background(), []string{"00206RGQ9"})
	require.NoError(t, err)

	// A fresh client with an empty memory cache reads the persisted entry
	second := newTestClient(server.URL, WithCacheRepository(repo))
	results, err := second.LookupCUSIPs(context.Background(), []string{"00206RGQ9"})
	require.NoError(t, err)
	assert.Equal(t, "T", results["00206RGQ9"][0].Ticker)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestLookupCUSIPs_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(server.URL, WithRetry(5, time.Hour))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.LookupCUSIPs(ctx, []string{"912828YK0"})
	require.Error(t, err)
}

func TestClassifySecurityType(t *testing.T) {
	tests := []struct {
		name     string
		results  []MappingResult
		expected domain.AssetType
	}{
		{"no results", nil, domain.AssetOther},
		{"treasury", []MappingResult{{MarketSector: "Govt", SecurityType: "US GOVERNMENT"}}, domain.AssetBond},
		{"corporate bond", []MappingResult{{MarketSector: "Corp", SecurityType: "GLOBAL"}}, domain.AssetBond},
		{"muni", []MappingResult{{MarketSector: "Muni"}}, domain.AssetBond},
		{"common stock", []MappingResult{{MarketSector: "Equity", SecurityType: "Common Stock"}}, domain.AssetEquity},
		{"etf", []MappingResult{{MarketSector: "Equity", SecurityType: "ETP"}}, domain.AssetEquity},
		{"mutual fund", []MappingResult{{MarketSector: "Equity", SecurityType2: "Mutual Fund"}}, domain.AssetEquity},
		{"money market", []MappingResult{{MarketSector: "Equity", SecurityType: "Money Market Fund"}}, domain.AssetCash},
		{"reit", []MappingResult{{MarketSector: "Equity", SecurityType: "REIT"}}, domain.AssetAlternative},
		{"commodity", []MappingResult{{MarketSector: "Comdty"}}, domain.AssetAlternative},
		{"unknown", []MappingResult{{MarketSector: "Index"}}, domain.AssetOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ClassifySecurityType(tt.results))
		})
	}
}
