package exchangerate

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aristath/custodian/internal/clientdata"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCacheRepo(t *testing.T) *clientdata.Repository {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE exchangerate (pair TEXT PRIMARY KEY, data TEXT NOT NULL, expires_at INTEGER NOT NULL)`)
	require.NoError(t, err)

	return clientdata.NewRepository(db)
}

// indicatorServer serves fixed values; days listed in closed return an empty serie.
func indicatorServer(t *testing.T, values map[string]float64, closed map[string]bool, calls *int32) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			atomic.AddInt32(calls, 1)
		}
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		require.Len(t, parts, 2)
		indicator, day := parts[0], parts[1]

		resp := map[string]interface{}{"codigo": indicator, "serie": []interface{}{}}
		if !closed[day] {
			if v, ok := values[indicator]; ok {
				resp["serie"] = []map[string]interface{}{{"fecha": day, "valor": v}}
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func newClient(url string, repo *clientdata.Repository) *Client {
	opts := []ClientOption{WithBaseURL(url), WithRateLimit(time.Microsecond)}
	if repo != nil {
		opts = append(opts, WithCacheRepository(repo))
	}
	return NewClient(zerolog.Nop(), opts...)
}

var day = time.Date(2025, 7, 24, 0, 0, 0, 0, time.UTC)

func TestUSDPerUnit_USD(t *testing.T) {
	c := NewClient(zerolog.Nop())

	rate, err := c.USDPerUnit(context.Background(), "usd", day)
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.NewFromInt(1)))
}

func TestUSDPerUnit_CLP(t *testing.T) {
	server := indicatorServer(t, map[string]float64{"dolar": 950}, nil, nil)
	defer server.Close()

	c := newClient(server.URL, nil)

	rate, err := c.USDPerUnit(context.Background(), "CLP", day)
	require.NoError(t, err)

	// 950,000 CLP is 1,000 USD
	usd := decimal.NewFromInt(950000).Mul(rate).Round(2)
	assert.Equal(t, "1000", usd.String())
}

func TestUSDPerUnit_UF(t *testing.T) {
	server := indicatorServer(t, map[string]float64{"dolar": 950, "uf": 39150}, nil, nil)
	defer server.Close()

	c := newClient(server.URL, nil)

	rate, err := c.USDPerUnit(context.Background(), "UF", day)
	require.NoError(t, err)

	f, _ := rate.Float64()
	assert.InDelta(t, 41.2105, f, 0.0001)
}

func TestUSDPerUnit_WalksBackOverClosedDays(t *testing.T) {
	closed := map[string]bool{"24-07-2025": true, "23-07-2025": true}
	server := indicatorServer(t, map[string]float64{"dolar": 1000}, closed, nil)
	defer server.Close()

	c := newClient(server.URL, nil)

	rate, err := c.USDPerUnit(context.Background(), "CLP", day)
	require.NoError(t, err)
	assert.Equal(t, "0.001", rate.String())
}

func TestUSDPerUnit_UsesCache(t *testing.T) {
	var calls int32
	server := indicatorServer(t, map[string]float64{"dolar": 1000}, nil, &calls)
	defer server.Close()

	repo := newCacheRepo(t)
	c := newClient(server.URL, repo)

	_, err := c.USDPerUnit(context.Background(), "CLP", day)
	require.NoError(t, err)
	_, err = c.USDPerUnit(context.Background(), "CLP", day)
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestUSDPerUnit_StaleFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	repo := newCacheRepo(t)
	require.NoError(t, repo.Put(context.Background(), clientdata.FXRates, "dolar:2025-07-24",
		cachedIndicator{Value: "500", Date: "2025-07-24"}, -time.Hour))

	c := newClient(server.URL, repo)

	rate, err := c.USDPerUnit(context.Background(), "CLP", day)
	require.NoError(t, err)
	assert.Equal(t, "0.002", rate.String())
}

func TestUSDPerUnit_Errors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	c := newClient(server.URL, nil)

	_, err := c.USDPerUnit(context.Background(), "CLP", day)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")

	ok := indicatorServer(t, map[string]float64{"dolar": 950}, nil, nil)
	defer ok.Close()

	_, err = newClient(ok.URL, nil).USDPerUnit(context.Background(), "JPY", day)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported currency")
}
