package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/aristath/custodian/internal/domain"
	"github.com/aristath/custodian/internal/modules/cash_flows"
	"github.com/aristath/custodian/internal/modules/portfolio"
	"github.com/aristath/custodian/internal/modules/standardized"
	testhelpers "github.com/aristath/custodian/internal/testing"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRefresher struct {
	dates []time.Time
}

func (s *stubRefresher) Refresh(_ context.Context, date time.Time) error {
	s.dates = append(s.dates, date)
	return nil
}

func setupHandler(t *testing.T) (*Handler, *stubRefresher, standardized.Paths, chi.Router) {
	t.Helper()
	db, cleanup := testhelpers.NewTestDB(t, "portfolio")
	t.Cleanup(cleanup)

	logger := zerolog.Nop()
	root := t.TempDir()
	paths := standardized.Paths{InputRoot: filepath.Join(root, "in"), OutputRoot: filepath.Join(root, "out")}
	service := portfolio.NewService(
		portfolio.NewSnapshotRepository(db.Conn(), logger),
		cash_flows.NewTransactionRepository(db.Conn(), logger),
		paths,
		nil,
		logger,
	)
	refresher := &stubRefresher{}
	handler := NewHandler(service, refresher, logger)

	router := chi.NewRouter()
	router.Route("/api", handler.RegisterRoutes)
	return handler, refresher, paths, router
}

func writeDate(t *testing.T, paths standardized.Paths, date time.Time) {
	t.Helper()
	require.NoError(t, standardized.WriteSecurities(paths.SecuritiesFile(date), []domain.StandardizedSecurity{
		{
			Bank:        domain.BankSafra,
			ClientCode:  "HZ",
			AccountCode: "HZ-SAFRA",
			Name:        "USD Cash",
			Quantity:    decimal.NewFromInt(2500),
			Price:       decimal.NewFromInt(1),
			MarketValue: decimal.NewFromInt(2500),
			AssetType:   domain.AssetCash,
			Currency:    "USD",
		},
	}))
	require.NoError(t, standardized.WriteTransactions(paths.TransactionsFile(date), nil))
}

func TestHandleCalculate(t *testing.T) {
	_, refresher, paths, router := setupHandler(t)
	date := time.Date(2025, 7, 24, 0, 0, 0, 0, time.UTC)
	writeDate(t, paths, date)

	body, _ := json.Marshal(map[string]string{"date": "2025-07-24"})
	req := httptest.NewRequest("POST", "/api/portfolio/calculate", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var response struct {
		Data struct {
			Result             portfolio.DateResult `json:"result"`
			AggregateRefreshed bool                 `json:"aggregate_refreshed"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.True(t, response.Data.AggregateRefreshed)
	require.Len(t, response.Data.Result.Clients, 1)
	assert.Equal(t, portfolio.ClientSucceeded, response.Data.Result.Clients[0].Status)
	assert.Equal(t, []time.Time{date}, refresher.dates)

	// the stored snapshot is now readable
	req = httptest.NewRequest("GET", "/api/portfolio/HZ/snapshots/2025-07-24", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest("GET", "/api/portfolio/HZ/history", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	var history map[string]map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&history))
	assert.Equal(t, float64(1), history["data"]["count"])
}

func TestHandleCalculate_BadRequests(t *testing.T) {
	_, refresher, _, router := setupHandler(t)

	tests := []struct {
		name           string
		body           string
		expectedStatus int
	}{
		{"malformed body", "{", http.StatusBadRequest},
		{"bad date", `{"date":"24/07/2025"}`, http.StatusBadRequest},
		{"no standardized output", `{"date":"2025-07-24"}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/portfolio/calculate", bytes.NewBufferString(tt.body))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
	assert.Empty(t, refresher.dates)
}

func TestHandleGetSnapshot_NotFound(t *testing.T) {
	_, _, _, router := setupHandler(t)

	req := httptest.NewRequest("GET", "/api/portfolio/HZ/snapshots/2025-07-24", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	req = httptest.NewRequest("GET", "/api/portfolio/HZ/snapshots/yesterday", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRegisterRoutes(t *testing.T) {
	handler, _, _, _ := setupHandler(t)
	router := chi.NewRouter()

	assert.NotPanics(t, func() {
		handler.RegisterRoutes(router)
	}, "RegisterRoutes should not panic")
}
