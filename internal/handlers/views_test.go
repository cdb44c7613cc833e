package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderviews/internal/engine"
	"orderviews/internal/models"
)

type stubGateway struct {
	customers map[int64]models.CustomerStats
	timeline  []models.TimelineEntry
	pingErr   error
}

func (s *stubGateway) Save(context.Context, *models.ViewState) error { return nil }

func (s *stubGateway) GetCustomer(_ context.Context, id int64) (*models.CustomerStats, error) {
	if stats, ok := s.customers[id]; ok {
		return &stats, nil
	}
	return nil, nil
}

func (s *stubGateway) GetProduct(context.Context, string) (*models.ProductStats, error) {
	return nil, nil
}

func (s *stubGateway) GetTimeline(_ context.Context, limit int) ([]models.TimelineEntry, error) {
	if limit > 0 && len(s.timeline) > limit {
		return s.timeline[:limit], nil
	}
	return s.timeline, nil
}

func (s *stubGateway) Ping(context.Context) error { return s.pingErr }

func newTestRouter(gw engine.Gateway) (*chi.Mux, *engine.Engine) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng := engine.New(gw, engine.Config{
		ProcessorID:     "p-1",
		TimelineMaxSize: 100,
		SaveTimeout:     time.Second,
	}, logger, nil)

	r := chi.NewRouter()
	r.Group(NewViewHandlers(eng, logger).Routes)
	return r, eng
}

func decodeResult(t *testing.T, rec *httptest.ResponseRecorder) engine.Result {
	t.Helper()
	var result engine.Result
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	return result
}

func TestConsumeOrderEndpoint(t *testing.T) {
	router, eng := newTestRouter(&stubGateway{})

	body := `{"order_id":"O1","customer_id":7,"product_id":"P1","quantity":2,"unit_price":10.0,"total":20.0,"timestamp":1000,"status":"pending"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	result := decodeResult(t, rec)
	assert.True(t, result.Success)
	assert.Equal(t, "O1", result.OrderID)
	assert.Equal(t, int64(1), eng.Store().Read().Processing.ProcessedCount)
}

func TestConsumeOrderEndpointRejectsInvalid(t *testing.T) {
	router, eng := newTestRouter(&stubGateway{})

	body := `{"order_id":"O1","quantity":2}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(body)))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	result := decodeResult(t, rec)
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
	assert.Equal(t, int64(1), eng.Store().Read().Processing.ErrorCount)
}

func TestGetCustomerEndpoint(t *testing.T) {
	gw := &stubGateway{customers: map[int64]models.CustomerStats{
		7: {CustomerID: 7, TotalOrders: 2, TotalSpent: 40.0},
	}}
	router, _ := newTestRouter(gw)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/customers/7", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeResult(t, rec).Success)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/customers/42", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/customers/abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTimelineEndpoint(t *testing.T) {
	gw := &stubGateway{}
	for i := 5; i >= 1; i-- {
		gw.timeline = append(gw.timeline, models.TimelineEntry{OrderID: fmt.Sprintf("O%d", i)})
	}
	router, _ := newTestRouter(gw)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/timeline?limit=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	result := decodeResult(t, rec)
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.Count)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/timeline?limit=-3", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatsAndResetEndpoints(t *testing.T) {
	router, _ := newTestRouter(&stubGateway{})

	body := `{"order_id":"O1","customer_id":7,"product_id":"P1","quantity":2,"unit_price":10.0,"total":20.0,"timestamp":1000,"status":"accepted"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	result := decodeResult(t, rec)
	require.NotNil(t, result.Stats)
	assert.Equal(t, 1, result.Stats.CustomerCount)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/reset", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
	result = decodeResult(t, rec)
	require.NotNil(t, result.Stats)
	assert.Zero(t, result.Stats.CustomerCount)
}

func TestHealthEndpoint(t *testing.T) {
	router, _ := newTestRouter(&stubGateway{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	result := decodeResult(t, rec)
	assert.Equal(t, "healthy", result.Status)
	assert.Equal(t, "connected", result.Storage)

	router, _ = newTestRouter(&stubGateway{pingErr: fmt.Errorf("down")})
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unhealthy", decodeResult(t, rec).Status)
}
