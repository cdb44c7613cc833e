package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderviews/internal/models"
)

// fakeGateway records saves and serves canned lookups, with injectable
// failures per method.
type fakeGateway struct {
	mu        sync.Mutex
	saved     []*models.ViewState
	saveErr   error
	lookupErr error
	pingErr   error
	customers map[int64]models.CustomerStats
	products  map[string]models.ProductStats
	timeline  []models.TimelineEntry
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		customers: make(map[int64]models.CustomerStats),
		products:  make(map[string]models.ProductStats),
	}
}

func (f *fakeGateway) Save(_ context.Context, state *models.ViewState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, state)
	return nil
}

func (f *fakeGateway) GetCustomer(_ context.Context, customerID int64) (*models.CustomerStats, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	if stats, ok := f.customers[customerID]; ok {
		return &stats, nil
	}
	return nil, nil
}

func (f *fakeGateway) GetProduct(_ context.Context, productID string) (*models.ProductStats, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	if stats, ok := f.products[productID]; ok {
		return &stats, nil
	}
	return nil, nil
}

func (f *fakeGateway) GetTimeline(_ context.Context, limit int) ([]models.TimelineEntry, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	if limit > 0 && len(f.timeline) > limit {
		return f.timeline[:limit], nil
	}
	return f.timeline, nil
}

func (f *fakeGateway) Ping(_ context.Context) error {
	return f.pingErr
}

func (f *fakeGateway) saveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(gw Gateway) *Engine {
	return New(gw, Config{
		ProcessorID:     "p-1",
		TimelineMaxSize: 100,
		SaveTimeout:     time.Second,
	}, testLogger(), nil)
}

func orderJSON(id string, customerID int64, status string) []byte {
	return []byte(fmt.Sprintf(
		`{"order_id":%q,"customer_id":%d,"product_id":"P1","quantity":2,"unit_price":10.0,"total":20.0,"timestamp":1000,"status":%q}`,
		id, customerID, status,
	))
}

func TestConsumeValidOrder(t *testing.T) {
	gw := newFakeGateway()
	eng := newTestEngine(gw)

	result := eng.Execute(context.Background(), Command{Kind: CmdConsume, Order: orderJSON("O1", 7, models.StatusPending)})

	require.True(t, result.Success)
	assert.Equal(t, "O1", result.OrderID)
	require.NotNil(t, result.Views)

	customer := result.Views.CustomerStats[7]
	assert.Equal(t, int64(1), customer.TotalOrders)
	assert.Equal(t, 20.0, customer.TotalSpent)
	assert.Equal(t, "O1", customer.LastOrderID)
	assert.Equal(t, int64(1000), customer.FirstOrderTS)

	assert.Equal(t, int64(1), result.Views.Processing.ProcessedCount)
	assert.Zero(t, result.Views.Processing.RevenueAccepted)
	assert.Equal(t, 1, gw.saveCount(), "new state is persisted best-effort")
}

func TestConsumeInvalidOrder(t *testing.T) {
	gw := newFakeGateway()
	eng := newTestEngine(gw)

	raw := []byte(`{"order_id":"O1","product_id":"P1","quantity":2,"unit_price":10.0,"total":20.0,"timestamp":1000,"status":"pending"}`)
	result := eng.Execute(context.Background(), Command{Kind: CmdConsume, Order: raw})

	require.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
	assert.Equal(t, "O1", result.OrderID, "order_id is carried through even for invalid payloads")

	state := eng.Store().Read()
	assert.Equal(t, int64(1), state.Processing.ErrorCount)
	assert.Zero(t, state.Processing.ProcessedCount)
	assert.Empty(t, state.CustomerStats, "invalid orders never touch the views")
	assert.Zero(t, gw.saveCount())
}

func TestConsumeSucceedsWhenPersistFails(t *testing.T) {
	gw := newFakeGateway()
	gw.saveErr = fmt.Errorf("storage down")
	eng := newTestEngine(gw)

	result := eng.Execute(context.Background(), Command{Kind: CmdConsume, Order: orderJSON("O1", 7, models.StatusAccepted)})

	require.True(t, result.Success, "persistence failure must not fail ingestion")
	assert.Equal(t, int64(1), eng.Store().Read().Processing.ProcessedCount)
	assert.Equal(t, 20.0, eng.Store().Read().Processing.RevenueAccepted)
}

func TestConsumeWithoutGateway(t *testing.T) {
	eng := newTestEngine(nil)

	result := eng.Execute(context.Background(), Command{Kind: CmdConsume, Order: orderJSON("O1", 7, models.StatusPending)})

	require.True(t, result.Success)
	assert.Equal(t, int64(1), eng.Store().Read().Processing.ProcessedCount)
}

func TestPersist(t *testing.T) {
	gw := newFakeGateway()
	eng := newTestEngine(gw)

	result := eng.Execute(context.Background(), Command{Kind: CmdPersist})
	require.True(t, result.Success)
	assert.Equal(t, 1, gw.saveCount())

	gw.saveErr = fmt.Errorf("storage down")
	result = eng.Execute(context.Background(), Command{Kind: CmdPersist})
	require.False(t, result.Success)
	assert.Contains(t, result.Error, "storage down")
}

func TestPersistWithoutGateway(t *testing.T) {
	eng := newTestEngine(nil)

	result := eng.Execute(context.Background(), Command{Kind: CmdPersist})
	require.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
}

func TestQueryCustomer(t *testing.T) {
	gw := newFakeGateway()
	gw.customers[7] = models.CustomerStats{CustomerID: 7, TotalOrders: 3, TotalSpent: 60.0}
	eng := newTestEngine(gw)

	result := eng.Execute(context.Background(), Command{Kind: CmdQueryCustomer, CustomerID: 7})
	require.True(t, result.Success)
	stats, ok := result.Data.(*models.CustomerStats)
	require.True(t, ok)
	assert.Equal(t, int64(3), stats.TotalOrders)

	result = eng.Execute(context.Background(), Command{Kind: CmdQueryCustomer, CustomerID: 99})
	require.True(t, result.Success, "missing customer is success with null data")
	missing, ok := result.Data.(*models.CustomerStats)
	require.True(t, ok)
	assert.Nil(t, missing)

	gw.lookupErr = fmt.Errorf("connection refused")
	result = eng.Execute(context.Background(), Command{Kind: CmdQueryCustomer, CustomerID: 7})
	require.False(t, result.Success)
	assert.Contains(t, result.Error, "connection refused")
}

func TestQueryProduct(t *testing.T) {
	gw := newFakeGateway()
	gw.products["P1"] = models.ProductStats{ProductID: "P1", OrderCount: 2, AvgQuantity: 3.0}
	eng := newTestEngine(gw)

	result := eng.Execute(context.Background(), Command{Kind: CmdQueryProduct, ProductID: "P1"})
	require.True(t, result.Success)
	stats, ok := result.Data.(*models.ProductStats)
	require.True(t, ok)
	assert.Equal(t, 3.0, stats.AvgQuantity)
}

func TestQueryTimeline(t *testing.T) {
	gw := newFakeGateway()
	for i := 0; i < 5; i++ {
		gw.timeline = append(gw.timeline, models.TimelineEntry{OrderID: fmt.Sprintf("O%d", 5-i)})
	}
	eng := newTestEngine(gw)

	result := eng.Execute(context.Background(), Command{Kind: CmdQueryTimeline, Limit: 3})
	require.True(t, result.Success)
	assert.Equal(t, 3, result.Count)
	entries, ok := result.Data.([]models.TimelineEntry)
	require.True(t, ok)
	assert.Equal(t, "O5", entries[0].OrderID)

	// Limit 0 falls back to the default.
	result = eng.Execute(context.Background(), Command{Kind: CmdQueryTimeline})
	require.True(t, result.Success)
	assert.Equal(t, 5, result.Count)
}

func TestHealthCheck(t *testing.T) {
	gw := newFakeGateway()
	eng := newTestEngine(gw)

	result := eng.Execute(context.Background(), Command{Kind: CmdHealthCheck})
	require.True(t, result.Success)
	assert.Equal(t, "healthy", result.Status)
	assert.Equal(t, "connected", result.Storage)
	require.NotNil(t, result.Stats)
	assert.Equal(t, "p-1", result.Stats.Processing.ProcessorID)

	gw.pingErr = fmt.Errorf("timeout")
	result = eng.Execute(context.Background(), Command{Kind: CmdHealthCheck})
	require.False(t, result.Success)
	assert.Equal(t, "unhealthy", result.Status)
	assert.Contains(t, result.Error, "timeout")
}

func TestGetStats(t *testing.T) {
	eng := newTestEngine(newFakeGateway())
	eng.Execute(context.Background(), Command{Kind: CmdConsume, Order: orderJSON("O1", 7, models.StatusPending)})
	eng.Execute(context.Background(), Command{Kind: CmdConsume, Order: orderJSON("O2", 8, models.StatusAccepted)})

	result := eng.Execute(context.Background(), Command{Kind: CmdGetStats})
	require.True(t, result.Success)
	require.NotNil(t, result.Stats)
	assert.Equal(t, 2, result.Stats.CustomerCount)
	assert.Equal(t, 1, result.Stats.ProductCount)
	assert.Equal(t, 2, result.Stats.TimelineSize)
	assert.Equal(t, int64(2), result.Stats.Processing.ProcessedCount)
}

func TestReset(t *testing.T) {
	eng := newTestEngine(newFakeGateway())
	eng.Execute(context.Background(), Command{Kind: CmdConsume, Order: orderJSON("O1", 7, models.StatusAccepted)})
	require.NotZero(t, eng.Store().Read().Processing.ProcessedCount)

	result := eng.Execute(context.Background(), Command{Kind: CmdReset})
	require.True(t, result.Success)
	assert.NotEmpty(t, result.Message)

	state := eng.Store().Read()
	assert.Equal(t, "p-1", state.Processing.ProcessorID, "processor id survives reset")
	assert.Zero(t, state.Processing.ProcessedCount)
	assert.Zero(t, state.Processing.RevenueAccepted)
	assert.Empty(t, state.CustomerStats)
	assert.Empty(t, state.Timeline)
}

func TestUnknownCommand(t *testing.T) {
	eng := newTestEngine(newFakeGateway())

	result := eng.Execute(context.Background(), Command{Kind: "replay"})
	require.False(t, result.Success)
	assert.Equal(t, "Unknown command type: replay", result.Error)
}

// A panicking collaborator becomes a failure result, never an escaped fault.
func TestCollaboratorPanicIsContained(t *testing.T) {
	eng := New(nil, Config{ProcessorID: "p-1", TimelineMaxSize: 100, SaveTimeout: time.Second}, testLogger(), nil)

	result := eng.Execute(context.Background(), Command{Kind: CmdQueryCustomer, CustomerID: 7})
	require.False(t, result.Success)
	assert.Contains(t, result.Error, "internal error")
}

// Interleaved consume calls from many goroutines must land every order
// exactly once: processed/error counts add up and per-customer totals match
// a sequential run.
func TestConcurrentConsume(t *testing.T) {
	const workers = 8
	const perWorker = 50

	eng := newTestEngine(newFakeGateway())

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				id := fmt.Sprintf("O-%d-%d", worker, i)
				if i%5 == 0 {
					// Invalid: quantity missing.
					raw := []byte(fmt.Sprintf(`{"order_id":%q,"customer_id":%d,"product_id":"P1","unit_price":10.0,"total":20.0,"timestamp":1000,"status":"pending"}`, id, worker+1))
					eng.Execute(context.Background(), Command{Kind: CmdConsume, Order: raw})
					continue
				}
				eng.Execute(context.Background(), Command{Kind: CmdConsume, Order: orderJSON(id, int64(worker+1), models.StatusAccepted)})
			}
		}(w)
	}
	wg.Wait()

	state := eng.Store().Read()
	invalidPerWorker := perWorker / 5
	validPerWorker := perWorker - invalidPerWorker

	assert.Equal(t, int64(workers*validPerWorker), state.Processing.ProcessedCount)
	assert.Equal(t, int64(workers*invalidPerWorker), state.Processing.ErrorCount)
	for w := 0; w < workers; w++ {
		customer := state.CustomerStats[int64(w+1)]
		assert.Equal(t, int64(validPerWorker), customer.TotalOrders)
		assert.Equal(t, float64(validPerWorker)*20.0, customer.TotalSpent)
	}
}
