// Package aggregator holds the pure state-transition functions for the
// materialized views and the atomic store that applies them. Transforms never
// mutate their input: the store may re-run a transform under contention, so
// every function here is copy-on-write over the snapshot.
package aggregator

import (
	"time"

	"orderviews/internal/models"
)

// Init returns the zeroed view state for a fresh engine instance.
func Init(processorID string) *models.ViewState {
	return &models.ViewState{
		CustomerStats: make(map[int64]models.CustomerStats),
		ProductStats:  make(map[string]models.ProductStats),
		Timeline:      make([]models.TimelineEntry, 0),
		Processing: models.ProcessingStats{
			ProcessorID: processorID,
		},
	}
}

// Apply folds one validated order into the snapshot and returns the new
// snapshot. Customer and product totals update for every order regardless of
// status; only accepted orders grow the accepted-revenue counter. That
// asymmetry is intentional and load-bearing for downstream consumers.
func Apply(state *models.ViewState, order models.Order, timelineMax int) *models.ViewState {
	next := clone(state)

	customer, ok := next.CustomerStats[order.CustomerID]
	if !ok {
		customer = models.CustomerStats{
			CustomerID:   order.CustomerID,
			FirstOrderTS: order.Timestamp,
		}
	}
	customer.TotalOrders++
	customer.TotalSpent += order.Total
	customer.LastOrderID = order.OrderID
	customer.LastOrderTS = order.Timestamp
	next.CustomerStats[order.CustomerID] = customer

	product, ok := next.ProductStats[order.ProductID]
	if !ok {
		product = models.ProductStats{ProductID: order.ProductID}
	}
	product.TotalQuantity += order.Quantity
	product.TotalRevenue += order.Total
	product.OrderCount++
	product.AvgQuantity = float64(product.TotalQuantity) / float64(product.OrderCount)
	product.LastOrderTS = order.Timestamp
	next.ProductStats[order.ProductID] = product

	next.Timeline = prepend(next.Timeline, models.NewTimelineEntry(order), timelineMax)

	next.Processing.ProcessedCount++
	next.Processing.LastProcessedTS = time.Now().UnixMilli()
	if order.Status == models.StatusAccepted {
		next.Processing.RevenueAccepted += order.Total
	}

	return next
}

// IncrementErrors bumps the error counter and leaves everything else intact.
func IncrementErrors(state *models.ViewState) *models.ViewState {
	next := clone(state)
	next.Processing.ErrorCount++
	return next
}

// prepend inserts entry at the head, evicting the oldest (last) entry when
// the timeline is at capacity.
func prepend(timeline []models.TimelineEntry, entry models.TimelineEntry, max int) []models.TimelineEntry {
	keep := len(timeline)
	if max > 0 && keep >= max {
		keep = max - 1
	}
	next := make([]models.TimelineEntry, 0, keep+1)
	next = append(next, entry)
	next = append(next, timeline[:keep]...)
	return next
}

// clone copies the snapshot one level deep. Map entries and timeline entries
// are value types, so a fresh map and slice are enough for isolation.
func clone(state *models.ViewState) *models.ViewState {
	customers := make(map[int64]models.CustomerStats, len(state.CustomerStats))
	for id, cs := range state.CustomerStats {
		customers[id] = cs
	}
	products := make(map[string]models.ProductStats, len(state.ProductStats))
	for id, ps := range state.ProductStats {
		products[id] = ps
	}
	timeline := make([]models.TimelineEntry, len(state.Timeline))
	copy(timeline, state.Timeline)

	return &models.ViewState{
		CustomerStats: customers,
		ProductStats:  products,
		Timeline:      timeline,
		Processing:    state.Processing,
	}
}
