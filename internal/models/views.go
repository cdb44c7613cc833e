package models

// CustomerStats is the per-customer materialized view entry.
type CustomerStats struct {
	CustomerID  int64   `json:"customer_id"`
	TotalOrders int64   `json:"total_orders"`
	TotalSpent  float64 `json:"total_spent"`
	LastOrderID string  `json:"last_order_id,omitempty"`
	LastOrderTS int64   `json:"last_order_timestamp,omitempty"`
	// FirstOrderTS is set from the first order ever seen for this customer
	// and never changes after.
	FirstOrderTS int64 `json:"first_order_timestamp,omitempty"`
}

// ProductStats is the per-product materialized view entry.
type ProductStats struct {
	ProductID     string  `json:"product_id"`
	TotalQuantity int64   `json:"total_quantity"`
	TotalRevenue  float64 `json:"total_revenue"`
	OrderCount    int64   `json:"order_count"`
	AvgQuantity   float64 `json:"avg_quantity"`
	LastOrderTS   int64   `json:"last_order_timestamp,omitempty"`
}

// TimelineEntry is the projection of an order retained in the
// recent-activity timeline.
type TimelineEntry struct {
	OrderID    string  `json:"order_id"`
	CustomerID int64   `json:"customer_id"`
	ProductID  string  `json:"product_id"`
	Quantity   int64   `json:"quantity"`
	UnitPrice  float64 `json:"unit_price"`
	Total      float64 `json:"total"`
	Status     string  `json:"status"`
	Timestamp  int64   `json:"timestamp"`
}

// ProcessingStats tracks internal counters for one engine instance.
type ProcessingStats struct {
	ProcessorID    string `json:"processor_id"`
	ProcessedCount int64  `json:"processed_count"`
	ErrorCount     int64  `json:"error_count"`
	// RevenueAccepted sums order totals for accepted orders only; it is
	// never decremented.
	RevenueAccepted float64 `json:"total_revenue_accepted"`
	LastProcessedTS int64   `json:"last_processed_timestamp,omitempty"`
}

// ViewState is the aggregate root holding every materialized view. It is
// treated as an immutable snapshot: transforms build a new ViewState rather
// than mutating in place, which is what lets the view store apply them under
// optimistic retry. Map entries are value types for the same reason.
type ViewState struct {
	CustomerStats map[int64]CustomerStats `json:"customer_stats"`
	ProductStats  map[string]ProductStats `json:"product_stats"`
	// Timeline is most-recent-first, capped at the configured maximum.
	Timeline   []TimelineEntry `json:"timeline"`
	Processing ProcessingStats `json:"processing_stats"`
}

// NewTimelineEntry projects an order into its timeline form.
func NewTimelineEntry(order Order) TimelineEntry {
	return TimelineEntry{
		OrderID:    order.OrderID,
		CustomerID: order.CustomerID,
		ProductID:  order.ProductID,
		Quantity:   order.Quantity,
		UnitPrice:  order.UnitPrice,
		Total:      order.Total,
		Status:     order.Status,
		Timestamp:  order.Timestamp,
	}
}
