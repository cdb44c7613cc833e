package models

// Order statuses. Orders arrive as "pending" and are moved to "accepted" or
// "denied" by the approval workflow downstream of this service.
const (
	StatusPending  = "pending"
	StatusAccepted = "accepted"
	StatusDenied   = "denied"
)

// Order is a single inbound order event, immutable once received.
type Order struct {
	OrderID    string  `json:"order_id"`
	CustomerID int64   `json:"customer_id"`
	ProductID  string  `json:"product_id"`
	Quantity   int64   `json:"quantity"`
	UnitPrice  float64 `json:"unit_price"`
	Total      float64 `json:"total"` // expected = quantity * unit_price, not re-derived
	Timestamp  int64   `json:"timestamp"` // epoch milliseconds
	Status     string  `json:"status"`
}
