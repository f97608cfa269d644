package domain

import "time"

// OrderRequest is the bounded replica order handed to the exchange adapter.
type OrderRequest struct {
	MarketID string
	Outcome  string
	Side     string
	Size     float64
	Price    float64
}

// PlacedOrder is the exchange's acknowledgement of a submitted order.
// Price is the limit price actually submitted, which may sit above the
// requested price after tick alignment; zero when the exchange adapter
// does not adjust prices.
type PlacedOrder struct {
	OrderID string
	Status  string
	Price   float64
}

// ExecutionResult is the terminal outcome of one (trade, user) copy attempt.
// There is exactly one per pairing; the core never retries.
type ExecutionResult struct {
	UserID  string
	Success bool

	OrderID string
	Status  string

	// Replica order as submitted (size/price after bounding).
	MarketID string
	Title    string
	Outcome  string
	Side     string
	Size     float64
	Price    float64

	// Echo of the observed trade for client display.
	OriginalSize  float64
	OriginalPrice float64

	FailureKind FailureKind // empty on success
	Error       string      // upstream message, empty on success

	ExecutedAt time.Time
}
