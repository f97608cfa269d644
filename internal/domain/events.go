package domain

import "time"

// Notification kinds published to per-user topics. Names are part of the
// wire contract with existing clients.
const (
	EventTradeDetected = "trade:detected"
	EventTradeExecuted = "trade:executed"
	EventTradeFailed   = "trade:execution-failed"
	EventMonitorError  = "monitor:error"
)

// Event is one notification delivered to a single user's topic.
// Delivery is best-effort; the processed-trade ledger, not the event stream,
// records whether a trade was handled.
type Event struct {
	ID     string           `json:"id"`
	Kind   string           `json:"kind"`
	UserID string           `json:"userId"`
	Wallet Wallet           `json:"wallet,omitempty"`
	Trade  *Trade           `json:"trade,omitempty"`
	Result *ExecutionResult `json:"result,omitempty"`
	Error  string           `json:"error,omitempty"` // monitor:error only
	At     time.Time        `json:"at"`
}
