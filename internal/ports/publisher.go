package ports

import "github.com/polycopy/engine/internal/domain"

// Publisher delivers notifications to per-user topics. Best-effort: a failed
// or dropped delivery never affects trade handling.
type Publisher interface {
	Publish(event domain.Event)
}
