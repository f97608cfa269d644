package notify

import (
	"github.com/polycopy/engine/internal/domain"
	"github.com/polycopy/engine/internal/ports"
)

// Tee fans one Publish out to several publishers (bus + console).
type Tee []ports.Publisher

func (t Tee) Publish(event domain.Event) {
	for _, p := range t {
		p.Publish(event)
	}
}
