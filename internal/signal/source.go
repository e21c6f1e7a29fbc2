package signal

import (
	"context"
	"time"
)

type HealthStatus struct {
	Status     string
	LastSeenAt *time.Time
	LastError  *string
	Details    map[string]any
}

// Source produces candidate signals for the intake hub.
type Source interface {
	Name() string
	Start(ctx context.Context, out chan<- Candidate) error
	Stop() error
	Health() HealthStatus
}
