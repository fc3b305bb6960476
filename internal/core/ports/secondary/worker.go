package secondary

import (
	"context"
	"time"

	"github.com/darrnshn/stateline/internal/domain"
)

// WorkerRegistryMirror is an external, read-mostly copy of the delegator's
// worker registry. The delegator stays the only writer of record.
type WorkerRegistryMirror interface {
	// Sync replaces the mirrored registry with the given snapshot
	Sync(ctx context.Context, workers []domain.WorkerInfo) error

	// RemoveInactiveWorkers removes workers that haven't sent a heartbeat since cutoffTime
	RemoveInactiveWorkers(ctx context.Context, cutoffTime time.Time) error

	GetAllWorkers(ctx context.Context) ([]*domain.WorkerInfo, error)

	GetWorkersByType(ctx context.Context, jobType domain.JobType) ([]*domain.WorkerInfo, error)

	GetWorkerTypes(ctx context.Context) ([]domain.JobType, error)
}
