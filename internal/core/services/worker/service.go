package worker

import (
	"context"

	"github.com/darrnshn/stateline/internal/domain"
)

// IWorkerRegistryService answers read-only queries about registered workers
type IWorkerRegistryService interface {
	// GetAllWorkers gets all registered workers
	GetAllWorkers(ctx context.Context) ([]domain.WorkerInfo, error)

	// GetAvailableWorkers gets idle workers that accept the given job type
	GetAvailableWorkers(ctx context.Context, jobType domain.JobType) ([]domain.WorkerInfo, error)

	// GetWorkerTypes gets the job types at least one worker accepts
	GetWorkerTypes(ctx context.Context) ([]domain.JobType, error)

	// CleanupInactiveWorkers prunes mirrored workers that stopped heartbeating
	CleanupInactiveWorkers(ctx context.Context) error
}

// LiveRegistry is the delegator's own, authoritative registry
type LiveRegistry interface {
	Workers(ctx context.Context) ([]domain.WorkerInfo, error)
}
