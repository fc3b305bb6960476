package worker

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/darrnshn/stateline/internal/core/ports/primary"
	"github.com/darrnshn/stateline/internal/core/ports/secondary"
	"github.com/darrnshn/stateline/internal/domain"
)

var _ IWorkerRegistryService = &WorkerRegistryService{}

// WorkerRegistryService implements IWorkerRegistryService. It reads the live
// registry when it runs inside the delegator and the mirror otherwise.
type WorkerRegistryService struct {
	live             LiveRegistry
	mirror           secondary.WorkerRegistryMirror
	heartbeatTimeout time.Duration
	logger           primary.Logger
}

// NewWorkerRegistryService creates a new worker registry service. Either
// source may be nil, but not both.
func NewWorkerRegistryService(
	live LiveRegistry,
	mirror secondary.WorkerRegistryMirror,
	heartbeatTimeout time.Duration,
	logger primary.Logger,
) *WorkerRegistryService {
	return &WorkerRegistryService{
		live:             live,
		mirror:           mirror,
		heartbeatTimeout: heartbeatTimeout,
		logger:           logger,
	}
}

func (s *WorkerRegistryService) GetAllWorkers(ctx context.Context) ([]domain.WorkerInfo, error) {
	s.logger.Debug("Getting all workers")

	if s.live != nil {
		workers, err := s.live.Workers(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get all workers: %w", err)
		}
		return workers, nil
	}
	if s.mirror == nil {
		return nil, fmt.Errorf("no worker registry configured")
	}

	mirrored, err := s.mirror.GetAllWorkers(ctx)
	if err != nil {
		s.logger.Error("Failed to get all workers", "error", err)
		return nil, fmt.Errorf("failed to get all workers: %w", err)
	}

	// The mirror lags the delegator; hide entries it has not pruned yet
	threshold := time.Now().Add(-s.heartbeatTimeout)
	workers := make([]domain.WorkerInfo, 0, len(mirrored))
	for _, w := range mirrored {
		if w.LastHeartbeat.After(threshold) {
			workers = append(workers, *w)
		}
	}
	sort.Slice(workers, func(i, j int) bool { return workers[i].Identity < workers[j].Identity })
	return workers, nil
}

// GetAvailableWorkers gets idle workers that accept the given job type
func (s *WorkerRegistryService) GetAvailableWorkers(ctx context.Context, jobType domain.JobType) ([]domain.WorkerInfo, error) {
	s.logger.Debug("Getting available workers", "type", jobType)

	workers, err := s.GetAllWorkers(ctx)
	if err != nil {
		return nil, err
	}

	available := make([]domain.WorkerInfo, 0)
	for _, w := range workers {
		if w.IsIdle() && w.Supports(jobType) {
			available = append(available, w)
		}
	}
	return available, nil
}

func (s *WorkerRegistryService) GetWorkerTypes(ctx context.Context) ([]domain.JobType, error) {
	s.logger.Debug("Getting worker types")

	workers, err := s.GetAllWorkers(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[domain.JobType]bool)
	types := make([]domain.JobType, 0)
	for _, w := range workers {
		for _, t := range w.JobTypes {
			if !seen[t] {
				seen[t] = true
				types = append(types, t)
			}
		}
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types, nil
}

// CleanupInactiveWorkers prunes mirrored workers that stopped heartbeating
func (s *WorkerRegistryService) CleanupInactiveWorkers(ctx context.Context) error {
	if s.mirror == nil {
		return nil
	}
	s.logger.Info("Cleaning up inactive workers")

	cutoffTime := time.Now().Add(-s.heartbeatTimeout)
	if err := s.mirror.RemoveInactiveWorkers(ctx, cutoffTime); err != nil {
		s.logger.Error("Failed to remove inactive workers", "error", err)
		return fmt.Errorf("failed to clean up inactive workers: %w", err)
	}

	return nil
}
