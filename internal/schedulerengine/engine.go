package schedulerengine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/darrnshn/stateline/internal/codec"
	"github.com/darrnshn/stateline/internal/config"
	"github.com/darrnshn/stateline/internal/core/ports/primary"
	"github.com/darrnshn/stateline/internal/core/ports/secondary"
	"github.com/darrnshn/stateline/internal/core/services/sampler"
	"github.com/darrnshn/stateline/internal/domain"
)

const defaultDrainTimeout = 30 * time.Second

// RunEngine drives a sampler until its context is cancelled or the step
// budget is spent, persisting snapshots and publishing events on the way.
type RunEngine struct {
	cfg     *config.SamplerCfg
	sampler *sampler.Sampler
	store   secondary.ChainStore // optional
	sink    secondary.EventSink  // optional
	logger  primary.Logger

	DrainTimeout time.Duration

	mu     sync.RWMutex
	latest []domain.ChainState
	stats  domain.SamplerStats
}

func NewRunEngine(
	cfg *config.SamplerCfg,
	s *sampler.Sampler,
	store secondary.ChainStore,
	sink secondary.EventSink,
	logger primary.Logger,
) *RunEngine {
	return &RunEngine{
		cfg:          cfg,
		sampler:      s,
		store:        store,
		sink:         sink,
		logger:       logger,
		DrainTimeout: defaultDrainTimeout,
		latest:       s.Chains().Snapshot(),
	}
}

// Restore resumes chains from the store. A run with nothing stored starts fresh.
func (e *RunEngine) Restore(ctx context.Context) error {
	if e.store == nil {
		return nil
	}
	states, err := e.store.LoadStates(ctx, e.cfg.RunID)
	if err != nil {
		return fmt.Errorf("failed to load chain states: %w", err)
	}
	if len(states) == 0 {
		e.logger.Info("No stored chain states, starting fresh", "runId", e.cfg.RunID)
		return nil
	}
	if err := e.sampler.Chains().Restore(states); err != nil {
		return fmt.Errorf("failed to restore chain states: %w", err)
	}
	e.refresh()
	e.logger.Info("Chain states restored", "runId", e.cfg.RunID, "chains", len(states))
	return nil
}

// Run steps the sampler until ctx is done, MaxSteps is reached or the
// delegator is lost. Outstanding jobs are always drained before it returns.
func (e *RunEngine) Run(ctx context.Context) error {
	sigmas, err := e.cfg.SigmaLadder()
	if err != nil {
		return err
	}
	betas, err := e.cfg.BetaLadder()
	if err != nil {
		return err
	}

	e.logger.Info("Sampler run started",
		"runId", e.cfg.RunID, "stacks", e.cfg.NStacks, "chains", e.cfg.NChains, "dims", e.cfg.NDims)

	runErr := e.loop(ctx, sigmas, betas)

	drainCtx, cancel := context.WithTimeout(context.Background(), e.DrainTimeout)
	defer cancel()
	if err := e.sampler.Close(drainCtx); err != nil {
		e.logger.Error("Failed to drain outstanding jobs", "error", err)
		if runErr == nil {
			runErr = err
		}
	}
	e.refresh()
	e.persist(drainCtx)

	stats := e.Stats()
	e.logger.Info("Sampler run finished",
		"steps", stats.Steps, "swapAttempts", stats.SwapAttempts, "swapAcceptances", stats.SwapAcceptances)
	return runErr
}

func (e *RunEngine) loop(ctx context.Context, sigmas, betas []float64) error {
	var lastSnapshot uint64
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		steps, swaps, err := e.sampler.Step(sigmas, betas)
		if err != nil {
			if !errors.Is(err, codec.ErrInvalidArgument) {
				return err
			}
			e.logger.Warn("Rejected proposal with unreadable energy", "error", err)
		}
		e.publish(ctx, steps, swaps)

		if len(steps) > 0 {
			e.refresh()
			nSteps := e.Stats().Steps
			if e.cfg.SnapshotInterval > 0 && nSteps-lastSnapshot >= e.cfg.SnapshotInterval {
				e.persist(ctx)
				lastSnapshot = nSteps
			}
			if e.cfg.MaxSteps > 0 && nSteps >= e.cfg.MaxSteps {
				e.logger.Info("Step budget reached", "steps", nSteps)
				return nil
			}
			continue
		}
		if len(swaps) > 0 || e.sampler.Outstanding() == 0 {
			continue
		}

		if err := e.sampler.Err(); err != nil {
			return fmt.Errorf("delegator lost: %w", err)
		}
		select {
		case <-e.sampler.Ready():
		case <-ctx.Done():
			return nil
		}
	}
}

func (e *RunEngine) publish(ctx context.Context, steps []domain.StepEvent, swaps []domain.SwapEvent) {
	if e.sink == nil {
		return
	}
	for _, ev := range steps {
		if err := e.sink.EmitStep(ctx, ev); err != nil {
			e.logger.Debug("Failed to publish step event", "chainId", ev.ChainID, "error", err)
		}
	}
	for _, ev := range swaps {
		if err := e.sink.EmitSwap(ctx, ev); err != nil {
			e.logger.Debug("Failed to publish swap event", "stackId", ev.StackID, "error", err)
		}
	}
}

func (e *RunEngine) persist(ctx context.Context) {
	if e.store == nil {
		return
	}
	if err := e.store.SaveStates(ctx, e.cfg.RunID, e.Chains()); err != nil {
		e.logger.Error("Failed to save chain states", "runId", e.cfg.RunID, "error", err)
		return
	}
	e.logger.Debug("Chain states saved", "runId", e.cfg.RunID)
}

// refresh copies sampler state for readers on other goroutines
func (e *RunEngine) refresh() {
	snapshot := e.sampler.Chains().Snapshot()
	stats := e.sampler.Stats()

	e.mu.Lock()
	e.latest = snapshot
	e.stats = stats
	e.mu.Unlock()
}

// Chains returns the most recent chain snapshot
func (e *RunEngine) Chains() []domain.ChainState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]domain.ChainState(nil), e.latest...)
}

// Stats returns the most recent sampler statistics
func (e *RunEngine) Stats() domain.SamplerStats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.stats
}
