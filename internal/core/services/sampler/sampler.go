package sampler

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"github.com/darrnshn/stateline/internal/codec"
	"github.com/darrnshn/stateline/internal/core/ports/primary"
	"github.com/darrnshn/stateline/internal/core/services/requester"
	"github.com/darrnshn/stateline/internal/domain"
)

var (
	// ErrInvalidLadder is returned for sigma/beta ladders that do not fit the chain array
	ErrInvalidLadder = errors.New("invalid temperature ladder")

	// ErrDimension is returned when a sample has the wrong number of dimensions
	ErrDimension = errors.New("dimension mismatch")
)

// Options configures a Sampler
type Options struct {
	JobType      domain.JobType
	SwapInterval uint // completed steps between swap rounds; 0 disables swaps
	Seed         int64
}

// Sampler drives a chain array through propose, evaluate, accept and swap.
// It keeps every unlocked chain in flight and never waits on a single chain.
//
// When a swap round falls due, each stack stops proposing and is held until
// all of its chains have resolved; the round then runs for that stack and the
// stack resumes. Holding never blocks Step.
//
// A Sampler is not safe for concurrent use.
type Sampler struct {
	requester requester.IRequester
	chains    *ChainArray
	proposal  Proposal
	opts      Options
	rng       *rand.Rand
	logger    primary.Logger

	held []bool // per stack, waiting for its chains to resolve before a swap round

	numOutstanding  uint
	nSteps          uint64
	swapAttempts    uint64
	swapAcceptances uint64
}

func NewSampler(
	req requester.IRequester,
	chains *ChainArray,
	proposal Proposal,
	opts Options,
	logger primary.Logger,
) *Sampler {
	return &Sampler{
		requester: req,
		chains:    chains,
		proposal:  proposal,
		opts:      opts,
		rng:       rand.New(rand.NewSource(opts.Seed)),
		logger:    logger,
		held:      make([]bool, chains.NumStacks()),
	}
}

// Step submits a proposal for every unlocked chain outside a held stack, then
// applies whatever results have arrived. It returns one step event per applied
// result and the outcome of every swap round completed during the call.
func (s *Sampler) Step(sigmas, betas []float64) ([]domain.StepEvent, []domain.SwapEvent, error) {
	if err := s.chains.setLadder(sigmas, betas); err != nil {
		return nil, nil, err
	}

	swaps := s.completeSwaps()
	for i := 0; i < s.chains.Len(); i++ {
		id := uint32(i)
		if s.chains.IsLocked(id) || s.held[s.chains.StackOf(id)] {
			continue
		}
		if err := s.propose(id); err != nil {
			return nil, swaps, err
		}
	}

	steps, err := s.apply(s.requester.Retrieve(), true)
	swaps = append(swaps, s.completeSwaps()...)
	return steps, swaps, err
}

// Flush stops proposing and waits until every outstanding job has come back,
// applying results as they arrive. All chains are unlocked when it returns nil.
func (s *Sampler) Flush(ctx context.Context) ([]domain.StepEvent, error) {
	var events []domain.StepEvent
	var firstErr error

	for s.numOutstanding > 0 {
		steps, err := s.apply(s.requester.Retrieve(), false)
		events = append(events, steps...)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		if s.numOutstanding == 0 {
			break
		}
		if err := s.requester.Err(); err != nil {
			return events, fmt.Errorf("flush abandoned with %d jobs outstanding: %w", s.numOutstanding, err)
		}

		select {
		case <-s.requester.Ready():
		case <-ctx.Done():
			return events, ctx.Err()
		}
	}
	return events, firstErr
}

// Close flushes outstanding work. Closing with jobs in flight is reported as
// an anomaly but still drains them.
func (s *Sampler) Close(ctx context.Context) error {
	if s.numOutstanding > 0 {
		s.logger.Warn("Sampler closed with outstanding jobs, flushing", "outstanding", s.numOutstanding)
	}
	_, err := s.Flush(ctx)
	return err
}

// Outstanding counts jobs submitted but not yet applied
func (s *Sampler) Outstanding() uint {
	return s.numOutstanding
}

// Ready signals that results may be waiting for the next Step
func (s *Sampler) Ready() <-chan struct{} {
	return s.requester.Ready()
}

// Err reports the transport fault that stopped result delivery, if any
func (s *Sampler) Err() error {
	return s.requester.Err()
}

// Chains exposes the chain array; callers must not use it concurrently with Step
func (s *Sampler) Chains() *ChainArray {
	return s.chains
}

// Stats summarises progress
func (s *Sampler) Stats() domain.SamplerStats {
	return domain.SamplerStats{
		Steps:           s.nSteps,
		Outstanding:     s.numOutstanding,
		AcceptRate:      s.chains.AcceptRates(),
		SwapAttempts:    s.swapAttempts,
		SwapAcceptances: s.swapAcceptances,
	}
}

func (s *Sampler) propose(id uint32) error {
	c := &s.chains.chains[id]
	prop := s.proposal.Propose(id, c.sample, c.sigma)
	if len(prop) != s.chains.nDims {
		return fmt.Errorf("%w: proposal for chain %d has %d dims, want %d", ErrDimension, id, len(prop), s.chains.nDims)
	}

	payload, err := codec.EncodeSample(prop)
	if err != nil {
		return err
	}
	if err := s.requester.Submit(id, domain.JobData{Type: s.opts.JobType, JobData: payload}); err != nil {
		return fmt.Errorf("failed to submit proposal for chain %d: %w", id, err)
	}

	s.chains.lock(id, prop)
	s.numOutstanding++
	return nil
}

func (s *Sampler) apply(results []domain.Result, swapping bool) ([]domain.StepEvent, error) {
	var (
		steps    []domain.StepEvent
		firstErr error
	)

	for _, r := range results {
		if s.numOutstanding > 0 {
			s.numOutstanding--
		}

		id := r.JobID
		if int(id) >= s.chains.Len() || !s.chains.IsLocked(id) {
			s.logger.Warn("Ignoring result for unlocked chain", "chainID", id)
			continue
		}

		energy, err := codec.DecodeEnergy(r.Result.Data)
		if err != nil {
			// Treated as a rejection so the chain can carry on
			s.chains.resolve(id, false, 0)
			if firstErr == nil {
				firstErr = fmt.Errorf("chain %d: %w", id, err)
			}
			continue
		}

		c := &s.chains.chains[id]
		p := AcceptanceProbability(c.beta, c.energy, energy)
		accepted := s.rng.Float64() < p
		s.chains.resolve(id, accepted, energy)
		s.nSteps++

		steps = append(steps, domain.StepEvent{
			ChainID:  id,
			Accepted: accepted,
			Energy:   energy,
			State:    s.chains.State(id),
		})

		if swapping && s.opts.SwapInterval > 0 && s.nSteps%uint64(s.opts.SwapInterval) == 0 {
			s.holdStacks()
		}
	}
	return steps, firstErr
}

// holdStacks schedules a swap round in every stack that can swap. A stack
// already waiting on a round is left alone.
func (s *Sampler) holdStacks() {
	if s.chains.nChains < 2 {
		return
	}
	for stack := range s.held {
		s.held[stack] = true
	}
}

// completeSwaps runs the pending round of every held stack whose chains have
// all resolved and releases those stacks
func (s *Sampler) completeSwaps() []domain.SwapEvent {
	var events []domain.SwapEvent
	for stack, held := range s.held {
		if !held || !s.stackResolved(uint32(stack)) {
			continue
		}
		events = append(events, s.swapStack(uint32(stack))...)
		s.held[stack] = false
	}
	return events
}

func (s *Sampler) stackResolved(stack uint32) bool {
	for i := uint32(0); i < s.chains.nChains; i++ {
		if s.chains.IsLocked(s.chains.ID(stack, i)) {
			return false
		}
	}
	return true
}

// swapStack attempts an exchange between every adjacent pair of unlocked
// chains in one stack. Events carry the chains' positions within the stack.
func (s *Sampler) swapStack(stack uint32) []domain.SwapEvent {
	var events []domain.SwapEvent
	for i := uint32(0); i+1 < s.chains.nChains; i++ {
		a, b := s.chains.ID(stack, i), s.chains.ID(stack, i+1)
		if s.chains.IsLocked(a) || s.chains.IsLocked(b) {
			continue
		}

		ca, cb := &s.chains.chains[a], &s.chains.chains[b]
		p := SwapProbability(ca.beta, cb.beta, ca.energy, cb.energy)
		accepted := s.rng.Float64() < p
		if accepted {
			s.chains.swap(a, b)
			s.swapAcceptances++
		}
		s.swapAttempts++

		events = append(events, domain.SwapEvent{StackID: stack, I: i, J: i + 1, Accepted: accepted})
	}
	return events
}
