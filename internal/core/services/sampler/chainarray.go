package sampler

import (
	"fmt"
	"math"
	"time"

	"github.com/darrnshn/stateline/internal/domain"
)

// chain is one MCMC walker. A locked chain has a proposal out for evaluation.
type chain struct {
	sample   []float64
	energy   float64
	beta     float64
	sigma    float64
	locked   bool
	proposal []float64

	proposed uint64
	accepted uint64
}

// ChainArray is an nStacks x nChains grid of chains addressed by
// id = stack*nChains + index. Within a stack index 0 is the coldest chain
// and betas do not increase with the index.
type ChainArray struct {
	nStacks uint32
	nChains uint32
	nDims   int
	chains  []chain
}

// NewChainArray starts every chain at the initial sample with unknown
// (+Inf) energy, so that its first proposal is always accepted.
func NewChainArray(nStacks, nChains uint32, initial []float64) *ChainArray {
	ca := &ChainArray{
		nStacks: nStacks,
		nChains: nChains,
		nDims:   len(initial),
		chains:  make([]chain, nStacks*nChains),
	}
	for i := range ca.chains {
		ca.chains[i] = chain{
			sample: append([]float64(nil), initial...),
			energy: math.Inf(1),
			beta:   1,
			sigma:  1,
		}
	}
	return ca
}

func (ca *ChainArray) NumStacks() uint32 { return ca.nStacks }

func (ca *ChainArray) NumChains() uint32 { return ca.nChains }

func (ca *ChainArray) NumDims() int { return ca.nDims }

// Len is the total number of chains
func (ca *ChainArray) Len() int { return len(ca.chains) }

// ID maps a stack and temperature index to a chain id
func (ca *ChainArray) ID(stack, index uint32) uint32 {
	return stack*ca.nChains + index
}

// StackOf returns the stack a chain belongs to
func (ca *ChainArray) StackOf(id uint32) uint32 {
	return id / ca.nChains
}

// IsLocked reports whether the chain has a job outstanding
func (ca *ChainArray) IsLocked(id uint32) bool {
	return ca.chains[id].locked
}

// State returns a copy of one chain's state
func (ca *ChainArray) State(id uint32) domain.ChainState {
	c := &ca.chains[id]
	return domain.ChainState{
		StackID: ca.StackOf(id),
		ChainID: id,
		Sample:  append([]float64(nil), c.sample...),
		Energy:  c.energy,
		Beta:    c.beta,
		Sigma:   c.sigma,
	}
}

// Snapshot copies every chain's state, ordered by id
func (ca *ChainArray) Snapshot() []domain.ChainState {
	now := time.Now()
	states := make([]domain.ChainState, len(ca.chains))
	for i := range ca.chains {
		states[i] = ca.State(uint32(i))
		states[i].UpdatedAt = now
	}
	return states
}

// Restore loads stored states. Chains must all be unlocked.
func (ca *ChainArray) Restore(states []domain.ChainState) error {
	if len(states) != len(ca.chains) {
		return fmt.Errorf("%w: %d stored states for %d chains", ErrDimension, len(states), len(ca.chains))
	}
	for _, s := range states {
		if int(s.ChainID) >= len(ca.chains) {
			return fmt.Errorf("%w: stored chain id %d out of range", ErrDimension, s.ChainID)
		}
		if len(s.Sample) != ca.nDims {
			return fmt.Errorf("%w: chain %d sample has %d dims, want %d", ErrDimension, s.ChainID, len(s.Sample), ca.nDims)
		}
		if ca.chains[s.ChainID].locked {
			return fmt.Errorf("chain %d is locked", s.ChainID)
		}
	}
	for _, s := range states {
		c := &ca.chains[s.ChainID]
		c.sample = append([]float64(nil), s.Sample...)
		c.energy = s.Energy
		c.beta = s.Beta
		c.sigma = s.Sigma
	}
	return nil
}

// AcceptRates returns accepted/proposed per chain, 0 for chains never evaluated
func (ca *ChainArray) AcceptRates() []float64 {
	rates := make([]float64, len(ca.chains))
	for i := range ca.chains {
		if p := ca.chains[i].proposed; p > 0 {
			rates[i] = float64(ca.chains[i].accepted) / float64(p)
		}
	}
	return rates
}

// setLadder applies per-chain step sizes and inverse temperatures
func (ca *ChainArray) setLadder(sigmas, betas []float64) error {
	if len(sigmas) != len(ca.chains) || len(betas) != len(ca.chains) {
		return fmt.Errorf("%w: got %d sigmas and %d betas for %d chains",
			ErrInvalidLadder, len(sigmas), len(betas), len(ca.chains))
	}
	for i, b := range betas {
		if math.IsNaN(b) || b < 0 {
			return fmt.Errorf("%w: beta %d is %v", ErrInvalidLadder, i, b)
		}
		if uint32(i)%ca.nChains != 0 && b > betas[i-1] {
			return fmt.Errorf("%w: beta increases at chain %d", ErrInvalidLadder, i)
		}
	}
	for i := range ca.chains {
		ca.chains[i].sigma = sigmas[i]
		ca.chains[i].beta = betas[i]
	}
	return nil
}

func (ca *ChainArray) lock(id uint32, proposal []float64) {
	c := &ca.chains[id]
	c.locked = true
	c.proposal = proposal
}

// resolve applies an evaluated proposal and unlocks the chain
func (ca *ChainArray) resolve(id uint32, accept bool, energy float64) {
	c := &ca.chains[id]
	c.proposed++
	if accept {
		c.accepted++
		c.sample = c.proposal
		c.energy = energy
	}
	c.proposal = nil
	c.locked = false
}

// swap exchanges the samples and energies of two chains; betas stay in place
func (ca *ChainArray) swap(i, j uint32) {
	a, b := &ca.chains[i], &ca.chains[j]
	a.sample, b.sample = b.sample, a.sample
	a.energy, b.energy = b.energy, a.energy
}
