package sampler

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Proposal generates a candidate sample for a chain from its current sample
// and step size. Implementations must not modify sample.
type Proposal interface {
	Propose(chainID uint32, sample []float64, sigma float64) []float64
}

// GaussianProposal perturbs every dimension with independent N(0, sigma^2) noise
type GaussianProposal struct {
	rng *rand.Rand
}

func NewGaussianProposal(seed int64) *GaussianProposal {
	return &GaussianProposal{rng: rand.New(rand.NewSource(seed))}
}

func (p *GaussianProposal) Propose(_ uint32, sample []float64, sigma float64) []float64 {
	out := make([]float64, len(sample))
	for i, x := range sample {
		out[i] = x + sigma*p.rng.NormFloat64()
	}
	return out
}

// TruncatedGaussianProposal is a Gaussian step that bounces off the walls of
// a box, so proposals never leave [Min, Max] however large sigma is.
type TruncatedGaussianProposal struct {
	Min []float64
	Max []float64
	rng *rand.Rand
}

func NewTruncatedGaussianProposal(seed int64, lower, upper []float64) (*TruncatedGaussianProposal, error) {
	if len(lower) != len(upper) {
		return nil, fmt.Errorf("%w: %d lower and %d upper bounds", ErrDimension, len(lower), len(upper))
	}
	for i := range lower {
		if !(lower[i] < upper[i]) {
			return nil, fmt.Errorf("bound %d is empty: [%v, %v]", i, lower[i], upper[i])
		}
	}
	return &TruncatedGaussianProposal{
		Min: append([]float64(nil), lower...),
		Max: append([]float64(nil), upper...),
		rng: rand.New(rand.NewSource(seed)),
	}, nil
}

func (p *TruncatedGaussianProposal) Propose(_ uint32, sample []float64, sigma float64) []float64 {
	out := make([]float64, len(sample))
	for i, x := range sample {
		out[i] = reflect(x+sigma*p.rng.NormFloat64(), p.Min[i], p.Max[i])
	}
	return out
}

// reflect folds x back into [lo, hi] as if it had bounced off the walls
func reflect(x, lo, hi float64) float64 {
	width := hi - lo
	y := math.Mod(x-lo, 2*width)
	if y < 0 {
		y += 2 * width
	}
	if y > width {
		y = 2*width - y
	}
	return lo + y
}

// CovarianceProposal draws correlated steps sigma * L * z, where L is the
// Cholesky factor of a per-chain covariance that tuning code may update.
type CovarianceProposal struct {
	nDims   int
	factors []*mat.TriDense
	rng     *rand.Rand
}

// NewCovarianceProposal starts every chain with the identity covariance
func NewCovarianceProposal(seed int64, nChains, nDims int) *CovarianceProposal {
	factors := make([]*mat.TriDense, nChains)
	for i := range factors {
		l := mat.NewTriDense(nDims, mat.Lower, nil)
		for d := 0; d < nDims; d++ {
			l.SetTri(d, d, 1)
		}
		factors[i] = l
	}
	return &CovarianceProposal{
		nDims:   nDims,
		factors: factors,
		rng:     rand.New(rand.NewSource(seed)),
	}
}

func (p *CovarianceProposal) Propose(chainID uint32, sample []float64, sigma float64) []float64 {
	z := make([]float64, p.nDims)
	for i := range z {
		z[i] = p.rng.NormFloat64()
	}

	var step mat.VecDense
	step.MulVec(p.factors[chainID], mat.NewVecDense(p.nDims, z))

	out := make([]float64, len(sample))
	for i, x := range sample {
		out[i] = x + sigma*step.AtVec(i)
	}
	return out
}

// Update replaces a chain's proposal covariance
func (p *CovarianceProposal) Update(chainID uint32, cov mat.Symmetric) error {
	if int(chainID) >= len(p.factors) {
		return fmt.Errorf("%w: chain %d out of range", ErrDimension, chainID)
	}
	if cov.SymmetricDim() != p.nDims {
		return fmt.Errorf("%w: covariance is %dx%d, want %dx%d",
			ErrDimension, cov.SymmetricDim(), cov.SymmetricDim(), p.nDims, p.nDims)
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(cov); !ok {
		return errors.New("covariance is not positive definite")
	}
	l := mat.NewTriDense(p.nDims, mat.Lower, nil)
	chol.LTo(l)
	p.factors[chainID] = l
	return nil
}
