package config

import (
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// Proposal kinds accepted in a sampler run file
const (
	ProposalGaussian   = "gaussian"
	ProposalTruncated  = "truncated"
	ProposalCovariance = "covariance"
)

// SamplerCfg is a sampler run file
type SamplerCfg struct {
	RunID            string    `yaml:"runId"`
	DelegatorAddress string    `yaml:"delegator"`
	NStacks          uint32    `yaml:"nStacks"`
	NChains          uint32    `yaml:"nChains"`
	NDims            int       `yaml:"nDims"`
	JobType          uint32    `yaml:"jobType"`
	SwapInterval     uint      `yaml:"swapInterval"`
	Seed             int64     `yaml:"seed"`
	Proposal         string    `yaml:"proposal"`
	Min              []float64 `yaml:"min"`
	Max              []float64 `yaml:"max"`
	Initial          []float64 `yaml:"initial"`
	Sigmas           []float64 `yaml:"sigmas"`
	Betas            []float64 `yaml:"betas"`
	InitSigma        float64   `yaml:"initSigma"`
	SigmaFactor      float64   `yaml:"sigmaFactor"` // per temperature step, when sigmas is empty
	BetaFactor       float64   `yaml:"betaFactor"`  // per temperature step, when betas is empty
	SnapshotInterval uint64    `yaml:"snapshotInterval"`
	MaxSteps         uint64    `yaml:"maxSteps"` // 0 runs until interrupted
}

// LoadSamplerCfg reads and validates a sampler run file
func LoadSamplerCfg(path string) (*SamplerCfg, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sampler config: %w", err)
	}
	return ParseSamplerCfg(data)
}

// ParseSamplerCfg parses a sampler run file, fills defaults and validates it
func ParseSamplerCfg(data []byte) (*SamplerCfg, error) {
	cfg := &SamplerCfg{
		RunID:            "default",
		DelegatorAddress: "localhost:5555",
		NStacks:          1,
		NChains:          1,
		SwapInterval:     10,
		Seed:             42,
		Proposal:         ProposalGaussian,
		InitSigma:        1,
		SigmaFactor:      1,
		BetaFactor:       0.5,
		SnapshotInterval: 100,
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse sampler config: %w", err)
	}
	if cfg.NDims == 0 {
		cfg.NDims = len(cfg.Initial)
	}
	if len(cfg.Initial) == 0 {
		cfg.Initial = make([]float64, cfg.NDims)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sampler config: %w", err)
	}
	return cfg, nil
}

// Validate checks dimensions, bounds and ladders
func (c *SamplerCfg) Validate() error {
	if c.NStacks == 0 || c.NChains == 0 {
		return errors.New("nStacks and nChains must be positive")
	}
	if c.NDims <= 0 {
		return errors.New("nDims must be positive")
	}
	if len(c.Initial) != c.NDims {
		return fmt.Errorf("initial has %d values, want %d", len(c.Initial), c.NDims)
	}

	switch c.Proposal {
	case ProposalGaussian, ProposalCovariance:
	case ProposalTruncated:
		if len(c.Min) != c.NDims || len(c.Max) != c.NDims {
			return fmt.Errorf("truncated proposal needs %d min and max bounds", c.NDims)
		}
		for i := range c.Min {
			if !(c.Min[i] < c.Max[i]) {
				return fmt.Errorf("bound %d: min %v is not below max %v", i, c.Min[i], c.Max[i])
			}
			if c.Initial[i] < c.Min[i] || c.Initial[i] > c.Max[i] {
				return fmt.Errorf("initial value %d is outside its bounds", i)
			}
		}
	default:
		return fmt.Errorf("unknown proposal %q", c.Proposal)
	}

	if _, err := c.SigmaLadder(); err != nil {
		return err
	}
	betas, err := c.BetaLadder()
	if err != nil {
		return err
	}
	for s := uint32(0); s < c.NStacks; s++ {
		for i := uint32(1); i < c.NChains; i++ {
			id := s*c.NChains + i
			if betas[id] > betas[id-1] {
				return fmt.Errorf("betas must not increase within a stack (chain %d)", id)
			}
		}
	}
	return nil
}

// SigmaLadder returns one step size per chain
func (c *SamplerCfg) SigmaLadder() ([]float64, error) {
	ladder, err := c.expand("sigmas", c.Sigmas, func(i uint32) float64 {
		return c.InitSigma * math.Pow(c.SigmaFactor, float64(i))
	})
	if err != nil {
		return nil, err
	}
	for i, s := range ladder {
		if !(s > 0) {
			return nil, fmt.Errorf("sigma %d must be positive, got %v", i, s)
		}
	}
	return ladder, nil
}

// BetaLadder returns one inverse temperature per chain, coldest first in each stack
func (c *SamplerCfg) BetaLadder() ([]float64, error) {
	ladder, err := c.expand("betas", c.Betas, func(i uint32) float64 {
		return math.Pow(c.BetaFactor, float64(i))
	})
	if err != nil {
		return nil, err
	}
	for i, b := range ladder {
		if !(b >= 0) || math.IsInf(b, 0) {
			return nil, fmt.Errorf("beta %d must be finite and non-negative, got %v", i, b)
		}
	}
	return ladder, nil
}

// expand accepts a ladder given per chain, per stack position, or not at all
func (c *SamplerCfg) expand(name string, values []float64, def func(i uint32) float64) ([]float64, error) {
	total := c.NStacks * c.NChains
	switch uint32(len(values)) {
	case total:
		return append([]float64(nil), values...), nil
	case 0, c.NChains:
		out := make([]float64, 0, total)
		for s := uint32(0); s < c.NStacks; s++ {
			for i := uint32(0); i < c.NChains; i++ {
				if len(values) == 0 {
					out = append(out, def(i))
				} else {
					out = append(out, values[i])
				}
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%s has %d values, want %d or %d", name, len(values), c.NChains, total)
	}
}
