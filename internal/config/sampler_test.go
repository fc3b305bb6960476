package config

import (
	"math"
	"testing"
)

func TestParseSamplerCfgDefaults(t *testing.T) {
	cfg, err := ParseSamplerCfg([]byte("nStacks: 2\nnChains: 3\ninitial: [0, 1]\n"))
	if err != nil {
		t.Fatalf("Failed to parse config: %v", err)
	}
	if cfg.NDims != 2 || cfg.Proposal != ProposalGaussian || cfg.RunID != "default" {
		t.Errorf("Unexpected defaults: %+v", cfg)
	}

	betas, err := cfg.BetaLadder()
	if err != nil {
		t.Fatalf("BetaLadder failed: %v", err)
	}
	want := []float64{1, 0.5, 0.25, 1, 0.5, 0.25}
	for i := range want {
		if math.Abs(betas[i]-want[i]) > 1e-12 {
			t.Errorf("beta %d = %v, want %v", i, betas[i], want[i])
		}
	}
}

func TestParseSamplerCfgPerPositionLadder(t *testing.T) {
	cfg, err := ParseSamplerCfg([]byte("nStacks: 2\nnChains: 2\nnDims: 1\nsigmas: [0.1, 0.4]\n"))
	if err != nil {
		t.Fatalf("Failed to parse config: %v", err)
	}
	sigmas, err := cfg.SigmaLadder()
	if err != nil {
		t.Fatalf("SigmaLadder failed: %v", err)
	}
	if len(sigmas) != 4 || sigmas[2] != 0.1 || sigmas[3] != 0.4 {
		t.Errorf("Expected per-position sigmas repeated per stack, got %v", sigmas)
	}
	if len(cfg.Initial) != 1 || cfg.Initial[0] != 0 {
		t.Errorf("Expected zero initial sample, got %v", cfg.Initial)
	}
}

func TestParseSamplerCfgRejects(t *testing.T) {
	cases := map[string]string{
		"no dims":            "nChains: 2\n",
		"increasing betas":   "nChains: 2\nnDims: 1\nbetas: [0.5, 1]\n",
		"bad ladder length":  "nChains: 2\nnStacks: 2\nnDims: 1\nsigmas: [1, 1, 1]\n",
		"unknown proposal":   "nDims: 1\nproposal: levy\n",
		"missing bounds":     "nDims: 1\nproposal: truncated\n",
		"initial off bounds": "initial: [5]\nproposal: truncated\nmin: [0]\nmax: [1]\n",
		"zero sigma":         "nDims: 1\nsigmas: [0]\n",
	}
	for name, doc := range cases {
		if _, err := ParseSamplerCfg([]byte(doc)); err == nil {
			t.Errorf("%s: expected an error", name)
		}
	}
}
