package schedulerengine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/darrnshn/stateline/internal/adapter/logging"
	"github.com/darrnshn/stateline/internal/codec"
	"github.com/darrnshn/stateline/internal/config"
	"github.com/darrnshn/stateline/internal/core/ports/secondary"
	"github.com/darrnshn/stateline/internal/core/services/sampler"
	"github.com/darrnshn/stateline/internal/domain"
)

// instantRequester evaluates every job as soon as results are asked for,
// unless held
type instantRequester struct {
	mu        sync.Mutex
	pending   []domain.Result
	ready     chan struct{}
	hold      atomic.Bool
	submitted atomic.Int64
}

func newInstantRequester() *instantRequester {
	return &instantRequester{ready: make(chan struct{}, 1)}
}

func (r *instantRequester) Submit(jobID uint32, job domain.JobData) error {
	sample, err := codec.DecodeSample(job.JobData)
	if err != nil {
		return err
	}
	energy := 0.0
	for _, x := range sample {
		energy += x * x / 2
	}
	payload, _ := codec.EncodeEnergy(energy)

	r.mu.Lock()
	r.pending = append(r.pending, domain.Result{JobID: jobID, Result: domain.ResultData{Data: payload}})
	r.mu.Unlock()
	r.submitted.Add(1)
	return nil
}

func (r *instantRequester) Retrieve() []domain.Result {
	if r.hold.Load() {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.pending
	r.pending = nil
	return out
}

func (r *instantRequester) PendingCount() uint {
	r.mu.Lock()
	defer r.mu.Unlock()
	return uint(len(r.pending))
}

func (r *instantRequester) Ready() <-chan struct{} { return r.ready }
func (r *instantRequester) Reset()                 {}
func (r *instantRequester) Err() error             { return nil }
func (r *instantRequester) Close() error           { return nil }

type memoryStore struct {
	mu    sync.Mutex
	saves int
	runs  map[string][]domain.ChainState
}

func (m *memoryStore) SaveStates(_ context.Context, runID string, states []domain.ChainState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.runs == nil {
		m.runs = make(map[string][]domain.ChainState)
	}
	m.runs[runID] = states
	m.saves++
	return nil
}

func (m *memoryStore) LoadStates(_ context.Context, runID string) ([]domain.ChainState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runs[runID], nil
}

type countingSink struct {
	steps atomic.Int64
	swaps atomic.Int64
}

func (c *countingSink) EmitStep(context.Context, domain.StepEvent) error {
	c.steps.Add(1)
	return nil
}

func (c *countingSink) EmitSwap(context.Context, domain.SwapEvent) error {
	c.swaps.Add(1)
	return nil
}

func newTestEngine(t *testing.T, doc string, req *instantRequester, store secondary.ChainStore, sink secondary.EventSink) *RunEngine {
	t.Helper()
	cfg, err := config.ParseSamplerCfg([]byte(doc))
	if err != nil {
		t.Fatalf("Failed to parse config: %v", err)
	}
	chains := sampler.NewChainArray(cfg.NStacks, cfg.NChains, cfg.Initial)
	s := sampler.NewSampler(req, chains, sampler.NewGaussianProposal(cfg.Seed),
		sampler.Options{SwapInterval: cfg.SwapInterval, Seed: cfg.Seed}, logging.NewNopLogger())
	return NewRunEngine(cfg, s, store, sink, logging.NewNopLogger())
}

const runDoc = `
runId: test
nStacks: 2
nChains: 3
initial: [1, -1]
swapInterval: 4
snapshotInterval: 20
maxSteps: 200
`

func TestRunStopsAtStepBudget(t *testing.T) {
	req := newInstantRequester()
	store := &memoryStore{}
	sink := &countingSink{}
	engine := newTestEngine(t, runDoc, req, store, sink)

	if err := engine.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	stats := engine.Stats()
	if stats.Steps < 200 {
		t.Errorf("Expected at least 200 steps, got %d", stats.Steps)
	}
	if stats.Outstanding != 0 {
		t.Errorf("Expected a drained sampler, %d outstanding", stats.Outstanding)
	}
	if sink.steps.Load() < 200 {
		t.Errorf("Expected every step published, got %d", sink.steps.Load())
	}
	if sink.swaps.Load() == 0 {
		t.Error("Expected swap events published")
	}
	if store.saves < 5 {
		t.Errorf("Expected periodic snapshots, got %d saves", store.saves)
	}
	if got := len(store.runs["test"]); got != 6 {
		t.Errorf("Expected 6 stored chains, got %d", got)
	}
}

func TestRunResumesFromStore(t *testing.T) {
	store := &memoryStore{}
	first := newTestEngine(t, runDoc, newInstantRequester(), store, nil)
	if err := first.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	saved := store.runs["test"]

	second := newTestEngine(t, runDoc, newInstantRequester(), store, nil)
	if err := second.Restore(context.Background()); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	chains := second.Chains()
	for i := range saved {
		if chains[i].Energy != saved[i].Energy || chains[i].Sample[0] != saved[i].Sample[0] {
			t.Fatalf("Chain %d not restored: %+v vs %+v", i, chains[i], saved[i])
		}
	}
}

func TestRunDrainsOnCancel(t *testing.T) {
	req := newInstantRequester()
	req.hold.Store(true)
	engine := newTestEngine(t, "nChains: 2\nnDims: 1\n", req, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- engine.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for req.submitted.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("Timeout waiting for proposals")
		}
		time.Sleep(5 * time.Millisecond)
	}
	req.hold.Store(false)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Timeout waiting for Run to return")
	}
	if req.PendingCount() != 0 || engine.Stats().Outstanding != 0 {
		t.Error("Expected outstanding jobs drained")
	}
}
