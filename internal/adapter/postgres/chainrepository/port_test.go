package chainrepository

import (
	"strings"
	"testing"
	"time"

	"github.com/darrnshn/stateline/internal/domain"
)

func TestRowConversion(t *testing.T) {
	now := time.Now()
	state := domain.ChainState{StackID: 1, ChainID: 5, Sample: []float64{0.5, -2}, Energy: 3, Beta: 0.25, Sigma: 0.1, UpdatedAt: now}

	row := toRow("run", state)
	if row.RunID != "run" || len(row.Sample) != 2 {
		t.Fatalf("Unexpected row %+v", row)
	}
	back := row.state()
	if back.ChainID != 5 || back.Sample[1] != -2 || back.Beta != 0.25 || !back.UpdatedAt.Equal(now) {
		t.Errorf("Unexpected state %+v", back)
	}
}

func TestUpsertQuery(t *testing.T) {
	states := []domain.ChainState{
		{ChainID: 0, Sample: []float64{1}},
		{ChainID: 1, Sample: []float64{2}},
	}
	query, args, err := upsertQuery("run", states)
	if err != nil {
		t.Fatalf("upsertQuery failed: %v", err)
	}
	if !strings.HasPrefix(query, "INSERT INTO public.chain_states (run_id, stack_id") {
		t.Errorf("Unexpected query %s", query)
	}
	if !strings.Contains(query, "ON CONFLICT (run_id, chain_id) DO UPDATE SET stack_id = EXCLUDED.stack_id") {
		t.Errorf("Expected upsert clause in %s", query)
	}
	if len(args) != 2*len(chainColumns) {
		t.Errorf("Expected %d args, got %d", 2*len(chainColumns), len(args))
	}
}
