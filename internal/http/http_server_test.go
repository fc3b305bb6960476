package http

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/darrnshn/stateline/internal/adapter/crypto"
	"github.com/darrnshn/stateline/internal/adapter/logging"
	"github.com/darrnshn/stateline/internal/config"
	"github.com/darrnshn/stateline/internal/core/services/worker"
	"github.com/darrnshn/stateline/internal/domain"
	"github.com/darrnshn/stateline/internal/handlers"
	"github.com/darrnshn/stateline/internal/handlers/chains"
	"github.com/darrnshn/stateline/internal/handlers/workers"
)

type staticRegistry struct {
	workers []domain.WorkerInfo
}

func (s staticRegistry) Workers(context.Context) ([]domain.WorkerInfo, error) {
	return s.workers, nil
}

func (s staticRegistry) Stats(context.Context) (domain.DelegatorStats, error) {
	return domain.DelegatorStats{
		WorkersByState: map[domain.WorkerState]int{domain.WorkerStateBusy: 1},
		Jobs:           domain.JobQueueStats{Outstanding: 1},
	}, nil
}

type staticRun struct{}

func (staticRun) Chains() []domain.ChainState {
	return []domain.ChainState{
		{StackID: 0, ChainID: 0, Sample: []float64{1}, Energy: 2, Beta: 1},
		{StackID: 1, ChainID: 1, Sample: []float64{3}, Energy: math.Inf(1), Beta: 1},
	}
}

func (staticRun) Stats() domain.SamplerStats {
	return domain.SamplerStats{Steps: 10, SwapAttempts: 2}
}

func newDelegatorAdmin(t *testing.T, auth *handlers.MiddlewareProvider) http.Handler {
	t.Helper()
	registry := staticRegistry{workers: []domain.WorkerInfo{
		{Identity: "AAAA-0001", JobTypes: []domain.JobType{0, 2}, State: domain.WorkerStateConnected},
		{Identity: "AAAA-0002", JobTypes: []domain.JobType{2}, State: domain.WorkerStateBusy},
	}}
	svc := worker.NewWorkerRegistryService(registry, nil, 0, logging.NewNopLogger())
	s := NewServer(0, "delegator", auth, logging.NewNopLogger(), workers.NewHandler(svc, registry))
	if err := s.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	return s.Handler()
}

func get(t *testing.T, h http.Handler, path, token string, out interface{}) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if out != nil && rec.Code == http.StatusOK {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("%s: bad JSON %q: %v", path, rec.Body.String(), err)
		}
	}
	return rec.Code
}

func TestDelegatorRoutes(t *testing.T) {
	h := newDelegatorAdmin(t, nil)

	var all struct{ Workers []domain.WorkerInfo }
	if code := get(t, h, "/api/workers", "", &all); code != http.StatusOK || len(all.Workers) != 2 {
		t.Fatalf("Expected 2 workers, got %d (%d)", len(all.Workers), code)
	}

	var idle struct{ Workers []domain.WorkerInfo }
	if code := get(t, h, "/api/workers?type=2", "", &idle); code != http.StatusOK || len(idle.Workers) != 1 {
		t.Fatalf("Expected 1 idle worker of type 2, got %+v (%d)", idle.Workers, code)
	}
	if code := get(t, h, "/api/workers?type=x", "", nil); code != http.StatusBadRequest {
		t.Errorf("Expected bad request, got %d", code)
	}

	var types struct{ Types []domain.JobType }
	if code := get(t, h, "/api/workers/types", "", &types); code != http.StatusOK || len(types.Types) != 2 {
		t.Errorf("Expected 2 job types, got %v (%d)", types.Types, code)
	}

	var stats domain.DelegatorStats
	if code := get(t, h, "/api/stats", "", &stats); code != http.StatusOK || stats.Jobs.Outstanding != 1 {
		t.Errorf("Unexpected stats %+v (%d)", stats, code)
	}
}

func TestSamplerRoutes(t *testing.T) {
	s := NewServer(0, "sampler", nil, logging.NewNopLogger(), chains.NewHandler(staticRun{}))
	if err := s.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	h := s.Handler()

	var body struct{ Chains []map[string]interface{} }
	if code := get(t, h, "/api/chains", "", &body); code != http.StatusOK || len(body.Chains) != 2 {
		t.Fatalf("Expected 2 chains, got %d (%d)", len(body.Chains), code)
	}
	if body.Chains[1]["energy"] != nil {
		t.Errorf("Expected unknown energy as null, got %v", body.Chains[1]["energy"])
	}

	if code := get(t, h, "/api/chains/1", "", &body); code != http.StatusOK || len(body.Chains) != 1 {
		t.Errorf("Expected 1 chain in stack 1, got %d (%d)", len(body.Chains), code)
	}
	if code := get(t, h, "/api/chains/7", "", nil); code != http.StatusNotFound {
		t.Errorf("Expected not found, got %d", code)
	}

	var stats domain.SamplerStats
	if code := get(t, h, "/api/stats", "", &stats); code != http.StatusOK || stats.Steps != 10 {
		t.Errorf("Unexpected stats %+v (%d)", stats, code)
	}
}

func TestJWTMiddleware(t *testing.T) {
	jwtSvc := crypto.NewJWTService(&config.JwtConfig{Secret: "admin-secret"})
	h := newDelegatorAdmin(t, handlers.NewMiddlewareProvider(jwtSvc, logging.NewNopLogger()))

	if code := get(t, h, "/healthz", "", nil); code != http.StatusOK {
		t.Errorf("Expected open health check, got %d", code)
	}
	if code := get(t, h, "/api/workers", "", nil); code != http.StatusUnauthorized {
		t.Errorf("Expected missing token rejected, got %d", code)
	}
	if code := get(t, h, "/api/workers", "garbage", nil); code != http.StatusUnauthorized {
		t.Errorf("Expected bad token rejected, got %d", code)
	}

	token, err := jwtSvc.GenerateTokenHMAC(context.Background(), "HS256", map[string]interface{}{"sub": "ops"})
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}
	if code := get(t, h, "/api/workers", token, nil); code != http.StatusOK {
		t.Errorf("Expected valid token accepted, got %d", code)
	}
}
