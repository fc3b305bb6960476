package workers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/darrnshn/stateline/internal/core/services/worker"
	"github.com/darrnshn/stateline/internal/domain"
	"github.com/darrnshn/stateline/internal/handlers"
)

// StatsProvider reports the delegator's registry and queue counters
type StatsProvider interface {
	Stats(ctx context.Context) (domain.DelegatorStats, error)
}

type ApiHandler struct {
	WorkerService worker.IWorkerRegistryService
	Stats         StatsProvider // optional
}

func NewHandler(workerService worker.IWorkerRegistryService, stats StatsProvider) *ApiHandler {
	return &ApiHandler{
		WorkerService: workerService,
		Stats:         stats,
	}
}

func (api *ApiHandler) Register(r *mux.Router) {
	r.HandleFunc("/workers", api.GetWorkers).Methods("GET")
	r.HandleFunc("/workers/types", api.GetWorkerTypes).Methods("GET")
	if api.Stats != nil {
		r.HandleFunc("/stats", api.GetStats).Methods("GET")
	}
}

// GetWorkers lists every worker, or the idle workers of one job type with ?type=
func (api *ApiHandler) GetWorkers(w http.ResponseWriter, r *http.Request) {
	var workers []domain.WorkerInfo
	var err error

	if raw := r.URL.Query().Get("type"); raw != "" {
		jobType, perr := strconv.ParseUint(raw, 10, 32)
		if perr != nil {
			handlers.ResponseError(w, "Invalid job type", http.StatusBadRequest)
			return
		}
		workers, err = api.WorkerService.GetAvailableWorkers(r.Context(), domain.JobType(jobType))
	} else {
		workers, err = api.WorkerService.GetAllWorkers(r.Context())
	}
	if err != nil {
		handlers.ResponseError(w, "Failed to get workers", http.StatusInternalServerError)
		return
	}

	handlers.ResponseWithJson(w, http.StatusOK, map[string][]domain.WorkerInfo{"workers": workers})
}

func (api *ApiHandler) GetWorkerTypes(w http.ResponseWriter, r *http.Request) {
	types, err := api.WorkerService.GetWorkerTypes(r.Context())
	if err != nil {
		handlers.ResponseError(w, "Failed to get worker types", http.StatusInternalServerError)
		return
	}

	handlers.ResponseWithJson(w, http.StatusOK, map[string][]domain.JobType{"types": types})
}

func (api *ApiHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := api.Stats.Stats(r.Context())
	if err != nil {
		handlers.ResponseError(w, "Failed to get stats", http.StatusServiceUnavailable)
		return
	}

	handlers.ResponseWithJson(w, http.StatusOK, stats)
}
