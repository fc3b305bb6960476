package chains

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/darrnshn/stateline/internal/domain"
	"github.com/darrnshn/stateline/internal/handlers"
)

// RunView exposes the latest state of a sampler run
type RunView interface {
	Chains() []domain.ChainState
	Stats() domain.SamplerStats
}

type ApiHandler struct {
	Run RunView
}

func NewHandler(run RunView) *ApiHandler {
	return &ApiHandler{Run: run}
}

func (api *ApiHandler) Register(r *mux.Router) {
	r.HandleFunc("/chains", api.GetChains).Methods("GET")
	r.HandleFunc("/chains/{stack:[0-9]+}", api.GetChains).Methods("GET")
	r.HandleFunc("/stats", api.GetStats).Methods("GET")
}

// GetChains returns the latest snapshot, optionally limited to one stack
func (api *ApiHandler) GetChains(w http.ResponseWriter, r *http.Request) {
	states := api.Run.Chains()

	if raw, ok := mux.Vars(r)["stack"]; ok {
		stack, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			handlers.ResponseError(w, "Invalid stack", http.StatusBadRequest)
			return
		}
		filtered := make([]domain.ChainState, 0)
		for _, s := range states {
			if uint64(s.StackID) == stack {
				filtered = append(filtered, s)
			}
		}
		if len(filtered) == 0 {
			handlers.ResponseError(w, "Unknown stack", http.StatusNotFound)
			return
		}
		states = filtered
	}

	handlers.ResponseWithJson(w, http.StatusOK, map[string][]domain.ChainState{"chains": states})
}

func (api *ApiHandler) GetStats(w http.ResponseWriter, _ *http.Request) {
	handlers.ResponseWithJson(w, http.StatusOK, api.Run.Stats())
}
