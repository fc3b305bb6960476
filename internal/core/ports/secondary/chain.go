package secondary

import (
	"context"

	"github.com/darrnshn/stateline/internal/domain"
)

// ChainStore persists chain-state snapshots so a run can resume
type ChainStore interface {
	// SaveStates stores the latest state of every chain of a run
	SaveStates(ctx context.Context, runID string, states []domain.ChainState) error

	// LoadStates returns the stored states of a run, ordered by chain id.
	// A run with no stored state returns an empty slice and no error.
	LoadStates(ctx context.Context, runID string) ([]domain.ChainState, error)
}
