package secondary

import (
	"context"

	"github.com/darrnshn/stateline/internal/domain"
)

// EventSink receives per-step and per-swap outcomes for diagnostics
type EventSink interface {
	EmitStep(ctx context.Context, event domain.StepEvent) error
	EmitSwap(ctx context.Context, event domain.SwapEvent) error
}
