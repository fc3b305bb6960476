package handlers

import (
	"context"

	"github.com/darrnshn/stateline/internal/core/ports/primary"
	"github.com/darrnshn/stateline/internal/core/services/delegator"
	"github.com/darrnshn/stateline/internal/tcp/defs"
)

var _ primary.MessageHandler = (*WorkerHeartbeatHandler)(nil)

// WorkerHeartbeatHandler handles HEARTBEAT messages
type WorkerHeartbeatHandler struct {
	Delegator delegator.IDelegatorService
	Logger    primary.Logger
}

// HandleMessage implements the MessageHandler interface
func (h *WorkerHeartbeatHandler) HandleMessage(ctx context.Context, msg defs.Message) error {
	h.Delegator.OnWorkerHeartbeat(msg.Sender())
	return nil
}
