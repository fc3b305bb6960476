package handlers

import (
	"context"
	"fmt"

	"github.com/darrnshn/stateline/internal/core/ports/primary"
	"github.com/darrnshn/stateline/internal/core/services/delegator"
	"github.com/darrnshn/stateline/internal/domain"
	"github.com/darrnshn/stateline/internal/tcp/defs"
	"github.com/darrnshn/stateline/internal/tcp/transport"
)

var _ primary.MessageHandler = (*JobResultHandler)(nil)

// JobResultHandler handles JOB_RESULT messages from workers
type JobResultHandler struct {
	Delegator delegator.IDelegatorService
	Logger    primary.Logger
}

// HandleMessage implements the MessageHandler interface
func (h *JobResultHandler) HandleMessage(ctx context.Context, msg defs.Message) error {
	res, err := defs.ParseJobResult(msg.Data)
	if err != nil {
		return fmt.Errorf("%w: %v", transport.ErrMalformedMessage, err)
	}
	jobID, err := defs.DelegatorJobID(res.JobID)
	if err != nil {
		return fmt.Errorf("%w: %v", transport.ErrMalformedMessage, err)
	}

	h.Delegator.OnWorkerResult(msg.Sender(), jobID, domain.ResultData{
		Type: res.Type,
		Data: res.Payload,
	})
	return nil
}
