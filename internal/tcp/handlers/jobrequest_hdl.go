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

var _ primary.MessageHandler = (*JobRequestHandler)(nil)

// JobRequestHandler handles JOB_REQUEST messages from requesters
type JobRequestHandler struct {
	Delegator delegator.IDelegatorService
	Logger    primary.Logger
}

func NewJobRequestHandler(delegatorSvc delegator.IDelegatorService, logger primary.Logger) *JobRequestHandler {
	return &JobRequestHandler{
		Delegator: delegatorSvc,
		Logger:    logger,
	}
}

// HandleMessage implements the MessageHandler interface
func (h *JobRequestHandler) HandleMessage(ctx context.Context, msg defs.Message) error {
	if len(msg.Address) == 0 {
		return fmt.Errorf("%w: job request without a return address", transport.ErrMalformedMessage)
	}
	req, err := defs.ParseJobRequest(msg.Data)
	if err != nil {
		return fmt.Errorf("%w: %v", transport.ErrMalformedMessage, err)
	}

	h.Delegator.OnJobSubmit(msg.Address, req.JobID, domain.JobData{
		Type:    req.Type,
		JobData: req.Payload,
	})
	return nil
}
