package handlers

import (
	"context"
	"fmt"

	"github.com/darrnshn/stateline/internal/core/ports/primary"
	"github.com/darrnshn/stateline/internal/core/services/delegator"
	"github.com/darrnshn/stateline/internal/tcp/defs"
	"github.com/darrnshn/stateline/internal/tcp/transport"
)

// Implementation of message handlers
// Each handler deals with one specific message subject

var _ primary.MessageHandler = (*WorkerRegistrationHandler)(nil)

// WorkerRegistrationHandler handles HELLO messages
type WorkerRegistrationHandler struct {
	Delegator delegator.IDelegatorService
	Logger    primary.Logger
}

// HandleMessage implements the MessageHandler interface
func (h *WorkerRegistrationHandler) HandleMessage(ctx context.Context, msg defs.Message) error {
	hello, err := defs.ParseWorkerHello(msg.Data)
	if err != nil {
		return fmt.Errorf("%w: %v", transport.ErrMalformedMessage, err)
	}

	h.Delegator.OnWorkerHello(msg.Sender(), hello.JobTypes)
	return nil
}

var _ primary.MessageHandler = (*WorkerGoodbyeHandler)(nil)

// WorkerGoodbyeHandler handles GOODBYE messages
type WorkerGoodbyeHandler struct {
	Delegator delegator.IDelegatorService
	Logger    primary.Logger
}

// HandleMessage implements the MessageHandler interface
func (h *WorkerGoodbyeHandler) HandleMessage(ctx context.Context, msg defs.Message) error {
	h.Logger.Info("Worker said goodbye", "identity", msg.Sender())
	h.Delegator.OnWorkerGoodbye(msg.Sender())
	return nil
}
