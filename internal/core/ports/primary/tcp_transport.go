package primary

import (
	"context"

	"github.com/darrnshn/stateline/internal/tcp/defs"
)

// MessageHandler handles one message subject arriving at the delegator
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg defs.Message) error
}
