package requester

import (
	"errors"

	"github.com/darrnshn/stateline/internal/domain"
)

var (
	// ErrDuplicateJob is returned when submitting an id that is already in flight
	ErrDuplicateJob = errors.New("job id already in flight")

	// ErrClosed is returned by Submit after Close
	ErrClosed = errors.New("requester closed")
)

// IRequester is the sampler-facing side of the delegator: jobs go in under
// caller-chosen ids and results come back under the same ids.
type IRequester interface {
	// Submit sends a job without waiting for its result
	Submit(jobID uint32, job domain.JobData) error

	// Retrieve drains the results that arrived since the last call, in arrival order
	Retrieve() []domain.Result

	// PendingCount counts jobs submitted but not yet retrieved
	PendingCount() uint

	// Ready is signalled when a result is buffered or the receive loop stops
	Ready() <-chan struct{}

	// Reset forgets every in-flight id and drops buffered results
	Reset()

	// Err reports the transport fault that stopped the receive loop, if any
	Err() error

	Close() error
}
