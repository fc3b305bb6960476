package delegator

import (
	"github.com/google/uuid"

	"github.com/darrnshn/stateline/internal/domain"
)

// IDelegatorService matches submitted jobs to workers by job type.
//
// Implementations are not safe for concurrent use: the registry and the
// outstanding-job table belong to the single dispatch loop that calls them.
type IDelegatorService interface {
	// OnWorkerHello registers or refreshes a worker and answers with the run spec
	OnWorkerHello(identity string, jobTypes []domain.JobType)

	// OnWorkerHeartbeat records liveness traffic from a worker
	OnWorkerHeartbeat(identity string)

	// OnJobSubmit assigns the job to an idle eligible worker or queues it
	OnJobSubmit(requesterAddress []string, requesterJobID []byte, job domain.JobData) uuid.UUID

	// OnWorkerResult relays a result to its requester and frees the worker
	OnWorkerResult(identity string, jobID uuid.UUID, result domain.ResultData)

	// OnWorkerGoodbye evicts a worker that is leaving gracefully
	OnWorkerGoodbye(identity string)

	// Tick runs one heartbeat round: probes every worker and evicts the silent ones
	Tick()

	// Workers returns a snapshot of the registry ordered by identity
	Workers() []domain.WorkerInfo

	// Stats summarises the registry and job tables
	Stats() domain.DelegatorStats
}
