package secondary

import "github.com/darrnshn/stateline/internal/domain"

// WorkerLink sends the delegator's side of the worker link protocol
type WorkerLink interface {
	// SendSpec answers a worker's HELLO with the run spec for its job types
	SendSpec(identity string, spec domain.RunSpec, jobTypes []domain.JobType) error

	// SendJob hands an outstanding job to a worker
	SendJob(identity string, job *domain.OutstandingJob) error

	// SendHeartbeat probes a worker
	SendHeartbeat(identity string) error

	// RelayResult returns a result to the requester that submitted the job
	RelayResult(job *domain.OutstandingJob, result domain.ResultData) error
}
