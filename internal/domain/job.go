package domain

import (
	"time"

	"github.com/google/uuid"
)

// JobType is the small unsigned tag that routes a job to workers able to run it
type JobType uint32

// JobData represents one unit of work handed to a worker
type JobData struct {
	Type JobType
	// GlobalData is shared by every job of a run. Workers receive it once, on HELLO.
	GlobalData []byte
	JobData    []byte
}

// ResultData represents the opaque output a worker returns for one job
type ResultData struct {
	Type JobType
	Data []byte
}

// Result pairs a requester-side job identifier with its result
type Result struct {
	JobID  uint32
	Result ResultData
}

// OutstandingJob is the delegator's record of a submitted job that has not been relayed yet
type OutstandingJob struct {
	ID               uuid.UUID
	RequesterAddress []string
	RequesterJobID   []byte
	Job              JobData
	AssignedWorker   string
	SubmitTime       time.Time
	Attempts         int
}

// IsAssigned reports whether a worker currently holds the job
func (j *OutstandingJob) IsAssigned() bool {
	return j.AssignedWorker != ""
}

// JobQueueStats summarises the delegator's job tables
type JobQueueStats struct {
	QueuedByType map[JobType]int `json:"queued_by_type"`
	Outstanding  int             `json:"outstanding"`
	Relayed      uint64          `json:"relayed"`
	Requeued     uint64          `json:"requeued"`
}

// RunSpec is the run-wide configuration each worker receives once, on HELLO
type RunSpec struct {
	GlobalSpec []byte
	JobSpecs   map[JobType][]byte
}
