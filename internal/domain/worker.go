package domain

import "time"

// WorkerState is the delegator's view of a worker's availability
type WorkerState string

const (
	WorkerStateConnected    WorkerState = "CONNECTED"
	WorkerStateBusy         WorkerState = "BUSY"
	WorkerStatePresumedDead WorkerState = "PRESUMED_DEAD"
)

// WorkerInfo represents a registered worker
type WorkerInfo struct {
	Identity      string      `json:"identity"`
	JobTypes      []JobType   `json:"job_types"`
	State         WorkerState `json:"state"`
	CurrentJob    string      `json:"current_job,omitempty"`
	LastHeartbeat time.Time   `json:"last_heartbeat"`
	RegisteredAt  time.Time   `json:"registered_at"`
	JobsCompleted uint64      `json:"jobs_completed"`
}

// Supports reports whether the worker accepts jobs of the given type
func (w *WorkerInfo) Supports(jobType JobType) bool {
	for _, t := range w.JobTypes {
		if t == jobType {
			return true
		}
	}
	return false
}

// IsIdle reports whether the worker can take a job right now
func (w *WorkerInfo) IsIdle() bool {
	return w.State == WorkerStateConnected
}

// DelegatorStats summarises the delegator's registry and job tables
type DelegatorStats struct {
	WorkersByState map[WorkerState]int `json:"workers_by_state"`
	Jobs           JobQueueStats       `json:"jobs"`
}
