package delegator

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/darrnshn/stateline/internal/config"
	"github.com/darrnshn/stateline/internal/core/ports/primary"
	"github.com/darrnshn/stateline/internal/core/ports/secondary"
	"github.com/darrnshn/stateline/internal/domain"
)

var _ IDelegatorService = &DelegatorService{}

// DelegatorService implements IDelegatorService
type DelegatorService struct {
	link   secondary.WorkerLink
	logger primary.Logger
	cfg    *config.DelegatorCfg
	now    func() time.Time

	workers     map[string]*domain.WorkerInfo
	queues      map[domain.JobType][]*domain.OutstandingJob
	outstanding map[uuid.UUID]*domain.OutstandingJob

	relayed  uint64
	requeued uint64
}

// Option configures a DelegatorService
type Option func(*DelegatorService)

// WithClock overrides the time source used for heartbeat bookkeeping
func WithClock(now func() time.Time) Option {
	return func(s *DelegatorService) {
		s.now = now
	}
}

// NewDelegatorService creates a new delegator service
func NewDelegatorService(
	link secondary.WorkerLink,
	logger primary.Logger,
	cfg *config.DelegatorCfg,
	options ...Option,
) *DelegatorService {
	s := &DelegatorService{
		link:        link,
		logger:      logger,
		cfg:         cfg,
		now:         time.Now,
		workers:     make(map[string]*domain.WorkerInfo),
		queues:      make(map[domain.JobType][]*domain.OutstandingJob),
		outstanding: make(map[uuid.UUID]*domain.OutstandingJob),
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// OnWorkerHello registers or refreshes a worker and answers with the run spec
func (s *DelegatorService) OnWorkerHello(identity string, jobTypes []domain.JobType) {
	now := s.now()

	w, exists := s.workers[identity]
	if exists {
		// The worker restarted; whatever it was running is lost
		s.logger.Info("Worker re-registered", "identity", identity)
		s.releaseJob(w)
	} else {
		w = &domain.WorkerInfo{Identity: identity, RegisteredAt: now}
		s.workers[identity] = w
		s.logger.Info("Worker registered", "identity", identity, "jobTypes", jobTypes)
	}
	w.JobTypes = append([]domain.JobType(nil), jobTypes...)
	w.State = domain.WorkerStateConnected
	w.CurrentJob = ""
	w.LastHeartbeat = now

	if err := s.link.SendSpec(identity, s.cfg.Spec, w.JobTypes); err != nil {
		s.logger.Error("Failed to send spec to worker", "identity", identity, "error", err)
		s.evict(identity, "spec send failed")
		return
	}

	s.dispatchTo(w)
}

// OnWorkerHeartbeat records liveness traffic from a worker
func (s *DelegatorService) OnWorkerHeartbeat(identity string) {
	w, exists := s.workers[identity]
	if !exists {
		s.logger.Debug("Heartbeat from unregistered peer", "identity", identity)
		return
	}
	w.LastHeartbeat = s.now()
}

// OnJobSubmit assigns the job to an idle eligible worker or queues it
func (s *DelegatorService) OnJobSubmit(requesterAddress []string, requesterJobID []byte, job domain.JobData) uuid.UUID {
	oj := &domain.OutstandingJob{
		ID:               uuid.New(),
		RequesterAddress: append([]string(nil), requesterAddress...),
		RequesterJobID:   requesterJobID,
		Job:              job,
		SubmitTime:       s.now(),
	}
	s.outstanding[oj.ID] = oj
	s.logger.Debug("Job submitted", "jobID", oj.ID, "type", job.Type, "requester", requesterAddress)

	s.dispatchJob(oj, false)
	return oj.ID
}

// OnWorkerResult relays a result to its requester and frees the worker
func (s *DelegatorService) OnWorkerResult(identity string, jobID uuid.UUID, result domain.ResultData) {
	w, registered := s.workers[identity]
	if registered {
		w.LastHeartbeat = s.now()
	}

	job, known := s.outstanding[jobID]
	if !known {
		s.logger.Warn("Result for unknown job discarded", "identity", identity, "jobID", jobID)
	} else {
		delete(s.outstanding, jobID)
		if !job.IsAssigned() {
			// Requeued after its worker was presumed dead, but the answer arrived anyway
			s.removeQueued(job)
		}
		if err := s.link.RelayResult(job, result); err != nil {
			s.logger.Warn("Dropping result, requester unreachable",
				"jobID", jobID, "requester", job.RequesterAddress, "error", err)
		} else {
			s.relayed++
			s.logger.Debug("Result relayed", "jobID", jobID, "identity", identity)
		}
	}

	if !registered {
		return
	}
	if w.CurrentJob == jobID.String() || (w.State == domain.WorkerStateBusy && !s.holdsOutstanding(w)) {
		w.State = domain.WorkerStateConnected
		w.CurrentJob = ""
		if known {
			w.JobsCompleted++
		}
		s.dispatchTo(w)
	}
}

// OnWorkerGoodbye evicts a worker that is leaving gracefully
func (s *DelegatorService) OnWorkerGoodbye(identity string) {
	s.evict(identity, "goodbye")
}

// Tick runs one heartbeat round: probes every worker and evicts the silent ones
func (s *DelegatorService) Tick() {
	now := s.now()

	var dead []string
	for identity, w := range s.workers {
		if now.Sub(w.LastHeartbeat) > s.cfg.HeartbeatTimeout {
			w.State = domain.WorkerStatePresumedDead
			dead = append(dead, identity)
		}
	}
	sort.Strings(dead)
	for _, identity := range dead {
		s.evict(identity, "heartbeat timeout")
	}

	var unreachable []string
	for identity := range s.workers {
		if err := s.link.SendHeartbeat(identity); err != nil {
			s.logger.Error("Failed to send heartbeat", "identity", identity, "error", err)
			unreachable = append(unreachable, identity)
		}
	}
	sort.Strings(unreachable)
	for _, identity := range unreachable {
		s.evict(identity, "heartbeat send failed")
	}

	for _, w := range s.sortedWorkers() {
		if s.workers[w.Identity] == w {
			s.dispatchTo(w)
		}
	}
}

// Workers returns a snapshot of the registry ordered by identity
func (s *DelegatorService) Workers() []domain.WorkerInfo {
	sorted := s.sortedWorkers()
	out := make([]domain.WorkerInfo, 0, len(sorted))
	for _, w := range sorted {
		c := *w
		c.JobTypes = append([]domain.JobType(nil), w.JobTypes...)
		out = append(out, c)
	}
	return out
}

// Stats summarises the registry and job tables
func (s *DelegatorService) Stats() domain.DelegatorStats {
	stats := domain.DelegatorStats{
		WorkersByState: make(map[domain.WorkerState]int),
		Jobs: domain.JobQueueStats{
			QueuedByType: make(map[domain.JobType]int),
			Outstanding:  len(s.outstanding),
			Relayed:      s.relayed,
			Requeued:     s.requeued,
		},
	}
	for _, w := range s.workers {
		stats.WorkersByState[w.State]++
	}
	for t, q := range s.queues {
		if len(q) > 0 {
			stats.Jobs.QueuedByType[t] = len(q)
		}
	}
	return stats
}

// dispatchJob sends the job to the first idle eligible worker that accepts
// it, or queues it. Requeued jobs go to the front of their queue.
func (s *DelegatorService) dispatchJob(job *domain.OutstandingJob, front bool) {
	for {
		w := s.findIdleWorker(job.Job.Type)
		if w == nil {
			s.enqueue(job, front)
			return
		}
		if s.sendJob(w, job) {
			return
		}
	}
}

// dispatchTo gives an idle worker the oldest queued job it can run
func (s *DelegatorService) dispatchTo(w *domain.WorkerInfo) {
	if !w.IsIdle() {
		return
	}

	var (
		best     *domain.OutstandingJob
		bestType domain.JobType
	)
	for _, t := range w.JobTypes {
		q := s.queues[t]
		if len(q) == 0 {
			continue
		}
		if best == nil || q[0].SubmitTime.Before(best.SubmitTime) {
			best, bestType = q[0], t
		}
	}
	if best == nil {
		return
	}
	s.queues[bestType] = s.queues[bestType][1:]

	if !s.sendJob(w, best) {
		s.dispatchJob(best, true)
	}
}

// sendJob assigns the job to the worker. On a send failure the worker is
// evicted and the job is left unassigned for the caller to place.
func (s *DelegatorService) sendJob(w *domain.WorkerInfo, job *domain.OutstandingJob) bool {
	job.AssignedWorker = w.Identity
	job.Attempts++
	w.State = domain.WorkerStateBusy
	w.CurrentJob = job.ID.String()

	if err := s.link.SendJob(w.Identity, job); err != nil {
		s.logger.Error("Failed to send job to worker", "identity", w.Identity, "jobID", job.ID, "error", err)
		job.AssignedWorker = ""
		w.CurrentJob = ""
		s.evict(w.Identity, "job send failed")
		return false
	}

	s.logger.Debug("Job assigned to worker", "jobID", job.ID, "identity", w.Identity, "attempt", job.Attempts)
	return true
}

// evict removes a worker from the registry and requeues its job
func (s *DelegatorService) evict(identity, reason string) {
	w, exists := s.workers[identity]
	if !exists {
		return
	}
	delete(s.workers, identity)
	s.logger.Warn("Worker evicted", "identity", identity, "reason", reason, "currentJob", w.CurrentJob)
	s.releaseJob(w)
}

// releaseJob puts the worker's in-flight job back at the front of its queue
func (s *DelegatorService) releaseJob(w *domain.WorkerInfo) {
	if w.CurrentJob == "" {
		return
	}
	id, err := uuid.Parse(w.CurrentJob)
	w.CurrentJob = ""
	if err != nil {
		return
	}
	job, exists := s.outstanding[id]
	if !exists || job.AssignedWorker != w.Identity {
		return
	}
	job.AssignedWorker = ""
	s.requeued++
	s.logger.Info("Requeueing job", "jobID", job.ID, "type", job.Job.Type, "from", w.Identity)
	s.dispatchJob(job, true)
}

func (s *DelegatorService) enqueue(job *domain.OutstandingJob, front bool) {
	q := s.queues[job.Job.Type]
	if front {
		q = append([]*domain.OutstandingJob{job}, q...)
	} else {
		q = append(q, job)
	}
	s.queues[job.Job.Type] = q
}

func (s *DelegatorService) removeQueued(job *domain.OutstandingJob) {
	q := s.queues[job.Job.Type]
	for i, queued := range q {
		if queued == job {
			s.queues[job.Job.Type] = append(q[:i:i], q[i+1:]...)
			return
		}
	}
}

// findIdleWorker picks any idle worker supporting the job type
func (s *DelegatorService) findIdleWorker(jobType domain.JobType) *domain.WorkerInfo {
	for _, w := range s.workers {
		if w.IsIdle() && w.Supports(jobType) {
			return w
		}
	}
	return nil
}

// holdsOutstanding reports whether the worker's current job is still outstanding
func (s *DelegatorService) holdsOutstanding(w *domain.WorkerInfo) bool {
	id, err := uuid.Parse(w.CurrentJob)
	if err != nil {
		return false
	}
	job, exists := s.outstanding[id]
	return exists && job.AssignedWorker == w.Identity
}

func (s *DelegatorService) sortedWorkers() []*domain.WorkerInfo {
	out := make([]*domain.WorkerInfo, 0, len(s.workers))
	for _, w := range s.workers {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out
}
