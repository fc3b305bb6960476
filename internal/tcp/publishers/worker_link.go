package publishers

import (
	"fmt"

	"github.com/darrnshn/stateline/internal/core/ports/primary"
	"github.com/darrnshn/stateline/internal/core/ports/secondary"
	"github.com/darrnshn/stateline/internal/domain"
	"github.com/darrnshn/stateline/internal/tcp/defs"
	"github.com/darrnshn/stateline/internal/tcp/transport"
)

var _ secondary.WorkerLink = (*WorkerLinkPublisher)(nil)

// WorkerLinkPublisher writes the delegator's outbound messages to a router socket
type WorkerLinkPublisher struct {
	Socket transport.Socket
	Logger primary.Logger
}

func NewWorkerLinkPublisher(socket transport.Socket, logger primary.Logger) *WorkerLinkPublisher {
	return &WorkerLinkPublisher{
		Socket: socket,
		Logger: logger,
	}
}

// SendSpec answers a worker's HELLO with the global spec and its job specs
func (p *WorkerLinkPublisher) SendSpec(identity string, spec domain.RunSpec, jobTypes []domain.JobType) error {
	data := defs.SpecData{GlobalSpec: spec.GlobalSpec, JobSpecs: spec.JobSpecs}
	msg := defs.NewMessage([]string{identity}, defs.SubjectHello, data.Frames(jobTypes)...)
	return transport.Send(p.Socket, msg)
}

// SendJob forwards a job to a worker under the delegator's own job id
func (p *WorkerLinkPublisher) SendJob(identity string, job *domain.OutstandingJob) error {
	id, err := job.ID.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to encode job id: %w", err)
	}
	req := defs.JobRequestData{JobID: id, Type: job.Job.Type, Payload: job.Job.JobData}
	msg := defs.NewMessage([]string{identity}, defs.SubjectJobRequest, req.Frames()...)
	return transport.Send(p.Socket, msg)
}

// SendHeartbeat probes a worker
func (p *WorkerLinkPublisher) SendHeartbeat(identity string) error {
	return transport.Send(p.Socket, defs.NewMessage([]string{identity}, defs.SubjectHeartbeat))
}

// RelayResult returns a result under the requester's own job id
func (p *WorkerLinkPublisher) RelayResult(job *domain.OutstandingJob, result domain.ResultData) error {
	res := defs.JobResultData{JobID: job.RequesterJobID, Type: result.Type, Payload: result.Data}
	msg := defs.NewMessage(job.RequesterAddress, defs.SubjectJobResult, res.Frames()...)
	return transport.Send(p.Socket, msg)
}
