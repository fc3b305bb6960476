package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/darrnshn/stateline/internal/config"
	"github.com/darrnshn/stateline/internal/core/ports/primary"
	"github.com/darrnshn/stateline/internal/core/ports/secondary"
	"github.com/darrnshn/stateline/internal/domain"
	"github.com/darrnshn/stateline/internal/tcp/defs"
	"github.com/darrnshn/stateline/internal/tcp/transport"
)

var (
	// ErrDelegatorLost is returned when the delegator has been silent for longer than the heartbeat timeout
	ErrDelegatorLost = errors.New("delegator stopped responding")

	// ErrJobFailed wraps an executor error; the agent has already said goodbye
	ErrJobFailed = errors.New("job execution failed")
)

// ExecutorFunc adapts a function to secondary.JobExecutor
type ExecutorFunc func(ctx context.Context, job domain.JobData) (domain.ResultData, error)

func (f ExecutorFunc) Execute(ctx context.Context, job domain.JobData) (domain.ResultData, error) {
	return f(ctx, job)
}

type incoming struct {
	msg defs.Message
	err error
}

type outcome struct {
	jobID  []byte
	result domain.ResultData
	err    error
}

// Agent is the remote compute side of the worker link: it registers the job
// types it can run, evaluates jobs with its executor and keeps the link alive.
type Agent struct {
	JobTypes         []domain.JobType
	Executor         secondary.JobExecutor
	HeartbeatRate    time.Duration
	HeartbeatTimeout time.Duration
	Logger           primary.Logger

	mu   sync.Mutex
	spec domain.RunSpec
}

func NewAgent(cfg *config.WorkerCfg, executor secondary.JobExecutor, logger primary.Logger) *Agent {
	return &Agent{
		JobTypes:         cfg.JobTypes,
		Executor:         executor,
		HeartbeatRate:    cfg.HeartbeatRate,
		HeartbeatTimeout: cfg.HeartbeatTimeout,
		Logger:           logger,
	}
}

// Spec returns the run spec received on the last HELLO reply
func (a *Agent) Spec() domain.RunSpec {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.spec
}

// Run serves one connection to the delegator until ctx is cancelled, the
// delegator is lost or a job fails. Cancellation sends GOODBYE and returns ctx.Err().
func (a *Agent) Run(ctx context.Context, address string) error {
	identity := transport.RandomSocketID()
	dealer, err := transport.Dial(ctx, address, identity)
	if err != nil {
		return err
	}
	defer dealer.Close()

	hello := defs.WorkerHelloData{JobTypes: a.JobTypes}
	if err := transport.Send(dealer, defs.NewMessage(nil, defs.SubjectHello, hello.Frames()...)); err != nil {
		return fmt.Errorf("failed to send hello: %w", err)
	}
	a.Logger.Info("Worker connected", "address", address, "identity", identity, "jobTypes", a.JobTypes)

	inbox := make(chan incoming, 16)
	done := make(chan struct{})
	defer close(done)
	go receive(dealer, inbox, done)

	outcomes := make(chan outcome, 1)
	jobCtx, cancelJob := context.WithCancel(ctx)
	defer cancelJob()

	ticker := time.NewTicker(a.HeartbeatRate)
	defer ticker.Stop()

	registered := false
	busy := false
	lastSeen := time.Now()

	for {
		select {
		case <-ctx.Done():
			a.goodbye(dealer)
			return ctx.Err()

		case in := <-inbox:
			if in.err != nil {
				return fmt.Errorf("lost connection to delegator: %w", in.err)
			}
			lastSeen = time.Now()

			switch in.msg.Subject {
			case defs.SubjectHello:
				spec, err := defs.ParseSpec(in.msg.Data)
				if err != nil {
					a.Logger.Warn("Discarding malformed spec", "error", err)
					continue
				}
				a.mu.Lock()
				a.spec = domain.RunSpec{GlobalSpec: spec.GlobalSpec, JobSpecs: spec.JobSpecs}
				a.mu.Unlock()
				registered = true
				a.Logger.Info("Worker registered with delegator", "identity", identity)

			case defs.SubjectHeartbeat:

			case defs.SubjectJobRequest:
				req, err := defs.ParseJobRequest(in.msg.Data)
				if err != nil {
					a.Logger.Warn("Discarding malformed job request", "error", err)
					continue
				}
				if !registered || busy {
					a.Logger.Warn("Unexpected job request", "registered", registered, "busy", busy)
					continue
				}
				busy = true
				job := domain.JobData{Type: req.Type, GlobalData: a.Spec().GlobalSpec, JobData: req.Payload}
				go a.execute(jobCtx, req.JobID, job, outcomes)

			default:
				a.Logger.Warn("Unexpected message subject", "subject", in.msg.Subject)
			}

		case out := <-outcomes:
			busy = false
			if out.err != nil {
				a.Logger.Error("Job failed, leaving", "error", out.err)
				a.goodbye(dealer)
				return fmt.Errorf("%w: %v", ErrJobFailed, out.err)
			}
			res := defs.JobResultData{JobID: out.jobID, Type: out.result.Type, Payload: out.result.Data}
			if err := transport.Send(dealer, defs.NewMessage(nil, defs.SubjectJobResult, res.Frames()...)); err != nil {
				return fmt.Errorf("failed to send result: %w", err)
			}

		case <-ticker.C:
			if time.Since(lastSeen) > a.HeartbeatTimeout {
				a.Logger.Warn("Delegator silent", "since", lastSeen)
				return ErrDelegatorLost
			}
			if err := transport.Send(dealer, defs.NewMessage(nil, defs.SubjectHeartbeat)); err != nil {
				return fmt.Errorf("failed to send heartbeat: %w", err)
			}
		}
	}
}

func (a *Agent) execute(ctx context.Context, jobID []byte, job domain.JobData, outcomes chan<- outcome) {
	result, err := a.Executor.Execute(ctx, job)
	outcomes <- outcome{jobID: jobID, result: result, err: err}
}

func (a *Agent) goodbye(dealer *transport.Dealer) {
	if err := transport.Send(dealer, defs.NewMessage(nil, defs.SubjectGoodbye)); err != nil {
		a.Logger.Debug("Failed to send goodbye", "error", err)
	}
}

func receive(sock transport.Socket, inbox chan<- incoming, done <-chan struct{}) {
	for {
		msg, err := transport.Receive(sock)
		if err != nil && errors.Is(err, transport.ErrMalformedMessage) {
			continue
		}
		select {
		case inbox <- incoming{msg: msg, err: err}:
		case <-done:
			return
		}
		if err != nil {
			return
		}
	}
}
