package requester

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/darrnshn/stateline/internal/core/ports/primary"
	"github.com/darrnshn/stateline/internal/domain"
	"github.com/darrnshn/stateline/internal/tcp/defs"
	"github.com/darrnshn/stateline/internal/tcp/transport"
)

var _ IRequester = (*Requester)(nil)

// Conn is the socket a Requester talks through
type Conn interface {
	transport.Socket
	Close() error
}

// Requester implements IRequester over a dealer connection to the delegator
type Requester struct {
	conn   Conn
	logger primary.Logger

	mu       sync.Mutex
	inFlight map[uint32]uint64 // job id -> submission generation
	nextGen  uint64
	results  []domain.Result
	err      error
	closed   bool

	ready chan struct{}
	done  chan struct{}
}

// Dial connects to the delegator under a random identity
func Dial(ctx context.Context, address string, logger primary.Logger) (*Requester, error) {
	dealer, err := transport.Dial(ctx, address, transport.RandomSocketID())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to delegator: %w", err)
	}
	logger.Info("Connected to delegator", "address", address, "identity", dealer.Identity())
	return NewRequester(dealer, logger), nil
}

// NewRequester starts the receive loop on an established connection
func NewRequester(conn Conn, logger primary.Logger) *Requester {
	r := &Requester{
		conn:     conn,
		logger:   logger,
		inFlight: make(map[uint32]uint64),
		ready:    make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	go r.receiveLoop()
	return r
}

// Submit sends a job without waiting for its result
func (r *Requester) Submit(jobID uint32, job domain.JobData) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	if r.err != nil {
		err := r.err
		r.mu.Unlock()
		return err
	}
	if _, exists := r.inFlight[jobID]; exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrDuplicateJob, jobID)
	}
	// Registered before sending so a fast reply is never mistaken for a stray
	r.nextGen++
	gen := r.nextGen
	r.inFlight[jobID] = gen
	r.mu.Unlock()

	req := defs.JobRequestData{JobID: encodeJobID(jobID, gen), Type: job.Type, Payload: job.JobData}
	if err := transport.Send(r.conn, defs.NewMessage(nil, defs.SubjectJobRequest, req.Frames()...)); err != nil {
		r.mu.Lock()
		if r.inFlight[jobID] == gen {
			delete(r.inFlight, jobID)
		}
		r.mu.Unlock()
		return fmt.Errorf("failed to submit job %d: %w", jobID, err)
	}
	return nil
}

// Retrieve drains the results that arrived since the last call, in arrival order
func (r *Requester) Retrieve() []domain.Result {
	r.mu.Lock()
	defer r.mu.Unlock()

	results := r.results
	r.results = nil
	return results
}

// PendingCount counts jobs submitted but not yet retrieved
func (r *Requester) PendingCount() uint {
	r.mu.Lock()
	defer r.mu.Unlock()
	return uint(len(r.inFlight) + len(r.results))
}

// Ready is signalled when a result is buffered or the receive loop stops
func (r *Requester) Ready() <-chan struct{} {
	return r.ready
}

// Reset forgets every in-flight id and drops buffered results. Results for
// forgotten submissions are discarded even if the id is submitted again.
func (r *Requester) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n := len(r.inFlight); n > 0 {
		r.logger.Warn("Forgetting in-flight jobs", "count", n)
	}
	r.inFlight = make(map[uint32]uint64)
	r.results = nil
}

// Err reports the transport fault that stopped the receive loop, if any
func (r *Requester) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Close disconnects and waits for the receive loop to exit
func (r *Requester) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		<-r.done
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	err := r.conn.Close()
	<-r.done
	return err
}

func (r *Requester) receiveLoop() {
	defer close(r.done)

	for {
		msg, err := transport.Receive(r.conn)
		if err != nil {
			if errors.Is(err, transport.ErrMalformedMessage) {
				r.logger.Warn("Discarding malformed message", "error", err)
				continue
			}
			r.stop(err)
			return
		}

		switch msg.Subject {
		case defs.SubjectJobResult:
			r.handleResult(msg)
		case defs.SubjectHeartbeat:
		default:
			r.logger.Warn("Unexpected message subject", "subject", msg.Subject)
		}
	}
}

func (r *Requester) handleResult(msg defs.Message) {
	res, err := defs.ParseJobResult(msg.Data)
	if err != nil {
		r.logger.Warn("Discarding malformed job result", "error", err)
		return
	}
	jobID, gen, err := decodeJobID(res.JobID)
	if err != nil {
		r.logger.Warn("Discarding job result", "error", err)
		return
	}

	r.mu.Lock()
	current, exists := r.inFlight[jobID]
	if !exists || current != gen {
		r.mu.Unlock()
		r.logger.Warn("Discarding result for unknown job", "jobID", jobID, "generation", gen)
		return
	}
	delete(r.inFlight, jobID)
	r.results = append(r.results, domain.Result{
		JobID:  jobID,
		Result: domain.ResultData{Type: res.Type, Data: res.Payload},
	})
	r.mu.Unlock()

	r.signal()
}

func (r *Requester) stop(err error) {
	r.mu.Lock()
	if !r.closed {
		r.err = err
		r.logger.Error("Lost connection to delegator", "error", err)
	}
	r.mu.Unlock()
	r.signal()
}

func (r *Requester) signal() {
	select {
	case r.ready <- struct{}{}:
	default:
	}
}

// jobIDSize is a little-endian uint32 job id followed by a uint64 generation
const jobIDSize = 12

func encodeJobID(id uint32, gen uint64) []byte {
	b := make([]byte, jobIDSize)
	binary.LittleEndian.PutUint32(b[0:4], id)
	binary.LittleEndian.PutUint64(b[4:12], gen)
	return b
}

func decodeJobID(b []byte) (uint32, uint64, error) {
	if len(b) != jobIDSize {
		return 0, 0, fmt.Errorf("job id has %d bytes, want %d", len(b), jobIDSize)
	}
	return binary.LittleEndian.Uint32(b[0:4]), binary.LittleEndian.Uint64(b[4:12]), nil
}
