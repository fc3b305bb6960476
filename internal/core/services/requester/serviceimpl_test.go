package requester

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/darrnshn/stateline/internal/adapter/logging"
	"github.com/darrnshn/stateline/internal/domain"
	"github.com/darrnshn/stateline/internal/tcp/defs"
	"github.com/darrnshn/stateline/internal/tcp/transport"
)

// startRouter stands in for the delegator; tests answer requests by hand.
func startRouter(t *testing.T) *transport.Router {
	t.Helper()
	router := transport.NewRouter("127.0.0.1:0", logging.NewNopLogger())
	if err := router.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = router.Stop(ctx)
	})
	return router
}

func dialRequester(t *testing.T, router *transport.Router) *Requester {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	r, err := Dial(ctx, router.Addr().String(), logging.NewNopLogger())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func nextRequest(t *testing.T, router *transport.Router) (defs.Message, defs.JobRequestData) {
	t.Helper()
	select {
	case frames := <-router.Inbox():
		msg, err := transport.DecodeFrames(frames)
		if err != nil {
			t.Fatalf("DecodeFrames failed: %v", err)
		}
		req, err := defs.ParseJobRequest(msg.Data)
		if err != nil {
			t.Fatalf("ParseJobRequest failed: %v", err)
		}
		return msg, req
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for job request")
	}
	return defs.Message{}, defs.JobRequestData{}
}

func reply(t *testing.T, router *transport.Router, to defs.Message, jobID []byte, payload string) {
	t.Helper()
	res := defs.JobResultData{JobID: jobID, Type: 1, Payload: []byte(payload)}
	if err := transport.Send(router, defs.NewMessage(to.Address, defs.SubjectJobResult, res.Frames()...)); err != nil {
		t.Fatalf("Reply failed: %v", err)
	}
}

func waitReady(t *testing.T, r *Requester) {
	t.Helper()
	select {
	case <-r.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for result")
	}
}

func TestSubmitAndRetrieve(t *testing.T) {
	router := startRouter(t)
	r := dialRequester(t, router)

	if err := r.Submit(7, domain.JobData{Type: 1, JobData: []byte("x")}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if got := r.PendingCount(); got != 1 {
		t.Errorf("Expected 1 pending, got %d", got)
	}
	if results := r.Retrieve(); len(results) != 0 {
		t.Fatalf("Expected no results yet, got %d", len(results))
	}

	msg, req := nextRequest(t, router)
	if req.Type != 1 || string(req.Payload) != "x" {
		t.Fatalf("Unexpected request %+v", req)
	}
	reply(t, router, msg, req.JobID, "done")
	waitReady(t, r)

	results := r.Retrieve()
	if len(results) != 1 || results[0].JobID != 7 || string(results[0].Result.Data) != "done" {
		t.Fatalf("Unexpected results %+v", results)
	}
	if got := r.PendingCount(); got != 0 {
		t.Errorf("Expected nothing pending, got %d", got)
	}
}

func TestDuplicateSubmitRejected(t *testing.T) {
	router := startRouter(t)
	r := dialRequester(t, router)

	if err := r.Submit(1, domain.JobData{Type: 1}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if err := r.Submit(1, domain.JobData{Type: 1}); !errors.Is(err, ErrDuplicateJob) {
		t.Fatalf("Expected ErrDuplicateJob, got %v", err)
	}
}

func TestUnknownResultDiscarded(t *testing.T) {
	router := startRouter(t)
	r := dialRequester(t, router)

	if err := r.Submit(1, domain.JobData{Type: 1}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	msg, req := nextRequest(t, router)

	reply(t, router, msg, encodeJobID(99, 1), "stray")
	reply(t, router, msg, req.JobID, "real")
	waitReady(t, r)

	results := r.Retrieve()
	if len(results) != 1 || results[0].JobID != 1 {
		t.Fatalf("Expected only the known result, got %+v", results)
	}
}

func TestResetForgetsInFlight(t *testing.T) {
	router := startRouter(t)
	r := dialRequester(t, router)

	if err := r.Submit(3, domain.JobData{Type: 1}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	msg, req := nextRequest(t, router)
	r.Reset()
	if got := r.PendingCount(); got != 0 {
		t.Fatalf("Expected nothing pending after reset, got %d", got)
	}

	reply(t, router, msg, req.JobID, "late")
	time.Sleep(100 * time.Millisecond)
	if results := r.Retrieve(); len(results) != 0 {
		t.Errorf("Expected late result discarded, got %+v", results)
	}
}

func TestResubmitIgnoresResultOfForgottenJob(t *testing.T) {
	router := startRouter(t)
	r := dialRequester(t, router)

	if err := r.Submit(3, domain.JobData{Type: 1}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	oldMsg, oldReq := nextRequest(t, router)
	r.Reset()

	if err := r.Submit(3, domain.JobData{Type: 1}); err != nil {
		t.Fatalf("Resubmit failed: %v", err)
	}
	newMsg, newReq := nextRequest(t, router)

	reply(t, router, oldMsg, oldReq.JobID, "stale")
	reply(t, router, newMsg, newReq.JobID, "fresh")
	waitReady(t, r)

	var results []domain.Result
	deadline := time.Now().Add(2 * time.Second)
	for len(results) == 0 && time.Now().Before(deadline) {
		results = append(results, r.Retrieve()...)
		time.Sleep(10 * time.Millisecond)
	}
	if len(results) != 1 || results[0].JobID != 3 || string(results[0].Result.Data) != "fresh" {
		t.Fatalf("Expected only the resubmitted job's result, got %+v", results)
	}
	if got := r.PendingCount(); got != 0 {
		t.Errorf("Expected nothing pending, got %d", got)
	}
}

func TestSubmitAfterClose(t *testing.T) {
	router := startRouter(t)
	r := dialRequester(t, router)

	if err := r.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := r.Submit(1, domain.JobData{Type: 1}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Expected ErrClosed, got %v", err)
	}
	if r.Err() != nil {
		t.Errorf("Expected clean close, got %v", r.Err())
	}
}

func TestLostDelegatorSurfacesError(t *testing.T) {
	router := startRouter(t)
	r := dialRequester(t, router)

	if err := r.Submit(1, domain.JobData{Type: 1}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	nextRequest(t, router)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = router.Stop(ctx)

	waitReady(t, r)
	if r.Err() == nil {
		t.Fatal("Expected a transport fault after the delegator went away")
	}
	if err := r.Submit(2, domain.JobData{Type: 1}); err == nil {
		t.Error("Expected submit to fail on a dead connection")
	}
}
