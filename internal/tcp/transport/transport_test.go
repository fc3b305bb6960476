package transport

import (
	"bytes"
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/darrnshn/stateline/internal/adapter/logging"
	"github.com/darrnshn/stateline/internal/tcp/defs"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	msg := defs.Message{
		Address: []string{"requester", "delegator"},
		Subject: defs.SubjectJobRequest,
		Data:    [][]byte{[]byte("id"), {1, 0, 0, 0}, []byte("payload")},
	}

	frames := EncodeFrames(msg)
	if string(frames[0]) != "delegator" || string(frames[1]) != "requester" {
		t.Fatalf("Expected most recent hop first, got %q %q", frames[0], frames[1])
	}
	if len(frames[2]) != 0 {
		t.Fatalf("Expected empty delimiter, got %q", frames[2])
	}
	if !bytes.Equal(frames[3], []byte{2, 0, 0, 0}) {
		t.Fatalf("Expected little-endian subject, got %v", frames[3])
	}

	decoded, err := DecodeFrames(frames)
	if err != nil {
		t.Fatalf("DecodeFrames failed: %v", err)
	}
	if len(decoded.Address) != 2 || decoded.Address[0] != "requester" || decoded.Address[1] != "delegator" {
		t.Errorf("Address not restored: %v", decoded.Address)
	}
	if decoded.Subject != defs.SubjectJobRequest {
		t.Errorf("Expected subject %v, got %v", defs.SubjectJobRequest, decoded.Subject)
	}
	if len(decoded.Data) != 3 || string(decoded.Data[2]) != "payload" {
		t.Errorf("Data not restored: %q", decoded.Data)
	}
}

func TestDecodeEmptyAddressAndNoData(t *testing.T) {
	frames := EncodeFrames(defs.NewMessage(nil, defs.SubjectHeartbeat))
	if len(frames) != 2 {
		t.Fatalf("Expected delimiter and subject only, got %d frames", len(frames))
	}

	msg, err := DecodeFrames(frames)
	if err != nil {
		t.Fatalf("DecodeFrames failed: %v", err)
	}
	if len(msg.Address) != 0 || len(msg.Data) != 0 || msg.Subject != defs.SubjectHeartbeat {
		t.Errorf("Unexpected message %+v", msg)
	}
}

func TestDecodeMalformed(t *testing.T) {
	cases := map[string][][]byte{
		"no delimiter":  {[]byte("a"), []byte("b")},
		"no subject":    {[]byte("a"), {}},
		"short subject": {{}, {1, 0}},
	}
	for name, frames := range cases {
		if _, err := DecodeFrames(frames); !errors.Is(err, ErrMalformedMessage) {
			t.Errorf("%s: expected ErrMalformedMessage, got %v", name, err)
		}
	}
}

func TestRandomSocketID(t *testing.T) {
	pattern := regexp.MustCompile(`^[0-9A-F]{4}-[0-9A-F]{4}$`)
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := RandomSocketID()
		if !pattern.MatchString(id) {
			t.Fatalf("Identity %q does not match XXXX-XXXX", id)
		}
		if err := ValidateIdentity(id); err != nil {
			t.Fatalf("Generated identity rejected: %v", err)
		}
		seen[id] = true
	}
	if len(seen) < 90 {
		t.Errorf("Expected mostly unique identities, got %d distinct of 100", len(seen))
	}
}

func TestValidateIdentity(t *testing.T) {
	if err := ValidateIdentity(""); !errors.Is(err, ErrInvalidIdentity) {
		t.Errorf("Expected empty identity to be rejected, got %v", err)
	}
	if err := ValidateIdentity("\x00abc"); !errors.Is(err, ErrInvalidIdentity) {
		t.Errorf("Expected leading zero byte to be rejected, got %v", err)
	}
	if err := ValidateIdentity("worker-1"); err != nil {
		t.Errorf("Expected valid identity, got %v", err)
	}
}

func startRouter(t *testing.T, options ...RouterOption) *Router {
	t.Helper()
	router := NewRouter("127.0.0.1:0", logging.NewNopLogger(), options...)
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

func recvWithTimeout(t *testing.T, router *Router) defs.Message {
	t.Helper()
	select {
	case frames := <-router.Inbox():
		msg, err := DecodeFrames(frames)
		if err != nil {
			t.Fatalf("DecodeFrames failed: %v", err)
		}
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for router message")
	}
	return defs.Message{}
}

func TestRouterDealerExchange(t *testing.T) {
	router := startRouter(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	dealer, err := Dial(ctx, router.Addr().String(), "worker-1")
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer dealer.Close()

	if err := Send(dealer, defs.NewMessage(nil, defs.SubjectHello, []byte{7, 0, 0, 0})); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	msg := recvWithTimeout(t, router)
	if msg.Sender() != "worker-1" {
		t.Fatalf("Expected sender worker-1, got %q", msg.Sender())
	}
	if msg.Subject != defs.SubjectHello || len(msg.Data) != 1 {
		t.Fatalf("Unexpected message %+v", msg)
	}

	reply := defs.NewMessage([]string{"worker-1"}, defs.SubjectHello, []byte("global"))
	if err := Send(router, reply); err != nil {
		t.Fatalf("Router send failed: %v", err)
	}

	got, err := Receive(dealer)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if len(got.Address) != 0 {
		t.Errorf("Expected routing frame stripped, got address %v", got.Address)
	}
	if got.Subject != defs.SubjectHello || string(got.Data[0]) != "global" {
		t.Errorf("Unexpected reply %+v", got)
	}
}

func TestRouterSendUnknownPeer(t *testing.T) {
	router := startRouter(t)

	err := Send(router, defs.NewMessage([]string{"nobody"}, defs.SubjectHeartbeat))
	if !errors.Is(err, ErrUnknownPeer) {
		t.Fatalf("Expected ErrUnknownPeer, got %v", err)
	}
}

func TestRouterForgetsClosedPeer(t *testing.T) {
	router := startRouter(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	dealer, err := Dial(ctx, router.Addr().String(), "short-lived")
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	if err := Send(dealer, defs.NewMessage(nil, defs.SubjectHeartbeat)); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	recvWithTimeout(t, router)

	dealer.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(router.Peers()) == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Expected peer to be forgotten, still have %v", router.Peers())
}

func TestRouterSendTimesOutOnStalledPeer(t *testing.T) {
	router := startRouter(t, WithWriteTimeout(100*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	dealer, err := Dial(ctx, router.Addr().String(), "stalled")
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer dealer.Close()
	if err := Send(dealer, defs.NewMessage(nil, defs.SubjectHeartbeat)); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	recvWithTimeout(t, router)

	// The dealer never reads, so the socket buffers eventually fill up
	payload := make([]byte, 1<<20)
	errCh := make(chan error, 1)
	go func() {
		for i := 0; i < 1024; i++ {
			if err := router.SendFrames([][]byte{[]byte("stalled"), payload}); err != nil {
				errCh <- err
				return
			}
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrTransport) {
			t.Fatalf("Expected transport fault, got %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Send to a stalled peer never returned")
	}
	if peers := router.Peers(); len(peers) != 0 {
		t.Errorf("Expected stalled peer dropped, still have %v", peers)
	}
}
