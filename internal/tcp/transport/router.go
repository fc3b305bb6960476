package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/darrnshn/stateline/internal/core/ports/primary"
	"github.com/darrnshn/stateline/internal/tcp/connectionmanager"
	"github.com/darrnshn/stateline/internal/tcp/defs"
)

const defaultInboxSize = 1024

// Router accepts identified connections. Every received message has the
// sender's identity prepended as its first frame, and every sent message is
// routed on (and stripped of) its first frame.
type Router struct {
	address       string
	logger        primary.Logger
	listener      net.Listener
	connectionMgr *connectionmanager.ConnectionManager
	inbox         chan [][]byte
	stopCh        chan struct{}
	stopOnce      sync.Once
	wg            sync.WaitGroup
}

// RouterOption configures a Router
type RouterOption func(*Router)

// WithInboxSize sets how many received messages may queue before readers block
func WithInboxSize(n int) RouterOption {
	return func(r *Router) {
		r.inbox = make(chan [][]byte, n)
	}
}

// WithWriteTimeout bounds how long a send may wait on a peer that is not reading
func WithWriteTimeout(d time.Duration) RouterOption {
	return func(r *Router) {
		r.connectionMgr.SetWriteTimeout(d)
	}
}

// NewRouter creates a router that will listen on address once started
func NewRouter(address string, logger primary.Logger, options ...RouterOption) *Router {
	r := &Router{
		address:       address,
		logger:        logger,
		connectionMgr: connectionmanager.NewConnectionManager(logger),
		inbox:         make(chan [][]byte, defaultInboxSize),
		stopCh:        make(chan struct{}),
	}
	for _, option := range options {
		option(r)
	}
	return r
}

// Start binds the listener and begins accepting connections
func (r *Router) Start() error {
	listener, err := net.Listen("tcp", r.address)
	if err != nil {
		return fmt.Errorf("%w: failed to listen on %s: %v", ErrTransport, r.address, err)
	}
	r.listener = listener
	r.logger.Info("Router listening", "address", listener.Addr().String())

	r.wg.Add(1)
	go r.acceptConnections()
	return nil
}

// Addr returns the bound address, useful when listening on port 0
func (r *Router) Addr() net.Addr {
	if r.listener == nil {
		return nil
	}
	return r.listener.Addr()
}

// Inbox exposes received messages for select loops
func (r *Router) Inbox() <-chan [][]byte {
	return r.inbox
}

// Peers returns the identities currently connected
func (r *Router) Peers() []string {
	return r.connectionMgr.Identities()
}

// RecvFrames blocks until a message arrives or the router stops
func (r *Router) RecvFrames() ([][]byte, error) {
	select {
	case frames := <-r.inbox:
		return frames, nil
	case <-r.stopCh:
		return nil, ErrClosed
	}
}

// SendFrames routes frames[1:] to the peer named by frames[0]. A peer whose
// write fails is disconnected.
func (r *Router) SendFrames(frames [][]byte) error {
	if len(frames) < 2 {
		return fmt.Errorf("%w: routed message needs an identity and a body", ErrMalformedMessage)
	}
	select {
	case <-r.stopCh:
		return ErrClosed
	default:
	}

	identity := string(frames[0])
	peer, exists := r.connectionMgr.Get(identity)
	if !exists {
		return fmt.Errorf("%w: %q", ErrUnknownPeer, identity)
	}

	if err := peer.WriteFrames(frames[1:]); err != nil {
		r.dropPeer(peer)
		return fmt.Errorf("%w: send to %q: %v", ErrTransport, identity, err)
	}
	return nil
}

// Stop closes the listener and every connection, then waits for the
// connection goroutines to exit or ctx to expire.
func (r *Router) Stop(ctx context.Context) error {
	r.stopOnce.Do(func() {
		close(r.stopCh)
		if r.listener != nil {
			if err := r.listener.Close(); err != nil {
				r.logger.Error("Failed to close listener", "error", err)
			}
		}
		r.connectionMgr.CloseAll()
	})

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Router) acceptConnections() {
	defer r.wg.Done()
	for {
		conn, err := r.listener.Accept()
		if err != nil {
			select {
			case <-r.stopCh:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			r.logger.Error("Failed to accept connection", "error", err)
			time.Sleep(defs.ConnectionRetryDelay)
			continue
		}

		r.wg.Add(1)
		go r.handleConnection(conn)
	}
}

func (r *Router) handleConnection(conn net.Conn) {
	defer r.wg.Done()

	// The first message on a connection is the peer's identity
	_ = conn.SetReadDeadline(time.Now().Add(defs.InitialGreetingTimeout))
	greeting, err := connectionmanager.ReadFrames(conn)
	if err != nil {
		r.logger.Debug("Connection closed before greeting", "remote", conn.RemoteAddr().String(), "error", err)
		_ = conn.Close()
		return
	}
	if len(greeting) != 1 {
		r.logger.Warn("Malformed greeting", "remote", conn.RemoteAddr().String(), "frames", len(greeting))
		_ = conn.Close()
		return
	}
	identity := string(greeting[0])
	if err := ValidateIdentity(identity); err != nil {
		r.logger.Warn("Rejected connection", "remote", conn.RemoteAddr().String(), "error", err)
		_ = conn.Close()
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	peer := r.connectionMgr.Register(identity, conn)
	r.logger.Debug("Peer connected", "identity", identity, "remote", conn.RemoteAddr().String())

	for {
		frames, err := connectionmanager.ReadFrames(conn)
		if err != nil {
			select {
			case <-r.stopCh:
			default:
				if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
					r.logger.Warn("Failed to read message", "identity", identity, "error", err)
				}
			}
			r.dropPeer(peer)
			return
		}

		routed := make([][]byte, 0, len(frames)+1)
		routed = append(routed, []byte(identity))
		routed = append(routed, frames...)

		select {
		case r.inbox <- routed:
		case <-r.stopCh:
			r.dropPeer(peer)
			return
		}
	}
}

func (r *Router) dropPeer(peer *connectionmanager.Peer) {
	if r.connectionMgr.Remove(peer) {
		r.logger.Debug("Peer disconnected", "identity", peer.Identity)
	}
	_ = peer.Conn.Close()
}
