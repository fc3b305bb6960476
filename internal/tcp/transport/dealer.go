package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/darrnshn/stateline/internal/tcp/connectionmanager"
)

// Dealer is the connecting end of a router link. It announces its identity
// when the connection is made and then exchanges messages without any
// routing envelope.
type Dealer struct {
	identity string
	conn     net.Conn
	readMu   sync.Mutex
	writeMu  sync.Mutex
	closed   chan struct{}
	once     sync.Once
}

// Dial connects to a router and sends the identity greeting
func Dial(ctx context.Context, address, identity string) (*Dealer, error) {
	if err := ValidateIdentity(identity); err != nil {
		return nil, err
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrTransport, address, err)
	}

	if err := connectionmanager.WriteFrames(conn, [][]byte{[]byte(identity)}); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: greeting: %v", ErrTransport, err)
	}

	return &Dealer{
		identity: identity,
		conn:     conn,
		closed:   make(chan struct{}),
	}, nil
}

// Identity returns the identity announced to the router
func (d *Dealer) Identity() string {
	return d.identity
}

// SendFrames writes one message
func (d *Dealer) SendFrames(frames [][]byte) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	if d.isClosed() {
		return ErrClosed
	}
	if err := connectionmanager.WriteFrames(d.conn, frames); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return nil
}

// RecvFrames blocks until one message is read
func (d *Dealer) RecvFrames() ([][]byte, error) {
	d.readMu.Lock()
	defer d.readMu.Unlock()

	frames, err := connectionmanager.ReadFrames(d.conn)
	if err != nil {
		if d.isClosed() || errors.Is(err, net.ErrClosed) {
			return nil, ErrClosed
		}
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return frames, nil
}

// Close shuts the connection down and unblocks any pending RecvFrames
func (d *Dealer) Close() error {
	var err error
	d.once.Do(func() {
		close(d.closed)
		err = d.conn.Close()
	})
	return err
}

func (d *Dealer) isClosed() bool {
	select {
	case <-d.closed:
		return true
	default:
		return false
	}
}
