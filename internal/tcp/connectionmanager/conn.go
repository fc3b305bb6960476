package connectionmanager

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/darrnshn/stateline/internal/core/ports/primary"
	"github.com/darrnshn/stateline/internal/tcp/defs"
)

// Peer is one identified connection. Writes are serialized per peer.
type Peer struct {
	Identity     string
	Conn         net.Conn
	writeTimeout time.Duration
	writeMu      sync.Mutex
}

// WriteFrames sends a complete multi-frame message to the peer. A peer that
// does not drain its socket within the write timeout fails the write.
func (p *Peer) WriteFrames(frames [][]byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	if p.writeTimeout > 0 {
		if err := p.Conn.SetWriteDeadline(time.Now().Add(p.writeTimeout)); err != nil {
			return fmt.Errorf("failed to set write deadline: %w", err)
		}
	}
	return WriteFrames(p.Conn, frames)
}

// ConnectionManager handles identified TCP connections
type ConnectionManager struct {
	peers        map[string]*Peer
	mu           sync.RWMutex
	writeTimeout time.Duration
	Logger       primary.Logger
}

// NewConnectionManager creates a new connection manager
func NewConnectionManager(logger primary.Logger) *ConnectionManager {
	return &ConnectionManager{
		peers:        make(map[string]*Peer),
		writeTimeout: defs.DefaultWriteTimeout,
		Logger:       logger,
	}
}

// SetWriteTimeout bounds every write to a peer registered afterwards; zero disables it
func (cm *ConnectionManager) SetWriteTimeout(d time.Duration) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.writeTimeout = d
}

// Register binds an identity to a connection. A previous connection with the
// same identity is closed and replaced.
func (cm *ConnectionManager) Register(identity string, conn net.Conn) *Peer {
	cm.mu.Lock()
	peer := &Peer{Identity: identity, Conn: conn, writeTimeout: cm.writeTimeout}
	old, exists := cm.peers[identity]
	cm.peers[identity] = peer
	cm.mu.Unlock()

	if exists && old.Conn != conn {
		cm.Logger.Warn("Identity reconnected, closing previous connection", "identity", identity)
		_ = old.Conn.Close()
	}
	return peer
}

// Remove unbinds an identity, but only if it still points at the given peer
func (cm *ConnectionManager) Remove(peer *Peer) bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	current, exists := cm.peers[peer.Identity]
	if !exists || current != peer {
		return false
	}
	delete(cm.peers, peer.Identity)
	return true
}

// Get returns the peer for a specific identity
func (cm *ConnectionManager) Get(identity string) (*Peer, bool) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	peer, exists := cm.peers[identity]
	return peer, exists
}

// Identities returns the identities currently connected
func (cm *ConnectionManager) Identities() []string {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	ids := make([]string, 0, len(cm.peers))
	for id := range cm.peers {
		ids = append(ids, id)
	}
	return ids
}

// CloseAll closes every connection and empties the registry
func (cm *ConnectionManager) CloseAll() {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	for identity, peer := range cm.peers {
		if err := peer.Conn.Close(); err != nil {
			cm.Logger.Debug("Failed to close connection", "identity", identity, "error", err)
		}
		delete(cm.peers, identity)
	}
}

// WriteFrames writes a multi-frame message: every frame but the last carries
// the MORE flag. The message is assembled first and written with one call.
func WriteFrames(w io.Writer, frames [][]byte) error {
	if len(frames) == 0 {
		return fmt.Errorf("refusing to write a message with no frames")
	}

	size := 0
	for _, frame := range frames {
		if len(frame) > defs.MaxFrameSize {
			return fmt.Errorf("frame of %d bytes exceeds limit", len(frame))
		}
		size += defs.FrameHeaderSize + len(frame)
	}

	buf := make([]byte, 0, size)
	header := make([]byte, defs.FrameHeaderSize)
	for i, frame := range frames {
		var flags byte
		if i < len(frames)-1 {
			flags = defs.FlagMore
		}
		binary.BigEndian.PutUint16(header[0:2], defs.MagicNumber)
		header[2] = flags
		header[3] = 0 // Reserved
		binary.BigEndian.PutUint32(header[4:8], uint32(len(frame)))

		buf = append(buf, header...)
		buf = append(buf, frame...)
	}

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// ReadFrames reads frames until one arrives without the MORE flag
func ReadFrames(r io.Reader) ([][]byte, error) {
	var frames [][]byte
	header := make([]byte, defs.FrameHeaderSize)
	for {
		if _, err := io.ReadFull(r, header); err != nil {
			if len(frames) > 0 && err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return nil, err
		}

		magic := binary.BigEndian.Uint16(header[0:2])
		if magic != defs.MagicNumber {
			return nil, fmt.Errorf("invalid magic number: %x", magic)
		}
		flags := header[2]
		length := binary.BigEndian.Uint32(header[4:8])
		if length > defs.MaxFrameSize {
			return nil, fmt.Errorf("frame of %d bytes exceeds limit", length)
		}

		frame := make([]byte, length)
		if _, err := io.ReadFull(r, frame); err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return nil, err
		}
		frames = append(frames, frame)

		if flags&defs.FlagMore == 0 {
			return frames, nil
		}
	}
}
