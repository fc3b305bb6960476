package transport

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/darrnshn/stateline/internal/tcp/defs"
)

var (
	// ErrTransport wraps socket-level send/receive failures. They are not
	// retried here; the caller decides what a dead socket means.
	ErrTransport = errors.New("transport fault")

	// ErrMalformedMessage marks frames that do not form a valid message
	ErrMalformedMessage = errors.New("malformed message")

	// ErrUnknownPeer is returned when routing to an identity with no connection
	ErrUnknownPeer = errors.New("unknown peer")

	// ErrInvalidIdentity is returned for identities the transport cannot carry
	ErrInvalidIdentity = errors.New("invalid socket identity")

	// ErrClosed is returned by operations on a closed socket
	ErrClosed = errors.New("socket closed")
)

// Socket is a connection-oriented, message-oriented socket
type Socket interface {
	SendFrames(frames [][]byte) error
	RecvFrames() ([][]byte, error)
}

// EncodeFrames lays a message out in wire order: address frames with the most
// recent hop first, the empty delimiter, the subject, then the data frames.
func EncodeFrames(msg defs.Message) [][]byte {
	frames := make([][]byte, 0, len(msg.Address)+2+len(msg.Data))
	for i := len(msg.Address) - 1; i >= 0; i-- {
		frames = append(frames, []byte(msg.Address[i]))
	}
	frames = append(frames, []byte{})

	subject := make([]byte, defs.SubjectSize)
	binary.LittleEndian.PutUint32(subject, uint32(msg.Subject))
	frames = append(frames, subject)

	return append(frames, msg.Data...)
}

// DecodeFrames is the inverse of EncodeFrames
func DecodeFrames(frames [][]byte) (defs.Message, error) {
	var msg defs.Message

	i := 0
	for ; i < len(frames) && len(frames[i]) > 0; i++ {
		msg.Address = append(msg.Address, string(frames[i]))
	}
	if i == len(frames) {
		return defs.Message{}, fmt.Errorf("%w: no address delimiter", ErrMalformedMessage)
	}

	// The address arrived as a stack; put it back the right way around.
	for l, r := 0, len(msg.Address)-1; l < r; l, r = l+1, r-1 {
		msg.Address[l], msg.Address[r] = msg.Address[r], msg.Address[l]
	}

	i++ // delimiter
	if i == len(frames) {
		return defs.Message{}, fmt.Errorf("%w: missing subject", ErrMalformedMessage)
	}
	if len(frames[i]) != defs.SubjectSize {
		return defs.Message{}, fmt.Errorf("%w: subject frame has %d bytes", ErrMalformedMessage, len(frames[i]))
	}
	msg.Subject = defs.Subject(binary.LittleEndian.Uint32(frames[i]))
	i++

	if i < len(frames) {
		msg.Data = frames[i:]
	}
	return msg, nil
}

// Send writes msg to the socket. The caller must not reuse msg's buffers afterwards.
func Send(sock Socket, msg defs.Message) error {
	if err := sock.SendFrames(EncodeFrames(msg)); err != nil {
		return err
	}
	return nil
}

// Receive blocks until a full message is read from the socket
func Receive(sock Socket) (defs.Message, error) {
	frames, err := sock.RecvFrames()
	if err != nil {
		return defs.Message{}, err
	}
	return DecodeFrames(frames)
}
