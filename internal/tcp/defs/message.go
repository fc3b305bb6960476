package defs

// Message is one multi-frame unit on the wire.
//
// Address is a stack of routing frames: the last element is the most recent
// hop and is sent first. It is empty at the terminal recipient.
type Message struct {
	Address []string
	Subject Subject
	Data    [][]byte
}

// NewMessage builds a message addressed through the given hops
func NewMessage(address []string, subject Subject, data ...[]byte) Message {
	return Message{
		Address: address,
		Subject: subject,
		Data:    data,
	}
}

// Sender returns the most recent hop, which for a message read from a router
// socket is the identity of the peer that sent it.
func (m Message) Sender() string {
	if len(m.Address) == 0 {
		return ""
	}
	return m.Address[len(m.Address)-1]
}
