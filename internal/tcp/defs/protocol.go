package defs

import (
	"fmt"
	"time"
)

// Protocol constants
const (
	MagicNumber uint16 = 0x57A7

	// Frame header layout: magic(2) | flags(1) | reserved(1) | length(4)
	FrameHeaderSize = 8

	FlagMore byte = 0x01

	// MaxFrameSize bounds a single frame payload
	MaxFrameSize = 64 << 20

	// Size of the serialized subject frame
	SubjectSize = 4

	// Configuration constants
	InitialGreetingTimeout = 30 * time.Second
	ConnectionRetryDelay   = 1 * time.Second
	DefaultWriteTimeout    = 5 * time.Second
	DefaultPort            = 5555
)

// Subject tags the meaning of a message exchanged between delegator, workers and requesters
type Subject uint32

// Message subjects
const (
	SubjectHeartbeat  Subject = 0
	SubjectHello      Subject = 1
	SubjectJobRequest Subject = 2
	SubjectJobResult  Subject = 3
	SubjectGoodbye    Subject = 4
)

var subjectNames = map[Subject]string{
	SubjectHeartbeat:  "HEARTBEAT",
	SubjectHello:      "HELLO",
	SubjectJobRequest: "JOB_REQUEST",
	SubjectJobResult:  "JOB_RESULT",
	SubjectGoodbye:    "GOODBYE",
}

func (s Subject) String() string {
	if name, ok := subjectNames[s]; ok {
		return name
	}
	return fmt.Sprintf("SUBJECT(%d)", uint32(s))
}

// Valid reports whether s is one of the known subjects
func (s Subject) Valid() bool {
	_, ok := subjectNames[s]
	return ok
}
