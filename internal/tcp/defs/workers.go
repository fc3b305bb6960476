package defs

import (
	"encoding/binary"
	"fmt"

	"github.com/darrnshn/stateline/internal/domain"
)

// Protocol data structures
type (
	// WorkerHelloData represents the data a worker sends when it connects
	WorkerHelloData struct {
		JobTypes []domain.JobType
	}

	// SpecData represents the delegator's HELLO reply: the run's global data
	// and one spec per job type the worker announced
	SpecData struct {
		GlobalSpec []byte
		JobSpecs   map[domain.JobType][]byte
	}
)

// EncodeJobType serializes a job type tag as a fixed-width frame
func EncodeJobType(t domain.JobType) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, uint32(t))
	return b
}

// DecodeJobType parses a fixed-width job type frame
func DecodeJobType(b []byte) (domain.JobType, error) {
	if len(b) != 4 {
		return 0, fmt.Errorf("job type frame has %d bytes, want 4", len(b))
	}
	return domain.JobType(binary.LittleEndian.Uint32(b)), nil
}

// Frames encodes the hello payload, one job type per frame
func (h WorkerHelloData) Frames() [][]byte {
	frames := make([][]byte, 0, len(h.JobTypes))
	for _, t := range h.JobTypes {
		frames = append(frames, EncodeJobType(t))
	}
	return frames
}

// ParseWorkerHello decodes a worker HELLO payload
func ParseWorkerHello(data [][]byte) (WorkerHelloData, error) {
	if len(data) == 0 {
		return WorkerHelloData{}, fmt.Errorf("hello announces no job types")
	}
	hello := WorkerHelloData{JobTypes: make([]domain.JobType, 0, len(data))}
	for _, frame := range data {
		t, err := DecodeJobType(frame)
		if err != nil {
			return WorkerHelloData{}, err
		}
		hello.JobTypes = append(hello.JobTypes, t)
	}
	return hello, nil
}

// Frames encodes the spec reply for the given job types. Types without a
// spec are sent with an empty spec frame.
func (s SpecData) Frames(jobTypes []domain.JobType) [][]byte {
	frames := make([][]byte, 0, 1+2*len(jobTypes))
	frames = append(frames, s.GlobalSpec)
	for _, t := range jobTypes {
		frames = append(frames, EncodeJobType(t), s.JobSpecs[t])
	}
	return frames
}

// ParseSpec decodes the delegator's HELLO reply
func ParseSpec(data [][]byte) (SpecData, error) {
	if len(data) == 0 || len(data)%2 != 1 {
		return SpecData{}, fmt.Errorf("spec reply has %d frames, want global spec plus type/spec pairs", len(data))
	}
	spec := SpecData{
		GlobalSpec: data[0],
		JobSpecs:   make(map[domain.JobType][]byte, len(data)/2),
	}
	for i := 1; i < len(data); i += 2 {
		t, err := DecodeJobType(data[i])
		if err != nil {
			return SpecData{}, err
		}
		spec.JobSpecs[t] = data[i+1]
	}
	return spec, nil
}
