package defs

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/darrnshn/stateline/internal/domain"
)

// Protocol data structures
type (
	// JobRequestData is a job on the wire. On the requester leg JobID is the
	// requester's own opaque identifier; on the worker leg it is the
	// delegator's 16-byte job id.
	JobRequestData struct {
		JobID   []byte
		Type    domain.JobType
		Payload []byte
	}

	// JobResultData is a result on the wire, keyed the same way as JobRequestData
	JobResultData struct {
		JobID   []byte
		Type    domain.JobType
		Payload []byte
	}
)

// Frames encodes the job as data frames
func (j JobRequestData) Frames() [][]byte {
	return [][]byte{j.JobID, EncodeJobType(j.Type), j.Payload}
}

// Frames encodes the result as data frames
func (r JobResultData) Frames() [][]byte {
	return [][]byte{r.JobID, EncodeJobType(r.Type), r.Payload}
}

// ParseJobRequest decodes JOB_REQUEST data frames
func ParseJobRequest(data [][]byte) (JobRequestData, error) {
	id, t, payload, err := parseJobFrames(data)
	if err != nil {
		return JobRequestData{}, fmt.Errorf("invalid job request: %w", err)
	}
	return JobRequestData{JobID: id, Type: t, Payload: payload}, nil
}

// ParseJobResult decodes JOB_RESULT data frames
func ParseJobResult(data [][]byte) (JobResultData, error) {
	id, t, payload, err := parseJobFrames(data)
	if err != nil {
		return JobResultData{}, fmt.Errorf("invalid job result: %w", err)
	}
	return JobResultData{JobID: id, Type: t, Payload: payload}, nil
}

func parseJobFrames(data [][]byte) ([]byte, domain.JobType, []byte, error) {
	if len(data) != 3 {
		return nil, 0, nil, fmt.Errorf("got %d data frames, want 3", len(data))
	}
	if len(data[0]) == 0 {
		return nil, 0, nil, fmt.Errorf("empty job id")
	}
	t, err := DecodeJobType(data[1])
	if err != nil {
		return nil, 0, nil, err
	}
	return data[0], t, data[2], nil
}

// DelegatorJobID parses the 16-byte job id used between delegator and workers
func DelegatorJobID(b []byte) (uuid.UUID, error) {
	id, err := uuid.FromBytes(b)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid delegator job id: %w", err)
	}
	return id, nil
}
