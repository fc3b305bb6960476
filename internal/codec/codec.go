// Package codec serializes the numeric payloads exchanged between the
// sampler and workers: proposal samples and their energies.
package codec

import (
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// ErrInvalidArgument marks a payload that is not the numeric value expected
var ErrInvalidArgument = errors.New("invalid argument")

// EncodeSample serializes a sample as a msgpack array of float64
func EncodeSample(sample []float64) ([]byte, error) {
	b, err := msgpack.Marshal(sample)
	if err != nil {
		return nil, fmt.Errorf("failed to encode sample: %w", err)
	}
	return b, nil
}

// DecodeSample parses a msgpack array of floats. Any other element type is
// rejected rather than converted.
func DecodeSample(data []byte) ([]float64, error) {
	var raw interface{}
	if err := msgpack.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: sample is not msgpack: %v", ErrInvalidArgument, err)
	}
	items, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: sample is %T, want array", ErrInvalidArgument, raw)
	}

	sample := make([]float64, len(items))
	for i, item := range items {
		v, err := toFloat(item)
		if err != nil {
			return nil, fmt.Errorf("%w: element %d: %v", ErrInvalidArgument, i, err)
		}
		sample[i] = v
	}
	return sample, nil
}

// EncodeEnergy serializes one energy value
func EncodeEnergy(energy float64) ([]byte, error) {
	b, err := msgpack.Marshal(energy)
	if err != nil {
		return nil, fmt.Errorf("failed to encode energy: %w", err)
	}
	return b, nil
}

// DecodeEnergy parses one msgpack float
func DecodeEnergy(data []byte) (float64, error) {
	var raw interface{}
	if err := msgpack.Unmarshal(data, &raw); err != nil {
		return 0, fmt.Errorf("%w: energy is not msgpack: %v", ErrInvalidArgument, err)
	}
	v, err := toFloat(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: energy: %v", ErrInvalidArgument, err)
	}
	return v, nil
}

func toFloat(v interface{}) (float64, error) {
	switch f := v.(type) {
	case float64:
		return f, nil
	case float32:
		return float64(f), nil
	default:
		return 0, fmt.Errorf("got %T, want float", v)
	}
}
