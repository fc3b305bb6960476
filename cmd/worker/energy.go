package main

import (
	"context"
	"math"

	"github.com/darrnshn/stateline/internal/codec"
	"github.com/darrnshn/stateline/internal/domain"
)

// mixtureModes are the unit-variance components of the demo target
var mixtureModes = []float64{-3, 3}

// mixtureEnergy is the negative log density of an equal-weight Gaussian
// mixture, evaluated independently along every dimension of the sample
func mixtureEnergy(_ context.Context, job domain.JobData) (domain.ResultData, error) {
	sample, err := codec.DecodeSample(job.JobData)
	if err != nil {
		return domain.ResultData{}, err
	}

	energy := 0.0
	for _, x := range sample {
		density := 0.0
		for _, mu := range mixtureModes {
			d := x - mu
			density += math.Exp(-0.5*d*d) / math.Sqrt(2*math.Pi)
		}
		energy -= math.Log(density / float64(len(mixtureModes)))
	}

	payload, err := codec.EncodeEnergy(energy)
	if err != nil {
		return domain.ResultData{}, err
	}
	return domain.ResultData{Type: job.Type, Data: payload}, nil
}
