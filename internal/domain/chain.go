package domain

import (
	"encoding/json"
	"math"
	"time"
)

// ChainState is a snapshot of one chain, exchanged with the storage collaborator
type ChainState struct {
	StackID   uint32    `json:"stack_id" db:"stack_id"`
	ChainID   uint32    `json:"chain_id" db:"chain_id"`
	Sample    []float64 `json:"sample" db:"-"`
	Energy    float64   `json:"energy" db:"energy"`
	Beta      float64   `json:"beta" db:"beta"`
	Sigma     float64   `json:"sigma" db:"sigma"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// StepEvent is emitted for every evaluated proposal
type StepEvent struct {
	ChainID  uint32     `json:"chain_id"`
	Accepted bool       `json:"accepted"`
	Energy   float64    `json:"energy"`
	State    ChainState `json:"state"`
}

// SwapEvent is emitted for every attempted replica exchange. I and J are
// positions within the stack, not global chain ids.
type SwapEvent struct {
	StackID  uint32 `json:"stack_id"`
	I        uint32 `json:"i"`
	J        uint32 `json:"j"`
	Accepted bool   `json:"accepted"`
}

// SamplerStats summarises sampler progress for diagnostics
type SamplerStats struct {
	Steps           uint64    `json:"steps"`
	Outstanding     uint      `json:"outstanding"`
	AcceptRate      []float64 `json:"accept_rate"`
	SwapAttempts    uint64    `json:"swap_attempts"`
	SwapAcceptances uint64    `json:"swap_acceptances"`
}

// jsonEnergy renders non-finite energies, such as the unknown energy of a
// fresh chain, as null
func jsonEnergy(e float64) *float64 {
	if math.IsInf(e, 0) || math.IsNaN(e) {
		return nil
	}
	return &e
}

func (c ChainState) MarshalJSON() ([]byte, error) {
	type plain ChainState
	return json.Marshal(struct {
		plain
		Energy *float64 `json:"energy"`
	}{plain(c), jsonEnergy(c.Energy)})
}

func (e StepEvent) MarshalJSON() ([]byte, error) {
	type plain StepEvent
	return json.Marshal(struct {
		plain
		Energy *float64 `json:"energy"`
	}{plain(e), jsonEnergy(e.Energy)})
}
