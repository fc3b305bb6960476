package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/darrnshn/stateline/internal/domain"
)

type WorkerCfg struct {
	DelegatorAddress string
	JobTypes         []domain.JobType
	HeartbeatRate    time.Duration
	HeartbeatTimeout time.Duration
	MaxReconnect     time.Duration
}

func NewWorkerCfg() *WorkerCfg {
	address := os.Getenv("DELEGATOR_ADDR")
	if address == "" {
		address = "localhost:5555"
	}
	rateMs, err := strconv.Atoi(os.Getenv("HEARTBEAT_RATE_MS"))
	if err != nil || rateMs <= 0 {
		rateMs = 1000
	}
	timeoutMs, err := strconv.Atoi(os.Getenv("HEARTBEAT_TIMEOUT_MS"))
	if err != nil || timeoutMs <= 0 {
		timeoutMs = 3000
	}
	maxReconnectSec, err := strconv.Atoi(os.Getenv("WORKER_MAX_RECONNECT_SEC"))
	if err != nil || maxReconnectSec < 0 {
		maxReconnectSec = 0
	}

	return &WorkerCfg{
		DelegatorAddress: address,
		JobTypes:         parseJobTypes(os.Getenv("WORKER_JOB_TYPES")),
		HeartbeatRate:    time.Duration(rateMs) * time.Millisecond,
		HeartbeatTimeout: time.Duration(timeoutMs) * time.Millisecond,
		MaxReconnect:     time.Duration(maxReconnectSec) * time.Second,
	}
}

// parseJobTypes reads a comma separated list of job types, defaulting to type 0
func parseJobTypes(raw string) []domain.JobType {
	var types []domain.JobType
	for _, field := range strings.Split(raw, ",") {
		t, err := strconv.ParseUint(strings.TrimSpace(field), 10, 32)
		if err != nil {
			continue
		}
		types = append(types, domain.JobType(t))
	}
	if len(types) == 0 {
		types = []domain.JobType{0}
	}
	return types
}
