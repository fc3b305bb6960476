package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/darrnshn/stateline/internal/domain"
)

const jobSpecEnvPrefix = "JOB_SPEC_"

type DelegatorCfg struct {
	Port             int
	HeartbeatRate    time.Duration
	HeartbeatTimeout time.Duration
	Spec             domain.RunSpec
}

func NewDelegatorCfg() *DelegatorCfg {
	port, err := strconv.Atoi(os.Getenv("DELEGATOR_PORT"))
	if err != nil || port <= 0 {
		port = 5555
	}
	rateMs, err := strconv.Atoi(os.Getenv("HEARTBEAT_RATE_MS"))
	if err != nil || rateMs <= 0 {
		rateMs = 1000
	}
	timeoutMs, err := strconv.Atoi(os.Getenv("HEARTBEAT_TIMEOUT_MS"))
	if err != nil || timeoutMs <= 0 {
		timeoutMs = 3000
	}

	return &DelegatorCfg{
		Port:             port,
		HeartbeatRate:    time.Duration(rateMs) * time.Millisecond,
		HeartbeatTimeout: time.Duration(timeoutMs) * time.Millisecond,
		Spec:             runSpecFromEnv(os.Environ()),
	}
}

// runSpecFromEnv reads GLOBAL_SPEC and every JOB_SPEC_<type> variable
func runSpecFromEnv(environ []string) domain.RunSpec {
	spec := domain.RunSpec{JobSpecs: make(map[domain.JobType][]byte)}
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if key == "GLOBAL_SPEC" {
			spec.GlobalSpec = []byte(value)
			continue
		}
		if !strings.HasPrefix(key, jobSpecEnvPrefix) {
			continue
		}
		t, err := strconv.ParseUint(strings.TrimPrefix(key, jobSpecEnvPrefix), 10, 32)
		if err != nil {
			continue
		}
		spec.JobSpecs[domain.JobType(t)] = []byte(value)
	}
	return spec
}
