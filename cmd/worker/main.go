package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/darrnshn/stateline/internal/config"
	"github.com/darrnshn/stateline/internal/core/services/worker"
	logger2 "github.com/darrnshn/stateline/internal/global/logger"
)

func main() {
	environment := ""
	if len(os.Args) > 1 {
		environment = os.Args[1]
	}
	if err := config.LoadEnvFile(environment); err != nil {
		log.Fatal(err)
	}

	sysCfg := config.NewSystemConfig()
	logger2.SetLevel(sysCfg.LogLevel)
	logger := logger2.Logger
	defer logger.Sync()

	cfg := config.NewWorkerCfg()
	agent := worker.NewAgent(cfg, worker.ExecutorFunc(mixtureEnergy), logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = cfg.MaxReconnect // 0 retries forever

	operation := func() error {
		started := time.Now()
		err := agent.Run(ctx, cfg.DelegatorAddress)
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		// A session that ran for a while starts the backoff over
		if time.Since(started) > cfg.HeartbeatTimeout {
			b.Reset()
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		if errors.Is(err, worker.ErrJobFailed) {
			logger.Error("Job failed, reconnecting", "error", err, "retryIn", wait)
			return
		}
		logger.Warn("Delegator unavailable, reconnecting", "error", err, "retryIn", wait)
	}

	err := backoff.RetryNotify(operation, backoff.WithContext(b, ctx), notify)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker gave up", "error", err)
		os.Exit(1)
	}
	logger.Info("Worker stopped")
}
