package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"

	"github.com/darrnshn/stateline/internal/adapter/crypto"
	"github.com/darrnshn/stateline/internal/adapter/redis/workerport"
	"github.com/darrnshn/stateline/internal/config"
	"github.com/darrnshn/stateline/internal/core/ports/secondary"
	"github.com/darrnshn/stateline/internal/core/services/worker"
	logger2 "github.com/darrnshn/stateline/internal/global/logger"
	"github.com/darrnshn/stateline/internal/handlers"
	"github.com/darrnshn/stateline/internal/handlers/workers"
	http2 "github.com/darrnshn/stateline/internal/http"
	"github.com/darrnshn/stateline/internal/tcp"
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// SECONDARY PORTS
	var mirror secondary.WorkerRegistryMirror
	var options []tcp.ServerOption
	if sysCfg.RedisConfig.Enabled() {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     sysCfg.RedisConfig.Url,
			Password: sysCfg.RedisConfig.Password,
			DB:       sysCfg.RedisConfig.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("Redis unreachable, registry mirror may lag", "addr", sysCfg.RedisConfig.Url, "error", err)
		}
		mirror = workerport.NewWorkerRepository(redisClient, 2*sysCfg.DelegatorCfg.HeartbeatTimeout, logger)
		options = append(options, tcp.WithRegistryMirror(mirror))
	}

	//server
	tcpServer := tcp.NewServer(sysCfg.DelegatorCfg, logger, options...)
	if err := tcpServer.Start(); err != nil {
		logger.Error("Failed to start delegator", "error", err)
		os.Exit(1)
	}

	if sysCfg.AdminPort > 0 {
		registry := worker.NewWorkerRegistryService(tcpServer, mirror, sysCfg.DelegatorCfg.HeartbeatTimeout, logger)

		var auth *handlers.MiddlewareProvider
		if sysCfg.JwtConfig.Enabled() {
			auth = handlers.NewMiddlewareProvider(crypto.NewJWTService(sysCfg.JwtConfig), logger)
		}
		httpServer := http2.NewServer(sysCfg.AdminPort, "delegator", auth, logger, workers.NewHandler(registry, tcpServer))
		if err := httpServer.Init(); err != nil {
			logger.Error("Failed to init admin server", "error", err)
			os.Exit(1)
		}
		if err := httpServer.Start(ctx); err != nil {
			logger.Error("Failed to start admin server", "error", err)
			os.Exit(1)
		}
	}

	if err := tcpServer.Run(ctx); err != nil {
		logger.Error("Delegator stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("successfully shutdown delegator")
}
