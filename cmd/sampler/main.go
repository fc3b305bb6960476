package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/darrnshn/stateline/internal/adapter/crypto"
	"github.com/darrnshn/stateline/internal/adapter/mqtt/eventport"
	"github.com/darrnshn/stateline/internal/adapter/postgres/chainrepository"
	"github.com/darrnshn/stateline/internal/config"
	"github.com/darrnshn/stateline/internal/core/ports/primary"
	"github.com/darrnshn/stateline/internal/core/ports/secondary"
	"github.com/darrnshn/stateline/internal/core/services/requester"
	"github.com/darrnshn/stateline/internal/core/services/sampler"
	"github.com/darrnshn/stateline/internal/domain"
	logger2 "github.com/darrnshn/stateline/internal/global/logger"
	"github.com/darrnshn/stateline/internal/handlers"
	"github.com/darrnshn/stateline/internal/handlers/chains"
	http2 "github.com/darrnshn/stateline/internal/http"
	"github.com/darrnshn/stateline/internal/schedulerengine"
)

// usage: sampler <env> <run.yaml>
func main() {
	if len(os.Args) < 3 {
		log.Fatalf("usage: %s <env> <run.yaml>", os.Args[0])
	}
	if err := config.LoadEnvFile(os.Args[1]); err != nil {
		log.Fatal(err)
	}

	sysCfg := config.NewSystemConfig()
	logger2.SetLevel(sysCfg.LogLevel)
	logger := logger2.Logger
	defer logger.Sync()

	runCfg, err := config.LoadSamplerCfg(os.Args[2])
	if err != nil {
		logger.Error("Failed to load run config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, sysCfg, runCfg, logger); err != nil {
		logger.Error("Sampler stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("Sampler exited")
}

func run(ctx context.Context, sysCfg *config.AppConfig, runCfg *config.SamplerCfg, logger primary.Logger) error {
	req, err := requester.Dial(ctx, runCfg.DelegatorAddress, logger)
	if err != nil {
		return fmt.Errorf("failed to reach delegator: %w", err)
	}
	defer req.Close()

	proposal, err := newProposal(runCfg)
	if err != nil {
		return err
	}
	chainArray := sampler.NewChainArray(runCfg.NStacks, runCfg.NChains, runCfg.Initial)
	s := sampler.NewSampler(req, chainArray, proposal, sampler.Options{
		JobType:      domain.JobType(runCfg.JobType),
		SwapInterval: runCfg.SwapInterval,
		Seed:         runCfg.Seed,
	}, logger)

	// SECONDARY PORTS
	var store secondary.ChainStore
	if sysCfg.PostgresConfig.Enabled() {
		db, err := setupDatabase(ctx, sysCfg.PostgresConfig.Url)
		if err != nil {
			return err
		}
		defer db.Close()

		repo := chainrepository.NewChainRepository(db, logger)
		if err := repo.Migrate(ctx); err != nil {
			return err
		}
		store = repo
	}

	var sink secondary.EventSink
	if sysCfg.MqttConfig.Enabled() {
		publisher, err := eventport.Connect(sysCfg.MqttConfig, runCfg.RunID, logger)
		if err != nil {
			logger.Warn("Event stream disabled", "broker", sysCfg.MqttConfig.Broker, "error", err)
		} else {
			defer publisher.Disconnect()
			sink = publisher
		}
	}

	engine := schedulerengine.NewRunEngine(runCfg, s, store, sink, logger)
	if err := engine.Restore(ctx); err != nil {
		return err
	}

	if sysCfg.AdminPort > 0 {
		var auth *handlers.MiddlewareProvider
		if sysCfg.JwtConfig.Enabled() {
			auth = handlers.NewMiddlewareProvider(crypto.NewJWTService(sysCfg.JwtConfig), logger)
		}
		httpServer := http2.NewServer(sysCfg.AdminPort, "sampler", auth, logger, chains.NewHandler(engine))
		if err := httpServer.Init(); err != nil {
			return err
		}
		if err := httpServer.Start(ctx); err != nil {
			return err
		}
	}

	return engine.Run(ctx)
}

func newProposal(cfg *config.SamplerCfg) (sampler.Proposal, error) {
	switch cfg.Proposal {
	case config.ProposalTruncated:
		return sampler.NewTruncatedGaussianProposal(cfg.Seed, cfg.Min, cfg.Max)
	case config.ProposalCovariance:
		return sampler.NewCovarianceProposal(cfg.Seed, int(cfg.NStacks*cfg.NChains), cfg.NDims), nil
	default:
		return sampler.NewGaussianProposal(cfg.Seed), nil
	}
}

// setupDatabase sets up the PostgreSQL connection
func setupDatabase(ctx context.Context, connStr string) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	// Test the connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	return db, nil
}
