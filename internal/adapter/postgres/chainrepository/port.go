// Package chainrepository stores sampler chain snapshots in PostgreSQL
package chainrepository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/darrnshn/stateline/internal/core/ports/primary"
	"github.com/darrnshn/stateline/internal/core/ports/secondary"
	"github.com/darrnshn/stateline/internal/domain"
	querybuilder "github.com/darrnshn/stateline/internal/utils"
)

const (
	schema     = "public"
	chainTable = "chain_states"

	// rows per INSERT, well under the driver's parameter limit
	batchSize = 1000
)

var chainColumns = []string{"run_id", "stack_id", "chain_id", "sample", "energy", "beta", "sigma", "updated_at"}

const createTable = `
	CREATE TABLE IF NOT EXISTS public.chain_states (
		run_id     TEXT             NOT NULL,
		stack_id   INTEGER          NOT NULL,
		chain_id   INTEGER          NOT NULL,
		sample     DOUBLE PRECISION[] NOT NULL,
		energy     DOUBLE PRECISION NOT NULL,
		beta       DOUBLE PRECISION NOT NULL,
		sigma      DOUBLE PRECISION NOT NULL,
		updated_at TIMESTAMPTZ      NOT NULL,
		PRIMARY KEY (run_id, chain_id)
	)
`

var _ secondary.ChainStore = &ChainRepository{}

// chainRow is the table layout of one chain
type chainRow struct {
	RunID     string          `db:"run_id"`
	StackID   uint32          `db:"stack_id"`
	ChainID   uint32          `db:"chain_id"`
	Sample    pq.Float64Array `db:"sample"`
	Energy    float64         `db:"energy"`
	Beta      float64         `db:"beta"`
	Sigma     float64         `db:"sigma"`
	UpdatedAt time.Time       `db:"updated_at"`
}

func toRow(runID string, s domain.ChainState) chainRow {
	return chainRow{
		RunID:     runID,
		StackID:   s.StackID,
		ChainID:   s.ChainID,
		Sample:    pq.Float64Array(s.Sample),
		Energy:    s.Energy,
		Beta:      s.Beta,
		Sigma:     s.Sigma,
		UpdatedAt: s.UpdatedAt,
	}
}

func (r chainRow) state() domain.ChainState {
	return domain.ChainState{
		StackID:   r.StackID,
		ChainID:   r.ChainID,
		Sample:    []float64(r.Sample),
		Energy:    r.Energy,
		Beta:      r.Beta,
		Sigma:     r.Sigma,
		UpdatedAt: r.UpdatedAt,
	}
}

// ChainRepository implements the ChainStore interface with PostgreSQL
type ChainRepository struct {
	db     *sqlx.DB
	logger primary.Logger
}

// NewChainRepository creates a new PostgreSQL chain repository
func NewChainRepository(db *sqlx.DB, logger primary.Logger) *ChainRepository {
	return &ChainRepository{
		db:     db,
		logger: logger,
	}
}

// Migrate creates the chain table if it does not exist
func (r *ChainRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createTable); err != nil {
		return fmt.Errorf("failed to create chain table: %w", err)
	}
	return nil
}

// SaveStates upserts every chain of a run in one transaction
func (r *ChainRepository) SaveStates(ctx context.Context, runID string, states []domain.ChainState) error {
	if len(states) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for start := 0; start < len(states); start += batchSize {
		end := start + batchSize
		if end > len(states) {
			end = len(states)
		}

		query, args, err := upsertQuery(runID, states[start:end])
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
			r.logger.Error("Failed to save chain states", "runId", runID, "error", err)
			return fmt.Errorf("failed to save chain states: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chain states: %w", err)
	}
	return nil
}

// LoadStates returns a run's chains ordered by id
func (r *ChainRepository) LoadStates(ctx context.Context, runID string) ([]domain.ChainState, error) {
	query, args, err := querybuilder.NewQueryBuilder(schema).
		Select(chainColumns...).
		From(chainTable).
		Where("run_id = ?", runID).
		OrderBy("chain_id", true).
		Build()
	if err != nil {
		return nil, err
	}

	var rows []chainRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		r.logger.Error("Failed to load chain states", "runId", runID, "error", err)
		return nil, fmt.Errorf("failed to load chain states: %w", err)
	}

	states := make([]domain.ChainState, len(rows))
	for i, row := range rows {
		states[i] = row.state()
	}
	return states, nil
}

func upsertQuery(runID string, states []domain.ChainState) (string, []interface{}, error) {
	qb := querybuilder.NewQueryBuilder(schema).
		Insert(chainColumns...).
		Into(chainTable).
		OnConflict("run_id", "chain_id").
		SetExclude("stack_id", "sample", "energy", "beta", "sigma", "updated_at")

	for _, s := range states {
		row := toRow(runID, s)
		qb.Values(row.RunID, row.StackID, row.ChainID, row.Sample, row.Energy, row.Beta, row.Sigma, row.UpdatedAt)
	}
	return qb.Build()
}
