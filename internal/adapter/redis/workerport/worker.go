package workerport

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/darrnshn/stateline/internal/core/ports/primary"
	"github.com/darrnshn/stateline/internal/core/ports/secondary"
	"github.com/darrnshn/stateline/internal/domain"
)

const (
	workerKeyPrefix  = "stateline:worker:"
	workerTypePrefix = "stateline:workertype:"
	scanBatch        = 100
)

var _ secondary.WorkerRegistryMirror = &WorkerRepository{}

// WorkerRepository mirrors the delegator's worker registry into Redis. Each
// worker is a JSON value that expires unless refreshed, and each job type is
// a set of worker identities.
type WorkerRepository struct {
	redisClient *redis.Client
	expiration  time.Duration
	logger      primary.Logger
}

// NewWorkerRepository creates a new Redis worker repository. Entries expire
// after the given duration unless synced again.
func NewWorkerRepository(redisClient *redis.Client, expiration time.Duration, logger primary.Logger) *WorkerRepository {
	return &WorkerRepository{
		redisClient: redisClient,
		expiration:  expiration,
		logger:      logger,
	}
}

func workerKey(identity string) string {
	return workerKeyPrefix + identity
}

func typeKey(jobType domain.JobType) string {
	return workerTypePrefix + strconv.FormatUint(uint64(jobType), 10)
}

// parseTypeKey is the inverse of typeKey
func parseTypeKey(key string) (domain.JobType, bool) {
	if !strings.HasPrefix(key, workerTypePrefix) {
		return 0, false
	}
	v, err := strconv.ParseUint(strings.TrimPrefix(key, workerTypePrefix), 10, 32)
	if err != nil {
		return 0, false
	}
	return domain.JobType(v), true
}

// Sync writes every worker in one pipeline and deletes mirrored workers the
// snapshot no longer contains
func (r *WorkerRepository) Sync(ctx context.Context, workers []domain.WorkerInfo) error {
	live := make(map[string]struct{}, len(workers))
	pipe := r.redisClient.TxPipeline()
	for i := range workers {
		w := &workers[i]
		live[w.Identity] = struct{}{}

		workerJSON, err := json.Marshal(w)
		if err != nil {
			return fmt.Errorf("failed to marshal worker info: %w", err)
		}
		pipe.Set(ctx, workerKey(w.Identity), workerJSON, r.expiration)
		for _, t := range w.JobTypes {
			pipe.SAdd(ctx, typeKey(t), w.Identity)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Error("Failed to sync worker registry", "error", err)
		return fmt.Errorf("failed to sync worker registry: %w", err)
	}

	keys, err := r.scan(ctx, workerKeyPrefix+"*")
	if err != nil {
		return err
	}
	var stale []string
	for _, key := range keys {
		if _, ok := live[strings.TrimPrefix(key, workerKeyPrefix)]; !ok {
			stale = append(stale, key)
		}
	}
	if len(stale) > 0 {
		if err := r.redisClient.Del(ctx, stale...).Err(); err != nil {
			return fmt.Errorf("failed to delete departed workers: %w", err)
		}
		r.logger.Debug("Removed departed workers from mirror", "count", len(stale))
	}
	return nil
}

// GetAllWorkers retrieves all worker information from Redis.
func (r *WorkerRepository) GetAllWorkers(ctx context.Context) ([]*domain.WorkerInfo, error) {
	keys, err := r.scan(ctx, workerKeyPrefix+"*")
	if err != nil {
		return nil, err
	}
	return r.load(ctx, keys)
}

// GetWorkersByType retrieves the workers registered for a job type
func (r *WorkerRepository) GetWorkersByType(ctx context.Context, jobType domain.JobType) ([]*domain.WorkerInfo, error) {
	identities, err := r.redisClient.SMembers(ctx, typeKey(jobType)).Result()
	if err != nil {
		r.logger.Error("Failed to get worker IDs", "jobType", jobType, "error", err)
		return nil, fmt.Errorf("failed to get worker IDs: %w", err)
	}

	keys := make([]string, len(identities))
	for i, id := range identities {
		keys[i] = workerKey(id)
	}
	return r.load(ctx, keys)
}

// GetWorkerTypes lists the job types with an index set, ascending
func (r *WorkerRepository) GetWorkerTypes(ctx context.Context) ([]domain.JobType, error) {
	keys, err := r.scan(ctx, workerTypePrefix+"*")
	if err != nil {
		return nil, err
	}

	types := make([]domain.JobType, 0, len(keys))
	for _, key := range keys {
		if t, ok := parseTypeKey(key); ok {
			types = append(types, t)
		}
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types, nil
}

// RemoveInactiveWorkers deletes workers whose last heartbeat is before the
// cutoff and drops expired identities from the type index
func (r *WorkerRepository) RemoveInactiveWorkers(ctx context.Context, cutoffTime time.Time) error {
	workers, err := r.GetAllWorkers(ctx)
	if err != nil {
		return err
	}
	for _, w := range workers {
		if w.LastHeartbeat.Before(cutoffTime) {
			if err := r.redisClient.Del(ctx, workerKey(w.Identity)).Err(); err != nil {
				r.logger.Error("Failed to remove inactive worker", "identity", w.Identity, "error", err)
			}
		}
	}

	typeKeys, err := r.scan(ctx, workerTypePrefix+"*")
	if err != nil {
		return err
	}
	for _, tk := range typeKeys {
		identities, err := r.redisClient.SMembers(ctx, tk).Result()
		if err != nil {
			r.logger.Error("Failed to get worker IDs", "typeKey", tk, "error", err)
			continue
		}

		for _, id := range identities {
			exists, err := r.redisClient.Exists(ctx, workerKey(id)).Result()
			if err != nil {
				r.logger.Error("Failed to check if worker exists", "identity", id, "error", err)
				continue
			}
			if exists == 0 {
				if err := r.redisClient.SRem(ctx, tk, id).Err(); err != nil {
					r.logger.Error("Failed to remove worker from type index", "identity", id, "error", err)
				}
			}
		}
	}
	return nil
}

func (r *WorkerRepository) scan(ctx context.Context, pattern string) ([]string, error) {
	var cursor uint64
	var keys []string
	for {
		batch, next, err := r.redisClient.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", pattern, err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}

// load fetches worker values with MGET, skipping keys that have expired
func (r *WorkerRepository) load(ctx context.Context, keys []string) ([]*domain.WorkerInfo, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	values, err := r.redisClient.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve worker data: %w", err)
	}
	return decodeWorkers(values)
}

func decodeWorkers(values []interface{}) ([]*domain.WorkerInfo, error) {
	workers := make([]*domain.WorkerInfo, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var worker domain.WorkerInfo
		if err := json.Unmarshal([]byte(s), &worker); err != nil {
			return nil, fmt.Errorf("failed to unmarshal worker data: %w", err)
		}
		workers = append(workers, &worker)
	}
	sort.Slice(workers, func(i, j int) bool { return workers[i].Identity < workers[j].Identity })
	return workers, nil
}
