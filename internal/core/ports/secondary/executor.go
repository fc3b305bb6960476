package secondary

import (
	"context"

	"github.com/darrnshn/stateline/internal/domain"
)

// JobExecutor evaluates jobs on the worker side
type JobExecutor interface {
	// Execute runs one job. An error means the worker can no longer serve jobs.
	Execute(ctx context.Context, job domain.JobData) (domain.ResultData, error)
}
