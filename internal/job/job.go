// Package job persists ingestion job records: the one-per-run progress
// and outcome record the orchestrator writes as it drives a tenant
// ingestion, plus the terminal-transition log.
package job

import (
	"context"
	"errors"

	"github.com/r3e-collective/ticketflow/internal/domain"
)

// ErrNotFound is returned when no job matches the given id.
var ErrNotFound = errors.New("job: not found")

// Store persists ingestion jobs and their terminal-transition log.
type Store interface {
	// Create inserts a new running job.
	Create(ctx context.Context, j domain.IngestionJob) error

	// Update persists the job's current progress counters and status.
	// Callers hold the tenant's distributed lock for the duration of the
	// job, so this never races another writer for the same job_id.
	Update(ctx context.Context, j domain.IngestionJob) error

	// Get looks up a job by id.
	Get(ctx context.Context, jobID string) (domain.IngestionJob, error)

	// LatestForTenant returns the most recently started job for a tenant,
	// or ErrNotFound if none exists.
	LatestForTenant(ctx context.Context, tenantID string) (domain.IngestionJob, error)

	// AppendLog records one terminal-transition log entry.
	AppendLog(ctx context.Context, entry domain.IngestionLogEntry) error
}
