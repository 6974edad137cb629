package domain

import "time"

// JobStatus is the lifecycle state of an IngestionJob. Transitions are
// monotonic: Running -> {Completed | Failed | Cancelled} only.
type JobStatus string

const (
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// IngestionJob is the one-per-run progress and outcome record for a single
// tenant ingestion. At most one Running job may exist per TenantID at any
// instant; that invariant is enforced by the Lock Service, not by a query
// against this record.
type IngestionJob struct {
	JobID          string
	TenantID       string
	Status         JobStatus
	StartedAt      time.Time
	EndedAt        *time.Time
	TotalPages     *int
	ProcessedPages int
	NewIngested    int
	Updated        int
	Errors         int
}

// IngestionLogEntry is an observability record written once per terminal
// job transition.
type IngestionLogEntry struct {
	JobID      string
	TenantID   string
	Status     JobStatus
	RecordedAt time.Time
	Summary    string
}
