package job

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/r3e-collective/ticketflow/internal/domain"
)

// PostgresStore backs the job Store with the ingestion_jobs and
// ingestion_logs tables.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, j domain.IngestionJob) error {
	const q = `
		INSERT INTO ingestion_jobs
			(job_id, tenant_id, status, started_at, ended_at, total_pages,
			 processed_pages, new_ingested, updated, errors)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.db.ExecContext(ctx, q,
		j.JobID, j.TenantID, j.Status, j.StartedAt, j.EndedAt, j.TotalPages,
		j.ProcessedPages, j.NewIngested, j.Updated, j.Errors,
	)
	if err != nil {
		return fmt.Errorf("job: create %s: %w", j.JobID, err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, j domain.IngestionJob) error {
	const q = `
		UPDATE ingestion_jobs
		SET status = $2, ended_at = $3, total_pages = $4, processed_pages = $5,
		    new_ingested = $6, updated = $7, errors = $8
		WHERE job_id = $1
	`
	res, err := s.db.ExecContext(ctx, q,
		j.JobID, j.Status, j.EndedAt, j.TotalPages, j.ProcessedPages, j.NewIngested, j.Updated, j.Errors,
	)
	if err != nil {
		return fmt.Errorf("job: update %s: %w", j.JobID, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("job: update %s rows affected: %w", j.JobID, err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, jobID string) (domain.IngestionJob, error) {
	const q = `
		SELECT job_id, tenant_id, status, started_at, ended_at, total_pages,
		       processed_pages, new_ingested, updated, errors
		FROM ingestion_jobs
		WHERE job_id = $1
	`
	j, err := scanJob(s.db.QueryRowContext(ctx, q, jobID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.IngestionJob{}, ErrNotFound
	}
	if err != nil {
		return domain.IngestionJob{}, fmt.Errorf("job: get %s: %w", jobID, err)
	}
	return j, nil
}

func (s *PostgresStore) LatestForTenant(ctx context.Context, tenantID string) (domain.IngestionJob, error) {
	const q = `
		SELECT job_id, tenant_id, status, started_at, ended_at, total_pages,
		       processed_pages, new_ingested, updated, errors
		FROM ingestion_jobs
		WHERE tenant_id = $1
		ORDER BY started_at DESC
		LIMIT 1
	`
	j, err := scanJob(s.db.QueryRowContext(ctx, q, tenantID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.IngestionJob{}, ErrNotFound
	}
	if err != nil {
		return domain.IngestionJob{}, fmt.Errorf("job: latest for tenant %s: %w", tenantID, err)
	}
	return j, nil
}

func (s *PostgresStore) AppendLog(ctx context.Context, entry domain.IngestionLogEntry) error {
	const q = `
		INSERT INTO ingestion_logs (job_id, recorded_at, level, message)
		VALUES ($1, now(), $2, $3)
	`
	if _, err := s.db.ExecContext(ctx, q, entry.JobID, entry.Status, entry.Summary); err != nil {
		return fmt.Errorf("job: append log for %s: %w", entry.JobID, err)
	}
	return nil
}

func scanJob(row *sql.Row) (domain.IngestionJob, error) {
	var j domain.IngestionJob
	err := row.Scan(
		&j.JobID, &j.TenantID, &j.Status, &j.StartedAt, &j.EndedAt, &j.TotalPages,
		&j.ProcessedPages, &j.NewIngested, &j.Updated, &j.Errors,
	)
	if err != nil {
		return domain.IngestionJob{}, err
	}
	return j, nil
}
