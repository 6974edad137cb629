package lock

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/r3e-collective/ticketflow/internal/domain"
)

// PostgresService backs the distributed lock with one atomic SQL statement
// per operation (an INSERT ... ON CONFLICT upsert for Acquire, a conditional
// UPDATE for Release and Refresh, a SELECT for Status), wrapping every SQL
// error with the operation name. Acquire is deliberately a single round
// trip: a separate SELECT-then-UPDATE would reopen the exact TOCTOU race the
// lock service exists to close.
type PostgresService struct {
	db *sql.DB
}

func NewPostgresService(db *sql.DB) *PostgresService {
	return &PostgresService{db: db}
}

// Acquire performs an atomic "insert, or steal if expired/unlocked" upsert.
// The WHERE clause on the conflict target means a live, foreign-owned lock
// silently fails to match any row, so RETURNING yields sql.ErrNoRows — that
// is the normal "contention" outcome, not an error.
func (s *PostgresService) Acquire(ctx context.Context, resourceID, ownerID string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	expires := now.Add(ttl)

	const query = `
		INSERT INTO distributed_locks (resource_id, owner_id, acquired_at, expires_at, locked)
		VALUES ($1, $2, $3, $4, true)
		ON CONFLICT (resource_id) DO UPDATE
		SET owner_id = EXCLUDED.owner_id,
		    acquired_at = EXCLUDED.acquired_at,
		    expires_at = EXCLUDED.expires_at,
		    locked = true
		WHERE distributed_locks.locked = false OR distributed_locks.expires_at <= $3
		RETURNING owner_id`

	var returnedOwner string
	err := s.db.QueryRowContext(ctx, query, resourceID, ownerID, now, expires).Scan(&returnedOwner)
	switch {
	case err == sql.ErrNoRows:
		return false, nil
	case err != nil:
		return false, fmt.Errorf("lock acquire %s: %w", resourceID, err)
	}
	return returnedOwner == ownerID, nil
}

// Release clears the locked flag iff ownerID is the current owner.
func (s *PostgresService) Release(ctx context.Context, resourceID, ownerID string) (bool, error) {
	const query = `
		UPDATE distributed_locks
		SET locked = false
		WHERE resource_id = $1 AND owner_id = $2`

	res, err := s.db.ExecContext(ctx, query, resourceID, ownerID)
	if err != nil {
		return false, fmt.Errorf("lock release %s: %w", resourceID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("lock release rows affected %s: %w", resourceID, err)
	}
	return n > 0, nil
}

// Refresh extends expires_at by ttl iff ownerID currently holds a live lock.
func (s *PostgresService) Refresh(ctx context.Context, resourceID, ownerID string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	const query = `
		UPDATE distributed_locks
		SET expires_at = $4
		WHERE resource_id = $1 AND owner_id = $2 AND locked = true AND expires_at > $3`

	res, err := s.db.ExecContext(ctx, query, resourceID, ownerID, now, now.Add(ttl))
	if err != nil {
		return false, fmt.Errorf("lock refresh %s: %w", resourceID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("lock refresh rows affected %s: %w", resourceID, err)
	}
	return n > 0, nil
}

// Status returns the current lock record, or ErrNotFound if none exists.
func (s *PostgresService) Status(ctx context.Context, resourceID string) (domain.LockRecord, error) {
	const query = `
		SELECT resource_id, owner_id, acquired_at, expires_at, locked
		FROM distributed_locks
		WHERE resource_id = $1`

	var rec domain.LockRecord
	err := s.db.QueryRowContext(ctx, query, resourceID).Scan(
		&rec.ResourceID, &rec.OwnerID, &rec.AcquiredAt, &rec.ExpiresAt, &rec.Locked,
	)
	switch {
	case err == sql.ErrNoRows:
		return domain.LockRecord{}, ErrNotFound
	case err != nil:
		return domain.LockRecord{}, fmt.Errorf("lock status %s: %w", resourceID, err)
	}
	return rec, nil
}
