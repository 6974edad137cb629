// Package lock implements a distributed mutual-exclusion service:
// at-most-one ingestion job per tenant across replicas, with zombie-lock
// reclamation via TTL expiry.
package lock

import (
	"context"
	"errors"
	"time"

	"github.com/r3e-collective/ticketflow/internal/domain"
)

// DefaultTTL is the lock lease length; long-running owners must refresh at
// intervals <= DefaultTTL/2.
const DefaultTTL = 60 * time.Second

// ErrNotFound is returned by Status when no lock record exists for a
// resource; it must be distinguishable from a held lock.
var ErrNotFound = errors.New("lock: no record for resource")

// Service is the distributed lock contract. Acquire MUST be a single
// atomic compare-and-set against the shared store — an implementation
// that checks-then-writes as two operations reintroduces the exact race
// this service exists to eliminate.
type Service interface {
	// Acquire succeeds iff no live lock currently excludes ownerID.
	Acquire(ctx context.Context, resourceID, ownerID string, ttl time.Duration) (bool, error)
	// Release succeeds iff the stored owner matches ownerID.
	Release(ctx context.Context, resourceID, ownerID string) (bool, error)
	// Refresh extends expiry by ttl iff ownerID is the live owner.
	Refresh(ctx context.Context, resourceID, ownerID string, ttl time.Duration) (bool, error)
	// Status returns the current record, or ErrNotFound if none exists.
	Status(ctx context.Context, resourceID string) (domain.LockRecord, error)
}
