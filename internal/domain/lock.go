package domain

import "time"

// LockRecord is the observable shape of a distributed lock. A record with
// Locked=true and ExpiresAt > now excludes all other owners; a record whose
// ExpiresAt has passed is reclaimable by any caller.
type LockRecord struct {
	ResourceID string
	OwnerID    string
	AcquiredAt time.Time
	ExpiresAt  time.Time
	Locked     bool
}

// IsExpired reports whether the lock is no longer live as of now.
func (l LockRecord) IsExpired(now time.Time) bool {
	return !l.ExpiresAt.After(now)
}
