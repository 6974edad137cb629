package lock

import (
	"context"
	"sync"
	"time"

	"github.com/r3e-collective/ticketflow/internal/domain"
)

// MemoryService is an in-process Service implementation used for unit tests
// and single-replica development. The single mutex makes Acquire's
// check-and-write atomic in exactly the way the Postgres implementation
// achieves via INSERT ... ON CONFLICT.
type MemoryService struct {
	mu      sync.Mutex
	records map[string]domain.LockRecord
	now     func() time.Time
}

func NewMemoryService() *MemoryService {
	return &MemoryService{records: make(map[string]domain.LockRecord), now: time.Now}
}

func (s *MemoryService) Acquire(ctx context.Context, resourceID, ownerID string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	existing, found := s.records[resourceID]
	if found && existing.Locked && !existing.IsExpired(now) {
		return false, nil
	}

	s.records[resourceID] = domain.LockRecord{
		ResourceID: resourceID,
		OwnerID:    ownerID,
		AcquiredAt: now,
		ExpiresAt:  now.Add(ttl),
		Locked:     true,
	}
	return true, nil
}

func (s *MemoryService) Release(ctx context.Context, resourceID, ownerID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, found := s.records[resourceID]
	if !found || existing.OwnerID != ownerID {
		return false, nil
	}
	existing.Locked = false
	s.records[resourceID] = existing
	return true, nil
}

func (s *MemoryService) Refresh(ctx context.Context, resourceID, ownerID string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, found := s.records[resourceID]
	if !found || existing.OwnerID != ownerID || !existing.Locked || existing.IsExpired(s.now()) {
		return false, nil
	}
	existing.ExpiresAt = s.now().Add(ttl)
	s.records[resourceID] = existing
	return true, nil
}

func (s *MemoryService) Status(ctx context.Context, resourceID string) (domain.LockRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, found := s.records[resourceID]
	if !found {
		return domain.LockRecord{}, ErrNotFound
	}
	return existing, nil
}
