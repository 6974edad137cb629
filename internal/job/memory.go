package job

import (
	"context"
	"sync"

	"github.com/r3e-collective/ticketflow/internal/domain"
)

// MemoryStore is an in-memory job Store for tests and local development.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[string]domain.IngestionJob
	logs []domain.IngestionLogEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]domain.IngestionJob)}
}

func (s *MemoryStore) Create(ctx context.Context, j domain.IngestionJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[j.JobID] = j
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, j domain.IngestionJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[j.JobID]; !ok {
		return ErrNotFound
	}
	s.jobs[j.JobID] = j
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, jobID string) (domain.IngestionJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return domain.IngestionJob{}, ErrNotFound
	}
	return j, nil
}

func (s *MemoryStore) LatestForTenant(ctx context.Context, tenantID string) (domain.IngestionJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest domain.IngestionJob
	found := false
	for _, j := range s.jobs {
		if j.TenantID != tenantID {
			continue
		}
		if !found || j.StartedAt.After(latest.StartedAt) {
			latest = j
			found = true
		}
	}
	if !found {
		return domain.IngestionJob{}, ErrNotFound
	}
	return latest, nil
}

func (s *MemoryStore) AppendLog(ctx context.Context, entry domain.IngestionLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, entry)
	return nil
}
