package history

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/r3e-collective/ticketflow/internal/domain"
)

// MemoryLog is an in-memory history Log for tests and local development.
type MemoryLog struct {
	mu      sync.Mutex
	entries []domain.HistoryEntry
	nextID  int64
	now     func() time.Time
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{now: time.Now}
}

func (l *MemoryLog) Record(ctx context.Context, entry domain.HistoryEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	entry.ID = l.nextID
	entry.RecordedAt = l.now().UTC()
	l.entries = append(l.entries, entry)
	return nil
}

func (l *MemoryLog) List(ctx context.Context, tenantID, ticketID string) ([]domain.HistoryEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var matched []domain.HistoryEntry
	for _, e := range l.entries {
		if e.TenantID == tenantID && e.TicketID == ticketID {
			matched = append(matched, e)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].RecordedAt.Equal(matched[j].RecordedAt) {
			return matched[i].RecordedAt.After(matched[j].RecordedAt)
		}
		return matched[i].ID > matched[j].ID
	})
	return matched, nil
}
