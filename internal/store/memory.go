package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/r3e-collective/ticketflow/internal/domain"
)

// key identifies a ticket by its tenant-scoped unique index.
type key struct {
	tenantID   string
	externalID string
}

// MemoryStore is an in-memory TicketStore for tests and local development.
// All tenant/soft-delete filtering happens here exactly as it would in a
// SQL WHERE clause, so behavior matches PostgresStore.
type MemoryStore struct {
	mu      sync.RWMutex
	tickets map[key]domain.Ticket
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tickets: make(map[key]domain.Ticket)}
}

func (s *MemoryStore) Get(ctx context.Context, tenantID, externalID string) (domain.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tickets[key{tenantID, externalID}]
	if !ok {
		return domain.Ticket{}, ErrNotFound
	}
	return t, nil
}

func (s *MemoryStore) Create(ctx context.Context, t domain.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key{t.TenantID, t.ExternalID}
	if _, exists := s.tickets[k]; exists {
		return ErrDuplicate
	}
	s.tickets[k] = t
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, t domain.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key{t.TenantID, t.ExternalID}
	if _, exists := s.tickets[k]; !exists {
		return ErrNotFound
	}
	s.tickets[k] = t
	return nil
}

func (s *MemoryStore) SoftDelete(ctx context.Context, tenantID string, externalIDs []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	count := 0
	for _, id := range externalIDs {
		k := key{tenantID, id}
		t, ok := s.tickets[k]
		if !ok || t.DeletedAt != nil {
			continue
		}
		deletedAt := now
		t.DeletedAt = &deletedAt
		s.tickets[k] = t
		count++
	}
	return count, nil
}

func (s *MemoryStore) List(ctx context.Context, tenantID string, filters domain.ListFilters, page domain.Page) ([]domain.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []domain.Ticket
	for _, t := range s.tickets {
		if t.TenantID != tenantID || t.DeletedAt != nil {
			continue
		}
		if filters.Status != "" && t.Status != filters.Status {
			continue
		}
		if filters.Urgency != "" && t.Urgency != filters.Urgency {
			continue
		}
		matched = append(matched, t)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	size := page.Size
	if size <= 0 {
		size = 50
	}
	start := page.Number * size
	if page.Number <= 0 {
		start = 0
	}
	if start >= len(matched) {
		return []domain.Ticket{}, nil
	}
	end := start + size
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], nil
}

func (s *MemoryStore) ActiveExternalIDs(ctx context.Context, tenantID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for _, t := range s.tickets {
		if t.TenantID == tenantID && t.DeletedAt == nil {
			ids = append(ids, t.ExternalID)
		}
	}
	return ids, nil
}

func (s *MemoryStore) Stats(ctx context.Context, tenantID string, trendSince time.Time) (domain.TenantStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := domain.TenantStats{ByStatus: make(map[domain.TicketStatus]int)}
	keywordCounts := make(map[string]int)
	negative := 0
	highUrgency := 0
	highOpenByCustomer := make(map[string]int)
	hourly := make(map[string]int)

	for _, t := range s.tickets {
		if t.TenantID != tenantID || t.DeletedAt != nil {
			continue
		}
		stats.TotalTickets++
		stats.ByStatus[t.Status]++
		if t.Urgency == domain.UrgencyHigh {
			highUrgency++
			if t.Status != domain.StatusClosed {
				highOpenByCustomer[t.CustomerID]++
			}
		}
		if t.Sentiment == domain.SentimentNegative {
			negative++
		}
		for _, kw := range t.MatchedKeywords {
			keywordCounts[kw]++
		}
		if !t.CreatedAt.Before(trendSince) {
			hourBucket := t.CreatedAt.UTC().Format("2006-01-02 15:00")
			hourly[hourBucket]++
		}
	}

	if stats.TotalTickets > 0 {
		stats.UrgencyHighRatio = float64(highUrgency) / float64(stats.TotalTickets)
		stats.NegativeSentRatio = float64(negative) / float64(stats.TotalTickets)
	}

	for hour, count := range hourly {
		stats.HourlyTrend = append(stats.HourlyTrend, domain.HourlyBucket{Hour: hour, Count: count})
	}
	sort.Slice(stats.HourlyTrend, func(i, j int) bool { return stats.HourlyTrend[i].Hour < stats.HourlyTrend[j].Hour })

	stats.TopKeywords = topN(keywordCounts, 10)

	for cust, n := range highOpenByCustomer {
		if n >= 2 {
			stats.AtRiskCustomers = append(stats.AtRiskCustomers, domain.AtRiskCustomer{CustomerID: cust, HighUrgencyOpenCount: n})
		}
	}
	sort.Slice(stats.AtRiskCustomers, func(i, j int) bool {
		return stats.AtRiskCustomers[i].HighUrgencyOpenCount > stats.AtRiskCustomers[j].HighUrgencyOpenCount
	})
	if len(stats.AtRiskCustomers) > 10 {
		stats.AtRiskCustomers = stats.AtRiskCustomers[:10]
	}

	return stats, nil
}

func topN(counts map[string]int, n int) []string {
	type kv struct {
		k string
		v int
	}
	var all []kv
	for k, v := range counts {
		all = append(all, kv{k, v})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].v != all[j].v {
			return all[i].v > all[j].v
		}
		return all[i].k < all[j].k
	})
	if len(all) > n {
		all = all[:n]
	}
	out := make([]string, 0, len(all))
	for _, e := range all {
		out = append(out, e.k)
	}
	return out
}
