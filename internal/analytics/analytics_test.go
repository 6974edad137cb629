package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/r3e-collective/ticketflow/internal/domain"
	"github.com/r3e-collective/ticketflow/internal/store"
)

func sampleTicket(tenantID, externalID string) domain.Ticket {
	now := time.Now()
	return domain.Ticket{
		TenantID: tenantID, ExternalID: externalID, Status: domain.StatusOpen,
		Urgency: domain.UrgencyHigh, Sentiment: domain.SentimentNegative,
		CreatedAt: now, UpdatedAt: now,
	}
}

func TestComputeReturnsStoreAggregation(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	if err := s.Create(ctx, sampleTicket("tenant-a", "t-1")); err != nil {
		t.Fatalf("create: %v", err)
	}

	p := New(s)
	stats, err := p.Compute(ctx, "tenant-a")
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if stats.TotalTickets != 1 {
		t.Fatalf("expected 1 ticket, got %d", stats.TotalTickets)
	}
}

type slowStore struct {
	store.TicketStore
	delay time.Duration
}

func (s slowStore) Stats(ctx context.Context, tenantID string, trendSince time.Time) (domain.TenantStats, error) {
	select {
	case <-time.After(s.delay):
		return domain.TenantStats{}, nil
	case <-ctx.Done():
		return domain.TenantStats{}, ctx.Err()
	}
}

func TestComputeReturnsBudgetExceededOnSlowStore(t *testing.T) {
	p := New(slowStore{delay: time.Second})
	p.budget = 10 * time.Millisecond

	_, err := p.Compute(context.Background(), "tenant-a")
	if err != ErrBudgetExceeded {
		t.Fatalf("expected ErrBudgetExceeded, got %v", err)
	}
}
