package sync

import (
	"context"
	"testing"
	"time"

	"github.com/r3e-collective/ticketflow/internal/domain"
	"github.com/r3e-collective/ticketflow/internal/history"
	"github.com/r3e-collective/ticketflow/internal/store"
)

func newEngine() (*Engine, *store.MemoryStore, *history.MemoryLog) {
	s := store.NewMemoryStore()
	log := history.NewMemoryLog()
	return New(s, log), s, log
}

func baseInput(tenantID, externalID string, updatedAt time.Time) Input {
	return Input{
		TenantID:       tenantID,
		ExternalID:     externalID,
		Source:         "zendesk",
		CustomerID:     "cust-1",
		Subject:        "help",
		Message:        "my order is broken",
		Status:         domain.StatusOpen,
		CreatedAt:      updatedAt,
		UpdatedAt:      updatedAt,
		Classification: domain.Classification{Urgency: domain.UrgencyHigh, Sentiment: domain.SentimentNegative, RequiresAction: true},
	}
}

func TestSyncTicketCreatesWhenAbsent(t *testing.T) {
	engine, s, log := newEngine()
	ctx := context.Background()
	now := time.Now()

	action, err := engine.SyncTicket(ctx, baseInput("tenant-a", "ext-1", now))
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if action != ActionCreated {
		t.Fatalf("expected created, got %v", action)
	}

	got, err := s.Get(ctx, "tenant-a", "ext-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Urgency != domain.UrgencyHigh {
		t.Fatalf("expected classification applied, got %+v", got)
	}

	entries, err := log.List(ctx, "tenant-a", "ext-1")
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	if len(entries) != 1 || entries[0].Action != domain.HistoryCreated {
		t.Fatalf("expected one created history entry, got %+v", entries)
	}
}

func TestSyncTicketUnchangedWhenNotNewer(t *testing.T) {
	engine, _, log := newEngine()
	ctx := context.Background()
	now := time.Now()

	if _, err := engine.SyncTicket(ctx, baseInput("tenant-a", "ext-1", now)); err != nil {
		t.Fatalf("initial sync: %v", err)
	}

	action, err := engine.SyncTicket(ctx, baseInput("tenant-a", "ext-1", now))
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if action != ActionUnchanged {
		t.Fatalf("expected unchanged, got %v", action)
	}

	entries, err := log.List(ctx, "tenant-a", "ext-1")
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected no additional history entry, got %d", len(entries))
	}
}

func TestSyncTicketUpdatesWhenNewer(t *testing.T) {
	engine, _, log := newEngine()
	ctx := context.Background()
	now := time.Now()

	if _, err := engine.SyncTicket(ctx, baseInput("tenant-a", "ext-1", now)); err != nil {
		t.Fatalf("initial sync: %v", err)
	}

	later := baseInput("tenant-a", "ext-1", now.Add(time.Minute))
	later.Status = domain.StatusClosed
	action, err := engine.SyncTicket(ctx, later)
	if err != nil {
		t.Fatalf("update sync: %v", err)
	}
	if action != ActionUpdated {
		t.Fatalf("expected updated, got %v", action)
	}

	entries, err := log.List(ctx, "tenant-a", "ext-1")
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	if len(entries) != 2 || entries[0].Action != domain.HistoryUpdated {
		t.Fatalf("expected updated history entry first, got %+v", entries)
	}
	if change, ok := entries[0].Changes["status"]; !ok || change.New != "closed" {
		t.Fatalf("expected status diff in history, got %+v", entries[0].Changes)
	}
}

func TestDetectDeletionsSoftDeletesMissingTickets(t *testing.T) {
	engine, s, log := newEngine()
	ctx := context.Background()
	now := time.Now()

	if _, err := engine.SyncTicket(ctx, baseInput("tenant-a", "ext-1", now)); err != nil {
		t.Fatalf("sync ext-1: %v", err)
	}
	if _, err := engine.SyncTicket(ctx, baseInput("tenant-a", "ext-2", now)); err != nil {
		t.Fatalf("sync ext-2: %v", err)
	}

	count, err := engine.DetectDeletions(ctx, "tenant-a", []string{"ext-1"})
	if err != nil {
		t.Fatalf("detect deletions: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 deletion, got %d", count)
	}

	deleted, err := s.Get(ctx, "tenant-a", "ext-2")
	if err != nil {
		t.Fatalf("get ext-2: %v", err)
	}
	if deleted.DeletedAt == nil {
		t.Fatalf("expected ext-2 soft-deleted")
	}

	entries, err := log.List(ctx, "tenant-a", "ext-2")
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	if len(entries) != 2 || entries[0].Action != domain.HistoryDeleted {
		t.Fatalf("expected deleted history entry first, got %+v", entries)
	}
}

func TestDetectDeletionsNoopWhenNothingMissing(t *testing.T) {
	engine, _, _ := newEngine()
	ctx := context.Background()
	now := time.Now()

	if _, err := engine.SyncTicket(ctx, baseInput("tenant-a", "ext-1", now)); err != nil {
		t.Fatalf("sync: %v", err)
	}

	count, err := engine.DetectDeletions(ctx, "tenant-a", []string{"ext-1"})
	if err != nil {
		t.Fatalf("detect deletions: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no deletions, got %d", count)
	}
}
