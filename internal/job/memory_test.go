package job

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/r3e-collective/ticketflow/internal/domain"
)

func TestMemoryStoreCreateThenGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	j := domain.IngestionJob{JobID: "job-1", TenantID: "tenant-a", Status: domain.JobRunning, StartedAt: time.Now()}

	if err := s.Create(ctx, j); err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := s.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.JobRunning {
		t.Fatalf("expected running, got %v", got.Status)
	}
}

func TestMemoryStoreUpdateMissingReturnsNotFound(t *testing.T) {
	s := NewMemoryStore()
	err := s.Update(context.Background(), domain.IngestionJob{JobID: "missing"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreLatestForTenantReturnsMostRecent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	older := domain.IngestionJob{JobID: "job-1", TenantID: "tenant-a", StartedAt: time.Now().Add(-time.Hour)}
	newer := domain.IngestionJob{JobID: "job-2", TenantID: "tenant-a", StartedAt: time.Now()}

	if err := s.Create(ctx, older); err != nil {
		t.Fatalf("create older: %v", err)
	}
	if err := s.Create(ctx, newer); err != nil {
		t.Fatalf("create newer: %v", err)
	}

	latest, err := s.LatestForTenant(ctx, "tenant-a")
	if err != nil {
		t.Fatalf("latest for tenant: %v", err)
	}
	if latest.JobID != "job-2" {
		t.Fatalf("expected job-2 as latest, got %s", latest.JobID)
	}
}

func TestMemoryStoreLatestForTenantNotFound(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.LatestForTenant(context.Background(), "tenant-missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
