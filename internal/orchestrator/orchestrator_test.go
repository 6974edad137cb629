package orchestrator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/r3e-collective/ticketflow/internal/domain"
	"github.com/r3e-collective/ticketflow/internal/history"
	"github.com/r3e-collective/ticketflow/internal/job"
	"github.com/r3e-collective/ticketflow/internal/lock"
	"github.com/r3e-collective/ticketflow/internal/ratelimit"
	storepkg "github.com/r3e-collective/ticketflow/internal/store"
	"github.com/r3e-collective/ticketflow/internal/sync"
	"github.com/r3e-collective/ticketflow/internal/upstream"
)

func newTestOrchestrator(t *testing.T, upstreamURL string) (*Orchestrator, *storepkg.MemoryStore, *job.MemoryStore) {
	t.Helper()
	limiter := ratelimit.New(ratelimit.Config{Limit: 1000, Window: time.Second})
	locks := lock.NewMemoryService()
	store := storepkg.NewMemoryStore()
	hist := history.NewMemoryLog()
	engine := sync.New(store, hist)
	jobs := job.NewMemoryStore()
	client := upstream.New(upstreamURL, nil)

	o := New(limiter, locks, client, engine, jobs, nil, nil, DefaultConfig())
	return o, store, jobs
}

func singlePageServer(t *testing.T, tickets []upstream.TicketPayload) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/external/support-tickets":
			page := upstream.Page{Tickets: tickets, NextPage: nil, TotalCount: len(tickets)}
			json.NewEncoder(w).Encode(page)
		case r.URL.Path == "/external/deleted-tickets":
			json.NewEncoder(w).Encode(upstream.DeletedIDsResponse{})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestRunIngestsAllTicketsOnOnePage(t *testing.T) {
	now := time.Now()
	tickets := []upstream.TicketPayload{
		{ExternalID: "t-1", Source: "email", CustomerID: "cust-1", Subject: "help", Message: "it is broken", Status: "open", CreatedAt: now, UpdatedAt: now},
		{ExternalID: "t-2", Source: "email", CustomerID: "cust-2", Subject: "hi", Message: "thanks for the help", Status: "open", CreatedAt: now, UpdatedAt: now},
	}
	srv := singlePageServer(t, tickets)
	defer srv.Close()

	o, store, jobs := newTestOrchestrator(t, srv.URL)

	result, err := o.Run(context.Background(), "tenant-a")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Status != domain.JobCompleted {
		t.Fatalf("expected completed, got %v", result.Status)
	}
	if result.NewIngested != 2 {
		t.Fatalf("expected 2 new tickets, got %d", result.NewIngested)
	}

	got, err := store.Get(context.Background(), "tenant-a", "t-1")
	if err != nil {
		t.Fatalf("get ticket: %v", err)
	}
	if got.ExternalID != "t-1" {
		t.Fatalf("expected t-1, got %s", got.ExternalID)
	}

	stored, err := jobs.Get(context.Background(), result.JobID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if stored.Status != domain.JobCompleted {
		t.Fatalf("expected persisted job completed, got %v", stored.Status)
	}
}

func TestRunReturnsAlreadyRunningWhenLockHeld(t *testing.T) {
	srv := singlePageServer(t, nil)
	defer srv.Close()

	o, _, _ := newTestOrchestrator(t, srv.URL)
	locks := o.locks

	ok, err := locks.Acquire(context.Background(), "ingest:tenant-a", "someone-else", time.Minute)
	if err != nil || !ok {
		t.Fatalf("setup acquire: ok=%v err=%v", ok, err)
	}

	_, err = o.Run(context.Background(), "tenant-a")
	if err != ErrAlreadyRunning {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
}

func TestRunReleasesLockOnCompletion(t *testing.T) {
	srv := singlePageServer(t, nil)
	defer srv.Close()

	o, _, _ := newTestOrchestrator(t, srv.URL)
	if _, err := o.Run(context.Background(), "tenant-a"); err != nil {
		t.Fatalf("run: %v", err)
	}

	status, err := o.locks.Status(context.Background(), "ingest:tenant-a")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Locked {
		t.Fatalf("expected lock released after completion")
	}
}

func TestRunDetectsDeletions(t *testing.T) {
	now := time.Now()
	srv := singlePageServer(t, nil)
	defer srv.Close()

	o, store, _ := newTestOrchestrator(t, srv.URL)
	if err := store.Create(context.Background(), domain.Ticket{
		TenantID: "tenant-a", ExternalID: "gone-1", Status: domain.StatusOpen,
		CreatedAt: now.Add(-time.Hour), UpdatedAt: now.Add(-time.Hour),
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := o.Run(context.Background(), "tenant-a"); err != nil {
		t.Fatalf("run: %v", err)
	}

	ticket, err := store.Get(context.Background(), "tenant-a", "gone-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ticket.DeletedAt == nil {
		t.Fatalf("expected ticket to be soft deleted")
	}
}

func TestCancelRegistrySetIsSetClear(t *testing.T) {
	var r cancelRegistry
	if r.isSet("job-1") {
		t.Fatal("expected unset flag for unknown job")
	}
	r.set("job-1")
	if !r.isSet("job-1") {
		t.Fatal("expected flag to be set")
	}
	r.clear("job-1")
	if r.isSet("job-1") {
		t.Fatal("expected flag to be cleared")
	}
}
