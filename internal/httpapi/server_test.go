package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/r3e-collective/ticketflow/internal/analytics"
	"github.com/r3e-collective/ticketflow/internal/domain"
	"github.com/r3e-collective/ticketflow/internal/history"
	"github.com/r3e-collective/ticketflow/internal/job"
	"github.com/r3e-collective/ticketflow/internal/lock"
	"github.com/r3e-collective/ticketflow/internal/orchestrator"
	"github.com/r3e-collective/ticketflow/internal/ratelimit"
	"github.com/r3e-collective/ticketflow/internal/resilience"
	"github.com/r3e-collective/ticketflow/internal/store"
	"github.com/r3e-collective/ticketflow/internal/sync"
	"github.com/r3e-collective/ticketflow/internal/upstream"
	"github.com/r3e-collective/ticketflow/pkg/logger"
)

func newTestServer(t *testing.T) (*Server, store.TicketStore) {
	t.Helper()
	s := store.NewMemoryStore()
	hist := history.NewMemoryLog()
	jobs := job.NewMemoryStore()
	locks := lock.NewMemoryService()
	breakers := resilience.NewRegistry()
	breakers.RegisterOnce("notifier", resilience.DefaultConfig())
	planner := analytics.New(s)

	limiter := ratelimit.New(ratelimit.Config{Limit: 1000, Window: time.Second})
	client := upstream.New("http://127.0.0.1:0", nil)
	engine := sync.New(s, hist)
	log := logger.NewDefault("orchestrator-test")
	orch := orchestrator.New(limiter, locks, client, engine, jobs, nil, log, orchestrator.DefaultConfig())

	return &Server{
		Store:        s,
		History:      hist,
		Jobs:         jobs,
		Locks:        locks,
		Breakers:     breakers,
		Planner:      planner,
		Orchestrator: orch,
	}, s
}

func TestHandleListTicketsRequiresTenantID(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/tenants//tickets", nil)
	req.SetPathValue("tenant_id", "")
	rec := httptest.NewRecorder()

	srv.handleListTickets(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleListTicketsReturnsTenantScopedResults(t *testing.T) {
	srv, s := newTestServer(t)
	now := time.Now()
	if err := s.Create(req(t).Context(), domain.Ticket{
		TenantID: "tenant-a", ExternalID: "t-1", Status: domain.StatusOpen, CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	r := httptest.NewRequest(http.MethodGet, "/tenants/tenant-a/tickets", nil)
	r.SetPathValue("tenant_id", "tenant-a")
	rec := httptest.NewRecorder()

	srv.handleListTickets(rec, r)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var got []domain.Ticket
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].ExternalID != "t-1" {
		t.Fatalf("expected 1 ticket t-1, got %+v", got)
	}
}

func TestHandleListTicketsDefaultPageReturnsFirstPage(t *testing.T) {
	srv, s := newTestServer(t)
	now := time.Now()
	if err := s.Create(req(t).Context(), domain.Ticket{
		TenantID: "tenant-a", ExternalID: "t-1", Status: domain.StatusOpen, CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	r := httptest.NewRequest(http.MethodGet, "/tenants/tenant-a/tickets?page_size=1", nil)
	r.SetPathValue("tenant_id", "tenant-a")
	rec := httptest.NewRecorder()

	srv.handleListTickets(rec, r)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var got []domain.Ticket
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].ExternalID != "t-1" {
		t.Fatalf("expected the first page (no page param) to include t-1, got %+v", got)
	}
}

func TestHandleListTicketsExplicitPageOneMatchesDefault(t *testing.T) {
	srv, s := newTestServer(t)
	now := time.Now()
	if err := s.Create(req(t).Context(), domain.Ticket{
		TenantID: "tenant-a", ExternalID: "t-1", Status: domain.StatusOpen, CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	r := httptest.NewRequest(http.MethodGet, "/tenants/tenant-a/tickets?page=1&page_size=1", nil)
	r.SetPathValue("tenant_id", "tenant-a")
	rec := httptest.NewRecorder()

	srv.handleListTickets(rec, r)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var got []domain.Ticket
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].ExternalID != "t-1" {
		t.Fatalf("expected page=1 to include t-1, got %+v", got)
	}
}

func TestHandleTriggerIngestionReturnsJobID(t *testing.T) {
	srv, _ := newTestServer(t)
	r := httptest.NewRequest(http.MethodPost, "/tenants/tenant-a/ingest", nil)
	r.SetPathValue("tenant_id", "tenant-a")
	rec := httptest.NewRecorder()

	srv.handleTriggerIngestion(rec, r)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleBreakerStatusUnknownNameReturns404(t *testing.T) {
	srv, _ := newTestServer(t)
	r := httptest.NewRequest(http.MethodGet, "/breakers/unknown", nil)
	r.SetPathValue("name", "unknown")
	rec := httptest.NewRecorder()

	srv.handleBreakerStatus(rec, r)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandleBreakerStatusKnownName(t *testing.T) {
	srv, _ := newTestServer(t)
	r := httptest.NewRequest(http.MethodGet, "/breakers/notifier", nil)
	r.SetPathValue("name", "notifier")
	rec := httptest.NewRecorder()

	srv.handleBreakerStatus(rec, r)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestHandleHealthOkWithoutDB(t *testing.T) {
	srv, _ := newTestServer(t)
	r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	srv.handleHealth(rec, r)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestHandleLockStatusNotFoundWhenNoRecord(t *testing.T) {
	srv, _ := newTestServer(t)
	r := httptest.NewRequest(http.MethodGet, "/tenants/tenant-a/lock", nil)
	r.SetPathValue("tenant_id", "tenant-a")
	rec := httptest.NewRecorder()

	srv.handleLockStatus(rec, r)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func req(t *testing.T) *http.Request {
	t.Helper()
	return httptest.NewRequest(http.MethodGet, "/", nil)
}
