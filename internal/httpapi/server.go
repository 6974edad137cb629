// Package httpapi implements the stdlib net/http surface: ticket listing,
// tenant stats, ingestion trigger/status/cancel, lock and breaker
// diagnostics, ticket history, and a dependency-aware health check.
// Handlers translate sentinel errors to status codes at this boundary
// only; no other layer writes an HTTP status.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/r3e-collective/ticketflow/internal/analytics"
	"github.com/r3e-collective/ticketflow/internal/domain"
	"github.com/r3e-collective/ticketflow/internal/history"
	"github.com/r3e-collective/ticketflow/internal/job"
	"github.com/r3e-collective/ticketflow/internal/lock"
	"github.com/r3e-collective/ticketflow/internal/orchestrator"
	"github.com/r3e-collective/ticketflow/internal/resilience"
	"github.com/r3e-collective/ticketflow/internal/store"
	"github.com/r3e-collective/ticketflow/pkg/logger"
)

// Server bundles every dependency the HTTP surface reads from or
// triggers work on. All fields are required except DB, which is only
// used by the health check, and Log, which no handler uses.
type Server struct {
	Store        store.TicketStore
	History      history.Log
	Jobs         job.Store
	Locks        lock.Service
	Breakers     *resilience.Registry
	Planner      *analytics.Planner
	Orchestrator *orchestrator.Orchestrator
	DB           *sql.DB
	Log          *logger.Logger
}

// Routes builds the handler mux. Mounted as-is on an *http.Server by the
// composition root.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /tenants/{tenant_id}/tickets", s.handleListTickets)
	mux.HandleFunc("GET /tenants/{tenant_id}/stats", s.handleStats)
	mux.HandleFunc("POST /tenants/{tenant_id}/ingest", s.handleTriggerIngestion)
	mux.HandleFunc("GET /tenants/{tenant_id}/ingest/status", s.handleTenantJobStatus)
	mux.HandleFunc("GET /jobs/{job_id}", s.handleJobStatus)
	mux.HandleFunc("POST /jobs/{job_id}/cancel", s.handleCancelJob)
	mux.HandleFunc("GET /tenants/{tenant_id}/lock", s.handleLockStatus)
	mux.HandleFunc("GET /breakers/{name}", s.handleBreakerStatus)
	mux.HandleFunc("POST /breakers/{name}/reset", s.handleBreakerReset)
	mux.HandleFunc("GET /tenants/{tenant_id}/tickets/{ticket_id}/history", s.handleTicketHistory)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return mux
}

func (s *Server) handleListTickets(w http.ResponseWriter, r *http.Request) {
	tenantID := r.PathValue("tenant_id")
	if tenantID == "" {
		writeError(w, http.StatusBadRequest, "tenant_id is required")
		return
	}

	filters := domain.ListFilters{
		Status:  domain.TicketStatus(r.URL.Query().Get("status")),
		Urgency: domain.Urgency(r.URL.Query().Get("urgency")),
	}
	page := domain.Page{
		Number: queryInt(r, "page", 1) - 1,
		Size:   queryInt(r, "page_size", 50),
	}

	tickets, err := s.Store.List(r.Context(), tenantID, filters, page)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, tickets)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	tenantID := r.PathValue("tenant_id")
	if tenantID == "" {
		writeError(w, http.StatusBadRequest, "tenant_id is required")
		return
	}

	stats, err := s.Planner.Compute(r.Context(), tenantID)
	if err != nil {
		if errors.Is(err, analytics.ErrBudgetExceeded) {
			writeError(w, http.StatusGatewayTimeout, "analytics query exceeded latency budget")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleTriggerIngestion(w http.ResponseWriter, r *http.Request) {
	tenantID := r.PathValue("tenant_id")
	if tenantID == "" {
		writeError(w, http.StatusBadRequest, "tenant_id is required")
		return
	}

	result, err := s.Orchestrator.Run(r.Context(), tenantID)
	if errors.Is(err, orchestrator.ErrAlreadyRunning) {
		writeJSON(w, http.StatusConflict, map[string]string{"status": "already_running"})
		return
	}
	if err != nil && result.JobID == "" {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": result.JobID, "status": string(result.Status)})
}

func (s *Server) handleTenantJobStatus(w http.ResponseWriter, r *http.Request) {
	tenantID := r.PathValue("tenant_id")
	if tenantID == "" {
		writeError(w, http.StatusBadRequest, "tenant_id is required")
		return
	}

	j, err := s.Jobs.LatestForTenant(r.Context(), tenantID)
	if errors.Is(err, job.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no ingestion job found for tenant")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("job_id")
	j, err := s.Jobs.Get(r.Context(), jobID)
	if errors.Is(err, job.ErrNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("job_id")
	if _, err := s.Jobs.Get(r.Context(), jobID); errors.Is(err, job.ErrNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	s.Orchestrator.Cancel(jobID)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancel_requested"})
}

func (s *Server) handleLockStatus(w http.ResponseWriter, r *http.Request) {
	tenantID := r.PathValue("tenant_id")
	if tenantID == "" {
		writeError(w, http.StatusBadRequest, "tenant_id is required")
		return
	}

	rec, err := s.Locks.Status(r.Context(), "ingest:"+tenantID)
	if errors.Is(err, lock.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no lock record for tenant")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"resource_id": rec.ResourceID,
		"owner_id":    rec.OwnerID,
		"acquired_at": rec.AcquiredAt,
		"expires_at":  rec.ExpiresAt,
		"is_expired":  rec.IsExpired(time.Now()),
	})
}

func (s *Server) handleBreakerStatus(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	b := s.Breakers.Get(name)
	if b == nil {
		writeError(w, http.StatusNotFound, "no breaker registered under that name")
		return
	}
	writeJSON(w, http.StatusOK, b.Status())
}

func (s *Server) handleBreakerReset(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	b := s.Breakers.Get(name)
	if b == nil {
		writeError(w, http.StatusNotFound, "no breaker registered under that name")
		return
	}
	b.Reset()
	writeJSON(w, http.StatusOK, b.Status())
}

func (s *Server) handleTicketHistory(w http.ResponseWriter, r *http.Request) {
	tenantID := r.PathValue("tenant_id")
	ticketID := r.PathValue("ticket_id")
	if tenantID == "" || ticketID == "" {
		writeError(w, http.StatusBadRequest, "tenant_id and ticket_id are required")
		return
	}

	entries, err := s.History.List(r.Context(), tenantID, ticketID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	health := map[string]string{"status": "ok"}
	status := http.StatusOK

	if s.DB != nil {
		if err := s.DB.PingContext(ctx); err != nil {
			health["status"] = "degraded"
			health["database"] = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			health["database"] = "ok"
		}
	}

	writeJSON(w, status, health)
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
