// Package orchestrator drives one tenant ingestion run end to end: lock
// acquisition, the paginated upstream fetch loop, per-ticket classify and
// sync, urgent-ticket notification dispatch, deletion detection, and the
// job record's terminal transition. It is the one place every other
// component is wired together.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/r3e-collective/ticketflow/internal/classifier"
	"github.com/r3e-collective/ticketflow/internal/domain"
	"github.com/r3e-collective/ticketflow/internal/job"
	"github.com/r3e-collective/ticketflow/internal/lock"
	"github.com/r3e-collective/ticketflow/internal/notifier"
	"github.com/r3e-collective/ticketflow/internal/ratelimit"
	"github.com/r3e-collective/ticketflow/internal/sync"
	"github.com/r3e-collective/ticketflow/internal/upstream"
	"github.com/r3e-collective/ticketflow/pkg/logger"
)

// ErrAlreadyRunning is returned by Run when the tenant's ingestion lock is
// already held by another job.
var ErrAlreadyRunning = errors.New("orchestrator: ingestion already running for tenant")

// Recorder receives job outcome observations. Implemented by
// *metrics.Registry; kept as a narrow local interface so this package
// does not depend on the metrics package.
type Recorder interface {
	ObserveJobCompletion(tenantID string, status domain.JobStatus, duration time.Duration)
	ObserveTicketAction(tenantID, action string)
}

const (
	defaultPageSize     = 100
	transportRetries    = 3
	transportRetryBase  = 500 * time.Millisecond
	lockRefreshFraction = 2 // refresh at TTL/lockRefreshFraction
)

// Config tunes one orchestrator instance. PageSize defaults to 100 when
// unset.
type Config struct {
	PageSize int
	LockTTL  time.Duration
}

// DefaultConfig returns the standard page size and lock TTL.
func DefaultConfig() Config {
	return Config{PageSize: defaultPageSize, LockTTL: lock.DefaultTTL}
}

// Orchestrator owns one tenant ingestion job's lifecycle, wiring the rate
// limiter, lock service, upstream client, sync engine and notifier
// together. It holds no per-job state between calls to Run; every
// working set it touches is local to the call.
type Orchestrator struct {
	cfg Config

	limiter  *ratelimit.Limiter
	locks    lock.Service
	upstream *upstream.Client
	sync     *sync.Engine
	jobs     job.Store
	notify   *notifier.Dispatcher
	log      *logger.Logger
	metrics  Recorder

	cancelled cancelRegistry
}

// SetMetrics attaches a Recorder. Optional; a nil Recorder (the default)
// disables metrics recording.
func (o *Orchestrator) SetMetrics(r Recorder) {
	o.metrics = r
}

// New wires an Orchestrator from its dependencies.
func New(
	limiter *ratelimit.Limiter,
	locks lock.Service,
	upstreamClient *upstream.Client,
	syncEngine *sync.Engine,
	jobs job.Store,
	notify *notifier.Dispatcher,
	log *logger.Logger,
	cfg Config,
) *Orchestrator {
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = lock.DefaultTTL
	}
	if log == nil {
		log = logger.NewDefault("orchestrator")
	}
	return &Orchestrator{
		cfg:      cfg,
		limiter:  limiter,
		locks:    locks,
		upstream: upstreamClient,
		sync:     syncEngine,
		jobs:     jobs,
		notify:   notify,
		log:      log,
	}
}

// Run drives a full ingestion for tenantID. It returns ErrAlreadyRunning
// with no state change when the tenant's lock is already held.
func (o *Orchestrator) Run(ctx context.Context, tenantID string) (domain.IngestionJob, error) {
	jobID := newJobID()
	resource := "ingest:" + tenantID

	acquired, err := o.locks.Acquire(ctx, resource, jobID, o.cfg.LockTTL)
	if err != nil {
		return domain.IngestionJob{}, fmt.Errorf("orchestrator: acquire lock for %s: %w", tenantID, err)
	}
	if !acquired {
		return domain.IngestionJob{}, ErrAlreadyRunning
	}

	j := domain.IngestionJob{
		JobID:     jobID,
		TenantID:  tenantID,
		Status:    domain.JobRunning,
		StartedAt: time.Now(),
	}
	if err := o.jobs.Create(ctx, j); err != nil {
		_, _ = o.locks.Release(ctx, resource, jobID)
		return domain.IngestionJob{}, fmt.Errorf("orchestrator: create job record: %w", err)
	}

	final := o.runPageLoop(ctx, resource, &j)

	j.EndedAt = timePtr(time.Now())
	if err := o.jobs.Update(ctx, j); err != nil {
		o.log.Component("orchestrator").WithField("tenant_id", tenantID).WithField("job_id", jobID).
			WithField("error", err.Error()).Error("failed to persist terminal job state")
	}
	if err := o.jobs.AppendLog(ctx, domain.IngestionLogEntry{
		JobID:      jobID,
		TenantID:   tenantID,
		Status:     j.Status,
		RecordedAt: time.Now(),
		Summary:    summarize(j),
	}); err != nil {
		o.log.Component("orchestrator").WithField("job_id", jobID).WithField("error", err.Error()).
			Error("failed to append ingestion log")
	}
	if _, err := o.locks.Release(ctx, resource, jobID); err != nil {
		o.log.Component("orchestrator").WithField("job_id", jobID).WithField("error", err.Error()).
			Error("failed to release ingestion lock")
	}

	if o.metrics != nil {
		o.metrics.ObserveJobCompletion(tenantID, j.Status, j.EndedAt.Sub(j.StartedAt))
	}

	return j, final
}

// Cancel sets the cooperative cancellation flag for a running job. The flag
// is checked only at the start of each page iteration, before that page's
// first fetch; retries of the current page, the deletion-detection calls
// and any in-flight work are not interrupted by it.
func (o *Orchestrator) Cancel(jobID string) {
	o.cancelled.set(jobID)
}

// runPageLoop fetches and processes pages until upstream is exhausted,
// cancellation is observed, or the context is done. Mutates j in place
// with progress counters; never accumulates tickets across pages.
func (o *Orchestrator) runPageLoop(ctx context.Context, lockResource string, j *domain.IngestionJob) error {
	page := 1
	lastRefresh := time.Now()
	refreshInterval := o.cfg.LockTTL / lockRefreshFraction

	for {
		if o.cancelled.isSet(j.JobID) {
			j.Status = domain.JobCancelled
			o.cancelled.clear(j.JobID)
			return nil
		}
		if err := ctx.Err(); err != nil {
			j.Status = domain.JobFailed
			return err
		}

		if time.Since(lastRefresh) >= refreshInterval {
			o.refreshLockIfDue(ctx, lockResource, j.JobID)
			lastRefresh = time.Now()
		}

		result, err := o.fetchPageWithRetry(ctx, j.TenantID, page)
		if err != nil {
			j.Errors++
			j.ProcessedPages++
			if err := o.jobs.Update(ctx, *j); err != nil {
				o.log.Component("orchestrator").WithField("job_id", j.JobID).WithField("error", err.Error()).
					Warn("failed to persist progress after page error")
			}
			// Transport errors exhausted their retries for this page; move
			// on to the next one rather than abandoning the whole job, but
			// only while the known page count says there is one. With no
			// page count yet (no page has succeeded), stop here.
			page++
			if j.TotalPages == nil || page > *j.TotalPages {
				break
			}
			continue
		}

		if j.TotalPages == nil && o.cfg.PageSize > 0 {
			j.TotalPages = totalPages(result.TotalCount, o.cfg.PageSize)
		}

		for _, payload := range result.Tickets {
			o.processTicket(ctx, j, payload)
		}

		j.ProcessedPages++
		if err := o.jobs.Update(ctx, *j); err != nil {
			o.log.Component("orchestrator").WithField("job_id", j.JobID).WithField("error", err.Error()).
				Warn("failed to persist progress")
		}

		if result.NextPage == nil {
			break
		}
		page = *result.NextPage
	}

	if err := o.runDeletionDetection(ctx, j); err != nil {
		o.log.Component("orchestrator").WithField("job_id", j.JobID).WithField("error", err.Error()).
			Error("deletion detection failed")
		j.Status = domain.JobFailed
		return err
	}

	j.Status = domain.JobCompleted
	return nil
}

// processTicket classifies and syncs one upstream payload, dispatching a
// notification when classification yields high urgency. Failures here are
// soft: they increment the job's error counter and never abort the page.
func (o *Orchestrator) processTicket(ctx context.Context, j *domain.IngestionJob, payload upstream.TicketPayload) {
	classification := o.classify(j, payload)

	action, err := o.sync.SyncTicket(ctx, sync.Input{
		TenantID:       j.TenantID,
		ExternalID:     payload.ExternalID,
		Source:         payload.Source,
		CustomerID:     payload.CustomerID,
		Subject:        payload.Subject,
		Message:        payload.Message,
		Status:         domain.TicketStatus(payload.Status),
		CreatedAt:      payload.CreatedAt,
		UpdatedAt:      payload.UpdatedAt,
		Classification: classification,
	})
	if err != nil {
		j.Errors++
		o.log.Component("orchestrator").WithField("job_id", j.JobID).WithField("external_id", payload.ExternalID).
			WithField("error", err.Error()).Warn("sync failed for ticket")
		return
	}

	switch action {
	case sync.ActionCreated:
		j.NewIngested++
	case sync.ActionUpdated:
		j.Updated++
	}
	if o.metrics != nil {
		o.metrics.ObserveTicketAction(j.TenantID, string(action))
	}

	if classification.Urgency != domain.UrgencyHigh || o.notify == nil {
		return
	}
	n := notifier.Notification{
		TicketID: payload.ExternalID,
		TenantID: j.TenantID,
		Urgency:  string(classification.Urgency),
		Reason:   "high urgency ticket ingested",
	}
	if !o.notify.Enqueue(n) {
		o.log.Component("orchestrator").WithField("job_id", j.JobID).WithField("external_id", payload.ExternalID).
			Warn("notification queue full, dropping")
	}
}

// classify runs the keyword classifier, recovering from a panic and
// falling back to domain.DefaultClassification so one malformed ticket
// body never aborts the page. The fallback counts as a soft error, same
// as a sync failure.
func (o *Orchestrator) classify(j *domain.IngestionJob, payload upstream.TicketPayload) (classification domain.Classification) {
	defer func() {
		if r := recover(); r != nil {
			j.Errors++
			o.log.Component("orchestrator").WithField("job_id", j.JobID).WithField("external_id", payload.ExternalID).
				WithField("panic", r).Warn("classification panicked, falling back to default labels")
			classification = domain.DefaultClassification()
		}
	}()
	return classifier.Classify(payload.Subject, payload.Message)
}

// fetchPageWithRetry fetches one page, honoring 429 Retry-After by
// sleeping and retrying the same page through the rate limiter again, and
// applying bounded exponential backoff to other transport errors.
func (o *Orchestrator) fetchPageWithRetry(ctx context.Context, tenantID string, page int) (upstream.Page, error) {
	delay := transportRetryBase
	var lastErr error

	for attempt := 0; attempt < transportRetries; attempt++ {
		o.limiter.Acquire()

		result, err := o.upstream.ListTickets(ctx, tenantID, page, o.cfg.PageSize, false)
		if err == nil {
			return result, nil
		}

		var rateLimited *upstream.RateLimitedError
		if errors.As(err, &rateLimited) {
			if sleepErr := sleepCtx(ctx, rateLimited.RetryAfter); sleepErr != nil {
				return upstream.Page{}, sleepErr
			}
			attempt--
			continue // same page, does not consume a retry attempt
		}

		var retryable *upstream.RetryableError
		if !errors.As(err, &retryable) {
			return upstream.Page{}, err
		}
		lastErr = err
		if attempt < transportRetries-1 {
			if sleepErr := sleepCtx(ctx, delay); sleepErr != nil {
				return upstream.Page{}, sleepErr
			}
			delay *= 2
		}
	}
	return upstream.Page{}, fmt.Errorf("orchestrator: page %d exhausted retries: %w", page, lastErr)
}

func (o *Orchestrator) runDeletionDetection(ctx context.Context, j *domain.IngestionJob) error {
	authoritative, err := o.collectAuthoritativeIDs(ctx, j.TenantID)
	if err != nil {
		return err
	}
	_, err = o.sync.DetectDeletions(ctx, j.TenantID, authoritative)
	return err
}

// collectAuthoritativeIDs pages through the full non-deleted ticket set
// to build the authoritative id set DetectDeletions diffs against. The
// accumulated slice is local to this call, not retained on the
// Orchestrator.
func (o *Orchestrator) collectAuthoritativeIDs(ctx context.Context, tenantID string) ([]string, error) {
	var ids []string
	page := 1
	for {
		o.limiter.Acquire()
		result, err := o.upstream.ListTickets(ctx, tenantID, page, o.cfg.PageSize, false)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: list tickets for deletion detection: %w", err)
		}
		for _, t := range result.Tickets {
			ids = append(ids, t.ExternalID)
		}
		if result.NextPage == nil {
			break
		}
		page = *result.NextPage
	}
	return ids, nil
}

// refreshLockIfDue extends the lock when approaching half its TTL; a
// refresh failure is logged but does not abort the job, since the lock
// only bounds the blast radius of a job that dies without releasing.
func (o *Orchestrator) refreshLockIfDue(ctx context.Context, resource, ownerID string) {
	if _, err := o.locks.Refresh(ctx, resource, ownerID, o.cfg.LockTTL); err != nil {
		o.log.Component("orchestrator").WithField("resource", resource).WithField("error", err.Error()).
			Warn("lock refresh failed")
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func timePtr(t time.Time) *time.Time { return &t }

func totalPages(totalCount, pageSize int) *int {
	if totalCount <= 0 || pageSize <= 0 {
		return nil
	}
	n := (totalCount + pageSize - 1) / pageSize
	return &n
}

func summarize(j domain.IngestionJob) string {
	return fmt.Sprintf("status=%s pages=%d new=%d updated=%d errors=%d", j.Status, j.ProcessedPages, j.NewIngested, j.Updated, j.Errors)
}

func newJobID() string {
	return "job-" + uuid.NewString()
}
