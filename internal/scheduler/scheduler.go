// Package scheduler periodically triggers ingestion for a configured set
// of tenants, layered on top of the orchestrator's manual trigger path.
// It supplements the on-demand trigger API with the "periodically pulls
// tickets" behavior the upstream contract implies but never pins to a
// mechanism.
package scheduler

import (
	"context"
	"errors"

	"github.com/robfig/cron/v3"

	"github.com/r3e-collective/ticketflow/internal/orchestrator"
	"github.com/r3e-collective/ticketflow/pkg/logger"
)

// Sweep drives a cron-scheduled ingestion trigger for a fixed tenant list.
type Sweep struct {
	cron    *cron.Cron
	run     func(ctx context.Context, tenantID string) error
	tenants []string
	log     *logger.Logger
}

// New constructs a Sweep that triggers ingestion for each tenant in
// tenants on the given cron expression. run is typically
// orchestrator.Orchestrator.Run wrapped to discard the returned job and
// surface only the error.
func New(cronExpr string, tenants []string, run func(ctx context.Context, tenantID string) error, log *logger.Logger) (*Sweep, error) {
	if run == nil {
		return nil, errors.New("scheduler: run function is required")
	}
	if log == nil {
		log = logger.NewDefault("scheduler")
	}
	c := cron.New()
	s := &Sweep{cron: c, run: run, tenants: tenants, log: log}

	if _, err := c.AddFunc(cronExpr, s.triggerAll); err != nil {
		return nil, errors.New("scheduler: invalid cron expression: " + cronExpr + ": " + err.Error())
	}
	return s, nil
}

// Start begins the cron scheduler in the background. Stop must be called
// during shutdown.
func (s *Sweep) Start() {
	s.cron.Start()
}

// Stop halts the scheduler and waits for any in-flight trigger to finish.
func (s *Sweep) Stop() {
	<-s.cron.Stop().Done()
}

// triggerAll runs the configured tenant list once, sequentially. A
// per-tenant error is logged and does not stop the sweep from continuing
// to the next tenant.
func (s *Sweep) triggerAll() {
	ctx := context.Background()
	for _, tenantID := range s.tenants {
		if err := s.run(ctx, tenantID); err != nil {
			if errors.Is(err, orchestrator.ErrAlreadyRunning) {
				s.log.Component("scheduler").WithField("tenant_id", tenantID).
					Debug("skipping scheduled trigger, ingestion already running")
				continue
			}
			s.log.Component("scheduler").WithField("tenant_id", tenantID).WithField("error", err.Error()).
				Warn("scheduled ingestion trigger failed")
		}
	}
}
