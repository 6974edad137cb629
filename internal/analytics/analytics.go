// Package analytics computes the per-tenant aggregate ticket view. All
// aggregation is pushed down to the Ticket Store; this package never
// materializes a tenant's full ticket set in memory.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/r3e-collective/ticketflow/internal/domain"
	"github.com/r3e-collective/ticketflow/internal/store"
)

// ErrBudgetExceeded is returned when the aggregation does not complete
// within the soft latency budget; callers should surface this as a
// 504-equivalent rather than waiting indefinitely on a query that has
// already blown past the budget that justified its indexes.
var ErrBudgetExceeded = errors.New("analytics: query exceeded latency budget")

// SoftBudget is the soft middleware limit past which a request is failed
// fast rather than left to run to completion.
const SoftBudget = 2 * time.Second

// DefaultTrendWindow is how far back the hourly trend facet looks.
const DefaultTrendWindow = 24 * time.Hour

// Planner computes TenantStats for a tenant, enforcing the soft latency
// budget around the store call.
type Planner struct {
	store  store.TicketStore
	now    func() time.Time
	budget time.Duration
}

// New constructs a Planner over a TicketStore, using the default soft
// budget.
func New(s store.TicketStore) *Planner {
	return &Planner{store: s, now: time.Now, budget: SoftBudget}
}

// Compute runs the single multi-facet aggregation for tenantID over the
// default trend window, failing fast with ErrBudgetExceeded if the store
// call does not return within the soft budget.
func (p *Planner) Compute(ctx context.Context, tenantID string) (domain.TenantStats, error) {
	return p.ComputeSince(ctx, tenantID, p.now().Add(-DefaultTrendWindow))
}

// ComputeSince runs the aggregation with an explicit trend window start,
// for callers that need a non-default window.
func (p *Planner) ComputeSince(ctx context.Context, tenantID string, trendSince time.Time) (domain.TenantStats, error) {
	budgetCtx, cancel := context.WithTimeout(ctx, p.budget)
	defer cancel()

	stats, err := p.store.Stats(budgetCtx, tenantID, trendSince)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return domain.TenantStats{}, ErrBudgetExceeded
		}
		return domain.TenantStats{}, fmt.Errorf("analytics: compute stats for %s: %w", tenantID, err)
	}
	return stats, nil
}
