// Package store implements tenant-scoped ticket persistence: idempotent
// upsert, soft-delete, and the query surface the analytics and sync
// layers both depend on.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/r3e-collective/ticketflow/internal/domain"
)

// ErrNotFound is returned by Get when no ticket matches (tenantID, externalID).
var ErrNotFound = errors.New("store: ticket not found")

// ErrDuplicate is returned by Create when the unique (tenant_id,
// external_id) index already holds a row for this key — a concurrent
// duplicate-insert race the sync engine must treat as "seen", never as an
// error to surface.
var ErrDuplicate = errors.New("store: duplicate ticket")

// TicketStore is the tenant-scoped persistence surface. Every method that
// lists or counts tickets must apply the tenant predicate and exclude
// soft-deleted rows unless explicitly stated otherwise.
type TicketStore interface {
	// Get looks up one ticket by its tenant-scoped identity, including
	// soft-deleted rows (the Sync Engine needs to see them to decide
	// create vs. update vs. unchanged).
	Get(ctx context.Context, tenantID, externalID string) (domain.Ticket, error)

	// Create inserts a brand-new ticket. Returns ErrDuplicate if the
	// unique index already holds this (tenant_id, external_id).
	Create(ctx context.Context, t domain.Ticket) error

	// Update replaces the mutable fields of an existing ticket and bumps
	// UpdatedAt. It is the caller's responsibility (Sync Engine) to have
	// already verified upstream's UpdatedAt is strictly newer.
	Update(ctx context.Context, t domain.Ticket) error

	// SoftDelete marks the given external ids deleted_at=now for rows that
	// are not already deleted, returning the count actually transitioned.
	SoftDelete(ctx context.Context, tenantID string, externalIDs []string) (int, error)

	// List returns one page of non-deleted tickets for tenantID matching
	// filters, newest first.
	List(ctx context.Context, tenantID string, filters domain.ListFilters, page domain.Page) ([]domain.Ticket, error)

	// ActiveExternalIDs returns every non-deleted external id for tenantID,
	// the input the Sync Engine's deletion-detection diffs against the
	// upstream's authoritative id set.
	ActiveExternalIDs(ctx context.Context, tenantID string) ([]string, error)

	// Stats computes the tenant's aggregate analytics view, pushed down to
	// the store rather than materialized in application memory.
	Stats(ctx context.Context, tenantID string, trendSince time.Time) (domain.TenantStats, error)
}
