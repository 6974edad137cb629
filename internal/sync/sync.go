// Package sync reconciles upstream ticket payloads against the local
// store, producing the create/update/unchanged decision and the
// append-only history entry that goes with it, plus tenant-wide deletion
// detection.
package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/r3e-collective/ticketflow/internal/domain"
	"github.com/r3e-collective/ticketflow/internal/history"
	"github.com/r3e-collective/ticketflow/internal/store"
)

// Action is the outcome of syncing one ticket.
type Action string

const (
	ActionCreated   Action = "created"
	ActionUpdated   Action = "updated"
	ActionUnchanged Action = "unchanged"
)

// Input is the upstream payload plus the classification already computed
// for it; the engine never classifies on its own.
type Input struct {
	TenantID       string
	ExternalID     string
	Source         string
	CustomerID     string
	Subject        string
	Message        string
	Status         domain.TicketStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Classification domain.Classification
}

// Engine applies per-ticket sync and tenant-wide deletion detection.
type Engine struct {
	store store.TicketStore
	log   history.Log
	now   func() time.Time
}

func New(s store.TicketStore, log history.Log) *Engine {
	return &Engine{store: s, log: log, now: time.Now}
}

// SyncTicket applies the create/update/unchanged decision for one ticket.
// A failure here must never abort the caller's page loop; callers are
// expected to count it as a soft error and continue.
func (e *Engine) SyncTicket(ctx context.Context, in Input) (Action, error) {
	existing, err := e.store.Get(ctx, in.TenantID, in.ExternalID)
	if errors.Is(err, store.ErrNotFound) {
		return e.create(ctx, in)
	}
	if err != nil {
		return "", fmt.Errorf("sync: lookup ticket %s/%s: %w", in.TenantID, in.ExternalID, err)
	}

	if !in.UpdatedAt.After(existing.UpdatedAt) {
		return ActionUnchanged, nil
	}
	return e.update(ctx, existing, in)
}

func (e *Engine) create(ctx context.Context, in Input) (Action, error) {
	ticket := domain.Ticket{
		TenantID:        in.TenantID,
		ExternalID:      in.ExternalID,
		Source:          in.Source,
		CustomerID:      in.CustomerID,
		Subject:         in.Subject,
		Message:         in.Message,
		Status:          in.Status,
		Urgency:         in.Classification.Urgency,
		Sentiment:       in.Classification.Sentiment,
		RequiresAction:  in.Classification.RequiresAction,
		MatchedKeywords: in.Classification.MatchedKeywords,
		CreatedAt:       in.CreatedAt,
		UpdatedAt:       in.UpdatedAt,
	}
	if err := e.store.Create(ctx, ticket); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			// Lost the create race to a concurrent sync; treat as seen.
			return ActionUnchanged, nil
		}
		return "", fmt.Errorf("sync: create ticket %s/%s: %w", in.TenantID, in.ExternalID, err)
	}
	if err := e.log.Record(ctx, domain.HistoryEntry{
		TenantID: in.TenantID,
		TicketID: in.ExternalID,
		Action:   domain.HistoryCreated,
		Changes:  map[string]domain.FieldChange{},
	}); err != nil {
		return "", fmt.Errorf("sync: record created history for %s/%s: %w", in.TenantID, in.ExternalID, err)
	}
	return ActionCreated, nil
}

func (e *Engine) update(ctx context.Context, existing domain.Ticket, in Input) (Action, error) {
	updated := existing
	updated.Source = in.Source
	updated.CustomerID = in.CustomerID
	updated.Subject = in.Subject
	updated.Message = in.Message
	updated.Status = in.Status
	updated.Urgency = in.Classification.Urgency
	updated.Sentiment = in.Classification.Sentiment
	updated.RequiresAction = in.Classification.RequiresAction
	updated.MatchedKeywords = in.Classification.MatchedKeywords
	updated.UpdatedAt = in.UpdatedAt

	changes := history.Diff(existing, updated)

	if err := e.store.Update(ctx, updated); err != nil {
		return "", fmt.Errorf("sync: update ticket %s/%s: %w", in.TenantID, in.ExternalID, err)
	}
	if err := e.log.Record(ctx, domain.HistoryEntry{
		TenantID: in.TenantID,
		TicketID: in.ExternalID,
		Action:   domain.HistoryUpdated,
		Changes:  changes,
	}); err != nil {
		return "", fmt.Errorf("sync: record updated history for %s/%s: %w", in.TenantID, in.ExternalID, err)
	}
	return ActionUpdated, nil
}

// DetectDeletions compares authoritativeIDs (the full upstream id set for
// tenantID) against the store's active ids, soft-deleting anything stored
// but no longer present upstream, and recording a deleted history entry
// for each.
func (e *Engine) DetectDeletions(ctx context.Context, tenantID string, authoritativeIDs []string) (int, error) {
	active, err := e.store.ActiveExternalIDs(ctx, tenantID)
	if err != nil {
		return 0, fmt.Errorf("sync: list active ids for tenant %s: %w", tenantID, err)
	}

	present := make(map[string]struct{}, len(authoritativeIDs))
	for _, id := range authoritativeIDs {
		present[id] = struct{}{}
	}

	var gone []string
	for _, id := range active {
		if _, ok := present[id]; !ok {
			gone = append(gone, id)
		}
	}
	if len(gone) == 0 {
		return 0, nil
	}

	count, err := e.store.SoftDelete(ctx, tenantID, gone)
	if err != nil {
		return 0, fmt.Errorf("sync: soft delete tenant %s: %w", tenantID, err)
	}
	for _, id := range gone {
		if err := e.log.Record(ctx, domain.HistoryEntry{
			TenantID: tenantID,
			TicketID: id,
			Action:   domain.HistoryDeleted,
			Changes:  map[string]domain.FieldChange{},
		}); err != nil {
			return count, fmt.Errorf("sync: record deleted history for %s/%s: %w", tenantID, id, err)
		}
	}
	return count, nil
}
