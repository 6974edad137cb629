// Package history implements the append-only ticket change log: every
// create, update and delete is recorded with a per-field diff, and the log
// is never mutated once written.
package history

import (
	"context"
	"strconv"

	"github.com/r3e-collective/ticketflow/internal/domain"
)

// Log is the append-only history surface.
type Log interface {
	// Record appends one entry. RecordedAt and ID are assigned by the
	// implementation.
	Record(ctx context.Context, entry domain.HistoryEntry) error

	// List returns entries for one ticket, newest first.
	List(ctx context.Context, tenantID, ticketID string) ([]domain.HistoryEntry, error)
}

// Diff compares the mutable fields of before and after, returning a
// changes map keyed by field name. An empty map means none of these
// fields changed; the sync engine still records an "updated" entry, with
// that empty map, whenever upstream's UpdatedAt is newer than the stored one.
func Diff(before, after domain.Ticket) map[string]domain.FieldChange {
	changes := make(map[string]domain.FieldChange)
	addIfChanged(changes, "status", string(before.Status), string(after.Status))
	addIfChanged(changes, "subject", before.Subject, after.Subject)
	addIfChanged(changes, "message", before.Message, after.Message)
	addIfChanged(changes, "urgency", string(before.Urgency), string(after.Urgency))
	addIfChanged(changes, "sentiment", string(before.Sentiment), string(after.Sentiment))
	addIfChanged(changes, "requires_action", strconv.FormatBool(before.RequiresAction), strconv.FormatBool(after.RequiresAction))
	return changes
}

func addIfChanged(changes map[string]domain.FieldChange, field, oldVal, newVal string) {
	if oldVal == newVal {
		return
	}
	changes[field] = domain.FieldChange{Old: oldVal, New: newVal}
}
