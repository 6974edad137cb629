package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/r3e-collective/ticketflow/internal/domain"
)

// PostgresLog backs the history Log with the ticket_history table. Changes
// are stored as jsonb; entries are only ever inserted, never updated.
type PostgresLog struct {
	db *sql.DB
}

func NewPostgresLog(db *sql.DB) *PostgresLog {
	return &PostgresLog{db: db}
}

func (l *PostgresLog) Record(ctx context.Context, entry domain.HistoryEntry) error {
	changesJSON, err := json.Marshal(entry.Changes)
	if err != nil {
		return fmt.Errorf("history: marshal changes for ticket %s: %w", entry.TicketID, err)
	}
	const q = `
		INSERT INTO ticket_history (tenant_id, ticket_id, action, changes, recorded_at)
		VALUES ($1, $2, $3, $4, now())
	`
	if _, err := l.db.ExecContext(ctx, q, entry.TenantID, entry.TicketID, entry.Action, changesJSON); err != nil {
		return fmt.Errorf("history: record entry for ticket %s: %w", entry.TicketID, err)
	}
	return nil
}

func (l *PostgresLog) List(ctx context.Context, tenantID, ticketID string) ([]domain.HistoryEntry, error) {
	const q = `
		SELECT id, tenant_id, ticket_id, action, changes, recorded_at
		FROM ticket_history
		WHERE tenant_id = $1 AND ticket_id = $2
		ORDER BY recorded_at DESC, id DESC
	`
	rows, err := l.db.QueryContext(ctx, q, tenantID, ticketID)
	if err != nil {
		return nil, fmt.Errorf("history: list for ticket %s: %w", ticketID, err)
	}
	defer rows.Close()

	var entries []domain.HistoryEntry
	for rows.Next() {
		var e domain.HistoryEntry
		var changesJSON []byte
		if err := rows.Scan(&e.ID, &e.TenantID, &e.TicketID, &e.Action, &changesJSON, &e.RecordedAt); err != nil {
			return nil, fmt.Errorf("history: scan entry for ticket %s: %w", ticketID, err)
		}
		if err := json.Unmarshal(changesJSON, &e.Changes); err != nil {
			return nil, fmt.Errorf("history: unmarshal changes for ticket %s: %w", ticketID, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
