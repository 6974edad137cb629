package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/r3e-collective/ticketflow/internal/domain"
)

// PostgresStore is the production TicketStore backing. Every query carries
// an explicit tenant_id predicate; none of the methods below trust a
// caller-supplied WHERE clause to do that filtering for them.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, tenantID, externalID string) (domain.Ticket, error) {
	const q = `
		SELECT tenant_id, external_id, source, customer_id, subject, message,
		       status, urgency, sentiment, requires_action, matched_keywords,
		       created_at, updated_at, deleted_at
		FROM tickets
		WHERE tenant_id = $1 AND external_id = $2
	`
	row := s.db.QueryRowContext(ctx, q, tenantID, externalID)
	t, err := scanTicket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Ticket{}, ErrNotFound
	}
	if err != nil {
		return domain.Ticket{}, fmt.Errorf("store: get ticket %s/%s: %w", tenantID, externalID, err)
	}
	return t, nil
}

func (s *PostgresStore) Create(ctx context.Context, t domain.Ticket) error {
	const q = `
		INSERT INTO tickets
			(tenant_id, external_id, source, customer_id, subject, message,
			 status, urgency, sentiment, requires_action, matched_keywords,
			 created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := s.db.ExecContext(ctx, q,
		t.TenantID, t.ExternalID, t.Source, t.CustomerID, t.Subject, t.Message,
		t.Status, t.Urgency, t.Sentiment, t.RequiresAction, pq.Array(t.MatchedKeywords),
		t.CreatedAt, t.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("store: create ticket %s/%s: %w", t.TenantID, t.ExternalID, err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, t domain.Ticket) error {
	const q = `
		UPDATE tickets
		SET source = $3, customer_id = $4, subject = $5, message = $6,
		    status = $7, urgency = $8, sentiment = $9, requires_action = $10,
		    matched_keywords = $11, updated_at = $12
		WHERE tenant_id = $1 AND external_id = $2
	`
	res, err := s.db.ExecContext(ctx, q,
		t.TenantID, t.ExternalID, t.Source, t.CustomerID, t.Subject, t.Message,
		t.Status, t.Urgency, t.Sentiment, t.RequiresAction, pq.Array(t.MatchedKeywords),
		t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("store: update ticket %s/%s: %w", t.TenantID, t.ExternalID, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: update ticket %s/%s rows affected: %w", t.TenantID, t.ExternalID, err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SoftDelete(ctx context.Context, tenantID string, externalIDs []string) (int, error) {
	if len(externalIDs) == 0 {
		return 0, nil
	}
	const q = `
		UPDATE tickets
		SET deleted_at = now()
		WHERE tenant_id = $1 AND external_id = ANY($2) AND deleted_at IS NULL
	`
	res, err := s.db.ExecContext(ctx, q, tenantID, pq.Array(externalIDs))
	if err != nil {
		return 0, fmt.Errorf("store: soft delete tenant %s: %w", tenantID, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: soft delete tenant %s rows affected: %w", tenantID, err)
	}
	return int(rows), nil
}

func (s *PostgresStore) List(ctx context.Context, tenantID string, filters domain.ListFilters, page domain.Page) ([]domain.Ticket, error) {
	size := page.Size
	if size <= 0 {
		size = 50
	}
	number := page.Number
	if number < 0 {
		number = 0
	}

	q := `
		SELECT tenant_id, external_id, source, customer_id, subject, message,
		       status, urgency, sentiment, requires_action, matched_keywords,
		       created_at, updated_at, deleted_at
		FROM tickets
		WHERE tenant_id = $1 AND deleted_at IS NULL
	`
	args := []any{tenantID}
	if filters.Status != "" {
		args = append(args, filters.Status)
		q += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filters.Urgency != "" {
		args = append(args, filters.Urgency)
		q += fmt.Sprintf(" AND urgency = $%d", len(args))
	}
	args = append(args, size, number*size)
	q += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list tickets tenant %s: %w", tenantID, err)
	}
	defer rows.Close()

	tickets := make([]domain.Ticket, 0, size)
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan ticket row tenant %s: %w", tenantID, err)
		}
		tickets = append(tickets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list tickets tenant %s: %w", tenantID, err)
	}
	return tickets, nil
}

func (s *PostgresStore) ActiveExternalIDs(ctx context.Context, tenantID string) ([]string, error) {
	const q = `SELECT external_id FROM tickets WHERE tenant_id = $1 AND deleted_at IS NULL`
	rows, err := s.db.QueryContext(ctx, q, tenantID)
	if err != nil {
		return nil, fmt.Errorf("store: active external ids tenant %s: %w", tenantID, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: scan external id tenant %s: %w", tenantID, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PostgresStore) Stats(ctx context.Context, tenantID string, trendSince time.Time) (domain.TenantStats, error) {
	stats := domain.TenantStats{ByStatus: make(map[domain.TicketStatus]int)}

	const totalsQ = `
		SELECT status, count(*),
		       count(*) FILTER (WHERE urgency = 'high'),
		       count(*) FILTER (WHERE sentiment = 'negative')
		FROM tickets
		WHERE tenant_id = $1 AND deleted_at IS NULL
		GROUP BY status
	`
	rows, err := s.db.QueryContext(ctx, totalsQ, tenantID)
	if err != nil {
		return stats, fmt.Errorf("store: stats totals tenant %s: %w", tenantID, err)
	}
	var highUrgency, negative int
	for rows.Next() {
		var status domain.TicketStatus
		var count, high, neg int
		if err := rows.Scan(&status, &count, &high, &neg); err != nil {
			rows.Close()
			return stats, fmt.Errorf("store: scan stats totals tenant %s: %w", tenantID, err)
		}
		stats.ByStatus[status] = count
		stats.TotalTickets += count
		highUrgency += high
		negative += neg
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return stats, fmt.Errorf("store: stats totals tenant %s: %w", tenantID, err)
	}
	rows.Close()

	if stats.TotalTickets > 0 {
		stats.UrgencyHighRatio = float64(highUrgency) / float64(stats.TotalTickets)
		stats.NegativeSentRatio = float64(negative) / float64(stats.TotalTickets)
	}

	const trendQ = `
		SELECT to_char(date_trunc('hour', created_at), 'YYYY-MM-DD HH24:00'), count(*)
		FROM tickets
		WHERE tenant_id = $1 AND deleted_at IS NULL AND created_at >= $2
		GROUP BY 1
		ORDER BY 1
	`
	trendRows, err := s.db.QueryContext(ctx, trendQ, tenantID, trendSince)
	if err != nil {
		return stats, fmt.Errorf("store: stats trend tenant %s: %w", tenantID, err)
	}
	for trendRows.Next() {
		var bucket domain.HourlyBucket
		if err := trendRows.Scan(&bucket.Hour, &bucket.Count); err != nil {
			trendRows.Close()
			return stats, fmt.Errorf("store: scan stats trend tenant %s: %w", tenantID, err)
		}
		stats.HourlyTrend = append(stats.HourlyTrend, bucket)
	}
	if err := trendRows.Err(); err != nil {
		trendRows.Close()
		return stats, fmt.Errorf("store: stats trend tenant %s: %w", tenantID, err)
	}
	trendRows.Close()

	const keywordsQ = `
		SELECT keyword, count(*) AS n
		FROM tickets, unnest(matched_keywords) AS keyword
		WHERE tenant_id = $1 AND deleted_at IS NULL
		GROUP BY keyword
		ORDER BY n DESC, keyword ASC
		LIMIT 10
	`
	kwRows, err := s.db.QueryContext(ctx, keywordsQ, tenantID)
	if err != nil {
		return stats, fmt.Errorf("store: stats keywords tenant %s: %w", tenantID, err)
	}
	for kwRows.Next() {
		var kw string
		var n int
		if err := kwRows.Scan(&kw, &n); err != nil {
			kwRows.Close()
			return stats, fmt.Errorf("store: scan stats keywords tenant %s: %w", tenantID, err)
		}
		stats.TopKeywords = append(stats.TopKeywords, kw)
	}
	if err := kwRows.Err(); err != nil {
		kwRows.Close()
		return stats, fmt.Errorf("store: stats keywords tenant %s: %w", tenantID, err)
	}
	kwRows.Close()

	const atRiskQ = `
		SELECT customer_id, count(*) AS n
		FROM tickets
		WHERE tenant_id = $1 AND deleted_at IS NULL AND urgency = 'high' AND status <> 'closed'
		GROUP BY customer_id
		HAVING count(*) >= 2
		ORDER BY n DESC
		LIMIT 10
	`
	riskRows, err := s.db.QueryContext(ctx, atRiskQ, tenantID)
	if err != nil {
		return stats, fmt.Errorf("store: stats at-risk customers tenant %s: %w", tenantID, err)
	}
	defer riskRows.Close()
	for riskRows.Next() {
		var c domain.AtRiskCustomer
		if err := riskRows.Scan(&c.CustomerID, &c.HighUrgencyOpenCount); err != nil {
			return stats, fmt.Errorf("store: scan stats at-risk customers tenant %s: %w", tenantID, err)
		}
		stats.AtRiskCustomers = append(stats.AtRiskCustomers, c)
	}
	if err := riskRows.Err(); err != nil {
		return stats, fmt.Errorf("store: stats at-risk customers tenant %s: %w", tenantID, err)
	}

	return stats, nil
}

// scanner abstracts *sql.Row and *sql.Rows so scanTicket serves both Get
// and the listing queries.
type scanner interface {
	Scan(dest ...any) error
}

func scanTicket(row scanner) (domain.Ticket, error) {
	var t domain.Ticket
	var deletedAt sql.NullTime
	err := row.Scan(
		&t.TenantID, &t.ExternalID, &t.Source, &t.CustomerID, &t.Subject, &t.Message,
		&t.Status, &t.Urgency, &t.Sentiment, &t.RequiresAction, pq.Array(&t.MatchedKeywords),
		&t.CreatedAt, &t.UpdatedAt, &deletedAt,
	)
	if err != nil {
		return domain.Ticket{}, err
	}
	if deletedAt.Valid {
		t.DeletedAt = &deletedAt.Time
	}
	return t, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
