package repository

import (
	"context"
	"time"

	"outreach_backend/internal/outreach/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// querier is satisfied by both the pool and a transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func insertActivity(ctx context.Context, q querier, a domain.Activity) (domain.Activity, error) {
	if a.Direction == "" {
		a.Direction = domain.DirectionNone
	}
	err := q.QueryRow(ctx, `
		INSERT INTO activities (lead_id, type, channel, direction, content, score_before, score_after)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`,
		a.LeadID, a.Type, string(a.Channel), string(a.Direction), a.Content, a.ScoreBefore, a.ScoreAfter,
	).Scan(&a.ID, &a.CreatedAt)
	return a, err
}

func (r *Repository) AppendActivity(ctx context.Context, entry domain.Activity) (domain.Activity, error) {
	return insertActivity(ctx, r.pool, entry)
}

// ListActivities returns a lead's ledger in insertion order.
func (r *Repository) ListActivities(ctx context.Context, leadID uuid.UUID, limit int) ([]domain.Activity, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, lead_id, type, channel, direction, content, score_before, score_after, created_at
		FROM activities
		WHERE lead_id = $1
		ORDER BY id ASC
		LIMIT $2`, leadID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.Activity, 0)
	for rows.Next() {
		var a domain.Activity
		var channel, direction string
		if err := rows.Scan(&a.ID, &a.LeadID, &a.Type, &channel, &direction, &a.Content, &a.ScoreBefore, &a.ScoreAfter, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.Channel = domain.ActivityChannel(channel)
		a.Direction = domain.Direction(direction)
		entries = append(entries, a)
	}
	return entries, rows.Err()
}

// CountOutboundSince counts outbound ledger entries on channel created at or after since.
func (r *Repository) CountOutboundSince(ctx context.Context, channel domain.ActivityChannel, since time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM activities
		WHERE channel = $1 AND direction = 'outbound' AND created_at >= $2`,
		string(channel), since,
	).Scan(&n)
	return n, err
}

func addSuppression(ctx context.Context, tx pgx.Tx, s domain.Suppression) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO suppression_list (kind, value, reason)
		VALUES ($1, $2, $3)
		ON CONFLICT (kind, value) DO NOTHING`,
		string(s.Kind), s.Value, s.Reason)
	return err
}

func (r *Repository) IsSuppressed(ctx context.Context, kind domain.IdentifierKind, value string) (bool, error) {
	if value == "" {
		return false, nil
	}
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM suppression_list WHERE kind = $1 AND value = $2)`,
		string(kind), value,
	).Scan(&exists)
	return exists, err
}

// RollupDailyMetrics stores per-type ledger counts for [from, to) under day.
func (r *Repository) RollupDailyMetrics(ctx context.Context, from, to time.Time, day time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO daily_metrics (metric_date, activity_type, total)
		SELECT $3::date, type, count(*)
		FROM activities
		WHERE created_at >= $1 AND created_at < $2
		GROUP BY type
		ON CONFLICT (metric_date, activity_type) DO UPDATE SET total = EXCLUDED.total`,
		from, to, day.Format("2006-01-02"))
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
