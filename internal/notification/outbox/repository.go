// Package outbox stores side effects that must happen after a lifecycle
// transition commits. A dispatcher claims due rows and hands them to the task
// queue; the notification module executes and settles them.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Status is the delivery state of a row. Pending rows are waiting for their
// run time, enqueued rows sit on the task queue, processing rows are owned by
// a worker. Succeeded and failed are terminal.
type Status string

const (
	StatusPending    Status = "pending"
	StatusEnqueued   Status = "enqueued"
	StatusProcessing Status = "processing"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
)

const (
	KindQualifyingNotification = "qualifying_notification"
	KindAutoAction             = "auto_action"
)

const defaultClaimLimit = 50

var (
	ErrNotConfigured = errors.New("outbox repository not configured")
	ErrNotFound      = errors.New("outbox record not found")
)

// Record is one stored side effect.
type Record struct {
	ID        uuid.UUID
	LeadID    uuid.UUID
	Kind      string
	Payload   json.RawMessage
	RunAt     time.Time
	Status    Status
	Attempts  int
	LastError *string
}

// Terminal reports whether the record will never be delivered again.
func (r Record) Terminal() bool {
	return r.Status == StatusSucceeded || r.Status == StatusFailed
}

type InsertParams struct {
	LeadID  uuid.UUID
	Kind    string
	Payload any
	RunAt   time.Time
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const recordColumns = `id, lead_id, kind, payload, run_at, status, attempts, last_error`

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	var status string
	if err := row.Scan(&rec.ID, &rec.LeadID, &rec.Kind, &rec.Payload, &rec.RunAt, &status, &rec.Attempts, &rec.LastError); err != nil {
		return Record{}, err
	}
	rec.Status = Status(status)
	return rec, nil
}

func (r *Repository) ready() error {
	if r == nil || r.pool == nil {
		return ErrNotConfigured
	}
	return nil
}

// Insert stores a pending record. A zero RunAt means now.
func (r *Repository) Insert(ctx context.Context, p InsertParams) (uuid.UUID, error) {
	if err := r.ready(); err != nil {
		return uuid.Nil, err
	}
	switch {
	case p.LeadID == uuid.Nil:
		return uuid.Nil, errors.New("outbox insert: lead id is required")
	case p.Kind == "":
		return uuid.Nil, errors.New("outbox insert: kind is required")
	}
	if p.RunAt.IsZero() {
		p.RunAt = time.Now().UTC()
	}

	payload, err := json.Marshal(p.Payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("outbox insert: encode payload: %w", err)
	}

	id := uuid.New()
	if _, err := r.pool.Exec(ctx, `
		INSERT INTO notification_outbox (id, lead_id, kind, payload, run_at, status)
		VALUES ($1, $2, $3, $4, $5, 'pending')`,
		id, p.LeadID, p.Kind, payload, p.RunAt,
	); err != nil {
		return uuid.Nil, fmt.Errorf("outbox insert: %w", err)
	}
	return id, nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Record, error) {
	if err := r.ready(); err != nil {
		return Record{}, err
	}
	rec, err := scanRecord(r.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM notification_outbox WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	return rec, err
}

// ClaimDue flips up to limit due pending rows to enqueued and returns them,
// oldest run time first. Rows locked by another dispatcher are skipped.
func (r *Repository) ClaimDue(ctx context.Context, limit int) ([]Record, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = defaultClaimLimit
	}

	var claimed []Record
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			WITH due AS (
				SELECT id FROM notification_outbox
				WHERE status = 'pending' AND run_at <= now()
				ORDER BY run_at
				LIMIT $1
				FOR UPDATE SKIP LOCKED
			)
			UPDATE notification_outbox o
			SET status = 'enqueued', updated_at = now()
			FROM due
			WHERE o.id = due.id
			RETURNING o.id, o.lead_id, o.kind, o.payload, o.run_at, o.status, o.attempts, o.last_error`,
			limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			rec, err := scanRecord(rows)
			if err != nil {
				return err
			}
			claimed = append(claimed, rec)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("outbox claim: %w", err)
	}
	return claimed, nil
}

// Release hands a claimed row back to the pending pool, keeping its run time.
func (r *Repository) Release(ctx context.Context, id uuid.UUID, lastError string) error {
	return r.update(ctx, id, `status = 'pending', last_error = NULLIF($2, '')`, lastError)
}

// RequeueStale returns rows stuck in enqueued or processing for longer than
// olderThan to pending. A crashed worker leaves rows in that state forever
// otherwise.
func (r *Repository) RequeueStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	if err := r.ready(); err != nil {
		return 0, err
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE notification_outbox
		SET status = 'pending', last_error = 'requeued after stall', updated_at = now()
		WHERE status IN ('enqueued', 'processing')
		  AND updated_at < now() - make_interval(secs => $1)`,
		olderThan.Seconds())
	if err != nil {
		return 0, fmt.Errorf("outbox requeue: %w", err)
	}
	return tag.RowsAffected(), nil
}

// MarkProcessing takes ownership of a row and counts the attempt.
func (r *Repository) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	return r.update(ctx, id, `status = 'processing', attempts = attempts + 1`)
}

func (r *Repository) MarkSucceeded(ctx context.Context, id uuid.UUID) error {
	return r.update(ctx, id, `status = 'succeeded', last_error = NULL, processed_at = now()`)
}

func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error {
	return r.update(ctx, id, `status = 'failed', last_error = $2, processed_at = now()`, lastError)
}

// ScheduleRetry parks a row as pending until runAt.
func (r *Repository) ScheduleRetry(ctx context.Context, id uuid.UUID, runAt time.Time, lastError string) error {
	return r.update(ctx, id, `status = 'pending', last_error = $2, run_at = $3`, lastError, runAt)
}

// update applies set to a single row; args bind from $2 onwards.
func (r *Repository) update(ctx context.Context, id uuid.UUID, set string, args ...any) error {
	if err := r.ready(); err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE notification_outbox SET `+set+`, updated_at = now() WHERE id = $1`,
		append([]any{id}, args...)...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
