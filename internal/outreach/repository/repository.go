package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"outreach_backend/internal/outreach/domain"
	"outreach_backend/platform/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("not found")

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Ping is used by the readiness probe.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

const leadColumns = `id, first_name, last_name, company, phone, email, score, score_tier, status,
	sequence_id, current_step, sequence_status, next_action_at, sms_opt_out, email_opt_out,
	call_opt_out, replied, last_reply_at, last_contacted_at, total_sms_sent, total_emails_sent,
	total_calls_made, created_at, updated_at`

func scanLead(row pgx.Row) (domain.Lead, error) {
	var l domain.Lead
	var phone, email *string
	var tier, status, seqStatus string
	err := row.Scan(
		&l.ID, &l.FirstName, &l.LastName, &l.Company, &phone, &email, &l.Score, &tier, &status,
		&l.SequenceID, &l.CurrentStep, &seqStatus, &l.NextActionAt, &l.SMSOptOut, &l.EmailOptOut,
		&l.CallOptOut, &l.Replied, &l.LastReplyAt, &l.LastContactedAt, &l.TotalSMSSent, &l.TotalEmailsSent,
		&l.TotalCallsMade, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Lead{}, ErrNotFound
		}
		return domain.Lead{}, err
	}
	if phone != nil {
		l.Phone = *phone
	}
	if email != nil {
		l.Email = *email
	}
	l.Tier = domain.Tier(tier)
	l.Status = domain.Status(status)
	l.SequenceStatus = domain.SequenceStatus(seqStatus)
	return l, nil
}

func (r *Repository) GetLead(ctx context.Context, id uuid.UUID) (domain.Lead, error) {
	return scanLead(r.pool.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, id))
}

// GetLeadByPhone returns the most recently created lead for an E.164 number.
func (r *Repository) GetLeadByPhone(ctx context.Context, phone string) (domain.Lead, error) {
	return scanLead(r.pool.QueryRow(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE phone = $1 ORDER BY created_at DESC LIMIT 1`, phone))
}

func (r *Repository) ListReadyLeads(ctx context.Context, now time.Time, limit int) ([]domain.Lead, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		WHERE sequence_status = 'active'
		  AND next_action_at <= $1
		  AND status NOT IN ('bad_data', 'do_not_call', 'not_a_fit')
		ORDER BY score DESC, next_action_at ASC
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	leads := make([]domain.Lead, 0)
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, l)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return leads, nil
}

func (r *Repository) ListDecayCandidates(ctx context.Context, cutoff time.Time, minScore int) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id
		FROM leads
		WHERE sequence_status = 'active'
		  AND score > $2
		  AND (last_contacted_at IS NULL OR last_contacted_at < $1)
		  AND (last_reply_at IS NULL OR last_reply_at < $1)
		ORDER BY id`, cutoff, minScore)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]uuid.UUID, 0)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// MutateLead locks the lead row, lets fn compute a transition from the
// locked snapshot, and writes the result in the same transaction.
func (r *Repository) MutateLead(ctx context.Context, id uuid.UUID, fn MutateFunc) (domain.Transition, error) {
	var result domain.Transition
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		current, err := lockLead(ctx, tx, id)
		if err != nil {
			return err
		}
		t, err := fn(current)
		if err != nil {
			return err
		}
		result, err = applyTransition(ctx, tx, current, t)
		return err
	})
	if err != nil {
		return domain.Transition{}, err
	}
	return result, nil
}

// RecordCall inserts the call log under the lead row lock and hands fn the
// number of logged calls with the same outcome, this one included.
func (r *Repository) RecordCall(ctx context.Context, log domain.CallLog, fn CallMutateFunc) (domain.Transition, error) {
	var result domain.Transition
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		current, err := lockLead(ctx, tx, log.LeadID)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO call_logs (lead_id, provider_call_id, outcome, summary, duration_seconds)
			VALUES ($1, $2, $3, $4, $5)`,
			log.LeadID, log.ProviderCallID, string(log.Outcome), log.Summary, log.DurationSeconds,
		); err != nil {
			return fmt.Errorf("insert call log: %w", err)
		}
		var same int
		if err := tx.QueryRow(ctx,
			`SELECT count(*) FROM call_logs WHERE lead_id = $1 AND outcome = $2`,
			log.LeadID, string(log.Outcome),
		).Scan(&same); err != nil {
			return fmt.Errorf("count call outcomes: %w", err)
		}

		t, err := fn(current, same)
		if err != nil {
			return err
		}
		result, err = applyTransition(ctx, tx, current, t)
		return err
	})
	if err != nil {
		return domain.Transition{}, err
	}
	return result, nil
}

func lockLead(ctx context.Context, tx pgx.Tx, id uuid.UUID) (domain.Lead, error) {
	return scanLead(tx.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1 FOR UPDATE`, id))
}

// applyTransition writes t against the locked row current.
func applyTransition(ctx context.Context, tx pgx.Tx, current domain.Lead, t domain.Transition) (domain.Transition, error) {
	if t.Before.ID != current.ID {
		return domain.Transition{}, fmt.Errorf("transition for lead %s applied to %s", t.Before.ID, current.ID)
	}

	if err := updateLead(ctx, tx, current, t.After); err != nil {
		return domain.Transition{}, fmt.Errorf("update lead: %w", err)
	}

	entries := make([]domain.Activity, 0, len(t.Activities))
	for _, a := range t.Activities {
		a.LeadID = current.ID
		saved, err := insertActivity(ctx, tx, a)
		if err != nil {
			return domain.Transition{}, fmt.Errorf("append activity: %w", err)
		}
		entries = append(entries, saved)
	}
	t.Activities = entries

	for _, s := range t.Suppressions {
		if err := addSuppression(ctx, tx, s); err != nil {
			return domain.Transition{}, fmt.Errorf("add suppression: %w", err)
		}
	}
	return t, nil
}

// updateLead writes only the columns that differ between before and after.
func updateLead(ctx context.Context, tx pgx.Tx, before, after domain.Lead) error {
	var sets []string
	var args []any
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if before.Score != after.Score {
		set("score", after.Score)
	}
	if before.Tier != after.Tier {
		set("score_tier", string(after.Tier))
	}
	if before.Status != after.Status {
		set("status", string(after.Status))
	}
	if before.CurrentStep != after.CurrentStep {
		set("current_step", after.CurrentStep)
	}
	if before.SequenceStatus != after.SequenceStatus {
		set("sequence_status", string(after.SequenceStatus))
	}
	if !sameTime(before.NextActionAt, after.NextActionAt) {
		set("next_action_at", after.NextActionAt)
	}
	if before.SMSOptOut != after.SMSOptOut {
		set("sms_opt_out", after.SMSOptOut)
	}
	if before.EmailOptOut != after.EmailOptOut {
		set("email_opt_out", after.EmailOptOut)
	}
	if before.CallOptOut != after.CallOptOut {
		set("call_opt_out", after.CallOptOut)
	}
	if before.Replied != after.Replied {
		set("replied", after.Replied)
	}
	if !sameTime(before.LastReplyAt, after.LastReplyAt) {
		set("last_reply_at", after.LastReplyAt)
	}
	if !sameTime(before.LastContactedAt, after.LastContactedAt) {
		set("last_contacted_at", after.LastContactedAt)
	}
	if before.TotalSMSSent != after.TotalSMSSent {
		set("total_sms_sent", after.TotalSMSSent)
	}
	if before.TotalEmailsSent != after.TotalEmailsSent {
		set("total_emails_sent", after.TotalEmailsSent)
	}
	if before.TotalCallsMade != after.TotalCallsMade {
		set("total_calls_made", after.TotalCallsMade)
	}

	if len(sets) == 0 {
		return nil
	}
	args = append(args, before.ID)
	query := fmt.Sprintf("UPDATE leads SET %s, updated_at = now() WHERE id = $%d",
		strings.Join(sets, ", "), len(args))
	_, err := tx.Exec(ctx, query, args...)
	return err
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
