package repository

import (
	"context"
	"errors"
	"fmt"

	"outreach_backend/internal/outreach/domain"
	"outreach_backend/platform/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

func (r *Repository) GetSequence(ctx context.Context, id uuid.UUID) (domain.Sequence, error) {
	var seq domain.Sequence
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, description FROM sequences WHERE id = $1`, id,
	).Scan(&seq.ID, &seq.Name, &seq.Description)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Sequence{}, ErrNotFound
		}
		return domain.Sequence{}, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT step_number, channel, delay_hours, template_id, start_hour, end_hour,
		       send_days, skip_if_replied, skip_if_score_above
		FROM sequence_steps
		WHERE sequence_id = $1
		ORDER BY step_number ASC`, id)
	if err != nil {
		return domain.Sequence{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var step domain.Step
		var channel, sendDays string
		if err := rows.Scan(&step.Number, &channel, &step.DelayHours, &step.TemplateID, &step.StartHour,
			&step.EndHour, &sendDays, &step.SkipIfReplied, &step.SkipIfScoreAbove); err != nil {
			return domain.Sequence{}, err
		}
		step.Channel = domain.Channel(channel)
		days, err := domain.ParseSendDays(sendDays)
		if err != nil {
			return domain.Sequence{}, fmt.Errorf("sequence %s step %d: %w", id, step.Number, err)
		}
		step.SendDays = days
		seq.Steps = append(seq.Steps, step)
	}
	if rows.Err() != nil {
		return domain.Sequence{}, rows.Err()
	}
	return seq, nil
}

// UpsertSequence replaces a sequence and all of its steps.
func (r *Repository) UpsertSequence(ctx context.Context, seq domain.Sequence) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO sequences (id, name, description)
			VALUES ($1, $2, $3)
			ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, description = EXCLUDED.description, updated_at = now()`,
			seq.ID, seq.Name, seq.Description); err != nil {
			return fmt.Errorf("upsert sequence: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM sequence_steps WHERE sequence_id = $1`, seq.ID); err != nil {
			return fmt.Errorf("clear steps: %w", err)
		}
		for _, step := range seq.Steps {
			if _, err := tx.Exec(ctx, `
				INSERT INTO sequence_steps (sequence_id, step_number, channel, delay_hours, template_id,
					start_hour, end_hour, send_days, skip_if_replied, skip_if_score_above)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
				seq.ID, step.Number, string(step.Channel), step.DelayHours, step.TemplateID,
				step.StartHour, step.EndHour, domain.FormatSendDays(step.SendDays), step.SkipIfReplied, step.SkipIfScoreAbove,
			); err != nil {
				return fmt.Errorf("insert step %d: %w", step.Number, err)
			}
		}
		return nil
	})
}

func (r *Repository) GetTemplate(ctx context.Context, id string) (domain.Template, error) {
	var tpl domain.Template
	var channel string
	err := r.pool.QueryRow(ctx,
		`SELECT id, channel, subject, body FROM templates WHERE id = $1`, id,
	).Scan(&tpl.ID, &channel, &tpl.Subject, &tpl.Body)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Template{}, ErrNotFound
		}
		return domain.Template{}, err
	}
	tpl.Channel = domain.Channel(channel)
	return tpl, nil
}

func (r *Repository) UpsertTemplate(ctx context.Context, tpl domain.Template) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO templates (id, channel, subject, body)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET channel = EXCLUDED.channel, subject = EXCLUDED.subject, body = EXCLUDED.body`,
		tpl.ID, string(tpl.Channel), tpl.Subject, tpl.Body)
	return err
}
