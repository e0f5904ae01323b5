package repository

import (
	"context"
	"errors"
	"strconv"

	"outreach_backend/internal/outreach/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const settingSystemPaused = "system_paused"

// IsSystemPaused reads the emergency stop flag. A missing row means running.
func (r *Repository) IsSystemPaused(ctx context.Context) (bool, error) {
	var value string
	err := r.pool.QueryRow(ctx, `SELECT value FROM system_settings WHERE key = $1`, settingSystemPaused).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	paused, err := strconv.ParseBool(value)
	if err != nil {
		return false, nil
	}
	return paused, nil
}

func (r *Repository) SetSystemPaused(ctx context.Context, paused bool) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO system_settings (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		settingSystemPaused, strconv.FormatBool(paused))
	return err
}

func (r *Repository) InsertCallLog(ctx context.Context, log domain.CallLog) (domain.CallLog, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO call_logs (lead_id, provider_call_id, outcome, summary, duration_seconds)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		log.LeadID, log.ProviderCallID, string(log.Outcome), log.Summary, log.DurationSeconds,
	).Scan(&log.ID, &log.CreatedAt)
	return log, err
}

// LatestCallSummary returns the newest non-empty summary, or "" if none.
func (r *Repository) LatestCallSummary(ctx context.Context, leadID uuid.UUID) (string, error) {
	var summary string
	err := r.pool.QueryRow(ctx, `
		SELECT summary FROM call_logs
		WHERE lead_id = $1 AND summary <> ''
		ORDER BY id DESC
		LIMIT 1`, leadID).Scan(&summary)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return summary, err
}
