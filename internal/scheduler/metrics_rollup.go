package scheduler

import (
	"context"
	"fmt"
	"time"

	"outreach_backend/internal/outreach/repository"
	"outreach_backend/platform/logger"
)

const rollupDayLayout = "2006-01-02"

// MetricsRollup aggregates one local day of the activity ledger into
// daily_metrics. Re-running a day overwrites its totals.
type MetricsRollup struct {
	store repository.MetricsWriter
	loc   *time.Location
	now   func() time.Time
	log   *logger.Logger
}

func NewMetricsRollup(store repository.MetricsWriter, loc *time.Location, log *logger.Logger) *MetricsRollup {
	if loc == nil {
		loc = time.UTC
	}
	return &MetricsRollup{
		store: store,
		loc:   loc,
		now:   time.Now,
		log:   log,
	}
}

// WithClock overrides the time source used when no day is given.
func (r *MetricsRollup) WithClock(now func() time.Time) *MetricsRollup {
	r.now = now
	return r
}

// Run rolls up day (YYYY-MM-DD, local) or today when day is empty. It returns
// the number of activity types written.
func (r *MetricsRollup) Run(ctx context.Context, day string) (int, error) {
	d := r.now().In(r.loc)
	if day != "" {
		parsed, err := time.ParseInLocation(rollupDayLayout, day, r.loc)
		if err != nil {
			return 0, fmt.Errorf("parse rollup day %q: %w", day, err)
		}
		d = parsed
	}

	from := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, r.loc)
	to := from.AddDate(0, 0, 1)

	n, err := r.store.RollupDailyMetrics(ctx, from, to, from)
	if err != nil {
		r.log.DatabaseError("rollup daily metrics", err)
		return 0, err
	}
	r.log.Info("daily metrics rolled up", "day", from.Format(rollupDayLayout), "types", n)
	return n, nil
}
