package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"outreach_backend/internal/events"
	"outreach_backend/internal/outreach/domain"
	"outreach_backend/internal/outreach/lifecycle"
	"outreach_backend/internal/outreach/outreachtest"
	"outreach_backend/platform/config"
	"outreach_backend/platform/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutboxDueTaskRoundTrip(t *testing.T) {
	id := uuid.New()
	task, err := NewNotificationOutboxDueTask(id)
	require.NoError(t, err)
	assert.Equal(t, TaskNotificationOutboxDue, task.Type())

	payload, err := ParseNotificationOutboxDuePayload(task)
	require.NoError(t, err)
	assert.Equal(t, id, payload.OutboxID)

	_, err = NewNotificationOutboxDueTask(uuid.Nil)
	require.Error(t, err)
}

func TestParseOutboxDuePayloadRejectsBadInput(t *testing.T) {
	for _, raw := range []string{"", `{"outboxId":"not-a-uuid"}`, `{`} {
		_, err := ParseNotificationOutboxDuePayload(asynq.NewTask(TaskNotificationOutboxDue, []byte(raw)))
		require.Error(t, err, raw)
		assert.ErrorIs(t, err, asynq.SkipRetry, raw)
	}
}

func TestParseMetricsRollupPayloadEmpty(t *testing.T) {
	payload, err := ParseMetricsRollupPayload(asynq.NewTask(TaskMetricsRollup, nil))
	require.NoError(t, err)
	assert.Empty(t, payload.Day)
}

func TestRedisClientOpt(t *testing.T) {
	opt, err := redisClientOpt("rediss://:secret@cache.internal:6380/2", true)
	require.NoError(t, err)
	assert.Equal(t, "cache.internal:6380", opt.Addr)
	assert.Equal(t, "secret", opt.Password)
	assert.Equal(t, 2, opt.DB)
	require.NotNil(t, opt.TLSConfig)
	assert.True(t, opt.TLSConfig.InsecureSkipVerify)

	opt, err = redisClientOpt("redis://localhost:6379/0", false)
	require.NoError(t, err)
	assert.Nil(t, opt.TLSConfig)
}

func TestNewRedisClient(t *testing.T) {
	client, err := NewRedisClient(&config.Config{})
	require.NoError(t, err)
	assert.Nil(t, client)

	mr := miniredis.RunT(t)
	client, err = NewRedisClient(&config.Config{RedisURL: "redis://" + mr.Addr() + "/0"})
	require.NoError(t, err)
	require.NotNil(t, client)
	t.Cleanup(func() { _ = client.Close() })
	assert.NoError(t, client.Ping(context.Background()).Err())
}

func TestMetricsRollupUsesLocalDay(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	store := outreachtest.NewStore()
	lead := outreachtest.NewLead(10, domain.TierCold)
	store.PutLead(lead)

	// 23:30 local on June 9 is already June 10 in UTC.
	stamps := []time.Time{
		time.Date(2026, 6, 9, 8, 0, 0, 0, ny),
		time.Date(2026, 6, 9, 23, 30, 0, 0, ny),
		time.Date(2026, 6, 10, 0, 30, 0, 0, ny),
	}
	for _, at := range stamps {
		store.Clock = func() time.Time { return at }
		_, err := store.AppendActivity(context.Background(), domain.Note(lead.ID, domain.ActivitySMSSent, "hi"))
		require.NoError(t, err)
	}

	r := NewMetricsRollup(store, ny, logger.NewNop()).
		WithClock(func() time.Time { return time.Date(2026, 6, 10, 3, 59, 0, 0, time.UTC) })

	n, err := r.Run(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, map[string]int{domain.ActivitySMSSent: 2}, store.Metrics("2026-06-09"))

	_, err = r.Run(context.Background(), "2026-06-10")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{domain.ActivitySMSSent: 1}, store.Metrics("2026-06-10"))

	_, err = r.Run(context.Background(), "June 10")
	require.Error(t, err)
}

type fakeDecayer struct {
	calls int
	err   error
}

func (f *fakeDecayer) Decay(context.Context) (lifecycle.DecayResult, error) {
	f.calls++
	return lifecycle.DecayResult{}, f.err
}

func TestWorkerPublishesOutboxDue(t *testing.T) {
	bus := events.NewInMemoryBus(logger.NewNop())
	var mu sync.Mutex
	var got []uuid.UUID
	bus.Subscribe(events.NotificationOutboxDue{}.EventName(), events.HandlerFunc(func(_ context.Context, e events.Event) error {
		mu.Lock()
		got = append(got, e.(events.NotificationOutboxDue).OutboxID)
		mu.Unlock()
		return nil
	}))
	w := &Worker{bus: bus, log: logger.NewNop()}

	id := uuid.New()
	task, err := NewNotificationOutboxDueTask(id)
	require.NoError(t, err)
	require.NoError(t, w.handleNotificationOutboxDue(context.Background(), task))
	assert.Equal(t, []uuid.UUID{id}, got)

	bad := asynq.NewTask(TaskNotificationOutboxDue, []byte(`{"outboxId":"nope"}`))
	require.Error(t, w.handleNotificationOutboxDue(context.Background(), bad))
}

func TestWorkerScoreDecay(t *testing.T) {
	d := &fakeDecayer{}
	w := &Worker{decayer: d, log: logger.NewNop()}

	require.NoError(t, w.handleScoreDecay(context.Background(), NewScoreDecayTask()))
	assert.Equal(t, 1, d.calls)

	d.err = errors.New("db down")
	require.Error(t, w.handleScoreDecay(context.Background(), NewScoreDecayTask()))
}

func TestWorkerMetricsRollup(t *testing.T) {
	store := outreachtest.NewStore()
	store.Clock = func() time.Time { return time.Date(2026, 6, 9, 12, 0, 0, 0, time.UTC) }
	_, err := store.AppendActivity(context.Background(), domain.Note(uuid.New(), domain.ActivityEmailSent, "x"))
	require.NoError(t, err)
	r := NewMetricsRollup(store, time.UTC, logger.NewNop())
	w := &Worker{rollup: r, log: logger.NewNop()}

	task, err := NewMetricsRollupTask(MetricsRollupPayload{Day: "2026-06-09"})
	require.NoError(t, err)
	require.NoError(t, w.handleMetricsRollup(context.Background(), task))
	assert.Equal(t, map[string]int{domain.ActivityEmailSent: 1}, store.Metrics("2026-06-09"))

	require.Error(t, w.handleMetricsRollup(context.Background(), asynq.NewTask(TaskMetricsRollup, []byte("{"))))
}
