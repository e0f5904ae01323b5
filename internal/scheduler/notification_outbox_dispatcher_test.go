package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"outreach_backend/internal/notification/outbox"
	"outreach_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOutboxQueue struct {
	due      []outbox.Record
	claimErr error
	released map[uuid.UUID]string
	stale    int64
	swept    []time.Duration
}

func (q *fakeOutboxQueue) ClaimDue(_ context.Context, limit int) ([]outbox.Record, error) {
	if q.claimErr != nil {
		return nil, q.claimErr
	}
	n := min(limit, len(q.due))
	claimed := q.due[:n]
	q.due = q.due[n:]
	return claimed, nil
}

func (q *fakeOutboxQueue) Release(_ context.Context, id uuid.UUID, lastError string) error {
	if q.released == nil {
		q.released = make(map[uuid.UUID]string)
	}
	q.released[id] = lastError
	return nil
}

func (q *fakeOutboxQueue) RequeueStale(_ context.Context, olderThan time.Duration) (int64, error) {
	q.swept = append(q.swept, olderThan)
	return q.stale, nil
}

type fakeEnqueuer struct {
	tasks  []*asynq.Task
	failOn uuid.UUID
}

func (e *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	payload, err := ParseNotificationOutboxDuePayload(task)
	if err != nil {
		return nil, err
	}
	if payload.OutboxID == e.failOn {
		return nil, errors.New("redis unavailable")
	}
	e.tasks = append(e.tasks, task)
	return &asynq.TaskInfo{}, nil
}

func TestDispatchEnqueuesClaimedRecords(t *testing.T) {
	ok, broken := uuid.New(), uuid.New()
	q := &fakeOutboxQueue{due: []outbox.Record{
		{ID: ok, LeadID: uuid.New(), Kind: outbox.KindAutoAction, RunAt: time.Now()},
		{ID: broken, LeadID: uuid.New(), Kind: outbox.KindQualifyingNotification, RunAt: time.Now()},
	}}
	enq := &fakeEnqueuer{failOn: broken}
	d := &NotificationOutboxDispatcher{enq: enq, queue: "default", repo: q, log: logger.NewNop()}

	assert.Equal(t, 1, d.dispatch(context.Background()))
	require.Len(t, enq.tasks, 1)
	assert.Equal(t, TaskNotificationOutboxDue, enq.tasks[0].Type())
	assert.Equal(t, map[uuid.UUID]string{broken: "redis unavailable"}, q.released)
}

func TestDispatchClaimErrorEnqueuesNothing(t *testing.T) {
	q := &fakeOutboxQueue{claimErr: errors.New("db down")}
	enq := &fakeEnqueuer{}
	d := &NotificationOutboxDispatcher{enq: enq, repo: q, log: logger.NewNop()}

	assert.Zero(t, d.dispatch(context.Background()))
	assert.Empty(t, enq.tasks)
}

func TestSweepRequeuesStalledRecords(t *testing.T) {
	q := &fakeOutboxQueue{stale: 3}
	d := &NotificationOutboxDispatcher{repo: q, log: logger.NewNop()}

	d.sweep(context.Background())
	assert.Equal(t, []time.Duration{outboxStallAfter}, q.swept)
}
