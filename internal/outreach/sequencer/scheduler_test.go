package sequencer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"outreach_backend/internal/outreach/delivery"
	"outreach_backend/internal/outreach/domain"
	"outreach_backend/internal/outreach/outreachtest"
	"outreach_backend/internal/outreach/sendwindow"
	"outreach_backend/platform/lock"
	"outreach_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Tuesday afternoon.
var now = time.Date(2026, 6, 9, 14, 0, 0, 0, time.UTC)

type fakeSender struct {
	mu      sync.Mutex
	calls   []uuid.UUID
	result  *delivery.SendResult
	err     error
	panicOn uuid.UUID
	hang    chan struct{}
	onSend  func(leadID uuid.UUID)
}

func newFakeSender() *fakeSender {
	return &fakeSender{result: &delivery.SendResult{ProviderID: "ok"}}
}

func (f *fakeSender) Send(ctx context.Context, leadID uuid.UUID, templateID string) (*delivery.SendResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, leadID)
	f.mu.Unlock()
	if leadID == f.panicOn {
		panic("provider exploded")
	}
	if f.hang != nil {
		<-f.hang
	}
	if f.onSend != nil {
		f.onSend(leadID)
	}
	return f.result, f.err
}

func (f *fakeSender) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fixture struct {
	store     *outreachtest.Store
	calc      *sendwindow.Calculator
	sms       *fakeSender
	email     *fakeSender
	call      *fakeSender
	scheduler *Scheduler
	seq       domain.Sequence
}

func threePointSequence() domain.Sequence {
	return domain.Sequence{
		ID:   uuid.New(),
		Name: "default",
		Steps: []domain.Step{
			{Number: 1, Channel: domain.ChannelSMS, TemplateID: "sms_intro", StartHour: 9, EndHour: 20},
			{Number: 2, Channel: domain.ChannelEmail, DelayHours: 24, TemplateID: "email_follow", StartHour: 8, EndHour: 21},
			{Number: 3, Channel: domain.ChannelAICall, DelayHours: 48, TemplateID: "call_intro", StartHour: 10, EndHour: 17},
		},
	}
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	calc, err := sendwindow.New(time.UTC, sendwindow.DefaultRules())
	require.NoError(t, err)

	store := outreachtest.NewStore()
	store.Clock = func() time.Time { return now }
	seq := threePointSequence()
	require.NoError(t, store.UpsertSequence(context.Background(), seq))

	f := &fixture{store: store, calc: calc, sms: newFakeSender(), email: newFakeSender(), call: newFakeSender(), seq: seq}
	senders := map[domain.Channel]delivery.Sender{
		domain.ChannelSMS:    f.sms,
		domain.ChannelEmail:  f.email,
		domain.ChannelAICall: f.call,
	}
	f.scheduler = New(store, calc, senders, lock.NewKeyedMutex(), logger.NewNop(), opts...)
	return f
}

func (f *fixture) addLead(score int, mutate ...func(*domain.Lead)) domain.Lead {
	l := outreachtest.NewLead(score, domain.TierCold)
	l.SequenceID = &f.seq.ID
	for _, m := range mutate {
		m(&l)
	}
	f.store.PutLead(l)
	return l
}

func schedulerContext() SchedulerContext {
	return SchedulerContext{
		Now:         now,
		BatchSize:   50,
		Limits:      map[domain.ActivityChannel]int{domain.ActivitySMS: 200, domain.ActivityEmail: 500, domain.ActivityCall: 75},
		SendTimeout: time.Second,
	}
}

func TestPausedBatchTouchesNothing(t *testing.T) {
	f := newFixture(t)
	lead := f.addLead(10)
	f.store.MutateHook = func(uuid.UUID) error { return errors.New("no writes expected") }

	sc := schedulerContext()
	sc.Paused = true
	res := f.scheduler.RunBatch(context.Background(), sc)

	assert.Equal(t, BatchResult{Reason: ReasonSystemPaused}, res)
	assert.Equal(t, lead, f.store.Lead(lead.ID))
	assert.Empty(t, f.store.Activities(lead.ID))
	assert.Zero(t, f.sms.callCount())
}

func TestSendAdvancesAndSchedulesFollowingStep(t *testing.T) {
	f := newFixture(t)
	lead := f.addLead(10)

	res := f.scheduler.RunBatch(context.Background(), schedulerContext())
	assert.Equal(t, BatchResult{Processed: 1}, res)

	got := f.store.Lead(lead.ID)
	assert.Equal(t, 1, got.CurrentStep)
	assert.Equal(t, 1, got.TotalSMSSent)
	require.NotNil(t, got.LastContactedAt)
	assert.True(t, now.Equal(*got.LastContactedAt))
	require.NotNil(t, got.NextActionAt)
	assert.True(t, time.Date(2026, 6, 10, 14, 0, 0, 0, time.UTC).Equal(*got.NextActionAt),
		"email step is due 24h after the send, got %s", got.NextActionAt)
	assert.Equal(t, domain.SequenceActive, got.SequenceStatus)
}

func TestSkipConditionsAdvanceWithNote(t *testing.T) {
	threshold := 60
	cases := []struct {
		name   string
		step   func(*domain.Step)
		lead   func(*domain.Lead)
		reason string
	}{
		{
			name:   "replied",
			step:   func(s *domain.Step) { s.SkipIfReplied = true },
			lead:   func(l *domain.Lead) { l.Replied = true },
			reason: "already replied",
		},
		{
			name:   "score above threshold",
			step:   func(s *domain.Step) { s.SkipIfScoreAbove = &threshold },
			lead:   func(l *domain.Lead) { l.Score = 61 },
			reason: "score 61 above 60",
		},
		{
			name:   "opted out",
			step:   func(*domain.Step) {},
			lead:   func(l *domain.Lead) { l.SMSOptOut = true },
			reason: "opted out of sms",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			tc.step(&f.seq.Steps[0])
			require.NoError(t, f.store.UpsertSequence(context.Background(), f.seq))
			lead := f.addLead(10, tc.lead)

			res := f.scheduler.RunBatch(context.Background(), schedulerContext())
			assert.Equal(t, BatchResult{Skipped: 1}, res)
			assert.Zero(t, f.sms.callCount())

			got := f.store.Lead(lead.ID)
			assert.Equal(t, 1, got.CurrentStep)
			assert.Zero(t, got.TotalSMSSent)
			assert.Nil(t, got.LastContactedAt)

			entries := f.store.Activities(lead.ID)
			require.Len(t, entries, 1)
			assert.Equal(t, domain.ActivityStepSkipped, entries[0].Type)
			assert.Contains(t, entries[0].Content, tc.reason)
		})
	}
}

func TestScoreAtThresholdStillSends(t *testing.T) {
	f := newFixture(t)
	threshold := 60
	f.seq.Steps[0].SkipIfScoreAbove = &threshold
	require.NoError(t, f.store.UpsertSequence(context.Background(), f.seq))
	f.addLead(60)

	res := f.scheduler.RunBatch(context.Background(), schedulerContext())
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 1, f.sms.callCount())
}

func TestOutsideStepWindowDefersWithoutAdvancing(t *testing.T) {
	f := newFixture(t)
	lead := f.addLead(10)

	sc := schedulerContext()
	sc.Now = time.Date(2026, 6, 9, 6, 30, 0, 0, time.UTC)
	res := f.scheduler.RunBatch(context.Background(), sc)
	assert.Equal(t, BatchResult{Deferred: 1}, res)

	got := f.store.Lead(lead.ID)
	assert.Equal(t, 0, got.CurrentStep)
	assert.True(t, time.Date(2026, 6, 9, 9, 0, 0, 0, time.UTC).Equal(*got.NextActionAt))
	assert.Empty(t, f.store.Activities(lead.ID))
	assert.Zero(t, f.sms.callCount())
}

func TestStepSendDaysRestrictWindow(t *testing.T) {
	f := newFixture(t)
	f.seq.Steps[0].SendDays = []time.Weekday{time.Monday}
	require.NoError(t, f.store.UpsertSequence(context.Background(), f.seq))
	f.addLead(10)

	res := f.scheduler.RunBatch(context.Background(), schedulerContext())
	assert.Equal(t, 1, res.Deferred)
	assert.Zero(t, f.sms.callCount())
}

func TestDailyLimitDefersAtLeastTwelveHours(t *testing.T) {
	f := newFixture(t)
	lead := f.addLead(10)

	other := uuid.New()
	f.store.Clock = func() time.Time { return now.Add(-20 * time.Hour) }
	_, err := f.store.AppendActivity(context.Background(), domain.Activity{LeadID: other, Type: domain.ActivitySMSSent, Channel: domain.ActivitySMS, Direction: domain.DirectionOutbound})
	require.NoError(t, err)
	f.store.Clock = func() time.Time { return now.Add(-time.Hour) }
	for i := 0; i < 2; i++ {
		_, err := f.store.AppendActivity(context.Background(), domain.Activity{LeadID: other, Type: domain.ActivitySMSSent, Channel: domain.ActivitySMS, Direction: domain.DirectionOutbound})
		require.NoError(t, err)
	}

	sc := schedulerContext()
	sc.Limits[domain.ActivitySMS] = 2
	res := f.scheduler.RunBatch(context.Background(), sc)
	assert.Equal(t, BatchResult{Deferred: 1}, res)

	got := f.store.Lead(lead.ID)
	assert.Equal(t, 0, got.CurrentStep)
	assert.False(t, got.NextActionAt.Before(now.Add(12*time.Hour)))
	assert.True(t, time.Date(2026, 6, 10, 9, 0, 0, 0, time.UTC).Equal(*got.NextActionAt))
	assert.Zero(t, f.sms.callCount())

	sc.Limits[domain.ActivitySMS] = 3
	f.store.PutLead(lead)
	res = f.scheduler.RunBatch(context.Background(), sc)
	assert.Equal(t, 1, res.Processed, "yesterday's sends do not count")
}

func TestNilResultFailsWithoutAdvancing(t *testing.T) {
	f := newFixture(t)
	f.sms.result = nil
	lead := f.addLead(10)

	res := f.scheduler.RunBatch(context.Background(), schedulerContext())
	assert.Equal(t, BatchResult{Failed: 1}, res)

	got := f.store.Lead(lead.ID)
	assert.Equal(t, 0, got.CurrentStep)
	assert.Equal(t, lead.NextActionAt, got.NextActionAt)
	assert.Empty(t, f.store.Activities(lead.ID), "the sender ledgers its own failures")
}

func TestSendErrorIsLedgeredAndRetried(t *testing.T) {
	f := newFixture(t)
	f.sms.result = nil
	f.sms.err = errors.New("connection reset")
	lead := f.addLead(10)

	res := f.scheduler.RunBatch(context.Background(), schedulerContext())
	assert.Equal(t, BatchResult{Failed: 1}, res)

	entries := f.store.Activities(lead.ID)
	require.Len(t, entries, 1)
	assert.Equal(t, "sms_failed", entries[0].Type)
	assert.Equal(t, "connection reset", entries[0].Content)

	f.sms.result = &delivery.SendResult{ProviderID: "ok"}
	f.sms.err = nil
	res = f.scheduler.RunBatch(context.Background(), schedulerContext())
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 1, f.store.Lead(lead.ID).CurrentStep)
}

func TestStuckSendTimesOut(t *testing.T) {
	f := newFixture(t)
	f.sms.hang = make(chan struct{})
	defer close(f.sms.hang)
	lead := f.addLead(10)

	sc := schedulerContext()
	sc.SendTimeout = 20 * time.Millisecond
	res := f.scheduler.RunBatch(context.Background(), sc)
	assert.Equal(t, BatchResult{Failed: 1}, res)

	entries := f.store.Activities(lead.ID)
	require.Len(t, entries, 1)
	assert.Equal(t, "sms_failed", entries[0].Type)
	assert.Contains(t, entries[0].Content, "timed out")
	assert.Equal(t, 0, f.store.Lead(lead.ID).CurrentStep)
}

func TestConfigurationErrorStopsSequence(t *testing.T) {
	f := newFixture(t)
	f.sms.result = nil
	f.sms.err = fmt.Errorf("%w: sms_intro", delivery.ErrTemplateNotFound)
	lead := f.addLead(10)

	res := f.scheduler.RunBatch(context.Background(), schedulerContext())
	assert.Equal(t, BatchResult{Failed: 1}, res)

	got := f.store.Lead(lead.ID)
	assert.Equal(t, domain.SequenceStopped, got.SequenceStatus)
	assert.Equal(t, []string{domain.ActivitySequenceFailed}, f.store.ActivityTypes(lead.ID))

	res = f.scheduler.RunBatch(context.Background(), schedulerContext())
	assert.Equal(t, BatchResult{}, res, "stopped leads are not selected again")
}

func TestMissingSequenceStopsLead(t *testing.T) {
	f := newFixture(t)
	lead := f.addLead(10, func(l *domain.Lead) {
		id := uuid.New()
		l.SequenceID = &id
	})

	res := f.scheduler.RunBatch(context.Background(), schedulerContext())
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, domain.SequenceStopped, f.store.Lead(lead.ID).SequenceStatus)

	entries := f.store.Activities(lead.ID)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Content, "sequence missing")
}

func TestBlockedContactIsSkipped(t *testing.T) {
	f := newFixture(t)
	f.sms.result = nil
	f.sms.err = fmt.Errorf("%w: phone is suppressed", delivery.ErrContactBlocked)
	lead := f.addLead(10)

	res := f.scheduler.RunBatch(context.Background(), schedulerContext())
	assert.Equal(t, BatchResult{Skipped: 1}, res)

	got := f.store.Lead(lead.ID)
	assert.Equal(t, 1, got.CurrentStep)
	assert.Zero(t, got.TotalSMSSent)
	assert.Equal(t, []string{domain.ActivityStepSkipped}, f.store.ActivityTypes(lead.ID))
}

func TestLastStepCompletesSequence(t *testing.T) {
	f := newFixture(t)
	lead := f.addLead(10, func(l *domain.Lead) { l.CurrentStep = 2 })

	res := f.scheduler.RunBatch(context.Background(), schedulerContext())
	assert.Equal(t, BatchResult{Processed: 1, Completed: 1}, res)
	assert.Equal(t, 1, f.call.callCount())

	got := f.store.Lead(lead.ID)
	assert.Equal(t, 3, got.CurrentStep)
	assert.Equal(t, 1, got.TotalCallsMade)
	assert.Equal(t, domain.SequenceCompleted, got.SequenceStatus)
	assert.Equal(t, []string{domain.ActivitySequenceCompleted}, f.store.ActivityTypes(lead.ID))
}

func TestNoNextStepCompletesWithoutSending(t *testing.T) {
	f := newFixture(t)
	lead := f.addLead(10, func(l *domain.Lead) { l.CurrentStep = 3 })

	res := f.scheduler.RunBatch(context.Background(), schedulerContext())
	assert.Equal(t, BatchResult{Completed: 1}, res)
	assert.Zero(t, f.call.callCount())

	got := f.store.Lead(lead.ID)
	assert.Equal(t, 3, got.CurrentStep)
	assert.Equal(t, domain.SequenceCompleted, got.SequenceStatus)
}

func TestPanicIsIsolatedPerLead(t *testing.T) {
	f := newFixture(t)
	bad := f.addLead(50)
	good := f.addLead(10)
	f.store.MutateHook = func(id uuid.UUID) error {
		if id == bad.ID {
			panic("row exploded")
		}
		return nil
	}

	res := f.scheduler.RunBatch(context.Background(), schedulerContext())
	assert.Equal(t, 1, res.Errors)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 1, f.store.Lead(good.ID).CurrentStep)
}

func TestSenderPanicCountsAsFailure(t *testing.T) {
	f := newFixture(t)
	lead := f.addLead(10)
	f.sms.panicOn = lead.ID

	res := f.scheduler.RunBatch(context.Background(), schedulerContext())
	assert.Equal(t, BatchResult{Failed: 1}, res)
	assert.Equal(t, []string{"sms_failed"}, f.store.ActivityTypes(lead.ID))
}

func TestBatchTakesHighestScoresFirst(t *testing.T) {
	f := newFixture(t)
	low := f.addLead(5)
	high := f.addLead(40)
	mid := f.addLead(20)

	sc := schedulerContext()
	sc.BatchSize = 2
	res := f.scheduler.RunBatch(context.Background(), sc)
	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, []uuid.UUID{high.ID, mid.ID}, f.sms.calls)
	assert.Equal(t, 0, f.store.Lead(low.ID).CurrentStep)
}

func TestLeadPausedAfterSelectionIsIgnored(t *testing.T) {
	f := newFixture(t)
	lead := f.addLead(10)

	// Simulate a reply landing between selection and the per-lead reload.
	store := &pausingStore{Store: f.store, pause: lead.ID}
	f.scheduler.store = store

	res := f.scheduler.RunBatch(context.Background(), schedulerContext())
	assert.Equal(t, BatchResult{}, res)
	assert.Zero(t, f.sms.callCount())
}

type pausingStore struct {
	*outreachtest.Store
	pause uuid.UUID
}

func (p *pausingStore) ListReadyLeads(ctx context.Context, at time.Time, limit int) ([]domain.Lead, error) {
	leads, err := p.Store.ListReadyLeads(ctx, at, limit)
	if err != nil {
		return nil, err
	}
	l := p.Store.Lead(p.pause)
	l.SequenceStatus = domain.SequencePaused
	p.Store.PutLead(l)
	return leads, nil
}

func TestParallelBatchProcessesEveryLead(t *testing.T) {
	f := newFixture(t, WithConcurrency(4))
	var ids []uuid.UUID
	for i := 0; i < 12; i++ {
		ids = append(ids, f.addLead(i).ID)
	}

	res := f.scheduler.RunBatch(context.Background(), schedulerContext())
	assert.Equal(t, 12, res.Processed)
	for _, id := range ids {
		got := f.store.Lead(id)
		assert.Equal(t, 1, got.CurrentStep)
		assert.Equal(t, 1, got.TotalSMSSent)
	}
}

func TestPauseDuringSendKeepsCountersAndMovesPastStep(t *testing.T) {
	f := newFixture(t)
	lead := f.addLead(10)
	f.sms.onSend = func(id uuid.UUID) {
		_, err := f.store.MutateLead(context.Background(), id, func(cur domain.Lead) (domain.Transition, error) {
			next := cur
			next.SequenceStatus = domain.SequencePaused
			next.NextActionAt = nil
			return domain.Transition{Before: cur, After: next}, nil
		})
		require.NoError(t, err)
	}

	res := f.scheduler.RunBatch(context.Background(), schedulerContext())
	assert.Equal(t, BatchResult{Processed: 1}, res)

	got := f.store.Lead(lead.ID)
	assert.Equal(t, domain.SequencePaused, got.SequenceStatus)
	assert.Equal(t, 1, got.CurrentStep)
	assert.Equal(t, 1, got.TotalSMSSent)
	require.NotNil(t, got.LastContactedAt)
	assert.True(t, got.LastContactedAt.Equal(now))
	assert.Nil(t, got.NextActionAt)
}

func TestRestartDuringSendOnlyCountsTheSend(t *testing.T) {
	f := newFixture(t)
	lead := f.addLead(10, func(l *domain.Lead) { l.CurrentStep = 1 })
	f.email.onSend = func(id uuid.UUID) {
		_, err := f.store.MutateLead(context.Background(), id, func(cur domain.Lead) (domain.Transition, error) {
			next := cur
			next.CurrentStep = 0
			return domain.Transition{Before: cur, After: next}, nil
		})
		require.NoError(t, err)
	}

	res := f.scheduler.RunBatch(context.Background(), schedulerContext())
	assert.Equal(t, BatchResult{Processed: 1}, res)

	got := f.store.Lead(lead.ID)
	assert.Equal(t, 0, got.CurrentStep)
	assert.Equal(t, 1, got.TotalEmailsSent)
	assert.Equal(t, domain.SequenceActive, got.SequenceStatus)
}
