// Package sequencer advances leads through their outreach sequences. One
// batch selects due leads by score and, per lead under its lock, decides to
// skip, defer, send or complete the next step.
package sequencer

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"outreach_backend/internal/outreach/delivery"
	"outreach_backend/internal/outreach/domain"
	"outreach_backend/internal/outreach/repository"
	"outreach_backend/internal/outreach/sendwindow"
	"outreach_backend/platform/lock"
	"outreach_backend/platform/logger"
	"outreach_backend/platform/sanitize"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ReasonSystemPaused is reported when the emergency pause is on.
const ReasonSystemPaused = "system_paused"

// rateLimitDelayHours pushes a capped channel to the next day's window.
const rateLimitDelayHours = 12

// ErrSequenceMissing means an active lead has no loadable sequence.
var ErrSequenceMissing = errors.New("sequence missing")

// SchedulerContext is everything one batch depends on besides the store.
// The runner builds it fresh on every tick.
type SchedulerContext struct {
	Now         time.Time
	Paused      bool
	BatchSize   int
	Limits      map[domain.ActivityChannel]int
	SendTimeout time.Duration
}

// BatchResult counts what a batch did. Processed counts successful sends;
// Failed includes sequences stopped on a configuration error.
type BatchResult struct {
	Processed int    `json:"processed"`
	Skipped   int    `json:"skipped"`
	Deferred  int    `json:"deferred"`
	Failed    int    `json:"failed"`
	Completed int    `json:"completed"`
	Errors    int    `json:"errors"`
	Reason    string `json:"reason,omitempty"`
}

type outcome int

const (
	outcomeIgnored outcome = iota
	outcomeSent
	outcomeSkipped
	outcomeDeferred
	outcomeFailed
	outcomeStopped
)

type leadResult struct {
	outcome   outcome
	completed bool
}

func (r *BatchResult) add(res leadResult) {
	switch res.outcome {
	case outcomeSent:
		r.Processed++
	case outcomeSkipped:
		r.Skipped++
	case outcomeDeferred:
		r.Deferred++
	case outcomeFailed, outcomeStopped:
		r.Failed++
	}
	if res.completed {
		r.Completed++
	}
}

// Store is the persistence the scheduler needs.
type Store interface {
	repository.ReadyLeadLister
	repository.LeadReader
	repository.LeadMutator
	repository.ActivityLedger
	repository.SequenceReader
}

type Scheduler struct {
	store       Store
	windows     *sendwindow.Calculator
	senders     map[domain.Channel]delivery.Sender
	locks       *lock.KeyedMutex
	concurrency int
	log         *logger.Logger
}

type Option func(*Scheduler)

// WithConcurrency processes up to n leads of a batch in parallel. Leads are
// still locked one at a time each.
func WithConcurrency(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// New wires a scheduler. locks must be the same KeyedMutex the lifecycle
// service uses.
func New(store Store, windows *sendwindow.Calculator, senders map[domain.Channel]delivery.Sender, locks *lock.KeyedMutex, log *logger.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:       store,
		windows:     windows,
		senders:     senders,
		locks:       locks,
		concurrency: 1,
		log:         log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunBatch runs one tick. The pause flag is checked before anything is read.
// Per-lead errors and panics are counted and never abort the batch.
func (s *Scheduler) RunBatch(ctx context.Context, sc SchedulerContext) BatchResult {
	if sc.Paused {
		return BatchResult{Reason: ReasonSystemPaused}
	}

	leads, err := s.store.ListReadyLeads(ctx, sc.Now, sc.BatchSize)
	if err != nil {
		s.log.DatabaseError("list ready leads", err)
		return BatchResult{Errors: 1}
	}

	var (
		mu     sync.Mutex
		result BatchResult
		g      errgroup.Group
	)
	g.SetLimit(s.concurrency)
	for _, l := range leads {
		if ctx.Err() != nil {
			break
		}
		id := l.ID
		g.Go(func() error {
			res, err := s.processSafely(ctx, sc, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Errors++
				s.log.Error("sequence step failed", "leadId", id, "error", err)
				return nil
			}
			result.add(res)
			return nil
		})
	}
	_ = g.Wait()
	return result
}

func (s *Scheduler) processSafely(ctx context.Context, sc SchedulerContext, id uuid.UUID) (res leadResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			s.log.WithContext(ctx).Error("sequence step panicked", "panic", r, "stack", string(debug.Stack()))
		}
	}()
	ctx = context.WithValue(ctx, logger.LeadIDKey, id.String())
	return s.processLead(ctx, sc, id)
}

// processLead holds the lead's lock for the whole step, send included, so a
// webhook event for the same lead waits for the step to finish.
func (s *Scheduler) processLead(ctx context.Context, sc SchedulerContext, id uuid.UUID) (leadResult, error) {
	unlock := s.locks.Lock(id.String())
	defer unlock()

	lead, err := s.store.GetLead(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return leadResult{}, nil
	}
	if err != nil {
		return leadResult{}, fmt.Errorf("reload lead: %w", err)
	}
	// Paused, replied-and-paused or routed away since selection.
	if !lead.DueAt(sc.Now) {
		return leadResult{}, nil
	}

	seq, err := s.loadSequence(ctx, lead)
	if err != nil {
		if errors.Is(err, ErrSequenceMissing) {
			return s.stop(ctx, lead, err)
		}
		return leadResult{}, err
	}

	step, ok := seq.Next(lead.CurrentStep)
	if !ok {
		return s.complete(ctx, lead, seq)
	}

	if reason := skipReason(lead, step); reason != "" {
		return s.advance(ctx, sc.Now, lead, seq, step, false, reason)
	}

	if !s.windows.IsWithinWindowAt(sc.Now, step.StartHour, step.EndHour, step.SendDays) {
		return s.deferTo(ctx, lead, s.windows.NextValidSendTimeAt(sc.Now, step.Channel, 0))
	}

	channel := step.Channel.Ledger()
	if limit, ok := sc.Limits[channel]; ok {
		sent, err := s.store.CountOutboundSince(ctx, channel, s.windows.StartOfDay(sc.Now))
		if err != nil {
			return leadResult{}, fmt.Errorf("count %s sends: %w", channel, err)
		}
		if sent >= limit {
			s.log.WithContext(ctx).Info("daily limit reached", "channel", channel, "sent", sent, "limit", limit)
			return s.deferTo(ctx, lead, s.windows.NextValidSendTimeAt(sc.Now, step.Channel, rateLimitDelayHours))
		}
	}

	sender, ok := s.senders[step.Channel]
	if !ok {
		return leadResult{}, fmt.Errorf("no sender for channel %s", step.Channel)
	}

	res, err := s.send(ctx, sc.SendTimeout, sender, lead.ID, step.TemplateID)
	switch {
	case errors.Is(err, delivery.ErrContactBlocked):
		return s.advance(ctx, sc.Now, lead, seq, step, false, err.Error())
	case delivery.IsConfigError(err):
		return s.stop(ctx, lead, fmt.Errorf("step %d: %w", step.Number, err))
	case err != nil:
		return s.recordFailure(ctx, lead, step, err)
	case res == nil:
		return leadResult{outcome: outcomeFailed}, nil
	}
	return s.advance(ctx, sc.Now, lead, seq, step, true, "")
}

func (s *Scheduler) loadSequence(ctx context.Context, lead domain.Lead) (domain.Sequence, error) {
	if lead.SequenceID == nil {
		return domain.Sequence{}, fmt.Errorf("%w: lead has no sequence", ErrSequenceMissing)
	}
	seq, err := s.store.GetSequence(ctx, *lead.SequenceID)
	if errors.Is(err, repository.ErrNotFound) {
		return domain.Sequence{}, fmt.Errorf("%w: %s", ErrSequenceMissing, *lead.SequenceID)
	}
	if err != nil {
		return domain.Sequence{}, fmt.Errorf("load sequence: %w", err)
	}
	return seq, nil
}

func skipReason(lead domain.Lead, step domain.Step) string {
	switch {
	case step.SkipIfReplied && lead.Replied:
		return "lead already replied"
	case step.SkipIfScoreAbove != nil && lead.Score > *step.SkipIfScoreAbove:
		return fmt.Sprintf("score %d above %d", lead.Score, *step.SkipIfScoreAbove)
	case step.Channel.OptedOut(lead):
		return fmt.Sprintf("lead opted out of %s", step.Channel)
	}
	return ""
}

// send bounds the sender call by timeout. A sender that ignores its context
// is abandoned once the deadline passes.
func (s *Scheduler) send(ctx context.Context, timeout time.Duration, sender delivery.Sender, leadID uuid.UUID, templateID string) (*delivery.SendResult, error) {
	sendCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type reply struct {
		res *delivery.SendResult
		err error
	}
	done := make(chan reply, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- reply{err: fmt.Errorf("sender panic: %v", r)}
			}
		}()
		res, err := sender.Send(sendCtx, leadID, templateID)
		done <- reply{res: res, err: err}
	}()

	select {
	case r := <-done:
		return r.res, r.err
	case <-sendCtx.Done():
		return nil, fmt.Errorf("send timed out after %s: %w", timeout, sendCtx.Err())
	}
}

// guarded applies fn only while the lead is still active at the step the
// scheduler read, which makes a repeated advance a no-op.
func (s *Scheduler) guarded(ctx context.Context, lead domain.Lead, fn func(cur domain.Lead) domain.Transition) (domain.Transition, bool, error) {
	applied := false
	t, err := s.store.MutateLead(ctx, lead.ID, func(cur domain.Lead) (domain.Transition, error) {
		if cur.SequenceStatus != domain.SequenceActive || cur.CurrentStep != lead.CurrentStep {
			return domain.Unchanged(cur), nil
		}
		applied = true
		return fn(cur), nil
	})
	if err != nil {
		return domain.Transition{}, false, err
	}
	return t, applied, nil
}

// advance moves past step, after a send or a skip, and schedules the
// following step from now or completes the sequence.
func (s *Scheduler) advance(ctx context.Context, now time.Time, lead domain.Lead, seq domain.Sequence, step domain.Step, sent bool, reason string) (leadResult, error) {
	completed := false
	_, applied, err := s.guarded(ctx, lead, func(cur domain.Lead) domain.Transition {
		next := cur
		next.CurrentStep++
		t := domain.Transition{Before: cur}
		if reason != "" {
			t = t.Record(domain.Note(cur.ID, domain.ActivityStepSkipped,
				fmt.Sprintf("Step %d (%s) skipped: %s", step.Number, step.Channel, reason)))
		}
		if sent {
			next = step.Channel.WithSendCounted(next)
			at := now
			next.LastContactedAt = &at
		}
		if following, ok := seq.Next(next.CurrentStep); ok {
			at := s.windows.NextValidSendTimeAt(now, following.Channel, following.DelayHours)
			next.NextActionAt = &at
		} else {
			next.SequenceStatus = domain.SequenceCompleted
			completed = true
			t = t.Record(completedNote(cur.ID, seq))
		}
		t.After = next
		return t
	})
	if err != nil {
		return leadResult{}, fmt.Errorf("advance step %d: %w", step.Number, err)
	}
	if !applied && sent {
		return s.recordLateSend(ctx, now, lead, step)
	}
	if !applied {
		return leadResult{}, nil
	}
	res := leadResult{outcome: outcomeSent, completed: completed}
	if !sent {
		res.outcome = outcomeSkipped
	}
	return res, nil
}

// recordLateSend handles a send that went out after the lead left the active
// sequence, usually a pause from the API. The send counters and contact time
// are kept. The step moves on only if nobody else moved it, so a resume does
// not repeat the message. Status and next_action_at are left to whoever
// changed them.
func (s *Scheduler) recordLateSend(ctx context.Context, now time.Time, lead domain.Lead, step domain.Step) (leadResult, error) {
	var status domain.SequenceStatus
	_, err := s.store.MutateLead(ctx, lead.ID, func(cur domain.Lead) (domain.Transition, error) {
		status = cur.SequenceStatus
		next := step.Channel.WithSendCounted(cur)
		at := now
		next.LastContactedAt = &at
		if cur.CurrentStep == lead.CurrentStep {
			next.CurrentStep++
		}
		return domain.Transition{Before: cur, After: next}, nil
	})
	if err != nil {
		return leadResult{}, fmt.Errorf("record send for step %d: %w", step.Number, err)
	}
	s.log.WithContext(ctx).Warn("lead left the sequence during send",
		"step", step.Number, "channel", step.Channel, "sequenceStatus", status)
	return leadResult{outcome: outcomeSent}, nil
}

func (s *Scheduler) complete(ctx context.Context, lead domain.Lead, seq domain.Sequence) (leadResult, error) {
	_, applied, err := s.guarded(ctx, lead, func(cur domain.Lead) domain.Transition {
		next := cur
		next.SequenceStatus = domain.SequenceCompleted
		return domain.Transition{Before: cur, After: next}.Record(completedNote(cur.ID, seq))
	})
	if err != nil {
		return leadResult{}, fmt.Errorf("complete sequence: %w", err)
	}
	return leadResult{completed: applied}, nil
}

func completedNote(leadID uuid.UUID, seq domain.Sequence) domain.Activity {
	return domain.Note(leadID, domain.ActivitySequenceCompleted,
		fmt.Sprintf("Sequence completed: all %d steps executed", seq.Len()))
}

// stop ends automation for a lead whose configuration cannot work.
func (s *Scheduler) stop(ctx context.Context, lead domain.Lead, cause error) (leadResult, error) {
	s.log.Warn("sequence stopped on configuration error", "leadId", lead.ID, "error", cause)
	_, applied, err := s.guarded(ctx, lead, func(cur domain.Lead) domain.Transition {
		next := cur
		next.SequenceStatus = domain.SequenceStopped
		return domain.Transition{Before: cur, After: next}.Record(domain.Note(cur.ID, domain.ActivitySequenceFailed,
			sanitize.Truncate("Sequence stopped: "+cause.Error(), 500)))
	})
	if err != nil {
		return leadResult{}, fmt.Errorf("stop sequence: %w", err)
	}
	if !applied {
		return leadResult{}, nil
	}
	return leadResult{outcome: outcomeStopped}, nil
}

// deferTo moves next_action_at without touching the step.
func (s *Scheduler) deferTo(ctx context.Context, lead domain.Lead, at time.Time) (leadResult, error) {
	_, applied, err := s.guarded(ctx, lead, func(cur domain.Lead) domain.Transition {
		next := cur
		next.NextActionAt = &at
		return domain.Transition{Before: cur, After: next}
	})
	if err != nil {
		return leadResult{}, fmt.Errorf("defer lead: %w", err)
	}
	if !applied {
		return leadResult{}, nil
	}
	return leadResult{outcome: outcomeDeferred}, nil
}

// recordFailure ledgers a send that errored or timed out. The step is
// retried on the next tick.
func (s *Scheduler) recordFailure(ctx context.Context, lead domain.Lead, step domain.Step, cause error) (leadResult, error) {
	s.log.WithContext(ctx).SendAttempt(string(step.Channel), lead.ID.String(), false, cause)
	_, err := s.store.AppendActivity(context.WithoutCancel(ctx), domain.Activity{
		LeadID:    lead.ID,
		Type:      step.Channel.FailedType(),
		Channel:   step.Channel.Ledger(),
		Direction: domain.DirectionNone,
		Content:   sanitize.Truncate(cause.Error(), 500),
	})
	if err != nil {
		return leadResult{}, fmt.Errorf("record failure: %w", err)
	}
	return leadResult{outcome: outcomeFailed}, nil
}
