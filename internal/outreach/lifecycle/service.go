// Package lifecycle runs scoring and routing for externally triggered lead
// events. Each operation computes a pure transition from the locked lead row,
// persists it atomically and dispatches side effects after commit.
package lifecycle

import (
	"context"
	"errors"
	"time"

	"outreach_backend/internal/events"
	"outreach_backend/internal/outreach/domain"
	"outreach_backend/internal/outreach/repository"
	"outreach_backend/internal/outreach/routing"
	"outreach_backend/internal/outreach/scoring"
	"outreach_backend/platform/apperr"
	"outreach_backend/platform/lock"
	"outreach_backend/platform/logger"

	"github.com/google/uuid"
)

// Notifier receives router side effects once the transition has committed.
type Notifier interface {
	Notify(ctx context.Context, lead domain.Lead, n domain.Notification) error
	EnqueueAutoAction(ctx context.Context, lead domain.Lead, a domain.AutoAction) error
}

// Outcome describes the committed result of one operation.
type Outcome struct {
	Lead        domain.Lead
	Action      routing.Action
	TierChanged bool
	OldTier     domain.Tier
	NewTier     domain.Tier
	Activities  []domain.Activity
}

type Service struct {
	store    repository.Store
	engine   *scoring.Engine
	locks    *lock.KeyedMutex
	notifier Notifier
	bus      events.Bus
	decay    scoring.DecayPolicy
	now      func() time.Time
	log      *logger.Logger
}

type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithDecayPolicy(p scoring.DecayPolicy) Option {
	return func(s *Service) { s.decay = p }
}

// WithBus publishes lifecycle events for SSE subscribers.
func WithBus(bus events.Bus) Option {
	return func(s *Service) { s.bus = bus }
}

// New wires the service. locks must be shared with the sequence scheduler so
// that webhook events and ticks never interleave on the same lead.
func New(store repository.Store, engine *scoring.Engine, locks *lock.KeyedMutex, notifier Notifier, log *logger.Logger, opts ...Option) *Service {
	s := &Service{
		store:    store,
		engine:   engine,
		locks:    locks,
		notifier: notifier,
		decay:    scoring.DefaultDecayPolicy(),
		now:      time.Now,
		log:      log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) GetLead(ctx context.Context, id uuid.UUID) (domain.Lead, error) {
	l, err := s.store.GetLead(ctx, id)
	if err != nil {
		return domain.Lead{}, mapStoreError(err)
	}
	return l, nil
}

// ListActivities returns the lead's ledger in insertion order.
func (s *Service) ListActivities(ctx context.Context, id uuid.UUID, limit int) ([]domain.Activity, error) {
	if _, err := s.GetLead(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListActivities(ctx, id, limit)
}

// ApplyEvent scores one engagement event and routes the lead when its tier changed.
func (s *Service) ApplyEvent(ctx context.Context, id uuid.UUID, event domain.EventType, bonus int) (Outcome, error) {
	now := s.now()
	var out Outcome
	t, err := s.mutate(ctx, id, func(cur domain.Lead) (domain.Transition, error) {
		t, o, err := s.scoreAndRoute(domain.Unchanged(cur), event, bonus, now)
		out = o
		return t, err
	})
	if err != nil {
		return Outcome{}, err
	}
	return s.finish(ctx, t, out), nil
}

// scoreAndRoute applies event on top of t and appends the routing decision
// when the tier moved.
func (s *Service) scoreAndRoute(t domain.Transition, event domain.EventType, bonus int, now time.Time) (domain.Transition, Outcome, error) {
	res, err := s.engine.Apply(t.After, event, bonus)
	if err != nil {
		return domain.Transition{}, Outcome{}, err
	}
	t = t.Then(res.Transition)
	out := Outcome{Action: routing.ActionNone, OldTier: res.OldTier, NewTier: res.NewTier, TierChanged: res.TierChanged}
	if res.TierChanged {
		d := routing.Route(res.Lead(), res.OldTier, res.NewTier, now)
		t = t.Then(d.Transition)
		out.Action = d.Action
	}
	return t, out, nil
}

// mutate serializes in-process callers per lead and applies fn under the row lock.
func (s *Service) mutate(ctx context.Context, id uuid.UUID, fn repository.MutateFunc) (domain.Transition, error) {
	unlock := s.locks.Lock(id.String())
	defer unlock()

	t, err := s.store.MutateLead(ctx, id, fn)
	if err != nil {
		return domain.Transition{}, mapStoreError(err)
	}
	return t, nil
}

// finish dispatches side effects. Dispatch failures are logged and never
// undo the committed transition.
func (s *Service) finish(ctx context.Context, t domain.Transition, out Outcome) Outcome {
	out.Lead = t.After
	out.Activities = t.Activities
	if out.OldTier == "" {
		out.OldTier = t.Before.Tier
		out.NewTier = t.After.Tier
		out.TierChanged = out.OldTier != out.NewTier
	}

	if s.notifier != nil {
		log := s.log.WithContext(ctx).WithLeadID(t.After.ID.String())
		for _, n := range t.Notifications {
			if err := s.notifier.Notify(ctx, t.After, n); err != nil {
				log.Error("notification dispatch failed", "kind", n.Kind, "error", err)
			}
		}
		for _, a := range t.AutoActions {
			if err := s.notifier.EnqueueAutoAction(ctx, t.After, a); err != nil {
				log.Error("auto-action enqueue failed", "action", a.Kind, "error", err)
			}
		}
	}

	if s.bus != nil && out.TierChanged {
		s.bus.Publish(ctx, events.LeadTierChanged{
			BaseEvent: events.NewBaseEvent(),
			LeadID:    t.After.ID,
			OldTier:   string(out.OldTier),
			NewTier:   string(out.NewTier),
			Score:     t.After.Score,
			Action:    string(out.Action),
		})
	}
	return out
}

func mapStoreError(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperr.Wrap(apperr.KindNotFound, "lead not found", err)
	case errors.Is(err, domain.ErrUnknownEvent):
		return apperr.Validation(err.Error())
	}
	return err
}
