package lifecycle

import (
	"context"
	"fmt"

	"outreach_backend/internal/events"
	"outreach_backend/internal/outreach/domain"
	"outreach_backend/internal/outreach/routing"

	"github.com/google/uuid"
)

// Pause stops automation for one lead.
func (s *Service) Pause(ctx context.Context, id uuid.UUID) (Outcome, error) {
	t, err := s.mutate(ctx, id, func(cur domain.Lead) (domain.Transition, error) {
		if cur.SequenceStatus == domain.SequencePaused {
			return domain.Unchanged(cur), nil
		}
		return routing.Pause(cur).Transition, nil
	})
	if err != nil {
		return Outcome{}, err
	}
	return s.finish(ctx, t, Outcome{Action: routing.ActionNone}), nil
}

// Resume reactivates the lead's sequence and makes it due now.
func (s *Service) Resume(ctx context.Context, id uuid.UUID) (Outcome, error) {
	now := s.now()
	t, err := s.mutate(ctx, id, func(cur domain.Lead) (domain.Transition, error) {
		return routing.Resume(cur, now).Transition, nil
	})
	if err != nil {
		return Outcome{}, err
	}
	return s.finish(ctx, t, Outcome{Action: routing.ActionContinue}), nil
}

// MarkQualified lifts the score to the qualified floor and routes the lead as qualified.
func (s *Service) MarkQualified(ctx context.Context, id uuid.UUID) (Outcome, error) {
	now := s.now()
	var out Outcome
	t, err := s.mutate(ctx, id, func(cur domain.Lead) (domain.Transition, error) {
		res, err := s.engine.Raise(cur, domain.TierQualified)
		if err != nil {
			return domain.Transition{}, err
		}
		t := res.Transition
		if res.Lead().Score == cur.Score {
			t = domain.Unchanged(cur)
			t.After.Tier = res.NewTier
		}
		d := routing.Route(t.After, cur.Tier, domain.TierQualified, now)
		out = Outcome{Action: d.Action, OldTier: cur.Tier, NewTier: domain.TierQualified, TierChanged: cur.Tier != domain.TierQualified}
		return t.Then(d.Transition), nil
	})
	if err != nil {
		return Outcome{}, err
	}
	return s.finish(ctx, t, out), nil
}

// MeetingBooked scores a booked meeting.
func (s *Service) MeetingBooked(ctx context.Context, id uuid.UUID) (Outcome, error) {
	return s.applyWithNote(ctx, id, domain.EventMeetingBooked, "Meeting booked")
}

// AppDownloaded scores an app install.
func (s *Service) AppDownloaded(ctx context.Context, id uuid.UUID) (Outcome, error) {
	return s.applyWithNote(ctx, id, domain.EventAppDownloaded, "App downloaded")
}

func (s *Service) applyWithNote(ctx context.Context, id uuid.UUID, event domain.EventType, note string) (Outcome, error) {
	now := s.now()
	var out Outcome
	t, err := s.mutate(ctx, id, func(cur domain.Lead) (domain.Transition, error) {
		start := domain.Unchanged(cur).Record(domain.Note(cur.ID, domain.ActivityNote, note))
		t, o, err := s.scoreAndRoute(start, event, 0, now)
		out = o
		return t, err
	})
	if err != nil {
		return Outcome{}, err
	}
	return s.finish(ctx, t, out), nil
}

// DecayResult summarizes one decay run.
type DecayResult struct {
	Candidates int
	Decayed    int
	Errors     int
}

// Decay applies inactivity_decay to every active lead that went quiet.
// Eligibility is re-checked under the lead lock.
func (s *Service) Decay(ctx context.Context) (DecayResult, error) {
	now := s.now()
	ids, err := s.store.ListDecayCandidates(ctx, now.Add(-s.decay.Inactivity), s.decay.MinScore)
	if err != nil {
		return DecayResult{}, fmt.Errorf("list decay candidates: %w", err)
	}

	result := DecayResult{Candidates: len(ids)}
	for _, id := range ids {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		var out Outcome
		decayed := false
		t, err := s.mutate(ctx, id, func(cur domain.Lead) (domain.Transition, error) {
			if !s.decay.Eligible(cur, now) {
				return domain.Unchanged(cur), nil
			}
			decayed = true
			t, o, err := s.scoreAndRoute(domain.Unchanged(cur), domain.EventInactivityDecay, 0, now)
			out = o
			return t, err
		})
		if err != nil {
			result.Errors++
			s.log.Error("score decay failed", "leadId", id, "error", err)
			continue
		}
		if decayed {
			result.Decayed++
			s.finish(ctx, t, out)
		}
	}
	s.log.Info("score decay completed", "candidates", result.Candidates, "decayed", result.Decayed, "errors", result.Errors)
	return result, nil
}

func (s *Service) IsSystemPaused(ctx context.Context) (bool, error) {
	return s.store.IsSystemPaused(ctx)
}

// SetSystemPaused flips the emergency stop honored by every tick.
func (s *Service) SetSystemPaused(ctx context.Context, paused bool) error {
	if err := s.store.SetSystemPaused(ctx, paused); err != nil {
		return err
	}
	s.log.Warn("system pause changed", "paused", paused)
	if s.bus != nil {
		s.bus.Publish(ctx, events.SystemPauseChanged{BaseEvent: events.NewBaseEvent(), Paused: paused})
	}
	return nil
}
