package lifecycle

import (
	"context"
	"strings"

	"outreach_backend/internal/events"
	"outreach_backend/internal/outreach/domain"
	"outreach_backend/internal/outreach/routing"
	"outreach_backend/platform/apperr"
	"outreach_backend/platform/sanitize"

	"github.com/google/uuid"
)

// optOutKeywords are matched against the whole trimmed, upper-cased reply.
var optOutKeywords = map[string]struct{}{
	"STOP":        {},
	"UNSUBSCRIBE": {},
	"QUIT":        {},
	"CANCEL":      {},
	"OPT OUT":     {},
	"OPTOUT":      {},
	"REMOVE":      {},
}

const resubscribeKeyword = "START"

type replyKind int

const (
	replyMessage replyKind = iota
	replyOptOut
	replyResubscribe
)

func classifyReply(content string) replyKind {
	normalized := strings.ToUpper(strings.Join(strings.Fields(content), " "))
	if _, ok := optOutKeywords[normalized]; ok {
		return replyOptOut
	}
	if normalized == resubscribeKeyword {
		return replyResubscribe
	}
	return replyMessage
}

func replyEvent(ch domain.Channel) (domain.EventType, bool) {
	switch ch {
	case domain.ChannelSMS:
		return domain.EventSMSReplied, true
	case domain.ChannelEmail:
		return domain.EventEmailReplied, true
	}
	return "", false
}

// RecordReply handles an inbound message. Opt-out keywords opt the lead out of
// the channel and START resubscribes it; anything else marks the lead as
// replied, scores the reply and routes on a tier change.
func (s *Service) RecordReply(ctx context.Context, id uuid.UUID, ch domain.Channel, content string) (Outcome, error) {
	content = sanitize.Text(content)
	switch classifyReply(content) {
	case replyOptOut:
		return s.OptOut(ctx, id, ch)
	case replyResubscribe:
		return s.Resubscribe(ctx, id, ch)
	}

	event, ok := replyEvent(ch)
	if !ok {
		return Outcome{}, apperr.Validation("replies are only accepted on sms or email")
	}

	now := s.now()
	var out Outcome
	t, err := s.mutate(ctx, id, func(cur domain.Lead) (domain.Transition, error) {
		d := routing.HandleReply(cur, ch, content, now)
		t, o, err := s.scoreAndRoute(d.Transition, event, 0, now)
		if !o.TierChanged {
			o.Action = d.Action
		}
		out = o
		return t, err
	})
	if err != nil {
		return Outcome{}, err
	}

	out = s.finish(ctx, t, out)
	if s.bus != nil {
		s.bus.Publish(ctx, events.LeadReplied{
			BaseEvent: events.NewBaseEvent(),
			LeadID:    id,
			Channel:   string(ch.Ledger()),
			Preview:   sanitize.Truncate(content, 140),
		})
	}
	return out, nil
}

// OptOut records a channel opt-out and suppresses the affected identifiers.
func (s *Service) OptOut(ctx context.Context, id uuid.UUID, ch domain.Channel) (Outcome, error) {
	return s.optOut(ctx, id, ch)
}

// MarkDNC opts the lead out of every channel.
func (s *Service) MarkDNC(ctx context.Context, id uuid.UUID) (Outcome, error) {
	return s.optOut(ctx, id, domain.ChannelSMS, domain.ChannelEmail)
}

func (s *Service) optOut(ctx context.Context, id uuid.UUID, channels ...domain.Channel) (Outcome, error) {
	t, err := s.mutate(ctx, id, func(cur domain.Lead) (domain.Transition, error) {
		t := domain.Unchanged(cur)
		for _, ch := range channels {
			t = t.Then(routing.HandleOptOut(t.After, ch).Transition)
		}
		return t, nil
	})
	if err != nil {
		return Outcome{}, err
	}

	out := s.finish(ctx, t, Outcome{Action: routing.ActionOptedOut})
	if s.bus != nil {
		for _, ch := range channels {
			s.bus.Publish(ctx, events.LeadOptedOut{
				BaseEvent:  events.NewBaseEvent(),
				LeadID:     id,
				Channel:    string(ch.Ledger()),
				FullOptOut: t.After.FullyOptedOut(),
			})
		}
	}
	return out, nil
}

// Resubscribe clears an opt-out after an explicit START.
func (s *Service) Resubscribe(ctx context.Context, id uuid.UUID, ch domain.Channel) (Outcome, error) {
	t, err := s.mutate(ctx, id, func(cur domain.Lead) (domain.Transition, error) {
		return routing.HandleResubscribe(cur, ch).Transition, nil
	})
	if err != nil {
		return Outcome{}, err
	}
	return s.finish(ctx, t, Outcome{Action: routing.ActionContinue}), nil
}
