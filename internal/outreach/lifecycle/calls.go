package lifecycle

import (
	"context"
	"fmt"

	"outreach_backend/internal/outreach/domain"
	"outreach_backend/internal/outreach/repository"
	"outreach_backend/internal/outreach/routing"
	"outreach_backend/platform/apperr"
	"outreach_backend/platform/sanitize"

	"github.com/google/uuid"
)

// longCallSeconds earns the call_long bonus on an answered call.
const longCallSeconds = 60

// noAnswerPenaltyEvery applies no_answer_3x on every third unanswered call.
const noAnswerPenaltyEvery = 3

// CallOutcomeInput is the disposition reported for one AI or manual call.
type CallOutcomeInput struct {
	Outcome         domain.CallOutcome
	Summary         string
	DurationSeconds int
	ProviderCallID  string
	WantsMeeting    bool
	WantsApp        bool
}

var callOutcomeLabels = map[domain.CallOutcome]string{
	domain.CallQualified:     "Qualified",
	domain.CallCallback:      "Callback requested",
	domain.CallNotInterested: "Not interested",
	domain.CallWrongNumber:   "Wrong number",
	domain.CallNoAnswer:      "No answer",
	domain.CallBusy:          "Line busy",
}

// RecordCallOutcome stores the call log and applies the outcome's scoring.
func (s *Service) RecordCallOutcome(ctx context.Context, id uuid.UUID, in CallOutcomeInput) (Outcome, error) {
	label, ok := callOutcomeLabels[in.Outcome]
	if !ok {
		return Outcome{}, apperr.Validation(fmt.Sprintf("unknown call outcome %q", in.Outcome))
	}
	content := label
	if in.Summary != "" {
		content += ": " + in.Summary
	}
	entry := domain.Activity{
		LeadID:    id,
		Type:      domain.ActivityCallOutcome,
		Channel:   domain.ActivityCall,
		Direction: domain.DirectionInbound,
		Content:   sanitize.Truncate(content, 500),
	}

	now := s.now()
	out := Outcome{Action: routing.ActionNone}
	log := domain.CallLog{
		LeadID:          id,
		ProviderCallID:  in.ProviderCallID,
		Outcome:         in.Outcome,
		Summary:         sanitize.Truncate(in.Summary, 2000),
		DurationSeconds: in.DurationSeconds,
	}
	t, err := s.recordCall(ctx, log, func(cur domain.Lead, same int) (domain.Transition, error) {
		t := domain.Unchanged(cur).Record(entry)
		var applied []domain.EventType

		switch in.Outcome {
		case domain.CallQualified:
			applied = append(applied, domain.EventCallQualified)
		case domain.CallCallback:
			applied = append(applied, domain.EventCallAnswered)
		case domain.CallNotInterested:
			applied = append(applied, domain.EventNegativeReply)
		case domain.CallWrongNumber:
			applied = append(applied, domain.EventWrongNumber)
		case domain.CallNoAnswer:
			if same%noAnswerPenaltyEvery == 0 {
				applied = append(applied, domain.EventNoAnswer3x)
			}
		}
		if answered(in.Outcome) {
			if in.DurationSeconds >= longCallSeconds {
				applied = append(applied, domain.EventCallLong)
			}
			if in.WantsMeeting {
				applied = append(applied, domain.EventWantsMeeting)
			}
			if in.WantsApp {
				applied = append(applied, domain.EventWantsApp)
			}
		}

		for _, event := range applied {
			next, o, err := s.scoreAndRoute(t, event, 0, now)
			if err != nil {
				return domain.Transition{}, err
			}
			t = next
			if o.TierChanged {
				out.Action = o.Action
			}
		}

		if in.Outcome == domain.CallWrongNumber {
			d := routing.MarkBadData(t.After, "Wrong number reported on call")
			t = t.Then(d.Transition)
			out.Action = d.Action
		}
		if in.WantsMeeting && answered(in.Outcome) {
			t.AutoActions = appendAutoAction(t.AutoActions, domain.AutoAction{Kind: domain.AutoSendMeetingLink, LeadID: id})
		}
		if in.WantsApp && answered(in.Outcome) {
			t.AutoActions = appendAutoAction(t.AutoActions, domain.AutoAction{Kind: domain.AutoSendAppLink, LeadID: id})
		}
		return t, nil
	})
	if err != nil {
		return Outcome{}, err
	}
	return s.finish(ctx, t, out), nil
}

// recordCall holds the per-lead lock across the insert, the count and the
// mutation so concurrent outcomes see each other's call logs.
func (s *Service) recordCall(ctx context.Context, log domain.CallLog, fn repository.CallMutateFunc) (domain.Transition, error) {
	unlock := s.locks.Lock(log.LeadID.String())
	defer unlock()

	t, err := s.store.RecordCall(ctx, log, fn)
	if err != nil {
		return domain.Transition{}, mapStoreError(err)
	}
	return t, nil
}

func answered(o domain.CallOutcome) bool {
	return o == domain.CallQualified || o == domain.CallCallback || o == domain.CallNotInterested
}

// appendAutoAction skips kinds already queued by routing.
func appendAutoAction(actions []domain.AutoAction, a domain.AutoAction) []domain.AutoAction {
	for _, existing := range actions {
		if existing.Kind == a.Kind {
			return actions
		}
	}
	return append(actions, a)
}
