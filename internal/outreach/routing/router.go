// Package routing reacts to tier transitions and contact-preference changes.
// Every function returns a Decision: the new lead snapshot plus the side
// effects the lifecycle service must persist or dispatch.
package routing

import (
	"fmt"
	"time"

	"outreach_backend/internal/outreach/domain"
)

// Action summarizes what a routing decision did.
type Action string

const (
	ActionStopped     Action = "stopped"
	ActionNurture     Action = "nurture"
	ActionPromoted    Action = "promoted"
	ActionContinue    Action = "continue"
	ActionPrioritized Action = "prioritized"
	ActionQualified   Action = "qualified"
	ActionOptedOut    Action = "opted_out"
	ActionReplied     Action = "replied"
	ActionNone        Action = "none"
)

// Decision is the result of a routing function.
type Decision struct {
	Action     Action
	Transition domain.Transition
}

// Notifications requested by the decision.
func (d Decision) Notifications() []domain.Notification { return d.Transition.Notifications }

// AutoActions queued by the decision.
func (d Decision) AutoActions() []domain.AutoAction { return d.Transition.AutoActions }

// Lead after the decision.
func (d Decision) Lead() domain.Lead { return d.Transition.After }

// Route dispatches on newTier. Suppression requests are set-adds and state
// writes are last-write-wins, so routing the same transition twice stores
// nothing new. Notifications and auto-actions are only emitted when the lead
// state actually changed.
func Route(lead domain.Lead, oldTier, newTier domain.Tier, now time.Time) Decision {
	switch newTier {
	case domain.TierDead:
		return routeDead(lead, oldTier)
	case domain.TierCold:
		return routeCold(lead, oldTier)
	case domain.TierWarm:
		return routeWarm(lead)
	case domain.TierHot:
		return routeHot(lead, now)
	case domain.TierQualified:
		return routeQualified(lead)
	}
	return Decision{Action: ActionNone, Transition: domain.Unchanged(lead)}
}

func routeDead(lead domain.Lead, oldTier domain.Tier) Decision {
	next := lead
	next.SequenceStatus = domain.SequenceStopped
	if lead.AnyOptOut() {
		next.Status = domain.StatusDoNotCall
	} else {
		next.Status = domain.StatusBadData
	}

	t := domain.Transition{Before: lead, After: next}
	t.Suppressions = domain.SuppressContacts(next, "dead_score")
	if next != lead {
		t = t.Record(domain.Note(lead.ID, domain.ActivityStageChange,
			fmt.Sprintf("Tier %s -> dead: sequence stopped, status %s", oldTier, next.Status)))
	}
	return Decision{Action: ActionStopped, Transition: t}
}

func routeCold(lead domain.Lead, oldTier domain.Tier) Decision {
	t := domain.Unchanged(lead).Record(domain.Note(lead.ID, domain.ActivityNote,
		fmt.Sprintf("Tier %s -> cold: continuing nurture sequence", oldTier)))
	return Decision{Action: ActionNurture, Transition: t}
}

func routeWarm(lead domain.Lead) Decision {
	if lead.Status != domain.StatusNew {
		return Decision{Action: ActionContinue, Transition: domain.Unchanged(lead)}
	}
	next := lead
	next.Status = domain.StatusLead
	t := domain.Transition{Before: lead, After: next}.Record(
		domain.Note(lead.ID, domain.ActivityStageChange, "Tier warm: status new -> lead"))
	return Decision{Action: ActionPromoted, Transition: t}
}

func routeHot(lead domain.Lead, now time.Time) Decision {
	next := lead
	next.Status = domain.StatusDiscovery
	due := now
	next.NextActionAt = &due

	t := domain.Transition{Before: lead, After: next}
	if lead.Status != domain.StatusDiscovery {
		t = t.Record(domain.Note(lead.ID, domain.ActivityStageChange,
			fmt.Sprintf("Tier hot: status %s -> discovery, next step moved up", lead.Status)))
		t.Notifications = []domain.Notification{{
			Kind:    domain.NotifyOpsAlert,
			LeadID:  lead.ID,
			Score:   lead.Score,
			Message: fmt.Sprintf("Hot lead: %s (score %d)", displayName(lead), lead.Score),
		}}
	}
	return Decision{Action: ActionPrioritized, Transition: t}
}

func routeQualified(lead domain.Lead) Decision {
	next := lead
	next.Status = domain.StatusQualifying
	next.SequenceStatus = domain.SequencePaused

	t := domain.Transition{Before: lead, After: next}
	if next != lead {
		t = t.Record(domain.Note(lead.ID, domain.ActivityStageChange,
			fmt.Sprintf("Tier qualified: status %s -> qualifying, sequence paused", lead.Status)))
		t.Notifications = []domain.Notification{
			{Kind: domain.NotifyQualifying, LeadID: lead.ID, Score: lead.Score},
			{
				Kind:    domain.NotifyOpsAlert,
				LeadID:  lead.ID,
				Score:   lead.Score,
				Message: fmt.Sprintf("Qualified lead: %s (score %d)", displayName(lead), lead.Score),
			},
		}
		t.AutoActions = []domain.AutoAction{
			{Kind: domain.AutoSendMeetingLink, LeadID: lead.ID},
			{Kind: domain.AutoSendAppLink, LeadID: lead.ID},
		}
	}
	return Decision{Action: ActionQualified, Transition: t}
}

func displayName(l domain.Lead) string {
	name := l.FirstName
	if l.LastName != "" {
		if name != "" {
			name += " "
		}
		name += l.LastName
	}
	if l.Company != "" {
		if name == "" {
			return l.Company
		}
		return name + " (" + l.Company + ")"
	}
	if name == "" {
		return l.ID.String()
	}
	return name
}
