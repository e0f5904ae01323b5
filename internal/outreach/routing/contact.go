package routing

import (
	"fmt"
	"time"

	"outreach_backend/internal/outreach/domain"
	"outreach_backend/platform/sanitize"
)

// FullOptOutScore is written when both SMS and email are opted out.
const FullOptOutScore = -100

// maxReplyContent bounds reply bodies stored on the ledger.
const maxReplyContent = 500

// HandleOptOut records a channel opt-out. SMS and voice share consent, so an
// SMS opt-out also opts out of calls. Once SMS and email are both opted out
// the lead is terminal: calls opted out too, score -100, tier dead, sequence
// stopped.
func HandleOptOut(lead domain.Lead, channel domain.Channel) Decision {
	next := lead
	var suppressions []domain.Suppression
	reason := "opt_out_" + string(channel.Ledger())

	switch channel {
	case domain.ChannelSMS:
		next.SMSOptOut = true
		next.CallOptOut = true
		if lead.Phone != "" {
			suppressions = append(suppressions, domain.Suppression{Kind: domain.IdentifierPhone, Value: lead.Phone, Reason: reason})
		}
	case domain.ChannelEmail:
		next.EmailOptOut = true
		if lead.Email != "" {
			suppressions = append(suppressions, domain.Suppression{Kind: domain.IdentifierEmail, Value: lead.Email, Reason: reason})
		}
	case domain.ChannelAICall:
		next.CallOptOut = true
	}

	t := domain.Transition{Before: lead, After: next}.Record(domain.Activity{
		LeadID:    lead.ID,
		Type:      domain.ActivityOptOut,
		Channel:   channel.Ledger(),
		Direction: domain.DirectionInbound,
		Content:   fmt.Sprintf("Opted out of %s", channel.Ledger()),
	})

	if next.FullyOptedOut() {
		terminal := next
		terminal.CallOptOut = true
		terminal.Score = FullOptOutScore
		terminal.Tier = domain.TierDead
		terminal.SequenceStatus = domain.SequenceStopped
		terminal.Status = domain.StatusDoNotCall
		t.After = terminal
		if next.Score != FullOptOutScore {
			t = t.Record(domain.ScoreEntry(lead.ID, domain.EventOptOut, next.Score, FullOptOutScore))
		}
		suppressions = domain.SuppressContacts(terminal, reason)
	}

	t.Suppressions = suppressions
	return Decision{Action: ActionOptedOut, Transition: t}
}

// HandleReply marks the lead as replied and hands it to a human: the sequence
// pauses and a rep alert is raised.
func HandleReply(lead domain.Lead, channel domain.Channel, content string, now time.Time) Decision {
	next := lead
	next.Replied = true
	at := now
	next.LastReplyAt = &at
	next.Status = domain.StatusDiscovery
	next.SequenceStatus = domain.SequencePaused

	t := domain.Transition{Before: lead, After: next}.Record(domain.Activity{
		LeadID:    lead.ID,
		Type:      string(channel.Ledger()) + "_replied",
		Channel:   channel.Ledger(),
		Direction: domain.DirectionInbound,
		Content:   sanitize.Truncate(content, maxReplyContent),
	})
	t.Notifications = []domain.Notification{{
		Kind:    domain.NotifyRepAlert,
		LeadID:  lead.ID,
		Score:   lead.Score,
		Message: fmt.Sprintf("%s replied via %s: %s", displayName(lead), channel.Ledger(), sanitize.Truncate(content, 140)),
	}}
	return Decision{Action: ActionReplied, Transition: t}
}

// HandleResubscribe clears the opt-out for channel. Suppression entries are
// permanent and are not touched.
func HandleResubscribe(lead domain.Lead, channel domain.Channel) Decision {
	next := lead
	switch channel {
	case domain.ChannelSMS, domain.ChannelAICall:
		next.SMSOptOut = false
		next.CallOptOut = false
	case domain.ChannelEmail:
		next.EmailOptOut = false
	}
	t := domain.Transition{Before: lead, After: next}.Record(domain.Activity{
		LeadID:    lead.ID,
		Type:      domain.ActivityOptIn,
		Channel:   channel.Ledger(),
		Direction: domain.DirectionInbound,
		Content:   fmt.Sprintf("Resubscribed to %s", channel.Ledger()),
	})
	return Decision{Action: ActionContinue, Transition: t}
}
