package domain

import (
	"time"

	"github.com/google/uuid"
)

// Direction of a ledger entry.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
	DirectionNone     Direction = "none"
)

// Ledger entry types.
const (
	ActivityScoreChange       = "score_change"
	ActivityStageChange       = "stage_change"
	ActivityNote              = "note"
	ActivityStepSkipped       = "step_skipped"
	ActivitySequenceCompleted = "sequence_completed"
	ActivitySequenceFailed    = "sequence_failed"
	ActivitySMSSent           = "sms_sent"
	ActivityEmailSent         = "email_sent"
	ActivityCallInitiated     = "call_initiated"
	ActivityCallOutcome       = "call_outcome"
	ActivityOptOut            = "opt_out"
	ActivityOptIn             = "opt_in"
	ActivityAutoAction        = "auto_action"
)

// Activity is one append-only ledger entry. ID is assigned by the store and
// is the ordering source of truth for a lead's history.
type Activity struct {
	ID          int64
	LeadID      uuid.UUID
	Type        string
	Channel     ActivityChannel
	Direction   Direction
	Content     string
	ScoreBefore *int
	ScoreAfter  *int
	CreatedAt   time.Time
}

// Note builds an informational system entry.
func Note(leadID uuid.UUID, activityType, content string) Activity {
	return Activity{
		LeadID:    leadID,
		Type:      activityType,
		Channel:   ActivitySystem,
		Direction: DirectionNone,
		Content:   content,
	}
}

// ScoreEntry builds the ledger entry written for every score change.
func ScoreEntry(leadID uuid.UUID, event EventType, before, after int) Activity {
	b, a := before, after
	return Activity{
		LeadID:      leadID,
		Type:        ActivityScoreChange,
		Channel:     ActivitySystem,
		Direction:   DirectionNone,
		Content:     string(event),
		ScoreBefore: &b,
		ScoreAfter:  &a,
	}
}
