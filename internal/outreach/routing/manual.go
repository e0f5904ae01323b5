package routing

import (
	"time"

	"outreach_backend/internal/outreach/domain"
)

// Pause stops automation for a lead until Resume.
func Pause(lead domain.Lead) Decision {
	next := lead
	next.SequenceStatus = domain.SequencePaused
	t := domain.Transition{Before: lead, After: next}.Record(
		domain.Note(lead.ID, domain.ActivityNote, "Sequence paused manually"))
	return Decision{Action: ActionNone, Transition: t}
}

// Resume reactivates a paused, completed or stopped sequence and makes the
// lead due immediately.
func Resume(lead domain.Lead, now time.Time) Decision {
	next := lead
	next.SequenceStatus = domain.SequenceActive
	due := now
	next.NextActionAt = &due
	t := domain.Transition{Before: lead, After: next}.Record(
		domain.Note(lead.ID, domain.ActivityNote, "Sequence resumed manually"))
	return Decision{Action: ActionContinue, Transition: t}
}

// MarkBadData flags a wrong number: status bad_data and the sequence stops.
func MarkBadData(lead domain.Lead, reason string) Decision {
	next := lead
	next.Status = domain.StatusBadData
	next.SequenceStatus = domain.SequenceStopped
	t := domain.Transition{Before: lead, After: next}.Record(
		domain.Note(lead.ID, domain.ActivityStageChange, reason))
	return Decision{Action: ActionStopped, Transition: t}
}
